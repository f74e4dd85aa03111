// Package calibcontext holds the calibration engine's recognized
// configuration and the mutable live state shared between the tick loop
// and external commands.
package calibcontext

import (
	"encoding/json"
	"os"

	"github.com/pkg/errors"

	"github.com/spacecalibrator/core/ipc"
)

// Config is the recognized, JSON-file-backed configuration for a
// calibration run.
type Config struct {
	ReferenceID             int    `json:"referenceId"`
	TargetID                int    `json:"targetId"`
	ReferenceTrackingSystem string `json:"referenceTrackingSystem"`
	TargetTrackingSystem    string `json:"targetTrackingSystem"`

	SampleCount int `json:"sampleCount"`

	JitterThreshold                float64 `json:"jitterThreshold"`
	ContinuousCalibrationThreshold float64 `json:"continuousCalibrationThreshold"`
	MaxRelativeErrorThreshold      float64 `json:"maxRelativeErrorThreshold"`

	IgnoreOutliers             bool `json:"ignoreOutliers"`
	LockRelativePosition       bool `json:"lockRelativePosition"`
	EnableStaticRecalibration  bool `json:"enableStaticRecalibration"`
	QuashTargetInContinuous    bool `json:"quashTargetInContinuous"`
	RequireTriggerPressToApply bool `json:"requireTriggerPressToApply"`

	AlignmentSpeedParams ipc.AlignmentSpeedParams `json:"alignmentSpeedParams"`

	ShmemSegmentName string `json:"shmemSegmentName"`
	IPCSocketPath    string `json:"ipcSocketPath"`
}

// DefaultConfig returns the configuration the original driver ships with.
func DefaultConfig() Config {
	return Config{
		ReferenceID: -1,
		TargetID:    -1,
		SampleCount: 100,

		JitterThreshold:                0.003,
		ContinuousCalibrationThreshold: 0.005,
		MaxRelativeErrorThreshold:      0.003,

		IgnoreOutliers: true,

		AlignmentSpeedParams: ipc.AlignmentSpeedParams{
			ThresholdTranslationTiny:  0.0009,
			ThresholdTranslationSmall: 0.0016,
			ThresholdTranslationLarge: 0.0025,
			ThresholdRotationTiny:     0.0017,
			ThresholdRotationSmall:    0.0087,
			ThresholdRotationLarge:    0.0175,
			AlignSpeedTiny:            0.1,
			AlignSpeedSmall:           0.3,
			AlignSpeedLarge:           1.0,
		},
	}
}

// LoadConfig reads and validates a Config from a JSON file at path,
// defaulting any field the file omits.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, errors.Wrapf(err, "calibcontext: read config %s", path)
	}
	if err := json.Unmarshal(data, &cfg); err != nil {
		return cfg, errors.Wrapf(err, "calibcontext: parse config %s", path)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, errors.Wrapf(err, "calibcontext: invalid config %s", path)
	}
	return cfg, nil
}

// Validate rejects configuration values that the engine cannot act on.
func (c Config) Validate() error {
	if c.SampleCount <= 0 {
		return errors.New("sampleCount must be positive")
	}
	if c.ReferenceID >= 64 || c.TargetID >= 64 {
		return errors.New("referenceId and targetId must be in [0, 64)")
	}
	return nil
}
