// Package main runs the calibration engine's host loop: it owns nothing
// about calibration logic itself, only the wiring (config, shmem, IPC) and
// the fixed-rate tick that drives calibration.Engine.
package main

import (
	"context"
	"time"

	"github.com/edaniels/golog"
	"go.viam.com/utils"

	"github.com/spacecalibrator/core/calibcontext"
	"github.com/spacecalibrator/core/calibration"
)

var logger = golog.NewDevelopmentLogger("spacecal-daemon")

func main() {
	utils.ContextualMainQuit(mainWithArgs, logger)
}

// Arguments are the command's recognized flags.
type Arguments struct {
	ConfigPath string `flag:"config,usage=path to calibration config JSON"`
}

func mainWithArgs(ctx context.Context, args []string, logger golog.Logger) error {
	var argsParsed Arguments
	if err := utils.ParseFlags(args, &argsParsed); err != nil {
		return err
	}

	cfg := calibcontext.DefaultConfig()
	if argsParsed.ConfigPath != "" {
		loaded, err := calibcontext.LoadConfig(argsParsed.ConfigPath)
		if err != nil {
			return err
		}
		cfg = loaded
	}

	engine, err := calibration.InitCalibrator(cfg, logger, nil)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := engine.Close(); closeErr != nil {
			logger.Errorw("error closing engine", "error", closeErr)
		}
	}()

	start := time.Now()
	ticker := time.NewTicker(time.Second / 20)
	defer ticker.Stop()

	var once bool
	for {
		iterErr := func() error {
			defer utils.ContextMainIterFunc(ctx)()
			if !once {
				once = true
				defer utils.ContextMainReadyFunc(ctx)()
			}
			if !utils.SelectContextOrWaitChan(ctx, ticker.C) {
				return ctx.Err()
			}
			return engine.CalibrationTick(time.Since(start).Seconds())
		}()
		if iterErr != nil {
			return iterErr
		}
	}
}
