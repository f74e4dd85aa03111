// Package ipc implements the blocking request/response client the
// calibration engine uses to push per-device transform updates to the
// driver over a named stream socket.
package ipc

import (
	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/num/quat"
)

// DefaultSocketPath is the stream socket the driver listens on.
const DefaultSocketPath = "/tmp/OpenVRSpaceCalibratorDriver.sock"

// CurrentProtocolVersion is the handshake version this client speaks. A
// mismatch with the driver's reported version is fatal to the connection.
const CurrentProtocolVersion uint32 = 4

// RequestType discriminates the Request tagged union.
type RequestType uint32

const (
	RequestHandshake RequestType = iota
	RequestSetDeviceTransform
	RequestSetAlignmentSpeedParams
	RequestDebugOffset
)

// ResponseType discriminates the Response tagged union.
type ResponseType uint32

const (
	ResponseHandshake ResponseType = iota
	ResponseSetDeviceTransform
	ResponseSetAlignmentSpeedParams
	ResponseDebugOffset
	ResponseError
)

// Protocol carries the handshake version exchange.
type Protocol struct {
	Version uint32
}

// SetDeviceTransform instructs the driver to apply (or clear) a calibrated
// transform on one device.
type SetDeviceTransform struct {
	OpenVRID          uint32
	Enabled           bool
	UpdateTranslation bool
	UpdateRotation    bool
	UpdateScale       bool
	Translation       r3.Vector
	Rotation          quat.Number
	Scale             float64
	Lerp              bool
	Quash             bool
}

// ResetAndDisableOffsets is the zero/identity, disabled variant of
// SetDeviceTransform the original always sends before entering Rotation
// state or on a tracking-system mismatch during a profile scan.
func ResetAndDisableOffsets(openVRID uint32) SetDeviceTransform {
	return SetDeviceTransform{
		OpenVRID:          openVRID,
		Enabled:           false,
		UpdateTranslation: true,
		UpdateRotation:    true,
		UpdateScale:       true,
		Translation:       r3.Vector{},
		Rotation:          quat.Number{Real: 1},
		Scale:             1,
	}
}

// AlignmentSpeedParams is the lerp-factor schedule pushed once before every
// profile scan.
type AlignmentSpeedParams struct {
	ThresholdTranslationTiny  float64 // squared meters
	ThresholdTranslationSmall float64
	ThresholdTranslationLarge float64
	ThresholdRotationTiny     float64 // radians
	ThresholdRotationSmall    float64
	ThresholdRotationLarge    float64
	AlignSpeedTiny            float64 // lerp factor / second
	AlignSpeedSmall           float64
	AlignSpeedLarge           float64
}

// Request is a tagged union over the four request kinds. Only the field
// matching Type is meaningful; the others are ignored by the codec on
// encode and left zero-valued on decode. Go has no native union type, so
// unlike the C++ driver's overlapping storage this simply carries every
// variant's fields side by side; see codec.go for the wire framing that
// keeps the envelope a fixed size regardless.
type Request struct {
	Type                 RequestType
	Handshake            Protocol
	SetDeviceTransform   SetDeviceTransform
	AlignmentSpeedParams AlignmentSpeedParams
}

// Response is symmetric with Request.
type Response struct {
	Type      ResponseType
	Handshake Protocol
	Ok        bool
}

// HandshakeRequest builds the Handshake request this client always sends
// first on a new connection.
func HandshakeRequest() Request {
	return Request{Type: RequestHandshake, Handshake: Protocol{Version: CurrentProtocolVersion}}
}

// SetDeviceTransformRequest wraps a SetDeviceTransform payload.
func SetDeviceTransformRequest(t SetDeviceTransform) Request {
	return Request{Type: RequestSetDeviceTransform, SetDeviceTransform: t}
}

// SetAlignmentSpeedParamsRequest wraps an AlignmentSpeedParams payload.
func SetAlignmentSpeedParamsRequest(p AlignmentSpeedParams) Request {
	return Request{Type: RequestSetAlignmentSpeedParams, AlignmentSpeedParams: p}
}
