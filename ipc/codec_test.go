package ipc

import (
	"bytes"
	"testing"

	"github.com/golang/geo/r3"
	"go.viam.com/test"
	"gonum.org/v1/gonum/num/quat"
)

func TestEncodeDecodeHandshakeRequest(t *testing.T) {
	req := HandshakeRequest()
	var buf bytes.Buffer
	test.That(t, EncodeRequest(&buf, req), test.ShouldBeNil)
	test.That(t, buf.Len(), test.ShouldEqual, requestEnvelopeSize)

	got, err := DecodeRequest(&buf)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, got.Type, test.ShouldEqual, RequestHandshake)
	test.That(t, got.Handshake.Version, test.ShouldEqual, CurrentProtocolVersion)
}

func TestEncodeDecodeSetDeviceTransformRequest(t *testing.T) {
	sdt := SetDeviceTransform{
		OpenVRID:    3,
		Enabled:     true,
		Translation: r3.Vector{X: 1, Y: 2, Z: 3},
		Rotation:    quat.Number{Real: 1},
		Scale:       1,
		Lerp:        true,
	}
	req := SetDeviceTransformRequest(sdt)

	var buf bytes.Buffer
	test.That(t, EncodeRequest(&buf, req), test.ShouldBeNil)

	got, err := DecodeRequest(&buf)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, got.Type, test.ShouldEqual, RequestSetDeviceTransform)
	test.That(t, got.SetDeviceTransform.OpenVRID, test.ShouldEqual, uint32(3))
	test.That(t, got.SetDeviceTransform.Enabled, test.ShouldBeTrue)
	test.That(t, got.SetDeviceTransform.Translation, test.ShouldResemble, sdt.Translation)
	test.That(t, got.SetDeviceTransform.Lerp, test.ShouldBeTrue)
	test.That(t, got.SetDeviceTransform.Quash, test.ShouldBeFalse)
}

func TestEncodeDecodeResponse(t *testing.T) {
	resp := Response{Type: ResponseHandshake, Ok: true, Handshake: Protocol{Version: CurrentProtocolVersion}}
	var buf bytes.Buffer
	test.That(t, EncodeResponse(&buf, resp), test.ShouldBeNil)
	test.That(t, buf.Len(), test.ShouldEqual, responseEnvelopeSize)

	got, err := DecodeResponse(&buf)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, got.Type, test.ShouldEqual, ResponseHandshake)
	test.That(t, got.Ok, test.ShouldBeTrue)
	test.That(t, got.Handshake.Version, test.ShouldEqual, CurrentProtocolVersion)
}

func TestDecodeRequestUnknownType(t *testing.T) {
	var buf bytes.Buffer
	req := HandshakeRequest()
	test.That(t, EncodeRequest(&buf, req), test.ShouldBeNil)
	raw := buf.Bytes()
	raw[0] = 0xFF // corrupt discriminator
	_, err := DecodeRequest(bytes.NewReader(raw))
	test.That(t, err, test.ShouldNotBeNil)
}
