package ipc

import (
	"bytes"
	"encoding/binary"
	"io"

	"github.com/pkg/errors"
)

// payloadSize is sized to the largest request/response variant, so every
// envelope on the wire is the same fixed length regardless of which variant
// it carries.
var payloadSize = maxInt(
	binary.Size(Protocol{}),
	binary.Size(SetDeviceTransform{}),
	binary.Size(AlignmentSpeedParams{}),
)

func maxInt(vals ...int) int {
	m := 0
	for _, v := range vals {
		if v > m {
			m = v
		}
	}
	return m
}

// requestEnvelopeSize is the fixed byte length of every encoded Request:
// a u32 discriminator plus the shared payload buffer.
var requestEnvelopeSize = 4 + payloadSize

// responseEnvelopeSize is the fixed byte length of every encoded Response.
var responseEnvelopeSize = 4 + 1 + binary.Size(Protocol{}) // type + ok + handshake payload

// EncodeRequest writes req to w as a fixed-size envelope.
func EncodeRequest(w io.Writer, req Request) error {
	payload := make([]byte, payloadSize)
	buf := bytes.NewBuffer(payload[:0])
	switch req.Type {
	case RequestHandshake:
		if err := binary.Write(buf, binary.LittleEndian, req.Handshake); err != nil {
			return errors.Wrap(err, "ipc: encode handshake payload")
		}
	case RequestSetDeviceTransform:
		if err := binary.Write(buf, binary.LittleEndian, req.SetDeviceTransform); err != nil {
			return errors.Wrap(err, "ipc: encode SetDeviceTransform payload")
		}
	case RequestSetAlignmentSpeedParams:
		if err := binary.Write(buf, binary.LittleEndian, req.AlignmentSpeedParams); err != nil {
			return errors.Wrap(err, "ipc: encode AlignmentSpeedParams payload")
		}
	case RequestDebugOffset:
		// no payload
	default:
		return errors.Errorf("ipc: unknown request type %d", req.Type)
	}
	payload = payload[:payloadSize] // zero-pad to the fixed size

	if err := binary.Write(w, binary.LittleEndian, uint32(req.Type)); err != nil {
		return errors.Wrap(err, "ipc: write request discriminator")
	}
	if _, err := w.Write(payload); err != nil {
		return errors.Wrap(err, "ipc: write request payload")
	}
	return nil
}

// DecodeRequest reads a fixed-size envelope from r.
func DecodeRequest(r io.Reader) (Request, error) {
	var req Request
	var typ uint32
	if err := binary.Read(r, binary.LittleEndian, &typ); err != nil {
		return req, errors.Wrap(err, "ipc: read request discriminator")
	}
	req.Type = RequestType(typ)

	payload := make([]byte, payloadSize)
	if _, err := io.ReadFull(r, payload); err != nil {
		return req, errors.Wrap(err, "ipc: read request payload")
	}
	pr := bytes.NewReader(payload)
	switch req.Type {
	case RequestHandshake:
		if err := binary.Read(pr, binary.LittleEndian, &req.Handshake); err != nil {
			return req, errors.Wrap(err, "ipc: decode handshake payload")
		}
	case RequestSetDeviceTransform:
		if err := binary.Read(pr, binary.LittleEndian, &req.SetDeviceTransform); err != nil {
			return req, errors.Wrap(err, "ipc: decode SetDeviceTransform payload")
		}
	case RequestSetAlignmentSpeedParams:
		if err := binary.Read(pr, binary.LittleEndian, &req.AlignmentSpeedParams); err != nil {
			return req, errors.Wrap(err, "ipc: decode AlignmentSpeedParams payload")
		}
	case RequestDebugOffset:
	default:
		return req, errors.Errorf("ipc: unknown request type %d", req.Type)
	}
	return req, nil
}

// EncodeResponse writes resp to w as a fixed-size envelope.
func EncodeResponse(w io.Writer, resp Response) error {
	if err := binary.Write(w, binary.LittleEndian, uint32(resp.Type)); err != nil {
		return errors.Wrap(err, "ipc: write response discriminator")
	}
	if err := binary.Write(w, binary.LittleEndian, resp.Ok); err != nil {
		return errors.Wrap(err, "ipc: write response ok flag")
	}
	if err := binary.Write(w, binary.LittleEndian, resp.Handshake); err != nil {
		return errors.Wrap(err, "ipc: write response handshake payload")
	}
	return nil
}

// DecodeResponse reads a fixed-size envelope from r.
func DecodeResponse(r io.Reader) (Response, error) {
	var resp Response
	var typ uint32
	if err := binary.Read(r, binary.LittleEndian, &typ); err != nil {
		return resp, errors.Wrap(err, "ipc: read response discriminator")
	}
	resp.Type = ResponseType(typ)
	if err := binary.Read(r, binary.LittleEndian, &resp.Ok); err != nil {
		return resp, errors.Wrap(err, "ipc: read response ok flag")
	}
	if err := binary.Read(r, binary.LittleEndian, &resp.Handshake); err != nil {
		return resp, errors.Wrap(err, "ipc: read response handshake payload")
	}
	return resp, nil
}
