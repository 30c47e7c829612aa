package l2

import (
	"encoding/binary"

	"github.com/avp-protocol/avp-tropic/pkg/l1"
)

// ParseRequest decodes a raw request frame:
//
//	req_id (1) | req_len (1) | req_data | crc16 (2, LE)
//
// It verifies the length field against the frame size and the CRC over
// req_id..req_data. The returned data aliases frame.
func ParseRequest(frame []byte) (reqID byte, data []byte, err error) {
	if len(frame) < 2+l1.CRCSize {
		return 0, nil, ErrRequestMalformed
	}

	length := int(frame[1])
	if length > l1.MaxPayload || len(frame) != 2+length+l1.CRCSize {
		return 0, nil, ErrRequestMalformed
	}

	covered := frame[:2+length]
	want := binary.LittleEndian.Uint16(frame[2+length:])
	if l1.CRC16(covered) != want {
		return 0, nil, ErrRequestMalformed
	}

	return frame[0], frame[2 : 2+length], nil
}

// ParseResponse decodes the body of a response chunk, i.e. everything
// after the chip status byte:
//
//	rsp_status (1) | rsp_len (1) | rsp_data | crc16 (2, LE)
//
// It verifies the length field and the CRC over rsp_status..rsp_data.
// The returned data aliases body.
func ParseResponse(body []byte) (Status, []byte, error) {
	if len(body) < 2+l1.CRCSize {
		return 0, nil, ErrResponseMalformed
	}

	length := int(body[1])
	if length > l1.MaxPayload || len(body) != 2+length+l1.CRCSize {
		return 0, nil, ErrResponseMalformed
	}

	covered := body[:2+length]
	want := binary.LittleEndian.Uint16(body[2+length:])
	if l1.CRC16(covered) != want {
		return 0, nil, ErrResponseMalformed
	}

	return Status(body[0]), body[2 : 2+length], nil
}

// BuildResponse encodes a full response chunk including the leading
// chip status byte. Used by the chip model and by transport tests.
func BuildResponse(chipStatus byte, status Status, data []byte) ([]byte, error) {
	if len(data) > l1.MaxPayload {
		return nil, ErrPayloadTooLarge
	}

	body := make([]byte, 0, 2+len(data)+l1.CRCSize)
	body = append(body, byte(status), byte(len(data)))
	body = append(body, data...)
	crc := l1.CRC16(body)

	out := make([]byte, 0, 1+len(body)+l1.CRCSize)
	out = append(out, chipStatus)
	out = append(out, body...)
	return binary.LittleEndian.AppendUint16(out, crc), nil
}
