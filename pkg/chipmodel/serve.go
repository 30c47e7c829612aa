package chipmodel

import (
	"errors"
	"fmt"
	"io"

	"github.com/avp-protocol/avp-tropic/pkg/port"
)

// Serve answers bridge-protocol messages on rw until the stream ends.
// Use it behind a TCP listener for the chip simulator, or on a pipe
// endpoint for in-memory tests.
func (m *Model) Serve(rw io.ReadWriter) error {
	for {
		tag, payload, err := port.ReadBridgeMessage(rw)
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.ErrClosedPipe) {
				return nil
			}
			return err
		}

		switch tag {
		case port.TagChipSelectLow:
			if err := m.ChipSelect(true); err != nil {
				return err
			}
			err = port.WriteBridgeMessage(rw, port.TagAck, nil)

		case port.TagChipSelectHigh:
			if err := m.ChipSelect(false); err != nil {
				return err
			}
			err = port.WriteBridgeMessage(rw, port.TagAck, nil)

		case port.TagTransfer:
			if err := m.Transfer(payload, 0); err != nil {
				return err
			}
			err = port.WriteBridgeMessage(rw, port.TagData, payload)

		case port.TagReset:
			if err := m.Reset(); err != nil {
				return err
			}
			err = port.WriteBridgeMessage(rw, port.TagAck, nil)

		default:
			return fmt.Errorf("chipmodel: unknown bridge tag 0x%02x", tag)
		}
		if err != nil {
			return err
		}
	}
}
