package tropic

import (
	"encoding/binary"
	"fmt"

	"github.com/avp-protocol/avp-tropic/pkg/l3"
)

// RMemWrite writes a record into an R-memory data slot. The slot must
// be empty; ErrSlotWriteFailed is returned otherwise.
func (d *Device) RMemWrite(slot uint16, data []byte) error {
	if int(slot) >= l3.RMemSlotCount {
		return fmt.Errorf("%w: r-mem slot %d", ErrSlotOutOfRange, slot)
	}
	if len(data) == 0 || len(data) > l3.RMemDataMax {
		return fmt.Errorf("%w: r-mem record length %d", ErrLengthOutOfRange, len(data))
	}

	req := make([]byte, 2+len(data))
	binary.LittleEndian.PutUint16(req[0:2], slot)
	copy(req[2:], data)

	_, err := d.commandOK(l3.CmdRMemDataWrite, req)
	return err
}

// RMemRead reads a record from an R-memory data slot. Returns
// ErrSlotEmpty for an empty slot.
func (d *Device) RMemRead(slot uint16) ([]byte, error) {
	if int(slot) >= l3.RMemSlotCount {
		return nil, fmt.Errorf("%w: r-mem slot %d", ErrSlotOutOfRange, slot)
	}

	req := binary.LittleEndian.AppendUint16(nil, slot)
	return d.commandOK(l3.CmdRMemDataRead, req)
}

// RMemErase erases an R-memory data slot. Erasing an empty slot is
// not an error.
func (d *Device) RMemErase(slot uint16) error {
	if int(slot) >= l3.RMemSlotCount {
		return fmt.Errorf("%w: r-mem slot %d", ErrSlotOutOfRange, slot)
	}

	req := binary.LittleEndian.AppendUint16(nil, slot)
	_, err := d.commandOK(l3.CmdRMemDataErase, req)
	return err
}

// RConfigWrite writes one reprogrammable configuration word.
func (d *Device) RConfigWrite(addr uint16, value uint32) error {
	req := binary.LittleEndian.AppendUint16(nil, addr)
	req = binary.LittleEndian.AppendUint32(req, value)
	_, err := d.commandOK(l3.CmdRConfigWrite, req)
	return err
}

// RConfigRead reads one reprogrammable configuration word.
func (d *Device) RConfigRead(addr uint16) (uint32, error) {
	req := binary.LittleEndian.AppendUint16(nil, addr)
	data, err := d.commandFixed(l3.CmdRConfigRead, req, 4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(data), nil
}

// RConfigErase erases the whole reprogrammable configuration.
func (d *Device) RConfigErase() error {
	_, err := d.commandOK(l3.CmdRConfigErase, nil)
	return err
}

// IConfigWrite clears one bit of an irreversible configuration word.
// Set bits can never be restored.
func (d *Device) IConfigWrite(addr uint16, bit uint8) error {
	if bit > 31 {
		return fmt.Errorf("%w: i-config bit %d", ErrLengthOutOfRange, bit)
	}

	req := binary.LittleEndian.AppendUint16(nil, addr)
	req = append(req, bit)
	_, err := d.commandOK(l3.CmdIConfigWrite, req)
	return err
}

// IConfigRead reads one irreversible configuration word.
func (d *Device) IConfigRead(addr uint16) (uint32, error) {
	req := binary.LittleEndian.AppendUint16(nil, addr)
	data, err := d.commandFixed(l3.CmdIConfigRead, req, 4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(data), nil
}
