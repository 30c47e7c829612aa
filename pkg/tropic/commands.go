package tropic

import (
	"encoding/binary"
	"fmt"

	"github.com/avp-protocol/avp-tropic/pkg/l3"
)

// Ping echoes up to 4096 bytes through the secure channel.
func (d *Device) Ping(data []byte) ([]byte, error) {
	if len(data) > l3.PingLenMax {
		return nil, fmt.Errorf("%w: ping length %d", ErrLengthOutOfRange, len(data))
	}
	return d.commandFixed(l3.CmdPing, data, len(data))
}

// RandomBytes reads n bytes (at most 255) from the chip TRNG.
func (d *Device) RandomBytes(n int) ([]byte, error) {
	if n < 0 || n > l3.RandomLenMax {
		return nil, fmt.Errorf("%w: random length %d", ErrLengthOutOfRange, n)
	}
	return d.commandFixed(l3.CmdRandomValueGet, []byte{byte(n)}, n)
}

// SerialCode reads the chip serial code.
func (d *Device) SerialCode() ([l3.SerialCodeSize]byte, error) {
	var code [l3.SerialCodeSize]byte

	data, err := d.commandFixed(l3.CmdSerialCodeGet, nil, l3.SerialCodeSize)
	if err != nil {
		return code, err
	}
	copy(code[:], data)
	return code, nil
}

// MacAndDestroy runs one MAC-and-Destroy step on a slot: it returns
// the MAC over data under the slot secret and irreversibly rolls the
// secret forward.
func (d *Device) MacAndDestroy(slot uint8, data [32]byte) ([32]byte, error) {
	var mac [32]byte

	if int(slot) >= l3.MacAndDestroySlotCount {
		return mac, fmt.Errorf("%w: mac-and-destroy slot %d", ErrSlotOutOfRange, slot)
	}

	req := append([]byte{slot}, data[:]...)
	resp, err := d.commandFixed(l3.CmdMacAndDestroy, req, 32)
	if err != nil {
		return mac, err
	}
	copy(mac[:], resp)
	return mac, nil
}

// MCounterInit initializes a monotonic counter to value.
func (d *Device) MCounterInit(index uint8, value uint32) error {
	if int(index) >= l3.MCounterCount {
		return fmt.Errorf("%w: mcounter %d", ErrSlotOutOfRange, index)
	}

	req := binary.LittleEndian.AppendUint32([]byte{index}, value)
	_, err := d.commandOK(l3.CmdMCounterInit, req)
	return err
}

// MCounterUpdate decrements a monotonic counter. Returns
// ErrMCounterExhausted once the counter reaches zero.
func (d *Device) MCounterUpdate(index uint8) error {
	if int(index) >= l3.MCounterCount {
		return fmt.Errorf("%w: mcounter %d", ErrSlotOutOfRange, index)
	}
	_, err := d.commandOK(l3.CmdMCounterUpdate, []byte{index})
	return err
}

// MCounterGet reads a monotonic counter.
func (d *Device) MCounterGet(index uint8) (uint32, error) {
	if int(index) >= l3.MCounterCount {
		return 0, fmt.Errorf("%w: mcounter %d", ErrSlotOutOfRange, index)
	}

	data, err := d.commandFixed(l3.CmdMCounterGet, []byte{index}, 4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(data), nil
}
