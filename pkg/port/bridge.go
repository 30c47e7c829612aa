package port

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/pion/logging"
)

// Bridge wire protocol. Each message is tag (1 byte), payload length
// (2 bytes LE) and payload. The host sends a command, the remote bus
// endpoint answers with an ack or a data message.
const (
	// TagChipSelectLow asserts chip select on the remote bus.
	TagChipSelectLow byte = 0x01

	// TagChipSelectHigh releases chip select on the remote bus.
	TagChipSelectHigh byte = 0x02

	// TagTransfer carries TX bytes; the response carries the RX bytes
	// clocked in during the same transfer.
	TagTransfer byte = 0x03

	// TagReset pulses the chip reset line.
	TagReset byte = 0x04

	// TagAck acknowledges a command with no data.
	TagAck byte = 0x20

	// TagData carries response data for a transfer.
	TagData byte = 0x21

	// BridgeHeaderSize is the size of the tag + length header.
	BridgeHeaderSize = 3

	// BridgeMaxPayload bounds a single bridge message payload. One SPI
	// transfer never exceeds a single L1 frame.
	BridgeMaxPayload = 1024
)

// BridgePort adapts a byte stream speaking the bridge protocol into a
// Port. It backs both the TCP connection to a chip simulator and the
// serial connection to a bus adapter; entropy comes from the host CSPRNG.
type BridgePort struct {
	rw  io.ReadWriter
	log logging.LeveledLogger

	mu     sync.Mutex
	closed bool
}

// newBridgePort wraps rw. The logger may be nil.
func newBridgePort(rw io.ReadWriter, log logging.LeveledLogger) *BridgePort {
	return &BridgePort{rw: rw, log: log}
}

// Transfer implements Port.
func (p *BridgePort) Transfer(buf []byte, timeout time.Duration) error {
	resp, err := p.roundTrip(TagTransfer, buf, timeout)
	if err != nil {
		return err
	}
	if len(resp) != len(buf) {
		return fmt.Errorf("%w: %d RX bytes for %d TX bytes", ErrShortTransfer, len(resp), len(buf))
	}
	copy(buf, resp)
	return nil
}

// ChipSelect implements Port.
func (p *BridgePort) ChipSelect(assert bool) error {
	tag := TagChipSelectHigh
	if assert {
		tag = TagChipSelectLow
	}
	_, err := p.roundTrip(tag, nil, 0)
	return err
}

// Delay implements Port.
func (p *BridgePort) Delay(d time.Duration) {
	time.Sleep(d)
}

// Random implements Port.
func (p *BridgePort) Random(buf []byte) error {
	_, err := rand.Read(buf)
	return err
}

// Reset implements Resetter by pulsing the remote reset line.
func (p *BridgePort) Reset() error {
	_, err := p.roundTrip(TagReset, nil, 0)
	return err
}

// Close closes the underlying stream if it supports closing.
func (p *BridgePort) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil
	}
	p.closed = true

	if c, ok := p.rw.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

func (p *BridgePort) roundTrip(tag byte, payload []byte, timeout time.Duration) ([]byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil, ErrClosed
	}

	if conn, ok := p.rw.(net.Conn); ok {
		if timeout > 0 {
			_ = conn.SetDeadline(time.Now().Add(timeout))
		} else {
			_ = conn.SetDeadline(time.Time{})
		}
	}

	if err := WriteBridgeMessage(p.rw, tag, payload); err != nil {
		return nil, err
	}

	respTag, resp, err := ReadBridgeMessage(p.rw)
	if err != nil {
		return nil, err
	}

	switch respTag {
	case TagAck:
		return nil, nil
	case TagData:
		return resp, nil
	default:
		return nil, fmt.Errorf("%w: tag 0x%02x", ErrProtocol, respTag)
	}
}

// WriteBridgeMessage writes one tagged message as a single Write call
// so packet-oriented transports see exactly one datagram per message.
func WriteBridgeMessage(w io.Writer, tag byte, payload []byte) error {
	if len(payload) > BridgeMaxPayload {
		return ErrMessageTooLarge
	}

	msg := make([]byte, BridgeHeaderSize+len(payload))
	msg[0] = tag
	binary.LittleEndian.PutUint16(msg[1:3], uint16(len(payload)))
	copy(msg[BridgeHeaderSize:], payload)

	if _, err := w.Write(msg); err != nil {
		return fmt.Errorf("port: bridge write: %w", err)
	}
	return nil
}

// ReadBridgeMessage reads one tagged message from a byte stream.
func ReadBridgeMessage(r io.Reader) (byte, []byte, error) {
	var hdr [BridgeHeaderSize]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return 0, nil, fmt.Errorf("port: bridge read: %w", err)
	}

	length := binary.LittleEndian.Uint16(hdr[1:3])
	if length > BridgeMaxPayload {
		return 0, nil, ErrMessageTooLarge
	}

	payload := make([]byte, length)
	if _, err := io.ReadFull(r, payload); err != nil {
		return 0, nil, fmt.Errorf("port: bridge read: %w", err)
	}

	return hdr[0], payload, nil
}
