// Package l1 implements the transport layer: request frame encoding
// with CRC16, the chip-select/transfer cycle and the response polling
// loop driven by the chip status byte.
package l1

import (
	"encoding/binary"
	"fmt"
	"time"

	"github.com/pion/logging"

	"github.com/avp-protocol/avp-tropic/pkg/port"
)

// Default transport timing.
const (
	// DefaultPollInterval is the delay between response polls.
	DefaultPollInterval = time.Millisecond

	// DefaultReadTimeout is the default response poll deadline.
	DefaultReadTimeout = 70 * time.Millisecond

	// DefaultTransferTimeout bounds a single bus transfer.
	DefaultTransferTimeout = time.Second
)

// Config configures a Bus.
type Config struct {
	// PollInterval is the delay between response polls. Zero selects
	// DefaultPollInterval.
	PollInterval time.Duration

	// TransferTimeout bounds a single bus transfer. Zero selects
	// DefaultTransferTimeout.
	TransferTimeout time.Duration

	// LoggerFactory is the factory for creating loggers.
	// If nil, logging is disabled.
	LoggerFactory logging.LoggerFactory
}

// Bus clocks frames across one chip-select cycle at a time and polls
// for responses. At most one transfer is in flight per Bus.
type Bus struct {
	port            port.Port
	pollInterval    time.Duration
	transferTimeout time.Duration
	log             logging.LeveledLogger
}

// NewBus creates a transport over p.
func NewBus(p port.Port, config Config) *Bus {
	b := &Bus{
		port:            p,
		pollInterval:    config.PollInterval,
		transferTimeout: config.TransferTimeout,
	}
	if b.pollInterval == 0 {
		b.pollInterval = DefaultPollInterval
	}
	if b.transferTimeout == 0 {
		b.transferTimeout = DefaultTransferTimeout
	}
	if config.LoggerFactory != nil {
		b.log = config.LoggerFactory.NewLogger("l1")
	}
	return b
}

// Random fills buf from the port's entropy source.
func (b *Bus) Random(buf []byte) error {
	return b.port.Random(buf)
}

// SendRequest encodes and clocks out one request frame in a single
// chip-select cycle. Bytes received during the transfer are discarded.
func (b *Bus) SendRequest(reqID byte, data []byte) error {
	frame, err := BuildRequest(reqID, data)
	if err != nil {
		return err
	}

	if b.log != nil {
		b.log.Tracef("tx req 0x%02x len %d", reqID, len(data))
	}

	if err := b.port.ChipSelect(true); err != nil {
		return fmt.Errorf("%w: %v", ErrSPIBus, err)
	}
	err = b.port.Transfer(frame, b.transferTimeout)
	csErr := b.port.ChipSelect(false)

	if err != nil {
		return fmt.Errorf("%w: %v", ErrSPIBus, err)
	}
	if csErr != nil {
		return fmt.Errorf("%w: %v", ErrSPIBus, csErr)
	}
	return nil
}

// ReadChunk polls the chip until a response chunk arrives or the
// deadline elapses, then reads and CRC-checks the whole chunk:
//
//	chip_status (1) | rsp_status (1) | rsp_len (1) | rsp_data | crc16 (2, LE)
//
// The CRC covers rsp_status through rsp_data. The returned data slice
// is owned by the caller. Chunk continuation is the caller's concern;
// ReadChunk returns exactly one chunk per call.
func (b *Bus) ReadChunk(deadline time.Duration) (Chunk, error) {
	if deadline <= 0 {
		deadline = DefaultReadTimeout
	}

	if w, ok := b.port.(port.ReadyWaiter); ok {
		if err := w.WaitReady(deadline); err != nil {
			return Chunk{}, fmt.Errorf("%w: %v", ErrReadyPinTimeout, err)
		}
	}

	start := time.Now()
	for attempt := 0; ; attempt++ {
		chunk, again, err := b.tryReadChunk()
		if err != nil {
			return Chunk{}, err
		}
		if !again {
			if b.log != nil {
				b.log.Tracef("rx status 0x%02x len %d after %d polls",
					chunk.Status, len(chunk.Data), attempt+1)
			}
			return chunk, nil
		}

		if time.Since(start) >= deadline {
			return Chunk{}, ErrNoResponse
		}
		b.port.Delay(b.pollInterval)
	}
}

// tryReadChunk performs one poll cycle. again reports that the chip
// had no response queued yet.
func (b *Bus) tryReadChunk() (chunk Chunk, again bool, err error) {
	if err := b.port.ChipSelect(true); err != nil {
		return Chunk{}, false, fmt.Errorf("%w: %v", ErrSPIBus, err)
	}
	defer func() {
		if csErr := b.port.ChipSelect(false); csErr != nil && err == nil {
			chunk, again = Chunk{}, false
			err = fmt.Errorf("%w: %v", ErrSPIBus, csErr)
		}
	}()

	var status [1]byte
	if err := b.port.Transfer(status[:], b.transferTimeout); err != nil {
		return Chunk{}, false, fmt.Errorf("%w: %v", ErrSPIBus, err)
	}
	chipStatus := status[0]

	if chipStatus&ChipStatusReady == 0 {
		return Chunk{}, true, nil
	}

	var hdr [responseHeaderSize]byte
	if err := b.port.Transfer(hdr[:], b.transferTimeout); err != nil {
		return Chunk{}, false, fmt.Errorf("%w: %v", ErrSPIBus, err)
	}

	if hdr[0] == StatusNoResponse {
		return Chunk{}, true, nil
	}

	length := int(hdr[1])
	if length > MaxPayload {
		return Chunk{}, false, ErrFrameOverlong
	}

	rest := make([]byte, length+CRCSize)
	if err := b.port.Transfer(rest, b.transferTimeout); err != nil {
		return Chunk{}, false, fmt.Errorf("%w: %v", ErrSPIBus, err)
	}

	covered := make([]byte, 0, responseHeaderSize+length)
	covered = append(covered, hdr[:]...)
	covered = append(covered, rest[:length]...)

	want := binary.LittleEndian.Uint16(rest[length:])
	if CRC16(covered) != want {
		return Chunk{}, false, ErrCRCMismatch
	}

	return Chunk{
		ChipStatus: chipStatus,
		Status:     hdr[0],
		Data:       rest[:length],
	}, false, nil
}
