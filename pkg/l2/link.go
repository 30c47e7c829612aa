// Package l2 implements the unencrypted request/response protocol:
// the request catalogue, response status handling, chip-mode tracking
// and multi-chunk response assembly.
package l2

import (
	"encoding/binary"
	"fmt"
	"time"

	"github.com/pion/logging"

	"github.com/avp-protocol/avp-tropic/pkg/l1"
)

// Default protocol timing.
const (
	// DefaultHandshakeTimeout bounds the handshake roundtrip.
	DefaultHandshakeTimeout = 150 * time.Millisecond

	// DefaultEraseTimeout bounds a firmware bank erase.
	DefaultEraseTimeout = 30 * time.Second
)

// Config configures a Link.
type Config struct {
	// ReadTimeout is the response poll deadline for ordinary requests.
	// Zero selects the transport default.
	ReadTimeout time.Duration

	// HandshakeTimeout is the response poll deadline for
	// Handshake_Req. Zero selects DefaultHandshakeTimeout.
	HandshakeTimeout time.Duration

	// EraseTimeout is the response poll deadline for
	// Mutable_Fw_Erase_Req. Zero selects DefaultEraseTimeout.
	EraseTimeout time.Duration

	// LoggerFactory is the factory for creating loggers.
	// If nil, logging is disabled.
	LoggerFactory logging.LoggerFactory
}

// Link provides the typed unencrypted RPC over an L1 bus. It tracks
// the chip mode and the last observed status.
type Link struct {
	bus *l1.Bus
	log logging.LeveledLogger

	readTimeout      time.Duration
	handshakeTimeout time.Duration
	eraseTimeout     time.Duration

	mode       Mode
	lastStatus Status
}

// NewLink creates a protocol link over bus.
func NewLink(bus *l1.Bus, config Config) *Link {
	l := &Link{
		bus:              bus,
		readTimeout:      config.ReadTimeout,
		handshakeTimeout: config.HandshakeTimeout,
		eraseTimeout:     config.EraseTimeout,
		mode:             ModeUnknown,
	}
	if l.readTimeout == 0 {
		l.readTimeout = l1.DefaultReadTimeout
	}
	if l.handshakeTimeout == 0 {
		l.handshakeTimeout = DefaultHandshakeTimeout
	}
	if l.eraseTimeout == 0 {
		l.eraseTimeout = DefaultEraseTimeout
	}
	if config.LoggerFactory != nil {
		l.log = config.LoggerFactory.NewLogger("l2")
	}
	return l
}

// Bus returns the underlying transport.
func (l *Link) Bus() *l1.Bus { return l.bus }

// Mode returns the chip mode snapshot from the most recent response.
func (l *Link) Mode() Mode { return l.mode }

// LastStatus returns the protocol status of the most recent response.
func (l *Link) LastStatus() Status { return l.lastStatus }

// Reset clears the mode and status snapshots, e.g. after a chip
// reboot or hardware reset.
func (l *Link) Reset() {
	l.mode = ModeUnknown
	l.lastStatus = 0
}

// observe folds a response chunk into the mode and status snapshots.
func (l *Link) observe(chunk l1.Chunk) {
	l.mode = modeFromChipStatus(chunk.ChipStatus)
	l.lastStatus = Status(chunk.Status)
}

// roundTrip sends one request frame and reads one response chunk.
// It gates requests on the current chip mode before any bus traffic.
func (l *Link) roundTrip(reqID byte, data []byte, timeout time.Duration) (l1.Chunk, error) {
	switch {
	case l.mode.Alarm():
		return l1.Chunk{}, ErrAlarmMode
	case l.mode.Maintenance() && !maintenanceAllowed(reqID):
		return l1.Chunk{}, ErrBadChipMode
	}

	if err := l.bus.SendRequest(reqID, data); err != nil {
		return l1.Chunk{}, err
	}

	chunk, err := l.bus.ReadChunk(timeout)
	if err != nil {
		return l1.Chunk{}, err
	}
	l.observe(chunk)

	if l.mode.Alarm() {
		return l1.Chunk{}, ErrAlarmMode
	}
	if l.log != nil {
		l.log.Tracef("req 0x%02x -> %v", reqID, Status(chunk.Status))
	}
	return chunk, nil
}

// readResult assembles a possibly chunked result into a. The first
// chunk has already been read; continuation chunks are read off the
// bus until RESULT_OK.
func (l *Link) readResult(first l1.Chunk, a *ChunkAssembler, timeout time.Duration) error {
	chunk := first
	for {
		switch Status(chunk.Status) {
		case StatusResultOK:
			return a.Append(chunk.Data)

		case StatusResultCont:
			if err := a.Append(chunk.Data); err != nil {
				return err
			}
			next, err := l.bus.ReadChunk(timeout)
			if err != nil {
				return err
			}
			l.observe(next)
			chunk = next

		default:
			return Status(chunk.Status).Err()
		}
	}
}

// expect requires a specific status on an ack-only response.
func expect(chunk l1.Chunk, want Status) error {
	got := Status(chunk.Status)
	if got == want {
		return nil
	}
	if err := got.Err(); err != nil {
		return err
	}
	return fmt.Errorf("%w: got %v, want %v", ErrUnexpectedStatus, got, want)
}

// GetInfo reads one information object block.
func (l *Link) GetInfo(obj InfoObject, blockIndex byte) ([]byte, error) {
	chunk, err := l.roundTrip(GetInfoReqID, []byte{byte(obj), blockIndex}, l.readTimeout)
	if err != nil {
		return nil, err
	}

	out := make([]byte, l1.MaxPayload)
	a := NewChunkAssembler(out)
	if err := l.readResult(chunk, a, l.readTimeout); err != nil {
		return nil, err
	}
	return a.Bytes(), nil
}

// ProbeMode issues a cheap get-info request to refresh the chip mode
// snapshot. Get-info is honored in application and maintenance mode;
// in alarm mode it fails with ErrAlarmMode.
func (l *Link) ProbeMode() (Mode, error) {
	if _, err := l.GetInfo(InfoRiscvFwVersion, 0); err != nil {
		return l.mode, err
	}
	return l.mode, nil
}

// Handshake sends the host ephemeral public key and pairing slot and
// returns the chip ephemeral public key and authentication tag.
func (l *Link) Handshake(hostEphPub [32]byte, slot uint8) (chipEphPub [32]byte, tag [16]byte, err error) {
	req := make([]byte, 0, HandshakeReqSize)
	req = append(req, hostEphPub[:]...)
	req = append(req, slot)

	chunk, err := l.roundTrip(HandshakeReqID, req, l.handshakeTimeout)
	if err != nil {
		return chipEphPub, tag, err
	}
	if err := expect(chunk, StatusRequestOK); err != nil {
		return chipEphPub, tag, err
	}
	if len(chunk.Data) != HandshakeRspSize {
		return chipEphPub, tag, fmt.Errorf("%w: handshake response length %d", ErrResponseMalformed, len(chunk.Data))
	}

	copy(chipEphPub[:], chunk.Data[:32])
	copy(tag[:], chunk.Data[32:])
	return chipEphPub, tag, nil
}

// EncryptedCmd carries one encrypted command frame to the chip,
// chunking it across Encrypted_Cmd_Req frames, and assembles the
// encrypted result frame into dst. Returns a view of dst holding the
// result frame.
func (l *Link) EncryptedCmd(frame []byte, dst []byte) ([]byte, error) {
	// Clock out the request chunks. Every chunk except the last is
	// acknowledged with REQUEST_CONT.
	for off := 0; off < len(frame) || off == 0; {
		end := off + l1.MaxPayload
		if end > len(frame) {
			end = len(frame)
		}
		last := end == len(frame)

		chunk, err := l.roundTrip(EncryptedCmdReqID, frame[off:end], l.readTimeout)
		if err != nil {
			return nil, err
		}

		if !last {
			if err := expect(chunk, StatusRequestCont); err != nil {
				return nil, err
			}
			off = end
			continue
		}

		// Final chunk: the response already carries the first result
		// chunk.
		a := NewChunkAssembler(dst)
		if err := l.readResult(chunk, a, l.readTimeout); err != nil {
			return nil, err
		}
		return a.Bytes(), nil
	}
	return nil, ErrRequestMalformed
}

// AbortSession invalidates the chip-side secure session.
func (l *Link) AbortSession() error {
	chunk, err := l.roundTrip(EncryptedSessionAbtID, nil, l.readTimeout)
	if err != nil {
		return err
	}
	return expect(chunk, StatusRequestOK)
}

// Resend asks the chip to repeat the most recent response chunk.
func (l *Link) Resend() (l1.Chunk, error) {
	return l.roundTrip(ResendReqID, nil, l.readTimeout)
}

// Startup reboots the chip with the given startup kind. The mode
// snapshot is cleared; callers should probe the mode once the chip is
// back up.
func (l *Link) Startup(kind byte) error {
	chunk, err := l.roundTrip(StartupReqID, []byte{kind}, l.readTimeout)
	if err != nil {
		return err
	}
	if err := expect(chunk, StatusRequestOK); err != nil {
		return err
	}
	l.Reset()
	return nil
}

// Sleep puts the chip to sleep.
func (l *Link) Sleep(kind byte) error {
	chunk, err := l.roundTrip(SleepReqID, []byte{kind}, l.readTimeout)
	if err != nil {
		return err
	}
	return expect(chunk, StatusRequestOK)
}

// GetLog reads the RISC-V firmware log.
func (l *Link) GetLog() (string, error) {
	chunk, err := l.roundTrip(GetLogReqID, nil, l.readTimeout)
	if err != nil {
		return "", err
	}

	buf := make([]byte, CertStoreMaxSize)
	a := NewChunkAssembler(buf)
	if err := l.readResult(chunk, a, l.readTimeout); err != nil {
		return "", err
	}
	return string(a.Bytes()), nil
}

// FwErase erases a mutable firmware bank. Only valid in maintenance
// mode.
func (l *Link) FwErase(bank uint16) error {
	if err := l.requireMaintenance(); err != nil {
		return err
	}

	req := binary.LittleEndian.AppendUint16(nil, bank)
	chunk, err := l.roundTrip(MutableFwEraseReqID, req, l.eraseTimeout)
	if err != nil {
		return err
	}
	return expect(chunk, StatusRequestOK)
}

// FwUpdate writes one firmware image chunk at the given offset. Only
// valid in maintenance mode.
func (l *Link) FwUpdate(bank uint16, offset uint16, data []byte) error {
	if err := l.requireMaintenance(); err != nil {
		return err
	}
	if len(data) == 0 || len(data) > FwChunkMaxSize {
		return ErrPayloadTooLarge
	}

	req := make([]byte, 0, FwUpdateReqHeaderSize+len(data))
	req = binary.LittleEndian.AppendUint16(req, bank)
	req = binary.LittleEndian.AppendUint16(req, offset)
	req = append(req, data...)

	chunk, err := l.roundTrip(MutableFwUpdateReqID, req, l.readTimeout)
	if err != nil {
		return err
	}
	return expect(chunk, StatusRequestOK)
}

func (l *Link) requireMaintenance() error {
	if !l.mode.Maintenance() {
		return ErrBadChipMode
	}
	return nil
}
