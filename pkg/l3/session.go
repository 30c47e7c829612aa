// Package l3 implements the encrypted session layer: the handshake
// key schedule, the session state machine with its directional keys
// and counters, and the sealing/opening of encrypted command frames.
package l3

import (
	"encoding/binary"

	"github.com/avp-protocol/avp-tropic/pkg/crypto"
)

// State is the session lifecycle state.
type State int

// Session states.
const (
	// StateIdle means no session exists.
	StateIdle State = iota

	// StateHandshaking means a handshake is in flight.
	StateHandshaking

	// StateEstablished means commands can be exchanged.
	StateEstablished
)

// String implements fmt.Stringer.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateHandshaking:
		return "handshaking"
	case StateEstablished:
		return "established"
	default:
		return "invalid"
	}
}

// Session holds the secure channel state: directional AES-256 keys
// and strictly monotonic frame counters. Key material never leaves
// the session; any authentication or counter failure zeroizes it and
// forces the state back to Idle.
type Session struct {
	state State

	cmdKey [KeySize]byte
	resKey [KeySize]byte

	cmdCounter Counter
	resCounter Counter
}

// NewSession creates an idle session.
func NewSession() *Session {
	return &Session{state: StateIdle}
}

// State returns the current lifecycle state.
func (s *Session) State() State { return s.state }

// Established reports whether commands can be exchanged.
func (s *Session) Established() bool { return s.state == StateEstablished }

// Counters returns the current command and result counter values.
func (s *Session) Counters() (cmd, res uint64) {
	return s.cmdCounter.Value(), s.resCounter.Value()
}

// BeginHandshake moves the session into the handshaking state,
// discarding any previous key material.
func (s *Session) BeginHandshake() {
	s.Invalidate()
	s.state = StateHandshaking
}

// Establish installs the derived session keys and zeroes both
// counters. The session takes its own copy; the caller zeroizes keys.
func (s *Session) Establish(keys *HandshakeKeys) {
	copy(s.cmdKey[:], keys.CmdKey[:])
	copy(s.resKey[:], keys.ResKey[:])
	s.cmdCounter.Reset()
	s.resCounter.Reset()
	s.state = StateEstablished
}

// Invalidate zeroizes the key material, resets the counters and
// forces the state to Idle. Safe to call in any state.
func (s *Session) Invalidate() {
	crypto.Memzero(s.cmdKey[:], s.resKey[:])
	s.cmdCounter.Reset()
	s.resCounter.Reset()
	s.state = StateIdle
}

// SealCommand encrypts one command plaintext (cmd_id || payload) into
// an encrypted frame:
//
//	len (2, LE) | ciphertext | tag (16)
//
// where len is the plaintext length and the nonce is the 96-bit LE
// encoding of the command counter. The counter is not advanced here;
// both counters advance together in OpenResult once the exchange
// completed.
func (s *Session) SealCommand(plaintext []byte) ([]byte, error) {
	if s.state != StateEstablished {
		return nil, ErrNoSession
	}
	if len(plaintext) > CmdMaxSize {
		return nil, ErrFrameTooLarge
	}
	if s.cmdCounter.Exhausted() || s.resCounter.Exhausted() {
		s.Invalidate()
		return nil, ErrCounterExhausted
	}

	sealed, err := crypto.AESGCMSeal(s.cmdKey[:], crypto.CounterNonce(s.cmdCounter.Value()), plaintext, nil)
	if err != nil {
		return nil, err
	}

	frame := make([]byte, 0, SizeFieldLen+len(sealed))
	frame = binary.LittleEndian.AppendUint16(frame, uint16(len(plaintext)))
	frame = append(frame, sealed...)
	return frame, nil
}

// OpenResult decrypts one result frame and, on success, advances both
// counters. A malformed frame or a failed tag terminates the session.
func (s *Session) OpenResult(frame []byte) ([]byte, error) {
	if s.state != StateEstablished {
		return nil, ErrNoSession
	}

	if len(frame) < SizeFieldLen+TagSize {
		s.Invalidate()
		return nil, ErrDecryptFailed
	}
	length := int(binary.LittleEndian.Uint16(frame[:SizeFieldLen]))
	if len(frame) != SizeFieldLen+length+TagSize {
		s.Invalidate()
		return nil, ErrDecryptFailed
	}

	plaintext, err := crypto.AESGCMOpen(s.resKey[:], crypto.CounterNonce(s.resCounter.Value()), frame[SizeFieldLen:], nil)
	if err != nil {
		s.Invalidate()
		return nil, ErrTagMismatch
	}

	// The exchange is complete; advance both directions together.
	if err := s.cmdCounter.Increment(); err != nil {
		s.Invalidate()
		return nil, err
	}
	if err := s.resCounter.Increment(); err != nil {
		s.Invalidate()
		return nil, err
	}

	return plaintext, nil
}
