package l3

import (
	"bytes"
	"crypto/rand"
	"errors"
	"testing"

	"github.com/avp-protocol/avp-tropic/pkg/crypto"
)

func testRandom(buf []byte) error {
	_, err := rand.Read(buf)
	return err
}

// handshakePair derives the same key schedule from both peers'
// viewpoints and fails the test if they disagree.
func handshakePair(t *testing.T) (host, chip HandshakeKeys) {
	t.Helper()

	chipStaticPriv, chipStaticPub, err := crypto.GenerateX25519(testRandom)
	if err != nil {
		t.Fatal(err)
	}
	pairingPriv, pairingPub, err := crypto.GenerateX25519(testRandom)
	if err != nil {
		t.Fatal(err)
	}
	hostEphPriv, hostEphPub, err := crypto.GenerateX25519(testRandom)
	if err != nil {
		t.Fatal(err)
	}
	chipEphPriv, chipEphPub, err := crypto.GenerateX25519(testRandom)
	if err != nil {
		t.Fatal(err)
	}

	// Host view.
	dh1, err := crypto.X25519(hostEphPriv, chipStaticPub)
	if err != nil {
		t.Fatal(err)
	}
	dh2, err := crypto.X25519(pairingPriv, chipEphPub)
	if err != nil {
		t.Fatal(err)
	}
	dh3, err := crypto.X25519(hostEphPriv, chipEphPub)
	if err != nil {
		t.Fatal(err)
	}
	host, err = DeriveHandshakeKeys(chipStaticPub, hostEphPub, pairingPub, chipEphPub, dh1, dh2, dh3)
	if err != nil {
		t.Fatal(err)
	}

	// Chip view.
	cdh1, err := crypto.X25519(chipStaticPriv, hostEphPub)
	if err != nil {
		t.Fatal(err)
	}
	cdh2, err := crypto.X25519(chipEphPriv, pairingPub)
	if err != nil {
		t.Fatal(err)
	}
	cdh3, err := crypto.X25519(chipEphPriv, hostEphPub)
	if err != nil {
		t.Fatal(err)
	}
	chip, err = DeriveHandshakeKeys(chipStaticPub, hostEphPub, pairingPub, chipEphPub, cdh1, cdh2, cdh3)
	if err != nil {
		t.Fatal(err)
	}

	if host.CmdKey != chip.CmdKey || host.ResKey != chip.ResKey || host.AuthKey != chip.AuthKey {
		t.Fatal("peers derived different session keys")
	}
	if host.Transcript != chip.Transcript {
		t.Fatal("peers derived different transcripts")
	}
	return host, chip
}

func TestHandshakeKeyAgreement(t *testing.T) {
	host, _ := handshakePair(t)

	if host.CmdKey == host.ResKey {
		t.Error("command and result keys must differ")
	}
	var zero [KeySize]byte
	if host.CmdKey == zero || host.ResKey == zero || host.AuthKey == zero {
		t.Error("derived key is all-zero")
	}
}

func TestAuthTagRoundTrip(t *testing.T) {
	host, chip := handshakePair(t)

	tag, err := ComputeAuthTag(&chip)
	if err != nil {
		t.Fatalf("ComputeAuthTag: %v", err)
	}
	if err := VerifyAuthTag(&host, tag); err != nil {
		t.Errorf("VerifyAuthTag: %v", err)
	}

	tag[0] ^= 0x01
	if err := VerifyAuthTag(&host, tag); !errors.Is(err, ErrHandshakeFailed) {
		t.Errorf("flipped tag: %v, want ErrHandshakeFailed", err)
	}
}

// chipSeal seals a result frame the way the chip does, using the
// chip-side keys and the given result counter value.
func chipSeal(t *testing.T, keys *HandshakeKeys, counter uint64, plaintext []byte) []byte {
	t.Helper()

	sealed, err := crypto.AESGCMSeal(keys.ResKey[:], crypto.CounterNonce(counter), plaintext, nil)
	if err != nil {
		t.Fatal(err)
	}
	frame := []byte{byte(len(plaintext)), byte(len(plaintext) >> 8)}
	return append(frame, sealed...)
}

func TestSessionCommandExchange(t *testing.T) {
	host, chip := handshakePair(t)

	s := NewSession()
	s.BeginHandshake()
	s.Establish(&host)

	for i := uint64(0); i < 3; i++ {
		plaintext := []byte{0x01, 0xAA, byte(i)}
		frame, err := s.SealCommand(plaintext)
		if err != nil {
			t.Fatalf("SealCommand: %v", err)
		}

		// The chip decrypts with the command key and counter.
		opened, err := crypto.AESGCMOpen(chip.CmdKey[:], crypto.CounterNonce(i), frame[SizeFieldLen:], nil)
		if err != nil {
			t.Fatalf("chip-side open: %v", err)
		}
		if !bytes.Equal(opened, plaintext) {
			t.Fatalf("chip saw % x, want % x", opened, plaintext)
		}

		result := chipSeal(t, &chip, i, []byte{0xC3, 0x99})
		got, err := s.OpenResult(result)
		if err != nil {
			t.Fatalf("OpenResult: %v", err)
		}
		if !bytes.Equal(got, []byte{0xC3, 0x99}) {
			t.Fatalf("result = % x", got)
		}

		cmd, res := s.Counters()
		if cmd != i+1 || res != i+1 {
			t.Fatalf("counters = (%d, %d), want (%d, %d)", cmd, res, i+1, i+1)
		}
	}
}

func TestSessionTagMismatchTerminates(t *testing.T) {
	host, chip := handshakePair(t)

	s := NewSession()
	s.BeginHandshake()
	s.Establish(&host)

	result := chipSeal(t, &chip, 0, []byte{0xC3})
	result[len(result)-1] ^= 0x01

	if _, err := s.OpenResult(result); !errors.Is(err, ErrTagMismatch) {
		t.Fatalf("OpenResult = %v, want ErrTagMismatch", err)
	}
	if s.State() != StateIdle {
		t.Errorf("state = %v, want idle", s.State())
	}

	var zero [KeySize]byte
	if s.cmdKey != zero || s.resKey != zero {
		t.Error("session keys not zeroized after tag mismatch")
	}

	if _, err := s.SealCommand([]byte{0x01}); !errors.Is(err, ErrNoSession) {
		t.Errorf("SealCommand after termination = %v, want ErrNoSession", err)
	}
}

func TestSessionMalformedFrameTerminates(t *testing.T) {
	host, _ := handshakePair(t)

	s := NewSession()
	s.BeginHandshake()
	s.Establish(&host)

	if _, err := s.OpenResult([]byte{0x01, 0x00}); !errors.Is(err, ErrDecryptFailed) {
		t.Errorf("short frame: %v, want ErrDecryptFailed", err)
	}
	if s.State() != StateIdle {
		t.Errorf("state = %v, want idle", s.State())
	}
}

func TestSessionSealRequiresEstablished(t *testing.T) {
	s := NewSession()
	if _, err := s.SealCommand([]byte{0x01}); !errors.Is(err, ErrNoSession) {
		t.Errorf("SealCommand = %v, want ErrNoSession", err)
	}
	if _, err := s.OpenResult(make([]byte, 32)); !errors.Is(err, ErrNoSession) {
		t.Errorf("OpenResult = %v, want ErrNoSession", err)
	}
}

func TestSessionSealBounds(t *testing.T) {
	host, _ := handshakePair(t)

	s := NewSession()
	s.BeginHandshake()
	s.Establish(&host)

	if _, err := s.SealCommand(make([]byte, CmdMaxSize+1)); !errors.Is(err, ErrFrameTooLarge) {
		t.Errorf("oversize command = %v, want ErrFrameTooLarge", err)
	}
	if _, err := s.SealCommand(make([]byte, CmdMaxSize)); err != nil {
		t.Errorf("max-size command = %v", err)
	}
}

func TestSessionCounterExhaustion(t *testing.T) {
	host, chip := handshakePair(t)

	s := NewSession()
	s.BeginHandshake()
	s.Establish(&host)

	// Force the counters to the wrap point.
	s.cmdCounter.value = ^uint64(0)
	s.resCounter.value = ^uint64(0)

	frame, err := s.SealCommand([]byte{0x01})
	if err != nil {
		t.Fatalf("SealCommand at wrap point: %v", err)
	}
	_ = frame

	result := chipSeal(t, &chip, ^uint64(0), []byte{0xC3})
	if _, err := s.OpenResult(result); err != nil {
		t.Fatalf("OpenResult at wrap point: %v", err)
	}

	// Both counters wrapped; the next command must be refused and the
	// session terminated.
	if _, err := s.SealCommand([]byte{0x01}); !errors.Is(err, ErrCounterExhausted) {
		t.Fatalf("SealCommand after wrap = %v, want ErrCounterExhausted", err)
	}
	if s.State() != StateIdle {
		t.Errorf("state = %v, want idle", s.State())
	}
}

func TestInvalidateIdempotent(t *testing.T) {
	s := NewSession()
	s.Invalidate()
	s.Invalidate()
	if s.State() != StateIdle {
		t.Errorf("state = %v", s.State())
	}
}

func TestCounter(t *testing.T) {
	var c Counter
	if c.Value() != 0 {
		t.Errorf("initial value = %d", c.Value())
	}
	for i := 0; i < 5; i++ {
		if err := c.Increment(); err != nil {
			t.Fatalf("Increment: %v", err)
		}
	}
	if c.Value() != 5 {
		t.Errorf("value = %d, want 5", c.Value())
	}

	c.value = ^uint64(0)
	if err := c.Increment(); err != nil {
		t.Fatalf("Increment at wrap: %v", err)
	}
	if !c.Exhausted() {
		t.Error("counter not exhausted after wrap")
	}
	if err := c.Increment(); !errors.Is(err, ErrCounterExhausted) {
		t.Errorf("Increment after wrap = %v, want ErrCounterExhausted", err)
	}

	c.Reset()
	if c.Value() != 0 || c.Exhausted() {
		t.Error("Reset did not clear state")
	}
}
