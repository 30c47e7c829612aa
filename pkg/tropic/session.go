package tropic

import (
	"errors"
	"fmt"

	"github.com/avp-protocol/avp-tropic/pkg/crypto"
	"github.com/avp-protocol/avp-tropic/pkg/l1"
	"github.com/avp-protocol/avp-tropic/pkg/l3"
)

// StartSession establishes the secure session: it generates an
// ephemeral keypair from the port RNG, runs the handshake against the
// chip and verifies the chip's authentication tag.
//
// pairingPriv is the host pairing private key for the chosen slot
// (0..3); chipPub is the chip static public key, usually obtained from
// the certificate store via ChipPublicKey or VerifyChip.
func (d *Device) StartSession(pairingPriv [32]byte, slot uint8, chipPub [32]byte) error {
	if slot >= l3.PairingSlotCount {
		return fmt.Errorf("%w: pairing slot %d", ErrSlotOutOfRange, slot)
	}

	d.session.BeginHandshake()

	ephPriv, ephPub, err := crypto.GenerateX25519(d.bus.Random)
	if err != nil {
		d.session.Invalidate()
		return fmt.Errorf("%w: %v", l3.ErrHandshakeFailed, err)
	}
	defer crypto.Memzero(ephPriv[:])

	chipEphPub, tag, err := d.link.Handshake(ephPub, slot)
	if err != nil {
		d.session.Invalidate()
		return fmt.Errorf("%w: %v", l3.ErrHandshakeFailed, err)
	}

	pairingPub, err := crypto.X25519Public(pairingPriv)
	if err != nil {
		d.session.Invalidate()
		return fmt.Errorf("%w: %v", l3.ErrHandshakeFailed, err)
	}

	dh1, err := crypto.X25519(ephPriv, chipPub)
	if err != nil {
		d.session.Invalidate()
		return fmt.Errorf("%w: %v", l3.ErrHandshakeFailed, err)
	}
	dh2, err := crypto.X25519(pairingPriv, chipEphPub)
	if err != nil {
		crypto.Memzero(dh1[:])
		d.session.Invalidate()
		return fmt.Errorf("%w: %v", l3.ErrHandshakeFailed, err)
	}
	dh3, err := crypto.X25519(ephPriv, chipEphPub)
	if err != nil {
		crypto.Memzero(dh1[:], dh2[:])
		d.session.Invalidate()
		return fmt.Errorf("%w: %v", l3.ErrHandshakeFailed, err)
	}

	keys, err := l3.DeriveHandshakeKeys(chipPub, ephPub, pairingPub, chipEphPub, dh1, dh2, dh3)
	crypto.Memzero(dh1[:], dh2[:], dh3[:])
	if err != nil {
		d.session.Invalidate()
		return fmt.Errorf("%w: %v", l3.ErrHandshakeFailed, err)
	}
	defer keys.Zeroize()

	if err := l3.VerifyAuthTag(&keys, tag); err != nil {
		d.session.Invalidate()
		return err
	}

	d.session.Establish(&keys)
	if d.log != nil {
		d.log.Infof("session established on pairing slot %d", slot)
	}
	return nil
}

// AbortSession tears the session down on both sides. The host state
// is invalidated even if the chip cannot be reached.
func (d *Device) AbortSession() error {
	defer d.session.Invalidate()

	if !d.session.Established() {
		return nil
	}
	return d.link.AbortSession()
}

// command runs one encrypted command roundtrip and returns the result
// code and response data.
func (d *Device) command(cmd byte, payload []byte) (l3.Result, []byte, error) {
	if !d.session.Established() {
		return 0, nil, l3.ErrNoSession
	}

	plaintext := make([]byte, 1+len(payload))
	plaintext[0] = cmd
	copy(plaintext[1:], payload)

	frame, err := d.session.SealCommand(plaintext)
	if err != nil {
		return 0, nil, err
	}

	resp, err := d.link.EncryptedCmd(frame, d.respBuf[:])
	if err != nil {
		// A session-terminal chip status invalidates the host state.
		// A response timeout does too: the chip may have executed the
		// command and advanced its counters. Other transport errors
		// (e.g. a CRC hit) leave the session and counters intact.
		if d.link.LastStatus().SessionTerminal() || errors.Is(err, l1.ErrNoResponse) {
			d.session.Invalidate()
		}
		return 0, nil, err
	}

	opened, err := d.session.OpenResult(resp)
	if err != nil {
		return 0, nil, err
	}
	if len(opened) == 0 {
		d.session.Invalidate()
		return 0, nil, l3.ErrDecryptFailed
	}

	result := l3.Result(opened[0])
	data := make([]byte, len(opened)-1)
	copy(data, opened[1:])
	crypto.Memzero(d.respBuf[:len(resp)])

	return result, data, nil
}

// commandOK runs one command and maps any non-OK result to its typed
// error.
func (d *Device) commandOK(cmd byte, payload []byte) ([]byte, error) {
	result, data, err := d.command(cmd, payload)
	if err != nil {
		return nil, err
	}
	if err := resultErr(result); err != nil {
		return nil, err
	}
	return data, nil
}

// commandFixed runs one command and requires an exact response
// length.
func (d *Device) commandFixed(cmd byte, payload []byte, respLen int) ([]byte, error) {
	data, err := d.commandOK(cmd, payload)
	if err != nil {
		return nil, err
	}
	if len(data) != respLen {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrResponseLength, len(data), respLen)
	}
	return data, nil
}
