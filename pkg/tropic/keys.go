package tropic

import (
	"fmt"

	"github.com/avp-protocol/avp-tropic/pkg/l3"
)

// ECCKeyInfo describes an occupied ECC key slot.
type ECCKeyInfo struct {
	Curve  l3.ECCCurve
	Origin byte

	// PublicKey is x || y (64 bytes) for P-256 and the 32-byte public
	// key for Ed25519.
	PublicKey []byte
}

func checkEccSlot(slot uint8) error {
	if int(slot) >= l3.EccSlotCount {
		return fmt.Errorf("%w: ecc slot %d", ErrSlotOutOfRange, slot)
	}
	return nil
}

func checkCurve(curve l3.ECCCurve) error {
	if curve != l3.CurveP256 && curve != l3.CurveEd25519 {
		return fmt.Errorf("%w: 0x%02x", ErrUnsupportedCurve, byte(curve))
	}
	return nil
}

// EccKeyGenerate generates a key on the chip. The private key never
// leaves the chip.
func (d *Device) EccKeyGenerate(slot uint8, curve l3.ECCCurve) error {
	if err := checkEccSlot(slot); err != nil {
		return err
	}
	if err := checkCurve(curve); err != nil {
		return err
	}

	_, err := d.commandOK(l3.CmdEccKeyGenerate, []byte{slot, byte(curve)})
	return err
}

// EccKeyStore imports a 32-byte key secret into a slot.
func (d *Device) EccKeyStore(slot uint8, curve l3.ECCCurve, secret [32]byte) error {
	if err := checkEccSlot(slot); err != nil {
		return err
	}
	if err := checkCurve(curve); err != nil {
		return err
	}

	req := append([]byte{slot, byte(curve)}, secret[:]...)
	_, err := d.commandOK(l3.CmdEccKeyStore, req)
	return err
}

// EccKeyRead reads the curve, origin and public key of a slot.
// Returns ErrSlotEmpty for an empty slot.
func (d *Device) EccKeyRead(slot uint8) (ECCKeyInfo, error) {
	if err := checkEccSlot(slot); err != nil {
		return ECCKeyInfo{}, err
	}

	data, err := d.commandOK(l3.CmdEccKeyRead, []byte{slot})
	if err != nil {
		return ECCKeyInfo{}, err
	}
	if len(data) < 4 {
		return ECCKeyInfo{}, fmt.Errorf("%w: ecc read header %d", ErrResponseLength, len(data))
	}

	info := ECCKeyInfo{Curve: l3.ECCCurve(data[0]), Origin: data[1]}
	pub := data[4:]

	var want int
	switch info.Curve {
	case l3.CurveP256:
		want = 64
	case l3.CurveEd25519:
		want = 32
	default:
		return ECCKeyInfo{}, fmt.Errorf("%w: 0x%02x", ErrUnsupportedCurve, data[0])
	}
	if len(pub) != want {
		return ECCKeyInfo{}, fmt.Errorf("%w: public key %d", ErrResponseLength, len(pub))
	}

	info.PublicKey = pub
	return info, nil
}

// EccKeyErase erases a key slot. Erasing an empty slot is not an
// error.
func (d *Device) EccKeyErase(slot uint8) error {
	if err := checkEccSlot(slot); err != nil {
		return err
	}
	_, err := d.commandOK(l3.CmdEccKeyErase, []byte{slot})
	return err
}

// EcdsaSign signs a 32-byte message hash with the P-256 key in slot.
// The signature is r || s, 32 bytes each.
func (d *Device) EcdsaSign(slot uint8, msgHash [32]byte) ([64]byte, error) {
	var sig [64]byte

	if err := checkEccSlot(slot); err != nil {
		return sig, err
	}

	req := append([]byte{slot}, msgHash[:]...)
	data, err := d.commandFixed(l3.CmdEcdsaSign, req, 64)
	if err != nil {
		return sig, err
	}
	copy(sig[:], data)
	return sig, nil
}

// EddsaSign signs a message of up to 4096 bytes with the Ed25519 key
// in slot.
func (d *Device) EddsaSign(slot uint8, msg []byte) ([64]byte, error) {
	var sig [64]byte

	if err := checkEccSlot(slot); err != nil {
		return sig, err
	}
	if len(msg) == 0 || len(msg) > l3.EddsaMsgMax {
		return sig, fmt.Errorf("%w: eddsa message length %d", ErrLengthOutOfRange, len(msg))
	}

	req := append([]byte{slot}, msg...)
	data, err := d.commandFixed(l3.CmdEddsaSign, req, 64)
	if err != nil {
		return sig, err
	}
	copy(sig[:], data)
	return sig, nil
}

// PairingKeyWrite provisions a host pairing public key into a slot.
func (d *Device) PairingKeyWrite(slot uint8, pub [32]byte) error {
	if int(slot) >= l3.PairingSlotCount {
		return fmt.Errorf("%w: pairing slot %d", ErrSlotOutOfRange, slot)
	}

	req := append([]byte{slot}, pub[:]...)
	_, err := d.commandOK(l3.CmdPairingKeyWrite, req)
	return err
}

// PairingKeyRead reads a pairing public key slot. Returns
// ErrPairingKeyEmpty or ErrPairingKeyInvalid for unusable slots.
func (d *Device) PairingKeyRead(slot uint8) ([32]byte, error) {
	var pub [32]byte

	if int(slot) >= l3.PairingSlotCount {
		return pub, fmt.Errorf("%w: pairing slot %d", ErrSlotOutOfRange, slot)
	}

	data, err := d.commandFixed(l3.CmdPairingKeyRead, []byte{slot}, 32)
	if err != nil {
		return pub, err
	}
	copy(pub[:], data)
	return pub, nil
}

// PairingKeyInvalidate permanently invalidates a pairing key slot.
func (d *Device) PairingKeyInvalidate(slot uint8) error {
	if int(slot) >= l3.PairingSlotCount {
		return fmt.Errorf("%w: pairing slot %d", ErrSlotOutOfRange, slot)
	}
	_, err := d.commandOK(l3.CmdPairingKeyInvalidate, []byte{slot})
	return err
}
