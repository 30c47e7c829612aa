package crypto

import (
	"crypto/sha256"
	"io"

	"golang.org/x/crypto/hkdf"
)

// HKDF2 performs one step of the handshake key schedule.
//
// It derives two 32-byte outputs using HKDF-SHA256 with the current
// chaining key as salt and the new input keying material (typically a
// Diffie-Hellman result) as IKM:
//
//	out1 || out2 = HKDF-SHA256(ikm = input, salt = chainingKey, info = empty, L = 64)
//
// The first output becomes the next chaining key; the second is either
// discarded or used as a derived key, depending on the schedule step.
func HKDF2(chainingKey, input []byte) (out1, out2 [32]byte, err error) {
	reader := hkdf.New(sha256.New, input, chainingKey, nil)

	okm := make([]byte, 64)
	if _, err = io.ReadFull(reader, okm); err != nil {
		return out1, out2, err
	}

	copy(out1[:], okm[:32])
	copy(out2[:], okm[32:])
	Memzero(okm)

	return out1, out2, nil
}

// HKDFSHA256 derives key material of an arbitrary length using
// HKDF-SHA256 (RFC 5869).
func HKDFSHA256(inputKey, salt, info []byte, length int) ([]byte, error) {
	reader := hkdf.New(sha256.New, inputKey, salt, info)
	result := make([]byte, length)
	if _, err := io.ReadFull(reader, result); err != nil {
		return nil, err
	}
	return result, nil
}
