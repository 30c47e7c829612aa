package l3

import (
	"github.com/avp-protocol/avp-tropic/pkg/crypto"
)

// protocolName is the handshake label mixed into the transcript hash
// and used as the initial chaining key, zero padded to 32 bytes.
var protocolName = func() [32]byte {
	var name [32]byte
	copy(name[:], "Noise_KK1_25519_AESGCM_SHA256")
	return name
}()

// HandshakeKeys is the output of the handshake key schedule. The
// caller owns the key material and must zeroize it once the session
// holds its own copies.
type HandshakeKeys struct {
	// CmdKey encrypts host-to-chip command frames.
	CmdKey [KeySize]byte

	// ResKey encrypts chip-to-host result frames.
	ResKey [KeySize]byte

	// AuthKey authenticates the handshake transcript.
	AuthKey [KeySize]byte

	// Transcript is the running hash over the protocol label and the
	// four public keys, used as AAD for the authentication tag.
	Transcript [crypto.SHA256LenBytes]byte
}

// Zeroize clears the key material.
func (k *HandshakeKeys) Zeroize() {
	crypto.Memzero(k.CmdKey[:], k.ResKey[:], k.AuthKey[:])
}

// DeriveHandshakeKeys runs the handshake key schedule. Both peers
// compute the same schedule from their own view of the three
// Diffie-Hellman results:
//
//	h            = SHA256(label || ST || EH || SHi || ET)
//	ck           = label
//	(ck, _)      = HKDF2(ck, dh1)        dh1 = X25519(eh, ST)
//	(ck, _)      = HKDF2(ck, dh2)        dh2 = X25519(sh_i, ET)
//	(ck, kAuth)  = HKDF2(ck, dh3)        dh3 = X25519(eh, ET)
//	(kCmd, kRes) = HKDF2(ck, empty)
//
// where ST is the chip static public key, SHi the host pairing public
// key for the chosen slot, and EH/ET the ephemeral public keys.
func DeriveHandshakeKeys(chipStaticPub, hostEphPub, pairingPub, chipEphPub [32]byte, dh1, dh2, dh3 [32]byte) (HandshakeKeys, error) {
	var keys HandshakeKeys

	th := crypto.NewTranscriptHash()
	th.Update(protocolName[:], chipStaticPub[:], hostEphPub[:], pairingPub[:], chipEphPub[:])
	keys.Transcript = th.Sum()

	ck := protocolName
	ck, _, err := crypto.HKDF2(ck[:], dh1[:])
	if err != nil {
		return HandshakeKeys{}, err
	}
	ck, _, err = crypto.HKDF2(ck[:], dh2[:])
	if err != nil {
		return HandshakeKeys{}, err
	}
	ck, kAuth, err := crypto.HKDF2(ck[:], dh3[:])
	if err != nil {
		return HandshakeKeys{}, err
	}
	kCmd, kRes, err := crypto.HKDF2(ck[:], nil)
	if err != nil {
		return HandshakeKeys{}, err
	}

	keys.CmdKey = kCmd
	keys.ResKey = kRes
	keys.AuthKey = kAuth
	crypto.Memzero(ck[:])

	return keys, nil
}

// ComputeAuthTag produces the handshake authentication tag: AES-GCM
// over an empty plaintext with the transcript hash as AAD and a zero
// nonce.
func ComputeAuthTag(keys *HandshakeKeys) ([TagSize]byte, error) {
	var tag [TagSize]byte

	sealed, err := crypto.AESGCMSeal(keys.AuthKey[:], crypto.CounterNonce(0), nil, keys.Transcript[:])
	if err != nil {
		return tag, err
	}

	copy(tag[:], sealed)
	return tag, nil
}

// VerifyAuthTag checks the chip's handshake authentication tag.
// Returns ErrHandshakeFailed on mismatch.
func VerifyAuthTag(keys *HandshakeKeys, tag [TagSize]byte) error {
	if _, err := crypto.AESGCMOpen(keys.AuthKey[:], crypto.CounterNonce(0), tag[:], keys.Transcript[:]); err != nil {
		return ErrHandshakeFailed
	}
	return nil
}
