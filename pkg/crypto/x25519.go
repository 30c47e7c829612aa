package crypto

import (
	"golang.org/x/crypto/curve25519"
)

// X25519KeySize is the size of X25519 private keys, public keys and
// shared secrets (CRYPTO_X25519_KEY_LENGTH_BYTES).
const X25519KeySize = 32

// GenerateX25519 creates an X25519 keypair from the given entropy source.
// The source is typically the port RNG so that constrained targets can
// route all entropy through their hardware TRNG.
func GenerateX25519(random func([]byte) error) (priv, pub [X25519KeySize]byte, err error) {
	if err = random(priv[:]); err != nil {
		return priv, pub, err
	}

	p, err := curve25519.X25519(priv[:], curve25519.Basepoint)
	if err != nil {
		return priv, pub, err
	}
	copy(pub[:], p)

	return priv, pub, nil
}

// X25519 computes the shared secret between a private and a public key.
// The underlying scalar multiplication is constant-time and rejects
// low-order points.
func X25519(priv, pub [X25519KeySize]byte) ([X25519KeySize]byte, error) {
	var shared [X25519KeySize]byte

	s, err := curve25519.X25519(priv[:], pub[:])
	if err != nil {
		return shared, err
	}
	copy(shared[:], s)

	return shared, nil
}

// X25519Public derives the public key for an X25519 private key.
func X25519Public(priv [X25519KeySize]byte) ([X25519KeySize]byte, error) {
	var pub [X25519KeySize]byte

	p, err := curve25519.X25519(priv[:], curve25519.Basepoint)
	if err != nil {
		return pub, err
	}
	copy(pub[:], p)

	return pub, nil
}
