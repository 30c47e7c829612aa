// Package certstore parses the chip certificate store and extracts
// the chip static X25519 public key used to authenticate the secure
// session handshake.
//
// The store is a small header followed by up to four concatenated DER
// certificates: the device certificate first, then the issuing chain
// up to the vendor root.
package certstore

import (
	"crypto/ecdh"
	"crypto/ed25519"
	"crypto/x509"
	"encoding/binary"
	"errors"
	"fmt"
)

// Store layout constants.
const (
	// MaxCerts is the certificate slot count of the store.
	MaxCerts = 4

	// HeaderSize is version (1) + count (1) + four u16 lengths.
	HeaderSize = 2 + 2*MaxCerts

	// MaxStoreSize bounds the whole store.
	MaxStoreSize = 3840

	// StoreVersion is the only supported store layout version.
	StoreVersion = 0x01
)

// Errors returned by the store parser.
var (
	ErrStoreTooShort      = errors.New("certstore: store too short")
	ErrStoreVersion       = errors.New("certstore: unsupported store version")
	ErrStoreCount         = errors.New("certstore: invalid certificate count")
	ErrStoreLength        = errors.New("certstore: certificate lengths exceed store")
	ErrNotX25519          = errors.New("certstore: device key is not X25519")
	ErrChainInvalid       = errors.New("certstore: certificate chain invalid")
	ErrDeviceCertMissing = errors.New("certstore: empty device certificate")
	ErrDeviceSigInvalid  = errors.New("certstore: device certificate signature invalid")
)

// Store is a parsed certificate store. Certificate slices alias the
// input buffer.
type Store struct {
	Version byte
	Certs   [][]byte
}

// Parse decodes a certificate store read from the chip.
func Parse(data []byte) (*Store, error) {
	if len(data) < HeaderSize {
		return nil, ErrStoreTooShort
	}
	if len(data) > MaxStoreSize {
		return nil, ErrStoreLength
	}
	if data[0] != StoreVersion {
		return nil, fmt.Errorf("%w: 0x%02x", ErrStoreVersion, data[0])
	}

	count := int(data[1])
	if count == 0 || count > MaxCerts {
		return nil, fmt.Errorf("%w: %d", ErrStoreCount, count)
	}

	s := &Store{Version: data[0]}
	offset := HeaderSize
	for i := 0; i < count; i++ {
		length := int(binary.LittleEndian.Uint16(data[2+2*i:]))
		if length == 0 {
			return nil, ErrDeviceCertMissing
		}
		if offset+length > len(data) {
			return nil, ErrStoreLength
		}
		s.Certs = append(s.Certs, data[offset:offset+length])
		offset += length
	}

	return s, nil
}

// DeviceCert returns the device certificate DER.
func (s *Store) DeviceCert() []byte {
	return s.Certs[0]
}

// DevicePublicKey extracts the chip static X25519 public key from the
// device certificate.
func (s *Store) DevicePublicKey() ([32]byte, error) {
	var pub [32]byte

	spki, err := subjectPublicKeyInfo(s.DeviceCert())
	if err != nil {
		return pub, err
	}

	parsed, err := x509.ParsePKIXPublicKey(spki)
	if err != nil {
		return pub, fmt.Errorf("certstore: parse device key: %w", err)
	}

	ecdhPub, ok := parsed.(*ecdh.PublicKey)
	if !ok || ecdhPub.Curve() != ecdh.X25519() {
		return pub, ErrNotX25519
	}

	copy(pub[:], ecdhPub.Bytes())
	return pub, nil
}

// Verify checks the certificate chain against the given roots and
// returns the chip static public key.
//
// The parent certificates are standard Ed25519 X.509 certificates and
// are verified with the platform verifier. The device certificate
// carries an X25519 subject key, which the platform verifier does not
// model, so its Ed25519 signature is checked directly against its
// issuer.
func (s *Store) Verify(roots *x509.CertPool) ([32]byte, error) {
	var zero [32]byte

	if len(s.Certs) < 2 {
		return zero, ErrChainInvalid
	}

	parents := make([]*x509.Certificate, 0, len(s.Certs)-1)
	for _, der := range s.Certs[1:] {
		cert, err := x509.ParseCertificate(der)
		if err != nil {
			return zero, fmt.Errorf("%w: %v", ErrChainInvalid, err)
		}
		parents = append(parents, cert)
	}

	// Verify the issuing chain: first parent up to the roots.
	intermediates := x509.NewCertPool()
	for _, cert := range parents[1:] {
		intermediates.AddCert(cert)
	}
	if _, err := parents[0].Verify(x509.VerifyOptions{
		Roots:         roots,
		Intermediates: intermediates,
		KeyUsages:     []x509.ExtKeyUsage{x509.ExtKeyUsageAny},
	}); err != nil {
		return zero, fmt.Errorf("%w: %v", ErrChainInvalid, err)
	}

	// Verify the device certificate signature against its issuer.
	issuerPub, ok := parents[0].PublicKey.(ed25519.PublicKey)
	if !ok {
		return zero, ErrChainInvalid
	}
	tbs, sig, err := signatureParts(s.DeviceCert())
	if err != nil {
		return zero, err
	}
	if !ed25519.Verify(issuerPub, tbs, sig) {
		return zero, ErrDeviceSigInvalid
	}

	return s.DevicePublicKey()
}
