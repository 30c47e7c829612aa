package chipmodel

import (
	"crypto/ecdh"
	"crypto/ed25519"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/asn1"
	"fmt"
	"math/big"
	"time"

	"github.com/avp-protocol/avp-tropic/pkg/certstore"
	"github.com/avp-protocol/avp-tropic/pkg/crypto"
)

// Identity is the provisioned identity of a model chip: the static
// X25519 keypair and the certificate store binding its public key to
// a vendor root.
type Identity struct {
	StaticPriv [32]byte
	StaticPub  [32]byte

	// CertStore is the encoded certificate store: device certificate
	// followed by the self-signed vendor root.
	CertStore []byte

	// Roots holds the vendor root for host-side chain verification.
	Roots *x509.CertPool
}

// GenerateIdentity provisions a fresh model chip identity.
func GenerateIdentity() (*Identity, error) {
	id := &Identity{}

	priv, pub, err := crypto.GenerateX25519(func(b []byte) error {
		_, err := rand.Read(b)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("chipmodel: static key: %w", err)
	}
	id.StaticPriv = priv
	id.StaticPub = pub

	rootPub, rootPriv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("chipmodel: root key: %w", err)
	}

	rootTemplate := &x509.Certificate{
		SerialNumber:          big.NewInt(1),
		Subject:               pkix.Name{CommonName: "AVP Model Root CA"},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(10 * 365 * 24 * time.Hour),
		IsCA:                  true,
		KeyUsage:              x509.KeyUsageCertSign,
		BasicConstraintsValid: true,
	}
	rootDER, err := x509.CreateCertificate(rand.Reader, rootTemplate, rootTemplate, rootPub, rootPriv)
	if err != nil {
		return nil, fmt.Errorf("chipmodel: root cert: %w", err)
	}
	rootCert, err := x509.ParseCertificate(rootDER)
	if err != nil {
		return nil, err
	}

	deviceDER, err := makeDeviceCert(pub, rootCert, rootPriv)
	if err != nil {
		return nil, err
	}

	store, err := certstore.BuildStore([][]byte{deviceDER, rootDER})
	if err != nil {
		return nil, err
	}
	id.CertStore = store

	id.Roots = x509.NewCertPool()
	id.Roots.AddCert(rootCert)

	return id, nil
}

// ed25519OID is the signature algorithm identifier of the issuing
// chain. Ed25519 takes no algorithm parameters.
var ed25519OID = asn1.ObjectIdentifier{1, 3, 101, 112}

type algorithmIdentifier struct {
	Algorithm asn1.ObjectIdentifier
}

type tbsCertificate struct {
	SerialNumber       *big.Int
	SignatureAlgorithm algorithmIdentifier
	Issuer             asn1.RawValue
	Validity           certValidity
	Subject            asn1.RawValue
	PublicKey          asn1.RawValue
}

type certValidity struct {
	NotBefore time.Time
	NotAfter  time.Time
}

type signedCertificate struct {
	TBS                asn1.RawValue
	SignatureAlgorithm algorithmIdentifier
	Signature          asn1.BitString
}

// makeDeviceCert assembles the device certificate. The certificate
// library cannot issue certificates for X25519 subject keys, so the
// TBS structure is encoded directly and signed with the root key.
func makeDeviceCert(staticPub [32]byte, root *x509.Certificate, rootPriv ed25519.PrivateKey) ([]byte, error) {
	ecdhPub, err := ecdh.X25519().NewPublicKey(staticPub[:])
	if err != nil {
		return nil, err
	}
	spki, err := x509.MarshalPKIXPublicKey(ecdhPub)
	if err != nil {
		return nil, err
	}

	subject, err := asn1.Marshal(pkix.Name{CommonName: "AVP Model Device"}.ToRDNSequence())
	if err != nil {
		return nil, err
	}

	sigAlg := algorithmIdentifier{Algorithm: ed25519OID}
	tbs := tbsCertificate{
		SerialNumber:       big.NewInt(time.Now().UnixNano()),
		SignatureAlgorithm: sigAlg,
		Issuer:             asn1.RawValue{FullBytes: root.RawSubject},
		Validity: certValidity{
			NotBefore: time.Now().Add(-time.Hour).UTC().Truncate(time.Second),
			NotAfter:  time.Now().Add(10 * 365 * 24 * time.Hour).UTC().Truncate(time.Second),
		},
		Subject:   asn1.RawValue{FullBytes: subject},
		PublicKey: asn1.RawValue{FullBytes: spki},
	}

	tbsDER, err := asn1.Marshal(tbs)
	if err != nil {
		return nil, err
	}

	sig := ed25519.Sign(rootPriv, tbsDER)
	return asn1.Marshal(signedCertificate{
		TBS:                asn1.RawValue{FullBytes: tbsDER},
		SignatureAlgorithm: sigAlg,
		Signature:          asn1.BitString{Bytes: sig, BitLength: len(sig) * 8},
	})
}
