// Minimal DER walking for the chip certificate store. The device
// certificate carries an X25519 subject public key, which the
// standard library will parse as SPKI but not as a certificate key,
// so the store walks the TBS structure itself.

package certstore

import (
	"errors"
)

var errDER = errors.New("certstore: malformed DER")

// derElement is one TLV element.
type derElement struct {
	tag     byte
	content []byte
	full    []byte
}

// readElement decodes the element at the start of data and returns
// the remainder.
func readElement(data []byte) (derElement, []byte, error) {
	if len(data) < 2 {
		return derElement{}, nil, errDER
	}

	tag := data[0]
	lenByte := data[1]
	offset := 2

	var length int
	switch {
	case lenByte < 0x80:
		length = int(lenByte)
	case lenByte == 0x81:
		if len(data) < 3 {
			return derElement{}, nil, errDER
		}
		length = int(data[2])
		offset = 3
	case lenByte == 0x82:
		if len(data) < 4 {
			return derElement{}, nil, errDER
		}
		length = int(data[2])<<8 | int(data[3])
		offset = 4
	default:
		// Longer length forms never occur in a 3840-byte store.
		return derElement{}, nil, errDER
	}

	if length < 0 || len(data) < offset+length {
		return derElement{}, nil, errDER
	}

	return derElement{
		tag:     tag,
		content: data[offset : offset+length],
		full:    data[:offset+length],
	}, data[offset+length:], nil
}

// DER tags used by the walker.
const (
	tagSequence    byte = 0x30
	tagContextZero byte = 0xA0
)

// subjectPublicKeyInfo locates the SubjectPublicKeyInfo element of a
// certificate and returns its full DER encoding.
//
// Certificate ::= SEQUENCE { tbsCertificate, signatureAlgorithm,
// signature }; TBSCertificate ::= SEQUENCE { [0] version OPTIONAL,
// serialNumber, signature, issuer, validity, subject,
// subjectPublicKeyInfo, ... }.
func subjectPublicKeyInfo(certDER []byte) ([]byte, error) {
	cert, _, err := readElement(certDER)
	if err != nil {
		return nil, err
	}
	if cert.tag != tagSequence {
		return nil, errDER
	}

	tbs, _, err := readElement(cert.content)
	if err != nil {
		return nil, err
	}
	if tbs.tag != tagSequence {
		return nil, errDER
	}

	rest := tbs.content

	// Optional explicit version.
	first, after, err := readElement(rest)
	if err != nil {
		return nil, err
	}
	if first.tag == tagContextZero {
		rest = after
	}

	// serialNumber, signature, issuer, validity, subject.
	for i := 0; i < 5; i++ {
		if _, rest, err = readElement(rest); err != nil {
			return nil, err
		}
	}

	spki, _, err := readElement(rest)
	if err != nil {
		return nil, err
	}
	if spki.tag != tagSequence {
		return nil, errDER
	}
	return spki.full, nil
}

// signatureParts splits a certificate into its to-be-signed bytes and
// the signature bit string content.
func signatureParts(certDER []byte) (tbs, sig []byte, err error) {
	cert, _, err := readElement(certDER)
	if err != nil {
		return nil, nil, err
	}
	if cert.tag != tagSequence {
		return nil, nil, errDER
	}

	tbsElem, rest, err := readElement(cert.content)
	if err != nil {
		return nil, nil, err
	}
	if tbsElem.tag != tagSequence {
		return nil, nil, errDER
	}

	// signatureAlgorithm.
	if _, rest, err = readElement(rest); err != nil {
		return nil, nil, err
	}

	sigElem, _, err := readElement(rest)
	if err != nil {
		return nil, nil, err
	}
	// BIT STRING with zero unused bits.
	if sigElem.tag != 0x03 || len(sigElem.content) < 1 || sigElem.content[0] != 0 {
		return nil, nil, errDER
	}

	return tbsElem.full, sigElem.content[1:], nil
}
