package certstore

import (
	"encoding/binary"
)

// BuildStore encodes a certificate store: device certificate first,
// then the issuing chain. Used by chip simulators and tests; the chip
// carries its store in provisioned memory.
func BuildStore(certs [][]byte) ([]byte, error) {
	if len(certs) == 0 || len(certs) > MaxCerts {
		return nil, ErrStoreCount
	}

	total := HeaderSize
	for _, c := range certs {
		if len(c) == 0 {
			return nil, ErrDeviceCertMissing
		}
		total += len(c)
	}
	if total > MaxStoreSize {
		return nil, ErrStoreLength
	}

	out := make([]byte, HeaderSize, total)
	out[0] = StoreVersion
	out[1] = byte(len(certs))
	for i, c := range certs {
		binary.LittleEndian.PutUint16(out[2+2*i:], uint16(len(c)))
	}
	for _, c := range certs {
		out = append(out, c...)
	}
	return out, nil
}
