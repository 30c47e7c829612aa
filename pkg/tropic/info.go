package tropic

import (
	"crypto/x509"
	"encoding/binary"
	"fmt"

	"github.com/avp-protocol/avp-tropic/pkg/certstore"
	"github.com/avp-protocol/avp-tropic/pkg/l2"
)

// ChipID reads and decodes the chip identification object.
func (d *Device) ChipID() (l2.ChipID, error) {
	data, err := d.link.GetInfo(l2.InfoChipID, 0)
	if err != nil {
		return l2.ChipID{}, err
	}
	return l2.ParseChipID(data)
}

// RiscvFwVersion reads the application firmware version.
func (d *Device) RiscvFwVersion() (l2.FwVersion, error) {
	data, err := d.link.GetInfo(l2.InfoRiscvFwVersion, 0)
	if err != nil {
		return l2.FwVersion{}, err
	}
	return l2.ParseFwVersion(data)
}

// SpectFwVersion reads the cryptographic coprocessor firmware
// version.
func (d *Device) SpectFwVersion() (l2.FwVersion, error) {
	data, err := d.link.GetInfo(l2.InfoSpectFwVersion, 0)
	if err != nil {
		return l2.FwVersion{}, err
	}
	return l2.ParseFwVersion(data)
}

// FwBankInfo reads the state of one mutable firmware bank (0-based
// bank index).
func (d *Device) FwBankInfo(bank uint8) (l2.FwBankInfo, error) {
	data, err := d.link.GetInfo(l2.InfoFwBank, bank)
	if err != nil {
		return l2.FwBankInfo{}, err
	}
	return l2.ParseFwBankInfo(data)
}

// CertificateStore reads and parses the chip certificate store.
func (d *Device) CertificateStore() (*certstore.Store, error) {
	first, err := d.link.GetInfo(l2.InfoX509Certificate, 0)
	if err != nil {
		return nil, err
	}
	if len(first) < certstore.HeaderSize {
		return nil, fmt.Errorf("%w: cert store block %d bytes", ErrResponseLength, len(first))
	}

	// The header tells how much of the store is populated.
	total := certstore.HeaderSize
	count := int(first[1])
	for i := 0; i < count && i < certstore.MaxCerts; i++ {
		total += int(binary.LittleEndian.Uint16(first[2+2*i:]))
	}
	if total > certstore.MaxStoreSize {
		return nil, fmt.Errorf("%w: cert store %d bytes", ErrResponseLength, total)
	}

	store := make([]byte, 0, total)
	store = append(store, first...)
	for block := 1; len(store) < total; block++ {
		chunk, err := d.link.GetInfo(l2.InfoX509Certificate, byte(block))
		if err != nil {
			return nil, err
		}
		store = append(store, chunk...)
	}

	return certstore.Parse(store[:total])
}

// ChipPublicKey extracts the chip static X25519 public key from the
// certificate store without verifying the chain.
func (d *Device) ChipPublicKey() ([32]byte, error) {
	store, err := d.CertificateStore()
	if err != nil {
		return [32]byte{}, err
	}
	return store.DevicePublicKey()
}

// VerifyChip reads the certificate store, verifies the chain against
// the given roots and returns the chip static public key.
func (d *Device) VerifyChip(roots *x509.CertPool) ([32]byte, error) {
	store, err := d.CertificateStore()
	if err != nil {
		return [32]byte{}, err
	}
	return store.Verify(roots)
}
