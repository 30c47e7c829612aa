package tropic

import (
	"fmt"

	"github.com/avp-protocol/avp-tropic/pkg/l2"
)

// EnterMaintenance reboots the chip into maintenance mode for
// firmware update. The secure session is dropped.
func (d *Device) EnterMaintenance() error {
	d.session.Invalidate()

	if err := d.link.Startup(l2.StartupMaintenanceReboot); err != nil {
		return err
	}

	mode, err := d.link.ProbeMode()
	if err != nil {
		return err
	}
	if !mode.Maintenance() {
		return l2.ErrBadChipMode
	}
	return nil
}

// UpdateFirmware erases the target bank and writes the image in
// 128-byte chunks. Only valid in maintenance mode; the chip stays in
// maintenance mode afterwards, reboot with RebootToApplication.
//
// On any intermediate error the chip remains in maintenance mode and
// a retry must start again from the erase.
func (d *Device) UpdateFirmware(bank uint16, image []byte) error {
	if len(image) == 0 {
		return fmt.Errorf("%w: empty firmware image", ErrLengthOutOfRange)
	}

	if err := d.link.FwErase(bank); err != nil {
		return fmt.Errorf("erase bank %d: %w", bank, err)
	}

	for offset := 0; offset < len(image); offset += l2.FwChunkMaxSize {
		end := offset + l2.FwChunkMaxSize
		if end > len(image) {
			end = len(image)
		}
		if err := d.link.FwUpdate(bank, uint16(offset), image[offset:end]); err != nil {
			return fmt.Errorf("write bank %d offset %d: %w", bank, offset, err)
		}
	}

	if d.log != nil {
		d.log.Infof("firmware image of %d bytes written to bank %d", len(image), bank)
	}
	return nil
}

// RebootToApplication reboots the chip into the application firmware
// and verifies that it came up.
func (d *Device) RebootToApplication() error {
	d.session.Invalidate()

	if err := d.link.Startup(l2.StartupReboot); err != nil {
		return err
	}

	mode, err := d.link.ProbeMode()
	if err != nil {
		return err
	}
	if mode.Maintenance() {
		return ErrFirmwareBootFailed
	}
	return nil
}
