package l2

import (
	"github.com/avp-protocol/avp-tropic/pkg/l1"
)

// Mode is a snapshot of the chip operating mode, derived from the chip
// status byte of the most recent response.
type Mode byte

// Mode values.
const (
	// ModeUnknown means no response has been observed yet.
	ModeUnknown Mode = 0x00

	// ModeApplication means the application firmware is running and
	// the full request set is available.
	ModeApplication Mode = 0x01

	// ModeMaintenance means the startup (bootloader) firmware is
	// running; only the requests listed in maintenanceAllowed (get-info,
	// startup, firmware update, resend, get-log and sleep) are honored.
	ModeMaintenance Mode = 0x02

	// ModeAlarm means the chip locked itself down after detecting
	// tampering. No requests are honored.
	ModeAlarm Mode = 0x03
)

// modeFromChipStatus derives the mode from a chip status byte.
func modeFromChipStatus(chipStatus byte) Mode {
	switch {
	case chipStatus&l1.ChipStatusAlarm != 0:
		return ModeAlarm
	case chipStatus&l1.ChipStatusStartup != 0:
		return ModeMaintenance
	default:
		return ModeApplication
	}
}

// Maintenance reports whether the chip runs its startup firmware, in
// which only the requests listed in maintenanceAllowed are accepted.
func (m Mode) Maintenance() bool { return m == ModeMaintenance }

// Application reports whether the full request set is accepted.
func (m Mode) Application() bool { return m == ModeApplication }

// Alarm reports whether the chip is locked down.
func (m Mode) Alarm() bool { return m == ModeAlarm }

// String implements fmt.Stringer.
func (m Mode) String() string {
	switch m {
	case ModeApplication:
		return "application"
	case ModeMaintenance:
		return "maintenance"
	case ModeAlarm:
		return "alarm"
	default:
		return "unknown"
	}
}

// maintenanceAllowed lists the requests honored in maintenance mode.
func maintenanceAllowed(reqID byte) bool {
	switch reqID {
	case GetInfoReqID, StartupReqID, ResendReqID, GetLogReqID,
		MutableFwUpdateReqID, MutableFwEraseReqID, SleepReqID:
		return true
	}
	return false
}
