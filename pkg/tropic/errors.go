package tropic

import (
	"errors"
	"fmt"

	"github.com/avp-protocol/avp-tropic/pkg/l3"
)

// Argument errors, returned before any bus traffic.
var (
	ErrSlotOutOfRange   = errors.New("tropic: slot out of range")
	ErrLengthOutOfRange = errors.New("tropic: length out of range")
	ErrUnsupportedCurve = errors.New("tropic: unsupported curve")
)

// Device lifecycle errors.
var (
	// ErrFirmwareBootFailed reports that the application firmware did
	// not come up after a reboot. The chip stays in maintenance mode;
	// firmware update is still possible.
	ErrFirmwareBootFailed = errors.New("tropic: application firmware failed to boot")

	// ErrResetUnsupported reports that the port has no reset line.
	ErrResetUnsupported = errors.New("tropic: port does not support hardware reset")

	// ErrResponseLength reports a result whose length does not match
	// the command's fixed response shape.
	ErrResponseLength = errors.New("tropic: unexpected response length")
)

// Chip results surfaced as typed errors.
var (
	ErrChipCommandFailed      = errors.New("tropic: chip command failed")
	ErrUnauthorized           = errors.New("tropic: unauthorized for this pairing slot")
	ErrInvalidCommand         = errors.New("tropic: chip rejected command id")
	ErrSlotEmpty              = errors.New("tropic: slot is empty")
	ErrSlotWriteFailed        = errors.New("tropic: slot already written, erase first")
	ErrMCounterExhausted      = errors.New("tropic: monotonic counter exhausted")
	ErrMCounterNotInitialized = errors.New("tropic: monotonic counter not initialized")
	ErrPairingKeyEmpty        = errors.New("tropic: pairing key slot empty")
	ErrPairingKeyInvalid      = errors.New("tropic: pairing key slot invalidated")
)

// resultErr maps a chip result code to its typed error. ResultOK maps
// to nil.
func resultErr(r l3.Result) error {
	switch r {
	case l3.ResultOK:
		return nil
	case l3.ResultFail:
		return ErrChipCommandFailed
	case l3.ResultUnauthorized:
		return ErrUnauthorized
	case l3.ResultInvalidCmd:
		return ErrInvalidCommand
	case l3.ResultRMemEmpty, l3.ResultEccInvalidKey:
		return ErrSlotEmpty
	case l3.ResultRMemWriteFail:
		return ErrSlotWriteFailed
	case l3.ResultMCounterUpdateErr:
		return ErrMCounterExhausted
	case l3.ResultMCounterInvalid:
		return ErrMCounterNotInitialized
	case l3.ResultPairingKeyEmpty:
		return ErrPairingKeyEmpty
	case l3.ResultPairingKeyInvalid:
		return ErrPairingKeyInvalid
	default:
		return fmt.Errorf("%w: result 0x%02x", ErrChipCommandFailed, byte(r))
	}
}
