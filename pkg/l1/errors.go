package l1

import "errors"

// Transport layer errors.
var (
	// ErrSPIBus reports a failed bus transfer or chip-select change.
	ErrSPIBus = errors.New("l1: bus transfer failed")

	// ErrNoResponse reports that the chip produced no response before
	// the poll deadline.
	ErrNoResponse = errors.New("l1: no response within timeout")

	// ErrCRCMismatch reports a response chunk whose CRC did not verify.
	ErrCRCMismatch = errors.New("l1: response CRC mismatch")

	// ErrFrameOverlong reports a payload exceeding the frame bound, in
	// either direction.
	ErrFrameOverlong = errors.New("l1: frame exceeds maximum length")

	// ErrReadyPinTimeout reports that the ready signal did not assert
	// before the deadline.
	ErrReadyPinTimeout = errors.New("l1: ready pin timeout")
)

// Frame layout constants.
const (
	// MaxPayload is the largest request or response payload.
	MaxPayload = 252

	// MaxFrame is the largest request frame: id (1) + length (1) +
	// payload (252) + CRC (2).
	MaxFrame = 256

	// CRCSize is the size of the trailing CRC16.
	CRCSize = 2

	// requestHeaderSize covers the request id and length bytes.
	requestHeaderSize = 2

	// responseHeaderSize covers the status and length bytes that
	// follow the chip-status byte.
	responseHeaderSize = 2
)

// Chip status byte bits. The chip shifts this byte out first on every
// read transfer.
const (
	// ChipStatusReady indicates the chip accepts or has queued a
	// response.
	ChipStatusReady byte = 0x01

	// ChipStatusAlarm indicates the chip entered alarm mode.
	ChipStatusAlarm byte = 0x02

	// ChipStatusStartup indicates the chip runs its startup (bootloader)
	// firmware, i.e. maintenance mode.
	ChipStatusStartup byte = 0x04
)

// StatusNoResponse is the in-band status the chip answers while no
// response is queued yet. The poll loop keeps polling on it; every
// other status value completes the chunk read.
const StatusNoResponse byte = 0xFF
