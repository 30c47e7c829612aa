package l3

// Command identifiers. The command id is the first plaintext byte of
// an encrypted command frame; values match the chip's documented
// command table.
const (
	CmdPing byte = 0x01

	CmdPairingKeyWrite      byte = 0x10
	CmdPairingKeyRead       byte = 0x11
	CmdPairingKeyInvalidate byte = 0x12

	CmdRConfigWrite byte = 0x20
	CmdRConfigRead  byte = 0x21
	CmdRConfigErase byte = 0x22

	CmdIConfigWrite byte = 0x30
	CmdIConfigRead  byte = 0x31

	CmdRMemDataWrite byte = 0x40
	CmdRMemDataRead  byte = 0x41
	CmdRMemDataErase byte = 0x42

	CmdRandomValueGet byte = 0x50

	CmdEccKeyGenerate byte = 0x60
	CmdEccKeyStore    byte = 0x61
	CmdEccKeyRead     byte = 0x62
	CmdEccKeyErase    byte = 0x63

	CmdEcdsaSign byte = 0x70
	CmdEddsaSign byte = 0x71

	CmdMCounterInit   byte = 0x80
	CmdMCounterUpdate byte = 0x81
	CmdMCounterGet    byte = 0x82

	CmdMacAndDestroy byte = 0x90

	CmdSerialCodeGet byte = 0xA0
)

// Result is the cleartext-in-plaintext result byte of a decrypted
// result frame.
type Result byte

// Result codes.
const (
	// ResultOK reports success.
	ResultOK Result = 0xC3

	// ResultFail reports a generic command failure.
	ResultFail Result = 0x3C

	// ResultUnauthorized reports insufficient access privileges for
	// the pairing slot of the session.
	ResultUnauthorized Result = 0x01

	// ResultInvalidCmd reports an unknown command id.
	ResultInvalidCmd Result = 0x02

	// ResultRMemEmpty reports an empty R-memory slot.
	ResultRMemEmpty Result = 0x10

	// ResultRMemWriteFail reports a write to an occupied R-memory
	// slot; the slot must be erased first.
	ResultRMemWriteFail Result = 0x11

	// ResultEccInvalidKey reports an empty or mismatched ECC key
	// slot.
	ResultEccInvalidKey Result = 0x12

	// ResultMCounterUpdateErr reports an exhausted monotonic counter.
	ResultMCounterUpdateErr Result = 0x13

	// ResultMCounterInvalid reports an uninitialized monotonic
	// counter.
	ResultMCounterInvalid Result = 0x14

	// ResultPairingKeyEmpty reports an empty pairing key slot.
	ResultPairingKeyEmpty Result = 0x15

	// ResultPairingKeyInvalid reports an invalidated pairing key
	// slot.
	ResultPairingKeyInvalid Result = 0x16
)

// ECCCurve selects the curve of an ECC key slot.
type ECCCurve byte

// Supported curves.
const (
	CurveP256    ECCCurve = 0x01
	CurveEd25519 ECCCurve = 0x02
)

// ECC key origins.
const (
	// KeyOriginGenerated marks a key generated on the chip.
	KeyOriginGenerated byte = 0x01

	// KeyOriginStored marks a key imported by the host.
	KeyOriginStored byte = 0x02
)

// Command set limits.
const (
	// PingLenMax bounds the ping echo payload.
	PingLenMax = 4096

	// RandomLenMax bounds one random-value request.
	RandomLenMax = 255

	// RMemSlotCount is the number of R-memory user data slots.
	RMemSlotCount = 512

	// RMemDataMax bounds one R-memory slot record.
	RMemDataMax = 444

	// EccSlotCount is the number of ECC key slots.
	EccSlotCount = 32

	// PairingSlotCount is the number of pairing key slots.
	PairingSlotCount = 4

	// MCounterCount is the number of monotonic counters.
	MCounterCount = 16

	// MacAndDestroySlotCount is the number of MAC-and-Destroy slots.
	MacAndDestroySlotCount = 128

	// SerialCodeSize is the size of the serial code object.
	SerialCodeSize = 32

	// EddsaMsgMax bounds an EdDSA message.
	EddsaMsgMax = 4096
)
