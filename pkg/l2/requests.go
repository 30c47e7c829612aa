package l2

// Request identifiers. Numeric values match the chip's documented
// request table.
const (
	// GetInfoReqID reads an information object.
	GetInfoReqID byte = 0x01

	// HandshakeReqID starts the secure session handshake.
	HandshakeReqID byte = 0x02

	// EncryptedCmdReqID carries one chunk of an encrypted command
	// frame.
	EncryptedCmdReqID byte = 0x04

	// EncryptedSessionAbtID aborts the current secure session.
	EncryptedSessionAbtID byte = 0x08

	// ResendReqID asks the chip to resend the last response chunk.
	ResendReqID byte = 0x10

	// SleepReqID puts the chip to sleep.
	SleepReqID byte = 0x20

	// GetLogReqID reads the RISC-V firmware log.
	GetLogReqID byte = 0xA2

	// MutableFwUpdateReqID writes one firmware image chunk.
	MutableFwUpdateReqID byte = 0xB1

	// MutableFwEraseReqID erases a firmware bank.
	MutableFwEraseReqID byte = 0xB2

	// StartupReqID reboots the chip.
	StartupReqID byte = 0xB3
)

// InfoObject selects a Get_Info_Req object.
type InfoObject byte

// Information objects.
const (
	InfoX509Certificate InfoObject = 0x00
	InfoChipID          InfoObject = 0x01
	InfoRiscvFwVersion  InfoObject = 0x02
	InfoSpectFwVersion  InfoObject = 0x04
	InfoFwBank          InfoObject = 0xB0
)

// Startup_Req kinds.
const (
	// StartupReboot restarts the chip into the application firmware.
	StartupReboot byte = 0x01

	// StartupMaintenanceReboot restarts the chip into maintenance
	// mode for firmware update.
	StartupMaintenanceReboot byte = 0x03
)

// Sleep_Req kinds.
const (
	SleepKindSleep     byte = 0x05
	SleepKindDeepSleep byte = 0x0A
)

// Handshake_Req layout.
const (
	// HandshakeReqSize is the request payload: host ephemeral public
	// key (32) + pairing key slot (1).
	HandshakeReqSize = 33

	// HandshakeRspSize is the response payload: chip ephemeral public
	// key (32) + authentication tag (16).
	HandshakeRspSize = 48
)

// Certificate store constants.
const (
	// CertBlockSize is the get-info read granularity of the
	// certificate store.
	CertBlockSize = 128

	// CertStoreMaxSize bounds the whole certificate store.
	CertStoreMaxSize = 3840
)

// Firmware update constants.
const (
	// FwChunkMaxSize is the largest firmware image chunk per
	// Mutable_Fw_Update_Req.
	FwChunkMaxSize = 128

	// FwUpdateReqHeaderSize covers bank id (2) + offset (2).
	FwUpdateReqHeaderSize = 4
)
