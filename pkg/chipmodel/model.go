// Package chipmodel implements a software model of the secure
// element. It mirrors the chip side of the transport, protocol and
// session layers and executes the command set against in-memory
// resources.
//
// The model plugs in as a Port for direct in-process tests, or serves
// the bridge protocol on a byte stream for the TCP simulator and the
// in-memory pipe.
package chipmodel

import (
	"crypto/rand"
	"encoding/binary"
	"errors"
	"time"

	"github.com/pion/logging"

	"github.com/avp-protocol/avp-tropic/pkg/crypto"
	"github.com/avp-protocol/avp-tropic/pkg/l1"
	"github.com/avp-protocol/avp-tropic/pkg/l2"
	"github.com/avp-protocol/avp-tropic/pkg/l3"
)

// Model errors.
var (
	ErrNotSelected = errors.New("chipmodel: transfer without chip select")
)

// cycleKind classifies one chip-select cycle.
type cycleKind int

const (
	cycleUnknown cycleKind = iota
	cycleRequest
	cycleRead
)

// pairingState tracks one pairing key slot.
type pairingState byte

const (
	pairingEmpty pairingState = iota
	pairingValid
	pairingInvalidated
)

type pairingSlot struct {
	state pairingState
	pub   [32]byte
}

// fwBank models one mutable firmware bank.
type fwBank struct {
	erased  bool
	valid   bool
	data    []byte
	version [4]byte
}

// Config configures a Model.
type Config struct {
	// Identity is the provisioned chip identity. Nil generates one.
	Identity *Identity

	// StartInMaintenance boots the model into the startup firmware,
	// as after a power cycle with no valid application image selected
	// yet.
	StartInMaintenance bool

	// FailAppBoot makes Startup_Req(reboot) fail to bring up the
	// application firmware, leaving the chip in maintenance mode.
	FailAppBoot bool

	// Log is the RISC-V firmware log text served by Get_Log_Req.
	Log string

	// LoggerFactory is the factory for creating loggers.
	// If nil, logging is disabled.
	LoggerFactory logging.LoggerFactory
}

// Model is a software chip.
type Model struct {
	cfg      Config
	identity *Identity
	log      logging.LeveledLogger

	maintenance bool

	riscvVersion [4]byte
	spectVersion [4]byte
	chipID       [l2.ChipIDSize]byte
	serialCode   [l3.SerialCodeSize]byte
	banks        map[uint16]*fwBank

	// Transport serving state.
	selected bool
	kind     cycleKind
	reqBuf   []byte
	queue    [][]byte
	current  []byte
	pos      int
	last     []byte

	// Encrypted command reassembly.
	cmdAssembly []byte

	// Chip-side session state.
	hasSession bool
	cmdKey     [32]byte
	resKey     [32]byte
	cmdCounter uint64
	resCounter uint64

	// Chip resources.
	pairing  [l3.PairingSlotCount]pairingSlot
	rmem     [l3.RMemSlotCount][]byte
	ecc      [l3.EccSlotCount]*eccKey
	mcounter [l3.MCounterCount]*uint32
	macSlots [l3.MacAndDestroySlotCount][]byte
	rconfig  map[uint16]uint32
	iconfig  map[uint16]uint32

	// Fault injection.
	flipNextCRC  bool
	flipNextTag  bool
	dropNextResp bool
}

// New creates a model chip.
func New(config Config) (*Model, error) {
	identity := config.Identity
	if identity == nil {
		var err error
		identity, err = GenerateIdentity()
		if err != nil {
			return nil, err
		}
	}

	m := &Model{
		cfg:          config,
		identity:     identity,
		maintenance:  config.StartInMaintenance,
		riscvVersion: [4]byte{0, 0, 1, 0},
		spectVersion: [4]byte{2, 0, 1, 0},
		banks: map[uint16]*fwBank{
			1: {},
			2: {},
		},
		rconfig: make(map[uint16]uint32),
		iconfig: make(map[uint16]uint32),
	}
	if config.LoggerFactory != nil {
		m.log = config.LoggerFactory.NewLogger("chipmodel")
	}

	if _, err := rand.Read(m.serialCode[:]); err != nil {
		return nil, err
	}
	m.provisionChipID()

	return m, nil
}

// Identity returns the provisioned identity.
func (m *Model) Identity() *Identity { return m.identity }

// SetPairingKey provisions a host pairing public key into a slot.
func (m *Model) SetPairingKey(slot uint8, pub [32]byte) {
	m.pairing[slot] = pairingSlot{state: pairingValid, pub: pub}
}

// HasSession reports whether the chip side holds a session.
func (m *Model) HasSession() bool { return m.hasSession }

// FlipNextResponseCRC corrupts the CRC of the next response chunk.
func (m *Model) FlipNextResponseCRC() { m.flipNextCRC = true }

// FlipNextResultTag corrupts the authentication tag of the next
// encrypted result frame.
func (m *Model) FlipNextResultTag() { m.flipNextTag = true }

// DropNextResponse suppresses the next response so the host polls
// into its deadline.
func (m *Model) DropNextResponse() { m.dropNextResp = true }

// RiscvFwVersion returns the running application firmware version.
func (m *Model) RiscvFwVersion() [4]byte { return m.riscvVersion }

func (m *Model) provisionChipID() {
	binary.LittleEndian.PutUint32(m.chipID[0:4], 1)
	copy(m.chipID[4:8], "ABAB")
	binary.LittleEndian.PutUint16(m.chipID[8:10], 0x0001)
	copy(m.chipID[16:32], m.serialCode[:16])
	copy(m.chipID[32:48], "AVP-TR01-C25")
}

func (m *Model) chipStatus() byte {
	status := l1.ChipStatusReady
	if m.maintenance {
		status |= l1.ChipStatusStartup
	}
	return status
}

// Reset models a hardware reset: volatile state is dropped,
// provisioned resources survive.
func (m *Model) Reset() error {
	m.dropSession()
	m.selected = false
	m.kind = cycleUnknown
	m.reqBuf = nil
	m.queue = nil
	m.current = nil
	m.last = nil
	m.pos = 0
	m.cmdAssembly = nil
	m.maintenance = m.cfg.StartInMaintenance
	return nil
}

func (m *Model) dropSession() {
	m.hasSession = false
	crypto.Memzero(m.cmdKey[:], m.resKey[:])
	m.cmdCounter = 0
	m.resCounter = 0
	m.cmdAssembly = nil
}

// Transfer implements port.Port. The first single-byte transfer of a
// cycle marks it as a response read; anything else is a request.
func (m *Model) Transfer(buf []byte, _ time.Duration) error {
	if !m.selected {
		return ErrNotSelected
	}

	if m.kind == cycleUnknown {
		if len(buf) == 1 {
			m.kind = cycleRead
			m.beginRead()
		} else {
			m.kind = cycleRequest
		}
	}

	switch m.kind {
	case cycleRequest:
		m.reqBuf = append(m.reqBuf, buf...)
		for i := range buf {
			buf[i] = 0xFF
		}
	case cycleRead:
		for i := range buf {
			if m.pos < len(m.current) {
				buf[i] = m.current[m.pos]
				m.pos++
			} else {
				buf[i] = 0x00
			}
		}
	}
	return nil
}

// beginRead composes the byte stream for one read cycle.
func (m *Model) beginRead() {
	if len(m.queue) > 0 {
		m.current = m.queue[0]
		return
	}
	// Nothing queued: chip status, then a NO_RESP header.
	m.current = []byte{m.chipStatus(), byte(l2.StatusNoResp), 0x00}
}

// ChipSelect implements port.Port.
func (m *Model) ChipSelect(assert bool) error {
	if assert == m.selected {
		return errors.New("chipmodel: chip select glitch")
	}
	m.selected = assert
	if assert {
		m.kind = cycleUnknown
		m.pos = 0
		return nil
	}

	switch m.kind {
	case cycleRequest:
		frame := m.reqBuf
		m.reqBuf = nil
		m.handleRequest(frame)
	case cycleRead:
		if len(m.queue) > 0 && m.current != nil && m.pos >= len(m.current) {
			m.last = m.queue[0]
			m.queue = m.queue[1:]
		}
	}
	m.current = nil
	return nil
}

// Delay implements port.Port. The model answers instantly.
func (m *Model) Delay(time.Duration) {}

// Random implements port.Port using the process CSPRNG.
func (m *Model) Random(buf []byte) error {
	_, err := rand.Read(buf)
	return err
}

// queueChunk encodes and queues one response chunk.
func (m *Model) queueChunk(status l2.Status, data []byte) {
	if m.dropNextResp {
		m.dropNextResp = false
		return
	}

	chunk, err := l2.BuildResponse(m.chipStatus(), status, data)
	if err != nil {
		chunk, _ = l2.BuildResponse(m.chipStatus(), l2.StatusGenErr, nil)
	}
	if m.flipNextCRC {
		m.flipNextCRC = false
		chunk[len(chunk)-1] ^= 0x10
	}
	m.queue = append(m.queue, chunk)
}

func (m *Model) queueStatus(status l2.Status) {
	m.queueChunk(status, nil)
}

// queueResult queues a result payload split across RESULT_CONT chunks
// with a final RESULT_OK.
func (m *Model) queueResult(data []byte) {
	for {
		if len(data) <= l1.MaxPayload {
			m.queueChunk(l2.StatusResultOK, data)
			return
		}
		m.queueChunk(l2.StatusResultCont, data[:l1.MaxPayload])
		data = data[l1.MaxPayload:]
	}
}

// handleRequest dispatches one parsed request frame.
func (m *Model) handleRequest(frame []byte) {
	reqID, data, err := l2.ParseRequest(frame)
	if err != nil {
		m.queueStatus(l2.StatusCRCErr)
		return
	}

	if m.log != nil {
		m.log.Tracef("req 0x%02x len %d", reqID, len(data))
	}

	if m.maintenance {
		switch reqID {
		case l2.GetInfoReqID, l2.StartupReqID, l2.ResendReqID, l2.GetLogReqID,
			l2.MutableFwUpdateReqID, l2.MutableFwEraseReqID, l2.SleepReqID:
		default:
			m.queueStatus(l2.StatusUnknownReq)
			return
		}
	}

	switch reqID {
	case l2.GetInfoReqID:
		m.handleGetInfo(data)
	case l2.HandshakeReqID:
		m.handleHandshake(data)
	case l2.EncryptedCmdReqID:
		m.handleEncryptedCmd(data)
	case l2.EncryptedSessionAbtID:
		m.dropSession()
		m.queueStatus(l2.StatusRequestOK)
	case l2.ResendReqID:
		m.handleResend()
	case l2.SleepReqID:
		m.dropSession()
		m.queueStatus(l2.StatusRequestOK)
	case l2.StartupReqID:
		m.handleStartup(data)
	case l2.GetLogReqID:
		m.handleGetLog()
	case l2.MutableFwEraseReqID:
		m.handleFwErase(data)
	case l2.MutableFwUpdateReqID:
		m.handleFwUpdate(data)
	default:
		m.queueStatus(l2.StatusUnknownReq)
	}
}

func (m *Model) handleGetInfo(data []byte) {
	if len(data) != 2 {
		m.queueStatus(l2.StatusGenErr)
		return
	}
	obj, block := l2.InfoObject(data[0]), int(data[1])

	switch obj {
	case l2.InfoX509Certificate:
		store := m.identity.CertStore
		offset := block * l2.CertBlockSize
		if offset >= len(store) {
			m.queueStatus(l2.StatusGenErr)
			return
		}
		chunk := make([]byte, l2.CertBlockSize)
		copy(chunk, store[offset:])
		m.queueResult(chunk)

	case l2.InfoChipID:
		m.queueResult(m.chipID[:])

	case l2.InfoRiscvFwVersion:
		m.queueResult(m.riscvVersion[:])

	case l2.InfoSpectFwVersion:
		m.queueResult(m.spectVersion[:])

	case l2.InfoFwBank:
		bank, ok := m.banks[uint16(block)+1]
		if !ok {
			m.queueStatus(l2.StatusGenErr)
			return
		}
		info := make([]byte, l2.FwBankInfoSize)
		binary.LittleEndian.PutUint16(info[0:2], uint16(block)+1)
		switch {
		case bank.valid:
			info[2] = l2.FwBankStateValid
		case bank.erased:
			info[2] = l2.FwBankStateEmpty
		default:
			info[2] = l2.FwBankStateInvalid
		}
		copy(info[4:8], bank.version[:])
		binary.LittleEndian.PutUint32(info[8:12], uint32(len(bank.data)))
		m.queueResult(info)

	default:
		m.queueStatus(l2.StatusGenErr)
	}
}

func (m *Model) handleHandshake(data []byte) {
	if len(data) != l2.HandshakeReqSize {
		m.queueStatus(l2.StatusGenErr)
		return
	}

	var hostEphPub [32]byte
	copy(hostEphPub[:], data[:32])
	slot := data[32]

	if int(slot) >= l3.PairingSlotCount || m.pairing[slot].state != pairingValid {
		m.dropSession()
		m.queueStatus(l2.StatusHandshakeErr)
		return
	}
	pairingPub := m.pairing[slot].pub

	ephPriv, ephPub, err := crypto.GenerateX25519(m.Random)
	if err != nil {
		m.queueStatus(l2.StatusGenErr)
		return
	}

	dh1, err := crypto.X25519(m.identity.StaticPriv, hostEphPub)
	if err != nil {
		m.dropSession()
		m.queueStatus(l2.StatusHandshakeErr)
		return
	}
	dh2, err := crypto.X25519(ephPriv, pairingPub)
	if err != nil {
		m.dropSession()
		m.queueStatus(l2.StatusHandshakeErr)
		return
	}
	dh3, err := crypto.X25519(ephPriv, hostEphPub)
	if err != nil {
		m.dropSession()
		m.queueStatus(l2.StatusHandshakeErr)
		return
	}

	keys, err := l3.DeriveHandshakeKeys(m.identity.StaticPub, hostEphPub, pairingPub, ephPub, dh1, dh2, dh3)
	if err != nil {
		m.queueStatus(l2.StatusGenErr)
		return
	}
	tag, err := l3.ComputeAuthTag(&keys)
	if err != nil {
		m.queueStatus(l2.StatusGenErr)
		return
	}

	m.cmdKey = keys.CmdKey
	m.resKey = keys.ResKey
	m.cmdCounter = 0
	m.resCounter = 0
	m.hasSession = true
	keys.Zeroize()
	crypto.Memzero(ephPriv[:], dh1[:], dh2[:], dh3[:])

	resp := make([]byte, 0, l2.HandshakeRspSize)
	resp = append(resp, ephPub[:]...)
	resp = append(resp, tag[:]...)
	m.queueChunk(l2.StatusRequestOK, resp)
}

func (m *Model) handleEncryptedCmd(data []byte) {
	if !m.hasSession {
		m.queueStatus(l2.StatusNoSession)
		return
	}

	m.cmdAssembly = append(m.cmdAssembly, data...)
	if len(m.cmdAssembly) < l3.SizeFieldLen {
		m.queueStatus(l2.StatusRequestCont)
		return
	}

	total := l3.SizeFieldLen + int(binary.LittleEndian.Uint16(m.cmdAssembly[:2])) + l3.TagSize
	if len(m.cmdAssembly) < total {
		m.queueStatus(l2.StatusRequestCont)
		return
	}

	frame := m.cmdAssembly[:total]
	m.cmdAssembly = nil

	plaintext, err := crypto.AESGCMOpen(m.cmdKey[:], crypto.CounterNonce(m.cmdCounter), frame[l3.SizeFieldLen:], nil)
	if err != nil {
		m.dropSession()
		m.queueStatus(l2.StatusTagErr)
		return
	}

	result, respData := m.execCommand(plaintext)

	resp := make([]byte, 1+len(respData))
	resp[0] = byte(result)
	copy(resp[1:], respData)

	sealed, err := crypto.AESGCMSeal(m.resKey[:], crypto.CounterNonce(m.resCounter), resp, nil)
	if err != nil {
		m.queueStatus(l2.StatusGenErr)
		return
	}
	if m.flipNextTag {
		m.flipNextTag = false
		sealed[len(sealed)-1] ^= 0x01
	}

	m.cmdCounter++
	m.resCounter++

	out := make([]byte, 0, l3.SizeFieldLen+len(sealed))
	out = binary.LittleEndian.AppendUint16(out, uint16(len(resp)))
	out = append(out, sealed...)
	m.queueResult(out)
}

func (m *Model) handleResend() {
	if m.last == nil {
		m.queueStatus(l2.StatusGenErr)
		return
	}
	m.queue = append([][]byte{m.last}, m.queue...)
}

func (m *Model) handleStartup(data []byte) {
	if len(data) != 1 {
		m.queueStatus(l2.StatusGenErr)
		return
	}

	// The acknowledgement reflects the pre-reboot mode.
	m.queueStatus(l2.StatusRequestOK)

	m.dropSession()
	switch data[0] {
	case l2.StartupMaintenanceReboot:
		m.maintenance = true
	case l2.StartupReboot:
		if m.cfg.FailAppBoot {
			m.maintenance = true
			return
		}
		m.maintenance = false
		for _, bank := range m.banks {
			if bank.valid && len(bank.data) >= 4 {
				copy(m.riscvVersion[:], bank.data[:4])
			}
		}
	}
}

func (m *Model) handleGetLog() {
	log := m.cfg.Log
	if log == "" {
		log = "boot: application fw started\n"
	}
	m.queueResult([]byte(log))
}

func (m *Model) handleFwErase(data []byte) {
	if !m.maintenance || len(data) != 2 {
		m.queueStatus(l2.StatusGenErr)
		return
	}
	bank, ok := m.banks[binary.LittleEndian.Uint16(data)]
	if !ok {
		m.queueStatus(l2.StatusGenErr)
		return
	}
	bank.erased = true
	bank.valid = false
	bank.data = nil
	bank.version = [4]byte{}
	m.queueStatus(l2.StatusRequestOK)
}

func (m *Model) handleFwUpdate(data []byte) {
	if !m.maintenance || len(data) < l2.FwUpdateReqHeaderSize+1 {
		m.queueStatus(l2.StatusGenErr)
		return
	}
	bank, ok := m.banks[binary.LittleEndian.Uint16(data[0:2])]
	if !ok || !bank.erased {
		m.queueStatus(l2.StatusGenErr)
		return
	}

	offset := int(binary.LittleEndian.Uint16(data[2:4]))
	chunk := data[l2.FwUpdateReqHeaderSize:]
	if len(chunk) > l2.FwChunkMaxSize {
		m.queueStatus(l2.StatusGenErr)
		return
	}

	if need := offset + len(chunk); need > len(bank.data) {
		bank.data = append(bank.data, make([]byte, need-len(bank.data))...)
	}
	copy(bank.data[offset:], chunk)
	bank.valid = true
	if len(bank.data) >= 4 {
		copy(bank.version[:], bank.data[:4])
	}
	m.queueStatus(l2.StatusRequestOK)
}
