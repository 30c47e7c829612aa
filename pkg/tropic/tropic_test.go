package tropic_test

import (
	"bytes"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/elliptic"
	"crypto/rand"
	"errors"
	"math/big"
	"testing"

	"github.com/avp-protocol/avp-tropic/pkg/chipmodel"
	"github.com/avp-protocol/avp-tropic/pkg/crypto"
	"github.com/avp-protocol/avp-tropic/pkg/l1"
	"github.com/avp-protocol/avp-tropic/pkg/l3"
	"github.com/avp-protocol/avp-tropic/pkg/tropic"
)

func testRandom(buf []byte) error {
	_, err := rand.Read(buf)
	return err
}

// testPair is one host Device wired directly to a model chip.
type testPair struct {
	dev   *tropic.Device
	model *chipmodel.Model

	pairingPriv [32]byte
	chipPub     [32]byte
}

// newTestPair builds a device/model pair, provisions pairing slot 0
// and brings the chip up.
func newTestPair(t *testing.T, cfg chipmodel.Config) *testPair {
	t.Helper()

	model, err := chipmodel.New(cfg)
	if err != nil {
		t.Fatalf("chipmodel.New: %v", err)
	}

	priv, pub, err := crypto.GenerateX25519(testRandom)
	if err != nil {
		t.Fatal(err)
	}
	model.SetPairingKey(0, pub)

	dev := tropic.NewDevice(model, tropic.Config{})
	if err := dev.Init(); err != nil {
		t.Fatalf("Init: %v", err)
	}

	return &testPair{
		dev:         dev,
		model:       model,
		pairingPriv: priv,
		chipPub:     model.Identity().StaticPub,
	}
}

// establish runs the handshake on pairing slot 0.
func (p *testPair) establish(t *testing.T) {
	t.Helper()
	if err := p.dev.StartSession(p.pairingPriv, 0, p.chipPub); err != nil {
		t.Fatalf("StartSession: %v", err)
	}
}

func TestInitStartupToApplication(t *testing.T) {
	p := newTestPair(t, chipmodel.Config{StartInMaintenance: true})

	if !p.dev.Mode().Application() {
		t.Errorf("mode = %v, want application", p.dev.Mode())
	}
	if p.dev.SessionState() != l3.StateIdle {
		t.Errorf("session state = %v, want idle", p.dev.SessionState())
	}
}

func TestInitFirmwareBootFailure(t *testing.T) {
	model, err := chipmodel.New(chipmodel.Config{StartInMaintenance: true, FailAppBoot: true})
	if err != nil {
		t.Fatal(err)
	}
	dev := tropic.NewDevice(model, tropic.Config{})

	if err := dev.Init(); !errors.Is(err, tropic.ErrFirmwareBootFailed) {
		t.Fatalf("Init = %v, want ErrFirmwareBootFailed", err)
	}
	// The device must stay usable for firmware update.
	if !dev.Mode().Maintenance() {
		t.Errorf("mode = %v, want maintenance", dev.Mode())
	}
}

func TestPingEcho(t *testing.T) {
	p := newTestPair(t, chipmodel.Config{})
	p.establish(t)

	echo, err := p.dev.Ping([]byte{0x01, 0x02, 0x03})
	if err != nil {
		t.Fatalf("Ping: %v", err)
	}
	if !bytes.Equal(echo, []byte{0x01, 0x02, 0x03}) {
		t.Errorf("echo = % x", echo)
	}

	cmd, res := p.dev.SessionCounters()
	if cmd != 1 || res != 1 {
		t.Errorf("counters = (%d, %d), want (1, 1)", cmd, res)
	}
}

func TestPingBoundaries(t *testing.T) {
	p := newTestPair(t, chipmodel.Config{})
	p.establish(t)

	if _, err := p.dev.Ping(nil); err != nil {
		t.Errorf("empty ping: %v", err)
	}

	payload := make([]byte, 4096)
	if err := testRandom(payload); err != nil {
		t.Fatal(err)
	}
	echo, err := p.dev.Ping(payload)
	if err != nil {
		t.Fatalf("4096-byte ping: %v", err)
	}
	if !bytes.Equal(echo, payload) {
		t.Error("4096-byte ping echo mismatch")
	}

	if _, err := p.dev.Ping(make([]byte, 4097)); !errors.Is(err, tropic.ErrLengthOutOfRange) {
		t.Errorf("4097-byte ping = %v, want ErrLengthOutOfRange", err)
	}
}

func TestCounterMonotonicity(t *testing.T) {
	p := newTestPair(t, chipmodel.Config{})
	p.establish(t)

	const n = 10
	for i := 0; i < n; i++ {
		if _, err := p.dev.Ping([]byte{byte(i)}); err != nil {
			t.Fatalf("Ping %d: %v", i, err)
		}
	}

	cmd, res := p.dev.SessionCounters()
	if cmd != n || res != n {
		t.Errorf("counters = (%d, %d), want (%d, %d)", cmd, res, n, n)
	}
}

func TestCRCErrorKeepsSession(t *testing.T) {
	p := newTestPair(t, chipmodel.Config{})
	p.establish(t)

	p.model.FlipNextResponseCRC()
	if _, err := p.dev.Ping([]byte{0x42}); !errors.Is(err, l1.ErrCRCMismatch) {
		t.Fatalf("Ping = %v, want ErrCRCMismatch", err)
	}

	if p.dev.SessionState() != l3.StateEstablished {
		t.Errorf("session state = %v, want established", p.dev.SessionState())
	}
	cmd, res := p.dev.SessionCounters()
	if cmd != 0 || res != 0 {
		t.Errorf("counters = (%d, %d), want (0, 0)", cmd, res)
	}
}

func TestTagMismatchKillsSession(t *testing.T) {
	p := newTestPair(t, chipmodel.Config{})
	p.establish(t)

	p.model.FlipNextResultTag()
	if _, err := p.dev.Ping([]byte{0x42}); !errors.Is(err, l3.ErrTagMismatch) {
		t.Fatalf("Ping = %v, want ErrTagMismatch", err)
	}

	if _, err := p.dev.Ping([]byte{0x42}); !errors.Is(err, l3.ErrNoSession) {
		t.Errorf("subsequent Ping = %v, want ErrNoSession", err)
	}
}

func TestResponseTimeoutKillsSession(t *testing.T) {
	p := newTestPair(t, chipmodel.Config{})
	p.establish(t)

	p.model.DropNextResponse()
	if _, err := p.dev.Ping([]byte{0x42}); !errors.Is(err, l1.ErrNoResponse) {
		t.Fatalf("Ping = %v, want ErrNoResponse", err)
	}
	if p.dev.SessionState() != l3.StateIdle {
		t.Errorf("session state = %v, want idle", p.dev.SessionState())
	}
}

func TestHandshakeSlots(t *testing.T) {
	model, err := chipmodel.New(chipmodel.Config{})
	if err != nil {
		t.Fatal(err)
	}

	var privs [4][32]byte
	for slot := uint8(0); slot < 4; slot++ {
		priv, pub, err := crypto.GenerateX25519(testRandom)
		if err != nil {
			t.Fatal(err)
		}
		privs[slot] = priv
		model.SetPairingKey(slot, pub)
	}

	dev := tropic.NewDevice(model, tropic.Config{})
	if err := dev.Init(); err != nil {
		t.Fatal(err)
	}
	chipPub := model.Identity().StaticPub

	for slot := uint8(0); slot < 4; slot++ {
		if err := dev.StartSession(privs[slot], slot, chipPub); err != nil {
			t.Errorf("slot %d: %v", slot, err)
		}
		if err := dev.AbortSession(); err != nil {
			t.Errorf("abort slot %d: %v", slot, err)
		}
	}

	if err := dev.StartSession(privs[0], 4, chipPub); !errors.Is(err, tropic.ErrSlotOutOfRange) {
		t.Errorf("slot 4 = %v, want ErrSlotOutOfRange", err)
	}
}

func TestHandshakeRejectedOnUnprovisionedSlot(t *testing.T) {
	p := newTestPair(t, chipmodel.Config{})

	// Slot 1 carries no pairing key.
	err := p.dev.StartSession(p.pairingPriv, 1, p.chipPub)
	if !errors.Is(err, l3.ErrHandshakeFailed) {
		t.Fatalf("StartSession = %v, want ErrHandshakeFailed", err)
	}
	if p.dev.SessionState() != l3.StateIdle {
		t.Errorf("session state = %v, want idle", p.dev.SessionState())
	}
}

func TestHandshakeWrongChipKeyFailsTagCheck(t *testing.T) {
	p := newTestPair(t, chipmodel.Config{})

	_, wrongPub, err := crypto.GenerateX25519(testRandom)
	if err != nil {
		t.Fatal(err)
	}

	if err := p.dev.StartSession(p.pairingPriv, 0, wrongPub); !errors.Is(err, l3.ErrHandshakeFailed) {
		t.Fatalf("StartSession = %v, want ErrHandshakeFailed", err)
	}
}

func TestAbortSession(t *testing.T) {
	p := newTestPair(t, chipmodel.Config{})
	p.establish(t)

	if err := p.dev.AbortSession(); err != nil {
		t.Fatalf("AbortSession: %v", err)
	}
	if p.model.HasSession() {
		t.Error("chip still holds a session")
	}
	if _, err := p.dev.Ping([]byte{0x01}); !errors.Is(err, l3.ErrNoSession) {
		t.Errorf("Ping after abort = %v, want ErrNoSession", err)
	}

	// A fresh handshake must work.
	p.establish(t)
	if _, err := p.dev.Ping([]byte{0x01}); err != nil {
		t.Errorf("Ping after re-establish: %v", err)
	}
}

func TestCloseIdempotent(t *testing.T) {
	p := newTestPair(t, chipmodel.Config{})
	p.establish(t)

	if err := p.dev.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := p.dev.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
	if _, err := p.dev.Ping([]byte{0x01}); !errors.Is(err, l3.ErrNoSession) {
		t.Errorf("Ping after Close = %v, want ErrNoSession", err)
	}
}

func TestRandomBytes(t *testing.T) {
	p := newTestPair(t, chipmodel.Config{})
	p.establish(t)

	out, err := p.dev.RandomBytes(255)
	if err != nil {
		t.Fatalf("RandomBytes: %v", err)
	}
	if len(out) != 255 {
		t.Errorf("got %d bytes", len(out))
	}

	if _, err := p.dev.RandomBytes(256); !errors.Is(err, tropic.ErrLengthOutOfRange) {
		t.Errorf("RandomBytes(256) = %v, want ErrLengthOutOfRange", err)
	}
	if _, err := p.dev.RandomBytes(-1); !errors.Is(err, tropic.ErrLengthOutOfRange) {
		t.Errorf("RandomBytes(-1) = %v, want ErrLengthOutOfRange", err)
	}
}

func TestRMemLifecycle(t *testing.T) {
	p := newTestPair(t, chipmodel.Config{})
	p.establish(t)

	record := make([]byte, 444)
	if err := testRandom(record); err != nil {
		t.Fatal(err)
	}

	if err := p.dev.RMemWrite(511, record); err != nil {
		t.Fatalf("RMemWrite: %v", err)
	}

	got, err := p.dev.RMemRead(511)
	if err != nil {
		t.Fatalf("RMemRead: %v", err)
	}
	if !bytes.Equal(got, record) {
		t.Error("read record differs from written record")
	}

	// Occupied slots must be erased before rewrite.
	if err := p.dev.RMemWrite(511, []byte{0x01}); !errors.Is(err, tropic.ErrSlotWriteFailed) {
		t.Errorf("double write = %v, want ErrSlotWriteFailed", err)
	}

	if err := p.dev.RMemErase(511); err != nil {
		t.Fatalf("RMemErase: %v", err)
	}
	if _, err := p.dev.RMemRead(511); !errors.Is(err, tropic.ErrSlotEmpty) {
		t.Errorf("read after erase = %v, want ErrSlotEmpty", err)
	}
	// Erase is idempotent.
	if err := p.dev.RMemErase(511); err != nil {
		t.Errorf("second erase: %v", err)
	}
}

func TestRMemArgumentChecks(t *testing.T) {
	p := newTestPair(t, chipmodel.Config{})
	p.establish(t)

	if err := p.dev.RMemWrite(512, []byte{0x01}); !errors.Is(err, tropic.ErrSlotOutOfRange) {
		t.Errorf("slot 512 = %v, want ErrSlotOutOfRange", err)
	}
	if err := p.dev.RMemWrite(0, make([]byte, 445)); !errors.Is(err, tropic.ErrLengthOutOfRange) {
		t.Errorf("445-byte record = %v, want ErrLengthOutOfRange", err)
	}
	if err := p.dev.RMemWrite(0, nil); !errors.Is(err, tropic.ErrLengthOutOfRange) {
		t.Errorf("empty record = %v, want ErrLengthOutOfRange", err)
	}
}

func TestEcdsaSignVerifies(t *testing.T) {
	p := newTestPair(t, chipmodel.Config{})
	p.establish(t)

	if err := p.dev.EccKeyGenerate(5, l3.CurveP256); err != nil {
		t.Fatalf("EccKeyGenerate: %v", err)
	}

	info, err := p.dev.EccKeyRead(5)
	if err != nil {
		t.Fatalf("EccKeyRead: %v", err)
	}
	if info.Curve != l3.CurveP256 || len(info.PublicKey) != 64 {
		t.Fatalf("key info = %+v", info)
	}

	var hash [32]byte
	sig, err := p.dev.EcdsaSign(5, hash)
	if err != nil {
		t.Fatalf("EcdsaSign: %v", err)
	}

	pub := &ecdsa.PublicKey{
		Curve: elliptic.P256(),
		X:     new(big.Int).SetBytes(info.PublicKey[:32]),
		Y:     new(big.Int).SetBytes(info.PublicKey[32:]),
	}
	r := new(big.Int).SetBytes(sig[:32])
	s := new(big.Int).SetBytes(sig[32:])
	if !ecdsa.Verify(pub, hash[:], r, s) {
		t.Error("signature does not verify with the returned public key")
	}
}

func TestEddsaSignVerifies(t *testing.T) {
	p := newTestPair(t, chipmodel.Config{})
	p.establish(t)

	if err := p.dev.EccKeyGenerate(7, l3.CurveEd25519); err != nil {
		t.Fatalf("EccKeyGenerate: %v", err)
	}
	info, err := p.dev.EccKeyRead(7)
	if err != nil {
		t.Fatalf("EccKeyRead: %v", err)
	}
	if info.Curve != l3.CurveEd25519 || len(info.PublicKey) != 32 {
		t.Fatalf("key info = %+v", info)
	}

	msg := []byte("attest this")
	sig, err := p.dev.EddsaSign(7, msg)
	if err != nil {
		t.Fatalf("EddsaSign: %v", err)
	}
	if !ed25519.Verify(ed25519.PublicKey(info.PublicKey), msg, sig[:]) {
		t.Error("signature does not verify")
	}
}

func TestEccSlotLifecycle(t *testing.T) {
	p := newTestPair(t, chipmodel.Config{})
	p.establish(t)

	if _, err := p.dev.EccKeyRead(3); !errors.Is(err, tropic.ErrSlotEmpty) {
		t.Errorf("read empty slot = %v, want ErrSlotEmpty", err)
	}

	var secret [32]byte
	secret[31] = 0x07
	if err := p.dev.EccKeyStore(3, l3.CurveEd25519, secret); err != nil {
		t.Fatalf("EccKeyStore: %v", err)
	}
	info, err := p.dev.EccKeyRead(3)
	if err != nil {
		t.Fatalf("EccKeyRead: %v", err)
	}
	if info.Origin != l3.KeyOriginStored {
		t.Errorf("origin = 0x%02x, want stored", info.Origin)
	}

	if err := p.dev.EccKeyErase(3); err != nil {
		t.Fatalf("EccKeyErase: %v", err)
	}
	if _, err := p.dev.EccKeyRead(3); !errors.Is(err, tropic.ErrSlotEmpty) {
		t.Errorf("read after erase = %v, want ErrSlotEmpty", err)
	}

	if err := p.dev.EccKeyGenerate(32, l3.CurveP256); !errors.Is(err, tropic.ErrSlotOutOfRange) {
		t.Errorf("slot 32 = %v, want ErrSlotOutOfRange", err)
	}
	if err := p.dev.EccKeyGenerate(0, l3.ECCCurve(0x09)); !errors.Is(err, tropic.ErrUnsupportedCurve) {
		t.Errorf("bad curve = %v, want ErrUnsupportedCurve", err)
	}
}

func TestMCounter(t *testing.T) {
	p := newTestPair(t, chipmodel.Config{})
	p.establish(t)

	if _, err := p.dev.MCounterGet(2); !errors.Is(err, tropic.ErrMCounterNotInitialized) {
		t.Errorf("get uninitialized = %v, want ErrMCounterNotInitialized", err)
	}

	if err := p.dev.MCounterInit(2, 3); err != nil {
		t.Fatalf("MCounterInit: %v", err)
	}
	for i := 0; i < 3; i++ {
		if err := p.dev.MCounterUpdate(2); err != nil {
			t.Fatalf("MCounterUpdate %d: %v", i, err)
		}
	}

	value, err := p.dev.MCounterGet(2)
	if err != nil {
		t.Fatalf("MCounterGet: %v", err)
	}
	if value != 0 {
		t.Errorf("value = %d, want 0", value)
	}

	if err := p.dev.MCounterUpdate(2); !errors.Is(err, tropic.ErrMCounterExhausted) {
		t.Errorf("update at zero = %v, want ErrMCounterExhausted", err)
	}

	if err := p.dev.MCounterInit(16, 1); !errors.Is(err, tropic.ErrSlotOutOfRange) {
		t.Errorf("index 16 = %v, want ErrSlotOutOfRange", err)
	}
}

func TestMacAndDestroyRollsForward(t *testing.T) {
	p := newTestPair(t, chipmodel.Config{})
	p.establish(t)

	var data [32]byte
	data[0] = 0xAB

	first, err := p.dev.MacAndDestroy(9, data)
	if err != nil {
		t.Fatalf("MacAndDestroy: %v", err)
	}
	second, err := p.dev.MacAndDestroy(9, data)
	if err != nil {
		t.Fatalf("MacAndDestroy: %v", err)
	}
	if first == second {
		t.Error("slot secret did not roll forward")
	}

	if _, err := p.dev.MacAndDestroy(128, data); !errors.Is(err, tropic.ErrSlotOutOfRange) {
		t.Errorf("slot 128 = %v, want ErrSlotOutOfRange", err)
	}
}

func TestPairingKeySlots(t *testing.T) {
	p := newTestPair(t, chipmodel.Config{})
	p.establish(t)

	if _, err := p.dev.PairingKeyRead(2); !errors.Is(err, tropic.ErrPairingKeyEmpty) {
		t.Errorf("read empty = %v, want ErrPairingKeyEmpty", err)
	}

	_, pub, err := crypto.GenerateX25519(testRandom)
	if err != nil {
		t.Fatal(err)
	}
	if err := p.dev.PairingKeyWrite(2, pub); err != nil {
		t.Fatalf("PairingKeyWrite: %v", err)
	}
	got, err := p.dev.PairingKeyRead(2)
	if err != nil {
		t.Fatalf("PairingKeyRead: %v", err)
	}
	if got != pub {
		t.Error("read pairing key differs")
	}

	if err := p.dev.PairingKeyInvalidate(2); err != nil {
		t.Fatalf("PairingKeyInvalidate: %v", err)
	}
	if _, err := p.dev.PairingKeyRead(2); !errors.Is(err, tropic.ErrPairingKeyInvalid) {
		t.Errorf("read invalidated = %v, want ErrPairingKeyInvalid", err)
	}
	if err := p.dev.PairingKeyWrite(2, pub); !errors.Is(err, tropic.ErrPairingKeyInvalid) {
		t.Errorf("write invalidated = %v, want ErrPairingKeyInvalid", err)
	}
}

func TestConfigWords(t *testing.T) {
	p := newTestPair(t, chipmodel.Config{})
	p.establish(t)

	if err := p.dev.RConfigWrite(0x10, 0xDEADBEEF); err != nil {
		t.Fatalf("RConfigWrite: %v", err)
	}
	v, err := p.dev.RConfigRead(0x10)
	if err != nil {
		t.Fatalf("RConfigRead: %v", err)
	}
	if v != 0xDEADBEEF {
		t.Errorf("value = 0x%08X", v)
	}

	if err := p.dev.RConfigErase(); err != nil {
		t.Fatalf("RConfigErase: %v", err)
	}
	if v, _ := p.dev.RConfigRead(0x10); v != 0xFFFFFFFF {
		t.Errorf("value after erase = 0x%08X, want 0xFFFFFFFF", v)
	}

	// I-config: bit clears are irreversible.
	if err := p.dev.IConfigWrite(0x04, 3); err != nil {
		t.Fatalf("IConfigWrite: %v", err)
	}
	v, err = p.dev.IConfigRead(0x04)
	if err != nil {
		t.Fatalf("IConfigRead: %v", err)
	}
	if v != 0xFFFFFFF7 {
		t.Errorf("i-config = 0x%08X, want 0xFFFFFFF7", v)
	}
	if err := p.dev.IConfigWrite(0x04, 32); !errors.Is(err, tropic.ErrLengthOutOfRange) {
		t.Errorf("bit 32 = %v, want ErrLengthOutOfRange", err)
	}
}

func TestSerialCodeAndChipInfo(t *testing.T) {
	p := newTestPair(t, chipmodel.Config{})
	p.establish(t)

	code, err := p.dev.SerialCode()
	if err != nil {
		t.Fatalf("SerialCode: %v", err)
	}
	var zero [32]byte
	if code == zero {
		t.Error("serial code is all-zero")
	}

	id, err := p.dev.ChipID()
	if err != nil {
		t.Fatalf("ChipID: %v", err)
	}
	if string(id.SiliconRev[:]) != "ABAB" {
		t.Errorf("silicon rev = %q", id.SiliconRev)
	}

	riscv, err := p.dev.RiscvFwVersion()
	if err != nil {
		t.Fatalf("RiscvFwVersion: %v", err)
	}
	if riscv.String() != "v1.0.0" {
		t.Errorf("riscv version = %v", riscv)
	}

	spect, err := p.dev.SpectFwVersion()
	if err != nil {
		t.Fatalf("SpectFwVersion: %v", err)
	}
	if spect.String() != "v1.0.2" {
		t.Errorf("spect version = %v", spect)
	}

	log, err := p.dev.Log()
	if err != nil {
		t.Fatalf("Log: %v", err)
	}
	if log == "" {
		t.Error("empty firmware log")
	}
}

func TestCertificateChainVerification(t *testing.T) {
	p := newTestPair(t, chipmodel.Config{})

	pub, err := p.dev.VerifyChip(p.model.Identity().Roots)
	if err != nil {
		t.Fatalf("VerifyChip: %v", err)
	}
	if pub != p.model.Identity().StaticPub {
		t.Error("verified chip key differs from provisioned key")
	}

	// The extracted key must let a handshake succeed.
	if err := p.dev.StartSession(p.pairingPriv, 0, pub); err != nil {
		t.Fatalf("StartSession with verified key: %v", err)
	}
}

func TestFirmwareUpdateFlow(t *testing.T) {
	p := newTestPair(t, chipmodel.Config{})
	p.establish(t)

	if err := p.dev.EnterMaintenance(); err != nil {
		t.Fatalf("EnterMaintenance: %v", err)
	}
	if !p.dev.Mode().Maintenance() {
		t.Fatalf("mode = %v, want maintenance", p.dev.Mode())
	}

	// Encrypted commands are refused in maintenance mode.
	if err := p.dev.StartSession(p.pairingPriv, 0, p.chipPub); err == nil {
		t.Error("StartSession succeeded in maintenance mode")
	}

	// 4 KiB image, version v2.0.1 in the header.
	image := make([]byte, 4096)
	if err := testRandom(image); err != nil {
		t.Fatal(err)
	}
	copy(image[:4], []byte{1, 0, 2, 0})

	if err := p.dev.UpdateFirmware(1, image); err != nil {
		t.Fatalf("UpdateFirmware: %v", err)
	}

	bank, err := p.dev.FwBankInfo(0)
	if err != nil {
		t.Fatalf("FwBankInfo: %v", err)
	}
	if bank.Size != 4096 || bank.Version.String() != "v2.0.1" {
		t.Errorf("bank info = %+v", bank)
	}

	if err := p.dev.RebootToApplication(); err != nil {
		t.Fatalf("RebootToApplication: %v", err)
	}
	if !p.dev.Mode().Application() {
		t.Errorf("mode = %v, want application", p.dev.Mode())
	}

	version, err := p.dev.RiscvFwVersion()
	if err != nil {
		t.Fatalf("RiscvFwVersion: %v", err)
	}
	if version.String() != "v2.0.1" {
		t.Errorf("running version = %v, want v2.0.1", version)
	}
}

func TestFirmwareUpdateRequiresMaintenance(t *testing.T) {
	p := newTestPair(t, chipmodel.Config{})

	if err := p.dev.UpdateFirmware(1, make([]byte, 256)); err == nil {
		t.Error("UpdateFirmware succeeded in application mode")
	}
}

func TestSleepDropsSession(t *testing.T) {
	p := newTestPair(t, chipmodel.Config{})
	p.establish(t)

	if err := p.dev.Sleep(false); err != nil {
		t.Fatalf("Sleep: %v", err)
	}
	if p.dev.SessionState() != l3.StateIdle {
		t.Errorf("session state = %v, want idle", p.dev.SessionState())
	}
}
