package chipmodel

import (
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"math/big"

	"github.com/avp-protocol/avp-tropic/pkg/l3"
)

// eccKey is one occupied ECC key slot.
type eccKey struct {
	curve  l3.ECCCurve
	origin byte
	p256   *ecdsa.PrivateKey
	ed     ed25519.PrivateKey
}

// execCommand runs one decrypted command plaintext and returns the
// result code and response data.
func (m *Model) execCommand(plaintext []byte) (l3.Result, []byte) {
	if len(plaintext) == 0 {
		return l3.ResultInvalidCmd, nil
	}
	cmd, payload := plaintext[0], plaintext[1:]

	switch cmd {
	case l3.CmdPing:
		if len(payload) > l3.PingLenMax {
			return l3.ResultFail, nil
		}
		echo := make([]byte, len(payload))
		copy(echo, payload)
		return l3.ResultOK, echo

	case l3.CmdRandomValueGet:
		if len(payload) != 1 {
			return l3.ResultFail, nil
		}
		out := make([]byte, payload[0])
		if _, err := rand.Read(out); err != nil {
			return l3.ResultFail, nil
		}
		return l3.ResultOK, out

	case l3.CmdRMemDataWrite:
		if len(payload) < 3 || len(payload) > 2+l3.RMemDataMax {
			return l3.ResultFail, nil
		}
		slot := binary.LittleEndian.Uint16(payload[0:2])
		if int(slot) >= l3.RMemSlotCount {
			return l3.ResultFail, nil
		}
		if m.rmem[slot] != nil {
			return l3.ResultRMemWriteFail, nil
		}
		m.rmem[slot] = append([]byte(nil), payload[2:]...)
		return l3.ResultOK, nil

	case l3.CmdRMemDataRead:
		if len(payload) != 2 {
			return l3.ResultFail, nil
		}
		slot := binary.LittleEndian.Uint16(payload)
		if int(slot) >= l3.RMemSlotCount {
			return l3.ResultFail, nil
		}
		if m.rmem[slot] == nil {
			return l3.ResultRMemEmpty, nil
		}
		return l3.ResultOK, append([]byte(nil), m.rmem[slot]...)

	case l3.CmdRMemDataErase:
		if len(payload) != 2 {
			return l3.ResultFail, nil
		}
		slot := binary.LittleEndian.Uint16(payload)
		if int(slot) >= l3.RMemSlotCount {
			return l3.ResultFail, nil
		}
		m.rmem[slot] = nil
		return l3.ResultOK, nil

	case l3.CmdRConfigWrite:
		if len(payload) != 6 {
			return l3.ResultFail, nil
		}
		addr := binary.LittleEndian.Uint16(payload[0:2])
		m.rconfig[addr] = binary.LittleEndian.Uint32(payload[2:6])
		return l3.ResultOK, nil

	case l3.CmdRConfigRead:
		if len(payload) != 2 {
			return l3.ResultFail, nil
		}
		return l3.ResultOK, configValue(m.rconfig, binary.LittleEndian.Uint16(payload))

	case l3.CmdRConfigErase:
		if len(payload) != 0 {
			return l3.ResultFail, nil
		}
		m.rconfig = make(map[uint16]uint32)
		return l3.ResultOK, nil

	case l3.CmdIConfigWrite:
		// Irreversible: clears a single bit.
		if len(payload) != 3 {
			return l3.ResultFail, nil
		}
		addr := binary.LittleEndian.Uint16(payload[0:2])
		bit := payload[2]
		if bit > 31 {
			return l3.ResultFail, nil
		}
		cur := uint32(0xFFFFFFFF)
		if v, ok := m.iconfig[addr]; ok {
			cur = v
		}
		m.iconfig[addr] = cur &^ (1 << bit)
		return l3.ResultOK, nil

	case l3.CmdIConfigRead:
		if len(payload) != 2 {
			return l3.ResultFail, nil
		}
		return l3.ResultOK, configValue(m.iconfig, binary.LittleEndian.Uint16(payload))

	case l3.CmdEccKeyGenerate:
		return m.execEccGenerate(payload)

	case l3.CmdEccKeyStore:
		return m.execEccStore(payload)

	case l3.CmdEccKeyRead:
		return m.execEccRead(payload)

	case l3.CmdEccKeyErase:
		if len(payload) != 1 || int(payload[0]) >= l3.EccSlotCount {
			return l3.ResultFail, nil
		}
		m.ecc[payload[0]] = nil
		return l3.ResultOK, nil

	case l3.CmdEcdsaSign:
		return m.execEcdsaSign(payload)

	case l3.CmdEddsaSign:
		return m.execEddsaSign(payload)

	case l3.CmdMCounterInit:
		if len(payload) != 5 || int(payload[0]) >= l3.MCounterCount {
			return l3.ResultFail, nil
		}
		v := binary.LittleEndian.Uint32(payload[1:5])
		m.mcounter[payload[0]] = &v
		return l3.ResultOK, nil

	case l3.CmdMCounterUpdate:
		if len(payload) != 1 || int(payload[0]) >= l3.MCounterCount {
			return l3.ResultFail, nil
		}
		v := m.mcounter[payload[0]]
		if v == nil {
			return l3.ResultMCounterInvalid, nil
		}
		if *v == 0 {
			return l3.ResultMCounterUpdateErr, nil
		}
		*v--
		return l3.ResultOK, nil

	case l3.CmdMCounterGet:
		if len(payload) != 1 || int(payload[0]) >= l3.MCounterCount {
			return l3.ResultFail, nil
		}
		v := m.mcounter[payload[0]]
		if v == nil {
			return l3.ResultMCounterInvalid, nil
		}
		return l3.ResultOK, binary.LittleEndian.AppendUint32(nil, *v)

	case l3.CmdMacAndDestroy:
		return m.execMacAndDestroy(payload)

	case l3.CmdSerialCodeGet:
		if len(payload) != 0 {
			return l3.ResultFail, nil
		}
		return l3.ResultOK, append([]byte(nil), m.serialCode[:]...)

	case l3.CmdPairingKeyWrite:
		if len(payload) != 33 || int(payload[0]) >= l3.PairingSlotCount {
			return l3.ResultFail, nil
		}
		slot := &m.pairing[payload[0]]
		if slot.state == pairingInvalidated {
			return l3.ResultPairingKeyInvalid, nil
		}
		slot.state = pairingValid
		copy(slot.pub[:], payload[1:33])
		return l3.ResultOK, nil

	case l3.CmdPairingKeyRead:
		if len(payload) != 1 || int(payload[0]) >= l3.PairingSlotCount {
			return l3.ResultFail, nil
		}
		slot := m.pairing[payload[0]]
		switch slot.state {
		case pairingEmpty:
			return l3.ResultPairingKeyEmpty, nil
		case pairingInvalidated:
			return l3.ResultPairingKeyInvalid, nil
		}
		return l3.ResultOK, append([]byte(nil), slot.pub[:]...)

	case l3.CmdPairingKeyInvalidate:
		if len(payload) != 1 || int(payload[0]) >= l3.PairingSlotCount {
			return l3.ResultFail, nil
		}
		m.pairing[payload[0]].state = pairingInvalidated
		return l3.ResultOK, nil

	default:
		return l3.ResultInvalidCmd, nil
	}
}

func configValue(cfg map[uint16]uint32, addr uint16) []byte {
	value := uint32(0xFFFFFFFF)
	if v, ok := cfg[addr]; ok {
		value = v
	}
	return binary.LittleEndian.AppendUint32(nil, value)
}

func (m *Model) execEccGenerate(payload []byte) (l3.Result, []byte) {
	if len(payload) != 2 || int(payload[0]) >= l3.EccSlotCount {
		return l3.ResultFail, nil
	}
	slot := payload[0]
	if m.ecc[slot] != nil {
		return l3.ResultFail, nil
	}

	switch l3.ECCCurve(payload[1]) {
	case l3.CurveP256:
		key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
		if err != nil {
			return l3.ResultFail, nil
		}
		m.ecc[slot] = &eccKey{curve: l3.CurveP256, origin: l3.KeyOriginGenerated, p256: key}
	case l3.CurveEd25519:
		_, priv, err := ed25519.GenerateKey(rand.Reader)
		if err != nil {
			return l3.ResultFail, nil
		}
		m.ecc[slot] = &eccKey{curve: l3.CurveEd25519, origin: l3.KeyOriginGenerated, ed: priv}
	default:
		return l3.ResultFail, nil
	}
	return l3.ResultOK, nil
}

func (m *Model) execEccStore(payload []byte) (l3.Result, []byte) {
	if len(payload) != 34 || int(payload[0]) >= l3.EccSlotCount {
		return l3.ResultFail, nil
	}
	slot := payload[0]
	if m.ecc[slot] != nil {
		return l3.ResultFail, nil
	}
	secret := payload[2:34]

	switch l3.ECCCurve(payload[1]) {
	case l3.CurveP256:
		key, err := p256KeyFromSecret(secret)
		if err != nil {
			return l3.ResultFail, nil
		}
		m.ecc[slot] = &eccKey{curve: l3.CurveP256, origin: l3.KeyOriginStored, p256: key}
	case l3.CurveEd25519:
		m.ecc[slot] = &eccKey{
			curve:  l3.CurveEd25519,
			origin: l3.KeyOriginStored,
			ed:     ed25519.NewKeyFromSeed(secret),
		}
	default:
		return l3.ResultFail, nil
	}
	return l3.ResultOK, nil
}

func (m *Model) execEccRead(payload []byte) (l3.Result, []byte) {
	if len(payload) != 1 || int(payload[0]) >= l3.EccSlotCount {
		return l3.ResultFail, nil
	}
	key := m.ecc[payload[0]]
	if key == nil {
		return l3.ResultEccInvalidKey, nil
	}

	resp := []byte{byte(key.curve), key.origin, 0, 0}
	switch key.curve {
	case l3.CurveP256:
		resp = append(resp, p256PublicBytes(key.p256)...)
	case l3.CurveEd25519:
		resp = append(resp, key.ed.Public().(ed25519.PublicKey)...)
	}
	return l3.ResultOK, resp
}

func (m *Model) execEcdsaSign(payload []byte) (l3.Result, []byte) {
	if len(payload) != 33 || int(payload[0]) >= l3.EccSlotCount {
		return l3.ResultFail, nil
	}
	key := m.ecc[payload[0]]
	if key == nil || key.curve != l3.CurveP256 {
		return l3.ResultEccInvalidKey, nil
	}

	r, s, err := ecdsa.Sign(rand.Reader, key.p256, payload[1:33])
	if err != nil {
		return l3.ResultFail, nil
	}

	sig := make([]byte, 64)
	r.FillBytes(sig[:32])
	s.FillBytes(sig[32:])
	return l3.ResultOK, sig
}

func (m *Model) execEddsaSign(payload []byte) (l3.Result, []byte) {
	if len(payload) < 2 || len(payload) > 1+l3.EddsaMsgMax || int(payload[0]) >= l3.EccSlotCount {
		return l3.ResultFail, nil
	}
	key := m.ecc[payload[0]]
	if key == nil || key.curve != l3.CurveEd25519 {
		return l3.ResultEccInvalidKey, nil
	}
	return l3.ResultOK, ed25519.Sign(key.ed, payload[1:])
}

// execMacAndDestroy computes the slot MAC and irreversibly rolls the
// slot secret forward.
func (m *Model) execMacAndDestroy(payload []byte) (l3.Result, []byte) {
	if len(payload) != 33 || int(payload[0]) >= l3.MacAndDestroySlotCount {
		return l3.ResultFail, nil
	}
	slot := payload[0]

	if m.macSlots[slot] == nil {
		secret := make([]byte, 32)
		if _, err := rand.Read(secret); err != nil {
			return l3.ResultFail, nil
		}
		m.macSlots[slot] = secret
	}

	mac := sha256.New()
	mac.Write(m.macSlots[slot])
	mac.Write(payload[1:33])
	tag := mac.Sum(nil)

	next := sha256.Sum256(append(m.macSlots[slot], 0x00))
	m.macSlots[slot] = next[:]

	return l3.ResultOK, tag
}

// p256KeyFromSecret deterministically derives a P-256 key from a
// 32-byte secret, reducing it into [1, N-1].
func p256KeyFromSecret(secret []byte) (*ecdsa.PrivateKey, error) {
	curve := elliptic.P256()
	k := new(big.Int).SetBytes(secret)
	k.Mod(k, new(big.Int).Sub(curve.Params().N, big.NewInt(1)))
	k.Add(k, big.NewInt(1))

	key := new(ecdsa.PrivateKey)
	key.Curve = curve
	key.D = k
	key.X, key.Y = curve.ScalarBaseMult(k.Bytes())
	return key, nil
}

// p256PublicBytes renders the public key as x || y, 32 bytes each.
func p256PublicBytes(key *ecdsa.PrivateKey) []byte {
	out := make([]byte, 64)
	key.X.FillBytes(out[:32])
	key.Y.FillBytes(out[32:])
	return out
}
