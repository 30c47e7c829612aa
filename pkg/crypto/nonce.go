// Nonce construction for the encrypted command channel.

package crypto

import (
	"encoding/binary"
)

// CounterNonce renders a 64-bit session counter as the 96-bit
// little-endian AEAD nonce: counter (8 bytes LE) followed by 4 zero
// bytes. Both directions use the same construction with independent
// counters, so a nonce never repeats under the same key.
func CounterNonce(counter uint64) []byte {
	nonce := make([]byte, GCMNonceSize)
	binary.LittleEndian.PutUint64(nonce[:8], counter)
	return nonce
}
