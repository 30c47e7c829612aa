package crypto

import (
	"runtime"
)

// Memzero overwrites each buffer with zeros.
//
// The KeepAlive barrier prevents the compiler from treating the stores
// as dead when the buffer is not read again, so key material is cleared
// even on the last use before the memory becomes unreachable.
func Memzero(bufs ...[]byte) {
	for _, b := range bufs {
		for i := range b {
			b[i] = 0
		}
		runtime.KeepAlive(b)
	}
}
