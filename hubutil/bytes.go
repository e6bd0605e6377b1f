package hubutil

import (
	"bytes"
	"encoding/binary"
	"math/big"

	"github.com/spilman/hub/logging"
)

// Byte codecs for db keys and the canonical state encoding.

// U64tB converts a uint64 to 8 bytes.  Always works.
func U64tB(i uint64) []byte {
	var buf bytes.Buffer
	binary.Write(&buf, binary.BigEndian, i)
	return buf.Bytes()
}

// BtU64 converts 8 bytes to a uint64.  Returns ffff... if it doesn't work.
func BtU64(b []byte) uint64 {
	if len(b) != 8 {
		logging.Errorf("Got %x to BtU64 (%d bytes)\n", b, len(b))
		return 0xffffffffffffffff
	}
	var i uint64
	buf := bytes.NewBuffer(b)
	binary.Read(buf, binary.BigEndian, &i)
	return i
}

// I64tB converts an int64 to 8 bytes.  Always works.
func I64tB(i int64) []byte {
	var buf bytes.Buffer
	binary.Write(&buf, binary.BigEndian, i)
	return buf.Bytes()
}

// BtI64 converts 8 bytes to an int64.  Returns 7fff... if it doesn't work.
func BtI64(b []byte) int64 {
	if len(b) != 8 {
		logging.Errorf("Got %x to BtI64 (%d bytes)\n", b, len(b))
		return 0x7fffffffffffffff
	}
	var i int64
	buf := bytes.NewBuffer(b)
	binary.Read(buf, binary.BigEndian, &i)
	return i
}

// BigtB32 converts a non-negative big.Int to a 32 byte big-endian slice.
// Amounts above 2^256-1 don't happen; if one does it gets truncated and
// logged, same deal as the fixed-width int codecs.
func BigtB32(i *big.Int) []byte {
	var out [32]byte
	b := i.Bytes()
	if len(b) > 32 {
		logging.Errorf("Got %d byte big.Int to BigtB32\n", len(b))
		b = b[len(b)-32:]
	}
	copy(out[32-len(b):], b)
	return out[:]
}
