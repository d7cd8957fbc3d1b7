package batch

import (
	"encoding/binary"
	"math"
)

func decodeF32(b []byte) float32 {
	return math.Float32frombits(binary.LittleEndian.Uint32(b))
}
