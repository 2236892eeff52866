package embedcache

import (
	"encoding/binary"
	"math"
)

// Wire format for remote stores: a 4-byte little-endian dimension header
// followed by dimension float32 values. The header doubles as a shape check
// on read.

func encodeVector(vec []float32) []byte {
	buf := make([]byte, 4+4*len(vec))
	binary.LittleEndian.PutUint32(buf, uint32(len(vec)))
	for i, v := range vec {
		binary.LittleEndian.PutUint32(buf[4+4*i:], math.Float32bits(v))
	}
	return buf
}

// decodeVector returns ok=false for any malformed payload.
func decodeVector(buf []byte) ([]float32, bool) {
	if len(buf) < 4 {
		return nil, false
	}
	dim := binary.LittleEndian.Uint32(buf)
	if dim == 0 || len(buf) != int(4+4*dim) {
		return nil, false
	}
	vec := make([]float32, dim)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[4+4*i:]))
	}
	return vec, true
}
