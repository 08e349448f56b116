package vector

import (
	"encoding/binary"
	"math"
)

// EncodeFloat32 serializes a vector as little-endian float32 bytes, the
// format used for embedding blobs in storage and index files.
func EncodeFloat32(s []float32) []byte {
	const size = 4
	out := make([]byte, len(s)*size)
	for i, v := range s {
		binary.LittleEndian.PutUint32(out[i*size:(i+1)*size], math.Float32bits(v))
	}
	return out
}

// DecodeFloat32 deserializes little-endian float32 bytes into a vector.
func DecodeFloat32(b []byte) []float32 {
	const size = 4
	out := make([]float32, len(b)/size)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*size : (i+1)*size]))
	}
	return out
}
