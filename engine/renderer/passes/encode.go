package passes

import (
	"encoding/binary"
	m "math"

	"github.com/spaghettifunk/simcam/engine/math"
)

func appendFloats(out []byte, values ...float32) []byte {
	for _, v := range values {
		out = binary.LittleEndian.AppendUint32(out, m.Float32bits(v))
	}
	return out
}

func encodeFloats(values ...float32) []byte {
	return appendFloats(make([]byte, 0, len(values)*4), values...)
}

func appendMat4(out []byte, mt math.Mat4) []byte {
	return appendFloats(out, mt.Data[:]...)
}

// DecodeFloats decodes little-endian float32 values.
func DecodeFloats(data []byte) []float32 {
	out := make([]float32, len(data)/4)
	for i := range out {
		out[i] = m.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return out
}

// DecodeMat4 decodes a mat4 at the start of data.
func DecodeMat4(data []byte) math.Mat4 {
	var mt math.Mat4
	copy(mt.Data[:], DecodeFloats(data[:64]))
	return mt
}
