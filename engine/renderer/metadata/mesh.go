package metadata

import (
	"encoding/binary"
	m "math"

	"github.com/spaghettifunk/simcam/engine/math"
)

/**
 * @brief The interleaved vertex consumed by the shadow and scene programs.
 */
type Vertex3D struct {
	Position math.Vec3
	Normal   math.Vec3
	Colour   math.Vec3
	Texcoord math.Vec2
}

/** @brief Size in bytes of one encoded Vertex3D. */
const Vertex3DStride = 44

func EncodeVertices(vertices []Vertex3D) []byte {
	out := make([]byte, 0, len(vertices)*Vertex3DStride)
	for _, v := range vertices {
		for _, f := range [...]float32{
			v.Position.X, v.Position.Y, v.Position.Z,
			v.Normal.X, v.Normal.Y, v.Normal.Z,
			v.Colour.X, v.Colour.Y, v.Colour.Z,
			v.Texcoord.X, v.Texcoord.Y,
		} {
			out = binary.LittleEndian.AppendUint32(out, m.Float32bits(f))
		}
	}
	return out
}

func DecodeVertices(data []byte) []Vertex3D {
	n := len(data) / Vertex3DStride
	out := make([]Vertex3D, n)
	f := func(off int) float32 {
		return m.Float32frombits(binary.LittleEndian.Uint32(data[off:]))
	}
	for i := range out {
		b := i * Vertex3DStride
		out[i] = Vertex3D{
			Position: math.NewVec3(f(b), f(b+4), f(b+8)),
			Normal:   math.NewVec3(f(b+12), f(b+16), f(b+20)),
			Colour:   math.NewVec3(f(b+24), f(b+28), f(b+32)),
			Texcoord: math.NewVec2(f(b+36), f(b+40)),
		}
	}
	return out
}

func EncodeIndices(indices []uint32) []byte {
	out := make([]byte, 0, len(indices)*4)
	for _, i := range indices {
		out = binary.LittleEndian.AppendUint32(out, i)
	}
	return out
}

func DecodeIndices(data []byte) []uint32 {
	out := make([]uint32, len(data)/4)
	for i := range out {
		out[i] = binary.LittleEndian.Uint32(data[i*4:])
	}
	return out
}

/**
 * @brief A mesh already uploaded to the device. Meshes are built and owned
 * outside the frame pipeline; the pipeline only draws them.
 */
type Mesh interface {
	VertexBuffer() BufferHandle
	IndexBuffer() BufferHandle
	IndexCount() uint32
	/** @brief Object-space bounds, used for culling. */
	Bounds() math.Extents3D
}
