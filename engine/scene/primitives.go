package scene

import (
	"fmt"

	"github.com/spaghettifunk/simcam/engine/math"
	"github.com/spaghettifunk/simcam/engine/renderer/metadata"
)

/**
 * @brief A mesh uploaded to device buffers.
 */
type DeviceMesh struct {
	Name     string
	vertices metadata.BufferHandle
	indices  metadata.BufferHandle
	count    uint32
	bounds   math.Extents3D
}

func (m *DeviceMesh) VertexBuffer() metadata.BufferHandle { return m.vertices }
func (m *DeviceMesh) IndexBuffer() metadata.BufferHandle  { return m.indices }
func (m *DeviceMesh) IndexCount() uint32                  { return m.count }
func (m *DeviceMesh) Bounds() math.Extents3D              { return m.bounds }

func (m *DeviceMesh) Destroy(device metadata.Device) {
	if m.vertices != 0 {
		device.DestroyBuffer(m.vertices)
	}
	if m.indices != 0 {
		device.DestroyBuffer(m.indices)
	}
	m.vertices, m.indices, m.count = 0, 0, 0
}

/**
 * @brief Uploads vertices and indices into new host-visible device buffers.
 */
func UploadMesh(device metadata.Device, name string, vertices []metadata.Vertex3D, indices []uint32) (*DeviceMesh, error) {
	if len(vertices) == 0 || len(indices) == 0 || len(indices)%3 != 0 {
		return nil, fmt.Errorf("mesh %q: %d vertices, %d indices", name, len(vertices), len(indices))
	}
	vdata := metadata.EncodeVertices(vertices)
	idata := metadata.EncodeIndices(indices)

	m := &DeviceMesh{Name: name, count: uint32(len(indices)), bounds: boundsOf(vertices)}
	var err error
	m.vertices, err = device.CreateBuffer(metadata.BufferDesc{
		Name:  name + ".vertices",
		Size:  uint64(len(vdata)),
		Usage: metadata.BufferUsageVertex | metadata.BufferUsageHostVisible,
	})
	if err != nil {
		return nil, err
	}
	m.indices, err = device.CreateBuffer(metadata.BufferDesc{
		Name:  name + ".indices",
		Size:  uint64(len(idata)),
		Usage: metadata.BufferUsageIndex | metadata.BufferUsageHostVisible,
	})
	if err != nil {
		m.Destroy(device)
		return nil, err
	}
	if err := device.WriteBuffer(m.vertices, 0, vdata); err != nil {
		m.Destroy(device)
		return nil, err
	}
	if err := device.WriteBuffer(m.indices, 0, idata); err != nil {
		m.Destroy(device)
		return nil, err
	}
	return m, nil
}

func boundsOf(vertices []metadata.Vertex3D) math.Extents3D {
	b := math.Extents3D{Min: vertices[0].Position, Max: vertices[0].Position}
	for _, v := range vertices[1:] {
		p := v.Position
		b.Min = math.NewVec3(min(b.Min.X, p.X), min(b.Min.Y, p.Y), min(b.Min.Z, p.Z))
		b.Max = math.NewVec3(max(b.Max.X, p.X), max(b.Max.Y, p.Y), max(b.Max.Z, p.Z))
	}
	return b
}

/**
 * @brief Generates an axis-aligned box centred on the origin, with outward
 * normals and counter-clockwise front faces.
 */
func BoxGeometry(size math.Vec3, colour math.Vec3) ([]metadata.Vertex3D, []uint32) {
	h := size.MulScalar(0.5)
	type face struct {
		normal, u, v math.Vec3
	}
	faces := []face{
		{math.NewVec3(1, 0, 0), math.NewVec3(0, 0, -1), math.NewVec3(0, 1, 0)},
		{math.NewVec3(-1, 0, 0), math.NewVec3(0, 0, 1), math.NewVec3(0, 1, 0)},
		{math.NewVec3(0, 1, 0), math.NewVec3(1, 0, 0), math.NewVec3(0, 0, -1)},
		{math.NewVec3(0, -1, 0), math.NewVec3(1, 0, 0), math.NewVec3(0, 0, 1)},
		{math.NewVec3(0, 0, 1), math.NewVec3(1, 0, 0), math.NewVec3(0, 1, 0)},
		{math.NewVec3(0, 0, -1), math.NewVec3(-1, 0, 0), math.NewVec3(0, 1, 0)},
	}
	var vertices []metadata.Vertex3D
	var indices []uint32
	for _, f := range faces {
		base := uint32(len(vertices))
		for _, c := range [4][2]float32{{-1, -1}, {1, -1}, {1, 1}, {-1, 1}} {
			p := f.normal.Add(f.u.MulScalar(c[0])).Add(f.v.MulScalar(c[1])).Mul(h)
			vertices = append(vertices, metadata.Vertex3D{
				Position: p,
				Normal:   f.normal,
				Colour:   colour,
				Texcoord: math.NewVec2((c[0]+1)*0.5, (c[1]+1)*0.5),
			})
		}
		indices = append(indices, base, base+1, base+2, base, base+2, base+3)
	}
	return vertices, indices
}

// PlaneGeometry generates a square in the XZ plane facing +Y.
func PlaneGeometry(extent float32, colour math.Vec3) ([]metadata.Vertex3D, []uint32) {
	h := extent * 0.5
	up := math.NewVec3Up()
	vertices := []metadata.Vertex3D{
		{Position: math.NewVec3(-h, 0, h), Normal: up, Colour: colour, Texcoord: math.NewVec2(0, 0)},
		{Position: math.NewVec3(h, 0, h), Normal: up, Colour: colour, Texcoord: math.NewVec2(1, 0)},
		{Position: math.NewVec3(h, 0, -h), Normal: up, Colour: colour, Texcoord: math.NewVec2(1, 1)},
		{Position: math.NewVec3(-h, 0, -h), Normal: up, Colour: colour, Texcoord: math.NewVec2(0, 1)},
	}
	return vertices, []uint32{0, 1, 2, 0, 2, 3}
}

func NewBoxMesh(device metadata.Device, name string, size, colour math.Vec3) (*DeviceMesh, error) {
	v, i := BoxGeometry(size, colour)
	return UploadMesh(device, name, v, i)
}

func NewPlaneMesh(device metadata.Device, name string, extent float32, colour math.Vec3) (*DeviceMesh, error) {
	v, i := PlaneGeometry(extent, colour)
	return UploadMesh(device, name, v, i)
}
