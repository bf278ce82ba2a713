package metadata

type BufferUsage uint32

const (
	BufferUsageUniform BufferUsage = 1 << iota
	BufferUsageStorage
	BufferUsageVertex
	BufferUsageIndex
	BufferUsageTransferSrc
	BufferUsageTransferDst
	/** @brief The buffer is mapped and can be written and read from the host. */
	BufferUsageHostVisible
)

func (u BufferUsage) Has(flag BufferUsage) bool {
	return u&flag == flag
}

type BufferDesc struct {
	Name  string
	Size  uint64
	Usage BufferUsage
}
