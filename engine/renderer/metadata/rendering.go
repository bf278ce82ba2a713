package metadata

/** @brief Determines face culling mode during rendering. */
type FaceCullMode int

const (
	/** @brief No faces are culled. */
	FaceCullModeNone FaceCullMode = 0x0
	/** @brief Only front faces are culled. */
	FaceCullModeFront FaceCullMode = 0x1
	/** @brief Only back faces are culled. */
	FaceCullModeBack FaceCullMode = 0x2
	/** @brief Both front and back faces are culled. */
	FaceCullModeFrontAndBack FaceCullMode = 0x3
)

/** @brief Depth comparison used by the depth test. */
type CompareOp int

const (
	CompareNever CompareOp = iota
	CompareLess
	CompareLessOrEqual
	CompareAlways
)

/** @brief What happens to an attachment's previous contents when a render pass begins. */
type LoadOperation int

const (
	LoadOperationDontCare LoadOperation = iota
	LoadOperationClear
	LoadOperationLoad
)

/** @brief Whether an attachment's contents are kept when a render pass ends. */
type StoreOperation int

const (
	StoreOperationDontCare StoreOperation = iota
	StoreOperationStore
)
