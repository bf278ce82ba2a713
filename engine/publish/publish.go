package publish

import (
	"time"

	"github.com/google/uuid"
)

const EncodingBGRA8 = "bgra8"

/**
 * @brief A captured camera frame, laid out like a ROS sensor image.
 */
type Frame struct {
	/** @brief Monotonic frame index of the render loop. */
	Sequence uint64
	/** @brief The capture session the frame belongs to. */
	Session   uuid.UUID
	FrameID   string
	Timestamp time.Time
	Width     uint32
	Height    uint32
	/** @brief Bytes per row. */
	Stride   uint32
	Encoding string
	Data     []byte
}

/**
 * @brief Receives captured frames. Publish must not block the render loop.
 */
type Sink interface {
	Publish(frame Frame) error
	Close() error
}

// Discard drops every frame.
type Discard struct{}

func (Discard) Publish(Frame) error { return nil }

func (Discard) Close() error { return nil }
