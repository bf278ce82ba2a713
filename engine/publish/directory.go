package publish

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"golang.org/x/image/bmp"

	"github.com/spaghettifunk/simcam/engine/core"
)

var ErrClosed = errors.New("sink closed")

// encoder goroutines per sink
const captureWorkers = 2

/**
 * @brief Writes frames as BMP files from background workers. Frames that
 * arrive while the queue is full are dropped and counted.
 */
type DirectorySink struct {
	dir  string
	jobs *core.JobSystem

	mutex  sync.Mutex
	closed bool

	written atomic.Uint64
	dropped atomic.Uint64
}

func NewDirectorySink(dir string, queue int) (*DirectorySink, error) {
	if queue <= 0 {
		queue = 1
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	jobs, err := core.NewJobSystem(captureWorkers, queue)
	if err != nil {
		return nil, err
	}
	return &DirectorySink{dir: dir, jobs: jobs}, nil
}

func (s *DirectorySink) Publish(frame Frame) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if s.closed {
		return ErrClosed
	}
	err := s.jobs.TrySubmit(core.JobTask{
		Name: fmt.Sprintf("capture %d", frame.Sequence),
		Run:  func() error { return s.write(frame) },
		OnComplete: func() {
			s.written.Add(1)
		},
	})
	if errors.Is(err, core.ErrJobQueueFull) {
		s.dropped.Add(1)
		core.LogDebug("capture queue full, dropping frame %d", frame.Sequence)
		return nil
	}
	return err
}

func (s *DirectorySink) Path(frame Frame) string {
	return filepath.Join(s.dir, fmt.Sprintf("%s_%06d.bmp", frame.FrameID, frame.Sequence))
}

func (s *DirectorySink) write(frame Frame) error {
	img, err := ToImage(frame)
	if err != nil {
		return err
	}
	f, err := os.Create(s.Path(frame))
	if err != nil {
		return err
	}
	if err := bmp.Encode(f, img); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// Close writes the queued frames and stops the workers.
func (s *DirectorySink) Close() error {
	s.mutex.Lock()
	if s.closed {
		s.mutex.Unlock()
		return nil
	}
	s.closed = true
	s.mutex.Unlock()
	return s.jobs.Shutdown()
}

func (s *DirectorySink) Written() uint64 { return s.written.Load() }

func (s *DirectorySink) Dropped() uint64 { return s.dropped.Load() }

/**
 * @brief Converts a bgra8 frame into an RGBA image.
 */
func ToImage(frame Frame) (*image.RGBA, error) {
	if frame.Encoding != EncodingBGRA8 {
		return nil, fmt.Errorf("unsupported encoding %q", frame.Encoding)
	}
	if uint64(frame.Stride)*uint64(frame.Height) > uint64(len(frame.Data)) || frame.Stride < frame.Width*4 {
		return nil, fmt.Errorf("frame %dx%d stride %d with %d bytes", frame.Width, frame.Height, frame.Stride, len(frame.Data))
	}
	img := image.NewRGBA(image.Rect(0, 0, int(frame.Width), int(frame.Height)))
	for y := 0; y < int(frame.Height); y++ {
		row := frame.Data[y*int(frame.Stride):]
		for x := 0; x < int(frame.Width); x++ {
			p := row[x*4:]
			img.SetRGBA(x, y, color.RGBA{R: p[2], G: p[1], B: p[0], A: p[3]})
		}
	}
	return img, nil
}
