package core

import (
	"time"

	"github.com/spaghettifunk/simcam/engine/containers"
)

const AVG_COUNT uint8 = 30

// Metrics keeps a rolling frame-time average and a per-interval FPS counter.
type Metrics struct {
	MStimes *containers.RingQueue[float64]
	MSavg   float64
	FPS     float64

	interval     time.Duration
	accumulated  time.Duration
	frames       int
	totalFrames  uint64
	totalElapsed time.Duration
	dropped      uint64
}

func NewMetrics(interval time.Duration) *Metrics {
	if interval <= 0 {
		interval = time.Second
	}
	return &Metrics{
		MStimes:  containers.NewRingQueue[float64](int(AVG_COUNT)),
		interval: interval,
	}
}

// Update records one rendered frame. It returns true when an interval has elapsed
// and FPS holds a fresh value.
func (m *Metrics) Update(frameElapsed time.Duration) bool {
	frameMS := float64(frameElapsed) / float64(time.Millisecond)
	m.MStimes.Push(frameMS)
	if m.MStimes.IsFull() {
		m.MSavg = 0
		m.MStimes.Each(func(ms float64) { m.MSavg += ms })
		m.MSavg /= float64(m.MStimes.Len())
	}

	m.frames++
	m.totalFrames++
	m.accumulated += frameElapsed
	m.totalElapsed += frameElapsed
	if m.accumulated >= m.interval {
		m.FPS = float64(m.frames) / m.accumulated.Seconds()
		// keep the overshoot so intervals do not drift
		m.accumulated -= m.interval
		m.frames = 0
		return true
	}
	return false
}

// Dropped counts a frame abandoned on the resize path.
func (m *Metrics) Dropped() {
	m.dropped++
}

func (m *Metrics) DroppedFrames() uint64 {
	return m.dropped
}

func (m *Metrics) TotalFrames() uint64 {
	return m.totalFrames
}

// AverageFPS is the mean over the whole run.
func (m *Metrics) AverageFPS() float64 {
	if m.totalElapsed <= 0 {
		return 0
	}
	return float64(m.totalFrames) / m.totalElapsed.Seconds()
}

func (m *Metrics) Frame() (float64, float64) {
	return m.FPS, m.MSavg
}
