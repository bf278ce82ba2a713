package core

import (
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		in   string
		want LogLevel
		ok   bool
	}{
		{"debug", DebugLevel, true},
		{"INFO", InfoLevel, true},
		{" warn ", WarnLevel, true},
		{"error", ErrorLevel, true},
		{"verbose", InfoLevel, false},
	}
	for _, tt := range tests {
		got, ok := ParseLogLevel(tt.in)
		if got != tt.want || ok != tt.ok {
			t.Errorf("ParseLogLevel(%q) = %v, %v; want %v, %v", tt.in, got, ok, tt.want, tt.ok)
		}
	}
}

func TestMetricsCarriesIntervalOvershoot(t *testing.T) {
	m := NewMetrics(time.Second)
	var at []int
	for i := 1; i <= 10; i++ {
		if m.Update(300 * time.Millisecond) {
			at = append(at, i)
		}
	}
	// 3s of frames is three full intervals
	want := []int{4, 7, 10}
	if len(at) != len(want) {
		t.Fatalf("reported after frames %v, want %v", at, want)
	}
	for i := range want {
		if at[i] != want[i] {
			t.Fatalf("reported after frames %v, want %v", at, want)
		}
	}
}

func TestMetricsReportsOncePerInterval(t *testing.T) {
	m := NewMetrics(time.Second)
	reports := 0
	for i := 0; i < 100; i++ {
		if m.Update(time.Second / 50) {
			reports++
		}
	}
	if reports != 2 {
		t.Fatalf("reports = %d, want 2", reports)
	}
	if m.FPS < 49.9 || m.FPS > 50.1 {
		t.Errorf("FPS = %f, want 50", m.FPS)
	}
	if got := m.AverageFPS(); got < 49.9 || got > 50.1 {
		t.Errorf("AverageFPS = %f, want 50", got)
	}
	if m.TotalFrames() != 100 {
		t.Errorf("TotalFrames = %d", m.TotalFrames())
	}
}

func TestClockElapsed(t *testing.T) {
	base := time.Unix(100, 0)
	now := base
	c := &Clock{now: func() time.Time { return now }}
	c.Update()
	if c.Elapsed() != 0 {
		t.Fatalf("unstarted clock advanced")
	}
	c.Start()
	now = base.Add(1500 * time.Millisecond)
	c.Update()
	if c.Elapsed() != 1.5 {
		t.Fatalf("Elapsed = %f, want 1.5", c.Elapsed())
	}
	c.Stop()
	now = base.Add(3 * time.Second)
	c.Update()
	if c.Elapsed() != 1.5 {
		t.Fatalf("stopped clock advanced to %f", c.Elapsed())
	}
}

func TestEventFireStopsAtFirstHandler(t *testing.T) {
	const code SystemEventCode = 0x200
	var calls []string
	first, second := new(int), new(int)
	EventRegister(code, first, func(c SystemEventCode, s, l interface{}, d EventContext) bool {
		calls = append(calls, "first")
		return d.Data.U32[0] == 1
	})
	EventRegister(code, second, func(c SystemEventCode, s, l interface{}, d EventContext) bool {
		calls = append(calls, "second")
		return true
	})
	defer EventUnregister(code, first)
	defer EventUnregister(code, second)

	if EventRegister(code, first, nil) {
		t.Fatalf("duplicate listener registered")
	}

	ctx := EventContext{}
	ctx.Data.U32[0] = 1
	if !EventFire(code, nil, ctx) {
		t.Fatalf("event not handled")
	}
	if len(calls) != 1 || calls[0] != "first" {
		t.Fatalf("calls = %v", calls)
	}
}

func TestJobSystemRunsEveryJob(t *testing.T) {
	if _, err := NewJobSystem(0, 1); err != ErrNoWorkers {
		t.Fatalf("zero workers: %v", err)
	}
	js, err := NewJobSystem(3, 4)
	if err != nil {
		t.Fatal(err)
	}
	var completed, failed atomic.Int32
	boom := errors.New("boom")
	for i := 0; i < 20; i++ {
		i := i
		err := js.Submit(JobTask{
			Name: "job",
			Run: func() error {
				if i%5 == 0 {
					return boom
				}
				return nil
			},
			OnComplete: func() { completed.Add(1) },
			OnFailure: func(err error) {
				if err == boom {
					failed.Add(1)
				}
			},
		})
		if err != nil {
			t.Fatal(err)
		}
	}
	if err := js.Shutdown(); err != nil {
		t.Fatal(err)
	}
	if completed.Load() != 16 || failed.Load() != 4 {
		t.Errorf("completed %d, failed %d", completed.Load(), failed.Load())
	}
	if err := js.Submit(JobTask{Run: func() error { return nil }}); err != ErrJobSystemStopped {
		t.Errorf("submit after shutdown: %v", err)
	}
}

func TestJobSystemTrySubmitWhenFull(t *testing.T) {
	js, err := NewJobSystem(1, 1)
	if err != nil {
		t.Fatal(err)
	}
	release := make(chan struct{})
	started := make(chan struct{})
	block := JobTask{Run: func() error {
		close(started)
		<-release
		return nil
	}}
	if err := js.TrySubmit(block); err != nil {
		t.Fatal(err)
	}
	<-started
	// the worker is busy, so one job fits in the queue and the next does not
	if err := js.TrySubmit(JobTask{Run: func() error { return nil }}); err != nil {
		t.Fatal(err)
	}
	if err := js.TrySubmit(JobTask{Run: func() error { return nil }}); err != ErrJobQueueFull {
		t.Errorf("full queue: %v", err)
	}
	close(release)
	js.Shutdown()
}
