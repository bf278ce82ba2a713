package core

import (
	"errors"
	"sync"
)

/**
 * @brief A unit of work for the job system. OnComplete or OnFailure runs on
 * the worker after Run returns.
 */
type JobTask struct {
	Name       string
	Run        func() error
	OnComplete func()
	OnFailure  func(err error)
}

var (
	ErrNoWorkers           = errors.New("attempting to create worker pool with less than 1 worker")
	ErrNegativeChannelSize = errors.New("attempting to create worker pool with a negative channel size")
	ErrJobQueueFull        = errors.New("job queue full")
	ErrJobSystemStopped    = errors.New("job system stopped")
)

type JobSystem struct {
	numWorkers int
	jobQueue   chan JobTask
	wg         sync.WaitGroup

	mutex   sync.RWMutex
	stopped bool
}

func NewJobSystem(numWorkers int, channelSize int) (*JobSystem, error) {
	if numWorkers <= 0 {
		return nil, ErrNoWorkers
	}
	if channelSize < 0 {
		return nil, ErrNegativeChannelSize
	}

	js := &JobSystem{
		numWorkers: numWorkers,
		jobQueue:   make(chan JobTask, channelSize),
	}
	js.start()
	return js, nil
}

func (js *JobSystem) start() {
	for i := 0; i < js.numWorkers; i++ {
		js.wg.Add(1)
		go func() {
			defer js.wg.Done()
			for job := range js.jobQueue {
				if err := job.Run(); err != nil {
					if job.OnFailure != nil {
						job.OnFailure(err)
					} else {
						LogError("job %s: %s", job.Name, err.Error())
					}
					continue
				}
				if job.OnComplete != nil {
					job.OnComplete()
				}
			}
		}()
	}
}

/**
 * @brief Queues a job, waiting for room in the queue.
 */
func (js *JobSystem) Submit(jt JobTask) error {
	js.mutex.RLock()
	defer js.mutex.RUnlock()
	if js.stopped {
		return ErrJobSystemStopped
	}
	js.jobQueue <- jt
	return nil
}

// TrySubmit queues a job or returns ErrJobQueueFull without waiting.
func (js *JobSystem) TrySubmit(jt JobTask) error {
	js.mutex.RLock()
	defer js.mutex.RUnlock()
	if js.stopped {
		return ErrJobSystemStopped
	}
	select {
	case js.jobQueue <- jt:
		return nil
	default:
		return ErrJobQueueFull
	}
}

/**
 * @brief Shuts the job system down. Queued jobs still run; Shutdown returns
 * once every worker exited.
 */
func (js *JobSystem) Shutdown() error {
	js.mutex.Lock()
	if js.stopped {
		js.mutex.Unlock()
		return nil
	}
	js.stopped = true
	close(js.jobQueue)
	js.mutex.Unlock()
	js.wg.Wait()
	return nil
}
