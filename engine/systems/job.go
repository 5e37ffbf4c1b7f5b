package systems

import (
	"errors"
	"fmt"
	"sync"

	"github.com/spaghettifunk/prism/engine/core"
)

// Job is one unit of work for the pool. OnComplete or OnFailure runs on the
// worker right after Run.
type Job struct {
	Name       string
	Run        func() error
	OnComplete func()
	OnFailure  func(err error)
}

type JobSystem struct {
	numWorkers int
	jobQueue   chan Job
	wg         sync.WaitGroup

	mu     sync.Mutex
	closed bool
}

var (
	ErrNoWorkers           = fmt.Errorf("attempting to create worker pool with less than 1 worker")
	ErrNegativeChannelSize = fmt.Errorf("attempting to create worker pool with a negative channel size")
	ErrJobSystemClosed     = errors.New("job system is shut down")
)

func NewJobSystem(numWorkers int, channelSize int) (*JobSystem, error) {
	if numWorkers <= 0 {
		return nil, ErrNoWorkers
	}
	if channelSize < 0 {
		return nil, ErrNegativeChannelSize
	}

	js := &JobSystem{
		numWorkers: numWorkers,
		jobQueue:   make(chan Job, channelSize),
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
					core.LogError("job %s failed: %s", job.Name, err)
					if job.OnFailure != nil {
						job.OnFailure(err)
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

func (js *JobSystem) Workers() int { return js.numWorkers }

// Shutdown waits for queued jobs and stops the workers.
func (js *JobSystem) Shutdown() error {
	js.mu.Lock()
	if js.closed {
		js.mu.Unlock()
		return nil
	}
	js.closed = true
	close(js.jobQueue)
	js.mu.Unlock()
	js.wg.Wait()
	return nil
}

// Submit queues jt, blocking while the queue is full.
func (js *JobSystem) Submit(jt Job) error {
	js.mu.Lock()
	defer js.mu.Unlock()
	if js.closed {
		return ErrJobSystemClosed
	}
	js.jobQueue <- jt
	return nil
}

// AddWorkNonBlocking queues jt from a new goroutine and returns immediately.
func (js *JobSystem) AddWorkNonBlocking(jt Job) {
	go func() {
		if err := js.Submit(jt); err != nil {
			core.LogWarn("job %s dropped: %s", jt.Name, err)
		}
	}()
}

// RunAll runs fn(i) for i in [0, n) on the pool and waits. The returned
// error joins every failure.
func (js *JobSystem) RunAll(name string, n int, fn func(i int) error) error {
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
	)
	for i := 0; i < n; i++ {
		i := i
		wg.Add(1)
		job := Job{
			Name:       fmt.Sprintf("%s[%d]", name, i),
			Run:        func() error { return fn(i) },
			OnComplete: wg.Done,
			OnFailure: func(err error) {
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
				wg.Done()
			},
		}
		if err := js.Submit(job); err != nil {
			wg.Done()
			mu.Lock()
			errs = append(errs, err)
			mu.Unlock()
		}
	}
	wg.Wait()
	return errors.Join(errs...)
}
