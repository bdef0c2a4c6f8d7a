package worker

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
)

var ErrPoolStopped = errors.New("worker pool stopped")

type Job = func() error

type task struct {
	id   string
	name string
	job  Job
	done chan error
}

// Pool runs compute-bound jobs on a fixed set of goroutines so callers only wait on a channel.
// The queue bounds how many jobs may be waiting; Do blocks once it is full.
type Pool struct {
	tasks     chan task
	stop      chan struct{}
	drained   chan struct{}
	waitGroup sync.WaitGroup
	stopOnce  sync.Once
	logger    *log.Logger
}

func NewPool(logger *log.Logger, workers, queueSize int) *Pool {
	if workers <= 0 {
		workers = 1
	}
	if queueSize < 0 {
		queueSize = 0
	}
	p := &Pool{
		tasks:   make(chan task, queueSize),
		stop:    make(chan struct{}),
		drained: make(chan struct{}),
		logger:  logger,
	}
	p.waitGroup.Add(workers)
	for i := 0; i < workers; i++ {
		go p.run()
	}
	return p
}

// Do queues job and waits for it to finish. ctx only bounds the wait for a queue slot:
// a started job always runs to completion and Do returns its result.
func (p *Pool) Do(ctx context.Context, name string, job Job) error {
	t := task{
		id:   uuid.NewString(),
		name: name,
		job:  job,
		done: make(chan error, 1),
	}

	select {
	case <-p.stop:
		return ErrPoolStopped
	default:
	}

	select {
	case p.tasks <- t:
	case <-ctx.Done():
		return ctx.Err()
	case <-p.stop:
		return ErrPoolStopped
	}

	select {
	case err := <-t.done:
		return err
	case <-p.drained:
		select {
		case err := <-t.done:
			return err
		default:
			return ErrPoolStopped
		}
	}
}

// Stop lets running jobs finish and waits for the workers to exit.
// Jobs still queued are answered with ErrPoolStopped.
func (p *Pool) Stop() {
	p.stopOnce.Do(func() {
		close(p.stop)
		p.waitGroup.Wait()
		p.drain()
		close(p.drained)
	})
}

func (p *Pool) drain() {
	for {
		select {
		case t := <-p.tasks:
			t.done <- ErrPoolStopped
		default:
			return
		}
	}
}

func (p *Pool) run() {
	defer p.waitGroup.Done()
	for {
		select {
		case <-p.stop:
			return
		case t := <-p.tasks:
			t.done <- p.execute(t)
		}
	}
}

func (p *Pool) execute(t task) (err error) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job %s (%s) panicked: %v", t.name, t.id, r)
		}
		if err != nil {
			p.logger.Printf("job %s (%s) failed after %s: %v\n", t.name, t.id, time.Since(start), err)
		}
	}()
	return t.job()
}
