// Package workerpool implements a fixed-size pool of goroutines that
// drain a shared task queue under a tomb.Tomb lifecycle.
package workerpool

import (
	"github.com/rs/zerolog/log"
	tomb "gopkg.in/tomb.v2"
)

const taskChanSize = 100

// Function processes one task. Returning a non-nil error kills the
// owning tomb, per tomb.Tomb's Go semantics.
type Function = func(t *tomb.Tomb, task any) error

// Pool is a fixed number of worker goroutines pulling from a shared
// task channel until the tomb dies.
type Pool struct {
	n     int
	tasks chan any
}

func New(size int) *Pool {
	return &Pool{
		n:     size,
		tasks: make(chan any, taskChanSize),
	}
}

// AddTask enqueues a task for a worker to pick up. It blocks if every
// worker is busy and the queue is full.
func (p *Pool) AddTask(task any) {
	p.tasks <- task
}

// Setup starts the pool's workers under t and blocks until t dies.
func (p *Pool) Setup(t *tomb.Tomb, work Function) {
	log.Info().Int("workers", p.n).Msg("starting worker pool")
	for i := 0; i < p.n; i++ {
		t.Go(func() error {
			return p.worker(t, work)
		})
	}
	<-t.Dying()
}

// worker repeatedly pulls tasks off the shared channel until the tomb
// dies. A task that returns an error kills the pool.
func (p *Pool) worker(t *tomb.Tomb, work Function) error {
	for {
		select {
		case <-t.Dying():
			return nil
		case task := <-p.tasks:
			if err := work(t, task); err != nil {
				log.Error().Err(err).Msg("worker task failed")
				return err
			}
		}
	}
}
