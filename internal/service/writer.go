package service

import (
	"sync"
	"sync/atomic"
)

// persistJob is one full snapshot of the cart waiting to be written.
type persistJob struct {
	generation uint64
	payload    string
}

// writer drains an unbounded FIFO of snapshots with a single goroutine, so writes
// happen in mutation order and enqueueing never blocks the mutating caller.
type writer struct {
	mu      sync.Mutex
	queue   []persistJob
	closing bool

	wake      chan struct{}
	done      chan struct{}
	persisted atomic.Uint64
	write     func(job persistJob)
}

func newWriter(write func(job persistJob)) *writer {
	return &writer{
		wake:  make(chan struct{}, 1),
		done:  make(chan struct{}),
		write: write,
	}
}

// enqueue appends a job. Jobs are never merged: every mutation gets its own write.
func (w *writer) enqueue(job persistJob) {
	w.mu.Lock()
	w.queue = append(w.queue, job)
	w.mu.Unlock()
	w.signal()
}

// close lets run return once the queue is empty.
func (w *writer) close() {
	w.mu.Lock()
	w.closing = true
	w.mu.Unlock()
	w.signal()
}

// pending returns the number of jobs not yet picked up by the writer goroutine.
func (w *writer) pending() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.queue)
}

func (w *writer) signal() {
	select {
	case w.wake <- struct{}{}:
	default:
	}
}

func (w *writer) run() {
	defer close(w.done)
	for {
		w.mu.Lock()
		if len(w.queue) == 0 {
			closing := w.closing
			w.mu.Unlock()
			if closing {
				return
			}
			<-w.wake
			continue
		}
		job := w.queue[0]
		w.queue[0] = persistJob{}
		w.queue = w.queue[1:]
		w.mu.Unlock()

		w.write(job)
	}
}
