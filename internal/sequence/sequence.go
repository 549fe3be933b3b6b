// Package sequence provides the single logical sequence on which every sync and
// advertising state transition runs.
//
// Components never lock their own state. Work that blocks (RPCs, file I/O) is
// started on a goroutine and its result is posted back to the sequence, so all
// reads and writes of component state happen in task order on one goroutine.
package sequence

import (
	"context"
	"sync"
)

// Runner accepts tasks for execution on the sequence.
type Runner interface {
	// Post enqueues task. Tasks run in FIFO order, one at a time.
	// Post is safe to call from any goroutine.
	Post(task func())
}

// Loop is a Runner backed by a single goroutine started with Run.
type Loop struct {
	mu      sync.Mutex
	queue   []func()
	wake    chan struct{}
	stopped bool
}

// NewLoop creates an idle loop. Tasks posted before Run are kept until Run starts.
func NewLoop() *Loop {
	return &Loop{
		wake: make(chan struct{}, 1),
	}
}

// Post implements Runner. Tasks posted after the loop stopped are dropped.
func (l *Loop) Post(task func()) {
	l.mu.Lock()
	if l.stopped {
		l.mu.Unlock()
		return
	}
	l.queue = append(l.queue, task)
	l.mu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}
}

// Run drains tasks until ctx is cancelled. Pending tasks are discarded on exit.
func (l *Loop) Run(ctx context.Context) error {
	defer func() {
		l.mu.Lock()
		l.stopped = true
		l.queue = nil
		l.mu.Unlock()
	}()

	for {
		task, ok := l.next()
		if ok {
			task()
			// Check for cancellation between tasks so a busy queue cannot starve shutdown.
			if ctx.Err() != nil {
				return nil
			}
			continue
		}

		select {
		case <-l.wake:
		case <-ctx.Done():
			return nil
		}
	}
}

func (l *Loop) next() (func(), bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.queue) == 0 {
		return nil, false
	}
	task := l.queue[0]
	l.queue[0] = nil
	l.queue = l.queue[1:]
	return task, true
}

// Do posts fn and waits until it has run on the sequence or ctx is done.
// It must not be called from the sequence itself.
func Do(ctx context.Context, r Runner, fn func()) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	done := make(chan struct{})
	r.Post(func() {
		defer close(done)
		fn()
	})

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
