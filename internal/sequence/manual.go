package sequence

import "sync"

// Manual is a Runner for tests. Posted tasks only run when RunUntilIdle is called.
type Manual struct {
	mu    sync.Mutex
	queue []func()
}

// NewManual creates an empty manual runner.
func NewManual() *Manual {
	return &Manual{}
}

// Post implements Runner.
func (m *Manual) Post(task func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queue = append(m.queue, task)
}

// Pending returns the number of queued tasks.
func (m *Manual) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.queue)
}

// RunUntilIdle runs queued tasks, including tasks posted while draining, until
// the queue is empty. It returns the number of tasks run.
func (m *Manual) RunUntilIdle() int {
	ran := 0
	for {
		m.mu.Lock()
		if len(m.queue) == 0 {
			m.mu.Unlock()
			return ran
		}
		task := m.queue[0]
		m.queue = m.queue[1:]
		m.mu.Unlock()

		task()
		ran++
	}
}
