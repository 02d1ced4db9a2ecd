package workqueue

import "sync"

// Manual is a Queue that only runs work when told to. Tests use it to step
// a device's background work deterministically.
type Manual struct {
	mu    sync.Mutex
	works []*Work
}

// NewManual creates an empty manual queue
func NewManual() *Manual {
	return &Manual{}
}

// Queue implements Queue
func (m *Manual) Queue(w *Work) bool {
	if !w.pending.CompareAndSwap(false, true) {
		return false
	}
	m.mu.Lock()
	m.works = append(m.works, w)
	m.mu.Unlock()
	return true
}

// Pending returns the number of queued work items
func (m *Manual) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.works)
}

// Run executes queued work, including work queued while running, until the
// queue is empty. It returns the number of items executed.
func (m *Manual) Run() int {
	n := 0
	for {
		m.mu.Lock()
		if len(m.works) == 0 {
			m.mu.Unlock()
			return n
		}
		w := m.works[0]
		m.works = m.works[1:]
		m.mu.Unlock()

		w.pending.Store(false)
		w.fn()
		n++
	}
}

// Flush implements Queue by running everything inline
func (m *Manual) Flush() {
	m.Run()
}
