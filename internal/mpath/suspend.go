package mpath

import "go.uber.org/zap"

// Presuspend prepares the device for a freeze. Queueing without a path is
// switched off so in-flight I/O drains instead of hanging; the previous
// policy is restored by Resume. With noflush, requests that would fail for
// lack of a path are pushed back to the submitter instead.
func (m *Multipath) Presuspend(noflush bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.noflush = noflush
	m.suspended = true
	m.setQueueIfNoPath(false, true)

	m.logger.Info("device suspending",
		zap.Bool("noflush", noflush),
		zap.Bool("saved_queue_if_no_path", m.savedQueueIfNoPath))
}

// Postsuspend waits for background work started before the suspend
func (m *Multipath) Postsuspend() {
	m.queue.Flush()
}

// Resume restores the policy saved by Presuspend
func (m *Multipath) Resume() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.queueIfNoPath = m.savedQueueIfNoPath
	m.noflush = false
	m.suspended = false
	if m.queueSize > 0 {
		m.wakeWorker()
	}

	m.logger.Info("device resumed", zap.Bool("queue_if_no_path", m.queueIfNoPath))
}
