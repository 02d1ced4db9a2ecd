package mpath

import (
	"fmt"

	"go.uber.org/zap"
)

// MapResult is the outcome of dispatching a request
type MapResult int

const (
	// MapRemapped means the request is bound to req.Path() and the caller
	// must submit it there.
	MapRemapped MapResult = iota
	// MapQueued means the device holds the request until a path is usable
	MapQueued
	// MapRequeue asks the caller to resubmit later, used while suspending
	// without flush.
	MapRequeue
	// MapFailed means the request must be completed with the returned error
	MapFailed
)

func (r MapResult) String() string {
	switch r {
	case MapRemapped:
		return "remapped"
	case MapQueued:
		return "queued"
	case MapRequeue:
		return "requeue"
	case MapFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// EndIOResult is the outcome of completion handling
type EndIOResult int

const (
	// EndIODone means the request is finished; complete it with the returned error
	EndIODone EndIOResult = iota
	// EndIORequeue asks the caller to resubmit later
	EndIORequeue
	// EndIOIncomplete means the device took the request back for redispatch
	EndIOIncomplete
)

func (r EndIOResult) String() string {
	switch r {
	case EndIODone:
		return "done"
	case EndIORequeue:
		return "requeue"
	case EndIOIncomplete:
		return "incomplete"
	default:
		return "unknown"
	}
}

// Map dispatches a fresh request. On MapRemapped the caller submits the
// request to req.Path().Device() and reports the outcome through EndIO.
func (m *Multipath) Map(req *Request) (MapResult, error) {
	req.record()
	return m.mapIO(req, false)
}

func (m *Multipath) mapIO(req *Request, wasQueued bool) (MapResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	req.path = nil
	if wasQueued {
		m.queueSize--
	}
	if m.closed {
		return MapFailed, ErrClosed
	}

	if m.currentPath == nil || (!m.queueIO && m.repeatCount > 0 && m.useRepeat()) {
		m.choosePGPath()
	}
	p := m.currentPath

	switch {
	case (p != nil && m.queueIO) || (p == nil && m.queueIfNoPath):
		m.queued = append(m.queued, req)
		m.queueSize++
		if (m.pgInitRequired && !m.pgInitInProgress) || !m.queueIO {
			m.wakeWorker()
		}
		return MapQueued, nil

	case p != nil:
		req.path = p
		if t, ok := p.group.selector.(IOTracker); ok {
			t.StartIO(p, req.Size())
		}
		return MapRemapped, nil

	case m.mustPushBack():
		return MapRequeue, nil

	default:
		return MapFailed, ErrNoUsablePath
	}
}

// useRepeat consumes one reuse of the current path and reports whether the
// selector must be asked again
func (m *Multipath) useRepeat() bool {
	m.repeatCount--
	return m.repeatCount == 0
}

// mustPushBack reports whether I/O without a path goes back to the submitter
// instead of failing. This holds while a noflush suspend has turned queueing off.
func (m *Multipath) mustPushBack() bool {
	return m.noflush && m.queueIfNoPath != m.savedQueueIfNoPath
}

// EndIO handles the completion of a remapped request. err is the status the
// path device returned.
func (m *Multipath) EndIO(req *Request, err error) (EndIOResult, error) {
	p := req.path
	if p != nil {
		m.mu.Lock()
		if t, ok := p.group.selector.(IOTracker); ok {
			t.EndIO(p, req.details.size())
		}
		m.mu.Unlock()
	}

	if err == nil {
		return EndIODone, nil
	}
	if isTransient(req, err) {
		return EndIODone, err
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return EndIODone, err
	}
	if m.validPaths == 0 {
		switch {
		case m.mustPushBack():
			m.mu.Unlock()
			return EndIORequeue, nil
		case !m.queueIfNoPath:
			m.mu.Unlock()
			return EndIODone, err
		}
		m.mu.Unlock()
		return m.requeueCompleted(req)
	}
	m.mu.Unlock()

	action := ActionFailPath
	if c, ok := m.hw.(ErrorClassifier); ok {
		action = c.ClassifyError(req, err)
	}

	if p != nil {
		m.mu.Lock()
		if action.Has(ActionFailPath) {
			m.failPathLocked(p, err)
		}
		if action.Has(ActionBypassGroup) {
			m.bypassGroupLocked(p.group, true)
		}
		m.mu.Unlock()
	}

	if action.Has(ActionHardError) {
		m.logger.Debug("hard error, not retrying",
			zap.String("request", req.ID),
			zap.Error(err))
		return EndIODone, err
	}
	return m.requeueCompleted(req)
}

// requeueCompleted puts a failed request back on the device queue. A device
// closed since the completion arrived no longer drains its queue, so the
// request fails with ErrClosed instead.
func (m *Multipath) requeueCompleted(req *Request) (EndIOResult, error) {
	req.restore()

	m.mu.Lock()
	defer m.mu.Unlock()

	req.path = nil
	if m.closed {
		return EndIODone, ErrClosed
	}
	m.queued = append(m.queued, req)
	m.queueSize++
	if !m.queueIO {
		m.wakeWorker()
	}
	return EndIOIncomplete, nil
}

// PushBack hands a request back to the issuer for a later retry. Requests
// pushed back more often than the requeue limit fail with ErrNoUsablePath.
func (m *Multipath) PushBack(req *Request) {
	req.requeues++
	if m.requeueLimit > 0 && req.requeues > m.requeueLimit {
		m.logger.Warn("request exceeded requeue limit",
			zap.String("request", req.ID),
			zap.Int("requeues", req.requeues))
		req.Complete(fmt.Errorf("requeued %d times: %w", req.requeues-1, ErrNoUsablePath))
		return
	}
	req.restore()
	m.issuer.Requeue(req)
}
