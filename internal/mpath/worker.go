package mpath

import (
	"go.uber.org/zap"
)

// processQueuedIOs is the device's background work: it starts pending group
// activation and redispatches held requests once they can move.
func (m *Multipath) processQueuedIOs() {
	var (
		mustQueue bool
		initPath  *Path
		bypassed  bool
	)

	m.mu.Lock()
	if m.queueSize == 0 {
		m.mu.Unlock()
		return
	}

	if m.currentPath == nil {
		m.choosePGPath()
	}
	p := m.currentPath

	if !m.closed {
		mustQueue = (p != nil && m.queueIO) || (p == nil && m.queueIfNoPath)

		if p != nil && m.pgInitRequired && !m.pgInitInProgress {
			m.pgInitRequired = false
			m.pgInitInProgress = true
			m.pgInitCount++
			initPath = p
			bypassed = p.group.bypassed
		}
	}
	m.mu.Unlock()

	if initPath != nil {
		m.activate(initPath, bypassed)
	}
	if !mustQueue {
		m.dispatchQueued()
	}
}

// dispatchQueued redispatches every held request in FIFO order
func (m *Multipath) dispatchQueued() {
	m.mu.Lock()
	reqs := m.queued
	m.queued = nil
	m.mu.Unlock()

	for _, req := range reqs {
		res, err := m.mapIO(req, true)
		switch res {
		case MapRemapped:
			m.issuer.Issue(req)
		case MapFailed:
			req.Complete(err)
		case MapRequeue:
			m.PushBack(req)
		case MapQueued:
		}
	}
}

func (m *Multipath) activate(p *Path, bypassed bool) {
	ga, ok := m.hw.(GroupActivator)
	if !ok {
		m.pgInitDone(p, 0)
		return
	}

	m.logger.Debug("activating priority group",
		zap.Uint("group", p.group.num),
		zap.String("path", p.Name()))
	ga.ActivateGroup(bypassed, p, func(action ErrorAction) {
		m.pgInitDone(p, action)
	})
}

// pgInitDone is the activation completion. It may run on any goroutine.
func (m *Multipath) pgInitDone(p *Path, action ErrorAction) {
	m.mu.Lock()
	defer m.mu.Unlock()

	pg := p.group
	if action != 0 && pg.bypassed {
		action |= ActionFailPath
	}

	if action.Has(ActionRetryActivation) {
		action &^= ActionRetryActivation
		if m.pgInitCount <= m.pgInitRetries {
			m.pgInitRequired = true
			m.logger.Info("retrying group activation",
				zap.Uint("group", pg.num),
				zap.Uint("attempt", m.pgInitCount))
		} else {
			action |= ActionFailPath
		}
	}

	if action.Has(ActionFailPath) {
		m.failPathLocked(p, nil)
	}
	if action.Has(ActionBypassGroup) {
		m.bypassGroupLocked(pg, true)
	}

	if action != 0 {
		m.logger.Error("group activation failed",
			zap.Uint("group", pg.num),
			zap.String("path", p.Name()),
			zap.Stringer("action", action))
		m.raise(Event{Type: EventActivationFailed, Group: pg.num, Path: p.Name()})
		m.clearCurrent(true)
	}
	if !m.pgInitRequired {
		m.queueIO = false
	}
	m.pgInitInProgress = false
	m.wakeWorker()
}

// failPathLocked takes p out of service. cause may be nil.
func (m *Multipath) failPathLocked(p *Path, cause error) {
	if !p.active {
		return
	}

	p.group.selector.FailPath(p)
	p.active = false
	p.failCount++
	m.validPaths--
	if p == m.currentPath {
		m.clearCurrent(false)
	}

	m.logger.Warn("path failed",
		zap.String("path", p.Name()),
		zap.Uint("group", p.group.num),
		zap.Uint("fail_count", p.failCount),
		zap.Uint("valid_paths", m.validPaths),
		zap.Error(cause))
	m.raise(Event{Type: EventPathFailed, Group: p.group.num, Path: p.Name()})
}

// reinstatePathLocked puts p back into service
func (m *Multipath) reinstatePathLocked(p *Path) error {
	if p.active {
		return nil
	}

	r, ok := p.group.selector.(Reinstater)
	if !ok {
		return ErrInvalidState
	}
	if err := r.ReinstatePath(p); err != nil {
		return err
	}

	p.active = true
	m.validPaths++
	m.clearCurrent(true)
	if m.queueSize > 0 {
		m.wakeWorker()
	}

	m.logger.Info("path reinstated",
		zap.String("path", p.Name()),
		zap.Uint("group", p.group.num),
		zap.Uint("valid_paths", m.validPaths))
	m.raise(Event{Type: EventPathReinstated, Group: p.group.num, Path: p.Name()})
	return nil
}

func (m *Multipath) bypassGroupLocked(pg *PriorityGroup, bypassed bool) {
	pg.bypassed = bypassed
	m.clearCurrent(true)

	typ := EventGroupEnabled
	if bypassed {
		typ = EventGroupBypassed
	}
	m.logger.Info("priority group state changed",
		zap.Uint("group", pg.num),
		zap.Bool("bypassed", bypassed))
	m.raise(Event{Type: typ, Group: pg.num})
}
