package mpath

import "go.uber.org/zap"

// choosePGPath picks the group and path for the next I/O and stores them as
// the current selection. Must be called with m.mu held.
func (m *Multipath) choosePGPath() {
	if m.validPaths == 0 {
		m.clearCurrent(true)
		return
	}

	if pg := m.nextGroup; pg != nil {
		m.nextGroup = nil
		if m.choosePathInGroup(pg) {
			return
		}
	}

	if pg := m.currentGroup; pg != nil && m.choosePathInGroup(pg) {
		return
	}

	// bypassed groups are only a last resort
	for _, bypassed := range []bool{false, true} {
		for _, pg := range m.groups {
			if pg.bypassed != bypassed {
				continue
			}
			if m.choosePathInGroup(pg) {
				return
			}
		}
	}

	m.clearCurrent(true)
}

// choosePathInGroup asks pg's selector for a path and adopts it
func (m *Multipath) choosePathInGroup(pg *PriorityGroup) bool {
	p, repeat := pg.selector.SelectPath()
	if p == nil {
		return false
	}

	m.currentPath = p
	m.repeatCount = repeat
	if pg != m.currentGroup {
		m.switchGroup(pg)
	}
	return true
}

// switchGroup makes pg current. Groups behind an activating handler hold
// I/O until activation completes.
func (m *Multipath) switchGroup(pg *PriorityGroup) {
	m.currentGroup = pg
	m.pgInitCount = 0

	if _, ok := m.hw.(GroupActivator); ok {
		m.pgInitRequired = true
		m.queueIO = true
	} else {
		m.pgInitRequired = false
		m.queueIO = false
	}

	m.logger.Debug("switched priority group",
		zap.Uint("group", pg.num),
		zap.Bool("activation_required", m.pgInitRequired))
	m.raise(Event{Type: EventGroupSwitched, Group: pg.num})
}
