package mpath

import (
	"time"

	"go.uber.org/zap"
)

// EventType identifies a state change worth telling the outside world about
type EventType string

const (
	EventPathFailed       EventType = "path_failed"
	EventPathReinstated   EventType = "path_reinstated"
	EventGroupSwitched    EventType = "group_switched"
	EventGroupBypassed    EventType = "group_bypassed"
	EventGroupEnabled     EventType = "group_enabled"
	EventActivationFailed EventType = "activation_failed"
	EventPolicyChanged    EventType = "policy_changed"
)

// Event describes one state change of a device
type Event struct {
	Type   EventType `json:"type"`
	Device string    `json:"device"`
	Group  uint      `json:"group,omitempty"`
	Path   string    `json:"path,omitempty"`
	Time   time.Time `json:"time"`
}

// Subscribe registers fn for every future event. Callbacks run on the
// device's work queue, never under the device lock.
func (m *Multipath) Subscribe(fn func(Event)) {
	m.subsMu.Lock()
	defer m.subsMu.Unlock()
	m.subscribers = append(m.subscribers, fn)
}

// raise records an event for delivery. Must be called with m.mu held.
func (m *Multipath) raise(ev Event) {
	ev.Device = m.name
	ev.Time = time.Now()
	m.events = append(m.events, ev)
	if m.eventWork != nil {
		m.queue.Queue(m.eventWork)
	}
}

func (m *Multipath) triggerEvents() {
	m.mu.Lock()
	events := m.events
	m.events = nil
	m.mu.Unlock()

	m.subsMu.RLock()
	subs := m.subscribers
	m.subsMu.RUnlock()

	for _, ev := range events {
		m.logger.Debug("device event",
			zap.String("type", string(ev.Type)),
			zap.Uint("group", ev.Group),
			zap.String("path", ev.Path))
		for _, fn := range subs {
			fn(ev)
		}
	}
}
