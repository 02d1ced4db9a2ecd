package mpath

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"
)

// Message runs one administrative command:
//
//	queue_if_no_path | fail_if_no_path
//	disable_group <n> | enable_group <n> | switch_group <n>
//	fail_path <id> | reinstate_path <id>
func (m *Multipath) Message(line string) error {
	argv := strings.Fields(line)

	switch len(argv) {
	case 1:
		switch argv[0] {
		case "queue_if_no_path":
			m.SetQueueIfNoPath(true)
			return nil
		case "fail_if_no_path":
			m.SetQueueIfNoPath(false)
			return nil
		}
	case 2:
		switch argv[0] {
		case "disable_group", "enable_group", "switch_group":
			n, err := strconv.ParseUint(argv[1], 10, 32)
			if err != nil {
				return &MessageError{
					Command: argv[0],
					Reason:  fmt.Sprintf("invalid group number %q", argv[1]),
					Err:     ErrInvalidArgument,
				}
			}
			switch argv[0] {
			case "disable_group":
				return m.BypassGroup(uint(n), true)
			case "enable_group":
				return m.BypassGroup(uint(n), false)
			default:
				return m.SwitchGroup(uint(n))
			}
		case "fail_path":
			return m.FailPath(argv[1])
		case "reinstate_path":
			return m.ReinstatePath(argv[1])
		}
	}

	m.logger.Warn("unrecognised message", zap.String("message", line))
	return &MessageError{
		Reason: fmt.Sprintf("unrecognised message %q", line),
		Err:    ErrInvalidArgument,
	}
}

// SetQueueIfNoPath sets the no-path policy and its saved copy. Turning
// queueing off fails the requests held for lack of a path.
func (m *Multipath) SetQueueIfNoPath(queue bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.setQueueIfNoPath(queue, false)
	m.raise(Event{Type: EventPolicyChanged})
}

// setQueueIfNoPath updates the policy. With saveOld the previous value is
// kept for Resume, otherwise the saved copy follows the new value.
func (m *Multipath) setQueueIfNoPath(queue, saveOld bool) {
	if saveOld {
		m.savedQueueIfNoPath = m.queueIfNoPath
	} else {
		m.savedQueueIfNoPath = queue
	}
	m.queueIfNoPath = queue
	if !queue && m.queueSize > 0 {
		m.wakeWorker()
	}
}

// BypassGroup sets or clears the bypass flag of group num
func (m *Multipath) BypassGroup(num uint, bypassed bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	pg, err := m.group(num)
	if err != nil {
		return withCommand(err, bypassCommand(bypassed))
	}
	m.bypassGroupLocked(pg, bypassed)
	return nil
}

func bypassCommand(bypassed bool) string {
	if bypassed {
		return "disable_group"
	}
	return "enable_group"
}

// SwitchGroup makes num the group the next I/O is sent to. Every group's
// bypass flag is cleared.
func (m *Multipath) SwitchGroup(num uint) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	pg, err := m.group(num)
	if err != nil {
		return withCommand(err, "switch_group")
	}
	for _, g := range m.groups {
		g.bypassed = false
	}
	m.clearCurrent(true)
	m.nextGroup = pg
	m.wakeWorker()

	m.logger.Info("priority group switch requested", zap.Uint("group", num))
	m.raise(Event{Type: EventGroupSwitched, Group: num})
	return nil
}

// FailPath fails every path named id
func (m *Multipath) FailPath(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	paths := m.findPaths(id)
	if len(paths) == 0 {
		return invalidPath("fail_path", id)
	}
	for _, p := range paths {
		m.failPathLocked(p, nil)
	}
	return nil
}

// ReinstatePath reinstates every path named id
func (m *Multipath) ReinstatePath(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	paths := m.findPaths(id)
	if len(paths) == 0 {
		return invalidPath("reinstate_path", id)
	}
	for _, p := range paths {
		if err := m.reinstatePathLocked(p); err != nil {
			m.logger.Warn("reinstate rejected",
				zap.String("path", id),
				zap.Error(err))
			return &MessageError{
				Command: "reinstate_path",
				Reason:  fmt.Sprintf("selector rejected request for %s", id),
				Err:     err,
			}
		}
	}
	return nil
}

func invalidPath(command, id string) error {
	return &MessageError{
		Command: command,
		Reason:  fmt.Sprintf("invalid path identifier %q", id),
		Err:     ErrInvalidArgument,
	}
}

func withCommand(err error, command string) error {
	var me *MessageError
	if errors.As(err, &me) {
		me.Command = command
	}
	return err
}
