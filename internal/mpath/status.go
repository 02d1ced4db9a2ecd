package mpath

import (
	"fmt"
	"strings"
)

// Status renders the device state. StatusTable output parses back into an
// equivalent table; StatusInfo reports queue depth and path health.
func (m *Multipath) Status(kind StatusType) string {
	m.mu.Lock()
	defer m.mu.Unlock()

	var b strings.Builder

	if kind == StatusInfo {
		fmt.Fprintf(&b, "1 %d ", m.queueSize)
	} else {
		b.WriteString(m.featureStatus())
	}

	b.WriteString(hardwareHandlerStatus(m.hw, kind))

	fmt.Fprintf(&b, "%d ", len(m.groups))
	pgNum := uint(1)
	switch {
	case m.nextGroup != nil:
		pgNum = m.nextGroup.num
	case m.currentGroup != nil:
		pgNum = m.currentGroup.num
	}
	fmt.Fprintf(&b, "%d ", pgNum)

	for _, pg := range m.groups {
		sel := pg.selector
		if kind == StatusInfo {
			state := 'E'
			switch {
			case pg.bypassed:
				state = 'D'
			case pg == m.currentGroup:
				state = 'A'
			}
			fmt.Fprintf(&b, "%c ", state)
			b.WriteString(sel.Status(nil, kind))
			fmt.Fprintf(&b, "%d %d ", len(pg.paths), sel.InfoArgs())

			for _, p := range pg.paths {
				health := "F"
				if p.active {
					health = "A"
				}
				fmt.Fprintf(&b, "%s %s %d ", p.Name(), health, p.failCount)
				b.WriteString(sel.Status(p, kind))
			}
			continue
		}

		fmt.Fprintf(&b, "%s ", sel.Name())
		b.WriteString(sel.Status(nil, kind))
		fmt.Fprintf(&b, "%d %d ", len(pg.paths), sel.TableArgs())
		for _, p := range pg.paths {
			fmt.Fprintf(&b, "%s ", p.Name())
			b.WriteString(sel.Status(p, kind))
		}
	}

	return strings.TrimSpace(b.String())
}

// featureStatus reproduces the feature words of the table. The saved policy
// is reported so a suspended device keeps its configured behaviour.
func (m *Multipath) featureStatus() string {
	var words []string
	if m.savedQueueIfNoPath {
		words = append(words, "queue_if_no_path")
	}
	if m.pgInitRetries > 0 {
		words = append(words, "pg_init_retries", fmt.Sprint(m.pgInitRetries))
	}
	if len(words) == 0 {
		return "0 "
	}
	return fmt.Sprintf("%d %s ", len(words), strings.Join(words, " "))
}
