package mpath

import (
	"fmt"
)

// QueueLengthName is the table name of the queue-length selector
const QueueLengthName = "queue-length"

type qlPath struct {
	path     *Path
	repeat   uint
	valid    bool
	inflight int
}

// queueLength sends I/O to the path with the fewest requests in flight.
// Ties go to the path that was selected least recently.
type queueLength struct {
	order []*qlPath // rotation order; the chosen path moves to the back
	index map[*Path]*qlPath
}

func newQueueLength(args []string) (Selector, error) {
	if len(args) > 0 {
		return nil, fmt.Errorf("queue-length takes no selector arguments: %w", ErrInvalidArgument)
	}
	return &queueLength{index: make(map[*Path]*qlPath)}, nil
}

func (s *queueLength) Name() string   { return QueueLengthName }
func (s *queueLength) TableArgs() int { return 1 }
func (s *queueLength) InfoArgs() int  { return 1 }

func (s *queueLength) AddPath(p *Path, args []string) error {
	if len(args) > 1 {
		return fmt.Errorf("queue-length: too many path arguments: %w", ErrInvalidArgument)
	}
	repeat, err := parseRepeatCount(args)
	if err != nil {
		return err
	}

	pi := &qlPath{path: p, repeat: repeat, valid: true}
	s.order = append(s.order, pi)
	s.index[p] = pi
	return nil
}

func (s *queueLength) FailPath(p *Path) {
	if pi, ok := s.index[p]; ok {
		pi.valid = false
	}
}

func (s *queueLength) ReinstatePath(p *Path) error {
	pi, ok := s.index[p]
	if !ok {
		return fmt.Errorf("queue-length: unknown path %s: %w", p.Name(), ErrInvalidArgument)
	}
	pi.valid = true
	return nil
}

func (s *queueLength) SelectPath() (*Path, uint) {
	best := -1
	for i, pi := range s.order {
		if !pi.valid || !pi.path.active {
			continue
		}
		if best < 0 || pi.inflight < s.order[best].inflight {
			best = i
		}
	}
	if best < 0 {
		return nil, 0
	}

	pi := s.order[best]
	s.order = append(append(s.order[:best:best], s.order[best+1:]...), pi)
	return pi.path, pi.repeat
}

func (s *queueLength) StartIO(p *Path, _ int) {
	if pi, ok := s.index[p]; ok {
		pi.inflight++
	}
}

func (s *queueLength) EndIO(p *Path, _ int) {
	if pi, ok := s.index[p]; ok && pi.inflight > 0 {
		pi.inflight--
	}
}

func (s *queueLength) Status(p *Path, kind StatusType) string {
	if p == nil {
		return "0 "
	}
	pi, ok := s.index[p]
	if !ok {
		return ""
	}
	switch kind {
	case StatusInfo:
		return fmt.Sprintf("%d ", pi.inflight)
	default:
		return fmt.Sprintf("%d ", pi.repeat)
	}
}
