package mpath

import (
	"fmt"
	"strconv"
)

// RoundRobinName is the table name of the round-robin selector
const RoundRobinName = "round-robin"

// defaultRepeatCount is the number of I/Os sent down a path before the
// selector is asked again, when a table does not say otherwise.
const defaultRepeatCount = 1

type rrPath struct {
	path   *Path
	repeat uint
	valid  bool
}

// roundRobin rotates through the group's paths in table order
type roundRobin struct {
	paths  []*rrPath
	index  map[*Path]*rrPath
	cursor int
}

func newRoundRobin(args []string) (Selector, error) {
	if len(args) > 0 {
		return nil, fmt.Errorf("round-robin takes no selector arguments: %w", ErrInvalidArgument)
	}
	return &roundRobin{index: make(map[*Path]*rrPath)}, nil
}

func (s *roundRobin) Name() string   { return RoundRobinName }
func (s *roundRobin) TableArgs() int { return 1 }
func (s *roundRobin) InfoArgs() int  { return 0 }

func (s *roundRobin) AddPath(p *Path, args []string) error {
	if len(args) > 1 {
		return fmt.Errorf("round-robin: too many path arguments: %w", ErrInvalidArgument)
	}
	repeat, err := parseRepeatCount(args)
	if err != nil {
		return err
	}

	pi := &rrPath{path: p, repeat: repeat, valid: true}
	s.paths = append(s.paths, pi)
	s.index[p] = pi
	return nil
}

func (s *roundRobin) FailPath(p *Path) {
	if pi, ok := s.index[p]; ok {
		pi.valid = false
	}
}

func (s *roundRobin) ReinstatePath(p *Path) error {
	pi, ok := s.index[p]
	if !ok {
		return fmt.Errorf("round-robin: unknown path %s: %w", p.Name(), ErrInvalidArgument)
	}
	pi.valid = true
	return nil
}

// SelectPath walks forward from the cursor, wrapping once
func (s *roundRobin) SelectPath() (*Path, uint) {
	n := len(s.paths)
	for i := 0; i < n; i++ {
		idx := (s.cursor + i) % n
		pi := s.paths[idx]
		if pi.valid && pi.path.active {
			s.cursor = (idx + 1) % n
			return pi.path, pi.repeat
		}
	}
	return nil, 0
}

func (s *roundRobin) Status(p *Path, kind StatusType) string {
	if p == nil {
		return "0 "
	}
	if kind == StatusTable {
		if pi, ok := s.index[p]; ok {
			return fmt.Sprintf("%d ", pi.repeat)
		}
	}
	return ""
}

// parseRepeatCount reads the optional first per-path argument
func parseRepeatCount(args []string) (uint, error) {
	if len(args) == 0 {
		return defaultRepeatCount, nil
	}
	n, err := strconv.ParseUint(args[0], 10, 32)
	if err != nil || n == 0 {
		return 0, fmt.Errorf("invalid repeat count %q: %w", args[0], ErrInvalidArgument)
	}
	return uint(n), nil
}
