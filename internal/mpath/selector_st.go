package mpath

import (
	"fmt"
	"strconv"
)

// ServiceTimeName is the table name of the service-time selector
const ServiceTimeName = "service-time"

const maxRelativeThroughput = 100

type stPath struct {
	path       *Path
	repeat     uint
	throughput uint64
	valid      bool
	inflight   int64 // bytes
}

// serviceTime estimates how long an I/O would wait on each path from the
// bytes in flight and the path's relative throughput, and picks the shortest.
type serviceTime struct {
	paths []*stPath
	index map[*Path]*stPath
}

func newServiceTime(args []string) (Selector, error) {
	if len(args) > 0 {
		return nil, fmt.Errorf("service-time takes no selector arguments: %w", ErrInvalidArgument)
	}
	return &serviceTime{index: make(map[*Path]*stPath)}, nil
}

func (s *serviceTime) Name() string   { return ServiceTimeName }
func (s *serviceTime) TableArgs() int { return 2 }
func (s *serviceTime) InfoArgs() int  { return 2 }

// AddPath accepts [<repeat_count> [<relative_throughput>]]
func (s *serviceTime) AddPath(p *Path, args []string) error {
	if len(args) > 2 {
		return fmt.Errorf("service-time: too many path arguments: %w", ErrInvalidArgument)
	}
	repeat, err := parseRepeatCount(args)
	if err != nil {
		return err
	}

	throughput := uint64(1)
	if len(args) == 2 {
		throughput, err = strconv.ParseUint(args[1], 10, 32)
		if err != nil || throughput > maxRelativeThroughput {
			return fmt.Errorf("service-time: invalid relative throughput %q: %w", args[1], ErrInvalidArgument)
		}
	}

	pi := &stPath{path: p, repeat: repeat, throughput: throughput, valid: true}
	s.paths = append(s.paths, pi)
	s.index[p] = pi
	return nil
}

func (s *serviceTime) FailPath(p *Path) {
	if pi, ok := s.index[p]; ok {
		pi.valid = false
	}
}

func (s *serviceTime) ReinstatePath(p *Path) error {
	pi, ok := s.index[p]
	if !ok {
		return fmt.Errorf("service-time: unknown path %s: %w", p.Name(), ErrInvalidArgument)
	}
	pi.valid = true
	return nil
}

func (s *serviceTime) SelectPath() (*Path, uint) {
	var best *stPath
	for _, pi := range s.paths {
		if !pi.valid || !pi.path.active {
			continue
		}
		if best == nil || s.less(pi, best) {
			best = pi
		}
	}
	if best == nil {
		return nil, 0
	}
	return best.path, best.repeat
}

// less reports whether a is expected to finish an incoming I/O before b.
// A path with zero throughput loses to any path with a non-zero one.
func (s *serviceTime) less(a, b *stPath) bool {
	if a.throughput == b.throughput {
		return a.inflight < b.inflight
	}
	sa, sb := uint64(a.inflight)+1, uint64(b.inflight)+1
	if sa == sb || a.throughput == 0 || b.throughput == 0 {
		return a.throughput > b.throughput
	}
	la, lb := sa*b.throughput, sb*a.throughput
	if la == lb {
		return a.throughput > b.throughput
	}
	return la < lb
}

func (s *serviceTime) StartIO(p *Path, size int) {
	if pi, ok := s.index[p]; ok {
		pi.inflight += int64(size)
	}
}

func (s *serviceTime) EndIO(p *Path, size int) {
	if pi, ok := s.index[p]; ok {
		pi.inflight -= int64(size)
		if pi.inflight < 0 {
			pi.inflight = 0
		}
	}
}

func (s *serviceTime) Status(p *Path, kind StatusType) string {
	if p == nil {
		return "0 "
	}
	pi, ok := s.index[p]
	if !ok {
		return ""
	}
	switch kind {
	case StatusInfo:
		return fmt.Sprintf("%d %d ", pi.inflight, pi.throughput)
	default:
		return fmt.Sprintf("%d %d ", pi.repeat, pi.throughput)
	}
}
