package mpath

import (
	"fmt"
	"sort"
	"sync"
)

// StatusType selects the status report format
type StatusType int

const (
	// StatusInfo reports live state: queue depth, path health, fail counts
	StatusInfo StatusType = iota
	// StatusTable reproduces the table the device was loaded with
	StatusTable
)

// Selector chooses the next path within one priority group. All methods are
// called with the owning controller's lock held and must not block.
type Selector interface {
	Name() string
	// TableArgs and InfoArgs give the number of per-path words Status emits
	// for the corresponding status type.
	TableArgs() int
	InfoArgs() int
	AddPath(p *Path, args []string) error
	FailPath(p *Path)
	// SelectPath returns the next path and how many I/Os may reuse it,
	// or nil when no path in the group is usable.
	SelectPath() (*Path, uint)
	// Status returns selector-level words when p is nil, per-path words otherwise.
	// Every word is followed by a single space.
	Status(p *Path, kind StatusType) string
}

// Reinstater is implemented by selectors able to take a failed path back
type Reinstater interface {
	ReinstatePath(p *Path) error
}

// IOTracker is implemented by selectors that weigh paths by outstanding I/O
type IOTracker interface {
	StartIO(p *Path, size int)
	EndIO(p *Path, size int)
}

// SelectorFactory builds a selector from its table arguments
type SelectorFactory func(args []string) (Selector, error)

var (
	selectorsMu sync.RWMutex
	selectors   = make(map[string]SelectorFactory)
)

// RegisterSelector makes a selector available to tables under name
func RegisterSelector(name string, factory SelectorFactory) error {
	selectorsMu.Lock()
	defer selectorsMu.Unlock()

	if _, exists := selectors[name]; exists {
		return fmt.Errorf("path selector %s already registered: %w", name, ErrInvalidArgument)
	}
	selectors[name] = factory
	return nil
}

// NewSelector creates a registered selector
func NewSelector(name string, args []string) (Selector, error) {
	selectorsMu.RLock()
	factory, ok := selectors[name]
	selectorsMu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("unknown path selector type %q: %w", name, ErrInvalidArgument)
	}
	return factory(args)
}

// Selectors lists registered selector names
func Selectors() []string {
	selectorsMu.RLock()
	defer selectorsMu.RUnlock()

	names := make([]string, 0, len(selectors))
	for name := range selectors {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func init() {
	_ = RegisterSelector(RoundRobinName, newRoundRobin)
	_ = RegisterSelector(QueueLengthName, newQueueLength)
	_ = RegisterSelector(ServiceTimeName, newServiceTime)
}
