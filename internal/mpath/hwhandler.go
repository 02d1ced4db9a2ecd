package mpath

import (
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"
)

// ErrorAction tells the controller how to react to an I/O or activation error.
// No flags means retry the I/O without blaming the path.
type ErrorAction uint

const (
	ActionFailPath ErrorAction = 1 << iota
	ActionBypassGroup
	ActionHardError
	ActionRetryActivation
)

// Has reports whether all flags in f are set
func (a ErrorAction) Has(f ErrorAction) bool {
	return a&f == f
}

func (a ErrorAction) String() string {
	if a == 0 {
		return "retry"
	}
	var parts []string
	if a.Has(ActionFailPath) {
		parts = append(parts, "fail_path")
	}
	if a.Has(ActionBypassGroup) {
		parts = append(parts, "bypass_group")
	}
	if a.Has(ActionHardError) {
		parts = append(parts, "hard_error")
	}
	if a.Has(ActionRetryActivation) {
		parts = append(parts, "retry_activation")
	}
	return strings.Join(parts, "|")
}

// HardwareHandler carries device specific knowledge about a storage array.
// Capabilities are discovered through the optional interfaces below.
type HardwareHandler interface {
	Name() string
	Close() error
}

// GroupActivator prepares a newly selected group before it carries I/O.
// done must be called exactly once, from any goroutine, with the outcome.
type GroupActivator interface {
	ActivateGroup(bypassed bool, p *Path, done func(ErrorAction))
}

// ErrorClassifier maps a failed I/O to the controller's reaction
type ErrorClassifier interface {
	ClassifyError(req *Request, err error) ErrorAction
}

// StatusReporter overrides the handler section of status reports.
// The result starts with its own word count, like "1 standby ".
type StatusReporter interface {
	Status(kind StatusType) string
}

// HardwareHandlerFactory builds a handler from its table arguments
type HardwareHandlerFactory func(args []string, logger *zap.Logger) (HardwareHandler, error)

var (
	handlersMu sync.RWMutex
	handlers   = make(map[string]HardwareHandlerFactory)
)

// RegisterHardwareHandler makes a handler available to tables under name
func RegisterHardwareHandler(name string, factory HardwareHandlerFactory) error {
	handlersMu.Lock()
	defer handlersMu.Unlock()

	if _, exists := handlers[name]; exists {
		return fmt.Errorf("hardware handler %s already registered: %w", name, ErrInvalidArgument)
	}
	handlers[name] = factory
	return nil
}

// NewHardwareHandler creates a registered handler
func NewHardwareHandler(name string, args []string, logger *zap.Logger) (HardwareHandler, error) {
	handlersMu.RLock()
	factory, ok := handlers[name]
	handlersMu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("unknown hardware handler type %q: %w", name, ErrInvalidArgument)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return factory(args, logger)
}

func hardwareHandlerStatus(h HardwareHandler, kind StatusType) string {
	if h == nil {
		return "0 "
	}
	if sr, ok := h.(StatusReporter); ok {
		return sr.Status(kind)
	}
	if kind == StatusInfo {
		return "0 "
	}
	return fmt.Sprintf("1 %s ", h.Name())
}

func init() {
	_ = RegisterHardwareHandler(StandbyName, newStandbyHandler)
}
