// internal/mapper/manager.go
package mapper

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/FairForge/multipath/internal/mpath"
	"github.com/FairForge/multipath/internal/workqueue"
	"go.uber.org/zap"
)

var (
	// ErrDeviceExists is returned when creating a device whose name is taken
	ErrDeviceExists = errors.New("device already exists")
	// ErrDeviceNotFound is returned for operations on an unknown device
	ErrDeviceNotFound = errors.New("device not found")
	// ErrOutOfRange is returned for I/O outside the volume
	ErrOutOfRange = errors.New("access beyond end of device")
)

// DefaultRequeueDelay is how long a pushed back request waits before it is
// submitted again
const DefaultRequeueDelay = 10 * time.Millisecond

// Manager owns the multipath devices of the daemon. All devices share one
// worker pool and resolve their paths through the same resolver.
type Manager struct {
	pool         *workqueue.Pool
	resolve      mpath.DeviceResolver
	logger       *zap.Logger
	observer     Observer
	requeueLimit int
	requeueDelay time.Duration

	mu      sync.RWMutex
	targets map[string]*Target
	closed  bool
}

// ManagerOption configures a Manager
type ManagerOption func(*Manager)

// WithLogger sets the logger
func WithLogger(logger *zap.Logger) ManagerOption {
	return func(m *Manager) {
		m.logger = logger
	}
}

// WithObserver sets the receiver of I/O and state notifications
func WithObserver(o Observer) ManagerOption {
	return func(m *Manager) {
		m.observer = o
	}
}

// WithRequeueLimit bounds push-backs per request
func WithRequeueLimit(n int) ManagerOption {
	return func(m *Manager) {
		m.requeueLimit = n
	}
}

// WithRequeueDelay sets the push-back retry delay
func WithRequeueDelay(d time.Duration) ManagerOption {
	return func(m *Manager) {
		m.requeueDelay = d
	}
}

// NewManager creates a manager. The pool is owned by the caller.
func NewManager(pool *workqueue.Pool, resolve mpath.DeviceResolver, opts ...ManagerOption) *Manager {
	m := &Manager{
		pool:         pool,
		resolve:      resolve,
		logger:       zap.NewNop(),
		observer:     nopObserver{},
		requeueDelay: DefaultRequeueDelay,
		targets:      make(map[string]*Target),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Manager) newTarget(name, table string) (*Target, error) {
	return NewTarget(name, table, TargetConfig{
		Resolve:      m.resolve,
		Queue:        m.pool.NewQueue(name),
		Logger:       m.logger,
		Observer:     m.observer,
		RequeueLimit: m.requeueLimit,
		RequeueDelay: m.requeueDelay,
	})
}

// Create builds a device from its table
func (m *Manager) Create(name, table string) (*Target, error) {
	if name == "" {
		return nil, fmt.Errorf("%w: empty device name", mpath.ErrInvalidArgument)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, mpath.ErrClosed
	}
	if _, ok := m.targets[name]; ok {
		return nil, fmt.Errorf("%s: %w", name, ErrDeviceExists)
	}

	t, err := m.newTarget(name, table)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", name, err)
	}
	m.targets[name] = t

	m.logger.Info("device created", zap.String("device", name))
	return t, nil
}

// Reload replaces the table of a device. The old device is suspended
// without flushing; requests it holds move to the new device. Requests
// waiting for a group activation in the old device fail with
// mpath.ErrClosed.
func (m *Manager) Reload(name, table string) error {
	if _, err := mpath.ParseTable(table); err != nil {
		return fmt.Errorf("reload %s: %w", name, err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	old, ok := m.targets[name]
	if !ok {
		return fmt.Errorf("%s: %w", name, ErrDeviceNotFound)
	}

	old.Suspend(true)
	t, err := m.newTarget(name, table)
	if err != nil {
		old.Resume()
		return fmt.Errorf("reload %s: %w", name, err)
	}

	held, _ := old.detach()
	if err := old.shutdown(); err != nil {
		m.logger.Warn("closing replaced device", zap.String("device", name), zap.Error(err))
	}
	m.targets[name] = t
	// the old device forgot its series on shutdown
	m.observer.ObserveState(t.m.Snapshot())

	for _, req := range held {
		t.Submit(req)
	}

	m.logger.Info("device reloaded",
		zap.String("device", name),
		zap.Int("moved_requests", len(held)))
	return nil
}

// Remove closes and forgets a device
func (m *Manager) Remove(name string) error {
	m.mu.Lock()
	t, ok := m.targets[name]
	delete(m.targets, name)
	m.mu.Unlock()

	if !ok {
		return fmt.Errorf("%s: %w", name, ErrDeviceNotFound)
	}
	if err := t.Close(); err != nil {
		return fmt.Errorf("remove %s: %w", name, err)
	}

	m.logger.Info("device removed", zap.String("device", name))
	return nil
}

// Get returns a device by name
func (m *Manager) Get(name string) (*Target, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	t, ok := m.targets[name]
	if !ok {
		return nil, fmt.Errorf("%s: %w", name, ErrDeviceNotFound)
	}
	return t, nil
}

// List returns the device names in sorted order
func (m *Manager) List() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	names := make([]string, 0, len(m.targets))
	for name := range m.targets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Message sends an administrative command to a device
func (m *Manager) Message(name, line string) error {
	t, err := m.Get(name)
	if err != nil {
		return err
	}
	return t.m.Message(line)
}

// Status renders the status line of a device
func (m *Manager) Status(name string, kind mpath.StatusType) (string, error) {
	t, err := m.Get(name)
	if err != nil {
		return "", err
	}
	return t.m.Status(kind), nil
}

// Suspend freezes a device
func (m *Manager) Suspend(name string, noflush bool) error {
	t, err := m.Get(name)
	if err != nil {
		return err
	}
	t.Suspend(noflush)
	return nil
}

// Resume thaws a device
func (m *Manager) Resume(name string) error {
	t, err := m.Get(name)
	if err != nil {
		return err
	}
	t.Resume()
	return nil
}

// Sync makes the device set match tables: unknown devices are created,
// devices whose table changed are reloaded and devices missing from tables
// are removed. All changes are attempted; the errors are joined.
func (m *Manager) Sync(tables map[string]string) error {
	var errs []error

	for _, name := range m.List() {
		if _, ok := tables[name]; !ok {
			errs = append(errs, m.Remove(name))
		}
	}

	names := make([]string, 0, len(tables))
	for name := range tables {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		table := tables[name]
		t, err := m.Get(name)
		if err != nil {
			_, err = m.Create(name, table)
			errs = append(errs, err)
			continue
		}
		if t.Table() != table {
			errs = append(errs, m.Reload(name, table))
		}
	}
	return errors.Join(errs...)
}

// Close removes every device. The manager rejects new devices afterwards.
func (m *Manager) Close() error {
	m.mu.Lock()
	m.closed = true
	targets := m.targets
	m.targets = make(map[string]*Target)
	m.mu.Unlock()

	var errs []error
	for name, t := range targets {
		if err := t.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", name, err))
		}
	}
	return errors.Join(errs...)
}
