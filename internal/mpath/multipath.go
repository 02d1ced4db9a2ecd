package mpath

import (
	"errors"
	"fmt"
	"sync"

	"github.com/FairForge/multipath/internal/workqueue"
	"go.uber.org/zap"
)

// Issuer is the front end a device hands redispatched requests back to
type Issuer interface {
	// Issue submits a request that was mapped to req.Path()
	Issue(req *Request)
	// Requeue asks the submitter to try the request again later
	Requeue(req *Request)
}

// DefaultRequeueLimit bounds how often one request is pushed back to its
// submitter before it fails with ErrNoUsablePath.
const DefaultRequeueLimit = 16

// Multipath routes I/O for one logical volume across its paths.
// A single mutex guards all controller, group, path and selector state.
type Multipath struct {
	name   string
	logger *zap.Logger

	mu                 sync.Mutex
	groups             []*PriorityGroup
	hw                 HardwareHandler
	validPaths         uint
	currentPath        *Path
	currentGroup       *PriorityGroup
	nextGroup          *PriorityGroup
	repeatCount        uint
	queueIO            bool
	queueIfNoPath      bool
	savedQueueIfNoPath bool
	pgInitRequired     bool
	pgInitInProgress   bool
	pgInitRetries      uint
	pgInitCount        uint
	noflush            bool
	suspended          bool
	closed             bool
	queued             []*Request
	queueSize          uint
	events             []Event

	queue        workqueue.Queue
	ownPool      *workqueue.Pool
	processWork  *workqueue.Work
	eventWork    *workqueue.Work
	issuer       Issuer
	requeueLimit int

	subsMu      sync.RWMutex
	subscribers []func(Event)
}

// Option configures a Multipath
type Option func(*Multipath)

// WithLogger sets the logger
func WithLogger(logger *zap.Logger) Option {
	return func(m *Multipath) {
		m.logger = logger
	}
}

// WithQueue runs the device's background work on q
func WithQueue(q workqueue.Queue) Option {
	return func(m *Multipath) {
		m.queue = q
	}
}

// WithIssuer sets the front end that receives redispatched requests
func WithIssuer(issuer Issuer) Option {
	return func(m *Multipath) {
		m.issuer = issuer
	}
}

// WithRequeueLimit bounds push-backs per request; zero or less means unbounded
func WithRequeueLimit(n int) Option {
	return func(m *Multipath) {
		m.requeueLimit = n
	}
}

// WithSubscriber registers an event callback at construction time
func WithSubscriber(fn func(Event)) Option {
	return func(m *Multipath) {
		m.subscribers = append(m.subscribers, fn)
	}
}

// NewFromTable parses text and builds the device
func NewFromTable(name, text string, resolve DeviceResolver, opts ...Option) (*Multipath, error) {
	t, err := ParseTable(text)
	if err != nil {
		return nil, err
	}
	return New(name, t, resolve, opts...)
}

// New builds a multipath device from a parsed table
func New(name string, t *Table, resolve DeviceResolver, opts ...Option) (*Multipath, error) {
	m := &Multipath{
		name:               name,
		logger:             zap.NewNop(),
		queueIfNoPath:      t.QueueIfNoPath,
		savedQueueIfNoPath: t.QueueIfNoPath,
		pgInitRetries:      t.PGInitRetries,
		requeueLimit:       DefaultRequeueLimit,
	}
	for _, opt := range opts {
		opt(m)
	}

	if m.issuer == nil {
		return nil, fmt.Errorf("multipath %s: issuer required: %w", name, ErrInvalidArgument)
	}
	if uint(len(t.Groups)) != t.NumGroups {
		return nil, fmt.Errorf("multipath %s: declared %d groups, table has %d: %w",
			name, t.NumGroups, len(t.Groups), ErrConfigMismatch)
	}
	m.logger = m.logger.With(zap.String("device", name))

	if t.Handler != "" {
		hw, err := NewHardwareHandler(t.Handler, t.HandlerArgs, m.logger)
		if err != nil {
			return nil, fmt.Errorf("multipath %s: %w", name, err)
		}
		m.hw = hw
	}

	if err := m.buildGroups(t, resolve); err != nil {
		if m.hw != nil {
			_ = m.hw.Close()
		}
		return nil, fmt.Errorf("multipath %s: %w", name, err)
	}
	if t.InitialGroup > 0 {
		m.nextGroup = m.groups[t.InitialGroup-1]
	}

	if m.queue == nil {
		m.ownPool = workqueue.NewPool(1, m.logger)
		m.queue = m.ownPool.NewQueue(name)
	}
	m.processWork = workqueue.NewWork(m.processQueuedIOs)
	m.eventWork = workqueue.NewWork(m.triggerEvents)

	m.logger.Info("multipath device created",
		zap.Int("groups", len(m.groups)),
		zap.Uint("valid_paths", m.validPaths),
		zap.Bool("queue_if_no_path", m.queueIfNoPath),
		zap.String("hw_handler", t.Handler))
	return m, nil
}

func (m *Multipath) buildGroups(t *Table, resolve DeviceResolver) error {
	for i, gs := range t.Groups {
		sel, err := NewSelector(gs.Selector, gs.SelectorArgs)
		if err != nil {
			return fmt.Errorf("priority group %d: %w", i+1, err)
		}
		pg := newPriorityGroup(m, uint(i+1), sel)

		for _, ps := range gs.Paths {
			dev, err := resolve(ps.ID)
			if err != nil {
				return fmt.Errorf("priority group %d: path %s: %w", i+1, ps.ID, err)
			}
			if _, err := pg.addPath(dev, ps.Args); err != nil {
				return fmt.Errorf("priority group %d: path %s: %w", i+1, ps.ID, err)
			}
			m.validPaths++
		}
		m.groups = append(m.groups, pg)
	}
	return nil
}

// Name returns the device name
func (m *Multipath) Name() string {
	return m.name
}

// Size returns the capacity of the smallest path that reports one, or 0 when
// no path does. Groups and paths are fixed after New.
func (m *Multipath) Size() int64 {
	var size int64
	for _, pg := range m.groups {
		for _, p := range pg.paths {
			s, ok := p.dev.(Sizer)
			if !ok {
				continue
			}
			if n := s.Size(); size == 0 || n < size {
				size = n
			}
		}
	}
	return size
}

// Close tears the device down: new I/O is rejected, background work is
// drained, queued requests fail with ErrClosed and the handler is released.
func (m *Multipath) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.mu.Unlock()

	m.queue.Flush()

	m.mu.Lock()
	reqs := m.queued
	m.queued = nil
	m.queueSize = 0
	m.mu.Unlock()

	for _, req := range reqs {
		req.Complete(ErrClosed)
	}
	if len(reqs) > 0 {
		m.logger.Warn("failed queued requests on close", zap.Int("count", len(reqs)))
	}

	var err error
	if m.hw != nil {
		err = m.hw.Close()
	}

	// activation callbacks may have queued more work
	m.queue.Flush()
	if m.ownPool != nil {
		m.ownPool.Stop()
	}

	m.logger.Info("multipath device closed")
	return err
}

// Snapshot is a consistent copy of a device's routing state
type Snapshot struct {
	Name             string       `json:"name"`
	ValidPaths       uint         `json:"valid_paths"`
	QueueSize        uint         `json:"queue_size"`
	QueueIfNoPath    bool         `json:"queue_if_no_path"`
	QueueIO          bool         `json:"queue_io"`
	PGInitRequired   bool         `json:"pg_init_required"`
	PGInitInProgress bool         `json:"pg_init_in_progress"`
	PGInitCount      uint         `json:"pg_init_count"`
	CurrentGroup     uint         `json:"current_group"`
	NextGroup        uint         `json:"next_group"`
	CurrentPath      string       `json:"current_path,omitempty"`
	RepeatCount      uint         `json:"repeat_count"`
	Suspended        bool         `json:"suspended"`
	Groups           []GroupState `json:"groups"`
}

// Snapshot returns the current routing state
func (m *Multipath) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := Snapshot{
		Name:             m.name,
		ValidPaths:       m.validPaths,
		QueueSize:        m.queueSize,
		QueueIfNoPath:    m.queueIfNoPath,
		QueueIO:          m.queueIO,
		PGInitRequired:   m.pgInitRequired,
		PGInitInProgress: m.pgInitInProgress,
		PGInitCount:      m.pgInitCount,
		RepeatCount:      m.repeatCount,
		Suspended:        m.suspended,
	}
	if m.currentGroup != nil {
		s.CurrentGroup = m.currentGroup.num
	}
	if m.nextGroup != nil {
		s.NextGroup = m.nextGroup.num
	}
	if m.currentPath != nil {
		s.CurrentPath = m.currentPath.Name()
	}

	for _, pg := range m.groups {
		gs := GroupState{
			Num:      pg.num,
			Selector: pg.selector.Name(),
			Bypassed: pg.bypassed,
			Current:  pg == m.currentGroup,
		}
		for _, p := range pg.paths {
			gs.Paths = append(gs.Paths, PathState{
				Name:      p.Name(),
				Active:    p.active,
				FailCount: p.failCount,
			})
		}
		s.Groups = append(s.Groups, gs)
	}
	return s
}

// clearCurrent forgets the selected path, and the group too when group is set
func (m *Multipath) clearCurrent(group bool) {
	m.currentPath = nil
	m.repeatCount = 0
	if group {
		m.currentGroup = nil
	}
}

func (m *Multipath) wakeWorker() {
	m.queue.Queue(m.processWork)
}

// findPaths returns every path whose identifier is id
func (m *Multipath) findPaths(id string) []*Path {
	var found []*Path
	for _, pg := range m.groups {
		for _, p := range pg.paths {
			if p.Name() == id {
				found = append(found, p)
			}
		}
	}
	return found
}

func (m *Multipath) group(num uint) (*PriorityGroup, error) {
	if num == 0 || num > uint(len(m.groups)) {
		return nil, &MessageError{
			Reason: fmt.Sprintf("invalid group number %d", num),
			Err:    ErrInvalidArgument,
		}
	}
	return m.groups[num-1], nil
}

func isTransient(req *Request, err error) bool {
	if errors.Is(err, ErrUnsupported) {
		return true
	}
	return req.ReadAhead && errors.Is(err, ErrWouldBlock)
}
