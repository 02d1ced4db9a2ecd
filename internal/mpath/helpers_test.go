package mpath

import (
	"context"
	"sync"
	"testing"

	"github.com/FairForge/multipath/internal/workqueue"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeDevice struct {
	name string
}

func (d *fakeDevice) Name() string { return d.name }

func (d *fakeDevice) Submit(context.Context, *Request) error { return nil }

func fakeResolver() DeviceResolver {
	devs := make(map[string]*fakeDevice)
	return func(id string) (Device, error) {
		if d, ok := devs[id]; ok {
			return d, nil
		}
		d := &fakeDevice{name: id}
		devs[id] = d
		return d, nil
	}
}

type recordingIssuer struct {
	mu       sync.Mutex
	issued   []*Request
	requeued []*Request
}

func (r *recordingIssuer) Issue(req *Request) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.issued = append(r.issued, req)
}

func (r *recordingIssuer) Requeue(req *Request) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.requeued = append(r.requeued, req)
}

func (r *recordingIssuer) issuedPaths() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	names := make([]string, 0, len(r.issued))
	for _, req := range r.issued {
		names = append(names, req.Path().Name())
	}
	return names
}

type outcome struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (o *outcome) done(_ *Request, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.calls++
	o.err = err
}

func (o *outcome) result() (int, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.calls, o.err
}

func newReq() (*Request, *outcome) {
	o := &outcome{}
	return NewRequest(context.Background(), OpWrite, 0, make([]byte, 512), o.done), o
}

type testDevice struct {
	*Multipath
	queue  *workqueue.Manual
	issuer *recordingIssuer
}

func newTestDevice(t *testing.T, table string, opts ...Option) *testDevice {
	t.Helper()

	td := &testDevice{
		queue:  workqueue.NewManual(),
		issuer: &recordingIssuer{},
	}
	opts = append([]Option{WithQueue(td.queue), WithIssuer(td.issuer)}, opts...)

	m, err := NewFromTable("mpath0", table, fakeResolver(), opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.Close() })
	td.Multipath = m
	return td
}

// mapPath dispatches a fresh request and returns the chosen path name
func (td *testDevice) mapPath(t *testing.T) string {
	t.Helper()
	req, _ := newReq()
	res, err := td.Map(req)
	require.NoError(t, err)
	require.Equal(t, MapRemapped, res)
	return req.Path().Name()
}

func (td *testDevice) path(t *testing.T, group int, idx int) *Path {
	t.Helper()
	require.Less(t, group-1, len(td.groups))
	return td.groups[group-1].paths[idx]
}

// checkInvariants verifies the controller's structural invariants
func checkInvariants(t *testing.T, m *Multipath) {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()

	var active uint
	for _, pg := range m.groups {
		for _, p := range pg.paths {
			if p.active {
				active++
			}
		}
	}
	require.Equal(t, active, m.validPaths, "valid path count")

	if m.currentPath != nil {
		require.True(t, m.currentPath.active, "current path must be active")
		require.Same(t, m.currentGroup, m.currentPath.group, "current path must belong to current group")
	}
	if m.repeatCount > 0 {
		require.NotNil(t, m.currentPath, "repeat count without current path")
	}
	require.Equal(t, int(m.queueSize), len(m.queued))
}

// manualHandler records activations and completes them on demand
type manualHandler struct {
	mu          sync.Mutex
	activations []string
	pending     []func(ErrorAction)
	closed      bool
}

func (h *manualHandler) Name() string { return "manual" }

func (h *manualHandler) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	return nil
}

func (h *manualHandler) ActivateGroup(_ bool, p *Path, done func(ErrorAction)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.activations = append(h.activations, p.Name())
	h.pending = append(h.pending, done)
}

func (h *manualHandler) finish(t *testing.T, action ErrorAction) {
	t.Helper()
	h.mu.Lock()
	require.NotEmpty(t, h.pending, "no activation in flight")
	done := h.pending[0]
	h.pending = h.pending[1:]
	h.mu.Unlock()
	done(action)
}

func (h *manualHandler) started() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.activations...)
}

// staticSelector always picks its first valid path and cannot reinstate
type staticSelector struct {
	paths  []*Path
	failed map[*Path]bool
}

func (s *staticSelector) Name() string   { return "static" }
func (s *staticSelector) TableArgs() int { return 0 }
func (s *staticSelector) InfoArgs() int  { return 0 }

func (s *staticSelector) AddPath(p *Path, _ []string) error {
	s.paths = append(s.paths, p)
	return nil
}

func (s *staticSelector) FailPath(p *Path) { s.failed[p] = true }

func (s *staticSelector) SelectPath() (*Path, uint) {
	for _, p := range s.paths {
		if !s.failed[p] && p.active {
			return p, 1
		}
	}
	return nil, 0
}

func (s *staticSelector) Status(p *Path, _ StatusType) string {
	if p == nil {
		return "0 "
	}
	return ""
}

func init() {
	_ = RegisterHardwareHandler("manual", func([]string, *zap.Logger) (HardwareHandler, error) {
		return &manualHandler{}, nil
	})
	_ = RegisterSelector("static", func([]string) (Selector, error) {
		return &staticSelector{failed: make(map[*Path]bool)}, nil
	})
}
