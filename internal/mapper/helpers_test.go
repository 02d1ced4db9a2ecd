package mapper

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/FairForge/multipath/internal/blockdev"
	"github.com/FairForge/multipath/internal/mpath"
	"github.com/FairForge/multipath/internal/workqueue"
	"github.com/stretchr/testify/require"
)

const volumeSize = 64 * 1024

// twoPaths is a round-robin group over sda and sdb
const twoPaths = "0 0 1 1 round-robin 0 2 1 sda 1 sdb 1"

// twoPathsQueueing is twoPaths with queueing while no path is usable
const twoPathsQueueing = "1 queue_if_no_path 0 1 1 round-robin 0 2 1 sda 1 sdb 1"

type fixture struct {
	registry *blockdev.Registry
	paths    map[string]*blockdev.FaultyDevice
	files    map[string]*blockdev.FileDevice
}

// newFixture opens one faulty file path per name, all onto the same volume
func newFixture(t *testing.T, names ...string) *fixture {
	t.Helper()
	vol := filepath.Join(t.TempDir(), "lun0")
	f := &fixture{
		registry: blockdev.NewRegistry(),
		paths:    make(map[string]*blockdev.FaultyDevice),
		files:    make(map[string]*blockdev.FileDevice),
	}
	for _, name := range names {
		dev, err := blockdev.OpenFile(name, vol, volumeSize, nil)
		require.NoError(t, err)
		t.Cleanup(func() { _ = dev.Close() })

		faulty := blockdev.NewFaultyDevice(dev)
		require.NoError(t, f.registry.Add(faulty))
		f.paths[name] = faulty
		f.files[name] = dev
	}
	return f
}

func (f *fixture) target(t *testing.T, table string, cfg TargetConfig) *Target {
	t.Helper()
	cfg.Resolve = f.registry.Resolve
	if cfg.RequeueDelay == 0 {
		cfg.RequeueDelay = time.Millisecond
	}
	tgt, err := NewTarget("vol0", table, cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = tgt.Close() })
	return tgt
}

func (f *fixture) manager(t *testing.T, opts ...ManagerOption) *Manager {
	t.Helper()
	pool := workqueue.NewPool(2, nil)
	t.Cleanup(pool.Stop)
	opts = append([]ManagerOption{WithRequeueDelay(time.Millisecond)}, opts...)
	m := NewManager(pool, f.registry.Resolve, opts...)
	t.Cleanup(func() { _ = m.Close() })
	return m
}

func testContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

// async runs fn in the background and returns its result channel
func async(fn func() error) <-chan error {
	ch := make(chan error, 1)
	go func() { ch <- fn() }()
	return ch
}

func pathActive(s mpath.Snapshot, name string) bool {
	for _, g := range s.Groups {
		for _, p := range g.Paths {
			if p.Name == name {
				return p.Active
			}
		}
	}
	return false
}

type recordingObserver struct {
	mu      sync.Mutex
	ios     []error
	requeue int
	events  []mpath.EventType
	states  int
	forgot  []string
}

func (o *recordingObserver) ObserveIO(_ string, _ mpath.Op, _ time.Duration, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.ios = append(o.ios, err)
}

func (o *recordingObserver) ObserveRequeue(string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.requeue++
}

func (o *recordingObserver) ObserveEvent(ev mpath.Event) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.events = append(o.events, ev.Type)
}

func (o *recordingObserver) ObserveState(mpath.Snapshot) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.states++
}

func (o *recordingObserver) Forget(device string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.forgot = append(o.forgot, device)
}

func (o *recordingObserver) eventTypes() []mpath.EventType {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]mpath.EventType(nil), o.events...)
}

func (o *recordingObserver) ioCount() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.ios)
}

// stallDevice blocks every submit until the request context ends
type stallDevice struct {
	name string
}

func (d *stallDevice) Name() string { return d.name }

func (d *stallDevice) Submit(ctx context.Context, _ *mpath.Request) error {
	<-ctx.Done()
	return ctx.Err()
}
