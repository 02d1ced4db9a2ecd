// internal/mapper/target.go
package mapper

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/FairForge/multipath/internal/mpath"
	"github.com/FairForge/multipath/internal/workqueue"
	"go.uber.org/zap"
)

// Observer receives I/O and state notifications from targets
type Observer interface {
	ObserveIO(device string, op mpath.Op, d time.Duration, err error)
	ObserveRequeue(device string)
	ObserveEvent(ev mpath.Event)
	ObserveState(s mpath.Snapshot)
	Forget(device string)
}

type nopObserver struct{}

func (nopObserver) ObserveIO(string, mpath.Op, time.Duration, error) {}
func (nopObserver) ObserveRequeue(string)                            {}
func (nopObserver) ObserveEvent(mpath.Event)                         {}
func (nopObserver) ObserveState(mpath.Snapshot)                      {}
func (nopObserver) Forget(string)                                    {}

// Target is the block front end of one multipath device. It submits mapped
// requests to their path, feeds completions back, and retries pushed back
// requests after a delay.
type Target struct {
	name         string
	table        string
	m            *mpath.Multipath
	logger       *zap.Logger
	observer     Observer
	requeueDelay time.Duration
	size         int64

	inflight sync.WaitGroup
	timers   sync.WaitGroup

	mu        sync.Mutex
	suspended bool
	closed    bool
	held      []*mpath.Request
}

// TargetConfig holds what a target needs besides its table
type TargetConfig struct {
	Resolve      mpath.DeviceResolver
	Queue        workqueue.Queue
	Logger       *zap.Logger
	Observer     Observer
	RequeueLimit int
	RequeueDelay time.Duration
}

// NewTarget builds the multipath device for table and its front end
func NewTarget(name, table string, cfg TargetConfig) (*Target, error) {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Observer == nil {
		cfg.Observer = nopObserver{}
	}

	t := &Target{
		name:         name,
		table:        table,
		logger:       cfg.Logger.With(zap.String("device", name)),
		observer:     cfg.Observer,
		requeueDelay: cfg.RequeueDelay,
	}

	opts := []mpath.Option{
		mpath.WithIssuer(t),
		mpath.WithLogger(cfg.Logger),
		mpath.WithSubscriber(t.onEvent),
	}
	if cfg.Queue != nil {
		opts = append(opts, mpath.WithQueue(cfg.Queue))
	}
	if cfg.RequeueLimit != 0 {
		opts = append(opts, mpath.WithRequeueLimit(cfg.RequeueLimit))
	}

	m, err := mpath.NewFromTable(name, table, cfg.Resolve, opts...)
	if err != nil {
		return nil, err
	}
	t.m = m
	t.size = m.Size()
	t.observer.ObserveState(m.Snapshot())
	return t, nil
}

// Name returns the device name
func (t *Target) Name() string {
	return t.name
}

// Table returns the table text the device was built from
func (t *Target) Table() string {
	return t.table
}

// Size returns the volume capacity in bytes, 0 if no path reports one
func (t *Target) Size() int64 {
	return t.size
}

// Multipath returns the routing core
func (t *Target) Multipath() *mpath.Multipath {
	return t.m
}

// Submit starts a request. The outcome is delivered through the request's
// completion callback.
func (t *Target) Submit(req *mpath.Request) {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		req.Complete(mpath.ErrClosed)
		return
	}
	if t.suspended {
		t.held = append(t.held, req)
		t.mu.Unlock()
		return
	}
	t.mu.Unlock()

	// out-of-range requests never reach a path
	if err := t.checkRange(req); err != nil {
		t.complete(req, time.Now(), err)
		return
	}

	res, err := t.m.Map(req)
	switch res {
	case mpath.MapRemapped:
		t.Issue(req)
	case mpath.MapRequeue:
		t.m.PushBack(req)
	case mpath.MapFailed:
		req.Complete(err)
	case mpath.MapQueued:
	}
}

func (t *Target) checkRange(req *mpath.Request) error {
	if req.Op == mpath.OpFlush {
		return nil
	}
	end := req.Offset + int64(len(req.Data))
	if req.Offset < 0 || (t.size > 0 && end > t.size) {
		return fmt.Errorf("%s: %s at %d+%d beyond %d bytes: %w",
			t.name, req.Op, req.Offset, len(req.Data), t.size, ErrOutOfRange)
	}
	return nil
}

// Issue implements mpath.Issuer
func (t *Target) Issue(req *mpath.Request) {
	t.inflight.Add(1)
	go func() {
		defer t.inflight.Done()
		t.dispatch(req)
	}()
}

func (t *Target) dispatch(req *mpath.Request) {
	ctx := req.Context()
	start := time.Now()
	// EndIO may hand the request to another path
	path := req.Path()

	var err error
	if err = ctx.Err(); err == nil {
		err = path.Device().Submit(ctx, req)
	}
	if err != nil && ctx.Err() != nil {
		// the submitter gave up; that says nothing about the path
		_, _ = t.m.EndIO(req, nil)
		t.complete(req, start, ctx.Err())
		return
	}

	res, err := t.m.EndIO(req, err)
	switch res {
	case mpath.EndIODone:
		t.complete(req, start, err)
	case mpath.EndIORequeue:
		t.m.PushBack(req)
	case mpath.EndIOIncomplete:
		t.logger.Debug("request taken back for failover",
			zap.String("request", req.ID),
			zap.String("failed_path", path.Name()))
	}
}

func (t *Target) complete(req *mpath.Request, start time.Time, err error) {
	t.observer.ObserveIO(t.name, req.Op, time.Since(start), err)
	req.Complete(err)
}

// Requeue implements mpath.Issuer. The request is resubmitted after the
// requeue delay, or on Resume while the target is suspended.
func (t *Target) Requeue(req *mpath.Request) {
	t.observer.ObserveRequeue(t.name)

	t.mu.Lock()
	defer t.mu.Unlock()

	switch {
	case t.closed:
		req.Complete(mpath.ErrClosed)
	case t.suspended:
		t.held = append(t.held, req)
	default:
		t.timers.Add(1)
		time.AfterFunc(t.requeueDelay, func() {
			defer t.timers.Done()
			t.Submit(req)
		})
	}
}

// Do submits a request and waits for its outcome. If ctx ends first the
// request may still complete later; data must not be reused until then.
func (t *Target) Do(ctx context.Context, op mpath.Op, offset int64, data []byte) error {
	done := make(chan error, 1)
	req := mpath.NewRequest(ctx, op, offset, data, func(_ *mpath.Request, err error) {
		done <- err
	})
	t.Submit(req)

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ReadAt reads len(p) bytes at off through the multipath device
func (t *Target) ReadAt(ctx context.Context, p []byte, off int64) error {
	return t.Do(ctx, mpath.OpRead, off, p)
}

// WriteAt writes p at off through the multipath device
func (t *Target) WriteAt(ctx context.Context, p []byte, off int64) error {
	return t.Do(ctx, mpath.OpWrite, off, p)
}

// Flush makes completed writes durable on the current path
func (t *Target) Flush(ctx context.Context) error {
	return t.Do(ctx, mpath.OpFlush, 0, nil)
}

// Suspend freezes the device. New requests are held until Resume; in-flight
// requests finish first. With noflush, requests that cannot find a path are
// held as well instead of failing.
func (t *Target) Suspend(noflush bool) {
	t.mu.Lock()
	t.suspended = true
	t.mu.Unlock()

	t.m.Presuspend(noflush)
	t.inflight.Wait()
	t.timers.Wait()
	t.m.Postsuspend()
	t.observer.ObserveState(t.m.Snapshot())
	t.logger.Info("device suspended", zap.Bool("noflush", noflush))
}

// Resume thaws the device and resubmits held requests
func (t *Target) Resume() {
	t.m.Resume()

	t.mu.Lock()
	held := t.held
	t.held = nil
	t.suspended = false
	t.mu.Unlock()

	for _, req := range held {
		t.Submit(req)
	}
	t.observer.ObserveState(t.m.Snapshot())
	t.logger.Info("device resumed", zap.Int("resubmitted", len(held)))
}

// Suspended reports whether the target is frozen
func (t *Target) Suspended() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.suspended
}

// Close tears the device down. Held and queued requests fail with
// mpath.ErrClosed; in-flight requests are waited for.
func (t *Target) Close() error {
	held, ok := t.detach()
	if !ok {
		return nil
	}
	for _, req := range held {
		req.Complete(mpath.ErrClosed)
	}
	return t.shutdown()
}

// detach stops the target from accepting requests and hands over the ones
// it holds. ok is false if the target was already closed.
func (t *Target) detach() (held []*mpath.Request, ok bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil, false
	}
	t.closed = true
	held = t.held
	t.held = nil
	return held, true
}

func (t *Target) shutdown() error {
	err := t.m.Close()
	t.inflight.Wait()
	t.timers.Wait()
	t.observer.Forget(t.name)
	return err
}

func (t *Target) onEvent(ev mpath.Event) {
	t.observer.ObserveEvent(ev)
	if t.m != nil {
		t.observer.ObserveState(t.m.Snapshot())
	}
}
