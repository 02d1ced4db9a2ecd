package mpath

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// Op is the kind of block I/O carried by a Request
type Op int

const (
	OpRead Op = iota
	OpWrite
	OpFlush
)

func (o Op) String() string {
	switch o {
	case OpRead:
		return "read"
	case OpWrite:
		return "write"
	case OpFlush:
		return "flush"
	default:
		return "unknown"
	}
}

// Request is one block I/O travelling through a multipath device.
// The originator owns Data; the device only reads or fills it.
type Request struct {
	ID     string
	Op     Op
	Offset int64
	Data   []byte
	// ReadAhead marks speculative reads that may fail with ErrWouldBlock
	// without affecting path health.
	ReadAhead bool

	ctx  context.Context
	done func(*Request, error)
	once sync.Once

	// per-dispatch detail, guarded by the owning controller's lock
	path     *Path
	details  details
	requeues int
}

// details is the state needed to resubmit a request unchanged after failover
type details struct {
	op     Op
	offset int64
	data   []byte
}

// NewRequest creates a request. done is called exactly once with the
// terminal outcome.
func NewRequest(ctx context.Context, op Op, offset int64, data []byte, done func(*Request, error)) *Request {
	if ctx == nil {
		ctx = context.Background()
	}
	return &Request{
		ID:     uuid.New().String(),
		Op:     op,
		Offset: offset,
		Data:   data,
		ctx:    ctx,
		done:   done,
	}
}

// Context returns the request context
func (r *Request) Context() context.Context {
	return r.ctx
}

// Path returns the path chosen by the last dispatch, nil if none
func (r *Request) Path() *Path {
	return r.path
}

// Requeues returns how many times the request was pushed back to its submitter
func (r *Request) Requeues() int {
	return r.requeues
}

// Complete delivers the terminal outcome. Calls after the first are ignored.
func (r *Request) Complete(err error) {
	r.once.Do(func() {
		if r.done != nil {
			r.done(r, err)
		}
	})
}

func (r *Request) record() {
	r.details = details{op: r.Op, offset: r.Offset, data: r.Data}
}

func (r *Request) restore() {
	r.Op = r.details.op
	r.Offset = r.details.offset
	r.Data = r.details.data
}

// Size returns the payload length in bytes
func (r *Request) Size() int {
	return len(r.Data)
}

func (d details) size() int {
	return len(d.data)
}
