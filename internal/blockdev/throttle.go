// internal/blockdev/throttle.go
package blockdev

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/FairForge/multipath/internal/mpath"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// ThrottledDevice caps the bandwidth of a path
type ThrottledDevice struct {
	dev     mpath.Device
	limiter *rate.Limiter
	logger  *zap.Logger
}

// ErrInvalidRate is returned for a bandwidth limit that is not positive
var ErrInvalidRate = errors.New("blockdev: rate limit must be positive")

// NewThrottledDevice wraps dev with a bytes per second limit
func NewThrottledDevice(dev mpath.Device, bytesPerSecond int, logger *zap.Logger) (*ThrottledDevice, error) {
	if bytesPerSecond <= 0 {
		return nil, fmt.Errorf("%s: %d bytes/s: %w", dev.Name(), bytesPerSecond, ErrInvalidRate)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ThrottledDevice{
		dev:     dev,
		limiter: rate.NewLimiter(rate.Limit(bytesPerSecond), bytesPerSecond),
		logger:  logger,
	}, nil
}

// Name returns the wrapped path identifier
func (t *ThrottledDevice) Name() string {
	return t.dev.Name()
}

// Submit waits for bandwidth before passing the request on. Payloads larger
// than the burst are admitted in burst sized steps.
func (t *ThrottledDevice) Submit(ctx context.Context, req *mpath.Request) error {
	remaining := len(req.Data)
	burst := t.limiter.Burst()
	for remaining > 0 {
		n := remaining
		if n > burst {
			n = burst
		}
		if err := t.limiter.WaitN(ctx, n); err != nil {
			t.logger.Debug("throttle wait aborted",
				zap.String("path", t.dev.Name()),
				zap.Error(err))
			return err
		}
		remaining -= n
	}
	return t.dev.Submit(ctx, req)
}

// Size reports the wrapped device's capacity, 0 if it has none
func (t *ThrottledDevice) Size() int64 {
	if s, ok := t.dev.(mpath.Sizer); ok {
		return s.Size()
	}
	return 0
}

// Activate forwards to the wrapped device when it supports activation
func (t *ThrottledDevice) Activate(ctx context.Context) error {
	if a, ok := t.dev.(mpath.Activator); ok {
		return a.Activate(ctx)
	}
	return nil
}

// Unwrap returns the wrapped device
func (t *ThrottledDevice) Unwrap() mpath.Device {
	return t.dev
}

// Close closes the wrapped device if it holds resources
func (t *ThrottledDevice) Close() error {
	if c, ok := t.dev.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
