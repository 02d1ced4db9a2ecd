// internal/blockdev/file.go
package blockdev

import (
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/FairForge/multipath/internal/mpath"
	"go.uber.org/zap"
)

// FileDevice is one path to a volume backed by a regular file. Several
// FileDevices opened on the same file behave like redundant paths to one LUN.
type FileDevice struct {
	name   string
	file   *os.File
	size   int64
	logger *zap.Logger

	mu      sync.RWMutex
	offline bool
	passive bool
}

// FileOption configures a FileDevice
type FileOption func(*FileDevice)

// WithPassive starts the device on the standby controller. Submits fail with
// mpath.ErrGroupStandby until Activate is called.
func WithPassive() FileOption {
	return func(d *FileDevice) {
		d.passive = true
	}
}

// OpenFile opens (creating if needed) the backing file and sizes it
func OpenFile(name, path string, size int64, logger *zap.Logger, opts ...FileOption) (*FileDevice, error) {
	if size <= 0 {
		return nil, fmt.Errorf("blockdev %s: invalid size %d", name, size)
	}

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0600)
	if err != nil {
		return nil, fmt.Errorf("blockdev %s: open: %w", name, err)
	}

	fi, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("blockdev %s: stat: %w", name, err)
	}
	if fi.Size() < size {
		if err := f.Truncate(size); err != nil {
			_ = f.Close()
			return nil, fmt.Errorf("blockdev %s: truncate: %w", name, err)
		}
	}

	if logger == nil {
		logger = zap.NewNop()
	}
	d := &FileDevice{
		name:   name,
		file:   f,
		size:   size,
		logger: logger.With(zap.String("path", name)),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

// Name returns the path identifier
func (d *FileDevice) Name() string {
	return d.name
}

// Size returns the device size in bytes
func (d *FileDevice) Size() int64 {
	return d.size
}

// SetOffline simulates losing or regaining the link
func (d *FileDevice) SetOffline(offline bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.offline = offline
	d.logger.Info("path link changed", zap.Bool("offline", offline))
}

// SetPassive moves the path to the standby controller or back
func (d *FileDevice) SetPassive(passive bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.passive = passive
}

// Submit performs the request against the backing file
func (d *FileDevice) Submit(ctx context.Context, req *mpath.Request) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	d.mu.RLock()
	offline, passive := d.offline, d.passive
	d.mu.RUnlock()

	if offline {
		return fmt.Errorf("%s: link down: %w", d.name, mpath.ErrPathIO)
	}
	if passive {
		return fmt.Errorf("%s: %w", d.name, mpath.ErrGroupStandby)
	}

	if req.Op != mpath.OpFlush {
		if req.Offset < 0 || req.Offset+int64(len(req.Data)) > d.size {
			return fmt.Errorf("%s: access beyond end of device at %d+%d: %w",
				d.name, req.Offset, len(req.Data), mpath.ErrMedium)
		}
	}

	var err error
	switch req.Op {
	case mpath.OpRead:
		_, err = d.file.ReadAt(req.Data, req.Offset)
	case mpath.OpWrite:
		_, err = d.file.WriteAt(req.Data, req.Offset)
	case mpath.OpFlush:
		err = datasync(d.file)
	default:
		return fmt.Errorf("%s: %s: %w", d.name, req.Op, mpath.ErrUnsupported)
	}
	if err != nil {
		d.logger.Debug("submit failed",
			zap.String("op", req.Op.String()),
			zap.Int64("offset", req.Offset),
			zap.Error(err))
		return fmt.Errorf("%s: %s: %v: %w", d.name, req.Op, err, mpath.ErrPathIO)
	}
	return nil
}

// Activate makes this path's controller the owner of the volume
func (d *FileDevice) Activate(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.offline {
		return fmt.Errorf("%s: activate: link down: %w", d.name, mpath.ErrPathIO)
	}
	if d.passive {
		d.logger.Info("controller activated")
	}
	d.passive = false
	return nil
}

// Close releases the backing file
func (d *FileDevice) Close() error {
	return d.file.Close()
}
