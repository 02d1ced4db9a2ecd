package blockdev

import (
	"errors"
	"fmt"
	"io"
	"sort"
	"sync"

	"github.com/FairForge/multipath/internal/mpath"
)

// ErrUnknownPath is returned when a table names a path nobody registered
var ErrUnknownPath = errors.New("blockdev: unknown path")

// Registry holds the path devices available to multipath tables
type Registry struct {
	mu   sync.RWMutex
	devs map[string]mpath.Device
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{devs: make(map[string]mpath.Device)}
}

// Add registers dev under its name
func (r *Registry) Add(dev mpath.Device) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.devs[dev.Name()]; exists {
		return fmt.Errorf("blockdev: path %s already registered", dev.Name())
	}
	r.devs[dev.Name()] = dev
	return nil
}

// Get looks up a path device
func (r *Registry) Get(name string) (mpath.Device, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	dev, ok := r.devs[name]
	return dev, ok
}

// Resolve implements mpath.DeviceResolver
func (r *Registry) Resolve(name string) (mpath.Device, error) {
	dev, ok := r.Get(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownPath, name)
	}
	return dev, nil
}

// Names lists registered paths in sorted order
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.devs))
	for name := range r.devs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Close closes every device that holds resources
func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var errs []error
	for name, dev := range r.devs {
		if c, ok := dev.(io.Closer); ok {
			if err := c.Close(); err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", name, err))
			}
		}
		delete(r.devs, name)
	}
	return errors.Join(errs...)
}
