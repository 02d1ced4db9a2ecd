package blockdev

import (
	"context"
	"sync"

	"github.com/FairForge/multipath/internal/mpath"
)

// FaultyDevice injects errors in front of another device
type FaultyDevice struct {
	dev mpath.Device

	mu          sync.Mutex
	submitErr   error
	activateErr error
	failures    int // remaining injected submit failures, <0 means forever
	submits     int
}

// NewFaultyDevice wraps dev without any fault configured
func NewFaultyDevice(dev mpath.Device) *FaultyDevice {
	return &FaultyDevice{dev: dev}
}

// Name returns the wrapped path identifier
func (f *FaultyDevice) Name() string {
	return f.dev.Name()
}

// Size reports the wrapped device's capacity, 0 if it has none
func (f *FaultyDevice) Size() int64 {
	if s, ok := f.dev.(mpath.Sizer); ok {
		return s.Size()
	}
	return 0
}

// FailSubmits makes the next n submits return err. n < 0 fails every submit
// until Heal is called.
func (f *FaultyDevice) FailSubmits(err error, n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.submitErr = err
	f.failures = n
}

// FailActivation makes Activate return err
func (f *FaultyDevice) FailActivation(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.activateErr = err
}

// Heal clears all injected faults
func (f *FaultyDevice) Heal() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.submitErr = nil
	f.activateErr = nil
	f.failures = 0
}

// Submits returns how many requests reached this device
func (f *FaultyDevice) Submits() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.submits
}

func (f *FaultyDevice) Submit(ctx context.Context, req *mpath.Request) error {
	f.mu.Lock()
	f.submits++
	var err error
	if f.submitErr != nil && f.failures != 0 {
		err = f.submitErr
		if f.failures > 0 {
			f.failures--
		}
	}
	f.mu.Unlock()

	if err != nil {
		return err
	}
	return f.dev.Submit(ctx, req)
}

func (f *FaultyDevice) Activate(ctx context.Context) error {
	f.mu.Lock()
	err := f.activateErr
	f.mu.Unlock()
	if err != nil {
		return err
	}

	if a, ok := f.dev.(mpath.Activator); ok {
		return a.Activate(ctx)
	}
	return nil
}
