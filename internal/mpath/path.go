package mpath

import (
	"context"
)

// Device is the transport behind one path. Submit performs the I/O
// synchronously and returns its completion status.
type Device interface {
	Name() string
	Submit(ctx context.Context, req *Request) error
}

// Activator is implemented by devices that need an explicit command before
// they accept I/O, e.g. the passive controller of an active/passive array.
type Activator interface {
	Activate(ctx context.Context) error
}

// Sizer is implemented by devices with a fixed capacity in bytes
type Sizer interface {
	Size() int64
}

// DeviceResolver maps a path identifier from a table to its device
type DeviceResolver func(id string) (Device, error)

// Path is one connection to the volume. It is owned by exactly one group.
type Path struct {
	dev       Device
	group     *PriorityGroup
	active    bool
	failCount uint
}

// Name returns the path identifier
func (p *Path) Name() string {
	return p.dev.Name()
}

// Device returns the underlying transport
func (p *Path) Device() Device {
	return p.dev
}

// Group returns the owning priority group
func (p *Path) Group() *PriorityGroup {
	return p.group
}

// PathState is a point-in-time copy of a path's state
type PathState struct {
	Name      string `json:"name"`
	Active    bool   `json:"active"`
	FailCount uint   `json:"fail_count"`
}
