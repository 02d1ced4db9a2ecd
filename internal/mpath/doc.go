// Package mpath routes block I/O for one logical volume across redundant
// paths to it.
//
// # Overview
//
// A Multipath device is built from a table naming its priority groups. Each
// group holds paths and a path selector; groups are tried in ascending order
// and a group can be bypassed to make it a last resort. For every request
// the device picks a path, and on failed completion it fails the path, fails
// over, and either retries the request on another path or returns the error.
//
// # Architecture
//
//	┌──────────────────────────────────────────────────────┐
//	│                     Multipath                        │
//	│  (selection, dispatch, completion, admin, status)    │
//	├───────────────┬───────────────┬──────────────────────┤
//	│ PriorityGroup │ PriorityGroup │   HardwareHandler    │
//	│  + Selector   │  + Selector   │ (activation, errors) │
//	├───────────────┴───────────────┴──────────────────────┤
//	│          Path → Device (transport, external)         │
//	└──────────────────────────────────────────────────────┘
//
// Dispatch (Map) and completion (EndIO) hold the device lock for constant
// time. Group activation and redispatch of held requests run on a
// workqueue.Queue, one work item at a time per device, and hand requests
// back through an Issuer.
//
// # Table format
//
//	<#features> [<feature>]*
//	<#hw-args> [<hw-handler> [<hw-arg>]*]
//	<#groups> <initial-group>
//	( <selector> <#selector-args> [<selector-arg>]*
//	  <#paths> <#per-path-args> ( <path-id> [<per-path-arg>]* )+ )+
//
// For example, two paths rotated one request at a time, with requests held
// while both are down:
//
//	1 queue_if_no_path 0 1 1 round-robin 0 2 0 sda sdb
//
// # Usage
//
//	m, err := mpath.NewFromTable("vol0", table, resolve,
//	    mpath.WithIssuer(target),
//	    mpath.WithQueue(pool.NewQueue("vol0")),
//	    mpath.WithLogger(logger))
//
//	res, err := m.Map(req)
//	if res == mpath.MapRemapped {
//	    err = req.Path().Device().Submit(ctx, req)
//	    res, err := m.EndIO(req, err)
//	    ...
//	}
package mpath
