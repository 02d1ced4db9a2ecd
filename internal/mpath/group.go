package mpath

// PriorityGroup is a ranked set of paths sharing one selector. Groups are
// tried in ascending Num order.
type PriorityGroup struct {
	m        *Multipath // owner; never outlives it
	num      uint
	bypassed bool
	selector Selector
	paths    []*Path
}

// Num returns the 1-based group number
func (pg *PriorityGroup) Num() uint {
	return pg.num
}

// Selector returns the group's path selector
func (pg *PriorityGroup) Selector() Selector {
	return pg.selector
}

// GroupState is a point-in-time copy of a group's state
type GroupState struct {
	Num      uint        `json:"num"`
	Selector string      `json:"selector"`
	Bypassed bool        `json:"bypassed"`
	Current  bool        `json:"current"`
	Paths    []PathState `json:"paths"`
}

func newPriorityGroup(m *Multipath, num uint, selector Selector) *PriorityGroup {
	return &PriorityGroup{m: m, num: num, selector: selector}
}

func (pg *PriorityGroup) addPath(dev Device, args []string) (*Path, error) {
	p := &Path{dev: dev, group: pg, active: true}
	if err := pg.selector.AddPath(p, args); err != nil {
		return nil, err
	}
	pg.paths = append(pg.paths, p)
	return p, nil
}
