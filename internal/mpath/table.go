package mpath

import (
	"fmt"
	"strconv"
	"strings"
)

const (
	maxTableCount   = 1024
	maxPGInitRetry  = 50
	maxFeatureWords = 3
)

// Table is a parsed multipath table:
//
//	<#features> [<feature>]*
//	<#hw-args> [<hw-handler> [<hw-arg>]*]
//	<#groups> <initial-group>
//	( <selector> <#selector-args> [<selector-arg>]*
//	  <#paths> <#per-path-args> ( <path-id> [<per-path-arg>]* )+ )+
type Table struct {
	QueueIfNoPath bool
	PGInitRetries uint
	Handler       string
	HandlerArgs   []string
	NumGroups     uint
	InitialGroup  uint
	Groups        []GroupSpec
}

// GroupSpec describes one priority group of a table
type GroupSpec struct {
	Selector     string
	SelectorArgs []string
	Paths        []PathSpec
}

// PathSpec describes one path of a group
type PathSpec struct {
	ID   string
	Args []string
}

// argSet consumes table words front to back
type argSet struct {
	words []string
}

func (as *argSet) len() int {
	return len(as.words)
}

func (as *argSet) shift() (string, bool) {
	if len(as.words) == 0 {
		return "", false
	}
	w := as.words[0]
	as.words = as.words[1:]
	return w, true
}

func (as *argSet) take(n int) ([]string, bool) {
	if n > len(as.words) {
		return nil, false
	}
	out := as.words[:n:n]
	as.words = as.words[n:]
	return out, true
}

func (as *argSet) readUint(field string, min, max uint) (uint, error) {
	w, ok := as.shift()
	if !ok {
		return 0, tableErr(field, "missing value")
	}
	n, err := strconv.ParseUint(w, 10, 32)
	if err != nil || uint(n) < min || uint(n) > max {
		return 0, tableErr(field, fmt.Sprintf("invalid value %q", w))
	}
	return uint(n), nil
}

// ParseTable parses the text form of a multipath table
func ParseTable(text string) (*Table, error) {
	as := &argSet{words: strings.Fields(text)}
	t := &Table{}

	if err := t.parseFeatures(as); err != nil {
		return nil, err
	}
	if err := t.parseHandler(as); err != nil {
		return nil, err
	}

	var err error
	if t.NumGroups, err = as.readUint("priority group count", 0, maxTableCount); err != nil {
		return nil, err
	}
	if t.InitialGroup, err = as.readUint("initial priority group", 0, maxTableCount); err != nil {
		return nil, err
	}
	if (t.NumGroups > 0 && t.InitialGroup == 0) || t.InitialGroup > t.NumGroups {
		return nil, tableErr("initial priority group", "out of range")
	}

	for as.len() > 0 {
		g, err := parseGroup(as)
		if err != nil {
			return nil, fmt.Errorf("priority group %d: %w", len(t.Groups)+1, err)
		}
		t.Groups = append(t.Groups, g)
	}

	if uint(len(t.Groups)) != t.NumGroups {
		return nil, &TableError{
			Field:  "priority group count",
			Reason: fmt.Sprintf("declared %d, found %d", t.NumGroups, len(t.Groups)),
			Err:    ErrConfigMismatch,
		}
	}
	return t, nil
}

func (t *Table) parseFeatures(as *argSet) error {
	n, err := as.readUint("feature count", 0, maxFeatureWords)
	if err != nil {
		return err
	}
	words, ok := as.take(int(n))
	if !ok {
		return tableErr("features", "not enough feature arguments")
	}

	for i := 0; i < len(words); i++ {
		switch words[i] {
		case "queue_if_no_path":
			t.QueueIfNoPath = true
		case "pg_init_retries":
			if i+1 >= len(words) {
				return tableErr("pg_init_retries", "missing value")
			}
			i++
			v, err := strconv.ParseUint(words[i], 10, 32)
			if err != nil || v < 1 || v > maxPGInitRetry {
				return tableErr("pg_init_retries", fmt.Sprintf("invalid value %q", words[i]))
			}
			t.PGInitRetries = uint(v)
		default:
			return tableErr("features", fmt.Sprintf("unrecognised feature %q", words[i]))
		}
	}
	return nil
}

func (t *Table) parseHandler(as *argSet) error {
	n, err := as.readUint("hardware handler argument count", 0, maxTableCount)
	if err != nil {
		return err
	}
	if n == 0 {
		return nil
	}
	words, ok := as.take(int(n))
	if !ok {
		return tableErr("hardware handler", "not enough arguments")
	}
	t.Handler = words[0]
	t.HandlerArgs = words[1:]
	return nil
}

func parseGroup(as *argSet) (GroupSpec, error) {
	var g GroupSpec

	name, ok := as.shift()
	if !ok {
		return g, tableErr("path selector", "missing name")
	}
	g.Selector = name

	argc, err := as.readUint("path selector argument count", 0, maxTableCount)
	if err != nil {
		return g, err
	}
	if g.SelectorArgs, ok = as.take(int(argc)); !ok {
		return g, tableErr("path selector", "not enough arguments")
	}

	nrPaths, err := as.readUint("path count", 1, maxTableCount)
	if err != nil {
		return g, err
	}
	perPath, err := as.readUint("per-path argument count", 0, maxTableCount)
	if err != nil {
		return g, err
	}

	for i := uint(0); i < nrPaths; i++ {
		if as.len() < int(perPath)+1 {
			return g, tableErr("paths", "not enough path parameters")
		}
		id, _ := as.shift()
		args, _ := as.take(int(perPath))
		g.Paths = append(g.Paths, PathSpec{ID: id, Args: args})
	}
	return g, nil
}
