package storage

import (
	"fmt"
	"regexp"
	"sort"
)

// Tables names the (state, history) table pair backing one dataset.
type Tables struct {
	State   string
	History string
}

// ConfigError reports a dataset routing misconfiguration. It is returned
// before any ingestion begins, never mid-batch.
type ConfigError struct {
	Dataset string
	Reason  string
}

func (e *ConfigError) Error() string {
	if e.Dataset == "" {
		return fmt.Sprintf("dataset config: %s", e.Reason)
	}
	return fmt.Sprintf("dataset %q: %s", e.Dataset, e.Reason)
}

// Table identifiers are interpolated into SQL, so they are restricted to
// plain identifiers even though they come from trusted configuration.
var identRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Datasets maps dataset names to their table pairs. It is resolved once
// from configuration at startup and is immutable afterwards.
type Datasets struct {
	m map[string]Tables
}

// NewDatasets validates a raw configuration mapping. Each dataset must name
// exactly two tables: state first, then history.
func NewDatasets(cfg map[string][]string) (*Datasets, error) {
	if len(cfg) == 0 {
		return nil, &ConfigError{Reason: "no datasets configured"}
	}

	m := make(map[string]Tables, len(cfg))
	seen := make(map[string]string) // table name -> dataset, to catch overlap
	for name, tables := range cfg {
		if name == "" {
			return nil, &ConfigError{Reason: "empty dataset name"}
		}
		if len(tables) != 2 {
			return nil, &ConfigError{Dataset: name, Reason: fmt.Sprintf("expected 2 table names (state, history), got %d", len(tables))}
		}
		if tables[0] == tables[1] {
			return nil, &ConfigError{Dataset: name, Reason: "state and history tables must differ"}
		}
		for _, tbl := range tables {
			if !identRe.MatchString(tbl) {
				return nil, &ConfigError{Dataset: name, Reason: fmt.Sprintf("invalid table name %q", tbl)}
			}
			if other, dup := seen[tbl]; dup {
				return nil, &ConfigError{Dataset: name, Reason: fmt.Sprintf("table %q already used by dataset %q", tbl, other)}
			}
			seen[tbl] = name
		}
		m[name] = Tables{State: tables[0], History: tables[1]}
	}
	return &Datasets{m: m}, nil
}

// DefaultDatasets returns the standard civilian and military table pairs.
func DefaultDatasets() *Datasets {
	d, err := NewDatasets(map[string][]string{
		"civilian": {"aircraft", "positions"},
		"military": {"aircraft_military", "positions_military"},
	})
	if err != nil {
		panic(err) // static config, cannot fail
	}
	return d
}

// Resolve returns the table pair for a dataset.
func (d *Datasets) Resolve(name string) (Tables, error) {
	t, ok := d.m[name]
	if !ok {
		return Tables{}, &ConfigError{Dataset: name, Reason: "not configured"}
	}
	return t, nil
}

// Names returns the configured dataset names, sorted.
func (d *Datasets) Names() []string {
	names := make([]string, 0, len(d.m))
	for name := range d.m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
