// Package workflow defines the recording workflows of the lab and the tables
// each of them submits.
package workflow

import (
	"fmt"
	"sort"
	"strings"

	"tableflip.dev/sandlab/pkg/ledger"
)

// Workflow is a set of independently submitted tables that share one daily
// record.
type Workflow struct {
	Name  string
	Title string
	// UnitRequired is set when records are partitioned per equipment unit as
	// well as per date.
	UnitRequired bool
	Tables       []*ledger.Table
}

// Table returns the table with the given number.
func (w *Workflow) Table(num int) (*ledger.Table, bool) {
	for _, t := range w.Tables {
		if t.Num == num {
			return t, true
		}
	}
	return nil, false
}

// TableByName finds a table by name or number.
func (w *Workflow) TableByName(name string) (*ledger.Table, bool) {
	name = strings.TrimSpace(name)
	for _, t := range w.Tables {
		if strings.EqualFold(t.Name, name) || fmt.Sprint(t.Num) == name {
			return t, true
		}
	}
	return nil, false
}

// Key validates a record key against the workflow's partitioning.
func (w *Workflow) Key(date, unit string) (ledger.Key, error) {
	k, err := ledger.ParseKey(date, unit)
	if err != nil {
		return ledger.Key{}, err
	}
	if w.UnitRequired && k.Unit == "" {
		return ledger.Key{}, fmt.Errorf("%w: workflow %q requires a unit key", ledger.ErrInvalidKey, w.Name)
	}
	if !w.UnitRequired && k.Unit != "" {
		return ledger.Key{}, fmt.Errorf("%w: workflow %q is keyed by date only", ledger.ErrInvalidKey, w.Name)
	}
	return k, nil
}

var registry = map[string]*Workflow{}

func register(w *Workflow) *Workflow {
	registry[w.Name] = w
	return w
}

// Lookup returns the named workflow.
func Lookup(name string) (*Workflow, error) {
	w, ok := registry[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return nil, fmt.Errorf("workflow: unknown workflow %q (known: %s)", name, strings.Join(Names(), ", "))
	}
	return w, nil
}

// Names lists the registered workflows.
func Names() []string {
	names := make([]string, 0, len(registry))
	for n := range registry {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
