// Package mcp provides the Model Context Protocol server integration for
// sandlab.
package mcp

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"tableflip.dev/sandlab/pkg/coordinator"
	"tableflip.dev/sandlab/pkg/ledger"
	"tableflip.dev/sandlab/pkg/logging"
	"tableflip.dev/sandlab/pkg/workflow"
)

// KeyLister lists the stored record keys of a workflow.
type KeyLister interface {
	Keys(ctx context.Context) ([]ledger.Key, error)
}

// Service coordinates the ledger operations shared by the MCP tools and
// resources. Every call loads the record fresh, so concurrent agents see the
// same committed values as the operators do.
type Service struct {
	Remote   coordinator.Remote
	Workflow *workflow.Workflow
	// Keys is optional; without it list_days is unavailable.
	Keys   KeyLister
	Logger *zap.Logger
}

// ErrUnknownTable is returned when a table can not be resolved.
var ErrUnknownTable = errors.New("unknown table")

// NewService builds a service for wf on top of remote.
func NewService(remote coordinator.Remote, wf *workflow.Workflow, keys KeyLister, logger *zap.Logger) *Service {
	return &Service{Remote: remote, Workflow: wf, Keys: keys, Logger: logging.OrNop(logger)}
}

// FieldDTO describes one addressable field of a table.
type FieldDTO struct {
	Path string `json:"path"`
	Kind string `json:"kind"`
}

// TableSummary describes a table and its fields.
type TableSummary struct {
	Num    int        `json:"tableNum"`
	Name   string     `json:"name"`
	Title  string     `json:"title"`
	Fields []FieldDTO `json:"fields"`
}

// ValueDTO is one field of a loaded table.
type ValueDTO struct {
	Path      string `json:"path"`
	Value     string `json:"value"`
	Committed bool   `json:"committed"`
}

// TableView is a transport-friendly projection of one table of a record.
type TableView struct {
	Key       string     `json:"key"`
	Num       int        `json:"tableNum"`
	Title     string     `json:"title"`
	Committed int        `json:"committed"`
	Values    []ValueDTO `json:"values"`
}

// SubmitDTO reports the outcome of set_values and append_row.
type SubmitDTO struct {
	Key      string   `json:"key"`
	Num      int      `json:"tableNum"`
	Message  string   `json:"message"`
	Rejected []string `json:"rejected,omitempty"`
	// Skipped lists paths that were already committed when the record was
	// loaded and so were never sent.
	Skipped []string `json:"skipped,omitempty"`
}

func (s *Service) ready() error {
	if s.Remote == nil {
		return errors.New("storage engine is not configured")
	}
	if s.Workflow == nil {
		return errors.New("workflow is not configured")
	}
	return nil
}

// Table resolves a table by number or name.
func (s *Service) Table(ref string) (*ledger.Table, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	t, ok := s.Workflow.TableByName(strings.TrimSpace(ref))
	if !ok {
		return nil, fmt.Errorf("%w %q in workflow %s", ErrUnknownTable, ref, s.Workflow.Name)
	}
	return t, nil
}

// ListTables describes every table of the workflow.
func (s *Service) ListTables() ([]TableSummary, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	out := make([]TableSummary, 0, len(s.Workflow.Tables))
	for _, t := range s.Workflow.Tables {
		out = append(out, summarize(t))
	}
	return out, nil
}

func summarize(t *ledger.Table) TableSummary {
	sum := TableSummary{Num: t.Num, Name: t.Name, Title: t.Title}
	for _, sec := range t.Sections {
		for _, sc := range sec.Scalars {
			sum.Fields = append(sum.Fields, FieldDTO{Path: ledger.ScalarPath(sec.Section, sc.Name).String(), Kind: "once"})
		}
		for _, seq := range sec.Sequences {
			if seq.Layout == ledger.Objects {
				for _, col := range seq.Columns {
					sum.Fields = append(sum.Fields, FieldDTO{Path: ledger.CellPath(sec.Section, seq.Name, 0, col.Name).String(), Kind: "row"})
				}
				continue
			}
			kind := "list"
			if len(seq.Columns) > 1 {
				kind = "row"
			}
			for _, col := range seq.Columns {
				sum.Fields = append(sum.Fields, FieldDTO{Path: ledger.SeqPath(sec.Section, col.Name, 0).String(), Kind: kind})
			}
		}
	}
	return sum
}

// Key validates a record key for the workflow.
func (s *Service) Key(date, unit string) (ledger.Key, error) {
	if err := s.ready(); err != nil {
		return ledger.Key{}, err
	}
	return s.Workflow.Key(strings.TrimSpace(date), strings.TrimSpace(unit))
}

// GetTable loads one table of the record for key.
func (s *Service) GetTable(ctx context.Context, key ledger.Key, ref string) (TableView, error) {
	t, err := s.Table(ref)
	if err != nil {
		return TableView{}, err
	}
	rec, err := s.Remote.Fetch(ctx, key)
	if err != nil {
		return TableView{}, err
	}
	return view(key, t, rec), nil
}

// GetRecord loads every table of the record for key.
func (s *Service) GetRecord(ctx context.Context, key ledger.Key) ([]TableView, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	rec, err := s.Remote.Fetch(ctx, key)
	if err != nil {
		return nil, err
	}
	out := make([]TableView, 0, len(s.Workflow.Tables))
	for _, t := range s.Workflow.Tables {
		out = append(out, view(key, t, rec))
	}
	return out, nil
}

func view(key ledger.Key, t *ledger.Table, rec *ledger.Record) TableView {
	doc := rec.Table(t.Num)
	st := ledger.Hydrate(t, doc, ledger.DeriveLockMap(t, doc))
	v := TableView{Key: Ref(key), Num: t.Num, Title: t.Title, Committed: st.LockMap().Len(), Values: []ValueDTO{}}
	for _, sec := range t.Sections {
		for _, sc := range sec.Scalars {
			val, ro, _ := st.Scalar(sec.Section, sc.Name)
			if val == "" {
				continue
			}
			v.Values = append(v.Values, ValueDTO{Path: ledger.ScalarPath(sec.Section, sc.Name).String(), Value: val, Committed: ro})
		}
		for _, seq := range sec.Sequences {
			for i, row := range st.Rows(sec.Section, seq.Name) {
				for c, val := range row.Cells {
					if val == "" {
						continue
					}
					p, err := st.EditPath(sec.Section, seq.Name, i, c)
					if err != nil {
						continue
					}
					v.Values = append(v.Values, ValueDTO{Path: p.String(), Value: val, Committed: row.ReadOnly})
				}
			}
		}
	}
	return v
}

// SetValues types values, keyed by field path, into one table and submits
// it. Paths that are already committed are skipped and reported.
func (s *Service) SetValues(ctx context.Context, key ledger.Key, ref string, values map[string]string) (SubmitDTO, error) {
	t, err := s.Table(ref)
	if err != nil {
		return SubmitDTO{}, err
	}
	c := coordinator.New(t, s.Remote, s.Logger)
	if err := c.SelectDate(ctx, key); err != nil {
		return SubmitDTO{}, err
	}

	paths := make([]string, 0, len(values))
	for p := range values {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	var skipped []string
	for _, raw := range paths {
		p, err := ledger.ParsePath(raw)
		if err != nil {
			return SubmitDTO{}, err
		}
		if err := c.Set(p, values[raw]); err != nil {
			if errors.Is(err, ledger.ErrLocked) {
				skipped = append(skipped, p.String())
				continue
			}
			return SubmitDTO{}, err
		}
	}
	return s.submit(ctx, c, skipped)
}

// AppendRow adds one row, keyed by column name, to a sequence of a table and
// submits it.
func (s *Service) AppendRow(ctx context.Context, key ledger.Key, ref string, section ledger.Section, sequence string, cells map[string]string) (SubmitDTO, error) {
	t, err := s.Table(ref)
	if err != nil {
		return SubmitDTO{}, err
	}
	if len(cells) == 0 {
		return SubmitDTO{}, errors.New("row has no cells")
	}
	c := coordinator.New(t, s.Remote, s.Logger)
	if err := c.SelectDate(ctx, key); err != nil {
		return SubmitDTO{}, err
	}
	if err := c.AppendRow(section, sequence, cells); err != nil {
		return SubmitDTO{}, err
	}
	return s.submit(ctx, c, nil)
}

func (s *Service) submit(ctx context.Context, c *coordinator.Coordinator, skipped []string) (SubmitDTO, error) {
	res, err := c.Submit(ctx)
	if err != nil && !errors.Is(err, coordinator.ErrRefreshFailed) {
		return SubmitDTO{}, err
	}
	return SubmitDTO{
		Key:      Ref(c.Key()),
		Num:      c.Table().Num,
		Message:  res.Message,
		Rejected: res.Rejected,
		Skipped:  skipped,
	}, nil
}

// ListDays returns the stored record keys of the workflow, newest first.
func (s *Service) ListDays(ctx context.Context, limit int) ([]string, error) {
	if s.Keys == nil {
		return nil, errors.New("listing days needs a local store")
	}
	keys, err := s.Keys.Keys(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(keys))
	for i := len(keys) - 1; i >= 0; i-- {
		out = append(out, Ref(keys[i]))
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

// ParseRef parses a record reference of the form "2024-05-01" or, for
// workflows kept per unit, "2024-05-01@DISA-1".
func (s *Service) ParseRef(ref string) (ledger.Key, error) {
	date, unit, _ := strings.Cut(ref, "@")
	return s.Key(date, unit)
}

// Ref is the inverse of ParseRef.
func Ref(k ledger.Key) string {
	if k.Unit == "" {
		return k.Date
	}
	return k.Date + "@" + k.Unit
}
