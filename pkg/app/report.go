package app

import (
	"context"
	"time"

	"tableflip.dev/sandlab/pkg/ledger"
)

// ReportTable summarises how far one table of a daily record has been filled.
type ReportTable struct {
	Num   int    `json:"tableNum"`
	Name  string `json:"name"`
	Title string `json:"title"`
	// Scalars counts set write-once fields out of ScalarsTotal.
	Scalars      int `json:"scalars"`
	ScalarsTotal int `json:"scalarsTotal"`
	// Rows counts committed sequence rows across all sections.
	Rows int `json:"rows"`
}

// ReportDay groups the table summaries of one record.
type ReportDay struct {
	Key     ledger.Key    `json:"key"`
	Updated time.Time     `json:"updatedAt"`
	Tables  []ReportTable `json:"tables"`
}

// ReportResult encapsulates a fill report for a window of days.
type ReportResult struct {
	Since time.Time   `json:"since"`
	Until time.Time   `json:"until"`
	Days  []ReportDay `json:"days"`
	// Total is the number of committed values across the window.
	Total int `json:"total"`
}

// Report returns per-table fill counts for every stored record dated between
// the provided bounds.
func (s *Service) Report(ctx context.Context, since, until time.Time) (ReportResult, error) {
	if since.After(until) {
		since, until = until, since
	}
	keys, err := s.Keys(ctx)
	if err != nil {
		return ReportResult{}, err
	}
	from := since.Format(ledger.LayoutISO)
	to := until.Format(ledger.LayoutISO)

	result := ReportResult{Since: since, Until: until}
	for _, key := range keys {
		if key.Date < from || key.Date > to {
			continue
		}
		rec, err := s.Fetch(ctx, key)
		if err != nil {
			return ReportResult{}, err
		}
		if rec == nil {
			continue
		}
		day := ReportDay{Key: key, Updated: rec.Updated}
		for _, t := range s.Workflow.Tables {
			doc := rec.Table(t.Num)
			locks := ledger.DeriveLockMap(t, doc)
			state := ledger.Hydrate(t, doc, locks)
			rt := ReportTable{Num: t.Num, Name: t.Name, Title: t.Title}
			for _, p := range t.ScalarPaths() {
				rt.ScalarsTotal++
				if locks.Contains(p) {
					rt.Scalars++
				}
			}
			for _, sec := range t.Sections {
				for _, seq := range sec.Sequences {
					rt.Rows += state.Committed(sec.Section, seq.Name)
				}
			}
			result.Total += locks.Len()
			day.Tables = append(day.Tables, rt)
		}
		result.Days = append(result.Days, day)
	}
	return result, nil
}
