package options

import (
	"strings"
	"time"

	"github.com/spf13/cobra"

	"tableflip.dev/sandlab/pkg/ledger"
	"tableflip.dev/sandlab/pkg/workflow"
)

const (
	layoutISO      = "2006-1-2"
	layoutISOShort = "1/2"
)

// OnOptions picks the daily record.
type OnOptions struct {
	OnString string
	Unit     string
}

func AddOnArgs(cmd *cobra.Command, o *OnOptions) {
	cmd.Flags().StringVar(&o.OnString, "on", "",
		`Specify a date, example: --on="2024-2-28", --on="2/28" or --on=yesterday. Defaults to today.`)
	cmd.Flags().StringVarP(&o.Unit, "unit", "u", "",
		"Equipment unit for workflows recorded per unit.")
}

// GetOn returns the selected day, relative to now.
func (o *OnOptions) GetOn(now time.Time) (time.Time, error) {
	switch strings.ToLower(strings.TrimSpace(o.OnString)) {
	case "", "today":
		return now, nil
	case "yesterday":
		return now.AddDate(0, 0, -1), nil
	}
	t, err := time.ParseInLocation(layoutISO, o.OnString, now.Location())
	if err != nil {
		// Let the year be the same.
		t, err = time.ParseInLocation(layoutISOShort, o.OnString, now.Location())
		if err != nil {
			return time.Time{}, err
		}
		t = t.AddDate(now.Year(), 0, 0)
		// Records are kept for days that happened; 12/30 typed on 1/2 means last year.
		if t.After(now) {
			t = t.AddDate(-1, 0, 0)
		}
	}
	return t, nil
}

// Key returns the record key for wf.
func (o *OnOptions) Key(wf *workflow.Workflow, now time.Time) (ledger.Key, error) {
	on, err := o.GetOn(now)
	if err != nil {
		return ledger.Key{}, err
	}
	return wf.Key(on.Format(ledger.LayoutISO), o.Unit)
}
