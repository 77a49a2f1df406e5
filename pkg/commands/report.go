package commands

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	base "github.com/n3wscott/cli-base/pkg/commands/options"

	"tableflip.dev/sandlab/pkg/app"
	"tableflip.dev/sandlab/pkg/commands/options"
	"tableflip.dev/sandlab/pkg/printers"
	"tableflip.dev/sandlab/pkg/timeutil"
)

func addReport(topLevel *cobra.Command) {
	wo := &options.WindowOptions{}
	fo := &options.FormatOptions{}

	cmd := &cobra.Command{
		Use:   "report",
		Short: "Summarize the committed values of recent days.",
		Long: `Report lists the days with a record within the time window, the number of
committed values per table, and a calendar of the covered months.

Examples:
  sandlab report
  sandlab report --last 3d
  sandlab report --last 4w -o yaml`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cmd.SilenceUsage = true
			duration, label, err := wo.Duration()
			if err != nil {
				return err
			}
			format, err := fo.Format(oo.JSON)
			if err != nil {
				return err
			}
			e, err := openEnv(lo, true)
			if err != nil {
				return err
			}
			defer e.Close()

			until := time.Now()
			since := timeutil.DaysBack(until, duration)
			result, err := e.local.Report(cmd.Context(), since, until)
			if err != nil {
				return err
			}
			if format != printers.FormatText {
				return printers.Encode(cmd.OutOrStdout(), format, result)
			}
			renderReport(cmd.OutOrStdout(), result, label)
			return nil
		},
	}

	options.AddLastArgs(cmd, wo)
	options.AddFormatArgs(cmd, fo)
	base.AddOutputArg(cmd, oo)
	topLevel.AddCommand(cmd)
}

func renderReport(w io.Writer, result app.ReportResult, label string) {
	since := result.Since.Local().Format("2006-01-02 15:04")
	until := result.Until.Local().Format("2006-01-02 15:04")
	_, _ = fmt.Fprintf(w, "Report · last %s (%s → %s)\n", label, since, until)

	if len(result.Days) == 0 {
		_, _ = fmt.Fprintln(w, "  No records found in this window.")
		_, _ = fmt.Fprintln(w)
		return
	}

	filled := make(map[string]bool, len(result.Days))
	for _, day := range result.Days {
		filled[day.Key.Date] = true
		_, _ = fmt.Fprintf(w, "\n%s\n", day.Key)
		for _, t := range day.Tables {
			_, _ = fmt.Fprintf(w, "  %d. %-28s %d/%d set, %d rows\n", t.Num, t.Title, t.Scalars, t.ScalarsTotal, t.Rows)
		}
	}
	_, _ = fmt.Fprintf(w, "\n%d committed values\n\n", result.Total)

	pp := printers.PrettyPrint{Out: w}
	pp.Months(result.Since, result.Until, filled)
}
