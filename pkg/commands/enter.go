package commands

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"tableflip.dev/sandlab/pkg/commands/options"
	"tableflip.dev/sandlab/pkg/ledger"
	"tableflip.dev/sandlab/pkg/runner/enter"
)

func addEnter(topLevel *cobra.Command) {
	on := &options.OnOptions{}
	to := &options.TableOptions{}
	dryRun := false

	cmd := &cobra.Command{
		Use:   "enter path=value...",
		Short: "Set values of one table and submit them.",
		Long: `Set values of one table of a daily record and submit them.

Values that were committed before are write-once and are skipped. Run
"sandlab tables" for the paths of every field.`,
		Example: `
sandlab enter -t clayTests shiftI.vcm=2.1 shiftI.loi=4.4
sandlab enter -t 1 --on yesterday shiftII.rSand[0]=120
sandlab enter -w process -u DISA-1 -t pouring shiftI.operator=ravi
`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true
			values, err := enter.ParseAssignments(args)
			if err != nil {
				return err
			}
			e, err := openEnv(lo, false)
			if err != nil {
				return err
			}
			defer e.Close()

			t, err := to.One(e.workflow)
			if err != nil {
				return err
			}
			key, err := on.Key(e.workflow, time.Now())
			if err != nil {
				return err
			}
			n := enter.Enter{
				Remote: e.remote,
				Table:  t,
				Key:    key,
				Values: values,
				DryRun: dryRun,
				Out:    cmd.OutOrStdout(),
				Logger: e.logger,
			}
			return oo.HandleError(n.Do(cmd.Context()))
		},
	}
	options.AddOnArgs(cmd, on)
	options.AddTableArgs(cmd, to)
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Print the payload instead of submitting it.")
	registerCompletions(cmd)

	topLevel.AddCommand(cmd)
}

func addAppend(topLevel *cobra.Command) {
	on := &options.OnOptions{}
	to := &options.TableOptions{}
	var (
		section string
		dryRun  bool
	)

	cmd := &cobra.Command{
		Use:   "append sequence value...|column=value...",
		Short: "Append rows to a sequence of one table and submit them.",
		Long: `Append rows to a sequence of one table and submit them.

Bare values each become a row of a single-column sequence. column=value
arguments together form one row of a sequence with several columns.`,
		Example: `
sandlab append -t sandAddition -s shiftI rSand 120 95
sandlab append -t mixRun -s shiftII mix mixNoStart=101 mixNoEnd=140
sandlab append -t events -s log entries time=07:40 event="mixer stopped"
`,
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true
			if section == "" {
				return fmt.Errorf("--section is required")
			}
			rows, err := enter.ParseRows(args[0], args[1:])
			if err != nil {
				return err
			}
			e, err := openEnv(lo, false)
			if err != nil {
				return err
			}
			defer e.Close()

			t, err := to.One(e.workflow)
			if err != nil {
				return err
			}
			key, err := on.Key(e.workflow, time.Now())
			if err != nil {
				return err
			}
			n := enter.Append{
				Remote:   e.remote,
				Table:    t,
				Key:      key,
				Section:  ledger.Section(section),
				Sequence: args[0],
				Rows:     rows,
				DryRun:   dryRun,
				Out:      cmd.OutOrStdout(),
				Logger:   e.logger,
			}
			return oo.HandleError(n.Do(cmd.Context()))
		},
	}
	options.AddOnArgs(cmd, on)
	options.AddTableArgs(cmd, to)
	cmd.Flags().StringVarP(&section, "section", "s", "", "Section holding the sequence, for example shiftI, total or log.")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Print the payload instead of submitting it.")
	registerCompletions(cmd)

	topLevel.AddCommand(cmd)
}
