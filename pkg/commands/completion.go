package commands

import (
	"context"
	"os"
	"time"

	"github.com/spf13/cobra"

	"tableflip.dev/sandlab/pkg/ledger"
	"tableflip.dev/sandlab/pkg/store"
	"tableflip.dev/sandlab/pkg/workflow"
)

func addCompletions(topLevel *cobra.Command) {
	cmd := &cobra.Command{
		Use:   "completion",
		Short: "Generates bash completion scripts",
		Long: `To load completion run

. <(sandlab completion)

To configure your bash shell to load completions for each session add to your bashrc

# ~/.bashrc or ~/.profile
. <(sandlab completion)
`,
		Run: func(cmd *cobra.Command, args []string) {
			_ = topLevel.GenBashCompletion(os.Stdout)
		},
	}

	topLevel.AddCommand(cmd)
}

// registerCompletions wires flag completions for the flags cmd has.
func registerCompletions(cmd *cobra.Command) {
	if cmd.Flags().Lookup("on") != nil {
		_ = cmd.RegisterFlagCompletionFunc("on", func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
			return dateCompletions(time.Now()), cobra.ShellCompDirectiveNoFileComp
		})
	}
	if cmd.Flags().Lookup("table") != nil {
		_ = cmd.RegisterFlagCompletionFunc("table", func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
			return tableCompletions(), cobra.ShellCompDirectiveNoFileComp
		})
	}
}

// dateCompletions offers the last week plus every stored day of the
// configured workflow.
func dateCompletions(now time.Time) []string {
	seen := map[string]bool{}
	out := []string{"today", "yesterday"}
	for i := 0; i < 7; i++ {
		d := now.AddDate(0, 0, -i).Format(ledger.LayoutISO)
		seen[d] = true
		out = append(out, d)
	}
	e, err := openEnv(lo, true)
	if err != nil {
		return out
	}
	defer e.Close()
	keys, err := e.local.Keys(context.Background())
	if err != nil {
		return out
	}
	for i := len(keys) - 1; i >= 0; i-- {
		if d := keys[i].Date; !seen[d] {
			seen[d] = true
			out = append(out, d)
		}
	}
	return out
}

func tableCompletions() []string {
	name := lo.Workflow
	if name == "" {
		if s, err := store.LoadConfig(); err == nil {
			name = s.Workflow
		}
	}
	wf, err := workflow.Lookup(name)
	if err != nil {
		return nil
	}
	out := make([]string, 0, len(wf.Tables))
	for _, t := range wf.Tables {
		out = append(out, t.Name)
	}
	return out
}
