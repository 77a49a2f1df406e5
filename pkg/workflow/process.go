package workflow

import "tableflip.dev/sandlab/pkg/ledger"

// Process is the process-control record kept per date and moulding line.
var Process = register(&Workflow{
	Name:         "process",
	Title:        "Process Control",
	UnitRequired: true,
	Tables: []*ledger.Table{
		ledger.MustTable(1, "pouring", "Pouring",
			ledger.ShiftSections(ledger.Scalars("operator"), ledger.Lists("pourTemp", "inoculant"))...),
	},
})
