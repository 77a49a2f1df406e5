package workflow

import "tableflip.dev/sandlab/pkg/ledger"

// Sand table numbers.
const (
	SandAddition = 1
	ClayTests    = 2
	MixRun       = 3
	MouldingSand = 4
	Events       = 5
)

// Sand is the sand testing record: one record per date, five tables filled in
// by the three shifts.
var Sand = register(&Workflow{
	Name:  "sand",
	Title: "Sand Testing Record",
	Tables: []*ledger.Table{
		ledger.MustTable(SandAddition, "sandAddition", "Sand & additive addition",
			ledger.ShiftSections(nil, ledger.Lists("rSand", "nSand", "mixingMode", "bentonite", "coalDustPremix"))...),

		ledger.MustTable(ClayTests, "clayTests", "Clay tests",
			ledger.ShiftSections(ledger.Scalars("totalClay", "activeClay", "deadClay", "vcm", "loi", "afsNo", "fines"), nil)...),

		ledger.MustTable(MixRun, "mixRun", "Mix run",
			append(ledger.ShiftSections(nil, []ledger.Sequence{{
				Name: "mix",
				Columns: []ledger.Column{
					{Name: "mixNoStart", Wire: ledger.Wire("mixno.start")},
					{Name: "mixNoEnd", Wire: ledger.Wire("mixno.end")},
					{Name: "mixNoTotal", Wire: ledger.Wire("mixno.total")},
					{Name: "noOfMixRejected"},
					{Name: "returnSandHopperLevel"},
				},
			}}), ledger.SectionSpec{
				Section: ledger.SectionTotal,
				Scalars: []ledger.Scalar{
					{Name: "mixNoStart", Wire: ledger.Wire("mixno.start")},
					{Name: "mixNoEnd", Wire: ledger.Wire("mixno.end")},
					{Name: "mixNoTotal", Wire: ledger.Wire("mixno.total")},
					{Name: "noOfMixRejected"},
				},
			})...),

		ledger.MustTable(MouldingSand, "mouldingSand", "Moulding sand properties",
			append([]ledger.SectionSpec{{
				Section: ledger.SectionTable,
				Scalars: ledger.Scalars("sandLump", "newSandWt"),
			}}, ledger.ShiftSections(nil, []ledger.Sequence{{
				Name: "tests",
				Columns: []ledger.Column{
					{Name: "time"},
					{Name: "compactability"},
					{Name: "permeability"},
					{Name: "gcs"},
					{Name: "moisture"},
				},
			}})...)...),

		ledger.MustTable(Events, "events", "Events & remarks",
			ledger.SectionSpec{
				Section: "log",
				Sequences: []ledger.Sequence{{
					Name:   "entries",
					Layout: ledger.Objects,
					Tag:    "sno",
					Columns: []ledger.Column{
						{Name: "time"},
						{Name: "shift"},
						{Name: "mixNo"},
						{Name: "event"},
						{Name: "remarks"},
					},
				}},
			}),
	},
})
