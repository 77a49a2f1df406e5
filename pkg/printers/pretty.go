package printers

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/fatih/color"
	"github.com/gosuri/uitable"

	"tableflip.dev/sandlab/pkg/ledger"
)

// PrettyPrint renders ledger tables for a terminal.
type PrettyPrint struct {
	Out io.Writer
	// ShowBlank also prints the trailing blank row of every sequence.
	ShowBlank bool
}

const lockMark = "•"

func (pp *PrettyPrint) out() io.Writer {
	if pp.Out == nil {
		return color.Output
	}
	return pp.Out
}

func (pp *PrettyPrint) NewLine() {
	_, _ = fmt.Fprintln(pp.out(), "")
}

func (pp *PrettyPrint) Title(title string) {
	t := color.New(color.Bold, color.Underline)
	_, _ = t.Fprintln(pp.out(), title)
}

func (pp *PrettyPrint) TitleWithCount(title string, count int) {
	t := color.New(color.Bold, color.Underline)
	c := color.New(color.Faint)

	_, _ = t.Fprint(pp.out(), title)
	_, _ = c.Fprintf(pp.out(), " - %d", count)

	switch count {
	case 1:
		_, _ = c.Fprintln(pp.out(), " value")
	default:
		_, _ = c.Fprintln(pp.out(), " values")
	}
}

// Table prints every section of s. Committed values carry a lock mark and
// unsaved input is highlighted.
func (pp *PrettyPrint) Table(s *ledger.State) {
	t := s.Table()
	pp.TitleWithCount(fmt.Sprintf("%d. %s", t.Num, t.Title), s.LockMap().Len())

	heading := color.New(color.Italic, color.FgCyan)
	for _, sec := range t.Sections {
		_, _ = heading.Fprintln(pp.out(), sectionTitle(sec.Section))
		if len(sec.Scalars) > 0 {
			pp.scalars(s, sec)
		}
		for i := range sec.Sequences {
			pp.sequence(s, sec.Section, &sec.Sequences[i])
		}
	}
	pp.NewLine()
}

func sectionTitle(sec ledger.Section) string {
	if sh, ok := sec.Shift(); ok {
		return "Shift " + sh.String()
	}
	name := string(sec)
	if name == "" {
		return ""
	}
	return strings.ToUpper(name[:1]) + name[1:]
}

func (pp *PrettyPrint) scalars(s *ledger.State, sec ledger.SectionSpec) {
	tbl := uitable.New()
	tbl.Separator = "  "
	for _, sc := range sec.Scalars {
		v, ro, _ := s.Scalar(sec.Section, sc.Name)
		tbl.AddRow("  "+sc.Name, cell(v, ro))
	}
	_, _ = fmt.Fprintln(pp.out(), tbl)
}

func (pp *PrettyPrint) sequence(s *ledger.State, section ledger.Section, seq *ledger.Sequence) {
	bold := color.New(color.Bold)
	faint := color.New(color.Faint, color.Italic)

	rows := s.Rows(section, seq.Name)
	if !pp.ShowBlank && len(rows) > 0 && blank(rows[len(rows)-1].Cells) {
		rows = rows[:len(rows)-1]
	}
	if len(rows) == 0 {
		_, _ = faint.Fprintf(pp.out(), "  %s: none\n", seq.Name)
		return
	}

	tbl := uitable.New()
	tbl.Separator = "  "
	header := []any{bold.Sprint("  #")}
	for _, col := range seq.Columns {
		header = append(header, bold.Sprint(col.Name))
	}
	if len(seq.Columns) > 1 || seq.Layout == ledger.Objects {
		_, _ = fmt.Fprintln(pp.out(), "  "+seq.Name)
	}
	tbl.AddRow(header...)
	for i, r := range rows {
		line := []any{"  " + strconv.Itoa(i)}
		for _, v := range r.Cells {
			line = append(line, cell(v, r.ReadOnly))
		}
		tbl.AddRow(line...)
	}
	tbl.RightAlign(0)
	_, _ = fmt.Fprintln(pp.out(), tbl)
}

func cell(v string, readOnly bool) string {
	switch {
	case readOnly && strings.TrimSpace(v) != "":
		return v + " " + color.New(color.Faint).Sprint(lockMark)
	case readOnly:
		return color.New(color.Faint).Sprint("-")
	case strings.TrimSpace(v) != "":
		return color.New(color.FgHiYellow).Sprint(v)
	default:
		return ""
	}
}

func blank(cells []string) bool {
	for _, v := range cells {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

// Result prints the storage engine's answer to one table submission.
func (pp *PrettyPrint) Result(table int, message string, rejected []string, err error) {
	switch {
	case err != nil:
		_, _ = color.New(color.FgRed).Fprintf(pp.out(), "table %d: %v\n", table, err)
	case len(rejected) > 0:
		_, _ = color.New(color.FgYellow).Fprintln(pp.out(), message)
	default:
		_, _ = color.New(color.FgGreen).Fprintln(pp.out(), message)
	}
}
