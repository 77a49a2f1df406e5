// Package form is the interactive editor of a daily record: one tab per table,
// a flat list of fields, and submit/refresh bound to keys.
package form

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"tableflip.dev/sandlab/pkg/coordinator"
	"tableflip.dev/sandlab/pkg/ledger"
	"tableflip.dev/sandlab/pkg/store"
	"tableflip.dev/sandlab/pkg/tui/theme"
	"tableflip.dev/sandlab/pkg/workflow"
)

type mode int

const (
	modeNormal mode = iota
	modeInsert
	modeDate
	modeHelp
)

// Options configures a form.
type Options struct {
	Context  context.Context
	Workflow *workflow.Workflow
	Ledger   *coordinator.Ledger
	Unit     string
	Day      time.Time
	// Events, when set, triggers a refresh whenever the loaded record changes
	// in storage.
	Events <-chan store.Event
}

// field is one editable slot as listed in the form.
type field struct {
	section  ledger.Section
	label    string
	path     ledger.FieldPath
	sequence string
	value    string
	readOnly bool
}

// Model contains UI state.
type Model struct {
	ctx    context.Context
	wf     *workflow.Workflow
	ledger *coordinator.Ledger
	tables []*coordinator.Coordinator
	unit   string
	day    time.Time
	events <-chan store.Event

	tab    int
	cursor int
	mode   mode
	input  textinput.Model

	status    string
	failed    bool
	quitArmed bool

	width  int
	height int
	theme  theme.Theme
}

// messages
type loadedMsg struct {
	key ledger.Key
	err error
}
type submittedMsg struct{ results []coordinator.TableResult }
type refreshedMsg struct{ err error }
type changedMsg struct{ event store.Event }
type errMsg struct{ err error }

// New creates a form for the tables of opts.Ledger.
func New(opts Options) Model {
	ctx := opts.Context
	if ctx == nil {
		ctx = context.Background()
	}
	day := opts.Day
	if day.IsZero() {
		day = time.Now()
	}

	ti := textinput.New()
	ti.CharLimit = 128
	ti.Prompt = ""
	ti.Cursor.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("218"))

	return Model{
		ctx:    ctx,
		wf:     opts.Workflow,
		ledger: opts.Ledger,
		tables: opts.Ledger.Tables(),
		unit:   opts.Unit,
		day:    day,
		events: opts.Events,
		input:  ti,
		status: "j/k move, i edit, a add row, s submit, S submit all, [/] day, ? help",
		theme:  theme.Default(),
	}
}

// Init loads the record of the initial day.
func (m Model) Init() tea.Cmd {
	if m.events != nil {
		return tea.Batch(m.load(m.day), m.waitForChange())
	}
	return m.load(m.day)
}

func (m Model) key(day time.Time) (ledger.Key, error) {
	if m.wf == nil {
		return ledger.ParseKey(day.Format(ledger.LayoutISO), m.unit)
	}
	return m.wf.Key(day.Format(ledger.LayoutISO), m.unit)
}

func (m Model) load(day time.Time) tea.Cmd {
	key, err := m.key(day)
	ctx, l := m.ctx, m.ledger
	return func() tea.Msg {
		if err != nil {
			return loadedMsg{key: key, err: err}
		}
		return loadedMsg{key: key, err: l.SelectDate(ctx, key)}
	}
}

func (m Model) refresh() tea.Cmd {
	ctx, l := m.ctx, m.ledger
	return func() tea.Msg {
		return refreshedMsg{err: l.Refresh(ctx)}
	}
}

func (m Model) submit(c *coordinator.Coordinator) tea.Cmd {
	ctx := m.ctx
	return func() tea.Msg {
		res, err := c.Submit(ctx)
		return submittedMsg{results: []coordinator.TableResult{{Table: c.Table().Num, Result: res, Err: err}}}
	}
}

func (m Model) submitAll() tea.Cmd {
	ctx, l := m.ctx, m.ledger
	return func() tea.Msg {
		return submittedMsg{results: l.SubmitAll(ctx)}
	}
}

func (m Model) waitForChange() tea.Cmd {
	events := m.events
	return func() tea.Msg {
		ev, ok := <-events
		if !ok {
			return nil
		}
		return changedMsg{event: ev}
	}
}

func (m *Model) current() *coordinator.Coordinator {
	if len(m.tables) == 0 {
		return nil
	}
	return m.tables[m.tab]
}

func (m *Model) loadedKey() ledger.Key {
	if c := m.current(); c != nil {
		return c.Key()
	}
	return ledger.Key{}
}

func fields(c *coordinator.Coordinator) []field {
	var out []field
	_ = c.View(func(s *ledger.State) {
		for _, sec := range s.Table().Sections {
			prefix := string(sec.Section) + "."
			for _, sc := range sec.Scalars {
				v, ro, _ := s.Scalar(sec.Section, sc.Name)
				out = append(out, field{section: sec.Section, label: sc.Name, path: ledger.ScalarPath(sec.Section, sc.Name), value: v, readOnly: ro})
			}
			for _, seq := range sec.Sequences {
				for i, row := range s.Rows(sec.Section, seq.Name) {
					for ci := range seq.Columns {
						p, err := s.EditPath(sec.Section, seq.Name, i, ci)
						if err != nil {
							continue
						}
						out = append(out, field{
							section:  sec.Section,
							label:    strings.TrimPrefix(p.String(), prefix),
							path:     p,
							sequence: seq.Name,
							value:    row.Cells[ci],
							readOnly: row.ReadOnly,
						})
					}
				}
			}
		}
	})
	return out
}

func (m *Model) selected() (field, bool) {
	c := m.current()
	if c == nil {
		return field{}, false
	}
	fs := fields(c)
	if len(fs) == 0 {
		return field{}, false
	}
	m.clamp(len(fs))
	return fs[m.cursor], true
}

func (m *Model) clamp(n int) {
	if m.cursor >= n {
		m.cursor = n - 1
	}
	if m.cursor < 0 {
		m.cursor = 0
	}
}

func (m *Model) setStatus(msg string) {
	m.status = msg
	m.failed = false
}

func (m *Model) setError(err error) {
	m.status = err.Error()
	m.failed = true
}

// Update handles messages and keybindings.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
	case errMsg:
		m.setError(msg.err)
	case loadedMsg:
		switch {
		case msg.err != nil:
			m.setError(msg.err)
			if k := m.loadedKey(); !k.IsZero() {
				if t, err := k.Time(); err == nil {
					m.day = t
				}
			}
		case msg.key == m.loadedKey():
			m.setStatus("loaded " + msg.key.String())
		}
	case refreshedMsg:
		if msg.err != nil {
			m.setError(msg.err)
		} else {
			m.setStatus("refreshed " + m.loadedKey().String())
		}
	case submittedMsg:
		m.applyResults(msg.results)
	case changedMsg:
		if m.events != nil {
			cmds = append(cmds, m.waitForChange())
		}
		if msg.event.Type != store.EventRecordChanged || msg.event.Key == m.loadedKey() {
			cmds = append(cmds, m.refresh())
		}
	case tea.KeyMsg:
		cmds = append(cmds, m.handleKey(msg)...)
	}
	return m, tea.Batch(cmds...)
}

func (m *Model) applyResults(results []coordinator.TableResult) {
	var (
		lines []string
		first error
	)
	for _, r := range results {
		switch {
		case r.Err != nil && errors.Is(r.Err, coordinator.ErrRefreshFailed):
			lines = append(lines, r.Result.Message+" (not refreshed)")
		case r.Err != nil:
			if first == nil {
				first = fmt.Errorf("table %d: %w", r.Table, r.Err)
			}
		default:
			lines = append(lines, r.Result.Message)
		}
	}
	if first != nil {
		m.setError(first)
		return
	}
	m.setStatus(strings.Join(lines, "; "))
}

func (m *Model) handleKey(msg tea.KeyMsg) []tea.Cmd {
	k := msg.String()
	if k == "ctrl+c" {
		return []tea.Cmd{tea.Quit}
	}
	switch m.mode {
	case modeHelp:
		if k == "q" || k == "esc" || k == "?" {
			m.mode = modeNormal
		}
		return nil
	case modeInsert, modeDate:
		return m.handleInput(msg)
	}

	if k != "q" {
		m.quitArmed = false
	}
	c := m.current()
	switch k {
	case "q":
		if m.ledger.Dirty() && !m.quitArmed {
			m.quitArmed = true
			m.setStatus("unsaved input, press q again to discard it")
			return nil
		}
		return []tea.Cmd{tea.Quit}
	case "?":
		m.mode = modeHelp
	case "tab", "l", "right":
		if len(m.tables) > 0 {
			m.tab = (m.tab + 1) % len(m.tables)
			m.cursor = 0
		}
	case "shift+tab", "h", "left":
		if len(m.tables) > 0 {
			m.tab = (m.tab + len(m.tables) - 1) % len(m.tables)
			m.cursor = 0
		}
	case "j", "down":
		m.cursor++
		if c != nil {
			m.clamp(len(fields(c)))
		}
	case "k", "up":
		if m.cursor > 0 {
			m.cursor--
		}
	case "g":
		m.cursor = 0
	case "G":
		if c != nil {
			m.cursor = len(fields(c)) - 1
			m.clamp(len(fields(c)))
		}
	case "i", "enter":
		f, ok := m.selected()
		if !ok {
			return nil
		}
		if f.readOnly {
			m.setStatus(f.path.String() + " is committed")
			return nil
		}
		m.mode = modeInsert
		m.input.Placeholder = f.label
		m.input.SetValue(f.value)
		m.input.CursorEnd()
		return []tea.Cmd{m.input.Focus()}
	case "a", "x":
		f, ok := m.selected()
		if !ok || f.sequence == "" {
			m.setStatus("not a sequence")
			return nil
		}
		var trailing ledger.FieldPath
		_ = c.View(func(s *ledger.State) { trailing, _ = s.Trailing(f.section, f.sequence) })
		var err error
		if k == "a" {
			err = c.Append(trailing)
		} else {
			err = c.Remove(trailing)
		}
		if err != nil {
			m.setError(err)
		}
	case "s":
		if c != nil {
			m.setStatus(fmt.Sprintf("submitting table %d", c.Table().Num))
			return []tea.Cmd{m.submit(c)}
		}
	case "S":
		m.setStatus("submitting all tables")
		return []tea.Cmd{m.submitAll()}
	case "r":
		return []tea.Cmd{m.refresh()}
	case "[", "]":
		if m.ledger.Dirty() {
			m.setStatus("submit or discard unsaved input before changing day")
			return nil
		}
		step := 1
		if k == "[" {
			step = -1
		}
		m.day = m.day.AddDate(0, 0, step)
		return []tea.Cmd{m.load(m.day)}
	case "d":
		m.mode = modeDate
		m.input.Placeholder = ledger.LayoutISO
		m.input.SetValue(m.day.Format(ledger.LayoutISO))
		m.input.CursorEnd()
		return []tea.Cmd{m.input.Focus()}
	}
	return nil
}

func (m *Model) handleInput(msg tea.KeyMsg) []tea.Cmd {
	switch msg.String() {
	case "esc":
		m.mode = modeNormal
		m.input.Reset()
		m.input.Blur()
		m.setStatus("cancelled")
		return nil
	case "enter":
		value := strings.TrimSpace(m.input.Value())
		prev := m.mode
		m.mode = modeNormal
		m.input.Reset()
		m.input.Blur()
		if prev == modeDate {
			day, err := time.Parse(ledger.LayoutISO, value)
			if err != nil {
				m.setError(fmt.Errorf("invalid date %q", value))
				return nil
			}
			if m.ledger.Dirty() {
				m.setStatus("submit or discard unsaved input before changing day")
				return nil
			}
			m.day = day
			return []tea.Cmd{m.load(day)}
		}
		f, ok := m.selected()
		if !ok {
			return nil
		}
		if err := m.current().Set(f.path, value); err != nil {
			m.setError(err)
			return nil
		}
		m.setStatus("set " + f.path.String())
		return nil
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return []tea.Cmd{cmd}
}

// View renders the tabs, the field list of the current table and the status
// bar.
func (m Model) View() string {
	th := m.theme
	var b strings.Builder

	title := "sandlab"
	if m.wf != nil {
		title = m.wf.Title
	}
	c := m.current()
	b.WriteString(th.Header.Title.Render(title))
	b.WriteString("  ")
	b.WriteString(th.Header.Key.Render(m.dayLabel()))
	if c != nil {
		b.WriteString("  ")
		b.WriteString(th.Header.Phase.Render(c.Phase().String()))
	}
	b.WriteString("\n\n")
	b.WriteString(m.viewTabs())
	b.WriteString("\n\n")

	switch {
	case m.mode == modeHelp:
		b.WriteString(th.Footer.Help.Render(helpText))
	case c != nil:
		b.WriteString(m.viewFields(c))
	}

	b.WriteString("\n")
	switch m.mode {
	case modeInsert:
		b.WriteString(th.Footer.Input.Render("edit: ") + m.input.View() + "\n")
	case modeDate:
		b.WriteString(th.Footer.Input.Render("date: ") + m.input.View() + "\n")
	}
	if m.failed {
		b.WriteString(th.Footer.Error.Render("ERR: " + m.status))
	} else {
		b.WriteString(th.Footer.Status.Render(m.status))
	}
	return b.String()
}

const helpText = `Keys:
  tab/h/l   switch table        j/k g/G   move
  i, enter  edit field          a / x     add / remove trailing row
  s         submit table        S         submit all tables
  r         refresh             [ / ]     previous / next day
  d         go to date          q         quit`

func (m Model) dayLabel() string {
	label := m.day.Format(ledger.LayoutISO)
	if m.unit != "" {
		label += " " + m.unit
	}
	return label
}

func (m Model) viewTabs() string {
	th := m.theme.Tabs
	parts := make([]string, 0, len(m.tables))
	for i, c := range m.tables {
		name := fmt.Sprintf("%d %s", c.Table().Num, c.Table().Name)
		dirty := false
		_ = c.View(func(s *ledger.State) { dirty = s.Dirty() })
		if dirty {
			name += th.Dirty.Render("*")
		}
		if i == m.tab {
			parts = append(parts, th.Active.Render(name))
		} else {
			parts = append(parts, th.Inactive.Render(name))
		}
	}
	return strings.Join(parts, th.Gap.Render("│"))
}

func (m Model) viewFields(c *coordinator.Coordinator) string {
	th := m.theme.Field
	fs := fields(c)
	if len(fs) == 0 {
		return th.Empty.Render("  no record loaded") + "\n"
	}
	cursor := m.cursor
	if cursor >= len(fs) {
		cursor = len(fs) - 1
	}

	start, end := 0, len(fs)
	if rows := m.height - 8; m.height > 0 && rows > 0 && rows < len(fs) {
		start = cursor - rows/2
		if start < 0 {
			start = 0
		}
		end = start + rows
		if end > len(fs) {
			end = len(fs)
			start = end - rows
		}
	}

	width := 0
	for _, f := range fs[start:end] {
		if len(f.label) > width {
			width = len(f.label)
		}
	}

	var b strings.Builder
	var section ledger.Section = "\x00"
	for i := start; i < end; i++ {
		f := fs[i]
		if f.section != section {
			section = f.section
			b.WriteString(th.Section.Render(sectionTitle(section)) + "\n")
		}
		marker := "  "
		if i == cursor {
			marker = th.Cursor.Render("› ")
		}
		label := th.Label.Render(fmt.Sprintf("%-*s", width, f.label))
		b.WriteString(marker + label + "  " + m.renderValue(f) + "\n")
	}
	return b.String()
}

func (m Model) renderValue(f field) string {
	th := m.theme.Field
	switch {
	case f.readOnly && f.value != "":
		return th.Committed.Render(f.value + " •")
	case f.readOnly:
		return th.Committed.Render("-")
	case f.value != "":
		return th.Unsaved.Render(f.value)
	default:
		return th.Empty.Render("·")
	}
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

// Run starts the form until the user quits or ctx is cancelled.
func Run(ctx context.Context, opts Options) error {
	opts.Context = ctx
	p := tea.NewProgram(New(opts), tea.WithAltScreen(), tea.WithContext(ctx))
	_, err := p.Run()
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return nil
	}
	return err
}
