package theme

import "github.com/charmbracelet/lipgloss"

// Theme centralizes Lip Gloss styles for the Bubble Tea UI.
type Theme struct {
	Header HeaderTheme
	Tabs   TabsTheme
	Field  FieldTheme
	Footer FooterTheme
}

// HeaderTheme styles the record title line.
type HeaderTheme struct {
	Title lipgloss.Style
	Key   lipgloss.Style
	Phase lipgloss.Style
}

// TabsTheme styles the table tabs.
type TabsTheme struct {
	Active   lipgloss.Style
	Inactive lipgloss.Style
	// Dirty marks tabs that hold unsaved input.
	Dirty lipgloss.Style
	Gap   lipgloss.Style
}

// FieldTheme styles the rows of the field list.
type FieldTheme struct {
	Section   lipgloss.Style
	Label     lipgloss.Style
	Committed lipgloss.Style
	Unsaved   lipgloss.Style
	Empty     lipgloss.Style
	Cursor    lipgloss.Style
}

// FooterTheme groups styles used by the bottom status bar.
type FooterTheme struct {
	Help   lipgloss.Style
	Status lipgloss.Style
	Error  lipgloss.Style
	Input  lipgloss.Style
}

// Default returns the built-in theme used across the UI.
func Default() Theme {
	tab := lipgloss.NewStyle().Padding(0, 1)
	return Theme{
		Header: HeaderTheme{
			Title: lipgloss.NewStyle().Bold(true),
			Key:   lipgloss.NewStyle().Foreground(lipgloss.Color("212")).Bold(true),
			Phase: lipgloss.NewStyle().Foreground(lipgloss.Color("244")).Italic(true),
		},
		Tabs: TabsTheme{
			Active:   tab.Bold(true).Reverse(true),
			Inactive: tab.Foreground(lipgloss.Color("245")),
			Dirty:    lipgloss.NewStyle().Foreground(lipgloss.Color("214")),
			Gap:      lipgloss.NewStyle().Foreground(lipgloss.Color("238")),
		},
		Field: FieldTheme{
			Section:   lipgloss.NewStyle().Foreground(lipgloss.Color("81")).Italic(true),
			Label:     lipgloss.NewStyle().Foreground(lipgloss.Color("250")),
			Committed: lipgloss.NewStyle().Foreground(lipgloss.Color("244")),
			Unsaved:   lipgloss.NewStyle().Foreground(lipgloss.Color("220")),
			Empty:     lipgloss.NewStyle().Foreground(lipgloss.Color("238")),
			Cursor:    lipgloss.NewStyle().Foreground(lipgloss.Color("218")).Bold(true),
		},
		Footer: FooterTheme{
			Help:   lipgloss.NewStyle().Foreground(lipgloss.Color("245")),
			Status: lipgloss.NewStyle().Foreground(lipgloss.Color("244")),
			Error:  lipgloss.NewStyle().Foreground(lipgloss.Color("203")),
			Input:  lipgloss.NewStyle().Foreground(lipgloss.Color("212")),
		},
	}
}
