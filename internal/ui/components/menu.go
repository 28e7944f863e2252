package components

import (
	"strings"

	tea "charm.land/bubbletea/v2"
	"charm.land/lipgloss/v2"

	"github.com/abhisek/parasort/internal/ui/theme"
)

// MenuItem represents a single choice in a Menu.
type MenuItem struct {
	Label    string
	Detail   string // dim text after the label
	Disabled bool
}

// MenuChosenMsg is emitted when the user picks an item.
type MenuChosenMsg struct {
	Index int
	Label string
}

// Menu is a vertical single-choice list.
type Menu struct {
	Items    []MenuItem
	Selected int
}

// NewMenu creates a menu with the first enabled item selected.
func NewMenu(items []MenuItem) Menu {
	m := Menu{Items: items}
	for i, item := range items {
		if !item.Disabled {
			m.Selected = i
			break
		}
	}
	return m
}

// Update handles keyboard navigation. Enter emits MenuChosenMsg, and the
// digits 1-9 jump to and choose the matching item.
func (m Menu) Update(msg tea.Msg) (Menu, tea.Cmd) {
	kmsg, ok := msg.(tea.KeyPressMsg)
	if !ok {
		return m, nil
	}

	switch key := kmsg.String(); key {
	case "up", "k":
		for i := m.Selected - 1; i >= 0; i-- {
			if !m.Items[i].Disabled {
				m.Selected = i
				break
			}
		}
	case "down", "j":
		for i := m.Selected + 1; i < len(m.Items); i++ {
			if !m.Items[i].Disabled {
				m.Selected = i
				break
			}
		}
	case "enter":
		return m, m.choose(m.Selected)
	default:
		if len(key) == 1 && key[0] >= '1' && key[0] <= '9' {
			i := int(key[0] - '1')
			if i < len(m.Items) {
				m.Selected = i
				return m, m.choose(i)
			}
		}
	}
	return m, nil
}

func (m Menu) choose(i int) tea.Cmd {
	if i < 0 || i >= len(m.Items) || m.Items[i].Disabled {
		return nil
	}
	label := m.Items[i].Label
	return func() tea.Msg { return MenuChosenMsg{Index: i, Label: label} }
}

// View renders the menu.
func (m Menu) View() string {
	var b strings.Builder
	for i, item := range m.Items {
		line := "    " + item.Label
		style := theme.Unselected
		switch {
		case item.Disabled:
			style = lipgloss.NewStyle().Foreground(theme.Border)
		case i == m.Selected:
			line = "  ▸ " + item.Label
			style = theme.Selected
		}
		b.WriteString(style.Render(line))
		if item.Detail != "" {
			b.WriteString("  " + theme.Hint.Render(item.Detail))
		}
		b.WriteString("\n")
	}
	return b.String()
}
