package components

import (
	"strings"

	"charm.land/bubbles/v2/textinput"
	tea "charm.land/bubbletea/v2"
)

// TagInput wraps bubbles/textinput for comma or space separated tags.
type TagInput struct {
	Model textinput.Model
}

// NewTagInput creates a focused tag input.
func NewTagInput(placeholder string, limit int) TagInput {
	ti := textinput.New()
	ti.Placeholder = placeholder
	ti.Prompt = "tags> "
	if limit > 0 {
		ti.CharLimit = limit
	}
	ti.Focus()
	return TagInput{Model: ti}
}

// Update handles messages.
func (t TagInput) Update(msg tea.Msg) (TagInput, tea.Cmd) {
	var cmd tea.Cmd
	t.Model, cmd = t.Model.Update(msg)
	return t, cmd
}

// View renders the input.
func (t TagInput) View() string {
	return t.Model.View()
}

// Tags splits the current value into tags, dropping empties and a
// leading '#'.
func (t TagInput) Tags() []string {
	return ParseTags(t.Model.Value())
}

// ParseTags splits s on commas and whitespace.
func ParseTags(s string) []string {
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return r == ',' || r == ' ' || r == '\t'
	})
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		if f = strings.TrimPrefix(f, "#"); f != "" {
			out = append(out, f)
		}
	}
	return out
}
