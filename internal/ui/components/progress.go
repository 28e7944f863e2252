package components

import (
	"fmt"
	"strings"

	"charm.land/lipgloss/v2"

	"github.com/abhisek/parasort/internal/ui/theme"
)

// ProgressBar displays how many of Total items are Done.
type ProgressBar struct {
	Done  int
	Total int
	Width int
}

// View renders the bar followed by a "done/total" counter.
func (p ProgressBar) View() string {
	counter := fmt.Sprintf("  %d/%d", p.Done, p.Total)
	barWidth := max(p.Width-len(counter), 4)

	filled := 0
	if p.Total > 0 {
		filled = min(max(barWidth*p.Done/p.Total, 0), barWidth)
	}

	return lipgloss.NewStyle().Background(theme.Secondary).Render(strings.Repeat(" ", filled)) +
		lipgloss.NewStyle().Background(theme.Border).Render(strings.Repeat(" ", barWidth-filled)) +
		theme.Hint.Render(counter)
}
