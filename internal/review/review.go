// Package review is the terminal UI that walks stored results awaiting
// review and accepts or corrects each one.
package review

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"strings"

	tea "charm.land/bubbletea/v2"
	"charm.land/lipgloss/v2"

	"github.com/abhisek/parasort/internal/classify"
	"github.com/abhisek/parasort/internal/learning"
	"github.com/abhisek/parasort/internal/ui/components"
	"github.com/abhisek/parasort/internal/ui/layout"
	"github.com/abhisek/parasort/internal/ui/theme"
)

// Reviewer applies review decisions. *learning.Store implements it.
type Reviewer interface {
	Accept(ctx context.Context, resultID string) error
	RecordCorrection(ctx context.Context, res *classify.Result, category, bucket string, tags []string) (*learning.CorrectionRecord, error)
}

// Outcome is what happened to one reviewed result. A zero Status means
// the result was skipped.
type Outcome struct {
	ResultID string
	NoteID   string
	Status   classify.Status
	Category string
	Err      error
}

type mode int

const (
	modeBrowse mode = iota
	modePick
	modeTags
)

type actionDoneMsg struct {
	index   int
	outcome Outcome
}

// Model is the root Bubble Tea model of the review screen.
type Model struct {
	ctx        context.Context
	reviewer   Reviewer
	items      []*classify.Result
	outcomes   []Outcome
	categories []string
	threshold  float64

	cursor int
	mode   mode
	picker components.Menu
	tags   components.TagInput
	chosen string
	busy   bool
	status string

	width  int
	height int
}

// New creates a review model over items. categories are offered as
// corrections; threshold only affects how confidence is colored.
func New(ctx context.Context, reviewer Reviewer, items []*classify.Result, categories []string, threshold float64) Model {
	return Model{
		ctx:        ctx,
		reviewer:   reviewer,
		items:      items,
		outcomes:   make([]Outcome, len(items)),
		categories: slices.Clone(categories),
		threshold:  threshold,
	}
}

// Outcomes returns one entry per item, in item order.
func (m Model) Outcomes() []Outcome {
	return slices.Clone(m.outcomes)
}

func (m Model) Init() tea.Cmd {
	return nil
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case actionDoneMsg:
		m.busy = false
		m.outcomes[msg.index] = msg.outcome
		if msg.outcome.Err != nil {
			m.status = "failed: " + msg.outcome.Err.Error()
			return m, nil
		}
		m.status = fmt.Sprintf("%s %s", msg.outcome.Status, msg.outcome.NoteID)
		if next, ok := m.nextPending(msg.index); ok {
			m.cursor = next
		} else if m.remaining() == 0 {
			m.status = "all results reviewed, q to quit"
		}
		return m, nil

	case components.MenuChosenMsg:
		if m.mode != modePick {
			return m, nil
		}
		m.chosen = msg.Label
		m.mode = modeTags
		m.tags = components.NewTagInput("optional, comma separated", 200)
		return m, nil

	case tea.KeyPressMsg:
		if msg.String() == "ctrl+c" {
			return m, tea.Quit
		}
		switch m.mode {
		case modePick:
			return m.updatePick(msg)
		case modeTags:
			return m.updateTags(msg)
		}
		return m.updateBrowse(msg)
	}

	if m.mode == modeTags {
		var cmd tea.Cmd
		m.tags, cmd = m.tags.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m Model) updateBrowse(msg tea.KeyPressMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "esc":
		return m, tea.Quit
	case "up", "k", "p":
		m.cursor = max(m.cursor-1, 0)
	case "down", "j", "n", "s":
		m.cursor = min(m.cursor+1, max(len(m.items)-1, 0))
	case "a", "y":
		if !m.actionable() {
			return m, nil
		}
		m.busy = true
		return m, m.accept(m.cursor)
	case "c":
		if !m.actionable() {
			return m, nil
		}
		m.mode = modePick
		m.picker = m.categoryMenu(m.items[m.cursor])
	}
	return m, nil
}

func (m Model) updatePick(msg tea.KeyPressMsg) (tea.Model, tea.Cmd) {
	if msg.String() == "esc" {
		m.mode = modeBrowse
		return m, nil
	}
	var cmd tea.Cmd
	m.picker, cmd = m.picker.Update(msg)
	return m, cmd
}

func (m Model) updateTags(msg tea.KeyPressMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		m.mode = modeBrowse
		return m, nil
	case "enter":
		m.mode = modeBrowse
		m.busy = true
		return m, m.correct(m.cursor, m.chosen, m.tags.Tags())
	}
	var cmd tea.Cmd
	m.tags, cmd = m.tags.Update(msg)
	return m, cmd
}

func (m Model) actionable() bool {
	return !m.busy && len(m.items) > 0 && m.outcomes[m.cursor].Status == ""
}

func (m Model) accept(i int) tea.Cmd {
	res := m.items[i]
	return func() tea.Msg {
		err := m.reviewer.Accept(m.ctx, res.ID)
		return actionDoneMsg{index: i, outcome: Outcome{
			ResultID: res.ID,
			NoteID:   res.NoteID,
			Status:   statusOrEmpty(err, classify.StatusAccepted),
			Category: res.Category,
			Err:      err,
		}}
	}
}

func (m Model) correct(i int, category string, tags []string) tea.Cmd {
	res := m.items[i]
	return func() tea.Msg {
		_, err := m.reviewer.RecordCorrection(m.ctx, res, category, "", tags)
		return actionDoneMsg{index: i, outcome: Outcome{
			ResultID: res.ID,
			NoteID:   res.NoteID,
			Status:   statusOrEmpty(err, classify.StatusCorrected),
			Category: category,
			Err:      err,
		}}
	}
}

func statusOrEmpty(err error, s classify.Status) classify.Status {
	if err != nil {
		return ""
	}
	return s
}

// categoryMenu lists categories by descending score with the raw winner
// preselected.
func (m Model) categoryMenu(res *classify.Result) components.Menu {
	cats := slices.Clone(m.categories)
	slices.SortStableFunc(cats, func(a, b string) int {
		return cmp.Compare(res.Scores.Scores[b], res.Scores.Scores[a])
	})
	items := make([]components.MenuItem, len(cats))
	for i, c := range cats {
		items[i] = components.MenuItem{Label: c, Detail: fmt.Sprintf("%.2f", res.Scores.Scores[c])}
	}
	menu := components.NewMenu(items)
	if i := slices.Index(cats, res.RawCategory); i >= 0 {
		menu.Selected = i
	}
	return menu
}

// nextPending finds the first unreviewed item after from, wrapping.
func (m Model) nextPending(from int) (int, bool) {
	for step := 1; step <= len(m.items); step++ {
		i := (from + step) % len(m.items)
		if m.outcomes[i].Status == "" {
			return i, true
		}
	}
	return 0, false
}

func (m Model) remaining() int {
	n := 0
	for _, o := range m.outcomes {
		if o.Status == "" {
			n++
		}
	}
	return n
}

func (m Model) View() tea.View {
	v := tea.NewView("")
	v.AltScreen = true

	if m.width == 0 || m.height == 0 {
		return v
	}
	if layout.IsTooSmall(m.width, m.height) {
		v.SetContent(layout.RenderMinSizeMessage(m.width, m.height))
		return v
	}

	header := layout.RenderHeader("Review", fmt.Sprintf("%d pending", m.remaining()), m.width)
	footer := layout.RenderFooter(m.keyHints(), m.width)
	v.SetContent(layout.RenderFrame(header, m.content(), footer, m.width, m.height))
	return v
}

func (m Model) keyHints() []layout.KeyHint {
	switch m.mode {
	case modePick:
		return []layout.KeyHint{{Key: "↑↓", Description: "Category"}, {Key: "Enter", Description: "Choose"}, {Key: "Esc", Description: "Back"}}
	case modeTags:
		return []layout.KeyHint{{Key: "Enter", Description: "Save correction"}, {Key: "Esc", Description: "Cancel"}}
	}
	return []layout.KeyHint{
		{Key: "a", Description: "Accept"},
		{Key: "c", Description: "Correct"},
		{Key: "↑↓", Description: "Move"},
		{Key: "q", Description: "Quit"},
	}
}

func (m Model) content() string {
	if len(m.items) == 0 {
		return theme.Hint.Render("\n  Nothing to review.")
	}

	var b strings.Builder
	done := len(m.items) - m.remaining()
	b.WriteString(components.ProgressBar{Done: done, Total: len(m.items), Width: min(m.width-4, 60)}.View())
	b.WriteString("\n\n")

	res := m.items[m.cursor]
	b.WriteString(theme.Card.Width(min(m.width-2, 100)).Render(m.card(res)))
	b.WriteString("\n\n")

	switch m.mode {
	case modePick:
		b.WriteString(theme.Title.Render("Correct to:") + "\n")
		b.WriteString(m.picker.View())
	case modeTags:
		b.WriteString(theme.Title.Render("Correct to "+m.chosen) + "\n")
		b.WriteString(m.tags.View() + "\n")
	default:
		if o := m.outcomes[m.cursor]; o.Status != "" {
			b.WriteString(outcomeLine(o) + "\n")
		}
	}
	if m.status != "" {
		b.WriteString("\n" + theme.Hint.Render(m.status))
	}
	return b.String()
}

func (m Model) card(res *classify.Result) string {
	row := func(label, value string) string {
		return theme.Label.Render(label) + value + "\n"
	}

	var b strings.Builder
	b.WriteString(theme.Title.Render(fmt.Sprintf("%d/%d  %s", m.cursor+1, len(m.items), res.NoteID)) + "\n\n")

	category := theme.Body.Render(res.Category)
	if res.RawCategory != "" && res.RawCategory != res.Category {
		category += theme.Hint.Render("  (best guess " + res.RawCategory + ")")
	}
	b.WriteString(row("Category", category))
	b.WriteString(row("Confidence", theme.Confidence(res.Confidence, m.threshold)))
	b.WriteString(row("Bucket", theme.Bucket(res.Bucket)+theme.Hint.Render("  "+res.FolderHint)))
	if len(res.Tags) > 0 {
		b.WriteString(row("Tags", theme.Body.Render(strings.Join(res.Tags, " "))))
	}
	if res.WithoutSemanticSignal {
		b.WriteString(row("", theme.Failed.Render("classified without semantic signal")))
	}

	b.WriteString("\n" + theme.Label.Render("Scores") + "\n")
	for _, s := range topScores(res, 4) {
		b.WriteString("  " + lipgloss.NewStyle().Width(14).Render(s.category) +
			theme.Body.Render(fmt.Sprintf("%6.2f", s.score)) + "\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

type scored struct {
	category string
	score    float64
}

func topScores(res *classify.Result, n int) []scored {
	out := make([]scored, 0, len(res.Scores.Scores))
	for c, s := range res.Scores.Scores {
		if s > 0 {
			out = append(out, scored{c, s})
		}
	}
	slices.SortFunc(out, func(a, b scored) int {
		if c := cmp.Compare(b.score, a.score); c != 0 {
			return c
		}
		return cmp.Compare(a.category, b.category)
	})
	return out[:min(n, len(out))]
}

func outcomeLine(o Outcome) string {
	switch o.Status {
	case classify.StatusAccepted:
		return theme.Accepted.Render("✓ accepted as " + o.Category)
	case classify.StatusCorrected:
		return theme.Corrected.Render("✎ corrected to " + o.Category)
	}
	return ""
}

// Run starts the review program and returns the outcomes when it exits.
func Run(ctx context.Context, reviewer Reviewer, items []*classify.Result, categories []string, threshold float64) ([]Outcome, error) {
	p := tea.NewProgram(New(ctx, reviewer, items, categories, threshold), tea.WithContext(ctx))
	final, err := p.Run()
	if err != nil {
		return nil, fmt.Errorf("run review: %w", err)
	}
	return final.(Model).Outcomes(), nil
}
