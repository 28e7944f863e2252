package features

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtract_Empty(t *testing.T) {
	fs, err := Extract("", Metadata{})
	require.NoError(t, err)

	assert.Empty(t, fs.Tokens)
	assert.Equal(t, Flags{}, fs.Flags)
	assert.Empty(t, fs.Sender)
	assert.Zero(t, fs.PhraseCount("anything"))
}

func TestExtract_MalformedText(t *testing.T) {
	_, err := Extract("ok \xc3\x28", Metadata{})
	assert.ErrorIs(t, err, ErrMalformedText)
}

func TestExtract_TokensAndCounts(t *testing.T) {
	fs, err := Extract("Sprint Review: sprint goals, review-notes; Café 2024", Metadata{})
	require.NoError(t, err)

	assert.Equal(t, []string{"sprint", "review", "sprint", "goals", "review", "notes", "café", "2024"}, fs.Tokens)
	assert.Equal(t, "Sprint", fs.Display[0])
	assert.Equal(t, 2, fs.Count("sprint"))
	assert.Equal(t, 1, fs.PhraseCount("sprint review"))
	assert.Equal(t, 1, fs.PhraseCount("review notes"))
	assert.True(t, fs.ContainsPhrase([]string{"sprint", "goals"}))
	assert.False(t, fs.ContainsPhrase(nil))
}

func TestExtract_Flags(t *testing.T) {
	cases := []struct {
		name string
		text string
		md   Metadata
		want Flags
	}{
		{name: "attachment", md: Metadata{Attachments: []string{"deck.pdf"}}, want: Flags{Attachment: true}},
		{name: "ics attachment", md: Metadata{Attachments: []string{"invite.ICS"}}, want: Flags{Attachment: true, Calendar: true}},
		{name: "calendar header", md: Metadata{Headers: map[string]string{"content-type": "text/calendar; method=REQUEST"}}, want: Flags{Calendar: true}},
		{name: "calendar header false", md: Metadata{Headers: map[string]string{"X-Calendar": "false"}}, want: Flags{}},
		{name: "calendar frontmatter", md: Metadata{Frontmatter: map[string]any{"calendar": true}}, want: Flags{Calendar: true}},
		{name: "24h time", text: "sync at 14:30", want: Flags{TimeOfDay: true}},
		{name: "12h time", text: "call at 3pm", want: Flags{TimeOfDay: true}},
		{name: "not a time", text: "version 25:99 build", want: Flags{}},
		{name: "checkbox", text: "todo:\n- [ ] write docs\n- [x] ship", want: Flags{Checkbox: true}},
		{name: "inline brackets", text: "see [ ] here", want: Flags{}},
		{name: "deadline", text: "report due by Friday", want: Flags{Deadline: true}},
		{name: "follow up", text: "Follow-up with legal", want: Flags{Deadline: true}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			fs, err := Extract(tc.text, tc.md)
			require.NoError(t, err)
			assert.Equal(t, tc.want, fs.Flags)
		})
	}
}

func TestExtract_FlagLookup(t *testing.T) {
	fs, err := Extract("due tomorrow", Metadata{})
	require.NoError(t, err)

	v, known := fs.Flag("deadline")
	assert.True(t, v)
	assert.True(t, known)
	_, known = fs.Flag("type_hint")
	assert.False(t, known)
}

func TestExtract_SenderAndSource(t *testing.T) {
	fs, err := Extract("", Metadata{Sender: "  Jane Doe <Jane@Example.COM> ", Source: " Email "})
	require.NoError(t, err)
	assert.Equal(t, "jane@example.com", fs.Sender)
	assert.Equal(t, "example.com", fs.SenderDomain())
	assert.Equal(t, "email", fs.Source)

	fs, err = Extract("", Metadata{Sender: "not an address"})
	require.NoError(t, err)
	assert.Equal(t, "not an address", fs.Sender)
	assert.Empty(t, fs.SenderDomain())
}

func TestExtract_HashtagsMentionsAndHints(t *testing.T) {
	ts := time.Date(2024, 2, 3, 0, 0, 0, 0, time.UTC)
	fs, err := Extract("#planning with @alice and @bob.smith about issue#4", Metadata{
		Timestamp: ts,
		Frontmatter: map[string]any{
			"tags":    []any{"#q1", "roadmap"},
			"type":    " Meeting ",
			"project": "Apollo",
		},
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"planning", "q1", "roadmap"}, fs.Hashtags)
	assert.Equal(t, []string{"alice", "bob.smith"}, fs.Mentions)
	assert.Equal(t, "meeting", fs.TypeHint)
	assert.Equal(t, "apollo", fs.ProjectHint)
	assert.Equal(t, ts, fs.Timestamp)
}

func TestExtract_FrontmatterTagString(t *testing.T) {
	fs, err := Extract("", Metadata{Frontmatter: map[string]any{"tags": "alpha, #beta gamma"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"alpha", "beta", "gamma"}, fs.Hashtags)
}

func TestExtract_Similarity(t *testing.T) {
	scores := []Similarity{
		{ReferenceID: "meeting/standup", Score: 0.8},
		{ReferenceID: "meeting/retro", Score: 0.9},
		{ReferenceID: "project/kickoff", Score: 0.95},
	}
	fs, err := Extract("x", Metadata{}, WithSimilarity(scores))
	require.NoError(t, err)

	scores[1].Score = 0
	assert.Equal(t, 0.9, fs.BestSimilarity("meeting/*"), "scores are copied")
	assert.Zero(t, fs.BestSimilarity("automated/*"))
	assert.False(t, fs.SemanticUnavailable)

	fs, err = Extract("x", Metadata{}, WithoutSemanticSignal())
	require.NoError(t, err)
	assert.True(t, fs.SemanticUnavailable)
}

func TestNote_Text(t *testing.T) {
	assert.Equal(t, "body", Note{Body: "body"}.Text())
	assert.Equal(t, "title", Note{Metadata: Metadata{Title: "title"}}.Text())
	assert.Equal(t, "title\nbody", Note{Body: "body", Metadata: Metadata{Title: "title"}}.Text())
}

func TestWords(t *testing.T) {
	assert.Equal(t, []string{"action", "items"}, Words("  Action-Items! "))
	assert.Empty(t, Words("!!"))
}
