package rules

import (
	"encoding/json"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/abhisek/parasort/internal/features"
)

func testConfig(t *testing.T) *Config {
	t.Helper()
	cfg, err := Compile([]CategorySpec{
		{
			Name:     "meeting",
			Keywords: map[string]float64{"standup": 2, "Action Items": 1.5},
			Flags:    map[string]float64{FlagCalendar: 2, FlagTypeHint: 3},
		},
		{
			Name:     "project",
			Keywords: map[string]float64{"milestone": 1.5},
			Patterns: []PatternSpec{{Name: "ticket", Regex: `\b[a-z]+-\d+\b`, Weight: 1}},
			Senders:  map[string]float64{"pm@": 1.5},
		},
		{
			Name:      "automated",
			Senders:   map[string]float64{"noreply@": 3, "@alerts.io": 2},
			Exemplars: []string{"automated/*"},
		},
		{Name: "general"},
	}, Options{Fallback: "general", FallbackWeight: 0.5, SimilarityThreshold: 0.75, SimilarityBonus: 2})
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	return cfg
}

func extract(t *testing.T, text string, md features.Metadata, opts ...features.Option) *features.FeatureSet {
	t.Helper()
	fs, err := features.Extract(text, md, opts...)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	return fs
}

func approx(a, b float64) bool { return math.Abs(a-b) < 1e-9 }

func TestCompile_Rejects(t *testing.T) {
	cases := []struct {
		name  string
		specs []CategorySpec
		opts  Options
		cfg   bool // expect ConfigurationError rather than ValidationError
	}{
		{name: "no categories", opts: Options{Fallback: "general"}},
		{name: "empty name", specs: []CategorySpec{{Name: " "}}, opts: Options{Fallback: "general"}},
		{name: "duplicate category", specs: []CategorySpec{{Name: "a"}, {Name: "a"}}, opts: Options{Fallback: "a"}},
		{name: "negative weight", specs: []CategorySpec{{Name: "a", Keywords: map[string]float64{"x": -1}}}, opts: Options{Fallback: "a"}},
		{name: "punctuation keyword", specs: []CategorySpec{{Name: "a", Keywords: map[string]float64{"!!": 1}}}, opts: Options{Fallback: "a"}},
		{name: "bad regex", specs: []CategorySpec{{Name: "a", Patterns: []PatternSpec{{Name: "p", Regex: "("}}}}, opts: Options{Fallback: "a"}},
		{name: "pattern name reused", specs: []CategorySpec{
			{Name: "a", Patterns: []PatternSpec{{Name: "p", Regex: "x"}}},
			{Name: "b", Patterns: []PatternSpec{{Name: "p", Regex: "y"}}},
		}, opts: Options{Fallback: "a"}},
		{name: "unknown flag", specs: []CategorySpec{{Name: "a", Flags: map[string]float64{"sparkly": 1}}}, opts: Options{Fallback: "a"}},
		{name: "bad exemplar glob", specs: []CategorySpec{{Name: "a", Exemplars: []string{"["}}}, opts: Options{Fallback: "a"}},
		{name: "negative fallback weight", specs: []CategorySpec{{Name: "a"}}, opts: Options{Fallback: "a", FallbackWeight: -1}},
		{name: "weight above max", specs: []CategorySpec{{Name: "a", Keywords: map[string]float64{"x": 8}}}, opts: Options{Fallback: "a", MaxWeight: 5}},
		{name: "weight below min", specs: []CategorySpec{{Name: "a", Flags: map[string]float64{FlagCheckbox: 0.1}}}, opts: Options{Fallback: "a", MinWeight: 0.5, MaxWeight: 5}},
		{name: "fallback weight above max", specs: []CategorySpec{{Name: "a"}}, opts: Options{Fallback: "a", FallbackWeight: 6, MaxWeight: 5}},
		{name: "bonus above max", specs: []CategorySpec{{Name: "a"}}, opts: Options{Fallback: "a", SimilarityBonus: 9, MaxWeight: 5}},
		{name: "inverted bounds", specs: []CategorySpec{{Name: "a"}}, opts: Options{Fallback: "a", MinWeight: 3, MaxWeight: 2}},
		{name: "threshold out of range", specs: []CategorySpec{{Name: "a"}}, opts: Options{Fallback: "a", SimilarityThreshold: 2}},
		{name: "fallback unset", specs: []CategorySpec{{Name: "a"}}, cfg: true},
		{name: "fallback unknown", specs: []CategorySpec{{Name: "a"}}, opts: Options{Fallback: "b"}, cfg: true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Compile(tc.specs, tc.opts)
			if err == nil {
				t.Fatal("expected an error")
			}
			var ve *ValidationError
			var ce *ConfigurationError
			if tc.cfg && !errors.As(err, &ce) {
				t.Fatalf("want ConfigurationError, got %T: %v", err, err)
			}
			if !tc.cfg && !errors.As(err, &ve) {
				t.Fatalf("want ValidationError, got %T: %v", err, err)
			}
		})
	}
}

func TestCompile_NormalizesKeywordsAndKeepsOrder(t *testing.T) {
	cfg := testConfig(t)

	if got := cfg.Categories(); len(got) != 4 || got[0] != "meeting" || got[3] != "general" {
		t.Fatalf("Categories() = %v", got)
	}
	if w, ok := cfg.RuleWeight("meeting", "kw:action items"); !ok || w != 1.5 {
		t.Fatalf("RuleWeight(kw:action items) = %v, %v", w, ok)
	}
	if w, ok := cfg.RuleWeight("automated", "sim:automated/*"); !ok || w != 2 {
		t.Fatalf("similarity rule weight = %v, %v", w, ok)
	}
}

func TestSplitKey(t *testing.T) {
	kind, name, ok := SplitKey("re:a:b")
	if !ok || kind != "re" || name != "a:b" {
		t.Fatalf("SplitKey = %q %q %v", kind, name, ok)
	}
	for _, bad := range []string{"", "kw", "kw:", ":x"} {
		if _, _, ok := SplitKey(bad); ok {
			t.Errorf("SplitKey(%q) should fail", bad)
		}
	}
}

func TestScore_CountsEverySignalKind(t *testing.T) {
	cfg := testConfig(t)
	fs := extract(t, "Standup: action items, standup again. milestone ABC-12 and web-7",
		features.Metadata{
			Sender:      "PM <pm@company.com>",
			Headers:     map[string]string{"Content-Type": "text/calendar"},
			Frontmatter: map[string]any{"type": "meeting"},
		})

	cs := Score(fs, cfg, EmptyWeights())

	// standup x2 (4) + action items (1.5) + calendar (2) + type hint (3)
	if !approx(cs.Scores["meeting"], 10.5) {
		t.Fatalf("meeting = %v, want 10.5", cs.Scores["meeting"])
	}
	// milestone (1.5) + two tickets (2) + pm@ sender (1.5)
	if !approx(cs.Scores["project"], 5) {
		t.Fatalf("project = %v, want 5", cs.Scores["project"])
	}
	if cs.Scores["automated"] != 0 || cs.Scores["general"] != 0 {
		t.Fatalf("unexpected scores %v", cs.Scores)
	}
	if cs.Signals["kw:standup"] != 2 || cs.Signals["re:ticket"] != 2 {
		t.Fatalf("signals = %v", cs.Signals)
	}
	if !approx(cs.Contributions["meeting"]["kw:standup"], 4) {
		t.Fatalf("contributions = %v", cs.Contributions["meeting"])
	}
}

func TestScore_TypeHintOnlyMatchesItsCategory(t *testing.T) {
	cfg := testConfig(t)
	fs := extract(t, "", features.Metadata{Frontmatter: map[string]any{"type": "project"}})

	cs := Score(fs, cfg, EmptyWeights())
	if cs.Scores["meeting"] != 0 {
		t.Fatalf("meeting = %v, want 0", cs.Scores["meeting"])
	}
}

func TestScore_Senders(t *testing.T) {
	cfg := testConfig(t)
	cases := map[string]float64{
		"noreply@shop.com":       3,
		"bot@alerts.io":          2,
		"bot@eu.alerts.io":       2,
		"bot@notalerts.io":       0,
		"Alerts <noreply@x.org>": 3,
		"someone@elsewhere.com":  0,
	}
	for sender, want := range cases {
		fs := extract(t, "", features.Metadata{Sender: sender})
		if got := Score(fs, cfg, EmptyWeights()).Scores["automated"]; !approx(got, want) {
			t.Errorf("sender %q: automated = %v, want %v", sender, got, want)
		}
	}
}

func TestScore_SimilarityThreshold(t *testing.T) {
	cfg := testConfig(t)

	below := extract(t, "", features.Metadata{}, features.WithSimilarity([]features.Similarity{{ReferenceID: "automated/receipt", Score: 0.7}}))
	if got := Score(below, cfg, EmptyWeights()).Scores["automated"]; got != 0 {
		t.Fatalf("below threshold scored %v", got)
	}

	above := extract(t, "", features.Metadata{}, features.WithSimilarity([]features.Similarity{
		{ReferenceID: "automated/receipt", Score: 0.9},
		{ReferenceID: "meeting/standup", Score: 0.99},
	}))
	if got := Score(above, cfg, EmptyWeights()).Scores["automated"]; !approx(got, 2) {
		t.Fatalf("above threshold scored %v, want 2", got)
	}
}

func TestScore_EmptyNoteIsAllZero(t *testing.T) {
	cfg := testConfig(t)
	cs := Score(extract(t, "", features.Metadata{}), cfg, EmptyWeights())
	for cat, s := range cs.Scores {
		if s != 0 {
			t.Errorf("%s = %v", cat, s)
		}
	}
	if len(cs.Scores) != 4 {
		t.Fatalf("every category must be scored, got %v", cs.Scores)
	}
}

func TestScore_LearnedWeightsOverrideAndExtend(t *testing.T) {
	cfg := testConfig(t)
	w := NewWeights(1, 1, time.Time{}, map[string]map[string]float64{
		"project": {"kw:milestone": 4, "kw:roadmap": 1},
	})
	fs := extract(t, "milestone roadmap", features.Metadata{})

	cs := Score(fs, cfg, w)
	if !approx(cs.Scores["project"], 5) {
		t.Fatalf("project = %v, want 5", cs.Scores["project"])
	}
	// A learned signal the other category never configured is not scored there.
	if cs.Scores["meeting"] != 0 {
		t.Fatalf("meeting = %v", cs.Scores["meeting"])
	}
}

func TestWeights_LookupOrder(t *testing.T) {
	cfg := testConfig(t)
	w := NewWeights(3, 9, time.Time{}, map[string]map[string]float64{"project": {"kw:milestone": 4}})

	if got := w.Lookup(cfg, "project", "kw:milestone"); got != 4 {
		t.Errorf("learned = %v", got)
	}
	if got := w.Lookup(cfg, "meeting", "kw:standup"); got != 2 {
		t.Errorf("configured = %v", got)
	}
	if got := w.Lookup(cfg, "meeting", "kw:unseen"); got != 0.5 {
		t.Errorf("fallback = %v", got)
	}
}

func TestWeights_IsolatedFromInput(t *testing.T) {
	entries := map[string]map[string]float64{"a": {"kw:x": 1}}
	w := NewWeights(1, 0, time.Time{}, entries)
	entries["a"]["kw:x"] = 99

	if v, _ := w.Get("a", "kw:x"); v != 1 {
		t.Fatalf("snapshot changed with its input: %v", v)
	}
}

func TestDecodeWeights_CurrentAndLegacy(t *testing.T) {
	at := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	w := NewWeights(4, 12, at, map[string]map[string]float64{"project": {"kw:milestone": 2.25}})
	data, err := json.Marshal(w)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	got, err := DecodeWeights(data, WeightsSchemaVersion)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !got.Equal(w) || got.Version() != 4 || got.LastSequence() != 12 || !got.UpdatedAt().Equal(at) {
		t.Fatalf("round trip lost data: %+v", got)
	}

	legacy := []byte(`{"version":2,"weights":{"project|kw:milestone":3,"meeting|flag:calendar":1}}`)
	got, err = DecodeWeights(legacy, "v0.3.0")
	if err != nil {
		t.Fatalf("decode legacy: %v", err)
	}
	if v, ok := got.Get("project", "kw:milestone"); !ok || v != 3 {
		t.Fatalf("legacy pair = %v, %v", v, ok)
	}
	if got.Version() != 2 || got.SchemaVersion() != WeightsSchemaVersion {
		t.Fatalf("legacy version = %d schema %s", got.Version(), got.SchemaVersion())
	}
}

func TestDecodeWeights_RejectsUnknownSchema(t *testing.T) {
	var ve *ValidationError
	for _, v := range []string{"v2.0.0", "latest"} {
		if _, err := DecodeWeights([]byte(`{}`), v); !errors.As(err, &ve) {
			t.Errorf("%s: want ValidationError, got %v", v, err)
		}
	}
	if _, err := DecodeWeights([]byte(`{"weights":{"nopipe":1}}`), "v0.1.0"); !errors.As(err, &ve) {
		t.Errorf("malformed legacy pair: got %v", err)
	}
}

func TestLearningParams_Validate(t *testing.T) {
	good := LearningParams{Step: 0.25, MinWeight: 0, MaxWeight: 5}
	if err := good.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	for _, p := range []LearningParams{
		{Step: 0, MaxWeight: 1},
		{Step: 1, MinWeight: -1, MaxWeight: 1},
		{Step: 1, MinWeight: 2, MaxWeight: 1},
	} {
		if err := p.Validate(); err == nil {
			t.Errorf("%+v should be rejected", p)
		}
	}
}

func milestoneFeedback(seq int64, noteID string) Feedback {
	return Feedback{
		Sequence:      seq,
		NoteID:        noteID,
		Original:      "meeting",
		Corrected:     "project",
		Signals:       map[string]float64{"kw:milestone": 1, "kw:standup": 1},
		Contributions: map[string]float64{"kw:standup": 2},
	}
}

func TestRecompute_MovesWeightTowardCorrection(t *testing.T) {
	cfg := testConfig(t)
	p := LearningParams{Step: 0.25, MinWeight: 0, MaxWeight: 5}
	at := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

	next := Recompute(EmptyWeights(), cfg, []Feedback{milestoneFeedback(1, "n1")}, p, at)

	if next.Version() != 1 || next.LastSequence() != 1 || !next.UpdatedAt().Equal(at) {
		t.Fatalf("metadata = v%d seq%d %v", next.Version(), next.LastSequence(), next.UpdatedAt())
	}
	checks := []struct {
		cat, key string
		want     float64
	}{
		{"project", "kw:milestone", 1.75}, // configured 1.5
		{"project", "kw:standup", 0.75},   // fallback 0.5
		{"meeting", "kw:standup", 1.75},   // contributed, configured 2
	}
	for _, c := range checks {
		if got, ok := next.Get(c.cat, c.key); !ok || !approx(got, c.want) {
			t.Errorf("%s/%s = %v (%v), want %v", c.cat, c.key, got, ok, c.want)
		}
	}
	if _, ok := next.Get("meeting", "kw:milestone"); ok {
		t.Error("a signal that did not contribute must not be penalized")
	}
}

func TestRecompute_LatestFeedbackPerNote(t *testing.T) {
	cfg := testConfig(t)
	p := LearningParams{Step: 0.25, MinWeight: 0, MaxWeight: 5}

	older := milestoneFeedback(1, "n1")
	newer := milestoneFeedback(2, "n1")
	newer.Corrected = "automated"

	next := Recompute(EmptyWeights(), cfg, []Feedback{newer, older}, p, time.Time{})
	if _, ok := next.Get("project", "kw:milestone"); ok {
		t.Fatal("superseded correction was applied")
	}
	if got, _ := next.Get("automated", "kw:milestone"); !approx(got, 0.75) {
		t.Fatalf("automated/kw:milestone = %v", got)
	}
	if next.LastSequence() != 2 {
		t.Fatalf("LastSequence = %d", next.LastSequence())
	}
}

func TestRecompute_ClampsAndConverges(t *testing.T) {
	cfg := testConfig(t)
	p := LearningParams{Step: 0.25, MinWeight: 0, MaxWeight: 5}

	var fb []Feedback
	for i := range 40 {
		f := milestoneFeedback(int64(i+1), "")
		fb = append(fb, f)
	}
	next := Recompute(EmptyWeights(), cfg, fb, p, time.Time{})

	if got, _ := next.Get("project", "kw:milestone"); got != 5 {
		t.Errorf("clamped max = %v", got)
	}
	if got, _ := next.Get("meeting", "kw:standup"); got != 0 {
		t.Errorf("clamped min = %v", got)
	}

	again := Recompute(next, cfg, fb, p, time.Time{})
	if !again.Equal(next) {
		t.Error("weights at their bounds must not move further")
	}
}

func TestRecompute_IgnoresAgreementAndUnknownCategories(t *testing.T) {
	cfg := testConfig(t)
	p := LearningParams{Step: 0.25, MinWeight: 0, MaxWeight: 5}

	agree := milestoneFeedback(1, "a")
	agree.Corrected = agree.Original
	unknown := milestoneFeedback(2, "b")
	unknown.Corrected = "nonexistent"

	cur := EmptyWeights()
	next := Recompute(cur, cfg, []Feedback{agree, unknown}, p, time.Time{})
	if next.Len() != 0 {
		t.Fatalf("unexpected learned pairs: %d", next.Len())
	}
	if cur.Version() != 0 {
		t.Fatal("Recompute modified its input")
	}
}

func TestRecompute_Deterministic(t *testing.T) {
	cfg := testConfig(t)
	p := LearningParams{Step: 0.25, MinWeight: 0, MaxWeight: 5}
	fb := []Feedback{milestoneFeedback(1, "x"), milestoneFeedback(2, "y"), milestoneFeedback(3, "z")}

	a := Recompute(EmptyWeights(), cfg, fb, p, time.Time{})
	b := Recompute(EmptyWeights(), cfg, []Feedback{fb[2], fb[0], fb[1]}, p, time.Time{})
	if !a.Equal(b) {
		t.Fatal("feedback order changed the result")
	}
}
