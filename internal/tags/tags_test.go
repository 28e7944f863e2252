package tags

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abhisek/parasort/internal/classify"
	"github.com/abhisek/parasort/internal/features"
)

func extract(t *testing.T, text string, md features.Metadata) *features.FeatureSet {
	t.Helper()
	fs, err := features.Extract(text, md)
	require.NoError(t, err)
	return fs
}

func testExtractor() *Extractor {
	return NewExtractor(Options{
		MaxKeywords: 3,
		MinLength:   3,
		StopWords:   []string{"the", "and", "with"},
		Priority: Priority{
			Urgent:    []string{"ASAP", "urgent"},
			Important: []string{"high priority"},
			Low:       []string{"someday"},
		},
	})
}

func TestExtract_FullTagSet(t *testing.T) {
	e := testExtractor()
	fs := extract(t, "URGENT: budget review with @carol #finance budget numbers", features.Metadata{
		Sender:    "cfo@corp.example.com",
		Timestamp: time.Date(2024, 8, 15, 0, 0, 0, 0, time.UTC),
	})

	got := e.Extract(fs, &classify.Result{Category: "project"})

	assert.Equal(t, []string{
		"2024-q3",
		"budget",
		"finance",
		"person/carol",
		"priority/urgent",
		"project",
		"review",
		"source/corp-example-com",
		"URGENT",
	}, got)
}

func TestExtract_Defaults(t *testing.T) {
	e := NewExtractor(Options{})
	got := e.Extract(extract(t, "", features.Metadata{}), &classify.Result{Category: "general"})
	assert.Equal(t, []string{"general", "source/unknown", "undated"}, got)

	got = e.Extract(extract(t, "", features.Metadata{Source: "Web"}), &classify.Result{Category: "general"})
	assert.Contains(t, got, "source/web")
}

func TestExtract_DeduplicatesCaseInsensitively(t *testing.T) {
	e := NewExtractor(Options{MaxKeywords: 5})
	fs := extract(t, "Roadmap roadmap #roadmap #Roadmap", features.Metadata{})

	got := e.Extract(fs, &classify.Result{Category: "project"})
	assert.Equal(t, []string{"project", "Roadmap", "source/unknown", "undated"}, got)
}

func TestKeywords_RanksByTFIDF(t *testing.T) {
	e := NewExtractor(Options{
		MaxKeywords: 2,
		Background: Background{
			Documents:   100,
			Frequencies: map[string]int{"meeting": 90, "notes": 80},
		},
	})
	fs := extract(t, "meeting notes meeting notes kubernetes", features.Metadata{})

	// Common words are discounted below the rare one despite repeating.
	assert.Equal(t, []string{"kubernetes", "notes"}, e.Keywords(fs, "general"))
}

func TestKeywords_TiesKeepFirstOccurrence(t *testing.T) {
	e := NewExtractor(Options{MaxKeywords: 3})
	fs := extract(t, "zulu alpha mike alpha zulu mike", features.Metadata{})

	assert.Equal(t, []string{"zulu", "alpha", "mike"}, e.Keywords(fs, "general"))
}

func TestKeywords_Filters(t *testing.T) {
	e := testExtractor()
	fs := extract(t, "the and with ab 2024 project Démo", features.Metadata{})

	// Stop words, short tokens, pure numbers and the category name are skipped.
	assert.Equal(t, []string{"Démo"}, e.Keywords(fs, "project"))
	assert.Nil(t, NewExtractor(Options{}).Keywords(fs, "project"))
}

func TestPriorityOf(t *testing.T) {
	e := testExtractor()
	cases := map[string]string{
		"please fix asap":             "urgent",
		"this is high priority work":  "important",
		"high and priority are apart": "",
		"someday maybe":               "low",
		"urgent but also someday":     "urgent",
		"nothing to see":              "",
	}
	for text, want := range cases {
		assert.Equal(t, want, e.PriorityOf(extract(t, text, features.Metadata{})), text)
	}
}

func TestDateBucket(t *testing.T) {
	for month, want := range map[time.Month]string{
		time.January:   "2025-q1",
		time.March:     "2025-q1",
		time.April:     "2025-q2",
		time.September: "2025-q3",
		time.December:  "2025-q4",
	} {
		fs := extract(t, "", features.Metadata{Timestamp: time.Date(2025, month, 10, 0, 0, 0, 0, time.UTC)})
		assert.Equal(t, want, DateBucket(fs))
	}
}

func TestSanitize(t *testing.T) {
	assert.Equal(t, "q1-planning", Sanitize("#q1 planning"))
	assert.Equal(t, "area/ops", Sanitize("/area/ops!/"))
	assert.Empty(t, Sanitize("???"))
}
