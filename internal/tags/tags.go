// Package tags derives the label set attached to a classified note.
package tags

import (
	"cmp"
	"fmt"
	"math"
	"regexp"
	"slices"
	"strings"
	"unicode"

	"github.com/abhisek/parasort/internal/classify"
	"github.com/abhisek/parasort/internal/features"
)

var unsafeChars = regexp.MustCompile(`[^a-zA-Z0-9_/-]`)

// Priority keyword lists. A phrase may contain spaces.
type Priority struct {
	Urgent    []string
	Important []string
	Low       []string
}

// Background is a document-frequency table for the TF-IDF ranking.
type Background struct {
	Documents   int
	Frequencies map[string]int
}

// Options configures an Extractor.
type Options struct {
	MaxKeywords int
	MinLength   int
	StopWords   []string
	Priority    Priority
	Background  Background
}

// Extractor builds tag sets. It is safe for concurrent use.
type Extractor struct {
	opts      Options
	stopWords map[string]bool
	priority  [3][]string
}

// NewExtractor returns an Extractor for opts.
func NewExtractor(opts Options) *Extractor {
	if opts.MaxKeywords < 0 {
		opts.MaxKeywords = 0
	}
	if opts.MinLength <= 0 {
		opts.MinLength = 3
	}
	e := &Extractor{opts: opts, stopWords: make(map[string]bool, len(opts.StopWords))}
	for _, w := range opts.StopWords {
		e.stopWords[strings.ToLower(w)] = true
	}
	norm := func(list []string) []string {
		out := make([]string, 0, len(list))
		for _, p := range list {
			if w := strings.Join(features.Words(p), " "); w != "" {
				out = append(out, w)
			}
		}
		return out
	}
	e.priority = [3][]string{norm(opts.Priority.Urgent), norm(opts.Priority.Important), norm(opts.Priority.Low)}
	return e
}

// Extract returns the sorted, de-duplicated tag set for a classified note.
func (e *Extractor) Extract(fs *features.FeatureSet, res *classify.Result) []string {
	set := newTagSet()

	set.add(res.Category)
	if p := e.PriorityOf(fs); p != "" {
		set.add("priority/" + p)
	}
	set.add("source/" + sourceOf(fs))
	set.add(DateBucket(fs))

	for _, kw := range e.Keywords(fs, res.Category) {
		set.add(kw)
	}
	for _, h := range fs.Hashtags {
		set.add(h)
	}
	for _, m := range fs.Mentions {
		set.add("person/" + m)
	}
	return set.sorted()
}

// PriorityOf grades keyword intensity: "urgent", "important", "low" or "".
func (e *Extractor) PriorityOf(fs *features.FeatureSet) string {
	levels := [3]string{"urgent", "important", "low"}
	for i, phrases := range e.priority {
		for _, p := range phrases {
			if fs.PhraseCount(p) > 0 {
				return levels[i]
			}
		}
	}
	return ""
}

type candidate struct {
	token   string
	display string
	first   int
	count   int
	score   float64
}

// Keywords ranks salient tokens by TF-IDF against the background table
// and returns at most MaxKeywords of them. Ties keep first-occurrence order.
func (e *Extractor) Keywords(fs *features.FeatureSet, category string) []string {
	if e.opts.MaxKeywords == 0 || len(fs.Tokens) == 0 {
		return nil
	}

	byToken := make(map[string]*candidate)
	var order []*candidate
	for i, tok := range fs.Tokens {
		if !e.eligible(tok) || tok == category {
			continue
		}
		c, ok := byToken[tok]
		if !ok {
			c = &candidate{token: tok, display: fs.Display[i], first: i}
			byToken[tok] = c
			order = append(order, c)
		}
		c.count++
	}

	docs := float64(max(e.opts.Background.Documents, 0))
	for _, c := range order {
		tf := float64(c.count) / float64(len(fs.Tokens))
		df := float64(e.opts.Background.Frequencies[c.token])
		idf := math.Log((1+docs)/(1+df)) + 1
		c.score = tf * idf
	}

	slices.SortStableFunc(order, func(a, b *candidate) int {
		if a.score != b.score {
			return cmp.Compare(b.score, a.score)
		}
		return cmp.Compare(a.first, b.first)
	})

	n := min(e.opts.MaxKeywords, len(order))
	out := make([]string, 0, n)
	for _, c := range order[:n] {
		out = append(out, c.display)
	}
	return out
}

func (e *Extractor) eligible(tok string) bool {
	if len([]rune(tok)) < e.opts.MinLength || e.stopWords[tok] {
		return false
	}
	for _, r := range tok {
		if !unicode.IsDigit(r) {
			return true
		}
	}
	return false
}

func sourceOf(fs *features.FeatureSet) string {
	if d := fs.SenderDomain(); d != "" {
		return strings.ReplaceAll(d, ".", "-")
	}
	if fs.Source != "" {
		return fs.Source
	}
	return "unknown"
}

// DateBucket formats the note timestamp as a year-quarter tag.
func DateBucket(fs *features.FeatureSet) string {
	if fs.Timestamp.IsZero() {
		return "undated"
	}
	t := fs.Timestamp
	return fmt.Sprintf("%d-q%d", t.Year(), (int(t.Month())-1)/3+1)
}

// Sanitize strips characters that are not valid in a vault tag.
func Sanitize(tag string) string {
	tag = strings.TrimPrefix(strings.TrimSpace(tag), "#")
	tag = strings.ReplaceAll(tag, " ", "-")
	return strings.Trim(unsafeChars.ReplaceAllString(tag, ""), "/")
}

// tagSet collapses tags case-insensitively and keeps the first spelling.
type tagSet struct {
	seen map[string]bool
	tags []string
}

func newTagSet() *tagSet {
	return &tagSet{seen: make(map[string]bool)}
}

func (s *tagSet) add(tag string) {
	tag = Sanitize(tag)
	if tag == "" {
		return
	}
	key := strings.ToLower(tag)
	if s.seen[key] {
		return
	}
	s.seen[key] = true
	s.tags = append(s.tags, tag)
}

func (s *tagSet) sorted() []string {
	out := slices.Clone(s.tags)
	slices.SortFunc(out, func(a, b string) int {
		return cmp.Compare(strings.ToLower(a), strings.ToLower(b))
	})
	return out
}
