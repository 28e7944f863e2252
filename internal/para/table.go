// Package para maps content categories to PARA buckets through an
// explicit, configuration-driven decision table.
package para

import (
	"fmt"
	"path"
	"strings"

	"github.com/abhisek/parasort/internal/features"
	"github.com/abhisek/parasort/internal/rules"
)

// Bucket is a PARA destination. Inbox holds notes that could not be resolved.
type Bucket string

const (
	Projects  Bucket = "Projects"
	Areas     Bucket = "Areas"
	Resources Bucket = "Resources"
	Archive   Bucket = "Archive"
	Inbox     Bucket = "Inbox"
)

// Buckets lists every bucket in display order.
var Buckets = []Bucket{Inbox, Projects, Areas, Resources, Archive}

// ParseBucket resolves a bucket name case-insensitively.
func ParseBucket(s string) (Bucket, bool) {
	for _, b := range Buckets {
		if strings.EqualFold(string(b), strings.TrimSpace(s)) {
			return b, true
		}
	}
	return "", false
}

// Condition names a predicate a row requires.
type Condition string

const (
	Always         Condition = "always"
	HasDeadline    Condition = "deadline"
	ActiveProject  Condition = "active_project"
	ProjectContext Condition = "project_context"
)

var knownConditions = map[Condition]bool{
	Always:         true,
	HasDeadline:    true,
	ActiveProject:  true,
	ProjectContext: true,
}

// Row is one line of the decision table.
type Row struct {
	Category string
	When     Condition
	Bucket   Bucket
}

// UserContext is caller-supplied and never modified here.
type UserContext struct {
	ActiveProjects []string
}

// Destination is where a note should go.
type Destination struct {
	Bucket   Bucket
	Folder   string
	Template string
	Project  string
	Row      int // index of the matching row, -1 if none
}

// Table is the compiled decision table.
type Table struct {
	rows      []Row
	folders   map[Bucket]string
	templates map[string]string
	fallback  Bucket
}

// NewTable validates rows against the configured categories. Every
// category must end in an Always row so no note is left unmapped.
func NewTable(rows []Row, folders map[Bucket]string, templates map[string]string, categories []string) (*Table, error) {
	known := make(map[string]bool, len(categories))
	for _, c := range categories {
		known[c] = true
	}

	covered := make(map[string]bool)
	for i, r := range rows {
		if !known[r.Category] {
			return nil, &rules.ValidationError{Field: "mapping.rows", Value: r.Category, Reason: fmt.Sprintf("row %d names an unknown category", i)}
		}
		if !knownConditions[r.When] {
			return nil, &rules.ValidationError{Field: "mapping.rows", Value: string(r.When), Reason: fmt.Sprintf("row %d has an unknown condition", i)}
		}
		if _, ok := ParseBucket(string(r.Bucket)); !ok {
			return nil, &rules.ValidationError{Field: "mapping.rows", Value: string(r.Bucket), Reason: fmt.Sprintf("row %d has an unknown bucket", i)}
		}
		if r.When == Always {
			covered[r.Category] = true
		}
	}
	for _, c := range categories {
		if !covered[c] {
			return nil, &rules.ConfigurationError{Reason: fmt.Sprintf("category %q has no unconditional mapping row", c)}
		}
	}

	t := &Table{
		rows:      append([]Row(nil), rows...),
		folders:   make(map[Bucket]string, len(folders)),
		templates: make(map[string]string, len(templates)),
		fallback:  Inbox,
	}
	for b, f := range folders {
		t.folders[b] = f
	}
	for c, tpl := range templates {
		t.templates[c] = tpl
	}
	return t, nil
}

// Rows returns a copy of the table for display.
func (t *Table) Rows() []Row {
	return append([]Row(nil), t.rows...)
}

// Map evaluates rows top-down and returns the first match.
func (t *Table) Map(category string, fs *features.FeatureSet, uc UserContext) Destination {
	project := matchProject(fs, uc)

	for i, r := range t.rows {
		if r.Category != category {
			continue
		}
		if !t.holds(r.When, fs, project) {
			continue
		}
		if r.When == ProjectContext && project == "" {
			return t.destination(r.Bucket, category, fs.ProjectHint, i)
		}
		return t.destination(r.Bucket, category, project, i)
	}
	return t.destination(t.fallback, category, "", -1)
}

func (t *Table) holds(c Condition, fs *features.FeatureSet, project string) bool {
	switch c {
	case Always:
		return true
	case HasDeadline:
		return fs.Flags.Deadline
	case ActiveProject:
		return project != ""
	case ProjectContext:
		return project != "" || fs.ProjectHint != ""
	}
	return false
}

// Folder returns the vault folder of b, or the bucket name when none is
// configured.
func (t *Table) Folder(b Bucket) string {
	if f := t.folders[b]; f != "" {
		return f
	}
	return string(b)
}

func (t *Table) destination(b Bucket, category, project string, row int) Destination {
	folder := t.Folder(b)
	if b == Projects {
		if slug := Slug(project); slug != "" {
			folder = path.Join(folder, slug)
		}
	}
	d := Destination{
		Bucket:   b,
		Folder:   folder,
		Template: t.templates[category],
		Row:      row,
	}
	if b == Projects {
		d.Project = project
	}
	return d
}

// matchProject returns the first active project whose words appear
// consecutively in the note, or which equals the note's project hint.
func matchProject(fs *features.FeatureSet, uc UserContext) string {
	hint := Slug(fs.ProjectHint)
	for _, p := range uc.ActiveProjects {
		words := features.Words(p)
		if len(words) == 0 {
			continue
		}
		if hint != "" && hint == Slug(p) {
			return p
		}
		if fs.ContainsPhrase(words) {
			return p
		}
	}
	return ""
}

// Slug lowercases s and joins its words with hyphens.
func Slug(s string) string {
	return strings.Join(features.Words(s), "-")
}
