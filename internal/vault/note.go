// Package vault reads markdown notes with YAML frontmatter from a folder
// tree. It never writes notes; moving files into their PARA folders is
// left to the user or their editor.
package vault

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/abhisek/parasort/internal/features"
)

// ErrFrontmatter is returned when a note's frontmatter block is not valid YAML.
var ErrFrontmatter = errors.New("invalid frontmatter")

var (
	embedRe = regexp.MustCompile(`!\[\[([^\]|#]+)`)
	h1Re    = regexp.MustCompile(`(?m)^#\s+(.+?)\s*$`)
)

var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
}

// ReadNote reads the file at path. The note ID is path relative to root,
// with forward slashes.
func ReadNote(root, path string) (features.Note, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return features.Note{}, fmt.Errorf("read note: %w", err)
	}
	info, err := os.Stat(path)
	if err != nil {
		return features.Note{}, fmt.Errorf("stat note: %w", err)
	}

	rel, err := filepath.Rel(root, path)
	if err != nil {
		rel = filepath.Base(path)
	}
	note, err := Parse(filepath.ToSlash(rel), content)
	if err != nil {
		return features.Note{}, fmt.Errorf("%s: %w", rel, err)
	}
	if note.Metadata.Timestamp.IsZero() {
		note.Metadata.Timestamp = info.ModTime().UTC()
	}
	return note, nil
}

// Parse splits content into frontmatter and body and maps well-known
// frontmatter keys onto note metadata:
//
//	title               Metadata.Title (else the file name, unless the body has an H1)
//	from, sender        Metadata.Sender
//	source              Metadata.Source (default "vault")
//	date, created       Metadata.Timestamp
//	attachments         Metadata.Attachments, plus ![[embeds]] in the body
//	headers             Metadata.Headers
//
// The whole frontmatter map is kept in Metadata.Frontmatter.
func Parse(id string, content []byte) (features.Note, error) {
	fmText, body, err := splitFrontmatter(content)
	if err != nil {
		return features.Note{}, err
	}

	fm := make(map[string]any)
	if len(fmText) > 0 {
		if err := yaml.Unmarshal(fmText, &fm); err != nil {
			return features.Note{}, fmt.Errorf("%w: %v", ErrFrontmatter, err)
		}
	}

	md := features.Metadata{
		Title:       stringField(fm, "title"),
		Sender:      stringField(fm, "from", "sender"),
		Source:      stringField(fm, "source"),
		Path:        id,
		Timestamp:   timeField(fm, "date", "created"),
		Attachments: stringsField(fm, "attachments"),
		Headers:     headersField(fm),
		Frontmatter: fm,
	}
	if md.Source == "" {
		md.Source = "vault"
	}
	// An H1 is already part of the body, so only a bare note borrows its
	// file name as a title.
	if md.Title == "" && id != "" && !h1Re.MatchString(body) {
		md.Title = strings.TrimSuffix(filepath.Base(id), filepath.Ext(id))
	}
	for _, m := range embedRe.FindAllStringSubmatch(body, -1) {
		md.Attachments = append(md.Attachments, strings.TrimSpace(m[1]))
	}

	return features.Note{ID: id, Body: body, Metadata: md}, nil
}

// splitFrontmatter returns the YAML between a leading pair of "---" lines
// and the remaining body. Content without a leading delimiter is all body.
func splitFrontmatter(content []byte) (fm []byte, body string, err error) {
	text := strings.TrimPrefix(string(content), "\ufeff")

	first, rest, found := strings.Cut(text, "\n")
	if strings.TrimSpace(first) != "---" {
		return nil, text, nil
	}

	var lines []string
	for found {
		var line string
		line, rest, found = strings.Cut(rest, "\n")
		if strings.TrimSpace(line) == "---" {
			return []byte(strings.Join(lines, "\n")), strings.TrimLeft(rest, "\r\n"), nil
		}
		lines = append(lines, strings.TrimSuffix(line, "\r"))
	}
	return nil, "", fmt.Errorf("%w: missing closing ---", ErrFrontmatter)
}

func stringField(fm map[string]any, keys ...string) string {
	for _, k := range keys {
		if v, ok := fm[k]; ok && v != nil {
			if s := strings.TrimSpace(fmt.Sprint(v)); s != "" {
				return s
			}
		}
	}
	return ""
}

func stringsField(fm map[string]any, key string) []string {
	switch v := fm[key].(type) {
	case string:
		if v != "" {
			return []string{v}
		}
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok && s != "" {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

func timeField(fm map[string]any, keys ...string) time.Time {
	for _, k := range keys {
		switch v := fm[k].(type) {
		case time.Time:
			return v.UTC()
		case string:
			for _, layout := range dateLayouts {
				if t, err := time.Parse(layout, strings.TrimSpace(v)); err == nil {
					return t.UTC()
				}
			}
		}
	}
	return time.Time{}
}

func headersField(fm map[string]any) map[string]string {
	raw, ok := fm["headers"].(map[string]any)
	if !ok {
		return nil
	}
	out := make(map[string]string, len(raw))
	for k, v := range raw {
		out[k] = fmt.Sprint(v)
	}
	return out
}
