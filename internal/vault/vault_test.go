package vault

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abhisek/parasort/internal/features"
)

func TestParse_Frontmatter(t *testing.T) {
	content := []byte(`---
title: Weekly sync
from: Alice <alice@company.com>
date: 2024-03-04T10:00:00Z
attachments:
  - slides.pdf
headers:
  X-Calendar: invite
type: meeting
---
Standup agenda at 10:00.
![[whiteboard.png]]
`)

	note, err := Parse("inbox/sync.md", content)
	require.NoError(t, err)

	assert.Equal(t, "inbox/sync.md", note.ID)
	assert.Equal(t, "Weekly sync", note.Metadata.Title)
	assert.Equal(t, "Alice <alice@company.com>", note.Metadata.Sender)
	assert.Equal(t, "vault", note.Metadata.Source)
	assert.Equal(t, time.Date(2024, 3, 4, 10, 0, 0, 0, time.UTC), note.Metadata.Timestamp)
	assert.Equal(t, []string{"slides.pdf", "whiteboard.png"}, note.Metadata.Attachments)
	assert.Equal(t, map[string]string{"X-Calendar": "invite"}, note.Metadata.Headers)
	assert.Equal(t, "meeting", note.Metadata.Frontmatter["type"])
	assert.Equal(t, "Standup agenda at 10:00.\n![[whiteboard.png]]\n", note.Body)
}

func TestParse_NoFrontmatter(t *testing.T) {
	note, err := Parse("ideas/reading list.md", []byte("books to read\n"))
	require.NoError(t, err)

	assert.Equal(t, "books to read\n", note.Body)
	assert.Equal(t, "reading list", note.Metadata.Title)
	assert.Empty(t, note.Metadata.Frontmatter)
	assert.True(t, note.Metadata.Timestamp.IsZero())
}

func TestParse_HeadingSuppressesFileTitle(t *testing.T) {
	note, err := Parse("notes/x.md", []byte("# Roadmap\nmilestones\n"))
	require.NoError(t, err)
	assert.Empty(t, note.Metadata.Title)
}

func TestParse_CRLFAndBOM(t *testing.T) {
	content := []byte("\ufeff---\r\nsender: pm@company.com\r\ndate: 2024-05-01\r\n---\r\nmilestone review\r\n")

	note, err := Parse("a.md", content)
	require.NoError(t, err)
	assert.Equal(t, "pm@company.com", note.Metadata.Sender)
	assert.Equal(t, time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC), note.Metadata.Timestamp)
	assert.Equal(t, "milestone review\r\n", note.Body)
}

func TestParse_MalformedFrontmatter(t *testing.T) {
	cases := map[string]string{
		"unterminated": "---\ntitle: x\nbody without a closing line\n",
		"bad yaml":     "---\ntitle: [unclosed\n---\nbody\n",
	}
	for name, content := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Parse("bad.md", []byte(content))
			assert.ErrorIs(t, err, ErrFrontmatter)
		})
	}
}

func TestReadNote_FallsBackToModTime(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "sub", "n.md")
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte("hello"), 0o644))
	mod := time.Date(2023, 1, 2, 3, 4, 5, 0, time.UTC)
	require.NoError(t, os.Chtimes(path, mod, mod))

	note, err := ReadNote(root, path)
	require.NoError(t, err)
	assert.Equal(t, "sub/n.md", note.ID)
	assert.Equal(t, mod, note.Metadata.Timestamp)
}

func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()
	path := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestWalk(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "00-Inbox/b.md", "standup")
	writeFile(t, root, "00-Inbox/a.markdown", "roadmap")
	writeFile(t, root, "01-Projects/deep/c.MD", "milestone")
	writeFile(t, root, "01-Projects/image.png", "binary")
	writeFile(t, root, ".obsidian/workspace.md", "ignored")
	writeFile(t, root, "02-Areas/.hidden.md", "ignored")
	writeFile(t, root, "02-Areas/broken.md", "---\ntitle: x\n")

	var ids []string
	var errs []error
	for note, err := range Walk(context.Background(), root, nil) {
		if err != nil {
			errs = append(errs, err)
			continue
		}
		ids = append(ids, note.ID)
	}

	assert.Equal(t, []string{"00-Inbox/a.markdown", "00-Inbox/b.md", "01-Projects/deep/c.MD"}, ids)
	require.Len(t, errs, 1)
	assert.ErrorIs(t, errs[0], ErrFrontmatter)
}

func TestWalk_StopsOnBreak(t *testing.T) {
	root := t.TempDir()
	for _, name := range []string{"a.md", "b.md", "c.md"} {
		writeFile(t, root, name, "x")
	}

	n := 0
	for range Walk(context.Background(), root, []string{".md"}) {
		n++
		break
	}
	assert.Equal(t, 1, n)
}

func TestWalk_Canceled(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a.md", "x")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var errs []error
	for _, err := range Walk(ctx, root, nil) {
		errs = append(errs, err)
	}
	require.Len(t, errs, 1)
	assert.ErrorIs(t, errs[0], context.Canceled)
}

func TestWatchInbox(t *testing.T) {
	dir := t.TempDir()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	notes := make(chan features.Note, 4)
	done := make(chan error, 1)
	go func() {
		done <- WatchInbox(ctx, dir, nil, 100*time.Millisecond,
			func(n features.Note) { notes <- n },
			func(err error) { t.Logf("watch error: %v", err) })
	}()

	// Give the watcher time to register before the first write.
	time.Sleep(50 * time.Millisecond)
	writeFile(t, dir, "ignored.txt", "nope")
	writeFile(t, dir, "new.md", "---\ntitle: Fresh\n---\nstandup agenda\n")

	select {
	case n := <-notes:
		assert.Equal(t, "new.md", n.ID)
		assert.Equal(t, "Fresh", n.Metadata.Title)
	case <-time.After(3 * time.Second):
		t.Fatal("no note delivered")
	}

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("watcher did not stop")
	}
}
