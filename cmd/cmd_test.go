package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abhisek/parasort/internal/classify"
	"github.com/abhisek/parasort/internal/config"
	"github.com/abhisek/parasort/internal/engine"
	"github.com/abhisek/parasort/internal/learning"
	"github.com/abhisek/parasort/internal/logging"
	"github.com/abhisek/parasort/internal/metrics"
	"github.com/abhisek/parasort/internal/rules"
	"github.com/abhisek/parasort/internal/store"
)

const standup = `---
title: Weekly Standup 10:00am
headers:
  X-Calendar-Invite: "true"
---
agenda
`

// run executes the root command with a private database and config dir.
func run(t *testing.T, db, stdin string, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetIn(strings.NewReader(stdin))
	rootCmd.SetArgs(append([]string{"--db", db}, args...))
	err := rootCmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestClassifyCorrectAccept(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	db := filepath.Join(t.TempDir(), "parasort.db")

	out, err := run(t, db, standup, "classify", "-", "--id", "inbox/standup.md", "--json")
	require.NoError(t, err)

	var res classify.Result
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.Equal(t, "inbox/standup.md", res.NoteID)
	assert.Equal(t, "meeting", res.Category)
	assert.Equal(t, "Areas", res.Bucket)
	assert.NotEmpty(t, res.ID)

	_, err = run(t, db, "", "correct", res.ID, "nonsense")
	var verr *rules.ValidationError
	require.True(t, errors.As(err, &verr), "got %v", err)

	_, err = run(t, db, "", "correct", res.ID, "project", "--tags", "q3,roadmap", "--recompute")
	require.NoError(t, err)

	_, err = run(t, db, "", "accept", res.ID)
	require.True(t, errors.As(err, &verr), "accepting a corrected result: %v", err)

	out, err = run(t, db, "", "history", "--json")
	require.NoError(t, err)
	assert.Contains(t, out, `"corrected_category": "project"`)
	assert.Contains(t, out, `"q3"`)
}

func TestAcceptUnknownResult(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	db := filepath.Join(t.TempDir(), "parasort.db")

	_, err := run(t, db, "", "accept", "missing")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing")
}

func TestReadInput(t *testing.T) {
	note, err := readInput(strings.NewReader("# Plan\nship it"), "-", "")
	require.NoError(t, err)
	assert.Equal(t, "stdin", note.ID)

	_, err = readInput(nil, filepath.Join(t.TempDir(), "absent.md"), "")
	require.Error(t, err)
}

func TestPrintCountsOrder(t *testing.T) {
	var b bytes.Buffer
	printCounts(&b, "Category", map[string]int{"general": 2, "meeting": 5, "action_item": 2})
	lines := strings.Split(strings.TrimSpace(b.String()), "\n")
	require.Len(t, lines, 5)
	assert.True(t, strings.HasPrefix(lines[2], "meeting"))
	assert.True(t, strings.HasPrefix(lines[3], "action_item"))
	assert.True(t, strings.HasPrefix(lines[4], "general"))
}

func TestReloadSwapsLearningParams(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	ctx := context.Background()

	cfg, err := config.Load("")
	require.NoError(t, err)
	compiled, err := cfg.Compile()
	require.NoError(t, err)

	db, err := store.Open(filepath.Join(t.TempDir(), "parasort.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	ls, err := learning.New(ctx, learning.ReposFrom(db), compiled.Rules, compiled.Learning)
	require.NoError(t, err)
	eng, err := engine.New(engine.NewPipeline(compiled, nil, 0), engine.WithLearner(ls))
	require.NoError(t, err)
	d := &deps{cfg: cfg, compiled: compiled, logger: logging.NewNop(), store: db, learning: ls, engine: eng, metrics: metrics.New()}

	t.Setenv("PARASORT_LEARNING__STEP", "1")
	t.Setenv("PARASORT_LEARNING__MAX_WEIGHT", "9")
	edited, err := config.Load("")
	require.NoError(t, err)
	editedCompiled, err := edited.Compile()
	require.NoError(t, err)

	require.NoError(t, d.reload(ctx, edited, editedCompiled))
	assert.Equal(t, 1.0, ls.Params().Step)
	assert.Equal(t, 9.0, ls.Params().MaxWeight)
	assert.Same(t, editedCompiled.Rules, eng.Pipeline().Rules)

	bad := *editedCompiled
	bad.Learning.Step = -1
	require.Error(t, d.reload(ctx, edited, &bad))
	assert.Equal(t, 1.0, ls.Params().Step, "rejected reload keeps the previous params")
	assert.Same(t, editedCompiled.Rules, eng.Pipeline().Rules)
}
