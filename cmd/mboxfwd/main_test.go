package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/emurenMRz/mboxfwd/internal/ledger"
	"github.com/emurenMRz/mboxfwd/internal/record"
)

func runCLI(t *testing.T, args ...string) (int, string, string) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	code := run(args, &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestSplitAndRetry(t *testing.T) {
	chdir(t, t.TempDir())
	in, out := t.TempDir(), t.TempDir()
	db := filepath.Join(t.TempDir(), "ledger.db")

	writeFile(t, filepath.Join(in, "a.json"), `{"body":"see below\n\n-----Original Message-----\nFrom: Ann\nSubject: lunch\n\nnoon?"}`)
	writeFile(t, filepath.Join(in, "b.json"), `{"subject":"no body"}`)

	code, stdout, stderr := runCLI(t, "--in", in, "--out", out, "--ledger", db, "--workers", "2")
	require.Equal(t, 0, code, stderr)
	assert.Equal(t, "2 records: 1 processed, 1 skipped, 0 failed\n", stdout)

	rec, err := record.ReadFile(filepath.Join(out, "a.json"))
	require.NoError(t, err)
	assert.Equal(t, "see below", rec["body"])
	fwd := rec["forward"].(map[string]any)
	assert.Equal(t, "-----Original Message-----", fwd["marker"])
	assert.Equal(t, "lunch", fwd["subject"])

	store, err := ledger.Open(db)
	require.NoError(t, err)
	runs, err := store.ListRuns(context.Background(), 1)
	require.NoError(t, err)
	require.NoError(t, store.Close())
	require.Len(t, runs, 1)
	assert.Equal(t, ledger.RunCompleted, runs[0].Status)
	first := runs[0].ID

	code, stdout, stderr = runCLI(t, "--mode", "runs", "--ledger", db, "--run", first)
	require.Equal(t, 0, code, stderr)
	assert.Contains(t, stdout, "RECORD")
	assert.Regexp(t, `(?m)^a\.json\s+processed\s+1\s`, stdout)
	assert.Regexp(t, `(?m)^b\.json\s+skipped\s+0\s+\S`, stdout)

	writeFile(t, filepath.Join(in, "b.json"), `{"subject":"fixed","body":"now with a body"}`)
	code, stdout, stderr = runCLI(t, "--mode", "retry", "--run", first, "--ledger", db)
	require.Equal(t, 0, code, stderr)
	assert.Equal(t, "1 records: 1 processed, 0 skipped, 0 failed\n", stdout)

	rec, err = record.ReadFile(filepath.Join(out, "b.json"))
	require.NoError(t, err)
	assert.Equal(t, "now with a body", rec["body"])

	code, stdout, _ = runCLI(t, "--mode", "runs", "--ledger", db)
	require.Equal(t, 0, code)
	assert.Contains(t, stdout, "retry")
	assert.Contains(t, stdout, first)
}

func TestRetryUnknownRun(t *testing.T) {
	chdir(t, t.TempDir())
	db := filepath.Join(t.TempDir(), "ledger.db")
	code, _, stderr := runCLI(t, "--mode", "retry", "--run", "nope", "--ledger", db)
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "not found")
}

func TestValidate(t *testing.T) {
	chdir(t, t.TempDir())
	in := t.TempDir()
	writeFile(t, filepath.Join(in, "a.json"), `{"body":"fine","from":"Ann <ann@example.org>"}`)
	writeFile(t, filepath.Join(in, "b.json"), `{"from":"Ann"}`)
	writeFile(t, filepath.Join(in, "c.json"), `[1,2]`)

	code, stdout, _ := runCLI(t, "--mode", "validate", "--in", in)
	require.Equal(t, 0, code)
	assert.Contains(t, stdout, "Record b.json: body is missing")
	assert.Contains(t, stdout, "Record c.json: unreadable")
	assert.Contains(t, stdout, "2 of 3 records cannot be segmented\n")
	assert.NotContains(t, stdout, "a.json")
}

func TestShow(t *testing.T) {
	chdir(t, t.TempDir())
	path := filepath.Join(t.TempDir(), "r.json")
	writeFile(t, path, `{"body":"top\n\nFrom: Bob\nTo: Ann\n\nmiddle\n\nFrom: Cy\nDate: today\n\nbottom"}`)

	code, stdout, stderr := runCLI(t, "--mode", "show", "--in", path, "--show-format", "json")
	require.Equal(t, 0, code, stderr)
	var tree map[string]any
	require.NoError(t, json.Unmarshal([]byte(stdout), &tree))
	assert.Equal(t, "top", tree["body"])
	fwd := tree["forward"].(map[string]any)
	assert.Equal(t, "Bob", fwd["from"])
	assert.Equal(t, "Cy", fwd["forward"].(map[string]any)["from"])

	code, stdout, _ = runCLI(t, "--mode", "show", "--in", path, "--flat")
	require.Equal(t, 0, code)
	assert.Contains(t, stdout, "- body: top\n")
	assert.Contains(t, stdout, "- from: Cy\n")
	assert.NotContains(t, stdout, "forward:")
}

func TestBadInvocations(t *testing.T) {
	chdir(t, t.TempDir())
	tests := []struct {
		name string
		args []string
	}{
		{"unknown mode", []string{"--mode", "fix"}},
		{"missing input", []string{"--out", "x"}},
		{"missing output", []string{"--in", "."}},
		{"bad flag", []string{"--frobnicate"}},
		{"bad config", []string{"--workers", "0", "--in", ".", "--dry-run"}},
		{"runs without ledger", []string{"--mode", "runs"}},
		{"runs of unknown run", []string{"--mode", "runs", "--ledger", "ledger.db", "--run", "nope"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, _, _ := runCLI(t, tt.args...)
			assert.Equal(t, 1, code)
		})
	}
}

// chdir changes the working directory for the duration of the test and
// restores it on cleanup (equivalent of testing.T.Chdir, which needs Go 1.24).
func chdir(t *testing.T, dir string) {
	t.Helper()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })
}
