package record

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/emurenMRz/mboxfwd/internal/fwdsplit"
)

func TestDecode(t *testing.T) {
	rec, err := Decode([]byte(`{"body":"hi","id":12345678901234567890,"tags":["a"]}`))
	require.NoError(t, err)
	body, err := rec.Body()
	require.NoError(t, err)
	assert.Equal(t, "hi", body)
	assert.Equal(t, json.Number("12345678901234567890"), rec["id"])

	for _, in := range []string{`not json`, `null`, `[1,2]`, `"body"`} {
		_, err := Decode([]byte(in))
		var ie *fwdsplit.InputError
		assert.True(t, errors.As(err, &ie), "input %s", in)
	}
}

func TestBody(t *testing.T) {
	_, err := Record{"subject": "x"}.Body()
	var ie *fwdsplit.InputError
	require.True(t, errors.As(err, &ie))
	assert.Equal(t, "body is missing", ie.Reason)

	_, err = Record{"body": 3.5}.Body()
	require.True(t, errors.As(err, &ie))
	assert.Equal(t, "body is float64, not text", ie.Reason)

	_, err = Record{"body": nil}.Body()
	assert.Error(t, err)
}

func TestApply(t *testing.T) {
	seg := fwdsplit.NewSegmenter(nil)
	root, err := seg.Segment("FYI\n\nFrom: Ann <ann@x.org>\nSubject: plan\n\nthe plan")
	require.NoError(t, err)

	in := Record{"body": "original", "subject": "Fwd: plan", "id": "7"}
	out := Apply(in, root)

	assert.Equal(t, "original", in["body"], "input must not change")
	assert.NotContains(t, in, KeyForward)

	data, err := json.Marshal(out)
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"id": "7",
		"subject": "Fwd: plan",
		"body": "FYI",
		"forward": {"from": "Ann <ann@x.org>", "subject": "plan", "body": "the plan"}
	}`, string(data))
}

func TestApplyDropsStaleForward(t *testing.T) {
	root, err := fwdsplit.NewSegmenter(nil).Segment("just text")
	require.NoError(t, err)

	out := Apply(Record{"body": "just text", "forward": map[string]any{"body": "old"}}, root)
	assert.Equal(t, Record{"body": "just text"}, out)
}

func TestApplyKeepsRecordHeaders(t *testing.T) {
	root, err := fwdsplit.NewSegmenter(nil).Segment("From: Ann\nSubject: plan\n\nthe plan")
	require.NoError(t, err)
	require.Zero(t, root.Header.Len())

	out := Apply(Record{"body": "x", "from": "Bob"}, root)
	assert.Equal(t, "Bob", out["from"])
	assert.NotContains(t, out, "subject")
	assert.Equal(t, "Ann", out[KeyForward].(*fwdsplit.MessageNode).Value(fwdsplit.From))
}

func TestWriteFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "INBOX", "00001.json")

	require.NoError(t, WriteFile(path, Record{"body": "<a> & b"}))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "{\n  \"body\": \"<a> & b\"\n}\n", string(data))

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp file must be gone")

	rec, err := ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "<a> & b", rec["body"])
}

func TestWriteFileFailsWithoutTouchingTarget(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rec.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"body":"keep"}`), 0o644))

	err := WriteFile(path, Record{"body": func() {}})
	require.Error(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, `{"body":"keep"}`, string(data))
}

func TestJSONDir(t *testing.T) {
	dir := t.TempDir()
	for name, content := range map[string]string{
		"a.json":    `{"body":"a"}`,
		"b.json":    `{"body":"b"}`,
		"notes.txt": `ignored`,
	} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
	}
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub.json"), 0o755))

	items, err := JSONDir{Dir: dir}.Items(context.Background())
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "a.json", items[0].ID)
	assert.Equal(t, "b.json", items[1].ID)

	rec, err := items[1].Load()
	require.NoError(t, err)
	assert.Equal(t, "b", rec["body"])

	items, err = JSONDir{Dir: dir, Pattern: "b*"}.Items(context.Background())
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "b.json", items[0].ID)

	_, err = JSONDir{Dir: dir, Pattern: "["}.Items(context.Background())
	assert.Error(t, err)

	_, err = JSONDir{Dir: filepath.Join(dir, "missing")}.Items(context.Background())
	assert.Error(t, err)
}

func TestOnly(t *testing.T) {
	items := []Item{{ID: "a"}, {ID: "b"}, {ID: "c"}}
	got := Only(items, []string{"c", "a", "zzz"})
	require.Len(t, got, 2)
	assert.Equal(t, "a", got[0].ID)
	assert.Equal(t, "c", got[1].ID)
	assert.Empty(t, Only(items, nil))
}
