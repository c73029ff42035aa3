package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/emurenMRz/mboxfwd/internal/fwdsplit"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "mboxfwd.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	chdir(t, t.TempDir())

	cfg, err := Load("", nil)
	require.NoError(t, err)
	assert.Equal(t, fwdsplit.DefaultMaxDepth, cfg.Segmenter.MaxDepth)
	assert.Equal(t, fwdsplit.DefaultMarkers, cfg.Segmenter.Markers)
	assert.True(t, cfg.Segmenter.FallbackFrom)
	assert.Equal(t, 4, cfg.Batch.Workers)
	assert.Equal(t, 30*time.Second, cfg.Batch.RecordTimeout)
	assert.Equal(t, "*.json", cfg.Batch.Pattern)
	assert.Equal(t, "json", cfg.Batch.Format)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Empty(t, cfg.Ledger.Path)
	assert.Empty(t, cfg.Metrics.File)
}

func TestLoadFromFile(t *testing.T) {
	path := writeConfig(t, `
segmenter:
  max_depth: 5
  fallback_from: false
batch:
  workers: 2
  record_timeout: 1m
  format: mbox
logging:
  level: debug
  format: json
ledger:
  path: /var/lib/mboxfwd/ledger.db
`)
	cfg, err := Load(path, nil)
	require.NoError(t, err)
	assert.Equal(t, 5, cfg.Segmenter.MaxDepth)
	assert.False(t, cfg.Segmenter.FallbackFrom)
	assert.Equal(t, 2, cfg.Batch.Workers)
	assert.Equal(t, time.Minute, cfg.Batch.RecordTimeout)
	assert.Equal(t, "mbox", cfg.Batch.Format)
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.Equal(t, "/var/lib/mboxfwd/ledger.db", cfg.Ledger.Path)

	rules, err := cfg.Segmenter.Rules()
	require.NoError(t, err)
	assert.Equal(t, 5, rules.MaxDepth())
}

func TestLoadMissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "reading config")
}

func TestLoadPrecedence(t *testing.T) {
	path := writeConfig(t, `
batch:
  workers: 2
logging:
  level: warn
`)
	t.Setenv("MBOXFWD_BATCH_WORKERS", "6")
	t.Setenv("MBOXFWD_LOGGING_LEVEL", "error")

	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	fs.Int("workers", 1, "")
	fs.String("log-level", "info", "")
	fs.Int("max-depth", fwdsplit.DefaultMaxDepth, "")
	require.NoError(t, fs.Parse([]string{"--log-level", "debug"}))

	cfg, err := Load(path, fs)
	require.NoError(t, err)
	assert.Equal(t, 6, cfg.Batch.Workers, "env beats file")
	assert.Equal(t, "debug", cfg.Logging.Level, "flag beats env")
	assert.Equal(t, fwdsplit.DefaultMaxDepth, cfg.Segmenter.MaxDepth, "unset flag keeps default")
}

func TestLoadInvalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
		errMsg  string
	}{
		{"workers", "batch:\n  workers: 0\n", "batch.workers"},
		{"format", "batch:\n  format: csv\n", "batch.format"},
		{"level", "logging:\n  level: loud\n", "logging.level"},
		{"log format", "logging:\n  format: xml\n", "logging.format"},
		{"depth", "segmenter:\n  max_depth: 0\n", "max depth"},
		{"locale", "segmenter:\n  locales:\n    - name: klingon\n", "unknown locale"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.content), nil)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestSegmenterRulesLocales(t *testing.T) {
	path := writeConfig(t, `
segmenter:
  locales:
    - name: english
    - name: german
      labels:
        from: [Von]
        to: [An]
        subject: [Betreff]
        date: [Datum, Gesendet]
      inline:
        pattern: '^Am (?P<date>.+), schrieb (?P<name>.+) <(?P<email>[^>]+)>:$'
        lead: Am
        tail: 'schrieb'
`)
	cfg, err := Load(path, nil)
	require.NoError(t, err)
	require.Len(t, cfg.Segmenter.Locales, 2)

	rules, err := cfg.Segmenter.Rules()
	require.NoError(t, err)
	root, err := fwdsplit.NewSegmenter(rules).Segment("hallo\n\nVon: Bernd\nBetreff: Termin\n\nText")
	require.NoError(t, err)
	require.NotNil(t, root.Forward)
	assert.Equal(t, "Bernd", root.Forward.Value(fwdsplit.From))
	assert.Equal(t, "Termin", root.Forward.Value(fwdsplit.Subject))
	assert.Equal(t, "Text", root.Forward.Body)
}

func TestSegmenterRulesBadField(t *testing.T) {
	sc := SegmenterConfig{
		MaxDepth: fwdsplit.DefaultMaxDepth,
		Locales: []LocaleConfig{{
			Name:   "broken",
			Labels: map[string][]string{"reply-to": {"Antwort an"}},
		}},
	}
	_, err := sc.Rules()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "locale broken")
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
