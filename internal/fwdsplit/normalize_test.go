package fwdsplit

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"crlf", "a\r\nb\r\n", "a\nb\n"},
		{"lone cr", "a\rb", "a\nb"},
		{"mixed", "a\r\n\rb\nc", "a\n\nb\nc"},
		{"literal crlf escape", `a\r\nb`, "a\nb"},
		{"literal lf escape", `a\nb\n`, "a\nb\n"},
		{"bom", "\uFEFFhello", "hello"},
		{"bom inside escape", "a\\\uFEFFnb", "a\nb"},
		{"plain", "nothing to do", "nothing to do"},
		{"empty", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Normalize(tt.in))
		})
	}
}

func TestNormalizeIdempotent(t *testing.T) {
	inputs := []string{
		"",
		"\r\r\n\n",
		`\r\n\n`,
		"\\\r\n",
		`\\n`,
		"\\\rn",
		"\uFEFF\\\uFEFFr\\\uFEFFn",
		"On Jan 5, 2021 wrote:\r\n> From: a\r\n",
		"a\\\\\\nb\r",
	}
	for _, in := range inputs {
		once := Normalize(in)
		assert.Equal(t, once, Normalize(once), "input %q", in)
		assert.NotContains(t, once, "\r", "input %q", in)
	}
}

func TestTrimBlankLines(t *testing.T) {
	got := trimBlankLines([]string{"", "  ", ">", "a", "", "b", " > ", ""})
	assert.Equal(t, []string{"a", "", "b"}, got)
	assert.Empty(t, trimBlankLines([]string{"", " "}))
	assert.Nil(t, splitLines(""))
}
