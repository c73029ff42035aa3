package fwdsplit

import "strings"

// escapeReplacer turns line endings, and the literal escape sequences left behind by
// exporters that double-encode bodies, into a single "\n".
var escapeReplacer = strings.NewReplacer(
	"\r\n", "\n",
	"\r", "\n",
	`\r\n`, "\n",
	`\n`, "\n",
)

// Normalize canonicalizes line endings and strips byte order marks. It never fails and
// Normalize(Normalize(s)) == Normalize(s).
func Normalize(text string) string {
	// The BOM goes first: removing it later could join a backslash and an 'n'.
	text = strings.ReplaceAll(text, "\uFEFF", "")
	return escapeReplacer.Replace(text)
}

// splitLines splits normalized text into lines. Empty text has no lines.
func splitLines(text string) []string {
	if text == "" {
		return nil
	}
	return strings.Split(text, "\n")
}

// joinLines is the inverse of splitLines.
func joinLines(lines []string) string {
	return strings.Join(lines, "\n")
}

// trimBlankLines drops leading and trailing blank lines.
func trimBlankLines(lines []string) []string {
	for len(lines) > 0 && isBlank(lines[0]) {
		lines = lines[1:]
	}
	for len(lines) > 0 && isBlank(lines[len(lines)-1]) {
		lines = lines[:len(lines)-1]
	}
	return lines
}
