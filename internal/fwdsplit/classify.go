package fwdsplit

import "strings"

// LineClass is the result of classifying a single line.
type LineClass struct {
	IsHeader bool
	Field    CanonicalField
	Value    string // raw value, surrounding whitespace removed
}

// Classify reports whether line is a localized header line such as "Van: Jan" or
// "> Subject: hi". The label has to start the line, optionally after quote markers.
func (r *Rules) Classify(line string) LineClass {
	m := r.headerRE.FindStringSubmatch(line)
	if m == nil {
		return LineClass{}
	}
	f, ok := r.table[fold(m[1])]
	if !ok {
		return LineClass{}
	}
	return LineClass{
		IsHeader: true,
		Field:    f,
		Value:    strings.TrimSpace(m[2]),
	}
}

// IsMarker reports whether line contains one of the explicit forward marker phrases.
func (r *Rules) IsMarker(line string) bool {
	if strings.TrimSpace(line) == "" {
		return false
	}
	l := fold(line)
	for _, m := range r.markers {
		if strings.Contains(l, m) {
			return true
		}
	}
	return false
}

// quotePrefix returns the leading whitespace and '>' quote markers of line.
func quotePrefix(line string) string {
	i := 0
	for i < len(line) && (line[i] == '>' || line[i] == ' ' || line[i] == '\t') {
		i++
	}
	return line[:i]
}
