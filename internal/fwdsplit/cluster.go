package fwdsplit

import "strings"

// Assignment is one field recovered from a header cluster.
type Assignment struct {
	Field CanonicalField
	Value string
}

// Cluster is the result of ExtractCluster. Tail is the text from the first line not
// consumed on.
type Cluster struct {
	Assignments []Assignment
	Header      Header
	Tail        string
}

// ExtractCluster consumes the header cluster at the start of lines. Header lines assign
// their field, the first assignment winning. Text lines following an assigned field
// continue its value. Extraction stops before a field that is already set, at a blank
// line not followed by a header for an unset field, at a marker line, or at the end.
func (r *Rules) ExtractCluster(lines []string) Cluster {
	var (
		h     Header
		order []CanonicalField
		last  = CanonicalField(-1)
	)

	i := 0
	for i < len(lines) && isBlank(lines[i]) {
		i++
	}

loop:
	for i < len(lines) {
		line := lines[i]

		if isBlank(line) {
			j := i
			for j < len(lines) && isBlank(lines[j]) {
				j++
			}
			if j < len(lines) {
				if c := r.Classify(lines[j]); c.IsHeader && !h.present[c.Field] {
					i = j
					continue
				}
			}
			break
		}

		c := r.Classify(line)
		switch {
		case c.IsHeader:
			if !h.set(c.Field, c.Value) {
				break loop
			}
			order = append(order, c.Field)
			last = c.Field
		case last < 0 || r.IsMarker(line):
			break loop
		default:
			_, cont := splitQuote(line)
			h.appendTo(last, cont)
		}
		i++
	}

	cl := Cluster{
		Header: h,
		Tail:   joinLines(lines[i:]),
	}
	for _, f := range order {
		cl.Assignments = append(cl.Assignments, Assignment{Field: f, Value: h.values[f]})
	}
	return cl
}

// isBlank reports whether line holds nothing but whitespace and quote markers.
func isBlank(line string) bool {
	return strings.Trim(line, "> \t") == ""
}
