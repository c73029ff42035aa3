package fwdsplit

import "strings"

// maxInlinePasses bounds RewriteInline. One pass normally suffices; a second pass
// confirms nothing is left to rewrite.
const maxInlinePasses = 8

// RewriteInline replaces narrative reply sentences such as
//
//	On Jan 5, 2021, at 3:00 PM, John Doe <john@x.com> wrote:
//
// with synthetic "Date:" and "From:" header lines, followed by a blank line. A quote
// prefix ("> ") on the sentence is kept on the synthetic lines. Sentences wrapped over
// two lines are joined first. The rewrite removes the verb phrase, so the output never
// matches again and RewriteInline is idempotent.
func (r *Rules) RewriteInline(text string) string {
	if len(r.inline) == 0 {
		return text
	}
	for i := 0; i < maxInlinePasses; i++ {
		out, changed := r.rewritePass(text)
		if !changed {
			return out
		}
		text = out
	}
	return text
}

func (r *Rules) rewritePass(text string) (string, bool) {
	lines := splitLines(text)
	out := make([]string, 0, len(lines))
	changed := false

	for i := 0; i < len(lines); i++ {
		prefix, content := splitQuote(lines[i])
		date, from, ok := r.matchInline(content)
		consumed := 1
		if !ok && i+1 < len(lines) {
			_, next := splitQuote(lines[i+1])
			if _, _, nextOK := r.matchInline(next); !nextOK {
				date, from, ok = r.matchWrapped(content, next)
				consumed = 2
			}
		}
		if !ok {
			out = append(out, lines[i])
			continue
		}

		out = append(out,
			prefix+r.synthetic[Date]+": "+date,
			prefix+r.synthetic[From]+": "+from,
		)
		i += consumed - 1
		if i+1 < len(lines) && strings.TrimSpace(lines[i+1]) != "" {
			out = append(out, "")
		}
		changed = true
	}
	return joinLines(out), changed
}

// matchInline matches content against every locale template, each with its own match.
func (r *Rules) matchInline(content string) (date, from string, ok bool) {
	for _, rule := range r.inline {
		m := rule.re.FindStringSubmatch(content)
		if m == nil {
			continue
		}
		date = strings.TrimSpace(m[rule.date])
		name := strings.TrimSpace(m[rule.name])
		from = "<" + strings.TrimSpace(m[rule.email]) + ">"
		if name != "" {
			from = name + " " + from
		}
		return date, from, true
	}
	return "", "", false
}

// matchWrapped matches a sentence that a mail client wrapped over two lines.
func (r *Rules) matchWrapped(first, second string) (date, from string, ok bool) {
	words := strings.Fields(fold(first))
	if len(words) < 2 {
		return "", "", false
	}
	lsecond := fold(second)
	for _, rule := range r.inline {
		if rule.lead == "" || rule.tail == "" {
			continue
		}
		if words[0] != fold(rule.lead) || !strings.HasSuffix(lsecond, fold(rule.tail)) {
			continue
		}
		if date, from, ok = r.matchInline(first + " " + second); ok {
			return date, from, true
		}
	}
	return "", "", false
}

// splitQuote separates the quote prefix of line from its trimmed content.
func splitQuote(line string) (prefix, content string) {
	prefix = quotePrefix(line)
	return prefix, strings.TrimSpace(line[len(prefix):])
}
