package fwdsplit

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"golang.org/x/text/cases"
)

const (
	DefaultMaxDepth = 15
	maxMaxDepth     = 64
)

// Locale groups the header labels and the inline reply template of one language.
type Locale struct {
	Name   string
	Labels map[CanonicalField][]string
	Inline *InlineTemplate
}

// InlineTemplate describes a narrative "who wrote this" sentence. Pattern must define
// the named groups date, name and email. Lead and Tail are the first and last words of
// the sentence, used to rejoin a sentence wrapped over two lines.
type InlineTemplate struct {
	Pattern string
	Lead    string
	Tail    string
}

// Config is the explicit configuration of the segmenter. Use NewRules to compile it.
type Config struct {
	MaxDepth     int
	Locales      []Locale
	Markers      []string
	FallbackFrom bool
}

// DefaultMarkers are the explicit forward marker phrases shipped by default.
var DefaultMarkers = []string{
	"Forwarded message",
	"Original Message",
	"Begin forwarded message",
	"Doorgestuurd bericht",
	"Oorspronkelijk bericht",
	"Mensaje reenviado",
	"Mensaje original",
}

// English, Dutch and Spanish are the shipped locales.
var (
	English = Locale{
		Name: "english",
		Labels: map[CanonicalField][]string{
			From:    {"From"},
			To:      {"To"},
			Cc:      {"Cc"},
			Bcc:     {"Bcc"},
			Subject: {"Subject"},
			Date:    {"Date", "Sent"},
		},
		Inline: &InlineTemplate{
			// The date ends at its last year or time token; the name may hold commas.
			Pattern: `^On\s+(?P<date>.*\b(?:\d{4}|\d{1,2}:\d{2}(?::\d{2})?(?:\s*[AP]\.?M\.?)?))(?:,\s*|\s+)(?P<name>[^<>]*?)\s*<(?P<email>[^<>\s]+)>\s*wrote:\s*$`,
			Lead:    "On",
			Tail:    "wrote:",
		},
	}
	Dutch = Locale{
		Name: "dutch",
		Labels: map[CanonicalField][]string{
			From:    {"Van"},
			To:      {"Aan"},
			Cc:      {"Cc"},
			Bcc:     {"Bcc"},
			Subject: {"Onderwerp"},
			Date:    {"Datum", "Verzonden"},
		},
		Inline: &InlineTemplate{
			Pattern: `^Op\s+(?P<date>.+?)\s+heeft\s+(?P<name>.*?)\s*<(?P<email>[^<>\s]+)>\s*het\s+volgende\s+geschreven:\s*$`,
			Lead:    "Op",
			Tail:    "geschreven:",
		},
	}
	Spanish = Locale{
		Name: "spanish",
		Labels: map[CanonicalField][]string{
			From:    {"De"},
			To:      {"Para"},
			Cc:      {"Cc"},
			Bcc:     {"Cco"},
			Subject: {"Asunto"},
			Date:    {"Fecha", "Enviado"},
		},
		Inline: &InlineTemplate{
			Pattern: `^El\s+(?P<date>.+?,\s*a\s+las\s+.+?),\s*(?P<name>[^<>]*?)\s*<(?P<email>[^<>\s]+)>\s*escribi[óo]:\s*$`,
			Lead:    "El",
			Tail:    "escribió:",
		},
	}
)

// LookupLocale returns the shipped locale called name.
func LookupLocale(name string) (Locale, bool) {
	for _, loc := range []Locale{English, Dutch, Spanish} {
		if strings.EqualFold(loc.Name, name) {
			return loc, true
		}
	}
	return Locale{}, false
}

// DefaultConfig returns the shipped configuration.
func DefaultConfig() Config {
	return Config{
		MaxDepth:     DefaultMaxDepth,
		Locales:      []Locale{English, Dutch, Spanish},
		Markers:      append([]string(nil), DefaultMarkers...),
		FallbackFrom: true,
	}
}

type inlineRule struct {
	locale string
	re     *regexp.Regexp
	lead   string
	tail   string
	date   int
	name   int
	email  int
}

// Rules is the compiled, immutable form of a Config. It is safe for concurrent use.
type Rules struct {
	maxDepth     int
	fallbackFrom bool

	table     map[string]CanonicalField // folded label -> field
	synthetic [fieldCount]string        // label used when writing synthetic header lines
	headerRE  *regexp.Regexp

	markers []string // folded
	inline  []inlineRule
}

// NewRules validates cfg and compiles it.
func NewRules(cfg Config) (*Rules, error) {
	if cfg.MaxDepth < 1 || cfg.MaxDepth > maxMaxDepth {
		return nil, fmt.Errorf("max depth %d out of range 1-%d", cfg.MaxDepth, maxMaxDepth)
	}
	if len(cfg.Locales) == 0 {
		return nil, fmt.Errorf("no locales configured")
	}

	r := &Rules{
		maxDepth:     cfg.MaxDepth,
		fallbackFrom: cfg.FallbackFrom,
		table:        map[string]CanonicalField{},
	}

	var labels []string
	for _, loc := range cfg.Locales {
		for _, f := range Fields {
			for _, label := range loc.Labels[f] {
				label = strings.TrimSpace(label)
				if label == "" {
					return nil, fmt.Errorf("locale %s: empty label for %s", loc.Name, f)
				}
				key := fold(label)
				if prev, ok := r.table[key]; ok && prev != f {
					return nil, fmt.Errorf("locale %s: label %q maps to both %s and %s", loc.Name, label, prev, f)
				}
				if _, ok := r.table[key]; !ok {
					labels = append(labels, label)
				}
				r.table[key] = f
				if r.synthetic[f] == "" {
					r.synthetic[f] = label
				}
			}
		}
	}
	if r.synthetic[From] == "" || r.synthetic[Date] == "" {
		return nil, fmt.Errorf("locales must define labels for from and date")
	}

	// Longest first, so a label never shadows a longer one sharing its prefix.
	sort.Slice(labels, func(i, j int) bool { return len(labels[i]) > len(labels[j]) })
	alts := make([]string, len(labels))
	for i, l := range labels {
		alts[i] = regexp.QuoteMeta(l)
	}
	re, err := regexp.Compile(`(?i)^\s*(?:>+\s*)*(` + strings.Join(alts, "|") + `)\s*:\s*(.*)$`)
	if err != nil {
		return nil, fmt.Errorf("compiling header pattern: %w", err)
	}
	r.headerRE = re

	for _, m := range cfg.Markers {
		if m = strings.TrimSpace(m); m != "" {
			r.markers = append(r.markers, fold(m))
		}
	}

	for _, loc := range cfg.Locales {
		if loc.Inline == nil {
			continue
		}
		re, err := regexp.Compile(`(?i)` + loc.Inline.Pattern)
		if err != nil {
			return nil, fmt.Errorf("locale %s: compiling inline pattern: %w", loc.Name, err)
		}
		rule := inlineRule{
			locale: loc.Name,
			re:     re,
			lead:   loc.Inline.Lead,
			tail:   loc.Inline.Tail,
			date:   re.SubexpIndex("date"),
			name:   re.SubexpIndex("name"),
			email:  re.SubexpIndex("email"),
		}
		if rule.date < 0 || rule.name < 0 || rule.email < 0 {
			return nil, fmt.Errorf("locale %s: inline pattern must define date, name and email groups", loc.Name)
		}
		r.inline = append(r.inline, rule)
	}

	return r, nil
}

// MustRules is like NewRules but panics on error. For tests and package defaults.
func MustRules(cfg Config) *Rules {
	r, err := NewRules(cfg)
	if err != nil {
		panic(err)
	}
	return r
}

// fold case-folds s. A Caser keeps state, so one is made per call.
func fold(s string) string {
	return cases.Fold().String(s)
}

// MaxDepth returns the configured recursion limit.
func (r *Rules) MaxDepth() int {
	return r.maxDepth
}
