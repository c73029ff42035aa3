package fwdsplit

import (
	"io"
	"strings"

	"github.com/sirupsen/logrus"
)

// Segmenter splits a message body into its chain of forwarded messages. It holds no
// mutable state and is safe for concurrent use.
type Segmenter struct {
	rules *Rules
	log   logrus.FieldLogger
}

// Option configures a Segmenter.
type Option func(*Segmenter)

// WithLogger traces segmentation decisions at debug level.
func WithLogger(l logrus.FieldLogger) Option {
	return func(s *Segmenter) {
		s.log = l
	}
}

// NewSegmenter returns a segmenter using rules, or the default rules when rules is nil.
func NewSegmenter(rules *Rules, opts ...Option) *Segmenter {
	if rules == nil {
		rules = MustRules(DefaultConfig())
	}
	discard := logrus.New()
	discard.SetOutput(io.Discard)
	s := &Segmenter{rules: rules, log: discard}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Rules returns the rules the segmenter was built with.
func (s *Segmenter) Rules() *Rules {
	return s.rules
}

// Segment normalizes text and splits it into a tree of messages. The root has depth 0
// and no header fields. The only error is *InternalConsistencyError.
func (s *Segmenter) Segment(text string) (*MessageNode, error) {
	return s.segment(Normalize(text), 0, Header{}, "")
}

func (s *Segmenter) segment(text string, depth int, h Header, marker string) (*MessageNode, error) {
	node := &MessageNode{Header: h, Marker: marker, Depth: depth}
	log := s.log.WithField("depth", depth)

	if depth >= s.rules.maxDepth {
		log.Debug("depth limit reached, keeping remainder verbatim")
		node.Body = text
		return node, nil
	}

	lines := splitLines(s.rules.RewriteInline(text))
	b, ok := s.rules.FindBoundary(lines)
	if !ok {
		node.Body = joinLines(trimBlankLines(lines))
		return node, nil
	}
	log.WithFields(logrus.Fields{
		"line": b.Index,
		"kind": b.Kind,
	}).Debug("nested message found")

	node.Body = joinLines(trimBlankLines(lines[:b.Index]))
	rest := lines[b.Index:]
	var childMarker string
	if b.Kind == BoundaryMarker {
		childMarker = strings.TrimSpace(rest[0])
		rest = rest[1:]
	}

	c := s.rules.ExtractCluster(rest)
	if b.Kind == BoundaryCluster && len(c.Assignments) == 0 {
		return nil, NewInternalConsistencyError(depth, b.Index, lines[b.Index])
	}

	child, err := s.segment(c.Tail, depth+1, c.Header, childMarker)
	if err != nil {
		return nil, err
	}
	node.Forward = child
	return node, nil
}
