package fwdsplit

import (
	"encoding/json"
	"fmt"
	"strings"
)

// CanonicalField is a locale independent header field.
type CanonicalField int

const (
	From CanonicalField = iota
	To
	Cc
	Bcc
	Subject
	Date

	fieldCount
)

var fieldNames = [fieldCount]string{"from", "to", "cc", "bcc", "subject", "date"}

// Fields lists all canonical fields in output order.
var Fields = [...]CanonicalField{From, To, Cc, Bcc, Subject, Date}

func (f CanonicalField) String() string {
	if f < 0 || f >= fieldCount {
		return fmt.Sprintf("field(%d)", int(f))
	}
	return fieldNames[f]
}

// ParseField returns the canonical field for its lowercase name, e.g. "subject".
func ParseField(name string) (CanonicalField, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	for i, n := range fieldNames {
		if n == name {
			return CanonicalField(i), nil
		}
	}
	return 0, fmt.Errorf("unknown header field %q", name)
}

// Header holds the raw values recovered for one message. Every field is optional.
type Header struct {
	values  [fieldCount]string
	present [fieldCount]bool
}

// Get returns the value of f and whether it was set.
func (h Header) Get(f CanonicalField) (string, bool) {
	if f < 0 || f >= fieldCount {
		return "", false
	}
	return h.values[f], h.present[f]
}

// Len returns the number of fields set.
func (h Header) Len() int {
	n := 0
	for _, p := range h.present {
		if p {
			n++
		}
	}
	return n
}

// set assigns f unless it already holds a value. First assignment wins.
func (h *Header) set(f CanonicalField, value string) bool {
	if h.present[f] {
		return false
	}
	h.values[f] = value
	h.present[f] = true
	return true
}

// appendTo joins a continuation line onto f with a single space.
func (h *Header) appendTo(f CanonicalField, cont string) {
	if h.values[f] == "" {
		h.values[f] = cont
		return
	}
	h.values[f] += " " + cont
}

// MessageNode is one message of a forward chain. Forward, when set, is the message
// embedded in this one and is owned by it.
type MessageNode struct {
	Header  Header
	Body    string
	Marker  string // explicit forward marker line that introduced this message
	Depth   int
	Forward *MessageNode
}

// Value returns the raw value of f, or "" when absent.
func (n *MessageNode) Value(f CanonicalField) string {
	v, _ := n.Header.Get(f)
	return v
}

// Flatten returns the chain from n down to its deepest forward.
func (n *MessageNode) Flatten() []*MessageNode {
	var nodes []*MessageNode
	for cur := n; cur != nil; cur = cur.Forward {
		nodes = append(nodes, cur)
	}
	return nodes
}

// Shallow returns a copy of n without its forward.
func (n *MessageNode) Shallow() *MessageNode {
	c := *n
	c.Forward = nil
	return &c
}

// TreeDepth returns the depth of the deepest node below and including n.
func (n *MessageNode) TreeDepth() int {
	d := n.Depth
	for cur := n; cur != nil; cur = cur.Forward {
		d = cur.Depth
	}
	return d
}

// nodeView is the serialized shape of a MessageNode.
type nodeView struct {
	From    *string   `json:"from,omitempty" yaml:"from,omitempty"`
	To      *string   `json:"to,omitempty" yaml:"to,omitempty"`
	Cc      *string   `json:"cc,omitempty" yaml:"cc,omitempty"`
	Bcc     *string   `json:"bcc,omitempty" yaml:"bcc,omitempty"`
	Subject *string   `json:"subject,omitempty" yaml:"subject,omitempty"`
	Date    *string   `json:"date,omitempty" yaml:"date,omitempty"`
	Marker  string    `json:"marker,omitempty" yaml:"marker,omitempty"`
	Body    string    `json:"body" yaml:"body"`
	Forward *nodeView `json:"forward,omitempty" yaml:"forward,omitempty"`
}

func (n *MessageNode) view() *nodeView {
	if n == nil {
		return nil
	}
	field := func(f CanonicalField) *string {
		if v, ok := n.Header.Get(f); ok {
			return &v
		}
		return nil
	}
	return &nodeView{
		From:    field(From),
		To:      field(To),
		Cc:      field(Cc),
		Bcc:     field(Bcc),
		Subject: field(Subject),
		Date:    field(Date),
		Marker:  n.Marker,
		Body:    n.Body,
		Forward: n.Forward.view(),
	}
}

func (n *MessageNode) MarshalJSON() ([]byte, error) {
	return json.Marshal(n.view())
}

func (n *MessageNode) MarshalYAML() (interface{}, error) {
	return n.view(), nil
}
