// Package record reads and writes the flat key/value records the segmenter works on.
package record

import (
	"bytes"
	"encoding/json"
	"fmt"
	"maps"

	"github.com/emurenMRz/mboxfwd/internal/fwdsplit"
)

// Keys used by records.
const (
	KeyBody    = "body"
	KeyForward = "forward"
)

// Record is one decoded record. Keys other than the ones the segmenter fills in are
// carried through unchanged.
type Record map[string]any

// Decode parses a JSON object. Anything else is an *fwdsplit.InputError.
func Decode(data []byte) (Record, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var rec Record
	if err := dec.Decode(&rec); err != nil {
		return nil, fwdsplit.NewInputError(fmt.Sprintf("decoding record: %v", err))
	}
	if rec == nil {
		return nil, fwdsplit.NewInputError("record is not an object")
	}
	return rec, nil
}

// Body returns the text body of rec.
func (rec Record) Body() (string, error) {
	v, ok := rec[KeyBody]
	if !ok {
		return "", fwdsplit.NewInputError("body is missing")
	}
	s, ok := v.(string)
	if !ok {
		return "", fwdsplit.NewInputError(fmt.Sprintf("body is %T, not text", v))
	}
	return s, nil
}

// Apply returns a copy of rec holding the segmentation result. The body is replaced by
// the root body and the nested messages are stored under "forward". The root carries
// no header of its own, so the other keys of rec are left as they are.
func Apply(rec Record, root *fwdsplit.MessageNode) Record {
	out := maps.Clone(rec)
	if out == nil {
		out = Record{}
	}
	out[KeyBody] = root.Body
	delete(out, KeyForward)
	if root.Forward != nil {
		out[KeyForward] = root.Forward
	}
	return out
}
