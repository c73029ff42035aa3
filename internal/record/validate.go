package record

import (
	"net/mail"
	"strings"

	gomail "github.com/emersion/go-message/mail"

	"github.com/emurenMRz/mboxfwd/internal/fwdsplit"
)

const (
	StatusMissing = "missing"
	StatusInvalid = "invalid"
	StatusDeleted = "deleted"
)

// ValidationResult represents one finding about a record
type ValidationResult struct {
	Record string `json:"record" yaml:"record"`
	Field  string `json:"field" yaml:"field"`
	Status string `json:"status" yaml:"status"` // "missing", "invalid", "deleted"
	Detail string `json:"detail,omitempty" yaml:"detail,omitempty"`
}

// Validate checks rec before segmentation. A record without findings, or with only
// invalid header values, can be segmented; a missing or non-text body cannot.
func Validate(id string, rec Record) []ValidationResult {
	var results []ValidationResult

	if _, err := rec.Body(); err != nil {
		status := StatusInvalid
		if _, ok := rec[KeyBody]; !ok {
			status = StatusMissing
		}
		results = append(results, ValidationResult{
			Record: id,
			Field:  KeyBody,
			Status: status,
			Detail: err.Error(),
		})
	}

	for _, f := range fwdsplit.Fields {
		v, ok := rec[f.String()]
		if !ok {
			continue
		}
		s, ok := v.(string)
		if !ok {
			results = append(results, ValidationResult{
				Record: id,
				Field:  f.String(),
				Status: StatusInvalid,
				Detail: "value is not text",
			})
			continue
		}
		switch f {
		case fwdsplit.From, fwdsplit.To, fwdsplit.Cc, fwdsplit.Bcc:
			if s != "" && !isValidAddressList(s) {
				results = append(results, ValidationResult{
					Record: id,
					Field:  f.String(),
					Status: StatusInvalid,
					Detail: "Invalid address list format",
				})
			}
		case fwdsplit.Date:
			if s != "" && !isValidDate(s) {
				results = append(results, ValidationResult{
					Record: id,
					Field:  f.String(),
					Status: StatusInvalid,
					Detail: "Invalid Date format",
				})
			}
		}
	}

	if status, ok := rec[KeyStatus].(string); ok && strings.Contains(status, "D") {
		results = append(results, ValidationResult{
			Record: id,
			Field:  KeyStatus,
			Status: StatusDeleted,
		})
	}

	return results
}

// Segmentable reports whether results allow the record to be segmented.
func Segmentable(results []ValidationResult) bool {
	for _, r := range results {
		if r.Field == KeyBody {
			return false
		}
	}
	return true
}

// isValidAddressList checks if an address header is parseable
func isValidAddressList(s string) bool {
	_, err := gomail.ParseAddressList(s)
	return err == nil
}

// isValidDate checks if a Date header is valid
func isValidDate(date string) bool {
	_, err := mail.ParseDate(date)
	return err == nil
}
