package server

import (
	"errors"
	"io/fs"
	"net/http"
	"net/mail"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/emersion/go-imap/utf7"
	"github.com/sirupsen/logrus"

	"github.com/emurenMRz/mboxfwd/internal/fwdsplit"
	"github.com/emurenMRz/mboxfwd/internal/record"
)

func (s *Server) mailboxesHandler(w http.ResponseWriter, _ *http.Request) {
	files, err := os.ReadDir(s.basePath)
	if err != nil {
		s.log.WithError(err).Error("Failed to read mailbox directory")
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "failed to read directory"})
		return
	}

	mailboxes := []string{}
	for _, file := range files {
		if file.IsDir() || strings.HasPrefix(file.Name(), ".") {
			continue
		}
		// Files on disk are IMAP-UTF7 encoded; decode to UTF-8 for API response
		decodedName, err := utf7.Encoding.NewDecoder().String(file.Name())
		if err != nil {
			s.log.WithError(err).WithField("file", file.Name()).Warn("Failed to decode mailbox filename")
			continue
		}
		mailboxes = append(mailboxes, decodedName)
	}

	writeJSON(w, http.StatusOK, mailboxes)
}

// readMailbox returns the raw messages of the mailbox called name.
func (s *Server) readMailbox(w http.ResponseWriter, r *http.Request, name string) ([][]byte, bool) {
	// mailboxName coming from API is UTF-8; encode to IMAP-UTF7 to find file on disk
	encoded, err := utf7.Encoding.NewEncoder().String(name)
	if err != nil || encoded == "" || encoded != filepath.Base(encoded) || strings.HasPrefix(encoded, ".") {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid mailbox name"})
		return nil, false
	}

	messages, err := record.ReadMailbox(filepath.Join(s.basePath, encoded))
	if errors.Is(err, fs.ErrNotExist) {
		http.NotFound(w, r)
		return nil, false
	}
	if err != nil {
		s.log.WithError(err).WithField("mailbox", name).Error("Failed to read mailbox")
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "error reading mbox"})
		return nil, false
	}
	return messages, true
}

func (s *Server) listEmailsHandler(w http.ResponseWriter, r *http.Request, mailboxName string) {
	messages, ok := s.readMailbox(w, r, mailboxName)
	if !ok {
		return
	}

	emails := []Email{}
	for i, raw := range messages {
		rec, err := record.ParseMessage(raw, mailboxName, i)
		if err != nil {
			s.log.WithError(err).WithFields(logrus.Fields{"mailbox": mailboxName, "index": i}).
				Warn("Failed to parse message")
			continue
		}

		status, _ := rec[record.KeyStatus].(string)
		if strings.Contains(status, "D") {
			continue
		}
		if status == "" {
			// No header means the message is new
			status = "N"
		}

		email := Email{
			ID:      i,
			From:    text(rec, fwdsplit.From),
			Date:    text(rec, fwdsplit.Date),
			Subject: text(rec, fwdsplit.Subject),
			Status:  status,
		}
		email.Timestamp = parseDate(email.Date)
		if body, err := rec.Body(); err == nil {
			if root, err := s.seg.Segment(body); err == nil {
				email.Forwards = root.TreeDepth()
			}
		}
		emails = append(emails, email)
	}

	// sort by Timestamp descending (newest first). Zero timestamps go last.
	sort.SliceStable(emails, func(a, b int) bool {
		ta := emails[a].Timestamp
		tb := emails[b].Timestamp
		if ta.Equal(tb) {
			return emails[a].ID < emails[b].ID
		}
		if ta.IsZero() {
			return false
		}
		if tb.IsZero() {
			return true
		}
		return ta.After(tb)
	})

	writeJSON(w, http.StatusOK, emails)
}

// emailForwardsHandler returns the segmented record of one message. With ?flat=1
// the messages of the forward chain are listed instead.
func (s *Server) emailForwardsHandler(w http.ResponseWriter, r *http.Request, mailboxName string, emailIDStr string) {
	emailID, err := strconv.Atoi(emailIDStr)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid email ID"})
		return
	}

	messages, ok := s.readMailbox(w, r, mailboxName)
	if !ok {
		return
	}
	if emailID < 0 || emailID >= len(messages) {
		http.NotFound(w, r)
		return
	}

	rec, err := record.ParseMessage(messages[emailID], mailboxName, emailID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	body, err := rec.Body()
	if err != nil {
		s.writeError(w, err)
		return
	}
	root, err := s.seg.Segment(body)
	if err != nil {
		s.writeError(w, err)
		return
	}

	if r.URL.Query().Get("flat") == "1" {
		writeJSON(w, http.StatusOK, shallowChain(root))
		return
	}
	writeJSON(w, http.StatusOK, record.Apply(rec, root))
}

func text(rec record.Record, f fwdsplit.CanonicalField) string {
	s, _ := rec[f.String()].(string)
	return s
}

// parseDate tries to parse common email Date header formats and returns a time.Time.
// If parsing fails, it returns zero time.
func parseDate(dateStr string) time.Time {
	if dateStr == "" {
		return time.Time{}
	}
	if t, err := mail.ParseDate(dateStr); err == nil {
		return t
	}
	// common fallbacks
	layouts := []string{
		time.RFC1123Z,
		time.RFC1123,
		time.RFC822Z,
		time.RFC822,
		time.RFC850,
		time.RFC3339,
	}
	for _, l := range layouts {
		if t, err := time.Parse(l, dateStr); err == nil {
			return t
		}
	}
	return time.Time{}
}
