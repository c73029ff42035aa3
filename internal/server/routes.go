package server

import (
	"net/http"
	"strings"

	"github.com/sirupsen/logrus"
)

func (s *Server) handleMailboxRoutes(w http.ResponseWriter, r *http.Request) {
	s.log.WithFields(logrus.Fields{
		"method": r.Method,
		"path":   r.URL.Path,
	}).Debug("Request")

	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	parts := strings.Split(strings.TrimPrefix(r.URL.Path, "/api/mailboxes/"), "/")
	segmentCount := len(parts)

	if segmentCount == 1 && parts[0] == "" {
		s.mailboxesHandler(w, r)
		return
	}

	if segmentCount >= 2 && parts[1] == "emails" {
		mboxName := parts[0]
		switch segmentCount {
		case 2:
			s.listEmailsHandler(w, r, mboxName)
			return
		case 3:
			s.emailForwardsHandler(w, r, mboxName, parts[2])
			return
		}
	}

	http.NotFound(w, r)
}
