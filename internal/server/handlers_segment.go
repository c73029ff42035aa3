package server

import (
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"

	"github.com/emurenMRz/mboxfwd/internal/fwdsplit"
	"github.com/emurenMRz/mboxfwd/internal/record"
)

// segmentHandler segments the request body. A JSON body is taken as a record and the
// segmented record is returned; any other body is taken as message text and its tree
// is returned.
func (s *Server) segmentHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		s.writeError(w, err)
		return
	}

	ctype, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if ctype == "application/json" {
		rec, err := record.Decode(data)
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
		writeJSON(w, http.StatusOK, record.Apply(rec, root))
		return
	}

	root, err := s.seg.Segment(string(data))
	if err != nil {
		s.writeError(w, err)
		return
	}
	if r.URL.Query().Get("flat") == "1" {
		writeJSON(w, http.StatusOK, shallowChain(root))
		return
	}
	writeJSON(w, http.StatusOK, root)
}

func shallowChain(root *fwdsplit.MessageNode) []*fwdsplit.MessageNode {
	var nodes []*fwdsplit.MessageNode
	for _, n := range root.Flatten() {
		nodes = append(nodes, n.Shallow())
	}
	return nodes
}

// writeError maps err to a status code.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	var (
		ie  *fwdsplit.InputError
		ice *fwdsplit.InternalConsistencyError
		mbe *http.MaxBytesError
	)
	switch {
	case errors.As(err, &ie):
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
	case errors.As(err, &mbe):
		writeJSON(w, http.StatusRequestEntityTooLarge, errorResponse{Error: err.Error()})
	case errors.As(err, &ice):
		s.log.WithError(err).WithField("depth", ice.Depth).Error("Segmentation failed")
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "segmentation failed"})
	default:
		s.log.WithError(err).Error("Request failed")
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error"})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	enc.Encode(v)
}
