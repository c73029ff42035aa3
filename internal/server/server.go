// Package server exposes the segmenter over HTTP: ad-hoc text and records, and the
// messages of a directory of mbox files.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/emurenMRz/mboxfwd/internal/fwdsplit"
)

// maxBodyBytes limits the size of a request body.
const maxBodyBytes = 10 << 20

type Server struct {
	basePath string
	seg      *fwdsplit.Segmenter
	log      logrus.FieldLogger
	mux      *http.ServeMux
}

// New creates a server for the mailboxes in basePath.
func New(basePath string, seg *fwdsplit.Segmenter, log logrus.FieldLogger) *Server {
	s := &Server{
		basePath: basePath,
		seg:      seg,
		log:      log,
		mux:      http.NewServeMux(),
	}
	s.mux.HandleFunc("/api/segment", s.segmentHandler)
	s.mux.HandleFunc("/api/mailboxes/", s.handleMailboxRoutes)
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		s.log.WithField("addr", addr).Info("Listening")
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errc; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
