// Package batch segments many independent records with a bounded pool of workers.
package batch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/emurenMRz/mboxfwd/internal/fwdsplit"
	"github.com/emurenMRz/mboxfwd/internal/record"
)

// Outcome is the result of one record.
type Outcome string

const (
	OutcomeProcessed Outcome = "processed"
	OutcomeSkipped   Outcome = "skipped" // bad input, see fwdsplit.InputError
	OutcomeFailed    Outcome = "failed"
)

// Stats counts the outcomes of a run.
type Stats struct {
	Processed int64
	Skipped   int64
	Failed    int64
}

// Total returns the number of records handled.
func (s Stats) Total() int64 {
	return s.Processed + s.Skipped + s.Failed
}

// Ledger stores the outcome of every record of a run.
type Ledger interface {
	RecordOutcome(ctx context.Context, runID, recordID, outcome, detail string, depth int) error
}

// Config holds the batch settings.
type Config struct {
	Workers       int
	RecordTimeout time.Duration // zero disables the timeout
	OutputDir     string
	DryRun        bool // segment but write nothing
}

// Runner segments records and writes the results to Config.OutputDir. A record that
// fails never aborts the run and never leaves a partial output file.
type Runner struct {
	seg     *fwdsplit.Segmenter
	cfg     Config
	log     logrus.FieldLogger
	ledger  Ledger
	runID   string
	metrics *Metrics
}

// Option configures a Runner.
type Option func(*Runner)

// WithLogger sets the logger. Records are logged with a "record" field.
func WithLogger(l logrus.FieldLogger) Option {
	return func(r *Runner) {
		r.log = l
	}
}

// WithLedger stores every outcome under runID.
func WithLedger(l Ledger, runID string) Option {
	return func(r *Runner) {
		r.ledger = l
		r.runID = runID
	}
}

// WithMetrics records per-record metrics.
func WithMetrics(m *Metrics) Option {
	return func(r *Runner) {
		r.metrics = m
	}
}

// NewRunner creates a runner.
func NewRunner(seg *fwdsplit.Segmenter, cfg Config, opts ...Option) *Runner {
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	discard := logrus.New()
	discard.SetOutput(io.Discard)
	r := &Runner{seg: seg, cfg: cfg, log: discard}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run handles items with at most Config.Workers records in flight. When ctx is
// cancelled no new record is started; records in flight are abandoned and counted as
// failed, and Run returns the context error. The returned error only reports whether
// the run itself completed, never the outcome of a single record.
func (r *Runner) Run(ctx context.Context, items []record.Item) (Stats, error) {
	var processed, skipped, failed atomic.Int64

	g := new(errgroup.Group)
	g.SetLimit(r.cfg.Workers)
	for _, it := range items {
		it := it
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			switch r.handle(ctx, it) {
			case OutcomeProcessed:
				processed.Add(1)
			case OutcomeSkipped:
				skipped.Add(1)
			default:
				failed.Add(1)
			}
			return nil
		})
	}
	_ = g.Wait()

	stats := Stats{
		Processed: processed.Load(),
		Skipped:   skipped.Load(),
		Failed:    failed.Load(),
	}
	if err := ctx.Err(); err != nil {
		return stats, fmt.Errorf("batch interrupted after %d of %d records: %w", stats.Total(), len(items), err)
	}
	return stats, nil
}

func (r *Runner) handle(ctx context.Context, it record.Item) Outcome {
	start := time.Now()
	log := r.log.WithField("record", it.ID)

	depth, err := r.process(ctx, it)
	outcome := classify(err)
	elapsed := time.Since(start)

	switch outcome {
	case OutcomeProcessed:
		log.WithFields(logrus.Fields{
			"depth":    depth,
			"duration": elapsed,
		}).Debug("record processed")
	case OutcomeSkipped:
		log.WithError(err).Warn("record skipped")
	default:
		var ice *fwdsplit.InternalConsistencyError
		if errors.As(err, &ice) {
			log = log.WithFields(logrus.Fields{
				"depth": ice.Depth,
				"line":  ice.Line,
				"text":  ice.Text,
			})
		}
		log.WithError(err).Error("record failed")
	}

	r.metrics.observe(outcome, depth, elapsed)

	if r.ledger != nil {
		detail := ""
		if err != nil {
			detail = err.Error()
		}
		// The outcome of an abandoned record is stored even after cancellation.
		lctx := context.WithoutCancel(ctx)
		if lerr := r.ledger.RecordOutcome(lctx, r.runID, it.ID, string(outcome), detail, depth); lerr != nil {
			log.WithError(lerr).Warn("storing outcome")
		}
	}
	return outcome
}

type result struct {
	rec   record.Record
	depth int
	err   error
}

// process segments one record and writes it. Segmentation runs in its own goroutine
// so that a record exceeding the timeout can be abandoned.
func (r *Runner) process(ctx context.Context, it record.Item) (int, error) {
	if r.cfg.RecordTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.cfg.RecordTimeout)
		defer cancel()
	}

	done := make(chan result, 1)
	go func() {
		done <- r.segment(it)
	}()

	var res result
	select {
	case <-ctx.Done():
		return 0, fmt.Errorf("record abandoned: %w", ctx.Err())
	case res = <-done:
	}
	if res.err != nil {
		return 0, res.err
	}

	if !r.cfg.DryRun {
		path := filepath.Join(r.cfg.OutputDir, filepath.FromSlash(it.ID))
		if err := record.WriteFile(path, res.rec); err != nil {
			return 0, fmt.Errorf("writing output: %w", err)
		}
	}
	return res.depth, nil
}

func (r *Runner) segment(it record.Item) (res result) {
	defer func() {
		if p := recover(); p != nil {
			res = result{err: fmt.Errorf("panic while segmenting: %v", p)}
		}
	}()

	rec, err := it.Load()
	if err != nil {
		return result{err: err}
	}
	body, err := rec.Body()
	if err != nil {
		return result{err: err}
	}
	root, err := r.seg.Segment(body)
	if err != nil {
		return result{err: fmt.Errorf("segmenting: %w", err)}
	}
	return result{rec: record.Apply(rec, root), depth: root.TreeDepth()}
}

func classify(err error) Outcome {
	if err == nil {
		return OutcomeProcessed
	}
	var ie *fwdsplit.InputError
	if errors.As(err, &ie) {
		return OutcomeSkipped
	}
	return OutcomeFailed
}
