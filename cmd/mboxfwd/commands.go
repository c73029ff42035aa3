package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"text/tabwriter"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/emurenMRz/mboxfwd/internal/batch"
	"github.com/emurenMRz/mboxfwd/internal/config"
	"github.com/emurenMRz/mboxfwd/internal/fwdsplit"
	"github.com/emurenMRz/mboxfwd/internal/ledger"
	"github.com/emurenMRz/mboxfwd/internal/record"
	"github.com/emurenMRz/mboxfwd/internal/server"
)

type app struct {
	cfg    *config.Config
	opts   options
	seg    *fwdsplit.Segmenter
	log    *logrus.Logger
	stdout io.Writer
}

func (a *app) source(dir string) record.Source {
	if a.cfg.Batch.Format == "mbox" {
		return record.MboxDir{Dir: dir}
	}
	return record.JSONDir{Dir: dir, Pattern: a.cfg.Batch.Pattern}
}

func (a *app) openLedger() (*ledger.Store, error) {
	if a.cfg.Ledger.Path == "" {
		return nil, nil
	}
	return ledger.Open(a.cfg.Ledger.Path)
}

// batch runs split and retry modes.
func (a *app) batch(ctx context.Context) error {
	store, err := a.openLedger()
	if err != nil {
		return err
	}
	if store != nil {
		defer store.Close()
	}

	in, out := a.opts.in, a.opts.out
	var parentID string
	var retryIDs []string
	if a.opts.mode == "retry" {
		if store == nil {
			return errors.New("retry mode needs a ledger (--ledger)")
		}
		if a.opts.runID == "" {
			return errors.New("retry mode needs --run")
		}
		parent, err := store.GetRun(ctx, a.opts.runID)
		if err != nil {
			return err
		}
		parentID = parent.ID
		if in == "" {
			in = parent.Input
		}
		if out == "" {
			out = parent.Output
		}
		retryIDs, err = store.RetryIDs(ctx, parent.ID, string(batch.OutcomeFailed), string(batch.OutcomeSkipped))
		if err != nil {
			return err
		}
	}
	if in == "" {
		return errors.New("--in is required")
	}
	if out == "" && !a.opts.dryRun {
		return errors.New("--out is required unless --dry-run is set")
	}

	items, err := a.source(in).Items(ctx)
	if err != nil {
		return err
	}
	if a.opts.mode == "retry" {
		items = record.Only(items, retryIDs)
	}

	log := a.log.WithFields(logrus.Fields{
		"mode":    a.opts.mode,
		"path":    in,
		"records": len(items),
	})

	opts := []batch.Option{batch.WithLogger(a.log)}
	runID := ""
	if store != nil {
		runID = ledger.NewRunID()
		err := store.BeginRun(ctx, ledger.Run{
			ID:       runID,
			ParentID: parentID,
			Mode:     a.opts.mode,
			Input:    in,
			Output:   out,
			MaxDepth: a.seg.Rules().MaxDepth(),
		})
		if err != nil {
			return err
		}
		opts = append(opts, batch.WithLedger(store, runID))
		log = log.WithField("run", runID)
	}
	var metrics *batch.Metrics
	if a.cfg.Metrics.File != "" {
		metrics = batch.NewMetrics()
		opts = append(opts, batch.WithMetrics(metrics))
	}

	log.Info("Starting batch")
	runner := batch.NewRunner(a.seg, batch.Config{
		Workers:       a.cfg.Batch.Workers,
		RecordTimeout: a.cfg.Batch.RecordTimeout,
		OutputDir:     out,
		DryRun:        a.opts.dryRun,
	}, opts...)
	stats, runErr := runner.Run(ctx, items)

	if store != nil {
		status := ledger.RunCompleted
		if runErr != nil {
			status = ledger.RunInterrupted
		}
		err := store.FinishRun(context.WithoutCancel(ctx), runID, status, stats.Processed, stats.Skipped, stats.Failed)
		if err != nil {
			log.WithError(err).Warn("Failed to finish run in ledger")
		}
	}
	if metrics != nil {
		if err := metrics.WriteTextfile(a.cfg.Metrics.File); err != nil {
			log.WithError(err).Warn("Failed to write metrics")
		}
	}

	log.WithFields(logrus.Fields{
		"processed": stats.Processed,
		"skipped":   stats.Skipped,
		"failed":    stats.Failed,
	}).Info("Batch finished")
	fmt.Fprintf(a.stdout, "%d records: %d processed, %d skipped, %d failed\n",
		stats.Total(), stats.Processed, stats.Skipped, stats.Failed)
	return runErr
}

// validate reports records that cannot be segmented or carry suspicious headers.
func (a *app) validate(ctx context.Context) error {
	if a.opts.in == "" {
		return errors.New("--in is required")
	}
	items, err := a.source(a.opts.in).Items(ctx)
	if err != nil {
		return err
	}

	var results []record.ValidationResult
	blocked := 0
	for _, it := range items {
		if err := ctx.Err(); err != nil {
			return err
		}
		rec, err := it.Load()
		if err != nil {
			results = append(results, record.ValidationResult{
				Record: it.ID,
				Status: record.StatusInvalid,
				Detail: err.Error(),
			})
			blocked++
			continue
		}
		found := record.Validate(it.ID, rec)
		if !record.Segmentable(found) {
			blocked++
		}
		results = append(results, found...)
	}
	outputText(a.stdout, results)
	if blocked > 0 {
		fmt.Fprintf(a.stdout, "%d of %d records cannot be segmented\n", blocked, len(items))
	}
	return nil
}

func outputText(w io.Writer, results []record.ValidationResult) {
	if len(results) == 0 {
		fmt.Fprintln(w, "No validation errors found.")
		return
	}

	for _, result := range results {
		switch {
		case result.Field == "":
			fmt.Fprintf(w, "Record %s: unreadable (%s)\n", result.Record, result.Detail)
		case result.Status == record.StatusMissing:
			fmt.Fprintf(w, "Record %s: %s is missing\n", result.Record, result.Field)
		case result.Status == record.StatusInvalid:
			fmt.Fprintf(w, "Record %s: %s is invalid (%s)\n", result.Record, result.Field, result.Detail)
		case result.Status == record.StatusDeleted:
			fmt.Fprintf(w, "Record %s: Status = D (marked deleted)\n", result.Record)
		}
	}
}

// show segments one record and prints its tree.
func (a *app) show() error {
	if a.opts.in == "" {
		return errors.New("--in is required")
	}

	var rec record.Record
	var err error
	if a.cfg.Batch.Format == "mbox" {
		var messages [][]byte
		messages, err = record.ReadMailbox(a.opts.in)
		if err != nil {
			return err
		}
		if a.opts.msg < 0 || a.opts.msg >= len(messages) {
			return fmt.Errorf("invalid message index %d, mailbox has %d messages", a.opts.msg, len(messages))
		}
		rec, err = record.ParseMessage(messages[a.opts.msg], filepath.Base(a.opts.in), a.opts.msg)
	} else {
		rec, err = record.ReadFile(a.opts.in)
	}
	if err != nil {
		return err
	}

	body, err := rec.Body()
	if err != nil {
		return err
	}
	root, err := a.seg.Segment(body)
	if err != nil {
		return err
	}

	var v any = root
	if a.opts.flat {
		var nodes []*fwdsplit.MessageNode
		for _, n := range root.Flatten() {
			nodes = append(nodes, n.Shallow())
		}
		v = nodes
	}

	switch a.opts.showFormat {
	case "yaml":
		enc := yaml.NewEncoder(a.stdout)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	case "json":
		enc := json.NewEncoder(a.stdout)
		enc.SetEscapeHTML(false)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	default:
		return fmt.Errorf("unknown show format %q, use yaml or json", a.opts.showFormat)
	}
}

// runs lists the most recent runs of the ledger, or the records of one run when --run
// is set.
func (a *app) runs(ctx context.Context) error {
	store, err := a.openLedger()
	if err != nil {
		return err
	}
	if store == nil {
		return errors.New("runs mode needs a ledger (--ledger)")
	}
	defer store.Close()

	if a.opts.runID != "" {
		return a.outcomes(ctx, store)
	}

	runs, err := store.ListRuns(ctx, a.opts.limit)
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(a.stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "RUN\tMODE\tSTATUS\tSTARTED\tPROCESSED\tSKIPPED\tFAILED")
	for _, r := range runs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%d\t%d\n",
			r.ID, r.Mode, r.Status, r.StartedAt.Local().Format(time.DateTime),
			r.Processed, r.Skipped, r.Failed)
	}
	return tw.Flush()
}

func (a *app) outcomes(ctx context.Context, store *ledger.Store) error {
	run, err := store.GetRun(ctx, a.opts.runID)
	if err != nil {
		return err
	}
	outcomes, err := store.Outcomes(ctx, run.ID)
	if err != nil {
		return err
	}

	fmt.Fprintf(a.stdout, "Run %s (%s, %s)\n", run.ID, run.Mode, run.Status)
	tw := tabwriter.NewWriter(a.stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "RECORD\tOUTCOME\tDEPTH\tDETAIL")
	for _, o := range outcomes {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\n", o.RecordID, o.Outcome, o.Depth, o.Detail)
	}
	return tw.Flush()
}

// serve exposes the segmenter and the mailboxes in --in over HTTP.
func (a *app) serve(ctx context.Context) error {
	dir := a.opts.in
	if dir == "" {
		dir = "."
	}
	return server.New(dir, a.seg, a.log).ListenAndServe(ctx, a.opts.addr)
}
