package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"

	"github.com/emurenMRz/mboxfwd/internal/config"
	"github.com/emurenMRz/mboxfwd/internal/fwdsplit"
)

type options struct {
	mode       string
	configPath string
	in         string
	out        string
	dryRun     bool
	runID      string
	showFormat string
	flat       bool
	msg        int
	limit      int
	addr       string
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	fs := pflag.NewFlagSet("mboxfwd", pflag.ContinueOnError)
	fs.SetOutput(stderr)

	var o options
	fs.StringVar(&o.mode, "mode", "split", "Operation mode: split, validate, show, retry, runs, serve")
	fs.StringVarP(&o.configPath, "config", "c", "", "Config file (default ./mboxfwd.yaml, then /etc/mboxfwd/mboxfwd.yaml)")
	fs.StringVar(&o.in, "in", "", "Input directory, or a single record or mailbox file for show mode; mailbox directory for serve mode")
	fs.StringVar(&o.out, "out", "", "Output directory (for split and retry modes)")
	fs.BoolVar(&o.dryRun, "dry-run", false, "Segment without writing output")
	fs.StringVar(&o.runID, "run", "", "Run whose failed and skipped records are retried (for retry mode), or whose records are listed (for runs mode)")
	fs.StringVar(&o.showFormat, "show-format", "yaml", "Output format for show mode: yaml or json")
	fs.BoolVar(&o.flat, "flat", false, "Print the flattened message list (for show mode)")
	fs.IntVar(&o.msg, "msg", 0, "Message index when showing a mailbox file")
	fs.IntVar(&o.limit, "limit", 20, "Number of runs listed (for runs mode)")
	fs.StringVar(&o.addr, "addr", ":8080", "Listen address (for serve mode)")

	// Overrides of configuration values, bound in config.Load.
	fs.Int("max-depth", fwdsplit.DefaultMaxDepth, "Deepest forward level segmented; deeper text is kept verbatim")
	fs.Int("workers", 4, "Records segmented concurrently")
	fs.Duration("record-timeout", 30*time.Second, "Time limit per record, 0 disables")
	fs.String("pattern", "*.json", "File name pattern of json input")
	fs.String("format", "json", "Input format: json or mbox")
	fs.String("log-level", "info", "Log level")
	fs.String("log-format", "text", "Log format: text or json")
	fs.String("ledger", "", "SQLite run ledger, empty disables")
	fs.String("metrics-file", "", "Write metrics to this textfile after a batch")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return 0
		}
		return 1
	}

	cfg, err := config.Load(o.configPath, fs)
	if err != nil {
		fmt.Fprintln(stderr, "Error:", err)
		return 1
	}
	logger := setupLogging(cfg, stderr)

	rules, err := cfg.Segmenter.Rules()
	if err != nil {
		logger.WithError(err).Error("Invalid segmenter configuration")
		return 1
	}
	seg := fwdsplit.NewSegmenter(rules, fwdsplit.WithLogger(logger))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a := &app{cfg: cfg, opts: o, seg: seg, log: logger, stdout: stdout}
	switch o.mode {
	case "split", "retry":
		err = a.batch(ctx)
	case "validate":
		err = a.validate(ctx)
	case "show":
		err = a.show()
	case "runs":
		err = a.runs(ctx)
	case "serve":
		err = a.serve(ctx)
	default:
		err = fmt.Errorf("unknown mode %q, use split, validate, show, retry, runs or serve", o.mode)
	}
	if err != nil {
		logger.WithError(err).Error("mboxfwd failed")
		return 1
	}
	return 0
}

// setupLogging builds the logger from the logging configuration.
func setupLogging(cfg *config.Config, out io.Writer) *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(out)

	level, err := logrus.ParseLevel(cfg.Logging.Level)
	if err != nil {
		level = logrus.InfoLevel
		logger.WithError(err).Warn("Invalid log level, using info")
	}
	logger.SetLevel(level)

	if cfg.Logging.Format == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: time.RFC3339,
		})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: time.RFC3339,
		})
	}
	return logger
}
