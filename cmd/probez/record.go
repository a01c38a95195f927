package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"time"

	"github.com/spf13/cobra"
	"github.com/tebeka/atexit"

	"github.com/zoobzio/probez"
	"github.com/zoobzio/probez/tracedb"
)

// generatedName selects a generated SQLite file name when --sqlite is given
// without a value.
const generatedName = "-"

type recordOptions struct {
	config   string
	out      string
	sqlite   string
	duration time.Duration
	workers  int
}

func newRecordCmd() *cobra.Command {
	var opts recordOptions
	cmd := &cobra.Command{
		Use:   "record",
		Short: "Trace a synthetic workload into a file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runRecord(cmd, opts)
		},
	}
	cmd.Flags().StringVar(&opts.config, "config", "", "TOML session config (default: all track events)")
	cmd.Flags().StringVarP(&opts.out, "out", "o", "trace.pb", "trace output file")
	cmd.Flags().StringVar(&opts.sqlite, "sqlite", "", "also export into this SQLite database")
	cmd.Flags().Lookup("sqlite").NoOptDefVal = generatedName
	cmd.Flags().DurationVarP(&opts.duration, "duration", "d", time.Second, "how long the workload runs")
	cmd.Flags().IntVarP(&opts.workers, "workers", "w", 4, "number of workload goroutines")
	return cmd
}

func runRecord(cmd *cobra.Command, opts recordOptions) error {
	cfg, err := loadConfig(opts.config)
	if err != nil {
		return err
	}

	p := probez.NewProducer(producerOptions(cmd)...)
	defer func() { _ = p.Close() }()
	w := newWorkload(p)
	defer w.close()

	s, err := p.StartSession(cfg)
	if s == nil {
		return fmt.Errorf("start session: %w", err)
	}
	if err != nil {
		warn(cmd, "some data sources failed to start: %v", err)
	}

	// The trace is saved even when the process is interrupted or exits
	// through atexit.Exit before the workload returns.
	var (
		once    sync.Once
		saveErr error
	)
	save := func() {
		once.Do(func() {
			if err := s.StopBlocking(); err != nil {
				warn(cmd, "stop session: %v", err)
			}
			saveErr = writeOutputs(cmd, s, s.ReadBlocking(), opts.out, opts.sqlite)
		})
	}
	atexit.Register(save)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, opts.duration)
	defer cancel()
	go func() {
		// A session with its own duration or trigger may stop first.
		select {
		case <-s.Stopped():
			cancel()
		case <-ctx.Done():
		}
	}()

	if err := w.run(ctx, opts.workers); err != nil {
		return err
	}
	save()
	return saveErr
}

// writeOutputs saves trace, read from s, into the trace file and, when
// sqlite is set, a SQLite database.
func writeOutputs(cmd *cobra.Command, s *probez.Session, trace []byte, out, sqlite string) error {
	if dropped := s.DroppedPackets(); dropped > 0 {
		warn(cmd, "%d packets dropped by a full buffer", dropped)
	}

	if out != "" {
		if err := os.WriteFile(out, trace, 0o600); err != nil {
			return fmt.Errorf("write trace: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "wrote %d bytes to %s\n", len(trace), out)
	}
	if sqlite == "" {
		return nil
	}
	if sqlite == generatedName {
		sqlite = ""
	}
	db, err := tracedb.Open(sqlite)
	if err != nil {
		return err
	}
	if err := db.Write(trace); err != nil {
		_ = db.Close()
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "exported to %s\n", db.Path())
	return db.Close()
}

func warn(cmd *cobra.Command, format string, args ...any) {
	fmt.Fprintf(cmd.ErrOrStderr(), warnColor.Sprint("warning: ")+format+"\n", args...)
}
