package main

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/zoobzio/probez"
	"github.com/zoobzio/probez/tracedb"
)

const demoTrigger = "demo"

type triggerOptions struct {
	mode    probez.TriggerMode
	after   time.Duration
	delay   time.Duration
	timeout time.Duration
	workers int
	out     string
	sqlite  string
}

func newTriggersCmd() *cobra.Command {
	var (
		opts triggerOptions
		mode string
	)
	cmd := &cobra.Command{
		Use:   "triggers",
		Short: "Run a session controlled by a trigger",
		Long: `triggers records the synthetic workload in a session armed with a
"demo" trigger and fires it after --after. In stop mode the session keeps
recording until the trigger plus its stop delay; in start mode nothing is
recorded before the trigger.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := opts.mode.UnmarshalText([]byte(mode)); err != nil {
				return err
			}
			if opts.mode == probez.TriggerNone {
				return errors.New("--mode must be start or stop")
			}
			return runTriggers(cmd, opts)
		},
	}
	cmd.Flags().StringVar(&mode, "mode", "stop", "trigger mode (start|stop)")
	cmd.Flags().DurationVar(&opts.after, "after", 200*time.Millisecond, "when to fire the trigger")
	cmd.Flags().DurationVar(&opts.delay, "delay", 50*time.Millisecond, "stop delay after the trigger")
	cmd.Flags().DurationVar(&opts.timeout, "timeout", 5*time.Second, "session trigger timeout")
	cmd.Flags().IntVarP(&opts.workers, "workers", "w", 2, "number of workload goroutines")
	cmd.Flags().StringVarP(&opts.out, "out", "o", "", "trace output file")
	cmd.Flags().StringVar(&opts.sqlite, "sqlite", "", "also export into this SQLite database")
	cmd.Flags().Lookup("sqlite").NoOptDefVal = generatedName
	return cmd
}

func runTriggers(cmd *cobra.Command, opts triggerOptions) error {
	p := probez.NewProducer(producerOptions(cmd)...)
	defer func() { _ = p.Close() }()
	w := newWorkload(p)
	defer w.close()

	cfg := defaultConfig()
	cfg.Triggers = probez.TriggerConfig{
		Mode:      opts.mode,
		TimeoutMs: uint32(opts.timeout.Milliseconds()), //nolint:gosec // flag sized
		Triggers:  []probez.Trigger{{Name: demoTrigger, StopDelayMs: uint32(opts.delay.Milliseconds())}}, //nolint:gosec // flag sized
	}
	s, err := p.StartSession(cfg)
	if s == nil {
		return fmt.Errorf("start session: %w", err)
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- w.run(ctx, opts.workers) }()

	fired := time.AfterFunc(opts.after, func() {
		p.ActivateTriggers([]string{demoTrigger}, time.Second)
	})
	defer fired.Stop()

	if opts.mode == probez.TriggerStopTracing {
		select {
		case <-s.Stopped():
		case <-time.After(opts.after + opts.delay + opts.timeout):
			cancel()
			<-done
			return errors.New("session did not stop after the trigger")
		}
	} else {
		// Record for as long as the trigger took to arrive.
		time.Sleep(2*opts.after + opts.delay)
		if err := s.StopBlocking(); err != nil {
			warn(cmd, "stop session: %v", err)
		}
	}
	cancel()
	if err := <-done; err != nil {
		return err
	}

	trace := s.ReadBlocking()
	if err := summarize(cmd, trace); err != nil {
		return err
	}
	if opts.out == "" && opts.sqlite == "" {
		return nil
	}
	return writeOutputs(cmd, s, trace, opts.out, opts.sqlite)
}

func summarize(cmd *cobra.Command, trace []byte) error {
	packets, _, err := tracedb.NewDecoder().Decode(trace)
	if err != nil {
		return err
	}
	kinds := map[string]int{}
	for _, pkt := range packets {
		kinds[pkt.Kind]++
		if pkt.Kind == tracedb.KindTrigger {
			fmt.Fprintln(cmd.OutOrStdout(), formatPacket(pkt))
		}
	}
	names := make([]string, 0, len(kinds))
	for k := range kinds {
		names = append(names, k)
	}
	sort.Strings(names)
	for _, k := range names {
		fmt.Fprintf(cmd.OutOrStdout(), "%-17s %d\n", k, kinds[k])
	}
	return nil
}
