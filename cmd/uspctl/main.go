package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/danmuck/uspctl/internal/driver"
	"github.com/danmuck/uspctl/internal/journal"
	"github.com/danmuck/uspctl/internal/mtp"
	"github.com/danmuck/uspctl/internal/observability"
	"github.com/rs/zerolog"
)

const usage = "usage: uspctl [-config file.toml] <script>\n" +
	"       uspctl [-config file.toml] -journal-runs\n" +
	"       uspctl [-config file.toml] -journal-dump <run-id>\n"

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "uspctl: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("uspctl", flag.ContinueOnError)
	fs.Usage = func() { fmt.Fprint(fs.Output(), usage) }
	configPath := fs.String("config", "", "path to a TOML config file")
	listRuns := fs.Bool("journal-runs", false, "list journaled run ids and exit")
	dumpRun := fs.String("journal-dump", "", "print the journal entries of one run and exit")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := loadAppConfig(*configPath)
	if err != nil {
		return err
	}

	if *listRuns || *dumpRun != "" {
		return inspectJournal(cfg.JournalDir, *listRuns, *dumpRun, stdout)
	}

	if fs.NArg() != 1 {
		fs.Usage()
		return errors.New("exactly one script path is required")
	}
	// The script is opened before any transport or listener is started.
	scriptFile, err := os.Open(fs.Arg(0))
	if err != nil {
		return fmt.Errorf("open script: %w", err)
	}
	defer scriptFile.Close()

	logger := observability.InitLogger("uspctl")
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return execute(ctx, cfg, scriptFile, logger)
}

func execute(ctx context.Context, cfg appConfig, script io.Reader, logger zerolog.Logger) error {
	hubCtx, cancelHub := context.WithCancel(ctx)
	defer cancelHub()
	hub := mtp.NewHub(cfg.MTP, mtp.WithLogger(logger))
	hub.Start(hubCtx)

	var out driver.Enqueuer = hub
	if cfg.JournalDir != "" {
		j, err := journal.Open(cfg.JournalDir)
		if err != nil {
			hub.NotifyShutdown()
			_ = hub.Wait()
			return fmt.Errorf("open journal: %w", err)
		}
		defer j.Close()
		logger.Info().Str("run_id", j.RunID()).Str("dir", cfg.JournalDir).Msg("journal enabled")
		out = journal.NewRecorder(hub, j, logger)
	}

	if cfg.MetricsAddr != "" {
		srv := observability.NewServer(cfg.MetricsAddr, cfg.MetricsCORSOrigins, hubHealth(hub), logger)
		serveCtx, cancelServe := context.WithCancel(ctx)
		defer cancelServe()
		go func() {
			if err := srv.Serve(serveCtx); err != nil {
				logger.Error().Err(err).Str("addr", cfg.MetricsAddr).Msg("metrics server stopped")
			}
		}()
	}

	seq := driver.New(cfg.Driver, out, hub, driver.WithLogger(logger))
	report, runErr := seq.Run(ctx, script)

	// Run notifies the hub on every path; repeating it is a no-op.
	hub.NotifyShutdown()
	flushHub(ctx, hub, cfg.MTP.DrainTimeout, cancelHub, logger)
	if err := hub.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Warn().Err(err).Msg("mtp hub exited with error")
	}

	logger.Info().
		Int("dispatched", report.Dispatched).
		Int("skipped", report.Skipped).
		Int("rejected", report.Rejected).
		Int("failed", report.Failed).
		Str("next_msg_id", report.NextID.String()).
		Msg("script finished")
	for _, pending := range hub.Outbox().List() {
		if pending.State == mtp.StateFailed {
			logger.Warn().
				Str("msg_id", pending.MsgID).
				Str("endpoint", pending.Endpoint).
				Str("error", pending.LastError).
				Msg("message not delivered")
		}
	}
	return runErr
}

// flushHub waits up to timeout for queued messages, then stops the workers
// so Wait cannot block on an unreachable broker or agent.
func flushHub(ctx context.Context, hub *mtp.Hub, timeout time.Duration, stop context.CancelFunc, logger zerolog.Logger) {
	if timeout <= 0 {
		timeout = mtp.DefaultConfig().DrainTimeout
	}
	drainCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := hub.Drain(drainCtx); err != nil {
		logger.Warn().
			Err(err).
			Int("queued", hub.Outbox().Queued()).
			Dur("timeout", timeout).
			Msg("abandoning undelivered messages")
		stop()
	}
}

func hubHealth(hub *mtp.Hub) observability.HealthFunc {
	return func() map[string]any {
		counts := map[string]int{}
		for _, pending := range hub.Outbox().List() {
			counts[string(pending.State)]++
		}
		return map[string]any{
			"queued":   hub.Outbox().Queued(),
			"messages": counts,
		}
	}
}

func inspectJournal(dir string, listRuns bool, runID string, stdout io.Writer) error {
	if dir == "" {
		return errors.New("journal_dir is not configured")
	}
	j, err := journal.Open(dir)
	if err != nil {
		return fmt.Errorf("open journal: %w", err)
	}
	defer j.Close()

	if listRuns {
		runs, err := j.Runs()
		if err != nil {
			return err
		}
		for _, id := range runs {
			fmt.Fprintln(stdout, id)
		}
		return nil
	}

	entries, err := j.List(runID)
	if err != nil {
		return err
	}
	for _, e := range entries {
		status := "ok"
		if e.EnqueueErr != "" {
			status = e.EnqueueErr
		}
		fmt.Fprintf(stdout, "%06d %s msg_id=%s type=%s to=%s via=%s bytes=%d digest=%s %s\n",
			e.Seq, e.At.Format(time.RFC3339Nano), e.MsgID, e.MsgType, e.Endpoint,
			e.Destination, len(e.Payload), e.Digest, status)
	}
	return nil
}
