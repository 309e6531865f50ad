package driver

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/danmuck/uspctl/internal/observability"
	"github.com/danmuck/uspctl/internal/script"
	"github.com/danmuck/uspctl/internal/usp"
	"github.com/rs/zerolog"
)

// DefaultPacing is the wait before each script line. The drain before
// shutdown is twice this interval.
const DefaultPacing = 2 * time.Second

// Line outcomes reported to metrics and in Report.
const (
	OutcomeDispatched    = "dispatched"
	OutcomeSkipped       = "skipped"
	OutcomeRejected      = "rejected"
	OutcomeEnqueueFailed = "enqueue_failed"
)

// Enqueuer hands a built message to the transport layer. Ownership of msg
// passes to the callee. Implementations must not block on the network.
type Enqueuer interface {
	Enqueue(endpoint string, msg *usp.Msg, t script.Transport) error
}

// Shutdowner is told once that the script is finished.
type Shutdowner interface {
	NotifyShutdown()
}

// ShutdownFunc adapts a plain function to Shutdowner.
type ShutdownFunc func()

func (f ShutdownFunc) NotifyShutdown() { f() }

// Sleeper waits for d or until ctx ends.
type Sleeper interface {
	Sleep(ctx context.Context, d time.Duration) error
}

type timerSleeper struct{}

func (timerSleeper) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Config controls pacing and how strictly the session line is checked.
type Config struct {
	Pacing time.Duration
	// StrictSession makes a missing to_id or an unresolved transport stop
	// the run. When false the run continues and every enqueue fails at the
	// transport boundary.
	StrictSession bool
}

func DefaultConfig() Config {
	return Config{
		Pacing:        DefaultPacing,
		StrictSession: true,
	}
}

// Report summarizes one run.
type Report struct {
	Session    script.SessionConfig
	SessionErr error
	Dispatched int
	Skipped    int
	Rejected   int
	Failed     int
	// NextID is the id the next dispatched line would have used.
	NextID script.MessageID
}

// Sequencer walks a script line by line and dispatches one message per
// directive line.
type Sequencer struct {
	cfg      Config
	out      Enqueuer
	shutdown Shutdowner
	sleeper  Sleeper
	logger   zerolog.Logger
}

type Option func(*Sequencer)

func WithSleeper(s Sleeper) Option {
	return func(seq *Sequencer) {
		if s != nil {
			seq.sleeper = s
		}
	}
}

func WithLogger(logger zerolog.Logger) Option {
	return func(seq *Sequencer) {
		seq.logger = logger
	}
}

// Sequencer constructor using explicit config.
func New(cfg Config, out Enqueuer, shutdown Shutdowner, opts ...Option) *Sequencer {
	if cfg.Pacing < 0 {
		cfg.Pacing = 0
	}
	seq := &Sequencer{
		cfg:      cfg,
		out:      out,
		shutdown: shutdown,
		sleeper:  timerSleeper{},
		logger:   zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(seq)
	}
	return seq
}

// Run reads the session line, then paces through every directive line and
// finally drains and notifies shutdown. Shutdown is notified exactly once on
// every return path, including an empty or unreadable script.
func (s *Sequencer) Run(ctx context.Context, r io.Reader) (Report, error) {
	var report Report
	defer s.notifyShutdown()

	lines := &lineReader{r: bufio.NewReader(r)}
	sessionLine, ok := s.nextNonBlank(lines)
	if !ok {
		if err := lines.Err(); err != nil {
			return report, fmt.Errorf("driver: read script: %w", err)
		}
		return report, script.ErrEmptySession
	}
	lineNo := lines.n

	session, diags, err := script.ParseSession(sessionLine)
	s.logDiagnostics(lineNo, diags)
	report.Session = session
	report.SessionErr = err
	report.NextID = session.MessageID
	if err != nil {
		if s.cfg.StrictSession {
			s.logger.Error().Err(err).Int("line", lineNo).Msg("session line rejected")
			return report, err
		}
		s.logger.Warn().Err(err).Int("line", lineNo).Msg("session line incomplete, continuing without destination")
	}
	s.logger.Info().
		Str("msg_id", session.MessageID.String()).
		Str("endpoint", session.Endpoint).
		Str("mtp", string(session.Transport.MTP)).
		Msg("session configured")

	id := session.MessageID
	for lines.Next() {
		lineNo = lines.n
		line := lines.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}
		if err := s.sleeper.Sleep(ctx, s.cfg.Pacing); err != nil {
			report.NextID = id
			return report, err
		}

		outcome := s.dispatch(lineNo, line, session, id)
		observability.RecordLine(outcome)
		switch outcome {
		case OutcomeDispatched:
			report.Dispatched++
			id = id.Next()
		case OutcomeEnqueueFailed:
			report.Failed++
			id = id.Next()
		case OutcomeRejected:
			report.Rejected++
		default:
			report.Skipped++
		}
	}
	report.NextID = id
	if err := lines.Err(); err != nil {
		return report, fmt.Errorf("driver: read script: %w", err)
	}

	s.logger.Info().
		Int("dispatched", report.Dispatched).
		Int("skipped", report.Skipped).
		Int("rejected", report.Rejected).
		Int("failed", report.Failed).
		Msg("script finished, draining")
	if err := s.sleeper.Sleep(ctx, 2*s.cfg.Pacing); err != nil {
		return report, err
	}
	return report, nil
}

// dispatch handles one non-blank directive line stamped with id.
func (s *Sequencer) dispatch(lineNo int, line string, session script.SessionConfig, id script.MessageID) string {
	d, diags, err := script.ParseLine(line)
	s.logDiagnostics(lineNo, diags)

	var (
		unknown *script.UnknownDirectiveError
		capErr  *script.CapacityError
	)
	switch {
	case errors.As(err, &unknown):
		s.logger.Warn().Int("line", lineNo).Err(err).Msg("unknown directive skipped")
		return OutcomeSkipped
	case errors.As(err, &capErr):
		s.logger.Error().
			Int("line", lineNo).
			Str("msg_type", string(capErr.Kind)).
			Str("field", capErr.Field).
			Int("bound", capErr.Bound).
			Msg("directive rejected")
		return OutcomeRejected
	case err != nil:
		s.logger.Warn().Int("line", lineNo).Err(err).Msg("line skipped")
		return OutcomeSkipped
	}

	msg, err := usp.Build(d, id)
	if err != nil {
		s.logger.Error().Int("line", lineNo).Err(err).Msg("build failed")
		return OutcomeRejected
	}

	msgType := msg.Header.MsgType.String()
	if err := s.out.Enqueue(session.Endpoint, msg, session.Transport); err != nil {
		s.logger.Error().
			Int("line", lineNo).
			Str("msg_id", id.String()).
			Str("msg_type", msgType).
			Err(err).
			Msg("enqueue failed")
		return OutcomeEnqueueFailed
	}
	observability.RecordEnqueue(msgType, string(session.Transport.MTP))
	s.logger.Info().
		Int("line", lineNo).
		Str("msg_id", id.String()).
		Str("msg_type", msgType).
		Str("endpoint", session.Endpoint).
		Msg("message enqueued")
	return OutcomeDispatched
}

func (s *Sequencer) nextNonBlank(lines *lineReader) (string, bool) {
	for lines.Next() {
		if line := lines.Text(); strings.TrimSpace(line) != "" {
			return line, true
		}
	}
	return "", false
}

// lineReader yields newline-terminated lines of any length. A trailing "\r"
// is dropped, and a final line without a newline still counts.
type lineReader struct {
	r    *bufio.Reader
	line string
	n    int
	err  error
	done bool
}

func (l *lineReader) Next() bool {
	if l.done {
		return false
	}
	line, err := l.r.ReadString('\n')
	if err != nil {
		l.done = true
		if !errors.Is(err, io.EOF) {
			l.err = err
			return false
		}
		if line == "" {
			return false
		}
	}
	line = strings.TrimSuffix(line, "\n")
	l.line = strings.TrimSuffix(line, "\r")
	l.n++
	return true
}

func (l *lineReader) Text() string { return l.line }

func (l *lineReader) Err() error { return l.err }

func (s *Sequencer) logDiagnostics(lineNo int, diags []script.Diagnostic) {
	for _, d := range diags {
		s.logger.Warn().
			Int("line", lineNo).
			Int("pos", d.Pos).
			Str("key", d.Key).
			Msg(d.Reason)
	}
}

func (s *Sequencer) notifyShutdown() {
	if s.shutdown != nil {
		s.shutdown.NotifyShutdown()
	}
}
