package mtp

import (
	"context"
	"fmt"
	"math/rand"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/danmuck/uspctl/internal/observability"
	"github.com/danmuck/uspctl/internal/script"
	"github.com/danmuck/uspctl/internal/usp"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// Envelope is one encoded USP Record on its way to an agent.
type Envelope struct {
	MsgID     string
	MsgType   string
	Endpoint  string
	Transport script.Transport
	Record    []byte
}

// Sender delivers envelopes over one established connection.
type Sender interface {
	Send(ctx context.Context, env Envelope) error
	Close() error
}

// Dialer opens a Sender for the destination described by t.
type Dialer interface {
	Dial(ctx context.Context, t script.Transport) (Sender, error)
}

type DialerFunc func(ctx context.Context, t script.Transport) (Sender, error)

func (f DialerFunc) Dial(ctx context.Context, t script.Transport) (Sender, error) { return f(ctx, t) }

type HubOption func(*Hub)

// WithDialer replaces the dialer used for one MTP.
func WithDialer(mtp script.MTP, d Dialer) HubOption {
	return func(h *Hub) {
		if d != nil {
			h.dialers[mtp] = d
		}
	}
}

func WithLogger(logger zerolog.Logger) HubOption {
	return func(h *Hub) {
		h.logger = logger
	}
}

// Hub routes messages to one worker per MTP. Enqueue never blocks: a full
// queue is reported to the caller.
type Hub struct {
	cfg     Config
	logger  zerolog.Logger
	dialers map[script.MTP]Dialer
	outbox  *Outbox

	mu      sync.RWMutex
	queues  map[script.MTP]chan Envelope
	started bool
	closed  bool
	group   *errgroup.Group

	closeOnce sync.Once
}

func NewHub(cfg Config, opts ...HubOption) *Hub {
	cfg = cfg.WithDefaults()
	h := &Hub{
		cfg:    cfg,
		logger: zerolog.Nop(),
		dialers: map[script.MTP]Dialer{
			script.MTPStomp: stompDialer{cfg: cfg},
			script.MTPCoAP:  coapDialer{cfg: cfg},
		},
		outbox: NewOutbox(),
		queues: make(map[script.MTP]chan Envelope),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Start launches the workers. They stop when ctx ends or after
// NotifyShutdown once their queue is empty.
func (h *Hub) Start(ctx context.Context) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.started || h.closed {
		return
	}
	h.started = true

	group, gctx := errgroup.WithContext(ctx)
	h.group = group
	for mtp, dialer := range h.dialers {
		q := make(chan Envelope, h.cfg.QueueSize)
		h.queues[mtp] = q
		w := &worker{
			hub:     h,
			mtp:     mtp,
			dialer:  dialer,
			queue:   q,
			senders: make(map[string]Sender),
			rng:     rand.New(rand.NewSource(time.Now().UnixNano())),
		}
		group.Go(func() error {
			return w.run(gctx)
		})
	}
	h.logger.Info().Int("queue_size", h.cfg.QueueSize).Int("workers", len(h.dialers)).Msg("mtp hub started")
}

// Enqueue wraps msg in a Record addressed to endpoint and queues it on the
// worker for t.MTP. Ownership of msg passes to the hub.
func (h *Hub) Enqueue(endpoint string, msg *usp.Msg, t script.Transport) error {
	if msg == nil {
		return ErrNilMessage
	}
	if !t.Resolved() {
		return ErrNoTransport
	}
	record, err := usp.Wrap(msg, endpoint, h.cfg.ControllerID)
	if err != nil {
		return err
	}
	env := Envelope{
		MsgID:     msg.Header.MsgID,
		MsgType:   msg.Header.MsgType.String(),
		Endpoint:  endpoint,
		Transport: t,
		Record:    record,
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.closed {
		return ErrClosed
	}
	if !h.started {
		return ErrNotStarted
	}
	q, ok := h.queues[t.MTP]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNoTransport, t.MTP)
	}

	h.outbox.Upsert(PendingMessage{
		MsgID:    env.MsgID,
		MsgType:  env.MsgType,
		Endpoint: endpoint,
		MTP:      t.MTP,
		QueuedAt: time.Now(),
	})
	select {
	case q <- env:
		return nil
	default:
		h.outbox.Remove(env.MsgID)
		return ErrQueueFull
	}
}

// NotifyShutdown stops accepting messages. Workers finish what is already
// queued and exit.
func (h *Hub) NotifyShutdown() {
	h.closeOnce.Do(func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		h.closed = true
		for _, q := range h.queues {
			close(q)
		}
		h.logger.Info().Msg("mtp hub shutting down")
	})
}

// Drain waits until every queued message was attempted or ctx ends.
func (h *Hub) Drain(ctx context.Context) error {
	select {
	case <-h.outbox.Idle():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Wait blocks until all workers have exited.
func (h *Hub) Wait() error {
	h.mu.RLock()
	group := h.group
	h.mu.RUnlock()
	if group == nil {
		return ErrNotStarted
	}
	return group.Wait()
}

func (h *Hub) Outbox() *Outbox {
	return h.outbox
}

type worker struct {
	hub     *Hub
	mtp     script.MTP
	dialer  Dialer
	queue   <-chan Envelope
	senders map[string]Sender
	rng     *rand.Rand
}

func (w *worker) run(ctx context.Context) error {
	defer w.closeAll()
	for {
		select {
		case <-ctx.Done():
			return nil
		case env, ok := <-w.queue:
			if !ok {
				return nil
			}
			w.deliver(ctx, env)
		}
	}
}

func (w *worker) deliver(ctx context.Context, env Envelope) {
	h := w.hub
	start := time.Now()
	err := w.send(ctx, env)
	observability.RecordSend(string(w.mtp), time.Since(start), err == nil)

	lastErr := ""
	if err != nil {
		lastErr = err.Error()
	}
	h.outbox.MarkAttempt(env.MsgID, time.Now(), lastErr)

	event := h.logger.Debug()
	if err != nil {
		event = h.logger.Error().Err(err)
	}
	event.
		Str("mtp", string(w.mtp)).
		Str("msg_id", env.MsgID).
		Str("msg_type", env.MsgType).
		Str("endpoint", env.Endpoint).
		Dur("duration", time.Since(start)).
		Msg("send")
}

func (w *worker) send(ctx context.Context, env Envelope) error {
	h := w.hub
	key := connKey(env.Transport)
	sender, ok := w.senders[key]
	if !ok {
		var err error
		sender, err = dialWithBackoff(ctx, h.cfg.Backoff, h.cfg.MaxDialAttempts, w.rng, func(ctx context.Context) (Sender, error) {
			dctx, cancel := context.WithTimeout(ctx, h.cfg.ConnectTimeout)
			defer cancel()
			return w.dialer.Dial(dctx, env.Transport)
		})
		if err != nil {
			return fmt.Errorf("mtp: dial %s %s: %w", w.mtp, key, err)
		}
		w.senders[key] = sender
	}

	sctx, cancel := context.WithTimeout(ctx, h.cfg.SendTimeout)
	defer cancel()
	if err := sender.Send(sctx, env); err != nil {
		// The connection is suspect after a failed send; the next message
		// dials again.
		_ = sender.Close()
		delete(w.senders, key)
		return err
	}
	return nil
}

func (w *worker) closeAll() {
	for key, sender := range w.senders {
		if err := sender.Close(); err != nil {
			w.hub.logger.Warn().Err(err).Str("mtp", string(w.mtp)).Str("conn", key).Msg("close failed")
		}
		delete(w.senders, key)
	}
}

// connKey identifies the connection a transport needs.
func connKey(t script.Transport) string {
	switch t.MTP {
	case script.MTPStomp:
		return "stomp/" + strconv.Itoa(t.StompInstance)
	case script.MTPCoAP:
		return "coap/" + net.JoinHostPort(t.CoAPHost, strconv.Itoa(t.CoAPPort))
	default:
		return string(t.MTP)
	}
}
