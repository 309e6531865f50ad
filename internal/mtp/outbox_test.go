package mtp

import (
	"context"
	"errors"
	"math/rand"
	"testing"
	"time"

	"github.com/danmuck/uspctl/internal/script"
	"github.com/danmuck/uspctl/internal/testutil/testlog"
)

func TestNextBackoffDelayDeterministicNoJitter(t *testing.T) {
	testlog.Start(t)
	cfg := BackoffConfig{
		InitialDelay: 250 * time.Millisecond,
		Multiplier:   2.0,
		MaxDelay:     5 * time.Second,
		Jitter:       false,
	}
	if got := NextBackoffDelay(cfg, 1, nil); got != 250*time.Millisecond {
		t.Fatalf("attempt1 got=%v", got)
	}
	if got := NextBackoffDelay(cfg, 2, nil); got != 500*time.Millisecond {
		t.Fatalf("attempt2 got=%v", got)
	}
	if got := NextBackoffDelay(cfg, 6, nil); got != 5*time.Second {
		t.Fatalf("attempt6 got=%v", got)
	}
}

func TestNextBackoffDelayJitterRange(t *testing.T) {
	testlog.Start(t)
	cfg := BackoffConfig{InitialDelay: 100 * time.Millisecond, Multiplier: 2.0, Jitter: true}
	rng := rand.New(rand.NewSource(7))
	got := NextBackoffDelay(cfg, 2, rng)
	if got < 100*time.Millisecond || got > 300*time.Millisecond {
		t.Fatalf("jitter out of range: %v", got)
	}
}

func TestDialWithBackoffRetriesUntilSuccess(t *testing.T) {
	testlog.Start(t)
	cfg := BackoffConfig{InitialDelay: time.Millisecond, Multiplier: 1.0}
	calls := 0
	got, err := dialWithBackoff(context.Background(), cfg, 3, nil, func(context.Context) (int, error) {
		calls++
		if calls < 3 {
			return 0, errors.New("refused")
		}
		return 42, nil
	})
	if err != nil || got != 42 {
		t.Fatalf("got=%d err=%v", got, err)
	}
	if calls != 3 {
		t.Fatalf("calls=%d", calls)
	}
}

func TestDialWithBackoffReturnsLastError(t *testing.T) {
	testlog.Start(t)
	cfg := BackoffConfig{InitialDelay: time.Millisecond}
	refused := errors.New("refused")
	calls := 0
	_, err := dialWithBackoff(context.Background(), cfg, 2, nil, func(context.Context) (string, error) {
		calls++
		return "", refused
	})
	if !errors.Is(err, refused) || calls != 2 {
		t.Fatalf("calls=%d err=%v", calls, err)
	}
}

func TestDialWithBackoffStopsOnCancel(t *testing.T) {
	testlog.Start(t)
	ctx, cancel := context.WithCancel(context.Background())
	cfg := BackoffConfig{InitialDelay: time.Hour}
	_, err := dialWithBackoff(ctx, cfg, 5, nil, func(context.Context) (int, error) {
		cancel()
		return 0, errors.New("refused")
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestOutboxLifecycle(t *testing.T) {
	testlog.Start(t)
	o := NewOutbox()
	now := time.Unix(1700000000, 0)

	select {
	case <-o.Idle():
	default:
		t.Fatalf("empty outbox should be idle")
	}

	o.Upsert(PendingMessage{MsgID: "2", MsgType: "GET", Endpoint: "agent", MTP: script.MTPStomp, QueuedAt: now.Add(time.Second)})
	o.Upsert(PendingMessage{MsgID: "1", MsgType: "SET", Endpoint: "agent", MTP: script.MTPStomp, QueuedAt: now})
	if o.Queued() != 2 {
		t.Fatalf("queued=%d", o.Queued())
	}
	idle := o.Idle()
	select {
	case <-idle:
		t.Fatalf("outbox with queued messages should not be idle")
	default:
	}

	item, ok := o.MarkAttempt("1", now.Add(2*time.Second), "")
	if !ok || item.State != StateSent || item.Attempts != 1 {
		t.Fatalf("unexpected item=%+v ok=%v", item, ok)
	}
	item, ok = o.MarkAttempt("2", now.Add(3*time.Second), " timeout ")
	if !ok || item.State != StateFailed || item.LastError != "timeout" {
		t.Fatalf("unexpected item=%+v ok=%v", item, ok)
	}
	select {
	case <-idle:
	default:
		t.Fatalf("outbox should be idle once every message was attempted")
	}

	list := o.List()
	if len(list) != 2 || list[0].MsgID != "1" || list[1].MsgID != "2" {
		t.Fatalf("unexpected order: %+v", list)
	}

	o.Remove("1")
	if _, ok := o.Get("1"); ok {
		t.Fatalf("message should be removed")
	}
	if _, ok := o.MarkAttempt("missing", now, ""); ok {
		t.Fatalf("unknown message should not be tracked")
	}
	o.Upsert(PendingMessage{MsgID: "  "})
	if len(o.List()) != 1 {
		t.Fatalf("blank msg_id should be ignored")
	}
}

func TestConfigWithDefaults(t *testing.T) {
	testlog.Start(t)
	cfg := Config{Stomp: []StompBroker{{Instance: 2, Addr: "127.0.0.1:61613"}}}.WithDefaults()
	def := DefaultConfig()
	if cfg.QueueSize != def.QueueSize || cfg.ControllerID != def.ControllerID || cfg.Backoff != def.Backoff {
		t.Fatalf("defaults not applied: %+v", cfg)
	}
	if _, ok := cfg.Broker(2); !ok {
		t.Fatalf("broker 2 missing")
	}
	if _, ok := cfg.Broker(1); ok {
		t.Fatalf("broker 1 should not exist")
	}
}
