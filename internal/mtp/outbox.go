package mtp

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/danmuck/uspctl/internal/script"
)

// State is where a message sits in the hub.
type State string

const (
	StateQueued State = "queued"
	StateSent   State = "sent"
	StateFailed State = "failed"
)

// PendingMessage tracks one enqueued message by msg_id.
type PendingMessage struct {
	MsgID         string
	MsgType       string
	Endpoint      string
	MTP           script.MTP
	State         State
	Attempts      int
	QueuedAt      time.Time
	LastAttemptAt time.Time
	LastError     string
}

// Outbox stores messages by msg_id from enqueue until they are sent. Failed
// messages stay visible so a run can report them.
type Outbox struct {
	mu    sync.RWMutex
	items map[string]PendingMessage
	idle  chan struct{}
}

func NewOutbox() *Outbox {
	idle := make(chan struct{})
	close(idle)
	return &Outbox{
		items: make(map[string]PendingMessage),
		idle:  idle,
	}
}

func (o *Outbox) Upsert(item PendingMessage) {
	key := strings.TrimSpace(item.MsgID)
	if key == "" {
		return
	}
	if item.State == "" {
		item.State = StateQueued
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	o.items[key] = item
	o.refreshIdleLocked()
}

// MarkAttempt records one send attempt. An empty lastErr marks the message
// sent, anything else marks it failed.
func (o *Outbox) MarkAttempt(msgID string, at time.Time, lastErr string) (PendingMessage, bool) {
	key := strings.TrimSpace(msgID)
	o.mu.Lock()
	defer o.mu.Unlock()
	item, ok := o.items[key]
	if !ok {
		return PendingMessage{}, false
	}
	item.Attempts++
	item.LastAttemptAt = at
	item.LastError = strings.TrimSpace(lastErr)
	if item.LastError == "" {
		item.State = StateSent
	} else {
		item.State = StateFailed
	}
	o.items[key] = item
	o.refreshIdleLocked()
	return item, true
}

func (o *Outbox) Remove(msgID string) {
	key := strings.TrimSpace(msgID)
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.items, key)
	o.refreshIdleLocked()
}

func (o *Outbox) Get(msgID string) (PendingMessage, bool) {
	key := strings.TrimSpace(msgID)
	o.mu.RLock()
	defer o.mu.RUnlock()
	item, ok := o.items[key]
	return item, ok
}

// List returns every tracked message in enqueue order.
func (o *Outbox) List() []PendingMessage {
	o.mu.RLock()
	defer o.mu.RUnlock()
	out := make([]PendingMessage, 0, len(o.items))
	for _, item := range o.items {
		out = append(out, item)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].QueuedAt.Equal(out[j].QueuedAt) {
			return out[i].QueuedAt.Before(out[j].QueuedAt)
		}
		return out[i].MsgID < out[j].MsgID
	})
	return out
}

// Queued counts messages not yet attempted.
func (o *Outbox) Queued() int {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.queuedLocked()
}

// Idle returns a channel closed once no message is queued. The channel is
// replaced whenever a new message is queued, so callers must fetch it again
// after each wake-up.
func (o *Outbox) Idle() <-chan struct{} {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.idle
}

func (o *Outbox) queuedLocked() int {
	n := 0
	for _, item := range o.items {
		if item.State == StateQueued {
			n++
		}
	}
	return n
}

func (o *Outbox) refreshIdleLocked() {
	busy := o.queuedLocked() > 0
	select {
	case <-o.idle:
		if busy {
			o.idle = make(chan struct{})
		}
	default:
		if !busy {
			close(o.idle)
		}
	}
}
