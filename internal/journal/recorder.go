package journal

import (
	"github.com/danmuck/uspctl/internal/script"
	"github.com/danmuck/uspctl/internal/usp"
	"github.com/rs/zerolog"
)

// Enqueuer matches the dispatch hand-off the recorder wraps.
type Enqueuer interface {
	Enqueue(endpoint string, msg *usp.Msg, t script.Transport) error
}

// Recorder journals every message before passing it on. A journal write
// failure is logged and never fails the enqueue.
type Recorder struct {
	next    Enqueuer
	journal *Journal
	logger  zerolog.Logger
}

func NewRecorder(next Enqueuer, j *Journal, logger zerolog.Logger) *Recorder {
	return &Recorder{next: next, journal: j, logger: logger}
}

func (r *Recorder) Enqueue(endpoint string, msg *usp.Msg, t script.Transport) error {
	// Encode before the hand-off: msg belongs to next once Enqueue returns.
	payload, encErr := usp.Marshal(msg)
	entry := Entry{
		Endpoint:    endpoint,
		MTP:         string(t.MTP),
		Destination: destination(t),
		Payload:     payload,
	}
	if msg != nil {
		entry.MsgID = msg.Header.MsgID
		entry.MsgType = msg.Header.MsgType.String()
	}

	err := r.next.Enqueue(endpoint, msg, t)
	if encErr != nil {
		// The hub rejects the same message; the error it returns is what
		// the caller sees.
		return err
	}
	if err != nil {
		entry.EnqueueErr = err.Error()
	}
	if _, jerr := r.journal.Append(entry); jerr != nil {
		r.logger.Warn().Err(jerr).Str("msg_id", entry.MsgID).Msg("journal append failed")
	}
	return err
}
