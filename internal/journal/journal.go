package journal

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/danmuck/uspctl/internal/script"
	"github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"
	"github.com/google/uuid"
	"github.com/mtraver/base91"
	"github.com/vmihailenco/msgpack/v5"
)

var (
	ErrClosed     = errors.New("journal: closed")
	ErrEmptyRunID = errors.New("journal: empty run id")
)

const (
	runPrefix = "run/"
	seqWidth  = 12
)

// Entry is one journaled message. Digest is the base91 SHA-256 of the
// uncompressed payload.
type Entry struct {
	RunID       string    `msgpack:"run_id"`
	Seq         uint64    `msgpack:"seq"`
	MsgID       string    `msgpack:"msg_id"`
	MsgType     string    `msgpack:"msg_type"`
	Endpoint    string    `msgpack:"endpoint"`
	MTP         string    `msgpack:"mtp"`
	Destination string    `msgpack:"destination"`
	At          time.Time `msgpack:"at"`
	Digest      string    `msgpack:"digest"`
	Payload     []byte    `msgpack:"payload"`
	EnqueueErr  string    `msgpack:"enqueue_err,omitempty"`
}

// Journal appends the messages of one run to a badger store. Payloads are
// stored zstd-compressed and returned decompressed by List.
type Journal struct {
	db    *badger.DB
	runID string

	mu     sync.Mutex
	seq    uint64
	closed bool
}

// Open opens (or creates) the store at dir and starts a new run.
func Open(dir string) (*Journal, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("journal: create dir: %w", err)
	}
	opts := badger.DefaultOptions(dir).
		WithCompression(options.None).
		WithLoggingLevel(badger.ERROR).
		WithMetricsEnabled(false)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("journal: open: %w", err)
	}
	return &Journal{db: db, runID: uuid.NewString()}, nil
}

// OpenInMemory is Open without a directory, for tests and dry runs.
func OpenInMemory() (*Journal, error) {
	opts := badger.DefaultOptions("").
		WithInMemory(true).
		WithLoggingLevel(badger.ERROR).
		WithMetricsEnabled(false)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("journal: open: %w", err)
	}
	return &Journal{db: db, runID: uuid.NewString()}, nil
}

func (j *Journal) RunID() string {
	return j.runID
}

// Append stores e under the current run with the next sequence number. The
// run id, sequence, and digest fields of e are overwritten.
func (j *Journal) Append(e Entry) (Entry, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.closed {
		return Entry{}, ErrClosed
	}
	j.seq++
	e.RunID = j.runID
	e.Seq = j.seq
	if e.At.IsZero() {
		e.At = time.Now().UTC()
	}
	e.Digest = digest(e.Payload)

	stored := e
	stored.Payload = zstdCompress(nil, e.Payload)
	blob, err := msgpack.Marshal(&stored)
	if err != nil {
		return Entry{}, fmt.Errorf("journal: encode entry: %w", err)
	}
	key := entryKey(j.runID, e.Seq)
	if err := j.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key, blob)
	}); err != nil {
		return Entry{}, fmt.Errorf("journal: write %s: %w", key, err)
	}
	return e, nil
}

// List returns every entry of runID in dispatch order.
func (j *Journal) List(runID string) ([]Entry, error) {
	if strings.TrimSpace(runID) == "" {
		return nil, ErrEmptyRunID
	}
	prefix := []byte(runPrefix + runID + "/")
	var out []Entry
	err := j.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var e Entry
			if err := it.Item().Value(func(v []byte) error {
				return msgpack.Unmarshal(v, &e)
			}); err != nil {
				return fmt.Errorf("journal: decode %s: %w", it.Item().Key(), err)
			}
			payload, err := zstdDecompress(nil, e.Payload)
			if err != nil {
				return fmt.Errorf("journal: decompress %s: %w", it.Item().Key(), err)
			}
			e.Payload = payload
			out = append(out, e)
		}
		return nil
	})
	return out, err
}

// Runs returns the distinct run ids in the store in key order.
func (j *Journal) Runs() ([]string, error) {
	var runs []string
	err := j.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()
		prefix := []byte(runPrefix)
		last := ""
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			rest := strings.TrimPrefix(string(it.Item().Key()), runPrefix)
			run, _, ok := strings.Cut(rest, "/")
			if !ok || run == last {
				continue
			}
			runs = append(runs, run)
			last = run
		}
		return nil
	})
	return runs, err
}

func (j *Journal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.closed {
		return nil
	}
	j.closed = true
	return j.db.Close()
}

// entryKey zero-pads the sequence so keys sort in dispatch order.
func entryKey(runID string, seq uint64) []byte {
	s := strconv.FormatUint(seq, 10)
	if len(s) < seqWidth {
		s = strings.Repeat("0", seqWidth-len(s)) + s
	}
	return []byte(runPrefix + runID + "/" + s)
}

func digest(payload []byte) string {
	sum := sha256.Sum256(payload)
	return base91.StdEncoding.EncodeToString(sum[:])
}

// destination renders where t delivers, for display.
func destination(t script.Transport) string {
	switch t.MTP {
	case script.MTPStomp:
		return fmt.Sprintf("stomp:%d:%s", t.StompInstance, t.StompDest)
	case script.MTPCoAP:
		return "coap://" + net.JoinHostPort(t.CoAPHost, strconv.Itoa(t.CoAPPort)) + t.CoAPResource
	default:
		return ""
	}
}
