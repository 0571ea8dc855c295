package store

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/zhangyunhao116/skipmap"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	kvErr "github.com/sajjad-MoBe/walstore/internal/errors"
	"github.com/sajjad-MoBe/walstore/internal/shared"
	"github.com/sajjad-MoBe/walstore/internal/tracing"
	"github.com/sajjad-MoBe/walstore/internal/wal"
)

// Journal is the durable log a Store writes ahead to.
type Journal interface {
	Append(txnID string, op wal.OperationType, key string, oldValue, newValue json.RawMessage) (uint64, error)
	Replay() (*wal.ReplayResult, error)
}

type index = skipmap.FuncMap[string, json.RawMessage]

func newIndex() *index {
	return skipmap.NewFunc[string, json.RawMessage](func(a, b string) bool {
		return a < b
	})
}

// RecoveryStats summarizes a Recover run.
type RecoveryStats struct {
	TotalEntries int `json:"total_entries"`
	Applied      int `json:"operations_applied"`
	Corrupted    int `json:"corrupted"`
	Errors       int `json:"errors"`
}

// Option configures a Store.
type Option func(*Store)

func WithLogger(l *shared.Logger) Option {
	return func(s *Store) { s.logger = l }
}

func WithTracer(t trace.Tracer) Option {
	return func(s *Store) { s.tracer = t }
}

// Store is an in-memory key-value map whose every mutation is logged to a
// Journal before it is applied.
type Store struct {
	mu      sync.Mutex // serializes log-then-apply
	data    atomic.Pointer[index]
	journal Journal
	txnSeq  atomic.Uint64
	logger  *shared.Logger
	tracer  trace.Tracer
}

// New creates an empty store. Call Recover to load the journal's contents.
func New(journal Journal, opts ...Option) *Store {
	s := &Store{
		journal: journal,
		logger:  shared.DefaultLogger,
		tracer:  otel.Tracer("github.com/sajjad-MoBe/walstore/internal/store"),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.WithFields(map[string]interface{}{"component": "store"})
	s.data.Store(newIndex())
	return s
}

// NewTransactionID returns an id of the form txn_<n>_<unix seconds>.
func (s *Store) NewTransactionID() string {
	return fmt.Sprintf("txn_%d_%d", s.txnSeq.Add(1), time.Now().Unix())
}

// Put logs an INSERT or UPDATE for key and then stores value. An empty
// txnID is replaced by a generated one.
func (s *Store) Put(ctx context.Context, txnID, key string, value json.RawMessage) (uint64, error) {
	if key == "" {
		return 0, kvErr.New(kvErr.ErrorTypeInvalidInput, "key is required", nil)
	}
	if isAbsent(value) {
		return 0, kvErr.New(kvErr.ErrorTypeInvalidInput, "value is required", nil)
	}
	if txnID == "" {
		txnID = s.NewTransactionID()
	}

	var seq uint64
	err := tracing.TraceOperation(ctx, s.tracer, "store.put", func(ctx context.Context) error {
		trace.SpanFromContext(ctx).SetAttributes(
			attribute.String("kv.key", key),
			attribute.String("kv.transaction_id", txnID),
		)

		s.mu.Lock()
		defer s.mu.Unlock()

		if err := contextError(ctx, "put"); err != nil {
			return err
		}

		data := s.data.Load()
		op := wal.Insert
		old, exists := data.Load(key)
		if exists {
			op = wal.Update
		}

		var err error
		seq, err = s.journal.Append(txnID, op, key, old, value)
		if err != nil {
			return err
		}
		data.Store(key, cloneValue(value))
		trace.SpanFromContext(ctx).SetAttributes(
			attribute.String("kv.operation", string(op)),
			attribute.Int64("wal.sequence", int64(seq)),
		)
		return nil
	})
	if err != nil {
		s.logger.Error("put %q failed: %v", key, err)
		return 0, err
	}
	return seq, nil
}

// Delete logs a DELETE for key and removes it. A missing key writes
// nothing and reports deleted=false.
func (s *Store) Delete(ctx context.Context, txnID, key string) (uint64, bool, error) {
	if key == "" {
		return 0, false, kvErr.New(kvErr.ErrorTypeInvalidInput, "key is required", nil)
	}
	if txnID == "" {
		txnID = s.NewTransactionID()
	}

	var (
		seq     uint64
		deleted bool
	)
	err := tracing.TraceOperation(ctx, s.tracer, "store.delete", func(ctx context.Context) error {
		trace.SpanFromContext(ctx).SetAttributes(
			attribute.String("kv.key", key),
			attribute.String("kv.transaction_id", txnID),
		)

		s.mu.Lock()
		defer s.mu.Unlock()

		if err := contextError(ctx, "delete"); err != nil {
			return err
		}

		data := s.data.Load()
		old, exists := data.Load(key)
		if !exists {
			return nil
		}

		var err error
		seq, err = s.journal.Append(txnID, wal.Delete, key, old, nil)
		if err != nil {
			return err
		}
		data.Delete(key)
		deleted = true
		return nil
	})
	if err != nil {
		s.logger.Error("delete %q failed: %v", key, err)
		return 0, false, err
	}
	return seq, deleted, nil
}

// Get returns a copy of the value stored under key.
func (s *Store) Get(key string) (json.RawMessage, bool) {
	v, ok := s.data.Load().Load(key)
	if !ok {
		return nil, false
	}
	return cloneValue(v), true
}

func (s *Store) Len() int {
	return s.data.Load().Len()
}

// Keys returns the stored keys in ascending order.
func (s *Store) Keys() []string {
	keys := make([]string, 0, s.Len())
	s.data.Load().Range(func(k string, _ json.RawMessage) bool {
		keys = append(keys, k)
		return true
	})
	return keys
}

// Recover discards the in-memory state and rebuilds it from the journal,
// applying records in sequence order.
func (s *Store) Recover() (RecoveryStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var stats RecoveryStats
	res, err := s.journal.Replay()
	if err != nil {
		return stats, err
	}

	entries := res.Entries
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].SequenceNumber < entries[j].SequenceNumber
	})

	data := newIndex()
	stats.TotalEntries = len(entries)
	stats.Corrupted = res.Corrupted()
	for _, e := range entries {
		if err := apply(data, e); err != nil {
			stats.Errors++
			s.logger.Warn("cannot apply record %d: %v", e.SequenceNumber, err)
			continue
		}
		stats.Applied++
	}
	s.data.Store(data)

	s.logger.Info("recovered %d keys: total=%d applied=%d corrupted=%d errors=%d",
		data.Len(), stats.TotalEntries, stats.Applied, stats.Corrupted, stats.Errors)
	return stats, nil
}

func apply(data *index, e wal.LogEntry) error {
	switch e.OperationType {
	case wal.Insert, wal.Update:
		if e.NewValue == nil {
			return kvErr.New(kvErr.ErrorTypeCorruption,
				fmt.Sprintf("%s of %q has no new value", e.OperationType, e.Key), nil)
		}
		data.Store(e.Key, e.NewValue)
	case wal.Delete:
		data.Delete(e.Key)
	default:
		return kvErr.New(kvErr.ErrorTypeCorruption,
			fmt.Sprintf("unknown operation %q", e.OperationType), nil)
	}
	return nil
}

// isAbsent reports whether v would be logged as a missing value.
func isAbsent(v json.RawMessage) bool {
	v = bytes.TrimSpace(v)
	return len(v) == 0 || bytes.Equal(v, []byte("null"))
}

// contextError maps an expired request context to a TIMEOUT error.
func contextError(ctx context.Context, op string) error {
	err := ctx.Err()
	switch {
	case err == nil:
		return nil
	case errors.Is(err, context.DeadlineExceeded):
		return kvErr.New(kvErr.ErrorTypeTimeout, op+" deadline exceeded before logging", err)
	default:
		return err
	}
}

func cloneValue(v json.RawMessage) json.RawMessage {
	if v == nil {
		return nil
	}
	return append(json.RawMessage(nil), v...)
}
