package wal

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	kvErr "github.com/sajjad-MoBe/walstore/internal/errors"
	"github.com/sajjad-MoBe/walstore/internal/shared"
)

// ErrClosed is returned by Append after Close.
var ErrClosed = errors.New("wal: log is closed")

// Option configures Open and ReadFile.
type Option func(*options)

type options struct {
	logger    *shared.Logger
	metrics   *Metrics
	checksums bool
}

// WithLogger sets the logger used for open and corruption diagnostics.
func WithLogger(l *shared.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithMetrics reports into m instead of a private unregistered set.
func WithMetrics(m *Metrics) Option {
	return func(o *options) { o.metrics = m }
}

// WithChecksums adds a CRC-32C field to every appended record.
func WithChecksums(enabled bool) Option {
	return func(o *options) { o.checksums = enabled }
}

func newOptions(opts []Option) options {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = shared.DefaultLogger
	}
	if o.metrics == nil {
		o.metrics = NewMetrics(nil)
	}
	return o
}

// logFile is the part of *os.File the log reads and writes through.
type logFile interface {
	io.ReadWriteSeeker
	Sync() error
	Truncate(size int64) error
	Close() error
}

// WriteAheadLog owns one log file and its sequence counter. It is safe for
// concurrent Append calls; Replay is meant to run before writers start.
type WriteAheadLog struct {
	mu     sync.Mutex
	path   string
	file   logFile
	seq    uint64 // last assigned sequence number
	size   int64  // bytes known to be durable
	failed error  // set when a rollback could not restore the file
	closed bool
	opts   options
}

// Open creates the log at path if needed and restores the sequence
// counter from the records already on disk.
func Open(path string, opts ...Option) (*WriteAheadLog, error) {
	if path == "" {
		return nil, kvErr.New(kvErr.ErrorTypeInvalidInput, "log path is empty", nil)
	}
	o := newOptions(opts)
	o.logger = o.logger.WithFields(map[string]interface{}{"component": "wal", "path": path})

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, kvErr.IO("create directory", dir, err)
	}

	_, statErr := os.Stat(path)
	created := errors.Is(statErr, fs.ErrNotExist)

	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return nil, kvErr.IO("open", path, err)
	}
	if created {
		if err := syncDir(dir); err != nil {
			file.Close()
			return nil, err
		}
	}

	w := &WriteAheadLog{
		path: path,
		file: file,
		opts: o,
	}
	if err := w.restore(); err != nil {
		file.Close()
		return nil, err
	}

	o.logger.Info("opened write-ahead log: created=%t last_sequence=%d size=%d", created, w.seq, w.size)
	return w, nil
}

// restore scans the file, sets the counter to the highest sequence found
// and isolates a torn final record behind a fresh separator.
func (w *WriteAheadLog) restore() error {
	if _, err := w.file.Seek(0, io.SeekStart); err != nil {
		return kvErr.IO("seek", w.path, err)
	}
	res, info, err := scan(w.path, w.file, w.opts.logger)
	if err != nil {
		return err
	}
	w.opts.metrics.observeScan(res)

	w.seq = res.LastSequence()
	w.size = info.size

	if info.tornTail {
		w.opts.logger.Warn("log ends with an unterminated record; sealing it at offset %d", w.size)
		if _, err := w.file.Write([]byte{recordSeparator}); err != nil {
			return kvErr.IO("write", w.path, err)
		}
		if err := w.file.Sync(); err != nil {
			return kvErr.IO("fsync", w.path, err)
		}
		w.size++
	}

	w.opts.metrics.lastSequence.Set(float64(w.seq))
	w.opts.metrics.sizeBytes.Set(float64(w.size))
	return nil
}

// Append logs one mutation and returns its sequence number once the record
// is on stable storage. On error no number is consumed and no partial
// record is left behind.
func (w *WriteAheadLog) Append(txnID string, op OperationType, key string, oldValue, newValue json.RawMessage) (uint64, error) {
	start := time.Now()

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		w.opts.metrics.observeAppendError(stageClosed)
		return 0, ErrClosed
	}
	if w.failed != nil {
		w.opts.metrics.observeAppendError(stagePoisoned)
		return 0, fmt.Errorf("wal: log unusable after failed rollback: %w", w.failed)
	}
	if !op.Valid() {
		return 0, kvErr.New(kvErr.ErrorTypeInvalidInput, fmt.Sprintf("unknown operation type %q", op), nil)
	}

	seq := w.seq + 1
	entry := newLogEntry(seq, txnID, op, key, oldValue, newValue)

	line, err := encodeEntry(entry, w.opts.checksums)
	if err != nil {
		w.opts.metrics.observeAppendError(stageEncode)
		return 0, err
	}

	if err := w.writeLine(line); err != nil {
		return 0, err
	}

	w.seq = seq
	w.size += int64(len(line))
	w.opts.metrics.observeAppend(start, seq, w.size)
	return seq, nil
}

func (w *WriteAheadLog) writeLine(line []byte) error {
	n, err := w.file.Write(line)
	if err != nil {
		w.opts.metrics.observeAppendError(stageWrite)
		return w.rollback(kvErr.IO("write", w.path, err), n > 0)
	}

	syncStart := time.Now()
	if err := w.file.Sync(); err != nil {
		w.opts.metrics.observeAppendError(stageSync)
		return w.rollback(kvErr.IO("fsync", w.path, err), true)
	}
	w.opts.metrics.fsyncDuration.Observe(time.Since(syncStart).Seconds())
	return nil
}

// rollback cuts the file back to the last durable size. If that fails the
// log refuses further appends.
func (w *WriteAheadLog) rollback(cause error, dirty bool) error {
	if !dirty {
		return cause
	}
	err := w.file.Truncate(w.size)
	if err == nil {
		err = w.file.Sync()
	}
	if err != nil {
		w.opts.metrics.observeAppendError(stageRollback)
		w.opts.logger.Error("rollback to offset %d failed, refusing further appends: %v (cause: %v)", w.size, err, cause)
		w.failed = cause
	}
	return cause
}

// Replay reads every record from the start of the file. Corrupt records
// are reported in the result, never as an error.
func (w *WriteAheadLog) Replay() (*ReplayResult, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	return readFile(w.path, w.opts)
}

// LastSequence returns the highest sequence number assigned so far.
func (w *WriteAheadLog) LastSequence() uint64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.seq
}

// Err reports why the log can no longer accept appends: ErrClosed, or the
// failure that left the file in an unknown state. It returns nil for a
// writable log.
func (w *WriteAheadLog) Err() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return ErrClosed
	}
	return w.failed
}

// Path returns the log file path.
func (w *WriteAheadLog) Path() string {
	return w.path
}

// Close releases the file handle. It is safe to call more than once.
func (w *WriteAheadLog) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}
	w.closed = true
	if err := w.file.Close(); err != nil {
		return kvErr.IO("close", w.path, err)
	}
	return nil
}

func syncDir(dir string) error {
	d, err := os.Open(dir)
	if err != nil {
		return kvErr.IO("open directory", dir, err)
	}
	defer d.Close()
	if err := d.Sync(); err != nil {
		return kvErr.IO("fsync directory", dir, err)
	}
	return nil
}
