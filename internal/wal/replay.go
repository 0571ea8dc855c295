package wal

import (
	"bufio"
	"bytes"
	"errors"
	"io"
	"io/fs"
	"os"

	kvErr "github.com/sajjad-MoBe/walstore/internal/errors"
	"github.com/sajjad-MoBe/walstore/internal/shared"
)

// Corruption describes one record skipped during a scan.
type Corruption struct {
	Line   int   // 1-based line number
	Offset int64 // byte offset of the start of the line
	Err    error
}

// ReplayResult is the outcome of one pass over a log file.
type ReplayResult struct {
	// Entries holds every decodable record in on-disk order.
	Entries     []LogEntry
	Corruptions []Corruption
}

// Corrupted returns how many records were skipped.
func (r *ReplayResult) Corrupted() int {
	return len(r.Corruptions)
}

// LastSequence returns the highest sequence number among Entries, or 0.
func (r *ReplayResult) LastSequence() uint64 {
	var last uint64
	for _, e := range r.Entries {
		if e.SequenceNumber > last {
			last = e.SequenceNumber
		}
	}
	return last
}

// scanInfo carries what Open needs besides the entries.
type scanInfo struct {
	size     int64
	tornTail bool // the last line has no separator
}

// ReadFile replays the log at path without opening it for writing. A
// missing file yields an empty result.
func ReadFile(path string, opts ...Option) (*ReplayResult, error) {
	return readFile(path, newOptions(opts))
}

func readFile(path string, o options) (*ReplayResult, error) {
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		o.metrics.observeScan(&ReplayResult{})
		return &ReplayResult{}, nil
	}
	if err != nil {
		return nil, kvErr.IO("open", path, err)
	}
	defer f.Close()

	res, _, err := scan(path, f, o.logger)
	if err != nil {
		return nil, err
	}
	o.metrics.observeScan(res)
	return res, nil
}

// scan reads r line by line. Decode failures are collected and logged;
// only read errors abort.
func scan(path string, r io.Reader, logger *shared.Logger) (*ReplayResult, scanInfo, error) {
	res := &ReplayResult{}
	var info scanInfo
	br := bufio.NewReaderSize(r, 64*1024)
	lineNo := 0

	for {
		raw, err := br.ReadBytes(recordSeparator)
		if len(raw) > 0 {
			lineNo++
			info.tornTail = raw[len(raw)-1] != recordSeparator
			res.consume(raw, lineNo, info.size, logger)
			info.size += int64(len(raw))
		}
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, info, kvErr.IO("read", path, err)
		}
	}
	return res, info, nil
}

func (r *ReplayResult) consume(raw []byte, lineNo int, offset int64, logger *shared.Logger) {
	line := bytes.TrimSpace(raw)
	if len(line) == 0 {
		return
	}
	entry, err := decodeRecord(line)
	if err != nil {
		logger.Warn("skipping malformed record at line %d (offset %d): %v", lineNo, offset, err)
		r.Corruptions = append(r.Corruptions, Corruption{Line: lineNo, Offset: offset, Err: err})
		return
	}
	r.Entries = append(r.Entries, entry)
}
