package wal

import (
	"bytes"
	"encoding/json"
	"fmt"
	"hash/crc32"
	"unicode/utf8"

	kvErr "github.com/sajjad-MoBe/walstore/internal/errors"
)

// recordSeparator terminates every record on disk.
const recordSeparator = '\n'

var crcTable = crc32.MakeTable(crc32.Castagnoli)

// requiredFields are the keys every record must carry. Absent fields are a
// decode failure rather than silently zero.
var requiredFields = []string{
	"sequence_number",
	"transaction_id",
	"operation_type",
	"key",
	"old_value",
	"new_value",
	"timestamp",
}

var nullValue = []byte("null")

// record is the on-disk shape: the entry plus an optional CRC-32C of the
// entry's own encoding.
type record struct {
	LogEntry
	Checksum *uint32 `json:"checksum,omitempty"`
}

// encodeEntry renders e as a single newline-terminated line. HTML escaping
// is off so opaque values keep their bytes.
func encodeEntry(e LogEntry, withChecksum bool) ([]byte, error) {
	if !utf8.ValidString(e.Key) || !utf8.ValidString(e.TransactionID) {
		return nil, kvErr.New(kvErr.ErrorTypeSerialization,
			fmt.Sprintf("entry %d: key and transaction id must be valid UTF-8", e.SequenceNumber), nil)
	}
	if !utf8.Valid(e.OldValue) || !utf8.Valid(e.NewValue) {
		return nil, kvErr.New(kvErr.ErrorTypeSerialization,
			fmt.Sprintf("entry %d: values must be valid UTF-8", e.SequenceNumber), nil)
	}

	body, err := marshalLine(record{LogEntry: e})
	if err != nil {
		return nil, err
	}
	if !withChecksum {
		return body, nil
	}

	sum := checksum(body)
	return marshalLine(record{LogEntry: e, Checksum: &sum})
}

func marshalLine(rec record) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(rec); err != nil {
		return nil, kvErr.New(kvErr.ErrorTypeSerialization,
			fmt.Sprintf("encode entry %d", rec.SequenceNumber), err)
	}
	return buf.Bytes(), nil
}

// checksum covers the line without its trailing separator.
func checksum(line []byte) uint32 {
	return crc32.Checksum(bytes.TrimSuffix(line, []byte{recordSeparator}), crcTable)
}

// decodeRecord parses one trimmed, non-empty line. Any failure is a
// CORRUPTION error.
func decodeRecord(line []byte) (LogEntry, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(line, &fields); err != nil {
		return LogEntry{}, kvErr.New(kvErr.ErrorTypeCorruption, "malformed record", err)
	}
	for _, name := range requiredFields {
		if _, ok := fields[name]; !ok {
			return LogEntry{}, kvErr.New(kvErr.ErrorTypeCorruption,
				fmt.Sprintf("record is missing field %q", name), nil)
		}
	}

	var rec record
	if err := json.Unmarshal(line, &rec); err != nil {
		return LogEntry{}, kvErr.New(kvErr.ErrorTypeCorruption, "malformed record", err)
	}
	if rec.SequenceNumber == 0 {
		return LogEntry{}, kvErr.New(kvErr.ErrorTypeCorruption, "record has sequence number 0", nil)
	}

	entry := rec.LogEntry
	entry.OldValue = normalizeValue(entry.OldValue)
	entry.NewValue = normalizeValue(entry.NewValue)

	if rec.Checksum != nil {
		body, err := marshalLine(record{LogEntry: entry})
		if err != nil {
			return LogEntry{}, kvErr.New(kvErr.ErrorTypeCorruption, "re-encode for checksum", err)
		}
		if got := checksum(body); got != *rec.Checksum {
			return LogEntry{}, kvErr.New(kvErr.ErrorTypeCorruption,
				fmt.Sprintf("checksum mismatch on entry %d: stored %08x, computed %08x",
					entry.SequenceNumber, *rec.Checksum, got), nil)
		}
	}
	return entry, nil
}

func normalizeValue(v json.RawMessage) json.RawMessage {
	if len(v) == 0 || bytes.Equal(v, nullValue) {
		return nil
	}
	return v
}
