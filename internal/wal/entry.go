package wal

import (
	"encoding/json"
	"fmt"
	"math"
	"time"
)

// OperationType is the kind of mutation a LogEntry records.
type OperationType string

const (
	Insert OperationType = "INSERT"
	Update OperationType = "UPDATE"
	Delete OperationType = "DELETE"
)

// ParseOperationType accepts exactly the three on-disk literals.
func ParseOperationType(s string) (OperationType, error) {
	switch op := OperationType(s); op {
	case Insert, Update, Delete:
		return op, nil
	default:
		return "", fmt.Errorf("unknown operation type %q", s)
	}
}

// Valid reports whether op is one of Insert, Update or Delete.
func (op OperationType) Valid() bool {
	_, err := ParseOperationType(string(op))
	return err == nil
}

// UnmarshalJSON rejects anything but the three known literals, so a
// garbled operation type surfaces as a decode failure.
func (op *OperationType) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseOperationType(s)
	if err != nil {
		return err
	}
	*op = parsed
	return nil
}

// LogEntry is one durable record. Values are opaque JSON documents; a nil
// value means absent and is written as null.
type LogEntry struct {
	SequenceNumber uint64          `json:"sequence_number"`
	TransactionID  string          `json:"transaction_id"`
	OperationType  OperationType   `json:"operation_type"`
	Key            string          `json:"key"`
	OldValue       json.RawMessage `json:"old_value"`
	NewValue       json.RawMessage `json:"new_value"`
	Timestamp      float64         `json:"timestamp"`
}

// Time returns the entry's timestamp as a time.Time.
func (e LogEntry) Time() time.Time {
	sec, frac := math.Modf(e.Timestamp)
	return time.Unix(int64(sec), int64(frac*1e9))
}

// newLogEntry stamps the wall clock at the moment the sequence number is
// handed out. The values are copied so later caller mutations cannot
// reach the entry.
func newLogEntry(seq uint64, txnID string, op OperationType, key string, oldValue, newValue json.RawMessage) LogEntry {
	return LogEntry{
		SequenceNumber: seq,
		TransactionID:  txnID,
		OperationType:  op,
		Key:            key,
		OldValue:       cloneValue(oldValue),
		NewValue:       cloneValue(newValue),
		Timestamp:      unixSeconds(time.Now()),
	}
}

func unixSeconds(t time.Time) float64 {
	return float64(t.UnixNano()) / 1e9
}

func cloneValue(v json.RawMessage) json.RawMessage {
	if len(v) == 0 {
		return nil
	}
	return append(json.RawMessage(nil), v...)
}
