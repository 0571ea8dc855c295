package store

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	kvErr "github.com/sajjad-MoBe/walstore/internal/errors"
	"github.com/sajjad-MoBe/walstore/internal/shared"
	"github.com/sajjad-MoBe/walstore/internal/wal"
)

// MockJournal is a mock implementation of Journal
type MockJournal struct {
	mock.Mock
}

func (m *MockJournal) Append(txnID string, op wal.OperationType, key string, oldValue, newValue json.RawMessage) (uint64, error) {
	args := m.Called(txnID, op, key, oldValue, newValue)
	return args.Get(0).(uint64), args.Error(1)
}

func (m *MockJournal) Replay() (*wal.ReplayResult, error) {
	args := m.Called()
	res, _ := args.Get(0).(*wal.ReplayResult)
	return res, args.Error(1)
}

func setupStore(t *testing.T) (*Store, *wal.WriteAheadLog) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "wal.log")
	w, err := wal.Open(path, wal.WithLogger(shared.NewNopLogger()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = w.Close() })
	return New(w, WithLogger(shared.NewNopLogger())), w
}

func TestPutLogsInsertThenUpdate(t *testing.T) {
	s, w := setupStore(t)
	ctx := context.Background()

	seq, err := s.Put(ctx, "txn_a", "user:1", json.RawMessage(`{"name":"Rajesh","age":30}`))
	require.NoError(t, err)
	assert.Equal(t, uint64(1), seq)

	seq, err = s.Put(ctx, "txn_b", "user:1", json.RawMessage(`{"name":"Rajesh","age":31}`))
	require.NoError(t, err)
	assert.Equal(t, uint64(2), seq)

	v, ok := s.Get("user:1")
	require.True(t, ok)
	assert.JSONEq(t, `{"name":"Rajesh","age":31}`, string(v))

	res, err := w.Replay()
	require.NoError(t, err)
	require.Len(t, res.Entries, 2)
	assert.Equal(t, wal.Insert, res.Entries[0].OperationType)
	assert.Nil(t, res.Entries[0].OldValue)
	assert.Equal(t, wal.Update, res.Entries[1].OperationType)
	assert.JSONEq(t, `{"name":"Rajesh","age":30}`, string(res.Entries[1].OldValue))
	assert.Equal(t, "txn_b", res.Entries[1].TransactionID)
}

func TestPutGeneratesTransactionID(t *testing.T) {
	s, w := setupStore(t)

	_, err := s.Put(context.Background(), "", "k", json.RawMessage(`1`))
	require.NoError(t, err)

	res, err := w.Replay()
	require.NoError(t, err)
	require.Len(t, res.Entries, 1)
	assert.Regexp(t, regexp.MustCompile(`^txn_1_\d+$`), res.Entries[0].TransactionID)
}

func TestPutRejectsInvalidInput(t *testing.T) {
	s, w := setupStore(t)
	ctx := context.Background()

	_, err := s.Put(ctx, "", "", json.RawMessage(`1`))
	assert.True(t, kvErr.IsInvalidInput(err))

	_, err = s.Put(ctx, "", "k", nil)
	assert.True(t, kvErr.IsInvalidInput(err))

	_, err = s.Put(ctx, "", "k", json.RawMessage(`null`))
	assert.True(t, kvErr.IsInvalidInput(err))

	_, err = s.Put(ctx, "", "k", json.RawMessage(" null\n"))
	assert.True(t, kvErr.IsInvalidInput(err))

	_, err = s.Put(ctx, "", "k", json.RawMessage(`{oops`))
	assert.True(t, kvErr.IsSerialization(err))

	assert.Equal(t, 0, s.Len())
	assert.Equal(t, uint64(0), w.LastSequence())
}

func TestDeleteMissingKeyWritesNothing(t *testing.T) {
	s, w := setupStore(t)

	seq, deleted, err := s.Delete(context.Background(), "", "ghost")
	require.NoError(t, err)
	assert.False(t, deleted)
	assert.Equal(t, uint64(0), seq)
	assert.Equal(t, uint64(0), w.LastSequence())
}

func TestDeleteLogsOldValue(t *testing.T) {
	s, w := setupStore(t)
	ctx := context.Background()

	_, err := s.Put(ctx, "", "user:2", json.RawMessage(`{"name":"Surekha","age":25}`))
	require.NoError(t, err)

	seq, deleted, err := s.Delete(ctx, "txn_d", "user:2")
	require.NoError(t, err)
	assert.True(t, deleted)
	assert.Equal(t, uint64(2), seq)

	_, ok := s.Get("user:2")
	assert.False(t, ok)

	res, err := w.Replay()
	require.NoError(t, err)
	require.Len(t, res.Entries, 2)
	del := res.Entries[1]
	assert.Equal(t, wal.Delete, del.OperationType)
	assert.JSONEq(t, `{"name":"Surekha","age":25}`, string(del.OldValue))
	assert.Nil(t, del.NewValue)
}

func TestKeysAreSorted(t *testing.T) {
	s, _ := setupStore(t)
	ctx := context.Background()

	for _, k := range []string{"pear", "apple", "fig", "banana"} {
		_, err := s.Put(ctx, "", k, json.RawMessage(`true`))
		require.NoError(t, err)
	}

	assert.Equal(t, []string{"apple", "banana", "fig", "pear"}, s.Keys())
	assert.Equal(t, 4, s.Len())
}

func TestGetReturnsCopy(t *testing.T) {
	s, _ := setupStore(t)

	_, err := s.Put(context.Background(), "", "k", json.RawMessage(`[1,2]`))
	require.NoError(t, err)

	v, _ := s.Get("k")
	v[1] = '9'
	again, _ := s.Get("k")
	assert.Equal(t, `[1,2]`, string(again))
}

func TestRecoverRebuildsState(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "wal.log")
	ctx := context.Background()

	w, err := wal.Open(path, wal.WithLogger(shared.NewNopLogger()))
	require.NoError(t, err)
	s := New(w, WithLogger(shared.NewNopLogger()))
	_, err = s.Put(ctx, "", "user:1", json.RawMessage(`{"age":30}`))
	require.NoError(t, err)
	_, err = s.Put(ctx, "", "user:2", json.RawMessage(`{"age":25}`))
	require.NoError(t, err)
	_, err = s.Put(ctx, "", "user:1", json.RawMessage(`{"age":31}`))
	require.NoError(t, err)
	_, _, err = s.Delete(ctx, "", "user:2")
	require.NoError(t, err)
	require.NoError(t, w.Close())

	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0644)
	require.NoError(t, err)
	_, err = f.WriteString("not a record\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	w, err = wal.Open(path, wal.WithLogger(shared.NewNopLogger()))
	require.NoError(t, err)
	defer w.Close()

	recovered := New(w, WithLogger(shared.NewNopLogger()))
	stats, err := recovered.Recover()
	require.NoError(t, err)
	assert.Equal(t, RecoveryStats{TotalEntries: 4, Applied: 4, Corrupted: 1}, stats)

	assert.Equal(t, []string{"user:1"}, recovered.Keys())
	v, ok := recovered.Get("user:1")
	require.True(t, ok)
	assert.JSONEq(t, `{"age":31}`, string(v))

	seq, err := recovered.Put(ctx, "", "user:3", json.RawMessage(`{}`))
	require.NoError(t, err)
	assert.Equal(t, uint64(5), seq)
}

func TestRecoverAppliesInSequenceOrder(t *testing.T) {
	journal := new(MockJournal)
	journal.On("Replay").Return(&wal.ReplayResult{
		Entries: []wal.LogEntry{
			{SequenceNumber: 3, OperationType: wal.Delete, Key: "a", OldValue: json.RawMessage(`2`)},
			{SequenceNumber: 1, OperationType: wal.Insert, Key: "a", NewValue: json.RawMessage(`1`)},
			{SequenceNumber: 2, OperationType: wal.Update, Key: "a", OldValue: json.RawMessage(`1`), NewValue: json.RawMessage(`2`)},
			{SequenceNumber: 4, OperationType: wal.Insert, Key: "b", NewValue: json.RawMessage(`"x"`)},
			{SequenceNumber: 5, OperationType: wal.Insert, Key: "c"},
		},
	}, nil)

	s := New(journal, WithLogger(shared.NewNopLogger()))
	stats, err := s.Recover()
	require.NoError(t, err)

	assert.Equal(t, RecoveryStats{TotalEntries: 5, Applied: 4, Errors: 1}, stats)
	assert.Equal(t, []string{"b"}, s.Keys())
	journal.AssertExpectations(t)
}

func TestRecoverReplacesExistingState(t *testing.T) {
	journal := new(MockJournal)
	journal.On("Append", mock.Anything, wal.Insert, "stale", mock.Anything, mock.Anything).Return(uint64(1), nil)
	journal.On("Replay").Return(&wal.ReplayResult{}, nil)

	s := New(journal, WithLogger(shared.NewNopLogger()))
	_, err := s.Put(context.Background(), "", "stale", json.RawMessage(`0`))
	require.NoError(t, err)

	_, err = s.Recover()
	require.NoError(t, err)
	assert.Equal(t, 0, s.Len())
}

func TestRecoverPropagatesReplayError(t *testing.T) {
	journal := new(MockJournal)
	journal.On("Replay").Return(nil, kvErr.IO("read", "wal.log", errors.New("device gone")))

	s := New(journal, WithLogger(shared.NewNopLogger()))
	_, err := s.Recover()
	assert.True(t, kvErr.IsIO(err))
}

func TestJournalFailureLeavesStateUntouched(t *testing.T) {
	journal := new(MockJournal)
	journal.On("Append", "t1", wal.Insert, "k", json.RawMessage(nil), json.RawMessage(`1`)).Return(uint64(1), nil).Once()
	journal.On("Append", "t2", wal.Update, "k", json.RawMessage(`1`), json.RawMessage(`2`)).
		Return(uint64(0), kvErr.IO("fsync", "wal.log", errors.New("no space"))).Once()
	journal.On("Append", "t3", wal.Delete, "k", json.RawMessage(`1`), json.RawMessage(nil)).
		Return(uint64(0), wal.ErrClosed).Once()

	s := New(journal, WithLogger(shared.NewNopLogger()))
	ctx := context.Background()

	_, err := s.Put(ctx, "t1", "k", json.RawMessage(`1`))
	require.NoError(t, err)

	_, err = s.Put(ctx, "t2", "k", json.RawMessage(`2`))
	assert.True(t, kvErr.IsIO(err))

	_, deleted, err := s.Delete(ctx, "t3", "k")
	assert.ErrorIs(t, err, wal.ErrClosed)
	assert.False(t, deleted)

	v, ok := s.Get("k")
	require.True(t, ok)
	assert.Equal(t, `1`, string(v))
	journal.AssertExpectations(t)
}

func TestConcurrentPutsMatchLogOrder(t *testing.T) {
	s, w := setupStore(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				_, err := s.Put(ctx, "", "shared", json.RawMessage([]byte{byte('0' + i)}))
				assert.NoError(t, err)
			}
		}(i)
	}
	wg.Wait()

	res, err := w.Replay()
	require.NoError(t, err)
	require.Len(t, res.Entries, 160)
	assert.Equal(t, wal.Insert, res.Entries[0].OperationType)
	for i := 1; i < len(res.Entries); i++ {
		assert.Equal(t, wal.Update, res.Entries[i].OperationType)
		assert.Equal(t, string(res.Entries[i-1].NewValue), string(res.Entries[i].OldValue))
	}

	v, _ := s.Get("shared")
	assert.Equal(t, string(res.Entries[159].NewValue), string(v))
}

func TestRecoveredStateMatchesLiveState(t *testing.T) {
	s, w := setupStore(t)
	ctx := context.Background()

	for _, v := range []string{`0`, `""`, `false`, `[]`, `{}`} {
		_, err := s.Put(ctx, "", "k"+v, json.RawMessage(v))
		require.NoError(t, err)
	}
	_, err := s.Put(ctx, "", "nothing", json.RawMessage(`null`))
	require.Error(t, err)

	recovered := New(w, WithLogger(shared.NewNopLogger()))
	stats, err := recovered.Recover()
	require.NoError(t, err)
	assert.Equal(t, 0, stats.Errors)
	assert.Equal(t, s.Keys(), recovered.Keys())
	for _, k := range s.Keys() {
		live, _ := s.Get(k)
		got, ok := recovered.Get(k)
		require.True(t, ok, k)
		assert.Equal(t, string(live), string(got))
	}
}

func TestExpiredContextIsTimeout(t *testing.T) {
	s, w := setupStore(t)
	_, err := s.Put(context.Background(), "", "k", json.RawMessage(`1`))
	require.NoError(t, err)

	ctx, cancel := context.WithDeadline(context.Background(), time.Now().Add(-time.Second))
	defer cancel()

	_, err = s.Put(ctx, "", "k", json.RawMessage(`2`))
	assert.True(t, kvErr.IsTimeout(err))

	_, deleted, err := s.Delete(ctx, "", "k")
	assert.True(t, kvErr.IsTimeout(err))
	assert.False(t, deleted)

	assert.Equal(t, uint64(1), w.LastSequence())
	v, _ := s.Get("k")
	assert.Equal(t, `1`, string(v))
}
