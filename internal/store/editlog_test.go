package store

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/wfgraph/pkg/schema"
)

func TestAppendEdit_MonotonicSequence(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		e := &EditEvent{DefinitionName: "orders", Operation: "insert_after", TaskRef: "fetch", FromVersion: i + 1, ToVersion: i + 2}
		require.NoError(t, s.AppendEdit(ctx, e))
		assert.Equal(t, int64(i+1), e.Sequence)
		assert.NotZero(t, e.ID)
		assert.False(t, e.Timestamp.IsZero())
	}

	// Sequences are per definition.
	other := &EditEvent{DefinitionName: "billing", Operation: "delete", FromVersion: 1, ToVersion: 2}
	require.NoError(t, s.AppendEdit(ctx, other))
	assert.Equal(t, int64(1), other.Sequence)
}

func TestAppendEdit_Invalid(t *testing.T) {
	s := newTestStore(t)
	err := s.AppendEdit(context.Background(), &EditEvent{DefinitionName: "orders"})
	assert.Equal(t, schema.ErrCodeValidation, schema.ErrorCode(err))
}

func TestGetEdits(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	payload := json.RawMessage(`{"caseValue":"x"}`)
	require.NoError(t, s.AppendEdit(ctx, &EditEvent{DefinitionName: "orders", Operation: "insert_after", FromVersion: 1, ToVersion: 2}))
	require.NoError(t, s.AppendEdit(ctx, &EditEvent{DefinitionName: "orders", Operation: "add_switch_case", TaskRef: "route", FromVersion: 2, ToVersion: 3, Payload: payload}))

	edits, err := s.GetEdits(ctx, "orders", 0)
	require.NoError(t, err)
	require.Len(t, edits, 2)
	assert.Equal(t, "", edits[0].TaskRef)
	assert.Nil(t, edits[0].Payload)
	assert.Equal(t, "route", edits[1].TaskRef)
	assert.JSONEq(t, `{"caseValue":"x"}`, string(edits[1].Payload))

	since, err := s.GetEdits(ctx, "orders", 1)
	require.NoError(t, err)
	require.Len(t, since, 1)
	assert.Equal(t, int64(2), since[0].Sequence)
}

func TestEditLog_History(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	el := NewEditLog(s)

	v, err := el.LatestVersion(ctx, "orders")
	require.NoError(t, err)
	assert.Equal(t, 0, v)

	require.NoError(t, s.AppendEdit(ctx, &EditEvent{DefinitionName: "orders", Operation: "delete", FromVersion: 1, ToVersion: 2}))
	require.NoError(t, s.AppendEdit(ctx, &EditEvent{DefinitionName: "orders", Operation: "delete", FromVersion: 2, ToVersion: 3}))

	history, err := el.History(ctx, "orders")
	require.NoError(t, err)
	assert.Len(t, history, 2)

	v, err = el.LatestVersion(ctx, "orders")
	require.NoError(t, err)
	assert.Equal(t, 3, v)
}

func TestEditLog_SequenceGap(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.AppendEdit(ctx, &EditEvent{DefinitionName: "orders", Operation: "delete", FromVersion: 1, ToVersion: 2}))
	require.NoError(t, s.AppendEdit(ctx, &EditEvent{DefinitionName: "orders", Operation: "delete", FromVersion: 2, ToVersion: 3}))
	_, err := s.DB().ExecContext(ctx, `DELETE FROM edits WHERE sequence = 1`)
	require.NoError(t, err)

	_, err = NewEditLog(s).History(ctx, "orders")
	require.Error(t, err)
	assert.Equal(t, schema.ErrCodeStore, schema.ErrorCode(err))
}

func TestAppendEdit_Concurrent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make([]error, 10)
	for i := range 10 {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			errs[idx] = s.AppendEdit(ctx, &EditEvent{DefinitionName: "orders", Operation: "delete", FromVersion: idx, ToVersion: idx + 1})
		}(i)
	}
	wg.Wait()
	for _, err := range errs {
		require.NoError(t, err)
	}

	history, err := NewEditLog(s).History(ctx, "orders")
	require.NoError(t, err)
	assert.Len(t, history, 10)
}
