package core

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingStore struct {
	appended  [][]Decision
	watermark time.Time
	setCalls  int
	appendErr error
}

func (s *recordingStore) Append(_ context.Context, _ string, _ bool, ds []Decision) error {
	if s.appendErr != nil {
		return s.appendErr
	}
	s.appended = append(s.appended, ds)
	return nil
}

func (s *recordingStore) Watermark(context.Context) (time.Time, bool, error) {
	return s.watermark, !s.watermark.IsZero(), nil
}

func (s *recordingStore) SetWatermark(_ context.Context, t time.Time) error {
	s.setCalls++
	s.watermark = t
	return nil
}

func decisionAt(id, subject string, action Action, at time.Time) Decision {
	return Decision{
		Message: MessageSummary{ID: id, Subject: subject, Date: at},
		Action:  action,
		Reason:  "test",
		By:      ByPolicy,
	}
}

func TestAccumulatorCountsAndExamples(t *testing.T) {
	base := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	acc := NewAccumulator("run-1", base, false, 2, nil, nil)

	acc.Record(decisionAt("a", "one", ActionArchive, base.Add(3*time.Hour)))
	acc.Record(decisionAt("b", "", ActionArchive, base.Add(time.Hour)))
	acc.Record(decisionAt("c", "three", ActionArchive, base))
	failed := decisionAt("d", "four", ActionTrash, base)
	failed.Error = "boom"
	acc.Record(failed)
	acc.RecordError("e: fetch: gone")

	report, err := acc.Finalize(context.Background(), base.Add(time.Minute), nil)
	require.NoError(t, err)

	assert.Equal(t, 4, report.Total())
	assert.Equal(t, map[Action]int{ActionKeep: 0, ActionLabel: 0, ActionArchive: 3, ActionTrash: 1}, report.Counts)
	assert.Equal(t, []string{"one", "(no subject)"}, report.Examples[ActionArchive])
	assert.Equal(t, []string{"d: boom", "e: fetch: gone"}, report.Errors)
	assert.Len(t, report.Decisions, 4)
	assert.Equal(t, time.Minute, report.Duration())
}

func TestAccumulatorFinalizeAdvancesWatermark(t *testing.T) {
	base := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	store := &recordingStore{}
	acc := NewAccumulator("run-1", base.Add(24*time.Hour), false, 5, store, nil)

	acc.Record(decisionAt("a", "x", ActionKeep, base.Add(2*time.Hour)))
	acc.Record(decisionAt("b", "y", ActionKeep, base.Add(time.Hour)))

	report, err := acc.Finalize(context.Background(), base, nil)
	require.NoError(t, err)
	assert.True(t, store.watermark.Equal(base.Add(2*time.Hour)))
	assert.True(t, report.Watermark.Equal(base.Add(2*time.Hour)))
	require.Len(t, store.appended, 1)
	assert.Len(t, store.appended[0], 2)

	again, err := acc.Finalize(context.Background(), base.Add(time.Hour), nil)
	require.NoError(t, err)
	assert.Equal(t, report, again)
	assert.Len(t, store.appended, 1)
	assert.Equal(t, 1, store.setCalls)

	acc.Record(decisionAt("c", "z", ActionKeep, base.Add(5*time.Hour)))
	final, _ := acc.Finalize(context.Background(), base, nil)
	assert.Equal(t, 2, final.Total())
}

func TestAccumulatorDryRunKeepsWatermark(t *testing.T) {
	base := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	store := &recordingStore{}
	acc := NewAccumulator("run-1", base, true, 5, store, nil)
	acc.Record(decisionAt("a", "x", ActionTrash, base))

	report, err := acc.Finalize(context.Background(), base, nil)
	require.NoError(t, err)
	assert.True(t, report.DryRun)
	assert.Zero(t, store.setCalls)
	assert.True(t, report.Watermark.IsZero())
	assert.Len(t, store.appended, 1)
}

func TestAccumulatorFatalSkipsPersistence(t *testing.T) {
	base := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	store := &recordingStore{}
	acc := NewAccumulator("run-1", base, false, 5, store, nil)
	acc.Record(decisionAt("a", "x", ActionArchive, base))

	fatal := errors.New("list failed")
	report, err := acc.Finalize(context.Background(), base, fatal)
	assert.ErrorIs(t, err, fatal)
	assert.Equal(t, 1, report.Total())
	assert.Empty(t, store.appended)
	assert.Zero(t, store.setCalls)
}

func TestAccumulatorAuditFailure(t *testing.T) {
	base := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	store := &recordingStore{appendErr: errors.New("disk full")}
	acc := NewAccumulator("run-1", base, false, 5, store, nil)
	acc.Record(decisionAt("a", "x", ActionArchive, base))

	_, err := acc.Finalize(context.Background(), base, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "audit")
	assert.Zero(t, store.setCalls)
}

func TestAccumulatorWatermarkNeverPassesRunStart(t *testing.T) {
	started := time.Date(2024, 6, 2, 22, 0, 0, 0, time.UTC)
	store := &recordingStore{}
	acc := NewAccumulator("run-1", started, false, 5, store, nil)

	acc.Record(decisionAt("a", "x", ActionKeep, started.Add(-time.Hour)))
	acc.Record(decisionAt("b", "y", ActionTrash, time.Date(2038, 1, 1, 0, 0, 0, 0, time.UTC)))

	report, err := acc.Finalize(context.Background(), started.Add(time.Minute), nil)
	require.NoError(t, err)
	assert.True(t, store.watermark.Equal(started))
	assert.True(t, report.Watermark.Equal(started))
}

func TestAccumulatorHoldWatermark(t *testing.T) {
	base := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	store := &recordingStore{}
	acc := NewAccumulator("run-1", base.Add(24*time.Hour), false, 5, store, nil)

	acc.Record(decisionAt("a", "x", ActionKeep, base.Add(time.Hour)))
	acc.HoldWatermark()
	acc.Record(decisionAt("b", "y", ActionKeep, base.Add(3*time.Hour)))

	report, err := acc.Finalize(context.Background(), base.Add(25*time.Hour), nil)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Total())
	assert.True(t, store.watermark.Equal(base.Add(time.Hour)))
}

func TestAccumulatorHoldBeforeAnyDecisionKeepsStoredWatermark(t *testing.T) {
	base := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	store := &recordingStore{}
	acc := NewAccumulator("run-1", base.Add(24*time.Hour), false, 5, store, nil)

	acc.HoldWatermark()
	acc.Record(decisionAt("a", "x", ActionKeep, base.Add(time.Hour)))

	_, err := acc.Finalize(context.Background(), base.Add(25*time.Hour), nil)
	require.NoError(t, err)
	assert.Zero(t, store.setCalls)
}
