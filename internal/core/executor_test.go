package core

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type scriptedMailbox struct {
	mu      sync.Mutex
	errs    []error
	calls   int
	applied []Mutation
}

func (m *scriptedMailbox) ListCandidateIDs(context.Context, time.Time, int) ([]string, error) {
	return nil, nil
}

func (m *scriptedMailbox) Fetch(_ context.Context, id string) (MessageSummary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if len(m.errs) > 0 {
		err := m.errs[0]
		m.errs = m.errs[1:]
		return MessageSummary{}, err
	}
	return MessageSummary{ID: id}, nil
}

func (m *scriptedMailbox) Apply(_ context.Context, _ string, mut Mutation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if len(m.errs) > 0 {
		err := m.errs[0]
		m.errs = m.errs[1:]
		return err
	}
	m.applied = append(m.applied, mut)
	return nil
}

func newTestExecutor(mb Mailbox, attempts int) (*Executor, *[]time.Duration) {
	e := NewExecutor(mb, RetryConfig{
		MaxAttempts:    attempts,
		InitialBackoff: time.Second,
		MaxBackoff:     3 * time.Second,
		BackoffFactor:  2,
	}, nil)
	var slept []time.Duration
	e.retry.sleep = func(_ context.Context, d time.Duration) error {
		slept = append(slept, d)
		return nil
	}
	return e, &slept
}

func TestPlanMutation(t *testing.T) {
	inbox := MessageSummary{ID: "m1", Labels: []string{"INBOX", "Work"}}

	tests := []struct {
		name string
		d    Decision
		want Mutation
		ok   bool
	}{
		{"keep", Decision{Message: inbox, Action: ActionKeep}, Mutation{}, false},
		{"archive", Decision{Message: inbox, Action: ActionArchive}, Mutation{RemoveLabels: []string{"INBOX"}}, true},
		{"archive already archived", Decision{Message: MessageSummary{ID: "m1", Labels: []string{"Work"}}, Action: ActionArchive}, Mutation{}, false},
		{"trash", Decision{Message: inbox, Action: ActionTrash}, Mutation{Trash: true}, true},
		{"trash already trashed", Decision{Message: MessageSummary{ID: "m1", Labels: []string{"TRASH"}}, Action: ActionTrash}, Mutation{}, false},
		{"label skips present and duplicate", Decision{Message: inbox, Action: ActionLabel, LabelsToAdd: []string{"work", "ToReview", "ToReview", ""}}, Mutation{AddLabels: []string{"ToReview"}}, true},
		{"label already applied", Decision{Message: inbox, Action: ActionLabel, LabelsToAdd: []string{"Work"}}, Mutation{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := PlanMutation(tt.d)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestExecuteRetriesTransientFailures(t *testing.T) {
	transient := NewTransientError("apply", "m1", errors.New("rate limited"))
	mb := &scriptedMailbox{errs: []error{transient, transient}}
	e, slept := newTestExecutor(mb, 4)

	d := Decision{Message: MessageSummary{ID: "m1", Labels: []string{"INBOX"}}, Action: ActionArchive}
	require.NoError(t, e.Execute(context.Background(), d))

	assert.Equal(t, 3, mb.calls)
	assert.Len(t, mb.applied, 1)
	require.Len(t, *slept, 2)
	assert.Equal(t, time.Second, (*slept)[0])
	assert.Equal(t, 2*time.Second, (*slept)[1])
}

func TestExecuteGivesUpAfterMaxAttempts(t *testing.T) {
	transient := NewTransientError("apply", "m1", errors.New("service unavailable"))
	mb := &scriptedMailbox{errs: []error{transient, transient, transient, transient, transient}}
	e, slept := newTestExecutor(mb, 4)

	d := Decision{Message: MessageSummary{ID: "m1", Labels: []string{"INBOX"}}, Action: ActionTrash}
	err := e.Execute(context.Background(), d)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "after 4 attempt(s)")
	assert.True(t, IsTransient(err))
	assert.Equal(t, 4, mb.calls)
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second, 3 * time.Second}, *slept)
}

func TestExecuteDoesNotRetryPermanentFailures(t *testing.T) {
	mb := &scriptedMailbox{errs: []error{NewPermanentError("apply", "m1", ErrMessageNotFound)}}
	e, slept := newTestExecutor(mb, 4)

	d := Decision{Message: MessageSummary{ID: "m1", Labels: []string{"INBOX"}}, Action: ActionArchive}
	err := e.Execute(context.Background(), d)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMessageNotFound)
	assert.Equal(t, 1, mb.calls)
	assert.Empty(t, *slept)
}

func TestExecuteSkipsEmptyPlan(t *testing.T) {
	mb := &scriptedMailbox{}
	e, _ := newTestExecutor(mb, 4)

	require.NoError(t, e.Execute(context.Background(), Decision{Message: MessageSummary{ID: "m1"}, Action: ActionKeep}))
	assert.Zero(t, mb.calls)
}

func TestExecuteStopsOnCancel(t *testing.T) {
	transient := NewTransientError("apply", "m1", errors.New("blip"))
	mb := &scriptedMailbox{errs: []error{transient, transient}}
	e, _ := newTestExecutor(mb, 4)

	ctx, cancel := context.WithCancel(context.Background())
	e.retry.sleep = func(context.Context, time.Duration) error {
		cancel()
		return context.Canceled
	}

	d := Decision{Message: MessageSummary{ID: "m1", Labels: []string{"INBOX"}}, Action: ActionArchive}
	err := e.Execute(ctx, d)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, mb.calls)
}

func TestFetchRetries(t *testing.T) {
	mb := &scriptedMailbox{errs: []error{NewTransientError("fetch", "m9", errors.New("timeout"))}}
	e, _ := newTestExecutor(mb, 2)

	msg, err := e.Fetch(context.Background(), "m9")
	require.NoError(t, err)
	assert.Equal(t, "m9", msg.ID)
	assert.Equal(t, 2, mb.calls)
}

func TestNextBackoffAndJitter(t *testing.T) {
	assert.Equal(t, 2*time.Second, nextBackoff(time.Second, 2, 5*time.Second))
	assert.Equal(t, 5*time.Second, nextBackoff(4*time.Second, 2, 5*time.Second))
	assert.Equal(t, time.Second, withJitter(time.Second, 0))

	for i := 0; i < 50; i++ {
		d := withJitter(time.Second, 0.2)
		assert.GreaterOrEqual(t, d, 800*time.Millisecond)
		assert.LessOrEqual(t, d, 1200*time.Millisecond)
	}
}
