package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseClock(t *testing.T) {
	h, m, err := ParseClock("22:05")
	require.NoError(t, err)
	assert.Equal(t, 22, h)
	assert.Equal(t, 5, m)

	for _, bad := range []string{"", "25:00", "7pm", "22:60"} {
		_, _, err := ParseClock(bad)
		assert.Error(t, err, bad)
	}
}

func TestNext(t *testing.T) {
	d, err := NewDaily("22:00", "Europe/Berlin", func(context.Context) error { return nil }, nil)
	require.NoError(t, err)
	berlin, _ := time.LoadLocation("Europe/Berlin")

	tests := []struct {
		name string
		now  time.Time
		want time.Time
	}{
		{"later today", time.Date(2024, 6, 1, 8, 0, 0, 0, berlin), time.Date(2024, 6, 1, 22, 0, 0, 0, berlin)},
		{"exactly at trigger", time.Date(2024, 6, 1, 22, 0, 0, 0, berlin), time.Date(2024, 6, 2, 22, 0, 0, 0, berlin)},
		{"after trigger", time.Date(2024, 6, 1, 23, 30, 0, 0, berlin), time.Date(2024, 6, 2, 22, 0, 0, 0, berlin)},
		{"from utc", time.Date(2024, 6, 1, 21, 0, 0, 0, time.UTC), time.Date(2024, 6, 2, 22, 0, 0, 0, berlin)},
		{"across dst change", time.Date(2024, 3, 30, 23, 0, 0, 0, berlin), time.Date(2024, 3, 31, 22, 0, 0, 0, berlin)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.True(t, tt.want.Equal(d.Next(tt.now)), "got %s", d.Next(tt.now))
		})
	}
}

func TestNewDailyRejectsBadTimezone(t *testing.T) {
	_, err := NewDaily("22:00", "Mars/Olympus", func(context.Context) error { return nil }, nil)
	assert.Error(t, err)
}

func TestTriggerSkipsOverlap(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{})
	d, err := NewDaily("22:00", "UTC", func(context.Context) error {
		close(started)
		<-release
		return errors.New("done")
	}, nil)
	require.NoError(t, err)

	done := make(chan bool)
	go func() { done <- d.Trigger(context.Background()) }()
	<-started

	assert.False(t, d.Trigger(context.Background()))
	close(release)
	assert.True(t, <-done)
}

func TestStartStopsOnCancel(t *testing.T) {
	d, err := NewDaily("22:00", "UTC", func(context.Context) error { return nil }, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, d.Start(ctx), context.Canceled)
}

func TestStartWaitsForRunningJob(t *testing.T) {
	fakeNow := time.Now().UTC().Add(-24 * time.Hour)
	started := make(chan struct{})
	release := make(chan struct{})
	var finished atomic.Bool
	d, err := NewDaily(fakeNow.Add(time.Minute).Format("15:04"), "UTC", func(context.Context) error {
		close(started)
		<-release
		finished.Store(true)
		return nil
	}, nil)
	require.NoError(t, err)

	// first trigger lands in the past so it fires at once; later ones are a day out
	calls := 0
	d.now = func() time.Time {
		calls++
		if calls == 1 {
			return fakeNow
		}
		return time.Now()
	}

	ctx, cancel := context.WithCancel(context.Background())
	result := make(chan error, 1)
	go func() { result <- d.Start(ctx) }()

	<-started
	cancel()
	select {
	case <-result:
		t.Fatal("Start returned while the job was still running")
	case <-time.After(50 * time.Millisecond):
	}

	close(release)
	assert.ErrorIs(t, <-result, context.Canceled)
	assert.True(t, finished.Load())
}
