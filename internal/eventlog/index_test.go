package eventlog

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oddjobs/oj/internal/domain"
)

func TestOpenIndexRecordAndEventsForOwner(t *testing.T) {
	idx, err := OpenIndex(t.TempDir())
	require.NoError(t, err)
	defer idx.Close()

	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	events := []domain.Event{
		{Seq: 1, Kind: domain.KindJobCreated, At: now, Payload: &domain.JobCreatedPayload{JobID: "job-1"}},
		{Seq: 2, Kind: domain.KindJobAdvanced, At: now.Add(time.Second), Payload: &domain.JobAdvancedPayload{JobID: "job-1"}},
		{Seq: 3, Kind: domain.KindJobCreated, At: now, Payload: &domain.JobCreatedPayload{JobID: "job-2"}},
	}
	require.NoError(t, idx.Record(context.Background(), events))

	out, err := idx.EventsForOwner(context.Background(), domain.JobOwner("job-1").String(), 10)
	require.NoError(t, err)
	require.Len(t, out, 2)
	// newest first
	assert.Equal(t, uint64(2), out[0].Seq)
	assert.Equal(t, uint64(1), out[1].Seq)
}

func TestEventsForOwnerRespectsLimit(t *testing.T) {
	idx, err := OpenIndex(t.TempDir())
	require.NoError(t, err)
	defer idx.Close()

	now := time.Now()
	var events []domain.Event
	for i := 1; i <= 5; i++ {
		events = append(events, domain.Event{Seq: uint64(i), Kind: domain.KindJobAdvanced, At: now, Payload: &domain.JobAdvancedPayload{JobID: "job-1"}})
	}
	require.NoError(t, idx.Record(context.Background(), events))

	out, err := idx.EventsForOwner(context.Background(), domain.JobOwner("job-1").String(), 2)
	require.NoError(t, err)
	assert.Len(t, out, 2)
}

func TestEventsForOwnerEmptyWhenNoMatch(t *testing.T) {
	idx, err := OpenIndex(t.TempDir())
	require.NoError(t, err)
	defer idx.Close()

	out, err := idx.EventsForOwner(context.Background(), "job:unknown", 10)
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestRecordIndexesUnownedEventsWithEmptyOwner(t *testing.T) {
	idx, err := OpenIndex(t.TempDir())
	require.NoError(t, err)
	defer idx.Close()

	require.NoError(t, idx.Record(context.Background(), []domain.Event{
		{Seq: 1, Kind: domain.KindTimerStart, At: time.Now(), Payload: &domain.TimerStartPayload{ID: "cron:nightly"}},
	}))

	out, err := idx.EventsForOwner(context.Background(), "", 10)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, string(domain.KindTimerStart), out[0].EventType)
}
