package listener

import (
	"bufio"
	"context"
	"net"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oddjobs/oj/internal/adapters"
	"github.com/oddjobs/oj/internal/decision"
	"github.com/oddjobs/oj/internal/domain"
	"github.com/oddjobs/oj/internal/effects"
	"github.com/oddjobs/oj/internal/eventlog"
	"github.com/oddjobs/oj/internal/logger"
	"github.com/oddjobs/oj/internal/runbook"
	"github.com/oddjobs/oj/internal/state"
	"github.com/oddjobs/oj/internal/timers"
	"github.com/oddjobs/oj/pkg/ojproto"
)

// noopHandler never produces follow-up effects; enough to drive the
// listener's executor through a request/response round trip.
type noopHandler struct{}

func (noopHandler) Handle(context.Context, domain.Event) ([]effects.Effect, error) { return nil, nil }

func testLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New(logger.Config{Level: "error", Format: "console", OutputPath: "stdout"})
	require.NoError(t, err)
	return log
}

func newTestListener(t *testing.T) (*Listener, *effects.Executor) {
	t.Helper()
	stateDir := t.TempDir()
	log := testLogger(t)

	wal, err := eventlog.Open(stateDir, 0, nil, log)
	require.NoError(t, err)
	t.Cleanup(func() { wal.Close() })

	ex := effects.NewExecutor(state.New(), wal, timers.New(), adapters.NewRouter(), adapters.LogNotifier{}, noopHandler{}, log)

	l, err := New(stateDir, "test", Deps{
		Executor:  ex,
		Runbooks:  runbook.NewCache(),
		Decisions: decision.NewBuilder(),
		Router:    adapters.NewRouter(),
	}, "", false, log)
	require.NoError(t, err)
	t.Cleanup(func() { l.Close() })

	return l, ex
}

func dial(t *testing.T, socketPath string) net.Conn {
	t.Helper()
	conn, err := net.DialTimeout("unix", socketPath, time.Second)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func roundTrip(t *testing.T, conn net.Conn, action string, payload interface{}) *ojproto.Message {
	t.Helper()
	req, err := ojproto.NewRequest("req-1", action, payload)
	require.NoError(t, err)
	require.NoError(t, writeFrame(conn, req))
	resp, err := readFrame(bufio.NewReader(conn))
	require.NoError(t, err)
	return resp
}

func TestListenerHealthCheck(t *testing.T) {
	l, _ := newTestListener(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go l.Serve(ctx)
	time.Sleep(10 * time.Millisecond)

	conn := dial(t, filepath.Join(l.stateDir, socketFileName))
	resp := roundTrip(t, conn, ojproto.ActionHealthCheck, nil)

	assert.Equal(t, ojproto.MessageTypeResponse, resp.Type)
	var out map[string]string
	require.NoError(t, resp.ParsePayload(&out))
	assert.Equal(t, "ok", out["status"])
}

func TestListenerJobRunThenList(t *testing.T) {
	l, _ := newTestListener(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go l.Serve(ctx)
	time.Sleep(10 * time.Millisecond)

	conn := dial(t, filepath.Join(l.stateDir, socketFileName))
	resp := roundTrip(t, conn, ojproto.ActionJobRun, jobRunRequest{Kind: "deploy", Project: "oj", RunbookHash: "abc123"})
	require.Equal(t, ojproto.MessageTypeResponse, resp.Type)
	var runResult map[string]string
	require.NoError(t, resp.ParsePayload(&runResult))
	require.NotEmpty(t, runResult["job_id"])

	listResp := roundTrip(t, conn, ojproto.ActionJobList, nil)
	var listResult struct {
		Jobs []*domain.Job `json:"jobs"`
	}
	require.NoError(t, listResp.ParsePayload(&listResult))
	require.Len(t, listResult.Jobs, 1)
	assert.Equal(t, "deploy", listResult.Jobs[0].Kind)
}

func TestListenerJobRunRejectsMissingRunbook(t *testing.T) {
	l, _ := newTestListener(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go l.Serve(ctx)
	time.Sleep(10 * time.Millisecond)

	conn := dial(t, filepath.Join(l.stateDir, socketFileName))
	resp := roundTrip(t, conn, ojproto.ActionJobRun, jobRunRequest{Kind: "deploy"})
	assert.Equal(t, ojproto.MessageTypeError, resp.Type)
	var errPayload ojproto.ErrorPayload
	require.NoError(t, resp.ParsePayload(&errPayload))
	assert.Equal(t, ojproto.ErrorCodeValidation, errPayload.Code)
}

func TestListenerUnknownActionReturnsError(t *testing.T) {
	l, _ := newTestListener(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go l.Serve(ctx)
	time.Sleep(10 * time.Millisecond)

	conn := dial(t, filepath.Join(l.stateDir, socketFileName))
	resp := roundTrip(t, conn, "queue.totally-unregistered-action", nil)
	assert.Equal(t, ojproto.MessageTypeError, resp.Type)
}

func TestListenerQueueDrainDropsPendingItemsInQueue(t *testing.T) {
	l, ex := newTestListener(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go l.Serve(ctx)
	time.Sleep(10 * time.Millisecond)

	conn := dial(t, filepath.Join(l.stateDir, socketFileName))
	roundTrip(t, conn, ojproto.ActionQueuePush, domain.QueuePushedPayload{Queue: "deploys", Data: map[string]string{"a": "1"}})
	roundTrip(t, conn, ojproto.ActionQueuePush, domain.QueuePushedPayload{Queue: "deploys", Data: map[string]string{"a": "2"}})
	roundTrip(t, conn, ojproto.ActionQueuePush, domain.QueuePushedPayload{Queue: "other", Data: map[string]string{"a": "3"}})

	resp := roundTrip(t, conn, ojproto.ActionQueueDrain, map[string]string{"queue": "deploys"})
	require.Equal(t, ojproto.MessageTypeResponse, resp.Type)
	var out struct {
		Dropped []string `json:"dropped"`
	}
	require.NoError(t, resp.ParsePayload(&out))
	assert.Len(t, out.Dropped, 2)

	require.Len(t, ex.State().QueueItems, 1)
	for _, it := range ex.State().QueueItems {
		assert.Equal(t, "other", it.Queue)
		assert.Equal(t, domain.QueueItemPending, it.Status)
	}
}

func TestListenerQueueRetryFailDoneTransitionAnItemByPrefix(t *testing.T) {
	l, ex := newTestListener(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go l.Serve(ctx)
	time.Sleep(10 * time.Millisecond)

	conn := dial(t, filepath.Join(l.stateDir, socketFileName))
	pushResp := roundTrip(t, conn, ojproto.ActionQueuePush, domain.QueuePushedPayload{Queue: "deploys", Data: map[string]string{"a": "1"}})
	var pushed struct {
		ItemID string `json:"item_id"`
	}
	require.NoError(t, pushResp.ParsePayload(&pushed))
	require.NotEmpty(t, pushed.ItemID)

	resp := roundTrip(t, conn, ojproto.ActionQueueFail, domain.QueueItemTransitionPayload{ItemID: pushed.ItemID[:6]})
	require.Equal(t, ojproto.MessageTypeResponse, resp.Type)
	assert.Equal(t, domain.QueueItemFailed, ex.State().QueueItems[pushed.ItemID].Status)

	resp = roundTrip(t, conn, ojproto.ActionQueueRetry, domain.QueueItemTransitionPayload{ItemID: pushed.ItemID[:6]})
	require.Equal(t, ojproto.MessageTypeResponse, resp.Type)
	assert.Equal(t, domain.QueueItemRetried, ex.State().QueueItems[pushed.ItemID].Status)

	resp = roundTrip(t, conn, ojproto.ActionQueueDone, domain.QueueItemTransitionPayload{ItemID: pushed.ItemID[:6]})
	require.Equal(t, ojproto.MessageTypeResponse, resp.Type)
	assert.Equal(t, domain.QueueItemCompleted, ex.State().QueueItems[pushed.ItemID].Status)
}

func TestListenerQueuePruneRemovesOldTerminalItemsOnly(t *testing.T) {
	l, ex := newTestListener(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go l.Serve(ctx)
	time.Sleep(10 * time.Millisecond)

	ex.State().QueueItems["old-done"] = &domain.QueueItem{ID: "old-done", Queue: "deploys", Status: domain.QueueItemCompleted, PushedAt: time.Now().Add(-48 * time.Hour)}
	ex.State().QueueItems["fresh-done"] = &domain.QueueItem{ID: "fresh-done", Queue: "deploys", Status: domain.QueueItemCompleted, PushedAt: time.Now()}
	ex.State().QueueItems["still-pending"] = &domain.QueueItem{ID: "still-pending", Queue: "deploys", Status: domain.QueueItemPending, PushedAt: time.Now().Add(-48 * time.Hour)}

	conn := dial(t, filepath.Join(l.stateDir, socketFileName))
	resp := roundTrip(t, conn, ojproto.ActionQueuePrune, map[string]string{"queue": "deploys"})
	require.Equal(t, ojproto.MessageTypeResponse, resp.Type)
	var out struct {
		Pruned []string `json:"pruned"`
	}
	require.NoError(t, resp.ParsePayload(&out))
	assert.Equal(t, []string{"old-done"}, out.Pruned)
}
