package adapters

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oddjobs/oj/internal/adapters/coopclient"
	"github.com/oddjobs/oj/internal/domain"
	"github.com/oddjobs/oj/internal/logger"
)

func testLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New(logger.Config{Level: "error", Format: "console", OutputPath: "stdout"})
	require.NoError(t, err)
	return log
}

func newTestBridge(t *testing.T) *Bridge {
	t.Helper()
	return NewBridge("agent-1", "/tmp/does-not-matter.sock", testLogger(t))
}

func drainOne(t *testing.T, b *Bridge) domain.Event {
	t.Helper()
	select {
	case e := <-b.events:
		return e
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for bridge event")
		return domain.Event{}
	}
}

func TestTranslateStateWorkingEmitsAgentWorking(t *testing.T) {
	b := newTestBridge(t)
	b.translateState(coopclient.AgentState{State: "working"})
	e := drainOne(t, b)
	assert.Equal(t, domain.KindAgentWorking, e.Kind)
	assert.Equal(t, "agent-1", e.Payload.(*domain.AgentStatePayload).AgentID)
}

func TestTranslateStateIdleEmitsAgentIdle(t *testing.T) {
	b := newTestBridge(t)
	b.translateState(coopclient.AgentState{State: "idle"})
	e := drainOne(t, b)
	assert.Equal(t, domain.KindAgentIdle, e.Kind)
}

func TestTranslateStatePromptCarriesQuestionsAndInput(t *testing.T) {
	b := newTestBridge(t)
	b.translateState(coopclient.AgentState{
		State: "prompt",
		Prompt: &coopclient.AgentPrompt{
			Type:      "question",
			Questions: []string{"proceed?"},
			Input:     map[string]interface{}{"default": "yes"},
		},
	})
	e := drainOne(t, b)
	require.Equal(t, domain.KindAgentPrompt, e.Kind)
	p := e.Payload.(*domain.AgentPromptPayload)
	assert.Equal(t, "question", p.PromptType)
	require.Len(t, p.Questions, 1)
	assert.Equal(t, "proceed?", p.Questions[0].Text)
	assert.Equal(t, "yes", p.Input["default"])
}

func TestTranslateStateErrorDefaultsCategoryToOther(t *testing.T) {
	b := newTestBridge(t)
	b.translateState(coopclient.AgentState{State: "error"})
	e := drainOne(t, b)
	require.Equal(t, domain.KindAgentFailed, e.Kind)
	assert.Equal(t, "Other", e.Payload.(*domain.AgentFailedPayload).Category)
}

func TestTranslateStateErrorKeepsReportedCategory(t *testing.T) {
	b := newTestBridge(t)
	b.translateState(coopclient.AgentState{State: "failed", ErrorCategory: "timeout", ErrorDetail: "no response"})
	e := drainOne(t, b)
	p := e.Payload.(*domain.AgentFailedPayload)
	assert.Equal(t, "timeout", p.Category)
	assert.Equal(t, "no response", p.Detail)
}

func TestTranslateStateExitedEmitsAgentExited(t *testing.T) {
	b := newTestBridge(t)
	b.translateState(coopclient.AgentState{State: "exited"})
	e := drainOne(t, b)
	assert.Equal(t, domain.KindAgentExited, e.Kind)
}

func TestTranslateStateUnknownEmitsNothing(t *testing.T) {
	b := newTestBridge(t)
	b.translateState(coopclient.AgentState{State: "bogus"})
	select {
	case e := <-b.events:
		t.Fatalf("expected no event, got %v", e)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestTranslateFrameExitEmitsAgentExited(t *testing.T) {
	b := newTestBridge(t)
	b.translateFrame(wsFrame{Event: "exit"})
	e := drainOne(t, b)
	assert.Equal(t, domain.KindAgentExited, e.Kind)
}

func TestTranslateFrameStopOutcomeAllowedEmitsStopAllowed(t *testing.T) {
	b := newTestBridge(t)
	b.translateFrame(wsFrame{Event: "stop:outcome", Outcome: "allowed"})
	e := drainOne(t, b)
	assert.Equal(t, domain.KindAgentStopAllowed, e.Kind)
}

func TestTranslateFrameStopOutcomeDeniedEmitsStopBlocked(t *testing.T) {
	b := newTestBridge(t)
	b.translateFrame(wsFrame{Event: "stop:outcome", Outcome: "denied"})
	e := drainOne(t, b)
	assert.Equal(t, domain.KindAgentStopBlocked, e.Kind)
}

func TestTranslateFrameTransitionDelegatesToTranslateState(t *testing.T) {
	b := newTestBridge(t)
	b.translateFrame(wsFrame{Event: "transition", AgentState: coopclient.AgentState{State: "waiting"}})
	e := drainOne(t, b)
	assert.Equal(t, domain.KindAgentWaiting, e.Kind)
}

func TestTranslateFrameMessageRawIsNoOp(t *testing.T) {
	b := newTestBridge(t)
	b.translateFrame(wsFrame{Event: "message:raw"})
	select {
	case e := <-b.events:
		t.Fatalf("expected no event, got %v", e)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestEmitDropsWhenBufferFull(t *testing.T) {
	b := newTestBridge(t)
	for i := 0; i < cap(b.events); i++ {
		b.emit(domain.Event{Kind: domain.KindAgentExited})
	}
	// buffer is full; one more emit should drop rather than block
	done := make(chan struct{})
	go func() {
		b.emit(domain.Event{Kind: domain.KindAgentExited})
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("emit blocked instead of dropping when buffer full")
	}
}

func TestEventsReturnsReadOnlyChannel(t *testing.T) {
	b := newTestBridge(t)
	var ch <-chan domain.Event = b.Events()
	assert.NotNil(t, ch)
}
