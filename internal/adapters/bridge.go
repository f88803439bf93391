package adapters

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/oddjobs/oj/internal/adapters/coopclient"
	"github.com/oddjobs/oj/internal/domain"
	"github.com/oddjobs/oj/internal/logger"
)

// bridgeDialRetries/bridgeDialInterval/bridgeJoinRacePoll implement
// spec.md §4.6.2's monitoring contract: up to 10 retries 500ms apart,
// then one 3s-bounded HTTP poll to close the join race between
// subscribing and a transition that happened just before subscription.
const (
	bridgeDialRetries  = 10
	bridgeDialInterval = 500 * time.Millisecond
	bridgeJoinRacePoll = 3 * time.Second
)

// wsFrame is the wire shape of one monitoring-stream frame (spec.md
// §4.6.2): `{"event": <t>, ...}`. The "transition" and join-race-poll
// variants reuse coopclient.AgentState's fields directly since both
// describe the same sidecar-reported state.
type wsFrame struct {
	Event   string `json:"event"`
	Outcome string `json:"outcome,omitempty"`
	coopclient.AgentState
}

// Bridge is the per-agent WS monitoring task (spec.md §4.6.2), grounded
// on the teacher's gateway/websocket client in structure (dial, read
// loop, translate, push) though it speaks to a sidecar rather than a
// browser. One Bridge per spawned agent; its output channel feeds the
// engine's single event queue via the caller's Emit callback.
type Bridge struct {
	agentID    string
	socketPath string
	client     *coopclient.Client
	log        *logger.Logger
	events     chan domain.Event
}

// NewBridge constructs a bridge for agentID, talking to the sidecar over
// socketPath (agents/<id>/coop.sock per spec.md §6).
func NewBridge(agentID, socketPath string, log *logger.Logger) *Bridge {
	return &Bridge{
		agentID:    agentID,
		socketPath: socketPath,
		client:     coopclient.New(socketPath),
		log:        log.WithFields(zap.String("component", "ws_bridge"), zap.String("agent_id", agentID)),
		events:     make(chan domain.Event, 32),
	}
}

// Events is the channel the caller drains (typically forwarding each
// event into the executor via EmitNow). Closed once Run returns.
func (b *Bridge) Events() <-chan domain.Event {
	return b.events
}

// Run dials the sidecar's monitoring stream, retrying up to
// bridgeDialRetries times, then runs the read loop until ctx is
// cancelled, the stream ends, or an error occurs — each of the latter
// two emits AgentGone before Run returns. Run is meant to be launched in
// its own goroutine per agent.
func (b *Bridge) Run(ctx context.Context) {
	defer close(b.events)

	conn, err := b.dialWithRetry(ctx)
	if err != nil {
		b.log.Warn("bridge dial failed, giving up", zap.Error(err))
		b.emit(domain.Event{Kind: domain.KindAgentGone, Payload: &domain.AgentGonePayload{AgentID: b.agentID}})
		return
	}
	defer conn.Close()

	// Join-race poll: capture any transition that happened between spawn
	// and subscription.
	pollCtx, cancel := context.WithTimeout(ctx, bridgeJoinRacePoll)
	if st, err := b.client.State(pollCtx); err == nil {
		b.translateState(st)
	} else {
		b.log.Debug("join-race poll failed", zap.Error(err))
	}
	cancel()

	b.readLoop(ctx, conn)
}

func (b *Bridge) dialWithRetry(ctx context.Context) (*websocket.Conn, error) {
	dialer := websocket.Dialer{
		NetDialContext: func(ctx context.Context, _, _ string) (net.Conn, error) {
			var d net.Dialer
			return d.DialContext(ctx, "unix", b.socketPath)
		},
		HandshakeTimeout: bridgeDialInterval,
	}

	var lastErr error
	for attempt := 0; attempt < bridgeDialRetries; attempt++ {
		conn, _, err := dialer.DialContext(ctx, b.client.WSURL(), nil)
		if err == nil {
			return conn, nil
		}
		lastErr = err
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(bridgeDialInterval):
		}
	}
	return nil, fmt.Errorf("bridge: dial %s after %d attempts: %w", b.socketPath, bridgeDialRetries, lastErr)
}

func (b *Bridge) readLoop(ctx context.Context, conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			b.log.Debug("bridge stream ended", zap.Error(err))
			b.emit(domain.Event{Kind: domain.KindAgentGone, Payload: &domain.AgentGonePayload{AgentID: b.agentID}})
			return
		}
		var frame wsFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			b.log.Warn("bridge frame decode failed", zap.Error(err))
			continue
		}
		select {
		case <-ctx.Done():
			return
		default:
		}
		b.translateFrame(frame)
	}
}

func (b *Bridge) translateFrame(frame wsFrame) {
	switch frame.Event {
	case "transition":
		b.translateState(frame.AgentState)
	case "exit":
		b.emit(domain.Event{Kind: domain.KindAgentExited, Payload: &domain.AgentExitedPayload{AgentID: b.agentID}})
	case "stop:outcome":
		if frame.Outcome == "allowed" {
			b.emit(domain.Event{Kind: domain.KindAgentStopAllowed, Payload: &domain.AgentStatePayload{AgentID: b.agentID}})
		} else {
			b.emit(domain.Event{Kind: domain.KindAgentStopBlocked, Payload: &domain.AgentStatePayload{AgentID: b.agentID}})
		}
	case "message:raw":
		// Informational only; state transitions carry the content that
		// matters to the engine.
	default:
		b.log.Debug("unrecognised bridge frame", zap.String("event", frame.Event))
	}
}

// translateState maps a sidecar-reported AgentState onto the matching
// engine event, per spec.md §6's state enum.
func (b *Bridge) translateState(st coopclient.AgentState) {
	switch domain.AgentState(st.State) {
	case domain.AgentWorking:
		b.emit(domain.Event{Kind: domain.KindAgentWorking, Payload: &domain.AgentStatePayload{AgentID: b.agentID}})
	case domain.AgentWaiting:
		b.emit(domain.Event{Kind: domain.KindAgentWaiting, Payload: &domain.AgentStatePayload{AgentID: b.agentID}})
	case domain.AgentIdle:
		b.emit(domain.Event{Kind: domain.KindAgentIdle, Payload: &domain.AgentStatePayload{AgentID: b.agentID}})
	case domain.AgentPrompt:
		payload := &domain.AgentPromptPayload{AgentID: b.agentID}
		if st.Prompt != nil {
			payload.PromptType = st.Prompt.Type
			for _, q := range st.Prompt.Questions {
				payload.Questions = append(payload.Questions, domain.QuestionData{Text: q})
			}
			if m, ok := st.Prompt.Input.(map[string]interface{}); ok {
				payload.Input = m
			}
		}
		b.emit(domain.Event{Kind: domain.KindAgentPrompt, Payload: payload})
	case domain.AgentError, domain.AgentFailed:
		category := st.ErrorCategory
		if category == "" {
			category = "Other"
		}
		b.emit(domain.Event{Kind: domain.KindAgentFailed, Payload: &domain.AgentFailedPayload{AgentID: b.agentID, Category: category, Detail: st.ErrorDetail}})
	case domain.AgentExited:
		b.emit(domain.Event{Kind: domain.KindAgentExited, Payload: &domain.AgentExitedPayload{AgentID: b.agentID}})
	}
}

func (b *Bridge) emit(e domain.Event) {
	select {
	case b.events <- e:
	default:
		b.log.Warn("bridge event buffer full, dropping event", zap.String("kind", string(e.Kind)))
	}
}
