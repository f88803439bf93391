// Package localproc spawns an agent sidecar as a local process, talking
// to its control socket over a per-agent Unix socket
// (agents/<id>/coop.sock, spec.md §6). Process lifecycle is grounded on
// the teacher's agentctl launcher (internal/agent/agentctl/launcher):
// same Pdeathsig/Setpgid SysProcAttr, health-poll-then-ready startup,
// SIGTERM-then-SIGKILL shutdown — generalised from a fixed TCP control
// port to a per-agent Unix socket path, and from one singleton subprocess
// to one subprocess per spawned agent. Optionally runs the sidecar under
// a pty (github.com/creack/pty) so interactive CLI agents behave as if
// attached to a real terminal.
package localproc

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/creack/pty"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/oddjobs/oj/internal/adapters"
	"github.com/oddjobs/oj/internal/adapters/coopclient"
	"github.com/oddjobs/oj/internal/domain"
	"github.com/oddjobs/oj/internal/logger"
)

// Config configures the local-process adapter.
type Config struct {
	// StateDir is the daemon's state directory; sockets live under
	// StateDir/agents/<id>/coop.sock.
	StateDir string
	// SidecarBinary is the path to the agent sidecar executable. Empty
	// falls back to a PATH lookup of "oj-agent-sidecar".
	SidecarBinary string
	// UsePTY runs the sidecar under a pty instead of plain pipes.
	UsePTY bool
	// HealthTimeout bounds how long Spawn waits for the sidecar's
	// /api/v1/health to return 200 before giving up.
	HealthTimeout time.Duration
}

type handleRecord struct {
	mu      sync.Mutex
	agentID string
	owner   domain.OwnerID
	cmd     *exec.Cmd
	pty     *os.File
	client  *coopclient.Client
	bridge  *adapters.Bridge
	exited  chan struct{}
	alive   bool
	emit    func(domain.Event)
}

// Adapter implements adapters.AgentAdapter for sidecars run as local
// processes.
type Adapter struct {
	cfg Config
	log *logger.Logger

	mu      sync.Mutex
	handles map[string]*handleRecord

	// Emit receives monitoring-bridge events translated from each
	// spawned agent's WS stream; the caller wires this to the
	// executor's EmitNow.
	Emit func(domain.Event)
}

// New constructs a localproc Adapter. Emit must be set before Spawn is
// called for the first time.
func New(cfg Config, log *logger.Logger) *Adapter {
	if cfg.HealthTimeout == 0 {
		cfg.HealthTimeout = 30 * time.Second
	}
	return &Adapter{
		cfg:     cfg,
		log:     log.WithFields(zap.String("component", "localproc_adapter")),
		handles: make(map[string]*handleRecord),
	}
}

func (a *Adapter) socketPath(agentID string) string {
	return filepath.Join(a.cfg.StateDir, "agents", agentID, "coop.sock")
}

func (a *Adapter) binaryPath() string {
	if a.cfg.SidecarBinary != "" {
		return a.cfg.SidecarBinary
	}
	if p, err := exec.LookPath("oj-agent-sidecar"); err == nil {
		return p
	}
	return "oj-agent-sidecar"
}

func (a *Adapter) Spawn(ctx context.Context, spec adapters.SpawnSpec) (string, string, error) {
	agentID := uuid.NewString()
	sockDir := filepath.Join(a.cfg.StateDir, "agents", agentID)
	if err := os.MkdirAll(sockDir, 0o700); err != nil {
		return "", "", fmt.Errorf("localproc: create socket dir: %w", err)
	}
	sockPath := a.socketPath(agentID)
	authToken := uuid.NewString()

	cmd := exec.Command(a.binaryPath(),
		fmt.Sprintf("--control-socket=%s", sockPath),
		fmt.Sprintf("--auth-token=%s", authToken),
		"--prompt-file=-",
	)
	cmd.Dir = spec.Cwd
	cmd.Env = append(os.Environ(), envPairs(spec.Env)...)
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Pdeathsig: syscall.SIGTERM,
		Setpgid:   true,
	}

	rec := &handleRecord{agentID: agentID, owner: spec.Owner, cmd: cmd, exited: make(chan struct{}), alive: true, emit: a.Emit}

	var err error
	if a.cfg.UsePTY {
		rec.pty, err = pty.Start(cmd)
	} else {
		err = cmd.Start()
	}
	if err != nil {
		os.RemoveAll(sockDir)
		return "", "", fmt.Errorf("localproc: start sidecar: %w", err)
	}

	if rec.pty != nil {
		go func() { _, _ = rec.pty.Write([]byte(spec.Prompt + "\n")) }()
	}

	go a.monitorExit(rec)

	client := coopclient.New(sockPath)
	rec.client = client
	if err := waitForSocket(ctx, sockPath, a.cfg.HealthTimeout); err != nil {
		_ = cmd.Process.Kill()
		os.RemoveAll(sockDir)
		return "", "", fmt.Errorf("localproc: sidecar did not become healthy: %w", err)
	}

	bridge := adapters.NewBridge(agentID, sockPath, a.log)
	rec.bridge = bridge
	go a.pumpBridge(bridge)
	go bridge.Run(context.Background())

	a.mu.Lock()
	a.handles[agentID] = rec
	a.mu.Unlock()

	return agentID, authToken, nil
}

func (a *Adapter) pumpBridge(b *adapters.Bridge) {
	for ev := range b.Events() {
		if a.Emit != nil {
			a.Emit(ev)
		}
	}
}

func envPairs(env map[string]string) []string {
	out := make([]string, 0, len(env))
	for k, v := range env {
		out = append(out, fmt.Sprintf("%s=%s", k, v))
	}
	return out
}

// waitForSocket polls for the health endpoint to respond, the local
// analogue of the teacher's waitForHealthy TCP poll.
func waitForSocket(ctx context.Context, sockPath string, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	client := coopclient.New(sockPath)
	backoff := 100 * time.Millisecond
	for time.Now().Before(deadline) {
		hctx, cancel := context.WithTimeout(ctx, 2*time.Second)
		ok := client.Health(hctx)
		cancel()
		if ok {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		if backoff < time.Second {
			backoff *= 2
		}
	}
	return fmt.Errorf("timeout waiting for %s to become healthy", sockPath)
}

func (a *Adapter) monitorExit(rec *handleRecord) {
	err := rec.cmd.Wait()
	rec.mu.Lock()
	rec.alive = false
	rec.mu.Unlock()
	close(rec.exited)
	if err != nil {
		a.log.Info("sidecar process exited", zap.String("agent_id", rec.agentID), zap.Error(err))
	}
}

func (a *Adapter) record(handle string) (*handleRecord, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	r, ok := a.handles[handle]
	return r, ok
}

func (a *Adapter) Reconnect(ctx context.Context, handle string) error {
	sockPath := a.socketPath(handle)
	if _, err := os.Stat(sockPath); err != nil {
		return fmt.Errorf("localproc: reconnect %s: socket missing: %w", handle, err)
	}
	client := coopclient.New(sockPath)
	if !client.Health(ctx) {
		return fmt.Errorf("localproc: reconnect %s: sidecar not healthy", handle)
	}
	rec := &handleRecord{agentID: handle, client: client, alive: true, exited: make(chan struct{}), emit: a.Emit}
	bridge := adapters.NewBridge(handle, sockPath, a.log)
	rec.bridge = bridge
	go a.pumpBridge(bridge)
	go bridge.Run(context.Background())

	a.mu.Lock()
	a.handles[handle] = rec
	a.mu.Unlock()
	return nil
}

func (a *Adapter) Send(ctx context.Context, handle string, message string) error {
	r, ok := a.record(handle)
	if !ok {
		return fmt.Errorf("localproc: unknown handle %s", handle)
	}
	res, err := r.client.Nudge(ctx, message)
	if err != nil {
		return err
	}
	if !res.Delivered {
		return r.client.Input(ctx, message)
	}
	return nil
}

func (a *Adapter) Respond(ctx context.Context, handle string, choices []int, message string) error {
	r, ok := a.record(handle)
	if !ok {
		return fmt.Errorf("localproc: unknown handle %s", handle)
	}
	var opt *int
	if len(choices) > 0 {
		opt = &choices[0]
	}
	return r.client.Respond(ctx, opt != nil || message != "", opt, message)
}

func (a *Adapter) Kill(ctx context.Context, handle string) error {
	r, ok := a.record(handle)
	if !ok {
		return nil
	}
	if r.client != nil {
		_ = r.client.Shutdown(ctx)
	}
	r.mu.Lock()
	cmd := r.cmd
	r.mu.Unlock()
	if cmd == nil || cmd.Process == nil {
		return nil
	}
	select {
	case <-r.exited:
		return nil
	case <-time.After(3 * time.Second):
		return cmd.Process.Kill()
	}
}

func (a *Adapter) GetState(ctx context.Context, handle string) (domain.AgentState, error) {
	r, ok := a.record(handle)
	if !ok {
		return "", fmt.Errorf("localproc: unknown handle %s", handle)
	}
	st, err := r.client.State(ctx)
	if err != nil {
		return "", err
	}
	return domain.AgentState(st.State), nil
}

func (a *Adapter) LastMessage(ctx context.Context, handle string) (string, error) {
	r, ok := a.record(handle)
	if !ok {
		return "", fmt.Errorf("localproc: unknown handle %s", handle)
	}
	st, err := r.client.State(ctx)
	if err != nil {
		return "", err
	}
	return st.LastMessage, nil
}

func (a *Adapter) ResolveStop(ctx context.Context, handle string, allow bool) error {
	r, ok := a.record(handle)
	if !ok {
		return fmt.Errorf("localproc: unknown handle %s", handle)
	}
	return r.client.ResolveStop(ctx, allow)
}

func (a *Adapter) IsAlive(ctx context.Context, handle string) bool {
	r, ok := a.record(handle)
	if !ok {
		return false
	}
	r.mu.Lock()
	alive := r.alive
	r.mu.Unlock()
	if !alive {
		return false
	}
	return r.client.Health(ctx)
}

func (a *Adapter) CaptureOutput(ctx context.Context, handle string) (string, error) {
	r, ok := a.record(handle)
	if !ok {
		return "", fmt.Errorf("localproc: unknown handle %s", handle)
	}
	return r.client.ScreenText(ctx)
}

func (a *Adapter) FetchTranscript(ctx context.Context, handle string) ([]byte, error) {
	r, ok := a.record(handle)
	if !ok {
		return nil, fmt.Errorf("localproc: unknown handle %s", handle)
	}
	return r.client.Catchup(ctx, "", 0)
}

func (a *Adapter) FetchUsage(ctx context.Context, handle string) (adapters.TokenUsage, error) {
	r, ok := a.record(handle)
	if !ok {
		return adapters.TokenUsage{}, fmt.Errorf("localproc: unknown handle %s", handle)
	}
	u, err := r.client.Usage(ctx)
	if err != nil {
		return adapters.TokenUsage{}, err
	}
	return adapters.TokenUsage{
		InputTokens:  u.InputTokens,
		OutputTokens: u.OutputTokens,
		CachedTokens: u.CachedTokens,
		AsOf:         u.AsOf,
	}, nil
}

func (a *Adapter) IsRemoteOnly() bool { return false }

func (a *Adapter) GetCoopHost(handle string) string {
	return "unix://" + a.socketPath(handle)
}

var _ adapters.AgentAdapter = (*Adapter)(nil)
