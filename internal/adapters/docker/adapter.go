package docker

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/oddjobs/oj/internal/adapters"
	"github.com/oddjobs/oj/internal/adapters/coopclient"
	"github.com/oddjobs/oj/internal/config"
	"github.com/oddjobs/oj/internal/domain"
	"github.com/oddjobs/oj/internal/logger"
)

// containerCoopDir is the fixed mount point inside the container for the
// bind-mounted coop.sock directory (spec.md §9 adapter abstraction: the
// docker variant publishes the sidecar's control socket via a bind mount
// instead of a published port).
const containerCoopDir = "/var/run/oj-coop"

const stopTimeout = 10 * time.Second

type containerRecord struct {
	agentID     string
	containerID string
	sockPath    string
	client      *coopclient.Client
}

// Adapter implements adapters.AgentAdapter by spawning agent sidecars as
// Docker containers.
type Adapter struct {
	cli      *Client
	stateDir string
	network  string
	log      *logger.Logger

	handles map[string]*containerRecord

	// Emit forwards monitoring-bridge events to the executor, same
	// convention as localproc.Adapter.
	Emit func(domain.Event)
}

// New constructs a docker Adapter, dialing the Docker daemon described
// by cfg.
func New(cfg config.DockerConfig, stateDir string, log *logger.Logger) (*Adapter, error) {
	cli, err := NewClient(cfg, log)
	if err != nil {
		return nil, err
	}
	return &Adapter{
		cli:      cli,
		stateDir: stateDir,
		network:  cfg.DefaultNetwork,
		log:      log.WithFields(zap.String("component", "docker_adapter")),
		handles:  make(map[string]*containerRecord),
	}, nil
}

func (a *Adapter) socketPath(agentID string) string {
	return filepath.Join(a.stateDir, "agents", agentID, "coop.sock")
}

func (a *Adapter) Spawn(ctx context.Context, spec adapters.SpawnSpec) (string, string, error) {
	agentID := uuid.NewString()
	hostSockDir := filepath.Join(a.stateDir, "agents", agentID)
	if err := os.MkdirAll(hostSockDir, 0o700); err != nil {
		return "", "", fmt.Errorf("docker: create socket dir: %w", err)
	}
	authToken := uuid.NewString()

	if err := a.cli.PullImage(ctx, spec.Image); err != nil {
		a.log.Warn("pull image failed, assuming already present", zap.String("image", spec.Image), zap.Error(err))
	}

	env := make([]string, 0, len(spec.Env))
	for k, v := range spec.Env {
		env = append(env, fmt.Sprintf("%s=%s", k, v))
	}

	cfg := ContainerConfig{
		Name:  "oj-agent-" + agentID,
		Image: spec.Image,
		Cmd: []string{
			fmt.Sprintf("--control-socket=%s", filepath.Join(containerCoopDir, "coop.sock")),
			fmt.Sprintf("--auth-token=%s", authToken),
		},
		Env:         env,
		WorkingDir:  spec.Cwd,
		NetworkMode: a.network,
		Mounts: []MountConfig{
			{Source: hostSockDir, Target: containerCoopDir, ReadOnly: false},
		},
		Labels: map[string]string{
			"oj.agent_id": agentID,
			"oj.owner":    spec.Owner.String(),
		},
	}

	containerID, err := a.cli.CreateContainer(ctx, cfg)
	if err != nil {
		os.RemoveAll(hostSockDir)
		return "", "", err
	}
	if err := a.cli.StartContainer(ctx, containerID); err != nil {
		_ = a.cli.RemoveContainer(context.Background(), containerID, true)
		os.RemoveAll(hostSockDir)
		return "", "", err
	}

	sockPath := a.socketPath(agentID)
	client := coopclient.New(sockPath)
	if err := waitForHealthy(ctx, client, 30*time.Second); err != nil {
		_ = a.cli.StopContainer(context.Background(), containerID, stopTimeout)
		_ = a.cli.RemoveContainer(context.Background(), containerID, true)
		os.RemoveAll(hostSockDir)
		return "", "", fmt.Errorf("docker: sidecar did not become healthy: %w", err)
	}

	rec := &containerRecord{agentID: agentID, containerID: containerID, sockPath: sockPath, client: client}
	a.handles[agentID] = rec

	bridge := adapters.NewBridge(agentID, sockPath, a.log)
	go a.pumpBridge(bridge)
	go bridge.Run(context.Background())

	return agentID, authToken, nil
}

func (a *Adapter) pumpBridge(b *adapters.Bridge) {
	for ev := range b.Events() {
		if a.Emit != nil {
			a.Emit(ev)
		}
	}
}

func waitForHealthy(ctx context.Context, client *coopclient.Client, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	backoff := 200 * time.Millisecond
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
	return fmt.Errorf("timeout waiting for sidecar to become healthy")
}

func (a *Adapter) record(handle string) (*containerRecord, bool) {
	r, ok := a.handles[handle]
	return r, ok
}

func (a *Adapter) Reconnect(ctx context.Context, handle string) error {
	containers, err := a.cli.ListContainers(ctx, map[string]string{"oj.agent_id": handle})
	if err != nil {
		return err
	}
	if len(containers) == 0 {
		return fmt.Errorf("docker: reconnect %s: no container found", handle)
	}
	sockPath := a.socketPath(handle)
	client := coopclient.New(sockPath)
	if !client.Health(ctx) {
		return fmt.Errorf("docker: reconnect %s: sidecar not healthy", handle)
	}
	rec := &containerRecord{agentID: handle, containerID: containers[0].ID, sockPath: sockPath, client: client}
	a.handles[handle] = rec

	bridge := adapters.NewBridge(handle, sockPath, a.log)
	go a.pumpBridge(bridge)
	go bridge.Run(context.Background())
	return nil
}

func (a *Adapter) Send(ctx context.Context, handle string, message string) error {
	r, ok := a.record(handle)
	if !ok {
		return fmt.Errorf("docker: unknown handle %s", handle)
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
		return fmt.Errorf("docker: unknown handle %s", handle)
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
	if err := a.cli.StopContainer(ctx, r.containerID, stopTimeout); err != nil {
		a.log.Warn("stop container failed, forcing removal", zap.String("container_id", r.containerID), zap.Error(err))
	}
	return a.cli.RemoveContainer(ctx, r.containerID, true)
}

func (a *Adapter) GetState(ctx context.Context, handle string) (domain.AgentState, error) {
	r, ok := a.record(handle)
	if !ok {
		return "", fmt.Errorf("docker: unknown handle %s", handle)
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
		return "", fmt.Errorf("docker: unknown handle %s", handle)
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
		return fmt.Errorf("docker: unknown handle %s", handle)
	}
	return r.client.ResolveStop(ctx, allow)
}

func (a *Adapter) IsAlive(ctx context.Context, handle string) bool {
	r, ok := a.record(handle)
	if !ok {
		return false
	}
	info, err := a.cli.GetContainerInfo(ctx, r.containerID)
	if err != nil || info.State != "running" {
		return false
	}
	return r.client.Health(ctx)
}

func (a *Adapter) CaptureOutput(ctx context.Context, handle string) (string, error) {
	r, ok := a.record(handle)
	if !ok {
		return "", fmt.Errorf("docker: unknown handle %s", handle)
	}
	return r.client.ScreenText(ctx)
}

func (a *Adapter) FetchTranscript(ctx context.Context, handle string) ([]byte, error) {
	r, ok := a.record(handle)
	if !ok {
		return nil, fmt.Errorf("docker: unknown handle %s", handle)
	}
	return r.client.Catchup(ctx, "", 0)
}

func (a *Adapter) FetchUsage(ctx context.Context, handle string) (adapters.TokenUsage, error) {
	r, ok := a.record(handle)
	if !ok {
		return adapters.TokenUsage{}, fmt.Errorf("docker: unknown handle %s", handle)
	}
	u, err := r.client.Usage(ctx)
	if err != nil {
		return adapters.TokenUsage{}, err
	}
	return adapters.TokenUsage{InputTokens: u.InputTokens, OutputTokens: u.OutputTokens, CachedTokens: u.CachedTokens, AsOf: u.AsOf}, nil
}

func (a *Adapter) IsRemoteOnly() bool { return true }

func (a *Adapter) GetCoopHost(handle string) string {
	return "unix://" + a.socketPath(handle)
}

var _ adapters.AgentAdapter = (*Adapter)(nil)
