// Package docker spawns agent sidecars as Docker containers, grounded
// on the teacher's internal/agent/docker/client.go Docker SDK wrapper.
// The container lifecycle methods below (pull/create/start/stop/
// remove/kill/inspect/list) are kept close to the teacher's shapes;
// Adapter (adapter.go) wraps them behind adapters.AgentAdapter.
//
// One deliberate divergence: the teacher's CreateContainerInteractive/
// AttachContainer/demultiplexStream pair exists to pipe JSON-RPC over a
// docker-attach stream. This daemon instead bind-mounts the per-agent
// coop.sock directory into the container and talks to the sidecar over
// that socket with coopclient/Bridge exactly as localproc does, so the
// attach/demultiplex machinery has no caller here.
package docker

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/mount"
	"github.com/docker/docker/client"
	"go.uber.org/zap"

	"github.com/oddjobs/oj/internal/config"
	"github.com/oddjobs/oj/internal/logger"
)

// ContainerConfig holds configuration for creating a container.
type ContainerConfig struct {
	Name        string
	Image       string
	Cmd         []string
	Env         []string
	WorkingDir  string
	Mounts      []MountConfig
	NetworkMode string
	Memory      int64
	CPUQuota    int64
	Labels      map[string]string
	AutoRemove  bool
}

// MountConfig holds bind-mount configuration.
type MountConfig struct {
	Source   string
	Target   string
	ReadOnly bool
}

// ContainerInfo holds information about a container.
type ContainerInfo struct {
	ID         string
	Name       string
	Image      string
	State      string
	Status     string
	StartedAt  time.Time
	FinishedAt time.Time
	ExitCode   int
	Health     string
}

// Client wraps the Docker SDK client.
type Client struct {
	cli    *client.Client
	logger *logger.Logger
	config config.DockerConfig
}

// NewClient creates a new Docker client.
func NewClient(cfg config.DockerConfig, log *logger.Logger) (*Client, error) {
	opts := []client.Opt{client.WithAPIVersionNegotiation()}
	if cfg.Host != "" {
		opts = append(opts, client.WithHost(cfg.Host))
	}
	if cfg.APIVersion != "" {
		opts = append(opts, client.WithVersion(cfg.APIVersion))
	}

	cli, err := client.NewClientWithOpts(opts...)
	if err != nil {
		return nil, fmt.Errorf("docker: create client: %w", err)
	}

	log.Info("docker client created", zap.String("host", cfg.Host), zap.String("api_version", cfg.APIVersion))
	return &Client{cli: cli, logger: log, config: cfg}, nil
}

func (c *Client) Close() error {
	return c.cli.Close()
}

func (c *Client) PullImage(ctx context.Context, imageName string) error {
	c.logger.Info("pulling image", zap.String("image", imageName))
	reader, err := c.cli.ImagePull(ctx, imageName, image.PullOptions{})
	if err != nil {
		return fmt.Errorf("docker: pull image %s: %w", imageName, err)
	}
	defer reader.Close()
	if _, err := io.Copy(io.Discard, reader); err != nil {
		return fmt.Errorf("docker: read pull output for %s: %w", imageName, err)
	}
	return nil
}

func (c *Client) CreateContainer(ctx context.Context, cfg ContainerConfig) (string, error) {
	mounts := make([]mount.Mount, 0, len(cfg.Mounts))
	for _, m := range cfg.Mounts {
		mounts = append(mounts, mount.Mount{Type: mount.TypeBind, Source: m.Source, Target: m.Target, ReadOnly: m.ReadOnly})
	}

	containerCfg := &container.Config{
		Image:      cfg.Image,
		Cmd:        cfg.Cmd,
		Env:        cfg.Env,
		WorkingDir: cfg.WorkingDir,
		Labels:     cfg.Labels,
	}
	hostCfg := &container.HostConfig{
		Mounts:      mounts,
		NetworkMode: container.NetworkMode(cfg.NetworkMode),
		AutoRemove:  cfg.AutoRemove,
		Resources:   container.Resources{Memory: cfg.Memory, CPUQuota: cfg.CPUQuota},
	}

	resp, err := c.cli.ContainerCreate(ctx, containerCfg, hostCfg, nil, nil, cfg.Name)
	if err != nil {
		return "", fmt.Errorf("docker: create container %s: %w", cfg.Name, err)
	}
	return resp.ID, nil
}

func (c *Client) StartContainer(ctx context.Context, containerID string) error {
	if err := c.cli.ContainerStart(ctx, containerID, container.StartOptions{}); err != nil {
		return fmt.Errorf("docker: start container %s: %w", containerID, err)
	}
	return nil
}

func (c *Client) StopContainer(ctx context.Context, containerID string, timeout time.Duration) error {
	seconds := int(timeout.Seconds())
	if err := c.cli.ContainerStop(ctx, containerID, container.StopOptions{Timeout: &seconds}); err != nil {
		return fmt.Errorf("docker: stop container %s: %w", containerID, err)
	}
	return nil
}

func (c *Client) RemoveContainer(ctx context.Context, containerID string, force bool) error {
	err := c.cli.ContainerRemove(ctx, containerID, container.RemoveOptions{Force: force, RemoveVolumes: true})
	if err != nil {
		return fmt.Errorf("docker: remove container %s: %w", containerID, err)
	}
	return nil
}

func (c *Client) KillContainer(ctx context.Context, containerID string, signal string) error {
	if err := c.cli.ContainerKill(ctx, containerID, signal); err != nil {
		return fmt.Errorf("docker: kill container %s: %w", containerID, err)
	}
	return nil
}

func (c *Client) GetContainerInfo(ctx context.Context, containerID string) (*ContainerInfo, error) {
	inspect, err := c.cli.ContainerInspect(ctx, containerID)
	if err != nil {
		return nil, fmt.Errorf("docker: inspect container %s: %w", containerID, err)
	}
	info := &ContainerInfo{
		ID:       inspect.ID,
		Name:     inspect.Name,
		Image:    inspect.Config.Image,
		State:    inspect.State.Status,
		Status:   inspect.State.Status,
		ExitCode: inspect.State.ExitCode,
	}
	if inspect.State.StartedAt != "" {
		if t, err := time.Parse(time.RFC3339Nano, inspect.State.StartedAt); err == nil {
			info.StartedAt = t
		}
	}
	if inspect.State.FinishedAt != "" {
		if t, err := time.Parse(time.RFC3339Nano, inspect.State.FinishedAt); err == nil {
			info.FinishedAt = t
		}
	}
	if inspect.State.Health != nil {
		info.Health = inspect.State.Health.Status
	}
	return info, nil
}

func (c *Client) GetContainerLogs(ctx context.Context, containerID string, follow bool, tail string) (io.ReadCloser, error) {
	opts := container.LogsOptions{ShowStdout: true, ShowStderr: true, Follow: follow, Tail: tail}
	reader, err := c.cli.ContainerLogs(ctx, containerID, opts)
	if err != nil {
		return nil, fmt.Errorf("docker: logs for %s: %w", containerID, err)
	}
	return reader, nil
}

func (c *Client) WaitContainer(ctx context.Context, containerID string) (int64, error) {
	statusCh, errCh := c.cli.ContainerWait(ctx, containerID, container.WaitConditionNotRunning)
	select {
	case err := <-errCh:
		if err != nil {
			return -1, fmt.Errorf("docker: wait container %s: %w", containerID, err)
		}
	case status := <-statusCh:
		return status.StatusCode, nil
	case <-ctx.Done():
		return -1, ctx.Err()
	}
	return -1, nil
}

func (c *Client) ListContainers(ctx context.Context, labels map[string]string) ([]ContainerInfo, error) {
	filterArgs := filters.NewArgs()
	for k, v := range labels {
		filterArgs.Add("label", fmt.Sprintf("%s=%s", k, v))
	}
	containers, err := c.cli.ContainerList(ctx, container.ListOptions{All: true, Filters: filterArgs})
	if err != nil {
		return nil, fmt.Errorf("docker: list containers: %w", err)
	}
	infos := make([]ContainerInfo, 0, len(containers))
	for _, ctr := range containers {
		name := ""
		if len(ctr.Names) > 0 {
			name = ctr.Names[0]
			if len(name) > 0 && name[0] == '/' {
				name = name[1:]
			}
		}
		infos = append(infos, ContainerInfo{ID: ctr.ID, Name: name, Image: ctr.Image, State: ctr.State, Status: ctr.Status})
	}
	return infos, nil
}

func (c *Client) Ping(ctx context.Context) error {
	if _, err := c.cli.Ping(ctx); err != nil {
		return fmt.Errorf("docker: ping: %w", err)
	}
	return nil
}
