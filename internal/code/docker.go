package code

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"
	"go.uber.org/zap"
)

// ContainerAPI is the subset of the Docker client used by DockerProvider.
// *client.Client satisfies it.
type ContainerAPI interface {
	ImagePull(ctx context.Context, refStr string, options image.PullOptions) (io.ReadCloser, error)
	ContainerCreate(ctx context.Context, config *container.Config, hostConfig *container.HostConfig, networkingConfig *network.NetworkingConfig, platform *ocispec.Platform, containerName string) (container.CreateResponse, error)
	ContainerStart(ctx context.Context, containerID string, options container.StartOptions) error
	ContainerWait(ctx context.Context, containerID string, condition container.WaitCondition) (<-chan container.WaitResponse, <-chan error)
	ContainerLogs(ctx context.Context, containerID string, options container.LogsOptions) (io.ReadCloser, error)
	ContainerRemove(ctx context.Context, containerID string, options container.RemoveOptions) error
}

var _ ContainerAPI = (*client.Client)(nil)

// DockerConfig sets per-run container limits.
type DockerConfig struct {
	MemoryBytes int64 // default 512MB
	NanoCPUs    int64 // default one CPU
	PidsLimit   int64 // default 64
}

// DockerProvider runs each program in a fresh container with networking
// disabled. The source and stdin are passed through the environment so no
// files are shared with the host.
type DockerProvider struct {
	api    ContainerAPI
	cfg    DockerConfig
	log    *zap.Logger
	pulled sync.Map // image ref -> struct{}
}

var _ Provider = (*DockerProvider)(nil)

// NewDockerClient connects to the daemon configured in the environment.
func NewDockerClient(ctx context.Context) (*client.Client, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("create docker client: %w", err)
	}
	if _, err := cli.Ping(ctx); err != nil {
		cli.Close()
		return nil, fmt.Errorf("connect to docker daemon: %w", err)
	}
	return cli, nil
}

func NewDockerProvider(api ContainerAPI, cfg DockerConfig, log *zap.Logger) *DockerProvider {
	if cfg.MemoryBytes == 0 {
		cfg.MemoryBytes = 512 * 1024 * 1024
	}
	if cfg.NanoCPUs == 0 {
		cfg.NanoCPUs = 1_000_000_000
	}
	if cfg.PidsLimit == 0 {
		cfg.PidsLimit = 64
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &DockerProvider{api: api, cfg: cfg, log: log}
}

// runScripts read $SOURCE and $STDIN inside the container.
var runScripts = map[string]string{
	"python":     `printf '%s' "$SOURCE" > /tmp/main.py && printf '%s' "$STDIN" | python /tmp/main.py`,
	"javascript": `printf '%s' "$SOURCE" > /tmp/main.js && printf '%s' "$STDIN" | node /tmp/main.js`,
	"cpp":        `printf '%s' "$SOURCE" > /tmp/main.cpp && g++ /tmp/main.cpp -o /tmp/main && printf '%s' "$STDIN" | /tmp/main`,
}

func (p *DockerProvider) Execute(ctx context.Context, req Request) (*Submission, error) {
	lang, err := LookupLanguage(req.Language)
	if err != nil {
		return nil, err
	}
	if err := p.ensureImage(ctx, lang.Image); err != nil {
		return nil, err
	}

	pids := p.cfg.PidsLimit
	resp, err := p.api.ContainerCreate(ctx, &container.Config{
		Image:           lang.Image,
		Cmd:             []string{"sh", "-c", runScripts[lang.Name]},
		Env:             []string{"SOURCE=" + req.SourceCode, "STDIN=" + req.Stdin},
		WorkingDir:      "/tmp",
		NetworkDisabled: true,
	}, &container.HostConfig{
		NetworkMode: "none",
		Resources: container.Resources{
			Memory:    p.cfg.MemoryBytes,
			NanoCPUs:  p.cfg.NanoCPUs,
			PidsLimit: &pids,
		},
	}, nil, nil, "")
	if err != nil {
		return nil, fmt.Errorf("create container: %w", err)
	}
	defer func() {
		// ctx may already be done; removal must still happen.
		rmCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := p.api.ContainerRemove(rmCtx, resp.ID, container.RemoveOptions{Force: true}); err != nil {
			p.log.Warn("remove container failed", zap.String("container_id", resp.ID), zap.Error(err))
		}
	}()

	start := time.Now()
	if err := p.api.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		return nil, fmt.Errorf("start container: %w", err)
	}

	var exitCode int64
	statusCh, errCh := p.api.ContainerWait(ctx, resp.ID, container.WaitConditionNotRunning)
	select {
	case err := <-errCh:
		if err != nil {
			return nil, fmt.Errorf("wait for container: %w", err)
		}
	case status := <-statusCh:
		exitCode = status.StatusCode
	case <-ctx.Done():
		return nil, fmt.Errorf("wait for container: %w", ctx.Err())
	}
	elapsed := time.Since(start)

	logs, err := p.api.ContainerLogs(ctx, resp.ID, container.LogsOptions{ShowStdout: true, ShowStderr: true})
	if err != nil {
		return nil, fmt.Errorf("read container logs: %w", err)
	}
	defer logs.Close()

	// both streams share one buffer so the output keeps the order it was written in
	var output bytes.Buffer
	if _, err := stdcopy.StdCopy(&output, &output, logs); err != nil {
		return nil, fmt.Errorf("demultiplex container logs: %w", err)
	}

	sub := &Submission{
		Token:  resp.ID,
		Stdout: output.String(),
		Status: StatusAccepted,
		Time:   fmt.Sprintf("%.3f", elapsed.Seconds()),
	}
	if exitCode != 0 {
		sub.Status = StatusRuntimeError
	}
	p.log.Debug("container finished",
		zap.String("container_id", resp.ID),
		zap.String("language", lang.Name),
		zap.Int64("exit_code", exitCode),
		zap.Duration("elapsed", elapsed),
	)
	return sub, nil
}

func (p *DockerProvider) ensureImage(ctx context.Context, ref string) error {
	if _, ok := p.pulled.Load(ref); ok {
		return nil
	}
	p.log.Info("pulling image", zap.String("image", ref))
	reader, err := p.api.ImagePull(ctx, ref, image.PullOptions{})
	if err != nil {
		return fmt.Errorf("pull image %s: %w", ref, err)
	}
	defer reader.Close()
	// the pull is only complete once the progress stream is drained
	if _, err := io.Copy(io.Discard, reader); err != nil {
		return fmt.Errorf("pull image %s: %w", ref, err)
	}
	p.pulled.Store(ref, struct{}{})
	return nil
}
