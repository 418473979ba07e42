package executor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/api/types/mount"
	"github.com/docker/docker/client"
	"github.com/docker/docker/errdefs"
	"github.com/docker/docker/pkg/stdcopy"
	logrus "github.com/sirupsen/logrus"
)

// DockerRuntime implements Runtime on top of the Docker Engine API.
type DockerRuntime struct {
	dockerClient *client.Client
	logger       *logrus.Logger
}

// NewDockerRuntime creates a Docker client configured from the environment
// (DOCKER_HOST and friends).
func NewDockerRuntime(logger *logrus.Logger) (*DockerRuntime, error) {
	dockerClient, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("failed to create Docker client: %w", err)
	}

	return &DockerRuntime{
		dockerClient: dockerClient,
		logger:       logger,
	}, nil
}

// Ping checks that the daemon answers.
func (d *DockerRuntime) Ping(ctx context.Context) error {
	_, err := d.dockerClient.Ping(ctx)
	return classify("ping", err)
}

func (d *DockerRuntime) ListContainers(ctx context.Context, name string) ([]ContainerSummary, error) {
	containers, err := d.dockerClient.ContainerList(ctx, container.ListOptions{
		All:     true,
		Filters: filters.NewArgs(filters.Arg("name", name)),
	})
	if err != nil {
		d.logger.Errorf("failed to list containers: %v", err)
		return nil, classify("list containers", err)
	}

	var out []ContainerSummary
	for _, c := range containers {
		if !hasName(c.Names, name) {
			continue
		}
		mounts := make(map[string]string, len(c.Mounts))
		for _, m := range c.Mounts {
			mounts[m.Source] = m.Destination
		}
		out = append(out, ContainerSummary{
			ID:     c.ID,
			Name:   name,
			Image:  c.Image,
			State:  c.State,
			Mounts: mounts,
		})
	}
	return out, nil
}

func (d *DockerRuntime) StartContainer(ctx context.Context, name string) error {
	if err := d.dockerClient.ContainerStart(ctx, name, container.StartOptions{}); err != nil {
		d.logger.Errorf("failed to start container %s: %v", name, err)
		return classify("start container", err)
	}
	d.logger.Printf("Started container: %s", name)
	return nil
}

func (d *DockerRuntime) BuildImage(ctx context.Context, spec BuildSpec, buildContext io.Reader) (io.ReadCloser, error) {
	resp, err := d.dockerClient.ImageBuild(ctx, buildContext, types.ImageBuildOptions{
		Dockerfile: spec.Dockerfile,
		Tags:       []string{spec.Tag},
		PullParent: true,
		Remove:     true,
	})
	if err != nil {
		d.logger.Errorf("failed to build image %s: %v", spec.Tag, err)
		return nil, classify("build image", err)
	}
	return resp.Body, nil
}

func (d *DockerRuntime) CreateContainer(ctx context.Context, name string, spec ContainerSpec) (string, error) {
	config := &container.Config{
		Image:        spec.Image,
		Tty:          true,
		OpenStdin:    true,
		AttachStdin:  true,
		AttachStdout: true,
		AttachStderr: true,
	}
	hostConfig := &container.HostConfig{
		Mounts: []mount.Mount{
			{
				Type:        mount.TypeBind,
				Source:      spec.HostDir,
				Target:      spec.MountTarget,
				Consistency: mount.ConsistencyDefault,
			},
		},
	}

	resp, err := d.dockerClient.ContainerCreate(ctx, config, hostConfig, nil, nil, name)
	if err != nil {
		d.logger.Errorf("failed to create container %s: %v", name, err)
		return "", classify("create container", err)
	}
	d.logger.Printf("Created container %s: %s", name, shortID(resp.ID))
	return resp.ID, nil
}

func (d *DockerRuntime) CreateExec(ctx context.Context, containerName string, cmd []string, workdir string) (string, error) {
	resp, err := d.dockerClient.ContainerExecCreate(ctx, containerName, container.ExecOptions{
		Cmd:          cmd,
		AttachStdout: true,
		AttachStderr: true,
		WorkingDir:   workdir,
	})
	if err != nil {
		d.logger.WithFields(logrus.Fields{
			"container": containerName,
			"cmd":       strings.Join(cmd, " "),
			"error":     err,
		}).Error("Exec create failed")
		return "", classify("create exec", err)
	}
	return resp.ID, nil
}

func (d *DockerRuntime) StartExec(ctx context.Context, execID string) (io.ReadCloser, error) {
	hijacked, err := d.dockerClient.ContainerExecAttach(ctx, execID, container.ExecAttachOptions{})
	if err != nil {
		d.logger.Errorf("failed to start exec %s: %v", shortID(execID), err)
		return nil, classify("start exec", err)
	}
	return newExecStream(hijacked.Reader, hijacked.Close), nil
}

func (d *DockerRuntime) StopContainer(ctx context.Context, name string, timeout time.Duration) error {
	secs := int(timeout / time.Second)
	if err := d.dockerClient.ContainerStop(ctx, name, container.StopOptions{Timeout: &secs}); err != nil {
		if errdefs.IsNotFound(err) {
			d.logger.Printf("Container %s does not exist, nothing to stop", name)
			return nil
		}
		d.logger.Errorf("failed to stop container %s: %v", name, err)
		return classify("stop container", err)
	}
	d.logger.Printf("Stopped container: %s", name)
	return nil
}

func (d *DockerRuntime) Close() error {
	return d.dockerClient.Close()
}

// execStream demultiplexes an attached exec stream into one ordered byte stream.
type execStream struct {
	*io.PipeReader
	closeConn func()
}

func newExecStream(src io.Reader, closeConn func()) *execStream {
	pr, pw := io.Pipe()
	go func() {
		_, err := stdcopy.StdCopy(pw, pw, src)
		pw.CloseWithError(err)
	}()
	return &execStream{PipeReader: pr, closeConn: closeConn}
}

func (s *execStream) Close() error {
	s.closeConn()
	return s.PipeReader.Close()
}

// classify maps a Docker client error onto the runtime error taxonomy.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	if client.IsErrConnectionFailed(err) || errdefs.IsUnavailable(err) ||
		errdefs.IsDeadline(err) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s: %w: %w", op, ErrRuntimeUnreachable, err)
	}
	return fmt.Errorf("%s: %w: %w", op, ErrRuntimeRejected, err)
}

// hasName matches the exact container name; the daemon reports names with a
// leading slash and its name filter also matches substrings.
func hasName(names []string, name string) bool {
	for _, n := range names {
		if strings.TrimPrefix(n, "/") == name {
			return true
		}
	}
	return false
}
