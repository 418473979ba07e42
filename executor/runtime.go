package executor

import (
	"context"
	"io"
	"time"
)

// Runtime is the container runtime control API the orchestrator depends on.
// Every method is a single round trip to the daemon and may fail with an error
// wrapping ErrRuntimeUnreachable or ErrRuntimeRejected.
type Runtime interface {
	// ListContainers returns containers, running or stopped, whose name is exactly name.
	ListContainers(ctx context.Context, name string) ([]ContainerSummary, error)
	StartContainer(ctx context.Context, name string) error
	// BuildImage submits buildContext and returns the build's JSON message stream.
	// The caller must drain and close it.
	BuildImage(ctx context.Context, spec BuildSpec, buildContext io.Reader) (io.ReadCloser, error)
	CreateContainer(ctx context.Context, name string, spec ContainerSpec) (string, error)
	CreateExec(ctx context.Context, containerName string, cmd []string, workdir string) (string, error)
	// StartExec attaches to the exec and returns its combined stdout and stderr.
	StartExec(ctx context.Context, execID string) (io.ReadCloser, error)
	StopContainer(ctx context.Context, name string, timeout time.Duration) error
	Close() error
}

// ContainerSummary describes a container as listed by the runtime.
type ContainerSummary struct {
	ID     string
	Name   string
	Image  string
	State  string
	Mounts map[string]string
}

// Running reports whether the runtime listed the container as running.
func (c ContainerSummary) Running() bool {
	return c.State == "running"
}

// BuildSpec holds image build parameters.
type BuildSpec struct {
	Dockerfile string
	Tag        string
}

// ContainerSpec holds the configuration of the sandbox container.
type ContainerSpec struct {
	Image string
	// HostDir is bind mounted read/write at MountTarget.
	HostDir     string
	MountTarget string
}
