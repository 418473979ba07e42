package executor

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	logrus "github.com/sirupsen/logrus"
)

// DefaultInstallCommand installs the manifest's dependencies inside the sandbox.
var DefaultInstallCommand = []string{"npm", "install"}

// Pipeline writes work into the workspace and runs it inside the sandbox
// container. It is not safe for concurrent use: callers must serialize calls
// so that a write and its exec never interleave with another request.
type Pipeline struct {
	runtime       Runtime
	workspace     *Workspace
	containerName string
	mountTarget   string
	installCmd    []string
	logger        *logrus.Logger
}

func NewPipeline(runtime Runtime, workspace *Workspace, containerName, mountTarget string, logger *logrus.Logger) *Pipeline {
	return &Pipeline{
		runtime:       runtime,
		workspace:     workspace,
		containerName: containerName,
		mountTarget:   mountTarget,
		installCmd:    DefaultInstallCommand,
		logger:        logger,
	}
}

// RunArgs returns the command line that runs the code file.
func (p *Pipeline) RunArgs() []string {
	return []string{"node", path.Join(p.mountTarget, CodeFileName)}
}

// RunCode trims code, stores it as the workspace code file and runs it.
func (p *Pipeline) RunCode(ctx context.Context, code string) Result {
	if err := p.workspace.WriteCode(strings.TrimSpace(code)); err != nil {
		return Result{Error: err}
	}
	return p.exec(ctx, p.RunArgs(), "")
}

// InstallDependencies stores manifest verbatim and runs the package install.
func (p *Pipeline) InstallDependencies(ctx context.Context, manifest string) Result {
	if err := p.workspace.WriteManifest(manifest); err != nil {
		return Result{Error: err}
	}
	return p.exec(ctx, p.installCmd, p.mountTarget)
}

// exec runs cmd and reads its output stream to completion.
func (p *Pipeline) exec(ctx context.Context, cmd []string, workdir string) Result {
	start := time.Now()

	execID, err := p.runtime.CreateExec(ctx, p.containerName, cmd, workdir)
	if err != nil {
		return Result{Error: err, ExecutionTime: time.Since(start)}
	}

	stream, err := p.runtime.StartExec(ctx, execID)
	if err != nil {
		return Result{Error: err, ExecutionTime: time.Since(start)}
	}
	defer stream.Close()

	var output strings.Builder
	_, err = io.Copy(&output, stream)
	duration := time.Since(start)

	fields := logrus.Fields{
		"container": p.containerName,
		"cmd":       strings.Join(cmd, " "),
		"duration":  duration,
	}
	if err != nil {
		p.logger.WithFields(fields).WithError(err).Error("Reading exec output failed")
		return Result{
			Output:        output.String(),
			Error:         fmt.Errorf("read exec output: %w", err),
			ExecutionTime: duration,
		}
	}

	p.logger.WithFields(fields).Debug("Execution completed")
	return Result{
		Output:        output.String(),
		Success:       true,
		ExecutionTime: duration,
	}
}
