package executor

import (
	"context"
	"fmt"
	"io"
	"os"

	"replbox/notify"

	"github.com/docker/docker/pkg/archive"
	"github.com/docker/docker/pkg/jsonmessage"
	logrus "github.com/sirupsen/logrus"
)

const (
	StatusStarting  = "starting container..."
	StatusRunning   = "container running"
	StatusBuilding  = "building image..."
	StatusCompleted = "completed setup"
)

// ProvisionerConfig names the sandbox and where its image comes from.
type ProvisionerConfig struct {
	ContainerName string
	ImageTag      string
	Dockerfile    string
	// BuildContext is a tar archive (optionally compressed) or a directory.
	BuildContext string
	MountTarget  string
}

// BuildContextOpener returns the build context stream for path.
type BuildContextOpener func(path string) (io.ReadCloser, error)

// Provisioner reconciles the runtime against one running sandbox container.
type Provisioner struct {
	runtime     Runtime
	workspace   *Workspace
	config      ProvisionerConfig
	openContext BuildContextOpener
	logger      *logrus.Logger
	notifier
}

// ProvisionerOption defines a functional option for Provisioner
type ProvisionerOption func(*Provisioner)

// WithBuildContextOpener replaces how the build context is read
func WithBuildContextOpener(open BuildContextOpener) ProvisionerOption {
	return func(p *Provisioner) {
		p.openContext = open
	}
}

func NewProvisioner(runtime Runtime, workspace *Workspace, sink notify.Sink, config ProvisionerConfig, logger *logrus.Logger, opts ...ProvisionerOption) *Provisioner {
	p := &Provisioner{
		runtime:     runtime,
		workspace:   workspace,
		config:      config,
		openContext: OpenBuildContext,
		logger:      logger,
		notifier:    notifier{sink: sink, logger: logger},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Provision starts the existing sandbox container or builds and creates a new
// one, then publishes the manifest already present in the workspace.
func (p *Provisioner) Provision(ctx context.Context) (SandboxContainer, error) {
	name := p.config.ContainerName
	p.logger.Printf("Provisioning sandbox container %s", name)

	containers, err := p.runtime.ListContainers(ctx, name)
	if err != nil {
		p.status(fmt.Sprintf("failed to reach container runtime: %v", err))
		return SandboxContainer{}, err
	}

	var sc SandboxContainer
	fresh := len(containers) == 0
	if fresh {
		sc, err = p.create(ctx)
	} else {
		sc, err = p.start(ctx, containers[0])
	}
	if err != nil {
		return sc, err
	}

	p.loadImports(fresh)
	return sc, nil
}

func (p *Provisioner) start(ctx context.Context, existing ContainerSummary) (SandboxContainer, error) {
	p.logger.Printf("Found existing sandbox container: %s (state: %s)", shortID(existing.ID), existing.State)
	sc := SandboxContainer{
		Name:    p.config.ContainerName,
		ID:      existing.ID,
		Image:   existing.Image,
		Exists:  true,
		Running: existing.Running(),
		Mounts:  existing.Mounts,
	}

	p.status(StatusStarting)
	if err := p.runtime.StartContainer(ctx, p.config.ContainerName); err != nil {
		p.status(fmt.Sprintf("failed to start container: %v", err))
		return sc, err
	}

	sc.Running = true
	p.status(StatusRunning)
	return sc, nil
}

func (p *Provisioner) create(ctx context.Context) (SandboxContainer, error) {
	sc := SandboxContainer{Name: p.config.ContainerName, Image: p.config.ImageTag}

	p.status(StatusBuilding)
	if err := p.workspace.Ensure(); err != nil {
		p.status(fmt.Sprintf("setup failed: %v", err))
		return sc, err
	}

	if err := p.buildImage(ctx); err != nil {
		p.status(fmt.Sprintf("failed to build image: %v", err))
		return sc, err
	}

	spec := ContainerSpec{
		Image:       p.config.ImageTag,
		HostDir:     p.workspace.Dir(),
		MountTarget: p.config.MountTarget,
	}
	id, err := p.runtime.CreateContainer(ctx, p.config.ContainerName, spec)
	if err != nil {
		p.status(fmt.Sprintf("failed to create container: %v", err))
		return sc, err
	}
	sc.ID = id
	sc.Exists = true
	sc.Mounts = map[string]string{spec.HostDir: spec.MountTarget}

	if err := p.runtime.StartContainer(ctx, p.config.ContainerName); err != nil {
		p.status(fmt.Sprintf("failed to start container: %v", err))
		return sc, err
	}

	sc.Running = true
	p.status(StatusCompleted)
	return sc, nil
}

func (p *Provisioner) buildImage(ctx context.Context) error {
	buildContext, err := p.openContext(p.config.BuildContext)
	if err != nil {
		return fmt.Errorf("%w: open build context %s: %w", ErrFilesystem, p.config.BuildContext, err)
	}
	defer buildContext.Close()

	body, err := p.runtime.BuildImage(ctx, BuildSpec{
		Dockerfile: p.config.Dockerfile,
		Tag:        p.config.ImageTag,
	}, buildContext)
	if err != nil {
		return err
	}
	defer body.Close()

	out := p.logger.Writer()
	defer out.Close()

	if err := jsonmessage.DisplayJSONMessagesStream(body, out, 0, false, nil); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrBuildFailed, p.config.ImageTag, err)
	}
	p.logger.Printf("Built image %s", p.config.ImageTag)
	return nil
}

// loadImports publishes the workspace manifest. A missing manifest is only
// expected for a freshly created container.
func (p *Provisioner) loadImports(fresh bool) {
	if fresh {
		if has, err := p.workspace.HasManifest(); err == nil && !has {
			return
		}
	}

	manifest, err := p.workspace.ReadManifest()
	if err != nil {
		p.logger.WithError(err).Warn("Manifest unreadable")
		p.status(fmt.Sprintf("unable to read %s: %v", ManifestFileName, err))
		return
	}
	p.emit(notify.ImportsLoaded(manifest))
}

// OpenBuildContext opens a build context archive, or tars path when it is a directory.
func OpenBuildContext(path string) (io.ReadCloser, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if info.IsDir() {
		return archive.TarWithOptions(path, &archive.TarOptions{})
	}
	return os.Open(path)
}
