package main

import (
	"context"
	"errors"

	"replbox/config"
	"replbox/executor"
	"replbox/logger"
	"replbox/natshandler"
	"replbox/notify"
	"replbox/service"

	"github.com/nats-io/nats.go"
	"github.com/sirupsen/logrus"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
)

func main() {
	app := fx.New(
		fx.Provide(
			newConfig,
			newLogger,
			newContainerLog,
			newSubjects,

			// Sandbox
			newDockerRuntime,
			func(d *executor.DockerRuntime) executor.Runtime { return d },
			newWorkspace,
			newSink,
			newProvisioner,
			newPipeline,
			newOrchestrator,

			// Transport
			newNATSConn,
			func(o *executor.Orchestrator) service.Submitter { return o },
			service.NewSandboxService,
			func(s *service.SandboxService) natshandler.Service { return s },
			natshandler.NewHandler,
		),

		fx.Invoke(run),

		fx.WithLogger(func(log *zap.Logger) fxevent.Logger {
			return &fxevent.ZapLogger{Logger: log}
		}),
	)

	app.Run()
}

func newConfig() (config.Config, error) {
	cfg := config.LoadConfig()
	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

func newLogger(lc fx.Lifecycle, cfg config.Config) (*zap.Logger, error) {
	log, err := logger.New(cfg.Environment)
	if err != nil {
		return nil, err
	}
	lc.Append(fx.StopHook(func() {
		_ = log.Sync()
	}))
	return log, nil
}

func newContainerLog(cfg config.Config) (*logrus.Logger, error) {
	return logger.NewContainerLog(cfg.ContainerLog, cfg.Environment == "development")
}

func newSubjects(cfg config.Config) natshandler.Subjects {
	return natshandler.NewSubjects(cfg.SubjectPrefix)
}

func newDockerRuntime(lc fx.Lifecycle, containerLog *logrus.Logger) (*executor.DockerRuntime, error) {
	rt, err := executor.NewDockerRuntime(containerLog)
	if err != nil {
		return nil, err
	}
	lc.Append(fx.StopHook(rt.Close))
	return rt, nil
}

func newWorkspace(cfg config.Config) *executor.Workspace {
	return executor.NewWorkspace(cfg.HostWorkDir, nil)
}

// newSink publishes events on NATS and mirrors them into the application log.
func newSink(nc *nats.Conn, subjects natshandler.Subjects, log *zap.Logger) notify.Sink {
	return notify.Multi{
		natshandler.NewNATSSink(nc, subjects.Events),
		notify.SinkFunc(func(ev notify.Event) error {
			log.Debug("Sandbox event", zap.String("kind", string(ev.Kind)), zap.String("text", ev.Text))
			return nil
		}),
	}
}

func newProvisioner(rt executor.Runtime, ws *executor.Workspace, sink notify.Sink, cfg config.Config, containerLog *logrus.Logger) *executor.Provisioner {
	return executor.NewProvisioner(rt, ws, sink, executor.ProvisionerConfig{
		ContainerName: cfg.ContainerName,
		ImageTag:      cfg.ImageTag,
		Dockerfile:    cfg.Dockerfile,
		BuildContext:  cfg.BuildContext,
		MountTarget:   cfg.MountTarget,
	}, containerLog)
}

func newPipeline(rt executor.Runtime, ws *executor.Workspace, cfg config.Config, containerLog *logrus.Logger) *executor.Pipeline {
	return executor.NewPipeline(rt, ws, cfg.ContainerName, cfg.MountTarget, containerLog)
}

func newOrchestrator(cfg config.Config, rt executor.Runtime, p *executor.Provisioner, pl *executor.Pipeline, sink notify.Sink, containerLog *logrus.Logger) *executor.Orchestrator {
	return executor.NewOrchestrator(executor.OrchestratorConfig{
		ContainerName: cfg.ContainerName,
		StopTimeout:   cfg.StopGrace(),
		QueueSize:     cfg.QueueSize,
	}, rt, p, pl, sink, containerLog)
}

func newNATSConn(lc fx.Lifecycle, cfg config.Config, log *zap.Logger) (*nats.Conn, error) {
	nc, err := nats.Connect(cfg.NatsURL, nats.Name("replbox"))
	if err != nil {
		log.Error("Failed to connect to NATS",
			zap.String("url", cfg.NatsURL),
			zap.Error(err))
		return nil, err
	}
	log.Info("Connected to NATS", zap.String("url", nc.ConnectedUrl()))

	lc.Append(fx.StopHook(func() error {
		return nc.Drain()
	}))
	return nc, nil
}

// run starts the worker loop before accepting requests, and on stop shuts
// the loop down and stops the sandbox container.
func run(lc fx.Lifecycle, cfg config.Config, rt *executor.DockerRuntime, orch *executor.Orchestrator,
	handler *natshandler.Handler, nc *nats.Conn, subjects natshandler.Subjects, log *zap.Logger) {
	runCtx, cancel := context.WithCancel(context.Background())
	var subs []*nats.Subscription

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if err := rt.Ping(ctx); err != nil {
				log.Warn("Docker daemon not reachable yet", zap.Error(err))
			}

			go func() {
				if err := orch.Run(runCtx); err != nil && !errors.Is(err, context.Canceled) {
					log.Error("Worker loop stopped", zap.Error(err))
				}
			}()

			var err error
			subs, err = handler.Subscribe(nc, subjects)
			if err != nil {
				cancel()
				return err
			}
			log.Info("Sandbox orchestrator started",
				zap.String("container", cfg.ContainerName),
				zap.String("workdir", cfg.HostWorkDir))
			return nil
		},
		OnStop: func(ctx context.Context) error {
			for _, sub := range subs {
				_ = sub.Unsubscribe()
			}

			if err := orch.Shutdown(ctx); err != nil {
				log.Error("Failed to stop sandbox container",
					zap.String("container", cfg.ContainerName),
					zap.Error(err))
			}
			cancel()
			return nil
		},
	})
}
