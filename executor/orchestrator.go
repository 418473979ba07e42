package executor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"replbox/notify"

	logrus "github.com/sirupsen/logrus"
)

// stopSlack bounds how long the daemon may take beyond the stop grace period.
const stopSlack = 5 * time.Second

// OrchestratorConfig holds worker loop settings
type OrchestratorConfig struct {
	ContainerName string
	StopTimeout   time.Duration
	// QueueSize bounds both the inbound queue and the buffer of requests held
	// while the sandbox is not ready.
	QueueSize int
}

// Orchestrator is the single entry point for user work. One worker goroutine
// provisions the sandbox and then runs requests one at a time, so at most one
// exec is ever in flight against the container.
type Orchestrator struct {
	config      OrchestratorConfig
	runtime     Runtime
	provisioner *Provisioner
	pipeline    *Pipeline
	logger      *logrus.Logger
	notifier

	requests chan WorkRequest
	// pending is only touched by the worker goroutine.
	pending []WorkRequest

	state     atomic.Int32
	mu        sync.Mutex
	container SandboxContainer
	// cancelProvision is set while a provisioning run is in progress.
	cancelProvision context.CancelFunc

	started  atomic.Bool
	done     chan struct{}
	stopped  chan struct{}
	doneOnce sync.Once
	stopOnce sync.Once
}

func NewOrchestrator(config OrchestratorConfig, runtime Runtime, provisioner *Provisioner, pipeline *Pipeline, sink notify.Sink, logger *logrus.Logger) *Orchestrator {
	return &Orchestrator{
		config:      config,
		runtime:     runtime,
		provisioner: provisioner,
		pipeline:    pipeline,
		logger:      logger,
		notifier:    notifier{sink: sink, logger: logger},
		requests:    make(chan WorkRequest, config.QueueSize),
		done:        make(chan struct{}),
		stopped:     make(chan struct{}),
	}
}

// State returns the current lifecycle state.
func (o *Orchestrator) State() State {
	return State(o.state.Load())
}

// Container returns the last observed sandbox container.
func (o *Orchestrator) Container() SandboxContainer {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.container
}

// Submit enqueues a request without blocking.
func (o *Orchestrator) Submit(req WorkRequest) error {
	select {
	case <-o.done:
		return ErrClosed
	default:
	}

	select {
	case o.requests <- req:
		return nil
	default:
		return fmt.Errorf("%w, max capacity: %d", ErrQueueFull, o.config.QueueSize)
	}
}

// Run provisions the sandbox and processes requests until ctx is cancelled or
// Shutdown is called. It must be called once.
func (o *Orchestrator) Run(ctx context.Context) error {
	if !o.started.CompareAndSwap(false, true) {
		return errors.New("orchestrator already running")
	}
	defer close(o.stopped)

	o.logger.Println("Worker loop started")
	o.provision(ctx)

	for {
		select {
		case <-ctx.Done():
			o.logger.Println("Worker loop shutting down due to cancelled context")
			return ctx.Err()
		case <-o.done:
			o.logger.Println("Worker loop received shutdown signal")
			return nil
		case req := <-o.requests:
			o.handle(ctx, req)
		}
	}
}

func (o *Orchestrator) handle(ctx context.Context, req WorkRequest) {
	if req.Kind() == RequestStart {
		o.provision(ctx)
		return
	}

	if o.State() != StateReady {
		o.hold(req)
		return
	}
	o.dispatch(ctx, req)
}

// provision runs the provisioner and, on success, drains held requests in
// arrival order.
func (o *Orchestrator) provision(ctx context.Context) {
	o.state.Store(int32(StateProvisioning))

	provisionCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	o.mu.Lock()
	o.cancelProvision = cancel
	o.mu.Unlock()

	sc, err := o.provisioner.Provision(provisionCtx)

	o.mu.Lock()
	o.cancelProvision = nil
	o.container = sc
	o.mu.Unlock()

	if err != nil {
		o.logger.WithError(err).Error("Provisioning failed, sandbox not ready")
		return
	}

	o.state.Store(int32(StateReady))
	o.logger.Printf("Sandbox %s ready", o.config.ContainerName)

	held := o.pending
	o.pending = nil
	for _, req := range held {
		o.dispatch(ctx, req)
	}
}

func (o *Orchestrator) hold(req WorkRequest) {
	if len(o.pending) >= o.config.QueueSize {
		o.logger.Warnf("Pending buffer full, dropping %s request", req.Kind())
		o.emit(notify.StatusMessage(fmt.Sprintf("%v and queue full: %s request dropped", ErrNotReady, req.Kind())).For(req.ID()))
		return
	}
	o.pending = append(o.pending, req)
	o.emit(notify.StatusMessage(fmt.Sprintf("%v: %s request queued", ErrNotReady, req.Kind())).For(req.ID()))
}

// dispatch runs one request to completion. An exec is never cancelled once
// started, so the pipeline gets a context that ignores cancellation.
func (o *Orchestrator) dispatch(ctx context.Context, req WorkRequest) {
	execCtx := context.WithoutCancel(ctx)

	id := req.ID()
	o.emit(notify.ExecutionStarted().For(id))

	var result Result
	switch req.Kind() {
	case RequestExec:
		result = o.pipeline.RunCode(execCtx, req.Payload())
	case RequestImportDependencies:
		result = o.pipeline.InstallDependencies(execCtx, req.Payload())
	default:
		result = Result{Error: fmt.Errorf("unsupported request kind: %d", req.Kind())}
	}

	fields := logrus.Fields{
		"request":  req.Kind().String(),
		"id":       id,
		"duration": result.ExecutionTime,
	}
	if result.Success {
		o.logger.WithFields(fields).Debug("Request completed")
		o.emit(notify.Output(result.Output).For(id))
	} else {
		o.logger.WithFields(fields).WithError(result.Error).Error("Request failed")
		if result.Output != "" {
			o.emit(notify.Output(result.Output).For(id))
		}
		o.emit(notify.StatusMessage(fmt.Sprintf("%s failed: %v", req.Kind(), result.Error)).For(id))
	}

	o.emit(notify.ExecutionEnded().For(id))
}

// Shutdown stops the worker loop once the in-flight request completes and
// then stops the sandbox container within the configured grace period. A
// provisioning run still in progress is cancelled, and its container is
// stopped by name. If ctx expires first the container is stopped anyway,
// which also ends a runaway exec. Only the first call stops the container.
func (o *Orchestrator) Shutdown(ctx context.Context) error {
	o.doneOnce.Do(func() { close(o.done) })
	interrupted := o.interruptProvisioning()

	if o.started.Load() {
		select {
		case <-o.stopped:
		case <-ctx.Done():
			o.logger.Warn("Worker loop did not stop before shutdown deadline, stopping container anyway")
		}
	}

	var err error
	o.stopOnce.Do(func() {
		if !o.Container().Exists && !interrupted {
			o.logger.Println("No sandbox container to stop")
			return
		}

		// the stop must still run when ctx has already expired
		stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), o.config.StopTimeout+stopSlack)
		defer cancel()

		if err = o.runtime.StopContainer(stopCtx, o.config.ContainerName, o.config.StopTimeout); err != nil {
			o.logger.WithError(err).Warn("Failed to stop sandbox container")
			return
		}

		o.mu.Lock()
		o.container.Running = false
		o.mu.Unlock()
	})
	return err
}

// interruptProvisioning cancels a provisioning run in progress and reports
// whether there was one.
func (o *Orchestrator) interruptProvisioning() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.cancelProvision == nil {
		return false
	}
	o.logger.Warn("Shutdown during provisioning, cancelling it")
	o.cancelProvision()
	return true
}
