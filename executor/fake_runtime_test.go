package executor

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"replbox/notify"
)

// fakeRuntime implements Runtime in memory and records every call.
type fakeRuntime struct {
	mu sync.Mutex

	containers []ContainerSummary
	listErr    error
	// startErrs are returned by successive StartContainer calls; once
	// exhausted StartContainer succeeds.
	startErrs     []error
	buildErr      error
	buildBody     string
	createErr     error
	createExecErr []error
	startExecErr  error
	stopErr       error
	// output maps the first command word to the chunks its exec streams.
	output map[string][]string
	// onExec runs inside CreateExec, before the exec is registered.
	onExec func(cmd []string)
	// onBuild runs inside BuildImage; a non-nil error fails the build.
	onBuild func(ctx context.Context) error

	calls        []string
	buildContext string
	buildSpec    BuildSpec
	createSpec   ContainerSpec
	execs        [][]string
	workdirs     []string
	stopTimeouts []time.Duration
	// stopCtxErrs holds ctx.Err() as seen by each StopContainer call.
	stopCtxErrs []error

	inFlight    int
	maxInFlight int
	overlapped  bool
}

func newFakeRuntime() *fakeRuntime {
	return &fakeRuntime{
		buildBody: `{"stream":"Step 1/2 : FROM node:alpine\n"}` + "\n" + `{"stream":"Successfully built abc\n"}` + "\n",
		output:    make(map[string][]string),
	}
}

func (f *fakeRuntime) record(call string) {
	f.calls = append(f.calls, call)
}

func (f *fakeRuntime) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeRuntime) StopCtxErrs() []error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]error(nil), f.stopCtxErrs...)
}

func (f *fakeRuntime) Execs() [][]string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([][]string(nil), f.execs...)
}

func (f *fakeRuntime) ListContainers(_ context.Context, name string) ([]ContainerSummary, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("list:" + name)
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.containers, nil
}

func (f *fakeRuntime) StartContainer(_ context.Context, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("start:" + name)
	if len(f.startErrs) > 0 {
		err := f.startErrs[0]
		f.startErrs = f.startErrs[1:]
		return err
	}
	return nil
}

func (f *fakeRuntime) BuildImage(ctx context.Context, spec BuildSpec, buildContext io.Reader) (io.ReadCloser, error) {
	data, err := io.ReadAll(buildContext)
	if err != nil {
		return nil, err
	}
	if f.onBuild != nil {
		if err := f.onBuild(ctx); err != nil {
			f.mu.Lock()
			f.record("build:" + spec.Tag)
			f.mu.Unlock()
			return nil, err
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("build:" + spec.Tag)
	f.buildSpec = spec
	f.buildContext = string(data)
	if f.buildErr != nil {
		return nil, f.buildErr
	}
	return io.NopCloser(strings.NewReader(f.buildBody)), nil
}

func (f *fakeRuntime) CreateContainer(_ context.Context, name string, spec ContainerSpec) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("create:" + name)
	f.createSpec = spec
	if f.createErr != nil {
		return "", f.createErr
	}
	return "0123456789abcdef0123", nil
}

func (f *fakeRuntime) CreateExec(_ context.Context, containerName string, cmd []string, workdir string) (string, error) {
	if f.onExec != nil {
		f.onExec(cmd)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("exec:" + containerName)
	if len(f.createExecErr) > 0 {
		err := f.createExecErr[0]
		f.createExecErr = f.createExecErr[1:]
		if err != nil {
			return "", err
		}
	}
	if f.inFlight > 0 {
		f.overlapped = true
	}
	f.inFlight++
	if f.inFlight > f.maxInFlight {
		f.maxInFlight = f.inFlight
	}
	f.execs = append(f.execs, cmd)
	f.workdirs = append(f.workdirs, workdir)
	return fmt.Sprintf("exec-%d", len(f.execs)), nil
}

func (f *fakeRuntime) StartExec(_ context.Context, execID string) (io.ReadCloser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("attach:" + execID)
	if f.startExecErr != nil {
		f.inFlight--
		return nil, f.startExecErr
	}
	cmd := f.execs[len(f.execs)-1]
	chunks := append([]string(nil), f.output[cmd[0]]...)
	return &chunkStream{chunks: chunks, release: f.release}, nil
}

func (f *fakeRuntime) release() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.inFlight--
}

func (f *fakeRuntime) StopContainer(ctx context.Context, name string, timeout time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("stop:" + name)
	f.stopTimeouts = append(f.stopTimeouts, timeout)
	f.stopCtxErrs = append(f.stopCtxErrs, ctx.Err())
	return f.stopErr
}

func (f *fakeRuntime) Close() error { return nil }

// chunkStream yields one chunk per Read and marks the exec finished on Close.
type chunkStream struct {
	chunks  []string
	release func()
	once    sync.Once
}

func (s *chunkStream) Read(p []byte) (int, error) {
	if len(s.chunks) == 0 {
		return 0, io.EOF
	}
	// tiny pause so an overlapping exec would be observable
	time.Sleep(time.Millisecond)
	n := copy(p, s.chunks[0])
	s.chunks[0] = s.chunks[0][n:]
	if s.chunks[0] == "" {
		s.chunks = s.chunks[1:]
	}
	return n, nil
}

func (s *chunkStream) Close() error {
	s.once.Do(s.release)
	return nil
}

// recordingSink keeps every event it receives.
type recordingSink struct {
	mu     sync.Mutex
	events []notify.Event
}

func (s *recordingSink) Notify(ev notify.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
	return nil
}

func (s *recordingSink) Events() []notify.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]notify.Event(nil), s.events...)
}

func (s *recordingSink) Statuses() []string {
	var out []string
	for _, ev := range s.Events() {
		if ev.Kind == notify.KindStatus {
			out = append(out, ev.Text)
		}
	}
	return out
}

func (s *recordingSink) Count(kind notify.Kind) int {
	n := 0
	for _, ev := range s.Events() {
		if ev.Kind == kind {
			n++
		}
	}
	return n
}
