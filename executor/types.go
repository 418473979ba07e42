package executor

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrRuntimeUnreachable = errors.New("container runtime unreachable")
	ErrRuntimeRejected    = errors.New("container runtime rejected request")
	ErrBuildFailed        = errors.New("image build failed")
	ErrFilesystem         = errors.New("filesystem error")
	ErrNotReady           = errors.New("sandbox not ready")
	ErrQueueFull          = errors.New("request queue full")
	ErrClosed             = errors.New("orchestrator closed")
)

// State is the orchestrator lifecycle state.
type State int32

const (
	StateUninitialized State = iota
	StateProvisioning
	StateReady
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateProvisioning:
		return "provisioning"
	case StateReady:
		return "ready"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// RequestKind tags a WorkRequest.
type RequestKind int

const (
	RequestExec RequestKind = iota + 1
	RequestImportDependencies
	RequestStart
)

func (k RequestKind) String() string {
	switch k {
	case RequestExec:
		return "exec"
	case RequestImportDependencies:
		return "import dependencies"
	case RequestStart:
		return "start"
	default:
		return "unknown"
	}
}

// WorkRequest is a unit of user work. Build one with ExecRequest,
// ImportRequest or StartRequest.
type WorkRequest struct {
	kind    RequestKind
	payload string
	id      string
}

func ExecRequest(code string) WorkRequest {
	return WorkRequest{kind: RequestExec, payload: code}
}

func ImportRequest(manifest string) WorkRequest {
	return WorkRequest{kind: RequestImportDependencies, payload: manifest}
}

func StartRequest() WorkRequest {
	return WorkRequest{kind: RequestStart}
}

// WithID tags the request so the events it produces can be told apart from
// those of other callers.
func (r WorkRequest) WithID(id string) WorkRequest {
	r.id = id
	return r
}

func (r WorkRequest) Kind() RequestKind { return r.kind }

func (r WorkRequest) ID() string { return r.id }

// Payload is the code for exec requests and the manifest for import requests.
func (r WorkRequest) Payload() string { return r.payload }

// Result contains the output of one exec invocation
type Result struct {
	Output        string
	Success       bool
	Error         error
	ExecutionTime time.Duration
}

// SandboxContainer is the last observed state of the sandbox container.
type SandboxContainer struct {
	Name    string
	ID      string
	Image   string
	Exists  bool
	Running bool
	// Mounts maps host paths to in-container paths.
	Mounts map[string]string
}

// shortID returns a shortened container ID for logging
func shortID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}
