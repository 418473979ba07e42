package service

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"replbox/config"
	"replbox/executor"
	"replbox/internal"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type fakeSubmitter struct {
	requests []executor.WorkRequest
	err      error
}

func (f *fakeSubmitter) Submit(req executor.WorkRequest) error {
	if f.err != nil {
		return f.err
	}
	f.requests = append(f.requests, req)
	return nil
}

func newTestService(t *testing.T, sanitize bool) (*SandboxService, *fakeSubmitter) {
	t.Helper()
	sub := &fakeSubmitter{}
	cfg := config.Config{MaxCodeLength: 64, SanitizeCode: sanitize}
	return NewSandboxService(sub, cfg, zaptest.NewLogger(t)), sub
}

func TestSandboxServiceExec(t *testing.T) {
	t.Run("QueuesCodeUnchanged", func(t *testing.T) {
		svc, sub := newTestService(t, true)

		id, err := svc.Exec("  console.log(1)  ")
		require.NoError(t, err)
		require.Len(t, sub.requests, 1)
		assert.NotEmpty(t, id)
		assert.Equal(t, id, sub.requests[0].ID())
		assert.Equal(t, executor.RequestExec, sub.requests[0].Kind())
		assert.Equal(t, "  console.log(1)  ", sub.requests[0].Payload())
	})

	t.Run("RejectsLongCode", func(t *testing.T) {
		svc, sub := newTestService(t, false)

		_, err := svc.Exec(strings.Repeat("x", 65))
		var sanErr *internal.SanitizationError
		require.ErrorAs(t, err, &sanErr)
		assert.Empty(t, sub.requests)
	})

	t.Run("ScreensPatternsWhenEnabled", func(t *testing.T) {
		svc, sub := newTestService(t, true)
		_, err := svc.Exec("require('child_process')")
		assert.Error(t, err)
		assert.Empty(t, sub.requests)

		svc, sub = newTestService(t, false)
		_, err = svc.Exec("require('child_process')")
		assert.NoError(t, err)
		assert.Len(t, sub.requests, 1)
	})

	t.Run("PropagatesQueueFull", func(t *testing.T) {
		svc, sub := newTestService(t, false)
		sub.err = fmt.Errorf("%w, max capacity: %d", executor.ErrQueueFull, 1)

		id, err := svc.Exec("console.log(1)")
		assert.ErrorIs(t, err, executor.ErrQueueFull)
		assert.Empty(t, id)
	})
}

func TestSandboxServiceImportDependencies(t *testing.T) {
	svc, sub := newTestService(t, true)

	// manifests are never pattern screened
	manifest := "{\"scripts\": {\"x\": \"eval(1)\"}}\n"
	_, err := svc.ImportDependencies(manifest)
	require.NoError(t, err)
	require.Len(t, sub.requests, 1)
	assert.Equal(t, executor.RequestImportDependencies, sub.requests[0].Kind())
	assert.Equal(t, manifest, sub.requests[0].Payload())

	_, err = svc.ImportDependencies(strings.Repeat(" ", 65))
	assert.Error(t, err)
	assert.Len(t, sub.requests, 1)
}

func TestSandboxServiceStart(t *testing.T) {
	svc, sub := newTestService(t, false)
	_, err := svc.Start()
	require.NoError(t, err)
	require.Len(t, sub.requests, 1)
	assert.Equal(t, executor.RequestStart, sub.requests[0].Kind())

	sub.err = executor.ErrClosed
	_, err = svc.Start()
	assert.True(t, errors.Is(err, executor.ErrClosed))
}

func TestSandboxServiceRequestIDsAreUnique(t *testing.T) {
	svc, sub := newTestService(t, false)

	first, err := svc.Exec("1")
	require.NoError(t, err)
	second, err := svc.Exec("2")
	require.NoError(t, err)

	assert.NotEqual(t, first, second)
	assert.Equal(t, []string{first, second}, []string{sub.requests[0].ID(), sub.requests[1].ID()})
}
