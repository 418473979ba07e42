package natshandler

import (
	"fmt"
	"testing"

	"replbox/executor"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap/zaptest"
)

type fakeService struct {
	calls []string
	err   error
}

func (f *fakeService) record(call string) (string, error) {
	f.calls = append(f.calls, call)
	if f.err != nil {
		return "", f.err
	}
	return fmt.Sprintf("req-%d", len(f.calls)), nil
}

func (f *fakeService) Exec(code string) (string, error) {
	return f.record("exec:" + code)
}

func (f *fakeService) ImportDependencies(manifest string) (string, error) {
	return f.record("imports:" + manifest)
}

func (f *fakeService) Start() (string, error) {
	return f.record("start")
}

func TestNewSubjects(t *testing.T) {
	assert.Equal(t, Subjects{
		Exec:    "replbox.exec",
		Imports: "replbox.imports",
		Start:   "replbox.start",
		Events:  "replbox.events",
	}, NewSubjects("replbox"))
}

func TestHandlers(t *testing.T) {
	t.Run("Exec", func(t *testing.T) {
		svc := &fakeService{}
		h := NewHandler(svc, zaptest.NewLogger(t))

		res := h.HandleExec([]byte(`{"code":"console.log(1)"}`))
		assert.True(t, res.Accepted)
		assert.Equal(t, "req-1", res.RequestID)
		assert.Empty(t, res.Error)
		assert.Equal(t, []string{"exec:console.log(1)"}, svc.calls)
	})

	t.Run("ImportsVerbatim", func(t *testing.T) {
		svc := &fakeService{}
		h := NewHandler(svc, zaptest.NewLogger(t))

		res := h.HandleImports([]byte(`{"manifest":"{\n  \"name\": \"x\"\n}\n"}`))
		assert.True(t, res.Accepted)
		assert.Equal(t, []string{"imports:{\n  \"name\": \"x\"\n}\n"}, svc.calls)
	})

	t.Run("StartIgnoresBody", func(t *testing.T) {
		svc := &fakeService{}
		h := NewHandler(svc, zaptest.NewLogger(t))

		assert.True(t, h.HandleStart(nil).Accepted)
		assert.True(t, h.HandleStart([]byte("garbage")).Accepted)
		assert.Equal(t, []string{"start", "start"}, svc.calls)
	})

	t.Run("MalformedBody", func(t *testing.T) {
		svc := &fakeService{}
		h := NewHandler(svc, zaptest.NewLogger(t))

		res := h.HandleExec([]byte(`{"code":`))
		assert.False(t, res.Accepted)
		assert.Contains(t, res.Error, "invalid exec request")

		res = h.HandleImports([]byte(`[]`))
		assert.False(t, res.Accepted)
		assert.Contains(t, res.Error, "invalid import request")
		assert.Empty(t, svc.calls)
	})

	t.Run("ServiceError", func(t *testing.T) {
		svc := &fakeService{err: executor.ErrQueueFull}
		h := NewHandler(svc, zaptest.NewLogger(t))

		res := h.HandleExec([]byte(`{"code":"1"}`))
		assert.False(t, res.Accepted)
		assert.Empty(t, res.RequestID)
		assert.Equal(t, executor.ErrQueueFull.Error(), res.Error)
	})
}
