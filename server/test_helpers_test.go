package server

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"connectrpc.com/connect"

	"github.com/beyond-immersion/bannou-service-sub001/runtime"
	"github.com/beyond-immersion/bannou-service-sub001/store"
)

// memModels is an in-memory model store for handler tests.
type memModels struct {
	mu    sync.Mutex
	files map[string][]byte
}

func newMemModels() *memModels {
	return &memModels{files: make(map[string][]byte)}
}

func (m *memModels) put(ref string, data []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.files[ref] = data
}

func (m *memModels) Load(ref string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.files[ref]
	if !ok {
		return nil, fmt.Errorf("model %q: %w", ref, store.ErrNotFound)
	}
	return data, nil
}

func (m *memModels) Watch(ctx context.Context) (<-chan string, error) {
	ch := make(chan string)
	go func() {
		<-ctx.Done()
		close(ch)
	}()
	return ch, nil
}

const idleDocYAML = `
name: idle
flows:
  main:
    - do: incr
      args: {key: memory.ticks}
`

// suspendDocYAML parks the actor at a continuation point so extension
// tests have a window to attach into.
const suspendDocYAML = `
name: sentry
flows:
  main:
    - do: await
      args: {point: challenge, timeout_ms: 60000, flow: fallback}
      when: memory?.resolved != 1
  fallback:
    - do: set
      args: {key: memory.resolved, value: 1}
`

// newTestEnv builds a runtime with in-memory stores and the test
// templates registered, plus the services wrapping it.
func newTestEnv(t *testing.T) (*ActorService, *ExtensionService, *runtime.Runtime, *memModels) {
	t.Helper()

	models := newMemModels()
	models.put("npc/idle.yaml", []byte(idleDocYAML))
	models.put("npc/sentry.yaml", []byte(suspendDocYAML))

	states, err := store.NewBadgerInMemory()
	if err != nil {
		t.Fatalf("Expected in-memory state store, got %v", err)
	}

	rt := runtime.New(models, states)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = rt.Shutdown(ctx)
		_ = states.Close()
	})

	for _, tmpl := range []runtime.Template{
		{Name: "idle", Mode: runtime.ModeDocument, Model: "npc/idle.yaml", TickInterval: 10 * time.Millisecond},
		{Name: "sentry", Mode: runtime.ModeDocument, Model: "npc/sentry.yaml", TickInterval: 10 * time.Millisecond},
	} {
		if err := rt.RegisterTemplate(tmpl); err != nil {
			t.Fatalf("Expected template %q to register, got %v", tmpl.Name, err)
		}
	}

	return NewActorService(rt, 5*time.Second), NewExtensionService(rt), rt, models
}

func connectReq[T any](msg *T) *connect.Request[T] {
	return connect.NewRequest(msg)
}

func bg() context.Context {
	return context.Background()
}

func waitFor(t *testing.T, timeout time.Duration, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("Timed out waiting for %s", what)
}

// expectCode asserts err is a connect error with the given code.
func expectCode(t *testing.T, err error, code connect.Code) {
	t.Helper()
	if err == nil {
		t.Fatalf("Expected a %s error, got nil", code)
	}
	if got := connect.CodeOf(err); got != code {
		t.Fatalf("Expected code %s, got %s (%v)", code, got, err)
	}
}
