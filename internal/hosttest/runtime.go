package hosttest

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/bnv-me/webbnv/pkg/host"
)

// Runtime is a scriptable host.Runtime backed by a Store.
type Runtime struct {
	ID       uuid.UUID
	Char     host.Character
	Settings map[string]string
	Store    *Store
	Rooms    []uuid.UUID
	RoomsErr error
	InitErr  error
	Generate func(ctx context.Context, req host.GenerateTextRequest) (string, error)

	mu          sync.Mutex
	initialized int
	requests    []host.GenerateTextRequest
}

var _ host.Runtime = (*Runtime)(nil)

// NewRuntime creates a runtime for a character named name.
func NewRuntime(name string) *Runtime {
	return &Runtime{
		ID:       host.StringToUUID(name),
		Char:     host.Character{Name: name},
		Settings: map[string]string{},
		Store:    NewStore(),
	}
}

func (r *Runtime) Initialize(context.Context) error {
	r.mu.Lock()
	r.initialized++
	r.mu.Unlock()
	return r.InitErr
}

// Initialized returns how many times Initialize was called.
func (r *Runtime) Initialized() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.initialized
}

func (r *Runtime) AgentID() uuid.UUID           { return r.ID }
func (r *Runtime) Character() host.Character    { return r.Char }
func (r *Runtime) GetSetting(key string) string { return r.Settings[key] }
func (r *Runtime) Messages() host.MemoryManager { return r.Store }

func (r *Runtime) GetRoomsForParticipant(context.Context, uuid.UUID) ([]uuid.UUID, error) {
	return r.Rooms, r.RoomsErr
}

func (r *Runtime) GenerateText(ctx context.Context, req host.GenerateTextRequest) (string, error) {
	r.mu.Lock()
	r.requests = append(r.requests, req)
	r.mu.Unlock()
	if r.Generate == nil {
		return "", errors.New("no text generation configured")
	}
	return r.Generate(ctx, req)
}

// Requests returns the text-generation requests received so far.
func (r *Runtime) Requests() []host.GenerateTextRequest {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]host.GenerateTextRequest(nil), r.requests...)
}

// ComposeContext substitutes {{key}} placeholders verbatim.
func (r *Runtime) ComposeContext(state host.State, template string) string {
	out := template
	for k, v := range state {
		var s string
		switch val := v.(type) {
		case []string:
			s = strings.Join(val, " ")
		default:
			s = fmt.Sprint(val)
		}
		out = strings.ReplaceAll(out, "{{"+k+"}}", s)
	}
	return out
}
