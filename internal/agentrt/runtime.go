// Package agentrt is a minimal agent host: it owns the character, settings,
// memory store and model access that plugins reach through host.Runtime.
package agentrt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"regexp"
	"strings"

	"github.com/google/uuid"

	"github.com/bnv-me/webbnv/internal/llm"
	"github.com/bnv-me/webbnv/pkg/host"
)

// Store is the memory store plus the room membership the runtime tracks.
type Store interface {
	host.MemoryManager
	AddParticipant(ctx context.Context, participantID, roomID uuid.UUID) error
	RoomsForParticipant(ctx context.Context, participantID uuid.UUID) ([]uuid.UUID, error)
}

// Options configures a Runtime.
type Options struct {
	AgentID   uuid.UUID
	Character host.Character
	// Setting returns the raw value of a setting or "".
	Setting   func(key string) string
	Store     Store
	Generator llm.TextGenerator
	Models    map[host.ModelClass]string
	Logger    *slog.Logger
}

// Runtime implements host.Runtime.
type Runtime struct {
	agentID   uuid.UUID
	character host.Character
	setting   func(string) string
	store     Store
	generator llm.TextGenerator
	models    map[host.ModelClass]string
	logger    *slog.Logger
}

var _ host.Runtime = (*Runtime)(nil)

// New creates a Runtime. Store and Generator are required.
func New(opts Options) (*Runtime, error) {
	if opts.Store == nil {
		return nil, errors.New("runtime needs a memory store")
	}
	if opts.Generator == nil {
		return nil, errors.New("runtime needs a text generator")
	}
	if opts.AgentID == uuid.Nil {
		opts.AgentID = host.StringToUUID(opts.Character.Name)
	}
	if opts.Setting == nil {
		opts.Setting = func(string) string { return "" }
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Runtime{
		agentID:   opts.AgentID,
		character: opts.Character,
		setting:   opts.Setting,
		store:     opts.Store,
		generator: opts.Generator,
		models:    opts.Models,
		logger:    logger.With("component", "runtime", "agent_id", opts.AgentID),
	}, nil
}

// Initialize makes the agent a participant of its own canonical room.
func (r *Runtime) Initialize(ctx context.Context) error {
	room := host.StringToUUID(r.agentID.String())
	if err := r.store.AddParticipant(ctx, r.agentID, room); err != nil {
		return fmt.Errorf("initializing runtime: %w", err)
	}
	r.logger.Info("runtime initialized", "agent", r.character.Name, "room_id", room)
	return nil
}

func (r *Runtime) AgentID() uuid.UUID { return r.agentID }

func (r *Runtime) Character() host.Character { return r.character }

func (r *Runtime) GetSetting(key string) string { return r.setting(key) }

func (r *Runtime) GetRoomsForParticipant(ctx context.Context, participantID uuid.UUID) ([]uuid.UUID, error) {
	return r.store.RoomsForParticipant(ctx, participantID)
}

func (r *Runtime) Messages() host.MemoryManager { return r.store }

// GenerateText runs the prompt on the model configured for the request's
// class, falling back to the small model.
func (r *Runtime) GenerateText(ctx context.Context, req host.GenerateTextRequest) (string, error) {
	model := r.models[req.ModelClass]
	if model == "" {
		model = r.models[host.ModelClassSmall]
	}
	if model == "" {
		return "", fmt.Errorf("no model configured for class %q", req.ModelClass)
	}

	r.logger.Debug("generating text", "model", model, "class", req.ModelClass, "prompt_len", len(req.Context))
	out, err := r.generator.Generate(ctx, model, req.Context)
	if err != nil {
		return "", fmt.Errorf("generating text: %w", err)
	}
	return out, nil
}

var placeholder = regexp.MustCompile(`\{\{\s*(\w+)\s*\}\}`)

// ComposeContext replaces every {{key}} in template with state[key].
// Unknown keys render empty.
func (r *Runtime) ComposeContext(state host.State, template string) string {
	return placeholder.ReplaceAllStringFunc(template, func(m string) string {
		key := placeholder.FindStringSubmatch(m)[1]
		v, ok := state[key]
		if !ok || v == nil {
			return ""
		}
		switch val := v.(type) {
		case string:
			return val
		case []string:
			return strings.Join(val, " ")
		default:
			return fmt.Sprint(val)
		}
	})
}

// LoadCharacter reads a character definition from a JSON file. An empty
// path yields a character with only a name.
func LoadCharacter(path, name string) (host.Character, error) {
	if path == "" {
		return host.Character{Name: name}, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return host.Character{}, fmt.Errorf("reading character file: %w", err)
	}
	var c host.Character
	if err := json.Unmarshal(data, &c); err != nil {
		return host.Character{}, fmt.Errorf("parsing character file %s: %w", path, err)
	}
	if c.Name == "" {
		c.Name = name
	}
	return c, nil
}

// ResolveAgentID parses a configured id, or derives a stable one from the
// character name when none is configured.
func ResolveAgentID(configured, name string) (uuid.UUID, error) {
	if configured == "" {
		return host.StringToUUID(name), nil
	}
	id, err := uuid.Parse(configured)
	if err != nil {
		return uuid.Nil, fmt.Errorf("parsing agent id: %w", err)
	}
	return id, nil
}
