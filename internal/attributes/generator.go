package attributes

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/bnv-me/webbnv/pkg/host"
)

// RecentWindow bounds how old a memory may be to influence the avatar.
const RecentWindow = 8 * time.Hour

const defaultLore = "Default lore..."

var keywords = []string{"fashion", "style", "outfit", "look", "trend"}

// FilterRelevant keeps memories created within window before now whose
// text mentions a fashion keyword, case-insensitively.
func FilterRelevant(mems []host.Memory, now time.Time, window time.Duration) []host.Memory {
	cutoff := now.Add(-window)
	var out []host.Memory
	for _, m := range mems {
		if m.CreatedAt.Before(cutoff) {
			continue
		}
		text := strings.ToLower(m.Content.Text)
		for _, kw := range keywords {
			if strings.Contains(text, kw) {
				out = append(out, m)
				break
			}
		}
	}
	return out
}

// Generator produces avatar attributes through the host's text model.
type Generator struct {
	rt     host.Runtime
	now    func() time.Time
	logger *slog.Logger
}

// NewGenerator creates a Generator for the runtime's agent.
func NewGenerator(rt host.Runtime, logger *slog.Logger) *Generator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Generator{rt: rt, now: time.Now, logger: logger}
}

// Generate reads the agent's recent relevant memories, prompts the small
// model and parses its JSON answer. Parse failures are returned.
func (g *Generator) Generate(ctx context.Context) (AvatarAttributes, error) {
	start := g.now()
	agentID := g.rt.AgentID()

	rooms, err := g.rt.GetRoomsForParticipant(ctx, agentID)
	if err != nil {
		return AvatarAttributes{}, fmt.Errorf("listing agent rooms: %w", err)
	}

	mems, err := g.rt.Messages().GetMemoriesByRoomIDs(ctx, rooms)
	if err != nil {
		return AvatarAttributes{}, fmt.Errorf("loading memories: %w", err)
	}

	relevant := FilterRelevant(mems, start, RecentWindow)
	g.logger.Info("relevant memories selected", "rooms", len(rooms), "memories", len(mems), "relevant", len(relevant))

	texts := make([]string, 0, len(relevant))
	for _, m := range relevant {
		texts = append(texts, m.Content.Text)
	}

	character := g.rt.Character()
	lore := strings.Join(character.Lore, " ")
	if lore == "" {
		lore = defaultLore
	}

	prompt := g.rt.ComposeContext(host.State{
		"name":          character.Name,
		"agentName":     character.Name,
		"agentId":       agentID.String(),
		"bio":           strings.Join(character.Bio, " "),
		"lore":          lore,
		"memoryContent": strings.Join(texts, "-"),
	}, promptTemplate)

	out, err := g.rt.GenerateText(ctx, host.GenerateTextRequest{
		Context:    prompt,
		ModelClass: host.ModelClassSmall,
	})
	if err != nil {
		return AvatarAttributes{}, fmt.Errorf("generating avatar attributes: %w", err)
	}

	attrs, err := Parse(out)
	if err != nil {
		g.logger.Warn("model output is not valid attributes", "output", out)
		return AvatarAttributes{}, err
	}

	g.logger.Info("avatar attributes generated",
		"accessories", len(attrs.Accessories),
		"latest_trend", attrs.LatestTrend,
		"duration", time.Since(start),
	)
	return attrs, nil
}
