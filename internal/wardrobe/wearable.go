// Package wardrobe turns the backend wearable catalog into agent memories
// that outfit assembly can search.
package wardrobe

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/bnv-me/webbnv/internal/bnvapi"
	"github.com/bnv-me/webbnv/pkg/host"
)

// Wearable is a normalized catalog entry.
type Wearable struct {
	ID            string
	AIDescription string
	Slots         []string
}

var slotKey = regexp.MustCompile(`^slots\[(\d+)\]$`)

// Normalize extracts a Wearable from the backend's flat representation.
// Slot keys are ordered by index and blank slots are dropped.
func Normalize(raw bnvapi.RawWearable) Wearable {
	type indexed struct {
		n     int
		value string
	}
	var slots []indexed
	for k, v := range raw {
		m := slotKey.FindStringSubmatch(k)
		if m == nil {
			continue
		}
		n, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		slots = append(slots, indexed{n: n, value: stringValue(v)})
	}
	sort.Slice(slots, func(i, j int) bool { return slots[i].n < slots[j].n })

	w := Wearable{
		ID:            stringValue(raw["_id"]),
		AIDescription: stringValue(raw["aiDescription"]),
	}
	for _, s := range slots {
		if strings.TrimSpace(s.value) != "" {
			w.Slots = append(w.Slots, s.value)
		}
	}
	return w
}

func stringValue(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	default:
		return fmt.Sprint(val)
	}
}

// Text is the searchable memory text: id, description, then every slot,
// comma separated. The slot field is always present, so a wearable without
// slots ends in a trailing comma. Outfit assembly reads the id back from the
// first field.
func (w Wearable) Text() string {
	return strings.Join([]string{w.ID, w.AIDescription, strings.Join(w.Slots, ",")}, ",")
}

// MemoryID is stable for a given wearable, description and agent.
func (w Wearable) MemoryID(agentID uuid.UUID) uuid.UUID {
	return host.StringToUUID(fmt.Sprintf("wearable-%s-%s-%s", w.ID, w.AIDescription, agentID))
}

// AgentRoomID is the agent's canonical room, where catalog entries live.
func AgentRoomID(agentID uuid.UUID) uuid.UUID {
	return host.StringToUUID(agentID.String())
}

// SlotRoomID is the transient room holding catalog copies for one slot.
func SlotRoomID(agentID uuid.UUID, slot string) uuid.UUID {
	return host.StringToUUID(agentID.String() + slot)
}

// OutfitRoomID is the room where chosen wearables are recorded.
func OutfitRoomID(agentID uuid.UUID) uuid.UUID {
	return host.StringToUUID(agentID.String() + "OUTFIT")
}
