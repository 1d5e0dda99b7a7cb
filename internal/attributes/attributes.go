// Package attributes derives an avatar description from an agent's recent
// conversation memories.
package attributes

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Slot keys, in the order attributes are expanded.
const (
	SlotTop         = "TOP"
	SlotHat         = "HAT"
	SlotBottom      = "BOTTOM"
	SlotShoes       = "SHOES"
	SlotAccessories = "ACCESSORIES"
	SlotEyewear     = "EYEWEAR"
)

// SlotKeys lists every wearable slot an outfit can fill.
var SlotKeys = []string{SlotTop, SlotHat, SlotBottom, SlotShoes, SlotAccessories, SlotEyewear}

// AvatarAttributes describes how the avatar should look. Colors are hex
// codes; the rest are free-text wearable descriptions.
type AvatarAttributes struct {
	SkinTone       string   `json:"skinTone"`
	FacialFeatures string   `json:"facialFeatures"`
	Eyewear        string   `json:"eyewear"`
	Hat            string   `json:"hat"`
	Top            string   `json:"top"`
	Bottom         string   `json:"bottom"`
	Shoes          string   `json:"shoes"`
	Accessories    []string `json:"accessories"`
	LatestTrend    string   `json:"latestTrend,omitempty"`
}

// Pair is one slot description to match against the wearable catalog.
type Pair struct {
	Key   string
	Value string
}

// Expand flattens the attributes into slot pairs. Each accessory becomes
// its own pair; scalar slots always yield one pair, even when empty.
func (a AvatarAttributes) Expand() []Pair {
	pairs := []Pair{
		{SlotTop, a.Top},
		{SlotHat, a.Hat},
		{SlotBottom, a.Bottom},
		{SlotShoes, a.Shoes},
	}
	for _, acc := range a.Accessories {
		pairs = append(pairs, Pair{SlotAccessories, acc})
	}
	return append(pairs, Pair{SlotEyewear, a.Eyewear})
}

// Placeholder returns the fixed attribute set used when live generation
// is disabled.
func Placeholder() AvatarAttributes {
	return AvatarAttributes{
		SkinTone:       "#f0d5b3",
		FacialFeatures: "#e0a78d",
		Eyewear:        "A pair of sleek, modern sunglasses with reflective lenses, exuding confidence and authority.",
		Hat:            "A sharp, stylish baseball cap with an embroidered emblem representing strength and leadership.",
		Top:            "A fitted, dark blazer over a crisp white shirt, symbolizing professionalism and a no-nonsense attitude.",
		Bottom:         "Tailored black trousers that provide a polished yet approachable appearance, suitable for public engagements.",
		Shoes:          "Sturdy black combat boots that convey resilience and readiness for action in any situation.",
		Accessories: []string{
			"A bold silver watch with a minimalist design, signifying punctuality and decisiveness.",
			"A red, white, and blue patriotic scarf tied around the neck, emphasizing American pride.",
			"An advanced smartwatch that keeps track of important communications and schedules.",
		},
	}
}

// Parse decodes model output into attributes, tolerating a surrounding
// markdown code fence.
func Parse(raw string) (AvatarAttributes, error) {
	s := strings.TrimSpace(raw)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	s = strings.TrimSpace(s)

	var attrs AvatarAttributes
	if err := json.Unmarshal([]byte(s), &attrs); err != nil {
		return AvatarAttributes{}, fmt.Errorf("parsing avatar attributes: %w", err)
	}
	return attrs, nil
}
