package bnvapi

// RawWearable is a catalog entry as the backend sends it. Slot tags arrive
// as flat keys ("slots[0]", "slots[1]", ...) next to "_id" and
// "aiDescription".
type RawWearable map[string]any

// WearablesResponse is the body of GET /api/eliza/get-wearables.
type WearablesResponse struct {
	Data struct {
		Wearables []RawWearable `json:"wearables"`
	} `json:"data"`
}

// OutfitWearable names one wearable in an outfit request.
type OutfitWearable struct {
	Wearable string `json:"wearable"`
}

// OutfitVariables describes the outfit submitted for the agent's avatar.
type OutfitVariables struct {
	ElizaUserName string           `json:"elizaUserName"`
	Wearables     []OutfitWearable `json:"wearables"`
	Body          string           `json:"body"`
	Head          string           `json:"head"`
}

type createUserRequest struct {
	Name    string `json:"name"`
	AgentID string `json:"agentId"`
}

type updateOutfitRequest struct {
	OutfitVariables OutfitVariables `json:"outfitVariables"`
}
