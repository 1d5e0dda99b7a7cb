package memory

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/bnv-me/webbnv/internal/api"
	"github.com/bnv-me/webbnv/pkg/host"
)

// SearchRequest is the body of a room similarity search.
type SearchRequest struct {
	Text      string  `json:"text" validate:"required,min=1"`
	Threshold float64 `json:"threshold,omitempty" validate:"gte=0,lte=1"`
	Count     int     `json:"count,omitempty" validate:"gte=0,lte=100"`
}

// Handler serves read-only inspection endpoints over the agent's memory.
type Handler struct {
	svc      *Service
	validate *validator.Validate
}

// NewHandler creates a new memory handler.
func NewHandler(svc *Service) *Handler {
	return &Handler{
		svc:      svc,
		validate: validator.New(),
	}
}

// ListRoom returns every memory of one room.
func (h *Handler) ListRoom(w http.ResponseWriter, r *http.Request) {
	roomID, err := uuid.Parse(chi.URLParam(r, "roomID"))
	if err != nil {
		api.HandleError(w, api.NewBadRequestError("invalid room ID"))
		return
	}

	memories, err := h.svc.GetMemoriesByRoomIDs(r.Context(), []uuid.UUID{roomID})
	if err != nil {
		slog.Error("listing memories", "error", err, "room_id", roomID)
		api.HandleError(w, api.ErrInternalServer)
		return
	}
	if memories == nil {
		memories = []host.Memory{}
	}

	api.JSON(w, http.StatusOK, memories)
}

// Get returns a single memory.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	memoryID, err := uuid.Parse(chi.URLParam(r, "memoryID"))
	if err != nil {
		api.HandleError(w, api.NewBadRequestError("invalid memory ID"))
		return
	}

	mem, err := h.svc.GetMemoryByID(r.Context(), memoryID)
	if err != nil {
		slog.Error("getting memory", "error", err, "memory_id", memoryID)
		api.HandleError(w, api.ErrInternalServer)
		return
	}
	if mem == nil {
		api.HandleError(w, api.NewNotFoundError("memory not found"))
		return
	}

	api.JSON(w, http.StatusOK, mem)
}

// Search embeds the request text and searches one room with it.
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	roomID, err := uuid.Parse(chi.URLParam(r, "roomID"))
	if err != nil {
		api.HandleError(w, api.NewBadRequestError("invalid room ID"))
		return
	}

	var req SearchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.HandleError(w, api.ErrBadRequest)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		api.HandleError(w, api.NewBadRequestError(err.Error()))
		return
	}

	vec, err := h.svc.Embed(r.Context(), req.Text)
	if err != nil {
		slog.Error("embedding search text", "error", err)
		api.HandleError(w, api.ErrInternalServer)
		return
	}

	results, err := h.svc.SearchMemoriesByEmbedding(r.Context(), vec, host.SearchOptions{
		RoomID:         roomID,
		MatchThreshold: req.Threshold,
		Count:          req.Count,
	})
	if err != nil {
		slog.Error("searching memories", "error", err, "room_id", roomID)
		api.HandleError(w, api.ErrInternalServer)
		return
	}
	if results == nil {
		results = []host.Memory{}
	}

	api.JSON(w, http.StatusOK, results)
}
