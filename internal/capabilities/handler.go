package capabilities

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/groupgate/groupgate/internal/platform/httpx"
	"github.com/groupgate/groupgate/internal/shared"
)

// Handler exposes capability CRUD over JSON.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers capability routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.listCapabilities)
	r.Post("/", h.createCapability)
	r.Get("/by-label/{label}", h.getByLabel)
	r.Get("/{capabilityID}", h.getCapability)
	r.Patch("/{capabilityID}", h.updateCapability)
	r.Delete("/{capabilityID}", h.deleteCapability)
}

type capabilityResponse struct {
	ID          int64     `json:"id"`
	Label       string    `json:"label"`
	Class       string    `json:"class,omitempty"`
	Object      string    `json:"object,omitempty"`
	Name        string    `json:"name,omitempty"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

func toResponse(c Capability) capabilityResponse {
	return capabilityResponse{
		ID:          c.ID,
		Label:       c.Label,
		Class:       c.Class,
		Object:      c.Object,
		Name:        c.Name,
		Description: c.Description,
		CreatedAt:   c.CreatedAt,
	}
}

type createCapabilityPayload struct {
	Label       string `json:"label" validate:"required,max=190"`
	Class       string `json:"class" validate:"max=190"`
	Object      string `json:"object" validate:"max=190"`
	Name        string `json:"name" validate:"max=190"`
	Description string `json:"description" validate:"max=2000"`
}

func (h *Handler) createCapability(w http.ResponseWriter, r *http.Request) {
	var payload createCapabilityPayload
	if err := httpx.DecodeJSON(r, &payload); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid JSON", err.Error())
		return
	}
	if err := h.validate.Struct(payload); err != nil {
		httpx.RespondError(w, fmt.Errorf("%s: %w", err.Error(), shared.ErrValidation))
		return
	}
	capability, err := h.service.CreateCapability(r.Context(), CreateCapabilityRequest{
		Label:       payload.Label,
		Class:       payload.Class,
		Object:      payload.Object,
		Name:        payload.Name,
		Description: payload.Description,
	})
	if err != nil {
		h.logger.Warn("create capability", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toResponse(*capability))
}

func (h *Handler) listCapabilities(w http.ResponseWriter, r *http.Request) {
	caps, err := h.service.ListCapabilities(r.Context())
	if err != nil {
		h.logger.Error("list capabilities", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	out := make([]capabilityResponse, 0, len(caps))
	for _, c := range caps {
		out = append(out, toResponse(c))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"capabilities": out})
}

func (h *Handler) getCapability(w http.ResponseWriter, r *http.Request) {
	id, ok := h.capabilityID(w, r)
	if !ok {
		return
	}
	capability, err := h.service.GetCapability(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toResponse(*capability))
}

func (h *Handler) getByLabel(w http.ResponseWriter, r *http.Request) {
	label := chi.URLParam(r, "label")
	capability, err := h.service.GetCapabilityByLabel(r.Context(), label)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toResponse(*capability))
}

type updateCapabilityPayload struct {
	Label       *string `json:"label" validate:"omitempty,min=1,max=190"`
	Class       *string `json:"class" validate:"omitempty,max=190"`
	Object      *string `json:"object" validate:"omitempty,max=190"`
	Name        *string `json:"name" validate:"omitempty,max=190"`
	Description *string `json:"description" validate:"omitempty,max=2000"`
}

func (h *Handler) updateCapability(w http.ResponseWriter, r *http.Request) {
	id, ok := h.capabilityID(w, r)
	if !ok {
		return
	}
	var payload updateCapabilityPayload
	if err := httpx.DecodeJSON(r, &payload); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid JSON", err.Error())
		return
	}
	if err := h.validate.Struct(payload); err != nil {
		httpx.RespondError(w, fmt.Errorf("%s: %w", err.Error(), shared.ErrValidation))
		return
	}
	capability, err := h.service.UpdateCapability(r.Context(), id, UpdateCapabilityRequest{
		Label:       payload.Label,
		Class:       payload.Class,
		Object:      payload.Object,
		Name:        payload.Name,
		Description: payload.Description,
	})
	if err != nil {
		h.logger.Warn("update capability", slog.Int64("capability_id", id), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toResponse(*capability))
}

func (h *Handler) deleteCapability(w http.ResponseWriter, r *http.Request) {
	id, ok := h.capabilityID(w, r)
	if !ok {
		return
	}
	if err := h.service.DeleteCapability(r.Context(), id); err != nil {
		h.logger.Warn("delete capability", slog.Int64("capability_id", id), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) capabilityID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "capabilityID"), 10, 64)
	if err != nil || id <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Parameter", "capability id must be a positive integer")
		return 0, false
	}
	return id, true
}
