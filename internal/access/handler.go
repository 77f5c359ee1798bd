package access

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/groupgate/groupgate/internal/platform/httpx"
	"github.com/groupgate/groupgate/internal/shared"
)

// Handler exposes item gating and the read decision over JSON.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountItemRoutes registers the item tag routes under /items.
func (h *Handler) MountItemRoutes(r chi.Router) {
	r.Get("/{itemID}/groups", h.getRequiredGroups)
	r.Put("/{itemID}/groups", h.setRequiredGroups)
	r.Get("/{itemID}/readable", h.canRead)
	r.Delete("/{itemID}", h.itemDeleted)
}

// MountAccessRoutes registers the bulk decision route under /access.
func (h *Handler) MountAccessRoutes(r chi.Router) {
	r.Post("/readable", h.readableItems)
}

func (h *Handler) getRequiredGroups(w http.ResponseWriter, r *http.Request) {
	itemID, ok := h.itemID(w, r)
	if !ok {
		return
	}
	ids, err := h.service.GetRequiredGroups(r.Context(), itemID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if ids == nil {
		ids = []int64{}
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"group_ids": ids})
}

type setRequiredGroupsPayload struct {
	GroupIDs []int64 `json:"group_ids" validate:"required,dive,gt=0"`
}

func (h *Handler) setRequiredGroups(w http.ResponseWriter, r *http.Request) {
	itemID, ok := h.itemID(w, r)
	if !ok {
		return
	}
	var payload setRequiredGroupsPayload
	if err := httpx.DecodeJSON(r, &payload); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid JSON", err.Error())
		return
	}
	if err := h.validate.Struct(payload); err != nil {
		httpx.RespondError(w, fmt.Errorf("%s: %w", err.Error(), shared.ErrValidation))
		return
	}
	if err := h.service.SetRequiredGroups(r.Context(), itemID, payload.GroupIDs); err != nil {
		h.logger.Warn("set required groups", slog.Int64("item_id", itemID), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) canRead(w http.ResponseWriter, r *http.Request) {
	itemID, ok := h.itemID(w, r)
	if !ok {
		return
	}
	userID, ok := queryUserID(w, r)
	if !ok {
		return
	}
	readable, err := h.service.CanRead(r.Context(), userID, itemID)
	if err != nil {
		h.logger.Error("can read", slog.Int64("user_id", userID), slog.Int64("item_id", itemID), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"readable": readable})
}

type readableItemsPayload struct {
	UserID  int64   `json:"user_id" validate:"required,gt=0"`
	ItemIDs []int64 `json:"item_ids" validate:"required,dive,gt=0"`
}

func (h *Handler) readableItems(w http.ResponseWriter, r *http.Request) {
	var payload readableItemsPayload
	if err := httpx.DecodeJSON(r, &payload); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid JSON", err.Error())
		return
	}
	if err := h.validate.Struct(payload); err != nil {
		httpx.RespondError(w, fmt.Errorf("%s: %w", err.Error(), shared.ErrValidation))
		return
	}
	ids, err := h.service.ReadableItemIDs(r.Context(), payload.UserID, payload.ItemIDs)
	if err != nil {
		h.logger.Error("readable items", slog.Int64("user_id", payload.UserID), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	if ids == nil {
		ids = []int64{}
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"item_ids": ids})
}

func (h *Handler) itemDeleted(w http.ResponseWriter, r *http.Request) {
	itemID, ok := h.itemID(w, r)
	if !ok {
		return
	}
	if err := h.service.ItemDeleted(r.Context(), itemID); err != nil {
		h.logger.Warn("item deleted", slog.Int64("item_id", itemID), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) itemID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "itemID"), 10, 64)
	if err != nil || id <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Parameter", "item id must be a positive integer")
		return 0, false
	}
	return id, true
}

func queryUserID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.URL.Query().Get("user_id"), 10, 64)
	if err != nil || id <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Parameter", "user_id must be a positive integer")
		return 0, false
	}
	return id, true
}
