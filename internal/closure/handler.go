package closure

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/groupgate/groupgate/internal/platform/httpx"
)

// Handler exposes the derived-set queries over JSON.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountUserRoutes registers the deep queries under /users/{userID}.
func (h *Handler) MountUserRoutes(r chi.Router) {
	r.Get("/{userID}/groups/deep", h.userGroupsDeep)
	r.Get("/{userID}/capabilities/deep", h.userCapabilitiesDeep)
	r.Get("/{userID}/has/{capability}", h.userHasCapability)
}

// MountGroupRoutes registers the deep queries under /groups/{groupID}.
func (h *Handler) MountGroupRoutes(r chi.Router) {
	r.Get("/{groupID}/ancestry", h.groupAncestry)
	r.Get("/{groupID}/capabilities/deep", h.groupCapabilitiesDeep)
}

// MountOpsRoutes registers the cache maintenance routes under /cache.
func (h *Handler) MountOpsRoutes(r chi.Router) {
	r.Post("/flush", h.flushCache)
}

func (h *Handler) flushCache(w http.ResponseWriter, r *http.Request) {
	if err := h.service.ResetCache(r.Context()); err != nil {
		h.logger.Error("flush cache", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	h.logger.Info("cache flushed")
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) userGroupsDeep(w http.ResponseWriter, r *http.Request) {
	userID, ok := pathID(w, r, "userID")
	if !ok {
		return
	}
	ids, err := h.service.UserGroupsDeep(r.Context(), userID)
	if err != nil {
		h.logger.Error("user groups deep", slog.Int64("user_id", userID), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"group_ids": ids})
}

func (h *Handler) userCapabilitiesDeep(w http.ResponseWriter, r *http.Request) {
	userID, ok := pathID(w, r, "userID")
	if !ok {
		return
	}
	ids, err := h.service.UserCapabilitiesDeep(r.Context(), userID)
	if err != nil {
		h.logger.Error("user capabilities deep", slog.Int64("user_id", userID), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"capability_ids": ids})
}

func (h *Handler) userHasCapability(w http.ResponseWriter, r *http.Request) {
	userID, ok := pathID(w, r, "userID")
	if !ok {
		return
	}
	capability := chi.URLParam(r, "capability")
	has, err := h.service.UserHasCapability(r.Context(), userID, capability)
	if err != nil {
		h.logger.Error("user has capability", slog.Int64("user_id", userID), slog.String("capability", capability), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"has_capability": has})
}

func (h *Handler) groupAncestry(w http.ResponseWriter, r *http.Request) {
	groupID, ok := pathID(w, r, "groupID")
	if !ok {
		return
	}
	ids, err := h.service.GroupAncestry(r.Context(), groupID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"group_ids": ids})
}

func (h *Handler) groupCapabilitiesDeep(w http.ResponseWriter, r *http.Request) {
	groupID, ok := pathID(w, r, "groupID")
	if !ok {
		return
	}
	ids, err := h.service.GroupCapabilitiesDeep(r.Context(), groupID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"capability_ids": ids})
}

func pathID(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Parameter", name+" must be a positive integer")
		return 0, false
	}
	return id, true
}
