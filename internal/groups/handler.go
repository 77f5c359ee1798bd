package groups

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

// Handler exposes group CRUD over JSON.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers group routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.listGroups)
	r.Post("/", h.createGroup)
	r.Get("/by-name/{name}", h.getGroupByName)
	r.Get("/{groupID}", h.getGroup)
	r.Patch("/{groupID}", h.updateGroup)
	r.Delete("/{groupID}", h.deleteGroup)
}

type groupResponse struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	ParentID    *int64    `json:"parent_id,omitempty"`
	CreatorID   *int64    `json:"creator_id,omitempty"`
	IsSystem    bool      `json:"is_system"`
	CreatedAt   time.Time `json:"created_at"`
}

func toResponse(g Group) groupResponse {
	return groupResponse{
		ID:          g.ID,
		Name:        g.Name,
		Description: g.Description,
		ParentID:    g.ParentID,
		CreatorID:   g.CreatorID,
		IsSystem:    g.IsSystem,
		CreatedAt:   g.CreatedAt,
	}
}

type createGroupPayload struct {
	Name        string `json:"name" validate:"required,max=190"`
	Description string `json:"description" validate:"max=2000"`
	ParentID    *int64 `json:"parent_id" validate:"omitempty,gt=0"`
	CreatorID   *int64 `json:"creator_id" validate:"omitempty,gt=0"`
}

func (h *Handler) createGroup(w http.ResponseWriter, r *http.Request) {
	var payload createGroupPayload
	if err := httpx.DecodeJSON(r, &payload); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid JSON", err.Error())
		return
	}
	if err := h.validate.Struct(payload); err != nil {
		httpx.RespondError(w, fmt.Errorf("%s: %w", err.Error(), shared.ErrValidation))
		return
	}
	group, err := h.service.CreateGroup(r.Context(), CreateGroupRequest{
		Name:        payload.Name,
		Description: payload.Description,
		ParentID:    payload.ParentID,
		CreatorID:   payload.CreatorID,
	})
	if err != nil {
		h.logger.Warn("create group", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toResponse(*group))
}

func (h *Handler) getGroup(w http.ResponseWriter, r *http.Request) {
	id, ok := h.groupID(w, r)
	if !ok {
		return
	}
	group, err := h.service.GetGroup(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toResponse(*group))
}

func (h *Handler) getGroupByName(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	group, err := h.service.GetGroupByName(r.Context(), name)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toResponse(*group))
}

func (h *Handler) listGroups(w http.ResponseWriter, r *http.Request) {
	req := ListGroupsRequest{
		Search:  r.URL.Query().Get("search"),
		SortBy:  r.URL.Query().Get("sort"),
		SortDir: r.URL.Query().Get("dir"),
	}
	if raw := r.URL.Query().Get("parent_id"); raw != "" {
		parentID, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Invalid Parameter", "parent_id must be an integer")
			return
		}
		req.ParentID = &parentID
	}
	groups, err := h.service.ListGroups(r.Context(), req)
	if err != nil {
		h.logger.Error("list groups", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	out := make([]groupResponse, 0, len(groups))
	for _, g := range groups {
		out = append(out, toResponse(g))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"groups": out})
}

type updateGroupPayload struct {
	Name        *string `json:"name" validate:"omitempty,min=1,max=190"`
	Description *string `json:"description" validate:"omitempty,max=2000"`
	// Parent is tri-state: absent leaves the parent alone, null detaches,
	// a value re-parents subject to the cycle check.
	Parent *struct {
		ID *int64 `json:"id" validate:"omitempty,gt=0"`
	} `json:"parent"`
}

func (h *Handler) updateGroup(w http.ResponseWriter, r *http.Request) {
	id, ok := h.groupID(w, r)
	if !ok {
		return
	}
	var payload updateGroupPayload
	if err := httpx.DecodeJSON(r, &payload); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid JSON", err.Error())
		return
	}
	if err := h.validate.Struct(payload); err != nil {
		httpx.RespondError(w, fmt.Errorf("%s: %w", err.Error(), shared.ErrValidation))
		return
	}
	req := UpdateGroupRequest{Name: payload.Name, Description: payload.Description}
	if payload.Parent != nil {
		req.SetParent = true
		req.ParentID = payload.Parent.ID
	}
	group, err := h.service.UpdateGroup(r.Context(), id, req)
	if err != nil {
		h.logger.Warn("update group", slog.Int64("group_id", id), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toResponse(*group))
}

func (h *Handler) deleteGroup(w http.ResponseWriter, r *http.Request) {
	id, ok := h.groupID(w, r)
	if !ok {
		return
	}
	if err := h.service.DeleteGroup(r.Context(), id); err != nil {
		h.logger.Warn("delete group", slog.Int64("group_id", id), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) groupID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "groupID"), 10, 64)
	if err != nil || id <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Parameter", "group id must be a positive integer")
		return 0, false
	}
	return id, true
}
