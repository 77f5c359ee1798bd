package relations

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/groupgate/groupgate/internal/platform/httpx"
)

// Handler exposes the relation mutations over JSON. Routes are mounted
// beneath the group and user subtrees by the router.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountGroupRoutes registers the relation routes under /groups/{groupID}.
func (h *Handler) MountGroupRoutes(r chi.Router) {
	r.Get("/{groupID}/capabilities", h.listGroupCapabilities)
	r.Put("/{groupID}/capabilities/{capabilityID}", h.link)
	r.Delete("/{groupID}/capabilities/{capabilityID}", h.unlink)
	r.Get("/{groupID}/members", h.listMembers)
	r.Put("/{groupID}/members/{userID}", h.addMember)
	r.Delete("/{groupID}/members/{userID}", h.removeMember)
}

// MountUserRoutes registers the relation routes under /users/{userID}.
func (h *Handler) MountUserRoutes(r chi.Router) {
	r.Get("/{userID}/groups", h.listUserGroups)
	r.Get("/{userID}/capabilities", h.listUserCapabilities)
	r.Put("/{userID}/capabilities/{capabilityID}", h.grantDirect)
	r.Delete("/{userID}/capabilities/{capabilityID}", h.revokeDirect)
}

func (h *Handler) link(w http.ResponseWriter, r *http.Request) {
	groupID, capabilityID, ok := pairParams(w, r, "groupID", "capabilityID")
	if !ok {
		return
	}
	if err := h.service.Link(r.Context(), groupID, capabilityID); err != nil {
		h.logger.Warn("link capability", slog.Int64("group_id", groupID), slog.Int64("capability_id", capabilityID), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) unlink(w http.ResponseWriter, r *http.Request) {
	groupID, capabilityID, ok := pairParams(w, r, "groupID", "capabilityID")
	if !ok {
		return
	}
	if err := h.service.Unlink(r.Context(), groupID, capabilityID); err != nil {
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) addMember(w http.ResponseWriter, r *http.Request) {
	groupID, userID, ok := pairParams(w, r, "groupID", "userID")
	if !ok {
		return
	}
	if err := h.service.AddMember(r.Context(), userID, groupID); err != nil {
		h.logger.Warn("add member", slog.Int64("group_id", groupID), slog.Int64("user_id", userID), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) removeMember(w http.ResponseWriter, r *http.Request) {
	groupID, userID, ok := pairParams(w, r, "groupID", "userID")
	if !ok {
		return
	}
	if err := h.service.RemoveMember(r.Context(), userID, groupID); err != nil {
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) grantDirect(w http.ResponseWriter, r *http.Request) {
	userID, capabilityID, ok := pairParams(w, r, "userID", "capabilityID")
	if !ok {
		return
	}
	if err := h.service.GrantDirect(r.Context(), userID, capabilityID); err != nil {
		h.logger.Warn("grant capability", slog.Int64("user_id", userID), slog.Int64("capability_id", capabilityID), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) revokeDirect(w http.ResponseWriter, r *http.Request) {
	userID, capabilityID, ok := pairParams(w, r, "userID", "capabilityID")
	if !ok {
		return
	}
	if err := h.service.RevokeDirect(r.Context(), userID, capabilityID); err != nil {
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) listGroupCapabilities(w http.ResponseWriter, r *http.Request) {
	groupID, ok := singleParam(w, r, "groupID")
	if !ok {
		return
	}
	ids, err := h.service.GroupCapabilityIDs(r.Context(), groupID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"capability_ids": emptyIfNil(ids)})
}

func (h *Handler) listMembers(w http.ResponseWriter, r *http.Request) {
	groupID, ok := singleParam(w, r, "groupID")
	if !ok {
		return
	}
	ids, err := h.service.MemberIDs(r.Context(), groupID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"user_ids": emptyIfNil(ids)})
}

func (h *Handler) listUserGroups(w http.ResponseWriter, r *http.Request) {
	userID, ok := singleParam(w, r, "userID")
	if !ok {
		return
	}
	ids, err := h.service.UserGroupIDs(r.Context(), userID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"group_ids": emptyIfNil(ids)})
}

func (h *Handler) listUserCapabilities(w http.ResponseWriter, r *http.Request) {
	userID, ok := singleParam(w, r, "userID")
	if !ok {
		return
	}
	ids, err := h.service.UserCapabilityIDs(r.Context(), userID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"capability_ids": emptyIfNil(ids)})
}

func singleParam(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Parameter", name+" must be a positive integer")
		return 0, false
	}
	return id, true
}

func pairParams(w http.ResponseWriter, r *http.Request, first, second string) (int64, int64, bool) {
	a, ok := singleParam(w, r, first)
	if !ok {
		return 0, 0, false
	}
	b, ok := singleParam(w, r, second)
	if !ok {
		return 0, 0, false
	}
	return a, b, true
}

func emptyIfNil(ids []int64) []int64 {
	if ids == nil {
		return []int64{}
	}
	return ids
}
