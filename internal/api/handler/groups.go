package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/bcnelson/hackathon-manager/internal/domain"
	"github.com/bcnelson/hackathon-manager/internal/service"
)

// GroupHandler handles group endpoints.
type GroupHandler struct {
	groups *service.GroupService
	log    *zap.Logger
}

// NewGroupHandler creates a new GroupHandler.
func NewGroupHandler(groups *service.GroupService, log *zap.Logger) *GroupHandler {
	return &GroupHandler{groups: groups, log: log}
}

// List returns all groups.
func (h *GroupHandler) List(w http.ResponseWriter, r *http.Request) {
	groups, err := h.groups.List(r.Context())
	if err != nil {
		handleError(w, r, h.log, err)
		return
	}

	tags := make([]string, len(groups))
	for i, g := range groups {
		tags[i] = GenerateETag("group", g.ID, g.Version)
	}
	if NotModified(w, r, ListETag("group", tags)) {
		return
	}

	if groups == nil {
		groups = []*domain.Group{}
	}
	respondJSON(w, http.StatusOK, groups)
}

// Get returns one group.
func (h *GroupHandler) Get(w http.ResponseWriter, r *http.Request) {
	g, err := h.groups.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		handleError(w, r, h.log, err)
		return
	}
	if NotModified(w, r, GenerateETag("group", g.ID, g.Version)) {
		return
	}
	respondJSON(w, http.StatusOK, g)
}

// Submissions returns the submissions of a group in display order.
func (h *GroupHandler) Submissions(w http.ResponseWriter, r *http.Request) {
	g, err := h.groups.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		handleError(w, r, h.log, err)
		return
	}
	subs, err := h.groups.Submissions(r.Context(), g.ID)
	if err != nil {
		handleError(w, r, h.log, err)
		return
	}

	// submissions are immutable, so their ids identify the list
	tags := make([]string, len(subs))
	for i, s := range subs {
		tags[i] = s.ID
	}
	if NotModified(w, r, ListETag("submission", tags)) {
		return
	}

	if subs == nil {
		subs = []*domain.Submission{}
	}
	respondJSON(w, http.StatusOK, subs)
}
