package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/bcnelson/hackathon-manager/internal/domain"
	"github.com/bcnelson/hackathon-manager/internal/service"
)

// Ideas never change once posted, so every idea is at version 1.
const ideaVersion = 1

// IdeaHandler handles idea endpoints.
type IdeaHandler struct {
	ideas *service.IdeaService
	log   *zap.Logger
}

// NewIdeaHandler creates a new IdeaHandler.
func NewIdeaHandler(ideas *service.IdeaService, log *zap.Logger) *IdeaHandler {
	return &IdeaHandler{ideas: ideas, log: log}
}

// List returns all pending ideas.
func (h *IdeaHandler) List(w http.ResponseWriter, r *http.Request) {
	ideas, err := h.ideas.List(r.Context())
	if err != nil {
		handleError(w, r, h.log, err)
		return
	}

	tags := make([]string, len(ideas))
	for i, idea := range ideas {
		tags[i] = GenerateETag("idea", idea.ID, ideaVersion)
	}
	if NotModified(w, r, ListETag("idea", tags)) {
		return
	}

	if ideas == nil {
		ideas = []*domain.Idea{}
	}
	respondJSON(w, http.StatusOK, ideas)
}

// Get returns one idea.
func (h *IdeaHandler) Get(w http.ResponseWriter, r *http.Request) {
	idea, err := h.ideas.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		handleError(w, r, h.log, err)
		return
	}
	if NotModified(w, r, GenerateETag("idea", idea.ID, ideaVersion)) {
		return
	}
	respondJSON(w, http.StatusOK, idea)
}
