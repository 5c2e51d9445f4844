package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/bcnelson/hackathon-manager/internal/domain"
	"github.com/bcnelson/hackathon-manager/internal/service"
)

// ProjectResponse is a project with its tally and claims.
type ProjectResponse struct {
	ID          string        `json:"id"`
	Name        string        `json:"name"`
	Description string        `json:"description"`
	Author      domain.UserID `json:"author,omitempty"`
	PostTime    time.Time     `json:"post_time"`
	VoteCount   int           `json:"vote_count"`
	Votes       []string      `json:"votes"`
	ClaimedBy   []string      `json:"claimed_by"` // group ids
	Version     int64         `json:"version"`
}

// ProjectHandler handles project endpoints.
type ProjectHandler struct {
	projects *service.ProjectService
	log      *zap.Logger
}

// NewProjectHandler creates a new ProjectHandler.
func NewProjectHandler(projects *service.ProjectService, log *zap.Logger) *ProjectHandler {
	return &ProjectHandler{projects: projects, log: log}
}

func (h *ProjectHandler) response(ctx context.Context, p *domain.Project) (*ProjectResponse, error) {
	groups, err := h.projects.ClaimedBy(ctx, p.ID)
	if err != nil {
		return nil, err
	}
	claimedBy := make([]string, len(groups))
	for i, g := range groups {
		claimedBy[i] = g.ID
	}
	return &ProjectResponse{
		ID:          p.ID,
		Name:        p.Name,
		Description: p.Description,
		Author:      p.Author,
		PostTime:    p.PostTime,
		VoteCount:   p.VoteCount(),
		Votes:       userStrings(p.Votes),
		ClaimedBy:   claimedBy,
		Version:     p.Version,
	}, nil
}

// List returns all projects.
//
// The list ETag covers project versions only. Claims live on groups, so a
// client that needs current claims should not send If-None-Match.
func (h *ProjectHandler) List(w http.ResponseWriter, r *http.Request) {
	projects, err := h.projects.List(r.Context())
	if err != nil {
		handleError(w, r, h.log, err)
		return
	}

	tags := make([]string, len(projects))
	for i, p := range projects {
		tags[i] = GenerateETag("project", p.ID, p.Version)
	}
	if NotModified(w, r, ListETag("project", tags)) {
		return
	}

	resp := make([]*ProjectResponse, 0, len(projects))
	for _, p := range projects {
		pr, err := h.response(r.Context(), p)
		if err != nil {
			handleError(w, r, h.log, err)
			return
		}
		resp = append(resp, pr)
	}
	respondJSON(w, http.StatusOK, resp)
}

// Get returns one project. As for List, the ETag tracks the project version
// only.
func (h *ProjectHandler) Get(w http.ResponseWriter, r *http.Request) {
	p, err := h.projects.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		handleError(w, r, h.log, err)
		return
	}
	if NotModified(w, r, GenerateETag("project", p.ID, p.Version)) {
		return
	}
	pr, err := h.response(r.Context(), p)
	if err != nil {
		handleError(w, r, h.log, err)
		return
	}
	respondJSON(w, http.StatusOK, pr)
}
