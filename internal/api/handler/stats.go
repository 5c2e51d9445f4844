package handler

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/bcnelson/hackathon-manager/internal/metrics"
	"github.com/bcnelson/hackathon-manager/internal/service"
)

// StatsResponse summarizes the state of the hackathon.
type StatsResponse struct {
	Ideas             int `json:"ideas"`
	Projects          int `json:"projects"`
	Votes             int `json:"votes"`
	Groups            int `json:"groups"`
	Members           int `json:"members"`
	PendingUsers      int `json:"pending_users"`
	ClaimedGroups     int `json:"claimed_groups"`
	Submissions       int `json:"submissions"`
	UnclaimedProjects int `json:"unclaimed_projects"`
}

// StatsHandler reports entity counts and refreshes the matching gauges.
type StatsHandler struct {
	svc *service.Services
	log *zap.Logger
}

// NewStatsHandler creates a new StatsHandler.
func NewStatsHandler(svc *service.Services, log *zap.Logger) *StatsHandler {
	return &StatsHandler{svc: svc, log: log}
}

// Get returns the current counts.
func (h *StatsHandler) Get(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	ideas, err := h.svc.Ideas.List(ctx)
	if err != nil {
		handleError(w, r, h.log, err)
		return
	}
	projects, err := h.svc.Projects.List(ctx)
	if err != nil {
		handleError(w, r, h.log, err)
		return
	}
	groups, err := h.svc.Groups.List(ctx)
	if err != nil {
		handleError(w, r, h.log, err)
		return
	}

	stats := StatsResponse{
		Ideas:    len(ideas),
		Projects: len(projects),
		Groups:   len(groups),
	}
	claimed := make(map[string]bool)
	for _, g := range groups {
		stats.Members += len(g.Members)
		stats.PendingUsers += len(g.PendingUsers)
		if g.ProjectID != "" {
			stats.ClaimedGroups++
			claimed[g.ProjectID] = true
		}
		subs, err := h.svc.Groups.Submissions(ctx, g.ID)
		if err != nil {
			handleError(w, r, h.log, err)
			return
		}
		stats.Submissions += len(subs)
	}
	for _, p := range projects {
		stats.Votes += p.VoteCount()
		if !claimed[p.ID] {
			stats.UnclaimedProjects++
		}
	}

	metrics.EntitiesCount.WithLabelValues("idea").Set(float64(stats.Ideas))
	metrics.EntitiesCount.WithLabelValues("project").Set(float64(stats.Projects))
	metrics.EntitiesCount.WithLabelValues("group").Set(float64(stats.Groups))
	metrics.EntitiesCount.WithLabelValues("submission").Set(float64(stats.Submissions))

	respondJSON(w, http.StatusOK, stats)
}
