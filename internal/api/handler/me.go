package handler

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/bcnelson/hackathon-manager/internal/auth"
	"github.com/bcnelson/hackathon-manager/internal/domain"
	"github.com/bcnelson/hackathon-manager/internal/service"
)

// MeResponse describes the signed in user.
type MeResponse struct {
	User       string `json:"user"`
	Name       string `json:"name,omitempty"`
	Admin      bool   `json:"admin"`
	GroupID    string `json:"group_id,omitempty"`
	Membership string `json:"membership"`
}

// MeHandler reports on the current user.
type MeHandler struct {
	groups *service.GroupService
	log    *zap.Logger
}

// NewMeHandler creates a new MeHandler.
func NewMeHandler(groups *service.GroupService, log *zap.Logger) *MeHandler {
	return &MeHandler{groups: groups, log: log}
}

// Get returns the user and their group. The route requires a signed in user.
func (h *MeHandler) Get(w http.ResponseWriter, r *http.Request) {
	p := auth.PrincipalFromContext(r.Context())
	user, _ := p.CurrentUser()

	resp := MeResponse{
		User:       user.String(),
		Name:       p.DisplayName(),
		Admin:      p.IsAdmin(),
		Membership: domain.NotAffiliated.String(),
	}
	g, err := h.groups.ForUser(r.Context(), user)
	if err != nil {
		handleError(w, r, h.log, err)
		return
	}
	if g != nil {
		resp.GroupID = g.ID
		resp.Membership = g.MembershipOf(user).String()
	}
	respondJSON(w, http.StatusOK, resp)
}
