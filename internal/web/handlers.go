package web

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/bcnelson/hackathon-manager/internal/auth"
	"github.com/bcnelson/hackathon-manager/internal/domain"
	"github.com/bcnelson/hackathon-manager/internal/notice"
	"github.com/bcnelson/hackathon-manager/internal/service"
)

// ============================================
// Projects
// ============================================

// ProjectView is a project as shown on the project board.
type ProjectView struct {
	*domain.Project
	Voted     bool
	ClaimedBy *domain.Group
}

// ProjectsData holds data for the project board.
type ProjectsData struct {
	Projects  []ProjectView
	UserGroup *domain.Group
	CanClaim  bool
}

func (s *Server) handleProjectsList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor := auth.ActorFromContext(ctx)

	projects, err := s.svc.Projects.List(ctx)
	if err != nil {
		s.handleError(w, r, nil, err)
		return
	}
	groups, err := s.svc.Groups.List(ctx)
	if err != nil {
		s.handleError(w, r, nil, err)
		return
	}
	userGroup, err := s.svc.Groups.ForUser(ctx, actor.User)
	if err != nil {
		s.handleError(w, r, nil, err)
		return
	}

	claims := make(map[string]*domain.Group)
	for _, g := range groups {
		if g.HasProject() {
			claims[g.ProjectID] = g
		}
	}
	views := make([]ProjectView, 0, len(projects))
	for _, p := range projects {
		views = append(views, ProjectView{
			Project:   p,
			Voted:     p.HasVoted(actor.User),
			ClaimedBy: claims[p.ID],
		})
	}

	s.render(w, r, "projects", http.StatusOK, PageData{
		Title:  "Projects",
		Active: "projects",
		Content: ProjectsData{
			Projects:  views,
			UserGroup: userGroup,
			CanClaim:  userGroup != nil && userGroup.IsOwner(actor.User) && userGroup.IsMember(actor.User),
		},
	})
}

func (s *Server) handleProjectVote(w http.ResponseWriter, r *http.Request) {
	var n notice.Notices
	_, err := s.svc.Projects.ToggleVote(r.Context(), auth.ActorFromContext(r.Context()), chi.URLParam(r, "id"), &n)
	s.finish(w, r, &n, err, "/projects", "/projects")
}

func (s *Server) handleProjectClaim(w http.ResponseWriter, r *http.Request) {
	var n notice.Notices
	g, err := s.svc.Projects.Claim(r.Context(), auth.ActorFromContext(r.Context()), chi.URLParam(r, "id"), &n)
	okURL := "/projects"
	if g != nil {
		okURL = "/groups/" + g.ID
	}
	s.finish(w, r, &n, err, okURL, "/projects")
}

func (s *Server) handleProjectDelete(w http.ResponseWriter, r *http.Request) {
	var n notice.Notices
	err := s.svc.Projects.Delete(r.Context(), auth.ActorFromContext(r.Context()), chi.URLParam(r, "id"), &n)
	s.finish(w, r, &n, err, "/projects", "/projects")
}

// ============================================
// Ideas
// ============================================

// IdeasData holds data for the ideas page.
type IdeasData struct {
	Ideas []*domain.Idea
}

func (s *Server) handleIdeasList(w http.ResponseWriter, r *http.Request) {
	ideas, err := s.svc.Ideas.List(r.Context())
	if err != nil {
		s.handleError(w, r, nil, err)
		return
	}
	s.render(w, r, "ideas", http.StatusOK, PageData{
		Title:   "Ideas",
		Active:  "ideas",
		Content: IdeasData{Ideas: ideas},
	})
}

func (s *Server) handleIdeaSubmit(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		s.renderError(w, r, http.StatusBadRequest, "Invalid form data")
		return
	}
	var n notice.Notices
	_, err := s.svc.Ideas.Submit(r.Context(), auth.ActorFromContext(r.Context()), domain.CreateIdeaRequest{
		Name:        r.PostFormValue("name"),
		Description: r.PostFormValue("description"),
	}, &n)
	s.finish(w, r, &n, err, "/ideas", "/ideas")
}

func (s *Server) handleIdeaApprove(w http.ResponseWriter, r *http.Request) {
	var n notice.Notices
	_, err := s.svc.Ideas.Promote(r.Context(), auth.ActorFromContext(r.Context()), chi.URLParam(r, "id"), &n)
	s.finish(w, r, &n, err, "/projects", "/ideas")
}

func (s *Server) handleIdeaDelete(w http.ResponseWriter, r *http.Request) {
	var n notice.Notices
	err := s.svc.Ideas.Delete(r.Context(), auth.ActorFromContext(r.Context()), chi.URLParam(r, "id"), &n)
	s.finish(w, r, &n, err, "/ideas", "/ideas")
}

// ============================================
// Groups
// ============================================

// GroupView is a group as shown in the group list.
type GroupView struct {
	*domain.Group
	Project *domain.Project
}

// GroupsData holds data for the group list.
type GroupsData struct {
	Groups    []GroupView
	UserGroup *domain.Group
}

// GroupData holds data for the group detail and edit pages.
type GroupData struct {
	Group       *domain.Group
	Project     *domain.Project
	Submissions []*domain.Submission
	Membership  domain.Membership
	CanManage   bool
	CanJoin     bool
}

func (s *Server) handleGroupsList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	groups, err := s.svc.Groups.List(ctx)
	if err != nil {
		s.handleError(w, r, nil, err)
		return
	}
	projects, err := s.svc.Projects.List(ctx)
	if err != nil {
		s.handleError(w, r, nil, err)
		return
	}
	userGroup, err := s.svc.Groups.ForUser(ctx, auth.ActorFromContext(ctx).User)
	if err != nil {
		s.handleError(w, r, nil, err)
		return
	}

	byID := make(map[string]*domain.Project, len(projects))
	for _, p := range projects {
		byID[p.ID] = p
	}
	views := make([]GroupView, 0, len(groups))
	for _, g := range groups {
		views = append(views, GroupView{Group: g, Project: byID[g.ProjectID]})
	}

	s.render(w, r, "groups_list", http.StatusOK, PageData{
		Title:   "Groups",
		Active:  "groups",
		Content: GroupsData{Groups: views, UserGroup: userGroup},
	})
}

func (s *Server) handleGroupSignup(w http.ResponseWriter, r *http.Request) {
	var n notice.Notices
	ok, err := s.svc.Groups.CanCreate(r.Context(), auth.ActorFromContext(r.Context()), &n)
	if err != nil {
		s.handleError(w, r, &n, err)
		return
	}
	if !ok {
		s.redirect(w, r, &n, "/groups")
		return
	}
	s.render(w, r, "groups_signup", http.StatusOK, PageData{
		Title:  "Create a group",
		Active: "groups",
	})
}

func (s *Server) handleGroupCreate(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		s.renderError(w, r, http.StatusBadRequest, "Invalid form data")
		return
	}
	var n notice.Notices
	_, err := s.svc.Groups.Create(r.Context(), auth.ActorFromContext(r.Context()), domain.CreateGroupRequest{
		Name:   r.PostFormValue("name"),
		Public: r.PostFormValue("public") == "public",
	}, &n)
	s.finish(w, r, &n, err, "/groups", "/groups/signup")
}

// groupData loads a group with its claimed project and submissions.
func (s *Server) groupData(r *http.Request, g *domain.Group) (GroupData, error) {
	ctx := r.Context()
	actor := auth.ActorFromContext(ctx)
	data := GroupData{
		Group:      g,
		Membership: g.MembershipOf(actor.User),
		CanManage:  g.CanManage(actor),
	}

	if g.HasProject() {
		p, err := s.svc.Projects.Get(ctx, g.ProjectID)
		switch {
		case err == nil:
			data.Project = p
		case !errors.Is(err, domain.ErrNotFound):
			return data, err
		}
	}

	subs, err := s.svc.Groups.Submissions(ctx, g.ID)
	if err != nil {
		return data, err
	}
	data.Submissions = subs

	if actor.Authenticated() && data.Membership == domain.NotAffiliated {
		current, err := s.svc.Groups.ForUser(ctx, actor.User)
		if err != nil {
			return data, err
		}
		data.CanJoin = current == nil
	}
	return data, nil
}

func (s *Server) handleGroupShow(w http.ResponseWriter, r *http.Request) {
	g, err := s.svc.Groups.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.handleError(w, r, nil, err)
		return
	}
	data, err := s.groupData(r, g)
	if err != nil {
		s.handleError(w, r, nil, err)
		return
	}
	s.render(w, r, "groups_show", http.StatusOK, PageData{
		Title:   g.Name,
		Active:  "groups",
		Content: data,
	})
}

func (s *Server) handleGroupEdit(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	actor := auth.ActorFromContext(r.Context())
	if !actor.Authenticated() {
		http.Redirect(w, r, "/groups", http.StatusSeeOther)
		return
	}

	var n notice.Notices
	g, err := s.svc.Groups.Manage(r.Context(), actor, id, &n)
	if err != nil {
		s.finish(w, r, &n, err, "/groups/"+id, "/groups/"+id)
		return
	}
	data, err := s.groupData(r, g)
	if err != nil {
		s.handleError(w, r, nil, err)
		return
	}
	s.render(w, r, "groups_edit", http.StatusOK, PageData{
		Title:   "Edit " + g.Name,
		Active:  "groups",
		Content: data,
	})
}

// parseEditForm reads the group moderation form.
func parseEditForm(r *http.Request) service.EditGroupRequest {
	req := service.EditGroupRequest{
		Name:              r.PostFormValue("name"),
		Public:            r.PostFormValue("public") == "public",
		AbandonProject:    r.PostFormValue("abandon-project") != "",
		SubmissionText:    r.PostFormValue("submission-text"),
		SubmissionURL:     r.PostFormValue("submission-url"),
		RemoveSubmissions: r.PostForm["remove-submission"],
		Decisions:         make(map[domain.UserID]service.Decision),
		Owner:             r.PostFormValue("owner"),
		RemoveMembers:     r.PostForm["remove"],
		Delete:            r.PostFormValue("delete") != "",
	}
	for key, values := range r.PostForm {
		user, ok := strings.CutPrefix(key, "approve-")
		if !ok || len(values) == 0 {
			continue
		}
		switch d := service.Decision(values[0]); d {
		case service.Approve, service.Refuse:
			req.Decisions[auth.UserFromExternalID(user)] = d
		}
	}
	return req
}

func (s *Server) handleGroupUpdate(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if !auth.ActorFromContext(r.Context()).Authenticated() {
		http.Redirect(w, r, "/groups", http.StatusSeeOther)
		return
	}
	if err := r.ParseForm(); err != nil {
		s.renderError(w, r, http.StatusBadRequest, "Invalid form data")
		return
	}

	var n notice.Notices
	deleted, err := s.svc.Groups.Edit(r.Context(), auth.ActorFromContext(r.Context()), id, parseEditForm(r), &n)

	okURL := "/groups/" + id
	if deleted {
		okURL = "/groups"
	}
	failURL := "/groups/" + id + "/edit"
	if errors.Is(err, domain.ErrPermissionDenied) {
		failURL = "/groups"
	}
	s.finish(w, r, &n, err, okURL, failURL)
}

func (s *Server) handleGroupDelete(w http.ResponseWriter, r *http.Request) {
	var n notice.Notices
	err := s.svc.Groups.Delete(r.Context(), auth.ActorFromContext(r.Context()), chi.URLParam(r, "id"), &n)
	s.finish(w, r, &n, err, "/groups", "/groups")
}

func (s *Server) handleGroupJoin(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var n notice.Notices
	_, err := s.svc.Groups.RequestJoin(r.Context(), auth.ActorFromContext(r.Context()), id, &n)
	s.finish(w, r, &n, err, "/groups/"+id, "/groups/"+id)
}

func (s *Server) handleGroupLeave(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var n notice.Notices
	err := s.svc.Groups.Leave(r.Context(), auth.ActorFromContext(r.Context()), id, &n)
	s.finish(w, r, &n, err, "/groups", "/groups/"+id)
}

// ============================================
// Information pages
// ============================================

func (s *Server) handleStatic(page, title string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.render(w, r, page, http.StatusOK, PageData{Title: title, Active: page})
	}
}
