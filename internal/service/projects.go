package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/bcnelson/hackathon-manager/internal/auth"
	"github.com/bcnelson/hackathon-manager/internal/domain"
	"github.com/bcnelson/hackathon-manager/internal/notice"
	"github.com/bcnelson/hackathon-manager/internal/validation"
)

// ProjectService handles voting on and claiming projects.
type ProjectService struct {
	base
}

// List returns all projects, oldest idea first.
func (s *ProjectService) List(ctx context.Context) ([]*domain.Project, error) {
	return s.store.ListProjects(ctx)
}

// Get returns one project.
func (s *ProjectService) Get(ctx context.Context, id string) (*domain.Project, error) {
	return s.store.GetProject(ctx, id)
}

// ClaimedBy returns the groups that have claimed the project.
func (s *ProjectService) ClaimedBy(ctx context.Context, projectID string) ([]*domain.Group, error) {
	return s.store.ListGroupsByProject(ctx, projectID)
}

// Create adds a project directly, bypassing the idea stage. Administrators
// only; used when preloading a hackathon.
func (s *ProjectService) Create(ctx context.Context, actor domain.Actor, req domain.CreateProjectRequest, n *notice.Notices) (*domain.Project, error) {
	const action = "project.create"
	if !actor.Admin {
		return nil, s.done(action, s.deny(n, actor, action, "Only an administrator may create projects."))
	}
	if err := validation.ValidateIdea(req.Name, req.Description); err != nil {
		return nil, s.done(action, invalid(n, err))
	}

	now := s.opts.Now()
	project := domain.ProjectFromIdea(s.opts.NewID(), &domain.Idea{
		Name:        strings.TrimSpace(req.Name),
		Description: validation.SanitizeDescription(req.Description),
		Author:      auth.UserFromExternalID(req.Author),
		PostTime:    now,
	}, now)
	if err := s.store.CreateProject(ctx, project); err != nil {
		return nil, s.done(action, fmt.Errorf("creating project: %w", err))
	}
	return project, s.done(action, nil)
}

// ToggleVote casts the actor's vote, or retracts it if one exists. It
// returns whether the actor has a vote afterwards.
func (s *ProjectService) ToggleVote(ctx context.Context, actor domain.Actor, projectID string, n *notice.Notices) (bool, error) {
	const action = "project.vote"
	if err := s.requireUser(n, actor, action, "You must be logged in to vote."); err != nil {
		return false, s.done(action, err)
	}

	var voted bool
	err := s.mutate(ctx, action, n, func(n *notice.Notices) error {
		project, err := s.store.GetProject(ctx, projectID)
		if err != nil {
			return err
		}
		if project.HasVoted(actor.User) {
			if err := project.RetractVote(actor.User); err != nil {
				return err
			}
			voted = false
		} else {
			project.CastVote(actor.User)
			voted = true
		}
		return s.store.UpdateProject(ctx, project)
	})
	return voted, err
}

// Claim makes the actor's group work on the project. Only the owner of the
// group may claim, and a project is claimed by at most one group.
func (s *ProjectService) Claim(ctx context.Context, actor domain.Actor, projectID string, n *notice.Notices) (*domain.Group, error) {
	const action = "project.claim"
	if err := s.requireUser(n, actor, action, "You must be logged in to select a project."); err != nil {
		return nil, s.done(action, err)
	}

	var group *domain.Group
	err := s.mutate(ctx, action, n, func(n *notice.Notices) error {
		if _, err := s.store.GetProject(ctx, projectID); err != nil {
			return err
		}

		g, err := s.store.GetGroupByUser(ctx, actor.User)
		if errors.Is(err, domain.ErrNotFound) || (err == nil && !g.IsMember(actor.User)) {
			return reject(n, "You are not in a group. Join or create a group before selecting a project.")
		}
		if err != nil {
			return err
		}
		if !g.IsOwner(actor.User) {
			return s.deny(n, actor, action,
				"You are not the owner of your group. Only the owner of the group may select a project.")
		}
		if g.ProjectID == projectID {
			group = g
			return nil
		}

		if err := s.rejectClaimed(ctx, n, projectID, g.ID); err != nil {
			return err
		}

		g.ProjectID = projectID
		if err := s.store.UpdateGroup(ctx, g); err != nil {
			if errors.Is(err, domain.ErrAlreadyExists) {
				// claimed by another group since the check above
				if err := s.rejectClaimed(ctx, n, projectID, g.ID); err != nil {
					return err
				}
				return reject(n, "Another group has already selected this project.")
			}
			return err
		}
		group = g
		return nil
	})
	return group, err
}

// rejectClaimed fails when a group other than groupID has claimed the project.
func (s *ProjectService) rejectClaimed(ctx context.Context, n *notice.Notices, projectID, groupID string) error {
	claimed, err := s.store.ListGroupsByProject(ctx, projectID)
	if err != nil {
		return err
	}
	for _, other := range claimed {
		if other.ID != groupID {
			return reject(n, fmt.Sprintf("The group %s has already selected this project.", other.Name))
		}
	}
	return nil
}

// Delete removes a project after clearing every group's claim on it.
// Administrators only.
func (s *ProjectService) Delete(ctx context.Context, actor domain.Actor, projectID string, n *notice.Notices) error {
	const action = "project.delete"
	if !actor.Admin {
		return s.done(action, s.deny(n, actor, action,
			"Only an administrator may delete projects. This incident has been logged."))
	}

	if _, err := s.store.GetProject(ctx, projectID); err != nil {
		return s.done(action, err)
	}

	claimed, err := s.store.ListGroupsByProject(ctx, projectID)
	if err != nil {
		return s.done(action, err)
	}
	for _, g := range claimed {
		err := s.mutate(ctx, "project.unclaim", n, func(n *notice.Notices) error {
			current, err := s.store.GetGroup(ctx, g.ID)
			if err != nil {
				return err
			}
			if current.ProjectID != projectID {
				return nil
			}
			current.ProjectID = ""
			return s.store.UpdateGroup(ctx, current)
		})
		if err != nil && !errors.Is(err, domain.ErrNotFound) {
			return s.done(action, fmt.Errorf("clearing claim of group %s: %w", g.ID, err))
		}
	}

	if err := s.store.DeleteProject(ctx, projectID); err != nil {
		return s.done(action, err)
	}
	s.log.Info("project deleted",
		zap.String("project_id", projectID),
		zap.Int("claims_cleared", len(claimed)),
		zap.String("by", actor.User.String()))
	return s.done(action, nil)
}
