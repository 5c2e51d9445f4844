package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/bcnelson/hackathon-manager/internal/domain"
	"github.com/bcnelson/hackathon-manager/internal/notice"
	"github.com/bcnelson/hackathon-manager/internal/validation"
)

// IdeaService handles idea submission and promotion.
type IdeaService struct {
	base
}

// List returns all ideas, oldest first.
func (s *IdeaService) List(ctx context.Context) ([]*domain.Idea, error) {
	return s.store.ListIdeas(ctx)
}

// Get returns one idea.
func (s *IdeaService) Get(ctx context.Context, id string) (*domain.Idea, error) {
	return s.store.GetIdea(ctx, id)
}

// Submit stores a new idea. Anonymous actors may submit; the idea then has no
// author.
func (s *IdeaService) Submit(ctx context.Context, actor domain.Actor, req domain.CreateIdeaRequest, n *notice.Notices) (*domain.Idea, error) {
	const action = "idea.submit"
	if err := validation.ValidateIdea(req.Name, req.Description); err != nil {
		return nil, s.done(action, invalid(n, err))
	}

	idea := &domain.Idea{
		ID:          s.opts.NewID(),
		Name:        strings.TrimSpace(req.Name),
		Description: validation.SanitizeDescription(req.Description),
		Author:      actor.User,
		PostTime:    s.opts.Now(),
	}
	if err := s.store.CreateIdea(ctx, idea); err != nil {
		return nil, s.done(action, fmt.Errorf("creating idea: %w", err))
	}
	return idea, s.done(action, nil)
}

// Promote turns an idea into a project. The project takes the idea's ID, so
// an idea yields at most one project however many admins approve it at once.
// The project is created before the idea is deleted; if the delete fails both
// exist and the returned error wraps domain.ErrInconsistent. Promoting such a
// leftover idea again removes it and reports it as already approved.
func (s *IdeaService) Promote(ctx context.Context, actor domain.Actor, ideaID string, n *notice.Notices) (*domain.Project, error) {
	const action = "idea.promote"
	if !actor.Admin {
		return nil, s.done(action, s.deny(n, actor, action,
			"Only an administrator may approve submitted ideas. This incident has been logged."))
	}

	idea, err := s.store.GetIdea(ctx, ideaID)
	if err != nil {
		return nil, s.done(action, err)
	}

	project := domain.ProjectFromIdea(idea.ID, idea, s.opts.Now())
	if err := s.store.CreateProject(ctx, project); err != nil {
		if !errors.Is(err, domain.ErrAlreadyExists) {
			return nil, s.done(action, fmt.Errorf("creating project: %w", err))
		}
		if err := s.store.DeleteIdea(ctx, idea.ID); err != nil && !errors.Is(err, domain.ErrNotFound) {
			return nil, s.done(action, fmt.Errorf("removing promoted idea: %w", err))
		}
		return nil, s.done(action, reject(n, "This idea has already been approved."))
	}

	if err := s.store.DeleteIdea(ctx, idea.ID); err != nil {
		s.inconsistent(action, "idea promoted but not deleted",
			zap.String("idea_id", idea.ID),
			zap.String("project_id", project.ID),
			zap.Error(err))
		return project, s.done(action, fmt.Errorf("%w: idea %s promoted to project %s but not deleted: %v",
			domain.ErrInconsistent, idea.ID, project.ID, err))
	}

	s.log.Info("idea promoted",
		zap.String("idea_id", idea.ID),
		zap.String("project_id", project.ID),
		zap.String("by", actor.User.String()))
	return project, s.done(action, nil)
}

// Delete removes an idea. Administrators only.
func (s *IdeaService) Delete(ctx context.Context, actor domain.Actor, ideaID string, n *notice.Notices) error {
	const action = "idea.delete"
	if !actor.Admin {
		return s.done(action, s.deny(n, actor, action,
			"Only an administrator may delete submitted ideas. This incident has been logged."))
	}
	return s.done(action, s.store.DeleteIdea(ctx, ideaID))
}
