package storage

import (
	"context"

	"github.com/bcnelson/hackathon-manager/internal/domain"
)

// Storage defines the interface for the storage layer.
// Implementations must be safe for concurrent use.
//
// Each Create/Update/Delete call is atomic for the one entity it touches,
// including child rows such as votes and memberships. There is no way to
// group calls on several entities into one transaction.
//
// Update methods compare the Version of the passed entity with the stored one
// and fail with domain.ErrConflict when they differ. On success the entity's
// Version and UpdatedAt are advanced in place.
type Storage interface {
	// Close closes the storage connection.
	Close() error

	// Ideas
	CreateIdea(ctx context.Context, idea *domain.Idea) error
	GetIdea(ctx context.Context, id string) (*domain.Idea, error)
	ListIdeas(ctx context.Context) ([]*domain.Idea, error)
	DeleteIdea(ctx context.Context, id string) error

	// Projects
	CreateProject(ctx context.Context, project *domain.Project) error
	GetProject(ctx context.Context, id string) (*domain.Project, error)
	ListProjects(ctx context.Context) ([]*domain.Project, error)
	UpdateProject(ctx context.Context, project *domain.Project) error
	DeleteProject(ctx context.Context, id string) error

	// Groups
	//
	// CreateGroup and UpdateGroup return domain.ErrAlreadyExists when the name
	// is taken, when a member or pending user already belongs to another group,
	// or when another group has claimed the project.
	CreateGroup(ctx context.Context, group *domain.Group) error
	GetGroup(ctx context.Context, id string) (*domain.Group, error)
	GetGroupByName(ctx context.Context, name string) (*domain.Group, error)
	GetGroupByUser(ctx context.Context, user domain.UserID) (*domain.Group, error)
	ListGroups(ctx context.Context) ([]*domain.Group, error)
	ListGroupsByProject(ctx context.Context, projectID string) ([]*domain.Group, error)
	UpdateGroup(ctx context.Context, group *domain.Group) error
	DeleteGroup(ctx context.Context, id string) error

	// Submissions
	CreateSubmission(ctx context.Context, sub *domain.Submission) error
	GetSubmissions(ctx context.Context, ids []string) ([]*domain.Submission, error)
	ListSubmissions(ctx context.Context, groupID string) ([]*domain.Submission, error)
	DeleteSubmission(ctx context.Context, id string) error
	DeleteAllSubmissionsForGroup(ctx context.Context, groupID string) error
}
