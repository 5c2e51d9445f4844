package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/bcnelson/hackathon-manager/internal/domain"
)

// Store is an in-memory implementation of the storage interface for testing
// and local development. Entities are copied on the way in and out so callers
// never share state with the store.
type Store struct {
	mu sync.RWMutex

	ideas       map[string]*domain.Idea
	projects    map[string]*domain.Project
	groups      map[string]*domain.Group
	submissions map[string]*domain.Submission

	groupNames  map[string]string              // name -> group id
	affiliation map[domain.UserID]string       // member or pending user -> group id
	claims      map[string]map[string]struct{} // project id -> group ids
}

// New creates a new in-memory store.
func New() *Store {
	return &Store{
		ideas:       make(map[string]*domain.Idea),
		projects:    make(map[string]*domain.Project),
		groups:      make(map[string]*domain.Group),
		submissions: make(map[string]*domain.Submission),
		groupNames:  make(map[string]string),
		affiliation: make(map[domain.UserID]string),
		claims:      make(map[string]map[string]struct{}),
	}
}

func (s *Store) Close() error { return nil }

// ============================================
// Ideas
// ============================================

func (s *Store) CreateIdea(ctx context.Context, idea *domain.Idea) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.ideas[idea.ID]; exists {
		return domain.ErrAlreadyExists
	}
	c := *idea
	s.ideas[idea.ID] = &c
	return nil
}

func (s *Store) GetIdea(ctx context.Context, id string) (*domain.Idea, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	idea, exists := s.ideas[id]
	if !exists {
		return nil, domain.ErrNotFound
	}
	c := *idea
	return &c, nil
}

func (s *Store) ListIdeas(ctx context.Context) ([]*domain.Idea, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ideas := make([]*domain.Idea, 0, len(s.ideas))
	for _, idea := range s.ideas {
		c := *idea
		ideas = append(ideas, &c)
	}
	sort.Slice(ideas, func(i, j int) bool {
		if !ideas[i].PostTime.Equal(ideas[j].PostTime) {
			return ideas[i].PostTime.Before(ideas[j].PostTime)
		}
		return ideas[i].ID < ideas[j].ID
	})
	return ideas, nil
}

func (s *Store) DeleteIdea(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.ideas[id]; !exists {
		return domain.ErrNotFound
	}
	delete(s.ideas, id)
	return nil
}

// ============================================
// Projects
// ============================================

func (s *Store) CreateProject(ctx context.Context, project *domain.Project) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.projects[project.ID]; exists {
		return domain.ErrAlreadyExists
	}
	if project.Version == 0 {
		project.Version = 1
	}
	s.projects[project.ID] = project.Clone()
	return nil
}

func (s *Store) GetProject(ctx context.Context, id string) (*domain.Project, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	project, exists := s.projects[id]
	if !exists {
		return nil, domain.ErrNotFound
	}
	return project.Clone(), nil
}

func (s *Store) ListProjects(ctx context.Context) ([]*domain.Project, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	projects := make([]*domain.Project, 0, len(s.projects))
	for _, project := range s.projects {
		projects = append(projects, project.Clone())
	}
	sort.Slice(projects, func(i, j int) bool {
		if !projects[i].PostTime.Equal(projects[j].PostTime) {
			return projects[i].PostTime.Before(projects[j].PostTime)
		}
		return projects[i].ID < projects[j].ID
	})
	return projects, nil
}

func (s *Store) UpdateProject(ctx context.Context, project *domain.Project) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, exists := s.projects[project.ID]
	if !exists {
		return domain.ErrNotFound
	}
	if current.Version != project.Version {
		return domain.ErrConflict
	}
	project.Version++
	project.UpdatedAt = time.Now()
	s.projects[project.ID] = project.Clone()
	return nil
}

func (s *Store) DeleteProject(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.projects[id]; !exists {
		return domain.ErrNotFound
	}
	delete(s.projects, id)
	return nil
}

// ============================================
// Groups
// ============================================

// checkGroup verifies name uniqueness and single-group affiliation for a group
// about to be written. Callers hold the write lock.
func (s *Store) checkGroup(group *domain.Group) error {
	if owner, taken := s.groupNames[group.Name]; taken && owner != group.ID {
		return domain.ErrAlreadyExists
	}
	if group.ProjectID != "" {
		for id := range s.claims[group.ProjectID] {
			if id != group.ID {
				return domain.ErrAlreadyExists
			}
		}
	}
	seen := make(map[domain.UserID]struct{}, len(group.Members)+len(group.PendingUsers))
	for _, users := range [][]domain.UserID{group.Members, group.PendingUsers} {
		for _, u := range users {
			if _, dup := seen[u]; dup {
				return domain.ErrAlreadyExists
			}
			seen[u] = struct{}{}
			if other, ok := s.affiliation[u]; ok && other != group.ID {
				return domain.ErrAlreadyExists
			}
		}
	}
	return nil
}

// unindex removes a stored group from the secondary indexes.
func (s *Store) unindex(group *domain.Group) {
	delete(s.groupNames, group.Name)
	for _, users := range [][]domain.UserID{group.Members, group.PendingUsers} {
		for _, u := range users {
			if s.affiliation[u] == group.ID {
				delete(s.affiliation, u)
			}
		}
	}
	if group.ProjectID != "" {
		delete(s.claims[group.ProjectID], group.ID)
		if len(s.claims[group.ProjectID]) == 0 {
			delete(s.claims, group.ProjectID)
		}
	}
}

func (s *Store) index(group *domain.Group) {
	s.groupNames[group.Name] = group.ID
	for _, users := range [][]domain.UserID{group.Members, group.PendingUsers} {
		for _, u := range users {
			s.affiliation[u] = group.ID
		}
	}
	if group.ProjectID != "" {
		if s.claims[group.ProjectID] == nil {
			s.claims[group.ProjectID] = make(map[string]struct{})
		}
		s.claims[group.ProjectID][group.ID] = struct{}{}
	}
}

func (s *Store) CreateGroup(ctx context.Context, group *domain.Group) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.groups[group.ID]; exists {
		return domain.ErrAlreadyExists
	}
	if err := s.checkGroup(group); err != nil {
		return err
	}
	if group.Version == 0 {
		group.Version = 1
	}
	stored := group.Clone()
	s.groups[group.ID] = stored
	s.index(stored)
	return nil
}

func (s *Store) GetGroup(ctx context.Context, id string) (*domain.Group, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	group, exists := s.groups[id]
	if !exists {
		return nil, domain.ErrNotFound
	}
	return group.Clone(), nil
}

func (s *Store) GetGroupByName(ctx context.Context, name string) (*domain.Group, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, exists := s.groupNames[name]
	if !exists {
		return nil, domain.ErrNotFound
	}
	return s.groups[id].Clone(), nil
}

func (s *Store) GetGroupByUser(ctx context.Context, user domain.UserID) (*domain.Group, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, exists := s.affiliation[user]
	if !exists {
		return nil, domain.ErrNotFound
	}
	return s.groups[id].Clone(), nil
}

func (s *Store) ListGroups(ctx context.Context) ([]*domain.Group, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	groups := make([]*domain.Group, 0, len(s.groups))
	for _, group := range s.groups {
		groups = append(groups, group.Clone())
	}
	sort.Slice(groups, func(i, j int) bool { return groups[i].Name < groups[j].Name })
	return groups, nil
}

func (s *Store) ListGroupsByProject(ctx context.Context, projectID string) ([]*domain.Group, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	groups := make([]*domain.Group, 0, len(s.claims[projectID]))
	for id := range s.claims[projectID] {
		groups = append(groups, s.groups[id].Clone())
	}
	sort.Slice(groups, func(i, j int) bool { return groups[i].Name < groups[j].Name })
	return groups, nil
}

func (s *Store) UpdateGroup(ctx context.Context, group *domain.Group) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, exists := s.groups[group.ID]
	if !exists {
		return domain.ErrNotFound
	}
	if current.Version != group.Version {
		return domain.ErrConflict
	}
	if err := s.checkGroup(group); err != nil {
		return err
	}
	group.Version++
	group.UpdatedAt = time.Now()
	s.unindex(current)
	stored := group.Clone()
	s.groups[group.ID] = stored
	s.index(stored)
	return nil
}

func (s *Store) DeleteGroup(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	group, exists := s.groups[id]
	if !exists {
		return domain.ErrNotFound
	}
	s.unindex(group)
	delete(s.groups, id)
	return nil
}

// ============================================
// Submissions
// ============================================

func (s *Store) CreateSubmission(ctx context.Context, sub *domain.Submission) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.submissions[sub.ID]; exists {
		return domain.ErrAlreadyExists
	}
	c := *sub
	s.submissions[sub.ID] = &c
	return nil
}

// GetSubmissions returns the submissions with the given ids, skipping unknown ones.
func (s *Store) GetSubmissions(ctx context.Context, ids []string) ([]*domain.Submission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	subs := make([]*domain.Submission, 0, len(ids))
	for _, id := range ids {
		if sub, exists := s.submissions[id]; exists {
			c := *sub
			subs = append(subs, &c)
		}
	}
	return subs, nil
}

func (s *Store) ListSubmissions(ctx context.Context, groupID string) ([]*domain.Submission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	subs := make([]*domain.Submission, 0)
	for _, sub := range s.submissions {
		if sub.GroupID == groupID {
			c := *sub
			subs = append(subs, &c)
		}
	}
	sort.Slice(subs, func(i, j int) bool {
		if subs[i].Weight != subs[j].Weight {
			return subs[i].Weight < subs[j].Weight
		}
		return subs[i].CreatedAt.Before(subs[j].CreatedAt)
	})
	return subs, nil
}

func (s *Store) DeleteSubmission(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.submissions[id]; !exists {
		return domain.ErrNotFound
	}
	delete(s.submissions, id)
	return nil
}

func (s *Store) DeleteAllSubmissionsForGroup(ctx context.Context, groupID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, sub := range s.submissions {
		if sub.GroupID == groupID {
			delete(s.submissions, id)
		}
	}
	return nil
}
