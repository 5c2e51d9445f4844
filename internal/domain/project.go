package domain

import (
	"fmt"
	"slices"
	"time"
)

// Project is an approved idea that users vote on and groups claim.
type Project struct {
	ID          string    `json:"id" db:"id"`
	Name        string    `json:"name" db:"name"`
	Description string    `json:"description" db:"description"`
	Author      UserID    `json:"author,omitempty" db:"author"`
	PostTime    time.Time `json:"post_time" db:"post_time"` // copied from the idea
	Votes       []UserID  `json:"votes" db:"-"`             // Stored in separate table
	Version     int64     `json:"version" db:"version"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time `json:"updated_at" db:"updated_at"`
}

// HasVoted reports whether u has a vote on the project.
func (p *Project) HasVoted(u UserID) bool {
	return containsUser(p.Votes, u)
}

// CastVote records a vote for u. Voting twice is a no-op.
func (p *Project) CastVote(u UserID) {
	if !p.HasVoted(u) {
		p.Votes = append(p.Votes, u)
	}
}

// RetractVote removes the vote of u. It fails without touching the vote set
// when u has not voted.
func (p *Project) RetractVote(u UserID) error {
	votes, ok := removeUser(p.Votes, u)
	if !ok {
		return fmt.Errorf("%w: %s has not voted for %s", ErrInvalidState, u, p.ID)
	}
	p.Votes = votes
	return nil
}

// VoteCount returns the number of votes.
func (p *Project) VoteCount() int { return len(p.Votes) }

// Clone returns a deep copy of the project.
func (p *Project) Clone() *Project {
	c := *p
	c.Votes = slices.Clone(p.Votes)
	return &c
}

// ProjectFromIdea builds the project an idea is promoted into. The post time is
// the idea's, not the promotion time.
func ProjectFromIdea(id string, idea *Idea, now time.Time) *Project {
	return &Project{
		ID:          id,
		Name:        idea.Name,
		Description: idea.Description,
		Author:      idea.Author,
		PostTime:    idea.PostTime,
		Votes:       []UserID{},
		Version:     1,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// CreateProjectRequest describes a project loaded directly, bypassing ideas.
type CreateProjectRequest struct {
	Name        string `json:"name" yaml:"name"`
	Description string `json:"description" yaml:"description"`
	Author      string `json:"author,omitempty" yaml:"author"`
}
