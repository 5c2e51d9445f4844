package domain

import "time"

// Idea is a project proposal that has not been approved yet.
// Ideas are never updated; they are either promoted or deleted.
type Idea struct {
	ID          string    `json:"id" db:"id"`
	Name        string    `json:"name" db:"name"`
	Description string    `json:"description" db:"description"`
	Author      UserID    `json:"author,omitempty" db:"author"` // empty when anonymous
	PostTime    time.Time `json:"post_time" db:"post_time"`
}

// Anonymous reports whether the idea was posted without a signed in user.
func (i *Idea) Anonymous() bool { return i.Author == "" }

// CreateIdeaRequest is the request body for submitting an idea.
type CreateIdeaRequest struct {
	Name        string `json:"name" yaml:"name"`
	Description string `json:"description" yaml:"description"`
}
