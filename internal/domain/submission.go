package domain

import "time"

// Submission is a link a group posts as its final deliverable.
type Submission struct {
	ID        string    `json:"id" db:"id"`
	Text      string    `json:"text" db:"text"`
	URL       string    `json:"url" db:"url"`
	Weight    int       `json:"weight" db:"weight"` // display order, lower first
	GroupID   string    `json:"group_id" db:"group_id"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}
