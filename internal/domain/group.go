package domain

import (
	"fmt"
	"slices"
	"time"
)

// Membership is the relation between a user and a group.
type Membership int

const (
	NotAffiliated Membership = iota
	Pending
	Member
	Owner // a member that also owns the group
)

func (m Membership) String() string {
	switch m {
	case Pending:
		return "pending"
	case Member:
		return "member"
	case Owner:
		return "owner"
	default:
		return "not affiliated"
	}
}

// Group is a team of users, optionally claiming one project.
//
// Owner and Members are maintained independently: ownership may be handed to a
// user who is not on the roster. Members and PendingUsers never share a user.
type Group struct {
	ID           string    `json:"id" db:"id"`
	Name         string    `json:"name" db:"name"`
	Public       bool      `json:"public" db:"public"`
	Owner        UserID    `json:"owner" db:"owner"`
	ProjectID    string    `json:"project_id,omitempty" db:"project_id"` // empty when no project is claimed
	Members      []UserID  `json:"members" db:"-"`                       // Stored in separate table
	PendingUsers []UserID  `json:"pending_users" db:"-"`                 // Stored in separate table
	Version      int64     `json:"version" db:"version"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time `json:"updated_at" db:"updated_at"`
}

// NewGroup returns a group owned by owner, who is also its only member.
func NewGroup(id, name string, public bool, owner UserID, now time.Time) *Group {
	return &Group{
		ID:           id,
		Name:         name,
		Public:       public,
		Owner:        owner,
		Members:      []UserID{owner},
		PendingUsers: []UserID{},
		Version:      1,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

func (g *Group) IsMember(u UserID) bool  { return containsUser(g.Members, u) }
func (g *Group) IsPending(u UserID) bool { return containsUser(g.PendingUsers, u) }
func (g *Group) IsOwner(u UserID) bool   { return u != "" && g.Owner == u }

// Affiliated reports whether u is a member of, or waiting to join, the group.
func (g *Group) Affiliated(u UserID) bool {
	return g.IsMember(u) || g.IsPending(u)
}

// MembershipOf returns the state of u with respect to the group.
func (g *Group) MembershipOf(u UserID) Membership {
	switch {
	case g.IsMember(u) && g.IsOwner(u):
		return Owner
	case g.IsMember(u):
		return Member
	case g.IsPending(u):
		return Pending
	default:
		return NotAffiliated
	}
}

// CanManage reports whether the actor may moderate the group.
func (g *Group) CanManage(a Actor) bool {
	return a.Admin || g.IsOwner(a.User)
}

// HasProject reports whether the group has claimed a project.
func (g *Group) HasProject() bool { return g.ProjectID != "" }

// Join adds u to the roster of a public group or to the pending queue of a
// private one, and returns the resulting membership.
func (g *Group) Join(u UserID) (Membership, error) {
	if g.Affiliated(u) {
		return g.MembershipOf(u), fmt.Errorf("%w: %s is already affiliated with %s", ErrInvalidState, u, g.ID)
	}
	if g.Public {
		g.Members = append(g.Members, u)
		return Member, nil
	}
	g.PendingUsers = append(g.PendingUsers, u)
	return Pending, nil
}

// Approve moves a pending user onto the roster.
func (g *Group) Approve(u UserID) error {
	pending, ok := removeUser(g.PendingUsers, u)
	if !ok {
		return fmt.Errorf("%w: %s is not pending in %s", ErrInvalidState, u, g.ID)
	}
	g.PendingUsers = pending
	g.Members = append(g.Members, u)
	return nil
}

// Refuse drops a pending user.
func (g *Group) Refuse(u UserID) error {
	pending, ok := removeUser(g.PendingUsers, u)
	if !ok {
		return fmt.Errorf("%w: %s is not pending in %s", ErrInvalidState, u, g.ID)
	}
	g.PendingUsers = pending
	return nil
}

// RemoveMember takes u off the roster. The owner is never removed this way.
func (g *Group) RemoveMember(u UserID) error {
	if g.IsOwner(u) {
		return fmt.Errorf("%w: cannot remove the owner of %s", ErrInvalidState, g.ID)
	}
	members, ok := removeUser(g.Members, u)
	if !ok {
		return fmt.Errorf("%w: %s is not a member of %s", ErrInvalidState, u, g.ID)
	}
	g.Members = members
	return nil
}

// Leave takes u off the roster without the owner check; owner departure
// policy is decided by the caller.
func (g *Group) Leave(u UserID) error {
	members, ok := removeUser(g.Members, u)
	if !ok {
		return fmt.Errorf("%w: %s is not a member of %s", ErrInvalidState, u, g.ID)
	}
	g.Members = members
	return nil
}

// Clone returns a deep copy of the group.
func (g *Group) Clone() *Group {
	c := *g
	c.Members = slices.Clone(g.Members)
	c.PendingUsers = slices.Clone(g.PendingUsers)
	return &c
}

// CreateGroupRequest is the form for signing up a group.
type CreateGroupRequest struct {
	Name   string `json:"name"`
	Public bool   `json:"public"`
}
