package domain

import "slices"

// UserID is the canonical identifier of a user. Values are produced by
// auth.UserFromExternalID and compared as plain strings.
type UserID string

func (u UserID) String() string { return string(u) }

// Actor is the user on whose behalf a workflow runs.
type Actor struct {
	User  UserID
	Admin bool
}

// Authenticated reports whether the actor is signed in.
func (a Actor) Authenticated() bool { return a.User != "" }

// Anonymous is the actor of a request without a session.
var Anonymous = Actor{}

func containsUser(list []UserID, u UserID) bool {
	return slices.Contains(list, u)
}

func removeUser(list []UserID, u UserID) ([]UserID, bool) {
	i := slices.Index(list, u)
	if i < 0 {
		return list, false
	}
	return slices.Delete(list, i, i+1), true
}
