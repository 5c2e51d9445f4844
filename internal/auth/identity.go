package auth

import (
	"context"
	"slices"
	"strings"

	"github.com/bcnelson/hackathon-manager/internal/domain"
)

// UserFromExternalID maps an identifier issued by the identity provider to the
// canonical user id. All user ids stored on entities pass through here.
func UserFromExternalID(id string) domain.UserID {
	return domain.UserID(strings.ToLower(strings.TrimSpace(id)))
}

// Principal is the signed in user of a request.
type Principal struct {
	User  domain.UserID
	Email string
	Name  string
	Admin bool
}

// CurrentUser returns the user id, or false for an anonymous request.
// It is safe to call on a nil Principal.
func (p *Principal) CurrentUser() (domain.UserID, bool) {
	if p == nil || p.User == "" {
		return "", false
	}
	return p.User, true
}

// IsAdmin reports whether the user holds administrator rights.
func (p *Principal) IsAdmin() bool {
	return p != nil && p.User != "" && p.Admin
}

// Actor returns the workflow actor for the principal.
func (p *Principal) Actor() domain.Actor {
	u, ok := p.CurrentUser()
	if !ok {
		return domain.Anonymous
	}
	return domain.Actor{User: u, Admin: p.IsAdmin()}
}

// DisplayName returns the name shown in the page header.
func (p *Principal) DisplayName() string {
	if p == nil {
		return ""
	}
	if p.Name != "" {
		return p.Name
	}
	return p.Email
}

// AdminPolicy decides administrator rights at login.
type AdminPolicy struct {
	users map[domain.UserID]struct{}
	group string
}

// NewAdminPolicy grants admin rights to the listed e-mail addresses and to
// members of the given identity provider group, if any.
func NewAdminPolicy(emails []string, group string) *AdminPolicy {
	p := &AdminPolicy{users: make(map[domain.UserID]struct{}, len(emails)), group: group}
	for _, e := range emails {
		if u := UserFromExternalID(e); u != "" {
			p.users[u] = struct{}{}
		}
	}
	return p
}

// IsAdmin reports whether user, with the given provider groups, is an admin.
func (p *AdminPolicy) IsAdmin(user domain.UserID, groups []string) bool {
	if p == nil || user == "" {
		return false
	}
	if _, ok := p.users[user]; ok {
		return true
	}
	return p.group != "" && slices.Contains(groups, p.group)
}

// NewPrincipal builds the principal for a freshly authenticated user.
func (p *AdminPolicy) NewPrincipal(email, name string, groups []string) *Principal {
	user := UserFromExternalID(email)
	return &Principal{
		User:  user,
		Email: strings.TrimSpace(email),
		Name:  name,
		Admin: p.IsAdmin(user, groups),
	}
}

type contextKey string

const principalKey contextKey = "principal"

// WithPrincipal returns a context carrying p.
func WithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, principalKey, p)
}

// PrincipalFromContext returns the principal of the request, or nil.
func PrincipalFromContext(ctx context.Context) *Principal {
	p, _ := ctx.Value(principalKey).(*Principal)
	return p
}

// ActorFromContext returns the workflow actor of the request.
func ActorFromContext(ctx context.Context) domain.Actor {
	return PrincipalFromContext(ctx).Actor()
}
