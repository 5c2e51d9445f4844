package service

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"go.uber.org/zap"

	"github.com/bcnelson/hackathon-manager/internal/auth"
	"github.com/bcnelson/hackathon-manager/internal/config"
	"github.com/bcnelson/hackathon-manager/internal/domain"
	"github.com/bcnelson/hackathon-manager/internal/notice"
	"github.com/bcnelson/hackathon-manager/internal/validation"
)

// Notices shared by several group workflows.
const (
	msgAlreadyInGroup    = "You are already in a group"
	msgAlreadyApplied    = "You have already applied to join a group"
	msgNameTaken         = "A group with that name already exists"
	msgOnlyOwnerEdits    = "Only the owner of this group may edit it"
	msgCannotRemoveOwner = "Cannot remove the group owner"
)

// Decision resolves a pending join request.
type Decision string

const (
	Approve Decision = "approve"
	Refuse  Decision = "refuse"
)

// EditGroupRequest is the bulk moderation form of a group. Zero values leave
// the corresponding setting unchanged, except Public which is always applied.
type EditGroupRequest struct {
	Name              string
	Public            bool
	AbandonProject    bool
	SubmissionText    string
	SubmissionURL     string
	RemoveSubmissions []string
	Decisions         map[domain.UserID]Decision
	Owner             string   // external id of the new owner
	RemoveMembers     []string // external ids
	Delete            bool
}

// GroupService implements the group membership state machine.
type GroupService struct {
	base
}

// List returns all groups ordered by name.
func (s *GroupService) List(ctx context.Context) ([]*domain.Group, error) {
	return s.store.ListGroups(ctx)
}

// Get returns one group.
func (s *GroupService) Get(ctx context.Context, id string) (*domain.Group, error) {
	return s.store.GetGroup(ctx, id)
}

// ForUser returns the group u is a member of or pending in, or nil.
func (s *GroupService) ForUser(ctx context.Context, u domain.UserID) (*domain.Group, error) {
	if u == "" {
		return nil, nil
	}
	g, err := s.store.GetGroupByUser(ctx, u)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, nil
	}
	return g, err
}

// Submissions returns the submissions of a group in display order.
func (s *GroupService) Submissions(ctx context.Context, groupID string) ([]*domain.Submission, error) {
	return s.store.ListSubmissions(ctx, groupID)
}

// CanCreate reports whether the actor may sign up a new group, adding a
// notice when not.
func (s *GroupService) CanCreate(ctx context.Context, actor domain.Actor, n *notice.Notices) (bool, error) {
	if !actor.Authenticated() {
		n.Add("You must be logged in to create a group")
		return false, nil
	}
	g, err := s.ForUser(ctx, actor.User)
	if err != nil {
		return false, err
	}
	if g != nil {
		n.Add(msgAlreadyInGroup)
		return false, nil
	}
	return true, nil
}

// Create signs up a group owned by the actor, who becomes its only member.
func (s *GroupService) Create(ctx context.Context, actor domain.Actor, req domain.CreateGroupRequest, n *notice.Notices) (*domain.Group, error) {
	const action = "group.create"
	if err := s.requireUser(n, actor, action, "You must be logged in to create a group"); err != nil {
		return nil, s.done(action, err)
	}
	name := strings.TrimSpace(req.Name)
	if err := validation.ValidateGroupName(name); err != nil {
		return nil, s.done(action, invalid(n, err))
	}

	if g, err := s.ForUser(ctx, actor.User); err != nil {
		return nil, s.done(action, err)
	} else if g != nil {
		return nil, s.done(action, reject(n, msgAlreadyInGroup))
	}
	if taken, err := s.nameTaken(ctx, name, ""); err != nil {
		return nil, s.done(action, err)
	} else if taken {
		return nil, s.done(action, reject(n, msgNameTaken))
	}

	g := domain.NewGroup(s.opts.NewID(), name, req.Public, actor.User, s.opts.Now())
	if err := s.store.CreateGroup(ctx, g); err != nil {
		if errors.Is(err, domain.ErrAlreadyExists) {
			// lost a race; report whichever rule was broken
			if taken, _ := s.nameTaken(ctx, name, ""); taken {
				return nil, s.done(action, reject(n, msgNameTaken))
			}
			return nil, s.done(action, reject(n, msgAlreadyInGroup))
		}
		return nil, s.done(action, fmt.Errorf("creating group: %w", err))
	}

	s.log.Info("group created",
		zap.String("group_id", g.ID),
		zap.String("name", g.Name),
		zap.Bool("public", g.Public),
		zap.String("owner", g.Owner.String()))
	return g, s.done(action, nil)
}

func (s *GroupService) nameTaken(ctx context.Context, name, exceptID string) (bool, error) {
	g, err := s.store.GetGroupByName(ctx, name)
	if errors.Is(err, domain.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return g.ID != exceptID, nil
}

// RequestJoin adds the actor to a public group or to the pending queue of a
// private one. A user is affiliated with at most one group.
func (s *GroupService) RequestJoin(ctx context.Context, actor domain.Actor, groupID string, n *notice.Notices) (domain.Membership, error) {
	const action = "group.join"
	if err := s.requireUser(n, actor, action, "You must be logged in to join a group"); err != nil {
		return domain.NotAffiliated, s.done(action, err)
	}

	result := domain.NotAffiliated
	err := s.mutate(ctx, action, n, func(n *notice.Notices) error {
		g, err := s.store.GetGroup(ctx, groupID)
		if err != nil {
			return err
		}
		current, err := s.ForUser(ctx, actor.User)
		if err != nil {
			return err
		}
		if current != nil {
			if current.IsPending(actor.User) {
				return reject(n, msgAlreadyApplied)
			}
			return reject(n, msgAlreadyInGroup)
		}

		m, err := g.Join(actor.User)
		if err != nil {
			return reject(n, msgAlreadyInGroup)
		}
		if err := s.store.UpdateGroup(ctx, g); err != nil {
			if errors.Is(err, domain.ErrAlreadyExists) {
				return reject(n, msgAlreadyInGroup)
			}
			return err
		}

		result = m
		if m == domain.Member {
			n.Add("You have joined the group")
		} else {
			n.Add("You have requested to join the group")
		}
		return nil
	})
	return result, err
}

// Leave takes the actor off the roster of the group. What happens when the
// owner leaves depends on the owner leave policy.
func (s *GroupService) Leave(ctx context.Context, actor domain.Actor, groupID string, n *notice.Notices) error {
	const action = "group.leave"
	if err := s.requireUser(n, actor, action, "You cannot leave a group you are not in"); err != nil {
		return s.done(action, err)
	}

	return s.mutate(ctx, action, n, func(n *notice.Notices) error {
		g, err := s.store.GetGroup(ctx, groupID)
		if err != nil {
			return err
		}
		if !g.IsMember(actor.User) {
			return reject(n, "You cannot leave a group you are not in")
		}

		if g.IsOwner(actor.User) {
			switch s.opts.OwnerLeavePolicy {
			case config.OwnerLeaveDisband:
				if err := s.destroy(ctx, g, action); err != nil {
					return err
				}
				n.Add("You have left the group and it has been disbanded")
				return nil
			case config.OwnerLeaveAllow:
				s.log.Info("owner left group",
					zap.String("group_id", g.ID),
					zap.String("owner", actor.User.String()))
			default:
				return reject(n, "The group owner cannot leave the group. Transfer ownership or disband the group first")
			}
		}

		if err := g.Leave(actor.User); err != nil {
			return reject(n, "You cannot leave a group you are not in")
		}
		if err := s.store.UpdateGroup(ctx, g); err != nil {
			return err
		}
		n.Add("You have left the group")
		return nil
	})
}

// manage loads a group inside a mutate attempt and checks that the actor may
// moderate it.
func (s *GroupService) manage(ctx context.Context, actor domain.Actor, action, groupID string, n *notice.Notices) (*domain.Group, error) {
	g, err := s.store.GetGroup(ctx, groupID)
	if err != nil {
		return nil, err
	}
	if !g.CanManage(actor) {
		return nil, s.deny(n, actor, action, msgOnlyOwnerEdits)
	}
	return g, nil
}

// Manage returns the group when the actor may moderate it. Otherwise a
// notice is queued and a permission error returned.
func (s *GroupService) Manage(ctx context.Context, actor domain.Actor, groupID string, n *notice.Notices) (*domain.Group, error) {
	return s.manage(ctx, actor, "group.edit_form", groupID, n)
}

// Approve moves a pending user onto the roster. Owner or administrator only.
func (s *GroupService) Approve(ctx context.Context, actor domain.Actor, groupID string, user domain.UserID, n *notice.Notices) error {
	const action = "group.approve"
	return s.mutate(ctx, action, n, func(n *notice.Notices) error {
		g, err := s.manage(ctx, actor, action, groupID, n)
		if err != nil {
			return err
		}
		if err := g.Approve(user); err != nil {
			return reject(n, fmt.Sprintf("%s has not asked to join this group", user))
		}
		return s.store.UpdateGroup(ctx, g)
	})
}

// Refuse drops a pending join request. The user may ask again afterwards.
func (s *GroupService) Refuse(ctx context.Context, actor domain.Actor, groupID string, user domain.UserID, n *notice.Notices) error {
	const action = "group.refuse"
	return s.mutate(ctx, action, n, func(n *notice.Notices) error {
		g, err := s.manage(ctx, actor, action, groupID, n)
		if err != nil {
			return err
		}
		if err := g.Refuse(user); err != nil {
			return reject(n, fmt.Sprintf("%s has not asked to join this group", user))
		}
		return s.store.UpdateGroup(ctx, g)
	})
}

// TransferOwnership hands the group to another user. The new owner does not
// have to be a member and is not added to the roster.
func (s *GroupService) TransferOwnership(ctx context.Context, actor domain.Actor, groupID, newOwnerExternalID string, n *notice.Notices) error {
	const action = "group.transfer"
	newOwner := auth.UserFromExternalID(newOwnerExternalID)
	if newOwner == "" {
		return s.done(action, invalid(n, errors.New("the new owner must not be empty")))
	}
	return s.mutate(ctx, action, n, func(n *notice.Notices) error {
		g, err := s.manage(ctx, actor, action, groupID, n)
		if err != nil {
			return err
		}
		s.setOwner(g, newOwner)
		return s.store.UpdateGroup(ctx, g)
	})
}

func (s *GroupService) setOwner(g *domain.Group, owner domain.UserID) {
	if g.Owner == owner {
		return
	}
	if !g.IsMember(owner) {
		s.log.Info("ownership transferred to non-member",
			zap.String("group_id", g.ID),
			zap.String("from", g.Owner.String()),
			zap.String("to", owner.String()))
	}
	g.Owner = owner
}

// RemoveMember takes a user off the roster. The owner can never be removed.
func (s *GroupService) RemoveMember(ctx context.Context, actor domain.Actor, groupID string, user domain.UserID, n *notice.Notices) error {
	const action = "group.remove_member"
	return s.mutate(ctx, action, n, func(n *notice.Notices) error {
		g, err := s.manage(ctx, actor, action, groupID, n)
		if err != nil {
			return err
		}
		if g.IsOwner(user) {
			return reject(n, msgCannotRemoveOwner)
		}
		if err := g.RemoveMember(user); err != nil {
			return reject(n, fmt.Sprintf("%s is not a member of this group", user))
		}
		return s.store.UpdateGroup(ctx, g)
	})
}

// Disband deletes the group on behalf of its owner or an administrator.
func (s *GroupService) Disband(ctx context.Context, actor domain.Actor, groupID string, n *notice.Notices) error {
	const action = "group.disband"
	g, err := s.manage(ctx, actor, action, groupID, n)
	if err != nil {
		return s.done(action, err)
	}
	return s.done(action, s.destroy(ctx, g, action))
}

// Delete removes a group. Administrators only.
func (s *GroupService) Delete(ctx context.Context, actor domain.Actor, groupID string, n *notice.Notices) error {
	const action = "group.delete"
	if !actor.Admin {
		return s.done(action, s.deny(n, actor, action,
			"Only an administrator may delete groups. This incident has been logged."))
	}
	g, err := s.store.GetGroup(ctx, groupID)
	if err != nil {
		return s.done(action, err)
	}
	return s.done(action, s.destroy(ctx, g, action))
}

// destroy deletes the group, then its submissions. Submissions left behind by
// a failure are logged as an inconsistency.
func (s *GroupService) destroy(ctx context.Context, g *domain.Group, action string) error {
	if err := s.store.DeleteGroup(ctx, g.ID); err != nil {
		return err
	}
	if err := s.store.DeleteAllSubmissionsForGroup(ctx, g.ID); err != nil {
		s.inconsistent(action, "orphaned submissions",
			zap.String("group_id", g.ID),
			zap.Error(err))
		return fmt.Errorf("%w: group %s deleted but its submissions were not: %v", domain.ErrInconsistent, g.ID, err)
	}
	s.log.Info("group deleted",
		zap.String("group_id", g.ID),
		zap.String("name", g.Name),
		zap.Strings("members", userStrings(g.Members)))
	return nil
}

// Edit applies the moderation form. A delete request short-circuits
// everything else. Otherwise the group is changed in order: rename and
// visibility, abandon project, resolve pending users, transfer ownership,
// remove members. Member removals are checked against the new owner. All
// group changes are written in one versioned put, and only after it succeeds
// is the new submission added and are the selected submissions removed, so a
// rejected form leaves everything untouched. This reverses the historical
// form order, which handled submissions before the membership changes; the
// end state is the same whenever every write succeeds. A submission write
// that fails after the put wraps domain.ErrInconsistent.
// It returns true when the group was deleted.
func (s *GroupService) Edit(ctx context.Context, actor domain.Actor, groupID string, req EditGroupRequest, n *notice.Notices) (bool, error) {
	const action = "group.edit"
	if err := s.requireUser(n, actor, action, msgOnlyOwnerEdits); err != nil {
		return false, s.done(action, err)
	}

	if req.Delete {
		g, err := s.manage(ctx, actor, action, groupID, n)
		if err != nil {
			return false, s.done(action, err)
		}
		if err := s.destroy(ctx, g, action); err != nil {
			return false, s.done(action, err)
		}
		return true, s.done(action, nil)
	}

	name := strings.TrimSpace(req.Name)
	if name != "" {
		if err := validation.ValidateGroupName(name); err != nil {
			return false, s.done(action, invalid(n, err))
		}
	}
	text := strings.TrimSpace(req.SubmissionText)
	link := strings.TrimSpace(req.SubmissionURL)
	addSubmission := text != "" && link != ""
	if addSubmission {
		if err := validation.ValidateSubmission(text, link); err != nil {
			return false, s.done(action, invalid(n, err))
		}
	}
	remove := make([]domain.UserID, 0, len(req.RemoveMembers))
	for _, raw := range req.RemoveMembers {
		if u := auth.UserFromExternalID(raw); u != "" {
			remove = append(remove, u)
		}
	}

	var updated *domain.Group
	err := s.retryConflicts(ctx, action, n, func(n *notice.Notices) error {
		g, err := s.manage(ctx, actor, action, groupID, n)
		if err != nil {
			return err
		}

		if name != "" && name != g.Name {
			taken, err := s.nameTaken(ctx, name, g.ID)
			if err != nil {
				return err
			}
			if taken {
				return reject(n, msgNameTaken)
			}
			g.Name = name
		}
		g.Public = req.Public

		if req.AbandonProject {
			g.ProjectID = ""
		}

		for _, u := range slices.Clone(g.PendingUsers) {
			switch req.Decisions[u] {
			case Approve:
				_ = g.Approve(u)
			case Refuse:
				_ = g.Refuse(u)
			}
		}

		if owner := auth.UserFromExternalID(req.Owner); owner != "" {
			s.setOwner(g, owner)
		}

		for _, u := range remove {
			if g.IsOwner(u) {
				return reject(n, msgCannotRemoveOwner)
			}
			if err := g.RemoveMember(u); err != nil {
				return reject(n, fmt.Sprintf("%s is not a member of this group", u))
			}
		}

		if err := s.store.UpdateGroup(ctx, g); err != nil {
			if errors.Is(err, domain.ErrAlreadyExists) {
				return reject(n, msgNameTaken)
			}
			return err
		}
		updated = g
		return nil
	})
	if err != nil {
		return false, s.done(action, err)
	}
	err = s.editSubmissions(ctx, actor, action, updated, text, link, addSubmission, req.RemoveSubmissions)
	return false, s.done(action, err)
}

// editSubmissions applies the submission part of an edit after the group
// itself was saved. A failure here leaves the group changed, so it is
// reported as an inconsistency.
func (s *GroupService) editSubmissions(ctx context.Context, actor domain.Actor, action string, g *domain.Group, text, link string, add bool, remove []string) error {
	partial := func(what string, err error, fields ...zap.Field) error {
		s.inconsistent(action, what, append([]zap.Field{zap.String("group_id", g.ID), zap.Error(err)}, fields...)...)
		return fmt.Errorf("%w: group %s saved but %s: %v", domain.ErrInconsistent, g.ID, what, err)
	}

	if add {
		sub := &domain.Submission{
			ID:        s.opts.NewID(),
			Text:      text,
			URL:       link,
			GroupID:   g.ID,
			CreatedAt: s.opts.Now(),
		}
		if err := s.store.CreateSubmission(ctx, sub); err != nil {
			return partial("submission not added", err)
		}
	}

	if len(remove) == 0 {
		return nil
	}
	subs, err := s.store.GetSubmissions(ctx, remove)
	if err != nil {
		return partial("submissions not removed", err)
	}
	for _, sub := range subs {
		if sub.GroupID != g.ID {
			s.log.Warn("refusing to remove submission of another group",
				zap.String("group_id", g.ID),
				zap.String("submission_id", sub.ID),
				zap.String("user", actor.User.String()))
			continue
		}
		if err := s.store.DeleteSubmission(ctx, sub.ID); err != nil && !errors.Is(err, domain.ErrNotFound) {
			return partial("submission not removed", err, zap.String("submission_id", sub.ID))
		}
	}
	return nil
}

func userStrings(users []domain.UserID) []string {
	out := make([]string, len(users))
	for i, u := range users {
		out[i] = string(u)
	}
	return out
}
