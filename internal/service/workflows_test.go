package service

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"testing"

	"go.uber.org/zap"

	"github.com/bcnelson/hackathon-manager/internal/domain"
	"github.com/bcnelson/hackathon-manager/internal/notice"
	"github.com/bcnelson/hackathon-manager/internal/storage/memory"
)

// failingDeleteStore refuses to delete ideas.
type failingDeleteStore struct {
	*memory.Store
}

func (s *failingDeleteStore) DeleteIdea(ctx context.Context, id string) error {
	return errors.New("disk full")
}

// racingVoteStore slips a vote from another user in before the first
// `races` project updates, so those updates see a stale version.
type racingVoteStore struct {
	*memory.Store
	races int
	voter domain.UserID
	calls int
}

func (s *racingVoteStore) UpdateProject(ctx context.Context, p *domain.Project) error {
	s.calls++
	if s.races > 0 {
		s.races--
		current, err := s.Store.GetProject(ctx, p.ID)
		if err != nil {
			return err
		}
		current.CastVote(s.voter)
		if err := s.Store.UpdateProject(ctx, current); err != nil {
			return err
		}
	}
	return s.Store.UpdateProject(ctx, p)
}

// racingPromoteStore runs race once, just before the first project insert.
type racingPromoteStore struct {
	*memory.Store
	race func()
}

func (s *racingPromoteStore) CreateProject(ctx context.Context, p *domain.Project) error {
	if race := s.race; race != nil {
		s.race = nil
		race()
	}
	return s.Store.CreateProject(ctx, p)
}

// racingClaimStore runs race once, after the first claim lookup has been
// answered and before its result is used.
type racingClaimStore struct {
	*memory.Store
	race func()
}

func (s *racingClaimStore) ListGroupsByProject(ctx context.Context, projectID string) ([]*domain.Group, error) {
	groups, err := s.Store.ListGroupsByProject(ctx, projectID)
	if race := s.race; race != nil {
		s.race = nil
		race()
	}
	return groups, err
}

func mustSubmitIdea(t *testing.T, svc *Services, actor domain.Actor, name string) *domain.Idea {
	t.Helper()
	var n notice.Notices
	idea, err := svc.Ideas.Submit(context.Background(), actor, domain.CreateIdeaRequest{Name: name, Description: name + " description"}, &n)
	if err != nil {
		t.Fatalf("submitting idea %s: %v", name, err)
	}
	return idea
}

func mustPromote(t *testing.T, svc *Services, name string) *domain.Project {
	t.Helper()
	idea := mustSubmitIdea(t, svc, alice, name)
	var n notice.Notices
	p, err := svc.Ideas.Promote(context.Background(), admin, idea.ID, &n)
	if err != nil {
		t.Fatalf("promoting %s: %v", name, err)
	}
	return p
}

// ============================================
// Ideas
// ============================================

func TestSubmitIdea(t *testing.T) {
	ctx := context.Background()
	svc := newTestServices(t, memory.New())

	var n notice.Notices
	idea, err := svc.Ideas.Submit(ctx, anon, domain.CreateIdeaRequest{
		Name:        "  Robot bartender  ",
		Description: `Pours drinks <script>alert("x")</script><b>fast</b>`,
	}, &n)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if idea.Name != "Robot bartender" {
		t.Errorf("expected trimmed name, got %q", idea.Name)
	}
	if !idea.Anonymous() {
		t.Errorf("expected anonymous idea, got author %q", idea.Author)
	}
	if strings.Contains(idea.Description, "<script>") || !strings.Contains(idea.Description, "<b>fast</b>") {
		t.Errorf("unexpected sanitized description %q", idea.Description)
	}

	ideas, _ := svc.Ideas.List(ctx)
	if len(ideas) != 1 {
		t.Errorf("expected 1 idea, got %d", len(ideas))
	}

	tests := []struct {
		name string
		req  domain.CreateIdeaRequest
	}{
		{"empty name", domain.CreateIdeaRequest{Name: " "}},
		{"long name", domain.CreateIdeaRequest{Name: strings.Repeat("x", 101)}},
		{"multi-line name", domain.CreateIdeaRequest{Name: "a\nb"}},
		{"long description", domain.CreateIdeaRequest{Name: "ok", Description: strings.Repeat("x", 10001)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var n notice.Notices
			_, err := svc.Ideas.Submit(ctx, alice, tt.req, &n)
			if !errors.Is(err, domain.ErrInvalidInput) {
				t.Fatalf("expected ErrInvalidInput, got %v", err)
			}
			if n.Len() != 1 {
				t.Errorf("expected one notice, got %q", n.Peek())
			}
		})
	}
}

func TestPromoteIdea(t *testing.T) {
	ctx := context.Background()
	svc := newTestServices(t, memory.New())
	idea := mustSubmitIdea(t, svc, alice, "Robot bartender")

	var n notice.Notices
	_, err := svc.Ideas.Promote(ctx, bob, idea.ID, &n)
	if !errors.Is(err, domain.ErrPermissionDenied) {
		t.Fatalf("expected ErrPermissionDenied, got %v", err)
	}
	expectNotice(t, &n, "Only an administrator may approve submitted ideas. This incident has been logged.")
	if _, err := svc.Ideas.Get(ctx, idea.ID); err != nil {
		t.Fatalf("denied promotion removed the idea: %v", err)
	}

	project, err := svc.Ideas.Promote(ctx, admin, idea.ID, &n)
	if err != nil {
		t.Fatalf("Promote: %v", err)
	}
	if project.Name != idea.Name || project.Description != idea.Description ||
		project.Author != idea.Author || !project.PostTime.Equal(idea.PostTime) {
		t.Errorf("project does not carry the idea: %+v vs %+v", project, idea)
	}
	if project.VoteCount() != 0 {
		t.Errorf("expected no votes, got %d", project.VoteCount())
	}
	if _, err := svc.Ideas.Get(ctx, idea.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("expected idea gone, got %v", err)
	}
	projects, _ := svc.Projects.List(ctx)
	if len(projects) != 1 || projects[0].ID != project.ID {
		t.Errorf("expected exactly the promoted project, got %v", projects)
	}

	if _, err := svc.Ideas.Promote(ctx, admin, idea.ID, &n); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("promoting twice: expected ErrNotFound, got %v", err)
	}
}

func TestPromoteIdeaPartialFailure(t *testing.T) {
	ctx := context.Background()
	store := &failingDeleteStore{Store: memory.New()}
	svc := newTestServices(t, store)
	idea := mustSubmitIdea(t, svc, alice, "Robot bartender")

	var n notice.Notices
	project, err := svc.Ideas.Promote(ctx, admin, idea.ID, &n)
	if !errors.Is(err, domain.ErrInconsistent) {
		t.Fatalf("expected ErrInconsistent, got %v", err)
	}
	if domain.IsRecoverable(err) {
		t.Error("an inconsistency must not be recoverable")
	}
	if project == nil {
		t.Fatal("expected the created project to be returned")
	}
	if _, err := store.GetProject(ctx, project.ID); err != nil {
		t.Errorf("expected the project to exist: %v", err)
	}
	if _, err := store.GetIdea(ctx, idea.ID); err != nil {
		t.Errorf("expected the idea to still exist: %v", err)
	}
}

func TestPromoteIdeaTwiceAtOnce(t *testing.T) {
	ctx := context.Background()
	store := &racingPromoteStore{Store: memory.New()}
	svc := newTestServices(t, store)
	idea := mustSubmitIdea(t, svc, alice, "Robot bartender")

	var inner *domain.Project
	store.race = func() {
		var n notice.Notices
		p, err := svc.Ideas.Promote(ctx, admin, idea.ID, &n)
		if err != nil {
			t.Errorf("concurrent Promote: %v", err)
		}
		inner = p
	}

	var n notice.Notices
	_, err := svc.Ideas.Promote(ctx, admin, idea.ID, &n)
	if !errors.Is(err, domain.ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState, got %v", err)
	}
	if !domain.IsRecoverable(err) {
		t.Error("an already approved idea should be recoverable")
	}
	expectNotice(t, &n, "This idea has already been approved.")

	projects, _ := svc.Projects.List(ctx)
	if len(projects) != 1 {
		t.Fatalf("expected one project, got %d", len(projects))
	}
	if inner == nil || projects[0].ID != inner.ID {
		t.Errorf("expected the first promotion's project, got %+v", projects[0])
	}
	if _, err := svc.Ideas.Get(ctx, idea.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("expected idea gone, got %v", err)
	}
}

func TestPromoteLeftoverIdea(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	svc := newTestServices(t, store)
	idea := mustSubmitIdea(t, svc, alice, "Robot bartender")

	// an earlier promotion created the project but failed to delete the idea
	if err := store.CreateProject(ctx, domain.ProjectFromIdea(idea.ID, idea, epoch)); err != nil {
		t.Fatalf("CreateProject: %v", err)
	}

	var n notice.Notices
	if _, err := svc.Ideas.Promote(ctx, admin, idea.ID, &n); !errors.Is(err, domain.ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState, got %v", err)
	}
	expectNotice(t, &n, "This idea has already been approved.")
	if _, err := svc.Ideas.Get(ctx, idea.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("expected leftover idea removed, got %v", err)
	}
	if projects, _ := svc.Projects.List(ctx); len(projects) != 1 {
		t.Errorf("expected one project, got %d", len(projects))
	}
}

func TestDeleteIdea(t *testing.T) {
	ctx := context.Background()
	svc := newTestServices(t, memory.New())
	idea := mustSubmitIdea(t, svc, alice, "Robot bartender")

	var n notice.Notices
	if err := svc.Ideas.Delete(ctx, alice, idea.ID, &n); !errors.Is(err, domain.ErrPermissionDenied) {
		t.Fatalf("author deleting: expected ErrPermissionDenied, got %v", err)
	}
	if err := svc.Ideas.Delete(ctx, admin, idea.ID, &n); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := svc.Ideas.Delete(ctx, admin, idea.ID, &n); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("deleting twice: expected ErrNotFound, got %v", err)
	}
}

// ============================================
// Voting
// ============================================

func TestToggleVote(t *testing.T) {
	ctx := context.Background()
	svc := newTestServices(t, memory.New())
	p := mustPromote(t, svc, "Robot bartender")

	var n notice.Notices
	voted, err := svc.Projects.ToggleVote(ctx, alice, p.ID, &n)
	if err != nil || !voted {
		t.Fatalf("first toggle: voted=%v err=%v", voted, err)
	}
	got, _ := svc.Projects.Get(ctx, p.ID)
	if !got.HasVoted(alice.User) || got.VoteCount() != 1 {
		t.Errorf("expected alice's vote, got %v", got.Votes)
	}

	voted, err = svc.Projects.ToggleVote(ctx, alice, p.ID, &n)
	if err != nil || voted {
		t.Fatalf("second toggle: voted=%v err=%v", voted, err)
	}
	got, _ = svc.Projects.Get(ctx, p.ID)
	if got.VoteCount() != 0 {
		t.Errorf("expected vote retracted, got %v", got.Votes)
	}

	n = notice.Notices{}
	if _, err := svc.Projects.ToggleVote(ctx, anon, p.ID, &n); !errors.Is(err, domain.ErrPermissionDenied) {
		t.Errorf("anonymous vote: expected ErrPermissionDenied, got %v", err)
	}
	expectNotice(t, &n, "You must be logged in to vote.")

	if _, err := svc.Projects.ToggleVote(ctx, alice, "missing", &n); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("unknown project: expected ErrNotFound, got %v", err)
	}
}

func TestToggleVoteRetriesConflicts(t *testing.T) {
	ctx := context.Background()
	store := &racingVoteStore{Store: memory.New(), voter: carol.User}
	svc := newTestServices(t, store)
	p := mustPromote(t, svc, "Robot bartender")

	store.races = 2
	var n notice.Notices
	voted, err := svc.Projects.ToggleVote(ctx, alice, p.ID, &n)
	if err != nil || !voted {
		t.Fatalf("ToggleVote: voted=%v err=%v", voted, err)
	}
	if store.calls != 3 {
		t.Errorf("expected 3 update attempts, got %d", store.calls)
	}
	got, _ := store.GetProject(ctx, p.ID)
	if !got.HasVoted(alice.User) || !got.HasVoted(carol.User) || got.VoteCount() != 2 {
		t.Errorf("expected both votes kept, got %v", got.Votes)
	}
}

func TestToggleVoteGivesUpAfterRetries(t *testing.T) {
	ctx := context.Background()
	store := &racingVoteStore{Store: memory.New(), voter: carol.User}
	svc := newTestServices(t, store, func(o *Options) { o.MaxRetries = 1 })
	p := mustPromote(t, svc, "Robot bartender")

	store.races = 10
	var n notice.Notices
	_, err := svc.Projects.ToggleVote(ctx, alice, p.ID, &n)
	if !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
	if store.calls != 2 {
		t.Errorf("expected 2 update attempts, got %d", store.calls)
	}
	got, _ := store.GetProject(ctx, p.ID)
	if got.HasVoted(alice.User) {
		t.Error("alice's vote must not be recorded")
	}
}

func TestConcurrentVotes(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	svc := newTestServices(t, store, func(o *Options) { o.MaxRetries = 50 })
	p := mustPromote(t, svc, "Robot bartender")

	// NewID and Now are not used by ToggleVote, so sharing them is safe.
	const voters = 10
	var wg sync.WaitGroup
	errs := make(chan error, voters)
	for i := 0; i < voters; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			var n notice.Notices
			actor := domain.Actor{User: domain.UserID(fmt.Sprintf("voter%d@example.com", i))}
			if _, err := svc.Projects.ToggleVote(ctx, actor, p.ID, &n); err != nil {
				errs <- err
			}
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Errorf("ToggleVote: %v", err)
	}

	got, _ := store.GetProject(ctx, p.ID)
	if got.VoteCount() != voters {
		t.Errorf("expected %d votes, got %d", voters, got.VoteCount())
	}
}

// ============================================
// Claims
// ============================================

func TestClaimProject(t *testing.T) {
	ctx := context.Background()
	svc := newTestServices(t, memory.New())
	p1 := mustPromote(t, svc, "Robot bartender")
	p2 := mustPromote(t, svc, "Smart fridge")
	rockets := mustCreateGroup(t, svc, alice, "Rockets", true)
	var n notice.Notices
	_, _ = svc.Groups.RequestJoin(ctx, bob, rockets.ID, &n)
	dave := domain.Actor{User: "dave@example.com"}
	mustCreateGroup(t, svc, dave, "Stealth", true)

	n = notice.Notices{}
	if _, err := svc.Projects.Claim(ctx, bob, p1.ID, &n); !errors.Is(err, domain.ErrPermissionDenied) {
		t.Fatalf("member claiming: expected ErrPermissionDenied, got %v", err)
	}
	expectNotice(t, &n, "You are not the owner of your group. Only the owner of the group may select a project.")

	if _, err := svc.Projects.Claim(ctx, carol, p1.ID, &n); !errors.Is(err, domain.ErrInvalidState) {
		t.Errorf("unaffiliated claiming: expected ErrInvalidState, got %v", err)
	}
	if _, err := svc.Projects.Claim(ctx, alice, "missing", &n); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("unknown project: expected ErrNotFound, got %v", err)
	}

	g, err := svc.Projects.Claim(ctx, alice, p1.ID, &n)
	if err != nil {
		t.Fatalf("Claim: %v", err)
	}
	if g.ProjectID != p1.ID {
		t.Errorf("expected claim on %s, got %q", p1.ID, g.ProjectID)
	}
	if _, err := svc.Projects.Claim(ctx, alice, p1.ID, &n); err != nil {
		t.Errorf("claiming again: %v", err)
	}

	n = notice.Notices{}
	if _, err := svc.Projects.Claim(ctx, dave, p1.ID, &n); !errors.Is(err, domain.ErrInvalidState) {
		t.Fatalf("second group claiming: expected ErrInvalidState, got %v", err)
	}
	expectNotice(t, &n, "The group Rockets has already selected this project.")

	if _, err := svc.Projects.Claim(ctx, alice, p2.ID, &n); err != nil {
		t.Fatalf("switching project: %v", err)
	}
	claimers, _ := svc.Projects.ClaimedBy(ctx, p1.ID)
	if len(claimers) != 0 {
		t.Errorf("expected p1 released, claimed by %d groups", len(claimers))
	}
	if _, err := svc.Projects.Claim(ctx, dave, p1.ID, &n); err != nil {
		t.Errorf("claiming released project: %v", err)
	}
}

func TestClaimProjectTwiceAtOnce(t *testing.T) {
	ctx := context.Background()
	store := &racingClaimStore{Store: memory.New()}
	svc := newTestServices(t, store)
	p := mustPromote(t, svc, "Robot bartender")
	mustCreateGroup(t, svc, alice, "Rockets", true)
	dave := domain.Actor{User: "dave@example.com"}
	stealth := mustCreateGroup(t, svc, dave, "Stealth", true)

	store.race = func() {
		var n notice.Notices
		if _, err := svc.Projects.Claim(ctx, dave, p.ID, &n); err != nil {
			t.Errorf("concurrent Claim: %v", err)
		}
	}

	var n notice.Notices
	_, err := svc.Projects.Claim(ctx, alice, p.ID, &n)
	if !errors.Is(err, domain.ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState, got %v", err)
	}
	expectNotice(t, &n, "The group Stealth has already selected this project.")

	claimers, _ := svc.Projects.ClaimedBy(ctx, p.ID)
	if len(claimers) != 1 || claimers[0].ID != stealth.ID {
		t.Errorf("expected only Stealth to claim the project, got %v", claimers)
	}
}

func TestDeleteProjectClearsClaims(t *testing.T) {
	ctx := context.Background()
	svc := newTestServices(t, memory.New())
	p := mustPromote(t, svc, "Robot bartender")
	g := mustCreateGroup(t, svc, alice, "Rockets", true)
	var n notice.Notices
	if _, err := svc.Projects.Claim(ctx, alice, p.ID, &n); err != nil {
		t.Fatalf("Claim: %v", err)
	}

	if err := svc.Projects.Delete(ctx, alice, p.ID, &n); !errors.Is(err, domain.ErrPermissionDenied) {
		t.Fatalf("non-admin delete: expected ErrPermissionDenied, got %v", err)
	}
	if err := svc.Projects.Delete(ctx, admin, p.ID, &n); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := svc.Projects.Get(ctx, p.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("expected project gone, got %v", err)
	}
	if got := mustGetGroup(t, svc, g.ID); got.HasProject() {
		t.Errorf("expected claim cleared, group still points at %s", got.ProjectID)
	}
	if err := svc.Projects.Delete(ctx, admin, p.ID, &n); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("deleting twice: expected ErrNotFound, got %v", err)
	}
}

func TestCreateProjectAdminOnly(t *testing.T) {
	ctx := context.Background()
	svc := newTestServices(t, memory.New())
	req := domain.CreateProjectRequest{Name: "Seeded", Description: "Loaded at start", Author: "Alice@Example.com"}

	var n notice.Notices
	if _, err := svc.Projects.Create(ctx, alice, req, &n); !errors.Is(err, domain.ErrPermissionDenied) {
		t.Fatalf("expected ErrPermissionDenied, got %v", err)
	}
	p, err := svc.Projects.Create(ctx, admin, req, &n)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if p.Author != alice.User {
		t.Errorf("expected canonical author %s, got %s", alice.User, p.Author)
	}
}

// ============================================
// Invariants under arbitrary operation sequences
// ============================================

func TestMembershipInvariantsHoldUnderRandomOperations(t *testing.T) {
	ctx := context.Background()
	rng := rand.New(rand.NewSource(42))
	store := memory.New()
	svc := newTestServices(t, store)

	users := make([]domain.Actor, 6)
	for i := range users {
		users[i] = domain.Actor{User: domain.UserID(fmt.Sprintf("user%d@example.com", i))}
	}
	pick := func() domain.Actor { return users[rng.Intn(len(users))] }
	pickGroup := func() string {
		groups, _ := store.ListGroups(ctx)
		if len(groups) == 0 {
			return "missing"
		}
		return groups[rng.Intn(len(groups))].ID
	}

	for step := 0; step < 500; step++ {
		var n notice.Notices
		actor := pick()
		var err error
		switch rng.Intn(8) {
		case 0:
			_, err = svc.Groups.Create(ctx, actor, domain.CreateGroupRequest{
				Name:   fmt.Sprintf("group%d", rng.Intn(4)),
				Public: rng.Intn(2) == 0,
			}, &n)
		case 1, 2:
			_, err = svc.Groups.RequestJoin(ctx, actor, pickGroup(), &n)
		case 3:
			err = svc.Groups.Leave(ctx, actor, pickGroup(), &n)
		case 4:
			err = svc.Groups.Approve(ctx, actor, pickGroup(), pick().User, &n)
		case 5:
			err = svc.Groups.Refuse(ctx, actor, pickGroup(), pick().User, &n)
		case 6:
			err = svc.Groups.RemoveMember(ctx, actor, pickGroup(), pick().User, &n)
		case 7:
			err = svc.Groups.TransferOwnership(ctx, actor, pickGroup(), pick().User.String(), &n)
		}
		if err != nil && !domain.IsRecoverable(err) && !errors.Is(err, domain.ErrNotFound) {
			t.Fatalf("step %d: unexpected error %v", step, err)
		}
		checkMembershipInvariants(t, ctx, store, step)
	}
}

func checkMembershipInvariants(t *testing.T, ctx context.Context, store *memory.Store, step int) {
	t.Helper()
	groups, err := store.ListGroups(ctx)
	if err != nil {
		t.Fatalf("step %d: ListGroups: %v", step, err)
	}
	seen := map[domain.UserID]string{}
	names := map[string]bool{}
	for _, g := range groups {
		if names[g.Name] {
			t.Fatalf("step %d: duplicate group name %q", step, g.Name)
		}
		names[g.Name] = true
		for _, u := range append(append([]domain.UserID{}, g.Members...), g.PendingUsers...) {
			if other, ok := seen[u]; ok {
				t.Fatalf("step %d: %s affiliated with %s and %s", step, u, other, g.ID)
			}
			seen[u] = g.ID
		}
	}
}

func TestConcurrentJoinsOfTwoGroups(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	svc := New(store, zap.NewNop(), Options{MaxRetries: 20})
	var n notice.Notices
	a, _ := svc.Groups.Create(ctx, alice, domain.CreateGroupRequest{Name: "A", Public: true}, &n)
	b, _ := svc.Groups.Create(ctx, bob, domain.CreateGroupRequest{Name: "B", Public: true}, &n)

	for round := 0; round < 20; round++ {
		joiner := domain.Actor{User: domain.UserID(fmt.Sprintf("joiner%d@example.com", round))}
		var wg sync.WaitGroup
		results := make([]error, 2)
		for i, id := range []string{a.ID, b.ID} {
			wg.Add(1)
			go func(i int, id string) {
				defer wg.Done()
				var n notice.Notices
				_, results[i] = svc.Groups.RequestJoin(ctx, joiner, id, &n)
			}(i, id)
		}
		wg.Wait()

		ok := 0
		for _, err := range results {
			switch {
			case err == nil:
				ok++
			case errors.Is(err, domain.ErrInvalidState):
			default:
				t.Fatalf("round %d: unexpected error %v", round, err)
			}
		}
		if ok != 1 {
			t.Fatalf("round %d: expected exactly one join to succeed, got %d", round, ok)
		}
	}
	checkMembershipInvariants(t, ctx, store, 0)
}
