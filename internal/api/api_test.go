package api_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/bcnelson/hackathon-manager/internal/api"
	"github.com/bcnelson/hackathon-manager/internal/api/handler"
	"github.com/bcnelson/hackathon-manager/internal/auth"
	"github.com/bcnelson/hackathon-manager/internal/domain"
	"github.com/bcnelson/hackathon-manager/internal/notice"
	"github.com/bcnelson/hackathon-manager/internal/service"
	"github.com/bcnelson/hackathon-manager/internal/storage/memory"
	"github.com/bcnelson/hackathon-manager/internal/web"
)

var (
	alice = domain.Actor{User: "alice@example.com"}
	admin = domain.Actor{User: "admin@example.com", Admin: true}
)

// testServer creates a test server with in-memory storage
type testServer struct {
	handler  http.Handler
	store    *memory.Store
	svc      *service.Services
	sessions *auth.SessionManager
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	store := memory.New()
	svc := service.New(store, zap.NewNop(), service.Options{MaxRetries: 3, RetryBackoff: time.Millisecond})

	sessions, err := auth.NewSessionManager([]byte(strings.Repeat("s", 32)), time.Hour, false)
	if err != nil {
		t.Fatalf("NewSessionManager: %v", err)
	}
	webHandler, err := web.NewRouter(svc, zap.NewNop(), web.Options{
		Sessions: sessions,
		Admins:   auth.NewAdminPolicy(nil, ""),
	})
	if err != nil {
		t.Fatalf("web.NewRouter: %v", err)
	}

	handler := api.NewRouter(svc, zap.NewNop(), webHandler, api.Options{
		Sessions:     sessions,
		ServeMetrics: true,
	})
	return &testServer{handler: handler, store: store, svc: svc, sessions: sessions}
}

func (ts *testServer) request(method, path string, header http.Header) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	for k, v := range header {
		req.Header[k] = v
	}
	rr := httptest.NewRecorder()
	ts.handler.ServeHTTP(rr, req)
	return rr
}

// sessionCookie signs p in and returns the resulting cookie header.
func (ts *testServer) sessionCookie(t *testing.T, p *auth.Principal) http.Header {
	t.Helper()
	rr := httptest.NewRecorder()
	if err := ts.sessions.Login(rr, httptest.NewRequest("GET", "/", nil), p); err != nil {
		t.Fatalf("Login: %v", err)
	}
	h := http.Header{}
	for _, c := range rr.Result().Cookies() {
		h.Add("Cookie", c.Name+"="+c.Value)
	}
	return h
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rr.Body.Bytes(), &v); err != nil {
		t.Fatalf("decoding %q: %v", rr.Body.String(), err)
	}
	return v
}

func TestHealthEndpoint(t *testing.T) {
	ts := newTestServer(t)

	rr := ts.request("GET", "/health", nil)
	if rr.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", rr.Code)
	}

	resp := decode[map[string]string](t, rr)
	if resp["status"] != "ok" {
		t.Errorf("Expected status ok, got %s", resp["status"])
	}
	if rr.Header().Get("X-Request-ID") == "" {
		t.Error("Expected a request id header")
	}
}

func TestWebMountedAtRoot(t *testing.T) {
	ts := newTestServer(t)

	rr := ts.request("GET", "/projects", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", rr.Code)
	}
	if ct := rr.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/html") {
		t.Errorf("Expected HTML, got %q", ct)
	}
}

func TestEmptyLists(t *testing.T) {
	ts := newTestServer(t)

	for _, path := range []string{"/api/v1/ideas", "/api/v1/projects", "/api/v1/groups"} {
		rr := ts.request("GET", path, nil)
		if rr.Code != http.StatusOK {
			t.Errorf("%s: expected status 200, got %d", path, rr.Code)
			continue
		}
		if ct := rr.Header().Get("Content-Type"); ct != "application/json" {
			t.Errorf("%s: expected JSON, got %q", path, ct)
		}
		if body := strings.TrimSpace(rr.Body.String()); body != "[]" {
			t.Errorf("%s: expected an empty array, got %s", path, body)
		}
	}
}

func TestIdeaListETag(t *testing.T) {
	ts := newTestServer(t)
	ctx := context.Background()

	if _, err := ts.svc.Ideas.Submit(ctx, alice, domain.CreateIdeaRequest{Name: "Solar kites"}, &notice.Notices{}); err != nil {
		t.Fatalf("Submit: %v", err)
	}

	rr := ts.request("GET", "/api/v1/ideas", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", rr.Code)
	}
	ideas := decode[[]domain.Idea](t, rr)
	if len(ideas) != 1 || ideas[0].Name != "Solar kites" || ideas[0].Author != alice.User {
		t.Fatalf("unexpected ideas %+v", ideas)
	}
	etag := rr.Header().Get("ETag")
	if etag == "" {
		t.Fatal("Expected an ETag")
	}

	rr = ts.request("GET", "/api/v1/ideas", http.Header{"If-None-Match": {etag}})
	if rr.Code != http.StatusNotModified {
		t.Errorf("Expected status 304, got %d", rr.Code)
	}
	if rr.Body.Len() != 0 {
		t.Errorf("Expected an empty body, got %q", rr.Body.String())
	}

	if _, err := ts.svc.Ideas.Submit(ctx, domain.Anonymous, domain.CreateIdeaRequest{Name: "Robot bees"}, &notice.Notices{}); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	rr = ts.request("GET", "/api/v1/ideas", http.Header{"If-None-Match": {etag}})
	if rr.Code != http.StatusOK {
		t.Errorf("Expected status 200 after a new idea, got %d", rr.Code)
	}
	if rr.Header().Get("ETag") == etag {
		t.Error("Expected the ETag to change")
	}
}

func TestProjectVotesAndETag(t *testing.T) {
	ts := newTestServer(t)
	ctx := context.Background()

	p, err := ts.svc.Projects.Create(ctx, admin, domain.CreateProjectRequest{Name: "Rocket stove"}, &notice.Notices{})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := ts.svc.Projects.ToggleVote(ctx, alice, p.ID, &notice.Notices{}); err != nil {
		t.Fatalf("ToggleVote: %v", err)
	}

	rr := ts.request("GET", "/api/v1/projects/"+p.ID, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}
	got := decode[handler.ProjectResponse](t, rr)
	if got.VoteCount != 1 || len(got.Votes) != 1 || got.Votes[0] != "alice@example.com" {
		t.Errorf("unexpected votes %+v", got)
	}
	if got.Version != 2 {
		t.Errorf("Expected version 2, got %d", got.Version)
	}
	etag := rr.Header().Get("ETag")
	if want := handler.GenerateETag("project", p.ID, 2); etag != want {
		t.Errorf("ETag = %s, want %s", etag, want)
	}

	rr = ts.request("GET", "/api/v1/projects/"+p.ID, http.Header{"If-None-Match": {etag}})
	if rr.Code != http.StatusNotModified {
		t.Errorf("Expected status 304, got %d", rr.Code)
	}

	// retracting the vote bumps the version
	if _, err := ts.svc.Projects.ToggleVote(ctx, alice, p.ID, &notice.Notices{}); err != nil {
		t.Fatalf("ToggleVote: %v", err)
	}
	rr = ts.request("GET", "/api/v1/projects/"+p.ID, http.Header{"If-None-Match": {etag}})
	if rr.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", rr.Code)
	}
	if got := decode[handler.ProjectResponse](t, rr); got.VoteCount != 0 {
		t.Errorf("Expected no votes, got %d", got.VoteCount)
	}
}

func TestProjectClaimedBy(t *testing.T) {
	ts := newTestServer(t)
	ctx := context.Background()

	p, err := ts.svc.Projects.Create(ctx, admin, domain.CreateProjectRequest{Name: "Rocket stove"}, &notice.Notices{})
	if err != nil {
		t.Fatalf("Create project: %v", err)
	}
	g, err := ts.svc.Groups.Create(ctx, alice, domain.CreateGroupRequest{Name: "Burners", Public: true}, &notice.Notices{})
	if err != nil {
		t.Fatalf("Create group: %v", err)
	}
	if _, err := ts.svc.Projects.Claim(ctx, alice, p.ID, &notice.Notices{}); err != nil {
		t.Fatalf("Claim: %v", err)
	}

	rr := ts.request("GET", "/api/v1/projects", nil)
	projects := decode[[]handler.ProjectResponse](t, rr)
	if len(projects) != 1 {
		t.Fatalf("Expected 1 project, got %d", len(projects))
	}
	if len(projects[0].ClaimedBy) != 1 || projects[0].ClaimedBy[0] != g.ID {
		t.Errorf("Expected the project to be claimed by %s, got %v", g.ID, projects[0].ClaimedBy)
	}

	rr = ts.request("GET", "/api/v1/groups/"+g.ID, nil)
	group := decode[domain.Group](t, rr)
	if group.ProjectID != p.ID || group.Owner != alice.User {
		t.Errorf("unexpected group %+v", group)
	}
}

func TestGroupSubmissions(t *testing.T) {
	ts := newTestServer(t)
	ctx := context.Background()

	g, err := ts.svc.Groups.Create(ctx, alice, domain.CreateGroupRequest{Name: "Burners"}, &notice.Notices{})
	if err != nil {
		t.Fatalf("Create group: %v", err)
	}
	_, err = ts.svc.Groups.Edit(ctx, alice, g.ID, service.EditGroupRequest{
		Name:           "Burners",
		SubmissionText: "Demo video",
		SubmissionURL:  "https://example.com/demo",
	}, &notice.Notices{})
	if err != nil {
		t.Fatalf("Edit: %v", err)
	}

	rr := ts.request("GET", "/api/v1/groups/"+g.ID+"/submissions", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", rr.Code)
	}
	subs := decode[[]domain.Submission](t, rr)
	if len(subs) != 1 || subs[0].URL != "https://example.com/demo" || subs[0].GroupID != g.ID {
		t.Errorf("unexpected submissions %+v", subs)
	}

	rr = ts.request("GET", "/api/v1/groups/missing/submissions", nil)
	if rr.Code != http.StatusNotFound {
		t.Errorf("Expected status 404, got %d", rr.Code)
	}
}

func TestNotFound(t *testing.T) {
	ts := newTestServer(t)

	for _, path := range []string{"/api/v1/ideas/missing", "/api/v1/projects/missing", "/api/v1/groups/missing"} {
		rr := ts.request("GET", path, nil)
		if rr.Code != http.StatusNotFound {
			t.Errorf("%s: expected status 404, got %d", path, rr.Code)
			continue
		}
		resp := decode[domain.StandardErrorResponse](t, rr)
		if resp.Error.Code != domain.ErrCodeResourceNotFound {
			t.Errorf("%s: expected code %s, got %s", path, domain.ErrCodeResourceNotFound, resp.Error.Code)
		}
	}
}

func TestMeRequiresLogin(t *testing.T) {
	ts := newTestServer(t)
	ctx := context.Background()

	rr := ts.request("GET", "/api/v1/me", nil)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("Expected status 401, got %d", rr.Code)
	}
	if resp := decode[domain.StandardErrorResponse](t, rr); resp.Error.Code != domain.ErrCodeUnauthorized {
		t.Errorf("unexpected error %+v", resp)
	}

	g, err := ts.svc.Groups.Create(ctx, alice, domain.CreateGroupRequest{Name: "Burners"}, &notice.Notices{})
	if err != nil {
		t.Fatalf("Create group: %v", err)
	}

	cookie := ts.sessionCookie(t, &auth.Principal{User: alice.User, Email: "Alice@example.com", Name: "Alice"})
	rr = ts.request("GET", "/api/v1/me", cookie)
	if rr.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}
	me := decode[handler.MeResponse](t, rr)
	if me.User != "alice@example.com" || me.Name != "Alice" || me.Admin {
		t.Errorf("unexpected user %+v", me)
	}
	if me.GroupID != g.ID || me.Membership != domain.Owner.String() {
		t.Errorf("unexpected membership %+v", me)
	}
}

func TestStats(t *testing.T) {
	ts := newTestServer(t)
	ctx := context.Background()
	n := &notice.Notices{}

	if _, err := ts.svc.Ideas.Submit(ctx, alice, domain.CreateIdeaRequest{Name: "Solar kites"}, n); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	p, err := ts.svc.Projects.Create(ctx, admin, domain.CreateProjectRequest{Name: "Rocket stove"}, n)
	if err != nil {
		t.Fatalf("Create project: %v", err)
	}
	if _, err := ts.svc.Projects.Create(ctx, admin, domain.CreateProjectRequest{Name: "Water clock"}, n); err != nil {
		t.Fatalf("Create project: %v", err)
	}
	if _, err := ts.svc.Projects.ToggleVote(ctx, alice, p.ID, n); err != nil {
		t.Fatalf("ToggleVote: %v", err)
	}
	g, err := ts.svc.Groups.Create(ctx, alice, domain.CreateGroupRequest{Name: "Burners"}, n)
	if err != nil {
		t.Fatalf("Create group: %v", err)
	}
	if _, err := ts.svc.Groups.RequestJoin(ctx, domain.Actor{User: "bob@example.com"}, g.ID, n); err != nil {
		t.Fatalf("RequestJoin: %v", err)
	}
	if _, err := ts.svc.Projects.Claim(ctx, alice, p.ID, n); err != nil {
		t.Fatalf("Claim: %v", err)
	}

	rr := ts.request("GET", "/api/v1/stats", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", rr.Code)
	}
	want := handler.StatsResponse{
		Ideas:             1,
		Projects:          2,
		Votes:             1,
		Groups:            1,
		Members:           1,
		PendingUsers:      1,
		ClaimedGroups:     1,
		UnclaimedProjects: 1,
	}
	if got := decode[handler.StatsResponse](t, rr); got != want {
		t.Errorf("stats = %+v, want %+v", got, want)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	ts := newTestServer(t)

	ts.request("GET", "/health", nil)
	rr := ts.request("GET", "/metrics", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), `hackathon_http_requests_total{method="GET",path="/health",status="200"}`) {
		t.Error("Expected the health check to be counted")
	}
}
