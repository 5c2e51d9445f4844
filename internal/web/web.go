// Package web serves the HTML front end: idea submission, the project board,
// group sign-up and moderation, and login.
package web

import (
	"embed"
	"fmt"
	"html/template"
	"io/fs"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/csrf"
	"go.uber.org/zap"

	"github.com/bcnelson/hackathon-manager/internal/auth"
	"github.com/bcnelson/hackathon-manager/internal/domain"
	"github.com/bcnelson/hackathon-manager/internal/service"
)

//go:embed templates static
var content embed.FS

// Options configures the web front end.
type Options struct {
	Sessions *auth.SessionManager
	Admins   *auth.AdminPolicy

	// OIDC and States are nil when single sign-on is disabled.
	OIDC      *auth.OIDCProvider
	States    *auth.StateStore
	LogoutURL string

	// DevLogin enables the password-less login form. Never enable it in
	// production.
	DevLogin bool

	// CSRFKey enables CSRF protection of all forms when set.
	CSRFKey    []byte
	SecureOnly bool

	// IdeasPerMinute and IdeaBurst throttle idea submissions per client
	// address. Zero disables throttling.
	IdeasPerMinute float64
	IdeaBurst      int
}

// Server holds dependencies for web handlers.
type Server struct {
	svc       *service.Services
	log       *zap.Logger
	opts      Options
	limiter   *ipLimiter
	templates map[string]*template.Template
}

// NewRouter creates the web router with all routes configured.
func NewRouter(svc *service.Services, log *zap.Logger, opts Options) (http.Handler, error) {
	if opts.Sessions == nil {
		return nil, fmt.Errorf("web: a session manager is required")
	}
	s := &Server{
		svc:     svc,
		log:     log,
		opts:    opts,
		limiter: newIPLimiter(opts.IdeasPerMinute, opts.IdeaBurst),
	}

	templates, err := parseTemplates()
	if err != nil {
		return nil, err
	}
	s.templates = templates

	r := chi.NewRouter()

	if len(opts.CSRFKey) > 0 {
		r.Use(s.plaintextCSRF)
		r.Use(csrf.Protect(opts.CSRFKey,
			csrf.Secure(opts.SecureOnly),
			csrf.Path("/"),
			csrf.FieldName("csrf_token"),
			csrf.ErrorHandler(http.HandlerFunc(s.handleCSRFFailure)),
		))
	}
	r.Use(s.loadPrincipal)

	staticFS, _ := fs.Sub(content, "static")
	r.Handle("/static/*", http.StripPrefix("/static/", http.FileServer(http.FS(staticFS))))

	// Login
	r.Get("/login", s.handleLoginPage)
	r.Get("/auth/login", s.handleOIDCLogin)
	r.Get("/auth/callback", s.handleOIDCCallback)
	r.Post("/auth/dev", s.handleDevLogin)
	r.Get("/logout", s.handleLogout)
	r.Post("/logout", s.handleLogout)

	// Projects
	r.Get("/", s.handleProjectsList)
	r.Get("/projects", s.handleProjectsList)
	r.Post("/projects/{id}/vote", s.handleProjectVote)
	r.Post("/projects/{id}/claim", s.handleProjectClaim)
	r.Post("/projects/{id}/delete", s.handleProjectDelete)

	// Ideas
	r.Get("/ideas", s.handleIdeasList)
	r.With(s.throttleIdeas).Post("/ideas", s.handleIdeaSubmit)
	r.Post("/ideas/{id}/approve", s.handleIdeaApprove)
	r.Post("/ideas/{id}/delete", s.handleIdeaDelete)

	// Groups
	r.Get("/groups", s.handleGroupsList)
	r.Get("/groups/signup", s.handleGroupSignup)
	r.Post("/groups/create", s.handleGroupCreate)
	r.Get("/groups/{id}", s.handleGroupShow)
	r.Post("/groups/{id}", s.handleGroupUpdate)
	r.Get("/groups/{id}/edit", s.handleGroupEdit)
	r.Post("/groups/{id}/delete", s.handleGroupDelete)
	r.Post("/groups/{id}/join", s.handleGroupJoin)
	r.Post("/groups/{id}/leave", s.handleGroupLeave)

	// Information pages
	r.Get("/about", s.handleStatic("about", "About"))
	r.Get("/faq", s.handleStatic("faq", "FAQ"))
	r.Get("/tutorial", s.handleStatic("tutorial", "Tutorial"))
	r.Get("/entry", s.handleStatic("entry", "Entering"))
	r.Get("/results", s.handleStatic("results", "Results"))

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		s.renderError(w, r, http.StatusNotFound, "The page you asked for does not exist.")
	})

	return r, nil
}

// parseTemplates parses every page together with the base layout.
func parseTemplates() (map[string]*template.Template, error) {
	funcMap := template.FuncMap{
		"safeHTML":   safeHTML,
		"formatTime": formatTime,
		"join":       joinUsers,
	}

	baseContent, err := content.ReadFile("templates/base.html")
	if err != nil {
		return nil, fmt.Errorf("reading base template: %w", err)
	}

	templates := make(map[string]*template.Template)
	pageFiles, _ := fs.Glob(content, "templates/pages/*.html")
	for _, pagePath := range pageFiles {
		pageName := strings.TrimSuffix(filepath.Base(pagePath), ".html")

		pageContent, err := content.ReadFile(pagePath)
		if err != nil {
			return nil, fmt.Errorf("reading template %s: %w", pageName, err)
		}

		tmpl, err := template.New(pageName).Funcs(funcMap).Parse(string(baseContent) + string(pageContent))
		if err != nil {
			return nil, fmt.Errorf("parsing template %s: %w", pageName, err)
		}
		templates[pageName] = tmpl
	}

	return templates, nil
}

// safeHTML marks an already sanitized description as HTML.
func safeHTML(s string) template.HTML {
	return template.HTML(s) //nolint:gosec
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format("Jan 2, 2006 15:04")
}

func joinUsers(users []domain.UserID) string {
	parts := make([]string, len(users))
	for i, u := range users {
		parts[i] = string(u)
	}
	return strings.Join(parts, ", ")
}

// PageData holds common data passed to all page templates.
type PageData struct {
	Title  string
	Active string // current nav item

	User      *auth.Principal
	Admin     bool
	LoginText string
	LoginURL  string

	Notices   []string
	CSRFField template.HTML
	Content   any
}
