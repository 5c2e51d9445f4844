package web

import (
	"bytes"
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/gorilla/csrf"
	"go.uber.org/zap"

	"github.com/bcnelson/hackathon-manager/internal/auth"
	"github.com/bcnelson/hackathon-manager/internal/domain"
	"github.com/bcnelson/hackathon-manager/internal/notice"
)

// render executes a page inside the base layout. Notices queued in the session
// by an earlier redirect are shown before those of this request.
func (s *Server) render(w http.ResponseWriter, r *http.Request, page string, status int, data PageData) {
	tmpl, ok := s.templates[page]
	if !ok {
		http.Error(w, "Template not found: "+page, http.StatusInternalServerError)
		return
	}

	pending, err := s.opts.Sessions.TakeNotices(w, r)
	if err != nil {
		s.log.Warn("failed to clear notices", zap.Error(err))
	}
	data.Notices = append(pending, data.Notices...)

	p := auth.PrincipalFromContext(r.Context())
	data.User = p
	data.Admin = p.IsAdmin()
	data.LoginText, data.LoginURL = loginLogout(p, r)
	data.CSRFField = csrf.TemplateField(r)

	var buf bytes.Buffer
	if err := tmpl.ExecuteTemplate(&buf, "base", data); err != nil {
		s.log.Error("template failed", zap.String("page", page), zap.Error(err))
		http.Error(w, "Template error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = buf.WriteTo(w)
}

// ErrorData is the content of the error page.
type ErrorData struct {
	Status  int
	Message string
}

func (s *Server) renderError(w http.ResponseWriter, r *http.Request, status int, message string) {
	s.render(w, r, "error", status, PageData{
		Title:   http.StatusText(status),
		Content: ErrorData{Status: status, Message: message},
	})
}

// loginLogout returns the text and URL of the login/logout link.
func loginLogout(p *auth.Principal, r *http.Request) (string, string) {
	if _, ok := p.CurrentUser(); ok {
		return "Logout", "/logout"
	}
	return "Login", "/login?return_to=" + url.QueryEscape(r.URL.RequestURI())
}

// finish ends a form post. Notices move to the session and the browser is sent
// to okURL, or to failURL when the workflow refused the request. Other errors
// are rendered.
func (s *Server) finish(w http.ResponseWriter, r *http.Request, n *notice.Notices, err error, okURL, failURL string) {
	switch {
	case err == nil:
		s.redirect(w, r, n, okURL)
	case domain.IsRecoverable(err):
		s.redirect(w, r, n, failURL)
	default:
		s.handleError(w, r, n, err)
	}
}

// redirect persists the request's notices and redirects.
func (s *Server) redirect(w http.ResponseWriter, r *http.Request, n *notice.Notices, to string) {
	if err := s.opts.Sessions.AddNotices(w, r, n.Drain()); err != nil {
		s.log.Warn("failed to save notices", zap.Error(err))
	}
	http.Redirect(w, r, to, http.StatusSeeOther)
}

// handleError renders an error that is not a refusal.
func (s *Server) handleError(w http.ResponseWriter, r *http.Request, n *notice.Notices, err error) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		s.renderError(w, r, http.StatusNotFound, "The page you asked for does not exist.")
	case errors.Is(err, domain.ErrInconsistent):
		if n != nil {
			_ = s.opts.Sessions.AddNotices(w, r, n.Drain())
		}
		s.renderError(w, r, http.StatusInternalServerError,
			"The change was only partly saved. An administrator has been notified.")
	default:
		s.log.Error("request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err))
		s.renderError(w, r, http.StatusInternalServerError, "Something went wrong. The problem has been logged.")
	}
}

// localPath returns target when it is a path on this site, otherwise
// fallback.
func localPath(target, fallback string) string {
	if target == "" || !strings.HasPrefix(target, "/") || strings.HasPrefix(target, "//") || strings.HasPrefix(target, "/\\") {
		return fallback
	}
	u, err := url.Parse(target)
	if err != nil || u.IsAbs() || u.Host != "" {
		return fallback
	}
	return target
}
