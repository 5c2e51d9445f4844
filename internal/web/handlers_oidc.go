package web

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/bcnelson/hackathon-manager/internal/auth"
	"github.com/bcnelson/hackathon-manager/internal/notice"
)

// LoginData holds data for the login page.
type LoginData struct {
	OIDCEnabled bool
	DevLogin    bool
	ReturnTo    string
}

// handleLoginPage offers the configured login methods.
func (s *Server) handleLoginPage(w http.ResponseWriter, r *http.Request) {
	returnTo := localPath(r.URL.Query().Get("return_to"), "/")
	if _, ok := auth.PrincipalFromContext(r.Context()).CurrentUser(); ok {
		http.Redirect(w, r, returnTo, http.StatusSeeOther)
		return
	}
	s.render(w, r, "login", http.StatusOK, PageData{
		Title: "Login",
		Content: LoginData{
			OIDCEnabled: s.opts.OIDC != nil,
			DevLogin:    s.opts.DevLogin,
			ReturnTo:    returnTo,
		},
	})
}

// handleOIDCLogin initiates the OIDC login flow.
func (s *Server) handleOIDCLogin(w http.ResponseWriter, r *http.Request) {
	if s.opts.OIDC == nil || s.opts.States == nil {
		s.renderError(w, r, http.StatusNotFound, "Single sign-on is not enabled.")
		return
	}

	returnTo := localPath(r.URL.Query().Get("return_to"), "/")
	stateData, err := s.opts.States.Generate(w, returnTo)
	if err != nil {
		s.log.Error("failed to generate OIDC state", zap.Error(err))
		s.loginFailed(w, r, "Failed to initiate login")
		return
	}

	http.Redirect(w, r, s.opts.OIDC.AuthCodeURL(stateData.State, stateData.Nonce), http.StatusSeeOther)
}

// handleOIDCCallback completes the OIDC login flow.
func (s *Server) handleOIDCCallback(w http.ResponseWriter, r *http.Request) {
	if s.opts.OIDC == nil || s.opts.States == nil {
		s.renderError(w, r, http.StatusNotFound, "Single sign-on is not enabled.")
		return
	}

	ctx := r.Context()
	query := r.URL.Query()

	if errParam := query.Get("error"); errParam != "" {
		errDesc := query.Get("error_description")
		if errDesc == "" {
			errDesc = errParam
		}
		s.log.Warn("OIDC provider returned error", zap.String("error", errParam), zap.String("description", errDesc))
		s.loginFailed(w, r, errDesc)
		return
	}

	code := query.Get("code")
	if code == "" {
		s.loginFailed(w, r, "No authorization code received")
		return
	}

	stateData, err := s.opts.States.Validate(r, query.Get("state"))
	if err != nil {
		s.log.Warn("OIDC state validation failed", zap.Error(err))
		s.loginFailed(w, r, "Invalid state parameter")
		return
	}
	s.opts.States.Clear(w)

	claims, err := s.opts.OIDC.Exchange(ctx, code, stateData.Nonce)
	if err != nil {
		s.log.Error("OIDC token exchange failed", zap.Error(err))
		s.loginFailed(w, r, "Failed to complete authentication")
		return
	}

	if err := s.opts.OIDC.ValidateClaims(claims); err != nil {
		s.log.Warn("OIDC claims rejected", zap.String("email", claims.Email), zap.Error(err))
		s.loginFailed(w, r, err.Error())
		return
	}

	s.signIn(w, r, s.opts.Admins.NewPrincipal(claims.Email, claims.Name, claims.Groups), stateData.ReturnTo)
}

// handleDevLogin signs in as any e-mail address. It answers 404 unless dev
// login is enabled.
func (s *Server) handleDevLogin(w http.ResponseWriter, r *http.Request) {
	if !s.opts.DevLogin {
		s.renderError(w, r, http.StatusNotFound, "The page you asked for does not exist.")
		return
	}
	if err := r.ParseForm(); err != nil {
		s.renderError(w, r, http.StatusBadRequest, "Invalid form data")
		return
	}

	email := r.PostFormValue("email")
	if err := auth.ValidateEmail(email, nil); err != nil {
		s.loginFailed(w, r, "Enter a valid e-mail address")
		return
	}
	s.signIn(w, r, s.opts.Admins.NewPrincipal(email, r.PostFormValue("name"), nil), r.PostFormValue("return_to"))
}

func (s *Server) signIn(w http.ResponseWriter, r *http.Request, p *auth.Principal, returnTo string) {
	if err := s.opts.Sessions.Login(w, r, p); err != nil {
		s.log.Error("failed to create session", zap.Error(err))
		s.loginFailed(w, r, "Failed to create session")
		return
	}
	s.log.Info("user signed in", zap.String("user", p.User.String()), zap.Bool("admin", p.Admin))
	http.Redirect(w, r, localPath(returnTo, "/"), http.StatusSeeOther)
}

func (s *Server) loginFailed(w http.ResponseWriter, r *http.Request, msg string) {
	var n notice.Notices
	n.Add(msg)
	s.redirect(w, r, &n, "/login")
}

// handleLogout clears the session.
func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if err := s.opts.Sessions.Logout(w, r); err != nil {
		s.log.Warn("failed to clear session", zap.Error(err))
	}
	to := "/"
	if s.opts.LogoutURL != "" {
		to = s.opts.LogoutURL
	}
	http.Redirect(w, r, to, http.StatusSeeOther)
}
