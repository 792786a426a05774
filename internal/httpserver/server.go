package httpserver

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	"bfitweb/bfit-server/internal/auth"
	"bfitweb/bfit-server/internal/config"
)

// AuthService is the account/session surface the handlers depend on.
type AuthService interface {
	SignUp(username, password string) (auth.Session, error)
	LogIn(username, password string) (auth.Session, error)
	LogOut(token string)
	CurrentUser(token string) (auth.SessionUser, error)
	UpdateCredentials(token string, upd auth.CredentialUpdate) (auth.User, error)
	DeleteAccount(token string) error
}

// Renderer turns a page name, title and optional user context into HTML.
// Rendering is a collaborator, not part of the core: handlers only ever hand
// it a title and a user snapshot.
type Renderer interface {
	Render(w io.Writer, page, title string, user *auth.SessionUser) error
}

type AuditLogger interface {
	Log(actor, action, outcome, detail string) error
}

type Deps struct {
	Auth      AuthService
	Views     Renderer
	Audit     AuditLogger
	StaticDir string
}

const sessionCookieName = "bfit_session"

// staticPages are the marketing pages: title varies, no user context.
var staticPages = []struct {
	path  string
	page  string
	title string
}{
	{"/", "home", "Home - B-Fit"},
	{"/exercises", "exercises", "Exercises - B-Fit"},
	{"/list", "list", "List - B-Fit"},
	{"/nutrition", "nutrition", "Nutrition - B-Fit"},
	{"/pricing", "pricing", "Pricing - B-Fit"},
	{"/strength", "strength", "Strength - B-Fit"},
}

type Server struct {
	httpServer *http.Server
}

func New(cfg config.HTTPConfig, deps Deps) *Server {
	handler := NewHandler(deps)

	return &Server{
		httpServer: &http.Server{
			Addr:         cfg.Addr,
			Handler:      requestIDMiddleware(handler),
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
			IdleTimeout:  60 * time.Second,
		},
	}
}

func NewHandler(deps Deps) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	registerPageHandlers(mux, deps)
	registerAccountHandlers(mux, deps)
	registerStaticAssets(mux, deps.StaticDir)

	return mux
}

func registerPageHandlers(mux *http.ServeMux, deps Deps) {
	for _, p := range staticPages {
		p := p
		mux.HandleFunc(p.path, func(w http.ResponseWriter, r *http.Request) {
			if p.path == "/" && r.URL.Path != "/" {
				http.NotFound(w, r)
				return
			}
			if r.Method != http.MethodGet {
				http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
				return
			}
			renderPage(w, deps, p.page, p.title, nil)
		})
	}

	mux.HandleFunc("/dashboard", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		user, ok := requireUser(w, r, deps.Auth)
		if !ok {
			return
		}
		renderPage(w, deps, "dashboard", "Dashboard - B-Fit", &user)
	})
}

func registerAccountHandlers(mux *http.ServeMux, deps Deps) {
	mux.HandleFunc("/signup", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			renderPage(w, deps, "signup", "Sign Up - B-Fit", nil)
		case http.MethodPost:
			handleSignUp(w, r, deps)
		default:
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		}
	})

	mux.HandleFunc("/login", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			renderPage(w, deps, "login", "Login - B-Fit", nil)
		case http.MethodPost:
			handleLogIn(w, r, deps)
		default:
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		}
	})

	mux.HandleFunc("/logout", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		if token, ok := sessionToken(r); ok && deps.Auth != nil {
			deps.Auth.LogOut(token)
			auditReq(deps.Audit, r, "", "auth.logout", "success", "")
		}
		clearSessionCookie(w)
		http.Redirect(w, r, "/", http.StatusFound)
	})

	mux.HandleFunc("/delete-account", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		if deps.Auth == nil {
			http.Error(w, "auth service unavailable", http.StatusServiceUnavailable)
			return
		}
		token, ok := sessionToken(r)
		if !ok {
			http.Redirect(w, r, "/login", http.StatusFound)
			return
		}

		if err := deps.Auth.DeleteAccount(token); err != nil {
			if errors.Is(err, auth.ErrUnauthenticated) {
				http.Redirect(w, r, "/login", http.StatusFound)
				return
			}
			// Delete failed: the session stays, so the cookie stays too.
			auditReq(deps.Audit, r, "", "account.delete", "failed", err.Error())
			http.Redirect(w, r, "/dashboard", http.StatusFound)
			return
		}
		auditReq(deps.Audit, r, "", "account.delete", "success", "")
		clearSessionCookie(w)
		http.Redirect(w, r, "/", http.StatusFound)
	})

	mux.HandleFunc("/update-credentials", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		handleUpdateCredentials(w, r, deps)
	})
}

// credentialsInput is the parsed signup/login form: both fields required.
type credentialsInput struct {
	Username string
	Password string
}

func parseCredentialsForm(r *http.Request) (credentialsInput, error) {
	if err := r.ParseForm(); err != nil {
		return credentialsInput{}, fmt.Errorf("parse form: %w", err)
	}
	in := credentialsInput{
		Username: strings.TrimSpace(r.PostFormValue("username")),
		Password: r.PostFormValue("password"),
	}
	if in.Username == "" || in.Password == "" {
		return credentialsInput{}, fmt.Errorf("username and password are required")
	}
	return in, nil
}

// updateInput is the parsed update form: both fields optional, at least one
// must be present.
type updateInput struct {
	Username string
	Password string
}

func parseUpdateForm(r *http.Request) (updateInput, error) {
	if err := r.ParseForm(); err != nil {
		return updateInput{}, fmt.Errorf("parse form: %w", err)
	}
	in := updateInput{
		Username: strings.TrimSpace(r.PostFormValue("username")),
		Password: r.PostFormValue("password"),
	}
	if in.Username == "" && in.Password == "" {
		return updateInput{}, fmt.Errorf("nothing to update")
	}
	return in, nil
}

func handleSignUp(w http.ResponseWriter, r *http.Request, deps Deps) {
	if deps.Auth == nil {
		http.Error(w, "auth service unavailable", http.StatusServiceUnavailable)
		return
	}
	in, err := parseCredentialsForm(r)
	if err != nil {
		http.Redirect(w, r, "/signup", http.StatusFound)
		return
	}

	session, err := deps.Auth.SignUp(in.Username, in.Password)
	if err != nil {
		auditReq(deps.Audit, r, in.Username, "auth.signup", "failed", err.Error())
		http.Redirect(w, r, "/signup", http.StatusFound)
		return
	}
	auditReq(deps.Audit, r, in.Username, "auth.signup", "success", "")
	setSessionCookie(w, session.Token)
	http.Redirect(w, r, "/dashboard", http.StatusFound)
}

func handleLogIn(w http.ResponseWriter, r *http.Request, deps Deps) {
	if deps.Auth == nil {
		http.Error(w, "auth service unavailable", http.StatusServiceUnavailable)
		return
	}
	in, err := parseCredentialsForm(r)
	if err != nil {
		http.Redirect(w, r, "/login", http.StatusFound)
		return
	}

	session, err := deps.Auth.LogIn(in.Username, in.Password)
	if err != nil {
		// The audit line may say why; the client only sees the bounce.
		auditReq(deps.Audit, r, in.Username, "auth.login", "failed", "invalid credentials")
		http.Redirect(w, r, "/login", http.StatusFound)
		return
	}
	auditReq(deps.Audit, r, in.Username, "auth.login", "success", "")
	setSessionCookie(w, session.Token)
	http.Redirect(w, r, "/dashboard", http.StatusFound)
}

func handleUpdateCredentials(w http.ResponseWriter, r *http.Request, deps Deps) {
	if deps.Auth == nil {
		http.Error(w, "auth service unavailable", http.StatusServiceUnavailable)
		return
	}
	token, ok := sessionToken(r)
	if !ok {
		http.Redirect(w, r, "/login", http.StatusFound)
		return
	}

	in, err := parseUpdateForm(r)
	if err != nil {
		http.Redirect(w, r, "/dashboard", http.StatusFound)
		return
	}

	user, err := deps.Auth.UpdateCredentials(token, auth.CredentialUpdate{
		Username: in.Username,
		Password: in.Password,
	})
	if err != nil {
		if errors.Is(err, auth.ErrUnauthenticated) {
			http.Redirect(w, r, "/login", http.StatusFound)
			return
		}
		auditReq(deps.Audit, r, "", "account.update", "failed", err.Error())
		http.Redirect(w, r, "/dashboard", http.StatusFound)
		return
	}
	auditReq(deps.Audit, r, user.Username, "account.update", "success", "")
	http.Redirect(w, r, "/dashboard", http.StatusFound)
}

func registerStaticAssets(mux *http.ServeMux, dir string) {
	dir = strings.TrimSpace(dir)
	if dir == "" {
		return
	}
	if _, err := os.Stat(dir); err != nil {
		return
	}
	mux.Handle("/static/", http.StripPrefix("/static/", http.FileServer(http.Dir(dir))))
}

// requireUser resolves the session or redirects to the login form.
func requireUser(w http.ResponseWriter, r *http.Request, authSvc AuthService) (auth.SessionUser, bool) {
	if authSvc == nil {
		http.Error(w, "auth service unavailable", http.StatusServiceUnavailable)
		return auth.SessionUser{}, false
	}
	token, ok := sessionToken(r)
	if !ok {
		http.Redirect(w, r, "/login", http.StatusFound)
		return auth.SessionUser{}, false
	}
	user, err := authSvc.CurrentUser(token)
	if err != nil {
		http.Redirect(w, r, "/login", http.StatusFound)
		return auth.SessionUser{}, false
	}
	return user, true
}

func renderPage(w http.ResponseWriter, deps Deps, page, title string, user *auth.SessionUser) {
	if deps.Views == nil {
		http.Error(w, "view renderer unavailable", http.StatusServiceUnavailable)
		return
	}
	var buf bytes.Buffer
	if err := deps.Views.Render(&buf, page, title, user); err != nil {
		http.Error(w, "page unavailable", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = buf.WriteTo(w)
}

func sessionToken(r *http.Request) (string, bool) {
	c, err := r.Cookie(sessionCookieName)
	if err != nil || strings.TrimSpace(c.Value) == "" {
		return "", false
	}
	return c.Value, true
}

func setSessionCookie(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

func clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   -1,
	})
}

func (s *Server) Start() error {
	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(statusCode int) {
	r.status = statusCode
	r.ResponseWriter.WriteHeader(statusCode)
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := strings.TrimSpace(r.Header.Get("X-Request-Id"))
		if reqID == "" {
			reqID = newRequestID()
		}
		w.Header().Set("X-Request-Id", reqID)
		r = r.WithContext(context.WithValue(r.Context(), requestIDKey{}, reqID))
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
	})
}

type requestIDKey struct{}

func newRequestID() string {
	b := make([]byte, 8)
	if _, err := rand.Read(b); err != nil {
		return fmt.Sprintf("req-%d", time.Now().UnixNano())
	}
	return hex.EncodeToString(b)
}

func requestIDFromContext(ctx context.Context) string {
	if s, ok := ctx.Value(requestIDKey{}).(string); ok {
		return s
	}
	return ""
}

func clientIP(r *http.Request) string {
	if fwd := strings.TrimSpace(r.Header.Get("X-Forwarded-For")); fwd != "" {
		parts := strings.Split(fwd, ",")
		return strings.TrimSpace(parts[0])
	}
	if realIP := strings.TrimSpace(r.Header.Get("X-Real-IP")); realIP != "" {
		return realIP
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err == nil {
		return host
	}
	return r.RemoteAddr
}

func auditReq(a AuditLogger, r *http.Request, actor, action, outcome, detail string) {
	if a == nil {
		return
	}
	parts := []string{
		"rid=" + requestIDFromContext(r.Context()),
		"ip=" + clientIP(r),
	}
	if ua := strings.TrimSpace(r.UserAgent()); ua != "" {
		parts = append(parts, "ua="+ua)
	}
	if strings.TrimSpace(detail) != "" {
		parts = append(parts, "detail="+strings.TrimSpace(detail))
	}
	_ = a.Log(actor, action, outcome, strings.Join(parts, " | "))
}
