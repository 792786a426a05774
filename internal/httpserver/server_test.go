package httpserver

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"bfitweb/bfit-server/internal/auth"
)

type fakeAuthService struct {
	signUpFunc      func(username, password string) (auth.Session, error)
	logInFunc       func(username, password string) (auth.Session, error)
	logOutFunc      func(token string)
	currentUserFunc func(token string) (auth.SessionUser, error)
	updateFunc      func(token string, upd auth.CredentialUpdate) (auth.User, error)
	deleteFunc      func(token string) error
}

func (f fakeAuthService) SignUp(username, password string) (auth.Session, error) {
	if f.signUpFunc == nil {
		return auth.Session{}, errors.New("not implemented")
	}
	return f.signUpFunc(username, password)
}

func (f fakeAuthService) LogIn(username, password string) (auth.Session, error) {
	if f.logInFunc == nil {
		return auth.Session{}, errors.New("not implemented")
	}
	return f.logInFunc(username, password)
}

func (f fakeAuthService) LogOut(token string) {
	if f.logOutFunc != nil {
		f.logOutFunc(token)
	}
}

func (f fakeAuthService) CurrentUser(token string) (auth.SessionUser, error) {
	if f.currentUserFunc == nil {
		return auth.SessionUser{}, errors.New("not implemented")
	}
	return f.currentUserFunc(token)
}

func (f fakeAuthService) UpdateCredentials(token string, upd auth.CredentialUpdate) (auth.User, error) {
	if f.updateFunc == nil {
		return auth.User{}, errors.New("not implemented")
	}
	return f.updateFunc(token, upd)
}

func (f fakeAuthService) DeleteAccount(token string) error {
	if f.deleteFunc == nil {
		return errors.New("not implemented")
	}
	return f.deleteFunc(token)
}

type fakeRenderer struct{}

func (fakeRenderer) Render(w io.Writer, page, title string, user *auth.SessionUser) error {
	username := ""
	if user != nil {
		username = user.Username
	}
	_, err := fmt.Fprintf(w, "page=%s title=%s user=%s", page, title, username)
	return err
}

func postForm(t *testing.T, handler http.Handler, path string, form url.Values, cookie string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if cookie != "" {
		req.AddCookie(&http.Cookie{Name: sessionCookieName, Value: cookie})
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func sessionCookieFrom(t *testing.T, rec *httptest.ResponseRecorder) *http.Cookie {
	t.Helper()
	for _, c := range rec.Result().Cookies() {
		if c.Name == sessionCookieName {
			return c
		}
	}
	return nil
}

func TestHealthz(t *testing.T) {
	handler := requestIDMiddleware(NewHandler(Deps{}))
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	if rec.Header().Get("X-Request-Id") == "" {
		t.Fatalf("expected X-Request-Id header to be set")
	}
}

func TestStaticPagesRender(t *testing.T) {
	handler := NewHandler(Deps{Views: fakeRenderer{}})

	for _, tc := range []struct{ path, page string }{
		{"/", "home"},
		{"/login", "login"},
		{"/signup", "signup"},
		{"/exercises", "exercises"},
		{"/pricing", "pricing"},
	} {
		req := httptest.NewRequest(http.MethodGet, tc.path, nil)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Fatalf("%s: expected status 200, got %d", tc.path, rec.Code)
		}
		if !strings.Contains(rec.Body.String(), "page="+tc.page) {
			t.Fatalf("%s: expected page %q rendered, got %q", tc.path, tc.page, rec.Body.String())
		}
	}
}

func TestSignUpSuccessSetsCookieAndRedirects(t *testing.T) {
	handler := NewHandler(Deps{Views: fakeRenderer{}, Auth: fakeAuthService{
		signUpFunc: func(username, password string) (auth.Session, error) {
			if username != "bob" || password != "pw123" {
				return auth.Session{}, errors.New("unexpected input")
			}
			return auth.Session{Token: "tok-1", User: auth.SessionUser{ID: "u-1", Username: "bob"}}, nil
		},
	}})

	rec := postForm(t, handler, "/signup", url.Values{"username": {"bob"}, "password": {"pw123"}}, "")

	if rec.Code != http.StatusFound {
		t.Fatalf("expected status 302, got %d", rec.Code)
	}
	if loc := rec.Header().Get("Location"); loc != "/dashboard" {
		t.Fatalf("expected redirect to /dashboard, got %q", loc)
	}
	c := sessionCookieFrom(t, rec)
	if c == nil || c.Value != "tok-1" {
		t.Fatalf("expected session cookie tok-1, got %+v", c)
	}
	if !c.HttpOnly {
		t.Fatalf("expected HttpOnly session cookie")
	}
}

func TestSignUpFailureRedirectsBackToForm(t *testing.T) {
	handler := NewHandler(Deps{Views: fakeRenderer{}, Auth: fakeAuthService{
		signUpFunc: func(username, password string) (auth.Session, error) {
			return auth.Session{}, auth.ErrUsernameTaken
		},
	}})

	rec := postForm(t, handler, "/signup", url.Values{"username": {"bob"}, "password": {"pw123"}}, "")

	if rec.Code != http.StatusFound {
		t.Fatalf("expected status 302, got %d", rec.Code)
	}
	if loc := rec.Header().Get("Location"); loc != "/signup" {
		t.Fatalf("expected redirect back to /signup, got %q", loc)
	}
	if c := sessionCookieFrom(t, rec); c != nil {
		t.Fatalf("expected no session cookie on failure, got %+v", c)
	}
}

func TestSignUpMissingFieldsRejectedBeforeService(t *testing.T) {
	called := false
	handler := NewHandler(Deps{Views: fakeRenderer{}, Auth: fakeAuthService{
		signUpFunc: func(username, password string) (auth.Session, error) {
			called = true
			return auth.Session{}, nil
		},
	}})

	rec := postForm(t, handler, "/signup", url.Values{"username": {"bob"}}, "")

	if rec.Code != http.StatusFound || rec.Header().Get("Location") != "/signup" {
		t.Fatalf("expected bounce to /signup, got %d %q", rec.Code, rec.Header().Get("Location"))
	}
	if called {
		t.Fatalf("expected malformed input to be rejected before the service")
	}
}

func TestLogInOutcomes(t *testing.T) {
	handler := NewHandler(Deps{Views: fakeRenderer{}, Auth: fakeAuthService{
		logInFunc: func(username, password string) (auth.Session, error) {
			if username == "bob" && password == "pw123" {
				return auth.Session{Token: "tok-2", User: auth.SessionUser{ID: "u-1", Username: "bob"}}, nil
			}
			return auth.Session{}, auth.ErrInvalidCredentials
		},
	}})

	good := postForm(t, handler, "/login", url.Values{"username": {"bob"}, "password": {"pw123"}}, "")
	if good.Header().Get("Location") != "/dashboard" {
		t.Fatalf("expected success redirect to /dashboard, got %q", good.Header().Get("Location"))
	}
	if c := sessionCookieFrom(t, good); c == nil || c.Value != "tok-2" {
		t.Fatalf("expected session cookie tok-2, got %+v", c)
	}

	bad := postForm(t, handler, "/login", url.Values{"username": {"bob"}, "password": {"nope"}}, "")
	if bad.Header().Get("Location") != "/login" {
		t.Fatalf("expected failure redirect to /login, got %q", bad.Header().Get("Location"))
	}
}

func TestDashboardRequiresSession(t *testing.T) {
	handler := NewHandler(Deps{Views: fakeRenderer{}, Auth: fakeAuthService{
		currentUserFunc: func(token string) (auth.SessionUser, error) {
			if token != "tok-1" {
				return auth.SessionUser{}, auth.ErrUnauthenticated
			}
			return auth.SessionUser{ID: "u-1", Username: "bob"}, nil
		},
	}})

	anon := httptest.NewRequest(http.MethodGet, "/dashboard", nil)
	recAnon := httptest.NewRecorder()
	handler.ServeHTTP(recAnon, anon)
	if recAnon.Code != http.StatusFound || recAnon.Header().Get("Location") != "/login" {
		t.Fatalf("expected anonymous redirect to /login, got %d %q", recAnon.Code, recAnon.Header().Get("Location"))
	}

	authed := httptest.NewRequest(http.MethodGet, "/dashboard", nil)
	authed.AddCookie(&http.Cookie{Name: sessionCookieName, Value: "tok-1"})
	recAuthed := httptest.NewRecorder()
	handler.ServeHTTP(recAuthed, authed)
	if recAuthed.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", recAuthed.Code)
	}
	if !strings.Contains(recAuthed.Body.String(), "user=bob") {
		t.Fatalf("expected dashboard rendered with user context, got %q", recAuthed.Body.String())
	}
}

func TestLogoutClearsCookieAndRedirectsHome(t *testing.T) {
	var loggedOut string
	handler := NewHandler(Deps{Views: fakeRenderer{}, Auth: fakeAuthService{
		logOutFunc: func(token string) { loggedOut = token },
	}})

	req := httptest.NewRequest(http.MethodGet, "/logout", nil)
	req.AddCookie(&http.Cookie{Name: sessionCookieName, Value: "tok-1"})
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusFound || rec.Header().Get("Location") != "/" {
		t.Fatalf("expected redirect to /, got %d %q", rec.Code, rec.Header().Get("Location"))
	}
	if loggedOut != "tok-1" {
		t.Fatalf("expected LogOut called with tok-1, got %q", loggedOut)
	}
	c := sessionCookieFrom(t, rec)
	if c == nil || c.MaxAge >= 0 || c.Value != "" {
		t.Fatalf("expected cleared session cookie, got %+v", c)
	}
}

func TestLogoutWithoutSessionStillRedirects(t *testing.T) {
	handler := NewHandler(Deps{Views: fakeRenderer{}, Auth: fakeAuthService{}})

	req := httptest.NewRequest(http.MethodGet, "/logout", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusFound || rec.Header().Get("Location") != "/" {
		t.Fatalf("expected redirect to /, got %d %q", rec.Code, rec.Header().Get("Location"))
	}
}

func TestDeleteAccountOutcomes(t *testing.T) {
	handler := NewHandler(Deps{Views: fakeRenderer{}, Auth: fakeAuthService{
		deleteFunc: func(token string) error {
			switch token {
			case "tok-1":
				return nil
			case "tok-db-down":
				return errors.New("store unavailable")
			default:
				return auth.ErrUnauthenticated
			}
		},
	}})

	success := postForm(t, handler, "/delete-account", nil, "tok-1")
	if success.Header().Get("Location") != "/" {
		t.Fatalf("expected success redirect to /, got %q", success.Header().Get("Location"))
	}
	if c := sessionCookieFrom(t, success); c == nil || c.MaxAge >= 0 {
		t.Fatalf("expected cleared cookie on success, got %+v", c)
	}

	// A failed delete keeps the session: bounce to dashboard, cookie intact.
	failed := postForm(t, handler, "/delete-account", nil, "tok-db-down")
	if failed.Header().Get("Location") != "/dashboard" {
		t.Fatalf("expected failure redirect to /dashboard, got %q", failed.Header().Get("Location"))
	}
	if c := sessionCookieFrom(t, failed); c != nil {
		t.Fatalf("expected cookie untouched on failure, got %+v", c)
	}

	anon := postForm(t, handler, "/delete-account", nil, "")
	if anon.Header().Get("Location") != "/login" {
		t.Fatalf("expected anonymous redirect to /login, got %q", anon.Header().Get("Location"))
	}
}

func TestUpdateCredentialsOutcomes(t *testing.T) {
	handler := NewHandler(Deps{Views: fakeRenderer{}, Auth: fakeAuthService{
		updateFunc: func(token string, upd auth.CredentialUpdate) (auth.User, error) {
			if token != "tok-1" {
				return auth.User{}, auth.ErrUnauthenticated
			}
			if upd.Username == "taken" {
				return auth.User{}, auth.ErrUsernameTaken
			}
			return auth.User{ID: "u-1", Username: upd.Username}, nil
		},
	}})

	ok := postForm(t, handler, "/update-credentials", url.Values{"username": {"bob2"}}, "tok-1")
	if ok.Header().Get("Location") != "/dashboard" {
		t.Fatalf("expected success redirect to /dashboard, got %q", ok.Header().Get("Location"))
	}

	conflict := postForm(t, handler, "/update-credentials", url.Values{"username": {"taken"}}, "tok-1")
	if conflict.Header().Get("Location") != "/dashboard" {
		t.Fatalf("expected conflict redirect to /dashboard, got %q", conflict.Header().Get("Location"))
	}

	empty := postForm(t, handler, "/update-credentials", url.Values{}, "tok-1")
	if empty.Header().Get("Location") != "/dashboard" {
		t.Fatalf("expected empty-form redirect to /dashboard, got %q", empty.Header().Get("Location"))
	}

	anon := postForm(t, handler, "/update-credentials", url.Values{"username": {"bob2"}}, "")
	if anon.Header().Get("Location") != "/login" {
		t.Fatalf("expected anonymous redirect to /login, got %q", anon.Header().Get("Location"))
	}
}

func TestUnknownPathIs404(t *testing.T) {
	handler := NewHandler(Deps{Views: fakeRenderer{}})
	req := httptest.NewRequest(http.MethodGet, "/no-such-page", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d", rec.Code)
	}
}
