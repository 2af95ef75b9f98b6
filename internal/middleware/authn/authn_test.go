package authn

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/devpulse/gateway/internal/auth"
	"github.com/devpulse/gateway/internal/config"
	"github.com/devpulse/gateway/internal/middleware"
)

func newVerifier(t *testing.T) *auth.Verifier {
	t.Helper()
	v, err := auth.NewVerifier(config.AuthConfig{Secret: "secret"})
	if err != nil {
		t.Fatal(err)
	}
	return v
}

func sign(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	s, err := token.SignedString([]byte("secret"))
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func TestAttachesPrincipal(t *testing.T) {
	v := newVerifier(t)
	var got *auth.Principal
	handler := Middleware(v, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = middleware.PrincipalFrom(r.Context())
	}))

	token := sign(t, jwt.MapClaims{
		"sub":  "u1",
		"role": "MANAGER",
		"exp":  time.Now().Add(time.Hour).Unix(),
	})
	req := httptest.NewRequest("GET", "/api", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	handler.ServeHTTP(httptest.NewRecorder(), req)

	if got == nil || got.ID != "u1" {
		t.Fatalf("expected principal u1, got %+v", got)
	}
	if got.Role != auth.RoleManager {
		t.Errorf("expected MANAGER, got %v", got.Role)
	}
}

func TestMissingTokenIsAnonymous(t *testing.T) {
	v := newVerifier(t)
	var got *auth.Principal
	handler := Middleware(v, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = middleware.PrincipalFrom(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("GET", "/api", nil))

	if rec.Code != http.StatusOK {
		t.Errorf("anonymous request should continue, got %d", rec.Code)
	}
	if !got.IsAnonymous() {
		t.Error("expected anonymous principal")
	}
}

func TestInvalidTokenContinuesAnonymous(t *testing.T) {
	v := newVerifier(t)
	var reason string
	handler := Middleware(v, func(r string) { reason = r })(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !middleware.PrincipalFrom(r.Context()).IsAnonymous() {
				t.Error("expected anonymous after bad token")
			}
			w.WriteHeader(http.StatusOK)
		}))

	expired := sign(t, jwt.MapClaims{
		"sub": "u1",
		"exp": time.Now().Add(-time.Hour).Unix(),
	})
	req := httptest.NewRequest("GET", "/api", nil)
	req.Header.Set("Authorization", "Bearer "+expired)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("request should continue as anonymous, got %d", rec.Code)
	}
	if reason != auth.ReasonExpired {
		t.Errorf("expected expired failure reason, got %q", reason)
	}
}
