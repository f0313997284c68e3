package handler

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/mp3transcriber/internal/auth"
	"github.com/hitoshi/mp3transcriber/internal/middleware"
	"github.com/hitoshi/mp3transcriber/internal/model"
	"github.com/hitoshi/mp3transcriber/internal/token"
)

// --- モック定義 ---

type mockAuthService struct {
	loginFn       func(ctx context.Context, username, password string, client model.ClientInfo) (*auth.LoginResult, error)
	currentUserFn func(ctx context.Context, claims *token.Claims) (*model.Account, error)
}

func (m *mockAuthService) Login(ctx context.Context, username, password string, client model.ClientInfo) (*auth.LoginResult, error) {
	if m.loginFn != nil {
		return m.loginFn(ctx, username, password, client)
	}
	return nil, errors.New("not implemented")
}

func (m *mockAuthService) CurrentUser(ctx context.Context, claims *token.Claims) (*model.Account, error) {
	if m.currentUserFn != nil {
		return m.currentUserFn(ctx, claims)
	}
	return nil, errors.New("not implemented")
}

func testAccount() *model.Account {
	return &model.Account{
		ID:        "7k2m9p",
		Username:  "maria",
		FirstName: "Maria",
		LastName:  "Schmidt",
		Email:     "maria@example.com",
		IsAdmin:   true,
		CreatedAt: time.Date(2026, 1, 5, 9, 0, 0, 0, time.UTC),
	}
}

func authRouter(svc AuthServiceInterface) http.Handler {
	h := NewAuthHandler(svc)
	r := chi.NewRouter()
	r.Post("/api/auth/login", h.Login)
	r.Post("/api/auth/logout", h.Logout)
	r.Get("/api/auth/check", h.Check)
	r.Get("/api/auth/me", h.Me)
	return r
}

func withClaims(r *http.Request, claims *token.Claims) *http.Request {
	return r.WithContext(middleware.ContextWithClaims(r.Context(), claims))
}

// --- Login ---

func TestAuthHandler_Login_Success(t *testing.T) {
	expires := time.Date(2026, 1, 6, 9, 0, 0, 0, time.UTC)
	svc := &mockAuthService{
		loginFn: func(_ context.Context, username, password string, client model.ClientInfo) (*auth.LoginResult, error) {
			if username != "maria" || password != "geheim123" {
				t.Errorf("unexpected credentials: %q / %q", username, password)
			}
			if client.IP != "198.51.100.7" {
				t.Errorf("client ip = %q, want 198.51.100.7", client.IP)
			}
			return &auth.LoginResult{Token: "session-token", Account: testAccount(), ExpiresAt: expires}, nil
		},
	}

	req := httptest.NewRequest(http.MethodPost, "/api/auth/login", strings.NewReader(`{"username":"maria","password":"geheim123"}`))
	req.RemoteAddr = "198.51.100.7:40000"
	w := httptest.NewRecorder()
	authRouter(svc).ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	body := decodeBody(t, w)
	if body["token"] != "session-token" {
		t.Errorf("token = %v", body["token"])
	}
	user := body["user"].(map[string]any)
	if user["isAdmin"] != true || user["publicAccess"] != false {
		t.Errorf("unexpected flags: %v", user)
	}
	if _, ok := user["password_hash"]; ok {
		t.Error("password hash must never be returned")
	}
}

func TestAuthHandler_Login_InvalidBody(t *testing.T) {
	svc := &mockAuthService{
		loginFn: func(context.Context, string, string, model.ClientInfo) (*auth.LoginResult, error) {
			t.Error("service should not be called for an undecodable body")
			return nil, nil
		},
	}

	w := httptest.NewRecorder()
	authRouter(svc).ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/auth/login", strings.NewReader("[")))

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
}

func TestAuthHandler_Login_InvalidCredentials(t *testing.T) {
	svc := &mockAuthService{
		loginFn: func(context.Context, string, string, model.ClientInfo) (*auth.LoginResult, error) {
			return nil, model.NewInvalidLoginError()
		},
	}

	w := httptest.NewRecorder()
	authRouter(svc).ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/auth/login", strings.NewReader(`{"username":"maria","password":"x"}`)))

	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", w.Code, http.StatusUnauthorized)
	}
	body := decodeBody(t, w)
	if body["code"] != model.ErrCodeInvalidLogin {
		t.Errorf("code = %v", body["code"])
	}
}

// --- Logout ---

func TestAuthHandler_Logout(t *testing.T) {
	w := httptest.NewRecorder()
	authRouter(&mockAuthService{}).ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/auth/logout", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	body := decodeBody(t, w)
	if body["message"] != "Erfolgreich ausgeloggt." {
		t.Errorf("message = %v", body["message"])
	}
}

// --- Me ---

func TestAuthHandler_Me_WithoutClaims(t *testing.T) {
	w := httptest.NewRecorder()
	authRouter(&mockAuthService{}).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/auth/me", nil))

	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", w.Code, http.StatusUnauthorized)
	}
}

func TestAuthHandler_Me_PublicAccessHidesAdmin(t *testing.T) {
	svc := &mockAuthService{
		currentUserFn: func(_ context.Context, claims *token.Claims) (*model.Account, error) {
			if claims.AccountID != "7k2m9p" {
				t.Errorf("account id = %q", claims.AccountID)
			}
			return testAccount(), nil
		},
	}

	req := withClaims(httptest.NewRequest(http.MethodGet, "/api/auth/me", nil), &token.Claims{AccountID: "7k2m9p", PublicAccess: true})
	w := httptest.NewRecorder()
	authRouter(svc).ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	user := decodeBody(t, w)["user"].(map[string]any)
	if user["isAdmin"] != false {
		t.Errorf("isAdmin = %v, want false for public access", user["isAdmin"])
	}
	if user["publicAccess"] != true {
		t.Errorf("publicAccess = %v, want true", user["publicAccess"])
	}
}

// --- Check ---

func TestAuthHandler_Check(t *testing.T) {
	tests := []struct {
		name          string
		claims        *token.Claims
		currentUserFn func(context.Context, *token.Claims) (*model.Account, error)
		want          bool
	}{
		{
			name: "no token",
			want: false,
		},
		{
			name:   "valid token",
			claims: &token.Claims{AccountID: "7k2m9p"},
			currentUserFn: func(context.Context, *token.Claims) (*model.Account, error) {
				return testAccount(), nil
			},
			want: true,
		},
		{
			name:   "account removed",
			claims: &token.Claims{AccountID: "7k2m9p"},
			currentUserFn: func(context.Context, *token.Claims) (*model.Account, error) {
				return nil, model.NewUnauthorizedError()
			},
			want: false,
		},
		{
			name:   "store failure",
			claims: &token.Claims{AccountID: "7k2m9p"},
			currentUserFn: func(context.Context, *token.Claims) (*model.Account, error) {
				return nil, errors.New("connection reset")
			},
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/auth/check", nil)
			if tt.claims != nil {
				req = withClaims(req, tt.claims)
			}
			w := httptest.NewRecorder()
			authRouter(&mockAuthService{currentUserFn: tt.currentUserFn}).ServeHTTP(w, req)

			if w.Code != http.StatusOK {
				t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
			}
			body := decodeBody(t, w)
			if body["authenticated"] != tt.want {
				t.Errorf("authenticated = %v, want %v", body["authenticated"], tt.want)
			}
			if _, ok := body["user"]; ok != tt.want {
				t.Errorf("user present = %v, want %v", ok, tt.want)
			}
		})
	}
}
