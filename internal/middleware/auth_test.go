package middleware

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/hitoshi/mp3transcriber/internal/model"
	"github.com/hitoshi/mp3transcriber/internal/token"
)

// mockTokenParser はTokenParserのモック。
type mockTokenParser struct {
	parseFn func(tokenString string) (*token.Claims, error)
	calls   int
}

func (m *mockTokenParser) Parse(tokenString string) (*token.Claims, error) {
	m.calls++
	if m.parseFn != nil {
		return m.parseFn(tokenString)
	}
	return nil, token.ErrInvalidToken
}

func validParser() *mockTokenParser {
	return &mockTokenParser{
		parseFn: func(tokenString string) (*token.Claims, error) {
			if tokenString == "good-token" {
				return &token.Claims{AccountID: "7k2m9p", Username: "maria", PublicAccess: true}, nil
			}
			if tokenString == "expired-token" {
				return nil, token.ErrTokenExpired
			}
			return nil, token.ErrInvalidToken
		},
	}
}

func TestOptionalAuth_ValidToken_InjectsClaims(t *testing.T) {
	var got *token.Claims
	handler := NewOptionalAuthMiddleware(validParser())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, _ = ClaimsFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/public/user/7k2m9p", nil)
	req.Header.Set("Authorization", "Bearer good-token")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if got == nil || got.AccountID != "7k2m9p" {
		t.Errorf("expected claims for 7k2m9p, got %+v", got)
	}
}

func TestOptionalAuth_NoOrInvalidToken_PassesThroughWithoutClaims(t *testing.T) {
	tests := []struct {
		name   string
		header string
	}{
		{"no header", ""},
		{"invalid token", "Bearer forged"},
		{"expired token", "Bearer expired-token"},
		{"wrong scheme", "Basic dXNlcjpwdw=="},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			called := false
			handler := NewOptionalAuthMiddleware(validParser())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				called = true
				if _, ok := ClaimsFromContext(r.Context()); ok {
					t.Error("claims should not be present")
				}
				w.WriteHeader(http.StatusOK)
			}))

			req := httptest.NewRequest(http.MethodGet, "/api/public/mp3/x9y8z7?pw=alice", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, req)

			if !called {
				t.Error("next handler should be called")
			}
		})
	}
}

func TestRequireAuth_ValidToken(t *testing.T) {
	handler := NewRequireAuthMiddleware(validParser())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, ok := ClaimsFromContext(r.Context())
		if !ok || claims.Username != "maria" {
			t.Errorf("expected claims in context, got %+v", claims)
		}
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/auth/me", nil)
	req.Header.Set("Authorization", "bearer good-token")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", w.Code, http.StatusOK)
	}
}

func TestRequireAuth_MissingOrInvalid_Returns401(t *testing.T) {
	tests := []struct {
		name   string
		header string
	}{
		{"missing", ""},
		{"empty bearer", "Bearer "},
		{"invalid", "Bearer forged"},
		{"expired", "Bearer expired-token"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := NewRequireAuthMiddleware(validParser())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				t.Fatal("handler should not be called")
			}))

			req := httptest.NewRequest(http.MethodGet, "/api/auth/me", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, req)

			if w.Code != http.StatusUnauthorized {
				t.Errorf("status = %d, want %d", w.Code, http.StatusUnauthorized)
			}
			if !containsCode(t, w, model.ErrCodeUnauthorized) {
				t.Error("expected UNAUTHORIZED code in body")
			}
		})
	}
}

func TestRequireAuth_DoesNotParseWithoutHeader(t *testing.T) {
	parser := &mockTokenParser{parseFn: func(string) (*token.Claims, error) {
		return nil, errors.New("should not be called")
	}}
	handler := NewRequireAuthMiddleware(parser)(okHandler())

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/auth/me", nil))

	if parser.calls != 0 {
		t.Errorf("parser calls = %d, want 0", parser.calls)
	}
}

func TestClaimsFromContext_Empty(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if _, ok := ClaimsFromContext(req.Context()); ok {
		t.Error("expected no claims in empty context")
	}
}

func TestClientIP(t *testing.T) {
	tests := []struct {
		remoteAddr string
		want       string
	}{
		{"203.0.113.9:1234", "203.0.113.9"},
		{"[2001:db8::1]:443", "2001:db8::1"},
		{"203.0.113.9", "203.0.113.9"},
	}
	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = tt.remoteAddr
		if got := ClientIP(req); got != tt.want {
			t.Errorf("ClientIP(%q) = %q, want %q", tt.remoteAddr, got, tt.want)
		}
	}
}

func TestClientInfo_IncludesUserAgent(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "198.51.100.1:9999"
	req.Header.Set("User-Agent", "Mozilla/5.0")

	info := ClientInfo(req)
	if info.IP != "198.51.100.1" || info.UserAgent != "Mozilla/5.0" {
		t.Errorf("unexpected client info: %+v", info)
	}
}
