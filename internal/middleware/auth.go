// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/hitoshi/mp3transcriber/internal/model"
	"github.com/hitoshi/mp3transcriber/internal/token"
)

// contextKey はコンテキストに値を格納するための型安全なキー。
type contextKey string

// claimsContextKey はリクエストコンテキストにトークンのクレームを格納するためのキー。
var claimsContextKey = contextKey("claims")

// TokenParser はベアラートークンの検証に必要なインターフェース。
type TokenParser interface {
	Parse(tokenString string) (*token.Claims, error)
}

// NewOptionalAuthMiddleware はAuthorizationヘッダーのベアラートークンを検証し、
// 有効であればクレームをコンテキストに注入するミドルウェアを返す。
// トークンが無い、または無効な場合もリクエストはそのまま通す。
func NewOptionalAuthMiddleware(parser TokenParser) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := bearerToken(r)
			if raw == "" {
				next.ServeHTTP(w, r)
				return
			}

			claims, err := parser.Parse(raw)
			if err != nil {
				slog.Debug("ignoring invalid bearer token",
					slog.String("path", r.URL.Path),
					slog.String("error", err.Error()),
				)
				next.ServeHTTP(w, r)
				return
			}

			next.ServeHTTP(w, r.WithContext(ContextWithClaims(r.Context(), claims)))
		})
	}
}

// NewRequireAuthMiddleware はベアラートークンを必須とするミドルウェアを返す。
// 未認証リクエストには401 Unauthorizedを返す。
func NewRequireAuthMiddleware(parser TokenParser) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := bearerToken(r)
			if raw == "" {
				WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
				return
			}

			claims, err := parser.Parse(raw)
			if err != nil {
				slog.Info("rejected bearer token",
					slog.String("path", r.URL.Path),
					slog.String("error", err.Error()),
				)
				WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
				return
			}

			next.ServeHTTP(w, r.WithContext(ContextWithClaims(r.Context(), claims)))
		})
	}
}

// ClaimsFromContext はリクエストコンテキストからクレームを取得する。
// 認証ミドルウェアで有効なトークンが確認された場合のみ存在する。
func ClaimsFromContext(ctx context.Context) (*token.Claims, bool) {
	claims, ok := ctx.Value(claimsContextKey).(*token.Claims)
	if !ok || claims == nil {
		return nil, false
	}
	return claims, true
}

// ContextWithClaims はコンテキストにクレームを注入する。
// テストやミドルウェア以外のコンテキスト生成で使用する。
// リクエストログにもアカウントIDを反映する。
func ContextWithClaims(ctx context.Context, claims *token.Claims) context.Context {
	if st := requestStateFrom(ctx); st != nil && claims != nil {
		st.accountID = claims.AccountID
	}
	return context.WithValue(ctx, claimsContextKey, claims)
}

// bearerToken はAuthorizationヘッダーからベアラートークンを取り出す。
func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	scheme, value, ok := strings.Cut(h, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(value)
}
