package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/hitoshi/mp3transcriber/internal/auth"
	"github.com/hitoshi/mp3transcriber/internal/middleware"
	"github.com/hitoshi/mp3transcriber/internal/model"
	"github.com/hitoshi/mp3transcriber/internal/token"
)

// AuthServiceInterface は認証ハンドラーが必要とするサービスインターフェース。
type AuthServiceInterface interface {
	Login(ctx context.Context, username, password string, client model.ClientInfo) (*auth.LoginResult, error)
	CurrentUser(ctx context.Context, claims *token.Claims) (*model.Account, error)
}

// AuthHandler はログイン関連のHTTPハンドラー。
type AuthHandler struct {
	service AuthServiceInterface
}

// NewAuthHandler はAuthHandlerを生成する。
func NewAuthHandler(service AuthServiceInterface) *AuthHandler {
	return &AuthHandler{service: service}
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type accountResponse struct {
	ID           string    `json:"id"`
	UserID       string    `json:"userId"`
	Username     string    `json:"username"`
	FirstName    string    `json:"first_name"`
	LastName     string    `json:"last_name"`
	Email        string    `json:"email,omitempty"`
	IsAdmin      bool      `json:"isAdmin"`
	PublicAccess bool      `json:"publicAccess"`
	CreatedAt    time.Time `json:"created_at"`
}

type loginResponse struct {
	Success   bool            `json:"success"`
	Token     string          `json:"token"`
	ExpiresAt time.Time       `json:"expiresAt"`
	User      accountResponse `json:"user"`
}

type meResponse struct {
	Success bool            `json:"success"`
	User    accountResponse `json:"user"`
}

type checkAuthResponse struct {
	Success       bool             `json:"success"`
	Authenticated bool             `json:"authenticated"`
	User          *accountResponse `json:"user,omitempty"`
}

type messageResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// Login はユーザー名とパスワードでログインし、トークンを返す。
// POST /api/auth/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		handleServiceError(w, r, model.NewValidationError("Benutzername und Passwort sind erforderlich."))
		return
	}

	result, err := h.service.Login(r.Context(), req.Username, req.Password, middleware.ClientInfo(r))
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, loginResponse{
		Success:   true,
		Token:     result.Token,
		ExpiresAt: result.ExpiresAt,
		User:      toAccountResponse(result.Account, false),
	})
}

// Logout はログアウトを確認する。トークンはクライアント側で破棄する。
// POST /api/auth/logout
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, messageResponse{
		Success: true,
		Message: "Erfolgreich ausgeloggt.",
	})
}

// Me は現在のログインユーザー情報を返す。
// GET /api/auth/me
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		handleServiceError(w, r, model.NewUnauthorizedError())
		return
	}

	account, err := h.service.CurrentUser(r.Context(), claims)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, meResponse{
		Success: true,
		User:    toAccountResponse(account, claims.PublicAccess),
	})
}

// Check はトークンが有効かどうかを返す。未認証でもエラーにはしない。
// GET /api/auth/check
func (h *AuthHandler) Check(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		writeJSON(w, http.StatusOK, checkAuthResponse{Success: true, Authenticated: false})
		return
	}

	account, err := h.service.CurrentUser(r.Context(), claims)
	if err != nil {
		if !model.HasCode(err, model.ErrCodeUnauthorized) {
			slog.Error("failed to resolve current user", slog.String("error", err.Error()))
		}
		writeJSON(w, http.StatusOK, checkAuthResponse{Success: true, Authenticated: false})
		return
	}

	resp := toAccountResponse(account, claims.PublicAccess)
	writeJSON(w, http.StatusOK, checkAuthResponse{
		Success:       true,
		Authenticated: true,
		User:          &resp,
	})
}

// toAccountResponse はアカウントをレスポンス型に変換する。
// 公開アクセストークンの場合は管理者権限を返さない。
func toAccountResponse(a *model.Account, publicAccess bool) accountResponse {
	return accountResponse{
		ID:           a.ID,
		UserID:       a.ID,
		Username:     a.Username,
		FirstName:    a.FirstName,
		LastName:     a.LastName,
		Email:        a.Email,
		IsAdmin:      a.IsAdmin && !publicAccess,
		PublicAccess: publicAccess,
		CreatedAt:    a.CreatedAt,
	}
}
