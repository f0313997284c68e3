package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/mp3transcriber/internal/middleware"
	"github.com/hitoshi/mp3transcriber/internal/publicaccess"
)

// PublicAccessServiceInterface は公開アクセスハンドラーが必要とするサービスインターフェース。
type PublicAccessServiceInterface interface {
	Check(ctx context.Context, id string) (*publicaccess.CheckResult, error)
	Verify(ctx context.Context, id, password string, client publicaccess.Client) (*publicaccess.VerifyResult, error)
	ListOwned(ctx context.Context, accountID string, cred publicaccess.Credential, client publicaccess.Client) (*publicaccess.OwnedList, error)
	FetchResource(ctx context.Context, resourceID string, cred publicaccess.Credential, client publicaccess.Client) (*publicaccess.ResourceView, error)
}

// PublicHandler は短縮IDによる公開アクセスのHTTPハンドラー。
type PublicHandler struct {
	service PublicAccessServiceInterface
}

// NewPublicHandler はPublicHandlerを生成する。
func NewPublicHandler(service PublicAccessServiceInterface) *PublicHandler {
	return &PublicHandler{service: service}
}

type checkResponse struct {
	Success          bool   `json:"success"`
	Type             string `json:"type"`
	Name             string `json:"name,omitempty"`
	Mp3Filename      string `json:"mp3_filename,omitempty"`
	Author           string `json:"author,omitempty"`
	RequiresPassword bool   `json:"requiresPassword"`
}

type verifyRequest struct {
	Password string `json:"password"`
}

type publicUserResponse struct {
	ID           string `json:"id"`
	UserID       string `json:"userId"`
	Username     string `json:"username"`
	FirstName    string `json:"first_name"`
	LastName     string `json:"last_name"`
	IsAdmin      bool   `json:"isAdmin"`
	PublicAccess bool   `json:"publicAccess"`
}

type verifyResponse struct {
	Success bool               `json:"success"`
	Type    string             `json:"type"`
	Token   string             `json:"token"`
	User    publicUserResponse `json:"user"`
}

type ownerResponse struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type transcriptionSummaryResponse struct {
	ID          string    `json:"id"`
	Mp3Filename string    `json:"mp3_filename"`
	HasSummary  bool      `json:"has_summary"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type ownedListResponse struct {
	Success        bool                           `json:"success"`
	User           ownerResponse                  `json:"user"`
	Transcriptions []transcriptionSummaryResponse `json:"transcriptions"`
}

type transcriptionResponse struct {
	ID                string    `json:"id"`
	Mp3Filename       string    `json:"mp3_filename"`
	TranscriptionText string    `json:"transcription_text"`
	SummaryText       string    `json:"summary_text,omitempty"`
	HasSummary        bool      `json:"has_summary"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
	Author            string    `json:"author"`
	EditMode          bool      `json:"editMode"`
}

type resourceResponse struct {
	Success       bool                  `json:"success"`
	Transcription transcriptionResponse `json:"transcription"`
}

// Check はIDの種別と表示名を返す。
// GET /api/public/check/{id}
func (h *PublicHandler) Check(w http.ResponseWriter, r *http.Request) {
	result, err := h.service.Check(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, checkResponse{
		Success:          true,
		Type:             result.Type,
		Name:             result.Name,
		Mp3Filename:      result.Filename,
		Author:           result.Author,
		RequiresPassword: result.RequiresPassword,
	})
}

// Verify はパスワードを検証し、閲覧専用トークンを発行する。
// POST /api/public/verify/{id}
func (h *PublicHandler) Verify(w http.ResponseWriter, r *http.Request) {
	var req verifyRequest
	if err := decodeJSON(w, r, &req); err != nil {
		// パスワード未入力として扱い、監査ログはサービス側で記録する
		slog.Debug("invalid verify request body", slog.String("error", err.Error()))
		req.Password = ""
	}

	result, err := h.service.Verify(r.Context(), chi.URLParam(r, "id"), req.Password, middleware.ClientInfo(r))
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, verifyResponse{
		Success: true,
		Type:    result.Type,
		Token:   result.Token,
		User: publicUserResponse{
			ID:           result.User.ID,
			UserID:       result.User.ID,
			Username:     result.User.Username,
			FirstName:    result.User.FirstName,
			LastName:     result.User.LastName,
			IsAdmin:      result.User.IsAdmin,
			PublicAccess: result.User.PublicAccess,
		},
	})
}

// ListOwned はアカウントの文字起こし一覧を返す。
// GET /api/public/user/{id}
func (h *PublicHandler) ListOwned(w http.ResponseWriter, r *http.Request) {
	list, err := h.service.ListOwned(r.Context(), chi.URLParam(r, "id"), credential(r), middleware.ClientInfo(r))
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	items := make([]transcriptionSummaryResponse, len(list.Resources))
	for i, s := range list.Resources {
		items[i] = transcriptionSummaryResponse{
			ID:          s.ID,
			Mp3Filename: s.Filename,
			HasSummary:  s.HasSummary,
			CreatedAt:   s.CreatedAt,
			UpdatedAt:   s.UpdatedAt,
		}
	}

	writeJSON(w, http.StatusOK, ownedListResponse{
		Success:        true,
		User:           ownerResponse{ID: list.Owner.ID, Name: list.Owner.Name},
		Transcriptions: items,
	})
}

// FetchResource は文字起こしを閲覧専用で返す。
// GET /api/public/mp3/{id}
func (h *PublicHandler) FetchResource(w http.ResponseWriter, r *http.Request) {
	view, err := h.service.FetchResource(r.Context(), chi.URLParam(r, "id"), credential(r), middleware.ClientInfo(r))
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, resourceResponse{
		Success: true,
		Transcription: transcriptionResponse{
			ID:                view.ID,
			Mp3Filename:       view.Filename,
			TranscriptionText: view.Content,
			SummaryText:       view.Summary,
			HasSummary:        view.HasSummary,
			CreatedAt:         view.CreatedAt,
			UpdatedAt:         view.UpdatedAt,
			Author:            view.OwnerDisplayName,
			EditMode:          false,
		},
	})
}

// credential はベアラートークンのクレームとクエリの?pw=から資格情報を組み立てる。
func credential(r *http.Request) publicaccess.Credential {
	cred := publicaccess.Credential{Password: r.URL.Query().Get("pw")}
	if claims, ok := middleware.ClaimsFromContext(r.Context()); ok {
		cred.Claims = claims
	}
	return cred
}
