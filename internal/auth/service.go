// Package auth はアカウントのログインと認証済みユーザーの解決を提供する。
package auth

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/hitoshi/mp3transcriber/internal/audit"
	"github.com/hitoshi/mp3transcriber/internal/metrics"
	"github.com/hitoshi/mp3transcriber/internal/model"
	"github.com/hitoshi/mp3transcriber/internal/token"
)

// dummyHash はユーザーが存在しない場合にも比較処理を行うためのハッシュ。
// 応答時間からユーザーの存在を推測されないようにする。
var dummyHash = sync.OnceValue(func() string {
	h, err := HashPassword("mp3transcriber-dummy-password")
	if err != nil {
		return ""
	}
	return h
})

// AccountFinder はログインに必要なアカウント参照インターフェース。
type AccountFinder interface {
	FindByID(ctx context.Context, id string) (*model.Account, error)
	FindByUsername(ctx context.Context, username string) (*model.Account, error)
}

// TokenIssuer はトークン発行のインターフェース。
type TokenIssuer interface {
	Issue(claims token.Claims, ttl time.Duration) (string, error)
}

// ServiceConfig は認証サービスの設定。
type ServiceConfig struct {
	TokenTTL time.Duration // ログイントークンの有効期間
}

// LoginResult はログイン成功時の結果。
type LoginResult struct {
	Token     string
	Account   *model.Account
	ExpiresAt time.Time
}

// Service は認証に関するビジネスロジックを提供する。
type Service struct {
	accounts AccountFinder
	issuer   TokenIssuer
	audit    audit.Sink
	metrics  metrics.MetricsCollector
	config   ServiceConfig
	now      func() time.Time
}

// NewService はServiceを生成する。mcがnilの場合はメトリクスを記録しない。
func NewService(
	accounts AccountFinder,
	issuer TokenIssuer,
	sink audit.Sink,
	mc metrics.MetricsCollector,
	config ServiceConfig,
) *Service {
	if mc == nil {
		mc = metrics.Nop{}
	}
	if config.TokenTTL <= 0 {
		config.TokenTTL = 24 * time.Hour
	}
	return &Service{
		accounts: accounts,
		issuer:   issuer,
		audit:    sink,
		metrics:  mc,
		config:   config,
		now:      time.Now,
	}
}

// Login はユーザー名とパスワードを検証し、トークンを発行する。
// ユーザー不在とパスワード不一致は同じエラーを返す。
func (s *Service) Login(ctx context.Context, username, password string, client model.ClientInfo) (*LoginResult, error) {
	if username == "" || password == "" {
		return nil, model.NewValidationError("Benutzername und Passwort sind erforderlich.")
	}

	account, err := s.accounts.FindByUsername(ctx, username)
	if err != nil {
		return nil, fmt.Errorf("failed to find account: %w", err)
	}

	hash := dummyHash()
	if account != nil {
		hash = account.PasswordHash
	}
	ok, err := CheckPassword(hash, password)
	if err != nil && account != nil {
		slog.Error("stored password hash is invalid",
			slog.String("account_id", account.ID),
			slog.String("error", err.Error()),
		)
	}

	if account == nil || !ok {
		var accountID *string
		if account != nil {
			accountID = &account.ID
		}
		s.recordLogin(ctx, accountID, username, false, client)
		slog.Warn("login failed",
			slog.String("username", username),
			slog.String("ip", client.IP),
		)
		return nil, model.NewInvalidLoginError()
	}

	expiresAt := s.now().Add(s.config.TokenTTL)
	tok, err := s.issuer.Issue(token.Claims{
		AccountID:    account.ID,
		Username:     account.Username,
		IsAdmin:      account.IsAdmin,
		PublicAccess: false,
	}, s.config.TokenTTL)
	if err != nil {
		return nil, fmt.Errorf("failed to issue token: %w", err)
	}

	s.recordLogin(ctx, &account.ID, username, true, client)
	slog.Info("user logged in",
		slog.String("account_id", account.ID),
		slog.String("ip", client.IP),
	)

	return &LoginResult{
		Token:     tok,
		Account:   account,
		ExpiresAt: expiresAt,
	}, nil
}

// CurrentUser はトークンのクレームから現在のアカウントを取得する。
func (s *Service) CurrentUser(ctx context.Context, claims *token.Claims) (*model.Account, error) {
	if claims == nil || claims.AccountID == "" {
		return nil, model.NewUnauthorizedError()
	}

	account, err := s.accounts.FindByID(ctx, claims.AccountID)
	if err != nil {
		return nil, fmt.Errorf("failed to find account: %w", err)
	}
	if account == nil {
		return nil, model.NewUnauthorizedError()
	}

	return account, nil
}

func (s *Service) recordLogin(ctx context.Context, accountID *string, username string, success bool, client model.ClientInfo) {
	s.metrics.RecordLogin(success)
	s.audit.Record(ctx, model.AccessAttempt{
		EventType: model.EventLogin,
		AccountID: accountID,
		IPAddress: client.IP,
		UserAgent: client.UserAgent,
		Details:   map[string]any{"username": username},
		Success:   success,
	})
}
