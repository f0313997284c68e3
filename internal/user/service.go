// Package user はアカウント管理のドメインロジックを提供する。
package user

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"regexp"
	"strings"

	"github.com/hitoshi/mp3transcriber/internal/auth"
	"github.com/hitoshi/mp3transcriber/internal/model"
	"github.com/hitoshi/mp3transcriber/internal/repository"
	"github.com/hitoshi/mp3transcriber/internal/shortid"
)

// MinPasswordLength はログインパスワードの最小文字数。
const MinPasswordLength = 8

var usernamePattern = regexp.MustCompile(`^[a-zA-Z0-9._-]{3,50}$`)

// AccountCreator はアカウント作成に必要なインターフェース。
type AccountCreator interface {
	Create(ctx context.Context, account *model.Account) error
}

// NewAccount はアカウント作成の入力。
type NewAccount struct {
	Username  string
	Password  string
	FirstName string // 公開リンクのパスワードになる
	LastName  string
	Email     string
	IsAdmin   bool
}

// Service はアカウント管理のサービス層。
type Service struct {
	accounts    AccountCreator
	maxAttempts int
	hash        func(password string) (string, error)
}

// NewService はServiceの新しいインスタンスを生成する。
// maxAttemptsが0以下の場合はshortid.DefaultMaxAttemptsを使う。
func NewService(accounts AccountCreator, maxAttempts int) *Service {
	if maxAttempts <= 0 {
		maxAttempts = shortid.DefaultMaxAttempts
	}
	return &Service{
		accounts:    accounts,
		maxAttempts: maxAttempts,
		hash:        auth.HashPassword,
	}
}

// Create は入力を検証してアカウントを作成する。
// IDはAccount名前空間から払い出し、衝突した場合は再生成する。
func (s *Service) Create(ctx context.Context, in NewAccount) (*model.Account, error) {
	in.Username = strings.TrimSpace(in.Username)
	in.FirstName = strings.TrimSpace(in.FirstName)
	in.LastName = strings.TrimSpace(in.LastName)
	in.Email = strings.TrimSpace(in.Email)

	if err := validate(in); err != nil {
		return nil, err
	}

	hash, err := s.hash(in.Password)
	if err != nil {
		return nil, fmt.Errorf("パスワードのハッシュ化に失敗しました: %w", err)
	}

	account := &model.Account{
		Username:     in.Username,
		PasswordHash: hash,
		FirstName:    in.FirstName,
		LastName:     in.LastName,
		Email:        in.Email,
		IsAdmin:      in.IsAdmin,
	}

	id, err := shortid.CreateWithRetry(ctx, shortid.Account, s.maxAttempts, func(ctx context.Context, id string) error {
		account.ID = id
		return s.accounts.Create(ctx, account)
	})
	if err != nil {
		if errors.Is(err, repository.ErrUsernameTaken) {
			return nil, model.NewValidationError("Benutzername ist bereits vergeben.")
		}
		return nil, fmt.Errorf("アカウントの作成に失敗しました: %w", err)
	}
	account.ID = id

	slog.Info("アカウントを作成しました",
		slog.String("account_id", account.ID),
		slog.String("username", account.Username),
		slog.Bool("is_admin", account.IsAdmin),
	)

	return account, nil
}

func validate(in NewAccount) error {
	if !usernamePattern.MatchString(in.Username) {
		return model.NewValidationError("Benutzername muss 3 bis 50 Zeichen lang sein (Buchstaben, Ziffern, . _ -).")
	}
	if len(in.Password) < MinPasswordLength {
		return model.NewValidationError(fmt.Sprintf("Passwort muss mindestens %d Zeichen lang sein.", MinPasswordLength))
	}
	if in.FirstName == "" {
		return model.NewValidationError("Vorname ist erforderlich.")
	}
	if in.Email != "" {
		if _, err := mail.ParseAddress(in.Email); err != nil {
			return model.NewValidationError("E-Mail-Adresse ist ungültig.")
		}
	}
	return nil
}
