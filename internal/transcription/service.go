// Package transcription は文字起こし成果物の取り込みを提供する。
package transcription

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/hitoshi/mp3transcriber/internal/model"
	"github.com/hitoshi/mp3transcriber/internal/shortid"
)

// MaxFilenameLength はファイル名の最大長。
const MaxFilenameLength = 255

// AccountFinder は所有者の存在確認に必要なインターフェース。
type AccountFinder interface {
	FindByID(ctx context.Context, id string) (*model.Account, error)
}

// TranscriptionCreator は文字起こしの保存に必要なインターフェース。
type TranscriptionCreator interface {
	Create(ctx context.Context, t *model.Transcription) error
}

// NewTranscription は取り込む文字起こしの入力。
type NewTranscription struct {
	OwnerID  string
	Filename string
	Text     string
	Summary  string
}

// Service は文字起こし取り込みのサービス層。
type Service struct {
	accounts       AccountFinder
	transcriptions TranscriptionCreator
	maxAttempts    int
}

// NewService はServiceを生成する。
// maxAttemptsが0以下の場合はshortid.DefaultMaxAttemptsを使う。
func NewService(accounts AccountFinder, transcriptions TranscriptionCreator, maxAttempts int) *Service {
	if maxAttempts <= 0 {
		maxAttempts = shortid.DefaultMaxAttempts
	}
	return &Service{
		accounts:       accounts,
		transcriptions: transcriptions,
		maxAttempts:    maxAttempts,
	}
}

// Import は文字起こしを保存し、Resource名前空間のIDを払い出す。
func (s *Service) Import(ctx context.Context, in NewTranscription) (*model.Transcription, error) {
	if shortid.Classify(in.OwnerID) != shortid.Account {
		return nil, model.NewInvalidIDError()
	}

	filename := filepath.Base(strings.TrimSpace(in.Filename))
	if filename == "" || filename == "." || filename == string(filepath.Separator) {
		return nil, model.NewValidationError("Dateiname ist erforderlich.")
	}
	if len(filename) > MaxFilenameLength {
		return nil, model.NewValidationError("Dateiname ist zu lang.")
	}
	if strings.TrimSpace(in.Text) == "" {
		return nil, model.NewValidationError("Transkript ist leer.")
	}

	owner, err := s.accounts.FindByID(ctx, in.OwnerID)
	if err != nil {
		return nil, fmt.Errorf("所有者の取得に失敗しました: %w", err)
	}
	if owner == nil {
		return nil, model.NewUserNotFoundError()
	}

	summary := strings.TrimSpace(in.Summary)
	t := &model.Transcription{
		OwnerID:     owner.ID,
		Filename:    filename,
		Text:        in.Text,
		SummaryText: summary,
		HasSummary:  summary != "",
	}

	id, err := shortid.CreateWithRetry(ctx, shortid.Resource, s.maxAttempts, func(ctx context.Context, id string) error {
		t.ID = id
		return s.transcriptions.Create(ctx, t)
	})
	if err != nil {
		return nil, fmt.Errorf("文字起こしの保存に失敗しました: %w", err)
	}
	t.ID = id

	slog.Info("文字起こしを取り込みました",
		slog.String("transcription_id", t.ID),
		slog.String("owner_id", t.OwnerID),
		slog.String("filename", t.Filename),
		slog.Bool("has_summary", t.HasSummary),
	)

	return t, nil
}
