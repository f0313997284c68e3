// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"

	"github.com/hitoshi/mp3transcriber/internal/model"
)

// AccountRepository はアカウントデータの永続化インターフェース。
type AccountRepository interface {
	// FindByID は指定IDのアカウントを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Account, error)

	// FindByUsername はユーザー名でアカウントを検索する。見つからない場合はnilを返す。
	FindByUsername(ctx context.Context, username string) (*model.Account, error)

	// Create はアカウントを作成する。
	// IDが既に使用されている場合は shortid.ErrDuplicateIdentifier を返す。
	Create(ctx context.Context, account *model.Account) error
}

// TranscriptionRepository は文字起こしデータの永続化インターフェース。
type TranscriptionRepository interface {
	// FindWithOwner は指定IDの文字起こしを所有者情報付きで取得する。
	// 見つからない場合はnilを返す。
	FindWithOwner(ctx context.Context, id string) (*model.TranscriptionWithOwner, error)

	// ListSummariesByOwner は所有者の文字起こし一覧を作成日時の降順で返す。
	// 本文は含まない。
	ListSummariesByOwner(ctx context.Context, ownerID string) ([]model.TranscriptionSummary, error)

	// Create は文字起こしを作成する。
	// IDが既に使用されている場合は shortid.ErrDuplicateIdentifier を返す。
	Create(ctx context.Context, t *model.Transcription) error
}

// AuditLogRepository は監査ログの永続化インターフェース。追記のみ。
type AuditLogRepository interface {
	// Insert は監査ログを1件追加する。
	Insert(ctx context.Context, attempt *model.AccessAttempt) error
}
