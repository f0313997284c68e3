package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/mp3transcriber/internal/model"
)

// PostgresTranscriptionRepo はPostgreSQLを使用した文字起こしリポジトリ。
type PostgresTranscriptionRepo struct {
	db *sql.DB
}

// NewPostgresTranscriptionRepo はPostgresTranscriptionRepoを生成する。
func NewPostgresTranscriptionRepo(db *sql.DB) *PostgresTranscriptionRepo {
	return &PostgresTranscriptionRepo{db: db}
}

// FindWithOwner は指定IDの文字起こしを所有者情報付きで取得する。
func (r *PostgresTranscriptionRepo) FindWithOwner(ctx context.Context, id string) (*model.TranscriptionWithOwner, error) {
	t := &model.TranscriptionWithOwner{}
	err := r.db.QueryRowContext(ctx,
		`SELECT t.id, t.user_id, t.mp3_filename, t.transcription_text, t.summary_text,
		        t.has_summary, t.created_at, t.updated_at,
		        u.username, u.first_name, u.last_name
		 FROM transcriptions t
		 JOIN users u ON u.id = t.user_id
		 WHERE t.id = $1`,
		id,
	).Scan(
		&t.ID, &t.OwnerID, &t.Filename, &t.Text, &t.SummaryText,
		&t.HasSummary, &t.CreatedAt, &t.UpdatedAt,
		&t.OwnerUsername, &t.OwnerFirstName, &t.OwnerLastName,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find transcription by ID: %w", err)
	}

	return t, nil
}

// ListSummariesByOwner は所有者の文字起こし一覧を作成日時の降順で返す。
func (r *PostgresTranscriptionRepo) ListSummariesByOwner(ctx context.Context, ownerID string) ([]model.TranscriptionSummary, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, mp3_filename, has_summary, created_at, updated_at
		 FROM transcriptions
		 WHERE user_id = $1
		 ORDER BY created_at DESC, id`,
		ownerID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list transcriptions: %w", err)
	}
	defer rows.Close()

	summaries := make([]model.TranscriptionSummary, 0)
	for rows.Next() {
		var s model.TranscriptionSummary
		if err := rows.Scan(&s.ID, &s.Filename, &s.HasSummary, &s.CreatedAt, &s.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan transcription: %w", err)
		}
		summaries = append(summaries, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate transcriptions: %w", err)
	}

	return summaries, nil
}

// Create は文字起こしを作成する。
func (r *PostgresTranscriptionRepo) Create(ctx context.Context, t *model.Transcription) error {
	err := r.db.QueryRowContext(ctx,
		`INSERT INTO transcriptions (id, user_id, mp3_filename, transcription_text, summary_text, has_summary)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING created_at, updated_at`,
		t.ID, t.OwnerID, t.Filename, t.Text, t.SummaryText, t.HasSummary,
	).Scan(&t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return wrapInsertError(err, "transcriptions_pkey", "transcription")
	}
	return nil
}

// compile-time interface check
var _ TranscriptionRepository = (*PostgresTranscriptionRepo)(nil)
