package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/hitoshi/mp3transcriber/internal/model"
)

// PostgresAuditLogRepo はPostgreSQLを使用した監査ログリポジトリ。
type PostgresAuditLogRepo struct {
	db *sql.DB
}

// NewPostgresAuditLogRepo はPostgresAuditLogRepoを生成する。
func NewPostgresAuditLogRepo(db *sql.DB) *PostgresAuditLogRepo {
	return &PostgresAuditLogRepo{db: db}
}

// Insert は監査ログを1件追加する。detailsはJSONBとして保存する。
func (r *PostgresAuditLogRepo) Insert(ctx context.Context, a *model.AccessAttempt) error {
	details := a.Details
	if details == nil {
		details = map[string]any{}
	}
	detailsJSON, err := json.Marshal(details)
	if err != nil {
		return fmt.Errorf("failed to marshal audit details: %w", err)
	}

	var accountID sql.NullString
	if a.AccountID != nil {
		accountID = sql.NullString{String: *a.AccountID, Valid: true}
	}

	_, err = r.db.ExecContext(ctx,
		`INSERT INTO audit_logs (id, event_type, user_id, ip_address, user_agent, details, success, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		a.ID, a.EventType, accountID, a.IPAddress, a.UserAgent, detailsJSON, a.Success, a.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert audit log: %w", err)
	}
	return nil
}

// compile-time interface check
var _ AuditLogRepository = (*PostgresAuditLogRepo)(nil)
