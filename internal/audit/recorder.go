// Package audit は監査ログの記録を提供する。
//
// 記録は呼び出し元の処理を失敗させない。永続化に失敗した場合は
// ログに残して握りつぶす。
package audit

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/mp3transcriber/internal/metrics"
	"github.com/hitoshi/mp3transcriber/internal/model"
	"github.com/hitoshi/mp3transcriber/internal/repository"
)

// Sink は監査ログの記録先インターフェース。
type Sink interface {
	Record(ctx context.Context, attempt model.AccessAttempt)
}

// Recorder はリポジトリに監査ログを書き込むSink。
type Recorder struct {
	repo    repository.AuditLogRepository
	metrics metrics.MetricsCollector
	logger  *slog.Logger
	now     func() time.Time
}

// NewRecorder はRecorderを生成する。mcがnilの場合はメトリクスを記録しない。
func NewRecorder(repo repository.AuditLogRepository, mc metrics.MetricsCollector, logger *slog.Logger) *Recorder {
	if mc == nil {
		mc = metrics.Nop{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{
		repo:    repo,
		metrics: mc,
		logger:  logger,
		now:     time.Now,
	}
}

// Record は監査ログを1件書き込む。IDと作成日時が空なら補完する。
// クライアント由来の文字列は書き込み前に整える。
func (r *Recorder) Record(ctx context.Context, attempt model.AccessAttempt) {
	attempt = sanitize(attempt)
	if attempt.ID == "" {
		attempt.ID = uuid.NewString()
	}
	if attempt.CreatedAt.IsZero() {
		attempt.CreatedAt = r.now().UTC()
	}

	// 呼び出し元のキャンセルで監査ログが欠けないようにする
	ctx = context.WithoutCancel(ctx)

	if err := r.repo.Insert(ctx, &attempt); err != nil {
		r.metrics.RecordAuditWriteFailure()
		r.logger.Error("failed to write audit log",
			slog.String("event_type", attempt.EventType),
			slog.Bool("success", attempt.Success),
			slog.String("ip", attempt.IPAddress),
			slog.String("error", err.Error()),
		)
	}
}

var _ Sink = (*Recorder)(nil)
