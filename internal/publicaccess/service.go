// Package publicaccess は短縮IDとパスワードによる公開アクセスを提供する。
//
// パスワードは常にリソース所有者の名(first name)で、Unicodeのケースフォールディング後に比較する。
// 検証に成功すると所有者として振る舞う閲覧専用トークンを発行する。
// トークンにはリソース単位のスコープは含まれず、アカウント単位で有効となる。
package publicaccess

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"

	"github.com/hitoshi/mp3transcriber/internal/audit"
	"github.com/hitoshi/mp3transcriber/internal/metrics"
	"github.com/hitoshi/mp3transcriber/internal/model"
	"github.com/hitoshi/mp3transcriber/internal/shortid"
	"github.com/hitoshi/mp3transcriber/internal/token"
)

// TokenTTL は公開アクセストークンの有効期間。
const TokenTTL = 24 * time.Hour

// 公開アクセスの対象種別
const (
	TypeUser = "user"
	TypeMp3  = "mp3"
)

// 監査ログに記録する拒否理由
const (
	ReasonMalformed           = "malformed"
	ReasonMissingPassword     = "missing_password"
	ReasonUserNotFound        = "user_not_found"
	ReasonMp3NotFound         = "mp3_not_found"
	ReasonWrongPassword       = "wrong_password"
	ReasonTokenMismatch       = "token_account_mismatch"
	ReasonLookupFailed        = "lookup_failed"
	ReasonTokenIssuanceFailed = "token_issuance_failed"
)

// ErrTokenIssuance はトークン発行に失敗したことを表す。利用者には内部エラーとして返す。
var ErrTokenIssuance = errors.New("public access token issuance failed")

// AccountReader はアカウントの参照に必要なインターフェース。
type AccountReader interface {
	FindByID(ctx context.Context, id string) (*model.Account, error)
}

// TranscriptionReader は文字起こしの参照に必要なインターフェース。
type TranscriptionReader interface {
	FindWithOwner(ctx context.Context, id string) (*model.TranscriptionWithOwner, error)
	ListSummariesByOwner(ctx context.Context, ownerID string) ([]model.TranscriptionSummary, error)
}

// TokenIssuer はトークン発行のインターフェース。
type TokenIssuer interface {
	Issue(claims token.Claims, ttl time.Duration) (string, error)
}

// Client はリクエスト元の情報。
type Client = model.ClientInfo

// Credential は続く閲覧操作の資格情報。
// Claimsが所有者のトークンであればそれを優先し、無ければPasswordを照合する。
type Credential struct {
	Password string
	Claims   *token.Claims
}

// CheckResult はIDの種別と表示用の情報。
type CheckResult struct {
	Type             string
	Name             string // Type=userのときの表示名
	Filename         string // Type=mp3のときのファイル名
	Author           string // Type=mp3のときの所有者表示名
	RequiresPassword bool
}

// PublicUser は公開アクセスで返す所有者情報。IsAdminは常にfalse。
type PublicUser struct {
	ID           string
	Username     string
	FirstName    string
	LastName     string
	IsAdmin      bool
	PublicAccess bool
}

// VerifyResult はパスワード検証成功時の結果。
type VerifyResult struct {
	Type  string
	Token string
	User  PublicUser
}

// OwnerRef は一覧の所有者情報。
type OwnerRef struct {
	ID   string
	Name string
}

// OwnedList は所有者と文字起こし一覧。
type OwnedList struct {
	Owner     OwnerRef
	Resources []model.TranscriptionSummary
}

// ResourceView は閲覧専用の文字起こし内容。EditModeは常にfalse。
type ResourceView struct {
	ID               string
	Filename         string
	Content          string
	Summary          string
	HasSummary       bool
	CreatedAt        time.Time
	UpdatedAt        time.Time
	OwnerDisplayName string
	EditMode         bool
}

// owner はパスワード照合とトークン発行の対象となる所有者アカウント。
type owner struct {
	ID        string
	Username  string
	FirstName string
	LastName  string
}

// Service は公開アクセスの検証ロジックを提供する。
type Service struct {
	accounts       AccountReader
	transcriptions TranscriptionReader
	issuer         TokenIssuer
	audit          audit.Sink
	metrics        metrics.MetricsCollector
	logger         *slog.Logger
	now            func() time.Time
}

// NewService はServiceを生成する。mcがnilの場合はメトリクスを記録しない。
func NewService(
	accounts AccountReader,
	transcriptions TranscriptionReader,
	issuer TokenIssuer,
	sink audit.Sink,
	mc metrics.MetricsCollector,
) *Service {
	if mc == nil {
		mc = metrics.Nop{}
	}
	return &Service{
		accounts:       accounts,
		transcriptions: transcriptions,
		issuer:         issuer,
		audit:          sink,
		metrics:        mc,
		logger:         slog.Default(),
		now:            time.Now,
	}
}

// Check はIDの種別と存在を確認する。監査ログは記録しない。
func (s *Service) Check(ctx context.Context, id string) (*CheckResult, error) {
	switch shortid.Classify(id) {
	case shortid.Account:
		account, err := s.accounts.FindByID(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("check account %s: %w", id, err)
		}
		if account == nil {
			s.metrics.RecordAccessAttempt(metrics.OperationCheck, ReasonUserNotFound)
			return nil, model.NewUserNotFoundError()
		}
		s.metrics.RecordAccessAttempt(metrics.OperationCheck, "success")
		return &CheckResult{
			Type:             TypeUser,
			Name:             account.DisplayName(),
			RequiresPassword: true,
		}, nil

	case shortid.Resource:
		t, err := s.transcriptions.FindWithOwner(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("check transcription %s: %w", id, err)
		}
		if t == nil {
			s.metrics.RecordAccessAttempt(metrics.OperationCheck, ReasonMp3NotFound)
			return nil, model.NewTranscriptionNotFoundError()
		}
		s.metrics.RecordAccessAttempt(metrics.OperationCheck, "success")
		return &CheckResult{
			Type:             TypeMp3,
			Filename:         t.Filename,
			Author:           t.OwnerDisplayName(),
			RequiresPassword: true,
		}, nil

	default:
		s.metrics.RecordAccessAttempt(metrics.OperationCheck, ReasonMalformed)
		return nil, model.NewInvalidIDError()
	}
}

// Verify はIDと所有者の名を照合し、成功すれば所有者としての閲覧専用トークンを発行する。
// 成功・失敗にかかわらず、1回の呼び出しにつき監査ログを必ず1件記録する。
func (s *Service) Verify(ctx context.Context, id, password string, client Client) (*VerifyResult, error) {
	start := s.now()
	defer func() {
		s.metrics.RecordVerifyLatency(s.now().Sub(start))
	}()

	if password == "" {
		s.deny(ctx, metrics.OperationVerify, id, nil, ReasonMissingPassword, client)
		return nil, model.NewPasswordRequiredError()
	}

	ns := shortid.Classify(id)
	if ns == shortid.Invalid {
		s.deny(ctx, metrics.OperationVerify, id, nil, ReasonMalformed, client)
		return nil, model.NewInvalidIDError()
	}

	o, err := s.resolveOwner(ctx, id, ns)
	if err != nil {
		s.deny(ctx, metrics.OperationVerify, id, nil, ReasonLookupFailed, client)
		return nil, fmt.Errorf("resolve owner of %s: %w", id, err)
	}
	if o == nil {
		if ns == shortid.Account {
			s.deny(ctx, metrics.OperationVerify, id, nil, ReasonUserNotFound, client)
			return nil, model.NewUserNotFoundError()
		}
		s.deny(ctx, metrics.OperationVerify, id, nil, ReasonMp3NotFound, client)
		return nil, model.NewTranscriptionNotFoundError()
	}

	if !firstNameMatches(password, o.FirstName) {
		s.deny(ctx, metrics.OperationVerify, id, &o.ID, ReasonWrongPassword, client)
		return nil, model.NewWrongPasswordError()
	}

	tok, err := s.issuer.Issue(token.Claims{
		AccountID:    o.ID,
		Username:     o.Username,
		IsAdmin:      false,
		PublicAccess: true,
	}, TokenTTL)
	if err != nil {
		s.deny(ctx, metrics.OperationVerify, id, &o.ID, ReasonTokenIssuanceFailed, client)
		return nil, fmt.Errorf("%w: %v", ErrTokenIssuance, err)
	}

	typ := typeOf(ns)
	s.audit.Record(ctx, model.AccessAttempt{
		EventType: model.EventPublicAccessVerified,
		AccountID: &o.ID,
		IPAddress: client.IP,
		UserAgent: client.UserAgent,
		Details:   map[string]any{"id": id, "type": typ},
		Success:   true,
	})
	s.metrics.RecordAccessAttempt(metrics.OperationVerify, "success")
	s.logger.Info("public access verified",
		slog.String("id", id),
		slog.String("type", typ),
		slog.String("account_id", o.ID),
		slog.String("ip", client.IP),
	)

	return &VerifyResult{
		Type:  typ,
		Token: tok,
		User: PublicUser{
			ID:           o.ID,
			Username:     o.Username,
			FirstName:    o.FirstName,
			LastName:     o.LastName,
			IsAdmin:      false,
			PublicAccess: true,
		},
	}, nil
}

// ListOwned はアカウントが所有する文字起こし一覧を新しい順に返す。本文は含まない。
func (s *Service) ListOwned(ctx context.Context, accountID string, cred Credential, client Client) (*OwnedList, error) {
	if shortid.Classify(accountID) != shortid.Account {
		s.metrics.RecordAccessAttempt(metrics.OperationList, ReasonMalformed)
		return nil, model.NewInvalidIDError()
	}

	account, err := s.accounts.FindByID(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("find account %s: %w", accountID, err)
	}
	if account == nil {
		s.metrics.RecordAccessAttempt(metrics.OperationList, ReasonUserNotFound)
		return nil, model.NewUserNotFoundError()
	}

	if reason, ok := authorize(cred, account.ID, account.FirstName); !ok {
		s.deny(ctx, metrics.OperationList, accountID, &account.ID, reason, client)
		return nil, model.NewAccessDeniedError()
	}

	summaries, err := s.transcriptions.ListSummariesByOwner(ctx, account.ID)
	if err != nil {
		return nil, fmt.Errorf("list transcriptions of %s: %w", account.ID, err)
	}

	s.audit.Record(ctx, model.AccessAttempt{
		EventType: model.EventPublicUserAccess,
		AccountID: &account.ID,
		IPAddress: client.IP,
		UserAgent: client.UserAgent,
		Details:   map[string]any{"id": accountID, "mp3_count": len(summaries)},
		Success:   true,
	})
	s.metrics.RecordAccessAttempt(metrics.OperationList, "success")

	return &OwnedList{
		Owner:     OwnerRef{ID: account.ID, Name: account.DisplayName()},
		Resources: summaries,
	}, nil
}

// FetchResource は文字起こしの内容を閲覧専用で返す。
func (s *Service) FetchResource(ctx context.Context, resourceID string, cred Credential, client Client) (*ResourceView, error) {
	if shortid.Classify(resourceID) != shortid.Resource {
		s.metrics.RecordAccessAttempt(metrics.OperationFetch, ReasonMalformed)
		return nil, model.NewInvalidIDError()
	}

	t, err := s.transcriptions.FindWithOwner(ctx, resourceID)
	if err != nil {
		return nil, fmt.Errorf("find transcription %s: %w", resourceID, err)
	}
	if t == nil {
		s.metrics.RecordAccessAttempt(metrics.OperationFetch, ReasonMp3NotFound)
		return nil, model.NewTranscriptionNotFoundError()
	}

	if reason, ok := authorize(cred, t.OwnerID, t.OwnerFirstName); !ok {
		s.deny(ctx, metrics.OperationFetch, resourceID, &t.OwnerID, reason, client)
		return nil, model.NewAccessDeniedError()
	}

	s.audit.Record(ctx, model.AccessAttempt{
		EventType: model.EventPublicMp3Access,
		AccountID: &t.OwnerID,
		IPAddress: client.IP,
		UserAgent: client.UserAgent,
		Details:   map[string]any{"id": resourceID, "mp3_filename": t.Filename},
		Success:   true,
	})
	s.metrics.RecordAccessAttempt(metrics.OperationFetch, "success")

	return &ResourceView{
		ID:               t.ID,
		Filename:         t.Filename,
		Content:          t.Text,
		Summary:          t.SummaryText,
		HasSummary:       t.HasSummary,
		CreatedAt:        t.CreatedAt,
		UpdatedAt:        t.UpdatedAt,
		OwnerDisplayName: t.OwnerDisplayName(),
		EditMode:         false,
	}, nil
}

// resolveOwner はIDから所有者アカウントを解決する。
// 文字起こしIDの場合はリソース自身ではなく所有者を返す。見つからない場合はnil。
func (s *Service) resolveOwner(ctx context.Context, id string, ns shortid.Namespace) (*owner, error) {
	if ns == shortid.Account {
		a, err := s.accounts.FindByID(ctx, id)
		if err != nil || a == nil {
			return nil, err
		}
		return &owner{ID: a.ID, Username: a.Username, FirstName: a.FirstName, LastName: a.LastName}, nil
	}

	t, err := s.transcriptions.FindWithOwner(ctx, id)
	if err != nil || t == nil {
		return nil, err
	}
	return &owner{ID: t.OwnerID, Username: t.OwnerUsername, FirstName: t.OwnerFirstName, LastName: t.OwnerLastName}, nil
}

// deny は拒否を監査ログとメトリクスに記録する。
func (s *Service) deny(ctx context.Context, operation, id string, accountID *string, reason string, client Client) {
	s.audit.Record(ctx, model.AccessAttempt{
		EventType: model.EventPublicAccessDenied,
		AccountID: accountID,
		IPAddress: client.IP,
		UserAgent: client.UserAgent,
		Details:   map[string]any{"id": id, "reason": reason, "operation": operation},
		Success:   false,
	})
	s.metrics.RecordAccessAttempt(operation, reason)
	s.logger.Warn("public access denied",
		slog.String("operation", operation),
		slog.String("id", id),
		slog.String("reason", reason),
		slog.String("ip", client.IP),
	)
}

// authorize は続く閲覧操作の資格情報を確認する。
// 所有者本人のトークン、または所有者の名と一致するパスワードのいずれかで許可する。
func authorize(cred Credential, ownerID, firstName string) (string, bool) {
	if cred.Claims != nil && cred.Claims.AccountID == ownerID {
		return "", true
	}
	if cred.Password != "" {
		if firstNameMatches(cred.Password, firstName) {
			return "", true
		}
		return ReasonWrongPassword, false
	}
	if cred.Claims != nil {
		return ReasonTokenMismatch, false
	}
	return ReasonMissingPassword, false
}

// firstNameMatches はUnicodeの完全ケースフォールディングとNFC正規化を施してから定数時間で比較する。
// "İ"は"i̇"、"ß"は"ss"と等しく扱われる。
func firstNameMatches(password, firstName string) bool {
	if firstName == "" {
		return false
	}
	a := []byte(foldName(password))
	b := []byte(foldName(firstName))
	return subtle.ConstantTimeCompare(a, b) == 1
}

// foldName は比較用に名前を正規化する。Caserは状態を持つため呼び出しごとに生成する。
func foldName(s string) string {
	return norm.NFC.String(cases.Fold().String(norm.NFC.String(s)))
}

func typeOf(ns shortid.Namespace) string {
	if ns == shortid.Account {
		return TypeUser
	}
	return TypeMp3
}
