package model

import "time"

// 監査イベント種別
const (
	EventPublicAccessDenied   = "public_access_denied"
	EventPublicAccessVerified = "public_access_verified"
	EventPublicUserAccess     = "public_user_access"
	EventPublicMp3Access      = "public_mp3_access"
	EventLogin                = "login"
)

// AccessAttempt は追記専用の監査ログ1行を表す。
// 作成後に更新・削除されることはない。
type AccessAttempt struct {
	ID        string
	EventType string
	AccountID *string // 解決できなかった場合はnil
	IPAddress string
	UserAgent string
	Details   map[string]any
	Success   bool
	CreatedAt time.Time
}

// ClientInfo はリクエスト元の情報。監査ログに記録する。
type ClientInfo struct {
	IP        string
	UserAgent string
}
