// Package model はドメインモデルを定義する。
package model

import (
	"errors"
	"fmt"
)

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
// MessageとActionは利用者向けのためドイツ語で記述する。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, access, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeInvalidID             = "INVALID_ID"
	ErrCodeUserNotFound          = "USER_NOT_FOUND"
	ErrCodeTranscriptionNotFound = "TRANSCRIPTION_NOT_FOUND"
	ErrCodePasswordRequired      = "PASSWORD_REQUIRED"
	ErrCodeWrongPassword         = "WRONG_PASSWORD"
	ErrCodeAccessDenied          = "ACCESS_DENIED"
	ErrCodeInvalidLogin          = "INVALID_LOGIN"
	ErrCodeUnauthorized          = "UNAUTHORIZED"
	ErrCodeValidation            = "VALIDATION_FAILED"
	ErrCodeRateLimited           = "RATE_LIMITED"
	ErrCodeInternal              = "INTERNAL_ERROR"
)

// HasCode はerrがAPIErrorであり、指定コードを持つかどうかを返す。
func HasCode(err error, code string) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code == code
	}
	return false
}

// NewInvalidIDError はID形式が不正な場合のエラーを生成する。
func NewInvalidIDError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidID,
		Message:  "Ungültige ID. IDs müssen 6 alphanumerische Zeichen sein.",
		Category: "validation",
		Action:   "Bitte prüfen Sie den Link bzw. die eingegebene ID.",
	}
}

// NewUserNotFoundError はユーザーが見つからない場合のエラーを生成する。
func NewUserNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodeUserNotFound,
		Message:  "Benutzer nicht gefunden.",
		Category: "access",
		Action:   "Bitte prüfen Sie die ID.",
	}
}

// NewTranscriptionNotFoundError は文字起こしが見つからない場合のエラーを生成する。
func NewTranscriptionNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodeTranscriptionNotFound,
		Message:  "MP3-Transkription nicht gefunden.",
		Category: "access",
		Action:   "Bitte prüfen Sie die ID.",
	}
}

// NewPasswordRequiredError はパスワード未入力の場合のエラーを生成する。
func NewPasswordRequiredError() *APIError {
	return &APIError{
		Code:     ErrCodePasswordRequired,
		Message:  "Passwort erforderlich.",
		Category: "validation",
		Action:   "Bitte geben Sie das Passwort ein.",
	}
}

// NewWrongPasswordError は公開アクセスのパスワード不一致エラーを生成する。
func NewWrongPasswordError() *APIError {
	return &APIError{
		Code:     ErrCodeWrongPassword,
		Message:  "Falsches Passwort.",
		Category: "auth",
		Action:   "Bitte versuchen Sie es erneut.",
	}
}

// NewAccessDeniedError は公開リンクの閲覧で資格情報が無いか一致しない場合のエラーを生成する。
func NewAccessDeniedError() *APIError {
	return &APIError{
		Code:     ErrCodeAccessDenied,
		Message:  "Passwort erforderlich oder falsch.",
		Category: "auth",
		Action:   "Bitte öffnen Sie den Link erneut und geben Sie das Passwort ein.",
	}
}

// NewRateLimitedError はレート制限超過エラーを生成する。
func NewRateLimitedError(message string) *APIError {
	return &APIError{
		Code:     ErrCodeRateLimited,
		Message:  message,
		Category: "system",
		Action:   "Bitte warten Sie einen Moment und versuchen Sie es erneut.",
	}
}

// NewInvalidLoginError はログイン失敗エラーを生成する。
// ユーザー不在とパスワード不一致を区別しない。
func NewInvalidLoginError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidLogin,
		Message:  "Ungültiger Benutzername oder Passwort.",
		Category: "auth",
		Action:   "Bitte prüfen Sie Ihre Zugangsdaten.",
	}
}

// NewUnauthorizedError は認証が必要な場合のエラーを生成する。
func NewUnauthorizedError() *APIError {
	return &APIError{
		Code:     ErrCodeUnauthorized,
		Message:  "Nicht authentifiziert. Bitte einloggen.",
		Category: "auth",
		Action:   "Bitte melden Sie sich erneut an.",
	}
}

// NewValidationError は入力値検証エラーを生成する。
func NewValidationError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeValidation,
		Message:  fmt.Sprintf("Ungültige Eingabe: %s", reason),
		Category: "validation",
		Action:   "Bitte korrigieren Sie die Eingabe.",
	}
}

// NewInternalError は内部エラーの統一レスポンス用エラーを生成する。
// 詳細はログにのみ記録する。
func NewInternalError() *APIError {
	return &APIError{
		Code:     ErrCodeInternal,
		Message:  "Ein interner Fehler ist aufgetreten.",
		Category: "system",
		Action:   "Bitte versuchen Sie es später erneut.",
	}
}
