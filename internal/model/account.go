package model

import (
	"strings"
	"time"
)

// Account はサービス利用ユーザーを表す。
// IDはshortidのAccount名前空間（先頭が数字）の6文字。
type Account struct {
	ID           string
	Username     string
	PasswordHash string
	FirstName    string // 公開アクセスの共有パスワードとしても使われる
	LastName     string
	Email        string
	IsAdmin      bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// DisplayName は「名 姓」形式の表示名を返す。
func (a *Account) DisplayName() string {
	return JoinName(a.FirstName, a.LastName)
}

// JoinName は名と姓を空白で連結し、前後の空白を取り除く。
func JoinName(firstName, lastName string) string {
	return strings.TrimSpace(firstName + " " + lastName)
}
