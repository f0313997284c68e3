// Package shortid は公開リンク用の6文字IDの生成と分類を提供する。
//
// IDは [0-9a-z] の6文字で、先頭文字が数字ならアカウント、
// 英小文字なら文字起こし(リソース)を表す。分類は先頭文字のみで決まり、
// データベースを参照しない。
package shortid

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
)

// Length はIDの文字数。
const Length = 6

// DefaultMaxAttempts はCreateWithRetryの既定の試行回数。
const DefaultMaxAttempts = 5

const (
	accountFirstChars  = "0123456789"
	resourceFirstChars = "abcdefghijklmnopqrstuvwxyz"
	alphabet           = accountFirstChars + resourceFirstChars
)

// Namespace はIDの名前空間を表す。
type Namespace int

const (
	// Invalid は形式不正のIDを表す。
	Invalid Namespace = iota
	// Account はユーザーアカウントのIDを表す。
	Account
	// Resource は文字起こしのIDを表す。
	Resource
)

// String は名前空間の名前を返す。
func (n Namespace) String() string {
	switch n {
	case Account:
		return "account"
	case Resource:
		return "resource"
	default:
		return "invalid"
	}
}

var (
	// ErrDuplicateIdentifier は保存先の主キー制約違反を表す。
	// insert関数がこのエラーを返すとCreateWithRetryはIDを再生成する。
	ErrDuplicateIdentifier = errors.New("shortid: duplicate identifier")

	// ErrIDSpaceExhausted は試行回数内に未使用のIDを確保できなかったことを表す。
	ErrIDSpaceExhausted = errors.New("shortid: id space exhausted")

	// ErrInvalidNamespace は生成対象の名前空間が不正な場合のエラー。
	ErrInvalidNamespace = errors.New("shortid: invalid namespace")
)

// Generate は指定した名前空間のIDを生成する。一意性は確認しない。
func Generate(ns Namespace) (string, error) {
	var first string
	switch ns {
	case Account:
		first = accountFirstChars
	case Resource:
		first = resourceFirstChars
	default:
		return "", ErrInvalidNamespace
	}

	buf := make([]byte, Length)
	c, err := pick(first)
	if err != nil {
		return "", err
	}
	buf[0] = c
	for i := 1; i < Length; i++ {
		c, err := pick(alphabet)
		if err != nil {
			return "", err
		}
		buf[i] = c
	}
	return string(buf), nil
}

func pick(chars string) (byte, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(int64(len(chars))))
	if err != nil {
		return 0, fmt.Errorf("read random: %w", err)
	}
	return chars[n.Int64()], nil
}

// IsWellFormed はidが ^[0-9a-z]{6}$ に一致するかどうかを返す。
func IsWellFormed(id string) bool {
	if len(id) != Length {
		return false
	}
	for i := 0; i < len(id); i++ {
		c := id[i]
		if (c < '0' || c > '9') && (c < 'a' || c > 'z') {
			return false
		}
	}
	return true
}

// Classify はidの名前空間を返す。形式不正の場合はInvalid。
func Classify(id string) Namespace {
	if !IsWellFormed(id) {
		return Invalid
	}
	c := id[0]
	switch {
	case c >= '0' && c <= '9':
		return Account
	case c >= 'a' && c <= 'z':
		return Resource
	default:
		return Invalid
	}
}

// CreateWithRetry はIDを生成してinsertを呼び出す。
// insertがErrDuplicateIdentifierを返した場合はIDを再生成して再試行し、
// maxAttempts回失敗するとErrIDSpaceExhaustedを返す。
// それ以外のエラーはそのまま返す。maxAttemptsが0以下ならDefaultMaxAttemptsを使う。
func CreateWithRetry(ctx context.Context, ns Namespace, maxAttempts int, insert func(ctx context.Context, id string) error) (string, error) {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}

		id, err := Generate(ns)
		if err != nil {
			return "", err
		}

		err = insert(ctx, id)
		if err == nil {
			return id, nil
		}
		if !errors.Is(err, ErrDuplicateIdentifier) {
			return "", err
		}
		slog.Warn("short id collision, regenerating",
			slog.String("namespace", ns.String()),
			slog.Int("attempt", attempt),
		)
	}

	return "", fmt.Errorf("%w after %d attempts", ErrIDSpaceExhausted, maxAttempts)
}
