package repository

import (
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/hitoshi/mp3transcriber/internal/shortid"
)

// pqUniqueViolation はPostgreSQLの一意制約違反のSQLSTATE。
const pqUniqueViolation = "23505"

// ErrUsernameTaken はユーザー名が既に使用されている場合のエラー。
var ErrUsernameTaken = errors.New("username already taken")

// IsUniqueViolation はerrが指定制約の一意制約違反かどうかを返す。
func IsUniqueViolation(err error, constraint string) bool {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return false
	}
	return string(pqErr.Code) == pqUniqueViolation && pqErr.Constraint == constraint
}

// wrapInsertError は主キー衝突をshortid.ErrDuplicateIdentifierに変換する。
func wrapInsertError(err error, pkey, what string) error {
	if IsUniqueViolation(err, pkey) {
		return fmt.Errorf("failed to insert %s: %w", what, shortid.ErrDuplicateIdentifier)
	}
	return fmt.Errorf("failed to insert %s: %w", what, err)
}
