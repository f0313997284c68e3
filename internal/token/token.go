// Package token はJWTベアラートークンの発行と検証を行う。
package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	// ErrTokenExpired はトークンの有効期限切れを表す。
	ErrTokenExpired = errors.New("token expired")
	// ErrInvalidToken は署名不正や形式不正のトークンを表す。
	ErrInvalidToken = errors.New("invalid token")
	// ErrEmptySigningKey は署名鍵が空の場合のエラー。
	ErrEmptySigningKey = errors.New("signing key must not be empty")
)

// Claims はトークンに含めるアカウント識別情報。
// PublicAccessがtrueのトークンは公開リンク経由で発行された閲覧専用のもの。
type Claims struct {
	AccountID    string `json:"accountId"`
	Username     string `json:"username"`
	IsAdmin      bool   `json:"isAdmin"`
	PublicAccess bool   `json:"publicAccess"`
	jwt.RegisteredClaims
}

// Issuer は署名鍵を保持し、トークンを発行・検証する。
type Issuer struct {
	key    []byte
	issuer string
	now    func() time.Time
}

// NewIssuer は署名鍵を受け取りIssuerを生成する。
func NewIssuer(key []byte, issuer string) (*Issuer, error) {
	if len(key) == 0 {
		return nil, ErrEmptySigningKey
	}
	k := make([]byte, len(key))
	copy(k, key)
	return &Issuer{key: k, issuer: issuer, now: time.Now}, nil
}

// Issue はclaimsに有効期限ttlを設定し、HS256で署名したトークンを返す。
func (i *Issuer) Issue(claims Claims, ttl time.Duration) (string, error) {
	if ttl <= 0 {
		return "", fmt.Errorf("issue token: ttl must be positive, got %s", ttl)
	}

	now := i.now()
	claims.RegisteredClaims = jwt.RegisteredClaims{
		Issuer:    i.issuer,
		Subject:   claims.AccountID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		ID:        uuid.NewString(),
	}

	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := t.SignedString(i.key)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Parse はトークンの署名と有効期限を検証し、クレームを返す。
func (i *Issuer) Parse(tokenString string) (*Claims, error) {
	claims := &Claims{}

	t, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		return i.key, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(i.now),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	if !t.Valid || claims.AccountID == "" {
		return nil, ErrInvalidToken
	}

	return claims, nil
}
