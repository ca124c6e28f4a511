package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	TypeAccess  = "access"
	TypeRefresh = "refresh"
)

var (
	ErrInvalidToken     = errors.New("invalid token")
	ErrWrongTokenType   = errors.New("invalid token type")
	ErrUnexpectedMethod = errors.New("unexpected signing method")
)

// Claims carry the account only. The employee/employer role is a property of
// the profile document, not of the session.
type Claims struct {
	UserID    string `json:"sub"`
	Email     string `json:"email"`
	Verified  bool   `json:"ev,omitempty"`
	TokenType string `json:"typ"`
	JTI       string `json:"jti"`
	jwt.RegisteredClaims
}

type Manager struct {
	secret     []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
}

func NewManager(secret string, accessTTL time.Duration, refreshTTL time.Duration) *Manager {
	return &Manager{
		secret:     []byte(secret),
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		now:        time.Now,
	}
}

type Subject struct {
	UserID   string
	Email    string
	Verified bool
}

// Token is a signed token plus the facts the caller needs to store or return.
type Token struct {
	Raw       string
	JTI       string
	ExpiresAt time.Time
}

func (m *Manager) GenerateAccessToken(s Subject) (Token, error) {
	return m.sign(s, TypeAccess, m.accessTTL)
}

func (m *Manager) GenerateRefreshToken(s Subject) (Token, error) {
	return m.sign(s, TypeRefresh, m.refreshTTL)
}

func (m *Manager) sign(s Subject, typ string, ttl time.Duration) (Token, error) {
	now := m.now().UTC()
	jti := uuid.NewString()
	expiresAt := now.Add(ttl)

	claims := Claims{
		UserID:    s.UserID,
		Email:     s.Email,
		Verified:  s.Verified,
		TokenType: typ,
		JTI:       jti,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        jti,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			Subject:   s.UserID,
		},
	}

	raw, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return Token{}, err
	}
	return Token{Raw: raw, JTI: jti, ExpiresAt: expiresAt}, nil
}

func (m *Manager) parse(tokenStr string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrUnexpectedMethod
		}
		return m.secret, nil
	}, jwt.WithTimeFunc(m.now))
	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

func (m *Manager) VerifyAccessToken(tokenStr string) (*Claims, error) {
	claims, err := m.parse(tokenStr)
	if err != nil {
		return nil, err
	}
	if claims.TokenType != TypeAccess {
		return nil, ErrWrongTokenType
	}
	return claims, nil
}

func (m *Manager) VerifyRefreshToken(tokenStr string) (*Claims, error) {
	claims, err := m.parse(tokenStr)
	if err != nil {
		return nil, err
	}
	if claims.TokenType != TypeRefresh {
		return nil, ErrWrongTokenType
	}
	if claims.JTI == "" {
		return nil, errors.New("missing jti")
	}
	return claims, nil
}

// HashRefreshToken is what gets stored; raw refresh tokens never hit the DB.
func (m *Manager) HashRefreshToken(raw string) string {
	h := hmac.New(sha256.New, m.secret)
	h.Write([]byte(raw))
	return hex.EncodeToString(h.Sum(nil))
}

// HashResetToken keys password reset tokens the same way, under a separate
// label so a refresh hash can never match a reset hash.
func (m *Manager) HashResetToken(raw string) string {
	h := hmac.New(sha256.New, m.secret)
	h.Write([]byte("reset:"))
	h.Write([]byte(raw))
	return hex.EncodeToString(h.Sum(nil))
}
