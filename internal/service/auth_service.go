package service

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

var (
	// ErrInvalidCredentials indicates that provided login credentials are incorrect.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrInvalidToken indicates a missing, malformed, expired, or forged token.
	ErrInvalidToken = errors.New("invalid token")
	// ErrAuthNotConfigured is returned when no secret or password hash is set.
	ErrAuthNotConfigured = errors.New("auth is not configured")
)

const tokenIssuer = "csv-uploader"

// OperatorSubject is the subject carried by every token; there is a single operator account.
const OperatorSubject = "operator"

// AuthService authenticates the operator and issues API tokens.
type AuthService interface {
	Login(password string) (string, time.Time, error)
	Verify(token string) (*jwt.RegisteredClaims, error)
}

type authService struct {
	secret       []byte
	passwordHash []byte
	ttl          time.Duration
	now          func() time.Time
}

func NewAuthService(jwtSecret, passwordHash string, ttl time.Duration) AuthService {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &authService{
		secret:       []byte(strings.TrimSpace(jwtSecret)),
		passwordHash: []byte(strings.TrimSpace(passwordHash)),
		ttl:          ttl,
		now:          time.Now,
	}
}

// HashPassword produces the bcrypt hash expected in auth.passwordhash.
func HashPassword(password string) (string, error) {
	password = strings.TrimSpace(password)
	if len(password) < 8 {
		return "", errors.New("password must be at least 8 characters")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

func (s *authService) Login(password string) (string, time.Time, error) {
	if len(s.secret) == 0 || len(s.passwordHash) == 0 {
		return "", time.Time{}, ErrAuthNotConfigured
	}
	password = strings.TrimSpace(password)
	if password == "" {
		return "", time.Time{}, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword(s.passwordHash, []byte(password)); err != nil {
		return "", time.Time{}, ErrInvalidCredentials
	}

	now := s.now()
	expires := now.Add(s.ttl)
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Issuer:    tokenIssuer,
		Subject:   OperatorSubject,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(expires),
	})
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return signed, expires, nil
}

func (s *authService) Verify(token string) (*jwt.RegisteredClaims, error) {
	if len(s.secret) == 0 {
		return nil, ErrAuthNotConfigured
	}
	claims := &jwt.RegisteredClaims{}
	parsed, err := jwt.ParseWithClaims(strings.TrimSpace(token), claims, func(*jwt.Token) (any, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(tokenIssuer),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil || !parsed.Valid {
		return nil, ErrInvalidToken
	}
	if claims.Subject != OperatorSubject {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
