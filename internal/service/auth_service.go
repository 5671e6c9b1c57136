package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stemsi/aptiq-proctor/internal/config"
	"github.com/stemsi/aptiq-proctor/internal/model"
	"github.com/stemsi/aptiq-proctor/internal/repository"
	"golang.org/x/crypto/bcrypt"
)

// Common auth errors.
var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrUserNotFound       = errors.New("user not found")
)

// Claims extends JWT standard claims with app-specific fields.
type Claims struct {
	jwt.RegisteredClaims
	UserID string     `json:"user_id"`
	Role   model.Role `json:"role"`
}

// CanProctor reports whether the token holder may watch proctor events.
func (c *Claims) CanProctor() bool {
	return c.Role == model.RoleInstructor || c.Role == model.RoleAdmin
}

// AuthService handles authentication and JWT issuing.
type AuthService struct {
	cfg     *config.Config
	catalog *repository.Catalog
}

// NewAuthService creates a new AuthService.
func NewAuthService(cfg *config.Config, catalog *repository.Catalog) *AuthService {
	return &AuthService{cfg: cfg, catalog: catalog}
}

// HashPassword hashes a password with the given bcrypt cost.
// Low costs (the default is 6) keep fixture loading fast.
func HashPassword(password string, cost int) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	return string(hash), err
}

// CheckPassword compares a plaintext password against a bcrypt hash.
func CheckPassword(hash, password string) error {
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		return ErrInvalidCredentials
	}
	return nil
}

// Login verifies email and password and returns a signed token.
func (s *AuthService) Login(ctx context.Context, email, password string) (*model.AuthSession, error) {
	rec, err := s.catalog.UserByEmail(email)
	if err != nil {
		return nil, ErrInvalidCredentials
	}
	if err := CheckPassword(rec.PasswordHash, password); err != nil {
		return nil, err
	}

	token, err := s.GenerateToken(rec.User)
	if err != nil {
		return nil, err
	}
	return &model.AuthSession{Token: token, User: rec.User}, nil
}

// GenerateToken creates a JWT for a user.
func (s *AuthService) GenerateToken(user model.User) (string, error) {
	now := time.Now()

	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.New().String(),
			Subject:   user.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.cfg.JWTExpiry)),
		},
		UserID: user.ID,
		Role:   user.Role,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(s.cfg.JWTSecret))
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// ValidateToken parses and validates a JWT, returning the claims.
func (s *AuthService) ValidateToken(tokenStr string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(s.cfg.JWTSecret), nil
	})
	if err != nil {
		return nil, fmt.Errorf("parse token: %w", err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, errors.New("invalid token claims")
	}

	return claims, nil
}

// Me returns the account behind a token.
func (s *AuthService) Me(ctx context.Context, userID string) (*model.User, error) {
	rec, err := s.catalog.UserByID(userID)
	if err != nil {
		return nil, ErrUserNotFound
	}
	u := rec.User
	return &u, nil
}
