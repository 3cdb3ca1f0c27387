// Package services – AuthService
//
// AuthService exchanges credentials for a signed access token. Account
// management lives elsewhere; this only covers sign-in and the current user.
package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"go.opentelemetry.io/otel"

	"github.com/tbourn/course-platform-backend/internal/auth"
	"github.com/tbourn/course-platform-backend/internal/domain"
	"github.com/tbourn/course-platform-backend/internal/repo"
)

// LoginResult is returned on successful sign-in.
type LoginResult struct {
	AccessToken string       `json:"access_token"`
	TokenType   string       `json:"token_type"`
	ExpiresIn   int          `json:"expires_in"`
	User        *domain.User `json:"user"`
}

// AuthService signs users in.
type AuthService struct {
	DB        *gorm.DB
	Secret    string
	AccessTTL time.Duration
	Log       zerolog.Logger
}

// NewAuthService constructs an AuthService.
func NewAuthService(db *gorm.DB, secret string, ttl time.Duration) *AuthService {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &AuthService{DB: db, Secret: secret, AccessTTL: ttl, Log: log.Logger}
}

// Login checks the password and issues an access token. Unknown, inactive
// and deleted accounts all yield ErrInvalidCredentials.
func (s *AuthService) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	ctx, span := otel.Tracer("services/AuthService").Start(ctx, "Login")
	defer span.End()

	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return nil, ErrInvalidCredentials
	}
	u, err := repo.GetUserByEmail(ctx, s.DB, email)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	if !u.IsActive || !auth.CheckPassword(u.PasswordHash, password) {
		s.Log.Info().Str("user_id", u.ID).Bool("active", u.IsActive).Msg("login rejected")
		return nil, ErrInvalidCredentials
	}

	tok, err := auth.IssueAccessToken(s.Secret, s.AccessTTL, u.ID, u.Email, u.Role)
	if err != nil {
		return nil, err
	}
	return &LoginResult{
		AccessToken: tok,
		TokenType:   "Bearer",
		ExpiresIn:   int(s.AccessTTL / time.Second),
		User:        u,
	}, nil
}

// Me returns the signed-in user.
func (s *AuthService) Me(ctx context.Context, userID string) (*domain.User, error) {
	u, err := repo.GetUser(ctx, s.DB, userID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return u, nil
}
