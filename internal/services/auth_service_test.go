package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/tbourn/course-platform-backend/internal/auth"
	"github.com/tbourn/course-platform-backend/internal/domain"
)

func TestAuth_LoginAndMe(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	hash, err := auth.HashPassword("s3cret!")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	u := &domain.User{ID: "u1", Email: "Ana@Example.com", PasswordHash: hash, Role: domain.RoleAdmin, IsActive: true}
	if err := db.Create(u).Error; err != nil {
		t.Fatalf("seed: %v", err)
	}
	off := &domain.User{ID: "u2", Email: "off@example.com", PasswordHash: hash, Role: domain.RoleUser}
	if err := db.Create(off).Error; err != nil {
		t.Fatalf("seed: %v", err)
	}

	s := NewAuthService(db, "jwt-secret", time.Hour)

	res, err := s.Login(ctx, "ana@example.com", "s3cret!")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if res.ExpiresIn != 3600 || res.User.ID != "u1" {
		t.Fatalf("unexpected login result: %+v", res)
	}
	claims, err := auth.ParseAccessToken("jwt-secret", res.AccessToken)
	if err != nil || claims.UserID != "u1" || claims.Role != domain.RoleAdmin {
		t.Fatalf("token claims: %+v %v", claims, err)
	}

	for _, tc := range []struct{ email, pw string }{
		{"ana@example.com", "wrong"},
		{"nobody@example.com", "s3cret!"},
		{"off@example.com", "s3cret!"},
		{"", ""},
	} {
		if _, err := s.Login(ctx, tc.email, tc.pw); !errors.Is(err, ErrInvalidCredentials) {
			t.Fatalf("%s: want ErrInvalidCredentials, got %v", tc.email, err)
		}
	}

	me, err := s.Me(ctx, "u1")
	if err != nil || me.Email != "Ana@Example.com" {
		t.Fatalf("Me: %+v %v", me, err)
	}
	if _, err := s.Me(ctx, "ghost"); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("want ErrUserNotFound, got %v", err)
	}
}
