package repo

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestCreateUser_DuplicateEmail(t *testing.T) {
	db := newRepoDB(t)
	ctx := context.Background()

	if _, err := CreateUser(ctx, db, "a@example.com", "h1"); err != nil {
		t.Fatalf("first CreateUser: %v", err)
	}
	if _, err := CreateUser(ctx, db, "a@example.com", "h2"); !errors.Is(err, ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate, got %v", err)
	}
}

func TestGetUserByEmail_And_UpdatePasswordHash(t *testing.T) {
	db := newRepoDB(t)
	ctx := context.Background()
	u := seedUser(t, db, "b@example.com")

	got, err := GetUserByEmail(ctx, db, "b@example.com")
	if err != nil || got.ID != u.ID {
		t.Fatalf("GetUserByEmail = (%+v, %v)", got, err)
	}
	if err := UpdatePasswordHash(ctx, db, "b@example.com", "new"); err != nil {
		t.Fatalf("UpdatePasswordHash: %v", err)
	}
	got, _ = GetUser(ctx, db, u.ID)
	if got.PasswordHash != "new" {
		t.Fatalf("hash not updated: %q", got.PasswordHash)
	}
	if err := UpdatePasswordHash(ctx, db, "missing@example.com", "x"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestTokens_ValidExpiredAndRevoked(t *testing.T) {
	db := newRepoDB(t)
	ctx := context.Background()
	u := seedUser(t, db, "c@example.com")

	tok, err := CreateToken(ctx, db, u.ID, 30*time.Minute)
	if err != nil {
		t.Fatalf("CreateToken: %v", err)
	}
	now := time.Now().UTC()
	if got, err := GetValidToken(ctx, db, tok.Token, now); err != nil || got.UserID != u.ID {
		t.Fatalf("GetValidToken = (%+v, %v)", got, err)
	}
	if _, err := GetValidToken(ctx, db, tok.Token, now.Add(time.Hour)); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected expired token to be not found, got %v", err)
	}

	n, err := PurgeExpiredTokens(ctx, db, now.Add(time.Hour))
	if err != nil || n != 1 {
		t.Fatalf("PurgeExpiredTokens = (%d, %v)", n, err)
	}

	tok2, _ := CreateToken(ctx, db, u.ID, time.Minute)
	if err := DeleteUserTokens(ctx, db, u.ID); err != nil {
		t.Fatalf("DeleteUserTokens: %v", err)
	}
	if _, err := GetValidToken(ctx, db, tok2.Token, now); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected revoked token to be not found, got %v", err)
	}
}
