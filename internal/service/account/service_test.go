package account

import (
	"context"
	"testing"

	"careerchat/internal/storage/storagetest"

	"golang.org/x/crypto/bcrypt"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	svc := NewService(storagetest.NewSQLite(t))
	svc.cost = bcrypt.MinCost
	return svc
}

func TestRegisterAndLogin(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	user, err := svc.Register(ctx, " Ada@Example.com ", "secret1", "")
	if err != nil {
		t.Fatalf("Register error: %v", err)
	}
	if user.Email != "ada@example.com" || user.Name != "ada" {
		t.Fatalf("unexpected user: %+v", user)
	}
	if user.PasswordHash == "secret1" {
		t.Fatalf("password stored in clear")
	}

	logged, err := svc.Login(ctx, "ADA@example.com", "secret1")
	if err != nil {
		t.Fatalf("Login error: %v", err)
	}
	if logged.ID != user.ID {
		t.Fatalf("expected user %d, got %d", user.ID, logged.ID)
	}

	got, err := svc.Get(ctx, user.ID)
	if err != nil || got.Email != user.Email {
		t.Fatalf("Get failed: user=%+v err=%v", got, err)
	}
}

func TestRegisterValidation(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	cases := []struct {
		email, password string
	}{
		{"", "secret1"},
		{"not-an-email", "secret1"},
		{"a@b.co", "short"},
	}
	for _, tc := range cases {
		if _, err := svc.Register(ctx, tc.email, tc.password, ""); err == nil {
			t.Fatalf("expected error for %q/%q", tc.email, tc.password)
		}
	}

	if _, err := svc.Register(ctx, "dup@example.com", "secret1", "Dup"); err != nil {
		t.Fatalf("Register error: %v", err)
	}
	if _, err := svc.Register(ctx, "DUP@example.com", "secret2", ""); err != ErrEmailTaken {
		t.Fatalf("expected ErrEmailTaken, got %v", err)
	}
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	if _, err := svc.Register(ctx, "bob@example.com", "secret1", "Bob"); err != nil {
		t.Fatalf("Register error: %v", err)
	}
	if _, err := svc.Login(ctx, "bob@example.com", "wrong-pass"); err != ErrInvalidCredentials {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
	if _, err := svc.Login(ctx, "nobody@example.com", "secret1"); err != ErrInvalidCredentials {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
	if _, err := svc.Get(ctx, 9999); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
