package identity

import (
	"context"
	"strings"
	"testing"
)

func TestValidateCredentials(t *testing.T) {
	cases := []struct {
		name     string
		username string
		password string
		wantErr  bool
	}{
		{"ok", "alice", "hunter2", false},
		{"ok max username", strings.Repeat("a", 50), "pw", false},
		{"empty username", "", "pw", true},
		{"whitespace username", "   ", "pw", true},
		{"too long username", strings.Repeat("a", 51), "pw", true},
		{"non alphanumeric", "al ice!", "pw", true},
		{"empty password", "alice", "", true},
		{"password over bcrypt limit", "alice", strings.Repeat("p", 73), true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := ValidateCredentials(tc.username, tc.password)
			if tc.wantErr && !IsInvalidInput(err) {
				t.Fatalf("expected invalid input, got %v", err)
			}
			if !tc.wantErr && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}

func TestNormalizeUsername(t *testing.T) {
	if got := NormalizeUsername("  Alice "); got != "alice" {
		t.Fatalf("NormalizeUsername: %q", got)
	}
}

func TestMemoryStore_Lifecycle(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	u, err := s.Create(ctx, "Alice", "hunter2")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if u.ID == "" || u.Username != "Alice" {
		t.Fatalf("unexpected user: %+v", u)
	}

	if _, err := s.Create(ctx, "alice", "other"); !IsConflict(err) {
		t.Fatalf("expected conflict, got %v", err)
	}

	got, err := s.Verify(ctx, "ALICE", "hunter2")
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if got.ID != u.ID {
		t.Fatalf("verify returned wrong user")
	}

	if _, err := s.Verify(ctx, "alice", "wrong"); !IsBadPassword(err) {
		t.Fatalf("expected bad password, got %v", err)
	}
	if _, err := s.Verify(ctx, "nobody", "pw"); !IsNoSuchUser(err) {
		t.Fatalf("expected no such user, got %v", err)
	}

	if _, err := s.Lookup(ctx, u.ID); err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if _, err := s.Lookup(ctx, "missing"); !IsNotFound(err) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestVerifyPassword(t *testing.T) {
	hash, err := HashPassword("secret")
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	if err := VerifyPassword("secret", hash); err != nil {
		t.Fatalf("VerifyPassword match: %v", err)
	}
	if err := VerifyPassword("wrong", hash); !IsBadPassword(err) {
		t.Fatalf("expected bad password, got %v", err)
	}
}
