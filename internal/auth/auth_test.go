package auth

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/xtrntr/bazaar/internal/storage"
	"github.com/xtrntr/bazaar/internal/storage/badgerstore"
)

var testSecret = []byte("test-secret")

func newTestService(t *testing.T) *AuthService {
	t.Helper()
	store, err := badgerstore.OpenInMemory()
	if err != nil {
		t.Fatalf("Failed to open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return NewAuthService(store, testSecret, time.Hour)
}

func TestAuthService_Register(t *testing.T) {
	tests := []struct {
		name        string
		username    string
		password    string
		expectError bool
	}{
		{
			name:        "Success",
			username:    "alice",
			password:    "password123",
			expectError: false,
		},
		{
			name:        "EmptyUsername",
			username:    "",
			password:    "password123",
			expectError: true,
		},
		{
			name:        "EmptyPassword",
			username:    "bob",
			password:    "",
			expectError: true,
		},
		{
			name:        "DuplicateUsername",
			username:    "alice",
			password:    "newpass",
			expectError: true,
		},
		{
			name:        "LongUsername",
			username:    strings.Repeat("a", 1000),
			password:    "password123",
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestService(t)
			ctx := context.Background()

			if tt.name == "DuplicateUsername" {
				if _, err := s.Register(ctx, "alice", "password123"); err != nil {
					t.Fatalf("Failed to create user for duplicate test: %v", err)
				}
			}

			cred, err := s.Register(ctx, tt.username, tt.password)
			if tt.expectError {
				if err == nil {
					t.Errorf("expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Errorf("unexpected error: %v", err)
				return
			}
			if cred.Username != tt.username {
				t.Errorf("expected username %q, got %q", tt.username, cred.Username)
			}
			if cred.Account.IsZero() {
				t.Errorf("expected an account id")
			}

			err = s.store.View(ctx, func(tx storage.Tx) error {
				stored, err := tx.GetCredential(tt.username)
				if err != nil {
					return err
				}
				return bcrypt.CompareHashAndPassword([]byte(stored.PasswordHash), []byte(tt.password))
			})
			if err != nil {
				t.Errorf("stored credential mismatch: %v", err)
			}
		})
	}
}

func TestAuthService_RegisterDuplicate(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()
	if _, err := s.Register(ctx, "alice", "password123"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := s.Register(ctx, "alice", "other"); !errors.Is(err, ErrUsernameTaken) {
		t.Errorf("expected ErrUsernameTaken, got %v", err)
	}
}

func TestAuthService_Login(t *testing.T) {
	s := newTestService(t)
	cred, err := s.Register(context.Background(), "alice", "password123")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	tests := []struct {
		name        string
		username    string
		password    string
		expectError bool
	}{
		{
			name:        "Success",
			username:    "alice",
			password:    "password123",
			expectError: false,
		},
		{
			name:        "WrongPassword",
			username:    "alice",
			password:    "wrongpass",
			expectError: true,
		},
		{
			name:        "NonExistentUser",
			username:    "bob",
			password:    "password123",
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			token, err := s.Login(context.Background(), tt.username, tt.password)
			if tt.expectError {
				if !errors.Is(err, ErrInvalidCredentials) {
					t.Errorf("expected ErrInvalidCredentials, got %v", err)
				}
				return
			}
			if err != nil {
				t.Errorf("unexpected error: %v", err)
				return
			}
			parsed, err := jwt.ParseWithClaims(token, &jwt.RegisteredClaims{}, func(token *jwt.Token) (interface{}, error) {
				return testSecret, nil
			})
			if err != nil {
				t.Errorf("invalid token: %v", err)
				return
			}
			sub, _ := parsed.Claims.GetSubject()
			if sub != cred.Account.String() {
				t.Errorf("expected subject %s, got %s", cred.Account, sub)
			}
		})
	}
}

func TestAuthService_AccountFromToken(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()
	cred, err := s.Register(ctx, "alice", "password123")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	token, err := s.Login(ctx, "alice", "password123")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	expired := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   cred.Account.String(),
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour)),
	})
	expiredTokenStr, _ := expired.SignedString(testSecret)
	invalidToken, _ := expired.SignedString([]byte("wrong-key"))
	badSubject, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject: "alice",
	}).SignedString(testSecret)

	tests := []struct {
		name        string
		token       string
		expectError bool
	}{
		{name: "Success", token: token},
		{name: "ExpiredToken", token: expiredTokenStr, expectError: true},
		{name: "InvalidSignature", token: invalidToken, expectError: true},
		{name: "BadSubject", token: badSubject, expectError: true},
		{name: "EmptyToken", token: "", expectError: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			account, err := s.AccountFromToken(tt.token)
			if tt.expectError {
				if !errors.Is(err, ErrInvalidToken) {
					t.Errorf("expected ErrInvalidToken, got %v", err)
				}
				return
			}
			if err != nil {
				t.Errorf("unexpected error: %v", err)
				return
			}
			if account != cred.Account {
				t.Errorf("expected account %s, got %s", cred.Account, account)
			}
		})
	}
}

func TestAuthService_TokenExpires(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()
	if _, err := s.Register(ctx, "alice", "password123"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	token, err := s.Login(ctx, "alice", "password123")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	s.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	if _, err := s.AccountFromToken(token); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("expected expired token to be rejected, got %v", err)
	}
}
