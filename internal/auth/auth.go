package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/xtrntr/bazaar/internal/models"
	"github.com/xtrntr/bazaar/internal/storage"
)

var (
	// ErrInvalidCredentials is returned for an unknown username or a wrong password.
	ErrInvalidCredentials = errors.New("invalid username or password")
	// ErrUsernameTaken is returned when registering an existing username.
	ErrUsernameTaken = errors.New("username already taken")
	// ErrInvalidInput is returned for a username or password that fails validation.
	ErrInvalidInput = errors.New("invalid input")
	// ErrInvalidToken is returned for a token that fails verification.
	ErrInvalidToken = errors.New("invalid token")
)

// DefaultTokenTTL is how long an issued token stays valid.
const DefaultTokenTTL = 24 * time.Hour

// AuthService handles caller authentication
type AuthService struct {
	store  storage.Store
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewAuthService creates a new auth service signing tokens with secret
func NewAuthService(store storage.Store, secret []byte, ttl time.Duration) *AuthService {
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	return &AuthService{store: store, secret: secret, ttl: ttl, now: time.Now}
}

// Register creates a login bound to a fresh account id
func (s *AuthService) Register(ctx context.Context, username, password string) (*models.Credential, error) {
	// Validate input
	if username == "" {
		return nil, fmt.Errorf("%w: username cannot be empty", ErrInvalidInput)
	}
	if password == "" {
		return nil, fmt.Errorf("%w: password cannot be empty", ErrInvalidInput)
	}
	if len(username) > 50 {
		return nil, fmt.Errorf("%w: username too long (max 50 characters)", ErrInvalidInput)
	}
	if len(password) > 72 {
		return nil, fmt.Errorf("%w: password too long (max 72 characters)", ErrInvalidInput)
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}
	account, err := models.NewAccountID()
	if err != nil {
		return nil, fmt.Errorf("failed to create account id: %w", err)
	}

	cred := &models.Credential{
		Username:     username,
		PasswordHash: string(hashedPassword),
		Account:      account,
		CreatedAt:    s.now().UTC(),
	}
	err = s.store.Atomic(ctx, func(tx storage.Tx) error {
		return tx.InsertCredential(cred)
	})
	if err != nil {
		if errors.Is(err, storage.ErrDuplicateKey) {
			return nil, ErrUsernameTaken
		}
		return nil, fmt.Errorf("failed to create credential: %w", err)
	}
	return cred, nil
}

// Login verifies credentials and generates a JWT whose subject is the account id
func (s *AuthService) Login(ctx context.Context, username, password string) (string, error) {
	var cred *models.Credential
	err := s.store.View(ctx, func(tx storage.Tx) error {
		var err error
		cred, err = tx.GetCredential(username)
		return err
	})
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return "", ErrInvalidCredentials
		}
		return "", fmt.Errorf("failed to get credential: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(cred.PasswordHash), []byte(password)); err != nil {
		return "", ErrInvalidCredentials
	}

	now := s.now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   cred.Account.String(),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
	})
	tokenString, err := token.SignedString(s.secret)
	if err != nil {
		return "", err
	}
	return tokenString, nil
}

// AccountFromToken extracts the authenticated account from a JWT
func (s *AuthService) AccountFromToken(tokenString string) (models.AccountID, error) {
	var claims jwt.RegisteredClaims
	token, err := jwt.ParseWithClaims(tokenString, &claims, func(token *jwt.Token) (interface{}, error) {
		return s.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(s.now))
	if err != nil || !token.Valid {
		return models.AccountID{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	account, err := models.ParseAccountID(claims.Subject)
	if err != nil {
		return models.AccountID{}, fmt.Errorf("%w: bad subject", ErrInvalidToken)
	}
	return account, nil
}
