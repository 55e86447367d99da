package approval

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// ActionAutoFix is the only action approval tokens are issued for today
const ActionAutoFix = "reconciliation.autofix"

const issuer = "moneyguard-approvals"

var (
	ErrInvalidToken   = errors.New("approval token is invalid")
	ErrExpiredToken   = errors.New("approval token has expired")
	ErrWalletMismatch = errors.New("approval token names a different wallet")
	ErrActionMismatch = errors.New("approval token was issued for a different action")
	ErrTokenReused    = errors.New("approval token has already been used")
	ErrTokenTooLong   = errors.New("approval token lifetime exceeds the allowed window")
)

// Claims represents the signed approval
type Claims struct {
	WalletID uuid.UUID `json:"wallet_id"`
	Action   string    `json:"action"`
	jwt.RegisteredClaims
}

// NonceStore records consumed token ids. Consume returns true only for the first use.
type NonceStore interface {
	Consume(ctx context.Context, tokenID string, ttl time.Duration) (bool, error)
}

// Service issues and verifies single-use, wallet-scoped, time-boxed approval tokens
type Service struct {
	secret []byte
	nonces NonceStore
	ttl    time.Duration
	maxTTL time.Duration
	clock  func() time.Time
}

// NewService creates an approval service. ttl is the lifetime of issued tokens.
func NewService(secret string, nonces NonceStore, ttl time.Duration) *Service {
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	return &Service{
		secret: []byte(secret),
		nonces: nonces,
		ttl:    ttl,
		maxTTL: time.Hour,
		clock:  time.Now,
	}
}

// Issue signs an approval for one action on one wallet
func (s *Service) Issue(walletID uuid.UUID, action, approver string) (string, error) {
	now := s.clock()
	claims := &Claims{
		WalletID: walletID,
		Action:   action,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   approver,
			Issuer:    issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign approval token: %w", err)
	}
	return signed, nil
}

// Verify checks signature, expiry, wallet and action, then burns the token id.
// A token is accepted at most once even when verification races.
func (s *Service) Verify(ctx context.Context, tokenString string, walletID uuid.UUID, action string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		// Validate the signing method (prevent algorithm confusion attacks)
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{"HS256"}),
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithTimeFunc(s.clock),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.ID == "" || claims.IssuedAt == nil {
		return nil, ErrInvalidToken
	}

	if claims.ExpiresAt.Sub(claims.IssuedAt.Time) > s.maxTTL {
		return nil, ErrTokenTooLong
	}
	if claims.WalletID != walletID {
		return nil, ErrWalletMismatch
	}
	if claims.Action != action {
		return nil, ErrActionMismatch
	}

	remaining := claims.ExpiresAt.Sub(s.clock())
	first, err := s.nonces.Consume(ctx, claims.ID, remaining+time.Minute)
	if err != nil {
		return nil, fmt.Errorf("failed to record approval token use: %w", err)
	}
	if !first {
		return nil, ErrTokenReused
	}

	return claims, nil
}

// MemoryNonces is a NonceStore for single-process use and tests
type MemoryNonces struct {
	mu   sync.Mutex
	used map[string]time.Time
}

// NewMemoryNonces creates an in-memory nonce store
func NewMemoryNonces() *MemoryNonces {
	return &MemoryNonces{used: make(map[string]time.Time)}
}

// Consume implements NonceStore
func (m *MemoryNonces) Consume(_ context.Context, tokenID string, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	for id, exp := range m.used {
		if now.After(exp) {
			delete(m.used, id)
		}
	}
	if _, ok := m.used[tokenID]; ok {
		return false, nil
	}
	m.used[tokenID] = now.Add(ttl)
	return true, nil
}
