package approval

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "approval-secret-approval-secret-123"

func TestVerify_HappyPathIsSingleUse(t *testing.T) {
	svc := NewService(testSecret, NewMemoryNonces(), 10*time.Minute)
	walletID := uuid.New()
	ctx := context.Background()

	token, err := svc.Issue(walletID, ActionAutoFix, "cfo@example.com")
	require.NoError(t, err)

	claims, err := svc.Verify(ctx, token, walletID, ActionAutoFix)
	require.NoError(t, err)
	assert.Equal(t, "cfo@example.com", claims.Subject)

	_, err = svc.Verify(ctx, token, walletID, ActionAutoFix)
	assert.ErrorIs(t, err, ErrTokenReused)
}

func TestVerify_WalletScoped(t *testing.T) {
	svc := NewService(testSecret, NewMemoryNonces(), time.Minute)
	token, err := svc.Issue(uuid.New(), ActionAutoFix, "ops")
	require.NoError(t, err)

	_, err = svc.Verify(context.Background(), token, uuid.New(), ActionAutoFix)
	assert.ErrorIs(t, err, ErrWalletMismatch)
}

func TestVerify_ActionScoped(t *testing.T) {
	svc := NewService(testSecret, NewMemoryNonces(), time.Minute)
	walletID := uuid.New()
	token, err := svc.Issue(walletID, "something.else", "ops")
	require.NoError(t, err)

	_, err = svc.Verify(context.Background(), token, walletID, ActionAutoFix)
	assert.ErrorIs(t, err, ErrActionMismatch)
}

func TestVerify_Expired(t *testing.T) {
	svc := NewService(testSecret, NewMemoryNonces(), time.Minute)
	now := time.Now()
	svc.clock = func() time.Time { return now }
	walletID := uuid.New()

	token, err := svc.Issue(walletID, ActionAutoFix, "ops")
	require.NoError(t, err)

	svc.clock = func() time.Time { return now.Add(2 * time.Minute) }
	_, err = svc.Verify(context.Background(), token, walletID, ActionAutoFix)
	assert.ErrorIs(t, err, ErrExpiredToken)
}

func TestVerify_WrongSecret(t *testing.T) {
	issuerSvc := NewService("another-secret-another-secret-9999", NewMemoryNonces(), time.Minute)
	verifier := NewService(testSecret, NewMemoryNonces(), time.Minute)
	walletID := uuid.New()

	token, err := issuerSvc.Issue(walletID, ActionAutoFix, "ops")
	require.NoError(t, err)

	_, err = verifier.Verify(context.Background(), token, walletID, ActionAutoFix)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerify_RejectsLongLivedTokens(t *testing.T) {
	svc := NewService(testSecret, NewMemoryNonces(), time.Minute)
	walletID := uuid.New()
	now := time.Now()

	claims := &Claims{
		WalletID: walletID,
		Action:   ActionAutoFix,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(48 * time.Hour)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	require.NoError(t, err)

	_, err = svc.Verify(context.Background(), token, walletID, ActionAutoFix)
	assert.ErrorIs(t, err, ErrTokenTooLong)
}

func TestVerify_NoneAlgorithmRejected(t *testing.T) {
	svc := NewService(testSecret, NewMemoryNonces(), time.Minute)
	walletID := uuid.New()
	claims := &Claims{WalletID: walletID, Action: ActionAutoFix, RegisteredClaims: jwt.RegisteredClaims{
		ID: uuid.NewString(), Issuer: issuer,
		IssuedAt:  jwt.NewNumericDate(time.Now()),
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
	}}
	token, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, err = svc.Verify(context.Background(), token, walletID, ActionAutoFix)
	assert.ErrorIs(t, err, ErrInvalidToken)
}
