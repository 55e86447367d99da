package idempotency

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kislikjeka/moneyguard/pkg/money"
)

func TestIntentKey_Deterministic(t *testing.T) {
	a := NewIntent("chargeback", money.FromMajor(6000), "payment:42", "wallet:7")
	b := NewIntent("chargeback", money.FromMajor(6000), "payment:42", "wallet:7")

	assert.Equal(t, a.Key(), b.Key())
	assert.Len(t, a.Key(), 64)
}

func TestIntentKey_NormalisesActionAndTargets(t *testing.T) {
	a := NewIntent(" Chargeback ", 100, " payment:42")
	b := NewIntent("chargeback", 100, "payment:42")
	assert.Equal(t, a.Key(), b.Key())
}

func TestIntentKey_OneMinorUnitChangesKey(t *testing.T) {
	a := NewIntent("refund", 600000, "payment:42")
	b := NewIntent("refund", 600001, "payment:42")
	assert.NotEqual(t, a.Key(), b.Key())
}

func TestIntentKey_TargetsAndActionMatter(t *testing.T) {
	base := NewIntent("refund", 100, "payment:1")
	assert.NotEqual(t, base.Key(), NewIntent("refund", 100, "payment:2").Key())
	assert.NotEqual(t, base.Key(), NewIntent("chargeback", 100, "payment:1").Key())
	// order carries meaning (from/to)
	assert.NotEqual(t,
		NewIntent("transfer", 100, "wallet:1", "wallet:2").Key(),
		NewIntent("transfer", 100, "wallet:2", "wallet:1").Key())
}

func TestResolveKey(t *testing.T) {
	intent := NewIntent("deposit", 500, "wallet:9")

	key, err := ResolveKey("", intent)
	require.NoError(t, err)
	assert.Equal(t, intent.Key(), key)

	client := uuid.NewString()
	key, err = ResolveKey(client, intent)
	require.NoError(t, err)
	assert.Equal(t, client, key)

	key, err = ResolveKey(intent.Key(), NewIntent("other", 1))
	require.NoError(t, err)
	assert.Equal(t, intent.Key(), key)

	_, err = ResolveKey("not a key", intent)
	assert.ErrorIs(t, err, ErrMalformedKey)

	_, err = ResolveKey("{"+client+"}", intent)
	assert.ErrorIs(t, err, ErrMalformedKey)
}
