package postgres

import (
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"

	apperrors "github.com/kislikjeka/moneyguard/internal/shared/errors"
	"github.com/kislikjeka/moneyguard/internal/shared/txn"
)

func TestTxOptions(t *testing.T) {
	tests := []struct {
		name string
		opts txn.Options
		want pgx.TxOptions
	}{
		{"default", txn.Default(), pgx.TxOptions{IsoLevel: pgx.ReadCommitted, AccessMode: pgx.ReadWrite}},
		{"snapshot", txn.Options{Isolation: txn.RepeatableRead, ReadOnly: true}, pgx.TxOptions{IsoLevel: pgx.RepeatableRead, AccessMode: pgx.ReadOnly}},
		{"serializable", txn.Options{Isolation: txn.Serializable}, pgx.TxOptions{IsoLevel: pgx.Serializable, AccessMode: pgx.ReadWrite}},
		{"savepoint does not change the outer options", txn.Options{Savepoint: true}, pgx.TxOptions{IsoLevel: pgx.ReadCommitted, AccessMode: pgx.ReadWrite}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, txOptions(tt.opts))
		})
	}
}

func TestMapTxError(t *testing.T) {
	for _, code := range []string{codeSerializationFailure, codeDeadlockDetected, codeLockNotAvailable} {
		err := mapTxError(&pgconn.PgError{Code: code})
		assert.True(t, apperrors.IsRetryable(err), code)
	}

	other := &pgconn.PgError{Code: "42P01"}
	assert.Same(t, other, mapTxError(other))

	business := apperrors.Validation("bad amount", errors.New("negative"))
	assert.Equal(t, business, mapTxError(business))
}

func TestIsUniqueViolation(t *testing.T) {
	err := &pgconn.PgError{Code: codeUniqueViolation, ConstraintName: "ledger_entries_reverses_entry_id_key"}
	assert.True(t, isUniqueViolation(err, ""))
	assert.True(t, isUniqueViolation(err, "ledger_entries_reverses_entry_id_key"))
	assert.False(t, isUniqueViolation(err, "payments_idempotency_key_key"))
	assert.False(t, isUniqueViolation(errors.New("boom"), ""))
}
