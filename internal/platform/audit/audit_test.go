package audit

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/kislikjeka/moneyguard/pkg/logger"
)

type MockStore struct {
	mock.Mock
}

func (m *MockStore) Append(ctx context.Context, e *Event) error {
	args := m.Called(ctx, e)
	return args.Error(0)
}

func (m *MockStore) ListByTarget(ctx context.Context, targetType, targetID string) ([]*Event, error) {
	args := m.Called(ctx, targetType, targetID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*Event), args.Error(1)
}

func TestRecorder_Record_UsesActorFromContext(t *testing.T) {
	store := new(MockStore)
	store.On("Append", mock.Anything, mock.MatchedBy(func(e *Event) bool {
		return e.Actor == "ops@example.com" &&
			e.Action == ActionAutoFixAttempt &&
			e.TargetType == "wallet" &&
			string(e.Details) == `{"delta":"50.00"}`
	})).Return(nil)

	rec := NewRecorder(store, logger.Discard())
	ctx := logger.WithActor(context.Background(), "ops@example.com")

	e, err := rec.Record(ctx, ActionAutoFixAttempt, "wallet", "w-1", map[string]string{"delta": "50.00"})
	require.NoError(t, err)
	assert.NotEmpty(t, e.ID)
	store.AssertExpectations(t)
}

func TestRecorder_Record_DefaultsToSystemActor(t *testing.T) {
	store := new(MockStore)
	store.On("Append", mock.Anything, mock.MatchedBy(func(e *Event) bool {
		return e.Actor == "system" && e.Details == nil
	})).Return(nil)

	_, err := NewRecorder(store, logger.Discard()).Record(context.Background(), ActionRefund, "payment", "p-1", nil)
	require.NoError(t, err)
	store.AssertExpectations(t)
}

func TestRecorder_Record_StoreFailure(t *testing.T) {
	store := new(MockStore)
	store.On("Append", mock.Anything, mock.Anything).Return(errors.New("disk full"))

	_, err := NewRecorder(store, logger.Discard()).Record(context.Background(), ActionRefund, "payment", "p-1", nil)
	assert.Error(t, err)
}
