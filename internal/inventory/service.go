package inventory

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/kislikjeka/moneyguard/internal/ledger"
	"github.com/kislikjeka/moneyguard/internal/platform/lock"
	apperrors "github.com/kislikjeka/moneyguard/internal/shared/errors"
	"github.com/kislikjeka/moneyguard/internal/shared/txn"
	"github.com/kislikjeka/moneyguard/pkg/logger"
	"github.com/kislikjeka/moneyguard/pkg/money"
)

// Service manages share inventory.
// Allocation decisions take the company lock inside the transaction, then batch row locks.
type Service struct {
	repo     Repository
	ledger   *ledger.Service
	tx       txn.Manager
	locker   lock.Locker
	lockOpts lock.Options
	logger   *logger.Logger
	clock    func() time.Time
}

// NewService creates a new inventory service
func NewService(repo Repository, led *ledger.Service, tx txn.Manager, locker lock.Locker, lockOpts lock.Options, log *logger.Logger) *Service {
	return &Service{
		repo:     repo,
		ledger:   led,
		tx:       tx,
		locker:   locker,
		lockOpts: lockOpts,
		logger:   log.WithField("component", "inventory"),
		clock:    time.Now,
	}
}

// LockKey is the named lock guarding a company's inventory
func LockKey(companyID uuid.UUID) string {
	return lock.Key("company", companyID)
}

// ReceiveBatch records newly acquired inventory and expenses its cost
func (s *Service) ReceiveBatch(ctx context.Context, companyID uuid.UUID, cost money.Amount) (*Batch, error) {
	if err := money.RequirePositive(cost); err != nil {
		return nil, apperrors.Validation("batch cost must be positive", err)
	}

	now := s.clock().UTC()
	b := &Batch{
		ID:             uuid.New(),
		CompanyID:      companyID,
		TotalReceived:  cost,
		ValueRemaining: cost,
		Status:         BatchActive,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	err := s.tx.Do(ctx, txn.Default(), func(ctx context.Context) error {
		entry, err := s.ledger.RecordInventoryPurchase(ctx, ledger.BatchRef(b.ID), cost)
		if err != nil {
			return err
		}
		b.EntryID = entry.ID
		if err := s.repo.CreateBatch(ctx, b); err != nil {
			return fmt.Errorf("failed to create batch: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.WithContext(ctx).Info("inventory batch received", "batch_id", b.ID, "company_id", companyID, "cost", cost.String())
	return b, nil
}

// ReverseBatch undoes a mistaken purchase. Only untouched batches can be reversed.
func (s *Service) ReverseBatch(ctx context.Context, batchID uuid.UUID) (*Batch, error) {
	probe, err := s.repo.GetBatch(ctx, batchID)
	if err != nil {
		return nil, s.mapNotFound(err)
	}

	var out *Batch
	err = s.tx.Do(ctx, txn.Default(), func(ctx context.Context) error {
		return lock.WithLock(ctx, s.locker, LockKey(probe.CompanyID), s.lockOpts, func(ctx context.Context) error {
			b, err := s.repo.GetBatchForUpdate(ctx, batchID)
			if err != nil {
				return s.mapNotFound(err)
			}
			if b.Status == BatchReversed {
				return apperrors.InvalidState(fmt.Sprintf("batch %s", batchID), ErrBatchReversed)
			}
			if b.Allocated != 0 {
				return apperrors.InvalidState(fmt.Sprintf("batch %s has %s allocated", batchID, b.Allocated), ErrBatchAllocated)
			}

			if _, err := s.ledger.RecordInventoryPurchaseReversal(ctx, ledger.BatchRef(b.ID), b.TotalReceived); err != nil {
				return err
			}

			b.Status = BatchReversed
			b.UpdatedAt = s.clock().UTC()
			if err := s.repo.UpdateBatch(ctx, b); err != nil {
				return fmt.Errorf("failed to update batch: %w", err)
			}
			out = b
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Allocate assigns amount of a company's inventory to a payment, oldest batches first
func (s *Service) Allocate(ctx context.Context, companyID, paymentID uuid.UUID, amount money.Amount) ([]*Allocation, error) {
	if err := money.RequirePositive(amount); err != nil {
		return nil, apperrors.Validation("allocation must be positive", err)
	}

	var out []*Allocation
	err := s.tx.Do(ctx, txn.Default(), func(ctx context.Context) error {
		return lock.WithLock(ctx, s.locker, LockKey(companyID), s.lockOpts, func(ctx context.Context) error {
			batches, err := s.repo.ListOpenBatchesForUpdate(ctx, companyID)
			if err != nil {
				return fmt.Errorf("failed to lock batches: %w", err)
			}

			var available money.Amount
			for _, b := range batches {
				available += b.ValueRemaining
			}
			if available < amount {
				return apperrors.InsufficientBalance(
					fmt.Sprintf("company %s has %s of inventory, %s requested", companyID, available, amount),
					ErrInsufficientInventory)
			}

			now := s.clock().UTC()
			remaining := amount
			for _, b := range batches {
				if remaining == 0 {
					break
				}
				take := money.Min(b.ValueRemaining, remaining)
				if take == 0 {
					continue
				}

				b.ValueRemaining -= take
				b.Allocated += take
				b.UpdatedAt = now
				if err := s.repo.UpdateBatch(ctx, b); err != nil {
					return fmt.Errorf("failed to update batch %s: %w", b.ID, err)
				}

				a := &Allocation{
					ID:        uuid.New(),
					BatchID:   b.ID,
					CompanyID: companyID,
					PaymentID: paymentID,
					Amount:    take,
					CreatedAt: now,
				}
				if err := s.repo.InsertAllocation(ctx, a); err != nil {
					return fmt.Errorf("failed to insert allocation: %w", err)
				}
				out = append(out, a)
				remaining -= take
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ReverseAllocations returns every active allocation of a payment to its batch
func (s *Service) ReverseAllocations(ctx context.Context, paymentID uuid.UUID) (money.Amount, error) {
	var total money.Amount
	err := s.tx.Do(ctx, txn.Default(), func(ctx context.Context) error {
		allocations, err := s.repo.ListActiveAllocations(ctx, paymentID)
		if err != nil {
			return fmt.Errorf("failed to list allocations: %w", err)
		}
		if len(allocations) == 0 {
			return nil
		}

		return lock.WithLock(ctx, s.locker, LockKey(allocations[0].CompanyID), s.lockOpts, func(ctx context.Context) error {
			now := s.clock().UTC()
			for _, a := range allocations {
				b, err := s.repo.GetBatchForUpdate(ctx, a.BatchID)
				if err != nil {
					return s.mapNotFound(err)
				}
				b.ValueRemaining += a.Amount
				b.Allocated -= a.Amount
				b.UpdatedAt = now
				if err := s.repo.UpdateBatch(ctx, b); err != nil {
					return fmt.Errorf("failed to update batch %s: %w", b.ID, err)
				}
				if err := s.repo.MarkAllocationReversed(ctx, a.ID, now); err != nil {
					return fmt.Errorf("failed to reverse allocation %s: %w", a.ID, err)
				}
				total += a.Amount
			}
			return nil
		})
	})
	if err != nil {
		return 0, err
	}
	return total, nil
}

// Batches lists every batch
func (s *Service) Batches(ctx context.Context) ([]*Batch, error) {
	return s.repo.ListBatches(ctx)
}

func (s *Service) mapNotFound(err error) error {
	if errors.Is(err, ErrBatchNotFound) {
		return apperrors.NotFound("inventory batch", err)
	}
	return err
}
