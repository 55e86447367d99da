package ledger

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	apperrors "github.com/kislikjeka/moneyguard/internal/shared/errors"
	"github.com/kislikjeka/moneyguard/internal/shared/txn"
	"github.com/kislikjeka/moneyguard/pkg/logger"
	"github.com/kislikjeka/moneyguard/pkg/money"
)

// Service is the double-entry ledger engine.
// Every posting runs inside a transaction (joining the caller's when there is one).
type Service struct {
	repo      Repository
	accounts  *Registry
	tx        txn.Manager
	logger    *logger.Logger
	validator *entryValidator
	committer *entryCommitter
	clock     func() time.Time
}

// NewService creates a new ledger service
func NewService(repo Repository, accounts *Registry, tx txn.Manager, log *logger.Logger) *Service {
	log = log.WithField("component", "ledger")
	return &Service{
		repo:      repo,
		accounts:  accounts,
		tx:        tx,
		logger:    log,
		validator: &entryValidator{accounts: accounts, logger: log},
		committer: &entryCommitter{repo: repo, logger: log},
		clock:     time.Now,
	}
}

// Accounts exposes the account registry
func (s *Service) Accounts() *Registry {
	return s.accounts
}

// post validates, persists and applies one entry.
//
// Steps:
// 1. Validate structure and balance (nothing is written for an invalid entry)
// 2. Resolve account codes through the registry
// 3. Insert the entry and its lines
// 4. Lock each affected account balance in id order and write the new balance
// 5. Re-read the persisted line totals; a mismatch aborts the enclosing transaction
func (s *Service) post(ctx context.Context, entry *Entry) (*Entry, error) {
	now := s.clock().UTC()
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	if entry.Date.IsZero() {
		entry.Date = now
	}
	entry.CreatedAt = now

	if err := s.validator.validate(ctx, entry); err != nil {
		return nil, err
	}

	err := s.tx.Do(ctx, txn.Default(), func(ctx context.Context) error {
		return s.committer.commit(ctx, entry)
	})
	if err != nil {
		return nil, err
	}

	s.logger.WithContext(ctx).Debug("entry posted",
		"entry_id", entry.ID,
		"event", entry.Event,
		"reference", entry.Reference.String(),
		"amount", entry.Amount().String(),
	)
	return entry, nil
}

// Reverse posts a new entry with every line of entryID on the opposite side.
// A reversal cannot itself be reversed and an entry is reversed at most once; both are
// checked before anything is written and backed by a unique index on reverses_entry_id.
func (s *Service) Reverse(ctx context.Context, entryID uuid.UUID, reason string) (*Entry, error) {
	var reversal *Entry
	err := s.tx.Do(ctx, txn.Default(), func(ctx context.Context) error {
		original, err := s.repo.GetEntry(ctx, entryID)
		if err != nil {
			if errors.Is(err, ErrEntryNotFound) {
				return apperrors.NotFound("ledger entry", err)
			}
			return fmt.Errorf("failed to load entry %s: %w", entryID, err)
		}

		if original.IsReversal {
			return apperrors.AlreadyReversed(fmt.Sprintf("entry %s is a reversal", entryID), ErrReversalOfReversal)
		}

		reversed, err := s.repo.HasReversal(ctx, entryID)
		if err != nil {
			return fmt.Errorf("failed to check reversal of %s: %w", entryID, err)
		}
		if reversed {
			return apperrors.AlreadyReversed(fmt.Sprintf("entry %s was already reversed", entryID), ErrAlreadyReversed)
		}

		lines := make([]Line, 0, len(original.Lines))
		for _, l := range original.Lines {
			lines = append(lines, Line{AccountCode: l.AccountCode, Side: l.Side.Opposite(), Amount: l.Amount})
		}

		id := original.ID
		reversal, err = s.post(ctx, &Entry{
			Event:           EventReversal,
			Reference:       EntryRef(original.ID),
			Description:     fmt.Sprintf("reversal of %s: %s", original.Event, reason),
			ReversesEntryID: &id,
			IsReversal:      true,
			Lines:           lines,
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	return reversal, nil
}

// GetEntry retrieves an entry with its lines
func (s *Service) GetEntry(ctx context.Context, id uuid.UUID) (*Entry, error) {
	e, err := s.repo.GetEntry(ctx, id)
	if err != nil {
		if errors.Is(err, ErrEntryNotFound) {
			return nil, apperrors.NotFound("ledger entry", err)
		}
		return nil, err
	}
	return e, nil
}

// EntriesFor lists the entries caused by one business record
func (s *Service) EntriesFor(ctx context.Context, ref Reference) ([]*Entry, error) {
	return s.repo.ListEntriesByReference(ctx, ref)
}

// entryValidator checks entries before anything is written
type entryValidator struct {
	accounts *Registry
	logger   *logger.Logger
}

func (v *entryValidator) validate(ctx context.Context, entry *Entry) error {
	if err := entry.Validate(); err != nil {
		switch {
		case errors.Is(err, ErrEntryNotBalanced):
			v.logger.Critical("refusing unbalanced entry",
				"event", entry.Event,
				"reference", entry.Reference.String(),
				"error", err,
			)
			return apperrors.LedgerIntegrity("entry does not balance", err)
		default:
			return apperrors.Validation(fmt.Sprintf("invalid %s entry", entry.Event), err)
		}
	}

	for i := range entry.Lines {
		account, err := v.accounts.Get(ctx, entry.Lines[i].AccountCode)
		if err != nil {
			return err
		}
		entry.Lines[i].AccountID = account.ID
		entry.Lines[i].EntryID = entry.ID
		if entry.Lines[i].ID == uuid.Nil {
			entry.Lines[i].ID = uuid.New()
		}
	}
	return nil
}

// entryCommitter writes an entry and moves account balances
type entryCommitter struct {
	repo   Repository
	logger *logger.Logger
}

func (c *entryCommitter) commit(ctx context.Context, entry *Entry) error {
	if err := c.repo.InsertEntry(ctx, entry); err != nil {
		if errors.Is(err, ErrAlreadyReversed) {
			return apperrors.AlreadyReversed("entry was already reversed", err)
		}
		return fmt.Errorf("failed to insert entry: %w", err)
	}

	if err := c.updateBalances(ctx, entry); err != nil {
		return fmt.Errorf("failed to update balances: %w", err)
	}

	debits, credits, err := c.repo.EntryTotals(ctx, entry.ID)
	if err != nil {
		return fmt.Errorf("failed to verify entry %s: %w", entry.ID, err)
	}
	if debits != credits || debits != entry.Amount() {
		c.logger.Critical("persisted entry does not balance",
			"entry_id", entry.ID,
			"event", entry.Event,
			"debits", debits.String(),
			"credits", credits.String(),
		)
		return apperrors.LedgerIntegrity(
			fmt.Sprintf("entry %s persisted unbalanced: debit=%s credit=%s", entry.ID, debits, credits),
			ErrEntryNotBalanced,
		)
	}
	return nil
}

func (c *entryCommitter) updateBalances(ctx context.Context, entry *Entry) error {
	changes := make(map[uuid.UUID]money.Amount)
	for _, l := range entry.Lines {
		changes[l.AccountID] += l.Signed()
	}

	// Lock in a stable order so concurrent postings cannot deadlock
	ids := make([]uuid.UUID, 0, len(changes))
	for id := range changes {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return bytes.Compare(ids[i][:], ids[j][:]) < 0 })

	for _, id := range ids {
		if changes[id] == 0 {
			continue
		}
		current, err := c.repo.GetBalanceForUpdate(ctx, id)
		if err != nil {
			return fmt.Errorf("failed to lock balance of %s: %w", id, err)
		}
		if err := c.repo.SetBalance(ctx, id, current+changes[id]); err != nil {
			return fmt.Errorf("failed to set balance of %s: %w", id, err)
		}
	}
	return nil
}
