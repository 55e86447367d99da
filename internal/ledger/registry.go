package ledger

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	apperrors "github.com/kislikjeka/moneyguard/internal/shared/errors"
)

// Registry resolves account codes to accounts.
//
// The chart is closed: Bootstrap creates every account once and nothing creates accounts at
// runtime. Lookups are cached per process after the first load. Only identity is cached,
// balances are always read from storage.
type Registry struct {
	repo     Repository
	mu       sync.RWMutex
	accounts map[Code]*Account
}

// NewRegistry creates a new account registry
func NewRegistry(repo Repository) *Registry {
	return &Registry{
		repo:     repo,
		accounts: make(map[Code]*Account),
	}
}

// Bootstrap inserts any missing chart accounts and loads the cache
func (r *Registry) Bootstrap(ctx context.Context) error {
	defs := Chart()
	accounts := make([]*Account, 0, len(defs))
	now := time.Now().UTC()
	for _, d := range defs {
		accounts = append(accounts, &Account{
			ID:        uuid.New(),
			Code:      d.Code,
			Name:      d.Name,
			Type:      d.Type,
			CreatedAt: now,
		})
	}

	if err := r.repo.EnsureAccounts(ctx, accounts); err != nil {
		return fmt.Errorf("failed to bootstrap chart of accounts: %w", err)
	}
	return r.load(ctx)
}

func (r *Registry) load(ctx context.Context) error {
	accounts, err := r.repo.ListAccounts(ctx)
	if err != nil {
		return fmt.Errorf("failed to load accounts: %w", err)
	}

	known := make(map[Code]Definition, len(chart))
	for _, d := range chart {
		known[d.Code] = d
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for _, a := range accounts {
		d, ok := known[a.Code]
		if !ok {
			return apperrors.Configuration(fmt.Sprintf("account %s is not part of the chart", a.Code), ErrUnknownAccount)
		}
		if d.Type != a.Type {
			return apperrors.Configuration(fmt.Sprintf("account %s is stored as %s, chart says %s", a.Code, a.Type, d.Type), ErrInvalidAccountType)
		}
		r.accounts[a.Code] = a
	}
	return nil
}

// Get returns the account for code. An unknown code is a configuration error.
func (r *Registry) Get(ctx context.Context, code Code) (*Account, error) {
	r.mu.RLock()
	a, ok := r.accounts[code]
	r.mu.RUnlock()
	if ok {
		return a, nil
	}

	if err := r.load(ctx); err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	if a, ok := r.accounts[code]; ok {
		return a, nil
	}
	return nil, apperrors.Configuration(fmt.Sprintf("unknown account code %q", code), ErrUnknownAccount)
}
