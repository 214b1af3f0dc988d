package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

const defaultMutationAttempts = 3

// AccountMutation adjusts a freshly loaded account in place. Returning an
// error aborts the mutation without writing.
type AccountMutation func(account *Account) error

// MutateAccount is the single read-modify-write path for account rows:
// load, apply the mutation, write conditioned on the loaded version, and
// re-read on conflict up to the attempt budget. Conflicts are never
// resolved by overwriting.
func MutateAccount(ctx context.Context, store AccountStore, id string, attempts int, mutate AccountMutation) (*Account, error) {
	if store == nil {
		return nil, fmt.Errorf("core: account store is not configured")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, fmt.Errorf("core: account id is required")
	}
	if mutate == nil {
		return nil, fmt.Errorf("core: account mutation is required")
	}
	if attempts < 1 {
		attempts = defaultMutationAttempts
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		account, err := store.GetByID(ctx, id)
		if err != nil {
			return nil, err
		}
		if account == nil {
			return nil, ErrAccountNotFound
		}

		expected := account.Version
		working := account.Clone()
		if err := mutate(working); err != nil {
			return nil, err
		}

		updated, err := store.UpdateWithVersion(ctx, working, expected)
		if err == nil {
			return updated, nil
		}
		if !errors.Is(err, ErrVersionConflict) {
			return nil, err
		}
		lastErr = err
	}
	return nil, fmt.Errorf("core: account %s mutation exhausted %d attempts: %w", id, attempts, lastErr)
}
