// Package token holds the access token store and the code minting service.
package token

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"math/rand/v2"
	"time"

	"github.com/jun/vidshare/internal/apperr"
	"github.com/jun/vidshare/internal/kv"
	"github.com/jun/vidshare/internal/model"
)

// DefaultConsumeAttempts bounds the read-check-write loop in Consume.
const DefaultConsumeAttempts = 5

// Store persists AccessTokens keyed by code.
type Store struct {
	table kv.Table
}

// NewStore creates a Store over table.
func NewStore(table kv.Table) *Store {
	return &Store{table: table}
}

// Get returns the token for code. A missing code is an apperr NotFound.
func (s *Store) Get(ctx context.Context, code string) (*model.AccessToken, error) {
	t, err := kv.Load[model.AccessToken](ctx, s.table, code)
	if err != nil {
		if errors.Is(err, kv.ErrNotFound) {
			return nil, apperr.NotFound("Invalid access code")
		}
		return nil, apperr.Upstream("failed to read access code", err)
	}
	return &t, nil
}

// Create stores a new token. It fails with an error wrapping
// kv.ErrAlreadyExists if the code is taken.
func (s *Store) Create(ctx context.Context, t model.AccessToken) (*model.AccessToken, error) {
	item, err := kv.Encode(t)
	if err != nil {
		return nil, err
	}
	version, err := s.table.Create(ctx, t.Code, item)
	if err != nil {
		return nil, fmt.Errorf("failed to create access code %s: %w", t.Code, err)
	}
	t.Version = version
	return &t, nil
}

// List yields every stored token.
func (s *Store) List(ctx context.Context) iter.Seq2[model.AccessToken, error] {
	return kv.All[model.AccessToken](ctx, s.table)
}

// Consume spends one download on code. Each attempt reads the current record,
// runs check against it, increments CurrentDownloads and writes conditionally
// on the version it read. A version conflict starts a fresh attempt, so check
// always sees the latest committed state. Errors from check are returned as is.
func (s *Store) Consume(ctx context.Context, code string, check func(model.AccessToken) error, attempts int) (*model.AccessToken, error) {
	attempts = max(attempts, 1)
	for attempt := range attempts {
		t, err := s.Get(ctx, code)
		if err != nil {
			return nil, err
		}
		if err := check(*t); err != nil {
			return nil, err
		}
		if t.CurrentDownloads >= t.MaxDownloads {
			return nil, apperr.Forbidden(apperr.ReasonDownloadLimitReached, "Download limit reached")
		}

		t.CurrentDownloads++
		item, err := kv.Encode(t)
		if err != nil {
			return nil, err
		}
		version, err := s.table.Update(ctx, code, item, t.Version)
		switch {
		case err == nil:
			t.Version = version
			return t, nil
		case errors.Is(err, kv.ErrNotFound):
			return nil, apperr.NotFound("Invalid access code")
		case !errors.Is(err, kv.ErrVersionConflict):
			return nil, apperr.Upstream("failed to record download", err)
		}

		if attempt < attempts-1 {
			if err := backoff(ctx, attempt); err != nil {
				return nil, apperr.Upstream("failed to record download", err)
			}
		}
	}
	return nil, apperr.Upstream(
		fmt.Sprintf("access code %s is busy, try again", code),
		fmt.Errorf("%w after %d attempts", kv.ErrVersionConflict, attempts),
	)
}

// backoff sleeps a few jittered milliseconds, growing with attempt.
func backoff(ctx context.Context, attempt int) error {
	d := time.Duration(1+rand.IntN(5*(attempt+1))) * time.Millisecond
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
