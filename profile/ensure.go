package profile

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gilby125/flight-connections/pkg/logger"
)

const (
	ensureAttempts = 3
	ensureBackoff  = 500 * time.Millisecond
)

var (
	now   = time.Now
	sleep = func(ctx context.Context, d time.Duration) error {
		t := time.NewTimer(d)
		defer t.Stop()
		select {
		case <-t.C:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
)

// EnsureUserDocument merge-writes u for uid, stamping lastActiveAt and, for a
// new document, createdAt. Failed attempts are retried with a linear backoff.
func EnsureUserDocument(ctx context.Context, store Store, uid string, u Update) error {
	log := logger.Default().Component("profile").WithField("uid", uid)

	var lastErr error
	for attempt := 1; attempt <= ensureAttempts; attempt++ {
		lastErr = ensureOnce(ctx, store, uid, u)
		if lastErr == nil {
			return nil
		}
		log.Error(lastErr, "Failed to save user document", "attempt", attempt, "max_attempts", ensureAttempts)

		if attempt < ensureAttempts {
			if err := sleep(ctx, ensureBackoff*time.Duration(attempt)); err != nil {
				return err
			}
		}
	}
	return fmt.Errorf("failed to create user document after %d attempts: %w", ensureAttempts, lastErr)
}

func ensureOnce(ctx context.Context, store Store, uid string, u Update) error {
	_, err := store.Get(ctx, uid)
	exists := err == nil
	if err != nil && !errors.Is(err, ErrNotFound) {
		return err
	}

	t := now()
	u.LastActiveAt = &t
	if !exists {
		u.CreatedAt = &t
	}
	return store.Upsert(ctx, uid, u)
}

// TouchActivity stamps lastActiveAt on an existing document. A missing
// document is not an error.
func TouchActivity(ctx context.Context, store Store, uid string) error {
	if _, err := store.Get(ctx, uid); err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil
		}
		return err
	}
	t := now()
	return store.Upsert(ctx, uid, Update{LastActiveAt: &t})
}
