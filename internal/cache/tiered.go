package cache

import (
	"context"
	"errors"

	"media-optimizer/internal/logging"
)

// Tiered reads through a local backend to a remote one. Remote hits are
// copied into the local tier so the next build stays local.
type Tiered struct {
	Local  Backend
	Remote Backend
}

// Name implements Backend.
func (t *Tiered) Name() string {
	return t.Local.Name() + "+" + t.Remote.Name()
}

// Restore implements Backend.
func (t *Tiered) Restore(ctx context.Context, key, target string) (bool, error) {
	found, err := t.Local.Restore(ctx, key, target)
	if found {
		return found, err
	}
	if err != nil {
		logging.Warn("Local cache lookup for %s failed: %v", key, err)
	}

	found, err = t.Remote.Restore(ctx, key, target)
	if !found {
		if err != nil {
			logging.Warn("Remote cache lookup for %s failed: %v", key, err)
		}
		return false, nil
	}
	if err != nil {
		return true, err
	}

	if err := t.Local.Populate(ctx, key, target); err != nil {
		logging.Warn("Failed to copy remote entry %s into local cache: %v", key, err)
	}
	return true, nil
}

// Populate implements Backend. Both tiers are written; a failure of one
// does not stop the other.
func (t *Tiered) Populate(ctx context.Context, key, source string) error {
	return errors.Join(
		t.Local.Populate(ctx, key, source),
		t.Remote.Populate(ctx, key, source),
	)
}
