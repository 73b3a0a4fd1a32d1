package cli

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/calvinalkan/truth/internal/fs"
)

// lockName is the advisory lock file inside the draft root. It is never
// replaced or unlinked.
const lockName = ".truth.lock"

var errBusy = errors.New("another truth command holds the repository lock")

// locked runs exec while holding the repository lock. A held lock fails
// fast instead of waiting.
func (a *app) locked(exec func(context.Context, *IO, []string) error) func(context.Context, *IO, []string) error {
	return func(ctx context.Context, o *IO, args []string) error {
		pol, err := a.policy()
		if err != nil {
			return err
		}

		path := filepath.Join(a.cfg.Root, pol.DraftRoot, lockName)

		lk, err := fs.NewLocker(a.fs).TryLock(path)
		if err != nil {
			if errors.Is(err, fs.ErrWouldBlock) {
				return fmt.Errorf("%w (%s)", errBusy, path)
			}

			return err
		}

		defer func() { _ = lk.Close() }()

		a.log.Debug("lock acquired", "path", path)

		return exec(ctx, o, args)
	}
}
