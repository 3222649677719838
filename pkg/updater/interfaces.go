package updater

import (
	"context"

	"topicsync/pkg/target"
)

// RemoteUpdater performs one idempotent "set column to values for the row
// with id" write. Errors are expected to be *errors.Error values.
type RemoteUpdater interface {
	Update(ctx context.Context, tgt target.Target, id string, values []string) error
}

// CheckpointStore persists the id of the last completed row
type CheckpointStore interface {
	Load() (id string, ok bool, err error)
	Save(id string) error
	Path() string
}
