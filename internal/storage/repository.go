package storage

import (
	"context"
	"errors"

	apperrors "github.com/julianstephens/chime/internal/errors"
	"github.com/julianstephens/chime/internal/models"
)

// Repository reads and rewrites the reminder collection as a single document.
type Repository struct {
	store BlobStore
	key   string
}

func NewRepository(store BlobStore, key string) *Repository {
	return &Repository{store: store, key: key}
}

func (r *Repository) Load(ctx context.Context) ([]models.Reminder, error) {
	data, err := r.store.Get(ctx, r.key)
	if err != nil {
		return nil, &apperrors.StorageError{Op: "read", Err: err}
	}
	reminders, err := DecodeReminders(data)
	if err != nil {
		return nil, &apperrors.StorageError{Op: "decode", Err: err}
	}
	return reminders, nil
}

func (r *Repository) Save(ctx context.Context, reminders []models.Reminder) error {
	data, err := EncodeReminders(reminders)
	if err != nil {
		return &apperrors.StorageError{Op: "encode", Err: err}
	}
	if err := r.store.Set(ctx, r.key, data); err != nil {
		return &apperrors.StorageError{Op: "write", Err: err}
	}
	return nil
}

// Mutation edits the loaded collection and reports whether it changed. It
// must pass the ctx it is given to any nested store access.
type Mutation func(ctx context.Context, reminders []models.Reminder) ([]models.Reminder, bool, error)

// Update loads, edits and rewrites the collection while holding the store's
// lock on the key, so writers in other processes cannot interleave. Errors
// from fn are returned unwrapped; nothing is written when fn reports no change.
func (r *Repository) Update(ctx context.Context, fn Mutation) error {
	var fnErr error
	err := r.store.Update(ctx, r.key, func(ctx context.Context, data []byte) ([]byte, error) {
		reminders, err := DecodeReminders(data)
		if err != nil {
			return nil, &apperrors.StorageError{Op: "decode", Err: err}
		}
		updated, changed, err := fn(ctx, reminders)
		if err != nil {
			fnErr = err
			return nil, err
		}
		if !changed {
			return nil, nil
		}
		out, err := EncodeReminders(updated)
		if err != nil {
			return nil, &apperrors.StorageError{Op: "encode", Err: err}
		}
		return out, nil
	})
	if fnErr != nil {
		return fnErr
	}
	var storageErr *apperrors.StorageError
	if err != nil && !errors.As(err, &storageErr) {
		return &apperrors.StorageError{Op: "write", Err: err}
	}
	return err
}
