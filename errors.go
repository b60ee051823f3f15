package burrow

import (
	"errors"
	"fmt"

	"github.com/hupe1980/burrow/backup"
	"github.com/hupe1980/burrow/blobstore"
	"github.com/hupe1980/burrow/builder"
	"github.com/hupe1980/burrow/codec"
	"github.com/hupe1980/burrow/layout"
	"github.com/hupe1980/burrow/store"
)

var (
	// ErrNotFound is returned when a backup or blob does not exist.
	ErrNotFound = errors.New("burrow: not found")

	// ErrCorrupt is returned when stored data fails validation. The original
	// error is wrapped and can be inspected with errors.As, e.g. for a
	// *layout.CorruptionError.
	ErrCorrupt = errors.New("burrow: corrupt data")

	// ErrClosed is returned after Close.
	ErrClosed = errors.New("burrow: closed")
)

func translateError(err error) error {
	if err == nil {
		return nil
	}

	switch {
	case errors.Is(err, store.ErrClosed), errors.Is(err, builder.ErrClosed):
		return fmt.Errorf("%w: %w", ErrClosed, err)
	case errors.Is(err, layout.ErrCorrupt),
		errors.Is(err, codec.ErrChecksum),
		errors.Is(err, store.ErrCorruptPreamble),
		errors.Is(err, backup.ErrChecksum),
		errors.Is(err, backup.ErrInvalidFormat):
		return fmt.Errorf("%w: %w", ErrCorrupt, err)
	case errors.Is(err, blobstore.ErrNotFound), errors.Is(err, backup.ErrNoBackup):
		return fmt.Errorf("%w: %w", ErrNotFound, err)
	}
	return err
}
