package burrow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hupe1980/burrow/backup"
	"github.com/hupe1980/burrow/blobstore"
	"github.com/hupe1980/burrow/builder"
	"github.com/hupe1980/burrow/codec"
	"github.com/hupe1980/burrow/counter"
	"github.com/hupe1980/burrow/diskmap"
	"github.com/hupe1980/burrow/internal/resource"
	"github.com/hupe1980/burrow/record"
	"github.com/hupe1980/burrow/store"
)

type backendKind int

const (
	backendMemory backendKind = iota
	backendFile
	backendMmap
)

// Backend selects the medium of the volume.
type Backend struct {
	kind backendKind
	path string
}

// Memory keeps the volume in process memory.
func Memory() Backend { return Backend{kind: backendMemory} }

// File stores the volume at path using positioned file I/O.
func File(path string) Backend { return Backend{kind: backendFile, path: path} }

// Mmap stores the volume at path and maps it into memory.
func Mmap(path string) Backend { return Backend{kind: backendMmap, path: path} }

func (b Backend) open(optFns ...func(o *store.Options)) (*store.Volume, error) {
	switch b.kind {
	case backendFile:
		return store.NewFileStore(b.path, optFns...)
	case backendMmap:
		return store.NewMmapStore(b.path, optFns...)
	default:
		return store.NewMemoryStore(optFns...)
	}
}

// DB is an open burrow volume. It is safe for concurrent use.
type DB struct {
	b         *builder.Builder
	resources *resource.Controller
	metrics   MetricsCollector
	logger    *Logger
}

// Open opens or creates the volume of backend.
func Open(ctx context.Context, backend Backend, optFns ...Option) (*DB, error) {
	opts := applyOptions(optFns)

	rc := resource.NewController(resource.Config{
		MemoryLimitBytes:      opts.memoryLimit,
		MaxMaintenanceWorkers: opts.maintenanceWorkers,
		IOLimitBytesPerSec:    opts.ioLimit,
	})

	st, err := backend.open(func(o *store.Options) {
		if opts.sliceSize > 0 {
			o.SliceSize = opts.sliceSize
		}
		o.Resources = rc
		o.Logger = opts.logger.Logger
	})
	if err != nil {
		return nil, translateError(fmt.Errorf("burrow: open volume: %w", err))
	}

	b, err := builder.New(st, func(o *builder.Options) {
		o.Registry = opts.registry
		o.CompressThreshold = opts.compressThreshold
		o.Locking = func() diskmap.Locking { return diskmap.StripedLocking(opts.stripes) }
		if opts.temporaryMaps > 0 {
			o.TempPoolSize = opts.temporaryMaps
		}
		o.Resources = rc
		o.Logger = opts.logger.Logger
	})
	if err != nil {
		return nil, translateError(errors.Join(err, st.Close()))
	}

	db := &DB{
		b:         b,
		resources: rc,
		metrics:   opts.metricsCollector,
		logger:    opts.logger,
	}

	if opts.restoreFrom != nil && db.empty() {
		if err := db.Restore(ctx, opts.restoreFrom, opts.restoreName); err != nil {
			return nil, errors.Join(err, b.Close())
		}
	}
	return db, nil
}

// empty reports whether the volume holds no named structures.
func (db *DB) empty() bool {
	names, err := db.b.Names()
	return err == nil && len(names) == 0
}

// Map returns the hash map name, creating it with loadFactor (1-10) if
// needed. An existing map keeps its load factor.
func (db *DB) Map(name string, loadFactor uint8) (*Map, error) {
	m, err := db.b.GetMap(name, loadFactor)
	if err != nil {
		return nil, translateError(err)
	}
	return db.wrap(name, m), nil
}

// OrderedMap returns the ordered map name, creating it if needed.
func (db *DB) OrderedMap(name string) (*Map, error) {
	m, err := db.b.GetOrderedMap(name)
	if err != nil {
		return nil, translateError(err)
	}
	return db.wrap(name, m), nil
}

// Set returns the set name, creating it with loadFactor if needed.
func (db *DB) Set(name string, loadFactor uint8) (*diskmap.Set, error) {
	s, err := db.b.GetSet(name, loadFactor)
	return s, translateError(err)
}

// Counter returns the counter name, creating it at zero if needed.
func (db *DB) Counter(name string) (*counter.Counter, error) {
	c, err := db.b.GetCounter(name)
	return c, translateError(err)
}

// Records returns a record collection for desc with its indexes.
func (db *DB) Records(desc record.Descriptor, optFns ...func(o *record.Options)) (*record.Controller, error) {
	c, err := record.New(db.b, desc, optFns...)
	return c, translateError(err)
}

// WithTemporaryMap runs fn with a scratch map that is cleared afterwards.
// It blocks while all temporary maps are in use.
func (db *DB) WithTemporaryMap(ctx context.Context, fn func(m *diskmap.Map) error) error {
	return translateError(db.b.WithTemporaryMap(ctx, fn))
}

// Names returns the names of all structures, sorted.
func (db *DB) Names() ([]string, error) {
	names, err := db.b.Names()
	return names, translateError(err)
}

// Registry returns the type registry of the volume.
func (db *DB) Registry() *codec.Registry { return db.b.Registry() }

// Builder exposes the underlying builder for advanced use.
func (db *DB) Builder() *builder.Builder { return db.b }

// Size returns the allocated size of the volume in bytes.
func (db *DB) Size() int64 { return db.b.Store().Size() }

// Commit flushes every structure and the volume.
func (db *DB) Commit() error {
	start := time.Now()
	err := translateError(db.b.Commit())
	duration := time.Since(start)
	db.metrics.RecordCommit(duration, err)
	db.logger.LogCommit(context.Background(), duration, err)
	return err
}

// Reset drops all structures. Handles obtained before must not be used.
func (db *DB) Reset() error {
	return translateError(db.b.Reset())
}

// Close commits and releases the volume. It is idempotent.
func (db *DB) Close() error {
	return translateError(db.b.Close())
}

func (db *DB) backupOptions(optFns []func(o *backup.Options)) []func(o *backup.Options) {
	return append([]func(o *backup.Options){func(o *backup.Options) {
		o.Resources = db.resources
		o.Logger = db.logger.Logger
	}}, optFns...)
}

// Backup commits, exports the volume to bs as name and publishes it as
// LATEST. Mutations issued while the volume is exported block until the
// export completes.
func (db *DB) Backup(ctx context.Context, bs blobstore.BlobStore, name string, optFns ...func(o *backup.Options)) (backup.Info, error) {
	start := time.Now()
	info, err := db.backup(ctx, bs, name, optFns)
	err = translateError(err)
	db.metrics.RecordBackup(info.StoredSize, time.Since(start), err)
	db.logger.LogBackup(ctx, name, info.RawSize, info.StoredSize, err)
	return info, err
}

func (db *DB) backup(ctx context.Context, bs blobstore.BlobStore, name string, optFns []func(o *backup.Options)) (backup.Info, error) {
	// Writers wait while the image is taken so that it matches one commit.
	var info backup.Info
	err := db.b.Quiesce(func() error {
		var err error
		info, err = backup.Export(ctx, db.b.Store(), bs, name, db.backupOptions(optFns)...)
		return err
	})
	if err != nil {
		return backup.Info{}, err
	}
	if err := backup.Publish(ctx, bs, name); err != nil {
		return info, err
	}
	return info, nil
}

// Restore replaces the volume with the backup name from bs. An empty name
// restores the published LATEST backup. Handles obtained before must not be
// used.
func (db *DB) Restore(ctx context.Context, bs blobstore.BlobStore, name string) error {
	err := translateError(db.restore(ctx, bs, name))
	db.logger.LogRestore(ctx, name, err)
	return err
}

func (db *DB) restore(ctx context.Context, bs blobstore.BlobStore, name string) error {
	if name == "" {
		latest, err := backup.Latest(ctx, bs)
		if err != nil {
			return err
		}
		name = latest
	}
	if _, err := backup.Import(ctx, bs, name, db.b.Store(), db.backupOptions(nil)...); err != nil {
		// An import rejected after it touched the volume leaves it empty.
		if db.b.Store().Root() == 0 {
			return errors.Join(err, db.b.Reset())
		}
		return err
	}
	return db.b.Reload()
}
