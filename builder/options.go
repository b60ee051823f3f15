package builder

import (
	"log/slog"

	"github.com/hupe1980/burrow/codec"
	"github.com/hupe1980/burrow/diskmap"
	"github.com/hupe1980/burrow/internal/resource"
)

// Options configures a Builder.
type Options struct {
	// Registry holds the custom types of the store. A new registry is
	// created when nil. Its id table is loaded from and persisted to the
	// store.
	Registry *codec.Registry

	// CompressThreshold is passed to the serializer. Zero keeps the codec
	// default.
	CompressThreshold int

	// Locking returns the locking strategy for each map. Defaults to
	// striped locking.
	Locking func() diskmap.Locking

	// TempPoolSize bounds the number of temporary maps borrowed at once.
	TempPoolSize int

	// TempLoadFactor is the load factor of temporary maps.
	TempLoadFactor uint8

	// Resources is shared with the consumers of the builder, such as index
	// rebuilds. Nil means unlimited.
	Resources *resource.Controller

	Logger *slog.Logger
}

// DefaultOptions are the defaults applied by New.
var DefaultOptions = Options{
	TempPoolSize:   8,
	TempLoadFactor: 2,
}

func buildOptions(optFns []func(o *Options)) Options {
	opts := DefaultOptions
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Registry == nil {
		opts.Registry = codec.NewRegistry()
	}
	if opts.Locking == nil {
		opts.Locking = func() diskmap.Locking { return diskmap.StripedLocking(diskmap.DefaultStripes) }
	}
	if opts.TempPoolSize <= 0 {
		opts.TempPoolSize = DefaultOptions.TempPoolSize
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}
	return opts
}
