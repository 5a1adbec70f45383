package ridgedb

import "log"

// defaults mirror the settings Open gives the implicit "default" column
// family when Options leaves them unset; the minimums bound every column
// family configuration.
const (
	DefaultFlushThresholdBytes = 4 * 1024 * 1024
	DefaultMaxLevel            = 12
	DefaultProbability         = 0.25
	minNameLength              = 2
	minFlushThresholdBytes     = 1024 * 1024
	minMaxLevel                = 5
	minProbability             = 0.1
)

// Options configures Open. Grounded on the struct-options style in
// ChinmayNoob-lsm-go/db/options.go, generalized with the per-column-family
// defaults and logging knob this engine's column-family isolation needs.
type Options struct {
	// Path is the directory the database lives in. Created if it does
	// not already exist.
	Path string

	// CompressedWAL, when true, compresses WAL entries before they are
	// appended. Column families may still override compression for
	// their own SSTables independently.
	CompressedWAL bool

	// DefaultFlushThresholdBytes/DefaultMaxLevel/DefaultProbability
	// configure the implicit "default" column family created by Open.
	// CreateColumnFamily does not fill zero fields from them: its config
	// must pass ColumnFamilyConfig.Validate as given.
	DefaultFlushThresholdBytes int64
	DefaultMaxLevel            int
	DefaultProbability         float64

	// Logger receives the database's diagnostic output. Nil disables
	// logging, matching the teacher's opt-in printLog pattern.
	Logger *log.Logger
}

// DefaultOptions returns sensible defaults for Open, rooted at path.
func DefaultOptions(path string) Options {
	return Options{
		Path:                       path,
		CompressedWAL:              false,
		DefaultFlushThresholdBytes: DefaultFlushThresholdBytes,
		DefaultMaxLevel:            DefaultMaxLevel,
		DefaultProbability:         DefaultProbability,
	}
}

// Validate checks that Options describes an openable database.
func (o Options) Validate() error {
	if o.Path == "" {
		return newErr("Options.Validate", KindInvalidArgument, nil)
	}
	if o.DefaultFlushThresholdBytes != 0 && o.DefaultFlushThresholdBytes < minFlushThresholdBytes {
		return newErr("Options.Validate", KindInvalidArgument, nil)
	}
	if o.DefaultMaxLevel != 0 && o.DefaultMaxLevel < minMaxLevel {
		return newErr("Options.Validate", KindInvalidArgument, nil)
	}
	if o.DefaultProbability != 0 && o.DefaultProbability < minProbability {
		return newErr("Options.Validate", KindInvalidArgument, nil)
	}
	return nil
}

// withDefaults fills any zero-valued tuning field with the package
// default, so a caller can leave them unset (as Validate permits)
// without Open handing CreateColumnFamily a config that fails its own
// validation for the implicit default column family.
func (o Options) withDefaults() Options {
	if o.DefaultFlushThresholdBytes == 0 {
		o.DefaultFlushThresholdBytes = DefaultFlushThresholdBytes
	}
	if o.DefaultMaxLevel == 0 {
		o.DefaultMaxLevel = DefaultMaxLevel
	}
	if o.DefaultProbability == 0 {
		o.DefaultProbability = DefaultProbability
	}
	return o
}

func (o Options) logf(format string, args ...interface{}) {
	if o.Logger == nil {
		return
	}
	o.Logger.Printf(format, args...)
}
