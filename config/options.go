package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/safing/recordstore/formats/dsd"
	"github.com/safing/recordstore/log"
)

// Default Configuration.
const (
	DefaultStorageType = "fstree"
	DefaultFormat      = "json"
	DefaultWorkers     = 10
	DefaultQueueSize   = 100
	DefaultCacheSize   = 1000
	DefaultLogLevel    = "info"
)

// ErrInvalidOptions is returned (wrapped) for options that fail validation.
var ErrInvalidOptions = errors.New("invalid options")

// Options holds the configuration of a record store and its executor.
type Options struct {
	// DataRoot is the directory the storage backend keeps its data in.
	DataRoot string `json:"dataRoot"`
	// StorageType selects the storage backend, e.g. "fstree", "hashmap", "bbolt" or "badger".
	StorageType string `json:"storageType"`
	// Format is the serialization format of records at rest.
	Format string `json:"format"`

	// Workers is the number of executor workers.
	Workers int `json:"workers"`
	// QueueSize is the number of operations that may wait per worker.
	QueueSize int `json:"queueSize"`

	// CacheSize is the maximum amount of cached records. Zero disables the cache.
	CacheSize int `json:"cacheSize"`
	// CacheTTL is the maximum age of a cache entry. Zero means no expiry.
	CacheTTL Duration `json:"cacheTTL"`

	// WatchExternalChanges makes the store drop cached records when their
	// files are changed by someone else. Only supported by fstree.
	WatchExternalChanges bool `json:"watchExternalChanges"`

	LogLevel string `json:"logLevel"`
}

// Defaults returns options with all defaults set.
func Defaults() *Options {
	return &Options{
		StorageType: DefaultStorageType,
		Format:      DefaultFormat,
		Workers:     DefaultWorkers,
		QueueSize:   DefaultQueueSize,
		CacheSize:   DefaultCacheSize,
		LogLevel:    DefaultLogLevel,
	}
}

// Validate checks the options and fills in defaults for unset values.
func (o *Options) Validate() error {
	if o.StorageType == "" {
		o.StorageType = DefaultStorageType
	}
	if o.Format == "" {
		o.Format = DefaultFormat
	}
	if o.Workers == 0 {
		o.Workers = DefaultWorkers
	}
	if o.LogLevel == "" {
		o.LogLevel = DefaultLogLevel
	}

	switch {
	case o.StorageType != "hashmap" && o.DataRoot == "":
		return fmt.Errorf("%w: storage type %s requires a data root", ErrInvalidOptions, o.StorageType)
	case o.Workers < 0:
		return fmt.Errorf("%w: workers must be positive, got %d", ErrInvalidOptions, o.Workers)
	case o.QueueSize < 0:
		return fmt.Errorf("%w: queue size must not be negative, got %d", ErrInvalidOptions, o.QueueSize)
	case o.CacheSize < 0:
		return fmt.Errorf("%w: cache size must not be negative, got %d", ErrInvalidOptions, o.CacheSize)
	case o.CacheTTL < 0:
		return fmt.Errorf("%w: cache ttl must not be negative, got %s", ErrInvalidOptions, o.CacheTTL)
	case o.WatchExternalChanges && o.StorageType != "fstree":
		return fmt.Errorf("%w: watching external changes is only supported by fstree", ErrInvalidOptions)
	case log.ParseLevel(o.LogLevel) == 0:
		return fmt.Errorf("%w: unknown log level %q", ErrInvalidOptions, o.LogLevel)
	}

	if _, err := o.SerializationFormat(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidOptions, err)
	}
	return nil
}

// SerializationFormat returns the parsed record format.
func (o *Options) SerializationFormat() (dsd.SerializationFormat, error) {
	return dsd.ParseFormat(o.Format)
}

// Duration is a time.Duration that is configured as a string, e.g. "5m".
type Duration time.Duration

// MarshalJSON implements json.Marshaler.
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

// UnmarshalJSON implements json.Unmarshaler. Plain numbers are read as seconds.
func (d *Duration) UnmarshalJSON(data []byte) error {
	var v interface{}
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}

	switch value := v.(type) {
	case float64:
		*d = Duration(time.Duration(value * float64(time.Second)))
	case string:
		parsed, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", value, err)
		}
		*d = Duration(parsed)
	case nil:
		*d = 0
	default:
		return fmt.Errorf("invalid duration %s", string(data))
	}
	return nil
}

// Duration returns the value as a time.Duration.
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

func (d Duration) String() string {
	return time.Duration(d).String()
}
