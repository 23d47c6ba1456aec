// errors.go: structured error kinds for the cache engine.
//
// Built on github.com/agilira/go-errors, the same structured-error library
// agilira-balios uses for its own cache error taxonomy: an ErrorCode per
// kind, rich context via WithContext/WithField, and cause-wrapping via Wrap.
package cache

import (
	"github.com/agilira/go-errors"
)

// Error codes for the four error kinds the cache surfaces.
const (
	// ErrCodeLoadFailed: the unary loader failed. The wrapped cause is
	// preserved and delivered to every waiter on the failed SingleFlight slot.
	ErrCodeLoadFailed errors.ErrorCode = "COALESCE_LOAD_FAILED"

	// ErrCodeBatchFailed: the batch loader itself failed (raised, or
	// returned a result of invalid shape). Every waiter on the flushed
	// batch receives it.
	ErrCodeBatchFailed errors.ErrorCode = "COALESCE_BATCH_FAILED"

	// ErrCodeKeyAbsentInBatch: the batch completed but returned no value
	// for this particular key. Delivered only to that key's waiter.
	ErrCodeKeyAbsentInBatch errors.ErrorCode = "COALESCE_KEY_ABSENT_IN_BATCH"

	// ErrCodeConfig: construction-time Options validation failure.
	ErrCodeConfig errors.ErrorCode = "COALESCE_CONFIG_INVALID"
)

const (
	msgLoadFailed       = "loader function failed"
	msgBatchFailed      = "batch loader function failed"
	msgKeyAbsentInBatch = "batch completed without a value for this key"
	msgConfigInvalid    = "invalid cache configuration"
)

// NewLoadError wraps a loader failure for key as a LoadError. No entry is
// ever stored for the failed key; the next Get starts a fresh load.
func NewLoadError(key interface{}, cause error) error {
	return errors.Wrap(cause, ErrCodeLoadFailed, msgLoadFailed).
		WithContext("key", key)
}

// NewBatchError wraps a batch-loader-wide failure (the call itself errored,
// or returned a result of a shape the coalescer doesn't recognize).
func NewBatchError(loaderID string, keys int, cause error) error {
	return errors.Wrap(cause, ErrCodeBatchFailed, msgBatchFailed).
		WithContext("loader_id", loaderID).
		WithContext("batch_size", keys)
}

// NewKeyAbsentInBatchError reports that a successful batch call did not
// return a value for key.
func NewKeyAbsentInBatchError(loaderID string, key interface{}) error {
	return errors.NewWithContext(ErrCodeKeyAbsentInBatch, msgKeyAbsentInBatch, map[string]interface{}{
		"loader_id": loaderID,
		"key":       key,
	})
}

// NewConfigError reports a construction-time Options validation failure.
func NewConfigError(field string, value interface{}) error {
	return errors.NewWithContext(ErrCodeConfig, msgConfigInvalid, map[string]interface{}{
		"field": field,
		"value": value,
	})
}

// IsLoadError reports whether err is (or wraps) a LoadError.
func IsLoadError(err error) bool { return errors.HasCode(err, ErrCodeLoadFailed) }

// IsBatchError reports whether err is (or wraps) a BatchError.
func IsBatchError(err error) bool { return errors.HasCode(err, ErrCodeBatchFailed) }

// IsKeyAbsentInBatch reports whether err is (or wraps) a KeyAbsentInBatch error.
func IsKeyAbsentInBatch(err error) bool { return errors.HasCode(err, ErrCodeKeyAbsentInBatch) }

// IsConfigError reports whether err is (or wraps) a ConfigError.
func IsConfigError(err error) bool { return errors.HasCode(err, ErrCodeConfig) }

// ErrCodeNoLoader: Get missed and neither a Loader nor a BatchLoader was
// supplied in the call's GetOptions.
const ErrCodeNoLoader errors.ErrorCode = "COALESCE_NO_LOADER"

// ErrNoLoader is returned by Get when the key is absent and neither a
// Loader nor a BatchLoader was supplied in the call's GetOptions.
var ErrNoLoader = errors.NewWithField(ErrCodeNoLoader, "cache: no loader provided for miss", "operation", "Get")
