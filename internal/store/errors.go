package store

import "errors"

// Sentinel errors returned by store operations.
var (
	ErrNotFound        = errors.New("record not found")
	ErrInvalidPrice    = errors.New("price must be greater than zero")
	ErrInvalidChipset  = errors.New("chipset is not in the supported set")
	ErrStoreConstraint = errors.New("store constraint violation")

	// ErrStoreUnavailable is returned when the Retryer exhausts every
	// attempt against a transient condition (SQLITE_BUSY/LOCKED contention
	// that never clears). The pipeline treats this as fatal to the run.
	ErrStoreUnavailable = errors.New("store unavailable after retries")
)
