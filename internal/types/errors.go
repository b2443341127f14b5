package types

import "errors"

var (
	// ErrNotFound is returned when a job or speaker label does not exist for the caller
	ErrNotFound = errors.New("not found")

	// ErrSourceUnavailable is returned when the job's audio cannot be read at submit time
	ErrSourceUnavailable = errors.New("audio source unavailable")

	// ErrProviderRejected is returned when the provider refuses a submission
	ErrProviderRejected = errors.New("provider rejected request")

	// ErrProviderTransient marks network, timeout and parse failures talking to the provider
	ErrProviderTransient = errors.New("provider temporarily unavailable")

	// ErrStoreContention is returned when the database stayed busy after all retries
	ErrStoreContention = errors.New("store busy")

	// ErrStale marks a job forced to error for exceeding the staleness bound
	ErrStale = errors.New("job stuck in processing")

	// ErrInvalidTransition is returned when an operation does not apply to the job's current status
	ErrInvalidTransition = errors.New("invalid status transition")
)
