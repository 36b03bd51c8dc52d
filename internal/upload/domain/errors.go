package domain

import "errors"

var (
	// ErrDuplicateJobID is returned when a job id is reused while the first job is still registered
	ErrDuplicateJobID = errors.New("duplicate job id")

	// ErrInstantiation is returned when the requested job kind could not be constructed
	ErrInstantiation = errors.New("job instantiation failed")

	// ErrTransport marks failures reported by the transport executor
	ErrTransport = errors.New("transport failure")

	// ErrSerialization is returned when persisted job data is malformed
	ErrSerialization = errors.New("malformed job data")

	// ErrInvalidJob is returned when a job descriptor violates its invariants
	ErrInvalidJob = errors.New("invalid job")

	// ErrJobNotFound is returned when neither the registry nor the scheduler knows a job
	ErrJobNotFound = errors.New("job not found")
)
