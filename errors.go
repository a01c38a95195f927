package probez

import "errors"

var (
	// ErrDuplicateDataSource is returned when a data source name is registered twice.
	ErrDuplicateDataSource = errors.New("probez: data source already registered")

	// ErrInvalidDataSource is returned for an empty name or a nil handler.
	ErrInvalidDataSource = errors.New("probez: invalid data source")

	// ErrNoFreeInstance is returned when a data source has no free instance slot.
	ErrNoFreeInstance = errors.New("probez: no free instance slot")

	// ErrSessionState is returned when a session operation is not valid in its current state.
	ErrSessionState = errors.New("probez: invalid session state")

	// ErrInvalidConfig is returned for trace config bytes that cannot be parsed.
	ErrInvalidConfig = errors.New("probez: invalid trace config")

	// ErrProducerClosed is returned by operations on a closed producer.
	ErrProducerClosed = errors.New("probez: producer closed")
)
