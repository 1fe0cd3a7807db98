package neosession

import "errors"

var (
	// ErrNotFound is a sentinel error returned by Repository.FindByID when no
	// entity of the requested type exists for the id. Session-level loads
	// report absence with a nil result instead.
	ErrNotFound = errors.New("record not found")

	// ErrSessionClosed is returned by every operation on a closed Session.
	// No store I/O is attempted.
	ErrSessionClosed = errors.New("neosession: session is closed")

	// ErrInvalidQuery is returned when a query is malformed: depth below -1,
	// a negative offset or limit, or an empty sort property.
	ErrInvalidQuery = errors.New("neosession: invalid query")

	// ErrStoreUnavailable wraps every error reported by the backing store.
	// errors.Is still matches the underlying cause, e.g. context.DeadlineExceeded.
	ErrStoreUnavailable = errors.New("neosession: store unavailable")

	// ErrNotMapped is returned for types whose `crud` tags cannot be mapped.
	ErrNotMapped = errors.New("neosession: type is not mapped")

	// ErrPropertyConversion is returned when a stored property cannot be
	// assigned to its struct field. The load that hit it changes nothing.
	ErrPropertyConversion = errors.New("neosession: property conversion failed")

	// ErrTransient is returned by Delete for an entity that has never been saved.
	ErrTransient = errors.New("neosession: entity has no id")
)
