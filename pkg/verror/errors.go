// Package verror defines the typed error kinds shared across the vectorize
// core. Components return errors wrapping one of these sentinels; the HTTP
// layer is the single place that translates them into status codes.
package verror

import "errors"

var (
	// ErrInvalidRequest marks malformed or missing user input.
	ErrInvalidRequest = errors.New("invalid request")

	// ErrNotFound marks a missing job or source row.
	ErrNotFound = errors.New("not found")

	// ErrAlreadyExists marks a duplicate job name.
	ErrAlreadyExists = errors.New("already exists")

	// ErrFilterUnsafe marks a search filter referencing an unknown column
	// or a value that could not be parsed into the column's declared type.
	ErrFilterUnsafe = errors.New("unsafe filter")

	// ErrProviderTransient marks a retryable embedding provider failure
	// (429, 5xx, connection reset). The caller should leave the queue
	// message alone so it becomes visible again after its timeout.
	ErrProviderTransient = errors.New("transient provider error")

	// ErrProviderPermanent marks a non-retryable embedding provider
	// failure (malformed input, auth, wrong-dimension response). The
	// caller should archive the message.
	ErrProviderPermanent = errors.New("permanent provider error")

	// ErrSchemaDrift marks a source table whose columns or types no
	// longer match what the job was created with.
	ErrSchemaDrift = errors.New("schema drift")

	// ErrInternal marks a bug or inconsistency that should be logged
	// with a correlation id and surfaced as a 500.
	ErrInternal = errors.New("internal error")
)

// Kind classifies an error against the sentinels above. Returns "" if err
// does not wrap any of them.
func Kind(err error) string {
	switch {
	case errors.Is(err, ErrInvalidRequest):
		return "InvalidRequest"
	case errors.Is(err, ErrNotFound):
		return "NotFound"
	case errors.Is(err, ErrAlreadyExists):
		return "AlreadyExists"
	case errors.Is(err, ErrFilterUnsafe):
		return "FilterUnsafe"
	case errors.Is(err, ErrProviderTransient):
		return "ProviderTransient"
	case errors.Is(err, ErrProviderPermanent):
		return "ProviderPermanent"
	case errors.Is(err, ErrSchemaDrift):
		return "SchemaDrift"
	case errors.Is(err, ErrInternal):
		return "Internal"
	default:
		return ""
	}
}

// HTTPStatus maps an error to the status code the API layer should return.
// Unrecognized errors map to 500.
func HTTPStatus(err error) int {
	switch {
	case errors.Is(err, ErrInvalidRequest), errors.Is(err, ErrFilterUnsafe):
		return 400
	case errors.Is(err, ErrNotFound):
		return 404
	case errors.Is(err, ErrAlreadyExists):
		return 409
	default:
		return 500
	}
}
