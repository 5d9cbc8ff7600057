package weather

import "errors"

var (
	// ErrMissingCredential is returned when a backend that needs an API key is built without one.
	ErrMissingCredential = errors.New("missing api credential")
	// ErrUnsupportedCity is returned by coordinate-based backends for cities outside their table.
	ErrUnsupportedCity = errors.New("city not supported by backend")
	// ErrInvalidReading is returned when an upstream payload holds out-of-range values.
	ErrInvalidReading = errors.New("invalid reading")
)

type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err, or anything it wraps, was marked with Permanent.
func IsPermanent(err error) bool {
	var pe *permanentError
	return errors.As(err, &pe)
}
