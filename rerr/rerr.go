// Package rerr defines the error taxonomy shared by every layer of the
// core: the query/filter DSL, the tableset planner, the mutation engine,
// and the DB abstraction all return one of these kinds, wrapped with
// gitlab.com/tozd/go/errors so that stack traces and structured details
// survive across package boundaries.
package rerr

import "gitlab.com/tozd/go/errors"

// Base sentinels, one per taxonomy kind. Callers compare with errors.Is.
var (
	// ErrConfig is returned for misconfiguration, e.g. an unparseable filter.
	ErrConfig = errors.Base("configuration error")
	// ErrInput is returned when a caller-supplied value fails structural validation.
	ErrInput = errors.Base("invalid input")
	// ErrData is returned when database content violates a core invariant.
	ErrData = errors.Base("data error")
	// ErrMissing is returned when an addressed row, table, or column does not exist.
	ErrMissing = errors.Base("not found")
	// ErrUser is returned for a permissioned refusal (readonly, non-editable table, unknown user).
	ErrUser = errors.Base("user error")
	// ErrExternalProcess is returned when an external helper (e.g. a VCS probe) fails.
	ErrExternalProcess = errors.Base("external process error")
	// ErrIO is returned for filesystem or stream failures.
	ErrIO = errors.Base("io error")
	// ErrFormat is returned for an unknown URL format suffix.
	ErrFormat = errors.Base("unknown format")
)

// Config wraps a formatted message as a ConfigError.
func Config(format string, args ...any) errors.E {
	return errors.WrapWith(errors.Errorf(format, args...), ErrConfig)
}

// Input wraps a formatted message as an InputError.
func Input(format string, args ...any) errors.E {
	return errors.WrapWith(errors.Errorf(format, args...), ErrInput)
}

// Data wraps a formatted message as a DataError.
func Data(format string, args ...any) errors.E {
	return errors.WrapWith(errors.Errorf(format, args...), ErrData)
}

// Missing wraps a formatted message as a MissingError.
func Missing(format string, args ...any) errors.E {
	return errors.WrapWith(errors.Errorf(format, args...), ErrMissing)
}

// User wraps a formatted message as a UserError.
func User(format string, args ...any) errors.E {
	return errors.WrapWith(errors.Errorf(format, args...), ErrUser)
}

// ExternalProcess wraps an underlying error as an ExternalProcessError.
func ExternalProcess(err error, format string, args ...any) errors.E {
	return errors.WrapWith(errors.WithMessagef(err, format, args...), ErrExternalProcess)
}

// IO wraps an underlying error as an IOError.
func IO(err error) errors.E {
	return errors.WrapWith(errors.WithStack(err), ErrIO)
}

// Format wraps a formatted message as a FormatError.
func Format(format string, args ...any) errors.E {
	return errors.WrapWith(errors.Errorf(format, args...), ErrFormat)
}
