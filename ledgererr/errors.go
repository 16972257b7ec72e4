// Package ledgererr defines the error kinds surfaced by the ledger core.
//
// Errors are wrapped with github.com/pkg/errors as they propagate, so
// Wrap/Wrapf preserve a chain of context while Is reports whether a
// sentinel was tagged anywhere along it, for callers that need to switch
// on failure category.
package ledgererr

import "github.com/pkg/errors"

// Sentinels for the error kinds named in the ledger's error handling design.
// Compare against these with Is.
var (
	// InvalidSignature is returned when an Ed25519 signature check fails.
	InvalidSignature = errors.New("invalid signature")

	// NotFinalized is returned when a block a proof depends on has no
	// committed successor present in the abstract cache.
	NotFinalized = errors.New("block not finalized on main chain")

	// MissingBlock is returned when a proof references a block neither
	// supplied in the proof nor already known locally.
	MissingBlock = errors.New("referenced block missing from proof")

	// ConservationViolation is returned when a transaction's amounts do
	// not balance against its sources.
	ConservationViolation = errors.New("sources do not conserve value")

	// DoubleSpend is returned when a transaction reuses a source already
	// consumed by a prior accepted transaction at this receiver.
	DoubleSpend = errors.New("source already spent")

	// NotYetCommitted is a construct-side failure: the transaction's
	// block has no committed successor yet.
	NotYetCommitted = errors.New("transaction's block has no committed successor")

	// TransportError wraps RPC or socket failures; callers may retry.
	TransportError = errors.New("transport error")
)

// Wrap annotates err with message and tags it with kind, so that
// Is(err, kind) later reports true.
func Wrap(kind error, err error, message string) error {
	if err == nil {
		return nil
	}
	return &taggedError{kind: kind, cause: errors.Wrap(err, message)}
}

// Wrapf is Wrap with a formatted message.
func Wrapf(kind error, err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return &taggedError{kind: kind, cause: errors.Wrapf(err, format, args...)}
}

// New builds a bare error of the given kind with no further wrapping.
func New(kind error, message string) error {
	return &taggedError{kind: kind, cause: errors.New(message)}
}

type taggedError struct {
	kind  error
	cause error
}

func (e *taggedError) Error() string { return e.cause.Error() }
func (e *taggedError) Cause() error  { return e.cause }
func (e *taggedError) Unwrap() error { return e.cause }

// Is reports whether err (or anything it wraps) was tagged with kind.
func Is(err error, kind error) bool {
	for err != nil {
		if te, ok := err.(*taggedError); ok {
			if te.kind == kind {
				return true
			}
			err = te.cause
			continue
		}
		err = errors.Unwrap(err)
	}
	return false
}
