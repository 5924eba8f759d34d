package eventcore

import (
	"errors"
	"fmt"
)

// CoreError is the base error type for event log / composer / runtime
// operations, mirroring the teacher's EventStoreError embedding
// pattern: every concrete error type embeds CoreError and adds its own
// fields.
type CoreError struct {
	Op  string // operation that failed, e.g. "query_with_tags"
	Err error  // underlying error
}

func (e *CoreError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return e.Op
}

func (e *CoreError) Unwrap() error {
	return e.Err
}

type (
	// BusinessError is produced by a command handler's Execute and
	// surfaces as Rejected. Never retried. Message is safe to show to
	// an end user (spec §7).
	BusinessError struct {
		*CoreError
		Message string
	}

	// ConflictError describes a nonzero conflict count. The core's
	// append path does not construct it: conflicts are reported
	// through AppendResult.Conflicted, which Handler.Run's bounded
	// retry acts on. Handler.Run never returns a ConflictError.
	ConflictError struct {
		*CoreError
		ConflictCount int
	}

	// DecodeError means a stored event could not be parsed into the
	// domain event type — unknown type name or malformed payload.
	// Surfaced as SystemError; never retried.
	DecodeError struct {
		*CoreError
		EventType string
	}

	// StoreError is any database or connectivity failure.
	StoreError struct {
		*CoreError
		Resource string
	}

	// ValidationError is an error in event or filter validation.
	ValidationError struct {
		*CoreError
		Field string
		Value string
	}

	// CodecError is a JSON encode/decode failure at the log boundary:
	// an event, its metadata or a filter that cannot be encoded on the
	// way in (including a user Encoder failing), or stored metadata
	// that cannot be decoded on the way out.
	CodecError struct {
		*CoreError
	}
)

func newBusinessError(op, message string) *BusinessError {
	return &BusinessError{CoreError: &CoreError{Op: op, Err: errors.New(message)}, Message: message}
}

func newConflictError(op string, count int) *ConflictError {
	return &ConflictError{
		CoreError:     &CoreError{Op: op, Err: fmt.Errorf("append condition violated: %d conflicting event(s)", count)},
		ConflictCount: count,
	}
}

func newDecodeError(op, eventType string, err error) *DecodeError {
	return &DecodeError{CoreError: &CoreError{Op: op, Err: err}, EventType: eventType}
}

func newStoreError(op, resource string, err error) *StoreError {
	return &StoreError{CoreError: &CoreError{Op: op, Err: err}, Resource: resource}
}

func newValidationError(op, field, value string, err error) *ValidationError {
	return &ValidationError{CoreError: &CoreError{Op: op, Err: err}, Field: field, Value: value}
}

func newCodecError(op string, err error) *CodecError {
	return &CodecError{CoreError: &CoreError{Op: op, Err: err}}
}

// IsBusinessError extracts a *BusinessError from the error chain.
func IsBusinessError(err error) (*BusinessError, bool) {
	var e *BusinessError
	return e, errors.As(err, &e)
}

// IsConflictError extracts a *ConflictError from the error chain.
func IsConflictError(err error) (*ConflictError, bool) {
	var e *ConflictError
	return e, errors.As(err, &e)
}

// IsDecodeError extracts a *DecodeError from the error chain.
func IsDecodeError(err error) (*DecodeError, bool) {
	var e *DecodeError
	return e, errors.As(err, &e)
}

// IsStoreError extracts a *StoreError from the error chain.
func IsStoreError(err error) (*StoreError, bool) {
	var e *StoreError
	return e, errors.As(err, &e)
}

// IsValidationError extracts a *ValidationError from the error chain.
func IsValidationError(err error) (*ValidationError, bool) {
	var e *ValidationError
	return e, errors.As(err, &e)
}

// IsCodecError extracts a *CodecError from the error chain.
func IsCodecError(err error) (*CodecError, bool) {
	var e *CodecError
	return e, errors.As(err, &e)
}

// errMaxRetriesExceeded is the sentinel wrapped into the SystemError
// returned by Handler.Run once the retry budget is exhausted (spec §4.4).
var errMaxRetriesExceeded = errors.New("maximum retries exceeded due to conflicts")
