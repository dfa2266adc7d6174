package types

import (
	"errors"
	"fmt"
)

// Sentinel errors for the Relay library.
//
// These errors provide type-safe error checking using errors.Is() and
// errors.As(). Components use these sentinels for known conditions and wrap
// external errors with context using fmt.Errorf("...: %w", err).
//
// Runtime failures additionally carry one of the typed errors below
// (ProvisionError, TransportError, ProcessingError) so supervisors and
// callers can classify what part of a pipeline gave out.

// Configuration and wiring errors - fatal at startup, never retried.
var (
	// ErrInvalidConfig is returned when the configuration is invalid.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrTransportRequired is returned when the transport is nil.
	ErrTransportRequired = errors.New("transport is required")

	// ErrOffsetStoreRequired is returned when the offset store is nil.
	ErrOffsetStoreRequired = errors.New("offset store is required")

	// ErrSourceRequired is returned when the event source is nil.
	ErrSourceRequired = errors.New("event source is required")

	// ErrProcessorRequired is returned when the processing stage is nil.
	ErrProcessorRequired = errors.New("processor is required")

	// ErrOwnershipRequired is returned when the ownership oracle is nil.
	ErrOwnershipRequired = errors.New("ownership oracle is required")

	// ErrFactoryRequired is returned when the pipeline factory is nil.
	ErrFactoryRequired = errors.New("pipeline factory is required")
)

// Lifecycle errors - Public API errors returned by Start/Stop.
var (
	// ErrAlreadyStarted is returned when Start is called twice.
	ErrAlreadyStarted = errors.New("already started")

	// ErrNotStarted is returned when operations require a started component.
	ErrNotStarted = errors.New("not started")
)

// Resource errors - reported by Transport adapters and absorbed by the
// Provisioner.
var (
	// ErrAlreadyExists is reported when creating a resource that is already
	// present. Provisioning treats it as success.
	ErrAlreadyExists = errors.New("resource already exists")

	// ErrNotFound is reported when deleting a resource that does not exist.
	// Teardown treats it as success.
	ErrNotFound = errors.New("resource not found")
)

// Stream and offset errors.
var (
	// ErrEndOfStream is returned by EventStream.Next when the stream has
	// ended cleanly. It signals completion, not failure.
	ErrEndOfStream = errors.New("end of stream")

	// ErrOffsetRegression is returned by OffsetHandle.Save when the offset
	// is lower than the last committed one.
	ErrOffsetRegression = errors.New("offset regression")

	// ErrOffsetConflict is returned by OffsetHandle.Save when another
	// writer advanced the stored offset since this handle was prepared.
	ErrOffsetConflict = errors.New("offset modified by concurrent writer")

	// ErrOffsetOutOfOrder is returned when an event source yields offsets
	// that do not strictly increase.
	ErrOffsetOutOfOrder = errors.New("source offsets out of order")
)

// ProvisionError reports a topic or subscription setup failure other than
// the expected already-exists/not-found cases. It is fatal to the owning
// pipeline instance; the supervisor retries the whole startup after backoff.
type ProvisionError struct {
	// Resource is "topic" or "subscription".
	Resource string

	// ID is the resource identifier that failed to provision.
	ID string

	// Err is the underlying transport error.
	Err error
}

func (e *ProvisionError) Error() string {
	return fmt.Sprintf("provision %s %q: %v", e.Resource, e.ID, e.Err)
}

func (e *ProvisionError) Unwrap() error { return e.Err }

// TransportError reports a publish, pull or acknowledge failure. It is
// fatal to the current stream and handled by restart-with-backoff.
type TransportError struct {
	// Op is the failed operation: "publish", "pull" or "acknowledge".
	Op string

	// Err is the underlying transport error.
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// ProcessingError reports a failure in the caller-supplied processing
// stage. It is fatal to the current stream; the message redelivers after
// the subscription's ack deadline once the pipeline restarts.
type ProcessingError struct {
	// MessageID identifies the message being processed when the stage
	// failed ("" if unknown).
	MessageID string

	// Err is the error returned by the processing stage.
	Err error
}

func (e *ProcessingError) Error() string {
	if e.MessageID == "" {
		return fmt.Sprintf("processing: %v", e.Err)
	}

	return fmt.Sprintf("processing message %s: %v", e.MessageID, e.Err)
}

func (e *ProcessingError) Unwrap() error { return e.Err }
