package relay

import "github.com/arloliu/relay/types"

// Sentinel errors re-exported from the types subpackage so callers can match
// them as relay.Err* without importing types. Components wrap these with
// context using fmt.Errorf("...: %w", err); match with errors.Is().
var (
	// ErrInvalidConfig is returned when the configuration is invalid.
	ErrInvalidConfig = types.ErrInvalidConfig

	// ErrTransportRequired is returned when the transport is nil.
	ErrTransportRequired = types.ErrTransportRequired

	// ErrOffsetStoreRequired is returned when the offset store is nil.
	ErrOffsetStoreRequired = types.ErrOffsetStoreRequired

	// ErrSourceRequired is returned when the event source is nil.
	ErrSourceRequired = types.ErrSourceRequired

	// ErrProcessorRequired is returned when the processing stage is nil.
	ErrProcessorRequired = types.ErrProcessorRequired

	// ErrOwnershipRequired is returned when the ownership oracle is nil.
	ErrOwnershipRequired = types.ErrOwnershipRequired

	// ErrFactoryRequired is returned when the pipeline factory is nil.
	ErrFactoryRequired = types.ErrFactoryRequired

	// ErrAlreadyStarted is returned when Start or Run is called twice.
	ErrAlreadyStarted = types.ErrAlreadyStarted

	// ErrNotStarted is returned when operations require a started component.
	ErrNotStarted = types.ErrNotStarted

	// ErrAlreadyExists is reported when creating a resource that is already
	// present. Provisioning treats it as success.
	ErrAlreadyExists = types.ErrAlreadyExists

	// ErrNotFound is reported when deleting a resource that does not exist.
	// Teardown treats it as success.
	ErrNotFound = types.ErrNotFound

	// ErrEndOfStream is returned by EventStream.Next when the stream has
	// ended cleanly.
	ErrEndOfStream = types.ErrEndOfStream

	// ErrOffsetRegression is returned by OffsetHandle.Save when the offset is
	// lower than the last committed one.
	ErrOffsetRegression = types.ErrOffsetRegression

	// ErrOffsetConflict is returned by OffsetHandle.Save when another writer
	// advanced the stored offset since the handle was prepared.
	ErrOffsetConflict = types.ErrOffsetConflict

	// ErrOffsetOutOfOrder is returned when an event source yields offsets
	// that do not strictly increase.
	ErrOffsetOutOfOrder = types.ErrOffsetOutOfOrder
)

// Typed errors carried by failed pipeline runs. Match with errors.As() to
// classify which part of a pipeline gave out.
type (
	ProvisionError  = types.ProvisionError
	TransportError  = types.TransportError
	ProcessingError = types.ProcessingError
)
