package rhi

import (
	"errors"
	"fmt"
)

// Error classes. Every error returned by this package wraps exactly one of
// these, so callers can branch with errors.Is without matching messages.
var (
	// ErrValidation is returned when a description or call argument is
	// malformed. Validation errors are detected before any backend call.
	ErrValidation = errors.New("rhi: validation failed")

	// ErrBackend is returned when the underlying HAL call reports failure.
	// The HAL error (for example hal.ErrDeviceLost) stays reachable
	// through errors.Is.
	ErrBackend = errors.New("rhi: backend call failed")

	// ErrUnsupported is returned when an operation needs a capability the
	// active device lacks. It is reported before any backend object is created.
	ErrUnsupported = errors.New("rhi: capability not supported by device")

	// ErrInvalidState is returned when a command buffer operation is issued
	// outside the recording state it requires.
	ErrInvalidState = errors.New("rhi: invalid command buffer state")
)

// Specific validation errors.
var (
	// ErrZeroSize is returned when a buffer or texture has a zero dimension.
	ErrZeroSize = fmt.Errorf("%w: size must be non-zero", ErrValidation)

	// ErrUsageCombination is returned when usage flags cannot be combined.
	ErrUsageCombination = fmt.Errorf("%w: unsupported usage combination", ErrValidation)

	// ErrFormat is returned for formats that cannot serve the requested usage.
	ErrFormat = fmt.Errorf("%w: unsupported format", ErrValidation)

	// ErrSlotOutOfRange is returned when a declared slot does not fit its
	// binding band.
	ErrSlotOutOfRange = fmt.Errorf("%w: declared slot outside binding band", ErrValidation)

	// ErrDuplicateSlot is returned when two layout elements of the same
	// binding class declare the same slot.
	ErrDuplicateSlot = fmt.Errorf("%w: duplicate declared slot", ErrValidation)

	// ErrShapeMismatch is returned when a resource set does not match
	// its layout.
	ErrShapeMismatch = fmt.Errorf("%w: resource set does not match layout", ErrValidation)

	// ErrNilResource is returned when a required resource reference is nil.
	ErrNilResource = fmt.Errorf("%w: nil resource", ErrValidation)

	// ErrForeignResource is returned when a resource from another context is used.
	ErrForeignResource = fmt.Errorf("%w: resource belongs to another context", ErrValidation)

	// ErrDestroyed is returned when a destroyed resource is used.
	ErrDestroyed = fmt.Errorf("%w: resource already destroyed", ErrValidation)

	// ErrMissingIndirectUsage is returned when an indirect argument buffer was
	// created without BufferUsageIndirectArgs.
	ErrMissingIndirectUsage = fmt.Errorf("%w: buffer lacks indirect-args usage", ErrValidation)

	// ErrOutOfBounds is returned when a range exceeds a resource's extent.
	ErrOutOfBounds = fmt.Errorf("%w: range out of bounds", ErrValidation)

	// ErrResourcesAlive is returned by Context.Destroy while resources
	// created from it are still live.
	ErrResourcesAlive = fmt.Errorf("%w: context has live resources", ErrValidation)
)

// Specific state errors.
var (
	// ErrNotRecording is returned when an operation requires the Recording state.
	ErrNotRecording = fmt.Errorf("%w: not recording", ErrInvalidState)

	// ErrInsideRenderScope is returned for operations illegal between
	// BeginRendering and EndRendering.
	ErrInsideRenderScope = fmt.Errorf("%w: render scope is active", ErrInvalidState)

	// ErrOutsideRenderScope is returned for rendering operations issued
	// without an active render scope.
	ErrOutsideRenderScope = fmt.Errorf("%w: no active render scope", ErrInvalidState)

	// ErrNoPipeline is returned by draw and dispatch calls issued before a
	// matching pipeline was set.
	ErrNoPipeline = fmt.Errorf("%w: no pipeline bound", ErrInvalidState)

	// ErrNoIndexBuffer is returned by indexed draws issued before
	// SetIndexBuffer.
	ErrNoIndexBuffer = fmt.Errorf("%w: no index buffer bound", ErrInvalidState)
)

// ErrRayTracingUnsupported is returned when the device cannot build
// acceleration structures or ray-tracing pipelines.
var ErrRayTracingUnsupported = fmt.Errorf("%w: ray tracing", ErrUnsupported)

// backendError wraps a HAL failure with the operation that triggered it.
func backendError(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrBackend, err)
}
