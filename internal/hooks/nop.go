// Package hooks provides default no-op hook implementations.
package hooks

import (
	"context"
	"time"

	"github.com/arloliu/relay/types"
)

// NopHooks implements Hooks with no-op callbacks.
//
// This is the default implementation used when no custom hooks are provided,
// eliminating the need for nil checks throughout the codebase.
type NopHooks struct{}

// NewNop creates a new no-op hooks implementation.
func NewNop() types.Hooks {
	h := &NopHooks{}
	return types.Hooks{
		OnPublisherStateChanged: h.OnPublisherStateChanged,
		OnRestartScheduled:      h.OnRestartScheduled,
		OnTagsReassigned:        h.OnTagsReassigned,
		OnBatchFlushed:          h.OnBatchFlushed,
		OnError:                 h.OnError,
	}
}

// OnPublisherStateChanged is a no-op implementation.
func (h *NopHooks) OnPublisherStateChanged(_ context.Context, _ types.Tag, _, _ types.PublisherState) error {
	return nil
}

// OnRestartScheduled is a no-op implementation.
func (h *NopHooks) OnRestartScheduled(_ context.Context, _ string, _ int, _ time.Duration, _ error) error {
	return nil
}

// OnTagsReassigned is a no-op implementation.
func (h *NopHooks) OnTagsReassigned(_ context.Context, _, _ []types.Tag) error {
	return nil
}

// OnBatchFlushed is a no-op implementation.
func (h *NopHooks) OnBatchFlushed(_ context.Context, _ string, _ int) error {
	return nil
}

// OnError is a no-op implementation.
func (h *NopHooks) OnError(_ context.Context, _ error) error {
	return nil
}
