package interfaces

import "context"

// WorkOrderDispatcher wakes the processor for a newly scheduled work order.
// Implementations may drop or coalesce signals; the processor also polls wo-scheduled.
type WorkOrderDispatcher interface {
	Dispatch(ctx context.Context, workOrderID string) error
}

// CompletionNotifier signals work-order completion to waiting requesters
type CompletionNotifier interface {
	// Publish announces that a work order reached a terminal state
	Publish(ctx context.Context, workOrderID string) error

	// Subscribe returns a channel closed once the work order completes, and a cancel func
	Subscribe(ctx context.Context, workOrderID string) (<-chan struct{}, func())
}
