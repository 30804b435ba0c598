package notify

import (
	"context"
	"sync"

	"trustcompute/pkg/interfaces"
)

// LocalNotifier in-process completion notifier for single-replica deployments
type LocalNotifier struct {
	mu     sync.Mutex
	nextID uint64
	subs   map[string]map[uint64]chan struct{}
}

var _ interfaces.CompletionNotifier = (*LocalNotifier)(nil)

// NewLocalNotifier creates a new local notifier
func NewLocalNotifier() *LocalNotifier {
	return &LocalNotifier{subs: make(map[string]map[uint64]chan struct{})}
}

// Publish closes every channel subscribed to workOrderID
func (n *LocalNotifier) Publish(ctx context.Context, workOrderID string) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	for _, ch := range n.subs[workOrderID] {
		close(ch)
	}
	delete(n.subs, workOrderID)
	return nil
}

// Subscribe registers interest in workOrderID
func (n *LocalNotifier) Subscribe(ctx context.Context, workOrderID string) (<-chan struct{}, func()) {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.nextID++
	id := n.nextID
	ch := make(chan struct{})
	if n.subs[workOrderID] == nil {
		n.subs[workOrderID] = make(map[uint64]chan struct{})
	}
	n.subs[workOrderID][id] = ch

	cancel := func() {
		n.mu.Lock()
		defer n.mu.Unlock()
		subs := n.subs[workOrderID]
		if _, ok := subs[id]; !ok {
			return
		}
		delete(subs, id)
		if len(subs) == 0 {
			delete(n.subs, workOrderID)
		}
	}
	return ch, cancel
}
