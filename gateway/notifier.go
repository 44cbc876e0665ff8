package gateway

import "sync"

// notifier wakes long-polling activations when their job type gains
// ACTIVATABLE jobs. Notify runs on the engine goroutine and never blocks.
type notifier struct {
	mu      sync.Mutex
	next    int64
	waiters map[string]map[int64]chan struct{}
}

func newNotifier() *notifier {
	return &notifier{waiters: make(map[string]map[int64]chan struct{})}
}

// Wait returns a channel closed on the next notification for jobType and a
// func that drops the registration.
func (n *notifier) Wait(jobType string) (<-chan struct{}, func()) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.next++
	id := n.next
	ch := make(chan struct{})
	byType, ok := n.waiters[jobType]
	if !ok {
		byType = make(map[int64]chan struct{})
		n.waiters[jobType] = byType
	}
	byType[id] = ch
	return ch, func() { n.remove(jobType, id) }
}

func (n *notifier) Notify(jobType string) {
	n.mu.Lock()
	byType := n.waiters[jobType]
	delete(n.waiters, jobType)
	n.mu.Unlock()
	for _, ch := range byType {
		close(ch)
	}
}

func (n *notifier) Waiting(jobType string) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.waiters[jobType])
}

func (n *notifier) remove(jobType string, id int64) {
	n.mu.Lock()
	defer n.mu.Unlock()
	byType, ok := n.waiters[jobType]
	if !ok {
		return
	}
	delete(byType, id)
	if len(byType) == 0 {
		delete(n.waiters, jobType)
	}
}
