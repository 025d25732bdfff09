package modbus

import "sync"

// Events is the explicit observer registry that replaces the GUI signal
// wiring of the original system. Subscribers are invoked synchronously on
// the publisher's goroutine (the polling loop for snapshots and weights),
// so handlers must be quick and must not call back into the poller.
type Events struct {
	mu           sync.RWMutex
	snapshotSubs []func(Snapshot)
	weightSubs   []func(weighbridgeID int64, weight float64)
	statusSubs   []func(slave int, connected bool)
	errorSubs    []func(msg string)
}

func NewEvents() *Events { return &Events{} }

// OnSnapshot registers a subscriber for the per-cycle consolidated
// snapshot map.
func (e *Events) OnSnapshot(fn func(Snapshot)) {
	e.mu.Lock()
	e.snapshotSubs = append(e.snapshotSubs, fn)
	e.mu.Unlock()
}

// OnWeight registers a subscriber for weighbridge current-weight updates.
func (e *Events) OnWeight(fn func(weighbridgeID int64, weight float64)) {
	e.mu.Lock()
	e.weightSubs = append(e.weightSubs, fn)
	e.mu.Unlock()
}

// OnDeviceStatus registers a subscriber for slave reachability changes.
func (e *Events) OnDeviceStatus(fn func(slave int, connected bool)) {
	e.mu.Lock()
	e.statusSubs = append(e.statusSubs, fn)
	e.mu.Unlock()
}

// OnError registers a subscriber for human-readable error messages.
func (e *Events) OnError(fn func(msg string)) {
	e.mu.Lock()
	e.errorSubs = append(e.errorSubs, fn)
	e.mu.Unlock()
}

func (e *Events) PublishSnapshot(s Snapshot) {
	e.mu.RLock()
	subs := e.snapshotSubs
	e.mu.RUnlock()
	for _, fn := range subs {
		fn(s)
	}
}

func (e *Events) PublishWeight(weighbridgeID int64, weight float64) {
	e.mu.RLock()
	subs := e.weightSubs
	e.mu.RUnlock()
	for _, fn := range subs {
		fn(weighbridgeID, weight)
	}
}

func (e *Events) PublishDeviceStatus(slave int, connected bool) {
	e.mu.RLock()
	subs := e.statusSubs
	e.mu.RUnlock()
	for _, fn := range subs {
		fn(slave, connected)
	}
}

func (e *Events) PublishError(msg string) {
	e.mu.RLock()
	subs := e.errorSubs
	e.mu.RUnlock()
	for _, fn := range subs {
		fn(msg)
	}
}
