// SPDX-FileCopyrightText: © 2023 Siemens AG
// SPDX-License-Identifier: MIT

// Package registry tracks the set of worker agents currently connected to
// the coordinator: who they are, how to reach them, and the bid rendezvous
// slot used to collect their auction responses.
package registry

import (
	"sync"
	"time"

	"github.com/edgeforge/swarm/internal/protocol"
)

// Status snapshot fields reported by a worker's periodic STATUS message.
type Status struct {
	CPULoad    float64
	RAMPercent float64
	Battery    float64
	StoragePct float64
}

// Worker is one registered agent. Stream is the connection the coordinator
// uses to talk to it; the registry itself never closes or reconnects it,
// that is the coordinator's job.
type Worker struct {
	ID       string
	Stream   *protocol.Stream
	Endpoint protocol.Endpoint

	HasAccelerator  bool
	AcceleratorIdle bool

	RegisteredAt time.Time
	LastStatus   Status

	Slot *Slot
}

// Registry holds the currently connected workers, ordered by registration
// so that auction tie-breaks can favor whoever registered first.
type Registry struct {
	mu    sync.RWMutex
	order []string
	byID  map[string]*Worker
}

// New returns an empty Registry.
func New() *Registry {
	return &Registry{byID: make(map[string]*Worker)}
}

// Register adds w, or replaces an existing worker with the same ID
// in place (last-writer-wins; the original position in registration
// order is preserved so a reconnecting worker does not jump the tie-break
// queue).
func (r *Registry) Register(w *Worker) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if w.Slot == nil {
		w.Slot = NewSlot()
	}
	if w.RegisteredAt.IsZero() {
		w.RegisteredAt = time.Now()
	}

	if _, exists := r.byID[w.ID]; !exists {
		r.order = append(r.order, w.ID)
	}
	r.byID[w.ID] = w
}

// Remove drops the worker with the given ID, if present.
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.byID[id]; !ok {
		return
	}
	delete(r.byID, id)
	for i, candidate := range r.order {
		if candidate == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
}

// Get returns the worker with the given ID, if currently registered.
func (r *Registry) Get(id string) (*Worker, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	w, ok := r.byID[id]
	return w, ok
}

// UpdateStatus applies a STATUS report to the named worker, if it is still
// registered; reports from agents no longer recognized are silently
// discarded.
func (r *Registry) UpdateStatus(id string, st Status, hasAccel, accelIdle bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	w, ok := r.byID[id]
	if !ok {
		return
	}
	w.LastStatus = st
	w.HasAccelerator = hasAccel
	w.AcceleratorIdle = accelIdle
}

// Snapshot returns the currently registered workers in registration order.
// The slice and its Worker pointers are safe to read concurrently with
// further registry mutation; callers must not mutate Worker fields other
// than through the registry's own methods.
func (r *Registry) Snapshot() []*Worker {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Worker, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.byID[id])
	}
	return out
}

// Count returns the number of currently registered workers.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}

// IdleAccelerator returns the first registered worker, in registration
// order, that has an accelerator and currently reports it idle. This backs
// the coordinator's fast path.
func (r *Registry) IdleAccelerator() (*Worker, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, id := range r.order {
		w := r.byID[id]
		if w.HasAccelerator && w.AcceleratorIdle {
			return w, true
		}
	}
	return nil, false
}
