package chat

import (
	"sync"
)

// Registry is the node-local handle table shared by the bus implementations:
// handle -> receiver, and group -> subscribed handles.
type Registry struct {
	mu      sync.RWMutex
	byConn  map[string]Receiver
	byGroup map[string]map[string]struct{}
}

func NewRegistry() *Registry {
	return &Registry{
		byConn:  make(map[string]Receiver),
		byGroup: make(map[string]map[string]struct{}),
	}
}

func (r *Registry) attach(handle string, rc Receiver) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byConn[handle] = rc
}

// detach removes the handle and every group subscription it still holds.
// It returns the groups left empty.
func (r *Registry) detach(handle string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.byConn, handle)
	var emptied []string
	for group, m := range r.byGroup {
		if _, ok := m[handle]; !ok {
			continue
		}
		delete(m, handle)
		if len(m) == 0 {
			delete(r.byGroup, group)
			emptied = append(emptied, group)
		}
	}
	return emptied
}

// join reports whether handle is the first local subscriber of group.
func (r *Registry) join(group, handle string) (first bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m := r.byGroup[group]
	if m == nil {
		m = make(map[string]struct{})
		r.byGroup[group] = m
		first = true
	}
	m[handle] = struct{}{}
	return first
}

// leave reports whether group has no local subscriber left.
func (r *Registry) leave(group, handle string) (last bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m := r.byGroup[group]
	if m == nil {
		return false
	}
	if _, ok := m[handle]; !ok {
		return false
	}
	delete(m, handle)
	if len(m) == 0 {
		delete(r.byGroup, group)
		return true
	}
	return false
}

func (r *Registry) attached(handle string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.byConn[handle]
	return ok
}

func (r *Registry) receiver(handle string) Receiver {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.byConn[handle]
}

// members snapshots the receivers subscribed to group.
func (r *Registry) members(group string) []Receiver {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m := r.byGroup[group]
	out := make([]Receiver, 0, len(m))
	for h := range m {
		if rc, ok := r.byConn[h]; ok {
			out = append(out, rc)
		}
	}
	return out
}

func (r *Registry) deliverGroup(group string, ev Event) int {
	rcs := r.members(group)
	for _, rc := range rcs {
		rc.Receive(ev)
	}
	return len(rcs)
}

func (r *Registry) deliverHandle(handle string, ev Event) bool {
	rc := r.receiver(handle)
	if rc == nil {
		return false
	}
	rc.Receive(ev)
	return true
}

func (r *Registry) groups() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.byGroup))
	for g := range r.byGroup {
		out = append(out, g)
	}
	return out
}

// Count returns the number of attached handles.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byConn)
}
