package manager

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"apphost/topology"
	"apphost/types"
)

// readyLatch is closed once a start attempt finishes, successfully or not.
type readyLatch struct {
	done chan struct{}
	once sync.Once
	err  error // Set before done is closed
}

func newReadyLatch() *readyLatch {
	return &readyLatch{done: make(chan struct{})}
}

func (l *readyLatch) release(err error) {
	l.once.Do(func() {
		l.err = err
		close(l.done)
	})
}

func (l *readyLatch) released() bool {
	select {
	case <-l.done:
		return true
	default:
		return false
	}
}

// StateManager manages the in-memory state of materialized resources. It also
// serves as the topology.Resolver for deferred environment values.
type StateManager struct {
	mu        sync.RWMutex
	resources map[string]*types.ResourceStatus // Key: resource name
	params    map[string]map[string]string     // Key: resource name, then parameter name
	listeners []func(types.ResourceStatus)

	muLatches sync.Mutex
	latches   map[string]*readyLatch

	now func() time.Time
}

var _ topology.Resolver = (*StateManager)(nil)

// NewStateManager creates a new StateManager.
func NewStateManager() *StateManager {
	return &StateManager{
		resources: make(map[string]*types.ResourceStatus),
		params:    make(map[string]map[string]string),
		latches:   make(map[string]*readyLatch),
		now:       time.Now,
	}
}

// OnChange registers fn to be called after every state transition.
func (sm *StateManager) OnChange(fn func(types.ResourceStatus)) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.listeners = append(sm.listeners, fn)
}

// RegisterResource adds a resource in the idle state. Registering a known
// resource again keeps its current state.
func (sm *StateManager) RegisterResource(name string, kind types.ResourceKind) {
	sm.mu.Lock()
	if _, exists := sm.resources[name]; exists {
		sm.mu.Unlock()
		return
	}
	status := &types.ResourceStatus{
		Name:      name,
		Kind:      kind,
		State:     types.StateIdle,
		UpdatedAt: sm.now(),
	}
	sm.resources[name] = status
	snapshot := copyStatus(status)
	listeners := sm.listeners
	sm.mu.Unlock()

	notify(listeners, snapshot)
}

// GetResourceState returns the current state of a resource. Unknown resources are idle.
func (sm *StateManager) GetResourceState(name string) types.ResourceState {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	if status, exists := sm.resources[name]; exists {
		return status.State
	}
	return types.StateIdle
}

// GetResource returns a snapshot of one resource.
func (sm *StateManager) GetResource(name string) (types.ResourceStatus, bool) {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	status, exists := sm.resources[name]
	if !exists {
		return types.ResourceStatus{}, false
	}
	return copyStatus(status), true
}

// GetAllResources returns a snapshot of all resources sorted by name.
func (sm *StateManager) GetAllResources() []types.ResourceStatus {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	out := make([]types.ResourceStatus, 0, len(sm.resources))
	for _, status := range sm.resources {
		out = append(out, copyStatus(status))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// MarkStarting moves a resource to starting. It returns false when the
// resource is already starting, running or stopping.
func (sm *StateManager) MarkStarting(name string) bool {
	ok := sm.transition(name, func(s *types.ResourceStatus) bool {
		switch s.State {
		case types.StateStarting, types.StateRunning, types.StateStopping:
			return false
		}
		s.State = types.StateStarting
		s.Error = ""
		return true
	})
	if ok {
		sm.muLatches.Lock()
		if l, exists := sm.latches[name]; !exists || l.released() {
			sm.latches[name] = newReadyLatch()
		}
		sm.muLatches.Unlock()
	}
	return ok
}

// MarkRunning records that a resource is ready and releases its waiters.
func (sm *StateManager) MarkRunning(name, containerID string) {
	sm.transition(name, func(s *types.ResourceStatus) bool {
		s.State = types.StateRunning
		s.ContainerID = containerID
		s.Error = ""
		return true
	})
	sm.latchFor(name).release(nil)
}

// MarkFailed records a failed start and releases waiters with err.
func (sm *StateManager) MarkFailed(name string, err error) {
	sm.transition(name, func(s *types.ResourceStatus) bool {
		s.State = types.StateFailed
		s.Error = err.Error()
		return true
	})
	sm.latchFor(name).release(fmt.Errorf("resource %s failed: %w", name, err))
}

// MarkStopping moves a running or starting resource to stopping. It returns
// false when there is nothing to stop.
func (sm *StateManager) MarkStopping(name string) bool {
	return sm.transition(name, func(s *types.ResourceStatus) bool {
		if s.State != types.StateRunning && s.State != types.StateStarting {
			return false
		}
		s.State = types.StateStopping
		return true
	})
}

// MarkStopped records that a resource is stopped. A later start gets a fresh latch.
func (sm *StateManager) MarkStopped(name string) {
	sm.transition(name, func(s *types.ResourceStatus) bool {
		s.State = types.StateStopped
		s.ContainerID = ""
		s.Endpoints = nil
		return true
	})
	sm.muLatches.Lock()
	if l, exists := sm.latches[name]; exists {
		l.release(fmt.Errorf("resource %s stopped", name))
		delete(sm.latches, name)
	}
	sm.muLatches.Unlock()
}

// SetEndpoint records the allocation of a resource endpoint.
func (sm *StateManager) SetEndpoint(name, endpoint string, alloc types.Allocation) {
	sm.transition(name, func(s *types.ResourceStatus) bool {
		if s.Endpoints == nil {
			s.Endpoints = make(map[string]types.Allocation)
		}
		s.Endpoints[endpoint] = alloc
		return true
	})
}

// SetParameter stores a resource parameter such as a user name or password.
func (sm *StateManager) SetParameter(resource, key, value string) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	if sm.params[resource] == nil {
		sm.params[resource] = make(map[string]string)
	}
	sm.params[resource][key] = value
}

// WaitReady blocks until the resource is running, fails, or ctx is done.
func (sm *StateManager) WaitReady(ctx context.Context, name string) error {
	latch := sm.latchFor(name)
	select {
	case <-latch.done:
		return latch.err
	case <-ctx.Done():
		return fmt.Errorf("waiting for %s: %w", name, ctx.Err())
	}
}

// Provisioned reports whether the resource is running.
func (sm *StateManager) Provisioned(name string) bool {
	return sm.GetResourceState(name) == types.StateRunning
}

// Endpoint returns the allocation recorded for a resource endpoint.
func (sm *StateManager) Endpoint(resource, endpoint string) (types.Allocation, error) {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	status, exists := sm.resources[resource]
	if !exists {
		return types.Allocation{}, fmt.Errorf("unknown resource %s", resource)
	}
	alloc, ok := status.Endpoints[endpoint]
	if !ok {
		return types.Allocation{}, fmt.Errorf("resource %s has no allocated endpoint %s", resource, endpoint)
	}
	return alloc, nil
}

// Parameter returns a stored resource parameter.
func (sm *StateManager) Parameter(resource, name string) (string, error) {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	v, ok := sm.params[resource][name]
	if !ok {
		return "", errors.New("parameter " + name + " of " + resource + " is not set")
	}
	return v, nil
}

func (sm *StateManager) latchFor(name string) *readyLatch {
	sm.muLatches.Lock()
	defer sm.muLatches.Unlock()
	l, exists := sm.latches[name]
	if !exists {
		l = newReadyLatch()
		sm.latches[name] = l
	}
	return l
}

// transition applies fn to a registered resource under the lock and notifies
// listeners when fn reports a change.
func (sm *StateManager) transition(name string, fn func(*types.ResourceStatus) bool) bool {
	sm.mu.Lock()
	status, exists := sm.resources[name]
	if !exists || !fn(status) {
		sm.mu.Unlock()
		return false
	}
	status.UpdatedAt = sm.now()
	snapshot := copyStatus(status)
	listeners := sm.listeners
	sm.mu.Unlock()

	notify(listeners, snapshot)
	return true
}

func notify(listeners []func(types.ResourceStatus), status types.ResourceStatus) {
	for _, fn := range listeners {
		fn(status)
	}
}

func copyStatus(s *types.ResourceStatus) types.ResourceStatus {
	out := *s
	if s.Endpoints != nil {
		out.Endpoints = make(map[string]types.Allocation, len(s.Endpoints))
		for k, v := range s.Endpoints {
			out.Endpoints[k] = v
		}
	}
	return out
}
