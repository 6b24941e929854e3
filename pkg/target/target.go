package target

import (
	"context"
	"net/http"
	"sort"
	"sync"

	"github.com/chaosgate/chaosgate-go/pkg/cerrors"
	"github.com/chaosgate/chaosgate-go/pkg/clients"
	"github.com/chaosgate/chaosgate-go/pkg/types"
)

// Handle is the abstraction over one controllable service under test, it is
// owned by the sequencer for the duration of a run and stateless between runs
type Handle struct {
	Details types.TargetDetails
	clients clients.ClientSets
}

// Name returns the target's name
func (h *Handle) Name() string {
	return h.Details.Name
}

// Start asks the runtime to start the target, a no-op when already running
func (h *Handle) Start(ctx context.Context) error {
	return h.clients.Control.Start(ctx, h.Details)
}

// Stop asks the runtime to stop the target, a no-op when already stopped
func (h *Handle) Stop(ctx context.Context) error {
	return h.clients.Control.Stop(ctx, h.Details)
}

// Throttle applies a resource or path fault of the given kind and magnitude,
// magnitude zero removes a previously applied fault of that kind
func (h *Handle) Throttle(ctx context.Context, kind string, magnitude float64, durationSeconds int) error {
	return h.clients.Control.Throttle(ctx, h.Details, kind, magnitude, durationSeconds)
}

// ProbeHealth returns true when the health endpoint answers 200, any non-200
// status or transport failure means "not healthy yet"
func (h *Handle) ProbeHealth(ctx context.Context) bool {
	if h.Details.HealthEndpoint == "" {
		return false
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.Details.HealthEndpoint, nil)
	if err != nil {
		return false
	}
	resp, err := h.clients.HTTP.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

// QueryMetric samples the named metric, ok=false is a missing sample and must
// not abort the caller
func (h *Handle) QueryMetric(ctx context.Context, expr string) (float64, bool, error) {
	return h.clients.Metrics.Query(ctx, expr)
}

// Registry owns the target handles of one run together with the per-target
// locks that serialize in-flight faults
type Registry struct {
	handles map[string]*Handle
	locks   map[string]*sync.Mutex
}

// NewRegistry builds one handle and one lock per plan target
func NewRegistry(targets []types.TargetDetails, clients clients.ClientSets) *Registry {
	registry := &Registry{
		handles: make(map[string]*Handle, len(targets)),
		locks:   make(map[string]*sync.Mutex, len(targets)),
	}
	for _, details := range targets {
		registry.handles[details.Name] = &Handle{Details: details, clients: clients}
		registry.locks[details.Name] = &sync.Mutex{}
	}
	return registry
}

// Get returns the handle of the named target
func (r *Registry) Get(name string) (*Handle, bool) {
	handle, ok := r.handles[name]
	return handle, ok
}

// Handles resolves the named targets in order
func (r *Registry) Handles(names []string) ([]*Handle, error) {
	handles := make([]*Handle, 0, len(names))
	for _, name := range names {
		handle, ok := r.handles[name]
		if !ok {
			return nil, cerrors.Error{ErrorCode: cerrors.ErrorTypeSpecValidation, Target: name, Reason: "target is not part of the run"}
		}
		handles = append(handles, handle)
	}
	return handles, nil
}

// All returns every handle of the run
func (r *Registry) All() []*Handle {
	names := make([]string, 0, len(r.handles))
	for name := range r.handles {
		names = append(names, name)
	}
	sort.Strings(names)
	handles := make([]*Handle, 0, len(names))
	for _, name := range names {
		handles = append(handles, r.handles[name])
	}
	return handles
}

// Lock acquires the locks of the named targets in sorted order so that
// multi-target scenarios cannot deadlock, at most one in-flight fault per
// target at any time. The returned func releases them.
func (r *Registry) Lock(names []string) func() {
	sorted := make([]string, 0, len(names))
	seen := make(map[string]bool, len(names))
	for _, name := range names {
		if !seen[name] {
			sorted = append(sorted, name)
			seen[name] = true
		}
	}
	sort.Strings(sorted)

	for _, name := range sorted {
		if lock, ok := r.locks[name]; ok {
			lock.Lock()
		}
	}
	return func() {
		for i := len(sorted) - 1; i >= 0; i-- {
			if lock, ok := r.locks[sorted[i]]; ok {
				lock.Unlock()
			}
		}
	}
}
