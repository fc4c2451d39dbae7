package mirror

import (
	"sort"
	"sync"

	"github.com/nao1215/pagemirror/internal/model"
)

// Acquisition is the result of Registry.Acquire.
type Acquisition int

const (
	// IsNew means the caller is the first to claim the URL and must fetch it.
	IsNew Acquisition = iota

	// AlreadyPresent means the URL was claimed before; it is either fetched,
	// being fetched, or failed.
	AlreadyPresent
)

// String returns the acquisition name.
func (a Acquisition) String() string {
	switch a {
	case IsNew:
		return "new"
	case AlreadyPresent:
		return "already-present"
	default:
		return "unknown"
	}
}

// Registry records every asset URL seen during a run together with its
// outcome. It is safe for concurrent use.
type Registry struct {
	mu      sync.Mutex
	entries map[model.NormalizedURL]*model.AssetOutcome
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		entries: make(map[model.NormalizedURL]*model.AssetOutcome),
	}
}

// Acquire atomically claims u. Exactly one caller per URL receives IsNew
// for the lifetime of the Registry.
func (r *Registry) Acquire(u model.NormalizedURL) Acquisition {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.entries[u]; ok {
		return AlreadyPresent
	}
	r.entries[u] = &model.AssetOutcome{URL: u, Status: model.AssetPending}
	return IsNew
}

// Complete records the final outcome of an acquired URL.
func (r *Registry) Complete(outcome model.AssetOutcome) {
	r.mu.Lock()
	defer r.mu.Unlock()

	o := outcome
	if o.Err != nil && o.Error == "" {
		o.Error = o.Err.Error()
	}
	r.entries[o.URL] = &o
}

// Lookup returns the recorded outcome for u.
func (r *Registry) Lookup(u model.NormalizedURL) (model.AssetOutcome, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	o, ok := r.entries[u]
	if !ok {
		return model.AssetOutcome{}, false
	}
	return *o, true
}

// Downloaded returns the number of assets fetched successfully.
func (r *Registry) Downloaded() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := 0
	for _, o := range r.entries {
		if o.Status == model.AssetFetched {
			n++
		}
	}
	return n
}

// Len returns the number of URLs claimed.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// Outcomes returns a snapshot of every outcome, sorted by URL.
func (r *Registry) Outcomes() []model.AssetOutcome {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]model.AssetOutcome, 0, len(r.entries))
	for _, o := range r.entries {
		out = append(out, *o)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].URL < out[j].URL })
	return out
}
