// Package loader implements the Route Registry Loader (spec §4.4).
//
// The Python original enumerates a directory at runtime and imports
// whatever files it finds there. A compiled Go binary cannot do that: its
// set of route-definition files is fixed at link time. Per spec §9's
// design note, this is re-architected as a link-time registry — each
// route-definition file (a small package blank-imported by cmd/routemq or
// by a worker entry point) calls loader.Register(name, fn) from its own
// init(), and Load replays those registrations in the alphabetical order
// of their registered names, which stands in for "the directory's file
// names."
//
// A registration that panics or returns an error is treated as
// LoaderFailure: it is logged and skipped, and every other registration
// still loads. The resulting table's route order is the alphabetical
// order of the registered names, with each file's own internal
// registration order preserved.
package loader

import (
	"fmt"
	"sort"
	"sync"

	"github.com/routemq/routemq/core"
)

// RegisterFunc defines routes on table (directly, or through a group
// table.Group(...) creates). It is invoked once per Load call.
type RegisterFunc func(table *core.RouteTable) error

// Registry accumulates named RegisterFuncs, one per route-definition
// file, and merges them into a single RouteTable on Load.
type Registry struct {
	mu    sync.Mutex
	funcs map[string]RegisterFunc
}

// NewRegistry returns an empty Registry. Most programs use the
// process-wide default Registry via the package-level Register/Load
// instead of constructing one directly, but an explicit Registry is
// available so tests can avoid the shared global (spec §9's "forbid
// hidden globals" note, applied here too).
func NewRegistry() *Registry {
	return &Registry{funcs: make(map[string]RegisterFunc)}
}

// Register adds fn under name. Calling Register twice with the same name
// replaces the earlier registration — route-definition files are expected
// to register exactly once from init().
func (r *Registry) Register(name string, fn RegisterFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.funcs[name] = fn
}

// LoadResult reports the outcome of loading one named registration.
type LoadResult struct {
	Name string
	Err  error
}

// Load invokes every registered RegisterFunc, in alphabetical order of
// name, against a shared RouteTable. A registration whose fn returns an
// error, or panics, is recorded as a failed LoadResult and skipped — it
// never aborts the remaining registrations. The returned RouteTable holds
// the routes from every registration that succeeded.
func (r *Registry) Load() (*core.RouteTable, []LoadResult) {
	r.mu.Lock()
	names := make([]string, 0, len(r.funcs))
	for name := range r.funcs {
		names = append(names, name)
	}
	funcs := make(map[string]RegisterFunc, len(r.funcs))
	for k, v := range r.funcs {
		funcs[k] = v
	}
	r.mu.Unlock()

	sort.Strings(names)

	table := core.NewRouteTable()
	results := make([]LoadResult, 0, len(names))
	for _, name := range names {
		err := loadOne(name, funcs[name], table)
		results = append(results, LoadResult{Name: name, Err: err})
	}
	return table, results
}

func loadOne(name string, fn RegisterFunc, table *core.RouteTable) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("routemq/loader: %s panicked: %v", name, r)
		}
	}()
	if fnErr := fn(table); fnErr != nil {
		return fmt.Errorf("routemq/loader: %s: %w", name, fnErr)
	}
	return nil
}

// Names returns the currently registered names, unsorted, mostly useful
// for diagnostics.
func (r *Registry) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.funcs))
	for name := range r.funcs {
		out = append(out, name)
	}
	return out
}

// Default is the process-wide Registry route-definition files register
// against from their init() functions.
var Default = NewRegistry()

// Register adds fn under name to the Default registry.
func Register(name string, fn RegisterFunc) { Default.Register(name, fn) }

// Load builds a RouteTable from the Default registry.
func Load() (*core.RouteTable, []LoadResult) { return Default.Load() }
