// Package variant implements the VariantOrchestrator and the shared
// language-service registry it acquires from (spec §4.7/§4.8): one
// orchestrator per named build variant, coordinating a LifecycleHub-driven
// esbuild build with type-checking and declaration emission, and
// refcounting the (possibly shared) language service backing each.
package variant

import (
	"fmt"
	"sync"

	"github.com/remotex-labs/xBuild-sub001/internal/graphmodel"
	"github.com/remotex-labs/xBuild-sub001/internal/langhost"
)

// ServiceFactory builds the language-service stack for one tsconfig path.
// No component in this repository implements it against a real compiler
// (langhost's own package doc names that out of scope); both the tests and
// cmd/xbuild (through driver.DefaultServiceFactory) supply one backed by
// langhost/fake.
type ServiceFactory func(tsconfigPath string) (*langhost.Host, langhost.LanguageService, error)

// SharedEntry is a SharedLanguageServiceEntry (spec §4's glossary): the
// refcounted bundle of host, language service, declaration-graph model, and
// host view every VariantOrchestrator sharing a tsconfig path operates
// against.
type SharedEntry struct {
	TsconfigPath string
	Host         *langhost.Host
	LS           langhost.LanguageService
	HostView     *graphmodel.HostView
	Model        *graphmodel.Model

	refCount int
}

// ServiceRegistry owns every SharedEntry currently in use, keyed by
// tsconfig path (the empty string is a valid key: the variant using no
// tsconfig at all).
type ServiceRegistry struct {
	factory ServiceFactory

	mu      sync.Mutex
	entries map[string]*SharedEntry
}

// NewServiceRegistry creates a ServiceRegistry that builds new entries via
// factory.
func NewServiceRegistry(factory ServiceFactory) *ServiceRegistry {
	return &ServiceRegistry{factory: factory, entries: make(map[string]*SharedEntry)}
}

// Acquire attaches to the SharedEntry for tsconfigPath, creating it (via the
// registry's factory) on first use, and incrementing its refcount.
func (r *ServiceRegistry) Acquire(tsconfigPath string) (*SharedEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if entry, ok := r.entries[tsconfigPath]; ok {
		entry.refCount++
		return entry, nil
	}

	host, ls, err := r.factory(tsconfigPath)
	if err != nil {
		return nil, fmt.Errorf("variant: building language service for tsconfig %q: %w", tsconfigPath, err)
	}

	entry := &SharedEntry{
		TsconfigPath: tsconfigPath,
		Host:         host,
		LS:           ls,
		HostView:     graphmodel.NewHostView(host.Resolve, host.ScriptVersionInt, host.ResolveModuleFileName),
		Model:        graphmodel.New(),
		refCount:     1,
	}
	r.entries[tsconfigPath] = entry
	return entry, nil
}

// Release decrements tsconfigPath's SharedEntry refcount, disposing the
// language service and dropping the entry once it reaches zero. Releasing a
// tsconfig path with no live entry is a no-op.
func (r *ServiceRegistry) Release(tsconfigPath string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.entries[tsconfigPath]
	if !ok {
		return
	}
	entry.refCount--
	if entry.refCount <= 0 {
		entry.LS.Dispose()
		delete(r.entries, tsconfigPath)
	}
}

// RefCount reports tsconfigPath's current refcount (0 if not attached).
// Exposed for tests verifying the dispose-at-zero invariant.
func (r *ServiceRegistry) RefCount(tsconfigPath string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if entry, ok := r.entries[tsconfigPath]; ok {
		return entry.refCount
	}
	return 0
}
