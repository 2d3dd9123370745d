package variant

import (
	"testing"

	"github.com/remotex-labs/xBuild-sub001/internal/filecache"
	"github.com/remotex-labs/xBuild-sub001/internal/langhost"
	"github.com/remotex-labs/xBuild-sub001/internal/langhost/fake"
)

func newTestFactory(t *testing.T) (ServiceFactory, map[string]*fake.Service) {
	t.Helper()
	services := make(map[string]*fake.Service)
	factory := func(tsconfigPath string) (*langhost.Host, langhost.LanguageService, error) {
		host := langhost.New(filecache.New(), t.TempDir())
		svc := fake.New()
		services[tsconfigPath] = svc
		return host, svc, nil
	}
	return factory, services
}

func TestServiceRegistryRefCounting(t *testing.T) {
	factory, services := newTestFactory(t)
	registry := NewServiceRegistry(factory)

	a, err := registry.Acquire("tsconfig.a.json")
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if registry.RefCount("tsconfig.a.json") != 1 {
		t.Fatalf("expected refcount 1 after first acquire")
	}

	b, err := registry.Acquire("tsconfig.a.json")
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if a != b {
		t.Fatalf("expected the same SharedEntry on repeated acquire of the same path")
	}
	if registry.RefCount("tsconfig.a.json") != 2 {
		t.Fatalf("expected refcount 2 after second acquire")
	}

	registry.Release("tsconfig.a.json")
	if registry.RefCount("tsconfig.a.json") != 1 {
		t.Fatalf("expected refcount 1 after first release")
	}
	if services["tsconfig.a.json"].Disposed {
		t.Fatalf("service disposed too early")
	}

	registry.Release("tsconfig.a.json")
	if registry.RefCount("tsconfig.a.json") != 0 {
		t.Fatalf("expected refcount 0 after second release")
	}
	if !services["tsconfig.a.json"].Disposed {
		t.Fatalf("expected service to be disposed once refcount reached zero")
	}
}

func TestServiceRegistryDistinctPathsGetDistinctEntries(t *testing.T) {
	factory, _ := newTestFactory(t)
	registry := NewServiceRegistry(factory)

	a, err := registry.Acquire("a.json")
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	b, err := registry.Acquire("b.json")
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if a == b {
		t.Fatalf("expected distinct tsconfig paths to get distinct entries")
	}
}
