package driver

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/remotex-labs/xBuild-sub001/internal/filecache"
	"github.com/remotex-labs/xBuild-sub001/internal/langhost"
	"github.com/remotex-labs/xBuild-sub001/internal/langhost/fake"
	"github.com/remotex-labs/xBuild-sub001/internal/variant"
)

func fakeFactory(t *testing.T) variant.ServiceFactory {
	t.Helper()
	return func(tsconfigPath string) (*langhost.Host, langhost.LanguageService, error) {
		return langhost.New(filecache.New(), t.TempDir()), fake.New(), nil
	}
}

func writeConfig(t *testing.T, dir, entry string) string {
	t.Helper()
	path := filepath.Join(dir, "xbuild.config.json")
	body := `{
		"common": {"esbuild": {"format": "esm"}},
		"variants": {
			"dev": {"esbuild": {"entryPoints": {"index": "` + entry + `"}, "outdir": "` + filepath.Join(dir, "out") + `"}}
		}
	}`
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatalf("writing config: %v", err)
	}
	return path
}

func TestNewBuildsOneOrchestratorPerVariant(t *testing.T) {
	dir := t.TempDir()
	entry := filepath.Join(dir, "index.ts")
	if err := os.WriteFile(entry, []byte("export const x = 1;\n"), 0644); err != nil {
		t.Fatalf("writing entry: %v", err)
	}

	cfgPath := writeConfig(t, dir, entry)

	d, err := New(cfgPath, fakeFactory(t), nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer d.Dispose()

	if len(d.names) != 1 || d.names[0] != "dev" {
		t.Fatalf("expected a single dev variant, got %v", d.names)
	}

	results, err := d.BuildAll(context.Background())
	if err != nil {
		t.Fatalf("BuildAll: %v", err)
	}
	res, ok := results["dev"]
	if !ok || res == nil {
		t.Fatalf("expected a build result for dev, got %+v", results)
	}
	if len(res.Errors) != 0 {
		t.Fatalf("unexpected build errors: %+v", res.Errors)
	}

	if _, err := os.Stat(filepath.Join(dir, "out", "index.js")); err != nil {
		t.Fatalf("expected index.js to be written: %v", err)
	}
}

func TestReloadRepublishesConfig(t *testing.T) {
	dir := t.TempDir()
	entry := filepath.Join(dir, "index.ts")
	if err := os.WriteFile(entry, []byte("export const x = 1;\n"), 0644); err != nil {
		t.Fatalf("writing entry: %v", err)
	}
	cfgPath := writeConfig(t, dir, entry)

	d, err := New(cfgPath, fakeFactory(t), nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer d.Dispose()

	// Rewrite the config with a different tsconfig for dev and reload; the
	// subscribed Orchestrator should swap its SharedEntry without error.
	body := `{
		"common": {"esbuild": {"format": "esm"}},
		"variants": {
			"dev": {"esbuild": {"entryPoints": {"index": "` + entry + `"}, "outdir": "` + filepath.Join(dir, "out") + `", "tsconfig": "b.json"}}
		}
	}`
	if err := os.WriteFile(cfgPath, []byte(body), 0644); err != nil {
		t.Fatalf("rewriting config: %v", err)
	}

	if err := d.Reload(cfgPath); err != nil {
		t.Fatalf("Reload: %v", err)
	}

	if d.registry.RefCount("b.json") != 1 {
		t.Fatalf("expected dev's orchestrator to have swapped onto tsconfig b.json")
	}
}

func TestDefaultServiceFactoryBuildsHostAndFakeService(t *testing.T) {
	factory := DefaultServiceFactory(t.TempDir())
	host, ls, err := factory("tsconfig.json")
	if err != nil {
		t.Fatalf("factory: %v", err)
	}
	if host == nil || ls == nil {
		t.Fatalf("expected a non-nil host and language service")
	}
}
