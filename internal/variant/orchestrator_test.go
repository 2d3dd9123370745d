package variant

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/remotex-labs/xBuild-sub001/internal/config"
	"github.com/remotex-labs/xBuild-sub001/internal/lifecycle"
)

func writeEntryFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatalf("writing %s: %v", path, err)
	}
	return path
}

func TestOrchestratorBuildWritesOutputAndPackageJSON(t *testing.T) {
	srcDir := t.TempDir()
	outDir := t.TempDir()
	entry := writeEntryFile(t, srcDir, "index.ts", "export const answer: number = 42;\n")

	factory, _ := newTestFactory(t)
	registry := NewServiceRegistry(factory)
	hub := lifecycle.New("test")

	merged := config.VariantBuild{
		Esbuild: config.EsbuildOptions{
			EntryPoints: map[string]string{"index": entry},
			Outdir:      outDir,
			Format:      "esm",
		},
	}

	o, err := New("dev", registry, hub, merged, nil, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer o.Dispose()

	result, err := o.Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if result == nil {
		t.Fatalf("expected a non-nil result for an active variant")
	}
	if len(result.Errors) != 0 {
		t.Fatalf("unexpected build errors: %+v", result.Errors)
	}

	if _, err := os.Stat(filepath.Join(outDir, "index.js")); err != nil {
		t.Fatalf("expected index.js to be written: %v", err)
	}

	pkgBody, err := os.ReadFile(filepath.Join(outDir, "package.json"))
	if err != nil {
		t.Fatalf("expected package.json to be written: %v", err)
	}
	if !strings.Contains(string(pkgBody), `"module"`) {
		t.Fatalf("expected package.json type=module for esm format, got %s", pkgBody)
	}
}

func TestOrchestratorBuildRunsMacroEngineOnLoad(t *testing.T) {
	srcDir := t.TempDir()
	outDir := t.TempDir()
	entry := writeEntryFile(t, srcDir, "index.ts", "const $$log = $$ifdef(\"DEBUG\", () => 1);\n$$log();\n")

	factory, _ := newTestFactory(t)
	registry := NewServiceRegistry(factory)
	hub := lifecycle.New("test")

	merged := config.VariantBuild{
		Esbuild: config.EsbuildOptions{
			EntryPoints: map[string]string{"index": entry},
			Outdir:      outDir,
			Format:      "esm",
		},
		Define: map[string]any{"DEBUG": false},
	}

	o, err := New("dev", registry, hub, merged, nil, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer o.Dispose()

	if _, err := o.Build(); err != nil {
		t.Fatalf("Build: %v", err)
	}

	out, err := os.ReadFile(filepath.Join(outDir, "index.js"))
	if err != nil {
		t.Fatalf("reading bundled output: %v", err)
	}
	if strings.Contains(string(out), "$$ifdef") {
		t.Fatalf("expected the macro call to be rewritten before bundling, got:\n%s", out)
	}
}

func TestOrchestratorBuildReturnsNilWhenInactive(t *testing.T) {
	srcDir := t.TempDir()
	entry := writeEntryFile(t, srcDir, "index.ts", "export const x = 1;\n")

	factory, _ := newTestFactory(t)
	registry := NewServiceRegistry(factory)
	hub := lifecycle.New("test")

	merged := config.VariantBuild{
		Esbuild: config.EsbuildOptions{EntryPoints: map[string]string{"index": entry}, Outdir: t.TempDir()},
	}
	o, err := New("dev", registry, hub, merged, nil, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer o.Dispose()

	o.HandleConfigChange(configPair{HasVariant: false})

	result, err := o.Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if result != nil {
		t.Fatalf("expected a nil result once the variant is inactive, got %+v", result)
	}
}

func TestNewRejectsEmptyEntryPoints(t *testing.T) {
	factory, _ := newTestFactory(t)
	registry := NewServiceRegistry(factory)
	hub := lifecycle.New("test")

	_, err := New("dev", registry, hub, config.VariantBuild{}, nil, nil)
	if err == nil {
		t.Fatalf("expected an error for empty entryPoints")
	}
}

func TestHandleConfigChangeSwapsSharedEntryOnTsconfigChange(t *testing.T) {
	srcDir := t.TempDir()
	entry := writeEntryFile(t, srcDir, "index.ts", "export const x = 1;\n")

	factory, _ := newTestFactory(t)
	registry := NewServiceRegistry(factory)
	hub := lifecycle.New("test")

	merged := config.VariantBuild{
		Esbuild: config.EsbuildOptions{EntryPoints: map[string]string{"index": entry}, Tsconfig: "a.json"},
	}
	o, err := New("dev", registry, hub, merged, nil, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer o.Dispose()

	if registry.RefCount("a.json") != 1 {
		t.Fatalf("expected a.json refcount 1")
	}

	o.HandleConfigChange(configPair{
		HasVariant: true,
		Variant:    config.VariantBuild{Esbuild: config.EsbuildOptions{EntryPoints: map[string]string{"index": entry}, Tsconfig: "b.json"}},
	})

	if registry.RefCount("a.json") != 0 {
		t.Fatalf("expected a.json released down to refcount 0, got %d", registry.RefCount("a.json"))
	}
	if registry.RefCount("b.json") != 1 {
		t.Fatalf("expected b.json acquired at refcount 1, got %d", registry.RefCount("b.json"))
	}
}
