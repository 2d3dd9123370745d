package declbundler

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/remotex-labs/xBuild-sub001/internal/graphmodel"
	"github.com/remotex-labs/xBuild-sub001/internal/langhost"
)

type fakeService struct {
	decls map[string]string
}

func (f *fakeService) GetProgram() langhost.Program                         { return nil }
func (f *fakeService) IsSourceFileFromExternalLibrary(string) bool          { return false }
func (f *fakeService) GetSemanticDiagnostics(string) []langhost.Diagnostic   { return nil }
func (f *fakeService) GetSyntacticDiagnostics(string) []langhost.Diagnostic  { return nil }
func (f *fakeService) GetSuggestionDiagnostics(string) []langhost.Diagnostic { return nil }
func (f *fakeService) Dispose()                                             {}
func (f *fakeService) GetEmitOutput(path string, emitOnlyDtsFiles bool) langhost.EmitOutput {
	text, ok := f.decls[path]
	if !ok {
		return langhost.EmitOutput{EmitSkipped: true}
	}
	return langhost.EmitOutput{OutputFiles: []langhost.OutputFile{{Name: path, Text: text}}}
}

func fakeHost(internal map[string]string) *graphmodel.HostView {
	versions := make(map[string]int)
	return graphmodel.NewHostView(
		func(p string) string { return p },
		func(p string) int { versions[p]++; return versions[p] },
		func(specifier, fromFile string) (string, bool) {
			resolved, ok := internal[specifier]
			return resolved, ok
		},
	)
}

func TestBundler_StarReExport(t *testing.T) {
	ls := &fakeService{decls: map[string]string{
		"index.ts": "export * from './utils';\n",
		"utils.ts": "export const a: number;\nexport const b: number;\n",
	}}
	host := fakeHost(map[string]string{"./utils": "utils.ts"})

	b := New(graphmodel.New(), ls, host)
	out, err := b.bundleFor("index.ts")
	if err != nil {
		t.Fatalf("bundleFor: %v", err)
	}

	if strings.Count(out, "export { a, b };") != 1 {
		t.Fatalf("expected exactly one `export { a, b };`, got:\n%s", out)
	}
	for _, line := range strings.Split(out, "\n") {
		if strings.HasPrefix(strings.TrimSpace(line), "import ") && strings.Contains(line, "utils") {
			t.Fatalf("expected no internal import statements, found: %q", line)
		}
	}
}

func TestBundler_ExternalImportDedup(t *testing.T) {
	ls := &fakeService{decls: map[string]string{
		"index.ts": "import { readFile } from 'fs';\nexport * from './a';\n",
		"a.ts":     "import { writeFile } from 'fs';\nexport const x: number;\n",
	}}
	host := fakeHost(map[string]string{"./a": "a.ts"})

	b := New(graphmodel.New(), ls, host)
	out, err := b.bundleFor("index.ts")
	if err != nil {
		t.Fatalf("bundleFor: %v", err)
	}

	if strings.Count(out, `from "fs"`) != 1 {
		t.Fatalf("expected a single deduplicated import from \"fs\", got:\n%s", out)
	}
	if !strings.Contains(out, "readFile") || !strings.Contains(out, "writeFile") {
		t.Fatalf("expected both named imports merged, got:\n%s", out)
	}
}

func TestBundler_ExternalSideEffectImportPreserved(t *testing.T) {
	ls := &fakeService{decls: map[string]string{
		"index.ts": "import 'polyfill';\nexport const x: number;\n",
	}}
	host := fakeHost(nil)

	b := New(graphmodel.New(), ls, host)
	out, err := b.bundleFor("index.ts")
	if err != nil {
		t.Fatalf("bundleFor: %v", err)
	}

	if !strings.Contains(out, `import "polyfill";`) {
		t.Fatalf("expected side-effect import to survive bundling, got:\n%s", out)
	}
}

func TestBundler_WritesPerEntryFile(t *testing.T) {
	ls := &fakeService{decls: map[string]string{
		"index.ts": "export const a: number;\n",
	}}
	host := fakeHost(nil)

	dir := t.TempDir()
	b := New(graphmodel.New(), ls, host)
	if err := b.Emit(map[string]string{"bundle": "index.ts"}, dir); err != nil {
		t.Fatalf("Emit: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "bundle.d.ts")); err != nil {
		t.Fatalf("expected bundle.d.ts to be written: %v", err)
	}
}
