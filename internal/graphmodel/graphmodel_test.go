package graphmodel

import (
	"strings"
	"testing"

	"github.com/remotex-labs/xBuild-sub001/internal/langhost"
)

// fakeService maps a file path directly to declaration text; no real
// compiler backs it, matching the contract-only nature of LanguageService.
type fakeService struct {
	decls map[string]string
}

func (f *fakeService) GetProgram() langhost.Program { return nil }
func (f *fakeService) IsSourceFileFromExternalLibrary(string) bool { return false }
func (f *fakeService) GetEmitOutput(path string, emitOnlyDtsFiles bool) langhost.EmitOutput {
	text, ok := f.decls[path]
	if !ok {
		return langhost.EmitOutput{EmitSkipped: true}
	}
	return langhost.EmitOutput{OutputFiles: []langhost.OutputFile{{Name: path + ".d.ts", Text: text}}}
}
func (f *fakeService) GetSemanticDiagnostics(string) []langhost.Diagnostic   { return nil }
func (f *fakeService) GetSyntacticDiagnostics(string) []langhost.Diagnostic  { return nil }
func (f *fakeService) GetSuggestionDiagnostics(string) []langhost.Diagnostic { return nil }
func (f *fakeService) Dispose()                                             {}

func fakeHost(internal map[string]string) *HostView {
	versions := make(map[string]int)
	return NewHostView(
		func(p string) string { return p },
		func(p string) int { versions[p]++; return versions[p] },
		func(specifier, fromFile string) (string, bool) {
			resolved, ok := internal[specifier]
			return resolved, ok
		},
	)
}

func TestScan_ExportModifierStatement(t *testing.T) {
	ls := &fakeService{decls: map[string]string{
		"a.ts": "export const a: number;\nexport class Foo {\n}\n",
	}}
	host := fakeHost(nil)

	m := New()
	node := m.Scan("a.ts", ls, host)

	if len(node.InternalExports.Exports) != 2 {
		t.Fatalf("expected 2 exported names, got %v", node.InternalExports.Exports)
	}
	if strings.Contains(node.CleanedText, "export ") {
		t.Fatalf("expected export modifier stripped, got %q", node.CleanedText)
	}
}

func TestScan_StarReExportInternal(t *testing.T) {
	ls := &fakeService{decls: map[string]string{
		"index.ts": "export * from './utils';\n",
	}}
	host := fakeHost(map[string]string{"./utils": "utils.ts"})

	m := New()
	node := m.Scan("index.ts", ls, host)

	if len(node.InternalExports.Star) != 1 || node.InternalExports.Star[0] != "utils.ts" {
		t.Fatalf("expected star export of utils.ts, got %v", node.InternalExports.Star)
	}
	if _, ok := node.InternalDeps["utils.ts"]; !ok {
		t.Fatalf("expected utils.ts recorded as internal dep")
	}
}

func TestScan_ExternalNamedImport(t *testing.T) {
	ls := &fakeService{decls: map[string]string{
		"a.ts": "import { readFile, writeFile as wf } from 'fs';\n",
	}}
	host := fakeHost(nil)

	m := New()
	node := m.Scan("a.ts", ls, host)

	specs := node.ExternalImports.Named["fs"]
	if len(specs) != 2 || specs[0] != "readFile" || specs[1] != "writeFile as wf" {
		t.Fatalf("unexpected named import specs: %v", specs)
	}
}

func TestScan_ExternalNamespaceImport(t *testing.T) {
	ls := &fakeService{decls: map[string]string{
		"a.ts": "import * as path from 'path';\n",
	}}
	host := fakeHost(nil)

	m := New()
	node := m.Scan("a.ts", ls, host)

	if node.ExternalImports.Namespace["path"] != "path" {
		t.Fatalf("expected namespace import bound to 'path', got %v", node.ExternalImports.Namespace)
	}
}

func TestScan_ExportNamedFromExternal(t *testing.T) {
	ls := &fakeService{decls: map[string]string{
		"a.ts": "export { readFile, writeFile as wf } from 'fs';\n",
	}}
	host := fakeHost(nil)

	m := New()
	node := m.Scan("a.ts", ls, host)

	specs := node.ExternalExports.Named["fs"]
	if len(specs) != 2 {
		t.Fatalf("expected 2 external named re-exports, got %v", specs)
	}
}

func TestScan_CleanedTextHasNoImportOrExportFrom(t *testing.T) {
	ls := &fakeService{decls: map[string]string{
		"a.ts": "import { x } from 'fs';\nexport * from './utils';\nexport const y: number;\n",
	}}
	host := fakeHost(map[string]string{"./utils": "utils.ts"})

	m := New()
	node := m.Scan("a.ts", ls, host)

	for _, line := range strings.Split(node.CleanedText, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "import ") || strings.Contains(trimmed, " from ") {
			t.Fatalf("cleaned text retained hoisted statement: %q", line)
		}
	}
}

func TestScan_InternalNamespaceImportAliasStripped(t *testing.T) {
	ls := &fakeService{decls: map[string]string{
		"a.ts": "import * as ns from './utils';\nexport const y: number = ns.x;\n",
	}}
	host := fakeHost(map[string]string{"./utils": "utils.ts"})

	m := New()
	node := m.Scan("a.ts", ls, host)

	if _, ok := node.InternalDeps["utils.ts"]; !ok {
		t.Fatalf("expected utils.ts recorded as internal dep")
	}
	if strings.Contains(node.CleanedText, "ns.") {
		t.Fatalf("expected dangling ns. alias prefix stripped, got %q", node.CleanedText)
	}
}

func TestScan_CachesByVersion(t *testing.T) {
	ls := &fakeService{decls: map[string]string{"a.ts": "export const a: number;\n"}}
	// version func always returns 1 to simulate an unchanged snapshot.
	host := NewHostView(
		func(p string) string { return p },
		func(p string) int { return 1 },
		func(specifier, fromFile string) (string, bool) { return "", false },
	)

	m := New()
	first := m.Scan("a.ts", ls, host)
	second := m.Scan("a.ts", ls, host)
	if first != second {
		t.Fatalf("expected cached node to be reused when version is unchanged")
	}
}
