package emitter

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/remotex-labs/xBuild-sub001/internal/langhost"
)

type fakeProgram struct {
	files map[string]langhost.SourceFile
}

func (p *fakeProgram) GetSourceFile(path string) (langhost.SourceFile, bool) {
	sf, ok := p.files[path]
	return sf, ok
}
func (p *fakeProgram) GetSourceFiles() []langhost.SourceFile {
	out := make([]langhost.SourceFile, 0, len(p.files))
	for _, sf := range p.files {
		out = append(out, sf)
	}
	return out
}

type fakeService struct {
	program  *fakeProgram
	external map[string]bool
	decls    map[string]string
}

func (f *fakeService) GetProgram() langhost.Program                { return f.program }
func (f *fakeService) IsSourceFileFromExternalLibrary(p string) bool { return f.external[p] }
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

type fakeHost struct {
	names    []string
	versions map[string]string
}

func (h *fakeHost) GetCompilationSettings() langhost.CompilerOptions { return langhost.CompilerOptions{} }
func (h *fakeHost) GetScriptFileNames() []string                     { return h.names }
func (h *fakeHost) GetScriptVersion(path string) string              { return h.versions[path] }
func (h *fakeHost) ResolveAliases(text, fromFile, ext string) string { return text }

func TestEmitter_WritesOncePerVersion(t *testing.T) {
	ResetVersionMap()
	dir := t.TempDir()

	program := &fakeProgram{files: map[string]langhost.SourceFile{
		"a.ts": {Path: "a.ts"},
	}}
	ls := &fakeService{program: program, decls: map[string]string{"a.ts": "export const a: number;\n"}}
	host := &fakeHost{names: []string{"a.ts"}, versions: map[string]string{"a.ts": "1"}}

	e := New(ls, host)
	if err := e.Emit(dir); err != nil {
		t.Fatalf("Emit: %v", err)
	}

	outPath := filepath.Join(dir, "a.d.ts")
	if _, err := os.Stat(outPath); err != nil {
		t.Fatalf("expected %s to exist: %v", outPath, err)
	}

	if err := os.Remove(outPath); err != nil {
		t.Fatalf("remove: %v", err)
	}

	// Same version again: should be skipped (version map already has it).
	if err := e.Emit(dir); err != nil {
		t.Fatalf("second Emit: %v", err)
	}
	if _, err := os.Stat(outPath); err == nil {
		t.Fatalf("expected second emit at same version to be skipped, but file exists")
	}
}

func TestEmitter_SkipsDeclarationFiles(t *testing.T) {
	ResetVersionMap()
	dir := t.TempDir()

	program := &fakeProgram{files: map[string]langhost.SourceFile{
		"a.d.ts": {Path: "a.d.ts", IsDeclarationFile: true},
	}}
	ls := &fakeService{program: program, decls: map[string]string{"a.d.ts": "export const a: number;\n"}}
	host := &fakeHost{names: []string{"a.d.ts"}, versions: map[string]string{"a.d.ts": "1"}}

	e := New(ls, host)
	if err := e.Emit(dir); err != nil {
		t.Fatalf("Emit: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "a.d.ts")); err == nil {
		t.Fatalf("expected declaration file to be skipped")
	}
}

func TestEmitter_SkipsExternalLibrary(t *testing.T) {
	ResetVersionMap()
	dir := t.TempDir()

	program := &fakeProgram{files: map[string]langhost.SourceFile{"node_modules/x.ts": {Path: "node_modules/x.ts"}}}
	ls := &fakeService{program: program, external: map[string]bool{"node_modules/x.ts": true}, decls: map[string]string{"node_modules/x.ts": "export const x: number;\n"}}
	host := &fakeHost{names: []string{"node_modules/x.ts"}, versions: map[string]string{"node_modules/x.ts": "1"}}

	e := New(ls, host)
	if err := e.Emit(dir); err != nil {
		t.Fatalf("Emit: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "x.d.ts")); err == nil {
		t.Fatalf("expected external library file to be skipped")
	}
}
