// Package fake provides an in-memory double of langhost.LanguageService,
// the way tsgonest/internal/compiler narrows the real typescript-go
// compiler down to a handful of Go methods before anything else touches it
// (langservice.go's own package doc makes the same comparison). Nothing in
// this repository implements LanguageService against a real
// TypeScript-compatible compiler — that's the one external collaborator
// spec §1 names as out of scope — so this double is what the variant
// orchestrator's and driver's test suites build builds against.
package fake

import (
	"sort"
	"strings"

	"github.com/remotex-labs/xBuild-sub001/internal/langhost"
)

// Service maps source paths directly to pre-baked declaration text and
// diagnostics; no parsing or type-checking happens here.
type Service struct {
	Decls       map[string]string // path -> emitted declaration text
	External    map[string]bool   // path -> from an external library
	Diagnostics map[string][]langhost.Diagnostic
	Disposed    bool
}

// New creates an empty Service.
func New() *Service {
	return &Service{
		Decls:       make(map[string]string),
		External:    make(map[string]bool),
		Diagnostics: make(map[string][]langhost.Diagnostic),
	}
}

// WithDecl registers path's declaration text, fluently.
func (s *Service) WithDecl(path, text string) *Service {
	s.Decls[path] = text
	return s
}

// WithDiagnostic appends a diagnostic for path, fluently.
func (s *Service) WithDiagnostic(path string, d langhost.Diagnostic) *Service {
	s.Diagnostics[path] = append(s.Diagnostics[path], d)
	return s
}

type program struct{ s *Service }

func (p *program) GetSourceFile(path string) (langhost.SourceFile, bool) {
	_, ok := p.s.Decls[path]
	if !ok {
		return langhost.SourceFile{}, false
	}
	return langhost.SourceFile{Path: path, IsDeclarationFile: strings.HasSuffix(path, ".d.ts")}, true
}

func (p *program) GetSourceFiles() []langhost.SourceFile {
	paths := make([]string, 0, len(p.s.Decls))
	for path := range p.s.Decls {
		paths = append(paths, path)
	}
	sort.Strings(paths)
	out := make([]langhost.SourceFile, 0, len(paths))
	for _, path := range paths {
		out = append(out, langhost.SourceFile{Path: path, IsDeclarationFile: strings.HasSuffix(path, ".d.ts")})
	}
	return out
}

// GetProgram returns the minimal Program view over this Service's decls.
func (s *Service) GetProgram() langhost.Program { return &program{s: s} }

// IsSourceFileFromExternalLibrary reports the path's External flag.
func (s *Service) IsSourceFileFromExternalLibrary(path string) bool { return s.External[path] }

// GetEmitOutput returns the registered declaration text for path, or a
// skipped emit if none was registered.
func (s *Service) GetEmitOutput(path string, emitOnlyDtsFiles bool) langhost.EmitOutput {
	text, ok := s.Decls[path]
	if !ok {
		return langhost.EmitOutput{EmitSkipped: true}
	}
	return langhost.EmitOutput{OutputFiles: []langhost.OutputFile{{Name: path + ".d.ts", Text: text}}}
}

// GetSemanticDiagnostics returns every registered diagnostic for path.
func (s *Service) GetSemanticDiagnostics(path string) []langhost.Diagnostic { return s.Diagnostics[path] }

// GetSyntacticDiagnostics always returns none; this double has no parser.
func (s *Service) GetSyntacticDiagnostics(path string) []langhost.Diagnostic { return nil }

// GetSuggestionDiagnostics always returns none; this double has no checker.
func (s *Service) GetSuggestionDiagnostics(path string) []langhost.Diagnostic { return nil }

// Dispose records that the service was torn down.
func (s *Service) Dispose() { s.Disposed = true }
