// Package langhost adapts FileCache into the interface a TypeScript-compatible
// language service expects of its host, and exposes the contract that
// consumes one back out (GraphModel, Emitter, Bundler all talk to a
// LanguageService, never to a concrete compiler).
//
// The real compiler behind LanguageService is deliberately out of scope here
// — this package only specifies the operations the rest of the system
// consumes, the same way tsgonest/internal/compiler narrows the real
// typescript-go compiler down to a handful of Go methods before anything
// else in that repo touches it.
package langhost

// Diagnostic is a single compiler/service diagnostic, independent of
// severity classification (see internal/diagnostic for that).
type Diagnostic struct {
	File    string
	Line    int
	Column  int
	Code    string
	Message string
}

// SourceFile is the minimal shape GraphModel/Emitter/Bundler need from a
// program's source file.
type SourceFile struct {
	Path              string
	IsDeclarationFile bool
}

// Program is the subset of ts.Program this system depends on.
type Program interface {
	GetSourceFile(path string) (SourceFile, bool)
	GetSourceFiles() []SourceFile
}

// OutputFile is one file produced by an emit.
type OutputFile struct {
	Name string
	Text string
}

// EmitOutput is the result of LanguageService.GetEmitOutput.
type EmitOutput struct {
	EmitSkipped bool
	OutputFiles []OutputFile
}

// LanguageService is the external contract consumed by GraphModel, Emitter,
// and Bundler (spec §6). No component in this repo implements it against a
// real compiler; internal/langhost/fake provides the in-memory double used
// by tests and by driver.DefaultServiceFactory, which cmd/xbuild uses.
type LanguageService interface {
	GetProgram() Program
	IsSourceFileFromExternalLibrary(path string) bool
	GetEmitOutput(path string, emitOnlyDtsFiles bool) EmitOutput
	GetSemanticDiagnostics(path string) []Diagnostic
	GetSyntacticDiagnostics(path string) []Diagnostic
	GetSuggestionDiagnostics(path string) []Diagnostic
	Dispose()
}
