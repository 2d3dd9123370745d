// Package emitter emits one declaration file per source file known to the
// language service, independent of the declaration bundler: every
// non-declaration, non-external-library source gets its own {outDir}-rooted
// .d.ts, alias-rewritten, written atomically, and tracked in a process-wide
// version map so concurrent variants sharing a language service never emit
// the same output path twice for the same version.
package emitter

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/remotex-labs/xBuild-sub001/internal/langhost"
)

// versionMap is process-global and append-only per output path, per spec
// §4.4/§5: "The Emitter's version map is process-global and append-only per
// output path," shared across every Emitter instance so variants pointed at
// the same language service never duplicate work.
var (
	versionMapMu sync.Mutex
	versionMap   = make(map[string]int)
)

// ResetVersionMap clears the process-global emitted-version map. Exposed
// only for tests; production code never needs to reset it.
func ResetVersionMap() {
	versionMapMu.Lock()
	defer versionMapMu.Unlock()
	versionMap = make(map[string]int)
}

// Host is the subset of langhost.Host the Emitter depends on.
type Host interface {
	GetCompilationSettings() langhost.CompilerOptions
	GetScriptFileNames() []string
	GetScriptVersion(path string) string
	ResolveAliases(text, fromFile, extensionOverride string) string
}

// Emitter writes declaration output for every tracked, emittable source
// file known to a language service.
type Emitter struct {
	ls   langhost.LanguageService
	host Host
}

// New creates an Emitter backed by ls and host.
func New(ls langhost.LanguageService, host Host) *Emitter {
	return &Emitter{ls: ls, host: host}
}

// Emit runs the emit pass. outDirOverride, when non-empty, takes precedence
// over compilerOptions.OutDir, which in turn takes precedence over "dist".
func (e *Emitter) Emit(outDirOverride string) error {
	outDir := resolveOutDir(outDirOverride, e.host.GetCompilationSettings().OutDir)

	program := e.ls.GetProgram()

	names := e.host.GetScriptFileNames()
	sort.Strings(names)

	for _, path := range names {
		sf, ok := program.GetSourceFile(path)
		if ok && sf.IsDeclarationFile {
			continue
		}
		if e.ls.IsSourceFileFromExternalLibrary(path) {
			continue
		}

		outPath := outputPathFor(path, outDir)
		version := scriptVersionInt(e.host.GetScriptVersion(path))

		if emittedAt, ok := lookupVersion(outPath); ok && emittedAt == version {
			continue
		}

		out := e.ls.GetEmitOutput(path, true)
		if out.EmitSkipped || len(out.OutputFiles) == 0 {
			continue
		}

		text := out.OutputFiles[0].Text
		text = e.host.ResolveAliases(text, path, ".d.ts")

		if err := writeAtomic(outPath, text); err != nil {
			return fmt.Errorf("emitting declaration for %s: %w", path, err)
		}
		storeVersion(outPath, version)
	}

	return nil
}

func resolveOutDir(override, configured string) string {
	if override != "" {
		return override
	}
	if configured != "" {
		return configured
	}
	return "dist"
}

func outputPathFor(sourcePath, outDir string) string {
	base := strings.TrimSuffix(filepath.Base(sourcePath), filepath.Ext(sourcePath))
	return filepath.Join(outDir, base+".d.ts")
}

func scriptVersionInt(v string) int {
	n := 0
	for _, c := range v {
		if c < '0' || c > '9' {
			return n
		}
		n = n*10 + int(c-'0')
	}
	return n
}

func lookupVersion(outPath string) (int, bool) {
	versionMapMu.Lock()
	defer versionMapMu.Unlock()
	v, ok := versionMap[outPath]
	return v, ok
}

func storeVersion(outPath string, version int) {
	versionMapMu.Lock()
	defer versionMapMu.Unlock()
	versionMap[outPath] = version
}

func writeAtomic(path, content string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, []byte(content), 0644); err != nil {
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return err
	}
	return nil
}
