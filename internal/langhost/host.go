package langhost

import (
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/remotex-labs/xBuild-sub001/internal/filecache"
)

// CompilerOptions is the subset of tsconfig compilerOptions this system
// cares about: enough to drive module resolution and alias rewriting.
type CompilerOptions struct {
	BaseURL string
	RootDir string
	OutDir  string
	Paths   map[string][]string // alias pattern -> target paths, e.g. "@app/*" -> ["src/*"]
	Target  string
	Lib     []string
}

// Host implements the interface a language service consumes of its host:
// file existence/reads, directory listing, script versions/snapshots, and
// module resolution. It owns a trackedSet of files the language service has
// been told about, a resolution cache, and an alias regex derived from
// compilerOptions.paths.
type Host struct {
	cache *filecache.Cache
	cwd   string

	mu           sync.Mutex
	tracked      map[string]struct{}
	options      CompilerOptions
	aliasRegex   *regexp.Regexp
	resolveCache map[string]*string // "specifier|containingFile" -> resolved absolute path (nil = unresolved)
}

// New creates a Host backed by cache, rooted at cwd.
func New(cache *filecache.Cache, cwd string) *Host {
	h := &Host{
		cache:        cache,
		cwd:          cwd,
		tracked:      make(map[string]struct{}),
		resolveCache: make(map[string]*string),
	}
	return h
}

// FileExists reports whether path exists on disk.
func (h *Host) FileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// ReadFile returns the tracked (or freshly touched) content of path.
func (h *Host) ReadFile(path string) (string, bool) {
	snap := h.cache.GetOrTouch(path)
	if snap.Content == nil {
		return "", false
	}
	return *snap.Content, true
}

// ReadDirectory lists files under dir matching any of extensions, honoring
// excludes/includes glob patterns (matched against each file's base name)
// the same coarse way please_js's
// watchFiles walker skips node_modules and dotfiles.
func (h *Host) ReadDirectory(dir string, extensions []string, excludes, includes []string) []string {
	var out []string
	_ = filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil
		}
		if info.IsDir() {
			name := info.Name()
			if strings.HasPrefix(name, ".") || name == "node_modules" {
				return filepath.SkipDir
			}
			return nil
		}
		if !matchesExtension(path, extensions) {
			return nil
		}
		if matchesAny(path, excludes) {
			return nil
		}
		if len(includes) > 0 && !matchesAny(path, includes) {
			return nil
		}
		out = append(out, path)
		return nil
	})
	sort.Strings(out)
	return out
}

func matchesExtension(path string, extensions []string) bool {
	if len(extensions) == 0 {
		return true
	}
	ext := filepath.Ext(path)
	for _, e := range extensions {
		if ext == e {
			return true
		}
	}
	return false
}

func matchesAny(path string, patterns []string) bool {
	for _, p := range patterns {
		if ok, _ := filepath.Match(p, filepath.Base(path)); ok {
			return true
		}
	}
	return false
}

// GetDirectories lists immediate subdirectories of dir.
func (h *Host) GetDirectories(dir string) []string {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}
	var dirs []string
	for _, e := range entries {
		if e.IsDir() {
			dirs = append(dirs, e.Name())
		}
	}
	return dirs
}

// DirectoryExists reports whether dir exists and is a directory.
func (h *Host) DirectoryExists(dir string) bool {
	info, err := os.Stat(dir)
	return err == nil && info.IsDir()
}

// GetCurrentDirectory returns the host's working directory.
func (h *Host) GetCurrentDirectory() string {
	return h.cwd
}

// GetDefaultLibFileName resolves the default lib file name for options.
// The actual lib file contents are supplied by the language service, not
// this host; this is purely a name lookup.
func (h *Host) GetDefaultLibFileName(options CompilerOptions) string {
	if options.Target == "" {
		return "lib.d.ts"
	}
	return "lib." + strings.ToLower(options.Target) + ".d.ts"
}

// GetScriptFileNames returns every file the language service has been told
// about via TouchFile/TouchFiles.
func (h *Host) GetScriptFileNames() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]string, 0, len(h.tracked))
	for p := range h.tracked {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// GetCompilationSettings returns the current compiler options.
func (h *Host) GetCompilationSettings() CompilerOptions {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.options
}

// GetScriptVersion returns the current FileCache version for path, as a
// string (the shape the language service expects for version comparisons).
func (h *Host) GetScriptVersion(path string) string {
	snap := h.cache.GetOrTouch(path)
	return versionString(snap.Version)
}

// ScriptVersionInt is GetScriptVersion without the string-encoding step,
// for callers (graphmodel's HostView) that key a cache by the raw integer
// version rather than the language-service-facing string form.
func (h *Host) ScriptVersionInt(path string) int {
	return h.cache.GetOrTouch(path).Version
}

// Resolve normalizes path the same way the backing FileCache does, so
// callers outside this package (graphmodel's HostView, the variant
// orchestrator) key their own caches consistently with FileCache's notion of
// a file's identity.
func (h *Host) Resolve(path string) string {
	return h.cache.Resolve(path)
}

func versionString(v int) string {
	const digits = "0123456789"
	if v == 0 {
		return "0"
	}
	buf := make([]byte, 0, 4)
	for v > 0 {
		buf = append([]byte{digits[v%10]}, buf...)
		v /= 10
	}
	return string(buf)
}

// GetScriptSnapshot returns the tracked content of path, if any.
func (h *Host) GetScriptSnapshot(path string) (string, bool) {
	return h.ReadFile(path)
}

// HasScriptSnapshot reports whether path is currently tracked.
func (h *Host) HasScriptSnapshot(path string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	_, ok := h.tracked[path]
	return ok
}

// TouchFile adds path to the tracked set and ensures FileCache has a
// snapshot for it.
func (h *Host) TouchFile(path string) {
	abs := h.cache.Resolve(path)
	h.mu.Lock()
	h.tracked[abs] = struct{}{}
	h.mu.Unlock()
	h.cache.Touch(abs)
}

// TouchFiles touches every path in paths.
func (h *Host) TouchFiles(paths []string) {
	for _, p := range paths {
		h.TouchFile(p)
	}
}

// SetOptions replaces the compiler options, regenerating the alias regex and
// clearing the resolution cache (a path alias change invalidates any cached
// resolution).
func (h *Host) SetOptions(options CompilerOptions) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.options = options
	h.aliasRegex = buildAliasRegex(options.Paths)
	h.resolveCache = make(map[string]*string)
}

// ResolveModuleFileName resolves specifier as imported from containingFile to
// an absolute file path, or reports it could not be resolved. Results are
// memoized per (specifier, containingFile) pair.
func (h *Host) ResolveModuleFileName(specifier, containingFile string) (string, bool) {
	key := specifier + "|" + containingFile
	h.mu.Lock()
	if cached, ok := h.resolveCache[key]; ok {
		h.mu.Unlock()
		if cached == nil {
			return "", false
		}
		return *cached, true
	}
	h.mu.Unlock()

	resolved, ok := h.resolveModuleFileNameUncached(specifier, containingFile)

	h.mu.Lock()
	if ok {
		h.resolveCache[key] = &resolved
	} else {
		h.resolveCache[key] = nil
	}
	h.mu.Unlock()

	return resolved, ok
}

func (h *Host) resolveModuleFileNameUncached(specifier, containingFile string) (string, bool) {
	if strings.HasPrefix(specifier, ".") {
		return resolveRelative(specifier, containingFile)
	}

	h.mu.Lock()
	aliasTarget, aliasOK := matchAlias(specifier, h.options.Paths)
	baseURL := h.options.BaseURL
	h.mu.Unlock()

	if aliasOK {
		base := baseURL
		if base == "" {
			base = h.cwd
		}
		candidate := filepath.Join(base, aliasTarget)
		return resolveWithExtensions(candidate)
	}

	return "", false
}

func resolveRelative(specifier, containingFile string) (string, bool) {
	dir := filepath.Dir(containingFile)
	candidate := filepath.Join(dir, specifier)
	return resolveWithExtensions(candidate)
}

var resolveExtensions = []string{"", ".ts", ".tsx", "/index.ts", "/index.tsx"}

func resolveWithExtensions(candidate string) (string, bool) {
	for _, ext := range resolveExtensions {
		p := candidate + ext
		if info, err := os.Stat(p); err == nil && !info.IsDir() {
			return filepath.ToSlash(p), true
		}
	}
	return "", false
}

// matchAlias finds the longest-prefix wildcard (or exact) match for
// specifier in paths, mirroring the resolution order tsconfig.json's own
// algorithm uses: exact matches first, then longest-prefix wildcards.
func matchAlias(specifier string, paths map[string][]string) (string, bool) {
	if targets, ok := paths[specifier]; ok && len(targets) > 0 {
		return strings.TrimPrefix(targets[0], "./"), true
	}

	longestPrefix := -1
	longestSuffix := -1
	var best string
	var foundAny bool
	for pattern, targets := range paths {
		starIdx := strings.IndexByte(pattern, '*')
		if starIdx < 0 || len(targets) == 0 {
			continue
		}
		prefix := pattern[:starIdx]
		suffix := pattern[starIdx+1:]
		if !strings.HasPrefix(specifier, prefix) || !strings.HasSuffix(specifier, suffix) {
			continue
		}
		if len(specifier) < len(prefix)+len(suffix) {
			continue
		}
		if len(prefix) > longestPrefix || (len(prefix) == longestPrefix && len(suffix) > longestSuffix) {
			longestPrefix = len(prefix)
			longestSuffix = len(suffix)
			matched := specifier[len(prefix) : len(specifier)-len(suffix)]
			target := strings.TrimPrefix(targets[0], "./")
			best = strings.Replace(target, "*", matched, 1)
			foundAny = true
		}
	}
	return best, foundAny
}

// ResolveAliases rewrites every aliased import/export specifier found in
// text, treating fromFile as the file text was read from. extensionOverride,
// when non-empty, replaces the resolved target's extension (the Emitter
// passes ".d.ts" so rewritten specifiers point at emitted declarations).
//
// Matching follows tsconfig's own precedence: exact alias keys first, then
// the longest-prefix wildcard (ties broken by longest suffix), mirroring
// tsgonest's pathalias.matchAndResolve.
func (h *Host) ResolveAliases(text, fromFile, extensionOverride string) string {
	h.mu.Lock()
	re := h.aliasRegex
	paths := h.options.Paths
	baseURL := h.options.BaseURL
	h.mu.Unlock()

	if re == nil || len(paths) == 0 {
		return text
	}

	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = h.resolveAliasesInLine(line, fromFile, extensionOverride, re, paths, baseURL)
	}
	return strings.Join(lines, "\n")
}

func (h *Host) resolveAliasesInLine(line, fromFile, extensionOverride string, re *regexp.Regexp, paths map[string][]string, baseURL string) string {
	// Group 1 spans the full quoted specifier (without its quotes); see
	// buildAliasRegex for the capture layout.
	loc := re.FindStringSubmatchIndex(line)
	if loc == nil || loc[2] < 0 || loc[3] < 0 {
		return line
	}
	specStart, specEnd := loc[2], loc[3]
	specifier := line[specStart:specEnd]

	target, ok := matchAlias(specifier, paths)
	if !ok {
		return line
	}

	base := baseURL
	if base == "" {
		base = h.cwd
	}
	targetPath := filepath.Join(base, target)
	if extensionOverride != "" {
		targetPath = replaceExtension(targetPath, extensionOverride)
	}

	rel, err := filepath.Rel(filepath.Dir(fromFile), targetPath)
	if err != nil {
		return line
	}
	rel = filepath.ToSlash(rel)
	if !strings.HasPrefix(rel, ".") {
		rel = "./" + rel
	}

	return line[:specStart] + rel + line[specEnd:]
}

func replaceExtension(path, ext string) string {
	cur := filepath.Ext(path)
	if cur == "" {
		return path + ext
	}
	return strings.TrimSuffix(path, cur) + ext
}

// buildAliasRegex builds a regex that matches an import/export statement
// (optional `type` keyword, optional `… from `, a quoted specifier) whose
// specifier begins with any of paths' alias prefixes. Trailing "/*" is
// stripped from each pattern before it's folded into the alternation.
// Capture group 1 spans the full specifier text, quotes excluded, so callers
// can splice a replacement in directly.
func buildAliasRegex(paths map[string][]string) *regexp.Regexp {
	if len(paths) == 0 {
		return nil
	}
	prefixes := make([]string, 0, len(paths))
	for pattern := range paths {
		prefix := strings.TrimSuffix(pattern, "/*")
		prefix = strings.TrimSuffix(prefix, "*")
		if prefix == "" {
			continue
		}
		prefixes = append(prefixes, regexp.QuoteMeta(prefix))
	}
	if len(prefixes) == 0 {
		return nil
	}
	sort.Strings(prefixes)
	pattern := `(?m)^\s*(?:export|import)\s+(?:type\s+)?(?:[\s\S]*?\s+from\s+)?["']((?:` +
		strings.Join(prefixes, "|") + `)[^"']*)["']`
	return regexp.MustCompile(pattern)
}
