package variant

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/evanw/esbuild/pkg/api"

	"github.com/remotex-labs/xBuild-sub001/internal/config"
	"github.com/remotex-labs/xBuild-sub001/internal/declbundler"
	"github.com/remotex-labs/xBuild-sub001/internal/diagnostic"
	"github.com/remotex-labs/xBuild-sub001/internal/emitter"
	"github.com/remotex-labs/xBuild-sub001/internal/lifecycle"
	"github.com/remotex-labs/xBuild-sub001/internal/macro"
	"github.com/remotex-labs/xBuild-sub001/internal/reactiveconfig"
)

// macroFilter matches the extensions the macro engine is willing to scan for
// `$$ifdef`/`$$ifndef`/`$$inline` call sites, mirroring the esbuild
// JS/TS/JSX/TSX loader family rather than every namespace a bundle might
// touch (CSS, JSON, binary assets have no macro syntax to speak of).
const macroFilter = `\.[jt]sx?$`

// BuildResult is the outcome of one Orchestrator.Build call: a completed
// build (possibly carrying plugin-reported errors/warnings as a degraded
// result, per spec §4.8's build() step 5) or nil when the variant is
// currently inactive.
type BuildResult struct {
	Errors   []api.Message
	Warnings []api.Message
}

// configPair is the {variantConfig, commonConfig} pair an Orchestrator
// subscribes to on a ReactiveConfig channel (spec §4.8 construction step 6).
type configPair struct {
	Common     config.VariantBuild
	Variant    config.VariantBuild
	HasVariant bool
}

// Orchestrator is a VariantOrchestrator: one named build variant, its
// merged configuration, the LifecycleHub driving its esbuild plugin set,
// and the SharedEntry it currently holds.
type Orchestrator struct {
	name     string
	registry *ServiceRegistry
	hub      *lifecycle.Hub
	argv     []string

	unsubscribe reactiveconfig.Handle

	evaluator macro.Evaluator

	mu            sync.Mutex
	active        bool
	config        config.VariantBuild
	tsconfigPath  string
	entry         *SharedEntry
	depMap        map[string]string // output key -> absolute input path
	macroAnalysis *macro.AnalysisResult
}

// New constructs a VariantOrchestrator for name, acquiring a SharedEntry for
// merged's tsconfig path, touching its entry-point files, registering the
// core type-check/declaration hooks plus merged's user-supplied lifecycle
// hooks on hub, and — when configChannel is non-nil — subscribing to this
// variant's slice of it for hot-reload (spec §4.8 construction, §4.9).
func New(name string, registry *ServiceRegistry, hub *lifecycle.Hub, merged config.VariantBuild, argv []string, configChannel *reactiveconfig.Channel[config.Config]) (*Orchestrator, error) {
	if len(merged.Esbuild.EntryPoints) == 0 {
		return nil, fmt.Errorf("variant %s: esbuild.entryPoints must be non-empty", name)
	}

	entry, err := registry.Acquire(merged.Esbuild.Tsconfig)
	if err != nil {
		return nil, err
	}

	o := &Orchestrator{
		name:         name,
		registry:     registry,
		hub:          hub,
		argv:         argv,
		active:       true,
		config:       merged,
		tsconfigPath: merged.Esbuild.Tsconfig,
		entry:        entry,
		evaluator:    macro.NewNodeEvaluator(""),
	}

	o.touchEntryPoints()
	o.registerCoreHooks()
	o.registerUserHooks(merged.Lifecycle)

	if configChannel != nil {
		selector := reactiveconfig.Select(configChannel, func(cfg config.Config) configPair {
			variant, ok := cfg.Variants[name]
			return configPair{Common: cfg.Common, Variant: variant, HasVariant: ok}
		}, samePair)
		o.unsubscribe = selector.Subscribe(o.HandleConfigChange, nil, nil)
	}

	return o, nil
}

func (o *Orchestrator) touchEntryPoints() {
	paths := make([]string, 0, len(o.config.Esbuild.EntryPoints))
	for _, p := range o.config.Esbuild.EntryPoints {
		paths = append(paths, p)
	}
	o.entry.Host.TouchFiles(paths)
}

func (o *Orchestrator) registerCoreHooks() {
	o.hub.OnStart(o.typeCheckOnStart)
	o.hub.OnLoad(macroFilter, "", o.macroOnLoad)
	o.hub.OnEnd(o.declarationOnEnd)
}

func (o *Orchestrator) registerUserHooks(lc config.LifecycleConfig) {
	for _, fn := range lc.OnStart {
		fn := fn
		o.hub.OnStart(func() (lifecycle.HookResult, error) {
			if err := fn(); err != nil {
				return lifecycle.HookResult{}, err
			}
			return lifecycle.HookResult{}, nil
		})
	}

	for _, fn := range lc.OnLoad {
		fn := fn
		o.hub.OnLoad(".*", "", func(args lifecycle.LoadArgs) (lifecycle.LoadResult, error) {
			contents, ldr, ok := fn(args.Path)
			if !ok {
				return lifecycle.LoadResult{}, nil
			}
			text := contents
			return lifecycle.LoadResult{Contents: &text, Loader: parseLoader(ldr)}, nil
		})
	}

	for _, fn := range lc.OnEnd {
		fn := fn
		o.hub.OnEnd(func(result *api.BuildResult) (lifecycle.HookResult, error) {
			fn(len(result.Errors) > 0)
			return lifecycle.HookResult{}, nil
		})
	}

	for _, fn := range lc.OnSuccess {
		fn := fn
		o.hub.OnSuccess(func(*api.BuildResult) { fn() })
	}
}

// samePair compares two configPairs by the fields that affect an
// Orchestrator's behavior (esbuild options, type/declaration settings,
// defines, banner/footer text); Lifecycle hook slices are function-valued
// and deliberately excluded, since reflect-style identity comparison of
// funcs would make every config emission look like a change.
func samePair(a, b configPair) bool {
	if a.HasVariant != b.HasVariant {
		return false
	}
	return sameVariantBuild(a.Common, b.Common) && (!a.HasVariant || sameVariantBuild(a.Variant, b.Variant))
}

func sameVariantBuild(a, b config.VariantBuild) bool {
	ae, be := a.Esbuild, b.Esbuild
	if ae.Outdir != be.Outdir || ae.Minify != be.Minify || ae.Format != be.Format ||
		ae.Platform != be.Platform || ae.Tsconfig != be.Tsconfig {
		return false
	}
	if !stringMapEqual(ae.EntryPoints, be.EntryPoints) || !stringMapEqual(ae.Loader, be.Loader) {
		return false
	}
	if !stringSliceEqual(ae.External, be.External) {
		return false
	}
	if !boolPtrEqual(ae.Bundle, be.Bundle) {
		return false
	}
	if a.Types != b.Types || a.Declaration != b.Declaration {
		return false
	}
	for _, pair := range [2][2]map[string]config.BannerValue{{a.Banner, b.Banner}, {a.Footer, b.Footer}} {
		if len(pair[0]) != len(pair[1]) {
			return false
		}
		for k, v := range pair[0] {
			if w, ok := pair[1][k]; !ok || fmt.Sprint(v) != fmt.Sprint(w) {
				return false
			}
		}
	}
	return anyMapEqual(a.Define, b.Define)
}

func stringMapEqual(a, b map[string]string) bool {
	if len(a) != len(b) {
		return false
	}
	for k, v := range a {
		if b[k] != v {
			return false
		}
	}
	return true
}

func anyMapEqual(a, b map[string]any) bool {
	if len(a) != len(b) {
		return false
	}
	for k, v := range a {
		bv, ok := b[k]
		if !ok || fmt.Sprint(v) != fmt.Sprint(bv) {
			return false
		}
	}
	return true
}

func stringSliceEqual(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func boolPtrEqual(a, b *bool) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

// HandleConfigChange implements spec §4.8's handleConfigChange: deactivate,
// then — if a variant entry still exists in the new config — re-merge,
// reactivate, re-touch entry points, and swap the SharedEntry if the
// tsconfig path changed.
func (o *Orchestrator) HandleConfigChange(pair configPair) {
	o.mu.Lock()
	o.active = false
	if !pair.HasVariant {
		o.mu.Unlock()
		return
	}

	merged := config.Merge(pair.Common, pair.Variant)
	o.active = true
	o.config = merged
	o.depMap = nil

	oldPath := o.tsconfigPath
	newPath := merged.Esbuild.Tsconfig
	if newPath != oldPath {
		o.tsconfigPath = newPath
	}
	o.mu.Unlock()

	if newPath != oldPath {
		entry, err := o.registry.Acquire(newPath)
		if err == nil {
			o.mu.Lock()
			o.entry = entry
			o.mu.Unlock()
			o.registry.Release(oldPath)
		}
	}

	o.touchEntryPoints()
}

// Dispose unsubscribes from config changes and releases this Orchestrator's
// SharedEntry.
func (o *Orchestrator) Dispose() {
	if o.unsubscribe != nil {
		o.unsubscribe()
	}
	o.mu.Lock()
	path := o.tsconfigPath
	o.mu.Unlock()
	o.registry.Release(path)
}

// Build runs spec §4.8's build() steps: banner/footer injection, dependency
// map computation, the bundler-or-passthrough entry point substitution, the
// real build with the LifecycleHub's plugin wired in, and the
// {outdir}/package.json type write-back.
func (o *Orchestrator) Build() (*BuildResult, error) {
	o.mu.Lock()
	if !o.active {
		o.mu.Unlock()
		return nil, nil
	}
	cfg := o.config
	entry := o.entry
	o.mu.Unlock()

	depMap, err := o.computeDependencyMap(cfg, entry)
	if err != nil {
		return nil, fmt.Errorf("variant %s: computing dependency map: %w", o.name, err)
	}
	analysis := o.analyzeMacros(cfg, entry, depMap)
	o.mu.Lock()
	o.depMap = depMap
	o.macroAnalysis = analysis
	o.mu.Unlock()

	entryPoints := cfg.Esbuild.EntryPoints
	if cfg.Esbuild.Bundle != nil && !*cfg.Esbuild.Bundle {
		entryPoints = depMap
	}

	defines, err := config.DefineMapToSource(cfg.Define)
	if err != nil {
		return nil, fmt.Errorf("variant %s: %w", o.name, err)
	}

	opts := api.BuildOptions{
		EntryPointsAdvanced: toEntryPoints(entryPoints),
		Outdir:              cfg.Esbuild.Outdir,
		Bundle:              cfg.Esbuild.Bundle == nil || *cfg.Esbuild.Bundle,
		Write:               true,
		Format:              parseFormat(cfg.Esbuild.Format),
		Platform:            parsePlatform(cfg.Esbuild.Platform),
		Target:              api.ESNext,
		Minify:              cfg.Esbuild.Minify,
		External:            cfg.Esbuild.External,
		Loader:              parseLoaderMap(cfg.Esbuild.Loader),
		Tsconfig:            cfg.Esbuild.Tsconfig,
		Define:              defines,
		LogLevel:            api.LogLevelSilent,
		Banner:              renderBannerMap(cfg.Banner, o.name, o.argv),
		Footer:              renderBannerMap(cfg.Footer, o.name, o.argv),
		Plugins:             []api.Plugin{o.hub.Plugin()},
	}

	result := api.Build(opts)

	var coreErrors []api.Message
	for _, e := range result.Errors {
		if e.PluginName == "" {
			coreErrors = append(coreErrors, e)
		}
	}
	if len(coreErrors) > 0 {
		return nil, fmt.Errorf("variant %s: build failed: %s", o.name, formatMessages(coreErrors))
	}

	if err := writePackageJSONType(cfg.Esbuild.Outdir, cfg.Esbuild.Format); err != nil {
		return nil, fmt.Errorf("variant %s: writing package.json: %w", o.name, err)
	}

	if len(result.Errors) == 0 {
		o.hub.RunOnSuccess(&result)
	}

	return &BuildResult{Errors: result.Errors, Warnings: result.Warnings}, nil
}

// Check implements spec §4.8's check(): ensure the dependency map exists
// (building lazily via an analyzer pass if needed), then flatten semantic
// and syntactic diagnostics across every input file.
func (o *Orchestrator) Check() ([]diagnostic.Diagnostic, error) {
	o.mu.Lock()
	cfg := o.config
	entry := o.entry
	depMap := o.depMap
	o.mu.Unlock()

	if depMap == nil {
		var err error
		depMap, err = o.computeDependencyMap(cfg, entry)
		if err != nil {
			return nil, fmt.Errorf("variant %s: computing dependency map: %w", o.name, err)
		}
		o.mu.Lock()
		o.depMap = depMap
		o.mu.Unlock()
	}

	collector := diagnostic.NewCollector()
	for _, path := range sortedValues(depMap) {
		for _, d := range entry.LS.GetSemanticDiagnostics(path) {
			collector.Error(diagnostic.CategoryTypes, d.File, d.Line, d.Column, d.Message)
		}
		for _, d := range entry.LS.GetSyntacticDiagnostics(path) {
			collector.Error(diagnostic.CategoryTypes, d.File, d.Line, d.Column, d.Message)
		}
	}
	return collector.Diagnostics(), nil
}

// typeCheckOnStart is the core onStart hook spec §4.8 requires: skip if
// `types` is absent, gather semantic/syntactic diagnostics as errors and
// suggestion diagnostics as warnings over the dependency map, demoting every
// error to a warning when failOnError is false.
func (o *Orchestrator) typeCheckOnStart() (lifecycle.HookResult, error) {
	o.mu.Lock()
	cfg := o.config
	entry := o.entry
	depMap := o.depMap
	o.mu.Unlock()

	if !cfg.Types.Enabled {
		return lifecycle.HookResult{}, nil
	}
	if depMap == nil {
		var err error
		depMap, err = o.computeDependencyMap(cfg, entry)
		if err != nil {
			return lifecycle.HookResult{}, err
		}
		o.mu.Lock()
		o.depMap = depMap
		o.mu.Unlock()
	}

	collector := diagnostic.NewCollector()
	for _, path := range sortedValues(depMap) {
		for _, d := range entry.LS.GetSemanticDiagnostics(path) {
			collector.Error(diagnostic.CategoryTypes, d.File, d.Line, d.Column, d.Message)
		}
		for _, d := range entry.LS.GetSyntacticDiagnostics(path) {
			collector.Error(diagnostic.CategoryTypes, d.File, d.Line, d.Column, d.Message)
		}
		for _, d := range entry.LS.GetSuggestionDiagnostics(path) {
			collector.Warn(diagnostic.CategoryTypes, d.File, d.Line, d.Column, d.Message)
		}
	}
	if !cfg.Types.FailOnError {
		collector.Demote(diagnostic.CategoryTypes)
	}

	var errs, warns []lifecycle.Message
	for _, d := range collector.Diagnostics() {
		msg := lifecycle.Message{Text: d.Message, File: d.File, Line: d.Line, Column: d.Column}
		if d.Severity == diagnostic.SeverityError {
			errs = append(errs, msg)
		} else {
			warns = append(warns, msg)
		}
	}
	return lifecycle.HookResult{Errors: errs, Warnings: warns}, nil
}

// declarationOnEnd is the core onEnd hook spec §4.8 requires: skip if the
// build already failed or declarations are disabled, otherwise bundle or
// plainly emit declarations, converting any emission failure into a warning
// rather than a build error.
func (o *Orchestrator) declarationOnEnd(result *api.BuildResult) (lifecycle.HookResult, error) {
	o.mu.Lock()
	cfg := o.config
	entry := o.entry
	o.mu.Unlock()

	if len(result.Errors) > 0 || !cfg.Declaration.Enabled {
		return lifecycle.HookResult{}, nil
	}

	outDir := cfg.Declaration.OutDir
	if outDir == "" {
		outDir = cfg.Esbuild.Outdir
	}

	var emitErr error
	if cfg.Declaration.Bundle {
		b := declbundler.New(entry.Model, entry.LS, entry.HostView)
		emitErr = b.Emit(cfg.Esbuild.EntryPoints, outDir)
	} else {
		e := emitter.New(entry.LS, entry.Host)
		emitErr = e.Emit(outDir)
	}
	if emitErr != nil {
		return lifecycle.HookResult{Warnings: []lifecycle.Message{{Text: emitErr.Error()}}}, nil
	}
	return lifecycle.HookResult{}, nil
}

// analyzeMacros implements spec §4.6's analysis phase: scan every source
// file the dependency map reaches for `$$` call sites before the real build
// runs, so macroOnLoad's transform phase knows which files to bother
// visiting and which bound names a falsy ifdef/ifndef disabled.
func (o *Orchestrator) analyzeMacros(cfg config.VariantBuild, entry *SharedEntry, depMap map[string]string) *macro.AnalysisResult {
	sources := make(map[string]string, len(depMap))
	for _, path := range depMap {
		if text, ok := entry.Host.ReadFile(path); ok {
			sources[path] = text
		}
	}
	return macro.Analyze(sources, macro.Defines(cfg.Define))
}

// macroOnLoad is the core onLoad hook that runs spec §4.6's MacroEngine
// transform phase on every loaded JS/TS source before the bundler sees it
// (spec §2's control flow: "Lifecycle.start -> MacroEngine (inside onLoad)
// -> bundler runs"). Files the analysis phase found no macro activity in are
// left untouched so esbuild reads them directly instead of through a
// plugin-supplied copy.
func (o *Orchestrator) macroOnLoad(args lifecycle.LoadArgs) (lifecycle.LoadResult, error) {
	o.mu.Lock()
	analysis := o.macroAnalysis
	o.mu.Unlock()
	if analysis == nil {
		analysis = macro.NewAnalysisResult()
	}

	content, ok := o.entry.Host.ReadFile(args.Path)
	if !ok {
		return lifecycle.LoadResult{}, nil
	}

	result := macro.Transform(args.Path, content, macro.Defines(o.currentDefines()), analysis, o.evaluator)
	if !result.Changed {
		return lifecycle.LoadResult{}, nil
	}

	text := result.Text
	return lifecycle.LoadResult{
		Contents: &text,
		Loader:   api.LoaderDefault,
		Errors:   macroDiagsToMessages(result.Errors),
		Warnings: macroDiagsToMessages(result.Warnings),
	}, nil
}

func (o *Orchestrator) currentDefines() map[string]any {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.config.Define
}

func macroDiagsToMessages(diags []macro.Diagnostic) []api.Message {
	if len(diags) == 0 {
		return nil
	}
	out := make([]api.Message, 0, len(diags))
	for _, d := range diags {
		var loc *api.Location
		if d.File != "" {
			loc = &api.Location{File: d.File, Line: d.Line, Column: d.Column}
		}
		out = append(out, api.Message{Text: d.Message, Location: loc})
	}
	return out
}

// computeDependencyMap runs the bundler as a metafile-only analyzer (spec
// §4.8 build() step 3): a Write:false, Metafile:true build whose Inputs set
// becomes the dependency map, keyed by the extension-stripped path relative
// to the host's working directory.
func (o *Orchestrator) computeDependencyMap(cfg config.VariantBuild, entry *SharedEntry) (map[string]string, error) {
	result := api.Build(api.BuildOptions{
		EntryPointsAdvanced: toEntryPoints(cfg.Esbuild.EntryPoints),
		Bundle:              cfg.Esbuild.Bundle == nil || *cfg.Esbuild.Bundle,
		Write:               false,
		Metafile:            true,
		Platform:            parsePlatform(cfg.Esbuild.Platform),
		Loader:              parseLoaderMap(cfg.Esbuild.Loader),
		LogLevel:            api.LogLevelSilent,
	})
	if len(result.Errors) > 0 {
		return nil, fmt.Errorf("analyzing entry points: %s", formatMessages(result.Errors))
	}

	var meta struct {
		Inputs map[string]json.RawMessage `json:"inputs"`
	}
	if err := json.Unmarshal([]byte(result.Metafile), &meta); err != nil {
		return nil, fmt.Errorf("parsing metafile: %w", err)
	}

	rootDir := entry.Host.GetCurrentDirectory()
	if absRoot, err := filepath.Abs(rootDir); err == nil {
		rootDir = absRoot
	}
	out := make(map[string]string, len(meta.Inputs))
	for input := range meta.Inputs {
		// Metafile inputs are relative to esbuild's working directory, which
		// is the process working directory here, not rootDir.
		abs, err := filepath.Abs(input)
		if err != nil {
			abs = filepath.Join(rootDir, input)
		}
		rel, err := filepath.Rel(rootDir, abs)
		if err != nil {
			rel = filepath.Base(abs)
		}
		rel = strings.TrimSuffix(rel, filepath.Ext(rel))
		out[filepath.ToSlash(rel)] = abs
	}
	return out, nil
}

func toEntryPoints(m map[string]string) []api.EntryPoint {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	out := make([]api.EntryPoint, 0, len(names))
	for _, name := range names {
		out = append(out, api.EntryPoint{InputPath: m[name], OutputPath: name})
	}
	return out
}

func sortedValues(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, m[k])
	}
	return out
}

func parseFormat(f string) api.Format {
	switch f {
	case "cjs", "commonjs":
		return api.FormatCommonJS
	case "iife":
		return api.FormatIIFE
	default:
		return api.FormatESModule
	}
}

func parsePlatform(p string) api.Platform {
	switch p {
	case "node":
		return api.PlatformNode
	case "neutral":
		return api.PlatformNeutral
	default:
		return api.PlatformBrowser
	}
}

func parseLoaderMap(in map[string]string) map[string]api.Loader {
	if len(in) == 0 {
		return nil
	}
	out := make(map[string]api.Loader, len(in))
	for ext, name := range in {
		out[ext] = parseLoader(name)
	}
	return out
}

func parseLoader(name string) api.Loader {
	switch name {
	case "js":
		return api.LoaderJS
	case "jsx":
		return api.LoaderJSX
	case "ts":
		return api.LoaderTS
	case "tsx":
		return api.LoaderTSX
	case "json":
		return api.LoaderJSON
	case "css":
		return api.LoaderCSS
	case "text":
		return api.LoaderText
	case "binary":
		return api.LoaderBinary
	case "file":
		return api.LoaderFile
	default:
		return api.LoaderDefault
	}
}

func renderBannerMap(values map[string]config.BannerValue, name string, argv []string) map[string]string {
	if len(values) == 0 {
		return nil
	}
	out := make(map[string]string, len(values))
	for k, v := range values {
		out[k] = v.Render(name, argv)
	}
	return out
}

func formatMessages(messages []api.Message) string {
	parts := make([]string, 0, len(messages))
	for _, m := range messages {
		if m.Location != nil {
			parts = append(parts, fmt.Sprintf("%s:%d:%d: %s", m.Location.File, m.Location.Line, m.Location.Column, m.Text))
		} else {
			parts = append(parts, m.Text)
		}
	}
	return strings.Join(parts, "; ")
}

// writePackageJSONType writes {outDir}/package.json with a `type` field
// derived from format ("module" for esm, "commonjs" otherwise), matching
// spec §4.8 build() step 6. The write is atomic, following the same
// temp-then-rename idiom emitter.Emit and declbundler.Emit already use.
func writePackageJSONType(outDir, format string) error {
	if outDir == "" {
		return nil
	}
	pkgType := "commonjs"
	if format == "esm" || format == "" {
		pkgType = "module"
	}
	body, err := json.MarshalIndent(map[string]string{"type": pkgType}, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(outDir, 0755); err != nil {
		return err
	}
	path := filepath.Join(outDir, "package.json")
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, append(body, '\n'), 0644); err != nil {
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return err
	}
	return nil
}
