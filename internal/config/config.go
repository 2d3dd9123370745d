// Package config holds the configuration shape spec §6 recognizes
// ("Configuration shape") and a tolerant JSON loader for it. Config-file
// loading from disk is named out of scope by the spec — only a value object
// and a change notification are required — but the shape itself and a
// minimal reader are ambient, modeled on please_js/esmdev/tsconfig.go's
// comment/trailing-comma stripping for hand-edited JSON files.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"regexp"
)

// EsbuildOptions is the `esbuild` block of a VariantBuild: the bundler
// options passed straight through to the underlying build, mirroring the
// shape please_js/bundle.Args exposes on its own CLI.
type EsbuildOptions struct {
	EntryPoints map[string]string `json:"entryPoints"` // output name -> source path
	Outdir      string            `json:"outdir"`
	Bundle      *bool             `json:"bundle"` // nil means unset; Merge treats nil as "inherit"
	Minify      bool              `json:"minify"`
	Format      string            `json:"format"` // esm | cjs | iife
	Platform    string            `json:"platform"`
	Loader      map[string]string `json:"loader"`
	Tsconfig    string            `json:"tsconfig"`
	External    []string          `json:"external"`
}

// TypesSetting decodes `types: true | false | {failOnError: bool}`.
type TypesSetting struct {
	Enabled     bool
	FailOnError bool
}

// UnmarshalJSON accepts a bare bool or an object with failOnError, matching
// common.exportValue's string-or-object polymorphism in please_js.
func (t *TypesSetting) UnmarshalJSON(data []byte) error {
	var b bool
	if err := json.Unmarshal(data, &b); err == nil {
		t.Enabled = b
		t.FailOnError = b
		return nil
	}

	var obj struct {
		FailOnError *bool `json:"failOnError"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return fmt.Errorf("types: expected bool or {failOnError}: %w", err)
	}
	t.Enabled = true
	t.FailOnError = true
	if obj.FailOnError != nil {
		t.FailOnError = *obj.FailOnError
	}
	return nil
}

// DeclarationSetting decodes `declaration: true | false | {bundle, outDir}`.
type DeclarationSetting struct {
	Enabled bool
	Bundle  bool
	OutDir  string
}

func (d *DeclarationSetting) UnmarshalJSON(data []byte) error {
	var b bool
	if err := json.Unmarshal(data, &b); err == nil {
		d.Enabled = b
		d.Bundle = b
		return nil
	}

	var obj struct {
		Bundle *bool  `json:"bundle"`
		OutDir string `json:"outDir"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return fmt.Errorf("declaration: expected bool or {bundle, outDir}: %w", err)
	}
	d.Enabled = true
	d.Bundle = true
	if obj.Bundle != nil {
		d.Bundle = *obj.Bundle
	}
	d.OutDir = obj.OutDir
	return nil
}

// BannerValue is a banner/footer target's value: either literal text loaded
// from JSON, or a function supplied by a programmatic caller (config files
// on disk can never carry a function, only Go callers constructing a Config
// in-process can).
type BannerValue interface {
	Render(variantName string, argv []string) string
}

// BannerText is a plain string banner/footer value.
type BannerText string

// Render returns the text unchanged.
func (t BannerText) Render(string, []string) string { return string(t) }

// BannerFunc is a programmatic banner/footer value invoked per build.
type BannerFunc func(variantName string, argv []string) string

// Render invokes f.
func (f BannerFunc) Render(variantName string, argv []string) string { return f(variantName, argv) }

func unmarshalBannerMap(data []byte) (map[string]BannerValue, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var raw map[string]string
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}
	out := make(map[string]BannerValue, len(raw))
	for k, v := range raw {
		out[k] = BannerText(v)
	}
	return out, nil
}

// LifecycleConfig names the user-supplied hook entry points a VariantBuild
// can register (spec §6's `lifecycle` block). These are Go-only — no JSON
// loader populates them, a program wires them in after Load.
type LifecycleConfig struct {
	OnStart   []func() error
	OnLoad    []func(path string) (contents string, loader string, ok bool)
	OnEnd     []func(hasErrors bool)
	OnSuccess []func()
}

// VariantBuild is one entry of Config.Variants, or the Config.Common base
// every variant is merged against.
type VariantBuild struct {
	Esbuild     EsbuildOptions
	Types       TypesSetting
	Declaration DeclarationSetting
	Define      map[string]any
	Banner      map[string]BannerValue
	Footer      map[string]BannerValue
	Lifecycle   LifecycleConfig
}

type variantBuildJSON struct {
	Esbuild     EsbuildOptions     `json:"esbuild"`
	Types       TypesSetting       `json:"types"`
	Declaration DeclarationSetting `json:"declaration"`
	Define      map[string]any     `json:"define"`
	Banner      json.RawMessage    `json:"banner"`
	Footer      json.RawMessage    `json:"footer"`
}

// UnmarshalJSON decodes a VariantBuild, routing banner/footer through
// unmarshalBannerMap since BannerValue is an interface json.Unmarshal cannot
// populate directly.
func (v *VariantBuild) UnmarshalJSON(data []byte) error {
	var raw variantBuildJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	v.Esbuild = raw.Esbuild
	v.Types = raw.Types
	v.Declaration = raw.Declaration
	v.Define = raw.Define

	banner, err := unmarshalBannerMap(raw.Banner)
	if err != nil {
		return fmt.Errorf("banner: %w", err)
	}
	v.Banner = banner

	footer, err := unmarshalBannerMap(raw.Footer)
	if err != nil {
		return fmt.Errorf("footer: %w", err)
	}
	v.Footer = footer

	return nil
}

// ServeConfig is spec §6's `serve` block (the static dev server, itself out
// of scope, but its config shape isn't).
type ServeConfig struct {
	Start   bool   `json:"start"`
	Dir     string `json:"dir"`
	Port    int    `json:"port"`
	Host    string `json:"host"`
	Https   bool   `json:"https"`
	Key     string `json:"key"`
	Cert    string `json:"cert"`
	Verbose bool   `json:"verbose"`
}

// Config is the top-level value object §4.8/§6 describe: a common base
// applied to every variant, the named per-variant overrides, extension CLI
// argv schema (opaque here — out of scope per §1), and the optional static
// serve block.
type Config struct {
	Common   VariantBuild            `json:"common"`
	Variants map[string]VariantBuild `json:"variants"`
	UserArgv map[string]any          `json:"userArgv"`
	Serve    ServeConfig             `json:"serve"`
}

var trailingCommaRe = regexp.MustCompile(`,\s*([}\]])`)

// StripJSONC removes `//` and `/* */` comments and trailing commas ahead of
// `}`/`]`, the same scanner please_js/esmdev/tsconfig.go runs over
// hand-edited tsconfig.json files, reused here so Config file reads (Load)
// tolerate the same editing habits.
func StripJSONC(data []byte) []byte {
	var result []byte
	i := 0
	inString := false

	for i < len(data) {
		if inString {
			if data[i] == '\\' && i+1 < len(data) {
				result = append(result, data[i], data[i+1])
				i += 2
				continue
			}
			if data[i] == '"' {
				inString = false
			}
			result = append(result, data[i])
			i++
			continue
		}

		if data[i] == '"' {
			inString = true
			result = append(result, data[i])
			i++
			continue
		}

		if i+1 < len(data) && data[i] == '/' && data[i+1] == '/' {
			for i < len(data) && data[i] != '\n' {
				i++
			}
			continue
		}

		if i+1 < len(data) && data[i] == '/' && data[i+1] == '*' {
			i += 2
			for i+1 < len(data) && !(data[i] == '*' && data[i+1] == '/') {
				i++
			}
			if i+1 < len(data) {
				i += 2
			}
			continue
		}

		result = append(result, data[i])
		i++
	}

	return trailingCommaRe.ReplaceAll(result, []byte("$1"))
}

// Load reads and JSONC-parses a config file at path into a Config.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}
	var cfg Config
	if err := json.Unmarshal(StripJSONC(data), &cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}
	return &cfg, nil
}

// Merge overlays variant on top of common: esbuild entry points, tsconfig,
// and scalar settings from variant win when non-zero, falling back to
// common's; Define/Banner/Footer maps are merged key-by-key with variant
// taking precedence.
func Merge(common, variant VariantBuild) VariantBuild {
	out := common

	out.Esbuild = mergeEsbuild(common.Esbuild, variant.Esbuild)

	if variant.Types.Enabled {
		out.Types = variant.Types
	}
	if variant.Declaration.Enabled {
		out.Declaration = variant.Declaration
	}

	out.Define = mergeAnyMaps(common.Define, variant.Define)
	out.Banner = mergeBannerMaps(common.Banner, variant.Banner)
	out.Footer = mergeBannerMaps(common.Footer, variant.Footer)

	out.Lifecycle = LifecycleConfig{
		OnStart:   append(append([]func() error{}, common.Lifecycle.OnStart...), variant.Lifecycle.OnStart...),
		OnLoad:    append(append([]func(string) (string, string, bool){}, common.Lifecycle.OnLoad...), variant.Lifecycle.OnLoad...),
		OnEnd:     append(append([]func(bool){}, common.Lifecycle.OnEnd...), variant.Lifecycle.OnEnd...),
		OnSuccess: append(append([]func(){}, common.Lifecycle.OnSuccess...), variant.Lifecycle.OnSuccess...),
	}

	return out
}

func mergeEsbuild(common, variant EsbuildOptions) EsbuildOptions {
	out := common
	if len(variant.EntryPoints) > 0 {
		out.EntryPoints = variant.EntryPoints
	}
	if variant.Outdir != "" {
		out.Outdir = variant.Outdir
	}
	if variant.Bundle != nil {
		out.Bundle = variant.Bundle
	}
	if variant.Minify {
		out.Minify = variant.Minify
	}
	if variant.Format != "" {
		out.Format = variant.Format
	}
	if variant.Platform != "" {
		out.Platform = variant.Platform
	}
	if len(variant.Loader) > 0 {
		out.Loader = variant.Loader
	}
	if variant.Tsconfig != "" {
		out.Tsconfig = variant.Tsconfig
	}
	if len(variant.External) > 0 {
		out.External = variant.External
	}
	return out
}

func mergeAnyMaps(common, variant map[string]any) map[string]any {
	if len(common) == 0 && len(variant) == 0 {
		return nil
	}
	out := make(map[string]any, len(common)+len(variant))
	for k, v := range common {
		out[k] = v
	}
	for k, v := range variant {
		out[k] = v
	}
	return out
}

func mergeBannerMaps(common, variant map[string]BannerValue) map[string]BannerValue {
	if len(common) == 0 && len(variant) == 0 {
		return nil
	}
	out := make(map[string]BannerValue, len(common)+len(variant))
	for k, v := range common {
		out[k] = v
	}
	for k, v := range variant {
		out[k] = v
	}
	return out
}

// DefineToSource stringifies a Define value to source text the way
// please_js/bundle.go's own literal `Define: map[string]string{"process.env.NODE_ENV":
// "\"production\""}` usage expects esbuild to receive it: booleans/numbers
// via their Go string form, strings JSON-quoted, everything else
// JSON-encoded.
func DefineToSource(v any) (string, error) {
	switch t := v.(type) {
	case nil:
		return "undefined", nil
	case bool:
		if t {
			return "true", nil
		}
		return "false", nil
	case string:
		encoded, err := json.Marshal(t)
		if err != nil {
			return "", err
		}
		return string(encoded), nil
	case float64, int, int64:
		return fmt.Sprintf("%v", t), nil
	default:
		encoded, err := json.Marshal(t)
		if err != nil {
			return "", fmt.Errorf("define value not representable as source: %w", err)
		}
		return string(encoded), nil
	}
}

// DefineMapToSource converts a full Define table to the map[string]string
// shape esbuild's api.BuildOptions.Define expects.
func DefineMapToSource(defines map[string]any) (map[string]string, error) {
	out := make(map[string]string, len(defines))
	for k, v := range defines {
		src, err := DefineToSource(v)
		if err != nil {
			return nil, fmt.Errorf("define %s: %w", k, err)
		}
		out[k] = src
	}
	return out, nil
}
