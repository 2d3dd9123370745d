// Package declbundler collapses a transitive closure of declaration
// GraphNodes into one artifact per entry point: a single .d.ts-equivalent
// file with all internal import/export statements resolved away, following
// only external modules and re-exported names out to the edge.
//
// Atomic writes follow tsgonest's buildcache.Save pattern (temp file, then
// rename) rather than writing output in place.
package declbundler

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/remotex-labs/xBuild-sub001/internal/graphmodel"
	"github.com/remotex-labs/xBuild-sub001/internal/langhost"
)

const bundleHeader = "// Generated by xbuild. Do not edit by hand.\n"

// Bundler walks GraphNodes produced by a graphmodel.Model and assembles
// declaration bundles for a set of entry points.
type Bundler struct {
	model *graphmodel.Model
	ls    langhost.LanguageService
	host  *graphmodel.HostView
}

// New creates a Bundler backed by model, scanning files through ls and host.
func New(model *graphmodel.Model, ls langhost.LanguageService, host *graphmodel.HostView) *Bundler {
	return &Bundler{model: model, ls: ls, host: host}
}

// Emit bundles each entry in entryPoints (outputName -> sourcePath), writing
// {outDir}/{outputName}.d.ts for each, appending the extension when absent.
func (b *Bundler) Emit(entryPoints map[string]string, outDir string) error {
	if err := os.MkdirAll(outDir, 0755); err != nil {
		return fmt.Errorf("creating bundle output directory %s: %w", outDir, err)
	}

	names := make([]string, 0, len(entryPoints))
	for name := range entryPoints {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		artifact, err := b.bundleFor(entryPoints[name])
		if err != nil {
			return fmt.Errorf("bundling %s: %w", name, err)
		}
		outName := name
		if !strings.HasSuffix(outName, ".d.ts") {
			outName += ".d.ts"
		}
		if err := writeAtomic(filepath.Join(outDir, outName), artifact); err != nil {
			return fmt.Errorf("writing bundle %s: %w", outName, err)
		}
	}
	return nil
}

// bundleFor implements spec §4.5's traversal and assembly for a single entry
// point.
func (b *Bundler) bundleFor(entry string) (string, error) {
	entryNode := b.model.Scan(entry, b.ls, b.host)

	visited := make(map[string]struct{})
	exportList := []*graphmodel.GraphNode{entryNode}
	dependencyList := []*graphmodel.GraphNode{entryNode}
	starExportModules := make(map[string]struct{}, len(entryNode.InternalExports.Star))
	for _, p := range entryNode.InternalExports.Star {
		starExportModules[p] = struct{}{}
	}

	queue := make([]string, 0, len(entryNode.InternalDeps))
	for dep := range entryNode.InternalDeps {
		queue = append(queue, dep)
	}
	sort.Strings(queue)

	var cleanedBodies []string

	for len(queue) > 0 {
		path := queue[len(queue)-1]
		queue = queue[:len(queue)-1]

		if _, seen := visited[path]; seen {
			continue
		}
		visited[path] = struct{}{}

		node := b.model.Scan(path, b.ls, b.host)
		dependencyList = append(dependencyList, node)

		if _, isStar := starExportModules[path]; isStar {
			exportList = append(exportList, node)
			for _, p := range node.InternalExports.Star {
				starExportModules[p] = struct{}{}
			}
		}

		next := make([]string, 0, len(node.InternalDeps))
		for dep := range node.InternalDeps {
			if _, seen := visited[dep]; !seen {
				next = append(next, dep)
			}
		}
		sort.Strings(next)
		queue = append(queue, next...)

		cleanedBodies = append(cleanedBodies, node.CleanedText)
	}

	cleanedBodies = append(cleanedBodies, entryNode.CleanedText)

	return assemble(dependencyList, exportList, cleanedBodies), nil
}

// assemble produces the final bundle text: header, import statements, a
// blank line, one `const N = { ... };` declaration per namespace re-export
// (followed by a blank line when there are any), accumulated declaration
// bodies, a blank line, the deduped export statement, and external
// re-export statements.
func assemble(dependencyList, exportList []*graphmodel.GraphNode, cleanedBodies []string) string {
	imports := aggregateExternalImports(dependencyList)

	directExports := make(map[string]struct{})
	var namespaceDecls []string
	var externalStar []string
	externalNamed := make(map[string][]string)
	externalNamespace := make(map[string]string)

	for _, node := range exportList {
		for _, name := range node.InternalExports.Exports {
			directExports[name] = struct{}{}
		}
		for name, path := range node.InternalExports.Namespace {
			members := flattenNamespace(path, make(map[string]struct{}), exportListIndex(dependencyList))
			namespaceDecls = append(namespaceDecls, fmt.Sprintf("const %s = { %s };", name, strings.Join(members, ", ")))
			directExports[name] = struct{}{}
		}
		externalStar = append(externalStar, node.ExternalExports.Star...)
		for module, specs := range node.ExternalExports.Named {
			externalNamed[module] = append(externalNamed[module], specs...)
		}
		for name, module := range node.ExternalExports.Namespace {
			externalNamespace[name] = module
		}
	}

	var b strings.Builder
	b.WriteString(bundleHeader)

	for _, stmt := range renderImportStatements(imports) {
		b.WriteString(stmt)
		b.WriteString("\n")
	}
	b.WriteString("\n")

	if len(namespaceDecls) > 0 {
		sort.Strings(namespaceDecls)
		for _, d := range namespaceDecls {
			b.WriteString(d)
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}

	for _, body := range cleanedBodies {
		if strings.TrimSpace(body) == "" {
			continue
		}
		b.WriteString(body)
	}
	b.WriteString("\n")

	exportNames := make([]string, 0, len(directExports))
	for name := range directExports {
		exportNames = append(exportNames, name)
	}
	sort.Strings(exportNames)
	if len(exportNames) > 0 {
		b.WriteString(fmt.Sprintf("export { %s };\n", strings.Join(exportNames, ", ")))
	}

	for _, stmt := range renderExternalReExports(externalStar, externalNamed, externalNamespace) {
		b.WriteString(stmt)
		b.WriteString("\n")
	}

	return b.String()
}

func exportListIndex(exportList []*graphmodel.GraphNode) map[string]*graphmodel.GraphNode {
	idx := make(map[string]*graphmodel.GraphNode, len(exportList))
	for _, n := range exportList {
		idx[n.FileName] = n
	}
	return idx
}

// flattenNamespace recursively collects the exported member names reachable
// from path via `export * as N from` re-exports, using visited to break
// cycles (spec §4.5/§9's namespace-flattening recursion).
func flattenNamespace(path string, visited map[string]struct{}, byPath map[string]*graphmodel.GraphNode) []string {
	if _, seen := visited[path]; seen {
		return nil
	}
	visited[path] = struct{}{}

	node, ok := byPath[path]
	if !ok {
		return nil
	}

	members := make([]string, 0, len(node.InternalExports.Exports))
	members = append(members, node.InternalExports.Exports...)
	for nestedName, nestedPath := range node.InternalExports.Namespace {
		_ = nestedName
		members = append(members, flattenNamespace(nestedPath, visited, byPath)...)
	}
	sort.Strings(members)
	return members
}

type externalImportSet struct {
	defaultName string
	named       map[string]struct{}
	namespaces  []string // "alias" entries, rendered as separate statements
	sideEffect  bool     // module was also imported for side effects only (`import "module";`)
}

// aggregateExternalImports dedupes external import bindings across the
// whole dependency list: at most one default name per module (first wins),
// a deduplicated set of named specifiers, and every namespace alias.
func aggregateExternalImports(dependencyList []*graphmodel.GraphNode) map[string]*externalImportSet {
	out := make(map[string]*externalImportSet)

	get := func(module string) *externalImportSet {
		s, ok := out[module]
		if !ok {
			s = &externalImportSet{named: make(map[string]struct{})}
			out[module] = s
		}
		return s
	}

	for _, node := range dependencyList {
		for module, name := range node.ExternalImports.Default {
			s := get(module)
			if s.defaultName == "" {
				s.defaultName = name
			}
		}
		for module, specs := range node.ExternalImports.Named {
			s := get(module)
			for _, spec := range specs {
				s.named[spec] = struct{}{}
			}
		}
		for alias, module := range node.ExternalImports.Namespace {
			s := get(module)
			if alias == "" {
				s.sideEffect = true // side-effect import; no binding to render
				continue
			}
			duplicate := false
			for _, existing := range s.namespaces {
				if existing == alias {
					duplicate = true
					break
				}
			}
			if !duplicate {
				s.namespaces = append(s.namespaces, alias)
			}
		}
	}
	return out
}

func renderImportStatements(imports map[string]*externalImportSet) []string {
	modules := make([]string, 0, len(imports))
	for m := range imports {
		modules = append(modules, m)
	}
	sort.Strings(modules)

	var stmts []string
	for _, module := range modules {
		s := imports[module]

		var clauseParts []string
		if s.defaultName != "" {
			clauseParts = append(clauseParts, s.defaultName)
		}
		if len(s.named) > 0 {
			names := make([]string, 0, len(s.named))
			for n := range s.named {
				names = append(names, n)
			}
			sort.Strings(names)
			clauseParts = append(clauseParts, "{ "+strings.Join(names, ", ")+" }")
		}
		if len(clauseParts) > 0 {
			stmts = append(stmts, fmt.Sprintf("import %s from %q;", strings.Join(clauseParts, ", "), module))
		}

		sort.Strings(s.namespaces)
		for _, alias := range s.namespaces {
			stmts = append(stmts, fmt.Sprintf("import * as %s from %q;", alias, module))
		}

		if s.sideEffect && s.defaultName == "" && len(s.named) == 0 && len(s.namespaces) == 0 {
			stmts = append(stmts, fmt.Sprintf("import %q;", module))
		}
	}
	return stmts
}

func renderExternalReExports(star []string, named map[string][]string, namespace map[string]string) []string {
	var stmts []string

	sort.Strings(star)
	seenStar := make(map[string]struct{})
	for _, module := range star {
		if _, ok := seenStar[module]; ok {
			continue
		}
		seenStar[module] = struct{}{}
		stmts = append(stmts, fmt.Sprintf("export * from %q;", module))
	}

	modules := make([]string, 0, len(named))
	for m := range named {
		modules = append(modules, m)
	}
	sort.Strings(modules)
	for _, module := range modules {
		specs := dedupeSorted(named[module])
		stmts = append(stmts, fmt.Sprintf("export { %s } from %q;", strings.Join(specs, ", "), module))
	}

	names := make([]string, 0, len(namespace))
	for n := range namespace {
		names = append(names, n)
	}
	sort.Strings(names)
	for _, name := range names {
		stmts = append(stmts, fmt.Sprintf("export * as %s from %q;", name, namespace[name]))
	}

	return stmts
}

func dedupeSorted(in []string) []string {
	set := make(map[string]struct{}, len(in))
	for _, s := range in {
		set[s] = struct{}{}
	}
	out := make([]string, 0, len(set))
	for s := range set {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
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
