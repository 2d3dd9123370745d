// Package graphmodel performs per-file dependency/import/export analysis
// against the emitted declaration text for a source file, producing a
// GraphNode: a cleaned declaration body with import/export statements
// hoisted out, plus structured import/export maps the declaration bundler
// walks to assemble a single artifact.
//
// There is no real TypeScript AST behind this: like please_js's import
// scanner and tsgonest's rewrite package, statements are recognized with
// anchored regular expressions over the emitted declaration text. The
// language service is responsible for the one thing that actually requires
// a real compiler — emitting declaration text from source — everything
// downstream of that is line-oriented text surgery.
package graphmodel

import (
	"regexp"
	"sort"
	"strings"

	"github.com/remotex-labs/xBuild-sub001/internal/langhost"
)

// ExternalImports groups import bindings targeting a module this system does
// not control the source of.
type ExternalImports struct {
	Named     map[string][]string // module -> imported specifiers (e.g. "a", "b as c")
	Default   map[string]string   // module -> local binding name
	Namespace map[string]string   // local binding name -> module (a side-effect import is stored under the key "")
}

func newExternalImports() ExternalImports {
	return ExternalImports{
		Named:     make(map[string][]string),
		Default:   make(map[string]string),
		Namespace: make(map[string]string),
	}
}

// InternalExports groups export bindings whose ultimate source is another
// file in this workspace.
type InternalExports struct {
	Star      []string            // paths re-exported wholesale via `export * from`
	Named     map[string][]string // path -> specifiers via `export { a, b as c } from`
	Namespace map[string]string   // name -> path via `export * as N from`
	Exports   []string            // names declared directly in this file (`export const x`, `export class X`, ...)
}

func newInternalExports() InternalExports {
	return InternalExports{
		Named:     make(map[string][]string),
		Namespace: make(map[string]string),
	}
}

// ExternalExports mirrors InternalExports for re-exports whose ultimate
// source is outside the workspace.
type ExternalExports struct {
	Star      []string
	Named     map[string][]string
	Namespace map[string]string
}

func newExternalExports() ExternalExports {
	return ExternalExports{
		Named:     make(map[string][]string),
		Namespace: make(map[string]string),
	}
}

// GraphNode is the result of scanning one source file's emitted declaration
// text. It is identity-keyed by FileName (a normalized absolute path) and
// only valid for the snapshot Version it was produced from.
type GraphNode struct {
	FileName        string
	Version         int
	CleanedText     string
	InternalDeps    map[string]struct{}
	ExternalImports ExternalImports
	InternalExports InternalExports
	ExternalExports ExternalExports
}

// Model owns the GraphNode cache, independent of the FileCache snapshot
// store it's built on top of.
type Model struct {
	nodes map[string]*GraphNode
}

// New creates an empty Model.
func New() *Model {
	return &Model{nodes: make(map[string]*GraphNode)}
}

// Scan returns the GraphNode for source, reusing the cached node if its
// version still matches the language host's current script version for the
// file (the spec's "N.version == FileCache snapshot version" invariant).
func (m *Model) Scan(source string, ls langhost.LanguageService, host *HostView) *GraphNode {
	abs := host.resolve(source)
	version := host.scriptVersion(abs)

	if existing, ok := m.nodes[abs]; ok && existing.Version == version {
		return existing
	}

	node := scan(abs, version, ls, host)
	m.nodes[abs] = node
	return node
}

// HostView is the narrow slice of LanguageHost this package depends on, held
// as a struct of unexported function fields so graphmodel can be tested
// against a fake without importing langhost's concrete Host type.
type HostView struct {
	resolve          func(path string) string
	scriptVersion    func(path string) int
	resolveModule    func(specifier, fromFile string) (string, bool)
}

// NewHostView adapts a langhost.Host (or a test double with the same shape)
// into the function set Model.Scan needs.
func NewHostView(resolve func(string) string, scriptVersion func(string) int, resolveModule func(string, string) (string, bool)) *HostView {
	return &HostView{resolve: resolve, scriptVersion: scriptVersion, resolveModule: resolveModule}
}

func scan(abs string, version int, ls langhost.LanguageService, host *HostView) *GraphNode {
	node := &GraphNode{
		FileName:        abs,
		Version:         version,
		InternalDeps:    make(map[string]struct{}),
		ExternalImports: newExternalImports(),
		InternalExports: newInternalExports(),
		ExternalExports: newExternalExports(),
	}

	text := emitDeclarationText(abs, ls)
	node.CleanedText = clean(text, abs, host, node)
	return node
}

// emitDeclarationText pulls the declaration-only emit for path from the
// language service. Missing/skipped emits degrade to an empty body rather
// than erroring — downstream consumers treat an empty node the same as a
// file with nothing to contribute.
func emitDeclarationText(path string, ls langhost.LanguageService) string {
	if ls == nil {
		return ""
	}
	out := ls.GetEmitOutput(path, true)
	if out.EmitSkipped {
		return ""
	}
	var b strings.Builder
	for _, f := range out.OutputFiles {
		b.WriteString(f.Text)
		b.WriteString("\n")
	}
	return b.String()
}

var (
	importClauseRe = regexp.MustCompile(`^\s*import\s+(type\s+)?(.+?)\s+from\s+["']([^"']+)["'];?\s*$`)
	importBareRe   = regexp.MustCompile(`^\s*import\s+["']([^"']+)["'];?\s*$`)
	exportStarRe   = regexp.MustCompile(`^\s*export\s+\*\s+from\s+["']([^"']+)["'];?\s*$`)
	exportNsRe     = regexp.MustCompile(`^\s*export\s+\*\s+as\s+([A-Za-z_$][\w$]*)\s+from\s+["']([^"']+)["'];?\s*$`)
	exportNamedRe  = regexp.MustCompile(`^\s*export\s+\{([^}]*)\}\s+from\s+["']([^"']+)["'];?\s*$`)
	exportModRe    = regexp.MustCompile(`^\s*export\s+(declare\s+)?(default\s+)?(class|const|let|var|function|interface|type|enum|namespace|abstract\s+class)\s+([A-Za-z_$][\w$]*)`)
	namespaceSpec  = regexp.MustCompile(`^\*\s+as\s+([A-Za-z_$][\w$]*)$`)
	defaultSpec    = regexp.MustCompile(`^([A-Za-z_$][\w$]*)$`)
)

// clean walks the declaration text statement-by-statement (one regexp-tested
// line at a time, mirroring the emitted output's one-statement-per-line
// convention), hoisting import/export-from statements into node's maps and
// stripping export modifiers from the rest. The returned text is node's
// CleanedText.
func clean(text, fromFile string, host *HostView, node *GraphNode) string {
	lines := strings.Split(text, "\n")
	var kept []string
	localAliases := make(map[string]string) // local default-import binding -> rewritten bare name

	for _, line := range lines {
		switch {
		case importClauseRe.MatchString(line):
			m := importClauseRe.FindStringSubmatch(line)
			handleImportClause(m[2], m[3], fromFile, host, node, localAliases)

		case importBareRe.MatchString(line):
			m := importBareRe.FindStringSubmatch(line)
			module := m[1]
			if resolved, ok := host.resolveModule(module, fromFile); ok {
				node.InternalDeps[resolved] = struct{}{}
			} else {
				node.ExternalImports.Namespace[""] = module
			}

		case exportStarRe.MatchString(line):
			m := exportStarRe.FindStringSubmatch(line)
			module := m[1]
			if resolved, ok := host.resolveModule(module, fromFile); ok {
				node.InternalDeps[resolved] = struct{}{}
				node.InternalExports.Star = append(node.InternalExports.Star, resolved)
			} else {
				node.ExternalExports.Star = append(node.ExternalExports.Star, module)
			}

		case exportNsRe.MatchString(line):
			m := exportNsRe.FindStringSubmatch(line)
			name, module := m[1], m[2]
			if resolved, ok := host.resolveModule(module, fromFile); ok {
				node.InternalDeps[resolved] = struct{}{}
				node.InternalExports.Namespace[name] = resolved
			} else {
				node.ExternalExports.Namespace[name] = module
			}

		case exportNamedRe.MatchString(line):
			m := exportNamedRe.FindStringSubmatch(line)
			specifiers, module := splitSpecifiers(m[1]), m[2]
			if resolved, ok := host.resolveModule(module, fromFile); ok {
				node.InternalDeps[resolved] = struct{}{}
				node.InternalExports.Named[resolved] = append(node.InternalExports.Named[resolved], specifiers...)
			} else {
				node.ExternalExports.Named[module] = append(node.ExternalExports.Named[module], specifiers...)
			}

		case exportModRe.MatchString(line):
			m := exportModRe.FindStringSubmatch(line)
			name := m[4]
			node.InternalExports.Exports = append(node.InternalExports.Exports, name)
			kept = append(kept, stripExportModifier(line))

		default:
			kept = append(kept, line)
		}
	}

	cleaned := strings.Join(kept, "\n")
	cleaned = rewriteLocalAliases(cleaned, localAliases)
	return strings.TrimRight(cleaned, "\n") + "\n"
}

func handleImportClause(clause, module, fromFile string, host *HostView, node *GraphNode, localAliases map[string]string) {
	resolved, internal := host.resolveModule(module, fromFile)
	if internal {
		node.InternalDeps[resolved] = struct{}{}
	}

	clause = strings.TrimSpace(clause)

	// import * as ns from "m"
	if m := namespaceSpec.FindStringSubmatch(clause); m != nil {
		if internal {
			// Record the local alias so rewriteLocalAliases can strip the
			// now-dangling `ns.` prefix off any ns.Foo reference that
			// survives once the import statement itself is removed.
			localAliases[m[1]] = ""
			return
		}
		node.ExternalImports.Namespace[m[1]] = module
		return
	}

	// import Default, { a, b as c } from "m"  /  import Default from "m"  /  import { a, b as c } from "m"
	braceIdx := strings.IndexByte(clause, '{')
	var defaultPart, namedPart string
	if braceIdx >= 0 {
		defaultPart = strings.TrimSpace(strings.TrimSuffix(clause[:braceIdx], ","))
		closeIdx := strings.IndexByte(clause, '}')
		if closeIdx > braceIdx {
			namedPart = clause[braceIdx+1 : closeIdx]
		}
	} else {
		defaultPart = clause
	}

	if defaultPart != "" {
		if m := defaultSpec.FindStringSubmatch(defaultPart); m != nil {
			localName := m[1]
			if internal {
				localAliases[localName] = ""
			} else {
				node.ExternalImports.Default[module] = localName
			}
		}
	}

	if namedPart != "" {
		specs := splitSpecifiers(namedPart)
		if internal {
			// Internal named-import bindings need no bundler bookkeeping:
			// the dependency edge already lets the bundler pull in the
			// target's own exported declarations.
		} else {
			node.ExternalImports.Named[module] = append(node.ExternalImports.Named[module], specs...)
		}
	}
}

func splitSpecifiers(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	sort.Strings(out)
	return out
}

func stripExportModifier(line string) string {
	re := regexp.MustCompile(`^(\s*)export\s+(declare\s+)?(default\s+)?`)
	return re.ReplaceAllString(line, "$1$2")
}

// rewriteLocalAliases removes references to default-aliased local import
// bindings recorded during the import pass (e.g. `foo.bar` -> `bar`) per the
// GraphModel cleanup step. Only whole-word occurrences are rewritten.
func rewriteLocalAliases(text string, aliases map[string]string) string {
	for local := range aliases {
		if local == "" {
			continue
		}
		re := regexp.MustCompile(`\b` + regexp.QuoteMeta(local) + `\.`)
		text = re.ReplaceAllString(text, "")
	}
	return text
}
