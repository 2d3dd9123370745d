package macro

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// Replacement is a single non-overlapping source-text substitution.
type Replacement struct {
	Start, End int
	Text       string
}

// Diagnostic is a transform-time finding, independent of this module's
// internal/diagnostic.Collector so the macro package has no import-time
// dependency on it; callers adapt.
type Diagnostic struct {
	File    string
	Line    int
	Column  int
	Message string
}

// Evaluator executes a `$$inline` argument's host-language text at build
// time and returns its stringified result. The real Evaluator transpiles the
// expression with esbuild's Transform API (it is not bundled; its imports
// are resolved by Node at run time) and runs it in a child Node.js process
// (see inline.go); tests substitute a fake.
type Evaluator interface {
	Evaluate(expr, file string, line int) (string, *Diagnostic)
}

// TransformResult is the outcome of transforming one file.
type TransformResult struct {
	Text     string
	Changed  bool
	Errors   []Diagnostic
	Warnings []Diagnostic
}

// Transform applies MacroEngine's transform phase to src, using analysis to
// decide whether the file needs to be visited at all and which identifiers
// are bound to a disabled definition.
func Transform(file, src string, defines Defines, analysis *AnalysisResult, eval Evaluator) TransformResult {
	_, hasMacros := analysis.FilesWithMacros[file]
	if !hasMacros && len(analysis.DisabledMacroNames) == 0 {
		return TransformResult{Text: src}
	}

	sites, arityErrs := ScanCallSites(src)

	var result TransformResult
	for _, e := range arityErrs {
		result.Errors = append(result.Errors, Diagnostic{File: file, Message: e.Error()})
	}

	var replacements []Replacement
	covered := make([]([2]int), 0, len(sites))

	for _, site := range sites {
		want := 2
		if site.Macro == nameInline {
			want = 1
		}
		if len(site.Args) != want {
			continue
		}

		name, isVarInit := boundVariableName(src, site)

		var repl *Replacement
		var diag *Diagnostic
		switch site.Macro {
		case nameIfdef, nameIfndef:
			guard := Truthy(defines[unquote(site.Args[0])])
			if site.Macro == nameIfndef {
				guard = !guard
			}
			if isVarInit {
				repl = defineVariable(src, site, name, guard)
			} else {
				repl = defineCall(site, guard)
			}
		case nameInline:
			value, d := evaluateInline(eval, file, src, site)
			diag = d
			if isVarInit {
				repl = inlineVariable(site, value)
			} else {
				repl = inlineCall(site, value)
			}
		}

		if diag != nil {
			if site.Macro == nameInline {
				result.Warnings = append(result.Warnings, *diag)
			} else {
				result.Errors = append(result.Errors, *diag)
			}
		}
		if repl == nil {
			continue
		}
		replacements = append(replacements, *repl)
		covered = append(covered, [2]int{repl.Start, repl.End})
	}

	replacements = append(replacements, disabledNameReplacements(src, analysis.DisabledMacroNames, covered)...)

	text, changed := applyReplacements(src, replacements)
	result.Text = text
	result.Changed = changed
	return result
}

// defineVariable handles `const NAME = $$ifdef(GUARD, VALUE);` (and
// $$ifndef). A truthy guard whose value looks like a function expression is
// hoisted into a named function declaration so later code in the same file
// can reference NAME regardless of lexical position; any other truthy value
// simply replaces the macro call with its raw text. A falsy guard replaces
// the macro call with the literal `undefined` (the binding itself is also
// recorded in disabledMacroNames during analysis).
func defineVariable(src string, site CallSite, name string, truthy bool) *Replacement {
	if !truthy {
		return &Replacement{Start: site.Start, End: site.ParenClose + 1, Text: "undefined"}
	}

	value := site.Args[1]
	if fn, ok := asFunctionDecl(name, value); ok {
		stmtStart := statementStart(src, site.Start)
		return &Replacement{Start: stmtStart, End: site.ParenClose + 1, Text: fn}
	}
	return &Replacement{Start: site.Start, End: site.ParenClose + 1, Text: value}
}

// defineCall handles a bare `$$ifdef(GUARD, VALUE);` expression statement.
func defineCall(site CallSite, truthy bool) *Replacement {
	if !truthy {
		return &Replacement{Start: site.Start, End: site.ParenClose + 1, Text: "undefined"}
	}
	return &Replacement{Start: site.Start, End: site.ParenClose + 1, Text: site.Args[1]}
}

func inlineVariable(site CallSite, value string) *Replacement {
	return &Replacement{Start: site.Start, End: site.ParenClose + 1, Text: value}
}

func inlineCall(site CallSite, value string) *Replacement {
	return &Replacement{Start: site.Start, End: site.ParenClose + 1, Text: value}
}

func evaluateInline(eval Evaluator, file, src string, site CallSite) (string, *Diagnostic) {
	if eval == nil {
		return "undefined", nil
	}
	result, diag := eval.Evaluate(site.Args[0], file, site.Line)
	if diag != nil {
		return "undefined", diag
	}
	_ = src
	return result, nil
}

var declStartRe = regexp.MustCompile(`(?:export\s+)?(?:const|let|var)\s*$`)

// statementStart walks backward from a macro call's start to the beginning
// of its enclosing `const`/`let`/`var` declaration, so a hoisted function
// replacement can take over the whole statement rather than just the
// initializer.
func statementStart(src string, from int) int {
	line := strings.LastIndex(src[:from], "\n") + 1
	prefix := src[line:from]
	if m := declStartRe.FindStringIndex(trimTrailingAssignAndName(prefix)); m != nil {
		return line + m[0]
	}
	return line
}

var nameAndEqRe = regexp.MustCompile(`[$\w]+\s*=\s*(?:<[^>]+>\s*)?$`)

func trimTrailingAssignAndName(prefix string) string {
	loc := nameAndEqRe.FindStringIndex(prefix)
	if loc == nil {
		return prefix
	}
	return prefix[:loc[0]]
}

var arrowRe = regexp.MustCompile(`(?s)^\(?([^()=]*)\)?\s*=>\s*(.*)$`)

// asFunctionDecl recognizes `(params) => body` / `param => body` and
// function expressions, returning an equivalent named function declaration.
func asFunctionDecl(name, value string) (string, bool) {
	if strings.HasPrefix(value, "function") {
		rest := strings.TrimPrefix(value, "function")
		rest = strings.TrimSpace(rest)
		if idx := strings.Index(rest, "("); idx >= 0 {
			return fmt.Sprintf("function %s%s", name, rest[idx:]), true
		}
		return "", false
	}

	m := arrowRe.FindStringSubmatch(value)
	if m == nil {
		return "", false
	}
	params := strings.TrimSpace(m[1])
	body := strings.TrimSpace(m[2])
	if strings.HasPrefix(body, "{") {
		return fmt.Sprintf("function %s(%s) %s", name, params, body), true
	}
	return fmt.Sprintf("function %s(%s) { return %s; }", name, params, body), true
}

// disabledNameReplacements replaces every reference to a disabled macro
// name outside its own declaration and outside spans already covered by
// another replacement, per step 5 of the transform phase: a call expression
// is replaced whole, a bare identifier is replaced in place.
func disabledNameReplacements(src string, disabled map[string]struct{}, covered [][2]int) []Replacement {
	var out []Replacement
	names := make([]string, 0, len(disabled))
	for n := range disabled {
		names = append(names, n)
	}
	sort.Strings(names)

	for _, name := range names {
		declRe := regexp.MustCompile(`(?:const|let|var)\s+` + regexp.QuoteMeta(name) + `\b`)
		declLoc := declRe.FindStringIndex(src)

		useRe := regexp.MustCompile(`(?:^|[^$\w])(` + regexp.QuoteMeta(name) + `)\b(\s*\()?`)
		for _, loc := range useRe.FindAllStringSubmatchIndex(src, -1) {
			start, end := loc[2], loc[3]
			if declLoc != nil && start >= declLoc[0] && start < declLoc[1] {
				continue
			}
			if overlaps(start, end, covered) {
				continue
			}
			if loc[4] != -1 {
				// followed by '(' -> a call; consume through the matching ')'
				parenOpen := strings.IndexByte(src[end-1:], '(')
				if parenOpen >= 0 {
					parenOpen += end - 1
					if closeIdx, _, _, ok := splitArgs(src, parenOpen); ok {
						end = closeIdx + 1
					}
				}
			}
			out = append(out, Replacement{Start: start, End: end, Text: "undefined"})
		}
	}
	return out
}

func overlaps(start, end int, spans [][2]int) bool {
	for _, s := range spans {
		if start < s[1] && end > s[0] {
			return true
		}
	}
	return false
}

// applyReplacements sorts replacements by start position and applies them
// right-to-left so earlier spans are not invalidated by later ones'
// position shifts. Overlapping replacements are resolved by keeping the
// first one encountered in sorted order and dropping the rest.
func applyReplacements(src string, replacements []Replacement) (string, bool) {
	if len(replacements) == 0 {
		return src, false
	}
	sort.Slice(replacements, func(i, j int) bool { return replacements[i].Start < replacements[j].Start })

	var kept []Replacement
	lastEnd := -1
	for _, r := range replacements {
		if r.Start < lastEnd {
			continue
		}
		kept = append(kept, r)
		lastEnd = r.End
	}

	out := src
	for i := len(kept) - 1; i >= 0; i-- {
		r := kept[i]
		out = out[:r.Start] + r.Text + out[r.End:]
	}
	return out, len(kept) > 0
}
