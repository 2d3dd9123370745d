package macro

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/evanw/esbuild/pkg/api"
)

// NodeEvaluator is the real Evaluator: it transpiles a `$$inline` argument
// via esbuild's Transform API (the same call please_js's transpile.Run
// makes for standalone TS/TSX/JSX files) and executes the result as a
// throwaway Node.js script, the same child-process pattern
// esmdev.detectCJSExports uses to probe CommonJS exports — a short-lived
// `exec.CommandContext` with a hard timeout and a graceful fallback value
// on any failure.
type NodeEvaluator struct {
	NodePath string
	Timeout  time.Duration
}

// NewNodeEvaluator returns an Evaluator that shells out to nodePath (or
// "node" on PATH if empty) with a 10 second per-call timeout.
func NewNodeEvaluator(nodePath string) *NodeEvaluator {
	if nodePath == "" {
		nodePath = "node"
	}
	return &NodeEvaluator{NodePath: nodePath, Timeout: 10 * time.Second}
}

var identRe = regexp.MustCompile(`^[A-Za-z_$][A-Za-z0-9_$]*$`)
var funcDeclRe = regexp.MustCompile(`function\s+([A-Za-z_$][A-Za-z0-9_$]*)\s*\(`)

func isFunctionLike(expr string) bool {
	if strings.HasPrefix(expr, "function") {
		return true
	}
	return arrowRe.MatchString(expr)
}

// resolveExprSource returns the host-language source to evaluate for expr,
// resolving a bare identifier to a same-file function declaration. ok is
// false only when expr is a bare identifier with no matching declaration
// (an InlineResolutionWarning case).
func resolveExprSource(expr, src string) (resolved string, ok bool) {
	if !identRe.MatchString(expr) {
		return expr, true
	}
	for _, loc := range funcDeclRe.FindAllStringSubmatchIndex(src, -1) {
		if src[loc[2]:loc[3]] != expr {
			continue
		}
		braceOpen := strings.IndexByte(src[loc[1]:], '{')
		if braceOpen < 0 {
			continue
		}
		braceOpen += loc[1]
		if close, ok := matchBrace(src, braceOpen); ok {
			return src[loc[0]:close], true
		}
	}
	return "", false
}

// matchBrace finds the index of the '}' matching src[open] (a '{').
func matchBrace(src string, open int) (int, bool) {
	depth := 0
	for i := open; i < len(src); i++ {
		switch src[i] {
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i, true
			}
		}
	}
	return 0, false
}

// wrapInlineExpr builds the module body to transpile and execute: a
// function-like expression (including one resolved from an identifier) is
// invoked immediately via an IIFE; any other expression is assigned as-is.
func wrapInlineExpr(resolved string) string {
	if isFunctionLike(resolved) || strings.HasPrefix(strings.TrimSpace(resolved), "function") {
		return fmt.Sprintf("module.exports = (%s)();", resolved)
	}
	return fmt.Sprintf("module.exports = (%s);", resolved)
}

// stringifyScript converts module.exports into the macro's substitution
// text per the conversion rule: null/undefined -> "undefined", strings
// as-is, numbers/booleans via toString, everything else JSON-stringified.
const stringifyScript = `
(function() {
  var v = module.exports;
  var out;
  if (v === null || v === undefined) { out = "undefined"; }
  else if (typeof v === "string") { out = v; }
  else if (typeof v === "number" || typeof v === "boolean") { out = String(v); }
  else { out = JSON.stringify(v); }
  process.stdout.write(out);
})();
`

// Evaluate transpiles and executes expr (the raw `$$inline` argument text)
// from a temporary script in the directory of file, so __dirname and any
// require() resolution reflect the directory of the file the macro came
// from; __filename names the temporary script, not file.
func (e *NodeEvaluator) Evaluate(expr, file string, line int) (string, *Diagnostic) {
	src, err := os.ReadFile(file)
	var hostSrc string
	if err == nil {
		hostSrc = string(src)
	}

	resolved, ok := resolveExprSource(expr, hostSrc)
	if !ok {
		return "undefined", &Diagnostic{
			File: file, Line: line,
			Message: fmt.Sprintf("$$inline: could not resolve function reference %q in this file", expr),
		}
	}

	body := wrapInlineExpr(resolved) + stringifyScript

	result := api.Transform(body, api.TransformOptions{
		Loader:     api.LoaderTS,
		Format:     api.FormatCommonJS,
		Target:     api.ESNext,
		Platform:   api.PlatformNode,
		Sourcefile: filepath.Base(file) + ".inline.ts",
	})
	if len(result.Errors) > 0 {
		return "undefined", &Diagnostic{File: file, Line: line, Message: fmt.Sprintf("$$inline: transpile failed: %s", result.Errors[0].Text)}
	}

	out, err := e.run(result.Code, filepath.Dir(file))
	if err != nil {
		return "undefined", &Diagnostic{File: file, Line: line, Message: fmt.Sprintf("$$inline: %v", err)}
	}
	return out, nil
}

func (e *NodeEvaluator) run(code []byte, dir string) (string, error) {
	tmp, err := os.CreateTemp(dir, ".xbuild-inline-*.cjs")
	if err != nil {
		return "", fmt.Errorf("creating sandbox script: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(code); err != nil {
		tmp.Close()
		return "", fmt.Errorf("writing sandbox script: %w", err)
	}
	tmp.Close()

	ctx, cancel := context.WithTimeout(context.Background(), e.Timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, e.NodePath, filepath.Base(tmp.Name()))
	cmd.Dir = dir
	out, err := cmd.CombinedOutput()
	if err != nil {
		return "", fmt.Errorf("sandbox execution failed: %s", strings.TrimSpace(string(out)))
	}
	return string(out), nil
}
