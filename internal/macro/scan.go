// Package macro implements the directive engine: detection and expansion of
// `$$ifdef`, `$$ifndef`, and `$$inline` pseudo-calls. Like graphmodel, it
// works without a real TypeScript/JavaScript AST (none is vendored in this
// module); call sites are located by scanning source text for the `$$name(`
// token and splitting their argument lists by bracket depth (graphmodel,
// by contrast, matches import/export clauses with per-line regexes).
package macro

import (
	"fmt"
	"regexp"
	"strings"
)

const (
	nameIfdef  = "ifdef"
	nameIfndef = "ifndef"
	nameInline = "inline"
)

var macroCallRe = regexp.MustCompile(`\$\$(ifdef|ifndef|inline)\s*\(`)

// CallSite is one `$$name(...)` occurrence in a source file.
type CallSite struct {
	Macro      string // "ifdef", "ifndef", "inline"
	Start      int    // index of the leading '$'
	ParenOpen  int    // index of the call's opening '('
	ParenClose int    // index of the matching ')'
	Args       []string
	ArgSpans   [][2]int
	Line       int // 1-based line of Start
	Column     int // 1-based column of Start
}

// ArityError reports a macro call with the wrong number of arguments.
type ArityError struct {
	Macro string
	Got   int
	Line  int
}

func (e *ArityError) Error() string {
	return fmt.Sprintf("Invalid macro call: %s with %d arguments", e.Macro, e.Got)
}

// ScanCallSites finds every `$$ifdef`/`$$ifndef`/`$$inline` call in src, in
// source order. Arity is validated per call; a violation is reported via the
// returned error slice but scanning continues over the rest of the file.
func ScanCallSites(src string) ([]CallSite, []error) {
	var sites []CallSite
	var errs []error

	for _, loc := range macroCallRe.FindAllStringSubmatchIndex(src, -1) {
		start, nameStart, nameEnd := loc[0], loc[2], loc[3]
		name := src[nameStart:nameEnd]
		parenOpen := loc[1] - 1 // the regex match ends just past '('

		parenClose, args, spans, ok := splitArgs(src, parenOpen)
		if !ok {
			continue
		}

		line, col := lineCol(src, start)
		site := CallSite{
			Macro:      name,
			Start:      start,
			ParenOpen:  parenOpen,
			ParenClose: parenClose,
			Args:       args,
			ArgSpans:   spans,
			Line:       line,
			Column:     col,
		}
		sites = append(sites, site)

		want := 2
		if name == nameInline {
			want = 1
		}
		if len(args) != want {
			errs = append(errs, &ArityError{Macro: "$$" + name, Got: len(args), Line: line})
		}
	}

	return sites, errs
}

// splitArgs walks from src[parenOpen] (an opening '(') to its matching ')'
// and splits the contents into top-level, comma-separated argument texts,
// skipping over nested brackets and quoted strings.
func splitArgs(src string, parenOpen int) (closeIdx int, args []string, spans [][2]int, ok bool) {
	depth := 0
	argStart := parenOpen + 1
	i := parenOpen
	for i < len(src) {
		c := src[i]
		switch c {
		case '(', '{', '[':
			depth++
		case ')', '}', ']':
			depth--
			if depth == 0 && c == ')' {
				text := src[argStart:i]
				if strings.TrimSpace(text) != "" || len(args) > 0 {
					args = append(args, strings.TrimSpace(text))
					spans = append(spans, [2]int{argStart, i})
				}
				return i, args, spans, true
			}
		case ',':
			if depth == 1 {
				args = append(args, strings.TrimSpace(src[argStart:i]))
				spans = append(spans, [2]int{argStart, i})
				argStart = i + 1
			}
		case '"', '\'', '`':
			i = skipString(src, i, c) + 1
			continue
		}
		i++
	}
	return 0, nil, nil, false
}

// skipString returns the index of the closing quote matching the quote at
// src[i], honoring backslash escapes.
func skipString(src string, i int, quote byte) int {
	j := i + 1
	for j < len(src) {
		if src[j] == '\\' {
			j += 2
			continue
		}
		if src[j] == quote {
			return j
		}
		j++
	}
	return j
}

func lineCol(src string, pos int) (line, col int) {
	line = 1
	lastNewline := -1
	for i := 0; i < pos && i < len(src); i++ {
		if src[i] == '\n' {
			line++
			lastNewline = i
		}
	}
	col = pos - lastNewline
	return line, col
}
