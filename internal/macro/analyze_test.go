package macro

import "testing"

func TestAnalyze_TruthyGuardDoesNotDisable(t *testing.T) {
	src := `const $$debug = $$ifdef("DEBUG", () => console.log);`
	result := Analyze(map[string]string{"a.ts": src}, Defines{"DEBUG": true})

	if _, ok := result.FilesWithMacros["a.ts"]; !ok {
		t.Fatalf("expected a.ts to be marked as having macros")
	}
	if _, ok := result.DisabledMacroNames["$$debug"]; ok {
		t.Fatalf("expected $$debug not to be disabled under a truthy guard")
	}
}

func TestAnalyze_FalsyGuardDisablesBoundName(t *testing.T) {
	src := `const $$log = $$ifdef("DEBUG", () => console.log); $$log("hi");`
	result := Analyze(map[string]string{"a.ts": src}, Defines{"DEBUG": false})

	if _, ok := result.DisabledMacroNames["$$log"]; !ok {
		t.Fatalf("expected $$log to be disabled under a falsy guard")
	}
}

func TestAnalyze_IfndefComplementsIfdef(t *testing.T) {
	src := `const $$x = $$ifndef("RELEASE", 1);`
	result := Analyze(map[string]string{"a.ts": src}, Defines{"RELEASE": true})
	if _, ok := result.DisabledMacroNames["$$x"]; !ok {
		t.Fatalf("expected $$x disabled: ifndef complements a truthy guard")
	}
}

func TestAnalyze_FileWithoutMacrosNotMarked(t *testing.T) {
	result := Analyze(map[string]string{"a.ts": "const x = 1;"}, Defines{})
	if len(result.FilesWithMacros) != 0 {
		t.Fatalf("expected no files marked, got %v", result.FilesWithMacros)
	}
}
