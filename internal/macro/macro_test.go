package macro

type fakeEvaluator struct {
	result string
	diag   *Diagnostic
}

func (f fakeEvaluator) Evaluate(expr, file string, line int) (string, *Diagnostic) {
	return f.result, f.diag
}
