package lifecycle

import (
	"errors"
	"testing"

	"github.com/evanw/esbuild/pkg/api"
)

// capturingBuild simulates the esbuild PluginBuild the real bundler would
// pass into Plugin.Setup, recording registered callbacks instead of
// wiring them into an actual build.
type capturingBuild struct {
	onStart   []func() (api.OnStartResult, error)
	onResolve []func(api.OnResolveArgs) (api.OnResolveResult, error)
	onLoad    []func(api.OnLoadArgs) (api.OnLoadResult, error)
	onEnd     []func(*api.BuildResult) (api.OnEndResult, error)
}

func (c *capturingBuild) pluginBuild() api.PluginBuild {
	return api.PluginBuild{
		OnStart: func(cb func() (api.OnStartResult, error)) {
			c.onStart = append(c.onStart, cb)
		},
		OnResolve: func(_ api.OnResolveOptions, cb func(api.OnResolveArgs) (api.OnResolveResult, error)) {
			c.onResolve = append(c.onResolve, cb)
		},
		OnLoad: func(_ api.OnLoadOptions, cb func(api.OnLoadArgs) (api.OnLoadResult, error)) {
			c.onLoad = append(c.onLoad, cb)
		},
		OnEnd: func(cb func(*api.BuildResult) (api.OnEndResult, error)) {
			c.onEnd = append(c.onEnd, cb)
		},
	}
}

func TestHub_PluginRegistersHandlersInOrder(t *testing.T) {
	h := New("test-hub")

	var order []string
	h.OnStart(func() (HookResult, error) {
		order = append(order, "first")
		return HookResult{}, nil
	})
	h.OnStart(func() (HookResult, error) {
		order = append(order, "second")
		return HookResult{}, nil
	})

	captured := &capturingBuild{}
	h.Plugin().Setup(captured.pluginBuild())

	if len(captured.onStart) != 2 {
		t.Fatalf("expected 2 onStart registrations, got %d", len(captured.onStart))
	}
	captured.onStart[0]()
	captured.onStart[1]()
	if len(order) != 2 || order[0] != "first" || order[1] != "second" {
		t.Fatalf("expected sequential registration order, got %v", order)
	}
}

func TestHub_OnStartErrorBecomesPluginMessage(t *testing.T) {
	h := New("test-hub")
	h.OnStart(func() (HookResult, error) {
		return HookResult{}, errors.New("boom")
	})

	captured := &capturingBuild{}
	h.Plugin().Setup(captured.pluginBuild())

	result, err := captured.onStart[0]()
	if err != nil {
		t.Fatalf("expected the handler error to be converted, not propagated: %v", err)
	}
	if len(result.Errors) != 1 || result.Errors[0].Text != "boom" {
		t.Fatalf("expected converted error message, got %v", result.Errors)
	}
}

func TestHub_OnEndAggregatesWarningsAndErrors(t *testing.T) {
	h := New("test-hub")
	h.OnEnd(func(*api.BuildResult) (HookResult, error) {
		return HookResult{
			Errors:   []Message{{Text: "bad"}},
			Warnings: []Message{{Text: "careful"}},
		}, nil
	})

	captured := &capturingBuild{}
	h.Plugin().Setup(captured.pluginBuild())

	result, err := captured.onEnd[0](&api.BuildResult{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.Errors) != 1 || len(result.Warnings) != 1 {
		t.Fatalf("expected 1 error and 1 warning, got %+v", result)
	}
}

func TestHub_OnSuccessBypassesEsbuildPlugin(t *testing.T) {
	h := New("test-hub")
	called := false
	h.OnSuccess(func(*api.BuildResult) { called = true })

	captured := &capturingBuild{}
	h.Plugin().Setup(captured.pluginBuild())

	if len(captured.onEnd) != 0 {
		t.Fatalf("onSuccess handlers must not be wired into esbuild's OnEnd")
	}

	h.RunOnSuccess(&api.BuildResult{})
	if !called {
		t.Fatalf("expected RunOnSuccess to invoke the registered handler directly")
	}
}

func TestHub_OnResolveAndOnLoadRegistered(t *testing.T) {
	h := New("test-hub")
	h.OnResolve("^[^./]", "", func(args ResolveArgs) (ResolveResult, error) {
		return ResolveResult{Path: "resolved"}, nil
	})
	h.OnLoad(`\.css$`, "", func(args LoadArgs) (LoadResult, error) {
		return LoadResult{}, nil
	})

	captured := &capturingBuild{}
	h.Plugin().Setup(captured.pluginBuild())

	if len(captured.onResolve) != 1 || len(captured.onLoad) != 1 {
		t.Fatalf("expected 1 onResolve and 1 onLoad registration, got %d/%d", len(captured.onResolve), len(captured.onLoad))
	}
	result, err := captured.onResolve[0](api.OnResolveArgs{Path: "x"})
	if err != nil || result.Path != "resolved" {
		t.Fatalf("unexpected onResolve result: %+v err=%v", result, err)
	}
}
