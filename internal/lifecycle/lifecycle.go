// Package lifecycle implements the LifecycleHub: ordered registries of
// onStart/onResolve/onLoad/onEnd/onSuccess handlers that produce a real
// esbuild plugin via Hub.Plugin(). Handler execution within one hook kind is
// sequential in registration order, with results aggregated the way
// please_js's common.ModuleResolvePlugin and common.TailwindPlugin build
// their own single-purpose api.Plugin values.
//
// esbuild's Go API has no OnSuccess hook (confirmed against
// github.com/evanw/esbuild/pkg/api's own plugin wiring in api_impl.go), so
// onSuccess handlers registered here are not adapted into the esbuild
// plugin at all; VariantOrchestrator.build invokes them directly after a
// zero-error api.Build result.
package lifecycle

import (
	"fmt"

	"github.com/evanw/esbuild/pkg/api"
)

// Message is a hook-reported error or warning, independent of esbuild's own
// api.Message so core hook handlers don't need to import esbuild to satisfy
// this package's handler signatures.
type Message struct {
	Text   string
	File   string
	Line   int
	Column int
}

func (m Message) toAPI() api.Message {
	loc := &api.Location{File: m.File, Line: m.Line, Column: m.Column}
	if m.File == "" {
		loc = nil
	}
	return api.Message{Text: m.Text, Location: loc}
}

// HookResult is what onStart/onEnd handlers return.
type HookResult struct {
	Errors   []Message
	Warnings []Message
}

// OnStartHandler runs before the bundler does any work for a build.
type OnStartHandler func() (HookResult, error)

// ResolveArgs/ResolveResult/LoadArgs/LoadResult mirror esbuild's
// OnResolve/OnLoad argument and result shapes directly (spec §6's plugin
// contract matches esbuild's own hook shapes closely enough that
// re-exporting rather than re-declaring keeps the adapter thin).
type ResolveArgs = api.OnResolveArgs
type ResolveResult = api.OnResolveResult
type LoadArgs = api.OnLoadArgs
type LoadResult = api.OnLoadResult

// OnResolveHandler is registered under a filter/namespace pair.
type OnResolveHandler func(ResolveArgs) (ResolveResult, error)

// OnLoadHandler is registered under a filter/namespace pair.
type OnLoadHandler func(LoadArgs) (LoadResult, error)

// OnEndHandler runs after the bundler has produced a result.
type OnEndHandler func(*api.BuildResult) (HookResult, error)

// OnSuccessHandler runs after a zero-error build, invoked directly by the
// orchestrator rather than through the esbuild plugin (see package doc).
type OnSuccessHandler func(*api.BuildResult)

type resolveRegistration struct {
	id        int
	filter    string
	namespace string
	handler   OnResolveHandler
}

type loadRegistration struct {
	id        int
	filter    string
	namespace string
	handler   OnLoadHandler
}

// Hub maintains ordered handler lists per hook kind and produces an esbuild
// plugin reflecting their registration order.
type Hub struct {
	name string

	nextID int

	onStart   []OnStartHandler
	onResolve []resolveRegistration
	onLoad    []loadRegistration
	onEnd     []OnEndHandler
	onSuccess []OnSuccessHandler
}

// New creates a Hub; name identifies the resulting plugin (esbuild requires
// every plugin to be named).
func New(name string) *Hub {
	return &Hub{name: name}
}

// OnStart registers handler, returning its registration id.
func (h *Hub) OnStart(handler OnStartHandler) int {
	h.nextID++
	h.onStart = append(h.onStart, handler)
	return h.nextID
}

// OnResolve registers handler under filter/namespace, returning its
// registration id.
func (h *Hub) OnResolve(filter, namespace string, handler OnResolveHandler) int {
	h.nextID++
	h.onResolve = append(h.onResolve, resolveRegistration{id: h.nextID, filter: filter, namespace: namespace, handler: handler})
	return h.nextID
}

// OnLoad registers handler under filter/namespace, returning its
// registration id.
func (h *Hub) OnLoad(filter, namespace string, handler OnLoadHandler) int {
	h.nextID++
	h.onLoad = append(h.onLoad, loadRegistration{id: h.nextID, filter: filter, namespace: namespace, handler: handler})
	return h.nextID
}

// OnEnd registers handler, returning its registration id.
func (h *Hub) OnEnd(handler OnEndHandler) int {
	h.nextID++
	h.onEnd = append(h.onEnd, handler)
	return h.nextID
}

// OnSuccess registers handler, returning its registration id. See the
// package doc for why this never reaches the esbuild plugin.
func (h *Hub) OnSuccess(handler OnSuccessHandler) int {
	h.nextID++
	h.onSuccess = append(h.onSuccess, handler)
	return h.nextID
}

// RunOnSuccess invokes every registered onSuccess handler, in registration
// order, with result.
func (h *Hub) RunOnSuccess(result *api.BuildResult) {
	for _, handler := range h.onSuccess {
		handler(result)
	}
}

// Plugin builds the esbuild api.Plugin reflecting every onStart/onResolve/
// onLoad/onEnd registration. Handler errors are converted into a single
// plugin-level error message rather than allowed to escape, matching the
// Hub adapter's centralized error-to-diagnostic conversion.
func (h *Hub) Plugin() api.Plugin {
	return api.Plugin{
		Name: h.name,
		Setup: func(build api.PluginBuild) {
			for _, handler := range h.onStart {
				handler := handler
				build.OnStart(func() (api.OnStartResult, error) {
					result, err := handler()
					if err != nil {
						return api.OnStartResult{Errors: []api.Message{{Text: err.Error()}}}, nil
					}
					return api.OnStartResult{Errors: toAPIMessages(result.Errors), Warnings: toAPIMessages(result.Warnings)}, nil
				})
			}

			for _, reg := range h.onResolve {
				reg := reg
				build.OnResolve(api.OnResolveOptions{Filter: reg.filter, Namespace: reg.namespace}, func(args api.OnResolveArgs) (api.OnResolveResult, error) {
					return reg.handler(args)
				})
			}

			for _, reg := range h.onLoad {
				reg := reg
				build.OnLoad(api.OnLoadOptions{Filter: reg.filter, Namespace: reg.namespace}, func(args api.OnLoadArgs) (api.OnLoadResult, error) {
					return reg.handler(args)
				})
			}

			for _, handler := range h.onEnd {
				handler := handler
				build.OnEnd(func(result *api.BuildResult) (api.OnEndResult, error) {
					hookResult, err := handler(result)
					if err != nil {
						return api.OnEndResult{Errors: []api.Message{{Text: fmt.Sprintf("onEnd: %v", err)}}}, nil
					}
					return api.OnEndResult{Errors: toAPIMessages(hookResult.Errors), Warnings: toAPIMessages(hookResult.Warnings)}, nil
				})
			}
		},
	}
}

func toAPIMessages(messages []Message) []api.Message {
	out := make([]api.Message, 0, len(messages))
	for _, m := range messages {
		out = append(out, m.toAPI())
	}
	return out
}
