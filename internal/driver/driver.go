// Package driver wires configuration, the shared language-service
// registry, the per-variant orchestrators, the file watcher, and the
// optional static dev server into the single top-level object
// cmd/xbuild's main package drives (spec §4.8/§4.9, SPEC_FULL §12).
package driver

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/remotex-labs/xBuild-sub001/internal/config"
	"github.com/remotex-labs/xBuild-sub001/internal/diagnostic"
	"github.com/remotex-labs/xBuild-sub001/internal/filecache"
	"github.com/remotex-labs/xBuild-sub001/internal/langhost"
	"github.com/remotex-labs/xBuild-sub001/internal/langhost/fake"
	"github.com/remotex-labs/xBuild-sub001/internal/lifecycle"
	"github.com/remotex-labs/xBuild-sub001/internal/reactiveconfig"
	"github.com/remotex-labs/xBuild-sub001/internal/variant"
	"github.com/remotex-labs/xBuild-sub001/internal/watcher"
)

// DefaultServiceFactory builds the language-service stack production
// orchestrators use. Per SPEC_FULL §11 the real TypeScript-compatible
// checker is a contract this repo consumes, not one it implements, so the
// default factory pairs a real langhost.Host with langhost/fake's
// in-memory double — the same pairing the test suite uses, just rooted at
// the cwd it is given (cmd/xbuild passes the config file's directory)
// instead of a t.TempDir().
func DefaultServiceFactory(cwd string) variant.ServiceFactory {
	return func(tsconfigPath string) (*langhost.Host, langhost.LanguageService, error) {
		host := langhost.New(filecache.New(), cwd)
		return host, fake.New(), nil
	}
}

// Driver owns one Config's worth of variants end to end: load, build,
// watch, and (optionally) serve.
type Driver struct {
	cwd      string
	registry *variant.ServiceRegistry
	channel  *reactiveconfig.Channel[config.Config]

	names         []string
	orchestrators map[string]*variant.Orchestrator

	serveCfg config.ServeConfig
	watcher  *watcher.Watcher
	server   *Server
}

// New loads configPath, constructs a registry around factory, and builds
// one Orchestrator per entry in cfg.Variants (merged against cfg.Common),
// each subscribed to a reactiveconfig.Channel seeded with cfg so a later
// Reload can hot-swap every variant in place (spec §4.8 construction,
// §4.9).
func New(configPath string, factory variant.ServiceFactory, argv []string) (*Driver, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	cwd := filepath.Dir(configPath)
	d := &Driver{
		cwd:           cwd,
		registry:      variant.NewServiceRegistry(factory),
		channel:       reactiveconfig.New(*cfg),
		orchestrators: make(map[string]*variant.Orchestrator, len(cfg.Variants)),
	}

	for name, vb := range cfg.Variants {
		merged := config.Merge(cfg.Common, vb)
		hub := lifecycle.New(name)
		o, err := variant.New(name, d.registry, hub, merged, argv, d.channel)
		if err != nil {
			d.Dispose()
			return nil, fmt.Errorf("variant %s: %w", name, err)
		}
		d.orchestrators[name] = o
		d.names = append(d.names, name)
	}
	sort.Strings(d.names)

	d.serveCfg = cfg.Serve
	if cfg.Serve.Start {
		d.server = NewServer(cfg.Serve)
	}

	return d, nil
}

// Reload reparses configPath and republishes it on the reactive config
// channel, driving every subscribed Orchestrator through
// HandleConfigChange (spec §4.9's hot-reload path). Variants added or
// removed from cfg.Variants between loads are not picked up — the set of
// Orchestrators is fixed at New; only existing variants' settings change.
func (d *Driver) Reload(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	return d.channel.Next(*cfg)
}

// BuildAll runs every Orchestrator's build concurrently via
// variant.BuildAll, in the driver's sorted variant-name order so results
// are reproducible across runs.
func (d *Driver) BuildAll(ctx context.Context) (map[string]*variant.BuildResult, error) {
	ordered := make([]*variant.Orchestrator, len(d.names))
	for i, name := range d.names {
		ordered[i] = d.orchestrators[name]
	}

	results, err := variant.BuildAll(ctx, ordered)
	byName := make(map[string]*variant.BuildResult, len(d.names))
	for i, name := range d.names {
		if i < len(results) {
			byName[name] = results[i]
		}
	}
	return byName, err
}

// CheckAll runs every Orchestrator's Check and returns the diagnostics per
// variant name.
func (d *Driver) CheckAll() (map[string][]diagnostic.Diagnostic, error) {
	out := make(map[string][]diagnostic.Diagnostic, len(d.names))
	for _, name := range d.names {
		diags, err := d.orchestrators[name].Check()
		if err != nil {
			return out, fmt.Errorf("variant %s: %w", name, err)
		}
		out[name] = diags
	}
	return out, nil
}

// StartServe starts the static dev server, if one exists (either because
// cfg.Serve.start was set at New time, or ForceServe constructed one since);
// it is a no-op otherwise.
func (d *Driver) StartServe() {
	if d.server != nil {
		d.server.Start()
	}
}

// ForceServe constructs the static dev server from the loaded config's
// serve block even when serve.start is false, honoring the CLI's `--serve`
// flag (spec §6) regardless of what the config file says. It does not
// start listening — call StartServe (or Watch, which calls it) afterward.
// A no-op if the server already exists.
func (d *Driver) ForceServe() {
	if d.server == nil {
		d.server = NewServer(d.serveCfg)
	}
}

// Watch builds every variant once, then watches root for changes,
// triggering a debounced rebuild of every variant per batch and — when a
// dev server is running — broadcasting a reload event afterward. It
// blocks until ctx is canceled.
func (d *Driver) Watch(ctx context.Context, root string) error {
	if _, err := d.BuildAll(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "initial build: %v\n", err)
	}
	d.StartServe()

	w, err := watcher.New(watcher.DefaultDebounce)
	if err != nil {
		return fmt.Errorf("starting watcher: %w", err)
	}
	d.watcher = w
	defer w.Close()

	if err := w.AddRecursive(root); err != nil {
		return fmt.Errorf("watching %s: %w", root, err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-w.Errors():
			fmt.Fprintf(os.Stderr, "watch: %v\n", err)
		case paths := <-w.Changes():
			fmt.Fprintf(os.Stderr, "rebuilding (%d file(s) changed)\n", len(paths))
			if _, err := d.BuildAll(ctx); err != nil {
				fmt.Fprintf(os.Stderr, "rebuild: %v\n", err)
				continue
			}
			if d.server != nil {
				d.server.Reload()
			}
		}
	}
}

// Dispose releases every Orchestrator's shared language-service entry and
// closes the dev server, if any.
func (d *Driver) Dispose() {
	for _, name := range d.names {
		d.orchestrators[name].Dispose()
	}
	if d.watcher != nil {
		d.watcher.Close()
	}
	if d.server != nil {
		d.server.Close()
	}
}
