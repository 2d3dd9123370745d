// Command xbuild is the CLI surface of the multi-variant build
// orchestrator: parse a config file, build every configured variant, type
// check them, or watch the source tree and rebuild on change — optionally
// serving the output with live reload. The flag parsing and subcommand
// dispatch follow please_js/main.go's go-flags layout almost exactly.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/thought-machine/go-flags"

	"github.com/remotex-labs/xBuild-sub001/internal/diagnostic"
	"github.com/remotex-labs/xBuild-sub001/internal/driver"
)

var version = "dev"

var opts = struct {
	Usage string

	Build struct {
		Config string `short:"c" long:"config" required:"true" description:"Path to xbuild config file"`
	} `command:"build" alias:"b" description:"Build every configured variant once"`

	Check struct {
		Config string `short:"c" long:"config" required:"true" description:"Path to xbuild config file"`
	} `command:"check" description:"Type-check every configured variant without emitting output"`

	Watch struct {
		Config  string `short:"c" long:"config" required:"true" description:"Path to xbuild config file"`
		Root    string `long:"root" description:"Directory to watch for changes (defaults to the config's directory)"`
		Serve   bool   `long:"serve" description:"Start the static dev server even if serve.start is false in the config"`
		Verbose bool   `short:"v" long:"verbose" description:"Log every rebuild's diagnostics"`
	} `command:"watch" alias:"w" description:"Build every variant, then rebuild on file change"`

	Version bool `long:"version" description:"Print the version and exit"`
}{
	Usage: `
xbuild orchestrates multiple esbuild-backed build variants from one config file.

It provides these main operations:
  - build: build every configured variant once and exit
  - check: type-check every configured variant without emitting output
  - watch: build, then rebuild on file change, optionally serving the result
`,
}

var subCommands = map[string]func() int{
	"build": func() int {
		d, err := driver.New(opts.Build.Config, driver.DefaultServiceFactory(cwdOf(opts.Build.Config)), os.Args)
		if err != nil {
			log.Fatal(err)
		}
		defer d.Dispose()

		results, err := d.BuildAll(context.Background())
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			return 1
		}
		failed := false
		for name, result := range results {
			if result == nil {
				continue
			}
			for _, e := range result.Errors {
				fmt.Fprintf(os.Stderr, "%s: %s\n", name, e.Text)
				failed = true
			}
		}
		if failed {
			return 1
		}
		return 0
	},
	"check": func() int {
		d, err := driver.New(opts.Check.Config, driver.DefaultServiceFactory(cwdOf(opts.Check.Config)), os.Args)
		if err != nil {
			log.Fatal(err)
		}
		defer d.Dispose()

		diags, err := d.CheckAll()
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			return 1
		}
		hasErrors := false
		for name, ds := range diags {
			for _, d := range ds {
				fmt.Fprintf(os.Stderr, "%s: %s:%d:%d %s\n", name, d.File, d.Line, d.Column, d.Message)
				if d.Severity == diagnostic.SeverityError {
					hasErrors = true
				}
			}
		}
		if hasErrors {
			return 1
		}
		return 0
	},
	"watch": func() int {
		d, err := driver.New(opts.Watch.Config, driver.DefaultServiceFactory(cwdOf(opts.Watch.Config)), os.Args)
		if err != nil {
			log.Fatal(err)
		}
		defer d.Dispose()

		if opts.Watch.Serve {
			d.ForceServe()
		}

		root := opts.Watch.Root
		if root == "" {
			root = cwdOf(opts.Watch.Config)
		}

		ctx, cancel := context.WithCancel(context.Background())
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
		go func() {
			<-sig
			cancel()
		}()

		if err := d.Watch(ctx, root); err != nil {
			fmt.Fprintln(os.Stderr, err)
			return 1
		}
		return 0
	},
}

// cwdOf is the config file's own directory, used as each language host's
// working directory. Relative entry points and tsconfig paths are passed to
// esbuild unchanged, so esbuild resolves them against the process working
// directory.
func cwdOf(configPath string) string {
	return filepath.Dir(configPath)
}

func main() {
	p := flags.NewParser(&opts, flags.Default)
	p.SubcommandsOptional = true
	cmd, err := p.Parse()
	if err != nil {
		os.Exit(1)
	}
	_ = cmd

	if opts.Version {
		fmt.Println(version)
		os.Exit(0)
	}

	if p.Active == nil {
		p.WriteHelp(os.Stderr)
		os.Exit(1)
	}
	os.Exit(subCommands[p.Active.Name]())
}
