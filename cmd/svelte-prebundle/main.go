package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"
)

// Set with -ldflags "-X main.version=..."
var version = "dev"

const longHelp = `Prebundles the component libraries an application depends on.

Every entry point is bundled with esbuild. Component files reached from the
entry points are compiled with the project's own compiler, and a report of
the compile time per package is printed at the end of each build.

Settings come from svelte-prebundle.yaml, SVELTE_PREBUNDLE_* environment
variables (".env" files are read too) and the flags below, in increasing
priority.`

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "svelte-prebundle [flags] [entry points]",
		Short:         "Prebundle component libraries with esbuild",
		Long:          longHelp,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          runBuild,
	}

	flags := cmd.Flags()
	flags.String("config", "", "config file (default: svelte-prebundle.yaml in the root)")
	flags.String("root", ".", "project root that compilers and packages are resolved from")
	flags.String("outdir", "node_modules/.svelte-prebundle", "output directory")
	flags.String("mode", "client", "build to run (client, ssr or both)")
	flags.StringSlice("ext", []string{".svelte"}, "component file extensions")
	flags.String("css", "injected", "component CSS (injected, external or none)")
	flags.Bool("dev", false, "compile components in dev mode")
	flags.String("node", "node", "node executable")
	flags.Duration("node-timeout", 0, "time limit for compiling one component (default 30s)")
	flags.Bool("no-script", false, "do not preprocess <script lang=\"ts\"> blocks")
	flags.Bool("no-style", false, "do not preprocess <style> blocks")
	flags.String("style-config", "", "style preprocessor config file, relative to the root")
	flags.String("metrics-file", "", "write Prometheus metrics to this file")
	flags.Bool("debug", false, "log compile options and other details")
	flags.String("color", "auto", "colorize output (auto, always or never)")

	return cmd
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "svelte-prebundle: %v\n", err)
		stop()
		os.Exit(1)
	}
}
