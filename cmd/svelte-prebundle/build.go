package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/evanw/esbuild/pkg/api"
	"github.com/fatih/color"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/evanw/svelte-prebundle/internal/config"
	"github.com/evanw/svelte-prebundle/internal/logger"
	"github.com/evanw/svelte-prebundle/internal/metrics"
	"github.com/evanw/svelte-prebundle/internal/stats"
	"github.com/evanw/svelte-prebundle/pkg/compiler"
	"github.com/evanw/svelte-prebundle/pkg/prebundle"
	"github.com/evanw/svelte-prebundle/pkg/preprocess"
)

type buildResult struct {
	mode     string
	errors   []api.Message
	warnings []api.Message
	outputs  int
	took     time.Duration
}

func runBuild(cmd *cobra.Command, args []string) error {
	configFile, _ := cmd.Flags().GetString("config")
	root, _ := cmd.Flags().GetString("root")

	cfg, err := config.Load(config.LoadOptions{ConfigFile: configFile, Flags: cmd.Flags(), Dir: root})
	if err != nil {
		return err
	}
	if len(args) > 0 {
		cfg.Entries = args
	}
	if len(cfg.Entries) == 0 {
		return errors.New("no entry points (pass them as arguments or set \"entries\" in the config file)")
	}

	colorMode, ok := logger.ParseColor(cfg.Color)
	if !ok {
		return fmt.Errorf("invalid --color %q", cfg.Color)
	}
	level := zerolog.InfoLevel
	if cfg.Debug {
		level = zerolog.DebugLevel
	}
	log := logger.New(logger.Options{Writer: cmd.ErrOrStderr(), Level: level, Color: colorMode})

	absRoot, err := filepath.Abs(cfg.Root)
	if err != nil {
		return err
	}

	node, err := compiler.NewNode(compiler.NodeOptions{
		Node:    cfg.Node.Executable,
		Root:    absRoot,
		Timeout: cfg.Node.Timeout,
	})
	if err != nil {
		return err
	}
	log.Debug().Str("version", node.Version()).Msg("component compiler found")

	css, err := compiler.ParseCSSMode(cfg.CSS)
	if err != nil {
		return err
	}

	// Resolved once up front and handed to every build
	inline := &preprocess.InlineConfig{Root: absRoot, ConfigFile: cfg.Preprocess.StyleConfig}
	styleConfig, err := preprocess.ResolveConfig(inline)
	if err != nil {
		return err
	}
	preprocessor := preprocess.New(preprocess.Options{
		DisableScript: !cfg.Preprocess.Script,
		DisableStyle:  !cfg.Preprocess.Style,
		Style:         preprocess.Inline(inline),
	})

	m := metrics.NewMetrics()
	packages := stats.NewPackageResolver()

	results := make([]buildResult, len(cfg.Modes()))
	g, gctx := errgroup.WithContext(cmd.Context())
	for i, mode := range cfg.Modes() {
		g.Go(func() error {
			controller, err := prebundle.New(prebundle.Options{
				Extensions:      cfg.Extensions,
				SSR:             mode == "ssr",
				Compiler:        node,
				CompilerOptions: compiler.Options{Format: "esm", CSS: css, Dev: cfg.Dev},
				Preprocess:      []preprocess.Group{preprocessor.Group()},
				StyleConfig:     styleConfig,
				Logger:          &log,
				Packages:        packages,
				Observer:        m.Observer(mode),
			})
			if err != nil {
				return err
			}

			result, err := build(gctx, buildOptions(cfg, absRoot, mode, cfg.Entries, controller.Plugin()))
			results[i] = result
			results[i].mode = mode
			return err
		})
	}
	buildErr := g.Wait()

	printSummary(cmd.OutOrStdout(), results, !logger.UseColor(os.Stdout, colorMode))

	if cfg.MetricsFile != "" {
		if err := m.WriteFile(cfg.MetricsFile); err != nil {
			log.Warn().Err(err).Str("file", cfg.MetricsFile).Msg("could not write metrics")
		}
	}

	if buildErr != nil {
		return buildErr
	}
	for _, result := range results {
		if len(result.errors) > 0 {
			return fmt.Errorf("%s build failed with %d error(s)", result.mode, len(result.errors))
		}
	}
	return nil
}

func buildOptions(cfg *config.Config, root string, mode string, entries []string, plugin api.Plugin) api.BuildOptions {
	options := api.BuildOptions{
		EntryPoints:   entries,
		AbsWorkingDir: root,
		Outdir:        filepath.Join(cfg.Outdir, mode),
		Bundle:        true,
		Format:        api.FormatESModule,
		Platform:      api.PlatformBrowser,
		Sourcemap:     api.SourceMapLinked,
		Write:         true,
		LogLevel:      api.LogLevelSilent,
		Plugins:       []api.Plugin{plugin},
	}
	if mode == "ssr" {
		options.Platform = api.PlatformNode
		options.Conditions = []string{"svelte", "node"}
	} else {
		options.Conditions = []string{"svelte", "browser"}
	}
	return options
}

func build(ctx context.Context, options api.BuildOptions) (buildResult, error) {
	start := time.Now()
	buildCtx, err := api.Context(options)
	if err != nil {
		return buildResult{errors: err.Errors}, nil
	}
	defer buildCtx.Dispose()

	done := make(chan api.BuildResult, 1)
	go func() {
		done <- buildCtx.Rebuild()
	}()

	select {
	case <-ctx.Done():
		buildCtx.Cancel()
		<-done
		return buildResult{}, ctx.Err()
	case result := <-done:
		return buildResult{
			errors:   result.Errors,
			warnings: result.Warnings,
			outputs:  len(result.OutputFiles),
			took:     time.Since(start),
		}, nil
	}
}

func printSummary(w io.Writer, results []buildResult, noColor bool) {
	red := color.New(color.FgRed, color.Bold)
	yellow := color.New(color.FgYellow)
	green := color.New(color.FgGreen, color.Bold)
	for _, c := range []*color.Color{red, yellow, green} {
		if noColor {
			c.DisableColor()
		} else {
			c.EnableColor()
		}
	}

	for _, result := range results {
		if result.mode == "" {
			continue
		}
		for _, text := range api.FormatMessages(result.errors, api.FormatMessagesOptions{Kind: api.ErrorMessage, Color: !noColor}) {
			fmt.Fprint(w, text)
		}
		for _, text := range api.FormatMessages(result.warnings, api.FormatMessagesOptions{Kind: api.WarningMessage, Color: !noColor}) {
			fmt.Fprint(w, text)
		}

		status := green.Sprint("done")
		if len(result.errors) > 0 {
			status = red.Sprint("failed")
		}
		line := fmt.Sprintf("%-6s %s: %s in %s", result.mode, status, plural(result.outputs, "output file"), stats.HumanDuration(result.took))
		if len(result.warnings) > 0 {
			line += yellow.Sprintf(" (%s)", plural(len(result.warnings), "warning"))
		}
		if len(result.errors) > 0 {
			line += red.Sprintf(" (%s)", plural(len(result.errors), "error"))
		}
		fmt.Fprintln(w, line)
	}
}

func plural(n int, word string) string {
	if n == 1 {
		return fmt.Sprintf("1 %s", word)
	}
	return fmt.Sprintf("%d %ss", n, word)
}
