// Package prebundle compiles component files while esbuild prebundles
// dependencies, and reports which packages the compile time went to.
//
// The plugin returned by NewPlugin is meant for the dependency optimization
// build. It steps aside when it finds itself inside the dependency scanning
// build, because scanning must stay fast and already understands component
// files on its own.
package prebundle

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/evanw/esbuild/pkg/api"
	"github.com/rs/zerolog"

	"github.com/evanw/svelte-prebundle/internal/diag"
	"github.com/evanw/svelte-prebundle/internal/stats"
	"github.com/evanw/svelte-prebundle/internal/unit"
	"github.com/evanw/svelte-prebundle/pkg/compiler"
	"github.com/evanw/svelte-prebundle/pkg/preprocess"
)

const (
	PluginName     = "vite-plugin-svelte:optimize-svelte"
	ScanPluginName = "vite:dep-scan"
)

const (
	initialLogDelay = 2000 * time.Millisecond
	logInterval     = 200 * time.Millisecond
)

// Observer is told about every file and every finished pass
type Observer interface {
	FileCompiled(filename string, duration time.Duration)
	FileFailed(filename string, err error)
	PassFinished(groups []stats.Group)
}

type Options struct {
	// Extensions of component files, ".svelte" when empty. Matching is case
	// sensitive and ignores a trailing query string.
	Extensions []string

	SSR bool

	Compiler              compiler.Compiler
	CompilerOptions       compiler.Options
	Preprocess            []preprocess.Group
	DynamicCompileOptions compiler.DynamicOptionsFunc

	// StyleConfig is given to every preprocess group that accepts one, so
	// style blocks do not resolve their own configuration
	StyleConfig *preprocess.ResolvedConfig

	// IsScanning reports whether the plugin list belongs to the dependency
	// scanning build. The default looks for a plugin named ScanPluginName.
	IsScanning func(plugins []api.Plugin) bool

	Logger *zerolog.Logger

	// Packages attributes files to packages. It may be shared between
	// controllers.
	Packages stats.Resolver

	Observer Observer

	ReadFile func(path string) ([]byte, error)
	Now      func() time.Time
}

type passState struct {
	start   time.Time
	lastLog time.Time
	stats   []*stats.FileStat
}

type Controller struct {
	options Options
	unit    unit.Options
	filter  *regexp.Regexp
	log     zerolog.Logger

	mutex   sync.Mutex
	plugins []api.Plugin
	pass    passState
}

func New(options Options) (*Controller, error) {
	if options.Compiler == nil {
		return nil, errors.New("prebundle: a compiler is required")
	}
	if len(options.Extensions) == 0 {
		options.Extensions = []string{".svelte"}
	}
	if options.IsScanning == nil {
		options.IsScanning = hasScanPlugin
	}
	if options.Packages == nil {
		options.Packages = stats.NewPackageResolver()
	}
	if options.ReadFile == nil {
		options.ReadFile = os.ReadFile
	}
	if options.Now == nil {
		options.Now = time.Now
	}

	filter, err := regexp.Compile(Filter(options.Extensions))
	if err != nil {
		return nil, fmt.Errorf("prebundle: invalid extensions %q: %w", options.Extensions, err)
	}

	log := zerolog.Nop()
	if options.Logger != nil {
		log = *options.Logger
	}
	log = log.With().Str("plugin", PluginName).Logger()

	if options.StyleConfig != nil {
		for _, group := range options.Preprocess {
			if group.Configure != nil {
				group.Configure(options.StyleConfig)
			}
		}
	}

	c := &Controller{
		options: options,
		filter:  filter,
		log:     log,
		unit: unit.Options{
			Compiler:              options.Compiler,
			CompilerOptions:       options.CompilerOptions,
			Preprocess:            options.Preprocess,
			DynamicCompileOptions: options.DynamicCompileOptions,
		},
	}
	c.unit.Logger = &c.log
	return c, nil
}

func NewPlugin(options Options) (api.Plugin, error) {
	c, err := New(options)
	if err != nil {
		return api.Plugin{}, err
	}
	return c.Plugin(), nil
}

// Filter builds the load filter for a set of extensions
func Filter(extensions []string) string {
	quoted := make([]string, len(extensions))
	for i, ext := range extensions {
		quoted[i] = regexp.QuoteMeta(ext)
	}
	return `(?:` + strings.Join(quoted, "|") + `)(?:\?.*)?$`
}

func hasScanPlugin(plugins []api.Plugin) bool {
	for _, plugin := range plugins {
		if plugin.Name == ScanPluginName {
			return true
		}
	}
	return false
}

func (c *Controller) Plugin() api.Plugin {
	return api.Plugin{
		Name: PluginName,
		Setup: func(build api.PluginBuild) {
			if build.InitialOptions != nil {
				c.mutex.Lock()
				c.plugins = build.InitialOptions.Plugins
				c.mutex.Unlock()
			}

			build.OnStart(func() (api.OnStartResult, error) {
				c.OnPassStart()
				return api.OnStartResult{}, nil
			})

			build.OnLoad(api.OnLoadOptions{Filter: c.filter.String()}, c.OnFileLoad)

			build.OnEnd(func(result *api.BuildResult) (api.OnEndResult, error) {
				c.OnPassEnd()
				return api.OnEndResult{}, nil
			})
		},
	}
}

func (c *Controller) mode() string {
	if c.options.SSR {
		return "ssr"
	}
	return "client"
}

func (c *Controller) OnPassStart() {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.pass = passState{start: c.options.Now()}
}

func (c *Controller) scanning() bool {
	c.mutex.Lock()
	plugins := c.plugins
	c.mutex.Unlock()
	return c.options.IsScanning(plugins)
}

// OnFileLoad compiles one component. An empty result lets esbuild load the
// file itself. A failed compile is returned as an error message for this
// file only, so the rest of the pass goes on.
func (c *Controller) OnFileLoad(args api.OnLoadArgs) (api.OnLoadResult, error) {
	if c.scanning() || !c.filter.MatchString(args.Path) {
		return api.OnLoadResult{}, nil
	}
	c.logProgress(false)

	filename := args.Path
	if i := strings.IndexByte(filename, '?'); i >= 0 {
		filename = filename[:i]
	}

	code, err := c.options.ReadFile(filename)
	if err != nil {
		return c.failed(filename, err), nil
	}

	stat := stats.NewFileStat(filename, c.options.Now)
	out, err := unit.Compile(context.Background(), &c.unit, unit.Input{
		Filename: filename,
		Code:     string(code),
	}, stat.Record, c.options.SSR)
	if err != nil {
		return c.failed(filename, err), nil
	}

	c.mutex.Lock()
	c.pass.stats = append(c.pass.stats, stat)
	c.mutex.Unlock()

	if c.options.Observer != nil {
		c.options.Observer.FileCompiled(filename, stats.Duration(stat.Timestamps(), stats.Compiled))
	}

	result := api.OnLoadResult{
		Contents:   &out.Code,
		Loader:     api.LoaderJS,
		ResolveDir: filepath.Dir(filename),
		WatchFiles: out.Dependencies,
	}
	for _, warning := range out.Warnings {
		result.Warnings = append(result.Warnings, diag.Warning(warning, filename))
	}
	return result, nil
}

func (c *Controller) failed(filename string, err error) api.OnLoadResult {
	if c.options.Observer != nil {
		c.options.Observer.FileFailed(filename, err)
	}
	return api.OnLoadResult{Errors: []api.Message{diag.Message(err, filename)}}
}

// OnPassEnd prints the final progress line and the per-package report. A
// pass that compiled a single file without ever logging stays quiet, since
// that is an incidental compile and not a real prebundle.
func (c *Controller) OnPassEnd() {
	c.mutex.Lock()
	quiet := c.pass.lastLog.IsZero() && len(c.pass.stats) < 2
	files := append([]*stats.FileStat(nil), c.pass.stats...)
	c.mutex.Unlock()
	if quiet {
		return
	}

	c.logProgress(true)

	groups := stats.GroupStats(files, c.options.Packages)
	c.log.Info().Str("mode", c.mode()).Msgf("prebundle %s stats:\n%s", c.mode(), stats.FormatReport(groups))

	if c.options.Observer != nil {
		c.options.Observer.PassFinished(groups)
	}
}

// Progress is logged at most every 200ms, and not before 2s have passed
// since the start of the pass. The final line is always logged.
func (c *Controller) logProgress(done bool) {
	c.mutex.Lock()
	now := c.options.Now()
	if !done {
		if c.pass.lastLog.IsZero() {
			if now.Sub(c.pass.start) <= initialLogDelay {
				c.mutex.Unlock()
				return
			}
		} else if now.Sub(c.pass.lastLog) <= logInterval {
			c.mutex.Unlock()
			return
		}
	}
	c.pass.lastLog = now
	count := len(c.pass.stats)
	elapsed := now.Sub(c.pass.start)
	c.mutex.Unlock()

	c.log.Info().Str("mode", c.mode()).Msg(ProgressLine(c.mode(), done, count, elapsed))
}

func ProgressLine(mode string, done bool, count int, elapsed time.Duration) string {
	label := mode
	if done {
		label += " done"
	}
	return fmt.Sprintf("prebundle %s: %5d files in %7s", label, count, stats.HumanDuration(elapsed))
}
