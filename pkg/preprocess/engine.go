package preprocess

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/evanw/esbuild/pkg/api"

	"github.com/evanw/svelte-prebundle/pkg/sourcemap"
)

var defaultDialects = map[string]Dialect{
	"scss":   {Command: "sass", Args: []string{"--stdin", "--embed-source-map", "--source-map-urls=absolute", "--load-path={dir}"}},
	"sass":   {Command: "sass", Args: []string{"--stdin", "--indented", "--embed-source-map", "--source-map-urls=absolute", "--load-path={dir}"}},
	"less":   {Command: "lessc", Args: []string{"--include-path={dir}", "--source-map-inline", "-"}},
	"styl":   {Command: "stylus", Args: []string{"--include", "{dir}", "--sourcemap-inline"}},
	"stylus": {Command: "stylus", Args: []string{"--include", "{dir}", "--sourcemap-inline"}},
}

var inlineMapComment = regexp.MustCompile(`/\*# sourceMappingURL=(data:[^\s*]+)\s*\*/\s*$`)

type styleEngine struct {
	config *ResolvedConfig
}

// NewStyleEngine compiles dialect blocks with their command line compiler
// and then runs the CSS through esbuild. esbuild's map is chained through
// the dialect's inline map when it wrote one, and the files that map lists
// besides the block are reported as dependencies. "postcss" and "sss"
// blocks are treated as plain CSS.
func NewStyleEngine(config *ResolvedConfig) StyleEngine {
	return &styleEngine{config: config}
}

// DialectError is a failure of a dialect's command line compiler
type DialectError struct {
	Lang    string
	Command string
	Stderr  string
	Err     error
}

func (e *DialectError) Error() string {
	if e.Stderr != "" {
		return fmt.Sprintf("%s (%s): %s", e.Command, e.Lang, e.Stderr)
	}
	return fmt.Sprintf("%s (%s): %v", e.Command, e.Lang, e.Err)
}

func (e *DialectError) Unwrap() error {
	return e.Err
}

func (e *styleEngine) dialect(lang string) (Dialect, bool) {
	if dialect, ok := e.config.Dialects[lang]; ok {
		return dialect, true
	}
	dialect, ok := defaultDialects[lang]
	return dialect, ok
}

func (e *styleEngine) Transform(ctx context.Context, code string, id string) (*StyleOutput, error) {
	lang := ""
	if i := strings.LastIndex(id, LangSeparator); i >= 0 {
		lang = id[i+len(LangSeparator):]
	}

	css := code
	var dialectMap *sourcemap.Map
	var dependencies []string
	if dialect, ok := e.dialect(lang); ok {
		dir := filepath.Dir(id)
		compiled, err := runDialect(ctx, lang, dialect, code, dir)
		if err != nil {
			return nil, err
		}
		css, dialectMap = splitInlineMap(compiled)
		if dialectMap != nil {
			dependencies = adoptDialectMap(dialectMap, id, dir)
		}
	}

	result := api.Transform(css, api.TransformOptions{
		Loader:           api.LoaderCSS,
		Sourcemap:        api.SourceMapExternal,
		Sourcefile:       id,
		MinifyWhitespace: e.config.Minify,
		MinifySyntax:     e.config.Minify,
		LogLevel:         api.LogLevelSilent,
	})
	if len(result.Errors) > 0 {
		return nil, transformError(id, result.Errors)
	}

	m, err := sourcemap.Parse(result.Map)
	if err != nil {
		m = nil
	}
	if m != nil && dialectMap != nil {
		if composed := sourcemap.Compose(m, dialectMap); composed != nil {
			m = composed
		}
	}
	return &StyleOutput{Code: string(result.Code), Map: m, Dependencies: dependencies}, nil
}

// splitInlineMap removes a trailing inline source map comment. A comment
// whose map cannot be decoded is still removed.
func splitInlineMap(css string) (string, *sourcemap.Map) {
	match := inlineMapComment.FindStringSubmatchIndex(css)
	if match == nil {
		return css, nil
	}
	m, err := sourcemap.FromURL(css[match[2]:match[3]])
	if err != nil {
		return css[:match[0]], nil
	}
	return css[:match[0]], m
}

// adoptDialectMap points the sources of a dialect map at real files. The
// source that stands for stdin becomes "id", and every other source that
// exists on disk is returned as a dependency.
func adoptDialectMap(m *sourcemap.Map, id string, dir string) []string {
	root := dir
	if m.SourceRoot != "" {
		root = filepath.Join(dir, filepath.FromSlash(m.SourceRoot))
		if filepath.IsAbs(m.SourceRoot) {
			root = filepath.FromSlash(m.SourceRoot)
		}
	}
	m.SourceRoot = ""

	var dependencies []string
	for i, source := range m.Sources {
		path := source
		if u, err := url.Parse(source); err == nil && len(u.Scheme) > 1 {
			if u.Scheme != "file" {
				m.Sources[i] = id
				continue
			}
			path = u.Path
		}
		if path == "" {
			m.Sources[i] = id
			continue
		}
		path = filepath.FromSlash(path)
		if !filepath.IsAbs(path) {
			path = filepath.Join(root, path)
		}
		if info, err := os.Stat(path); err != nil || info.IsDir() {
			m.Sources[i] = id
			continue
		}
		m.Sources[i] = path
		dependencies = append(dependencies, path)
	}
	return dependencies
}

func runDialect(ctx context.Context, lang string, dialect Dialect, code string, dir string) (string, error) {
	args := make([]string, len(dialect.Args))
	for i, arg := range dialect.Args {
		args[i] = strings.ReplaceAll(arg, "{dir}", dir)
	}

	timeout := dialect.Timeout
	if timeout <= 0 {
		timeout = DefaultDialectTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, dialect.Command, args...)
	cmd.Dir = dir
	cmd.Stdin = strings.NewReader(code)
	var stdout, stderr strings.Builder
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			err = fmt.Errorf("timed out after %v: %w", timeout, ctx.Err())
		}
		return "", &DialectError{
			Lang:    lang,
			Command: dialect.Command,
			Stderr:  strings.TrimSpace(stderr.String()),
			Err:     err,
		}
	}
	return stdout.String(), nil
}
