package unit

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/evanw/svelte-prebundle/internal/stats"
	"github.com/evanw/svelte-prebundle/pkg/compiler"
	"github.com/evanw/svelte-prebundle/pkg/preprocess"
	"github.com/evanw/svelte-prebundle/pkg/sourcemap"
)

type fakeCompiler struct {
	code     string
	options  compiler.Options
	err      error
	calls    int
	noMap    bool
	warnings []compiler.Warning
}

func (c *fakeCompiler) Version() string {
	return "4.2.0"
}

func (c *fakeCompiler) Compile(ctx context.Context, code string, options compiler.Options) (*compiler.Result, error) {
	c.calls++
	c.code = code
	c.options = options
	if c.err != nil {
		return nil, c.err
	}
	result := &compiler.Result{
		JS:       compiler.Output{Code: "export default {}"},
		Warnings: c.warnings,
	}
	if !c.noMap {
		result.JS.Map = &sourcemap.Map{Version: 3, Sources: []string{"App.svelte"}, Mappings: "AAAA"}
	}
	return result, nil
}

func TestCompileAppendsSourceMapURL(t *testing.T) {
	fake := &fakeCompiler{}
	var labels []string

	out, err := Compile(context.Background(), &Options{Compiler: fake},
		Input{Filename: "/app/App.svelte", Code: "<h1>hi</h1>"},
		func(label string) { labels = append(labels, label) }, false)
	require.NoError(t, err)

	prefix := "export default {}\n//# sourceMappingURL=data:application/json;charset=utf-8;base64,"
	assert.True(t, strings.HasPrefix(out.Code, prefix), out.Code)
	assert.Equal(t, []string{stats.CompileStart, stats.Compiled}, labels)
	assert.Equal(t, "/app/App.svelte", fake.options.Filename)
	assert.Equal(t, "<h1>hi</h1>", fake.code)
}

func TestCompileWithoutSourceMap(t *testing.T) {
	_, err := Compile(context.Background(), &Options{Compiler: &fakeCompiler{noMap: true}},
		Input{Filename: "/app/App.svelte"}, nil, false)
	assert.ErrorContains(t, err, "no source map for /app/App.svelte")
}

func TestCompileKeepsWarnings(t *testing.T) {
	warnings := []compiler.Warning{{Code: "a11y-missing-attribute", Message: "<img> needs alt", Start: &compiler.Position{Line: 3, Column: 2}}}
	out, err := Compile(context.Background(), &Options{Compiler: &fakeCompiler{warnings: warnings}},
		Input{Filename: "/app/App.svelte"}, nil, false)
	require.NoError(t, err)
	assert.Equal(t, warnings, out.Warnings)
}

func TestCompileCSSMode(t *testing.T) {
	for _, test := range []struct {
		in       compiler.CSSMode
		expected compiler.CSSMode
	}{
		{compiler.CSSDefault, compiler.CSSInjected},
		{compiler.CSSExternal, compiler.CSSInjected},
		{compiler.CSSInjected, compiler.CSSInjected},
		{compiler.CSSNone, compiler.CSSNone},
	} {
		fake := &fakeCompiler{}
		options := &Options{Compiler: fake, CompilerOptions: compiler.Options{CSS: test.in}}
		_, err := Compile(context.Background(), options, Input{Filename: "a.svelte"}, nil, true)
		require.NoError(t, err)
		assert.Equal(t, test.expected, fake.options.CSS, test.in.String())
		assert.True(t, fake.options.SSR)
	}
}

func TestCompilePreprocessError(t *testing.T) {
	failure := errors.New("unexpected token")
	fake := &fakeCompiler{}
	options := &Options{
		Compiler: fake,
		Preprocess: []preprocess.Group{{
			Script: func(ctx context.Context, block preprocess.Block) (*preprocess.Processed, error) {
				return nil, failure
			},
		}},
	}

	_, err := Compile(context.Background(), options, Input{Filename: "/app/Broken.svelte", Code: "<script>x</script>"}, nil, false)
	require.Error(t, err)
	assert.Equal(t, "Error while preprocessing `/app/Broken.svelte` - unexpected token", err.Error())
	assert.ErrorIs(t, err, failure)

	var preprocessErr *PreprocessError
	require.ErrorAs(t, err, &preprocessErr)
	assert.Equal(t, "/app/Broken.svelte", preprocessErr.Filename)
	assert.Zero(t, fake.calls)
}

func TestCompileInstallsPreprocessMap(t *testing.T) {
	fake := &fakeCompiler{}
	options := &Options{
		Compiler: fake,
		Preprocess: []preprocess.Group{{
			Script: func(ctx context.Context, block preprocess.Block) (*preprocess.Processed, error) {
				return &preprocess.Processed{Code: "let a = 1;", Dependencies: []string{"/app/types.ts"}}, nil
			},
		}},
	}

	out, err := Compile(context.Background(), options, Input{Filename: "/app/App.svelte", Code: "<script>let a: number = 1;</script>"}, nil, false)
	require.NoError(t, err)
	assert.Equal(t, "<script>let a = 1;</script>", fake.code)
	require.NotNil(t, fake.options.Sourcemap)
	assert.Equal(t, []string{"App.svelte"}, fake.options.Sourcemap.Sources)
	assert.Equal(t, []string{"/app/types.ts"}, out.Dependencies)
}

func TestCompileDynamicOptions(t *testing.T) {
	fake := &fakeCompiler{}
	dev := true
	var buf bytes.Buffer
	log := zerolog.New(&buf).Level(zerolog.DebugLevel)

	options := &Options{
		Compiler:        fake,
		CompilerOptions: compiler.Options{Format: "esm", Extra: map[string]any{"hydratable": true}},
		Logger:          &log,
		DynamicCompileOptions: func(ctx context.Context, filename string, code string, options compiler.Options) (*compiler.Overrides, error) {
			assert.Equal(t, "/app/App.svelte", filename)
			assert.Equal(t, "esm", options.Format)
			return &compiler.Overrides{Dev: &dev, Extra: map[string]any{"runes": true}}, nil
		},
	}

	_, err := Compile(context.Background(), options, Input{Filename: "/app/App.svelte"}, nil, false)
	require.NoError(t, err)
	assert.True(t, fake.options.Dev)
	assert.Equal(t, map[string]any{"hydratable": true, "runes": true}, fake.options.Extra)
	assert.Equal(t, map[string]any{"hydratable": true}, options.CompilerOptions.Extra)
	assert.Contains(t, buf.String(), `"filename":"/app/App.svelte"`)
	assert.Contains(t, buf.String(), `"dev":true`)
}

func TestCompileDynamicOptionsNotLoggedAboveDebug(t *testing.T) {
	var buf bytes.Buffer
	log := zerolog.New(&buf).Level(zerolog.InfoLevel)
	options := &Options{
		Compiler: &fakeCompiler{},
		Logger:   &log,
		DynamicCompileOptions: func(context.Context, string, string, compiler.Options) (*compiler.Overrides, error) {
			return &compiler.Overrides{}, nil
		},
	}

	_, err := Compile(context.Background(), options, Input{Filename: "a.svelte"}, nil, false)
	require.NoError(t, err)
	assert.Empty(t, buf.String())
}

func TestCompileFailureSkipsCompiledLabel(t *testing.T) {
	failure := &compiler.Error{Message: "unexpected }", Filename: "a.svelte"}
	var labels []string

	_, err := Compile(context.Background(), &Options{Compiler: &fakeCompiler{err: failure}},
		Input{Filename: "a.svelte"}, func(label string) { labels = append(labels, label) }, false)
	assert.Same(t, failure, err)
	assert.Equal(t, []string{stats.CompileStart}, labels)
}
