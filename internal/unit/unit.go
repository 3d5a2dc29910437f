package unit

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/evanw/svelte-prebundle/internal/stats"
	"github.com/evanw/svelte-prebundle/pkg/compiler"
	"github.com/evanw/svelte-prebundle/pkg/preprocess"
)

type Options struct {
	Compiler              compiler.Compiler
	CompilerOptions       compiler.Options
	Preprocess            []preprocess.Group
	DynamicCompileOptions compiler.DynamicOptionsFunc
	Logger                *zerolog.Logger
}

type Input struct {
	Filename string
	Code     string
}

type Output struct {
	// Code ends with an inline source map comment
	Code string

	// Dependencies are the extra files the preprocessors read
	Dependencies []string

	Warnings []compiler.Warning
}

// PreprocessError wraps a failure of one of the preprocess groups
type PreprocessError struct {
	Filename string
	Err      error
}

func (e *PreprocessError) Error() string {
	return fmt.Sprintf("Error while preprocessing `%s` - %v", e.Filename, e.Err)
}

func (e *PreprocessError) Unwrap() error {
	return e.Err
}

// Compile turns one component into JavaScript. "record" receives the
// "compileStart" and "compiled" labels around the compiler call.
func Compile(ctx context.Context, options *Options, input Input, record func(label string), ssr bool) (*Output, error) {
	compileOptions := options.CompilerOptions
	compileOptions.Filename = input.Filename
	compileOptions.SSR = ssr
	if compileOptions.CSS != compiler.CSSNone {
		compileOptions.CSS = compiler.CSSInjected
	}

	code := input.Code
	var dependencies []string
	if len(options.Preprocess) > 0 {
		result, err := preprocess.Run(ctx, code, options.Preprocess, input.Filename)
		if err != nil {
			return nil, &PreprocessError{Filename: input.Filename, Err: err}
		}
		code = result.Code
		dependencies = result.Dependencies
		if result.Map != nil {
			compileOptions.Sourcemap = result.Map
		}
	}

	if options.DynamicCompileOptions != nil {
		overrides, err := options.DynamicCompileOptions(ctx, input.Filename, code, compileOptions)
		if err != nil {
			return nil, fmt.Errorf("dynamic compile options for %s: %w", input.Filename, err)
		}
		if overrides != nil {
			compileOptions = compileOptions.Merge(overrides)
			if log := options.Logger; log != nil {
				if e := log.Debug(); e.Enabled() {
					logOptions(e, compileOptions).Msg("dynamic compile options applied")
				}
			}
		}
	}

	if record == nil {
		record = func(string) {}
	}
	record(stats.CompileStart)
	result, err := options.Compiler.Compile(ctx, code, compileOptions)
	if err != nil {
		return nil, err
	}
	record(stats.Compiled)

	if result.JS.Map == nil {
		return nil, fmt.Errorf("compiler returned no source map for %s", input.Filename)
	}
	return &Output{
		Code:         result.JS.Code + "\n//# sourceMappingURL=" + result.JS.Map.ToURL(),
		Dependencies: dependencies,
		Warnings:     result.Warnings,
	}, nil
}

func logOptions(e *zerolog.Event, options compiler.Options) *zerolog.Event {
	e = e.Str("filename", options.Filename).
		Str("format", options.Format).
		Bool("ssr", options.SSR).
		Stringer("css", options.CSS).
		Bool("dev", options.Dev)
	if len(options.Extra) > 0 {
		e = e.Interface("extra", options.Extra)
	}
	return e
}
