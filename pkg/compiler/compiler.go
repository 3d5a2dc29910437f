// Package compiler describes the contract between the prebundler and the
// component compiler, and ships a bridge that runs the real compiler in a
// "node" subprocess.
package compiler

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/mod/semver"

	"github.com/evanw/svelte-prebundle/pkg/sourcemap"
)

type Compiler interface {
	// Version is the semantic version of the compiler, e.g. "4.2.8". It is
	// used to pick between option spellings that changed across releases.
	Version() string

	Compile(ctx context.Context, code string, options Options) (*Result, error)
}

type CSSMode uint8

const (
	// CSSDefault lets the prebundler pick the injected mode
	CSSDefault CSSMode = iota
	CSSInjected
	CSSExternal
	CSSNone
)

func (mode CSSMode) String() string {
	switch mode {
	case CSSInjected:
		return "injected"
	case CSSExternal:
		return "external"
	case CSSNone:
		return "none"
	}
	return "default"
}

func ParseCSSMode(text string) (CSSMode, error) {
	switch strings.ToLower(text) {
	case "", "default":
		return CSSDefault, nil
	case "injected":
		return CSSInjected, nil
	case "external":
		return CSSExternal, nil
	case "none":
		return CSSNone, nil
	}
	return CSSDefault, fmt.Errorf("invalid css mode %q (valid: injected, external, none)", text)
}

type Options struct {
	Filename string
	Format   string
	SSR      bool
	CSS      CSSMode
	Dev      bool

	// Sourcemap is the map of the preprocessed code back to the original
	// file, so the compiler can chain it into the map it emits
	Sourcemap *sourcemap.Map

	// Extra holds compiler options that have no dedicated field. They are
	// passed through to the compiler untouched.
	Extra map[string]any
}

// Overrides is a partial Options. Every non-nil field replaces the
// corresponding field of the base options and every key of Extra replaces
// the key of the same name.
type Overrides struct {
	Format *string
	SSR    *bool
	CSS    *CSSMode
	Dev    *bool
	Extra  map[string]any
}

func (o Options) Merge(overrides *Overrides) Options {
	if overrides == nil {
		return o
	}
	if overrides.Format != nil {
		o.Format = *overrides.Format
	}
	if overrides.SSR != nil {
		o.SSR = *overrides.SSR
	}
	if overrides.CSS != nil {
		o.CSS = *overrides.CSS
	}
	if overrides.Dev != nil {
		o.Dev = *overrides.Dev
	}
	if len(overrides.Extra) > 0 {
		extra := make(map[string]any, len(o.Extra)+len(overrides.Extra))
		for k, v := range o.Extra {
			extra[k] = v
		}
		for k, v := range overrides.Extra {
			extra[k] = v
		}
		o.Extra = extra
	}
	return o
}

// DynamicOptionsFunc lets callers adjust compiler options per file, for
// example to turn on experimental features for a single library.
type DynamicOptionsFunc func(ctx context.Context, filename string, code string, options Options) (*Overrides, error)

type Output struct {
	Code string
	Map  *sourcemap.Map
}

type Warning struct {
	Code    string
	Message string
	Start   *Position
}

type Result struct {
	JS       Output
	CSS      *Output
	Warnings []Warning
}

type Position struct {
	Line   int // 1-based
	Column int // 0-based
}

// Error is a compile failure reported by the compiler itself, as opposed to
// a failure to run it.
type Error struct {
	Message  string
	Code     string
	Filename string
	Start    *Position
	End      *Position
	Frame    string
}

func (e *Error) Error() string {
	if e.Start != nil && e.Filename != "" {
		return fmt.Sprintf("%s (%s:%d:%d)", e.Message, e.Filename, e.Start.Line, e.Start.Column)
	}
	return e.Message
}

const (
	cssStringVersion = "v3.53.0"
	runesVersion     = "v5.0.0-0"
)

func canonical(version string) string {
	if version == "" {
		return ""
	}
	if !strings.HasPrefix(version, "v") {
		version = "v" + version
	}
	if !semver.IsValid(version) {
		return ""
	}
	return version
}

// atLeast treats an unknown version as the newest release
func atLeast(version string, threshold string) bool {
	v := canonical(version)
	return v == "" || semver.Compare(v, threshold) >= 0
}

// CSSValue spells the "css" option the way the given compiler version
// expects it. Releases before 3.53.0 take a boolean.
func CSSValue(mode CSSMode, version string) any {
	if !atLeast(version, cssStringVersion) {
		return mode != CSSNone && mode != CSSExternal
	}
	if mode == CSSDefault {
		return CSSInjected.String()
	}
	return mode.String()
}

// GenerateValue spells the "generate" option. Version 5 renamed "dom" and
// "ssr" to "client" and "server".
func GenerateValue(ssr bool, version string) string {
	if atLeast(version, runesVersion) {
		if ssr {
			return "server"
		}
		return "client"
	}
	if ssr {
		return "ssr"
	}
	return "dom"
}

// WireOptions is the option object handed to the compiler, with every
// version-dependent spelling resolved.
func WireOptions(options Options, version string) map[string]any {
	wire := make(map[string]any, len(options.Extra)+6)
	for k, v := range options.Extra {
		wire[k] = v
	}
	wire["filename"] = options.Filename
	wire["css"] = CSSValue(options.CSS, version)
	wire["generate"] = GenerateValue(options.SSR, version)
	if options.Dev {
		wire["dev"] = true
	}
	if options.Format != "" && !atLeast(version, runesVersion) {
		wire["format"] = options.Format
	}
	if options.Sourcemap != nil {
		wire["sourcemap"] = options.Sourcemap
	}
	return wire
}
