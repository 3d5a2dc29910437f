// Package preprocess turns the script and style blocks of a component into
// the dialects the component compiler understands: TypeScript becomes
// JavaScript through esbuild, and Sass, Less, Stylus or PostCSS flavored
// blocks become plain CSS. Source maps of every block are rewritten to point
// at the original component file.
package preprocess

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/evanw/svelte-prebundle/pkg/sourcemap"
)

type Attributes map[string]string

func (a Attributes) Lang() string {
	return a["lang"]
}

func (a Attributes) Without(keys ...string) Attributes {
	result := make(Attributes, len(a))
	for k, v := range a {
		result[k] = v
	}
	for _, k := range keys {
		delete(result, k)
	}
	return result
}

// String renders the attributes in a stable order with a leading space, or
// an empty string when there are none
func (a Attributes) String() string {
	keys := make([]string, 0, len(a))
	for k := range a {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var sb strings.Builder
	for _, k := range keys {
		sb.WriteByte(' ')
		sb.WriteString(k)
		if v := a[k]; v != "" {
			sb.WriteString(`="`)
			sb.WriteString(strings.ReplaceAll(v, `"`, "&quot;"))
			sb.WriteByte('"')
		}
	}
	return sb.String()
}

type Block struct {
	Content    string
	Attributes Attributes
	Filename   string
}

type Processed struct {
	Code         string
	Map          *sourcemap.Map
	Dependencies []string

	// Attributes replaces the attributes of the block's opening tag when set
	Attributes Attributes
}

// Hook transforms one block. A nil result without an error means the block
// is left as it is.
type Hook func(ctx context.Context, block Block) (*Processed, error)

type Group struct {
	Name   string
	Script Hook
	Style  Hook

	// Configure hands the style hook an already resolved configuration. It
	// is nil for groups that cannot take one.
	Configure func(config *ResolvedConfig)
}

// ConfigInput selects how the style transform gets its build configuration:
// either resolved lazily from an inline configuration, or used as given.
type ConfigInput struct {
	inline   *InlineConfig
	resolved *ResolvedConfig
}

func Inline(config *InlineConfig) ConfigInput {
	return ConfigInput{inline: config}
}

func Resolved(config *ResolvedConfig) ConfigInput {
	return ConfigInput{resolved: config}
}

type Options struct {
	DisableScript bool
	DisableStyle  bool
	Style         ConfigInput
}

type Preprocessor struct {
	options Options

	mutex    sync.Mutex
	injected *ResolvedConfig
	engine   StyleEngine
}

func New(options Options) *Preprocessor {
	return &Preprocessor{options: options}
}

// Group exposes the enabled hooks. A disabled hook is nil.
func (p *Preprocessor) Group() Group {
	group := Group{Name: "vite-preprocess", Configure: p.SetResolvedConfig}
	if !p.options.DisableScript {
		group.Script = p.Script
	}
	if !p.options.DisableStyle {
		group.Style = p.Style
	}
	return group
}

// SetResolvedConfig hands the style transform a configuration that was
// already resolved by the caller. It wins over the configuration passed to
// New, but only until the first style block has been transformed.
func (p *Preprocessor) SetResolvedConfig(config *ResolvedConfig) {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	p.injected = config
}
