package preprocess

import (
	"context"
	"strings"

	"github.com/evanw/svelte-prebundle/pkg/sourcemap"
)

var supportedStyleLangs = map[string]bool{
	"css":     true,
	"less":    true,
	"sass":    true,
	"scss":    true,
	"styl":    true,
	"stylus":  true,
	"postcss": true,
	"sss":     true,
}

// Appended to the component filename to build the module id of a style
// block, so that several style blocks of one file get distinct ids
const LangSeparator = ".vite-preprocess."

type StyleEngine interface {
	Transform(ctx context.Context, code string, id string) (*StyleOutput, error)
}

type StyleOutput struct {
	Code         string
	Map          *sourcemap.Map
	Dependencies []string
}

func (p *Preprocessor) Style(ctx context.Context, block Block) (*Processed, error) {
	lang := block.Attributes.Lang()
	if !supportedStyleLangs[lang] {
		return nil, nil
	}

	engine, err := p.styleEngine()
	if err != nil {
		return nil, err
	}

	suffix := LangSeparator + lang
	out, err := engine.Transform(ctx, block.Content, block.Filename+suffix)
	if err != nil {
		return nil, err
	}

	// The engine may hand out the same map again
	m := out.Map.Clone()
	sourcemap.StripSuffix(m, suffix)
	sourcemap.ToRelative(m, block.Filename)

	var dependencies []string
	for _, dep := range out.Dependencies {
		if !strings.HasSuffix(dep, suffix) {
			dependencies = append(dependencies, dep)
		}
	}

	return &Processed{
		Code:         out.Code,
		Map:          m,
		Dependencies: dependencies,
	}, nil
}

func (p *Preprocessor) styleEngine() (StyleEngine, error) {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	if p.engine != nil {
		return p.engine, nil
	}

	config := p.injected
	if config == nil {
		config = p.options.Style.resolved
	}
	if config == nil {
		resolved, err := ResolveConfig(p.options.Style.inline)
		if err != nil {
			return nil, err
		}
		config = resolved
	}

	if config.Engine != nil {
		p.engine = config.Engine
	} else {
		p.engine = NewStyleEngine(config)
	}
	return p.engine, nil
}
