package preprocess

import (
	"context"
	"fmt"
	"strings"

	"github.com/evanw/esbuild/pkg/api"

	"github.com/evanw/svelte-prebundle/pkg/sourcemap"
)

var supportedScriptLangs = map[string]bool{
	"ts": true,
}

// Imports that are only used by the markup look unused to the TypeScript
// transform, so they must not be dropped
const scriptTsconfigRaw = `{"compilerOptions":{"importsNotUsedAsValues":"preserve","preserveValueImports":true}}`

func (p *Preprocessor) Script(ctx context.Context, block Block) (*Processed, error) {
	if !supportedScriptLangs[block.Attributes.Lang()] {
		return nil, nil
	}

	result := api.Transform(block.Content, api.TransformOptions{
		Loader:      api.LoaderTS,
		Target:      api.ESNext,
		Sourcemap:   api.SourceMapExternal,
		Sourcefile:  block.Filename,
		TsconfigRaw: scriptTsconfigRaw,
		LogLevel:    api.LogLevelSilent,
	})
	if len(result.Errors) > 0 {
		return nil, transformError(block.Filename, result.Errors)
	}

	m, err := sourcemap.Parse(result.Map)
	if err != nil {
		m = nil
	}
	sourcemap.ToRelative(m, block.Filename)

	return &Processed{
		Code:       string(result.Code),
		Map:        m,
		Attributes: block.Attributes.Without("lang"),
	}, nil
}

// TransformError carries the messages of a failed esbuild transform
type TransformError struct {
	Filename string
	Messages []api.Message
}

func (e *TransformError) Error() string {
	texts := make([]string, 0, len(e.Messages))
	for _, msg := range e.Messages {
		if loc := msg.Location; loc != nil {
			texts = append(texts, fmt.Sprintf("%s:%d:%d: %s", loc.File, loc.Line, loc.Column, msg.Text))
		} else {
			texts = append(texts, msg.Text)
		}
	}
	return strings.Join(texts, "\n")
}

func transformError(filename string, messages []api.Message) error {
	return &TransformError{Filename: filename, Messages: messages}
}
