package diag

import (
	"errors"
	"fmt"
	"testing"

	"github.com/evanw/esbuild/pkg/api"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/evanw/svelte-prebundle/pkg/compiler"
	"github.com/evanw/svelte-prebundle/pkg/preprocess"
)

func TestMessageFromCompileError(t *testing.T) {
	err := &compiler.Error{
		Message:  "Expected '}'",
		Code:     "parse-error",
		Filename: "/app/App.svelte",
		Start:    &compiler.Position{Line: 2, Column: 4},
		End:      &compiler.Position{Line: 2, Column: 7},
		Frame:    "1: <script>\n2:   let x = {\n        ^\n3: </script>",
	}

	msg := Message(fmt.Errorf("compile: %w", err), "/app/Other.svelte")
	assert.Equal(t, "Expected '}'", msg.Text)
	assert.Equal(t, "parse-error", msg.ID)
	assert.Equal(t, pluginName, msg.PluginName)
	require.NotNil(t, msg.Location)
	assert.Equal(t, api.Location{
		File:     "/app/App.svelte",
		Line:     2,
		Column:   4,
		Length:   3,
		LineText: "  let x = {",
	}, *msg.Location)
	require.Len(t, msg.Notes, 1)
}

func TestMessageFromCompileErrorWithoutPosition(t *testing.T) {
	msg := Message(&compiler.Error{Message: "boom"}, "/app/App.svelte")
	assert.Equal(t, "boom", msg.Text)
	assert.Nil(t, msg.Location)
	assert.Empty(t, msg.Notes)
}

func TestMessageFromTransformError(t *testing.T) {
	err := &preprocess.TransformError{
		Filename: "/app/App.svelte",
		Messages: []api.Message{{
			Text:     "Unexpected \"=\"",
			Location: &api.Location{File: "/app/App.svelte", Line: 1, Column: 7, LineText: "let a: = ;"},
		}},
	}

	msg := Message(err, "/app/App.svelte")
	assert.Equal(t, err.Error(), msg.Text)
	require.NotNil(t, msg.Location)
	assert.Equal(t, 1, msg.Location.Line)
	assert.Equal(t, "let a: = ;", msg.Location.LineText)
}

func TestMessageFromPlainError(t *testing.T) {
	err := errors.New("open /app/App.svelte: permission denied")
	msg := Message(err, "/app/App.svelte")
	assert.Equal(t, err.Error(), msg.Text)
	assert.Equal(t, err, msg.Detail)
	assert.Equal(t, &api.Location{File: "/app/App.svelte"}, msg.Location)
}

func TestWarning(t *testing.T) {
	msg := Warning(compiler.Warning{
		Code:    "a11y-missing-attribute",
		Message: "<img> element should have an alt attribute",
		Start:   &compiler.Position{Line: 4, Column: 2},
	}, "/app/App.svelte")

	assert.Equal(t, "a11y-missing-attribute", msg.ID)
	assert.Equal(t, "<img> element should have an alt attribute", msg.Text)
	assert.Equal(t, pluginName, msg.PluginName)
	assert.Equal(t, &api.Location{File: "/app/App.svelte", Line: 4, Column: 2}, msg.Location)

	msg = Warning(compiler.Warning{Message: "unused export"}, "/app/App.svelte")
	assert.Equal(t, &api.Location{File: "/app/App.svelte"}, msg.Location)
}
