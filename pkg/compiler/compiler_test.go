package compiler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/evanw/svelte-prebundle/pkg/sourcemap"
)

func TestCSSValue(t *testing.T) {
	tests := []struct {
		name     string
		mode     CSSMode
		version  string
		expected any
	}{
		{"old injected", CSSInjected, "3.52.0", true},
		{"old disabled", CSSNone, "3.52.0", false},
		{"threshold injected", CSSInjected, "3.53.0", "injected"},
		{"threshold disabled", CSSNone, "3.53.0", "none"},
		{"v4 default", CSSDefault, "4.2.8", "injected"},
		{"v5 external", CSSExternal, "5.1.0", "external"},
		{"unknown version is newest", CSSInjected, "", "injected"},
		{"garbage version is newest", CSSNone, "next", "none"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, CSSValue(tt.mode, tt.version))
		})
	}
}

func TestGenerateValue(t *testing.T) {
	assert.Equal(t, "dom", GenerateValue(false, "4.2.8"))
	assert.Equal(t, "ssr", GenerateValue(true, "3.59.2"))
	assert.Equal(t, "client", GenerateValue(false, "5.0.0"))
	assert.Equal(t, "server", GenerateValue(true, "5.0.0-next.100"))
}

func TestMerge(t *testing.T) {
	base := Options{
		Filename: "/app/App.svelte",
		CSS:      CSSInjected,
		Dev:      true,
		Extra:    map[string]any{"hydratable": true, "immutable": false},
	}
	dev := false
	css := CSSNone

	merged := base.Merge(&Overrides{Dev: &dev, CSS: &css, Extra: map[string]any{"immutable": true}})

	assert.False(t, merged.Dev)
	assert.Equal(t, CSSNone, merged.CSS)
	assert.Equal(t, map[string]any{"hydratable": true, "immutable": true}, merged.Extra)
	assert.Equal(t, "/app/App.svelte", merged.Filename)
	assert.Equal(t, false, base.Extra["immutable"], "base options are not modified")

	assert.Equal(t, base, base.Merge(nil))
}

func TestWireOptions(t *testing.T) {
	m := &sourcemap.Map{Version: 3}
	wire := WireOptions(Options{
		Filename:  "/app/App.svelte",
		Format:    "esm",
		SSR:       true,
		Sourcemap: m,
		Extra:     map[string]any{"generate": "ignored", "customElement": true},
	}, "4.2.8")

	assert.Equal(t, map[string]any{
		"filename":      "/app/App.svelte",
		"css":           "injected",
		"generate":      "ssr",
		"format":        "esm",
		"sourcemap":     m,
		"customElement": true,
	}, wire)

	wire = WireOptions(Options{Format: "esm"}, "5.0.0")
	assert.NotContains(t, wire, "format")
}

func TestParseCSSMode(t *testing.T) {
	mode, err := ParseCSSMode("None")
	require.NoError(t, err)
	assert.Equal(t, CSSNone, mode)

	_, err = ParseCSSMode("inline")
	assert.Error(t, err)
}

func TestErrorMessage(t *testing.T) {
	err := &Error{Message: "Unexpected token", Filename: "App.svelte", Start: &Position{Line: 3, Column: 7}}
	assert.Equal(t, "Unexpected token (App.svelte:3:7)", err.Error())
	assert.Equal(t, "bare", (&Error{Message: "bare"}).Error())
}

func TestNewNodeMissingExecutable(t *testing.T) {
	_, err := NewNode(NodeOptions{Node: "definitely-not-an-installed-node-binary"})
	assert.Error(t, err)
}
