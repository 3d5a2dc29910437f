package preprocess

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v6"
	"gopkg.in/yaml.v3"
)

// Dialect is the command line compiler for one CSS dialect. It reads the
// block from stdin and writes CSS to stdout, optionally ending with an inline
// source map comment. "{dir}" in Args is replaced by the directory of the
// component file. A zero Timeout means DefaultDialectTimeout.
type Dialect struct {
	Command string        `yaml:"command"`
	Args    []string      `yaml:"args"`
	Timeout time.Duration `yaml:"timeout"`
}

const DefaultDialectTimeout = 30 * time.Second

// InlineConfig is an unresolved style build configuration. Fields left at
// their zero value fall back to the config file, then to defaults.
type InlineConfig struct {
	Root       string
	Mode       string
	ConfigFile string
	Minify     *bool
	Dialects   map[string]Dialect
}

type ResolvedConfig struct {
	Root     string
	Mode     string
	Minify   bool
	Dialects map[string]Dialect

	// Engine overrides the engine built from the fields above
	Engine StyleEngine
}

type fileConfig struct {
	Mode     string             `yaml:"mode"`
	Minify   *bool              `yaml:"minify"`
	Dialects map[string]Dialect `yaml:"dialects"`
}

//go:embed style-config.schema.json
var styleConfigSchema []byte

var (
	compiledSchema *jsonschema.Schema
	compileOnce    sync.Once
	compileErr     error
)

func styleSchema() (*jsonschema.Schema, error) {
	compileOnce.Do(func() {
		doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(styleConfigSchema))
		if err != nil {
			compileErr = fmt.Errorf("unmarshal style config schema: %w", err)
			return
		}
		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource("style-config.schema.json", doc); err != nil {
			compileErr = fmt.Errorf("add style config schema resource: %w", err)
			return
		}
		compiledSchema, compileErr = compiler.Compile("style-config.schema.json")
	})
	return compiledSchema, compileErr
}

// ResolveConfig fills in an inline configuration. The mode follows NODE_ENV
// like other frontend tooling: "production" builds, anything else serves.
func ResolveConfig(inline *InlineConfig) (*ResolvedConfig, error) {
	if inline == nil {
		inline = &InlineConfig{}
	}

	resolved := &ResolvedConfig{Root: inline.Root, Dialects: map[string]Dialect{}}
	if resolved.Root == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("resolve style config root: %w", err)
		}
		resolved.Root = wd
	}

	var minify *bool
	if inline.ConfigFile != "" {
		path := inline.ConfigFile
		if !filepath.IsAbs(path) {
			path = filepath.Join(resolved.Root, path)
		}
		file, err := loadConfigFile(path)
		if err != nil {
			return nil, err
		}
		resolved.Mode = file.Mode
		minify = file.Minify
		for lang, dialect := range file.Dialects {
			resolved.Dialects[lang] = dialect
		}
	}

	if inline.Mode != "" {
		resolved.Mode = inline.Mode
	}
	if resolved.Mode == "" {
		resolved.Mode = "serve"
		if os.Getenv("NODE_ENV") == "production" {
			resolved.Mode = "build"
		}
	}
	if inline.Minify != nil {
		minify = inline.Minify
	}
	if minify != nil {
		resolved.Minify = *minify
	} else {
		resolved.Minify = resolved.Mode == "build"
	}
	for lang, dialect := range inline.Dialects {
		resolved.Dialects[lang] = dialect
	}

	return resolved, nil
}

func loadConfigFile(path string) (*fileConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read style config: %w", err)
	}

	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse style config %s: %w", path, err)
	}
	if doc == nil {
		return &fileConfig{}, nil
	}

	// The validator wants JSON values, so round-trip the YAML document
	asJSON, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("parse style config %s: %w", path, err)
	}
	instance, err := jsonschema.UnmarshalJSON(bytes.NewReader(asJSON))
	if err != nil {
		return nil, fmt.Errorf("parse style config %s: %w", path, err)
	}
	schema, err := styleSchema()
	if err != nil {
		return nil, err
	}
	if err := schema.Validate(instance); err != nil {
		return nil, fmt.Errorf("invalid style config %s: %w", path, err)
	}

	var config fileConfig
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("parse style config %s: %w", path, err)
	}
	return &config, nil
}
