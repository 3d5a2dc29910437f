package config

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/joho/godotenv"
	"github.com/santhosh-tekuri/jsonschema/v6"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Config holds the settings of one svelte-prebundle run
type Config struct {
	Root        string           `mapstructure:"root" json:"root"`
	Outdir      string           `mapstructure:"outdir" json:"outdir"`
	Mode        string           `mapstructure:"mode" json:"mode"`
	Entries     []string         `mapstructure:"entries" json:"entries"`
	Extensions  []string         `mapstructure:"extensions" json:"extensions"`
	CSS         string           `mapstructure:"css" json:"css"`
	Dev         bool             `mapstructure:"dev" json:"dev"`
	Node        NodeConfig       `mapstructure:"node" json:"node"`
	Preprocess  PreprocessConfig `mapstructure:"preprocess" json:"preprocess"`
	MetricsFile string           `mapstructure:"metrics_file" json:"metrics_file"`
	Debug       bool             `mapstructure:"debug" json:"debug"`
	Color       string           `mapstructure:"color" json:"color"`
}

// NodeConfig locates the node executable that runs the component compiler
type NodeConfig struct {
	Executable string        `mapstructure:"executable" json:"executable"`
	Timeout    time.Duration `mapstructure:"timeout" json:"-"`
}

type PreprocessConfig struct {
	Script      bool   `mapstructure:"script" json:"script"`
	Style       bool   `mapstructure:"style" json:"style"`
	StyleConfig string `mapstructure:"style_config" json:"style_config"`
}

// Modes lists the builds a mode runs
func (c *Config) Modes() []string {
	if c.Mode == "both" {
		return []string{"client", "ssr"}
	}
	return []string{c.Mode}
}

type LoadOptions struct {
	// ConfigFile is read instead of searching for "svelte-prebundle.yaml"
	ConfigFile string

	// Flags override every other source when they were set explicitly
	Flags *pflag.FlagSet

	// Dir is where the config file and ".env" files are searched
	Dir string
}

// flag name -> config key
var flagKeys = map[string]string{
	"root":         "root",
	"outdir":       "outdir",
	"mode":         "mode",
	"ext":          "extensions",
	"css":          "css",
	"dev":          "dev",
	"node":         "node.executable",
	"node-timeout": "node.timeout",
	"style-config": "preprocess.style_config",
	"metrics-file": "metrics_file",
	"debug":        "debug",
	"color":        "color",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("root", ".")
	v.SetDefault("outdir", "node_modules/.svelte-prebundle")
	v.SetDefault("mode", "client")
	v.SetDefault("extensions", []string{".svelte"})
	v.SetDefault("css", "injected")
	v.SetDefault("dev", false)
	v.SetDefault("node.executable", "node")
	v.SetDefault("node.timeout", 30*time.Second)
	v.SetDefault("preprocess.script", true)
	v.SetDefault("preprocess.style", true)
	v.SetDefault("preprocess.style_config", "")
	v.SetDefault("metrics_file", "")
	v.SetDefault("debug", false)
	v.SetDefault("color", "auto")
}

// Load reads the configuration from, in increasing priority: defaults, the
// config file, SVELTE_PREBUNDLE_* environment variables (".env" files
// included) and explicitly set flags
func Load(options LoadOptions) (*Config, error) {
	dir := options.Dir
	if dir == "" {
		dir = "."
	}

	if err := loadEnvFile(dir); err != nil {
		return nil, err
	}

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("SVELTE_PREBUNDLE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if options.ConfigFile != "" {
		v.SetConfigFile(options.ConfigFile)
	} else {
		v.SetConfigName("svelte-prebundle")
		v.SetConfigType("yaml")
		v.AddConfigPath(dir)
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if options.ConfigFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	if options.Flags != nil {
		for name, key := range flagKeys {
			flag := options.Flags.Lookup(name)
			if flag == nil {
				continue
			}
			if err := v.BindPFlag(key, flag); err != nil {
				return nil, fmt.Errorf("bind flag --%s: %w", name, err)
			}
		}
		if flag := options.Flags.Lookup("no-script"); flag != nil && flag.Changed {
			v.Set("preprocess.script", false)
		}
		if flag := options.Flags.Lookup("no-style"); flag != nil && flag.Changed {
			v.Set("preprocess.style", false)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

func loadEnvFile(dir string) error {
	for _, name := range []string{".env.local", ".env"} {
		path := filepath.Join(dir, name)
		if _, err := os.Stat(path); err != nil {
			continue
		}
		// Variables that are already set win over the file
		if err := godotenv.Load(path); err != nil {
			return fmt.Errorf("error loading env file %s: %w", path, err)
		}
	}
	return nil
}

//go:embed config.schema.json
var configSchema []byte

var (
	compiledSchema *jsonschema.Schema
	compileOnce    sync.Once
	compileErr     error
)

func schema() (*jsonschema.Schema, error) {
	compileOnce.Do(func() {
		doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(configSchema))
		if err != nil {
			compileErr = fmt.Errorf("unmarshal config schema: %w", err)
			return
		}
		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource("config.schema.json", doc); err != nil {
			compileErr = fmt.Errorf("add config schema resource: %w", err)
			return
		}
		compiledSchema, compileErr = compiler.Compile("config.schema.json")
	})
	return compiledSchema, compileErr
}

// Validate checks the decoded settings against the embedded schema
func (c *Config) Validate() error {
	s, err := schema()
	if err != nil {
		return err
	}

	data, err := json.Marshal(c)
	if err != nil {
		return err
	}
	instance, err := jsonschema.UnmarshalJSON(bytes.NewReader(data))
	if err != nil {
		return err
	}
	if err := s.Validate(instance); err != nil {
		return err
	}

	if c.Node.Timeout < 0 {
		return fmt.Errorf("node timeout must not be negative")
	}
	return nil
}
