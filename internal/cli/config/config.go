package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// FileName is the configuration file looked up in the working directory,
// without extension
const FileName = "codegraph"

// Config holds the defaults applied before command line flags
type Config struct {
	Format  string       `mapstructure:"format" validate:"omitempty,oneof=dgml dot json sqlite postgres redis"`
	Graph   GraphConfig  `mapstructure:"graph"`
	Export  ExportConfig `mapstructure:"export"`
	Watch   WatchConfig  `mapstructure:"watch"`
	Verbose bool         `mapstructure:"verbose"`
	NoColor bool         `mapstructure:"no_color"`
}

// GraphConfig selects what is graphed
type GraphConfig struct {
	Assemblies bool `mapstructure:"assemblies"`
	Namespaces bool `mapstructure:"namespaces"`
	Types      bool `mapstructure:"types"`
	Methods    bool `mapstructure:"methods"`
	Fields     bool `mapstructure:"fields"`
	Private    bool `mapstructure:"private"`
}

// ExportConfig names database tables and keys
type ExportConfig struct {
	TablePrefix string `mapstructure:"table_prefix" validate:"max=48"`
	KeyPrefix   string `mapstructure:"key_prefix" validate:"max=128"`
}

// WatchConfig configures watch mode
type WatchConfig struct {
	Debounce time.Duration `mapstructure:"debounce" validate:"gte=10ms,lte=1m"`
}

// Load reads configuration from path, or from codegraph.yaml in the
// working directory when path is empty. A missing default file is not an
// error; CODEGRAPH_* environment variables override file values.
func Load(path string) (*Config, error) {
	v := viper.New()

	v.SetDefault("format", "")
	v.SetDefault("graph.assemblies", false)
	v.SetDefault("graph.namespaces", false)
	v.SetDefault("graph.types", false)
	v.SetDefault("graph.methods", false)
	v.SetDefault("graph.fields", false)
	v.SetDefault("graph.private", false)
	v.SetDefault("export.table_prefix", "codegraph_")
	v.SetDefault("export.key_prefix", "codegraph:")
	v.SetDefault("watch.debounce", "100ms")
	v.SetDefault("verbose", false)
	v.SetDefault("no_color", false)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName(FileName)
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("CODEGRAPH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validateConfig(&config); err != nil {
		return nil, err
	}

	return &config, nil
}

// validateConfig reports the first invalid setting by its config key
func validateConfig(cfg *Config) error {
	err := validator.New().Struct(cfg)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return fmt.Errorf("invalid config: %w", err)
	}

	fe := fieldErrs[0]
	key := configKey(fe.StructNamespace())
	switch fe.Tag() {
	case "oneof":
		return fmt.Errorf("%s must be one of [%s], got: %v", key, fe.Param(), fe.Value())
	case "gte", "lte":
		return fmt.Errorf("%s must be between 10ms and 1m, got: %v", key, fe.Value())
	case "max":
		return fmt.Errorf("%s must be at most %s characters", key, fe.Param())
	default:
		return fmt.Errorf("%s is invalid (%s)", key, fe.Tag())
	}
}

var keys = map[string]string{
	"Format":             "format",
	"Export.TablePrefix": "export.table_prefix",
	"Export.KeyPrefix":   "export.key_prefix",
	"Watch.Debounce":     "watch.debounce",
}

// configKey maps "Config.Watch.Debounce" to "watch.debounce"
func configKey(namespace string) string {
	namespace = strings.TrimPrefix(namespace, "Config.")
	if key, ok := keys[namespace]; ok {
		return key
	}
	return strings.ToLower(namespace)
}
