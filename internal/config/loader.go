package config

import (
	_ "embed"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// defaultConfigYAML is used when no configuration file is given. Service
// URLs come from DT_URL, FORECAST_URL, EOP_URL and ENG_URL.
//
//go:embed defaults.yaml
var defaultConfigYAML []byte

// envVarPattern matches $$, ${VAR}, ${VAR:-default} and ${VAR:?message}.
var envVarPattern = regexp.MustCompile(`\$\$|\$\{([A-Za-z_][A-Za-z0-9_]*)(?::([-?])([^}]*))?\}`)

// Loader handles configuration loading from files and readers.
type Loader struct {
	lookupEnv func(string) (string, bool)
}

// LoaderOption is a functional option for NewLoader.
type LoaderOption func(*Loader)

// WithLookupEnv overrides the environment lookup used for substitution.
func WithLookupEnv(fn func(string) (string, bool)) LoaderOption {
	return func(l *Loader) {
		l.lookupEnv = fn
	}
}

// NewLoader creates a new configuration loader.
func NewLoader(opts ...LoaderOption) *Loader {
	l := &Loader{lookupEnv: os.LookupEnv}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// LoadConfig loads configuration from a file path. An empty path loads
// the embedded default configuration.
func LoadConfig(path string) (*GatewayConfig, error) {
	loader := NewLoader()
	if path == "" {
		return loader.LoadDefault()
	}
	return loader.Load(path)
}

// LoadConfigFromReader loads configuration from an io.Reader.
func LoadConfigFromReader(r io.Reader) (*GatewayConfig, error) {
	loader := NewLoader()
	return loader.LoadFromReader(r)
}

// Load loads configuration from a file path.
func (l *Loader) Load(path string) (*GatewayConfig, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve path %s: %w", path, err)
	}

	data, err := os.ReadFile(absPath) //nolint:gosec // path is operator-provided
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	return l.parseConfig(data)
}

// LoadFromReader loads configuration from an io.Reader.
func (l *Loader) LoadFromReader(r io.Reader) (*GatewayConfig, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	return l.parseConfig(data)
}

// LoadDefault loads the embedded default configuration.
func (l *Loader) LoadDefault() (*GatewayConfig, error) {
	return l.parseConfig(defaultConfigYAML)
}

// parseConfig substitutes environment references, parses the YAML and
// applies defaults.
func (l *Loader) parseConfig(data []byte) (*GatewayConfig, error) {
	content, err := l.substituteEnvVars(string(data))
	if err != nil {
		return nil, err
	}

	var config GatewayConfig
	if err := yaml.Unmarshal([]byte(content), &config); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	config.ApplyDefaults()

	return &config, nil
}

// substituteEnvVars expands environment references. An unset or empty
// variable yields its default, or an error when the reference uses the
// ${VAR:?message} form. $$ is a literal dollar sign.
func (l *Loader) substituteEnvVars(content string) (string, error) {
	var missing []string

	result := envVarPattern.ReplaceAllStringFunc(content, func(match string) string {
		if match == "$$" {
			return "$"
		}
		m := envVarPattern.FindStringSubmatch(match)
		name, op, arg := m[1], m[2], m[3]

		if value, ok := l.lookupEnv(name); ok && value != "" {
			return value
		}
		if op == "?" {
			if arg == "" {
				arg = "is not set"
			}
			missing = append(missing, name+": "+arg)
			return ""
		}
		return arg
	})

	if len(missing) > 0 {
		return "", fmt.Errorf("missing required environment: %s", strings.Join(missing, "; "))
	}
	return result, nil
}
