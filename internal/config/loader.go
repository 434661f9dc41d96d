package config

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

const envPrefix = "diskwatch"

// Loader handles loading configuration from multiple sources.
type Loader struct {
	settings    *Settings
	configPaths []string
	envFiles    []string
}

// NewLoader creates a loader with the standard search paths.
func NewLoader() *Loader {
	return &Loader{
		settings: DefaultSettings(),
		configPaths: []string{
			"/etc/diskwatch/diskwatch.yml",
			"/etc/diskwatch/diskwatch.yaml",
			"./diskwatch.yml",
			"./diskwatch.yaml",
		},
		envFiles: []string{
			"/etc/diskwatch/.env",
			".env",
		},
	}
}

// WithConfigFile restricts loading to a single explicit config file.
func (l *Loader) WithConfigFile(path string) *Loader {
	if path != "" {
		l.configPaths = []string{path}
	}
	return l
}

// Load resolves configuration in order of precedence: defaults, YAML file,
// .env file, environment variables.
func (l *Loader) Load() (*Settings, error) {
	if err := l.loadFromFile(); err != nil {
		return nil, err
	}

	l.loadEnvFiles()

	if err := envconfig.Process(envPrefix, l.settings); err != nil {
		return nil, fmt.Errorf("apply environment overrides: %w", err)
	}

	if err := l.settings.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return l.settings, nil
}

func (l *Loader) loadFromFile() error {
	for _, path := range l.configPaths {
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return fmt.Errorf("read config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, l.settings); err != nil {
			return fmt.Errorf("parse config file %s: %w", path, err)
		}
		log.Debug().Str("path", path).Msg("Loaded configuration file")
		return nil
	}
	log.Debug().Msg("No configuration file found, using defaults")
	return nil
}

func (l *Loader) loadEnvFiles() {
	for _, path := range l.envFiles {
		if _, err := os.Stat(path); err != nil {
			continue
		}
		if err := godotenv.Load(path); err != nil {
			log.Warn().Err(err).Str("path", path).Msg("Failed to load env file")
			continue
		}
		log.Debug().Str("path", path).Msg("Loaded env file")
	}
}

// Load is the package-level convenience entry point.
func Load() (*Settings, error) {
	return NewLoader().Load()
}

// LoadFile loads configuration from an explicit file path.
func LoadFile(path string) (*Settings, error) {
	return NewLoader().WithConfigFile(path).Load()
}
