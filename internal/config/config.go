// Package config loads the scriptx CLI configuration from scriptx.yaml,
// SCRIPTX_* environment variables and a .env file.
package config

import (
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/spf13/viper"
	"sigs.k8s.io/yaml"

	"github.com/Doomsta/scriptx"
	"github.com/Doomsta/scriptx/driver"
)

const (
	envPrefix      = "SCRIPTX"
	dotenvFileName = ".env"
	maxWalkDepth   = 25
	mask           = "********"
)

var configFileNames = []string{"scriptx.yaml", "scriptx.yml"}

// Config is the effective configuration of a CLI invocation
type Config struct {
	Database   DatabaseConfig   `mapstructure:"database" json:"database"`
	Migrations MigrationsConfig `mapstructure:"migrations" json:"migrations"`
}

// DatabaseConfig holds the target connection settings
type DatabaseConfig struct {
	Kind     string `mapstructure:"kind" json:"kind"`
	Driver   string `mapstructure:"driver" json:"driver,omitempty"`
	URL      string `mapstructure:"url" json:"url,omitempty"`
	Host     string `mapstructure:"host" json:"host,omitempty"`
	Port     int    `mapstructure:"port" json:"port,omitempty"`
	Name     string `mapstructure:"name" json:"name,omitempty"`
	User     string `mapstructure:"user" json:"user,omitempty"`
	Password string `mapstructure:"password" json:"password,omitempty"`
	SSLMode  string `mapstructure:"sslmode" json:"sslmode,omitempty"`
}

// MigrationsConfig holds the run settings
type MigrationsConfig struct {
	Dir           string `mapstructure:"dir" json:"dir"`
	MaxAttempts   int    `mapstructure:"max_attempts" json:"max_attempts"`
	FailurePolicy string `mapstructure:"failure_policy" json:"failure_policy"`
	MaxFailures   int    `mapstructure:"max_failures" json:"max_failures,omitempty"`
	Table         string `mapstructure:"table" json:"table"`
	LockTable     string `mapstructure:"lock_table" json:"lock_table"`
}

// Load discovers and loads configuration with precedence
// flags > env > .env > config file > defaults. Flags are applied by the caller.
//
// It returns the path of the config file, empty if none was found.
func Load(explicitPath string) (*Config, string, error) {
	configPath, err := findConfigFile(explicitPath)
	if err != nil {
		return nil, "", err
	}

	dirs := []string{"."}
	if configPath != "" {
		dirs = append(dirs, filepath.Dir(configPath))
	}
	if err := loadDotenv(dirs...); err != nil {
		return nil, configPath, err
	}

	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, configPath, errors.WithMessage(err, "reading config file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, configPath, errors.WithMessage(err, "unmarshaling config")
	}
	return &cfg, configPath, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("database.kind", string(driver.Postgres))
	v.SetDefault("database.driver", "")
	v.SetDefault("database.url", "")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 0)
	v.SetDefault("database.name", "")
	v.SetDefault("database.user", "")
	v.SetDefault("database.password", "")
	v.SetDefault("database.sslmode", "")

	v.SetDefault("migrations.dir", "migrations")
	v.SetDefault("migrations.max_attempts", scriptx.DefaultMaxAttempts)
	v.SetDefault("migrations.failure_policy", "stop")
	v.SetDefault("migrations.max_failures", 0)
	v.SetDefault("migrations.table", scriptx.DefaultLedgerTable)
	v.SetDefault("migrations.lock_table", scriptx.DefaultLockTable)
}

// findConfigFile validates explicitPath, or walks up from the working
// directory looking for scriptx.yaml or scriptx.yml, stopping at a .git
// entry or after maxWalkDepth levels.
func findConfigFile(explicitPath string) (string, error) {
	if explicitPath != "" {
		if _, err := os.Stat(explicitPath); err != nil {
			return "", errors.Errorf("config file not found: %s", explicitPath)
		}
		return explicitPath, nil
	}

	dir, err := os.Getwd()
	if err != nil {
		return "", errors.WithMessage(err, "getting cwd")
	}
	for i := 0; i < maxWalkDepth; i++ {
		for _, name := range configFileNames {
			path := filepath.Join(dir, name)
			if _, err := os.Stat(path); err == nil {
				return path, nil
			}
		}

		if _, err := os.Stat(filepath.Join(dir, ".git")); err == nil {
			break
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return "", nil
}

// loadDotenv exports the variables of the first .env file found in dirs.
// Variables already set in the environment win.
func loadDotenv(dirs ...string) error {
	for _, dir := range dirs {
		path := filepath.Join(dir, dotenvFileName)
		info, err := os.Stat(path)
		if err != nil || info.IsDir() {
			continue
		}
		return errors.WithMessagef(godotenv.Load(path), "reading %s", path)
	}
	return nil
}

// Driver returns the connection settings of the target database
func (c *Config) Driver() (driver.Config, error) {
	kind, err := driver.ParseKind(c.Database.Kind)
	if err != nil {
		return driver.Config{}, err
	}
	if c.Migrations.MaxAttempts < 1 {
		return driver.Config{}, errors.Errorf("migrations.max_attempts must be at least 1, got %d", c.Migrations.MaxAttempts)
	}

	cfg := driver.Config{
		Kind:          kind,
		Driver:        c.Database.Driver,
		URL:           c.Database.URL,
		Host:          c.Database.Host,
		Port:          c.Database.Port,
		Database:      c.Database.Name,
		User:          c.Database.User,
		Password:      c.Database.Password,
		SSLMode:       c.Database.SSLMode,
		FailurePolicy: c.Migrations.FailurePolicy,
		MaxFailures:   c.Migrations.MaxFailures,
		Tables: scriptx.Tables{
			Ledger: c.Migrations.Table,
			Lock:   c.Migrations.LockTable,
		},
	}
	if cfg.Port == 0 {
		cfg.Port = kind.DefaultPort()
	}
	if _, err := cfg.Policy(); err != nil {
		return driver.Config{}, err
	}
	if cfg.URL == "" && kind != driver.SQLite && cfg.Database == "" {
		return driver.Config{}, errors.New("database.name is required when database.url is not set")
	}
	return cfg, nil
}

// Masked returns a copy with the password hidden, including the one of database.url
func (c Config) Masked() Config {
	if c.Database.Password != "" {
		c.Database.Password = mask
	}
	if u, err := url.Parse(c.Database.URL); err == nil {
		c.Database.URL = u.Redacted()
	}
	return c
}

// YAML renders the masked configuration
func (c Config) YAML() ([]byte, error) {
	out, err := yaml.Marshal(c.Masked())
	return out, errors.WithStack(err)
}
