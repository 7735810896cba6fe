package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v9"
)

// Config holds all configuration for the application.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	IPA      IPAConfig
	Apply    ApplyConfig
	Access   AccessConfig
	Backup   BackupConfig
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host            string `env:"SERVER_HOST" envDefault:"0.0.0.0"`
	Port            int    `env:"SERVER_PORT" envDefault:"8080"`
	BootstrapAPIKey string `env:"BOOTSTRAP_API_KEY"`
}

// DatabaseConfig holds database configuration.
type DatabaseConfig struct {
	Driver string `env:"DB_DRIVER" envDefault:"sqlite3"`
	DSN    string `env:"DB_DSN" envDefault:"data/idm-access-manager.db"`
}

// IPAConfig holds the identity management server configuration. Principal and
// Keytab select the Kerberos credential used for every server invocation;
// when both are empty the process's ambient credential cache is used.
type IPAConfig struct {
	Principal string `env:"IPA_PRINCIPAL"`
	Keytab    string `env:"IPA_KEYTAB"`
	CachePath string `env:"IPA_CCACHE"`
	FileShim  string `env:"IPA_FILE_SHIM"` // Path to state file for the testing shim (disables the real CLI)
}

// ApplyConfig holds reconciliation behavior configuration.
type ApplyConfig struct {
	ObjectTimeout time.Duration `env:"APPLY_OBJECT_TIMEOUT" envDefault:"30s"`
}

// AccessConfig holds temporary access lifecycle configuration.
type AccessConfig struct {
	SweepInterval time.Duration `env:"ACCESS_SWEEP_INTERVAL" envDefault:"1m"`
}

// BackupConfig holds configuration snapshot settings.
type BackupConfig struct {
	Dir    string `env:"BACKUP_DIR" envDefault:"data/backups"`
	Prefix string `env:"BACKUP_PREFIX" envDefault:"idm_acf_backup"`
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{}

	if err := env.Parse(&cfg.Server); err != nil {
		return nil, fmt.Errorf("parsing server config: %w", err)
	}
	if err := env.Parse(&cfg.Database); err != nil {
		return nil, fmt.Errorf("parsing database config: %w", err)
	}
	if err := env.Parse(&cfg.IPA); err != nil {
		return nil, fmt.Errorf("parsing ipa config: %w", err)
	}
	if err := env.Parse(&cfg.Apply); err != nil {
		return nil, fmt.Errorf("parsing apply config: %w", err)
	}
	if err := env.Parse(&cfg.Access); err != nil {
		return nil, fmt.Errorf("parsing access config: %w", err)
	}
	if err := env.Parse(&cfg.Backup); err != nil {
		return nil, fmt.Errorf("parsing backup config: %w", err)
	}

	return cfg, nil
}

// Addr returns the server address in host:port format.
func (c *ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.IPA.Principal != "" && c.IPA.Keytab == "" {
		return fmt.Errorf("IPA_KEYTAB is required when IPA_PRINCIPAL is set")
	}
	if c.Apply.ObjectTimeout <= 0 {
		return fmt.Errorf("APPLY_OBJECT_TIMEOUT must be positive")
	}
	if c.Access.SweepInterval <= 0 {
		return fmt.Errorf("ACCESS_SWEEP_INTERVAL must be positive")
	}
	return nil
}

// UseFileShim returns true if the file shim should be used instead of the real CLI.
func (c *Config) UseFileShim() bool {
	return c.IPA.FileShim != ""
}
