// Package globalconfig provides the tool configuration for pvetmpl.
// Values come from defaults, ~/.config/pvetmpl/config.yaml, PVETMPL_*
// environment variables and command line flags, in increasing precedence.
package globalconfig

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix is the prefix of environment variables, e.g. PVETMPL_STORAGE.
const EnvPrefix = "PVETMPL"

// ErrNoStorage is returned when a run has no target storage configured.
var ErrNoStorage = errors.New("no storage configured: pass --storage or set storage in the config file")

// Config represents the pvetmpl configuration.
type Config struct {
	Storage           string        `mapstructure:"storage"`
	ScratchDir        string        `mapstructure:"scratch_dir"`
	Bridge            string        `mapstructure:"bridge"`
	Memory            int           `mapstructure:"memory"` // MiB
	FetchTimeout      time.Duration `mapstructure:"fetch_timeout"`
	CustomizeTimeout  time.Duration `mapstructure:"customize_timeout"`
	LibguestfsBackend string        `mapstructure:"libguestfs_backend"`
	KeepOnFailure     bool          `mapstructure:"keep_on_failure"`
	Prefetch          bool          `mapstructure:"prefetch"`
	MetricsFile       string        `mapstructure:"metrics_file"` // Prometheus textfile, empty disables
	StateDir          string        `mapstructure:"state_dir"`
	S3                S3Config      `mapstructure:"s3"`
}

// S3Config configures s3:// image sources.
type S3Config struct {
	Endpoint  string `mapstructure:"endpoint"`
	Region    string `mapstructure:"region"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
}

// Default returns the configuration used when nothing is set.
func Default() *Config {
	stateDir, err := GetStateDir()
	if err != nil {
		stateDir = DefaultScratchDir
	}
	return &Config{
		ScratchDir:        DefaultScratchDir,
		Bridge:            "vmbr0",
		Memory:            512,
		FetchTimeout:      30 * time.Minute,
		CustomizeTimeout:  30 * time.Minute,
		LibguestfsBackend: "direct",
		StateDir:          stateDir,
		S3: S3Config{
			Region: "us-east-1",
		},
	}
}

// LoadOptions controls where configuration is read from.
type LoadOptions struct {
	// ConfigFile is used exclusively when set and must exist.
	ConfigFile string
	// Flags maps config keys to command line flags that override them.
	Flags map[string]*pflag.Flag
}

// Load reads the configuration. A missing default config file is not an
// error.
func Load(opts LoadOptions) (*Config, string, error) {
	v := viper.New()

	defaults := Default()
	v.SetDefault("storage", defaults.Storage)
	v.SetDefault("scratch_dir", defaults.ScratchDir)
	v.SetDefault("bridge", defaults.Bridge)
	v.SetDefault("memory", defaults.Memory)
	v.SetDefault("fetch_timeout", defaults.FetchTimeout)
	v.SetDefault("customize_timeout", defaults.CustomizeTimeout)
	v.SetDefault("libguestfs_backend", defaults.LibguestfsBackend)
	v.SetDefault("keep_on_failure", defaults.KeepOnFailure)
	v.SetDefault("prefetch", defaults.Prefetch)
	v.SetDefault("metrics_file", defaults.MetricsFile)
	v.SetDefault("state_dir", defaults.StateDir)
	v.SetDefault("s3.endpoint", defaults.S3.Endpoint)
	v.SetDefault("s3.region", defaults.S3.Region)
	v.SetDefault("s3.access_key", defaults.S3.AccessKey)
	v.SetDefault("s3.secret_key", defaults.S3.SecretKey)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	for key, flag := range opts.Flags {
		if flag == nil {
			continue
		}
		if err := v.BindPFlag(key, flag); err != nil {
			return nil, "", fmt.Errorf("failed to bind flag --%s: %w", flag.Name, err)
		}
	}

	resolvedPath := ""
	if opts.ConfigFile != "" {
		if _, err := os.Stat(opts.ConfigFile); err != nil {
			return nil, "", fmt.Errorf("config file not found: %w", err)
		}
		resolvedPath = opts.ConfigFile
	} else if path, err := GetConfigPath(); err == nil {
		if _, err := os.Stat(path); err == nil {
			resolvedPath = path
		}
	}

	if resolvedPath != "" {
		v.SetConfigFile(resolvedPath)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, "", fmt.Errorf("failed to read config file %s: %w", resolvedPath, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, "", fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, "", err
	}

	return &cfg, resolvedPath, nil
}

func (c *Config) validate() error {
	if c.ScratchDir == "" {
		return errors.New("scratch_dir must not be empty")
	}
	if c.Memory <= 0 {
		return fmt.Errorf("memory must be positive, got %d", c.Memory)
	}
	if c.FetchTimeout < 0 || c.CustomizeTimeout < 0 {
		return errors.New("timeouts must not be negative")
	}
	return nil
}

// RequireStorage checks that a target storage has been configured.
func (c *Config) RequireStorage() error {
	if c.Storage == "" {
		return ErrNoStorage
	}
	return nil
}
