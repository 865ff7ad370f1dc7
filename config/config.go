package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/hashicorp/go-secure-stdlib/parseutil"
	"github.com/hashicorp/hcl/v2/hclsimple"
	"github.com/stephnangue/sessionpipe/api"
	"github.com/stephnangue/sessionpipe/logger"
	"github.com/stephnangue/sessionpipe/session"
)

// DefaultStoreDir is where the file store keeps the session when no path
// is configured, relative to the user's home directory.
const DefaultStoreDir = ".sessionpipe"

// Config is the configuration of the sessionpipe CLI.
type Config struct {
	Address        string `hcl:"address,optional"`
	RefreshPath    string `hcl:"refresh_path,optional"`
	SignInPath     string `hcl:"sign_in_path,optional"`
	RefreshTimeout string `hcl:"refresh_timeout,optional"`
	WaitTimeout    string `hcl:"wait_timeout,optional"`
	NavigateDelay  string `hcl:"navigate_delay,optional"`
	ClientTimeout  string `hcl:"client_timeout,optional"`
	MaxRetries     *int   `hcl:"max_retries,optional"`
	CACert         string `hcl:"ca_cert,optional"`
	CAPath         string `hcl:"ca_path,optional"`
	TLSSkipVerify  bool   `hcl:"tls_skip_verify,optional"`
	TLSServerName  string `hcl:"tls_server_name,optional"`

	LogLevel           string `hcl:"log_level,optional"`
	LogFormat          string `hcl:"log_format,optional"`
	LogFile            string `hcl:"log_file,optional"`
	LogRotationPeriod  int    `hcl:"log_rotation_period,optional"`
	LogRotateMegabytes int    `hcl:"log_rotate_megabytes,optional"`
	LogRotateMaxFiles  int    `hcl:"log_rotate_max_files,optional"`

	Store *StoreBlock `hcl:"store,block"`
}

type StoreBlock struct {
	Type string `hcl:"type,label"` // "memory" or "file"

	// File store specific config
	Path string `hcl:"path,optional"`
}

func LoadConfig(configFile string) (*Config, error) {
	var config Config

	err := hclsimple.DecodeFile(configFile, nil, &config)
	if err != nil {
		return nil, err
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

// Validate reports every problem in the configuration at once.
func (c *Config) Validate() error {
	var result *multierror.Error

	durations := map[string]string{
		"refresh_timeout": c.RefreshTimeout,
		"wait_timeout":    c.WaitTimeout,
		"navigate_delay":  c.NavigateDelay,
		"client_timeout":  c.ClientTimeout,
	}
	parsed := make(map[string]time.Duration)
	for _, name := range []string{"refresh_timeout", "wait_timeout", "navigate_delay", "client_timeout"} {
		d, err := parseDuration(durations[name])
		if err != nil {
			result = multierror.Append(result, fmt.Errorf("%s: %w", name, err))
			continue
		}
		parsed[name] = d
	}
	if wait := parsed["wait_timeout"]; wait > 0 {
		refresh := parsed["refresh_timeout"]
		if refresh <= 0 {
			refresh = api.DefaultRefreshTimeout
		}
		if wait < refresh {
			result = multierror.Append(result, fmt.Errorf("wait_timeout: %s is shorter than refresh_timeout %s", wait, refresh))
		}
	}

	if c.MaxRetries != nil && *c.MaxRetries < 0 {
		result = multierror.Append(result, errors.New("max_retries: must not be negative"))
	}
	if c.SignInPath != "" && !strings.HasPrefix(c.SignInPath, "/") {
		result = multierror.Append(result, fmt.Errorf("sign_in_path: %q must start with /", c.SignInPath))
	}
	if c.RefreshPath != "" && !strings.HasPrefix(c.RefreshPath, "/") {
		result = multierror.Append(result, fmt.Errorf("refresh_path: %q must start with /", c.RefreshPath))
	}
	if c.LogLevel != "" && logger.ParseLogLevel(c.LogLevel) == logger.InfoLevel && !strings.EqualFold(strings.TrimSpace(c.LogLevel), "info") {
		result = multierror.Append(result, fmt.Errorf("log_level: unknown level %q", c.LogLevel))
	}
	if c.LogFormat != "" && c.LogFormat != "json" && c.LogFormat != "console" {
		result = multierror.Append(result, fmt.Errorf("log_format: unknown format %q", c.LogFormat))
	}
	if c.Store != nil && c.Store.Type != "memory" && c.Store.Type != "file" {
		result = multierror.Append(result, fmt.Errorf("store: unknown type %q", c.Store.Type))
	}

	return result.ErrorOrNil()
}

// ApplyTo copies the values set in the file onto an API client
// configuration. Unset values keep what the environment provided.
func (c *Config) ApplyTo(ac *api.Config) error {
	if c.Address != "" {
		ac.Address = c.Address
	}
	if c.RefreshPath != "" {
		ac.RefreshPath = c.RefreshPath
	}
	if c.SignInPath != "" {
		ac.SignInPath = c.SignInPath
	}
	if c.MaxRetries != nil {
		ac.MaxRetries = *c.MaxRetries
	}

	for _, d := range []struct {
		raw    string
		target *time.Duration
	}{
		{c.RefreshTimeout, &ac.RefreshTimeout},
		{c.WaitTimeout, &ac.WaitTimeout},
		{c.NavigateDelay, &ac.NavigateDelay},
		{c.ClientTimeout, &ac.Timeout},
	} {
		v, err := parseDuration(d.raw)
		if err != nil {
			return err
		}
		if v > 0 {
			*d.target = v
		}
	}

	if c.CACert != "" || c.CAPath != "" || c.TLSSkipVerify || c.TLSServerName != "" {
		if err := ac.ConfigureTLS(&api.TLSConfig{
			CACert:        c.CACert,
			CAPath:        c.CAPath,
			TLSServerName: c.TLSServerName,
			Insecure:      c.TLSSkipVerify,
		}); err != nil {
			return fmt.Errorf("failed to configure TLS: %w", err)
		}
	}
	return nil
}

// LoggerConfig builds the logger configuration. With a log file the
// entries go to a rotated JSON file only.
func (c *Config) LoggerConfig() *logger.Config {
	var cfg *logger.Config
	if c.LogFile != "" {
		cfg = logger.FileOnlyConfig(c.LogFile)
		if c.LogRotateMegabytes > 0 {
			cfg.FileConfig.MaxSize = c.LogRotateMegabytes
		}
		if c.LogRotateMaxFiles > 0 {
			cfg.FileConfig.MaxBackups = c.LogRotateMaxFiles
		}
		if c.LogRotationPeriod > 0 {
			cfg.FileConfig.MaxAge = c.LogRotationPeriod
		}
	} else {
		cfg = logger.DefaultConfig()
	}

	if c.LogLevel != "" {
		cfg.Level = logger.ParseLogLevel(c.LogLevel)
	}
	if c.LogFormat != "" {
		cfg.Format = logger.ParseOutputFormat(c.LogFormat)
	}
	return cfg
}

// NewStore returns the credential store described by the store block. The
// default is a file store under the user's home directory.
func (c *Config) NewStore() (session.Store, error) {
	if c.Store != nil && c.Store.Type == "memory" {
		return session.NewMemoryStore(), nil
	}

	path := ""
	if c.Store != nil {
		path = c.Store.Path
	}
	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to locate home directory: %w", err)
		}
		path = filepath.Join(home, DefaultStoreDir, session.DefaultFileName)
	}
	return session.NewFileStore(expandHome(path))
}

func parseDuration(raw string) (time.Duration, error) {
	if raw == "" {
		return 0, nil
	}
	d, err := parseutil.ParseDurationSecond(raw)
	if err != nil {
		return 0, err
	}
	if d < 0 {
		return 0, errors.New("must not be negative")
	}
	return d, nil
}

func expandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}
