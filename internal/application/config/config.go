package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"lifecycle-agent/pkg/log"
	"lifecycle-agent/pkg/yaml"
)

// StorageBackend selects where artifacts are kept durably.
type StorageBackend string

const (
	StorageLocal StorageBackend = "local"
	StorageSFTP  StorageBackend = "sftp"
	StorageGCS   StorageBackend = "gcs"
)

const (
	// defaultBasePath defines the root under which units, staging and state live.
	defaultBasePath = "/opt/lifecycle"

	appsFolder      = "apps"
	stagingFolder   = "staging"
	backupsFolder   = "backups"
	snapshotsFolder = "snapshots"

	defaultInventoryFile = "inventory.yml"
	defaultDatabaseFile  = "lifecycle.db"
	defaultSecretsFile   = "secrets.yml"

	defaultCompressor     = "zstd"
	defaultRetryAttempts  = 3
	defaultRetryBase      = 2 * time.Second
	defaultRetryMax       = 30 * time.Second
	defaultStopTimeout    = 30 * time.Second
	defaultPullTimeout    = 10 * time.Minute
	defaultReadyTimeout   = 2 * time.Minute
	defaultRecoverTimeout = 5 * time.Minute
	defaultStaleAfter     = 216 * time.Hour
	defaultKeep           = 7
	defaultParallelism    = 4
)

// Duration is a time.Duration read from "90s"-style strings or from a number
// of seconds.
type Duration time.Duration

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(strings.TrimSpace(string(text)))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", text, err)
	}
	*d = Duration(parsed)
	return nil
}

func (d *Duration) UnmarshalJSON(data []byte) error {
	var seconds float64
	if err := json.Unmarshal(data, &seconds); err == nil {
		*d = Duration(time.Duration(seconds * float64(time.Second)))
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("duration must be a string or a number of seconds: %w", err)
	}
	return d.UnmarshalText([]byte(s))
}

// RetryConfig bounds retries of transient steps such as image pulls.
type RetryConfig struct {
	Attempts  int      `json:"attempts" yaml:"attempts" validate:"min=1,max=20"`
	BaseDelay Duration `json:"base_delay" yaml:"base_delay"`
	MaxDelay  Duration `json:"max_delay" yaml:"max_delay"`
}

// TimeoutConfig holds the timeouts of the suspension points.
type TimeoutConfig struct {
	Stop      Duration `json:"stop" yaml:"stop"`
	Pull      Duration `json:"pull" yaml:"pull"`
	WaitReady Duration `json:"wait_ready" yaml:"wait_ready"`
	// Recover bounds the safety-net restart that runs after the operation
	// context has been cancelled.
	Recover Duration `json:"recover" yaml:"recover"`
}

// SFTPConfig configures the SFTP artifact backend.
type SFTPConfig struct {
	Address        string `json:"address" yaml:"address" validate:"required_if=Enabled true,omitempty,hostname_port"`
	User           string `json:"user" yaml:"user"`
	KeyFile        string `json:"key_file" yaml:"key_file"`
	KnownHostsFile string `json:"known_hosts_file" yaml:"known_hosts_file"`
	Root           string `json:"root" yaml:"root"`
	Enabled        bool   `json:"-" yaml:"-"`
}

// GCSConfig configures the Google Cloud Storage artifact backend.
type GCSConfig struct {
	Bucket          string `json:"bucket" yaml:"bucket" validate:"required_if=Enabled true"`
	Prefix          string `json:"prefix" yaml:"prefix"`
	CredentialsFile string `json:"credentials_file" yaml:"credentials_file"`
	Enabled         bool   `json:"-" yaml:"-"`
}

// StorageConfig selects and configures the durable artifact store.
type StorageConfig struct {
	Backend StorageBackend `json:"backend" yaml:"backend" validate:"oneof=local sftp gcs"`
	// Path is the root of the local backend.
	Path string `json:"path" yaml:"path"`
	// Keep is the number of artifacts retained per identifier; 0 keeps all.
	Keep int        `json:"keep" yaml:"keep" validate:"min=0"`
	SFTP SFTPConfig `json:"sftp" yaml:"sftp"`
	GCS  GCSConfig  `json:"gcs" yaml:"gcs"`
}

// ManagementAPIConfig configures the management-API control mode.
type ManagementAPIConfig struct {
	URL string `json:"url" yaml:"url" validate:"omitempty,url"`
	// TokenCredential names the credential holding the API token.
	TokenCredential string `json:"token_credential" yaml:"token_credential"`
}

// Config holds the application configuration
type Config struct {
	// HostName is recorded with every operation result.
	HostName string          `json:"host_name" yaml:"host_name"`
	Features map[string]bool `json:"features" yaml:"features"`
	// BasePath specifies the root directory; units live in <base>/apps/<unit>.
	BasePath string `json:"base_path,omitempty" yaml:"base_path,omitempty"`
	// StagingPath holds artifacts while they are produced or fetched.
	StagingPath string `json:"staging_path,omitempty" yaml:"staging_path,omitempty"`
	// LogLevel specifies the minimum log level to output (debug, info, warn, error).
	LogLevel string `json:"log_level,omitempty" yaml:"log_level,omitempty" validate:"oneof=debug info warn warning error"`
	// ControlMode forces a control mechanism instead of detecting it.
	ControlMode string `json:"control_mode,omitempty" yaml:"control_mode,omitempty" validate:"omitempty,oneof=direct compose api"`
	// Compressor used for dumps and archives.
	Compressor string `json:"compressor,omitempty" yaml:"compressor,omitempty" validate:"oneof=zstd gzip"`
	// DefinitionCheck replaces the built-in compose validation of staged
	// definitions with a command; "{file}" is replaced by the staged path.
	DefinitionCheck []string `json:"definition_check,omitempty" yaml:"definition_check,omitempty"`

	InventoryPath string              `json:"inventory_path,omitempty" yaml:"inventory_path,omitempty"`
	DatabasePath  string              `json:"database_path,omitempty" yaml:"database_path,omitempty"`
	SecretsPath   string              `json:"secrets_path,omitempty" yaml:"secrets_path,omitempty"`
	WebhookURL    string              `json:"webhook_url,omitempty" yaml:"webhook_url,omitempty" validate:"omitempty,url"`
	MetricsFile   string              `json:"metrics_file,omitempty" yaml:"metrics_file,omitempty"`
	StaleAfter    Duration            `json:"stale_after,omitempty" yaml:"stale_after,omitempty"`
	Parallelism   int                 `json:"parallelism,omitempty" yaml:"parallelism,omitempty" validate:"min=1,max=64"`
	Retry         RetryConfig         `json:"retry" yaml:"retry"`
	Timeouts      TimeoutConfig       `json:"timeouts" yaml:"timeouts"`
	Storage       StorageConfig       `json:"storage" yaml:"storage"`
	ManagementAPI ManagementAPIConfig `json:"management_api" yaml:"management_api"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// prepareConfig ensures the configuration is valid by applying defaults and validating features
func prepareConfig(cfg *Config) {
	if cfg.HostName == "" {
		cfg.HostName, _ = os.Hostname()
	}
	if cfg.BasePath == "" {
		cfg.BasePath = defaultBasePath
	}
	if cfg.StagingPath == "" {
		cfg.StagingPath = cfg.buildPath(stagingFolder)
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.Compressor == "" {
		cfg.Compressor = defaultCompressor
	}
	if cfg.InventoryPath == "" {
		cfg.InventoryPath = cfg.buildPath(defaultInventoryFile)
	}
	if cfg.DatabasePath == "" {
		cfg.DatabasePath = cfg.buildPath(defaultDatabaseFile)
	}
	if cfg.SecretsPath == "" {
		cfg.SecretsPath = cfg.buildPath(defaultSecretsFile)
	}
	if cfg.StaleAfter == 0 {
		cfg.StaleAfter = Duration(defaultStaleAfter)
	}
	if cfg.Parallelism == 0 {
		cfg.Parallelism = defaultParallelism
	}

	if cfg.Retry.Attempts == 0 {
		cfg.Retry.Attempts = defaultRetryAttempts
	}
	if cfg.Retry.BaseDelay == 0 {
		cfg.Retry.BaseDelay = Duration(defaultRetryBase)
	}
	if cfg.Retry.MaxDelay == 0 {
		cfg.Retry.MaxDelay = Duration(defaultRetryMax)
	}

	if cfg.Timeouts.Stop == 0 {
		cfg.Timeouts.Stop = Duration(defaultStopTimeout)
	}
	if cfg.Timeouts.Pull == 0 {
		cfg.Timeouts.Pull = Duration(defaultPullTimeout)
	}
	if cfg.Timeouts.WaitReady == 0 {
		cfg.Timeouts.WaitReady = Duration(defaultReadyTimeout)
	}
	if cfg.Timeouts.Recover == 0 {
		cfg.Timeouts.Recover = Duration(defaultRecoverTimeout)
	}

	if cfg.Storage.Backend == "" {
		cfg.Storage.Backend = StorageLocal
	}
	if cfg.Storage.Path == "" {
		cfg.Storage.Path = cfg.buildPath(backupsFolder)
	}
	if cfg.Storage.Keep == 0 {
		cfg.Storage.Keep = defaultKeep
	}
	cfg.Storage.SFTP.Enabled = cfg.Storage.Backend == StorageSFTP
	cfg.Storage.GCS.Enabled = cfg.Storage.Backend == StorageGCS

	cfg.Features = validateAndMergeFeatures(cfg.Features)
}

// validateAndMergeFeatures ensures only supported features are used and merges with defaults
func validateAndMergeFeatures(configFeatures map[string]bool) map[string]bool {
	mergedFeatures := make(map[string]bool, len(DefaultFeatureValues))
	for feature, defaultValue := range DefaultFeatureValues {
		if value, exists := configFeatures[feature]; exists {
			mergedFeatures[feature] = value
		} else {
			mergedFeatures[feature] = defaultValue
		}
	}
	return mergedFeatures
}

// NewConfig returns a configuration with every default applied.
func NewConfig() *Config {
	cfg := &Config{}
	prepareConfig(cfg)
	return cfg
}

// LoadConfig loads the configuration from a JSON or YAML file. A missing file
// yields the defaults; a malformed or invalid one is an error.
func LoadConfig(configPath string) (*Config, error) {
	cfg := &Config{}

	data, err := os.ReadFile(configPath)
	switch {
	case errors.Is(err, os.ErrNotExist):
		log.Debug("Config file not found, using defaults", "path", configPath)
	case err != nil:
		return nil, fmt.Errorf("failed to read config file: %w", err)
	default:
		if err := decode(configPath, data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", configPath, err)
		}
	}

	prepareConfig(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func decode(path string, data []byte, cfg *Config) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yml", ".yaml":
		return yaml.UnmarshalStrict(data, cfg)
	default:
		return json.Unmarshal(data, cfg)
	}
}

// Validate checks field constraints after defaults have been applied.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s: failed %q", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("invalid configuration: %s", strings.Join(msgs, "; "))
		}
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if c.Retry.MaxDelay < c.Retry.BaseDelay {
		return fmt.Errorf("invalid configuration: retry.max_delay is lower than retry.base_delay")
	}
	return nil
}

// SaveConfig saves the configuration to a JSON file
func SaveConfig(config *Config, configPath string) error {
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return log.Errorf("failed to create config directory: %v", err)
	}

	prepareConfig(config)

	configToSave := *config
	filteredFeatures := make(map[string]bool)
	for feature, value := range config.Features {
		if defaultValue, exists := DefaultFeatureValues[feature]; !exists || value != defaultValue {
			filteredFeatures[feature] = value
		}
	}
	configToSave.Features = filteredFeatures

	data, err := json.MarshalIndent(configToSave, "", "  ")
	if err != nil {
		return log.Errorf("failed to marshal config: %v", err)
	}

	if err := os.WriteFile(configPath, data, 0600); err != nil {
		return log.Errorf("failed to write config file: %v", err)
	}

	return nil
}

// buildPath constructs a file path from base path and components
func (c *Config) buildPath(components ...string) string {
	parts := append([]string{c.BasePath}, components...)
	return filepath.Join(parts...)
}

func (c *Config) GetAppsPath() string {
	return c.buildPath(appsFolder)
}

// GetUnitDir returns the directory of a compose unit.
func (c *Config) GetUnitDir(unit string) string {
	return c.buildPath(appsFolder, unit)
}

// GetSnapshotsPath is where snapshots of units without a directory are kept.
func (c *Config) GetSnapshotsPath() string {
	return c.buildPath(snapshotsFolder)
}

func (c *Config) GetStagingPath() string {
	return c.StagingPath
}
