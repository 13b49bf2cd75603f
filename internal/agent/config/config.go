package config

import (
	"fmt"
	"os"
	"time"

	"github.com/updatectl/updatectl/internal/agent/device/errors"
	"github.com/updatectl/updatectl/internal/util"
	"sigs.k8s.io/yaml"
)

const (
	// DefaultPollInterval is the default interval between two polls for an
	// assigned action.
	DefaultPollInterval = util.Duration(30 * time.Second)
	// MinPollInterval is the minimum poll interval allowed.
	MinPollInterval = util.Duration(2 * time.Second)
	// DefaultArtifactsDir is the default directory downloaded artifacts are
	// stored under.
	DefaultArtifactsDir = "/var/lib/updatectl/artifacts"
	// DefaultConfigFile is the default path to the agent's configuration file.
	DefaultConfigFile = "/etc/updatectl/config.yaml"
)

type Config struct {
	// ServerURL is the base URL of the update server.
	ServerURL string `json:"server-url,omitempty"`
	// Tenant is the server-side tenant the device belongs to.
	Tenant string `json:"tenant,omitempty"`
	// ControllerID identifies this device on the server.
	ControllerID string `json:"controller-id,omitempty"`
	// GatewayToken authenticates the device against the server gateway.
	GatewayToken string `json:"gateway-token,omitempty"`
	// TargetToken is the device-specific token, used when no gateway token is
	// configured.
	TargetToken string `json:"target-token,omitempty"`

	// PollInterval is the interval between two polls for an assigned action,
	// absent a force ping.
	PollInterval util.Duration `json:"poll-interval,omitempty"`
	// ArtifactsDir is the directory downloaded artifacts are stored under.
	ArtifactsDir string `json:"artifacts-dir,omitempty"`

	// LogLevel is the level of logging. can be: "panic", "fatal", "error",
	// "warn"/"warning", "info", "debug" or "trace", any other will be treated
	// as "info"
	LogLevel string `json:"log-level,omitempty"`
	// LogPrefix is the log prefix used for testing
	LogPrefix string `json:"log-prefix,omitempty"`

	// testRootDir is the root directory of the test agent
	testRootDir string
}

func NewDefault() *Config {
	return &Config{
		PollInterval: DefaultPollInterval,
		ArtifactsDir: DefaultArtifactsDir,
	}
}

func (cfg *Config) SetTestRootDir(rootDir string) {
	cfg.testRootDir = rootDir
}

func (cfg *Config) GetTestRootDir() string {
	return cfg.testRootDir
}

// ParseConfigFile loads the config from the provided yaml file on top of the
// defaults and validates it.
func ParseConfigFile(cfgFile string) (*Config, error) {
	cfg := NewDefault()
	contents, err := os.ReadFile(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	if err := yaml.Unmarshal(contents, cfg); err != nil {
		return nil, fmt.Errorf("unmarshalling config file: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (cfg *Config) Validate() error {
	if cfg.ServerURL == "" {
		return fmt.Errorf("%w: server-url is required", errors.ErrInvalidConfig)
	}
	if cfg.ControllerID == "" {
		return fmt.Errorf("%w: controller-id is required", errors.ErrInvalidConfig)
	}
	if cfg.PollInterval < MinPollInterval {
		return fmt.Errorf("%w: poll-interval must be at least %s", errors.ErrInvalidConfig, time.Duration(MinPollInterval))
	}
	if cfg.ArtifactsDir == "" {
		return fmt.Errorf("%w: artifacts-dir is required", errors.ErrInvalidConfig)
	}
	return nil
}

func (cfg *Config) String() string {
	contents, err := yaml.Marshal(cfg)
	if err != nil {
		return "<error>"
	}
	return string(contents)
}
