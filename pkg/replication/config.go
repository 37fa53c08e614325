package replication

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/dd0wney/replcore/pkg/dn"
	"github.com/dd0wney/replcore/pkg/logging"
	"github.com/dd0wney/replcore/pkg/protocol"
	"github.com/dd0wney/replcore/pkg/validation"
)

// AssuredConfig holds the assured replication defaults of a domain
type AssuredConfig struct {
	Enabled       bool          `yaml:"enabled"`
	Mode          string        `yaml:"mode" validate:"omitempty,oneof=safe-data safe-read"`
	SafeDataLevel int           `yaml:"safe_data_level" validate:"gte=0,lte=255"`
	Timeout       time.Duration `yaml:"timeout"`
}

// DomainConfig configures one replicated subtree on one replica
type DomainConfig struct {
	ReplicaID    int    `yaml:"replica_id" validate:"min=1,max=65535"`
	BaseDN       string `yaml:"base_dn" validate:"required,dn"`
	ServerURL    string `yaml:"server_url" validate:"required,hostname_port"`
	GroupID      int    `yaml:"group_id" validate:"gte=0,lte=255"`
	GenerationID int64  `yaml:"generation_id"`

	// ProtocolVersion is the newest protocol version offered to peers
	ProtocolVersion   int           `yaml:"protocol_version"`
	WindowSize        int           `yaml:"window_size"`
	HeartbeatInterval time.Duration `yaml:"heartbeat_interval"`
	SSLEncryption     bool          `yaml:"ssl_encryption"`
	DegradedThreshold int           `yaml:"degraded_threshold"`
	ReferralURLs      []string      `yaml:"referral_urls" validate:"omitempty,dive,url"`

	Assured AssuredConfig `yaml:"assured"`

	// StateDBPath is the bbolt file holding the server state; empty keeps
	// the state in memory only. Ignored when a store is passed to NewDomain.
	StateDBPath string `yaml:"state_db_path"`
	// LogLevel applies to the process default logger when NewDomain is not
	// given one
	LogLevel string `yaml:"log_level" validate:"omitempty,loglevel"`
}

// DefaultDomainConfig returns default configuration
func DefaultDomainConfig() DomainConfig {
	return DomainConfig{
		GroupID:           int(protocol.DefaultGroupID),
		ProtocolVersion:   int(protocol.VersionLast),
		WindowSize:        100,
		HeartbeatInterval: 10 * time.Second,
		DegradedThreshold: int(protocol.DefaultDegradedThreshold),
		Assured: AssuredConfig{
			Mode:          protocol.DefaultAssuredMode.String(),
			SafeDataLevel: int(protocol.DefaultSafeDataLevel),
			Timeout:       2 * time.Second,
		},
		LogLevel: "info",
	}
}

// ApplyDefaults applies default values to zero-valued fields
func (c *DomainConfig) ApplyDefaults() {
	defaults := DefaultDomainConfig()

	c.GroupID = validation.DefaultOr(c.GroupID, defaults.GroupID)
	c.ProtocolVersion = validation.DefaultOr(c.ProtocolVersion, defaults.ProtocolVersion)
	c.WindowSize = validation.DefaultOr(c.WindowSize, defaults.WindowSize)
	c.HeartbeatInterval = validation.DefaultOrDuration(c.HeartbeatInterval, defaults.HeartbeatInterval)
	c.DegradedThreshold = validation.DefaultOr(c.DegradedThreshold, defaults.DegradedThreshold)
	c.Assured.Mode = validation.DefaultOr(c.Assured.Mode, defaults.Assured.Mode)
	c.Assured.SafeDataLevel = validation.DefaultOr(c.Assured.SafeDataLevel, defaults.Assured.SafeDataLevel)
	c.Assured.Timeout = validation.DefaultOrDuration(c.Assured.Timeout, defaults.Assured.Timeout)
	c.LogLevel = validation.DefaultOr(c.LogLevel, defaults.LogLevel)
}

// Validate validates the domain configuration
func (c *DomainConfig) Validate() error {
	v := validation.NewConfigValidator("DomainConfig").Struct(c)

	v.RangeInt("ProtocolVersion", c.ProtocolVersion, int(protocol.V1), int(protocol.VersionLast)).
		Positive("WindowSize", c.WindowSize).
		MinDuration("HeartbeatInterval", c.HeartbeatInterval, 100*time.Millisecond).
		Positive("DegradedThreshold", c.DegradedThreshold)

	v.When(c.Assured.Enabled, func(cv *validation.ConfigValidator) {
		cv.OneOf("Assured.Mode", c.Assured.Mode, []string{"safe-data", "safe-read"}).
			RangeInt("Assured.SafeDataLevel", c.Assured.SafeDataLevel, 1, 255).
			MinDuration("Assured.Timeout", c.Assured.Timeout, 10*time.Millisecond)
	})

	return v.Validate()
}

// LoadDomainConfig reads a YAML domain configuration, applies defaults and
// validates it
func LoadDomainConfig(path string) (DomainConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return DomainConfig{}, fmt.Errorf("failed to read domain config: %w", err)
	}

	var cfg DomainConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return DomainConfig{}, fmt.Errorf("failed to parse domain config %s: %w", path, err)
	}

	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return DomainConfig{}, err
	}
	return cfg, nil
}

// ParsedBaseDN returns the base DN as a parsed DN
func (c *DomainConfig) ParsedBaseDN() (dn.DN, error) {
	return dn.Parse(c.BaseDN)
}

// Version returns the configured protocol version
func (c *DomainConfig) Version() protocol.Version {
	return protocol.Version(c.ProtocolVersion)
}

// Level returns the configured log level
func (c *DomainConfig) Level() logging.Level {
	return logging.ParseLevel(c.LogLevel)
}

// UpdateOptions returns the options that stamp the configured assured
// defaults on a new update record
func (c *DomainConfig) UpdateOptions() []protocol.UpdateOption {
	if !c.Assured.Enabled {
		return nil
	}
	mode, err := protocol.ParseAssuredMode(c.Assured.Mode)
	if err != nil || c.Assured.SafeDataLevel < 1 || c.Assured.SafeDataLevel > 255 {
		return nil
	}
	return []protocol.UpdateOption{protocol.WithAssured(mode, uint8(c.Assured.SafeDataLevel))}
}
