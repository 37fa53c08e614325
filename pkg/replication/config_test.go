package replication

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/dd0wney/replcore/pkg/logging"
	"github.com/dd0wney/replcore/pkg/protocol"
	"github.com/dd0wney/replcore/pkg/validation"
)

func testConfig() DomainConfig {
	cfg := DefaultDomainConfig()
	cfg.ReplicaID = 1
	cfg.BaseDN = "dc=example,dc=com"
	cfg.ServerURL = "ds1.example.com:8989"
	return cfg
}

func TestDomainConfig_Validate(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(c *DomainConfig)
		wantField string
	}{
		{"valid", func(c *DomainConfig) {}, ""},
		{"zero replica id", func(c *DomainConfig) { c.ReplicaID = 0 }, "replica_id"},
		{"replica id too large", func(c *DomainConfig) { c.ReplicaID = 70000 }, "replica_id"},
		{"missing base dn", func(c *DomainConfig) { c.BaseDN = "" }, "base_dn"},
		{"malformed base dn", func(c *DomainConfig) { c.BaseDN = "example" }, "base_dn"},
		{"server url without port", func(c *DomainConfig) { c.ServerURL = "ds1" }, "server_url"},
		{"group id too large", func(c *DomainConfig) { c.GroupID = 300 }, "group_id"},
		{"protocol version too new", func(c *DomainConfig) { c.ProtocolVersion = 9 }, "ProtocolVersion"},
		{"negative window", func(c *DomainConfig) { c.WindowSize = -1 }, "WindowSize"},
		{"heartbeat too fast", func(c *DomainConfig) { c.HeartbeatInterval = time.Millisecond }, "HeartbeatInterval"},
		{"bad referral", func(c *DomainConfig) { c.ReferralURLs = []string{"::"} }, "referral_urls[0]"},
		{"unknown log level", func(c *DomainConfig) { c.LogLevel = "loud" }, "log_level"},
		{"bad assured mode", func(c *DomainConfig) { c.Assured.Mode = "eventual" }, "assured.mode"},
		{"assured level zero when enabled", func(c *DomainConfig) {
			c.Assured.Enabled = true
			c.Assured.SafeDataLevel = 0
		}, "Assured.SafeDataLevel"},
		{"assured timeout too short when enabled", func(c *DomainConfig) {
			c.Assured.Enabled = true
			c.Assured.Timeout = time.Millisecond
		}, "Assured.Timeout"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			tt.mutate(&cfg)

			err := cfg.Validate()
			if tt.wantField == "" {
				if err != nil {
					t.Fatalf("Validate() unexpected error: %v", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("Validate() expected an error on %s", tt.wantField)
			}
			if !errors.Is(err, validation.ErrInvalidConfig) {
				t.Errorf("error %v does not wrap ErrInvalidConfig", err)
			}
			if !strings.Contains(err.Error(), tt.wantField) {
				t.Errorf("error %q does not name %s", err, tt.wantField)
			}
		})
	}
}

func TestDomainConfig_ApplyDefaults(t *testing.T) {
	cfg := DomainConfig{ReplicaID: 3, BaseDN: "dc=x", ServerURL: "h:1", WindowSize: 50}
	cfg.ApplyDefaults()

	if cfg.WindowSize != 50 {
		t.Errorf("WindowSize = %d, explicit value must be kept", cfg.WindowSize)
	}
	if cfg.GroupID != 1 {
		t.Errorf("GroupID = %d, want 1", cfg.GroupID)
	}
	if cfg.Version() != protocol.VersionLast {
		t.Errorf("Version() = %s, want %s", cfg.Version(), protocol.VersionLast)
	}
	if cfg.DegradedThreshold != 5000 {
		t.Errorf("DegradedThreshold = %d, want 5000", cfg.DegradedThreshold)
	}
	if cfg.Assured.Mode != "safe-data" || cfg.Assured.SafeDataLevel != 1 {
		t.Errorf("assured defaults = %+v", cfg.Assured)
	}
	if cfg.Level() != logging.InfoLevel {
		t.Errorf("Level() = %v, want info", cfg.Level())
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaulted config invalid: %v", err)
	}
}

func TestDomainConfig_UpdateOptions(t *testing.T) {
	cfg := testConfig()
	if opts := cfg.UpdateOptions(); opts != nil {
		t.Errorf("assured disabled: got %d options", len(opts))
	}

	cfg.Assured.Enabled = true
	cfg.Assured.Mode = "safe-read"
	cfg.Assured.SafeDataLevel = 2
	if opts := cfg.UpdateOptions(); len(opts) != 1 {
		t.Errorf("assured enabled: got %d options, want 1", len(opts))
	}
}

func TestLoadDomainConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "domain.yaml")
	data := `replica_id: 12
base_dn: "dc=example,dc=com"
server_url: "ds12.example.com:8989"
group_id: 2
generation_id: 4711
heartbeat_interval: 5s
referral_urls:
  - "ldap://ds12.example.com:389"
assured:
  enabled: true
  mode: safe-read
  timeout: 750ms
log_level: debug
`
	if err := os.WriteFile(path, []byte(data), 0600); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadDomainConfig(path)
	if err != nil {
		t.Fatalf("LoadDomainConfig() error: %v", err)
	}

	if cfg.ReplicaID != 12 || cfg.GroupID != 2 || cfg.GenerationID != 4711 {
		t.Errorf("ids = %d/%d/%d", cfg.ReplicaID, cfg.GroupID, cfg.GenerationID)
	}
	if cfg.HeartbeatInterval != 5*time.Second {
		t.Errorf("HeartbeatInterval = %v", cfg.HeartbeatInterval)
	}
	if cfg.Assured.Timeout != 750*time.Millisecond || cfg.Assured.Mode != "safe-read" {
		t.Errorf("assured = %+v", cfg.Assured)
	}
	if cfg.Assured.SafeDataLevel != 1 {
		t.Errorf("SafeDataLevel default = %d, want 1", cfg.Assured.SafeDataLevel)
	}
	if cfg.WindowSize != 100 {
		t.Errorf("WindowSize default = %d, want 100", cfg.WindowSize)
	}
	if cfg.Level() != logging.DebugLevel {
		t.Errorf("Level() = %v", cfg.Level())
	}
}

func TestLoadDomainConfig_Errors(t *testing.T) {
	dir := t.TempDir()

	if _, err := LoadDomainConfig(filepath.Join(dir, "missing.yaml")); err == nil {
		t.Error("missing file: expected error")
	}

	bad := filepath.Join(dir, "bad.yaml")
	if err := os.WriteFile(bad, []byte("replica_id: [1"), 0600); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadDomainConfig(bad); err == nil {
		t.Error("malformed yaml: expected error")
	}

	invalid := filepath.Join(dir, "invalid.yaml")
	if err := os.WriteFile(invalid, []byte("replica_id: 1\nbase_dn: \"dc=x\"\n"), 0600); err != nil {
		t.Fatal(err)
	}
	_, err := LoadDomainConfig(invalid)
	if !errors.Is(err, validation.ErrInvalidConfig) {
		t.Errorf("missing server url: got %v", err)
	}
}
