package validation

import (
	"errors"
	"strings"
	"testing"
)

type sampleAssured struct {
	Mode  string `yaml:"mode" validate:"oneof=safe-data safe-read"`
	Level int    `yaml:"level" validate:"min=1,max=255"`
}

type sampleConfig struct {
	BaseDN    string        `yaml:"base_dn" validate:"required,dn"`
	ServerURL string        `yaml:"server_url" validate:"required,hostname_port"`
	Referrals []string      `yaml:"referral_urls" validate:"omitempty,dive,url"`
	LogLevel  string        `yaml:"log_level" validate:"omitempty,loglevel"`
	Assured   sampleAssured `yaml:"assured"`
}

func validSample() sampleConfig {
	return sampleConfig{
		BaseDN:    "dc=example,dc=com",
		ServerURL: "ds1.example.com:8989",
		Referrals: []string{"ldap://ds1.example.com:389"},
		LogLevel:  "debug",
		Assured:   sampleAssured{Mode: "safe-data", Level: 1},
	}
}

func TestStruct(t *testing.T) {
	tests := []struct {
		name       string
		mutate     func(c *sampleConfig)
		errorField string
	}{
		{"valid", func(c *sampleConfig) {}, ""},
		{"missing base dn", func(c *sampleConfig) { c.BaseDN = "" }, "base_dn"},
		{"malformed base dn", func(c *sampleConfig) { c.BaseDN = "example,dc=com" }, "base_dn"},
		{"server url without port", func(c *sampleConfig) { c.ServerURL = "ds1.example.com" }, "server_url"},
		{"bad referral", func(c *sampleConfig) { c.Referrals = []string{"not a url"} }, "referral_urls[0]"},
		{"unknown log level", func(c *sampleConfig) { c.LogLevel = "chatty" }, "log_level"},
		{"empty log level", func(c *sampleConfig) { c.LogLevel = "" }, ""},
		{"bad assured mode", func(c *sampleConfig) { c.Assured.Mode = "eventual" }, "assured.mode"},
		{"zero level", func(c *sampleConfig) { c.Assured.Level = 0 }, "assured.level"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validSample()
			tt.mutate(&cfg)

			err := Struct(&cfg)
			if tt.errorField == "" {
				if err != nil {
					t.Fatalf("Struct() unexpected error: %v", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("Struct() expected an error on %s", tt.errorField)
			}
			if !errors.Is(err, ErrInvalidConfig) {
				t.Errorf("error %v does not wrap ErrInvalidConfig", err)
			}
			if !strings.Contains(err.Error(), tt.errorField) {
				t.Errorf("error %q does not name field %s", err, tt.errorField)
			}
		})
	}
}

func TestConfigValidator_StructCollectsAll(t *testing.T) {
	cfg := validSample()
	cfg.BaseDN = ""
	cfg.Assured.Level = 0

	cv := NewConfigValidator("DomainConfig").Struct(&cfg)
	if got := len(cv.Errors()); got != 2 {
		t.Fatalf("expected 2 errors, got %d: %v", got, cv.Errors())
	}
	if !strings.HasPrefix(cv.Errors()[0].Error(), "DomainConfig.base_dn") {
		t.Errorf("unexpected first error %q", cv.Errors()[0])
	}
}
