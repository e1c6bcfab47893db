// Package config provides YAML-based configuration loading for frontdesk.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level frontdesk configuration, loaded from config.yaml.
// Credentials may be supplied via environment variables instead of the file.
type Config struct {
	ListenAddr string `yaml:"listen_addr"`
	// PublicHost is the externally reachable host name used to build the
	// media-stream WebSocket URL handed to the carrier.
	PublicHost string `yaml:"public_host"`

	Twilio    TwilioConfig    `yaml:"twilio"`
	Model     ModelConfig     `yaml:"model"`
	Admission AdmissionConfig `yaml:"admission"`
	Issues    IssuesConfig    `yaml:"issues"`

	Greeting       string `yaml:"greeting"`
	OperatorNumber string `yaml:"operator_number"`
	PollAPIKey     string `yaml:"poll_api_key"`
}

// TwilioConfig holds carrier REST API credentials.
type TwilioConfig struct {
	AccountSID string `yaml:"account_sid"`
	AuthToken  string `yaml:"auth_token"`
}

// ModelConfig holds realtime and summarization model settings.
type ModelConfig struct {
	APIKey           string        `yaml:"api_key"`
	RealtimeModel    string        `yaml:"realtime_model"`
	SummaryModel     string        `yaml:"summary_model"`
	Voice            string        `yaml:"voice"`
	Instructions     string        `yaml:"instructions"`
	SummarizeTimeout time.Duration `yaml:"summarize_timeout"`
}

// AdmissionConfig controls the pre-call admission gate.
type AdmissionConfig struct {
	MaxCallsPerHour int      `yaml:"max_calls_per_hour"`
	BlockedNumbers  []string `yaml:"blocked_numbers"`
}

// IssuesConfig controls the issue queue.
type IssuesConfig struct {
	Retention     time.Duration `yaml:"retention"`
	Capacity      int           `yaml:"capacity"`
	SweepSchedule string        `yaml:"sweep_schedule"`
}

// Load reads a YAML config file from path and returns a validated Config.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	return Parse(data)
}

// Parse unmarshals YAML bytes into a validated Config.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse: %w", err)
	}
	cfg.applyEnv()
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyEnv fills credentials from the environment when the file omits them.
func (c *Config) applyEnv() {
	if c.Twilio.AccountSID == "" {
		c.Twilio.AccountSID = os.Getenv("TWILIO_ACCOUNT_SID")
	}
	if c.Twilio.AuthToken == "" {
		c.Twilio.AuthToken = os.Getenv("TWILIO_AUTH_TOKEN")
	}
	if c.Model.APIKey == "" {
		c.Model.APIKey = os.Getenv("OPENAI_API_KEY")
	}
	if c.PollAPIKey == "" {
		c.PollAPIKey = os.Getenv("POLL_API_KEY")
	}
}

// applyDefaults fills in derived and default values.
func (c *Config) applyDefaults() {
	if c.ListenAddr == "" {
		c.ListenAddr = ":8080"
	}
	if c.Model.RealtimeModel == "" {
		c.Model.RealtimeModel = "gpt-4o-realtime-preview-2024-10-01"
	}
	if c.Model.SummaryModel == "" {
		c.Model.SummaryModel = "gpt-4o-mini"
	}
	if c.Model.Voice == "" {
		c.Model.Voice = "alloy"
	}
	if c.Model.SummarizeTimeout == 0 {
		c.Model.SummarizeTimeout = 20 * time.Second
	}
	if c.Admission.MaxCallsPerHour == 0 {
		c.Admission.MaxCallsPerHour = 3
	}
	if c.Issues.Retention == 0 {
		c.Issues.Retention = 15 * time.Minute
	}
	if c.Issues.Capacity == 0 {
		c.Issues.Capacity = 1000
	}
	if c.Issues.SweepSchedule == "" {
		c.Issues.SweepSchedule = "*/5 * * * *"
	}
}

// validate checks that all required fields are present and consistent.
func (c *Config) validate() error {
	var missing []string
	if c.PublicHost == "" {
		missing = append(missing, "public_host")
	}
	if c.Twilio.AccountSID == "" {
		missing = append(missing, "twilio.account_sid")
	}
	if c.Twilio.AuthToken == "" {
		missing = append(missing, "twilio.auth_token")
	}
	if c.Model.APIKey == "" {
		missing = append(missing, "model.api_key")
	}
	if len(missing) > 0 {
		return fmt.Errorf("config: missing required fields: %s", strings.Join(missing, ", "))
	}
	if c.Admission.MaxCallsPerHour < 0 {
		return fmt.Errorf("config: admission.max_calls_per_hour must not be negative")
	}
	if c.Issues.Retention < 0 {
		return fmt.Errorf("config: issues.retention must not be negative")
	}
	return nil
}
