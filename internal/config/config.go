// Package config loads and validates the NotionRelay YAML configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"notionrelay/internal/state"
)

// Config holds the full application configuration loaded from YAML.
type Config struct {
	// NotionToken is the internal integration secret used to authenticate
	// with the Notion API.
	NotionToken string `yaml:"notion_token"`

	// PollInterval controls how often a full sync pass runs.
	// Minimum 10s, maximum 5m. Defaults to 30s if unset.
	PollInterval time.Duration `yaml:"poll_interval"`

	// Mappings pairs Apple Reminders lists with Notion databases. Each entry
	// is synced independently; one entry failing does not stop the others.
	Mappings []MappingConfig `yaml:"mappings"`

	// Telemetry configures optional OpenTelemetry export via OTLP gRPC.
	// Omit the block entirely to disable telemetry.
	Telemetry *TelemetryConfig `yaml:"telemetry,omitempty"`
}

// MappingConfig describes one Reminders-list-to-Notion-database pairing,
// including which database properties the synced fields bind to.
type MappingConfig struct {
	// AppleList is the Reminders list name, e.g. "Shopping".
	AppleList string `yaml:"apple_list"`

	// NotionDatabaseID is the UUID of the target Notion database.
	NotionDatabaseID string `yaml:"notion_database_id"`

	// Enabled toggles this mapping without removing it. Defaults to true
	// when omitted (see Load).
	Enabled *bool `yaml:"enabled,omitempty"`

	// TitleProperty is the database's title property name. Defaults to "Name".
	TitleProperty string `yaml:"title_property,omitempty"`

	// DueProperty is the date property bound to the reminder due date.
	// Leave empty to skip due date sync for this mapping.
	DueProperty string `yaml:"due_property,omitempty"`

	// PriorityProperty is the select property bound to reminder priority
	// (options "High", "Medium", "Low"). Leave empty to skip.
	PriorityProperty string `yaml:"priority_property,omitempty"`

	// StatusProperty is the status or checkbox property bound to completion.
	// Leave empty to skip completion sync.
	StatusProperty string `yaml:"status_property,omitempty"`

	// StatusIsCheckbox marks StatusProperty as a checkbox rather than a
	// status/select property.
	StatusIsCheckbox bool `yaml:"status_is_checkbox,omitempty"`

	// StatusCompletedValues lists the status option names that count as
	// completed, e.g. ["Done", "Shipped"]. Ignored for checkbox properties.
	StatusCompletedValues []string `yaml:"status_completed_values,omitempty"`
}

// TelemetryConfig holds optional OpenTelemetry settings.
type TelemetryConfig struct {
	// OTLPEndpoint is the gRPC host:port of the OTLP collector (e.g. "localhost:4317").
	OTLPEndpoint string `yaml:"otlp_endpoint"`

	// Insecure disables TLS for the collector connection. Use for local collectors.
	Insecure bool `yaml:"insecure"`

	// ServiceName overrides the OTel service.name attribute. Defaults to "notionrelay".
	ServiceName string `yaml:"service_name"`

	// Headers contains key-value pairs sent as gRPC metadata on every OTLP
	// request. Equivalent to the OTEL_EXPORTER_OTLP_HEADERS environment
	// variable. Use this for authentication tokens, e.g.:
	//   Authorization: "Bearer <token>"
	Headers map[string]string `yaml:"headers,omitempty"`
}

// DefaultPath returns the default config file path: ~/.config/notionrelay/config.yaml.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolving home directory: %w", err)
	}
	return filepath.Join(home, ".config", "notionrelay", "config.yaml"), nil
}

// Load reads and validates the configuration file at the given path.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening config file %q: %w", path, err)
	}
	defer f.Close()

	var cfg Config
	dec := yaml.NewDecoder(f)
	dec.KnownFields(true) // reject unknown keys to catch typos early
	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("parsing config file %q: %w", path, err)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

// Write serialises the config to the given path, creating the parent
// directory if needed. The file is written 0600 because it holds the
// Notion token.
func (c *Config) Write(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshalling config: %w", err)
	}

	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("writing config file %q: %w", path, err)
	}
	return nil
}

// validate checks that all required fields are present and well-formed.
func (c *Config) validate() error {
	if c.NotionToken == "" {
		return fmt.Errorf("notion_token is required")
	}

	if c.PollInterval == 0 {
		c.PollInterval = 30 * time.Second
	}
	if c.PollInterval < 10*time.Second {
		return fmt.Errorf("poll_interval %v is too short (minimum 10s)", c.PollInterval)
	}
	if c.PollInterval > 5*time.Minute {
		return fmt.Errorf("poll_interval %v is too long (maximum 5m)", c.PollInterval)
	}

	if len(c.Mappings) == 0 {
		return fmt.Errorf("mappings must contain at least one entry")
	}
	seen := make(map[string]bool, len(c.Mappings))
	for i, m := range c.Mappings {
		if m.AppleList == "" {
			return fmt.Errorf("mappings[%d]: apple_list is required", i)
		}
		if m.NotionDatabaseID == "" {
			return fmt.Errorf("mappings[%d]: notion_database_id is required", i)
		}
		key := m.AppleList + "\x00" + m.NotionDatabaseID
		if seen[key] {
			return fmt.Errorf("mappings[%d]: duplicate pairing of list %q and database %q", i, m.AppleList, m.NotionDatabaseID)
		}
		seen[key] = true
		if m.StatusIsCheckbox && len(m.StatusCompletedValues) > 0 {
			return fmt.Errorf("mappings[%d]: status_completed_values has no effect on a checkbox property", i)
		}
	}

	if c.Telemetry != nil {
		if c.Telemetry.OTLPEndpoint == "" {
			return fmt.Errorf("telemetry.otlp_endpoint is required when telemetry is configured")
		}
	}

	return nil
}

// IsEnabled reports whether the mapping is active. An omitted enabled key
// means active.
func (m *MappingConfig) IsEnabled() bool {
	return m.Enabled == nil || *m.Enabled
}

// ToState converts the config entry to a persistable [state.Mapping].
// Property IDs are left empty; they get filled in once the database schema
// has been inspected.
func (m *MappingConfig) ToState() *state.Mapping {
	title := m.TitleProperty
	if title == "" {
		title = "Name"
	}
	return &state.Mapping{
		AppleListID:           m.AppleList,
		NotionDatabaseID:      m.NotionDatabaseID,
		Enabled:               m.IsEnabled(),
		Title:                 state.PropertyBinding{Name: title},
		Due:                   state.PropertyBinding{Name: m.DueProperty},
		Priority:              state.PropertyBinding{Name: m.PriorityProperty},
		Status:                state.PropertyBinding{Name: m.StatusProperty},
		StatusIsCheckbox:      m.StatusIsCheckbox,
		StatusCompletedValues: append([]string(nil), m.StatusCompletedValues...),
	}
}
