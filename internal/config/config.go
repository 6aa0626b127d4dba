package config

import (
	"encoding/json"
	"fmt"
)

// Config represents the main Backlot configuration
type Config struct {
	// Server holds the HTTP gateway configuration
	Server ServerConfig `json:"server" mapstructure:"server"`

	// Providers holds model provider credentials and defaults
	Providers ProvidersConfig `json:"providers" mapstructure:"providers"`

	// Neo4j holds the graph store connection settings
	Neo4j Neo4jConfig `json:"neo4j" mapstructure:"neo4j"`

	// Redis holds the cache connection settings
	Redis RedisConfig `json:"redis" mapstructure:"redis"`

	// CRM holds external CRM client settings
	CRM CRMConfig `json:"crm" mapstructure:"crm"`

	// Logging
	Logging LoggingConfig `json:"logging" mapstructure:"logging"`

	// Sessions holds session housekeeping settings
	Sessions SessionsConfig `json:"sessions" mapstructure:"sessions"`

	// Data directory
	DataDir string `json:"data_dir" mapstructure:"data_dir"`
}

// ServerConfig holds gateway server configuration
type ServerConfig struct {
	Host         string `json:"host" mapstructure:"host"`
	Port         int    `json:"port" mapstructure:"port"`
	SharedSecret string `json:"shared_secret" mapstructure:"shared_secret"`
}

// ProvidersConfig holds model provider configuration
type ProvidersConfig struct {
	OpenAIKey      string `json:"openai_key" mapstructure:"openai_key"`
	OpenAIModel    string `json:"openai_model" mapstructure:"openai_model"`
	AnthropicKey   string `json:"anthropic_key" mapstructure:"anthropic_key"`
	AnthropicModel string `json:"anthropic_model" mapstructure:"anthropic_model"`
}

// Neo4jConfig holds graph store configuration
type Neo4jConfig struct {
	URI      string `json:"uri" mapstructure:"uri"`
	Username string `json:"username" mapstructure:"username"`
	Password string `json:"password" mapstructure:"password"`
	Database string `json:"database" mapstructure:"database"`
}

// RedisConfig holds cache configuration
type RedisConfig struct {
	Addr       string `json:"addr" mapstructure:"addr"`
	Password   string `json:"password" mapstructure:"password"`
	DB         int    `json:"db" mapstructure:"db"`
	TTLSeconds int    `json:"ttl_seconds" mapstructure:"ttl_seconds"`
}

// CRMConfig holds external CRM client configuration
type CRMConfig struct {
	BaseURL     string          `json:"base_url" mapstructure:"base_url"`
	Credentials []CRMCredential `json:"credentials" mapstructure:"credentials"`
}

// CRMCredential is one CRM API credential; credentials are tried in order
type CRMCredential struct {
	Label  string `json:"label" mapstructure:"label"`
	APIKey string `json:"api_key" mapstructure:"api_key"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level     string `json:"level" mapstructure:"level"`
	File      string `json:"file" mapstructure:"file"`
	Redaction bool   `json:"redaction" mapstructure:"redaction"`
}

// SessionsConfig holds session housekeeping configuration
type SessionsConfig struct {
	CleanupSchedule string `json:"cleanup_schedule" mapstructure:"cleanup_schedule"`
	MaxIdleDays     int    `json:"max_idle_days" mapstructure:"max_idle_days"`
}

// DefaultConfig returns a config with default values
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: 8080,
		},
		Providers: ProvidersConfig{
			OpenAIModel:    "gpt-4o",
			AnthropicModel: "claude-sonnet-4-20250514",
		},
		Neo4j: Neo4jConfig{
			URI:      "bolt://localhost:7687",
			Username: "neo4j",
			Database: "neo4j",
		},
		Redis: RedisConfig{
			Addr:       "localhost:6379",
			TTLSeconds: 300,
		},
		Logging: LoggingConfig{
			Level:     "info",
			Redaction: true,
		},
		Sessions: SessionsConfig{
			CleanupSchedule: "0 3 * * *",
			MaxIdleDays:     30,
		},
	}
}

// String returns a JSON representation of the config
func (c *Config) String() string {
	data, _ := json.MarshalIndent(c, "", "  ")
	return string(data)
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Providers.OpenAIKey == "" {
		return fmt.Errorf("providers.openai_key is required")
	}
	if c.Providers.AnthropicKey == "" {
		return fmt.Errorf("providers.anthropic_key is required")
	}

	if c.Neo4j.URI == "" {
		return fmt.Errorf("neo4j.uri is required")
	}
	if c.Neo4j.Username == "" {
		return fmt.Errorf("neo4j.username is required")
	}
	if c.Neo4j.Password == "" {
		return fmt.Errorf("neo4j.password is required")
	}

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535")
	}
	if c.Server.SharedSecret == "" {
		return fmt.Errorf("server.shared_secret is required")
	}

	if c.CRM.BaseURL != "" && len(c.CRM.Credentials) == 0 {
		return fmt.Errorf("crm.credentials must contain at least one credential when crm.base_url is set")
	}
	for i, cred := range c.CRM.Credentials {
		if cred.APIKey == "" {
			return fmt.Errorf("crm credential %d: api_key is required", i)
		}
	}

	if c.Redis.TTLSeconds < 0 {
		return fmt.Errorf("redis.ttl_seconds cannot be negative")
	}

	return nil
}
