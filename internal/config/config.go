package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/johnbachman/bioagents/internal/domain"
)

// Manager implements the ConfigManager interface using Viper
type Manager struct {
	v          *viper.Viper
	configFile string
	config     *domain.Config
}

var _ domain.ConfigManager = (*Manager)(nil)

// NewManager creates a new configuration manager. configFile may be empty,
// in which case config.yaml is searched for in the usual locations.
func NewManager(configFile string) (*Manager, error) {
	m := &Manager{configFile: configFile}
	if err := m.loadConfig(); err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return m, nil
}

// loadConfig loads configuration from various sources
func (m *Manager) loadConfig() error {
	v := viper.New()

	if m.configFile != "" {
		v.SetConfigFile(m.configFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/bioagents/")
	}

	// Set environment variable prefix and enable automatic env binding
	v.SetEnvPrefix("BIOAGENTS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	// Config file is optional unless named explicitly
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if m.configFile != "" || !errors.As(err, &notFound) {
			return fmt.Errorf("error reading config file: %w", err)
		}
	}

	config := &domain.Config{}
	if err := v.Unmarshal(config); err != nil {
		return fmt.Errorf("error unmarshaling config: %w", err)
	}

	m.v = v
	m.config = config
	return nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	// Agent defaults
	v.SetDefault("agent.transport", "stdio")
	v.SetDefault("agent.facilitator_addr", "localhost:6200")
	v.SetDefault("agent.queue_size", 64)

	// Gateway defaults
	v.SetDefault("gateway.enabled", false)
	v.SetDefault("gateway.host", "127.0.0.1")
	v.SetDefault("gateway.port", 8080)
	v.SetDefault("gateway.read_timeout", "30s")
	v.SetDefault("gateway.write_timeout", "120s")

	// External API defaults
	v.SetDefault("external_api.indra.base_url", "https://db.indra.bio")
	v.SetDefault("external_api.indra.api_key", "")
	v.SetDefault("external_api.indra.timeout", "30s")
	v.SetDefault("external_api.indra.rate_limit", 5)
	v.SetDefault("external_api.indra.evidence_source", "tas")

	v.SetDefault("external_api.cbioportal.base_url", "https://www.cbioportal.org/api")
	v.SetDefault("external_api.cbioportal.timeout", "60s")
	v.SetDefault("external_api.cbioportal.rate_limit", 10)
	v.SetDefault("external_api.cbioportal.cache_size", 1000)

	v.SetDefault("external_api.hgnc.base_url", "https://rest.genenames.org")
	v.SetDefault("external_api.hgnc.timeout", "10s")
	v.SetDefault("external_api.hgnc.rate_limit", 10)
	v.SetDefault("external_api.hgnc.cache_size", 5000)

	// Circuit breaker defaults
	v.SetDefault("circuit_breaker.max_requests", 5)
	v.SetDefault("circuit_breaker.interval", "30s")
	v.SetDefault("circuit_breaker.timeout", "60s")
	v.SetDefault("circuit_breaker.failure_threshold", 3)

	// Domain defaults
	v.SetDefault("dtda.disease_map_file", "")
	v.SetDefault("ekb.standardize_names", true)

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")

	v.SetDefault("metrics.enabled", true)
}

// GetConfig returns the complete configuration
func (m *Manager) GetConfig() *domain.Config {
	return m.config
}

// GetExternalAPIConfig returns external API configuration
func (m *Manager) GetExternalAPIConfig() *domain.ExternalAPIConfig {
	return &m.config.ExternalAPI
}

// GetGatewayConfig returns gateway configuration
func (m *Manager) GetGatewayConfig() *domain.GatewayConfig {
	return &m.config.Gateway
}

// ConfigFileUsed returns the file the configuration was read from, if any
func (m *Manager) ConfigFileUsed() string {
	return m.v.ConfigFileUsed()
}

// Reload reloads the configuration
func (m *Manager) Reload() error {
	return m.loadConfig()
}

// Validate validates the configuration
func (m *Manager) Validate() error {
	config := m.config

	switch config.Agent.Transport {
	case "stdio":
	case "tcp":
		if config.Agent.FacilitatorAddr == "" {
			return fmt.Errorf("facilitator address is required for tcp transport")
		}
	default:
		return fmt.Errorf("invalid agent transport: %s", config.Agent.Transport)
	}
	if config.Agent.QueueSize <= 0 {
		return fmt.Errorf("invalid agent queue size: %d", config.Agent.QueueSize)
	}

	// Validate gateway configuration
	if config.Gateway.Enabled && (config.Gateway.Port <= 0 || config.Gateway.Port > 65535) {
		return fmt.Errorf("invalid gateway port: %d", config.Gateway.Port)
	}

	// Validate external API URLs
	if config.ExternalAPI.INDRA.BaseURL == "" {
		return fmt.Errorf("INDRA base URL is required")
	}
	if config.ExternalAPI.CBioPortal.BaseURL == "" {
		return fmt.Errorf("cBioPortal base URL is required")
	}
	if config.EKB.StandardizeNames && config.ExternalAPI.HGNC.BaseURL == "" {
		return fmt.Errorf("HGNC base URL is required when name standardization is enabled")
	}

	if config.CircuitBreaker.FailureThreshold == 0 {
		return fmt.Errorf("circuit breaker failure threshold must be positive")
	}

	// Validate logging configuration
	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true, "fatal": true, "panic": true,
	}
	if !validLogLevels[strings.ToLower(config.Logging.Level)] {
		return fmt.Errorf("invalid log level: %s", config.Logging.Level)
	}
	switch strings.ToLower(config.Logging.Format) {
	case "json", "text":
	default:
		return fmt.Errorf("invalid log format: %s", config.Logging.Format)
	}

	return nil
}
