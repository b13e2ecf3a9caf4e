package domain

import (
	"time"
)

// Config represents the main application configuration
type Config struct {
	Agent          AgentConfig          `mapstructure:"agent"`
	Gateway        GatewayConfig        `mapstructure:"gateway"`
	ExternalAPI    ExternalAPIConfig    `mapstructure:"external_api"`
	CircuitBreaker CircuitBreakerConfig `mapstructure:"circuit_breaker"`
	DTDA           DTDAConfig           `mapstructure:"dtda"`
	EKB            EKBConfig            `mapstructure:"ekb"`
	Logging        LoggingConfig        `mapstructure:"logging"`
	Metrics        MetricsConfig        `mapstructure:"metrics"`
}

// AgentConfig represents the KQML module settings
type AgentConfig struct {
	Transport       string `mapstructure:"transport"` // "stdio", "tcp"
	FacilitatorAddr string `mapstructure:"facilitator_addr"`
	QueueSize       int    `mapstructure:"queue_size"`
}

// GatewayConfig represents HTTP gateway configuration
type GatewayConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// ExternalAPIConfig represents external API configuration
type ExternalAPIConfig struct {
	INDRA      INDRAConfig      `mapstructure:"indra"`
	CBioPortal CBioPortalConfig `mapstructure:"cbioportal"`
	HGNC       HGNCConfig       `mapstructure:"hgnc"`
}

// INDRAConfig represents INDRA DB REST configuration
type INDRAConfig struct {
	BaseURL        string        `mapstructure:"base_url"`
	APIKey         string        `mapstructure:"api_key"`
	Timeout        time.Duration `mapstructure:"timeout"`
	RateLimit      int           `mapstructure:"rate_limit"`
	EvidenceSource string        `mapstructure:"evidence_source"`
}

// CBioPortalConfig represents cBioPortal API configuration
type CBioPortalConfig struct {
	BaseURL   string        `mapstructure:"base_url"`
	Timeout   time.Duration `mapstructure:"timeout"`
	RateLimit int           `mapstructure:"rate_limit"`
	CacheSize int           `mapstructure:"cache_size"`
}

// HGNCConfig represents HGNC REST configuration
type HGNCConfig struct {
	BaseURL   string        `mapstructure:"base_url"`
	Timeout   time.Duration `mapstructure:"timeout"`
	RateLimit int           `mapstructure:"rate_limit"`
	CacheSize int           `mapstructure:"cache_size"`
}

// CircuitBreakerConfig configures the breakers wrapped around external services
type CircuitBreakerConfig struct {
	MaxRequests      uint32        `mapstructure:"max_requests"`
	Interval         time.Duration `mapstructure:"interval"`
	Timeout          time.Duration `mapstructure:"timeout"`
	FailureThreshold uint32        `mapstructure:"failure_threshold"`
}

// DTDAConfig represents DTDA settings
type DTDAConfig struct {
	DiseaseMapFile string `mapstructure:"disease_map_file"` // empty uses the bundled table
}

// EKBConfig represents EKB processing settings
type EKBConfig struct {
	StandardizeNames bool `mapstructure:"standardize_names"`
}

// LoggingConfig represents logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// MetricsConfig represents metrics configuration
type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled"`
}
