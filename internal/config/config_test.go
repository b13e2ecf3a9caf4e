package config

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/johnbachman/bioagents/internal/domain"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestNewManager_Defaults(t *testing.T) {
	chdir(t, t.TempDir())

	m, err := NewManager("")
	require.NoError(t, err)
	require.NoError(t, m.Validate())

	cfg := m.GetConfig()
	assert.Equal(t, "stdio", cfg.Agent.Transport)
	assert.Equal(t, "localhost:6200", cfg.Agent.FacilitatorAddr)
	assert.Equal(t, 64, cfg.Agent.QueueSize)
	assert.False(t, cfg.Gateway.Enabled)
	assert.Equal(t, 30*time.Second, cfg.Gateway.ReadTimeout)
	assert.Equal(t, "https://db.indra.bio", m.GetExternalAPIConfig().INDRA.BaseURL)
	assert.Equal(t, "tas", cfg.ExternalAPI.INDRA.EvidenceSource)
	assert.Equal(t, 60*time.Second, cfg.ExternalAPI.CBioPortal.Timeout)
	assert.Equal(t, uint32(3), cfg.CircuitBreaker.FailureThreshold)
	assert.True(t, cfg.EKB.StandardizeNames)
	assert.Empty(t, cfg.DTDA.DiseaseMapFile)
	assert.Empty(t, m.ConfigFileUsed())
}

func TestNewManager_ConfigFile(t *testing.T) {
	path := writeConfig(t, `
agent:
  transport: tcp
  facilitator_addr: facilitator:6200
gateway:
  enabled: true
  port: 9090
external_api:
  indra:
    base_url: http://indra.local
    timeout: 5s
dtda:
  disease_map_file: /data/diseases.tsv
logging:
  level: debug
  format: json
`)

	m, err := NewManager(path)
	require.NoError(t, err)
	require.NoError(t, m.Validate())

	cfg := m.GetConfig()
	assert.Equal(t, "tcp", cfg.Agent.Transport)
	assert.Equal(t, "facilitator:6200", cfg.Agent.FacilitatorAddr)
	assert.True(t, m.GetGatewayConfig().Enabled)
	assert.Equal(t, 9090, m.GetGatewayConfig().Port)
	assert.Equal(t, "http://indra.local", cfg.ExternalAPI.INDRA.BaseURL)
	assert.Equal(t, 5*time.Second, cfg.ExternalAPI.INDRA.Timeout)
	assert.Equal(t, "/data/diseases.tsv", cfg.DTDA.DiseaseMapFile)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, path, m.ConfigFileUsed())
}

func TestNewManager_EnvironmentOverrides(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("BIOAGENTS_AGENT_TRANSPORT", "tcp")
	t.Setenv("BIOAGENTS_EXTERNAL_API_CBIOPORTAL_BASE_URL", "http://cbio.local/api")
	t.Setenv("BIOAGENTS_LOGGING_LEVEL", "warn")

	m, err := NewManager("")
	require.NoError(t, err)

	cfg := m.GetConfig()
	assert.Equal(t, "tcp", cfg.Agent.Transport)
	assert.Equal(t, "http://cbio.local/api", cfg.ExternalAPI.CBioPortal.BaseURL)
	assert.Equal(t, "warn", cfg.Logging.Level)
}

func TestNewManager_MissingExplicitFile(t *testing.T) {
	_, err := NewManager(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestReload(t *testing.T) {
	path := writeConfig(t, "logging:\n  level: info\n")
	m, err := NewManager(path)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(path, []byte("logging:\n  level: error\n"), 0o644))
	require.NoError(t, m.Reload())
	assert.Equal(t, "error", m.GetConfig().Logging.Level)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		config string
	}{
		{"unknown transport", "agent:\n  transport: carrier-pigeon\n"},
		{"gateway port", "gateway:\n  enabled: true\n  port: 70000\n"},
		{"empty INDRA URL", "external_api:\n  indra:\n    base_url: \"\"\n"},
		{"log level", "logging:\n  level: loud\n"},
		{"log format", "logging:\n  format: xml\n"},
		{"queue size", "agent:\n  queue_size: 0\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := NewManager(writeConfig(t, tt.config))
			require.NoError(t, err)
			assert.Error(t, m.Validate())
		})
	}
}

func TestNewLogger(t *testing.T) {
	var out bytes.Buffer
	logger := NewLogger(domain.LoggingConfig{Level: "debug", Format: "json"}, &out)
	assert.Equal(t, logrus.DebugLevel, logger.GetLevel())

	logger.WithField("agent", "DTDA").Info("Agent registered")
	assert.Contains(t, out.String(), `"agent":"DTDA"`)
	assert.Contains(t, out.String(), `"msg":"Agent registered"`)

	logger = NewLogger(domain.LoggingConfig{Level: "bogus"}, &out)
	assert.Equal(t, logrus.InfoLevel, logger.GetLevel())
}

// chdir changes the working directory for the duration of the test,
// equivalent to testing.T.Chdir (Go 1.24+).
func chdir(t *testing.T, dir string) {
	t.Helper()
	prev, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		if err := os.Chdir(prev); err != nil {
			t.Fatal(err)
		}
	})
}
