package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadMinimal(t *testing.T) {
	path := writeConfig(t, `
fleetd:
  interfaces:
    - eth0
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, []string{"eth0"}, cfg.Interfaces)

	// Everything else falls back to defaults.
	assert.Equal(t, 10*time.Minute, cfg.Discovery.NeighborTTL)
	assert.Equal(t, 30*time.Second, cfg.Discovery.SweepInterval)
	assert.Equal(t, 65536, cfg.Discovery.MaxTableSize)
	assert.Equal(t, "afpacket", cfg.Capture.Type)
	assert.Equal(t, 65536, cfg.Capture.SnapLen)
	assert.Equal(t, 16*1024*1024, cfg.Capture.BufferSize)
	assert.Equal(t, time.Second, cfg.Capture.PollTimeout)
	assert.Equal(t, 5*time.Second, cfg.Report.FlushInterval)
	assert.Equal(t, 3, cfg.Report.RetryLimit)
	assert.Equal(t, time.Minute, cfg.Report.RefreshRateLimit)
	assert.Equal(t, "log", cfg.Report.Client.Type)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "text", cfg.Log.Format)
	assert.False(t, cfg.Log.File.Enabled)
}

func TestLoadFull(t *testing.T) {
	path := writeConfig(t, `
fleetd:
  interfaces:
    - eth0
    - eth1
  discovery:
    neighbor_ttl: 30m
    sweep_interval: 1m
    max_table_size: 1000
  capture:
    type: rawsocket
    snaplen: 2048
    poll_timeout: 500ms
    filter: arp or (vlan and arp)
  report:
    flush_interval: 10s
    retry_limit: 5
    refresh_rate_limit: 2m
    queue_size: 1000
    batch_size: 100
    client:
      type: http
      endpoint: http://controller.local:8080/v1/events
      timeout: 5s
  log:
    level: debug
    format: json
    file:
      enabled: true
      path: /tmp/fleetd.log
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, []string{"eth0", "eth1"}, cfg.Interfaces)
	assert.Equal(t, 30*time.Minute, cfg.Discovery.NeighborTTL)
	assert.Equal(t, time.Minute, cfg.Discovery.SweepInterval)
	assert.Equal(t, 1000, cfg.Discovery.MaxTableSize)
	assert.Equal(t, "rawsocket", cfg.Capture.Type)
	assert.Equal(t, 2048, cfg.Capture.SnapLen)
	assert.Equal(t, 500*time.Millisecond, cfg.Capture.PollTimeout)
	assert.Equal(t, "arp or (vlan and arp)", cfg.Capture.Filter)
	assert.Equal(t, 10*time.Second, cfg.Report.FlushInterval)
	assert.Equal(t, 5, cfg.Report.RetryLimit)
	assert.Equal(t, "http", cfg.Report.Client.Type)
	assert.Equal(t, "http://controller.local:8080/v1/events", cfg.Report.Client.Endpoint)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.True(t, cfg.Log.File.Enabled)
	assert.Equal(t, "/tmp/fleetd.log", cfg.Log.File.Path)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yml"))
	assert.Error(t, err)
}

func TestLoadNoInterfaces(t *testing.T) {
	path := writeConfig(t, `
fleetd:
  log:
    level: info
`)

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "at least one interface")
}

func TestLoadDuplicateInterface(t *testing.T) {
	path := writeConfig(t, `
fleetd:
  interfaces: [eth0, eth0]
`)

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "configured twice")
}

func TestLoadBadCaptureType(t *testing.T) {
	path := writeConfig(t, `
fleetd:
  interfaces: [eth0]
  capture:
    type: pcap
`)

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "capture.type")
}

func TestLoadHTTPClientRequiresEndpoint(t *testing.T) {
	path := writeConfig(t, `
fleetd:
  interfaces: [eth0]
  report:
    client:
      type: http
`)

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "endpoint")
}

func TestLoadBadLogLevel(t *testing.T) {
	path := writeConfig(t, `
fleetd:
  interfaces: [eth0]
  log:
    level: loud
`)

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "log.level")
}

func TestLoadNegativeTTL(t *testing.T) {
	path := writeConfig(t, `
fleetd:
  interfaces: [eth0]
  discovery:
    neighbor_ttl: -5m
`)

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "neighbor_ttl")
}

func TestYAMLRendersDurationsAsStrings(t *testing.T) {
	path := writeConfig(t, `
fleetd:
  interfaces: [eth0]
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	out, err := yaml.Marshal(map[string]*Config{"fleetd": cfg})
	require.NoError(t, err)

	rendered := string(out)
	assert.Contains(t, rendered, "neighbor_ttl: 10m0s")
	assert.Contains(t, rendered, "sweep_interval: 30s")
	assert.Contains(t, rendered, "flush_interval: 5s")
	assert.Contains(t, rendered, "poll_timeout: 1s")
	assert.NotContains(t, rendered, "600000000000", "durations must not render as nanoseconds")
}

func TestEnvOverride(t *testing.T) {
	t.Setenv("FLEETD_LOG_LEVEL", "debug")

	path := writeConfig(t, `
fleetd:
  interfaces: [eth0]
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.Log.Level)
}
