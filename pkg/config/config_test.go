package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadConfig(t *testing.T) {
	path := writeConfig(t, `
log:
  level: DEBUG
pipeline:
  worker_count: 2
  batch_size: 8
  flush_interval: 250ms
firewall:
  block_threshold: 4
  alert_threshold: 2
  suspicious_words: ["DROP TABLE"]
  monitored_ports: [23]
  severities:
    size_violation: 2
    blacklist: 5
    suspicious_content: 6
    monitored_port: 3
    malformed: 1
nats:
  enabled: true
  subject: fw.test
`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "DEBUG", cfg.Log.Level)
	assert.Equal(t, 2, cfg.Pipeline.WorkerCount)
	assert.Equal(t, 1024, cfg.Pipeline.BufferSize, "缺省字段保持默认值")
	assert.Equal(t, 8, cfg.Pipeline.BatchSize)
	assert.Equal(t, 250*time.Millisecond, cfg.Pipeline.FlushInterval)
	assert.Equal(t, "fw.test", cfg.NATS.Subject)
	assert.Equal(t, "nats://127.0.0.1:4222", cfg.NATS.URL)

	spec, err := cfg.PolicySpec()
	require.NoError(t, err)
	assert.Equal(t, 4, spec.BlockThreshold)
	assert.Equal(t, 2, spec.AlertThreshold)
	assert.Equal(t, []string{"DROP TABLE"}, spec.SuspiciousWords)
	assert.Equal(t, 20, spec.MinPacketSize)
}

func TestLoadConfigErrors(t *testing.T) {
	testCases := []struct {
		name    string
		content string
	}{
		{"非法YAML", "pipeline: [1, 2"},
		{"工作协程数为0", "pipeline:\n  worker_count: 0\n"},
		{"文件源缺少文件名", "source:\n  type: file\n"},
		{"未知数据源", "source:\n  type: kafka\n"},
		{"阈值越界", "firewall:\n  block_threshold: 11\n"},
		{"未知安全级别", "firewall:\n  security_level: paranoid\n"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := LoadConfig(writeConfig(t, tc.content))
			assert.Error(t, err)
		})
	}

	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestSecurityLevelOverridesThresholds(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Firewall.SecurityLevel = "maximum"

	spec, err := cfg.PolicySpec()
	require.NoError(t, err)
	assert.Equal(t, 1, spec.BlockThreshold)
	assert.Equal(t, 1, spec.AlertThreshold)
	assert.Equal(t, DefaultSeverities(), spec.Severities)
}

func TestRepositoryConfigIsValid(t *testing.T) {
	cfg, err := LoadConfig("../../config.yaml")
	require.NoError(t, err)
	assert.Equal(t, "rules", cfg.RuleEngine.RuleDirectory)
}
