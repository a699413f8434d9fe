package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Log struct {
		Level      string `yaml:"level"`
		Dir        string `yaml:"dir"`
		Filename   string `yaml:"filename"`
		MaxAge     int    `yaml:"max_age"`     // 小时
		RotateTime int    `yaml:"rotate_time"` // 小时
	} `yaml:"log"`

	Pipeline struct {
		WorkerCount   int           `yaml:"worker_count"`
		BufferSize    int           `yaml:"buffer_size"`
		BatchSize     int           `yaml:"batch_size"`     // 每个账本区块包含的决策数
		FlushInterval time.Duration `yaml:"flush_interval"` // 未满批次的最长等待时间
	} `yaml:"pipeline"`

	Source struct {
		Type     string `yaml:"type"` // file 或 none
		Filename string `yaml:"filename"`
	} `yaml:"source"`

	Firewall FirewallConfig `yaml:"firewall"`

	RuleEngine struct {
		RuleDirectory string `yaml:"rule_directory"`
	} `yaml:"rule_engine"`

	Output struct {
		DecisionsFile string `yaml:"decisions_file"`
	} `yaml:"output"`

	NATS struct {
		Enabled bool   `yaml:"enabled"`
		URL     string `yaml:"url"`
		Subject string `yaml:"subject"`
	} `yaml:"nats"`

	API struct {
		Enabled bool   `yaml:"enabled"`
		Host    string `yaml:"host"`
		Port    string `yaml:"port"`
	} `yaml:"api"`
}

// FirewallConfig 防火墙策略配置，security_level 非空时覆盖阈值
type FirewallConfig struct {
	SecurityLevel   string      `yaml:"security_level"`
	BlockThreshold  int         `yaml:"block_threshold"`
	AlertThreshold  int         `yaml:"alert_threshold"`
	MinPacketSize   int         `yaml:"min_packet_size"`
	MaxPacketSize   int         `yaml:"max_packet_size"`
	SuspiciousWords []string    `yaml:"suspicious_words"`
	BlacklistedIPs  []string    `yaml:"blacklisted_ips"`
	MonitoredPorts  []int       `yaml:"monitored_ports"`
	Severities      *Severities `yaml:"severities"`
	HistoryLimit    int         `yaml:"history_limit"`
}

// DefaultConfig 返回带默认值的配置，配置文件中缺省的字段保持默认值
func DefaultConfig() *Config {
	cfg := &Config{}
	cfg.Log.Level = "INFO"
	cfg.Log.Dir = "logs"
	cfg.Log.Filename = "firewall.log"
	cfg.Log.MaxAge = 24
	cfg.Log.RotateTime = 1

	cfg.Pipeline.WorkerCount = 4
	cfg.Pipeline.BufferSize = 1024
	cfg.Pipeline.BatchSize = 16
	cfg.Pipeline.FlushInterval = time.Second

	cfg.Source.Type = "none"

	def := DefaultPolicySpec()
	cfg.Firewall.BlockThreshold = def.BlockThreshold
	cfg.Firewall.AlertThreshold = def.AlertThreshold
	cfg.Firewall.MinPacketSize = def.MinPacketSize
	cfg.Firewall.MaxPacketSize = def.MaxPacketSize
	cfg.Firewall.HistoryLimit = 1000

	cfg.RuleEngine.RuleDirectory = "rules"
	cfg.Output.DecisionsFile = "decisions.jsonl"

	cfg.NATS.URL = "nats://127.0.0.1:4222"
	cfg.NATS.Subject = "firewall.decisions"

	cfg.API.Host = "127.0.0.1"
	cfg.API.Port = "8080"
	return cfg
}

func (c *Config) Validate() error {
	if c.Pipeline.WorkerCount <= 0 {
		return fmt.Errorf("worker count must be positive")
	}
	if c.Pipeline.BufferSize <= 0 {
		return fmt.Errorf("buffer size must be positive")
	}
	if c.Pipeline.BatchSize <= 0 {
		return fmt.Errorf("batch size must be positive")
	}
	if c.Pipeline.FlushInterval <= 0 {
		return fmt.Errorf("flush interval must be positive")
	}
	switch c.Source.Type {
	case "none":
	case "file":
		if c.Source.Filename == "" {
			return fmt.Errorf("source filename is required for file source")
		}
	default:
		return fmt.Errorf("unknown source type %q", c.Source.Type)
	}
	if c.Firewall.HistoryLimit < 0 {
		return fmt.Errorf("history limit must not be negative")
	}
	if c.NATS.Enabled && (c.NATS.URL == "" || c.NATS.Subject == "") {
		return fmt.Errorf("nats url and subject are required when nats is enabled")
	}
	if c.API.Enabled && c.API.Port == "" {
		return fmt.Errorf("api port is required when api is enabled")
	}

	// 策略部分交给快照构建做完整校验
	spec, err := c.PolicySpec()
	if err != nil {
		return err
	}
	if _, err := NewPolicySnapshot(spec); err != nil {
		return err
	}
	return nil
}

// PolicySpec 将 firewall 配置段转换为策略描述，不包含表达式规则
func (c *Config) PolicySpec() (PolicySpec, error) {
	fw := c.Firewall
	spec := PolicySpec{
		BlockThreshold:  fw.BlockThreshold,
		AlertThreshold:  fw.AlertThreshold,
		MinPacketSize:   fw.MinPacketSize,
		MaxPacketSize:   fw.MaxPacketSize,
		SuspiciousWords: append([]string(nil), fw.SuspiciousWords...),
		BlacklistedIPs:  append([]string(nil), fw.BlacklistedIPs...),
		MonitoredPorts:  append([]int(nil), fw.MonitoredPorts...),
		Severities:      DefaultSeverities(),
	}
	if fw.Severities != nil {
		spec.Severities = *fw.Severities
	}
	if fw.SecurityLevel != "" {
		block, alert, err := SecurityLevel(fw.SecurityLevel).Thresholds()
		if err != nil {
			return PolicySpec{}, err
		}
		spec.BlockThreshold = block
		spec.AlertThreshold = alert
	}
	return spec, nil
}

func LoadConfig(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}
