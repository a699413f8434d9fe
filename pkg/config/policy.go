package config

import (
	"fmt"
	"sort"
	"strings"

	"github.com/haolipeng/firewall_ledger/pkg/ruleEngine"
	"github.com/haolipeng/firewall_ledger/pkg/types"
	"github.com/sirupsen/logrus"
)

const (
	MinThreshold = 1
	MaxThreshold = 10
	MinSeverity  = 1
	MaxSeverity  = 10
	MaxPort      = 65535
)

// Severities 各类检测信号的严重程度
type Severities struct {
	SizeViolation     int `yaml:"size_violation" json:"size_violation"`
	Blacklist         int `yaml:"blacklist" json:"blacklist"`
	SuspiciousContent int `yaml:"suspicious_content" json:"suspicious_content"`
	MonitoredPort     int `yaml:"monitored_port" json:"monitored_port"`
	Malformed         int `yaml:"malformed" json:"malformed"`
}

// DefaultSeverities 默认严重程度
func DefaultSeverities() Severities {
	return Severities{
		SizeViolation:     2,
		Blacklist:         5,
		SuspiciousContent: 6,
		MonitoredPort:     3,
		Malformed:         1,
	}
}

// PolicySpec 可编辑的策略描述，构建为 PolicySnapshot 后才能用于评估
type PolicySpec struct {
	BlockThreshold  int               `yaml:"block_threshold" json:"block_threshold"`
	AlertThreshold  int               `yaml:"alert_threshold" json:"alert_threshold"`
	MinPacketSize   int               `yaml:"min_packet_size" json:"min_packet_size"`
	MaxPacketSize   int               `yaml:"max_packet_size" json:"max_packet_size"`
	SuspiciousWords []string          `yaml:"suspicious_words" json:"suspicious_words"`
	BlacklistedIPs  []string          `yaml:"blacklisted_ips" json:"blacklisted_ips"`
	MonitoredPorts  []int             `yaml:"monitored_ports" json:"monitored_ports"`
	Severities      Severities        `yaml:"severities" json:"severities"`
	Rules           []ruleEngine.Rule `yaml:"-" json:"rules"` // 表达式规则，从规则目录加载
}

// DefaultPolicySpec 默认策略：不配置任何名单，只做大小检查
func DefaultPolicySpec() PolicySpec {
	return PolicySpec{
		BlockThreshold: 5,
		AlertThreshold: 3,
		MinPacketSize:  20,
		MaxPacketSize:  1500,
		Severities:     DefaultSeverities(),
	}
}

// Clone 深拷贝
func (s PolicySpec) Clone() PolicySpec {
	out := s
	out.SuspiciousWords = append([]string(nil), s.SuspiciousWords...)
	out.BlacklistedIPs = append([]string(nil), s.BlacklistedIPs...)
	out.MonitoredPorts = append([]int(nil), s.MonitoredPorts...)
	out.Rules = append([]ruleEngine.Rule(nil), s.Rules...)
	return out
}

// SecurityLevel 安全级别预设，只影响阈值
type SecurityLevel string

const (
	LevelLow     SecurityLevel = "low"
	LevelMedium  SecurityLevel = "medium"
	LevelHigh    SecurityLevel = "high"
	LevelMaximum SecurityLevel = "maximum"
)

// Thresholds 返回安全级别对应的 (block, alert) 阈值
func (l SecurityLevel) Thresholds() (block int, alert int, err error) {
	switch SecurityLevel(strings.ToLower(string(l))) {
	case LevelLow:
		return 5, 3, nil
	case LevelMedium:
		return 3, 2, nil
	case LevelHigh:
		return 2, 1, nil
	case LevelMaximum:
		return 1, 1, nil
	default:
		return 0, 0, types.NewConfigError("security_level", l, "must be one of low, medium, high, maximum")
	}
}

// PolicySnapshot 不可变的策略视图，每次评估传入一个快照
type PolicySnapshot struct {
	spec      PolicySpec
	words     []string // 小写，与 spec.SuspiciousWords 一一对应
	blacklist map[string]struct{}
	ports     map[int]struct{}
	rules     []*ruleEngine.CompiledRule
	warnings  []string
}

// NewPolicySnapshot 校验策略并构建快照
func NewPolicySnapshot(spec PolicySpec) (*PolicySnapshot, error) {
	compiler, err := ruleEngine.NewCompiler()
	if err != nil {
		return nil, err
	}
	return BuildPolicySnapshot(spec, compiler)
}

// BuildPolicySnapshot 使用给定的编译器构建快照，编译器缓存可以跨快照复用
func BuildPolicySnapshot(spec PolicySpec, compiler *ruleEngine.Compiler) (*PolicySnapshot, error) {
	spec = spec.Clone()

	if err := validateThreshold("block_threshold", spec.BlockThreshold); err != nil {
		return nil, err
	}
	if err := validateThreshold("alert_threshold", spec.AlertThreshold); err != nil {
		return nil, err
	}
	if spec.MinPacketSize < 0 {
		return nil, types.NewConfigError("min_packet_size", spec.MinPacketSize, "must not be negative")
	}
	if spec.MaxPacketSize < spec.MinPacketSize {
		return nil, types.NewConfigError("max_packet_size", spec.MaxPacketSize,
			fmt.Sprintf("must be >= min_packet_size %d", spec.MinPacketSize))
	}
	if err := validateSeverities(spec.Severities); err != nil {
		return nil, err
	}

	snap := &PolicySnapshot{
		blacklist: make(map[string]struct{}),
		ports:     make(map[int]struct{}),
	}

	// 可疑词去重(大小写不敏感)，保留首次出现的写法和顺序
	words := make([]string, 0, len(spec.SuspiciousWords))
	for _, w := range spec.SuspiciousWords {
		trimmed := strings.TrimSpace(w)
		if trimmed == "" {
			return nil, types.NewConfigError("suspicious_words", w, "entry must not be empty")
		}
		lower := strings.ToLower(trimmed)
		if containsString(snap.words, lower) {
			continue
		}
		snap.words = append(snap.words, lower)
		words = append(words, trimmed)
	}
	spec.SuspiciousWords = words

	addrs := make([]string, 0, len(spec.BlacklistedIPs))
	for _, addr := range spec.BlacklistedIPs {
		trimmed := strings.TrimSpace(addr)
		if trimmed == "" || strings.ContainsAny(trimmed, " \t\r\n") {
			return nil, types.NewConfigError("blacklisted_ips", addr, "entry must be a non-empty address without whitespace")
		}
		lower := strings.ToLower(trimmed)
		if _, dup := snap.blacklist[lower]; dup {
			continue
		}
		snap.blacklist[lower] = struct{}{}
		addrs = append(addrs, trimmed)
	}
	spec.BlacklistedIPs = addrs

	ports := make([]int, 0, len(spec.MonitoredPorts))
	for _, port := range spec.MonitoredPorts {
		if port < 0 || port > MaxPort {
			return nil, types.NewConfigError("monitored_ports", port, "port must be in [0,65535]")
		}
		if _, dup := snap.ports[port]; dup {
			continue
		}
		snap.ports[port] = struct{}{}
		ports = append(ports, port)
	}
	sort.Ints(ports)
	spec.MonitoredPorts = ports

	seen := make(map[string]struct{}, len(spec.Rules))
	for _, rule := range spec.Rules {
		if _, dup := seen[rule.RuleID]; dup {
			return nil, types.NewConfigError("rules", rule.RuleID, "duplicate rule id")
		}
		seen[rule.RuleID] = struct{}{}
	}
	if compiler == nil && len(spec.Rules) > 0 {
		return nil, types.NewConfigError("rules", len(spec.Rules), "no expression compiler available")
	}
	if len(spec.Rules) > 0 {
		compiled, err := compiler.CompileAll(spec.Rules)
		if err != nil {
			return nil, types.NewConfigError("rules", "expression", err.Error())
		}
		snap.rules = compiled
	}

	// 告警阈值高于阻断阈值时 ALERT 分支不可达，只警告不报错
	if spec.AlertThreshold > spec.BlockThreshold {
		msg := fmt.Sprintf("alert_threshold %d is above block_threshold %d, ALERT can never be selected",
			spec.AlertThreshold, spec.BlockThreshold)
		snap.warnings = append(snap.warnings, msg)
		logrus.WithFields(logrus.Fields{
			"block_threshold": spec.BlockThreshold,
			"alert_threshold": spec.AlertThreshold,
		}).Warn("alert threshold above block threshold")
	}

	snap.spec = spec
	return snap, nil
}

func (p *PolicySnapshot) BlockThreshold() int { return p.spec.BlockThreshold }
func (p *PolicySnapshot) AlertThreshold() int { return p.spec.AlertThreshold }
func (p *PolicySnapshot) MinPacketSize() int  { return p.spec.MinPacketSize }
func (p *PolicySnapshot) MaxPacketSize() int  { return p.spec.MaxPacketSize }

func (p *PolicySnapshot) Severities() Severities { return p.spec.Severities }

// Spec 返回策略描述的副本，修改副本不会影响快照
func (p *PolicySnapshot) Spec() PolicySpec { return p.spec.Clone() }

// Warnings 构建时产生的配置警告
func (p *PolicySnapshot) Warnings() []string {
	return append([]string(nil), p.warnings...)
}

// MatchSuspicious 返回payload中命中的可疑词，顺序与配置一致
func (p *PolicySnapshot) MatchSuspicious(payload string) []string {
	if len(p.words) == 0 || payload == "" {
		return nil
	}
	lower := strings.ToLower(payload)
	var matches []string
	for i, w := range p.words {
		if strings.Contains(lower, w) {
			matches = append(matches, p.spec.SuspiciousWords[i])
		}
	}
	return matches
}

// IsBlacklisted 源地址是否在黑名单中，大小写不敏感的精确匹配
func (p *PolicySnapshot) IsBlacklisted(addr string) bool {
	_, ok := p.blacklist[strings.ToLower(strings.TrimSpace(addr))]
	return ok
}

// IsMonitored 端口是否被监控
func (p *PolicySnapshot) IsMonitored(port int) bool {
	_, ok := p.ports[port]
	return ok
}

// Rules 已编译的表达式规则
func (p *PolicySnapshot) Rules() []*ruleEngine.CompiledRule {
	return p.rules
}

func validateThreshold(field string, v int) error {
	if v < MinThreshold || v > MaxThreshold {
		return types.NewConfigError(field, v, "must be in [1,10]")
	}
	return nil
}

func validateSeverities(s Severities) error {
	fields := []struct {
		name  string
		value int
	}{
		{"severities.size_violation", s.SizeViolation},
		{"severities.blacklist", s.Blacklist},
		{"severities.suspicious_content", s.SuspiciousContent},
		{"severities.monitored_port", s.MonitoredPort},
		{"severities.malformed", s.Malformed},
	}
	for _, f := range fields {
		if f.value < MinSeverity || f.value > MaxSeverity {
			return types.NewConfigError(f.name, f.value, "must be in [1,10]")
		}
	}
	return nil
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
