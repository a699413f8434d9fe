package config

import (
	"strings"
	"sync"

	"github.com/haolipeng/firewall_ledger/pkg/ruleEngine"
	"github.com/haolipeng/firewall_ledger/pkg/types"
	"github.com/sirupsen/logrus"
)

// Provider 持有当前策略快照，所有修改都经过单写者路径并生成新快照
// 修改在下一次评估时生效
type Provider struct {
	mu       sync.RWMutex
	current  *PolicySnapshot
	defaults PolicySpec
	compiler *ruleEngine.Compiler
}

// NewProvider 使用初始策略创建配置提供者
func NewProvider(spec PolicySpec) (*Provider, error) {
	compiler, err := ruleEngine.NewCompiler()
	if err != nil {
		return nil, err
	}
	snap, err := BuildPolicySnapshot(spec, compiler)
	if err != nil {
		return nil, err
	}
	return &Provider{
		current:  snap,
		defaults: spec.Clone(),
		compiler: compiler,
	}, nil
}

// Snapshot 返回当前快照
func (p *Provider) Snapshot() *PolicySnapshot {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.current
}

// Compiler 返回规则编译器，用于校验规则
func (p *Provider) Compiler() *ruleEngine.Compiler {
	return p.compiler
}

// update 在写锁内基于当前策略生成新快照，失败时保持原快照不变
func (p *Provider) update(operation string, fn func(spec *PolicySpec) error) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	spec := p.current.Spec()
	if err := fn(&spec); err != nil {
		return err
	}

	snap, err := BuildPolicySnapshot(spec, p.compiler)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"operation": operation,
			"error":     err.Error(),
		}).Warn("policy update rejected")
		return err
	}

	p.current = snap
	logrus.WithField("operation", operation).Debug("policy updated")
	return nil
}

// Replace 整体替换策略
func (p *Provider) Replace(spec PolicySpec) error {
	return p.update("replace", func(s *PolicySpec) error {
		*s = spec.Clone()
		return nil
	})
}

// Reset 恢复为创建时的策略，表达式规则保持不变
func (p *Provider) Reset() error {
	return p.update("reset", func(s *PolicySpec) error {
		rules := s.Rules
		*s = p.defaults.Clone()
		s.Rules = rules
		return nil
	})
}

func (p *Provider) AddSuspiciousWord(word string) error {
	return p.update("add_word", func(s *PolicySpec) error {
		s.SuspiciousWords = append(s.SuspiciousWords, word)
		return nil
	})
}

func (p *Provider) RemoveSuspiciousWord(word string) error {
	return p.update("remove_word", func(s *PolicySpec) error {
		out, removed := removeFold(s.SuspiciousWords, word)
		if !removed {
			return types.NewConfigError("suspicious_words", word, "not configured")
		}
		s.SuspiciousWords = out
		return nil
	})
}

func (p *Provider) AddBlacklistedAddress(addr string) error {
	return p.update("add_address", func(s *PolicySpec) error {
		s.BlacklistedIPs = append(s.BlacklistedIPs, addr)
		return nil
	})
}

func (p *Provider) RemoveBlacklistedAddress(addr string) error {
	return p.update("remove_address", func(s *PolicySpec) error {
		out, removed := removeFold(s.BlacklistedIPs, addr)
		if !removed {
			return types.NewConfigError("blacklisted_ips", addr, "not configured")
		}
		s.BlacklistedIPs = out
		return nil
	})
}

func (p *Provider) AddMonitoredPort(port int) error {
	return p.update("add_port", func(s *PolicySpec) error {
		s.MonitoredPorts = append(s.MonitoredPorts, port)
		return nil
	})
}

func (p *Provider) RemoveMonitoredPort(port int) error {
	return p.update("remove_port", func(s *PolicySpec) error {
		out := s.MonitoredPorts[:0]
		removed := false
		for _, v := range s.MonitoredPorts {
			if v == port {
				removed = true
				continue
			}
			out = append(out, v)
		}
		if !removed {
			return types.NewConfigError("monitored_ports", port, "not configured")
		}
		s.MonitoredPorts = out
		return nil
	})
}

// SetThresholds 设置阻断和告警阈值，越界时返回错误，不做截断
func (p *Provider) SetThresholds(block, alert int) error {
	return p.update("set_thresholds", func(s *PolicySpec) error {
		s.BlockThreshold = block
		s.AlertThreshold = alert
		return nil
	})
}

func (p *Provider) SetPacketSizeRange(minSize, maxSize int) error {
	return p.update("set_size_range", func(s *PolicySpec) error {
		s.MinPacketSize = minSize
		s.MaxPacketSize = maxSize
		return nil
	})
}

func (p *Provider) SetSeverities(sev Severities) error {
	return p.update("set_severities", func(s *PolicySpec) error {
		s.Severities = sev
		return nil
	})
}

// ApplySecurityLevel 按安全级别预设设置阈值
func (p *Provider) ApplySecurityLevel(level SecurityLevel) error {
	block, alert, err := level.Thresholds()
	if err != nil {
		return err
	}
	return p.SetThresholds(block, alert)
}

// UpsertRule 新增或替换表达式规则
func (p *Provider) UpsertRule(rule ruleEngine.Rule) error {
	return p.update("upsert_rule", func(s *PolicySpec) error {
		for i := range s.Rules {
			if s.Rules[i].RuleID == rule.RuleID {
				s.Rules[i] = rule
				return nil
			}
		}
		s.Rules = append(s.Rules, rule)
		return nil
	})
}

func (p *Provider) RemoveRule(ruleID string) error {
	return p.update("remove_rule", func(s *PolicySpec) error {
		for i := range s.Rules {
			if s.Rules[i].RuleID == ruleID {
				s.Rules = append(s.Rules[:i], s.Rules[i+1:]...)
				return nil
			}
		}
		return types.NewConfigError("rules", ruleID, "not configured")
	})
}

// Rule 根据ID查找当前生效的规则
func (p *Provider) Rule(ruleID string) (ruleEngine.Rule, bool) {
	for _, r := range p.Snapshot().Spec().Rules {
		if r.RuleID == ruleID {
			return r, true
		}
	}
	return ruleEngine.Rule{}, false
}

func removeFold(list []string, value string) ([]string, bool) {
	target := strings.TrimSpace(value)
	out := make([]string, 0, len(list))
	removed := false
	for _, v := range list {
		if strings.EqualFold(strings.TrimSpace(v), target) {
			removed = true
			continue
		}
		out = append(out, v)
	}
	return out, removed
}
