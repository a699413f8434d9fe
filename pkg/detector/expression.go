package detector

import (
	"strings"

	"github.com/haolipeng/firewall_ledger/pkg/config"
	"github.com/haolipeng/firewall_ledger/pkg/ruleEngine"
	"github.com/haolipeng/firewall_ledger/pkg/types"
	"github.com/sirupsen/logrus"
)

// ExpressionCheck 执行快照中启用的CEL表达式规则
// 多条规则命中时合并为一个信号，严重程度取命中规则的最大值
type ExpressionCheck struct{}

func (ExpressionCheck) Name() string { return NameExpressionRules }

func (c ExpressionCheck) Detect(packet *types.Packet, policy *config.PolicySnapshot) (types.DetectionSignal, bool) {
	var (
		matched  []string
		failed   []string
		severity int
	)

	for _, compiled := range policy.Rules() {
		if !compiled.Rule.Enabled() {
			continue
		}

		ok, err := ruleEngine.Evaluate(compiled.Program, packet)
		if err != nil {
			// 评估失败不影响其它规则
			logrus.WithFields(logrus.Fields{
				"rule_id": compiled.Rule.RuleID,
				"packet":  packet.Identity(),
				"error":   err.Error(),
			}).Debug("expression rule evaluation failed")
			failed = append(failed, compiled.Rule.RuleID)
			continue
		}
		if !ok {
			continue
		}

		matched = append(matched, compiled.Rule.RuleID)
		if compiled.Rule.Severity > severity {
			severity = compiled.Rule.Severity
		}
	}

	if len(matched) > 0 {
		return signal(c.Name(), types.KindExpressionMatch, severity,
			"expression rules matched: %s", strings.Join(matched, ", ")), true
	}
	if len(failed) > 0 {
		return malformed(c.Name(), policy, "expression rules could not be evaluated: %s", strings.Join(failed, ", "))
	}
	return types.DetectionSignal{}, false
}
