package ruleEngine

const (
	StateEnable  = "enable"
	StateDisable = "disable"
)

// Rule 表示一条表达式规则配置
type Rule struct {
	State       string `yaml:"state" json:"state"`             // 规则状态 enable/disable
	RuleID      string `yaml:"rule_id" json:"rule_id"`         // 规则ID
	RuleName    string `yaml:"rule_name" json:"rule_name"`     // 规则名称
	RuleTag     string `yaml:"rule_tag" json:"rule_tag"`       // 规则标签
	Expression  string `yaml:"expression" json:"expression"`   // CEL规则表达式，结果必须为布尔值
	Description string `yaml:"description" json:"description"` // 规则描述
	Severity    int    `yaml:"severity" json:"severity"`       // 命中时的严重程度 1-10
}

// Enabled 规则是否启用
func (r *Rule) Enabled() bool {
	return r.State == StateEnable
}
