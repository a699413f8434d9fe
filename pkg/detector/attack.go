package detector

import (
	"github.com/haolipeng/firewall_ledger/pkg/config"
	"github.com/haolipeng/firewall_ledger/pkg/types"
)

// attackSeverity 合成攻击类型对应的固定严重程度
var attackSeverity = map[types.AttackCategory]int{
	types.AttackSQLInjection:     9,
	types.AttackCommandInjection: 9,
	types.AttackXSS:              7,
	types.AttackPathTraversal:    6,
	types.AttackDoS:              5,
	types.AttackPortScan:         4,
}

// AttackSeverity 返回攻击类型的严重程度，未知类型返回 false
func AttackSeverity(category types.AttackCategory) (int, bool) {
	sev, ok := attackSeverity[category]
	return sev, ok
}

// SyntheticAttackCheck 报文声明了攻击类型时命中，用于测试和训练报文
type SyntheticAttackCheck struct{}

func (SyntheticAttackCheck) Name() string { return NameSyntheticAttack }

func (c SyntheticAttackCheck) Detect(packet *types.Packet, policy *config.PolicySnapshot) (types.DetectionSignal, bool) {
	if packet.AttackCategory == types.AttackNone {
		return types.DetectionSignal{}, false
	}
	sev, ok := AttackSeverity(packet.AttackCategory)
	if !ok {
		return malformed(c.Name(), policy, "unknown attack category %q", string(packet.AttackCategory))
	}
	return signal(c.Name(), types.KindSyntheticAttack, sev,
		"declared attack category %s", packet.AttackCategory), true
}
