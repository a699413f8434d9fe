package engine

import (
	"fmt"
	"strings"

	"github.com/haolipeng/firewall_ledger/pkg/config"
	"github.com/haolipeng/firewall_ledger/pkg/types"
)

const rule = "--------------------------------------------------"

// renderSummary 生成多行文本摘要，只依赖结果和快照，输出稳定
func renderSummary(result *types.DecisionResult, policy *config.PolicySnapshot) string {
	p := result.Packet
	var b strings.Builder

	b.WriteString("PACKET ANALYSIS\n")
	b.WriteString(rule + "\n")
	fmt.Fprintf(&b, "Packet:      %s\n", p.Identity())
	fmt.Fprintf(&b, "Size:        %d bytes\n", p.Size)
	if p.AttackCategory != types.AttackNone {
		fmt.Fprintf(&b, "Attack:      %s\n", p.AttackCategory)
	}

	b.WriteString(rule + "\n")
	fmt.Fprintf(&b, "Signals (%d):\n", len(result.Signals))
	if len(result.Signals) == 0 {
		b.WriteString("  none\n")
	}
	for i, sig := range result.Signals {
		fmt.Fprintf(&b, "  %d. [%s] +%d %s (%s)\n", i+1, sig.Kind, sig.Severity, sig.Description, sig.Detector)
	}

	b.WriteString(rule + "\n")
	fmt.Fprintf(&b, "Score:       %d (alert >= %d, block >= %d)\n",
		result.TotalScore, policy.AlertThreshold(), policy.BlockThreshold())
	fmt.Fprintf(&b, "Decision:    %s %s\n", result.Action.Symbol(), result.Action)
	fmt.Fprintf(&b, "Reason:      %s\n", result.Reason)
	return b.String()
}
