package detector

import (
	"fmt"

	"github.com/haolipeng/firewall_ledger/pkg/config"
	"github.com/haolipeng/firewall_ledger/pkg/types"
)

// Detector 检测器接口，同一报文和快照的结果总是相同
// 检测器不能返回 error，字段异常以 malformed-input 信号表示
type Detector interface {
	// Name 返回检测器名称，写入信号的 Detector 字段
	Name() string
	// Detect 返回信号和是否命中
	Detect(packet *types.Packet, policy *config.PolicySnapshot) (types.DetectionSignal, bool)
}

// MultiDetector 可同时产生多个信号的检测器
type MultiDetector interface {
	Detector
	// DetectAll 返回全部信号，未命中时返回空
	DetectAll(packet *types.Packet, policy *config.PolicySnapshot) []types.DetectionSignal
}

// Run 执行检测器并返回全部信号
func Run(d Detector, packet *types.Packet, policy *config.PolicySnapshot) []types.DetectionSignal {
	if m, ok := d.(MultiDetector); ok {
		return m.DetectAll(packet, policy)
	}
	if sig, hit := d.Detect(packet, policy); hit {
		return []types.DetectionSignal{sig}
	}
	return nil
}

// 检测器名称
const (
	NameSizeRange         = "size-range"
	NameAddressBlacklist  = "address-blacklist"
	NameSuspiciousContent = "suspicious-content"
	NamePortMonitoring    = "port-monitoring"
	NameSyntheticAttack   = "synthetic-attack"
	NameExpressionRules   = "expression-rules"
	NameProtocol          = "protocol-validation"
)

// Default 返回固定顺序的检测器列表，顺序只影响信号排列，不影响总分
func Default() []Detector {
	return []Detector{
		SizeRangeCheck{},
		AddressBlacklistCheck{},
		SuspiciousContentCheck{},
		PortMonitoringCheck{},
		SyntheticAttackCheck{},
		ExpressionCheck{},
		ProtocolCheck{},
	}
}

func signal(detector string, kind types.SignalKind, severity int, format string, args ...interface{}) types.DetectionSignal {
	return types.DetectionSignal{
		Detector:    detector,
		Kind:        kind,
		Severity:    severity,
		Description: fmt.Sprintf(format, args...),
	}
}

func malformed(detector string, policy *config.PolicySnapshot, format string, args ...interface{}) (types.DetectionSignal, bool) {
	return signal(detector, types.KindMalformedInput, policy.Severities().Malformed, format, args...), true
}
