package detector

import (
	"strconv"
	"strings"

	"github.com/haolipeng/firewall_ledger/pkg/config"
	"github.com/haolipeng/firewall_ledger/pkg/types"
)

// SizeRangeCheck 报文声明大小不在 [min, max] 内时命中
type SizeRangeCheck struct{}

func (SizeRangeCheck) Name() string { return NameSizeRange }

func (c SizeRangeCheck) Detect(packet *types.Packet, policy *config.PolicySnapshot) (types.DetectionSignal, bool) {
	sev := policy.Severities().SizeViolation
	switch {
	case packet.Size < 0:
		return malformed(c.Name(), policy, "declared packet size %d is negative", packet.Size)
	case packet.Size < policy.MinPacketSize():
		return signal(c.Name(), types.KindSizeViolation, sev,
			"packet size %d below minimum %d", packet.Size, policy.MinPacketSize()), true
	case packet.Size > policy.MaxPacketSize():
		return signal(c.Name(), types.KindSizeViolation, sev,
			"packet size %d above maximum %d", packet.Size, policy.MaxPacketSize()), true
	}
	return types.DetectionSignal{}, false
}

// AddressBlacklistCheck 源地址在黑名单中时命中
type AddressBlacklistCheck struct{}

func (AddressBlacklistCheck) Name() string { return NameAddressBlacklist }

func (c AddressBlacklistCheck) Detect(packet *types.Packet, policy *config.PolicySnapshot) (types.DetectionSignal, bool) {
	if !policy.IsBlacklisted(packet.SrcIP) {
		return types.DetectionSignal{}, false
	}
	return signal(c.Name(), types.KindBlacklistHit, policy.Severities().Blacklist,
		"source address %s is blacklisted", packet.SrcIP), true
}

// SuspiciousContentCheck payload 包含可疑词时命中，多个命中合并为一个信号
type SuspiciousContentCheck struct{}

func (SuspiciousContentCheck) Name() string { return NameSuspiciousContent }

func (c SuspiciousContentCheck) Detect(packet *types.Packet, policy *config.PolicySnapshot) (types.DetectionSignal, bool) {
	matches := policy.MatchSuspicious(packet.Payload)
	if len(matches) == 0 {
		return types.DetectionSignal{}, false
	}
	quoted := make([]string, len(matches))
	for i, m := range matches {
		quoted[i] = "\"" + m + "\""
	}
	return signal(c.Name(), types.KindSuspiciousContent, policy.Severities().SuspiciousContent,
		"payload contains suspicious content: %s", strings.Join(quoted, ", ")), true
}

// PortMonitoringCheck 源端口或目的端口被监控时命中
type PortMonitoringCheck struct{}

var _ MultiDetector = PortMonitoringCheck{}

func (PortMonitoringCheck) Name() string { return NamePortMonitoring }

// Detect 返回第一个信号，被监控端口优先于越界端口
func (c PortMonitoringCheck) Detect(packet *types.Packet, policy *config.PolicySnapshot) (types.DetectionSignal, bool) {
	sigs := c.DetectAll(packet, policy)
	if len(sigs) == 0 {
		return types.DetectionSignal{}, false
	}
	return sigs[0], true
}

// DetectAll 越界端口报告 malformed-input，另一个合法端口照常检查
func (c PortMonitoringCheck) DetectAll(packet *types.Packet, policy *config.PolicySnapshot) []types.DetectionSignal {
	var hit []string
	invalid := false
	if !validPort(packet.DstPort) {
		invalid = true
	} else if policy.IsMonitored(packet.DstPort) {
		hit = append(hit, "destination port "+strconv.Itoa(packet.DstPort))
	}
	if !validPort(packet.SrcPort) {
		invalid = true
	} else if policy.IsMonitored(packet.SrcPort) {
		hit = append(hit, "source port "+strconv.Itoa(packet.SrcPort))
	}

	var sigs []types.DetectionSignal
	if len(hit) > 0 {
		sigs = append(sigs, signal(c.Name(), types.KindPortViolation, policy.Severities().MonitoredPort,
			"monitored port hit: %s", strings.Join(hit, ", ")))
	}
	if invalid {
		sig, _ := malformed(c.Name(), policy, "port out of range: src %d dst %d", packet.SrcPort, packet.DstPort)
		sigs = append(sigs, sig)
	}
	return sigs
}

func validPort(port int) bool {
	return port >= 0 && port <= config.MaxPort
}

// ProtocolCheck 协议不在支持集合内时报告 malformed-input
type ProtocolCheck struct{}

func (ProtocolCheck) Name() string { return NameProtocol }

func (c ProtocolCheck) Detect(packet *types.Packet, policy *config.PolicySnapshot) (types.DetectionSignal, bool) {
	if packet.Protocol.Valid() {
		return types.DetectionSignal{}, false
	}
	return malformed(c.Name(), policy, "unknown protocol %q", string(packet.Protocol))
}
