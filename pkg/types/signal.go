package types

// SignalKind 检测信号的类别
type SignalKind string

const (
	KindSizeViolation     SignalKind = "size-violation"
	KindBlacklistHit      SignalKind = "blacklist-hit"
	KindSuspiciousContent SignalKind = "suspicious-content"
	KindPortViolation     SignalKind = "port-violation"
	KindSyntheticAttack   SignalKind = "synthetic-attack"
	KindExpressionMatch   SignalKind = "expression-match"
	KindMalformedInput    SignalKind = "malformed-input"
)

// DetectionSignal 单个检测器产生的一条证据
type DetectionSignal struct {
	Detector    string     `json:"detector" yaml:"detector"`
	Kind        SignalKind `json:"kind" yaml:"kind"`
	Severity    int        `json:"severity" yaml:"severity"` // 1-10
	Description string     `json:"description" yaml:"description"`
}
