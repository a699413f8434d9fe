package types

// DecisionResult 单个报文的评估结果，创建后不再修改
type DecisionResult struct {
	Packet     Packet            `json:"packet" yaml:"packet"`
	Signals    []DetectionSignal `json:"signals" yaml:"signals"` // 按检测器注册顺序
	TotalScore int               `json:"total_score" yaml:"total_score"`
	Action     Action            `json:"action" yaml:"action"`
	Reason     string            `json:"reason" yaml:"reason"`
	Summary    string            `json:"summary" yaml:"summary"`
}

func (d *DecisionResult) IsAccepted() bool {
	return d.Action == ActionAccept
}

func (d *DecisionResult) IsBlocked() bool {
	return d.Action == ActionDrop
}

func (d *DecisionResult) NeedsAlert() bool {
	return d.Action == ActionAlert
}

// Clone 返回深拷贝，信号切片不与原结果共享
func (d *DecisionResult) Clone() DecisionResult {
	out := *d
	if d.Signals != nil {
		out.Signals = make([]DetectionSignal, len(d.Signals))
		copy(out.Signals, d.Signals)
	}
	return out
}
