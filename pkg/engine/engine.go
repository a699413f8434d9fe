package engine

import (
	"fmt"
	"strings"
	"sync"

	"github.com/haolipeng/firewall_ledger/pkg/config"
	"github.com/haolipeng/firewall_ledger/pkg/detector"
	"github.com/haolipeng/firewall_ledger/pkg/types"
	"github.com/sirupsen/logrus"
)

const defaultWorkers = 4

// Engine 运行检测器并根据阈值选择动作，本身不持有可变状态
type Engine struct {
	detectors []detector.Detector
	workers   int
}

type Option func(*Engine)

// WithDetectors 替换默认检测器列表
func WithDetectors(detectors ...detector.Detector) Option {
	return func(e *Engine) {
		e.detectors = append([]detector.Detector(nil), detectors...)
	}
}

// WithWorkers 设置批量评估的并发数
func WithWorkers(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.workers = n
		}
	}
}

func New(opts ...Option) *Engine {
	e := &Engine{
		detectors: detector.Default(),
		workers:   defaultWorkers,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Detectors 返回检测器名称，按执行顺序
func (e *Engine) Detectors() []string {
	names := make([]string, len(e.detectors))
	for i, d := range e.detectors {
		names[i] = d.Name()
	}
	return names
}

// Evaluate 评估单个报文
// 判定顺序: score >= block -> DROP, score >= alert -> ALERT, 有信号 -> LOG, 否则 ACCEPT
func (e *Engine) Evaluate(packet types.Packet, policy *config.PolicySnapshot) *types.DecisionResult {
	result := &types.DecisionResult{Packet: packet}

	for _, d := range e.detectors {
		for _, sig := range detector.Run(d, &result.Packet, policy) {
			result.Signals = append(result.Signals, sig)
			result.TotalScore += sig.Severity
		}
	}

	result.Action, result.Reason = decide(result.Signals, result.TotalScore, policy)
	result.Summary = renderSummary(result, policy)

	logrus.WithFields(logrus.Fields{
		"packet": packet.Identity(),
		"score":  result.TotalScore,
		"action": result.Action.String(),
	}).Debug("packet evaluated")
	return result
}

// EvaluateMany 并发评估多个报文，结果顺序与输入一致
func (e *Engine) EvaluateMany(packets []types.Packet, policy *config.PolicySnapshot) []*types.DecisionResult {
	results := make([]*types.DecisionResult, len(packets))
	if len(packets) == 0 {
		return results
	}

	workers := e.workers
	if workers > len(packets) {
		workers = len(packets)
	}

	jobs := make(chan int)
	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			for idx := range jobs {
				results[idx] = e.Evaluate(packets[idx], policy)
			}
		}()
	}

	for idx := range packets {
		jobs <- idx
	}
	close(jobs)
	wg.Wait()

	return results
}

func decide(signals []types.DetectionSignal, score int, policy *config.PolicySnapshot) (types.Action, string) {
	kinds := contributingKinds(signals)
	switch {
	case score >= policy.BlockThreshold():
		return types.ActionDrop, fmt.Sprintf("score %d reached block threshold %d (%s)",
			score, policy.BlockThreshold(), kinds)
	case score >= policy.AlertThreshold():
		return types.ActionAlert, fmt.Sprintf("score %d reached alert threshold %d (%s)",
			score, policy.AlertThreshold(), kinds)
	case len(signals) > 0:
		return types.ActionLog, fmt.Sprintf("score %d below alert threshold %d (%s)",
			score, policy.AlertThreshold(), kinds)
	default:
		return types.ActionAccept, "no signals detected"
	}
}

// contributingKinds 按首次出现的顺序列出信号类别
func contributingKinds(signals []types.DetectionSignal) string {
	seen := make(map[types.SignalKind]struct{}, len(signals))
	kinds := make([]string, 0, len(signals))
	for _, sig := range signals {
		if _, ok := seen[sig.Kind]; ok {
			continue
		}
		seen[sig.Kind] = struct{}{}
		kinds = append(kinds, string(sig.Kind))
	}
	return strings.Join(kinds, ", ")
}
