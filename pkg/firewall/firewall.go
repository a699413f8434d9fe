package firewall

import (
	"sync"

	"github.com/haolipeng/firewall_ledger/pkg/config"
	"github.com/haolipeng/firewall_ledger/pkg/engine"
	"github.com/haolipeng/firewall_ledger/pkg/metrics"
	"github.com/haolipeng/firewall_ledger/pkg/types"
	"github.com/sirupsen/logrus"
)

const DefaultHistoryLimit = 1000

// Firewall 组合策略、决策引擎、统计和历史记录
// 账本写入由调用方决定，逐个写入或按批写入
type Firewall struct {
	provider *config.Provider
	engine   *engine.Engine
	stats    *metrics.Statistics

	mu           sync.RWMutex
	running      bool
	history      []*types.DecisionResult
	historyLimit int
}

type Option func(*Firewall)

// WithEngine 替换默认决策引擎
func WithEngine(e *engine.Engine) Option {
	return func(f *Firewall) {
		if e != nil {
			f.engine = e
		}
	}
}

// WithStatistics 共享外部统计对象
func WithStatistics(s *metrics.Statistics) Option {
	return func(f *Firewall) {
		if s != nil {
			f.stats = s
		}
	}
}

// WithHistoryLimit 历史记录上限，0 表示不保留历史
func WithHistoryLimit(n int) Option {
	return func(f *Firewall) {
		if n >= 0 {
			f.historyLimit = n
		}
	}
}

// New 创建防火墙，初始为运行状态
func New(provider *config.Provider, opts ...Option) *Firewall {
	f := &Firewall{
		provider:     provider,
		engine:       engine.New(),
		stats:        metrics.NewStatistics(),
		running:      true,
		historyLimit: DefaultHistoryLimit,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

func (f *Firewall) Start() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.running {
		f.running = true
		logrus.Info("Firewall started")
	}
}

func (f *Firewall) Stop() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.running {
		f.running = false
		logrus.Info("Firewall stopped")
	}
}

func (f *Firewall) IsRunning() bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.running
}

func (f *Firewall) Provider() *config.Provider {
	return f.provider
}

func (f *Firewall) Statistics() *metrics.Statistics {
	return f.stats
}

// ProcessPacket 评估单个报文，防火墙停止时返回 ErrFirewallStopped 且不记录任何状态
func (f *Firewall) ProcessPacket(packet types.Packet) (*types.DecisionResult, error) {
	results, err := f.ProcessPackets([]types.Packet{packet})
	if err != nil {
		return nil, err
	}
	return results[0], nil
}

// ProcessPackets 使用同一个策略快照评估一批报文，结果顺序与输入一致
func (f *Firewall) ProcessPackets(packets []types.Packet) ([]*types.DecisionResult, error) {
	if !f.IsRunning() {
		return nil, types.ErrFirewallStopped
	}

	policy := f.provider.Snapshot()
	results := f.engine.EvaluateMany(packets, policy)

	f.stats.RecordResults(results)
	f.appendHistory(results)

	for _, r := range results {
		if r.Action == types.ActionDrop || r.Action == types.ActionAlert {
			logrus.WithFields(logrus.Fields{
				"packet": r.Packet.Identity(),
				"score":  r.TotalScore,
				"action": r.Action.String(),
				"reason": r.Reason,
			}).Info("packet flagged")
		}
	}
	return results, nil
}

func (f *Firewall) appendHistory(results []*types.DecisionResult) {
	if f.historyLimit == 0 || len(results) == 0 {
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	f.history = append(f.history, results...)
	if over := len(f.history) - f.historyLimit; over > 0 {
		f.history = append([]*types.DecisionResult(nil), f.history[over:]...)
	}
}

// History 返回最近的决策，按处理顺序，limit <= 0 时返回全部
func (f *Firewall) History(limit int) []types.DecisionResult {
	f.mu.RLock()
	defer f.mu.RUnlock()

	start := 0
	if limit > 0 && limit < len(f.history) {
		start = len(f.history) - limit
	}
	out := make([]types.DecisionResult, 0, len(f.history)-start)
	for _, r := range f.history[start:] {
		out = append(out, r.Clone())
	}
	return out
}

// ClearHistory 清空历史记录
func (f *Firewall) ClearHistory() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.history = nil
}
