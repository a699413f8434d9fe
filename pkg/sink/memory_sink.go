package sink

import (
	"context"
	"sync"

	"github.com/haolipeng/firewall_ledger/pkg/types"
)

// MemorySink 在内存中保存收到的决策，供模拟运行和测试读取
type MemorySink struct {
	mu      sync.Mutex
	results []types.DecisionResult
	ready   chan struct{}
	once    sync.Once
}

func NewMemorySink() *MemorySink {
	return &MemorySink{ready: make(chan struct{})}
}

func (s *MemorySink) Consume(ctx context.Context, in <-chan *types.DecisionResult) error {
	s.once.Do(func() { close(s.ready) })
	for {
		select {
		case <-ctx.Done():
			return nil
		case result, ok := <-in:
			if !ok {
				return nil
			}
			if result == nil {
				continue
			}
			s.mu.Lock()
			s.results = append(s.results, result.Clone())
			s.mu.Unlock()
		}
	}
}

func (s *MemorySink) Ready() <-chan struct{} {
	return s.ready
}

// Results 返回已收到决策的副本
func (s *MemorySink) Results() []types.DecisionResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]types.DecisionResult, len(s.results))
	copy(out, s.results)
	return out
}
