package sink

import (
	"context"
	"errors"
	"sync"

	"github.com/haolipeng/firewall_ledger/pkg/pipeline"
	"github.com/haolipeng/firewall_ledger/pkg/types"
)

// Fanout 把每个决策分发给所有下游 sink，下游全部就绪后才就绪
type Fanout struct {
	sinks []pipeline.Sink
	ready chan struct{}
	once  sync.Once
}

var _ pipeline.Sink = (*Fanout)(nil)

func NewFanout(sinks ...pipeline.Sink) *Fanout {
	return &Fanout{
		sinks: sinks,
		ready: make(chan struct{}),
	}
}

type branch struct {
	ch   chan *types.DecisionResult
	done chan struct{}
}

// Consume 返回时合并所有下游的错误
func (f *Fanout) Consume(ctx context.Context, in <-chan *types.DecisionResult) error {
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
	)

	branches := make([]branch, len(f.sinks))
	for i, s := range f.sinks {
		b := branch{ch: make(chan *types.DecisionResult, cap(in)), done: make(chan struct{})}
		branches[i] = b
		wg.Add(1)
		go func(s pipeline.Sink) {
			defer wg.Done()
			defer close(b.done)
			if err := s.Consume(ctx, b.ch); err != nil {
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
			}
		}(s)
	}

	for _, s := range f.sinks {
		select {
		case <-s.Ready():
		case <-ctx.Done():
		}
	}
	f.once.Do(func() { close(f.ready) })

	f.forward(ctx, in, branches)

	for _, b := range branches {
		close(b.ch)
	}
	wg.Wait()
	return errors.Join(errs...)
}

func (f *Fanout) forward(ctx context.Context, in <-chan *types.DecisionResult, branches []branch) {
	for {
		select {
		case <-ctx.Done():
			return
		case result, ok := <-in:
			if !ok {
				return
			}
			for _, b := range branches {
				// 已退出的下游直接跳过
				select {
				case b.ch <- result:
				case <-b.done:
				case <-ctx.Done():
					return
				}
			}
		}
	}
}

func (f *Fanout) Ready() <-chan struct{} {
	return f.ready
}
