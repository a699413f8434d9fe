package source

import (
	"context"

	"github.com/haolipeng/firewall_ledger/pkg/metrics"
	"github.com/haolipeng/firewall_ledger/pkg/types"
)

// SliceSource 按顺序输出内存中的报文，用于模拟流量和测试
type SliceSource struct {
	packets []types.Packet
	output  chan *types.Packet
	done    chan struct{}
	stats   *metrics.SourceMetrics
}

func NewSliceSource(packets []types.Packet, bufferSize int) *SliceSource {
	copied := make([]types.Packet, len(packets))
	copy(copied, packets)
	return &SliceSource{
		packets: copied,
		output:  make(chan *types.Packet, bufferSize),
		done:    make(chan struct{}),
		stats:   &metrics.SourceMetrics{},
	}
}

func (s *SliceSource) Start(ctx context.Context) error {
	go func() {
		defer close(s.done)
		defer close(s.output)
		for i := range s.packets {
			p := s.packets[i]
			select {
			case s.output <- &p:
				s.stats.IncrementPacketsCaptured()
				s.stats.AddBytesProcessed(uint64(max(p.Size, 0)))
			case <-ctx.Done():
				return
			}
		}
	}()
	return nil
}

func (s *SliceSource) Output() <-chan *types.Packet {
	return s.output
}

func (s *SliceSource) GetStats() *metrics.SourceMetrics {
	return s.stats
}

func (s *SliceSource) WaitForCompletion() <-chan struct{} {
	return s.done
}
