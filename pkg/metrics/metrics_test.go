package metrics

import (
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/haolipeng/firewall_ledger/pkg/types"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestStatisticsRecord(t *testing.T) {
	s := NewStatistics()
	s.Record(types.ActionAccept)
	s.Record(types.ActionAccept)
	s.Record(types.ActionDrop)
	s.RecordResults([]*types.DecisionResult{
		{Action: types.ActionAlert},
		nil,
		{Action: types.ActionLog},
	})

	snap := s.Snapshot()
	assert.Equal(t, StatsSnapshot{Total: 5, Accepted: 2, Dropped: 1, Alerted: 1, Logged: 1}, snap)
	assert.InDelta(t, 40.0, snap.Percent(types.ActionAccept), 0.001)

	s.Reset()
	assert.Equal(t, StatsSnapshot{}, s.Snapshot())
	assert.Zero(t, s.Snapshot().Percent(types.ActionDrop))
}

func TestStatisticsConcurrent(t *testing.T) {
	s := NewStatistics()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				s.Record(types.ActionDrop)
				_ = s.Snapshot()
			}
		}()
	}
	wg.Wait()

	snap := s.Snapshot()
	assert.Equal(t, uint64(1000), snap.Total)
	assert.Equal(t, uint64(1000), snap.Dropped)
}

func TestStatsReport(t *testing.T) {
	report := StatsSnapshot{Total: 4, Accepted: 2, Dropped: 1, Alerted: 1}.Report()

	assert.True(t, strings.HasPrefix(report, "FIREWALL STATISTICS\n"))
	assert.Contains(t, report, "Total processed : 4")
	assert.Contains(t, report, "✓ ACCEPT      : 2 (50.0%)")
	assert.Contains(t, report, "✗ DROP        : 1 (25.0%)")
	assert.Contains(t, report, "✎ LOG         : 0 (0.0%)")
}

func TestStatisticsCollector(t *testing.T) {
	s := NewStatistics()
	s.Record(types.ActionDrop)
	s.Record(types.ActionAccept)

	expected := `
# HELP firewall_decisions_total Number of packet decisions by action.
# TYPE firewall_decisions_total counter
firewall_decisions_total{action="accept"} 1
firewall_decisions_total{action="alert"} 0
firewall_decisions_total{action="drop"} 1
firewall_decisions_total{action="log"} 0
# HELP firewall_packets_total Number of packets evaluated.
# TYPE firewall_packets_total counter
firewall_packets_total 2
`
	assert.NoError(t, testutil.CollectAndCompare(s, strings.NewReader(expected)))
}

func TestProcessorMetrics(t *testing.T) {
	m := &ProcessorMetrics{}
	m.AddProcessed(3)
	m.IncrementDropped()
	m.IncrementAlerted()
	m.IncrementBlocksSealed()
	m.AddProcessingTime(time.Millisecond)

	stats := m.GetStats()
	assert.Equal(t, uint64(3), stats["processed_packets"])
	assert.Equal(t, uint64(1), stats["dropped_packets"])
	assert.Equal(t, uint64(1), stats["blocks_sealed"])
	assert.Equal(t, uint64(time.Millisecond), stats["processing_time"])

	sink := &SinkMetrics{}
	sink.IncrementWritten(10)
	assert.Equal(t, uint64(1), sink.Written())
	assert.Equal(t, uint64(10), sink.BytesWritten)
}
