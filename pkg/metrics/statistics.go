package metrics

import (
	"fmt"
	"strings"
	"sync"

	"github.com/haolipeng/firewall_ledger/pkg/types"
	"github.com/prometheus/client_golang/prometheus"
)

// Statistics 按动作统计已处理的报文数量
type Statistics struct {
	mu     sync.Mutex
	counts StatsSnapshot

	decisionsDesc *prometheus.Desc
	totalDesc     *prometheus.Desc
}

// StatsSnapshot 某一时刻的计数快照
type StatsSnapshot struct {
	Total    uint64 `json:"total"`
	Accepted uint64 `json:"accepted"`
	Dropped  uint64 `json:"dropped"`
	Alerted  uint64 `json:"alerted"`
	Logged   uint64 `json:"logged"`
}

func NewStatistics() *Statistics {
	return &Statistics{
		decisionsDesc: prometheus.NewDesc(
			"firewall_decisions_total",
			"Number of packet decisions by action.",
			[]string{"action"}, nil,
		),
		totalDesc: prometheus.NewDesc(
			"firewall_packets_total",
			"Number of packets evaluated.",
			nil, nil,
		),
	}
}

// Record 按动作计数一次
func (s *Statistics) Record(action types.Action) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record(action)
}

// RecordResults 在一次加锁内统计一批结果
func (s *Statistics) RecordResults(results []*types.DecisionResult) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range results {
		if r != nil {
			s.record(r.Action)
		}
	}
}

func (s *Statistics) record(action types.Action) {
	s.counts.Total++
	switch action {
	case types.ActionAccept:
		s.counts.Accepted++
	case types.ActionDrop:
		s.counts.Dropped++
	case types.ActionAlert:
		s.counts.Alerted++
	case types.ActionLog:
		s.counts.Logged++
	}
}

// Snapshot 返回一致的计数快照
func (s *Statistics) Snapshot() StatsSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.counts
}

// Reset 清零所有计数
func (s *Statistics) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counts = StatsSnapshot{}
}

// Count 返回指定动作的计数
func (s StatsSnapshot) Count(action types.Action) uint64 {
	switch action {
	case types.ActionAccept:
		return s.Accepted
	case types.ActionDrop:
		return s.Dropped
	case types.ActionAlert:
		return s.Alerted
	case types.ActionLog:
		return s.Logged
	}
	return 0
}

// Percent 动作占总数的百分比
func (s StatsSnapshot) Percent(action types.Action) float64 {
	if s.Total == 0 {
		return 0
	}
	return float64(s.Count(action)) * 100 / float64(s.Total)
}

// Report 文本统计报告
func (s StatsSnapshot) Report() string {
	var b strings.Builder
	b.WriteString("FIREWALL STATISTICS\n")
	b.WriteString("==================================================\n")
	fmt.Fprintf(&b, "Total processed : %d\n", s.Total)
	for _, a := range []types.Action{types.ActionAccept, types.ActionDrop, types.ActionAlert, types.ActionLog} {
		fmt.Fprintf(&b, "  %s %-12s: %d (%.1f%%)\n", a.Symbol(), a.String(), s.Count(a), s.Percent(a))
	}
	return b.String()
}

// Describe 实现 prometheus.Collector
func (s *Statistics) Describe(ch chan<- *prometheus.Desc) {
	ch <- s.decisionsDesc
	ch <- s.totalDesc
}

// Collect 实现 prometheus.Collector
func (s *Statistics) Collect(ch chan<- prometheus.Metric) {
	snap := s.Snapshot()
	ch <- prometheus.MustNewConstMetric(s.totalDesc, prometheus.CounterValue, float64(snap.Total))
	for _, a := range types.Actions() {
		ch <- prometheus.MustNewConstMetric(s.decisionsDesc, prometheus.CounterValue,
			float64(snap.Count(a)), strings.ToLower(a.String()))
	}
}
