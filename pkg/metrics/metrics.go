package metrics

import (
	"sync/atomic"
	"time"
)

// ProcessorMetrics 流水线检测阶段的计数
type ProcessorMetrics struct {
	ProcessedPackets uint64
	DroppedPackets   uint64 // 判定为 DROP 的报文
	AlertedPackets   uint64 // 判定为 ALERT 的报文
	BlocksSealed     uint64 // 写入账本的区块数
	LedgerErrors     uint64
	ProcessingTime   uint64 // 纳秒
}

func (m *ProcessorMetrics) AddProcessed(n int) {
	atomic.AddUint64(&m.ProcessedPackets, uint64(n))
}

func (m *ProcessorMetrics) IncrementDropped() {
	atomic.AddUint64(&m.DroppedPackets, 1)
}

func (m *ProcessorMetrics) IncrementAlerted() {
	atomic.AddUint64(&m.AlertedPackets, 1)
}

func (m *ProcessorMetrics) IncrementBlocksSealed() {
	atomic.AddUint64(&m.BlocksSealed, 1)
}

func (m *ProcessorMetrics) IncrementLedgerErrors() {
	atomic.AddUint64(&m.LedgerErrors, 1)
}

func (m *ProcessorMetrics) AddProcessingTime(duration time.Duration) {
	atomic.AddUint64(&m.ProcessingTime, uint64(duration.Nanoseconds()))
}

// GetStats 返回指标快照
func (m *ProcessorMetrics) GetStats() map[string]interface{} {
	processed := atomic.LoadUint64(&m.ProcessedPackets)
	return map[string]interface{}{
		"processed_packets": processed,
		"dropped_packets":   atomic.LoadUint64(&m.DroppedPackets),
		"alerted_packets":   atomic.LoadUint64(&m.AlertedPackets),
		"blocks_sealed":     atomic.LoadUint64(&m.BlocksSealed),
		"ledger_errors":     atomic.LoadUint64(&m.LedgerErrors),
		"processing_time":   atomic.LoadUint64(&m.ProcessingTime),
		"avg_process_time": float64(atomic.LoadUint64(&m.ProcessingTime)) /
			float64(processed+1),
	}
}

// SourceMetrics 数据源计数
type SourceMetrics struct {
	PacketsCaptured uint64
	PacketsSkipped  uint64 // 无法解析为 IP 报文的帧
	BytesProcessed  uint64
	ErrorCount      uint64
}

func (m *SourceMetrics) IncrementPacketsCaptured() {
	atomic.AddUint64(&m.PacketsCaptured, 1)
}

func (m *SourceMetrics) IncrementPacketsSkipped() {
	atomic.AddUint64(&m.PacketsSkipped, 1)
}

func (m *SourceMetrics) AddBytesProcessed(bytes uint64) {
	atomic.AddUint64(&m.BytesProcessed, bytes)
}

func (m *SourceMetrics) IncrementErrorCount() {
	atomic.AddUint64(&m.ErrorCount, 1)
}

// SinkMetrics 输出计数
type SinkMetrics struct {
	DecisionsWritten uint64
	WriteErrors      uint64
	BytesWritten     uint64
}

func (m *SinkMetrics) IncrementWritten(bytes int) {
	atomic.AddUint64(&m.DecisionsWritten, 1)
	atomic.AddUint64(&m.BytesWritten, uint64(bytes))
}

func (m *SinkMetrics) IncrementWriteErrors() {
	atomic.AddUint64(&m.WriteErrors, 1)
}

// Written 已写出的决策数
func (m *SinkMetrics) Written() uint64 {
	return atomic.LoadUint64(&m.DecisionsWritten)
}
