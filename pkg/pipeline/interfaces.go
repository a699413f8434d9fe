package pipeline

import (
	"context"

	"github.com/haolipeng/firewall_ledger/pkg/config"
	"github.com/haolipeng/firewall_ledger/pkg/metrics"
	"github.com/haolipeng/firewall_ledger/pkg/types"
)

// Source 定义数据源接口
type Source interface {
	// Start 启动数据源，报文读完后关闭 Output
	Start(ctx context.Context) error
	// Output 返回数据输出channel
	Output() <-chan *types.Packet
}

// Sink 定义决策输出接口
type Sink interface {
	// Consume 消费评估结果，直到输入关闭或 ctx 取消
	Consume(ctx context.Context, in <-chan *types.DecisionResult) error
	// Ready 返回就绪信号channel
	Ready() <-chan struct{}
}

// Pipeline 定义处理流水线接口
type Pipeline interface {
	// SetSource 设置数据源
	SetSource(source Source)
	// SetSink 设置数据输出
	SetSink(sink Sink)
	// Start 启动流水线
	Start(ctx context.Context) error
	// Stop 停止流水线，未满的批次会先写入账本
	Stop() error
	// Done 数据源读完且最后一批处理完成后关闭
	Done() <-chan struct{}
	// GetMetrics 获取处理阶段指标
	GetMetrics() map[string]*metrics.ProcessorMetrics
	// SetConfig 设置流水线配置
	SetConfig(*config.Config) error
	// Status 返回流水线状态
	Status() string
}
