package pipeline

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/haolipeng/firewall_ledger/pkg/config"
	"github.com/haolipeng/firewall_ledger/pkg/firewall"
	"github.com/haolipeng/firewall_ledger/pkg/ledger"
	"github.com/haolipeng/firewall_ledger/pkg/metrics"
	"github.com/haolipeng/firewall_ledger/pkg/types"
	"github.com/sirupsen/logrus"
)

type pipeline struct {
	source   Source
	sink     Sink
	firewall *firewall.Firewall
	ledger   *ledger.Ledger

	running   bool
	mu        sync.Mutex
	errChan   chan error
	status    string
	metrics   map[string]*metrics.ProcessorMetrics
	config    *config.Config
	startTime time.Time
	stopCh    chan struct{}  // 请求停止
	done      chan struct{}  // 批处理退出
	sinkDone  chan struct{}  // sink退出
	quit      chan struct{}  // 通知错误处理退出
	wg        sync.WaitGroup // 用于跟踪所有goroutine
}

// NewPipeline 创建流水线，评估结果按批写入账本后再交给 sink
func NewPipeline(fw *firewall.Firewall, l *ledger.Ledger) Pipeline {
	return &pipeline{
		firewall: fw,
		ledger:   l,
		errChan:  make(chan error, 1),
		metrics:  make(map[string]*metrics.ProcessorMetrics),
		status:   "initialized",
		config:   config.DefaultConfig(),
		done:     make(chan struct{}),
	}
}

func (p *pipeline) SetSource(source Source) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.source = source
}

func (p *pipeline) SetSink(sink Sink) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sink = sink
}

func (p *pipeline) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return types.NewPipelineError("start", fmt.Errorf("pipeline already running"))
	}
	if p.source == nil || p.sink == nil {
		p.mu.Unlock()
		return types.NewPipelineError("start", fmt.Errorf("source and sink must be set"))
	}

	// 重置 WaitGroup
	p.wg = sync.WaitGroup{}

	// 设置状态为正在启动
	p.running = true
	p.startTime = time.Now()
	p.status = "starting"
	p.metrics = map[string]*metrics.ProcessorMetrics{
		types.StageDetection.String(): {},
	}
	p.errChan = make(chan error, 100)
	p.stopCh = make(chan struct{})
	p.done = make(chan struct{})
	p.sinkDone = make(chan struct{})
	p.quit = make(chan struct{})
	cfg := p.config
	errChan, quit, sinkDone := p.errChan, p.quit, p.sinkDone
	p.mu.Unlock()

	logrus.Info("Starting pipeline")

	// 启动错误处理goroutine
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		p.handleErrors(ctx, errChan, quit)
	}()

	// 1. 先启动sink
	out := make(chan *types.DecisionResult, cfg.Pipeline.BufferSize)
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		defer close(sinkDone)
		if err := p.sink.Consume(ctx, out); err != nil {
			p.reportError(fmt.Errorf("sink error: %w", err))
		}
	}()

	// 2. 等待sink就绪
	select {
	case <-p.sink.Ready():
		logrus.Debug("Sink is ready")
	case <-time.After(5 * time.Second):
		p.abortStart(out)
		return types.NewPipelineError(types.StageSink.String(), fmt.Errorf("timeout waiting for sink to be ready"))
	}

	// 3. 启动检测和账本写入
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		defer close(p.done)
		defer close(out)
		p.run(ctx, cfg, out, sinkDone)
	}()

	// 4. 最后启动数据源，开始数据流转
	if err := p.source.Start(ctx); err != nil {
		logrus.Errorf("Failed to start source: %v", err)
		close(p.stopCh)
		p.mu.Lock()
		p.status = "failed"
		p.mu.Unlock()
		return types.NewPipelineError(types.StageSource.String(), err)
	}

	p.mu.Lock()
	p.status = "running"
	p.mu.Unlock()
	logrus.Info("Pipeline is now running")
	return nil
}

func (p *pipeline) abortStart(out chan *types.DecisionResult) {
	close(out)
	close(p.done)
	close(p.quit)
	p.mu.Lock()
	p.running = false
	p.status = "failed"
	p.mu.Unlock()
}

// run 读取报文并按批处理，数据源结束、Stop 或 ctx 取消时先写入未满的批次再退出
func (p *pipeline) run(ctx context.Context, cfg *config.Config, out chan<- *types.DecisionResult, sinkDone <-chan struct{}) {
	batch := make([]types.Packet, 0, cfg.Pipeline.BatchSize)
	ticker := time.NewTicker(cfg.Pipeline.FlushInterval)
	defer ticker.Stop()

	flush := func() {
		if len(batch) == 0 {
			return
		}
		p.processBatch(batch, out, sinkDone)
		batch = make([]types.Packet, 0, cfg.Pipeline.BatchSize)
	}

	in := p.source.Output()
	for {
		select {
		case <-p.stopCh:
			logrus.Debug("Pipeline stop requested, flushing pending batch")
			flush()
			return
		case <-ctx.Done():
			logrus.Debug("Context cancelled, flushing pending batch")
			flush()
			return
		case <-ticker.C:
			flush()
		case packet, ok := <-in:
			if !ok {
				logrus.Info("Source exhausted")
				flush()
				return
			}
			if packet == nil {
				logrus.Warn("pipeline received nil packet")
				continue
			}
			batch = append(batch, *packet)
			if len(batch) >= cfg.Pipeline.BatchSize {
				flush()
			}
		}
	}
}

// processBatch 一批报文对应一个账本区块
func (p *pipeline) processBatch(batch []types.Packet, out chan<- *types.DecisionResult, sinkDone <-chan struct{}) {
	m := p.stageMetrics()
	start := time.Now()

	results, err := p.firewall.ProcessPackets(batch)
	if err != nil {
		p.reportError(types.NewPipelineError(types.StageDetection.String(), err))
		return
	}
	m.AddProcessed(len(results))
	for _, r := range results {
		switch r.Action {
		case types.ActionDrop:
			m.IncrementDropped()
		case types.ActionAlert:
			m.IncrementAlerted()
		}
	}

	block, err := p.ledger.AddBlock(results)
	if err != nil {
		m.IncrementLedgerErrors()
		p.reportError(types.NewPipelineError(types.StageLedger.String(), err))
	} else {
		m.IncrementBlocksSealed()
		logrus.WithFields(logrus.Fields{
			"index":     block.Index,
			"decisions": len(results),
		}).Debug("batch recorded in ledger")
	}
	m.AddProcessingTime(time.Since(start))

	for _, r := range results {
		select {
		case out <- r:
		case <-sinkDone:
			return
		}
	}
}

func (p *pipeline) stageMetrics() *metrics.ProcessorMetrics {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.metrics[types.StageDetection.String()]
}

// reportError 错误通道满时直接记录日志，不阻塞处理
func (p *pipeline) reportError(err error) {
	p.mu.Lock()
	errChan := p.errChan
	p.mu.Unlock()
	select {
	case errChan <- err:
	default:
		logrus.Errorf("Pipeline error: %v", err)
	}
}

func (p *pipeline) Stop() error {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return nil
	}

	p.status = "stopping"
	logrus.Info("Pipeline stopping...")

	// 1. 先设置状态，防止重复停止
	p.running = false
	select {
	case <-p.stopCh:
	default:
		close(p.stopCh)
	}
	batchDone, sinkDone, quit := p.done, p.sinkDone, p.quit
	p.mu.Unlock()

	// 2. 依次等待批处理和sink退出，再停止错误处理
	done := make(chan struct{})
	go func() {
		<-batchDone
		<-sinkDone
		close(quit)
		p.wg.Wait()
		close(done)
	}()

	// 设置超时时间
	select {
	case <-done:
		logrus.Info("All pipeline stages completed gracefully")
	case <-time.After(30 * time.Second):
		logrus.Warn("Timeout waiting for pipeline stages to complete")
	}

	p.mu.Lock()
	p.status = "stopped"
	p.startTime = time.Time{}
	p.mu.Unlock()

	logrus.Info("Pipeline stopped and cleaned up")
	return nil
}

func (p *pipeline) handleErrors(ctx context.Context, errChan <-chan error, quit <-chan struct{}) {
	logrus.Debug("Starting error handler")
	for {
		select {
		case err := <-errChan:
			logrus.Errorf("Pipeline error: %v", err)
		case <-quit:
			// 记录剩余的错误后退出
			for {
				select {
				case err := <-errChan:
					logrus.Errorf("Pipeline error: %v", err)
				default:
					logrus.Debug("Pipeline stopped, stopping error handler")
					return
				}
			}
		case <-ctx.Done():
			logrus.Debug("Context cancelled, stopping error handler")
			return
		}
	}
}

// GetStats 返回流水线运行状态
func (p *pipeline) GetStats() map[string]interface{} {
	p.mu.Lock()
	defer p.mu.Unlock()

	uptime := time.Duration(0)
	if !p.startTime.IsZero() {
		uptime = time.Since(p.startTime)
	}
	return map[string]interface{}{
		"status":  p.status,
		"uptime":  uptime.String(),
		"metrics": p.metrics,
	}
}

func (p *pipeline) Done() <-chan struct{} {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.done
}

// GetMetrics 实现Pipeline接口的GetMetrics方法
func (p *pipeline) GetMetrics() map[string]*metrics.ProcessorMetrics {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.metrics
}

// SetConfig 实现Pipeline接口的SetConfig方法
func (p *pipeline) SetConfig(cfg *config.Config) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.running {
		return types.NewPipelineError("config", fmt.Errorf("cannot set config while pipeline is running"))
	}

	if err := cfg.Validate(); err != nil {
		return types.NewPipelineError("config", err)
	}

	p.config = cfg
	return nil
}

// Status 实现Pipeline接口的Status方法
func (p *pipeline) Status() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.status
}
