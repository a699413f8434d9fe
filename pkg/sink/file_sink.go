package sink

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/haolipeng/firewall_ledger/pkg/metrics"
	"github.com/haolipeng/firewall_ledger/pkg/types"
	"github.com/sirupsen/logrus"
)

// FileSink 将评估结果按行写成 JSON (JSONL)，文件以追加方式打开
type FileSink struct {
	filename string
	file     *os.File
	writer   *bufio.Writer
	mu       sync.Mutex
	ready    chan struct{}
	once     sync.Once
	stats    *metrics.SinkMetrics
}

func NewFileSink(filename string) (*FileSink, error) {
	if dir := filepath.Dir(filename); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create output directory %s: %w", dir, err)
		}
	}

	s := &FileSink{
		filename: filename,
		ready:    make(chan struct{}),
		stats:    &metrics.SinkMetrics{},
	}
	if err := s.open(); err != nil {
		return nil, err
	}
	logrus.Infof("Writing decisions to %s", filename)
	return s, nil
}

func (s *FileSink) open() error {
	f, err := os.OpenFile(s.filename, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		logrus.Errorf("Failed to open decisions file: %v", err)
		return err
	}
	s.file = f
	s.writer = bufio.NewWriter(f)
	return nil
}

func (s *FileSink) write(result *types.DecisionResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to marshal decision: %w", err)
	}
	data = append(data, '\n')
	if _, err := s.writer.Write(data); err != nil {
		return err
	}
	s.stats.IncrementWritten(len(data))
	return nil
}

// Consume 可重复调用，上一次结束时关闭的文件会重新以追加方式打开
func (s *FileSink) Consume(ctx context.Context, in <-chan *types.DecisionResult) error {
	logrus.Info("Starting file sink consumer")
	s.mu.Lock()
	if s.file == nil {
		if err := s.open(); err != nil {
			s.mu.Unlock()
			return err
		}
	}
	s.mu.Unlock()

	// 在结束时统一刷新并关闭文件
	defer func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if err := s.writer.Flush(); err != nil {
			logrus.Errorf("Failed to flush decisions file: %v", err)
		}
		if err := s.file.Close(); err != nil {
			logrus.Errorf("Failed to close decisions file: %v", err)
		}
		s.file = nil
		logrus.Info("File sink consumer stopped")
	}()

	s.once.Do(func() { close(s.ready) })

	for {
		select {
		case <-ctx.Done():
			logrus.Debug("File sink received context cancellation")
			return nil
		case result, ok := <-in:
			if !ok {
				logrus.Debug("File sink input channel closed")
				return nil
			}
			if result == nil {
				continue
			}
			if err := s.write(result); err != nil {
				s.stats.IncrementWriteErrors()
				logrus.Errorf("Failed to write decision: %v", err)
			}
		}
	}
}

func (s *FileSink) Ready() <-chan struct{} {
	return s.ready
}

func (s *FileSink) GetStats() *metrics.SinkMetrics {
	return s.stats
}
