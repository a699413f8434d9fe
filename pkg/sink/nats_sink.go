package sink

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/haolipeng/firewall_ledger/pkg/metrics"
	"github.com/haolipeng/firewall_ledger/pkg/types"
	"github.com/nats-io/nats.go"
	"github.com/sirupsen/logrus"
)

// Publisher 消息发布接口，*nats.Conn 满足该接口
type Publisher interface {
	Publish(subject string, data []byte) error
}

// NATSSink 将 ALERT 和 DROP 决策发布到 NATS 主题，ACCEPT/LOG 不发布
type NATSSink struct {
	conn      *nats.Conn
	publisher Publisher
	subject   string
	ready     chan struct{}
	once      sync.Once
	stats     *metrics.SinkMetrics
}

// NewNATSSink 连接 NATS 服务器
func NewNATSSink(url, subject string) (*NATSSink, error) {
	nc, err := nats.Connect(url, nats.Name("firewall-ledger"))
	if err != nil {
		return nil, err
	}
	logrus.Infof("Connected to NATS server at %s", url)
	s := NewNATSSinkWithPublisher(nc, subject)
	s.conn = nc
	return s, nil
}

// NewNATSSinkWithPublisher 使用已有的发布者
func NewNATSSinkWithPublisher(p Publisher, subject string) *NATSSink {
	return &NATSSink{
		publisher: p,
		subject:   subject,
		ready:     make(chan struct{}),
		stats:     &metrics.SinkMetrics{},
	}
}

func (s *NATSSink) publish(result *types.DecisionResult) error {
	data, err := json.Marshal(result)
	if err != nil {
		return err
	}
	if err := s.publisher.Publish(s.subject, data); err != nil {
		return err
	}
	s.stats.IncrementWritten(len(data))
	return nil
}

func (s *NATSSink) Consume(ctx context.Context, in <-chan *types.DecisionResult) error {
	logrus.Infof("Starting NATS sink consumer on subject %s", s.subject)
	defer s.close()

	s.once.Do(func() { close(s.ready) })

	for {
		select {
		case <-ctx.Done():
			return nil
		case result, ok := <-in:
			if !ok {
				return nil
			}
			if result == nil || !(result.IsBlocked() || result.NeedsAlert()) {
				continue
			}
			if err := s.publish(result); err != nil {
				s.stats.IncrementWriteErrors()
				logrus.Errorf("Failed to publish decision %s: %v", result.Packet.ID, err)
			}
		}
	}
}

func (s *NATSSink) close() {
	if s.conn != nil {
		if err := s.conn.Drain(); err != nil {
			logrus.Warnf("Failed to drain NATS connection: %v", err)
		}
		logrus.Info("NATS connection drained and closed")
	}
}

func (s *NATSSink) Ready() <-chan struct{} {
	return s.ready
}

func (s *NATSSink) GetStats() *metrics.SinkMetrics {
	return s.stats
}
