package pipeline_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/haolipeng/firewall_ledger/pkg/config"
	"github.com/haolipeng/firewall_ledger/pkg/firewall"
	"github.com/haolipeng/firewall_ledger/pkg/ledger"
	"github.com/haolipeng/firewall_ledger/pkg/pipeline"
	"github.com/haolipeng/firewall_ledger/pkg/sink"
	"github.com/haolipeng/firewall_ledger/pkg/source"
	"github.com/haolipeng/firewall_ledger/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newFirewall(t *testing.T) *firewall.Firewall {
	t.Helper()
	spec := config.DefaultPolicySpec()
	spec.SuspiciousWords = []string{"DROP TABLE"}
	provider, err := config.NewProvider(spec)
	require.NoError(t, err)
	return firewall.New(provider)
}

func packets(n int) []types.Packet {
	out := make([]types.Packet, n)
	for i := range out {
		payload := "hello"
		if i%5 == 0 {
			payload = "1; DROP TABLE users"
		}
		out[i] = types.Packet{
			ID:       fmt.Sprintf("pkt-%d", i),
			SrcIP:    "10.0.0.5",
			DstIP:    "10.0.0.1",
			SrcPort:  40000,
			DstPort:  8080,
			Protocol: types.ProtocolTCP,
			Payload:  payload,
			Size:     200,
		}
	}
	return out
}

func testConfig(batch int) *config.Config {
	cfg := config.DefaultConfig()
	cfg.Pipeline.BatchSize = batch
	cfg.Pipeline.BufferSize = 8
	cfg.Pipeline.FlushInterval = time.Hour
	return cfg
}

func waitDone(t *testing.T, p pipeline.Pipeline) {
	t.Helper()
	select {
	case <-p.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("pipeline did not drain its source")
	}
}

func TestPipelineRecordsOneBlockPerBatch(t *testing.T) {
	fw := newFirewall(t)
	l := ledger.New()
	mem := sink.NewMemorySink()

	p := pipeline.NewPipeline(fw, l)
	require.NoError(t, p.SetConfig(testConfig(10)))
	p.SetSource(source.NewSliceSource(packets(25), 8))
	p.SetSink(mem)

	require.NoError(t, p.Start(context.Background()))
	waitDone(t, p)
	require.NoError(t, p.Stop())
	assert.Equal(t, "stopped", p.Status())

	// 10 + 10 + 5，再加创世区块
	assert.Equal(t, 4, l.Size())
	assert.True(t, l.IsChainValid())

	results := mem.Results()
	require.Len(t, results, 25)
	for i, r := range results {
		assert.Equal(t, fmt.Sprintf("pkt-%d", i), r.Packet.ID)
	}
	assert.Equal(t, types.ActionDrop, results[0].Action)
	assert.Equal(t, types.ActionAccept, results[1].Action)

	recorded := 0
	for _, b := range l.Chain()[1:] {
		recorded += len(b.Decisions)
	}
	assert.Equal(t, 25, recorded)

	m := p.GetMetrics()[types.StageDetection.String()]
	require.NotNil(t, m)
	assert.Equal(t, uint64(25), m.ProcessedPackets)
	assert.Equal(t, uint64(5), m.DroppedPackets)
	assert.Equal(t, uint64(3), m.BlocksSealed)

	snap := fw.Statistics().Snapshot()
	assert.Equal(t, uint64(25), snap.Total)
	assert.Equal(t, uint64(5), snap.Dropped)
}

type blockingSource struct {
	out chan *types.Packet
}

func (s *blockingSource) Start(ctx context.Context) error { return nil }

func (s *blockingSource) Output() <-chan *types.Packet { return s.out }

func TestStopFlushesPendingBatch(t *testing.T) {
	l := ledger.New()
	mem := sink.NewMemorySink()
	src := &blockingSource{out: make(chan *types.Packet, 3)}
	for _, pkt := range packets(3) {
		pkt := pkt
		src.out <- &pkt
	}

	p := pipeline.NewPipeline(newFirewall(t), l)
	require.NoError(t, p.SetConfig(testConfig(100)))
	p.SetSource(src)
	p.SetSink(mem)
	require.NoError(t, p.Start(context.Background()))

	require.Eventually(t, func() bool { return len(src.out) == 0 }, 5*time.Second, 10*time.Millisecond)
	require.NoError(t, p.Stop())

	assert.Equal(t, 2, l.Size())
	assert.Len(t, mem.Results(), 3)
}

func TestStartValidation(t *testing.T) {
	p := pipeline.NewPipeline(newFirewall(t), ledger.New())
	err := p.Start(context.Background())
	var perr *types.PipelineError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, "start", perr.Stage)

	p.SetSource(source.NewSliceSource(nil, 1))
	p.SetSink(sink.NewMemorySink())
	require.NoError(t, p.Start(context.Background()))
	defer p.Stop()

	assert.Error(t, p.Start(context.Background()), "second start must fail")
	assert.Error(t, p.SetConfig(config.DefaultConfig()), "config is frozen while running")
}

func TestSetConfigRejectsInvalid(t *testing.T) {
	p := pipeline.NewPipeline(newFirewall(t), ledger.New())
	cfg := config.DefaultConfig()
	cfg.Firewall.BlockThreshold = -1
	assert.ErrorIs(t, p.SetConfig(cfg), types.ErrInvalidConfig)
}

func TestStoppedFirewallSealsNothing(t *testing.T) {
	fw := newFirewall(t)
	fw.Stop()
	l := ledger.New()
	mem := sink.NewMemorySink()

	p := pipeline.NewPipeline(fw, l)
	require.NoError(t, p.SetConfig(testConfig(4)))
	p.SetSource(source.NewSliceSource(packets(8), 8))
	p.SetSink(mem)
	require.NoError(t, p.Start(context.Background()))
	waitDone(t, p)
	require.NoError(t, p.Stop())

	assert.Equal(t, 1, l.Size())
	assert.Empty(t, mem.Results())
}
