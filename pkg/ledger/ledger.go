package ledger

import (
	"sync"
	"time"

	"github.com/haolipeng/firewall_ledger/pkg/types"
	"github.com/jonboulle/clockwork"
	"github.com/sirupsen/logrus"
)

// Ledger 只追加的哈希链账本，单写者多读者
type Ledger struct {
	mu    sync.RWMutex
	chain []Block
	clock clockwork.Clock
}

type Option func(*Ledger)

// WithClock 指定封存区块使用的时钟，测试中使用 clockwork.NewFakeClock
func WithClock(clock clockwork.Clock) Option {
	return func(l *Ledger) {
		if clock != nil {
			l.clock = clock
		}
	}
}

// New 创建账本并立即封存创世区块，因此 Size() 等于追加次数加一
func New(opts ...Option) *Ledger {
	l := newLedger(opts...)
	genesis := Block{
		Index:     0,
		Timestamp: l.clock.Now().UTC(),
		Decisions: []types.DecisionResult{},
	}
	// 空决策列表的哈希不会失败
	genesis.Hash, _ = ComputeHash(&genesis)
	l.chain = []Block{genesis}

	logrus.WithField("hash", genesis.Hash).Debug("ledger genesis block sealed")
	return l
}

func newLedger(opts ...Option) *Ledger {
	l := &Ledger{clock: clockwork.NewRealClock()}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// AddDecision 将单个决策封存为一个区块
func (l *Ledger) AddDecision(decision *types.DecisionResult) (Block, error) {
	if decision == nil {
		return l.LastBlock(), nil
	}
	return l.AddBlock([]*types.DecisionResult{decision})
}

// AddBlock 将一批决策封存为一个区块，空批次不产生区块，直接返回链尾
func (l *Ledger) AddBlock(decisions []*types.DecisionResult) (Block, error) {
	batch := make([]types.DecisionResult, 0, len(decisions))
	for _, d := range decisions {
		if d != nil {
			batch = append(batch, d.Clone())
		}
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	tail := &l.chain[len(l.chain)-1]
	if len(batch) == 0 {
		logrus.WithField("index", tail.Index).Debug("empty decision batch, no block sealed")
		return tail.Clone(), nil
	}

	block := Block{
		Index:        tail.Index + 1,
		Timestamp:    l.sealTime(tail.Timestamp),
		PreviousHash: tail.Hash,
		Decisions:    batch,
	}
	hash, err := ComputeHash(&block)
	if err != nil {
		return Block{}, types.NewInvalidBlockError(block.Index, "hash computation failed: %v", err)
	}
	block.Hash = hash
	l.chain = append(l.chain, block)

	logrus.WithFields(logrus.Fields{
		"index":     block.Index,
		"decisions": len(block.Decisions),
		"hash":      block.Hash,
	}).Debug("ledger block sealed")
	return block.Clone(), nil
}

// AppendBlock 追加外部构造的区块，任何不一致都返回 InvalidBlockError 且不修改链
func (l *Ledger) AppendBlock(block Block) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	tail := &l.chain[len(l.chain)-1]
	if err := checkSuccessor(tail, &block); err != nil {
		logrus.WithFields(logrus.Fields{
			"index": block.Index,
			"error": err.Error(),
		}).Warn("ledger rejected block")
		return err
	}

	l.chain = append(l.chain, block.Clone())
	return nil
}

func checkSuccessor(tail *Block, block *Block) error {
	if block.Index != tail.Index+1 {
		return types.NewInvalidBlockError(block.Index, "expected index %d", tail.Index+1)
	}
	if block.PreviousHash != tail.Hash {
		return types.NewInvalidBlockError(block.Index, "previous hash %q does not match chain tail %q",
			block.PreviousHash, tail.Hash)
	}
	if block.Timestamp.Before(tail.Timestamp) {
		return types.NewInvalidBlockError(block.Index, "timestamp %s precedes previous block %s",
			block.Timestamp.Format(time.RFC3339Nano), tail.Timestamp.Format(time.RFC3339Nano))
	}
	if len(block.Decisions) == 0 {
		return types.NewInvalidBlockError(block.Index, "block has no decisions")
	}
	hash, err := ComputeHash(block)
	if err != nil {
		return types.NewInvalidBlockError(block.Index, "hash computation failed: %v", err)
	}
	if hash != block.Hash {
		return types.NewInvalidBlockError(block.Index, "hash %q does not match content hash %q", block.Hash, hash)
	}
	return nil
}

// sealTime 时间戳不早于前一个区块
func (l *Ledger) sealTime(prev time.Time) time.Time {
	now := l.clock.Now().UTC()
	if now.Before(prev) {
		return prev
	}
	return now
}

// LastBlock 返回链尾区块的副本
func (l *Ledger) LastBlock() Block {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.chain[len(l.chain)-1].Clone()
}

// BlockAt 按索引返回区块副本
func (l *Ledger) BlockAt(index int) (Block, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if index < 0 || index >= len(l.chain) {
		return Block{}, false
	}
	return l.chain[index].Clone(), true
}

// Chain 返回整条链的深拷贝
func (l *Ledger) Chain() []Block {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return cloneBlocks(l.chain)
}

// Size 区块数量，包含创世区块
func (l *Ledger) Size() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.chain)
}

// Verify 校验当前链
func (l *Ledger) Verify() VerificationReport {
	return VerifyChain(l.Chain())
}

func (l *Ledger) IsChainValid() bool {
	return l.Verify().Valid
}

// Rebuild 用已记录的决策重新封存一条新链，用于修复被篡改的链，原链不变
func Rebuild(blocks []Block, opts ...Option) *Ledger {
	l := New(opts...)
	for i := range blocks {
		if blocks[i].IsGenesis() || len(blocks[i].Decisions) == 0 {
			continue
		}
		batch := make([]*types.DecisionResult, len(blocks[i].Decisions))
		for j := range blocks[i].Decisions {
			batch[j] = &blocks[i].Decisions[j]
		}
		if _, err := l.AddBlock(batch); err != nil {
			logrus.WithFields(logrus.Fields{
				"index": blocks[i].Index,
				"error": err.Error(),
			}).Warn("skip block during rebuild")
		}
	}
	return l
}

// Load 从导出的区块恢复账本，链校验失败时返回 InvalidBlockError
func Load(blocks []Block, opts ...Option) (*Ledger, error) {
	report := VerifyChain(blocks)
	if !report.Valid {
		first := report.Failures[0]
		return nil, types.NewInvalidBlockError(first.Index, "chain does not verify: %s", first)
	}

	l := newLedger(opts...)
	l.chain = cloneBlocks(blocks)
	return l, nil
}
