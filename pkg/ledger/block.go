package ledger

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"

	"github.com/haolipeng/firewall_ledger/pkg/types"
)

// Block 账本区块，封存后内容不再变化
type Block struct {
	Index        int                    `json:"index" yaml:"index"`
	Timestamp    time.Time              `json:"timestamp" yaml:"timestamp"`
	PreviousHash string                 `json:"previous_hash" yaml:"previous_hash"` // 创世区块为空
	Hash         string                 `json:"hash" yaml:"hash"`
	Decisions    []types.DecisionResult `json:"decisions" yaml:"decisions"`
}

// hashInput 参与哈希计算的字段，时间戳使用纳秒整数避免时区和格式差异
// 二进制 payload 由 Packet.MarshalJSON 编码为 base64，哈希输入与原始字节一一对应
type hashInput struct {
	Index        int                    `json:"index"`
	PreviousHash string                 `json:"previous_hash"`
	Timestamp    int64                  `json:"timestamp"`
	Decisions    []types.DecisionResult `json:"decisions"`
}

// ComputeHash 计算区块哈希: SHA-256(JSON{index, previous_hash, timestamp, decisions})
func ComputeHash(b *Block) (string, error) {
	decisions := b.Decisions
	if decisions == nil {
		decisions = []types.DecisionResult{}
	}
	data, err := json.Marshal(hashInput{
		Index:        b.Index,
		PreviousHash: b.PreviousHash,
		Timestamp:    b.Timestamp.UnixNano(),
		Decisions:    decisions,
	})
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// IsGenesis 是否为创世区块
func (b *Block) IsGenesis() bool {
	return b.Index == 0
}

// Clone 深拷贝区块
func (b *Block) Clone() Block {
	out := *b
	if b.Decisions != nil {
		out.Decisions = make([]types.DecisionResult, len(b.Decisions))
		for i := range b.Decisions {
			out.Decisions[i] = b.Decisions[i].Clone()
		}
	}
	return out
}

func cloneBlocks(blocks []Block) []Block {
	out := make([]Block, len(blocks))
	for i := range blocks {
		out[i] = blocks[i].Clone()
	}
	return out
}
