package ledger

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// FailureKind 校验失败的类别
type FailureKind string

const (
	FailureGenesis   FailureKind = "genesis"   // 创世区块不合法或链为空
	FailureIndex     FailureKind = "index"     // 索引与位置不符
	FailureLink      FailureKind = "link"      // previous_hash 与前一区块哈希不符
	FailureHash      FailureKind = "hash"      // 存储的哈希与内容不符
	FailureTimestamp FailureKind = "timestamp" // 时间戳早于前一区块
)

// Failure 单个区块的校验失败
type Failure struct {
	Index    int         `json:"index"`
	Kind     FailureKind `json:"kind"`
	Expected string      `json:"expected"`
	Actual   string      `json:"actual"`
}

func (f Failure) String() string {
	return fmt.Sprintf("block #%d %s mismatch: expected %s, got %s", f.Index, f.Kind, f.Expected, f.Actual)
}

// VerificationReport 校验结果，列出全部失败而不是在第一个失败处停止
type VerificationReport struct {
	Valid    bool      `json:"valid"`
	Blocks   int       `json:"blocks"`
	Failures []Failure `json:"failures,omitempty"`
}

// FailedBlocks 返回失败区块的索引，去重并保持顺序
func (r VerificationReport) FailedBlocks() []int {
	var out []int
	seen := make(map[int]struct{})
	for _, f := range r.Failures {
		if _, ok := seen[f.Index]; ok {
			continue
		}
		seen[f.Index] = struct{}{}
		out = append(out, f.Index)
	}
	return out
}

func (r VerificationReport) String() string {
	if r.Valid {
		return fmt.Sprintf("chain valid (%d blocks)", r.Blocks)
	}
	lines := make([]string, 0, len(r.Failures)+1)
	lines = append(lines, fmt.Sprintf("chain invalid (%d blocks, %d failures)", r.Blocks, len(r.Failures)))
	for _, f := range r.Failures {
		lines = append(lines, "  "+f.String())
	}
	return strings.Join(lines, "\n")
}

// VerifyChain 校验区块序列，只读取不修改
func VerifyChain(blocks []Block) VerificationReport {
	report := VerificationReport{Blocks: len(blocks)}
	fail := func(index int, kind FailureKind, expected, actual string) {
		report.Failures = append(report.Failures, Failure{
			Index:    index,
			Kind:     kind,
			Expected: expected,
			Actual:   actual,
		})
	}

	if len(blocks) == 0 {
		fail(0, FailureGenesis, "genesis block", "empty chain")
		return report
	}

	genesis := &blocks[0]
	if genesis.PreviousHash != "" {
		fail(0, FailureGenesis, "empty previous hash", strconv.Quote(genesis.PreviousHash))
	}
	if len(genesis.Decisions) != 0 {
		fail(0, FailureGenesis, "no decisions", fmt.Sprintf("%d decisions", len(genesis.Decisions)))
	}

	for i := range blocks {
		b := &blocks[i]
		if b.Index != i {
			fail(i, FailureIndex, strconv.Itoa(i), strconv.Itoa(b.Index))
		}

		hash, err := ComputeHash(b)
		if err != nil {
			fail(i, FailureHash, "computable content", err.Error())
		} else if hash != b.Hash {
			fail(i, FailureHash, hash, b.Hash)
		}

		if i == 0 {
			continue
		}
		prev := &blocks[i-1]
		if b.PreviousHash != prev.Hash {
			fail(i, FailureLink, prev.Hash, b.PreviousHash)
		}
		if b.Timestamp.Before(prev.Timestamp) {
			fail(i, FailureTimestamp,
				">= "+prev.Timestamp.Format(time.RFC3339Nano),
				b.Timestamp.Format(time.RFC3339Nano))
		}
	}

	report.Valid = len(report.Failures) == 0
	return report
}
