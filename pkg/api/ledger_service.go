package api

import (
	"fmt"
	"strconv"

	"github.com/haolipeng/firewall_ledger/pkg/ledger"
	"github.com/labstack/echo/v4"
)

const defaultBlockPage = 50

// LedgerService 账本查询和校验接口，只读
type LedgerService struct {
	ledger *ledger.Ledger
}

func NewLedgerService(l *ledger.Ledger) *LedgerService {
	return &LedgerService{ledger: l}
}

// BlockPage 分页返回的区块
type BlockPage struct {
	Total  int            `json:"total"`
	Offset int            `json:"offset"`
	Blocks []ledger.Block `json:"blocks"`
}

// GetBlocks 按索引升序分页返回区块
func (ls *LedgerService) GetBlocks(c echo.Context) error {
	offset, err := intQuery(c, "offset", 0)
	if err != nil {
		return HandleError(c, err)
	}
	limit, err := intQuery(c, "limit", defaultBlockPage)
	if err != nil {
		return HandleError(c, err)
	}

	chain := ls.ledger.Chain()
	page := BlockPage{Total: len(chain), Offset: offset, Blocks: []ledger.Block{}}
	if offset < len(chain) {
		end := len(chain)
		if limit > 0 && offset+limit < end {
			end = offset + limit
		}
		page.Blocks = chain[offset:end]
	}
	return respondOK(c, "获取区块成功", page)
}

// GetBlock 按索引获取区块
func (ls *LedgerService) GetBlock(c echo.Context) error {
	raw := c.Param("index")
	index, err := strconv.Atoi(raw)
	if err != nil {
		return HandleError(c, NewBadRequestError(fmt.Errorf("区块索引无效: %q", raw)))
	}
	block, exists := ls.ledger.BlockAt(index)
	if !exists {
		return HandleError(c, NewBlockNotFoundError(index))
	}
	return respondOK(c, "获取区块成功", block)
}

// GetLastBlock 获取链尾区块
func (ls *LedgerService) GetLastBlock(c echo.Context) error {
	return respondOK(c, "获取区块成功", ls.ledger.LastBlock())
}

// Verify 校验整条链，返回每个失败的区块
func (ls *LedgerService) Verify(c echo.Context) error {
	report := ls.ledger.Verify()
	return respondOK(c, report.String(), report)
}
