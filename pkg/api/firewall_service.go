package api

import (
	"fmt"
	"strconv"

	"github.com/haolipeng/firewall_ledger/pkg/config"
	"github.com/haolipeng/firewall_ledger/pkg/firewall"
	"github.com/haolipeng/firewall_ledger/pkg/ledger"
	"github.com/haolipeng/firewall_ledger/pkg/metrics"
	"github.com/haolipeng/firewall_ledger/pkg/types"
	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"
)

// FirewallService 防火墙运行状态、策略配置、报文评估和统计接口
type FirewallService struct {
	firewall *firewall.Firewall
	ledger   *ledger.Ledger
}

func NewFirewallService(fw *firewall.Firewall, l *ledger.Ledger) *FirewallService {
	return &FirewallService{firewall: fw, ledger: l}
}

type wordRequest struct {
	Word string `json:"word"`
}

type addressRequest struct {
	Address string `json:"address"`
}

type portRequest struct {
	Port int `json:"port"`
}

type thresholdRequest struct {
	BlockThreshold int `json:"block_threshold"`
	AlertThreshold int `json:"alert_threshold"`
}

type sizeRangeRequest struct {
	MinPacketSize int `json:"min_packet_size"`
	MaxPacketSize int `json:"max_packet_size"`
}

type securityLevelRequest struct {
	Level string `json:"level"`
}

// EvaluateResponse 评估结果及其所在区块
type EvaluateResponse struct {
	Decisions  []*types.DecisionResult `json:"decisions"`
	BlockIndex int                     `json:"block_index"`
	BlockHash  string                  `json:"block_hash"`
}

// StatisticsResponse 统计计数和文本报表
type StatisticsResponse struct {
	metrics.StatsSnapshot
	Report string `json:"report"`
}

// GetStatus 获取防火墙运行状态
func (fs *FirewallService) GetStatus(c echo.Context) error {
	return respondOK(c, "获取状态成功", map[string]interface{}{
		"running":     fs.firewall.IsRunning(),
		"ledger_size": fs.ledger.Size(),
	})
}

// Start 启动防火墙
func (fs *FirewallService) Start(c echo.Context) error {
	fs.firewall.Start()
	return fs.GetStatus(c)
}

// Stop 停止防火墙，停止后拒绝新报文
func (fs *FirewallService) Stop(c echo.Context) error {
	fs.firewall.Stop()
	return fs.GetStatus(c)
}

// GetConfig 获取当前策略
func (fs *FirewallService) GetConfig(c echo.Context) error {
	snap := fs.firewall.Provider().Snapshot()
	return respondOK(c, "获取配置成功", map[string]interface{}{
		"policy":   snap.Spec(),
		"warnings": snap.Warnings(),
	})
}

// ResetConfig 恢复默认策略
func (fs *FirewallService) ResetConfig(c echo.Context) error {
	return fs.apply(c, "reset", fs.firewall.Provider().Reset())
}

func (fs *FirewallService) AddSuspiciousWord(c echo.Context) error {
	var req wordRequest
	if err := c.Bind(&req); err != nil {
		return HandleError(c, NewBadRequestError(err))
	}
	return fs.apply(c, "add_word", fs.firewall.Provider().AddSuspiciousWord(req.Word))
}

func (fs *FirewallService) RemoveSuspiciousWord(c echo.Context) error {
	var req wordRequest
	if err := c.Bind(&req); err != nil {
		return HandleError(c, NewBadRequestError(err))
	}
	return fs.apply(c, "remove_word", fs.firewall.Provider().RemoveSuspiciousWord(req.Word))
}

func (fs *FirewallService) AddBlacklistedAddress(c echo.Context) error {
	var req addressRequest
	if err := c.Bind(&req); err != nil {
		return HandleError(c, NewBadRequestError(err))
	}
	return fs.apply(c, "add_address", fs.firewall.Provider().AddBlacklistedAddress(req.Address))
}

func (fs *FirewallService) RemoveBlacklistedAddress(c echo.Context) error {
	var req addressRequest
	if err := c.Bind(&req); err != nil {
		return HandleError(c, NewBadRequestError(err))
	}
	return fs.apply(c, "remove_address", fs.firewall.Provider().RemoveBlacklistedAddress(req.Address))
}

func (fs *FirewallService) AddMonitoredPort(c echo.Context) error {
	var req portRequest
	if err := c.Bind(&req); err != nil {
		return HandleError(c, NewBadRequestError(err))
	}
	return fs.apply(c, "add_port", fs.firewall.Provider().AddMonitoredPort(req.Port))
}

func (fs *FirewallService) RemoveMonitoredPort(c echo.Context) error {
	var req portRequest
	if err := c.Bind(&req); err != nil {
		return HandleError(c, NewBadRequestError(err))
	}
	return fs.apply(c, "remove_port", fs.firewall.Provider().RemoveMonitoredPort(req.Port))
}

func (fs *FirewallService) SetThresholds(c echo.Context) error {
	var req thresholdRequest
	if err := c.Bind(&req); err != nil {
		return HandleError(c, NewBadRequestError(err))
	}
	return fs.apply(c, "set_thresholds", fs.firewall.Provider().SetThresholds(req.BlockThreshold, req.AlertThreshold))
}

func (fs *FirewallService) SetPacketSizeRange(c echo.Context) error {
	var req sizeRangeRequest
	if err := c.Bind(&req); err != nil {
		return HandleError(c, NewBadRequestError(err))
	}
	return fs.apply(c, "set_size_range", fs.firewall.Provider().SetPacketSizeRange(req.MinPacketSize, req.MaxPacketSize))
}

func (fs *FirewallService) SetSecurityLevel(c echo.Context) error {
	var req securityLevelRequest
	if err := c.Bind(&req); err != nil {
		return HandleError(c, NewBadRequestError(err))
	}
	level := config.SecurityLevel(req.Level)
	return fs.apply(c, "set_security_level", fs.firewall.Provider().ApplySecurityLevel(level))
}

// apply 配置修改失败时返回错误，成功时返回新策略
func (fs *FirewallService) apply(c echo.Context, operation string, err error) error {
	if err != nil {
		return HandleError(c, err)
	}
	logrus.WithField("operation", operation).Info("策略已更新")
	return fs.GetConfig(c)
}

// Evaluate 评估单个报文，决策写入账本新区块
func (fs *FirewallService) Evaluate(c echo.Context) error {
	var packet types.Packet
	if err := c.Bind(&packet); err != nil {
		return HandleError(c, NewBadRequestError(err))
	}
	return fs.evaluate(c, []types.Packet{packet})
}

// EvaluateBatch 评估一批报文，所有决策写入同一个区块
func (fs *FirewallService) EvaluateBatch(c echo.Context) error {
	var packets []types.Packet
	if err := c.Bind(&packets); err != nil {
		return HandleError(c, NewBadRequestError(err))
	}
	if len(packets) == 0 {
		return HandleError(c, NewBadRequestError(fmt.Errorf("报文列表不能为空")))
	}
	return fs.evaluate(c, packets)
}

func (fs *FirewallService) evaluate(c echo.Context, packets []types.Packet) error {
	results, err := fs.firewall.ProcessPackets(packets)
	if err != nil {
		return HandleError(c, err)
	}

	var block ledger.Block
	if len(results) == 1 {
		block, err = fs.ledger.AddDecision(results[0])
	} else {
		block, err = fs.ledger.AddBlock(results)
	}
	if err != nil {
		return HandleError(c, err)
	}

	return respondOK(c, "评估完成", EvaluateResponse{
		Decisions:  results,
		BlockIndex: block.Index,
		BlockHash:  block.Hash,
	})
}

// GetStatistics 获取决策统计
func (fs *FirewallService) GetStatistics(c echo.Context) error {
	snap := fs.firewall.Statistics().Snapshot()
	return respondOK(c, "获取统计成功", StatisticsResponse{StatsSnapshot: snap, Report: snap.Report()})
}

// ResetStatistics 清零统计
func (fs *FirewallService) ResetStatistics(c echo.Context) error {
	fs.firewall.Statistics().Reset()
	return fs.GetStatistics(c)
}

// GetHistory 获取最近的决策，limit 缺省时返回全部
func (fs *FirewallService) GetHistory(c echo.Context) error {
	limit, err := intQuery(c, "limit", 0)
	if err != nil {
		return HandleError(c, err)
	}
	return respondOK(c, "获取历史成功", fs.firewall.History(limit))
}

// ClearHistory 清空历史记录
func (fs *FirewallService) ClearHistory(c echo.Context) error {
	fs.firewall.ClearHistory()
	return respondOK(c, "历史已清空", nil)
}

func intQuery(c echo.Context, name string, def int) (int, error) {
	raw := c.QueryParam(name)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return 0, NewBadRequestError(fmt.Errorf("参数 %s 无效: %q", name, raw))
	}
	return v, nil
}
