package api

import (
	"context"
	"fmt"

	"github.com/haolipeng/firewall_ledger/pkg/config"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Server HTTP 服务器
type Server struct {
	echo *echo.Echo
	addr string
}

// NewServer 创建一个新的 HTTP 服务器
func NewServer(cfg *config.Config) *Server {
	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.RequestID())
	e.Use(middleware.Recover())

	// 构建地址
	addr := fmt.Sprintf("%s:%s", cfg.API.Host, cfg.API.Port)

	return &Server{
		echo: e,
		addr: addr,
	}
}

// Start 启动 HTTP 服务器
func (s *Server) Start() error {
	return s.echo.Start(s.addr)
}

// Stop 停止 HTTP 服务器
func (s *Server) Stop(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

// GetEcho 获取Echo实例
func (s *Server) GetEcho() *echo.Echo {
	return s.echo
}

// RegisterRuleService 注册规则服务
func (s *Server) RegisterRuleService(rs *RuleService) {
	s.echo.GET("/ruleEngine/configs", rs.GetRuleConfigs)              // 获取所有规则配置
	s.echo.GET("/ruleEngine/configs/:rule_id", rs.GetRuleConfig)      // 获取指定规则配置
	s.echo.POST("/ruleEngine/configs/:rule_id", rs.CreateRule)        // 创建规则
	s.echo.POST("/ruleEngine/configs/:rule_id/start", rs.StartRule)   // 启动规则
	s.echo.POST("/ruleEngine/configs/:rule_id/stop", rs.StopRule)     // 停止规则
	s.echo.PUT("/ruleEngine/configs/:rule_id", rs.UpdateRule)         // 更新规则
	s.echo.POST("/ruleEngine/configs/:rule_id/delete", rs.DeleteRule) // 删除规则
	s.echo.POST("/ruleEngine/validate", rs.ValidateRule)              // 验证规则有效性
}

// RegisterFirewallService 注册防火墙服务
func (s *Server) RegisterFirewallService(fs *FirewallService) {
	g := s.echo.Group("/firewall")
	g.GET("/status", fs.GetStatus)
	g.POST("/start", fs.Start)
	g.POST("/stop", fs.Stop)

	g.GET("/config", fs.GetConfig)
	g.POST("/config/reset", fs.ResetConfig)
	g.POST("/config/words", fs.AddSuspiciousWord)
	g.POST("/config/words/delete", fs.RemoveSuspiciousWord)
	g.POST("/config/addresses", fs.AddBlacklistedAddress)
	g.POST("/config/addresses/delete", fs.RemoveBlacklistedAddress)
	g.POST("/config/ports", fs.AddMonitoredPort)
	g.POST("/config/ports/delete", fs.RemoveMonitoredPort)
	g.PUT("/config/thresholds", fs.SetThresholds)
	g.PUT("/config/size-range", fs.SetPacketSizeRange)
	g.PUT("/config/security-level", fs.SetSecurityLevel)

	g.POST("/evaluate", fs.Evaluate)            // 评估单个报文
	g.POST("/evaluate/batch", fs.EvaluateBatch) // 批量评估，写入同一区块
	g.GET("/stats", fs.GetStatistics)
	g.POST("/stats/reset", fs.ResetStatistics)
	g.GET("/history", fs.GetHistory)
	g.POST("/history/clear", fs.ClearHistory)
}

// RegisterLedgerService 注册账本服务
func (s *Server) RegisterLedgerService(ls *LedgerService) {
	g := s.echo.Group("/ledger")
	g.GET("/blocks", ls.GetBlocks)
	g.GET("/blocks/last", ls.GetLastBlock)
	g.GET("/blocks/:index", ls.GetBlock)
	g.GET("/verify", ls.Verify)
}

// RegisterMetrics 暴露 Prometheus 指标
func (s *Server) RegisterMetrics(reg *prometheus.Registry) {
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})))
}

// RegisterDecisionHub 注册决策推送
func (s *Server) RegisterDecisionHub(h *DecisionHub) {
	s.echo.GET("/ws/decisions", h.HandleWS)
}
