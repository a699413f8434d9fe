package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"sync"

	"github.com/haolipeng/firewall_ledger/pkg/config"
	"github.com/haolipeng/firewall_ledger/pkg/ruleEngine"
	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

const ruleFileMode = 0o644

// RuleService 表达式规则服务，规则文件保存在规则目录，生效规则保存在策略中
type RuleService struct {
	mu         sync.Mutex // 串行化规则文件的修改
	ruleLoader *ruleEngine.RuleLoader
	provider   *config.Provider
	ruleDir    string
}

// NewRuleService 创建规则服务，并把规则目录中的规则加入策略
func NewRuleService(cfg *config.Config, provider *config.Provider) *RuleService {
	// 创建规则加载器
	loader := ruleEngine.NewRuleLoader()

	// 从本地规则目录加载规则
	ruleDir := cfg.RuleEngine.RuleDirectory
	if err := os.MkdirAll(ruleDir, 0o755); err != nil {
		logrus.Errorf("创建规则目录失败: %v", err)
	}
	if err := loader.LoadRulesFromDirectory(ruleDir); err != nil {
		logrus.Errorf("加载规则目录失败: %v", err)
	}

	for _, rule := range loader.SortedRules() {
		if err := provider.UpsertRule(rule); err != nil {
			logrus.WithFields(logrus.Fields{
				"rule_id": rule.RuleID,
				"error":   err.Error(),
			}).Warn("规则无法加入策略")
			loader.Forget(rule.RuleID)
		}
	}

	return &RuleService{
		ruleLoader: loader,
		provider:   provider,
		ruleDir:    ruleDir,
	}
}

// GetRuleConfigs 获取所有规则配置
func (rs *RuleService) GetRuleConfigs(c echo.Context) error {
	// 使用查询参数过滤规则
	tag := c.QueryParam("tag")     //指定标签
	state := c.QueryParam("state") //指定状态

	allRules := rs.ruleLoader.GetAllRules()
	if tag == "" && state == "" {
		logrus.WithFields(logrus.Fields{
			"rule_count": len(allRules),
			"operation":  "get_all_rules",
		}).Debug("获取所有规则")
		return respondOK(c, "获取规则配置成功", allRules)
	}

	filteredRules := make(map[string]ruleEngine.Rule)
	for id, rule := range allRules {
		if tag != "" && rule.RuleTag != tag {
			continue
		}
		if state != "" && rule.State != state {
			continue
		}
		filteredRules[id] = rule
	}

	logrus.WithFields(logrus.Fields{
		"total_rules":    len(allRules),
		"filtered_rules": len(filteredRules),
		"tag":            tag,
		"state":          state,
		"operation":      "filter_rules",
	}).Debug("过滤规则")

	return respondOK(c, "获取规则配置成功", filteredRules)
}

// GetRuleConfig 获取特定规则配置
func (rs *RuleService) GetRuleConfig(c echo.Context) error {
	ruleID := c.Param("rule_id")
	if ruleID == "" {
		return HandleError(c, NewRuleIDEmptyError())
	}

	rule, exists := rs.ruleLoader.GetRule(ruleID)
	if !exists {
		return HandleError(c, NewRuleNotFoundError(ruleID))
	}
	return respondOK(c, "获取规则配置成功", rule)
}

// CreateRule 创建规则
func (rs *RuleService) CreateRule(c echo.Context) error {
	ruleID := c.Param("rule_id")
	if ruleID == "" {
		return HandleError(c, NewRuleIDEmptyError())
	}

	rs.mu.Lock()
	defer rs.mu.Unlock()

	// 检查规则是否已存在
	if _, exists := rs.ruleLoader.GetRule(ruleID); exists {
		return HandleError(c, NewRuleAlreadyExistsError(ruleID))
	}

	rule, err := rs.bindRule(c, ruleID)
	if err != nil {
		return HandleError(c, err)
	}

	filePath := filepath.Join(rs.ruleDir, ruleID+".json")
	if err := rs.saveRule(rule, filePath); err != nil {
		return HandleError(c, err)
	}

	logrus.WithFields(logrus.Fields{
		"rule_id":   ruleID,
		"operation": "create",
	}).Info("规则创建成功")

	return c.JSON(http.StatusCreated, Response{
		Code:    http.StatusCreated,
		Message: "创建规则成功",
		Data:    rule,
	})
}

// UpdateRule 更新规则
func (rs *RuleService) UpdateRule(c echo.Context) error {
	ruleID := c.Param("rule_id")
	if ruleID == "" {
		return HandleError(c, NewRuleIDEmptyError())
	}

	rs.mu.Lock()
	defer rs.mu.Unlock()

	filePath, exists := rs.ruleLoader.RulePath(ruleID)
	if !exists {
		return HandleError(c, NewRuleNotFoundError(ruleID))
	}

	rule, err := rs.bindRule(c, ruleID)
	if err != nil {
		return HandleError(c, err)
	}

	if err := rs.saveRule(rule, filePath); err != nil {
		return HandleError(c, err)
	}

	logrus.WithFields(logrus.Fields{
		"rule_id":   ruleID,
		"operation": "update",
	}).Info("规则更新成功")

	return respondOK(c, "更新规则成功", rule)
}

// DeleteRule 删除规则
func (rs *RuleService) DeleteRule(c echo.Context) error {
	ruleID := c.Param("rule_id")

	rs.mu.Lock()
	defer rs.mu.Unlock()

	filePath, exists := rs.ruleLoader.RulePath(ruleID)
	if !exists {
		return HandleError(c, NewRuleNotFoundError(ruleID))
	}

	if err := os.Remove(filePath); err != nil && !os.IsNotExist(err) {
		logrus.WithFields(logrus.Fields{
			"rule_id": ruleID,
			"path":    filePath,
			"error":   err.Error(),
		}).Error("删除规则文件失败")
		return HandleError(c, NewInternalServerError(fmt.Errorf("删除规则文件失败: %w", err)))
	}
	rs.ruleLoader.Forget(ruleID)

	if err := rs.provider.RemoveRule(ruleID); err != nil {
		logrus.WithFields(logrus.Fields{
			"rule_id": ruleID,
			"error":   err.Error(),
		}).Warn("从策略中移除规则失败")
	}

	return respondOK(c, "删除规则成功", nil)
}

// StartRule 启动规则
func (rs *RuleService) StartRule(c echo.Context) error {
	return rs.setState(c, ruleEngine.StateEnable)
}

// StopRule 停止规则
func (rs *RuleService) StopRule(c echo.Context) error {
	return rs.setState(c, ruleEngine.StateDisable)
}

func (rs *RuleService) setState(c echo.Context, state string) error {
	ruleID := c.Param("rule_id")

	rs.mu.Lock()
	defer rs.mu.Unlock()

	rule, exists := rs.ruleLoader.GetRule(ruleID)
	if !exists {
		return HandleError(c, NewRuleNotFoundError(ruleID))
	}

	// 状态未变化时直接返回
	if rule.State == state {
		return respondOK(c, fmt.Sprintf("规则已处于 %s 状态", state), rule)
	}

	rule.State = state
	filePath, _ := rs.ruleLoader.RulePath(ruleID)
	if err := rs.saveRule(rule, filePath); err != nil {
		return HandleError(c, err)
	}

	logrus.WithFields(logrus.Fields{
		"rule_id":   ruleID,
		"operation": state,
	}).Info("规则状态变更")

	return respondOK(c, "规则状态更新成功", rule)
}

// ValidateRule 验证规则有效性，不保存
func (rs *RuleService) ValidateRule(c echo.Context) error {
	var rule ruleEngine.Rule
	if err := c.Bind(&rule); err != nil {
		return HandleError(c, NewInvalidRuleFormatError(err))
	}
	if err := rs.provider.Compiler().Validate(&rule); err != nil {
		return HandleError(c, NewRuleValidationError(err))
	}
	return respondOK(c, "规则有效", rule)
}

// bindRule 解析请求体并校验规则，规则ID以路径参数为准
func (rs *RuleService) bindRule(c echo.Context, ruleID string) (ruleEngine.Rule, error) {
	var rule ruleEngine.Rule
	if err := c.Bind(&rule); err != nil {
		return rule, NewInvalidRuleFormatError(err)
	}
	rule.RuleID = ruleID

	if err := rs.provider.Compiler().Validate(&rule); err != nil {
		return rule, NewRuleValidationError(err)
	}
	return rule, nil
}

// saveRule 持久化规则文件，重新加载后更新策略
func (rs *RuleService) saveRule(rule ruleEngine.Rule, filePath string) error {
	var (
		data []byte
		err  error
	)
	switch filepath.Ext(filePath) {
	case ".yaml", ".yml":
		data, err = yaml.Marshal(rule)
	default:
		data, err = json.MarshalIndent(rule, "", "  ")
	}
	if err != nil {
		return NewInternalServerError(fmt.Errorf("序列化规则失败: %w", err))
	}

	if err := os.WriteFile(filePath, data, ruleFileMode); err != nil {
		return NewInternalServerError(fmt.Errorf("保存规则文件失败: %w", err))
	}

	if err := rs.ruleLoader.LoadRuleFromFile(filePath); err != nil {
		return NewInternalServerError(fmt.Errorf("加载规则失败: %w", err))
	}

	if err := rs.provider.UpsertRule(rule); err != nil {
		return NewRuleValidationError(err)
	}
	return nil
}
