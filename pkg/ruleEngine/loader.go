package ruleEngine

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"gopkg.in/yaml.v3"
)

// RuleLoader 负责加载和管理规则
type RuleLoader struct {
	mu    sync.RWMutex
	rules map[string]*Rule  // 使用map存储规则，key为规则ID
	paths map[string]string // 规则ID对应的文件路径
}

// NewRuleLoader 创建一个新的规则加载器
func NewRuleLoader() *RuleLoader {
	return &RuleLoader{
		rules: make(map[string]*Rule),
		paths: make(map[string]string),
	}
}

// LoadRuleFromFile 从文件加载规则
func (rl *RuleLoader) LoadRuleFromFile(filePath string) error {
	// 读取文件内容
	data, err := os.ReadFile(filePath)
	if err != nil {
		return fmt.Errorf("读取规则文件失败: %w", err)
	}

	// 解析YAML，JSON是YAML的子集，同样可以解析
	var rule Rule
	if err := yaml.Unmarshal(data, &rule); err != nil {
		return fmt.Errorf("解析YAML失败: %w", err)
	}
	if rule.RuleID == "" {
		return fmt.Errorf("规则文件 %s 缺少 rule_id", filePath)
	}

	// 存储规则
	rl.mu.Lock()
	rl.rules[rule.RuleID] = &rule
	rl.paths[rule.RuleID] = filePath
	rl.mu.Unlock()
	return nil
}

// LoadRulesFromDirectory 从目录加载所有规则
func (rl *RuleLoader) LoadRulesFromDirectory(dirPath string) error {
	files, err := os.ReadDir(dirPath)
	if err != nil {
		return fmt.Errorf("读取目录失败: %w", err)
	}

	for _, file := range files {
		if file.IsDir() {
			continue
		}
		switch filepath.Ext(file.Name()) {
		case ".yaml", ".yml", ".json":
			fullPath := filepath.Join(dirPath, file.Name())
			if err := rl.LoadRuleFromFile(fullPath); err != nil {
				return fmt.Errorf("加载规则文件 %s 失败: %w", file.Name(), err)
			}
		}
	}
	return nil
}

// GetRule 根据规则ID获取规则副本
func (rl *RuleLoader) GetRule(ruleID string) (Rule, bool) {
	rl.mu.RLock()
	defer rl.mu.RUnlock()
	rule, exists := rl.rules[ruleID]
	if !exists {
		return Rule{}, false
	}
	return *rule, true
}

// RulePath 返回规则所在的文件
func (rl *RuleLoader) RulePath(ruleID string) (string, bool) {
	rl.mu.RLock()
	defer rl.mu.RUnlock()
	path, exists := rl.paths[ruleID]
	return path, exists
}

// Forget 从内存中移除规则，不删除文件
func (rl *RuleLoader) Forget(ruleID string) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	delete(rl.rules, ruleID)
	delete(rl.paths, ruleID)
}

// GetAllRules 获取所有规则
func (rl *RuleLoader) GetAllRules() map[string]Rule {
	rl.mu.RLock()
	defer rl.mu.RUnlock()
	out := make(map[string]Rule, len(rl.rules))
	for id, rule := range rl.rules {
		out[id] = *rule
	}
	return out
}

// SortedRules 按规则ID排序返回规则副本，保证检测顺序稳定
func (rl *RuleLoader) SortedRules() []Rule {
	rl.mu.RLock()
	defer rl.mu.RUnlock()

	ids := make([]string, 0, len(rl.rules))
	for id := range rl.rules {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	out := make([]Rule, 0, len(ids))
	for _, id := range ids {
		out = append(out, *rl.rules[id])
	}
	return out
}
