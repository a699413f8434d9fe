package ruleEngine

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestLoadRuleFromFile 测试从文件加载规则
func TestLoadRuleFromFile(t *testing.T) {
	testCases := []struct {
		name             string
		filePath         string
		wantErr          bool
		expectedRuleID   string
		expectedState    string
		expectedSeverity int
		expectedExpr     string
	}{
		{
			name:             "加载YAML格式的端口规则",
			filePath:         "../../rules/telnet_outbound.yaml",
			expectedRuleID:   "fw_telnet_001",
			expectedState:    "enable",
			expectedSeverity: 4,
			expectedExpr:     "packet.dst_port == 23 && packet.protocol == \"TCP\"",
		},
		{
			name:             "加载JSON格式的内容规则",
			filePath:         "../../rules/script_tag.json",
			expectedRuleID:   "fw_xss_003",
			expectedState:    "disable",
			expectedSeverity: 6,
			expectedExpr:     "packet.payload.matches(\"(?i)<script\")",
		},
		{
			name:     "加载不存在的文件",
			filePath: "../../rules/not_exist_file.yaml",
			wantErr:  true,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			loader := NewRuleLoader()
			err := loader.LoadRuleFromFile(tc.filePath)

			if tc.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)

			rule, exists := loader.GetRule(tc.expectedRuleID)
			require.True(t, exists, "未找到预期的规则")
			assert.Equal(t, tc.expectedState, rule.State, "规则状态不匹配")
			assert.Equal(t, tc.expectedSeverity, rule.Severity, "严重程度不匹配")
			assert.Equal(t, tc.expectedExpr, rule.Expression, "规则表达式不匹配")
			assert.NotEmpty(t, rule.RuleName, "规则名称为空")
		})
	}
}

// TestLoadRulesFromDirectory 测试从目录加载所有规则
func TestLoadRulesFromDirectory(t *testing.T) {
	loader := NewRuleLoader()

	err := loader.LoadRulesFromDirectory("../../rules")
	require.NoError(t, err)
	assert.Len(t, loader.GetAllRules(), 3)

	dnsRule, exists := loader.GetRule("fw_dns_002")
	assert.True(t, exists)
	assert.True(t, dnsRule.Enabled())

	// 按规则ID排序
	sorted := loader.SortedRules()
	require.Len(t, sorted, 3)
	assert.Equal(t, "fw_dns_002", sorted[0].RuleID)
	assert.Equal(t, "fw_telnet_001", sorted[1].RuleID)
	assert.Equal(t, "fw_xss_003", sorted[2].RuleID)
}

func TestLoadRuleWithoutID(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "broken.yaml")
	require.NoError(t, os.WriteFile(path, []byte("state: enable\nexpression: true\n"), 0o644))

	loader := NewRuleLoader()
	err := loader.LoadRuleFromFile(path)
	assert.Error(t, err)

	// 目录加载时同样返回错误
	err = loader.LoadRulesFromDirectory(dir)
	assert.Error(t, err)
}

func TestRulePathAndForget(t *testing.T) {
	loader := NewRuleLoader()
	require.NoError(t, loader.LoadRulesFromDirectory("../../rules"))

	path, ok := loader.RulePath("fw_xss_003")
	require.True(t, ok)
	assert.Equal(t, "script_tag.json", filepath.Base(path))

	loader.Forget("fw_xss_003")
	_, ok = loader.GetRule("fw_xss_003")
	assert.False(t, ok)
	_, ok = loader.RulePath("fw_xss_003")
	assert.False(t, ok)
	assert.Len(t, loader.GetAllRules(), 2)
}
