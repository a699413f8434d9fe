package ruleEngine

import (
	"testing"

	"github.com/haolipeng/firewall_ledger/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRule(id, expr string) *Rule {
	return &Rule{
		State:       StateEnable,
		RuleID:      id,
		RuleName:    id,
		Expression:  expr,
		Description: "测试规则",
		Severity:    5,
	}
}

// 测试规则编译功能
func TestCompileRule(t *testing.T) {
	compiler, err := NewCompiler()
	require.NoError(t, err)

	testCases := []struct {
		name    string
		rule    *Rule
		wantErr bool
	}{
		{"合法表达式", testRule("r1", "packet.dst_port == 23"), false},
		{"字符串函数", testRule("r2", "packet.payload.contains(\"admin\")"), false},
		{"语法错误", testRule("r3", "packet.dst_port =="), true},
		{"未声明的变量", testRule("r4", "packet.unknown == 1"), true},
		{"非布尔返回值", testRule("r5", "packet.size + 1"), true},
		{"空表达式", testRule("r6", "  "), true},
		{"缺少规则ID", testRule("", "true"), true},
		{"严重程度越界", &Rule{State: StateEnable, RuleID: "r7", Expression: "true", Severity: 11}, true},
		{"非法状态", &Rule{State: "on", RuleID: "r8", Expression: "true", Severity: 1}, true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			compiled, err := compiler.Compile(tc.rule)
			if tc.wantErr {
				assert.Error(t, err)
				assert.Error(t, compiler.Validate(tc.rule))
				return
			}
			require.NoError(t, err)
			assert.NotNil(t, compiled.Program)
			assert.Equal(t, tc.rule.RuleID, compiled.Rule.RuleID)
			assert.NoError(t, compiler.Validate(tc.rule))
		})
	}
}

// 相同表达式只编译一次
func TestCompileCachesByExpression(t *testing.T) {
	compiler, err := NewCompiler()
	require.NoError(t, err)

	a, err := compiler.Compile(testRule("a", "packet.size > 100"))
	require.NoError(t, err)
	b, err := compiler.Compile(testRule("b", "packet.size > 100"))
	require.NoError(t, err)

	assert.Len(t, compiler.programs, 1)
	assert.Equal(t, "a", a.Rule.RuleID)
	assert.Equal(t, "b", b.Rule.RuleID)
}

// 测试规则评估功能
func TestEvaluateRule(t *testing.T) {
	compiler, err := NewCompiler()
	require.NoError(t, err)

	compiled, err := compiler.Compile(testRule("telnet", "packet.dst_port == 23 && packet.protocol == \"TCP\""))
	require.NoError(t, err)

	matched, err := Evaluate(compiled.Program, &types.Packet{DstPort: 23, Protocol: types.ProtocolTCP})
	assert.NoError(t, err)
	assert.True(t, matched)

	matched, err = Evaluate(compiled.Program, &types.Packet{DstPort: 22, Protocol: types.ProtocolTCP})
	assert.NoError(t, err)
	assert.False(t, matched)

	_, err = Evaluate(nil, &types.Packet{})
	assert.Error(t, err)
}

// 测试构建评估变量功能
func TestBuildEvalVars(t *testing.T) {
	packet := &types.Packet{
		SrcIP:          "10.0.0.1",
		DstIP:          "10.0.0.2",
		SrcPort:        5555,
		DstPort:        80,
		Protocol:       types.ProtocolHTTP,
		Payload:        "GET /",
		Size:           64,
		AttackCategory: types.AttackXSS,
	}

	vars := BuildEvalVars(packet)
	assert.Equal(t, "10.0.0.1", vars[VarSrcIP])
	assert.Equal(t, "10.0.0.2", vars[VarDstIP])
	assert.Equal(t, int64(5555), vars[VarSrcPort])
	assert.Equal(t, int64(80), vars[VarDstPort])
	assert.Equal(t, "HTTP", vars[VarProtocol])
	assert.Equal(t, "GET /", vars[VarPayload])
	assert.Equal(t, int64(64), vars[VarSize])
	assert.Equal(t, "XSS", vars[VarAttack])
}

func TestCompileDirectoryRules(t *testing.T) {
	loader := NewRuleLoader()
	require.NoError(t, loader.LoadRulesFromDirectory("../../rules"))

	compiler, err := NewCompiler()
	require.NoError(t, err)

	compiled, err := compiler.CompileAll(loader.SortedRules())
	require.NoError(t, err)
	assert.Len(t, compiled, 3)

	xss := compiled[2]
	matched, err := Evaluate(xss.Program, &types.Packet{Payload: "<SCRIPT>alert(1)</SCRIPT>"})
	assert.NoError(t, err)
	assert.True(t, matched)
}
