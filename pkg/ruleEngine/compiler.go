package ruleEngine

import (
	"crypto/sha256"
	"fmt"
	"strings"
	"sync"

	"github.com/google/cel-go/cel"
	"github.com/haolipeng/firewall_ledger/pkg/types"
	"github.com/sirupsen/logrus"
)

// 表达式中可以使用的报文字段
const (
	VarSrcIP    = "packet.src_ip"
	VarDstIP    = "packet.dst_ip"
	VarSrcPort  = "packet.src_port"
	VarDstPort  = "packet.dst_port"
	VarProtocol = "packet.protocol"
	VarPayload  = "packet.payload"
	VarSize     = "packet.size"
	VarAttack   = "packet.attack"
)

// CompiledRule 编译后的规则，Program 可以被并发调用
type CompiledRule struct {
	Rule    Rule
	Program cel.Program
}

// Compiler 负责编译CEL表达式，并按表达式哈希缓存编译结果
type Compiler struct {
	mu       sync.Mutex
	env      *cel.Env
	programs map[string]cel.Program // key为表达式的sha256
}

// NewCompiler 创建CEL环境，声明所有报文变量
func NewCompiler() (*Compiler, error) {
	env, err := cel.NewEnv(
		cel.Variable(VarSrcIP, cel.StringType),
		cel.Variable(VarDstIP, cel.StringType),
		cel.Variable(VarSrcPort, cel.IntType),
		cel.Variable(VarDstPort, cel.IntType),
		cel.Variable(VarProtocol, cel.StringType),
		cel.Variable(VarPayload, cel.StringType),
		cel.Variable(VarSize, cel.IntType),
		cel.Variable(VarAttack, cel.StringType),
	)
	if err != nil {
		return nil, fmt.Errorf("create cel env failed: %w", err)
	}

	return &Compiler{
		env:      env,
		programs: make(map[string]cel.Program),
	}, nil
}

// Validate 校验规则字段和表达式，不修改缓存
func (c *Compiler) Validate(rule *Rule) error {
	if err := validateRuleFields(rule); err != nil {
		return err
	}
	_, err := c.compileExpression(rule.Expression)
	return err
}

// Compile 编译单条规则，表达式未变化时复用缓存的Program
func (c *Compiler) Compile(rule *Rule) (*CompiledRule, error) {
	if rule == nil {
		return nil, fmt.Errorf("rule is nil")
	}
	if err := validateRuleFields(rule); err != nil {
		return nil, err
	}

	hash := calculateExpressionHash(rule.Expression)

	c.mu.Lock()
	program, ok := c.programs[hash]
	c.mu.Unlock()

	if !ok {
		var err error
		program, err = c.compileExpression(rule.Expression)
		if err != nil {
			return nil, fmt.Errorf("compile rule %s failed: %w", rule.RuleID, err)
		}

		c.mu.Lock()
		c.programs[hash] = program
		c.mu.Unlock()

		logrus.WithFields(logrus.Fields{
			"rule_id": rule.RuleID,
			"hash":    hash[:12],
		}).Debug("compiled expression rule")
	}

	return &CompiledRule{Rule: *rule, Program: program}, nil
}

// CompileAll 按给定顺序编译所有规则
func (c *Compiler) CompileAll(rules []Rule) ([]*CompiledRule, error) {
	out := make([]*CompiledRule, 0, len(rules))
	for i := range rules {
		compiled, err := c.Compile(&rules[i])
		if err != nil {
			return nil, err
		}
		out = append(out, compiled)
	}
	return out, nil
}

// compileExpression 编译表达式并检查返回值类型
func (c *Compiler) compileExpression(expression string) (cel.Program, error) {
	if strings.TrimSpace(expression) == "" {
		return nil, fmt.Errorf("表达式不能为空")
	}

	// 1.编译表达式，生成AST并完成类型检查
	checked, iss := c.env.Compile(expression)
	if iss.Err() != nil {
		return nil, fmt.Errorf("compile expression failed: %w", iss.Err())
	}

	// 2.表达式返回值类型必须是布尔型
	if !checked.OutputType().IsAssignableType(cel.BoolType) {
		return nil, fmt.Errorf("表达式必须返回布尔值，当前返回: %s", checked.OutputType().String())
	}

	// 3.将AST转换为程序Program
	program, err := c.env.Program(checked)
	if err != nil {
		return nil, fmt.Errorf("create program failed: %w", err)
	}

	return program, nil
}

// Evaluate 使用报文变量执行规则程序
func Evaluate(program cel.Program, packet *types.Packet) (bool, error) {
	if program == nil {
		return false, fmt.Errorf("program is nil")
	}

	result, _, err := program.Eval(BuildEvalVars(packet))
	if err != nil {
		return false, fmt.Errorf("evaluate rule failed: %w", err)
	}

	matched, ok := result.Value().(bool)
	if !ok {
		return false, fmt.Errorf("rule result is not boolean: %v", result.Value())
	}
	return matched, nil
}

// BuildEvalVars 根据数据包构建评估变量
func BuildEvalVars(packet *types.Packet) map[string]interface{} {
	return map[string]interface{}{
		VarSrcIP:    packet.SrcIP,
		VarDstIP:    packet.DstIP,
		VarSrcPort:  int64(packet.SrcPort),
		VarDstPort:  int64(packet.DstPort),
		VarProtocol: string(packet.Protocol),
		VarPayload:  packet.Payload,
		VarSize:     int64(packet.Size),
		VarAttack:   string(packet.AttackCategory),
	}
}

func validateRuleFields(rule *Rule) error {
	if rule.RuleID == "" {
		return fmt.Errorf("规则ID不能为空")
	}
	if rule.State != StateEnable && rule.State != StateDisable {
		return fmt.Errorf("规则状态必须是 enable 或 disable")
	}
	if rule.Severity < 1 || rule.Severity > 10 {
		return fmt.Errorf("规则 %s 的严重程度必须在 1-10 之间，当前为 %d", rule.RuleID, rule.Severity)
	}
	return nil
}

// calculateExpressionHash 计算表达式的哈希值
func calculateExpressionHash(expression string) string {
	h := sha256.New()
	h.Write([]byte(expression))
	return fmt.Sprintf("%x", h.Sum(nil))
}
