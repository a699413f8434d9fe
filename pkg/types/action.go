package types

import (
	"fmt"
	"strings"
)

// Action 数据包最终处置动作
// 严重等级 DROP > ALERT > LOG > ACCEPT，只用于展示和排序，不参与决策
type Action uint8

const (
	ActionAccept Action = iota + 1
	ActionLog
	ActionAlert
	ActionDrop
)

var actionNames = map[Action]string{
	ActionAccept: "ACCEPT",
	ActionLog:    "LOG",
	ActionAlert:  "ALERT",
	ActionDrop:   "DROP",
}

var actionSymbols = map[Action]string{
	ActionAccept: "✓",
	ActionLog:    "✎",
	ActionAlert:  "⚠",
	ActionDrop:   "✗",
}

// Actions 按严重等级升序返回所有动作
func Actions() []Action {
	return []Action{ActionAccept, ActionLog, ActionAlert, ActionDrop}
}

func (a Action) String() string {
	if name, ok := actionNames[a]; ok {
		return name
	}
	return fmt.Sprintf("Action(%d)", uint8(a))
}

// Symbol 返回展示用符号
func (a Action) Symbol() string {
	return actionSymbols[a]
}

// Rank 返回严重等级，ACCEPT 为 0
func (a Action) Rank() int {
	if _, ok := actionNames[a]; !ok {
		return -1
	}
	return int(a) - 1
}

// ParseAction 解析动作名称
func ParseAction(s string) (Action, error) {
	upper := strings.ToUpper(strings.TrimSpace(s))
	for a, name := range actionNames {
		if name == upper {
			return a, nil
		}
	}
	return 0, fmt.Errorf("unknown action %q", s)
}

func (a Action) MarshalText() ([]byte, error) {
	if _, ok := actionNames[a]; !ok {
		return nil, fmt.Errorf("unknown action %d", uint8(a))
	}
	return []byte(a.String()), nil
}

func (a *Action) UnmarshalText(text []byte) error {
	parsed, err := ParseAction(string(text))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}
