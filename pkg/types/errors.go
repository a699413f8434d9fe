package types

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidConfig 配置构建或修改时发现的非法值
	ErrInvalidConfig = errors.New("invalid configuration")
	// ErrInvalidBlock 试图追加与链尾不一致的区块
	ErrInvalidBlock = errors.New("invalid block")
	// ErrFirewallStopped 防火墙未运行时拒绝新报文
	ErrFirewallStopped = errors.New("firewall is not running")
)

type PipelineError struct {
	Stage string
	Err   error
}

func (e *PipelineError) Error() string {
	return fmt.Sprintf("pipeline error at stage %s: %v", e.Stage, e.Err)
}

func (e *PipelineError) Unwrap() error {
	return e.Err
}

func NewPipelineError(stage string, err error) error {
	return &PipelineError{Stage: stage, Err: err}
}

// ConfigError 配置错误，在构建快照或修改配置时同步返回，不做静默截断
type ConfigError struct {
	Field  string
	Value  interface{}
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid config field %s=%v: %s", e.Field, e.Value, e.Reason)
}

func (e *ConfigError) Unwrap() error {
	return ErrInvalidConfig
}

func NewConfigError(field string, value interface{}, reason string) error {
	return &ConfigError{Field: field, Value: value, Reason: reason}
}

// InvalidBlockError 区块构造失败，与校验失败(VerificationReport)区分开
type InvalidBlockError struct {
	Index  int
	Reason string
}

func (e *InvalidBlockError) Error() string {
	return fmt.Sprintf("invalid block #%d: %s", e.Index, e.Reason)
}

func (e *InvalidBlockError) Unwrap() error {
	return ErrInvalidBlock
}

func NewInvalidBlockError(index int, format string, args ...interface{}) error {
	return &InvalidBlockError{Index: index, Reason: fmt.Sprintf(format, args...)}
}
