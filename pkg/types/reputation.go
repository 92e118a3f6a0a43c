package types

import (
	"fmt"
	"math"
)

// ReputationChange 一次信誉调整
type ReputationChange struct {
	// Value 调整值，负数为惩罚
	Value int32

	// Reason 原因，仅用于日志
	Reason string
}

// NewReputationChange 创建信誉调整
func NewReputationChange(value int32, reason string) ReputationChange {
	return ReputationChange{Value: value, Reason: reason}
}

// NewFatalReputationChange 创建致命惩罚，应用后节点立即被封禁
func NewFatalReputationChange(reason string) ReputationChange {
	return ReputationChange{Value: math.MinInt32, Reason: reason}
}

// IsFatal 是否为致命惩罚
func (c ReputationChange) IsFatal() bool {
	return c.Value == math.MinInt32
}

// String 返回可读表示
func (c ReputationChange) String() string {
	return fmt.Sprintf("%+d (%s)", c.Value, c.Reason)
}
