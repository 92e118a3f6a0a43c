// Package poll 定义协作式组件单步轮询的结果
package poll

// State 单步轮询结果
type State int

const (
	// Pending 暂无可处理的内容，等待下一次唤醒
	Pending State = iota
	// Ready 产出了结果或完成了工作
	Ready
	// Exhausted 组件依赖的事件源已终止，不会再产出任何结果
	Exhausted
)

// String 返回状态名
func (s State) String() string {
	switch s {
	case Pending:
		return "pending"
	case Ready:
		return "ready"
	case Exhausted:
		return "exhausted"
	default:
		return "unknown"
	}
}
