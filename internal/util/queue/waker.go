package queue

// Waker 合并式唤醒信号
//
// 多次 Wake 在消费者取走之前只保留一个信号。nil Waker 上调用 Wake 无副作用，
// 便于单元测试直接驱动组件。
type Waker struct {
	ch chan struct{}
}

// NewWaker 创建唤醒器
func NewWaker() *Waker {
	return &Waker{ch: make(chan struct{}, 1)}
}

// Wake 发出唤醒信号，从不阻塞
func (w *Waker) Wake() {
	if w == nil {
		return
	}
	select {
	case w.ch <- struct{}{}:
	default:
	}
}

// C 返回等待通道
func (w *Waker) C() <-chan struct{} {
	return w.ch
}
