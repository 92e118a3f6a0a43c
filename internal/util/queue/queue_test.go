package queue

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestQueue_FIFO 测试先进先出与状态
func TestQueue_FIFO(t *testing.T) {
	q := New[int](nil)

	_, st := q.TryPop()
	assert.Equal(t, Pending, st)

	for i := 0; i < 200; i++ {
		require.NoError(t, q.Push(i))
	}
	for i := 0; i < 200; i++ {
		v, st := q.TryPop()
		require.Equal(t, Ready, st)
		require.Equal(t, i, v)
	}

	_, st = q.TryPop()
	assert.Equal(t, Pending, st)
}

// TestQueue_Close 测试关闭后先排空再报告 Closed
func TestQueue_Close(t *testing.T) {
	q := New[string](nil)
	require.NoError(t, q.Push("a"))
	q.Close()

	assert.ErrorIs(t, q.Push("b"), ErrClosed)

	v, st := q.TryPop()
	assert.Equal(t, Ready, st)
	assert.Equal(t, "a", v)

	_, st = q.TryPop()
	assert.Equal(t, Closed, st)
}

// TestQueue_Bounded 测试有界队列满时拒绝
func TestQueue_Bounded(t *testing.T) {
	q := NewBounded[int](1, nil)
	require.NoError(t, q.Push(1))
	assert.ErrorIs(t, q.Push(2), ErrFull)

	_, _ = q.TryPop()
	assert.NoError(t, q.Push(3))
}

// TestQueue_WakesConsumer 测试投递触发唤醒且信号合并
func TestQueue_WakesConsumer(t *testing.T) {
	w := NewWaker()
	q := New[int](w)

	require.NoError(t, q.Push(1))
	require.NoError(t, q.Push(2))

	select {
	case <-w.C():
	default:
		t.Fatal("expected wake signal")
	}
	select {
	case <-w.C():
		t.Fatal("wake signals should coalesce")
	default:
	}
}

// TestQueue_ConcurrentProducers 测试多生产者并发投递
func TestQueue_ConcurrentProducers(t *testing.T) {
	q := New[int](NewWaker())

	var wg sync.WaitGroup
	for p := 0; p < 8; p++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				_ = q.Push(i)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 800, q.Len())
	assert.Len(t, q.Drain(), 800)
	assert.Equal(t, 0, q.Len())
}
