// internal/workqueue/pool_test.go
package workqueue

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestPoolQueue(t *testing.T) {
	t.Run("runs queued work", func(t *testing.T) {
		pool := NewPool(2, zap.NewNop())
		defer pool.Stop()
		q := pool.NewQueue("dm-0")

		var ran atomic.Int32
		w := NewWork(func() { ran.Add(1) })

		assert.True(t, q.Queue(w))
		q.Flush()
		assert.Equal(t, int32(1), ran.Load())
		assert.False(t, w.Pending())
	})

	t.Run("coalesces pending work", func(t *testing.T) {
		pool := NewPool(1, zap.NewNop())
		defer pool.Stop()
		q := pool.NewQueue("dm-0")

		release := make(chan struct{})
		started := make(chan struct{})
		blocker := NewWork(func() {
			close(started)
			<-release
		})
		var ran atomic.Int32
		w := NewWork(func() { ran.Add(1) })

		require.True(t, q.Queue(blocker))
		<-started
		assert.True(t, q.Queue(w))
		assert.False(t, q.Queue(w), "second queue of a pending work must be rejected")
		close(release)

		q.Flush()
		assert.Equal(t, int32(1), ran.Load())
	})

	t.Run("serializes work of one queue", func(t *testing.T) {
		pool := NewPool(8, zap.NewNop())
		defer pool.Stop()
		q := pool.NewQueue("dm-0")

		var running, overlap atomic.Int32
		works := make([]*Work, 16)
		for i := range works {
			works[i] = NewWork(func() {
				if running.Add(1) > 1 {
					overlap.Add(1)
				}
				time.Sleep(time.Millisecond)
				running.Add(-1)
			})
		}
		for _, w := range works {
			q.Queue(w)
		}
		q.Flush()

		assert.Zero(t, overlap.Load())
	})

	t.Run("queues share the pool", func(t *testing.T) {
		pool := NewPool(4, zap.NewNop())
		defer pool.Stop()

		var wg sync.WaitGroup
		var total atomic.Int32
		for i := 0; i < 10; i++ {
			q := pool.NewQueue("dm")
			wg.Add(1)
			go func() {
				defer wg.Done()
				q.Queue(NewWork(func() { total.Add(1) }))
				q.Flush()
			}()
		}
		wg.Wait()

		assert.Equal(t, int32(10), total.Load())
	})

	t.Run("survives panicking work", func(t *testing.T) {
		pool := NewPool(1, zap.NewNop())
		defer pool.Stop()
		q := pool.NewQueue("dm-0")

		var ran atomic.Bool
		q.Queue(NewWork(func() { panic("boom") }))
		q.Queue(NewWork(func() { ran.Store(true) }))
		q.Flush()

		assert.True(t, ran.Load())
	})

	t.Run("runs work after stop", func(t *testing.T) {
		pool := NewPool(1, zap.NewNop())
		q := pool.NewQueue("dm-0")
		pool.Stop()

		var ran atomic.Bool
		q.Queue(NewWork(func() { ran.Store(true) }))
		q.Flush()
		assert.True(t, ran.Load())
	})
}

func TestManual(t *testing.T) {
	m := NewManual()
	var order []int

	first := NewWork(func() { order = append(order, 1) })
	var second *Work
	second = NewWork(func() { order = append(order, 2) })
	chained := NewWork(func() {
		order = append(order, 3)
		m.Queue(second)
	})

	assert.True(t, m.Queue(first))
	assert.False(t, m.Queue(first))
	assert.True(t, m.Queue(chained))
	assert.Equal(t, 2, m.Pending())

	n := m.Run()
	assert.Equal(t, 3, n)
	assert.Equal(t, []int{1, 3, 2}, order)
	assert.Zero(t, m.Pending())
}
