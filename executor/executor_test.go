package executor

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestExecutorRunsTasksInOrder(t *testing.T) {
	e := New(0, 16)
	e.Start()
	defer e.Stop(false)

	var mu sync.Mutex
	var order []int
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		i := i
		wg.Add(1)
		e.Post(func() {
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
			wg.Done()
		})
	}
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	for i, v := range order {
		require.Equal(t, i, v)
	}
}

func TestExecutorRecoversPanicInTask(t *testing.T) {
	e := New(0, 4)
	e.Start()
	defer e.Stop(false)

	var ran atomic.Bool
	e.Post(func() { panic("boom") })
	e.Post(func() { ran.Store(true) })

	require.Eventually(t, ran.Load, time.Second, time.Millisecond)
}

func TestExecutorStopDrainsThenExits(t *testing.T) {
	e := New(0, 4)
	e.Start()

	var count atomic.Int32
	for i := 0; i < 5; i++ {
		e.Post(func() { count.Add(1) })
	}
	e.Stop(false)
	e.Join()

	require.Equal(t, int32(5), count.Load())
	require.Equal(t, StatusStopped, e.Status())
}

func TestExecutorForceStopAbandonsQueuedTasks(t *testing.T) {
	e := New(0, 8)
	e.Start()

	started := make(chan struct{})
	release := make(chan struct{})
	e.Post(func() {
		close(started)
		<-release
	})

	var ran atomic.Bool
	e.Post(func() { ran.Store(true) })

	<-started
	e.Stop(true)
	close(release)
	e.Join()

	require.False(t, ran.Load(), "a force-stopped executor must abandon queued tasks")
	require.Equal(t, StatusStopped, e.Status())
}

func TestExecutorPostAfterStopIsNoop(t *testing.T) {
	e := New(0, 4)
	e.Start()
	e.Stop(false)
	e.Join()

	require.False(t, e.Post(func() { t.Fatal("must not run") }))
}

func TestExecutorIsFreeReflectsQueueDepth(t *testing.T) {
	e := New(0, 4)
	e.Start()
	defer e.Stop(false)

	require.True(t, e.IsFree())

	block := make(chan struct{})
	e.Post(func() { <-block })
	e.Post(func() {})

	require.Eventually(t, func() bool { return !e.IsFree() }, time.Second, time.Millisecond)
	close(block)
	require.Eventually(t, e.IsFree, time.Second, time.Millisecond)
}

func TestFixedPoolRoundRobin(t *testing.T) {
	p := NewFixedPool(3, 8)
	require.NoError(t, p.Start(context.Background()))
	defer func() {
		p.Stop(false)
		p.Join()
	}()

	require.Equal(t, 3, p.Len())
	seen := []int{p.Next().ID(), p.Next().ID(), p.Next().ID(), p.Next().ID()}
	require.Equal(t, []int{0, 1, 2, 0}, seen)
}

func TestFixedPoolIsFreeReflectsMemberLoad(t *testing.T) {
	p := NewFixedPool(2, 8)
	require.NoError(t, p.Start(context.Background()))
	defer func() {
		p.Stop(false)
		p.Join()
	}()

	require.True(t, p.IsFree())

	block := make(chan struct{})
	e := p.At(0)
	e.Post(func() { <-block })
	e.Post(func() {})

	require.Eventually(t, func() bool { return !p.IsFree() }, time.Second, time.Millisecond)
	close(block)
	require.Eventually(t, p.IsFree, time.Second, time.Millisecond)
}

func TestFixedPoolForceStopAbandonsQueuedTasks(t *testing.T) {
	p := NewFixedPool(1, 8)
	require.NoError(t, p.Start(context.Background()))

	started := make(chan struct{})
	release := make(chan struct{})
	e := p.At(0)
	e.Post(func() {
		close(started)
		<-release
	})

	var ran atomic.Bool
	e.Post(func() { ran.Store(true) })

	<-started
	p.Stop(true)
	close(release)
	p.Join()

	require.False(t, ran.Load(), "a force-stopped pool must abandon queued tasks")
}
