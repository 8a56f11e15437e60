package executor

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestElasticPoolStartsAtInitSize(t *testing.T) {
	p, err := NewElasticPool(ElasticConfig{InitSize: 2, HighWatermark: 8, ThreadLoad: 4, QueueDepth: 8})
	require.NoError(t, err)
	require.NoError(t, p.Start(context.Background()))
	defer p.Join()

	require.Equal(t, 2, p.Size())
	p.Stop(false)
}

func TestElasticPoolGrowsUnderLoad(t *testing.T) {
	p, err := NewElasticPool(ElasticConfig{InitSize: 1, HighWatermark: 4, ThreadLoad: 1, QueueDepth: 32})
	require.NoError(t, err)
	require.NoError(t, p.Start(context.Background()))
	defer func() {
		p.Stop(false)
		p.Join()
	}()

	grew := false
	for load := 1; load <= 8; load++ {
		p.NextLoaded(load)
		if p.Size() > 1 {
			grew = true
			break
		}
	}
	require.True(t, grew, "expected pool to grow past InitSize as the load hint rises")
}

func TestElasticPoolNeverExceedsHighWatermark(t *testing.T) {
	p, err := NewElasticPool(ElasticConfig{InitSize: 1, HighWatermark: 3, ThreadLoad: 1, QueueDepth: 64})
	require.NoError(t, err)
	require.NoError(t, p.Start(context.Background()))
	defer func() {
		p.Stop(false)
		p.Join()
	}()

	for i := 0; i < 200; i++ {
		p.NextLoaded(1000)
	}
	require.LessOrEqual(t, p.Size(), 3)
}

func TestElasticPoolNextDoesNotGrow(t *testing.T) {
	p, err := NewElasticPool(ElasticConfig{InitSize: 1, HighWatermark: 4, ThreadLoad: 1, QueueDepth: 32})
	require.NoError(t, err)
	require.NoError(t, p.Start(context.Background()))
	defer func() {
		p.Stop(false)
		p.Join()
	}()

	for i := 0; i < 50; i++ {
		p.Next()
	}
	require.Equal(t, 1, p.Size(), "Next without a load hint must never trigger growth")
}

func TestElasticPoolIsFreeReflectsQueuedWork(t *testing.T) {
	p, err := NewElasticPool(ElasticConfig{InitSize: 1, HighWatermark: 1, ThreadLoad: 100, QueueDepth: 8})
	require.NoError(t, err)
	require.NoError(t, p.Start(context.Background()))
	defer func() {
		p.Stop(false)
		p.Join()
	}()

	require.True(t, p.IsFree())

	block := make(chan struct{})
	e := p.Next()
	e.Post(func() { <-block })
	e.Post(func() {})

	require.Eventually(t, func() bool { return !p.IsFree() }, time.Second, time.Millisecond)
	close(block)
	require.Eventually(t, p.IsFree, time.Second, time.Millisecond)
}

func TestElasticPoolForceStopAbandonsQueuedWork(t *testing.T) {
	p, err := NewElasticPool(ElasticConfig{InitSize: 1, HighWatermark: 1, ThreadLoad: 100, QueueDepth: 8})
	require.NoError(t, err)
	require.NoError(t, p.Start(context.Background()))

	started := make(chan struct{})
	release := make(chan struct{})
	e := p.Next()
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

	require.False(t, ran.Load(), "a force-stopped executor must abandon queued tasks")
}
