package runner

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestPool_SubmitRunsImmediatelyWhenSlotFree(t *testing.T) {
	mgr := NewManager(nil)
	pool, err := mgr.CreatePool("test", 2, 1000)
	require.NoError(t, err)

	fut, err := pool.Submit(Task{
		ID: "t1",
		Fn: func(ctx context.Context) (any, error) { return "ok", nil },
	})
	require.NoError(t, err)

	res, err := fut.Await(context.Background())
	require.NoError(t, err)
	require.Equal(t, "ok", res)

	pool.Shutdown(true)
}

func TestPool_QueuesBeyondCapacityFIFO(t *testing.T) {
	mgr := NewManager(nil)
	pool, err := mgr.CreatePool("test", 1, 5000)
	require.NoError(t, err)

	var order []int
	orderCh := make(chan int, 3)
	release := make(chan struct{})

	fut1, _ := pool.Submit(Task{ID: "first", Fn: func(ctx context.Context) (any, error) {
		<-release
		orderCh <- 1
		return nil, nil
	}})
	_, _ = pool.Submit(Task{ID: "second", Fn: func(ctx context.Context) (any, error) {
		orderCh <- 2
		return nil, nil
	}})
	_, _ = pool.Submit(Task{ID: "third", Fn: func(ctx context.Context) (any, error) {
		orderCh <- 3
		return nil, nil
	}})

	time.Sleep(20 * time.Millisecond) // let second/third queue behind first
	close(release)

	_, err = fut1.Await(context.Background())
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		order = append(order, <-orderCh)
	}
	require.Equal(t, []int{1, 2, 3}, order)

	pool.Shutdown(true)
}

func TestPool_HigherPriorityDequeuedFirst(t *testing.T) {
	mgr := NewManager(nil)
	pool, err := mgr.CreatePool("test", 1, 5000)
	require.NoError(t, err)

	release := make(chan struct{})
	orderCh := make(chan string, 3)

	_, _ = pool.Submit(Task{ID: "blocker", Priority: 0, Fn: func(ctx context.Context) (any, error) {
		<-release
		return nil, nil
	}})
	time.Sleep(10 * time.Millisecond) // ensure blocker is running, not queued

	_, _ = pool.Submit(Task{ID: "low", Priority: 0, Fn: func(ctx context.Context) (any, error) {
		orderCh <- "low"
		return nil, nil
	}})
	_, _ = pool.Submit(Task{ID: "high", Priority: 10, Fn: func(ctx context.Context) (any, error) {
		orderCh <- "high"
		return nil, nil
	}})

	close(release)

	first := <-orderCh
	second := <-orderCh
	require.Equal(t, "high", first)
	require.Equal(t, "low", second)

	pool.Shutdown(true)
}

func TestPool_CancelQueuedRemovesBeforeRun(t *testing.T) {
	mgr := NewManager(nil)
	pool, err := mgr.CreatePool("test", 1, 5000)
	require.NoError(t, err)

	release := make(chan struct{})
	_, _ = pool.Submit(Task{ID: "blocker", Fn: func(ctx context.Context) (any, error) {
		<-release
		return nil, nil
	}})
	time.Sleep(10 * time.Millisecond)

	var ran int32
	fut, _ := pool.Submit(Task{ID: "queued", Fn: func(ctx context.Context) (any, error) {
		atomic.StoreInt32(&ran, 1)
		return nil, nil
	}})

	ok := pool.CancelQueued("queued")
	require.True(t, ok)

	close(release)
	_, err = fut.Await(context.Background())
	require.Error(t, err)
	require.Equal(t, int32(0), atomic.LoadInt32(&ran))

	pool.Shutdown(true)
}

func TestPool_CancelQueuedReturnsFalseForRunningOrUnknown(t *testing.T) {
	mgr := NewManager(nil)
	pool, err := mgr.CreatePool("test", 1, 5000)
	require.NoError(t, err)

	require.False(t, pool.CancelQueued("nope"))

	release := make(chan struct{})
	_, _ = pool.Submit(Task{ID: "running", Fn: func(ctx context.Context) (any, error) {
		<-release
		return nil, nil
	}})
	time.Sleep(10 * time.Millisecond)
	require.False(t, pool.CancelQueued("running"))
	close(release)

	pool.Shutdown(true)
}

func TestPool_TaskTimeout(t *testing.T) {
	mgr := NewManager(nil)
	pool, err := mgr.CreatePool("test", 1, 5000)
	require.NoError(t, err)

	fut, _ := pool.Submit(Task{
		ID:        "slow",
		TimeoutMs: 20,
		Fn: func(ctx context.Context) (any, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		},
	})

	_, err = fut.Await(context.Background())
	require.Error(t, err)
	var te *timeoutError
	require.ErrorAs(t, err, &te)

	pool.Shutdown(true)
}

func TestPool_PanicIsCaughtAndReleasesSlot(t *testing.T) {
	mgr := NewManager(nil)
	pool, err := mgr.CreatePool("test", 1, 5000)
	require.NoError(t, err)

	fut, _ := pool.Submit(Task{ID: "boom", Fn: func(ctx context.Context) (any, error) {
		panic("kaboom")
	}})

	_, err = fut.Await(context.Background())
	require.Error(t, err)
	require.Contains(t, err.Error(), "panicked")

	// slot must have been released; a second task should still run.
	fut2, _ := pool.Submit(Task{ID: "after", Fn: func(ctx context.Context) (any, error) {
		return "fine", nil
	}})
	res, err := fut2.Await(context.Background())
	require.NoError(t, err)
	require.Equal(t, "fine", res)

	pool.Shutdown(true)
}

func TestPool_SubmitAfterShutdownFails(t *testing.T) {
	mgr := NewManager(nil)
	pool, err := mgr.CreatePool("test", 1, 1000)
	require.NoError(t, err)
	pool.Shutdown(true)

	_, err = pool.Submit(Task{ID: "late", Fn: func(ctx context.Context) (any, error) { return nil, nil }})
	require.Error(t, err)
}

func TestPool_RejectsDuplicateTaskID(t *testing.T) {
	mgr := NewManager(nil)
	pool, err := mgr.CreatePool("test", 1, 1000)
	require.NoError(t, err)

	release := make(chan struct{})
	_, err = pool.Submit(Task{ID: "dup", Fn: func(ctx context.Context) (any, error) {
		<-release
		return nil, nil
	}})
	require.NoError(t, err)

	_, err = pool.Submit(Task{ID: "dup", Fn: func(ctx context.Context) (any, error) { return nil, nil }})
	require.Error(t, err)

	close(release)
	pool.Shutdown(true)
}

func TestManager_CreatePoolRejectsDuplicateWhileRunning(t *testing.T) {
	mgr := NewManager(nil)
	_, err := mgr.CreatePool("dup", 1, 1000)
	require.NoError(t, err)

	_, err = mgr.CreatePool("dup", 1, 1000)
	require.Error(t, err)

	mgr.ShutdownAll(true)
}

func TestManager_CreatePoolAllowedAfterPriorShutdown(t *testing.T) {
	mgr := NewManager(nil)
	p1, err := mgr.CreatePool("reused", 1, 1000)
	require.NoError(t, err)
	p1.Shutdown(true)

	p2, err := mgr.CreatePool("reused", 2, 2000)
	require.NoError(t, err)
	require.NotSame(t, p1, p2)
	p2.Shutdown(true)
}

func TestPool_ErrorFromTaskPropagates(t *testing.T) {
	mgr := NewManager(nil)
	pool, err := mgr.CreatePool("test", 1, 1000)
	require.NoError(t, err)

	wantErr := errors.New("boom")
	fut, _ := pool.Submit(Task{ID: "err", Fn: func(ctx context.Context) (any, error) { return nil, wantErr }})
	_, err = fut.Await(context.Background())
	require.ErrorIs(t, err, wantErr)

	pool.Shutdown(true)
}

func TestPool_StatsReflectQueueAndInFlight(t *testing.T) {
	mgr := NewManager(nil)
	pool, err := mgr.CreatePool("test", 1, 5000)
	require.NoError(t, err)

	release := make(chan struct{})
	_, _ = pool.Submit(Task{ID: "a", Fn: func(ctx context.Context) (any, error) { <-release; return nil, nil }})
	time.Sleep(10 * time.Millisecond)
	_, _ = pool.Submit(Task{ID: "b", Fn: func(ctx context.Context) (any, error) { return nil, nil }})

	stats := pool.Stats()
	require.Equal(t, 1, stats.InFlight)
	require.Equal(t, 1, stats.Queued)
	require.Equal(t, 1, stats.Capacity)

	close(release)
	pool.Shutdown(true)
}
