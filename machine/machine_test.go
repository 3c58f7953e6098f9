package machine_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"

	"github.com/autom8ter/pathfinder/machine"
)

func TestGoAndWait(t *testing.T) {
	m := machine.New(context.Background())
	var count int64
	for i := 0; i < 100; i++ {
		require.True(t, m.Go("inc", func(routine machine.Routine) error {
			atomic.AddInt64(&count, 1)
			return nil
		}))
	}
	require.NoError(t, m.Wait())
	require.Equal(t, int64(100), atomic.LoadInt64(&count))
	require.Equal(t, 100, m.Total())
	require.Equal(t, 0, m.Active())
}

func TestWaitReturnsFirstError(t *testing.T) {
	boom := errors.New("boom")
	var (
		mu      sync.Mutex
		handled []string
	)
	m := machine.New(context.Background(), machine.WithErrHandler(func(routine machine.Routine, err error) {
		mu.Lock()
		defer mu.Unlock()
		handled = append(handled, routine.Name())
	}))
	m.Go("failing", func(routine machine.Routine) error {
		return boom
	})
	err := m.Wait()
	require.True(t, errors.Is(err, boom))
	require.Equal(t, []string{"failing"}, handled)
}

func TestCancelError(t *testing.T) {
	m := machine.New(context.Background())
	m.Go("blocker", func(routine machine.Routine) error {
		<-routine.Context().Done()
		return nil
	})
	m.Go("canceller", func(routine machine.Routine) error {
		return machine.ErrCancel
	})
	require.NoError(t, m.Wait())
	require.Error(t, m.Context().Err())
}

func TestThrottle(t *testing.T) {
	m := machine.New(context.Background(), machine.WithMaxRoutines(2))
	var (
		active int64
		peak   int64
	)
	for i := 0; i < 20; i++ {
		m.Go("throttled", func(routine machine.Routine) error {
			n := atomic.AddInt64(&active, 1)
			for {
				p := atomic.LoadInt64(&peak)
				if n <= p || atomic.CompareAndSwapInt64(&peak, p, n) {
					break
				}
			}
			time.Sleep(5 * time.Millisecond)
			atomic.AddInt64(&active, -1)
			return nil
		})
	}
	require.NoError(t, m.Wait())
	require.LessOrEqual(t, atomic.LoadInt64(&peak), int64(2))
}

func TestGoAfterCancel(t *testing.T) {
	m := machine.New(context.Background(), machine.WithMaxRoutines(1))
	m.Go("holder", func(routine machine.Routine) error {
		<-routine.Context().Done()
		return nil
	})
	m.Cancel()
	require.NoError(t, m.Wait())
	require.False(t, m.Go("late", func(routine machine.Routine) error { return nil }))
}

func TestCron(t *testing.T) {
	m := machine.New(context.Background())
	var ticks int64
	m.Cron("ticker", time.Millisecond, func(routine machine.Routine) (bool, error) {
		return atomic.AddInt64(&ticks, 1) < 3, nil
	})
	require.NoError(t, m.Wait())
	require.Equal(t, int64(3), atomic.LoadInt64(&ticks))
}

func TestMiddlewares(t *testing.T) {
	var (
		mu    sync.Mutex
		order []string
	)
	record := func(s string) {
		mu.Lock()
		defer mu.Unlock()
		order = append(order, s)
	}
	m := machine.New(context.Background(),
		machine.WithErrHandler(func(machine.Routine, error) {}),
		machine.WithMiddlewares(
			machine.Before(func(routine machine.Routine) { record("before") }),
			machine.After(func(routine machine.Routine, err error) {
				if err != nil {
					record("after")
				}
			}),
			machine.PanicRecover(),
		),
	)
	m.Go("panics", func(routine machine.Routine) error {
		record("run")
		panic("oops")
	})
	err := m.Wait()
	require.Error(t, err)
	require.Contains(t, err.Error(), "panics")
	require.Equal(t, []string{"before", "run", "after"}, order)
}

func TestStats(t *testing.T) {
	m := machine.New(context.Background())
	release := make(chan struct{})
	for _, name := range []string{"a", "b"} {
		m.Go(name, func(routine machine.Routine) error {
			<-release
			return nil
		})
	}
	stats := m.Stats()
	require.Equal(t, 2, stats.Count)
	require.Equal(t, "a", stats.Routines[0].Name)
	require.Equal(t, "b", stats.Routines[1].Name)
	require.Contains(t, stats.String(), `"name": "a"`)
	require.Equal(t, []string{"a", "b"}, stats.Names())
	require.Equal(t, 2, m.Total())
	close(release)
	require.NoError(t, m.Wait())
	require.Equal(t, 0, m.Stats().Count)
}
