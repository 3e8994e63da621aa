package workerpool

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tomb "gopkg.in/tomb.v2"
)

func TestPoolProcessesTasksConcurrently(t *testing.T) {
	p := New(3)
	var mu sync.Mutex
	seen := make(map[int]bool)
	var wg sync.WaitGroup
	wg.Add(5)

	var tb tomb.Tomb
	tb.Go(func() error {
		p.Setup(&tb, func(_ *tomb.Tomb, task any) error {
			mu.Lock()
			seen[task.(int)] = true
			mu.Unlock()
			wg.Done()
			return nil
		})
		return nil
	})

	for i := 0; i < 5; i++ {
		p.AddTask(i)
	}
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	assert.Len(t, seen, 5)
	for i := 0; i < 5; i++ {
		assert.True(t, seen[i])
	}

	tb.Kill(nil)
	require.NoError(t, tb.Wait())
}

func TestPoolWorkerErrorKillsTomb(t *testing.T) {
	p := New(1)
	boom := errors.New("boom")

	var tb tomb.Tomb
	tb.Go(func() error {
		p.Setup(&tb, func(_ *tomb.Tomb, task any) error {
			return boom
		})
		return nil
	})

	p.AddTask("anything")

	select {
	case <-tb.Dead():
	case <-time.After(time.Second):
		t.Fatal("tomb did not die after worker error")
	}
	assert.ErrorIs(t, tb.Err(), boom)
}

func TestPoolStopsOnKill(t *testing.T) {
	p := New(2)
	var tb tomb.Tomb
	tb.Go(func() error {
		p.Setup(&tb, func(_ *tomb.Tomb, task any) error { return nil })
		return nil
	})

	tb.Kill(nil)
	select {
	case <-tb.Dead():
	case <-time.After(time.Second):
		t.Fatal("tomb did not die after Kill")
	}
}
