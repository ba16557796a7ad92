package relay

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDrainAllEmpty(t *testing.T) {
	r := New[int]()
	require.Nil(t, r.DrainAll())
	require.Equal(t, 0, r.Len())
}

func TestDrainAllKeepsOrder(t *testing.T) {
	r := New[int]()
	for i := 0; i < 50; i++ {
		r.Enqueue(i)
	}
	require.Equal(t, 50, r.Len())

	first := r.DrainAll()
	require.Len(t, first, 50)
	for i, v := range first {
		require.Equal(t, i, v)
	}
	require.Equal(t, 0, r.Len())

	for i := 50; i < 60; i++ {
		r.Enqueue(i)
	}
	second := r.DrainAll()
	require.Equal(t, []int{50, 51, 52, 53, 54, 55, 56, 57, 58, 59}, second)
	require.Nil(t, r.DrainAll())
}

func TestProducerConsumer(t *testing.T) {
	const total = 10000
	r := New[int]()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < total; i++ {
			r.Enqueue(i)
		}
	}()

	got := make([]int, 0, total)
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	for finished := false; !finished; {
		select {
		case <-done:
			finished = true
		default:
		}
		got = append(got, r.DrainAll()...)
	}
	got = append(got, r.DrainAll()...)

	require.Len(t, got, total)
	for i, v := range got {
		require.Equal(t, i, v)
	}
}

func TestConcurrentProducers(t *testing.T) {
	r := New[int]()
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func(v int) {
			defer wg.Done()
			r.Enqueue(v)
		}(i)
	}
	wg.Wait()

	seen := make(map[int]bool)
	for _, v := range r.DrainAll() {
		seen[v] = true
	}
	for i := 0; i < 100; i++ {
		require.True(t, seen[i], i)
	}
}
