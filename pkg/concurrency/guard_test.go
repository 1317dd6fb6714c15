package concurrency

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGuard_Sequential(t *testing.T) {
	g := NewGuard()

	ran := false
	err := g.Execute(func() error {
		ran = true
		return nil
	})
	require.NoError(t, err)
	assert.True(t, ran)

	// The guard frees itself after the task returns.
	require.NoError(t, g.Execute(func() error { return nil }))
}

func TestGuard_RejectsOverlap(t *testing.T) {
	g := NewGuard()

	started := make(chan struct{})
	release := make(chan struct{})
	done := make(chan error, 1)

	go func() {
		done <- g.Execute(func() error {
			close(started)
			<-release
			return nil
		})
	}()

	<-started
	err := g.Execute(func() error { return nil })
	assert.ErrorIs(t, err, ErrBusy)

	close(release)
	require.NoError(t, <-done)
}

func TestGuard_FreesAfterTaskError(t *testing.T) {
	g := NewGuard()

	sentinel := assert.AnError
	err := g.Execute(func() error { return sentinel })
	assert.ErrorIs(t, err, sentinel)

	require.NoError(t, g.Execute(func() error { return nil }))
}

func TestGuard_ConcurrentStress(t *testing.T) {
	g := NewGuard()

	var admitted int
	var mu sync.Mutex
	var wg sync.WaitGroup

	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = g.Execute(func() error {
				mu.Lock()
				admitted++
				mu.Unlock()
				return nil
			})
		}()
	}
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	assert.GreaterOrEqual(t, admitted, 1)
	assert.LessOrEqual(t, admitted, 32)
}
