package dispatcher

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEngineerPool_AcquireRelease(t *testing.T) {
	p := NewEngineerPool(2)
	assert.Equal(t, 2, p.Size())
	assert.Equal(t, 2, p.Available())

	require.NoError(t, p.Acquire(context.Background()))
	require.NoError(t, p.Acquire(context.Background()))
	assert.Equal(t, 0, p.Available())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, p.Acquire(ctx), context.DeadlineExceeded)
	assert.Equal(t, 0, p.Available())

	p.Release()
	assert.Equal(t, 1, p.Available())
	p.Release()
	assert.Equal(t, 2, p.Available())
}

func TestEngineerPool_MinimumSize(t *testing.T) {
	p := NewEngineerPool(0)
	assert.Equal(t, 1, p.Size())
}

func TestEngineerPool_AvailableStaysInBounds(t *testing.T) {
	const size = 3
	p := NewEngineerPool(size)

	var wg sync.WaitGroup
	violations := make(chan int, 100)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				if err := p.Acquire(context.Background()); err != nil {
					return
				}
				if v := p.Available(); v < 0 || v > size {
					select {
					case violations <- v:
					default:
					}
				}
				p.Release()
			}
		}()
	}
	wg.Wait()
	close(violations)

	for v := range violations {
		t.Errorf("available out of bounds: %d", v)
	}
	assert.Equal(t, size, p.Available())
}
