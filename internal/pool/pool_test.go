package pool_test

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/WKHAllen/encrypted-backup/internal/pool"
)

// TestOrderedDelivery verifies that tasks submitted with varying
// artificial delays are still received in submission order.
func TestOrderedDelivery(t *testing.T) {
	p := pool.New[int](3)

	delays := []float64{0.05, 0.03, 0.04, 0.03, 0.0, 0.04, 0.02}

	go func() {
		for i, d := range delays {
			value, delay := i+1, d
			p.Submit(func() (int, error) {
				time.Sleep(time.Duration(delay * float64(time.Second)))
				return value, nil
			})
		}
		p.Close()
	}()

	var got []int
	for res := range p.Results() {
		require.NoError(t, res.Err)
		got = append(got, res.Value)
	}

	assert.Equal(t, []int{1, 2, 3, 4, 5, 6, 7}, got)
}

// TestAllPoolSizes checks FIFO ordering holds across the full legal
// range of pool sizes.
func TestAllPoolSizes(t *testing.T) {
	for _, n := range []int{1, 2, 4, 8, 16, 32, 64} {
		n := n
		t.Run(fmt.Sprintf("n=%d", n), func(t *testing.T) {
			p := pool.New[int](n)

			const count = 50
			go func() {
				for i := 0; i < count; i++ {
					v := i
					p.Submit(func() (int, error) { return v, nil })
				}
				p.Close()
			}()

			var got []int
			for res := range p.Results() {
				got = append(got, res.Value)
			}

			want := make([]int, count)
			for i := range want {
				want[i] = i
			}

			assert.Equal(t, want, got)
		})
	}
}

// TestPanicDoesNotDeadlock verifies a panicking task is observed as an
// error at its corresponding receive slot rather than poisoning the
// pool or hanging the consumer.
func TestPanicDoesNotDeadlock(t *testing.T) {
	p := pool.New[int](2)

	go func() {
		p.Submit(func() (int, error) { return 1, nil })
		p.Submit(func() (int, error) { panic("boom") })
		p.Submit(func() (int, error) { return 3, nil })
		p.Close()
	}()

	var results []pool.Result[int]
	for res := range p.Results() {
		results = append(results, res)
	}

	require.Len(t, results, 3)
	assert.NoError(t, results[0].Err)
	assert.Equal(t, 1, results[0].Value)
	assert.Error(t, results[1].Err)
	assert.NoError(t, results[2].Err)
	assert.Equal(t, 3, results[2].Value)
}

// TestReceiveEndsAfterClose verifies that the Results channel closes
// once Close has been called and all outstanding results delivered.
func TestReceiveEndsAfterClose(t *testing.T) {
	p := pool.New[int](4)
	p.Close()

	_, ok := <-p.Results()
	assert.False(t, ok)
}

// TestSubmitAfterCloseFails ensures a late Submit fails rather than
// panicking or blocking forever.
func TestSubmitAfterCloseFails(t *testing.T) {
	p := pool.New[int](1)
	p.Close()

	// Drain to let the pool fully settle.
	for range p.Results() {
	}

	ok := p.Submit(func() (int, error) { return 0, nil })
	assert.False(t, ok)
}
