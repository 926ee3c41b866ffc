package queue

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFIFOOrder(t *testing.T) {
	q := New()
	assert.Equal(t, 3, q.PushBack("G28", "G1 X10", "M105"))

	for _, want := range []string{"G28", "G1 X10", "M105"} {
		got, ok := q.PopFront()
		require.True(t, ok)
		assert.Equal(t, want, got)
	}
	_, ok := q.PopFront()
	assert.False(t, ok)
}

func TestPushFrontUnlessPreempts(t *testing.T) {
	q := New()
	q.PushBack("G1 X1", "G1 X2")

	depth, inserted := q.PushFrontUnless("M105")
	assert.True(t, inserted)
	assert.Equal(t, 2, depth)
	assert.Equal(t, []string{"M105", "G1 X1", "G1 X2"}, q.Snapshot())

	front, ok := q.Front()
	require.True(t, ok)
	assert.Equal(t, "M105", front)
	assert.Equal(t, 3, q.Len())
}

func TestPushFrontUnlessOnEmpty(t *testing.T) {
	q := New()
	depth, inserted := q.PushFrontUnless("M105")
	assert.True(t, inserted)
	assert.Zero(t, depth)
	assert.Equal(t, []string{"M105"}, q.Snapshot())
}

func TestPushFrontUnlessAlreadyAtHead(t *testing.T) {
	q := New()
	q.PushBack("M105", "G28")

	depth, inserted := q.PushFrontUnless("M105")
	assert.False(t, inserted)
	assert.Equal(t, 2, depth)
	assert.Equal(t, []string{"M105", "G28"}, q.Snapshot())
}

func TestPushFrontUnlessBehindHead(t *testing.T) {
	q := New()
	q.PushBack("G28", "M105")

	_, inserted := q.PushFrontUnless("M105")
	assert.True(t, inserted)
	assert.Equal(t, []string{"M105", "G28", "M105"}, q.Snapshot())
}

// Each insert either lands or finds the line at the head; with a consumer
// popping concurrently, nothing is lost or duplicated at the head.
func TestPushFrontUnlessConcurrentPop(t *testing.T) {
	q := New()
	const rounds = 2000

	var wg sync.WaitGroup
	var inserted, popped int
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < rounds; i++ {
			if _, ok := q.PushFrontUnless("M105"); ok {
				inserted++
			}
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < rounds; i++ {
			if _, ok := q.PopFront(); ok {
				popped++
			}
		}
	}()
	wg.Wait()

	assert.Equal(t, inserted, popped+q.Len())
	assert.LessOrEqual(t, q.Len(), 1)
}

func TestClear(t *testing.T) {
	q := New()
	q.PushBack("a", "b")
	q.Clear()
	assert.Equal(t, 0, q.Len())
	_, ok := q.Front()
	assert.False(t, ok)
}

func TestReplace(t *testing.T) {
	q := New()
	q.PushBack("a", "b", "c")
	n := q.Replace("x", "y")
	assert.Equal(t, 2, n)
	assert.Equal(t, []string{"x", "y"}, q.Snapshot())
}

func TestPushBackNothing(t *testing.T) {
	q := New()
	assert.Equal(t, 0, q.PushBack())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, q.Wait(ctx), context.DeadlineExceeded, "empty push must not wake")
}

func TestWakeBeforeWaitIsRemembered(t *testing.T) {
	q := New()
	q.PushBack("G28")

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, q.Wait(ctx))
}

func TestWaitReleasedByPush(t *testing.T) {
	q := New()
	done := make(chan error, 1)
	go func() {
		done <- q.Wait(context.Background())
	}()

	time.Sleep(10 * time.Millisecond)
	q.PushBack("G28")

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Wait was not released by PushBack")
	}
}

func TestWaitCancelled(t *testing.T) {
	q := New()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, q.Wait(ctx), context.Canceled)
}

func TestConcurrentProducersSingleConsumer(t *testing.T) {
	q := New()
	const producers, perProducer = 4, 250

	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				q.PushBack("G1")
			}
		}()
	}

	got := 0
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for got < producers*perProducer {
		if _, ok := q.PopFront(); ok {
			got++
			continue
		}
		require.NoError(t, q.Wait(ctx))
	}
	wg.Wait()
	assert.Equal(t, 0, q.Len())
}
