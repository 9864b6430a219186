package bus

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestQueuePublishConsume(t *testing.T) {
	q := NewQueue[int](4)
	for i := 0; i < 4; i++ {
		if err := q.TryPublish(i); err != nil {
			t.Fatalf("publish %d failed: %v", i, err)
		}
	}

	if err := q.TryPublish(99); !errors.Is(err, ErrQueueFull) {
		t.Fatalf("publish to full queue = %v, want ErrQueueFull", err)
	}

	q.Close()

	var got []int
	q.Drain(func(v int) { got = append(got, v) })
	if len(got) != 4 {
		t.Fatalf("drained %d items, want 4", len(got))
	}
	for i, v := range got {
		if v != i {
			t.Fatalf("got[%d] = %d, want %d", i, v, i)
		}
	}
}

func TestQueueClosedRejectsPublish(t *testing.T) {
	q := NewQueue[string](1)
	q.Close()
	q.Close() // second close is a no-op

	if err := q.TryPublish("x"); !errors.Is(err, ErrQueueClosed) {
		t.Fatalf("publish after close = %v, want ErrQueueClosed", err)
	}
	if err := q.Publish(t.Context(), "x"); !errors.Is(err, ErrQueueClosed) {
		t.Fatalf("blocking publish after close = %v, want ErrQueueClosed", err)
	}
}

func TestQueuePublishBackpressure(t *testing.T) {
	q := NewQueue[int](1)
	if err := q.Publish(t.Context(), 1); err != nil {
		t.Fatalf("publish failed: %v", err)
	}

	ctx, cancel := context.WithTimeout(t.Context(), 20*time.Millisecond)
	defer cancel()
	err := q.Publish(ctx, 2)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("publish to full queue = %v, want deadline exceeded", err)
	}
}

// Closing while producers are mid-publish must never close the channel
// out from under a sender. Publishers either land their item or get
// ErrQueueClosed.
func TestQueueCloseDuringConcurrentPublish(t *testing.T) {
	q := NewQueue[int](1)

	drained := make(chan struct{})
	go func() {
		defer close(drained)
		q.Drain(func(int) {})
	}()

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				if err := q.Publish(context.Background(), j); err != nil {
					if !errors.Is(err, ErrQueueClosed) {
						t.Errorf("publish = %v, want ErrQueueClosed", err)
					}
					return
				}
			}
		}()
	}

	time.Sleep(5 * time.Millisecond)
	q.Close()
	wg.Wait()

	select {
	case <-drained:
	case <-time.After(time.Second):
		t.Fatal("drain did not finish after close")
	}
}

func TestQueueRunStopsOnContext(t *testing.T) {
	q := NewQueue[int](8)
	ctx, cancel := context.WithCancel(t.Context())

	done := make(chan struct{})
	var seen int
	go func() {
		defer close(done)
		q.Run(ctx, func(int) { seen++ })
	}()

	for i := 0; i < 3; i++ {
		if err := q.TryPublish(i); err != nil {
			t.Fatalf("publish failed: %v", err)
		}
	}
	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not stop on context cancel")
	}
	if seen != 3 {
		t.Fatalf("seen = %d, want 3", seen)
	}
}
