package buffer

import (
	"sync"
	"testing"
	"time"
)

// next pops one item without blocking.
func next(q *Growable[int]) (int, bool) {
	items := q.DrainTo(1)
	if len(items) == 0 {
		return 0, false
	}
	return items[0], true
}

func TestGrowable_FIFO(t *testing.T) {
	q := New[int](10)

	for i := 0; i < 5; i++ {
		if !q.Send(i) {
			t.Fatalf("Send(%d) returned false", i)
		}
	}
	if q.Len() != 5 {
		t.Errorf("Len() = %d, want 5", q.Len())
	}

	for i := 0; i < 5; i++ {
		v, ok := next(q)
		if !ok {
			t.Fatalf("next() returned false for item %d", i)
		}
		if v != i {
			t.Errorf("received %d, want %d", v, i)
		}
	}
	if _, ok := next(q); ok {
		t.Error("next() on empty queue returned true")
	}
}

func TestGrowable_GrowsAtThreshold(t *testing.T) {
	q := New[int](10)

	for i := 0; i < 7; i++ {
		q.Send(i)
	}

	stats := q.Stats()
	if stats.Cap <= 10 {
		t.Errorf("Cap = %d, expected growth after 70%% fill", stats.Cap)
	}
	if stats.Resizes != 1 {
		t.Errorf("Resizes = %d, want 1", stats.Resizes)
	}
	for i := 0; i < 7; i++ {
		if v, _ := next(q); v != i {
			t.Errorf("received %d, want %d", v, i)
		}
	}
}

func TestGrowable_NeverDrops(t *testing.T) {
	q := New[int](1)

	for i := 0; i < 1000; i++ {
		if !q.Send(i) {
			t.Fatalf("Send(%d) returned false", i)
		}
	}

	got := q.DrainTo(0)
	if len(got) != 1000 {
		t.Fatalf("DrainTo returned %d items, want 1000", len(got))
	}
	for i, v := range got {
		if v != i {
			t.Fatalf("item %d = %d, order not preserved", i, v)
		}
	}
}

func TestGrowable_WrapAroundThenGrow(t *testing.T) {
	q := New[int](10)

	// Move head forward so the live window wraps before the resize.
	for i := 0; i < 5; i++ {
		q.Send(i)
	}
	q.DrainTo(4)
	for i := 5; i < 20; i++ {
		q.Send(i)
	}

	got := q.DrainTo(0)
	if len(got) != 16 {
		t.Fatalf("len = %d, want 16", len(got))
	}
	for i, v := range got {
		if v != i+4 {
			t.Errorf("got[%d] = %d, want %d", i, v, i+4)
		}
	}
}

func TestGrowable_DrainToLimit(t *testing.T) {
	q := New[string](4)
	q.Send("a")
	q.Send("b")
	q.Send("c")

	got := q.DrainTo(2)
	if len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Errorf("DrainTo(2) = %v, want [a b]", got)
	}
	if q.Len() != 1 {
		t.Errorf("Len() = %d, want 1", q.Len())
	}
	if got := New[int](2).DrainTo(0); got != nil {
		t.Errorf("DrainTo on empty = %v, want nil", got)
	}
}

func TestGrowable_BlockingReceive(t *testing.T) {
	q := New[int](4)
	done := make(chan int, 1)

	go func() {
		v, ok := q.Receive()
		if ok {
			done <- v
		}
	}()

	time.Sleep(20 * time.Millisecond)
	q.Send(42)

	select {
	case v := <-done:
		if v != 42 {
			t.Errorf("Receive() = %d, want 42", v)
		}
	case <-time.After(time.Second):
		t.Fatal("Receive() did not unblock after Send")
	}
}

func TestGrowable_CloseDrainsThenStops(t *testing.T) {
	q := New[int](4)
	q.Send(1)
	q.Send(2)
	q.Close()

	if q.Send(3) {
		t.Error("Send after Close returned true")
	}
	for _, want := range []int{1, 2} {
		v, ok := q.Receive()
		if !ok || v != want {
			t.Errorf("Receive() = %d, %v, want %d, true", v, ok, want)
		}
	}
	if _, ok := q.Receive(); ok {
		t.Error("Receive() on closed empty queue returned true")
	}
}

func TestGrowable_CloseUnblocksReceivers(t *testing.T) {
	q := New[int](4)
	var wg sync.WaitGroup

	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			q.Receive()
		}()
	}

	time.Sleep(20 * time.Millisecond)
	q.Close()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("receivers still blocked after Close")
	}
}

func TestGrowable_ConcurrentProducers(t *testing.T) {
	q := New[int](8)
	const producers, perProducer = 8, 500

	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				q.Send(i)
			}
		}()
	}

	received := 0
	consumed := make(chan struct{})
	go func() {
		defer close(consumed)
		for {
			if _, ok := q.Receive(); !ok {
				return
			}
			received++
		}
	}()

	wg.Wait()
	q.Close()
	<-consumed

	if received != producers*perProducer {
		t.Errorf("received %d, want %d", received, producers*perProducer)
	}

	stats := q.Stats()
	if stats.Sent != producers*perProducer || stats.Received != producers*perProducer {
		t.Errorf("Stats = %+v", stats)
	}
}
