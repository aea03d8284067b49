package util

import (
	"sync"
	"testing"
	"time"
)

func TestQueueOrder(t *testing.T) {
	q := NewQueue[int]()
	defer q.Close()

	for i := 0; i < 100; i++ {
		if !q.Push(i) {
			t.Fatalf("Failed to push item %d", i)
		}
	}

	for i := 0; i < 100; i++ {
		select {
		case v := <-q.Recv():
			if v != i {
				t.Errorf("Expected %d, got %d", i, v)
			}
		case <-time.After(time.Second):
			t.Fatalf("Timeout waiting for item %d", i)
		}
	}

	select {
	case v := <-q.Recv():
		t.Errorf("Queue should be empty, but got %d", v)
	case <-time.After(10 * time.Millisecond):
	}
}

func TestQueueConcurrentProducers(t *testing.T) {
	q := NewQueue[int]()

	const producers, perProducer = 8, 500
	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				q.Push(p*perProducer + i)
			}
		}()
	}

	seen := make(map[int]bool, producers*perProducer)
	lastPerProducer := make(map[int]int)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for v := range q.Recv() {
			if seen[v] {
				t.Errorf("Duplicate item %d", v)
			}
			seen[v] = true

			// items of a single producer keep their order
			p := v / perProducer
			if last, ok := lastPerProducer[p]; ok && last > v {
				t.Errorf("Producer %d: item %d delivered after %d", p, v, last)
			}
			lastPerProducer[p] = v
		}
	}()

	wg.Wait()
	q.Close()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Timeout waiting for consumer")
	}

	if len(seen) != producers*perProducer {
		t.Errorf("Expected %d items, got %d", producers*perProducer, len(seen))
	}
}

func TestQueueCloseDrains(t *testing.T) {
	q := NewQueue[string]()
	q.Push("a")
	q.Push("b")
	q.Close()

	if q.Push("c") {
		t.Error("Expected Push to fail after Close")
	}

	var got []string
	for v := range q.Recv() {
		got = append(got, v)
	}
	if len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Errorf("Expected [a b] after close, got %v", got)
	}
	if q.Len() != 0 {
		t.Errorf("Expected empty queue, got length %d", q.Len())
	}
}

func TestQueuePushRacingClose(t *testing.T) {
	for round := 0; round < 50; round++ {
		q := NewQueue[int]()

		var accepted sync.WaitGroup
		var mu sync.Mutex
		pushed := 0
		for p := 0; p < 4; p++ {
			accepted.Add(1)
			go func() {
				defer accepted.Done()
				for i := 0; i < 100; i++ {
					if q.Push(i) {
						mu.Lock()
						pushed++
						mu.Unlock()
					}
				}
			}()
		}

		received := make(chan int)
		go func() {
			n := 0
			for range q.Recv() {
				n++
			}
			received <- n
		}()

		q.Close()
		accepted.Wait()

		select {
		case n := <-received:
			mu.Lock()
			if n != pushed {
				t.Fatalf("Round %d: %d items accepted but %d delivered", round, pushed, n)
			}
			mu.Unlock()
		case <-time.After(5 * time.Second):
			t.Fatalf("Round %d: timeout waiting for the queue to drain", round)
		}
	}
}
