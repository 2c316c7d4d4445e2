package mailbox

import (
	"sync"
	"testing"
	"time"
)

func TestMailboxDeliversInOrder(t *testing.T) {
	mb := New[int]()
	var mu sync.Mutex
	var got []int

	go mb.Run(func(v int) {
		mu.Lock()
		got = append(got, v)
		mu.Unlock()
	})

	for i := 0; i < 100; i++ {
		mb.Send(i)
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		mu.Lock()
		n := len(got)
		mu.Unlock()
		if n == 100 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for delivery, got %d/100", n)
		}
		time.Sleep(time.Millisecond)
	}

	mu.Lock()
	defer mu.Unlock()
	for i, v := range got {
		if v != i {
			t.Fatalf("out of order delivery at %d: got %d", i, v)
		}
	}
}

func TestMailboxSendNeverBlocks(t *testing.T) {
	mb := New[int]()
	done := make(chan struct{})
	go func() {
		for i := 0; i < 10000; i++ {
			mb.Send(i)
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Send blocked with no consumer running")
	}
}

func TestMailboxCloseDrainsThenStops(t *testing.T) {
	mb := New[int]()
	for i := 0; i < 5; i++ {
		mb.Send(i)
	}

	var mu sync.Mutex
	var got []int
	runDone := make(chan struct{})
	go func() {
		mb.Run(func(v int) {
			mu.Lock()
			got = append(got, v)
			mu.Unlock()
		})
		close(runDone)
	}()

	mb.Close()

	select {
	case <-runDone:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop after Close")
	}

	mu.Lock()
	defer mu.Unlock()
	if len(got) != 5 {
		t.Fatalf("expected all 5 queued messages drained, got %d", len(got))
	}

	// Sends after Close are silently dropped.
	mb.Send(99)
	if mb.Len() != 0 {
		t.Fatalf("expected send after close to be dropped, queue len=%d", mb.Len())
	}
}
