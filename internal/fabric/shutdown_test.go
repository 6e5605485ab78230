package fabric

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestShutdownWaitsForBlockers(t *testing.T) {
	c := NewShutdownCoordinator(NewEventBus())
	release := make(chan struct{})
	var finished int32

	if err := c.SpawnBlocker("slow-task", func() {
		<-release
		atomic.StoreInt32(&finished, 1)
	}); err != nil {
		t.Fatalf("SpawnBlocker: %v", err)
	}

	shutdownDone := make(chan struct{})
	go func() {
		c.Shutdown()
		close(shutdownDone)
	}()

	select {
	case <-shutdownDone:
		t.Fatal("Shutdown returned before its blocker finished")
	case <-time.After(50 * time.Millisecond):
	}

	close(release)
	select {
	case <-shutdownDone:
	case <-time.After(time.Second):
		t.Fatal("Shutdown never returned after blocker finished")
	}
	if atomic.LoadInt32(&finished) != 1 {
		t.Fatal("blocker did not run to completion")
	}
}

func TestShutdownRunsFinishersInParallel(t *testing.T) {
	c := NewShutdownCoordinator(NewEventBus())
	var wg sync.WaitGroup
	wg.Add(2)
	start := make(chan struct{})
	var ran int32

	for i := 0; i < 2; i++ {
		_ = c.RegisterFinisher(func() {
			<-start
			atomic.AddInt32(&ran, 1)
			wg.Done()
		})
	}

	shutdownDone := make(chan struct{})
	go func() {
		c.Shutdown()
		close(shutdownDone)
	}()

	close(start)
	wg.Wait()
	select {
	case <-shutdownDone:
	case <-time.After(time.Second):
		t.Fatal("Shutdown never returned after finishers completed")
	}
	if atomic.LoadInt32(&ran) != 2 {
		t.Fatalf("expected both finishers to run, got %d", ran)
	}
}

func TestShutdownRejectsNewWorkOnceStarted(t *testing.T) {
	c := NewShutdownCoordinator(NewEventBus())
	c.Shutdown()

	if err := c.SpawnBlocker("late", func() {}); err != ErrShuttingDown {
		t.Fatalf("SpawnBlocker after shutdown: got %v, want ErrShuttingDown", err)
	}
	if err := c.RegisterFinisher(func() {}); err != ErrShuttingDown {
		t.Fatalf("RegisterFinisher after shutdown: got %v, want ErrShuttingDown", err)
	}
	if !c.ShuttingDown() {
		t.Fatal("ShuttingDown should report true")
	}
}

func TestShutdownIsIdempotent(t *testing.T) {
	c := NewShutdownCoordinator(NewEventBus())
	done := make(chan struct{})
	_ = c.RegisterFinisher(func() { close(done) })

	c.Shutdown()
	<-done
	c.Shutdown() // must not panic or block on a second close
}

func TestShutdownPanicInFinisherIsContained(t *testing.T) {
	c := NewShutdownCoordinator(NewEventBus())
	var secondRan int32
	_ = c.RegisterFinisher(func() { panic("boom") })
	_ = c.RegisterFinisher(func() { atomic.StoreInt32(&secondRan, 1) })

	done := make(chan struct{})
	go func() {
		c.Shutdown()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Shutdown hung after a finisher panicked")
	}
	if atomic.LoadInt32(&secondRan) != 1 {
		t.Fatal("a panicking finisher should not prevent others from running")
	}
}
