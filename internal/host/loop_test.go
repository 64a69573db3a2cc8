package host

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/dropbear/gravity/internal/bridge"
)

func startLoop(t *testing.T) (*Loop, context.CancelFunc) {
	t.Helper()
	loop := NewLoop(nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		loop.Run(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return loop, cancel
}

func TestLoop_DispatchRunsListeners(t *testing.T) {
	loop, _ := startLoop(t)

	var got []string
	loop.AddEventListener("webviewclosed", func(ev bridge.Event) error {
		got = append(got, "first:"+ev.Response)
		return nil
	})
	loop.AddEventListener("webviewclosed", func(ev bridge.Event) error {
		got = append(got, "second:"+ev.Response)
		return nil
	})

	if err := loop.DispatchWait(context.Background(), "webviewclosed", bridge.Event{Response: "x"}); err != nil {
		t.Fatalf("DispatchWait: %v", err)
	}
	if len(got) != 2 || got[0] != "first:x" || got[1] != "second:x" {
		t.Errorf("listeners ran as %v", got)
	}
}

func TestLoop_ListenerErrorReturnedAndLoopSurvives(t *testing.T) {
	loop, _ := startLoop(t)
	boom := errors.New("boom")

	loop.AddEventListener("bad", func(bridge.Event) error { return boom })
	loop.AddEventListener("panicky", func(bridge.Event) error { panic("oops") })
	loop.AddEventListener("good", func(bridge.Event) error { return nil })

	if err := loop.DispatchWait(context.Background(), "bad", bridge.Event{}); !errors.Is(err, boom) {
		t.Errorf("error = %v, want boom", err)
	}
	if err := loop.DispatchWait(context.Background(), "panicky", bridge.Event{}); err == nil {
		t.Error("expected error from panicking listener")
	}
	if err := loop.DispatchWait(context.Background(), "good", bridge.Event{}); err != nil {
		t.Errorf("loop did not survive earlier failures: %v", err)
	}
}

func TestLoop_UnknownEvent(t *testing.T) {
	loop, _ := startLoop(t)

	err := loop.DispatchWait(context.Background(), "nobody", bridge.Event{})
	if !errors.Is(err, ErrNoListener) {
		t.Errorf("error = %v, want ErrNoListener", err)
	}
}

func TestLoop_PostFromLoopDoesNotBlock(t *testing.T) {
	loop, _ := startLoop(t)

	done := make(chan []int, 1)
	var order []int
	loop.Post(func() {
		order = append(order, 1)
		loop.Post(func() {
			order = append(order, 3)
			done <- order
		})
		order = append(order, 2)
	})

	select {
	case got := <-done:
		if len(got) != 3 || got[0] != 1 || got[1] != 2 || got[2] != 3 {
			t.Errorf("order = %v, want [1 2 3]", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("nested post never ran")
	}
}

func TestLoop_SerializesWork(t *testing.T) {
	loop, _ := startLoop(t)

	var (
		mu      sync.Mutex
		running int
		maxSeen int
		wg      sync.WaitGroup
	)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go loop.Post(func() {
			defer wg.Done()
			mu.Lock()
			running++
			if running > maxSeen {
				maxSeen = running
			}
			mu.Unlock()
			time.Sleep(time.Millisecond)
			mu.Lock()
			running--
			mu.Unlock()
		})
	}
	wg.Wait()

	if maxSeen != 1 {
		t.Errorf("saw %d tasks running at once, want 1", maxSeen)
	}
}

func TestLoop_StoppedRejectsWork(t *testing.T) {
	loop, cancel := startLoop(t)
	loop.AddEventListener("e", func(bridge.Event) error { return nil })
	cancel()

	deadline := time.Now().Add(2 * time.Second)
	for loop.Post(func() {}) {
		if time.Now().After(deadline) {
			t.Fatal("loop kept accepting work after cancel")
		}
		time.Sleep(5 * time.Millisecond)
	}

	select {
	case err := <-loop.Dispatch("e", bridge.Event{}):
		if !errors.Is(err, ErrLoopStopped) {
			t.Errorf("error = %v, want ErrLoopStopped", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("dispatch on stopped loop never answered")
	}
}

func TestLoop_QueuedDispatchFailsOnStop(t *testing.T) {
	loop, cancel := startLoop(t)
	loop.AddEventListener("e", func(bridge.Event) error { return nil })

	started := make(chan struct{})
	release := make(chan struct{})
	loop.Post(func() {
		close(started)
		<-release
	})
	<-started

	result := loop.Dispatch("e", bridge.Event{})
	cancel()
	close(release)

	select {
	case err := <-result:
		if !errors.Is(err, ErrLoopStopped) {
			t.Errorf("error = %v, want ErrLoopStopped", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("queued dispatch never answered")
	}
}
