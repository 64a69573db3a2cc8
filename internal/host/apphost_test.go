package host

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/dropbear/gravity/internal/bridge"
	"github.com/dropbear/gravity/internal/storage"
)

type fakeLauncher struct {
	mu   sync.Mutex
	urls []string
	err  error
}

func (f *fakeLauncher) Launch(url string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.urls = append(f.urls, url)
	return f.err
}

// fakeLink completes every push with result, from its own goroutine.
type fakeLink struct {
	mu       sync.Mutex
	payloads []map[string]any
	result   error
}

func (f *fakeLink) Push(payload map[string]any, done func(error)) {
	f.mu.Lock()
	f.payloads = append(f.payloads, payload)
	result := f.result
	f.mu.Unlock()
	go done(result)
}

func openTestStore(t *testing.T) *storage.Store {
	t.Helper()
	s, err := storage.Open(":memory:")
	if err != nil {
		t.Fatalf("Open(:memory:) failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func waitFor(t *testing.T, ch <-chan string) string {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(2 * time.Second):
		t.Fatal("callback never ran")
		return ""
	}
}

func TestAppHost_OpenURL(t *testing.T) {
	loop, _ := startLoop(t)
	launcher := &fakeLauncher{}
	h := NewAppHost(loop, launcher, &fakeLink{}, nil, nil)

	h.OpenURL(bridge.ConfigURL)

	if len(launcher.urls) != 1 || launcher.urls[0] != bridge.ConfigURL {
		t.Errorf("launched %v", launcher.urls)
	}
	if h.LastURL() != bridge.ConfigURL {
		t.Errorf("LastURL = %q", h.LastURL())
	}
}

func TestAppHost_OpenURLFailureIsLogged(t *testing.T) {
	loop, _ := startLoop(t)
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	h := NewAppHost(loop, &fakeLauncher{err: errors.New("no display")}, &fakeLink{}, nil, logger)

	h.OpenURL(bridge.ConfigURL)

	if !strings.Contains(buf.String(), "no display") {
		t.Errorf("log = %s", buf.String())
	}
	if h.LastURL() != bridge.ConfigURL {
		t.Errorf("LastURL = %q", h.LastURL())
	}
}

func TestAppHost_AckRunsOnLoopAndIsRecorded(t *testing.T) {
	loop, _ := startLoop(t)
	store := openTestStore(t)
	link := &fakeLink{}
	h := NewAppHost(loop, &fakeLauncher{}, link, store, nil)

	ch := make(chan string, 1)
	loop.Post(func() {
		h.SendAppMessage(bridge.Payload{"facestyle": "analog"},
			func() { ch <- "ack" },
			func(err error) { ch <- "nack:" + err.Error() },
		)
	})

	if got := waitFor(t, ch); got != "ack" {
		t.Fatalf("callback = %q, want ack", got)
	}

	msgs, err := store.RecentMessages(10)
	if err != nil {
		t.Fatalf("RecentMessages: %v", err)
	}
	if len(msgs) != 1 {
		t.Fatalf("got %d messages, want 1", len(msgs))
	}
	if msgs[0].Status != storage.StatusAcked {
		t.Errorf("Status = %q, want acked", msgs[0].Status)
	}
	if msgs[0].PayloadJSON != `{"facestyle":"analog"}` {
		t.Errorf("PayloadJSON = %q", msgs[0].PayloadJSON)
	}
}

func TestAppHost_NackCarriesError(t *testing.T) {
	loop, _ := startLoop(t)
	store := openTestStore(t)
	h := NewAppHost(loop, &fakeLauncher{}, &fakeLink{result: errors.New("timeout")}, store, nil)

	ch := make(chan string, 1)
	h.SendAppMessage(bridge.Payload{"facestyle": "analog"},
		func() { ch <- "ack" },
		func(err error) { ch <- "nack:" + err.Error() },
	)

	if got := waitFor(t, ch); got != "nack:timeout" {
		t.Fatalf("callback = %q, want nack:timeout", got)
	}

	msgs, err := store.RecentMessages(10)
	if err != nil {
		t.Fatalf("RecentMessages: %v", err)
	}
	if len(msgs) != 1 || msgs[0].Status != storage.StatusNacked || msgs[0].LastError != "timeout" {
		t.Errorf("messages = %+v", msgs)
	}
}

// End to end through the loop: a closed event with a failing send stores the
// preference and logs the failure reason.
func TestAppHost_BridgeRoundTrip(t *testing.T) {
	loop, _ := startLoop(t)
	store := openTestStore(t)

	var buf syncBuffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	h := NewAppHost(loop, &fakeLauncher{}, &fakeLink{result: errors.New("timeout")}, store, logger)
	b := bridge.New(h, store, logger)
	b.Register(loop)

	resp, err := bridge.EncodeResponse(bridge.Payload{"facestyle": "analog"})
	if err != nil {
		t.Fatalf("EncodeResponse: %v", err)
	}
	if err := loop.DispatchWait(context.Background(), bridge.EventWebviewClosed, bridge.Event{Response: resp}); err != nil {
		t.Fatalf("DispatchWait: %v", err)
	}

	got, err := store.GetItem("facestyle")
	if err != nil || got != "analog" {
		t.Errorf("facestyle = %q, %v", got, err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for !strings.Contains(buf.String(), "options not sent to Pebble: timeout") {
		if time.Now().After(deadline) {
			t.Fatalf("failure never logged: %s", buf.String())
		}
		time.Sleep(5 * time.Millisecond)
	}
}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}
