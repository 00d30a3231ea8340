package hub

import (
	"context"
	"testing"
	"time"
)

func waitFor(t *testing.T, cond func() bool, what string) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestHub_BroadcastReachesClients(t *testing.T) {
	h := New(nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go h.Run(ctx)
	waitFor(t, h.Running, "hub start")

	a := &Client{hub: h, send: make(chan []byte, 4)}
	b := &Client{hub: h, send: make(chan []byte, 4)}
	h.register <- a
	h.register <- b
	waitFor(t, func() bool { return h.ClientCount() == 2 }, "registrations")

	if err := h.BroadcastJSON(map[string]string{"status": "ok"}); err != nil {
		t.Fatalf("broadcast: %v", err)
	}

	for _, c := range []*Client{a, b} {
		select {
		case msg := <-c.send:
			if string(msg) != `{"status":"ok"}` {
				t.Errorf("payload: %s", msg)
			}
		case <-time.After(time.Second):
			t.Fatal("client did not receive broadcast")
		}
	}
}

func TestHub_UnregisterClosesSend(t *testing.T) {
	h := New(nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go h.Run(ctx)

	c := &Client{hub: h, send: make(chan []byte, 4)}
	h.register <- c
	waitFor(t, func() bool { return h.ClientCount() == 1 }, "registration")

	h.unregister <- c
	waitFor(t, func() bool { return h.ClientCount() == 0 }, "unregistration")

	if _, ok := <-c.send; ok {
		t.Error("send channel not closed on unregister")
	}
}

func TestHub_DropsSlowClient(t *testing.T) {
	h := New(nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go h.Run(ctx)

	// No send buffer: any broadcast overflows immediately.
	slow := &Client{hub: h, send: make(chan []byte)}
	h.register <- slow
	waitFor(t, func() bool { return h.ClientCount() == 1 }, "registration")

	h.Broadcast([]byte("snapshot"))
	waitFor(t, func() bool { return h.ClientCount() == 0 }, "slow client drop")
}

func TestHub_ShutdownClosesClients(t *testing.T) {
	h := New(nil)
	ctx, cancel := context.WithCancel(context.Background())
	go h.Run(ctx)

	c := &Client{hub: h, send: make(chan []byte, 4)}
	h.register <- c
	waitFor(t, func() bool { return h.ClientCount() == 1 }, "registration")

	cancel()
	waitFor(t, func() bool { return !h.Running() }, "hub stop")

	if _, ok := <-c.send; ok {
		t.Error("send channel not closed on shutdown")
	}
}
