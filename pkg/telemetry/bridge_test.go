package telemetry

import (
	"context"
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

type fixedFrames struct{ jpeg []byte }

func (f *fixedFrames) Frame() ([]byte, error) { return f.jpeg, nil }

type fixedDistance struct{ d float64 }

func (f *fixedDistance) ReadDistance() (float64, error) { return f.d, nil }

type fixedMotors struct{ left, right float64 }

func (f *fixedMotors) Velocities() (float64, float64) { return f.left, f.right }

// fakeServer is an in-process detection server. Received client messages are
// delivered on inbound; test cases push raw server responses via send.
type fakeServer struct {
	server  *httptest.Server
	inbound chan []byte
	send    chan []byte

	// Upgraded websocket conns are hijacked out of the httptest server's
	// tracking, so CloseClientConnections cannot reach them; the fake tracks
	// them itself to force disconnects.
	connMu sync.Mutex
	conns  []*websocket.Conn
}

// closeClientConnections force-closes every upgraded websocket connection.
func (fs *fakeServer) closeClientConnections() {
	fs.connMu.Lock()
	defer fs.connMu.Unlock()
	for _, c := range fs.conns {
		c.Close()
	}
	fs.conns = nil
}

func newFakeServer(t *testing.T) *fakeServer {
	t.Helper()
	fs := &fakeServer{
		inbound: make(chan []byte, 64),
		send:    make(chan []byte, 16),
	}

	upgrader := websocket.Upgrader{}
	fs.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		defer conn.Close()

		fs.connMu.Lock()
		fs.conns = append(fs.conns, conn)
		fs.connMu.Unlock()

		go func() {
			for msg := range fs.send {
				if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
					return
				}
			}
		}()

		for {
			_, raw, err := conn.ReadMessage()
			if err != nil {
				return
			}
			select {
			case fs.inbound <- raw:
			default:
			}
		}
	}))
	t.Cleanup(fs.server.Close)
	return fs
}

func (fs *fakeServer) url() string {
	return "ws" + strings.TrimPrefix(fs.server.URL, "http")
}

func startBridge(t *testing.T, fs *fakeServer) *Bridge {
	t.Helper()
	b := NewBridge(Config{
		URL:            fs.url(),
		FrameInterval:  10 * time.Millisecond,
		LabelsTimeout:  200 * time.Millisecond,
		ReconnectDelay: 20 * time.Millisecond,
	}, &fixedFrames{jpeg: []byte("jpegdata")}, &fixedDistance{d: 0.75}, &fixedMotors{left: 0.4, right: 0.5}, nil)

	if err := b.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	t.Cleanup(func() { b.Close() })
	return b
}

func waitFor(t *testing.T, cond func() bool, what string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestBridge_StreamsFrames(t *testing.T) {
	fs := newFakeServer(t)
	b := startBridge(t, fs)
	waitFor(t, b.Connected, "connection")

	select {
	case raw := <-fs.inbound:
		s := string(raw)
		if !strings.Contains(s, `"type":"frame"`) {
			t.Fatalf("not a frame message: %s", s)
		}
		encoded := base64.StdEncoding.EncodeToString([]byte("jpegdata"))
		if !strings.Contains(s, encoded) {
			t.Error("frame image missing or not base64")
		}
		if !strings.Contains(s, `"distance_m":0.75`) || !strings.Contains(s, `"distance_cm":75`) {
			t.Errorf("ultrasonic missing: %s", s)
		}
		if !strings.Contains(s, `"left":0.4`) || !strings.Contains(s, `"right":0.5`) {
			t.Errorf("motor state missing: %s", s)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no frame received")
	}
}

func TestBridge_CachesDetections(t *testing.T) {
	fs := newFakeServer(t)
	b := startBridge(t, fs)
	waitFor(t, b.Connected, "connection")

	if b.Detections() != nil {
		t.Fatal("cache not empty before first result")
	}

	fs.send <- []byte(`{"type":"detections","detections":[` +
		`{"class_id":0,"class_name":"cup","confidence":0.91,` +
		`"box":{"x1":100,"y1":50,"x2":300,"y2":250}}],` +
		`"num_detections":1,"model":"yoloe-v8l","labels":["cup"]}`)

	waitFor(t, func() bool { return b.Detections() != nil }, "first detection")

	frame := b.Detections()
	if len(frame.Detections) != 1 {
		t.Fatalf("detections: got %d, want 1", len(frame.Detections))
	}
	d := frame.Detections[0]
	if d.ClassName != "cup" || d.Confidence != 0.91 {
		t.Errorf("detection fields: %+v", d)
	}
	if cx := d.Box.CenterX(); cx != 200 {
		t.Errorf("center x: got %v, want 200", cx)
	}

	// A new result replaces the whole frame.
	fs.send <- []byte(`{"type":"detections","detections":[],"num_detections":0,"labels":["cup"]}`)
	waitFor(t, func() bool {
		f := b.Detections()
		return f != nil && len(f.Detections) == 0
	}, "replacement result")
}

func TestBridge_SetLabelsAcknowledged(t *testing.T) {
	fs := newFakeServer(t)
	b := startBridge(t, fs)
	waitFor(t, b.Connected, "connection")

	go func() {
		// Wait for the set_labels request, then acknowledge it.
		deadline := time.After(2 * time.Second)
		for {
			select {
			case raw := <-fs.inbound:
				if strings.Contains(string(raw), `"type":"set_labels"`) {
					fs.send <- []byte(`{"type":"labels_response","success":true,"labels":["bottle"]}`)
					return
				}
			case <-deadline:
				return
			}
		}
	}()

	confirmed, err := b.SetLabels(context.Background(), []string{"bottle"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !confirmed {
		t.Error("acknowledged request reported unconfirmed")
	}
}

func TestBridge_SetLabelsConcurrentRejected(t *testing.T) {
	fs := newFakeServer(t)
	b := startBridge(t, fs)
	waitFor(t, b.Connected, "connection")

	first := make(chan bool, 1)
	go func() {
		confirmed, err := b.SetLabels(context.Background(), []string{"bottle"})
		if err != nil {
			t.Errorf("first request failed: %v", err)
		}
		first <- confirmed
	}()

	// Wait until the first request is on the wire, then race a second one.
	deadline := time.After(2 * time.Second)
	for waiting := true; waiting; {
		select {
		case raw := <-fs.inbound:
			if strings.Contains(string(raw), `"type":"set_labels"`) {
				waiting = false
			}
		case <-deadline:
			t.Fatal("set_labels never sent")
		}
	}

	if _, err := b.SetLabels(context.Background(), []string{"cup"}); err == nil {
		t.Error("concurrent request accepted")
	}

	fs.send <- []byte(`{"type":"labels_response","success":true,"labels":["bottle"]}`)
	select {
	case confirmed := <-first:
		if !confirmed {
			t.Error("first request lost its acknowledgment")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("first request never completed")
	}

	// With the first settled, a new request goes through again (and times
	// out unconfirmed, which is not an error).
	if _, err := b.SetLabels(context.Background(), []string{"cup"}); err != nil {
		t.Errorf("follow-up request rejected: %v", err)
	}
}

func TestBridge_InboundDuringStalledWrite(t *testing.T) {
	fs := newFakeServer(t)
	b := startBridge(t, fs)
	waitFor(t, b.Connected, "connection")

	// A writer stalled mid-send holds only the write lock; detections must
	// keep landing in the cache regardless.
	b.writeMu.Lock()
	defer b.writeMu.Unlock()

	fs.send <- []byte(`{"type":"detections","detections":[],"num_detections":0,"labels":["cup"]}`)
	waitFor(t, func() bool { return b.Detections() != nil }, "detections during a stalled write")
}

func TestBridge_SetLabelsTimeout(t *testing.T) {
	fs := newFakeServer(t)
	b := startBridge(t, fs)
	waitFor(t, b.Connected, "connection")

	// The server never acknowledges. Timeout means unconfirmed, not failed.
	confirmed, err := b.SetLabels(context.Background(), []string{"bottle"})
	if err != nil {
		t.Fatalf("timeout must not be an error: %v", err)
	}
	if confirmed {
		t.Error("unacknowledged request reported confirmed")
	}
}

func TestBridge_MalformedMessagesDropped(t *testing.T) {
	fs := newFakeServer(t)
	b := startBridge(t, fs)
	waitFor(t, b.Connected, "connection")

	fs.send <- []byte(`{not json`)
	fs.send <- []byte(`{"type":"bogus"}`)
	fs.send <- []byte(`{"type":"detections","detections":[],"num_detections":0}`)

	// The stream survives garbage and still delivers the valid result.
	waitFor(t, func() bool { return b.Detections() != nil }, "valid result after garbage")
}

func TestBridge_StaleCacheSurvivesDisconnect(t *testing.T) {
	fs := newFakeServer(t)
	b := startBridge(t, fs)
	waitFor(t, b.Connected, "connection")

	fs.send <- []byte(`{"type":"detections","detections":[],"num_detections":0,"labels":["cup"]}`)
	waitFor(t, func() bool { return b.Detections() != nil }, "first detection")

	fs.closeClientConnections()
	waitFor(t, func() bool { return !b.Connected() }, "disconnect")

	if b.Detections() == nil {
		t.Error("cache cleared on disconnect")
	}

	// The fixed-delay reconnect loop re-establishes the link.
	waitFor(t, b.Connected, "reconnect")
}
