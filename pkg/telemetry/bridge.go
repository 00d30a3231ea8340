package telemetry

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	defaultFrameInterval  = 33 * time.Millisecond
	defaultLabelsTimeout  = 5 * time.Second
	defaultReconnectDelay = 2 * time.Second
	handshakeTimeout      = 10 * time.Second
)

// Config configures the detection-server link.
type Config struct {
	// URL is the websocket endpoint of the detection server.
	URL string

	// FrameInterval is the outbound frame period. The default streams at
	// roughly 30 Hz.
	FrameInterval time.Duration

	// LabelsTimeout bounds the wait for a set_labels acknowledgment.
	LabelsTimeout time.Duration

	// ReconnectDelay is the fixed pause between reconnect attempts. The
	// server is on the local network, so backoff growth buys nothing.
	ReconnectDelay time.Duration
}

func (c *Config) applyDefaults() {
	if c.FrameInterval <= 0 {
		c.FrameInterval = defaultFrameInterval
	}
	if c.LabelsTimeout <= 0 {
		c.LabelsTimeout = defaultLabelsTimeout
	}
	if c.ReconnectDelay <= 0 {
		c.ReconnectDelay = defaultReconnectDelay
	}
}

// FrameSource produces the current camera frame as JPEG bytes.
type FrameSource interface {
	Frame() ([]byte, error)
}

// DistanceReader reads the forward obstacle distance in meters.
type DistanceReader interface {
	ReadDistance() (float64, error)
}

// MotorReader reports the currently commanded wheel pair.
type MotorReader interface {
	Velocities() (left, right float64)
}

// Bridge is the duplex client to the detection server. Frames stream out on
// a fixed cadence; detection results land in the single-slot cache. The link
// is best-effort: a down server never blocks robot motion, and the bridge
// reconnects on a fixed delay until closed.
type Bridge struct {
	cfg    Config
	logger *slog.Logger

	frames   FrameSource
	distance DistanceReader
	motors   MotorReader

	cache Cache

	conn         *websocket.Conn
	connMu       sync.Mutex
	connected    bool
	reconnecting bool

	// writeMu serializes writers without covering connection state, so a
	// slow outbound send never blocks the read side's access to the conn.
	writeMu sync.Mutex

	pendingMu sync.Mutex
	pending   chan LabelsResponse

	ctx       context.Context
	cancel    context.CancelFunc
	closeCh   chan struct{}
	closeOnce sync.Once
}

// NewBridge creates a bridge streaming from the given sources. distance and
// motors may be nil; the corresponding frame fields are then omitted.
func NewBridge(cfg Config, frames FrameSource, distance DistanceReader, motors MotorReader, logger *slog.Logger) *Bridge {
	cfg.applyDefaults()
	if logger == nil {
		logger = slog.Default()
	}
	return &Bridge{
		cfg:      cfg,
		logger:   logger.With("component", "telemetry"),
		frames:   frames,
		distance: distance,
		motors:   motors,
		closeCh:  make(chan struct{}),
	}
}

// Start connects to the detection server and launches the stream loops. A
// failed initial dial is not fatal: the bridge keeps retrying in the
// background and the rest of the robot runs without detections.
func (b *Bridge) Start(ctx context.Context) error {
	b.ctx, b.cancel = context.WithCancel(ctx)

	if err := b.dial(); err != nil {
		b.logger.Warn("detection server unavailable, will retry",
			"url", b.cfg.URL, "error", err)
		b.connMu.Lock()
		b.reconnecting = true
		b.connMu.Unlock()
		go b.reconnectLoop()
	}

	go b.readLoop()
	go b.sendLoop()
	return nil
}

// Close tears the link down and stops all loops.
func (b *Bridge) Close() error {
	b.closeOnce.Do(func() {
		if b.cancel != nil {
			b.cancel()
		}
		close(b.closeCh)
	})

	b.connMu.Lock()
	defer b.connMu.Unlock()
	if b.conn != nil {
		b.conn.Close()
		b.conn = nil
	}
	b.connected = false
	return nil
}

// Connected reports whether the link is currently up.
func (b *Bridge) Connected() bool {
	b.connMu.Lock()
	defer b.connMu.Unlock()
	return b.connected
}

// Detections returns the most recent cached detection frame, or nil before
// the first result. The frame may be stale; callers check Age when freshness
// matters.
func (b *Bridge) Detections() *DetectionFrame {
	return b.cache.Latest()
}

// SetLabels asks the detection server to switch its label set and waits up
// to the configured timeout for the acknowledgment. The returned bool
// reports confirmation: (false, nil) means the request was sent but the
// server did not acknowledge in time, which callers treat as unconfirmed
// rather than failed. One request may be in flight at a time; a concurrent
// call errors rather than hijacking the pending acknowledgment.
func (b *Bridge) SetLabels(ctx context.Context, labels []string) (bool, error) {
	ack := make(chan LabelsResponse, 1)
	b.pendingMu.Lock()
	if b.pending != nil {
		b.pendingMu.Unlock()
		return false, fmt.Errorf("set_labels already in flight")
	}
	b.pending = ack
	b.pendingMu.Unlock()

	defer func() {
		b.pendingMu.Lock()
		if b.pending == ack {
			b.pending = nil
		}
		b.pendingMu.Unlock()
	}()

	msg := SetLabelsMessage{Type: TypeSetLabels, Labels: labels}
	if err := b.writeJSON(msg); err != nil {
		return false, fmt.Errorf("send set_labels: %w", err)
	}
	b.logger.Info("label set requested", "labels", labels)

	timer := time.NewTimer(b.cfg.LabelsTimeout)
	defer timer.Stop()

	select {
	case resp := <-ack:
		return resp.Success, nil
	case <-timer.C:
		b.logger.Warn("set_labels not acknowledged", "timeout", b.cfg.LabelsTimeout)
		return false, nil
	case <-ctx.Done():
		return false, ctx.Err()
	}
}

func (b *Bridge) dial() error {
	dialer := websocket.Dialer{HandshakeTimeout: handshakeTimeout}
	conn, _, err := dialer.DialContext(b.ctx, b.cfg.URL, nil)
	if err != nil {
		return err
	}

	b.connMu.Lock()
	b.conn = conn
	b.connected = true
	b.connMu.Unlock()

	b.logger.Info("detection server connected", "url", b.cfg.URL)
	return nil
}

// sendLoop streams one frame message per interval while connected.
func (b *Bridge) sendLoop() {
	ticker := time.NewTicker(b.cfg.FrameInterval)
	defer ticker.Stop()

	for {
		select {
		case <-b.ctx.Done():
			return
		case <-b.closeCh:
			return
		case <-ticker.C:
			if !b.Connected() {
				continue
			}
			msg, err := b.buildFrame()
			if err != nil {
				b.logger.Debug("frame skipped", "error", err)
				continue
			}
			if err := b.writeJSON(msg); err != nil {
				b.logger.Warn("frame send failed", "error", err)
			}
		}
	}
}

// buildFrame captures the camera frame and samples sensor and motor state.
func (b *Bridge) buildFrame() (FrameMessage, error) {
	jpeg, err := b.frames.Frame()
	if err != nil {
		return FrameMessage{}, err
	}

	msg := FrameMessage{
		Type:  TypeFrame,
		Image: base64.StdEncoding.EncodeToString(jpeg),
	}
	if b.distance != nil {
		if d, err := b.distance.ReadDistance(); err == nil {
			msg.Ultrasonic = &UltrasonicReading{DistanceM: d, DistanceCM: d * 100}
		}
	}
	if b.motors != nil {
		left, right := b.motors.Velocities()
		msg.Motors = MotorState{Left: left, Right: right}
	}
	return msg, nil
}

// readLoop consumes server messages and dispatches by type. Malformed
// messages are dropped; the detection stream is lossy by design.
func (b *Bridge) readLoop() {
	for {
		select {
		case <-b.ctx.Done():
			return
		case <-b.closeCh:
			return
		default:
		}

		b.connMu.Lock()
		conn := b.conn
		b.connMu.Unlock()

		if conn == nil {
			time.Sleep(100 * time.Millisecond)
			continue
		}

		_, raw, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				b.logger.Warn("read error", "error", err)
			}
			b.handleDisconnect()
			continue
		}

		var env envelope
		if err := json.Unmarshal(raw, &env); err != nil {
			b.logger.Warn("unparseable message dropped", "error", err)
			continue
		}

		switch env.Type {
		case TypeDetections:
			b.handleDetections(raw)
		case TypeLabelsResponse:
			b.handleLabelsResponse(raw)
		default:
			b.logger.Debug("unknown message type", "type", env.Type)
		}
	}
}

func (b *Bridge) handleDetections(raw []byte) {
	var msg DetectionsMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		b.logger.Warn("malformed detections dropped", "error", err)
		return
	}
	b.cache.Store(&DetectionFrame{
		Detections: msg.Detections,
		Labels:     msg.Labels,
		Model:      msg.Model,
		ReceivedAt: time.Now(),
	})
}

func (b *Bridge) handleLabelsResponse(raw []byte) {
	var msg LabelsResponse
	if err := json.Unmarshal(raw, &msg); err != nil {
		b.logger.Warn("malformed labels_response dropped", "error", err)
		return
	}

	b.pendingMu.Lock()
	ack := b.pending
	b.pending = nil
	b.pendingMu.Unlock()

	if ack != nil {
		select {
		case ack <- msg:
		default:
		}
	}
}

// writeJSON serializes one write; gorilla connections allow a single
// concurrent writer. connMu is held only to snapshot the conn pointer, never
// across the network write, so inbound reads proceed while a send is slow.
func (b *Bridge) writeJSON(v any) error {
	b.writeMu.Lock()
	defer b.writeMu.Unlock()

	b.connMu.Lock()
	conn, connected := b.conn, b.connected
	b.connMu.Unlock()

	if !connected || conn == nil {
		return fmt.Errorf("not connected")
	}
	if err := conn.WriteJSON(v); err != nil {
		b.handleDisconnect()
		return err
	}
	return nil
}

// handleDisconnect drops the connection and starts a single reconnect loop.
// The detection cache is left untouched; stale results stay readable.
func (b *Bridge) handleDisconnect() {
	b.connMu.Lock()
	b.disconnectLocked()
	b.connMu.Unlock()
}

func (b *Bridge) disconnectLocked() {
	if b.conn != nil {
		b.conn.Close()
		b.conn = nil
	}
	b.connected = false
	if !b.reconnecting {
		b.reconnecting = true
		go b.reconnectLoop()
	}
}

// reconnectLoop retries the dial on a fixed delay until the bridge closes.
func (b *Bridge) reconnectLoop() {
	for {
		select {
		case <-b.ctx.Done():
			return
		case <-b.closeCh:
			return
		case <-time.After(b.cfg.ReconnectDelay):
		}

		if err := b.dial(); err != nil {
			b.logger.Debug("reconnect failed", "error", err)
			continue
		}

		b.connMu.Lock()
		b.reconnecting = false
		b.connMu.Unlock()
		return
	}
}
