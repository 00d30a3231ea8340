package ultrasonic

import (
	"io"
	"testing"
)

// mockPort feeds canned bytes to the frame scanner.
type mockPort struct {
	data   []byte
	closed bool
}

func (m *mockPort) Read(p []byte) (int, error) {
	if len(m.data) == 0 {
		return 0, io.EOF
	}
	n := copy(p, m.data)
	m.data = m.data[n:]
	return n, nil
}

func (m *mockPort) Write(p []byte) (int, error) { return len(p), nil }

func (m *mockPort) Close() error {
	m.closed = true
	return nil
}

func TestPing_ParsesFrames(t *testing.T) {
	s := NewSerialSensor(&mockPort{data: []byte("R1250\rR0043\r")})

	d, err := s.Ping()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d != 1.25 {
		t.Errorf("first frame: got %v, want 1.25", d)
	}

	d, err = s.Ping()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d != 0.043 {
		t.Errorf("second frame: got %v, want 0.043", d)
	}
}

func TestPing_MalformedFrame(t *testing.T) {
	for _, raw := range []string{"X1250\r", "R\r", "R12a0\r"} {
		s := NewSerialSensor(&mockPort{data: []byte(raw)})
		if _, err := s.Ping(); err == nil {
			t.Errorf("frame %q: expected error", raw)
		}
	}
}

func TestPing_StreamEnd(t *testing.T) {
	s := NewSerialSensor(&mockPort{})
	if _, err := s.Ping(); err == nil {
		t.Error("expected error on drained stream")
	}
}

func TestClose_ReleasesPort(t *testing.T) {
	port := &mockPort{}
	s := NewSerialSensor(port)
	if err := s.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if !port.closed {
		t.Error("port not closed")
	}
}

func TestSerialAndFilter(t *testing.T) {
	// A partial frame followed by good ones, through the retry filter.
	port := &mockPort{data: []byte("50\rR0760\rR0770\r")}
	f := NewFiltered(NewSerialSensor(port))
	f.retryGap = 0

	d, err := f.ReadDistance()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d != 0.76 {
		t.Errorf("got %v, want 0.76", d)
	}
}
