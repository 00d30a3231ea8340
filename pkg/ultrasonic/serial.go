package ultrasonic

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"go.bug.st/serial"
)

// Porter is the minimal serial port surface the driver needs. The real port
// comes from go.bug.st/serial; tests substitute an in-memory implementation.
type Porter interface {
	io.ReadWriteCloser
}

// SerialSensor reads a rangefinder that streams ASCII frames over UART, one
// reading per line in the form "Rxxxx" with xxxx the distance in millimeters
// (MaxBotix serial output format).
type SerialSensor struct {
	port    Porter
	scanner *bufio.Scanner
}

// OpenSerial opens the rangefinder on the given device path.
func OpenSerial(path string) (*SerialSensor, error) {
	mode := &serial.Mode{
		BaudRate: 9600,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}

	port, err := serial.Open(path, mode)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	port.SetReadTimeout(100 * time.Millisecond)

	return NewSerialSensor(port), nil
}

// NewSerialSensor wraps an already-open port.
func NewSerialSensor(port Porter) *SerialSensor {
	s := bufio.NewScanner(port)
	s.Split(scanFrames)
	return &SerialSensor{port: port, scanner: s}
}

// Ping reads the next frame from the stream and converts it to meters.
func (s *SerialSensor) Ping() (float64, error) {
	if !s.scanner.Scan() {
		if err := s.scanner.Err(); err != nil {
			return 0, fmt.Errorf("serial read: %w", err)
		}
		return 0, io.EOF
	}
	return parseFrame(s.scanner.Text())
}

// Close releases the serial port.
func (s *SerialSensor) Close() error {
	return s.port.Close()
}

// parseFrame converts one "Rxxxx" frame to meters.
func parseFrame(frame string) (float64, error) {
	frame = strings.TrimSpace(frame)
	if len(frame) < 2 || frame[0] != 'R' {
		return 0, fmt.Errorf("malformed frame %q", frame)
	}
	mm, err := strconv.Atoi(frame[1:])
	if err != nil {
		return 0, fmt.Errorf("malformed frame %q: %w", frame, err)
	}
	return float64(mm) / 1000.0, nil
}

// scanFrames splits the stream on carriage returns, the frame terminator
// used by the sensor.
func scanFrames(data []byte, atEOF bool) (advance int, token []byte, err error) {
	for i, b := range data {
		if b == '\r' || b == '\n' {
			return i + 1, data[:i], nil
		}
	}
	if atEOF && len(data) > 0 {
		return len(data), data, nil
	}
	return 0, nil, nil
}
