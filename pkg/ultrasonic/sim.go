package ultrasonic

import "sync"

// SimSensor is an in-memory Pinger for the simulator and tests. The reported
// distance and error are settable at any time.
type SimSensor struct {
	mu       sync.Mutex
	distance float64
	err      error
}

// NewSimSensor creates a simulated sensor reporting the given distance.
func NewSimSensor(distanceM float64) *SimSensor {
	return &SimSensor{distance: distanceM}
}

func (s *SimSensor) Ping() (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.distance, s.err
}

// SetDistance updates the reported distance.
func (s *SimSensor) SetDistance(d float64) {
	s.mu.Lock()
	s.distance = d
	s.mu.Unlock()
}

// SetError makes subsequent pings fail with err; nil clears the fault.
func (s *SimSensor) SetError(err error) {
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
}
