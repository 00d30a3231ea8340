package drive

import (
	"fmt"
	"math"
	"sync"
	"time"

	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/host/v3"
)

// PCA9685 registers.
const (
	regMode1    = 0x00
	regPrescale = 0xFE
	regLED0OnL  = 0x06

	mode1Sleep     = 0x10
	mode1AutoInc   = 0x20
	mode1Restart   = 0x80
	oscillatorHz   = 25_000_000
	pwmResolution  = 4096
	pwmFrequencyHz = 1600
)

// Default wiring of the stock motor board.
const (
	DefaultHATBus  = "7"
	DefaultHATAddr = 0x60

	leftMotorPort  = 1
	rightMotorPort = 2
)

// motorPins maps a motor port to its PWM and direction channels on the
// PCA9685, per the board layout.
var motorPins = map[int][3]int{
	1: {8, 10, 9}, // pwm, in1, in2
	2: {13, 11, 12},
	3: {2, 4, 3},
	4: {7, 5, 6},
}

// MotorHAT drives the two wheels through the PCA9685-based motor board on
// the I2C bus. It implements Motors.
type MotorHAT struct {
	mu  sync.Mutex
	bus i2c.BusCloser
	dev *i2c.Dev
}

// OpenMotorHAT initializes the I2C bus and configures the PWM controller.
// Empty busName and zero addr select the stock wiring.
func OpenMotorHAT(busName string, addr uint16) (*MotorHAT, error) {
	if busName == "" {
		busName = DefaultHATBus
	}
	if addr == 0 {
		addr = DefaultHATAddr
	}

	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("host init: %w", err)
	}
	bus, err := i2creg.Open(busName)
	if err != nil {
		return nil, fmt.Errorf("open i2c bus %s: %w", busName, err)
	}

	h := &MotorHAT{
		bus: bus,
		dev: &i2c.Dev{Addr: addr, Bus: bus},
	}
	if err := h.setup(); err != nil {
		bus.Close()
		return nil, err
	}
	return h, nil
}

// setup puts the controller to sleep, programs the PWM frequency, then
// restarts with register auto-increment enabled.
func (h *MotorHAT) setup() error {
	prescale := byte(math.Round(oscillatorHz/(pwmResolution*float64(pwmFrequencyHz))) - 1)

	if err := h.write(regMode1, mode1Sleep); err != nil {
		return fmt.Errorf("sleep: %w", err)
	}
	if err := h.write(regPrescale, prescale); err != nil {
		return fmt.Errorf("prescale: %w", err)
	}
	if err := h.write(regMode1, mode1AutoInc); err != nil {
		return fmt.Errorf("wake: %w", err)
	}
	time.Sleep(time.Millisecond)
	if err := h.write(regMode1, mode1AutoInc|mode1Restart); err != nil {
		return fmt.Errorf("restart: %w", err)
	}
	return h.Stop()
}

// SetVelocities commands both wheels. Values are signed fractions of full
// duty; magnitudes are clipped at 1.0.
func (h *MotorHAT) SetVelocities(left, right float64) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if err := h.setMotor(leftMotorPort, left); err != nil {
		return fmt.Errorf("left motor: %w", err)
	}
	if err := h.setMotor(rightMotorPort, right); err != nil {
		return fmt.Errorf("right motor: %w", err)
	}
	return nil
}

// Stop releases both motors to coast.
func (h *MotorHAT) Stop() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, port := range []int{leftMotorPort, rightMotorPort} {
		if err := h.setMotor(port, 0); err != nil {
			return err
		}
	}
	return nil
}

// Close stops the motors and releases the bus.
func (h *MotorHAT) Close() error {
	if err := h.Stop(); err != nil {
		h.bus.Close()
		return err
	}
	return h.bus.Close()
}

func (h *MotorHAT) setMotor(port int, value float64) error {
	pins, ok := motorPins[port]
	if !ok {
		return fmt.Errorf("unknown motor port %d", port)
	}
	pwm, in1, in2 := pins[0], pins[1], pins[2]

	mag := math.Min(math.Abs(value), 1.0)
	duty := uint16(mag * (pwmResolution - 1))

	switch {
	case value > 0:
		if err := h.setPin(in1, true); err != nil {
			return err
		}
		if err := h.setPin(in2, false); err != nil {
			return err
		}
	case value < 0:
		if err := h.setPin(in1, false); err != nil {
			return err
		}
		if err := h.setPin(in2, true); err != nil {
			return err
		}
	default:
		if err := h.setPin(in1, false); err != nil {
			return err
		}
		if err := h.setPin(in2, false); err != nil {
			return err
		}
	}

	return h.setPWM(pwm, 0, duty)
}

// setPin drives a direction channel fully on or off using the PCA9685
// full-on/full-off bits.
func (h *MotorHAT) setPin(channel int, on bool) error {
	if on {
		return h.setPWM(channel, pwmResolution, 0)
	}
	return h.setPWM(channel, 0, pwmResolution)
}

// setPWM writes the four on/off registers of one channel in a single
// auto-incremented transaction.
func (h *MotorHAT) setPWM(channel int, on, off uint16) error {
	reg := byte(regLED0OnL + 4*channel)
	_, err := h.dev.Write([]byte{
		reg,
		byte(on), byte(on >> 8),
		byte(off), byte(off >> 8),
	})
	if err != nil {
		return fmt.Errorf("pwm channel %d: %w", channel, err)
	}
	return nil
}

func (h *MotorHAT) write(reg, val byte) error {
	_, err := h.dev.Write([]byte{reg, val})
	return err
}
