package camera

import (
	"fmt"
	"sync"

	"gocv.io/x/gocv"
)

// FrameSource produces JPEG-encoded frames. The telemetry bridge polls it at
// the stream rate; implementations must tolerate concurrent Frame calls.
type FrameSource interface {
	Frame() ([]byte, error)
	Close() error
}

// Capture reads frames from a V4L2 camera and encodes them to JPEG.
type Capture struct {
	cfg Config

	mu  sync.Mutex
	cap *gocv.VideoCapture
	img gocv.Mat
}

// Open starts capture on the configured device.
func Open(cfg Config) (*Capture, error) {
	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, fmt.Errorf("camera config: %v", errs)
	}

	cap, err := gocv.OpenVideoCapture(cfg.Device)
	if err != nil {
		return nil, fmt.Errorf("open camera %d: %w", cfg.Device, err)
	}
	cap.Set(gocv.VideoCaptureFrameWidth, float64(cfg.Width))
	cap.Set(gocv.VideoCaptureFrameHeight, float64(cfg.Height))
	cap.Set(gocv.VideoCaptureFPS, float64(cfg.Framerate))

	return &Capture{
		cfg: cfg,
		cap: cap,
		img: gocv.NewMat(),
	}, nil
}

// Frame grabs the next frame and returns it JPEG-encoded.
func (c *Capture) Frame() ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.cap.Read(&c.img) || c.img.Empty() {
		return nil, fmt.Errorf("camera %d: no frame", c.cfg.Device)
	}

	buf, err := gocv.IMEncodeWithParams(gocv.JPEGFileExt, c.img,
		[]int{gocv.IMWriteJpegQuality, c.cfg.Quality})
	if err != nil {
		return nil, fmt.Errorf("encode frame: %w", err)
	}
	defer buf.Close()

	out := make([]byte, buf.Len())
	copy(out, buf.GetBytes())
	return out, nil
}

// Close releases the device and the reusable frame buffer.
func (c *Capture) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.img.Close()
	return c.cap.Close()
}
