package camera

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"sync"
)

// StaticSource serves a single pre-encoded JPEG for every Frame call. The
// simulator uses it when no camera is fitted; tests use it as a cheap
// FrameSource.
type StaticSource struct {
	mu    sync.Mutex
	frame []byte
}

// NewStaticSource generates a flat gray test frame at the given resolution.
func NewStaticSource(width, height int) (*StaticSource, error) {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	gray := color.RGBA{R: 0x80, G: 0x80, B: 0x80, A: 0xff}
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, gray)
		}
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 70}); err != nil {
		return nil, err
	}
	return &StaticSource{frame: buf.Bytes()}, nil
}

// SetFrame replaces the served frame.
func (s *StaticSource) SetFrame(jpeg []byte) {
	s.mu.Lock()
	s.frame = jpeg
	s.mu.Unlock()
}

func (s *StaticSource) Frame() ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.frame, nil
}

func (s *StaticSource) Close() error { return nil }
