package camera

import (
	"bytes"
	"image/jpeg"
	"testing"
)

func TestConfigValidate(t *testing.T) {
	if errs := DefaultConfig().Validate(); len(errs) != 0 {
		t.Fatalf("default config invalid: %v", errs)
	}

	bad := Config{Device: -1, Width: 0, Height: 480, Framerate: 500, Quality: 0}
	errs := bad.Validate()
	if len(errs) != 4 {
		t.Errorf("expected 4 validation errors, got %d: %v", len(errs), errs)
	}
}

func TestStaticSource_ProducesDecodableJPEG(t *testing.T) {
	src, err := NewStaticSource(320, 240)
	if err != nil {
		t.Fatalf("new static source: %v", err)
	}
	defer src.Close()

	frame, err := src.Frame()
	if err != nil {
		t.Fatalf("frame: %v", err)
	}

	img, err := jpeg.Decode(bytes.NewReader(frame))
	if err != nil {
		t.Fatalf("frame is not valid JPEG: %v", err)
	}
	if b := img.Bounds(); b.Dx() != 320 || b.Dy() != 240 {
		t.Errorf("frame size: got %dx%d, want 320x240", b.Dx(), b.Dy())
	}
}

func TestStaticSource_SetFrame(t *testing.T) {
	src, err := NewStaticSource(32, 32)
	if err != nil {
		t.Fatalf("new static source: %v", err)
	}
	src.SetFrame([]byte{0xff, 0xd8})

	frame, err := src.Frame()
	if err != nil {
		t.Fatalf("frame: %v", err)
	}
	if len(frame) != 2 {
		t.Errorf("replacement frame not served, got %d bytes", len(frame))
	}
}
