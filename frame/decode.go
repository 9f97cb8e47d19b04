package frame

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"io"
	"strings"

	"github.com/spakin/netpbm"

	"github.com/jtejido/fingerlive/config"
)

var (
	// ErrUnsupportedFormat is returned for payloads that are not JPEG, PNG or PNM.
	ErrUnsupportedFormat = errors.New("unsupported image format - must be JPEG, PNG or PNM")
	// ErrEmpty is returned for empty payloads and zero-sized images.
	ErrEmpty = errors.New("empty frame")
	// ErrTooLarge is returned when an image header declares more pixels than
	// the decoder accepts. Nothing past the header is decoded.
	ErrTooLarge = errors.New("frame dimensions exceed limit")
)

// Decoder turns encoded payloads into Frames, refusing oversized images
// before allocating their pixels.
type Decoder struct {
	maxWidth  int
	maxHeight int
}

func NewDecoder(cfg config.FrameConfig) *Decoder {
	return &Decoder{maxWidth: cfg.MaxWidth, maxHeight: cfg.MaxHeight}
}

// Decode builds a Frame from encoded image bytes.
func (d *Decoder) Decode(data []byte) (*Frame, error) {
	if len(data) == 0 {
		return nil, ErrEmpty
	}
	hdr, err := decodeConfig(data)
	if err != nil {
		return nil, err
	}
	if hdr.Width > d.maxWidth || hdr.Height > d.maxHeight {
		return nil, fmt.Errorf("frame is %dx%d, at most %dx%d allowed: %w",
			hdr.Width, hdr.Height, d.maxWidth, d.maxHeight, ErrTooLarge)
	}
	reader := bytes.NewReader(data)

	// Try JPEG first
	if img, err := jpeg.Decode(reader); err == nil {
		return New(img)
	}

	// Reset reader and try PNG
	reader.Seek(0, io.SeekStart)
	if img, err := png.Decode(reader); err == nil {
		return New(img)
	}

	if isPNM(data) {
		reader.Seek(0, io.SeekStart)
		img, err := netpbm.Decode(reader, &netpbm.DecodeOptions{Target: netpbm.PPM})
		if err == nil {
			return New(img)
		}
	}

	return nil, ErrUnsupportedFormat
}

// DecodeBase64 accepts raw base64 or a data URL ("data:image/jpeg;base64,...").
func (d *Decoder) DecodeBase64(payload string) (*Frame, error) {
	if strings.HasPrefix(payload, "data:") {
		parts := strings.SplitN(payload, ",", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("invalid data URL: %w", ErrUnsupportedFormat)
		}
		meta := parts[0]
		payload = parts[1]

		if !strings.Contains(meta, "image/jpeg") &&
			!strings.Contains(meta, "image/png") &&
			!strings.Contains(meta, "image/x-portable") {
			return nil, fmt.Errorf("data URL %q: %w", meta, ErrUnsupportedFormat)
		}
	}
	if payload == "" {
		return nil, ErrEmpty
	}

	decoded, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to decode base64: %w", err)
	}
	return d.Decode(decoded)
}

// decodeConfig reads only the image header.
func decodeConfig(data []byte) (image.Config, error) {
	if hdr, err := jpeg.DecodeConfig(bytes.NewReader(data)); err == nil {
		return hdr, nil
	}
	if hdr, err := png.DecodeConfig(bytes.NewReader(data)); err == nil {
		return hdr, nil
	}
	if isPNM(data) {
		if hdr, err := netpbm.DecodeConfig(bytes.NewReader(data)); err == nil {
			return hdr, nil
		}
	}
	return image.Config{}, ErrUnsupportedFormat
}

// PBM/PGM/PPM/PAM all start with 'P' and a digit
func isPNM(data []byte) bool {
	return len(data) > 1 && data[0] == 'P' && data[1] >= '1' && data[1] <= '7'
}

// checkBounds rejects images the extractors cannot work on.
func checkBounds(b image.Rectangle) error {
	if b.Dx() < 3 || b.Dy() < 3 {
		return fmt.Errorf("frame is %dx%d: %w", b.Dx(), b.Dy(), ErrEmpty)
	}
	return nil
}
