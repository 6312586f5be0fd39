// Package imaging normalizes source images into the bytes sent to a vision backend.
package imaging

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/webp"

	"github.com/kiranshivaraju/captionforge/internal/config"
)

const (
	FormatJPEG = "jpeg"
	FormatPNG  = "png"
)

// Encoder resizes an image so its long edge fits MaxResolution and re-encodes it.
type Encoder struct {
	maxResolution int
	quality       int
	format        string
	keepAspect    bool
}

func NewEncoder(cfg config.PreprocessConfig) *Encoder {
	return &Encoder{
		maxResolution: cfg.MaxResolution,
		quality:       cfg.Quality,
		format:        cfg.Format,
		keepAspect:    cfg.MaintainAspectRatio,
	}
}

// Format returns the output encoding, "jpeg" or "png".
func (e *Encoder) Format() string { return e.format }

// Encode loads the image at path, applying EXIF orientation, and returns it resized
// and encoded in the configured format.
func (e *Encoder) Encode(path string) ([]byte, error) {
	src, err := imaging.Open(path, imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("opening image: %w", err)
	}
	return e.EncodeImage(src)
}

// EncodeImage resizes and encodes an already decoded image.
func (e *Encoder) EncodeImage(src image.Image) ([]byte, error) {
	img := e.resize(src)

	var buf bytes.Buffer
	switch e.format {
	case FormatPNG:
		enc := png.Encoder{CompressionLevel: png.BestCompression}
		if err := enc.Encode(&buf, img); err != nil {
			return nil, fmt.Errorf("encoding png: %w", err)
		}
	default:
		if err := jpeg.Encode(&buf, flatten(img), &jpeg.Options{Quality: e.quality}); err != nil {
			return nil, fmt.Errorf("encoding jpeg: %w", err)
		}
	}
	return buf.Bytes(), nil
}

func (e *Encoder) resize(src image.Image) image.Image {
	b := src.Bounds()
	w, h := b.Dx(), b.Dy()
	if e.maxResolution <= 0 || max(w, h) <= e.maxResolution {
		return src
	}
	if !e.keepAspect {
		return imaging.Resize(src, e.maxResolution, e.maxResolution, imaging.Lanczos)
	}
	if w >= h {
		return imaging.Resize(src, e.maxResolution, 0, imaging.Lanczos)
	}
	return imaging.Resize(src, 0, e.maxResolution, imaging.Lanczos)
}

// flatten composites img onto an opaque white canvas, since JPEG has no alpha channel.
func flatten(img image.Image) image.Image {
	b := img.Bounds()
	return imaging.Overlay(imaging.New(b.Dx(), b.Dy(), color.White), img, image.Pt(0, 0), 1)
}
