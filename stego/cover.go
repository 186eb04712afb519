package stego

import (
	"crypto/rand"
	"fmt"
	"image"
	"image/draw"
	"math"
	"os"
	"path/filepath"
	"strings"
)

const (
	bmpHeaderLen = 54
	maxCoverSide = 20000
)

// MakeCover writes a random-noise image of at least minSize bytes on
// disk. The format follows the path extension. Noise is effectively
// incompressible, so PNG and JPEG sizing starts small and grows until
// the encoded file is big enough; uncompressed BMP is sized exactly up
// front. A minSize of zero means 1 MiB.
func MakeCover(path string, minSize int64) error {
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".bmp", ".png", ".jpg", ".jpeg":
	default:
		return fmt.Errorf("unsupported cover format %q", ext)
	}
	if minSize <= 0 {
		minSize = 1 << 20
	}

	side := 512
	if ext == ".bmp" {
		side = bmpSide(minSize)
	}
	for {
		img, err := noiseImage(side, side)
		if err != nil {
			return err
		}
		encoded, err := encodeImage(img, path)
		if err != nil {
			return err
		}
		if int64(len(encoded)) >= minSize {
			if err := writeFileAtomic(path, encoded); err != nil {
				return err
			}
			return verifySize(path, minSize)
		}
		if ext == ".bmp" {
			side += 8
		} else {
			side = side * 13 / 10
		}
		if side > maxCoverSide {
			return fmt.Errorf("cover would exceed %d pixels per side before reaching %d bytes", maxCoverSide, minSize)
		}
	}
}

// Inflate pastes the source image centered onto a larger noise canvas
// until the encoded output reaches minSize bytes. Useful to turn a
// small real photo into a cover with enough pixel capacity. The output
// format follows the dst extension and may be lossy, since inflation
// happens before any embedding.
func Inflate(src, dst string, minSize int64) error {
	ext := strings.ToLower(filepath.Ext(dst))
	switch ext {
	case ".bmp", ".png", ".jpg", ".jpeg":
	default:
		return fmt.Errorf("unsupported output format %q", ext)
	}
	if minSize <= 0 {
		minSize = 1 << 20
	}

	small, err := decodeImage(src)
	if err != nil {
		return err
	}
	sb := small.Bounds()
	w, h := sb.Dx(), sb.Dy()
	if w < 1 || h < 1 {
		return fmt.Errorf("source image %s is empty", src)
	}

	scale := 1.6
	for {
		cw := grow(w, scale)
		ch := grow(h, scale)
		canvas, err := noiseImage(cw, ch)
		if err != nil {
			return err
		}
		at := image.Pt((cw-w)/2, (ch-h)/2)
		draw.Draw(canvas, image.Rectangle{Min: at, Max: at.Add(image.Pt(w, h))}, small, sb.Min, draw.Src)

		encoded, err := encodeImage(canvas, dst)
		if err != nil {
			return err
		}
		if int64(len(encoded)) >= minSize {
			if err := writeFileAtomic(dst, encoded); err != nil {
				return err
			}
			return verifySize(dst, minSize)
		}
		scale *= 1.35
		if cw > maxCoverSide || ch > maxCoverSide {
			return fmt.Errorf("inflated image would exceed %d pixels per side before reaching %d bytes", maxCoverSide, minSize)
		}
	}
}

// bmpSide picks the square side length whose 24-bit BMP encoding,
// rows padded to four bytes plus the 54-byte header, reaches minSize.
func bmpSide(minSize int64) int {
	pixels := (minSize - bmpHeaderLen + 2) / 3
	if pixels < 1 {
		pixels = 1
	}
	side := int(math.Ceil(math.Sqrt(float64(pixels))))
	if side < 64 {
		side = 64
	}
	for bmpFileSize(side) < minSize {
		side += 8
	}
	return side
}

func bmpFileSize(side int) int64 {
	row := (3*side + 3) &^ 3
	return bmpHeaderLen + int64(side)*int64(row)
}

func noiseImage(w, h int) (*image.NRGBA, error) {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	if _, err := rand.Read(img.Pix); err != nil {
		return nil, fmt.Errorf("generate noise: %w", err)
	}
	for i := 3; i < len(img.Pix); i += 4 {
		img.Pix[i] = 0xff
	}
	return img, nil
}

func grow(n int, scale float64) int {
	if s := int(math.Ceil(float64(n) * scale)); s > n {
		return s
	}
	return n
}

func verifySize(path string, minSize int64) error {
	fi, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("verify image size: %w", err)
	}
	if fi.Size() < minSize {
		return fmt.Errorf("image file is %d bytes, wanted at least %d", fi.Size(), minSize)
	}
	return nil
}
