// Package stego hides encrypted blobs inside the pixel data of cover
// images. Payload bits are spread across the least significant bit of
// every red, green and blue sample in row-major order, so a plain
// re-encode of the image in a lossless format carries the payload and
// the file still opens as an ordinary picture. Lossy formats destroy
// the low bits and are refused as embedding targets.
package stego

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"
	"image"
	"image/draw"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/image/bmp"
)

var (
	ErrInsufficientCapacity = errors.New("cover image too small for payload")
	ErrCorruptOrNotHidden   = errors.New("no hidden data found or image corrupted")
	ErrLossyFormat          = errors.New("lossy image format cannot carry hidden data")
)

// Embedded frame: marker, payload length, payload, truncated SHA-256
// of the payload. Everything byte-aligned in the bit stream.
const (
	stegoMarker   = "WLKS"
	lenFieldLen   = 4
	tagLen        = 16
	frameOverhead = len(stegoMarker) + lenFieldLen + tagLen
)

// Capacity returns how many payload bytes the image can hold after
// frame overhead. One bit per color sample, alpha is never touched.
func Capacity(img image.Image) int {
	b := img.Bounds()
	n := b.Dx() * b.Dy() * 3 / 8
	if n < frameOverhead {
		return 0
	}
	return n - frameOverhead
}

// Embed hides payload inside the cover image and writes the result to
// outPath. The output format follows the outPath extension and must be
// lossless (.png or .bmp). Nothing is written when the cover is too
// small.
func Embed(coverPath string, payload []byte, outPath string) error {
	if len(payload) == 0 {
		return errors.New("nothing to hide")
	}
	if err := checkLossless(outPath); err != nil {
		return err
	}

	img, err := decodeImage(coverPath)
	if err != nil {
		return err
	}
	pix := toNRGBA(img)

	need := len(payload) + frameOverhead
	have := rawCapacity(pix)
	if need > have {
		return fmt.Errorf("%w: payload needs %d bytes, cover holds %d",
			ErrInsufficientCapacity, need, have)
	}

	frame := make([]byte, 0, need)
	frame = append(frame, stegoMarker...)
	frame = binary.BigEndian.AppendUint32(frame, uint32(len(payload)))
	frame = append(frame, payload...)
	sum := sha256.Sum256(payload)
	frame = append(frame, sum[:tagLen]...)

	putBytes(pix, frame)

	encoded, err := encodeImage(pix, outPath)
	if err != nil {
		return err
	}
	return writeFileAtomic(outPath, encoded)
}

// Extract recovers a payload previously hidden with Embed. The image
// may have been re-encoded between hiding and extraction as long as
// the pixel data survived bit-exact.
func Extract(path string) ([]byte, error) {
	img, err := decodeImage(path)
	if err != nil {
		return nil, err
	}
	pix := toNRGBA(img)

	capBytes := rawCapacity(pix)
	if capBytes < frameOverhead {
		return nil, ErrCorruptOrNotHidden
	}

	head := readBytes(pix, 0, len(stegoMarker)+lenFieldLen)
	if string(head[:len(stegoMarker)]) != stegoMarker {
		return nil, ErrCorruptOrNotHidden
	}
	n := int(binary.BigEndian.Uint32(head[len(stegoMarker):]))
	if n <= 0 || n > capBytes-frameOverhead {
		return nil, ErrCorruptOrNotHidden
	}

	payload := readBytes(pix, len(stegoMarker)+lenFieldLen, n)
	tag := readBytes(pix, len(stegoMarker)+lenFieldLen+n, tagLen)
	sum := sha256.Sum256(payload)
	if !bytes.Equal(tag, sum[:tagLen]) {
		return nil, ErrCorruptOrNotHidden
	}
	return payload, nil
}

// rawCapacity is the total byte capacity of the bit stream, frame
// overhead included.
func rawCapacity(img *image.NRGBA) int {
	return img.Rect.Dx() * img.Rect.Dy() * 3 / 8
}

// putBytes writes data bits MSB-first into the sample LSBs, starting
// at the first sample of the first pixel.
func putBytes(img *image.NRGBA, data []byte) {
	w := img.Rect.Dx()
	for i := 0; i < len(data)*8; i++ {
		bit := (data[i/8] >> (7 - uint(i%8))) & 1
		p := i / 3
		o := img.PixOffset(img.Rect.Min.X+p%w, img.Rect.Min.Y+p/w) + i%3
		img.Pix[o] = img.Pix[o]&^1 | bit
	}
}

// readBytes reads n bytes from the bit stream starting at byte offset
// off. Offsets are byte-aligned because every frame field is.
func readBytes(img *image.NRGBA, off, n int) []byte {
	out := make([]byte, n)
	w := img.Rect.Dx()
	base := off * 8
	for i := 0; i < n*8; i++ {
		k := base + i
		p := k / 3
		o := img.PixOffset(img.Rect.Min.X+p%w, img.Rect.Min.Y+p/w) + k%3
		out[i/8] |= (img.Pix[o] & 1) << (7 - uint(i%8))
	}
	return out
}

func checkLossless(path string) error {
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".png", ".bmp":
		return nil
	case ".jpg", ".jpeg":
		return fmt.Errorf("%s output: %w", ext, ErrLossyFormat)
	default:
		return fmt.Errorf("unsupported output format %q", ext)
	}
}

func decodeImage(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open cover image: %w", err)
	}
	defer f.Close()
	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode cover image: %w", err)
	}
	return img, nil
}

// toNRGBA normalizes any decoded image into a non-premultiplied RGBA
// buffer so single-bit channel edits survive re-encoding exactly.
func toNRGBA(m image.Image) *image.NRGBA {
	if n, ok := m.(*image.NRGBA); ok {
		return n
	}
	b := m.Bounds()
	n := image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(n, n.Bounds(), m, b.Min, draw.Src)
	return n
}

func encodeImage(img image.Image, path string) ([]byte, error) {
	var buf bytes.Buffer
	var err error
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".png":
		err = png.Encode(&buf, img)
	case ".bmp":
		err = bmp.Encode(&buf, img)
	case ".jpg", ".jpeg":
		err = jpeg.Encode(&buf, img, &jpeg.Options{Quality: 100})
	default:
		return nil, fmt.Errorf("unsupported output format %q", ext)
	}
	if err != nil {
		return nil, fmt.Errorf("encode image: %w", err)
	}
	return buf.Bytes(), nil
}

func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".img-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp image: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("write temp image: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("sync temp image: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("close temp image: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("replace image: %w", err)
	}
	return nil
}
