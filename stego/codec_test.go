package stego_test

import (
	"bytes"
	"crypto/rand"
	"errors"
	"image"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/tmeWitzigLustigKomisch/WLK-PasswordSafe/stego"
)

func mustMakeCover(t *testing.T, path string, minSize int64) {
	t.Helper()
	if err := stego.MakeCover(path, minSize); err != nil {
		t.Fatalf("MakeCover returned error: %v", err)
	}
}

func randomBlob(t *testing.T, n int) []byte {
	t.Helper()
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		t.Fatalf("rand.Read returned error: %v", err)
	}
	return b
}

func TestEmbedExtractRoundTrip(t *testing.T) {
	dir := t.TempDir()
	cover := filepath.Join(dir, "cover.bmp")
	mustMakeCover(t, cover, 1<<20)

	fi, err := os.Stat(cover)
	if err != nil {
		t.Fatalf("Stat returned error: %v", err)
	}
	if fi.Size() < 1<<20 {
		t.Fatalf("cover is %d bytes, wanted at least %d", fi.Size(), 1<<20)
	}

	blob := randomBlob(t, 50*1024)

	for _, out := range []string{"hidden.png", "hidden.bmp"} {
		outPath := filepath.Join(dir, out)
		if err := stego.Embed(cover, blob, outPath); err != nil {
			t.Fatalf("Embed to %s returned error: %v", out, err)
		}
		got, err := stego.Extract(outPath)
		if err != nil {
			t.Fatalf("Extract from %s returned error: %v", out, err)
		}
		if !bytes.Equal(got, blob) {
			t.Fatalf("extracted blob from %s differs from the original", out)
		}
	}
}

func TestEmbedRefusesOversizedPayload(t *testing.T) {
	dir := t.TempDir()
	cover := filepath.Join(dir, "cover.bmp")
	mustMakeCover(t, cover, 1<<20)

	out := filepath.Join(dir, "hidden.png")
	err := stego.Embed(cover, randomBlob(t, 5<<20), out)
	if !errors.Is(err, stego.ErrInsufficientCapacity) {
		t.Fatalf("oversized payload: got %v, want ErrInsufficientCapacity", err)
	}
	if !strings.Contains(err.Error(), "needs") || !strings.Contains(err.Error(), "holds") {
		t.Fatalf("capacity error does not state required vs available: %v", err)
	}
	if _, statErr := os.Stat(out); !os.IsNotExist(statErr) {
		t.Fatal("failed embed left an output file behind")
	}
}

func TestEmbedRefusesLossyOutput(t *testing.T) {
	dir := t.TempDir()
	cover := filepath.Join(dir, "cover.bmp")
	mustMakeCover(t, cover, 64*1024)

	out := filepath.Join(dir, "hidden.jpg")
	if err := stego.Embed(cover, []byte("payload"), out); !errors.Is(err, stego.ErrLossyFormat) {
		t.Fatalf("jpg output: got %v, want ErrLossyFormat", err)
	}
	if _, statErr := os.Stat(out); !os.IsNotExist(statErr) {
		t.Fatal("refused embed left an output file behind")
	}
}

func TestEmbedAcceptsJpegCover(t *testing.T) {
	dir := t.TempDir()
	cover := filepath.Join(dir, "photo.jpg")

	img := image.NewNRGBA(image.Rect(0, 0, 200, 200))
	if _, err := rand.Read(img.Pix); err != nil {
		t.Fatalf("rand.Read returned error: %v", err)
	}
	f, err := os.Create(cover)
	if err != nil {
		t.Fatalf("Create returned error: %v", err)
	}
	if err := jpeg.Encode(f, img, &jpeg.Options{Quality: 90}); err != nil {
		t.Fatalf("jpeg.Encode returned error: %v", err)
	}
	f.Close()

	blob := randomBlob(t, 1024)
	out := filepath.Join(dir, "hidden.png")
	if err := stego.Embed(cover, blob, out); err != nil {
		t.Fatalf("Embed returned error: %v", err)
	}
	got, err := stego.Extract(out)
	if err != nil {
		t.Fatalf("Extract returned error: %v", err)
	}
	if !bytes.Equal(got, blob) {
		t.Fatal("extracted blob differs from the original")
	}
}

func TestExtractFromCleanCover(t *testing.T) {
	cover := filepath.Join(t.TempDir(), "cover.png")
	mustMakeCover(t, cover, 64*1024)

	if _, err := stego.Extract(cover); !errors.Is(err, stego.ErrCorruptOrNotHidden) {
		t.Fatalf("clean cover: got %v, want ErrCorruptOrNotHidden", err)
	}
}

func TestExtractRejectsTamperedBits(t *testing.T) {
	dir := t.TempDir()
	cover := filepath.Join(dir, "cover.bmp")
	mustMakeCover(t, cover, 128*1024)

	hidden := filepath.Join(dir, "hidden.png")
	if err := stego.Embed(cover, randomBlob(t, 2048), hidden); err != nil {
		t.Fatalf("Embed returned error: %v", err)
	}

	f, err := os.Open(hidden)
	if err != nil {
		t.Fatalf("Open returned error: %v", err)
	}
	img, err := png.Decode(f)
	f.Close()
	if err != nil {
		t.Fatalf("png.Decode returned error: %v", err)
	}
	pix, ok := img.(*image.RGBA)
	if !ok {
		t.Fatalf("decoded hidden image is %T, want *image.RGBA", img)
	}
	// Flip a sample LSB well inside the payload region.
	pix.Pix[400] ^= 1

	out, err := os.Create(hidden)
	if err != nil {
		t.Fatalf("Create returned error: %v", err)
	}
	if err := png.Encode(out, pix); err != nil {
		t.Fatalf("png.Encode returned error: %v", err)
	}
	out.Close()

	if _, err := stego.Extract(hidden); !errors.Is(err, stego.ErrCorruptOrNotHidden) {
		t.Fatalf("tampered image: got %v, want ErrCorruptOrNotHidden", err)
	}
}

func TestCapacity(t *testing.T) {
	big := image.NewNRGBA(image.Rect(0, 0, 100, 50))
	if got := stego.Capacity(big); got != 100*50*3/8-24 {
		t.Fatalf("Capacity(100x50) = %d, want %d", got, 100*50*3/8-24)
	}
	tiny := image.NewNRGBA(image.Rect(0, 0, 2, 2))
	if got := stego.Capacity(tiny); got != 0 {
		t.Fatalf("Capacity(2x2) = %d, want 0", got)
	}
}
