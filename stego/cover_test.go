package stego_test

import (
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/tmeWitzigLustigKomisch/WLK-PasswordSafe/stego"
)

func fileSize(t *testing.T, path string) int64 {
	t.Helper()
	fi, err := os.Stat(path)
	if err != nil {
		t.Fatalf("Stat returned error: %v", err)
	}
	return fi.Size()
}

func TestMakeCoverBmpExactSizing(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cover.bmp")
	mustMakeCover(t, path, 1<<20)

	size := fileSize(t, path)
	if size < 1<<20 {
		t.Fatalf("cover is %d bytes, want at least %d", size, 1<<20)
	}
	// Uncompressed BMP sizing is exact, so the overshoot stays small.
	if size > (1<<20)+(1<<20)/10 {
		t.Fatalf("cover is %d bytes, far above the requested %d", size, 1<<20)
	}
}

func TestMakeCoverPngGrowsUntilBigEnough(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cover.png")
	// Above what a single 512x512 noise frame encodes to, forcing at
	// least one grow step.
	min := int64(3 << 20 / 2)
	mustMakeCover(t, path, min)

	if size := fileSize(t, path); size < min {
		t.Fatalf("cover is %d bytes, want at least %d", size, min)
	}
}

func TestMakeCoverRejectsUnknownFormat(t *testing.T) {
	if err := stego.MakeCover(filepath.Join(t.TempDir(), "cover.gif"), 1024); err == nil {
		t.Fatal("MakeCover accepted an unsupported format")
	}
}

func TestInflateCentersSourceAndReachesSize(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "small.png")
	dst := filepath.Join(dir, "big.bmp")

	red := image.NewNRGBA(image.Rect(0, 0, 40, 40))
	for i := 0; i < len(red.Pix); i += 4 {
		red.Pix[i+0] = 0xff
		red.Pix[i+3] = 0xff
	}
	f, err := os.Create(src)
	if err != nil {
		t.Fatalf("Create returned error: %v", err)
	}
	if err := png.Encode(f, red); err != nil {
		t.Fatalf("png.Encode returned error: %v", err)
	}
	f.Close()

	min := int64(300 * 1024)
	if err := stego.Inflate(src, dst, min); err != nil {
		t.Fatalf("Inflate returned error: %v", err)
	}
	if size := fileSize(t, dst); size < min {
		t.Fatalf("inflated image is %d bytes, want at least %d", size, min)
	}

	out, err := os.Open(dst)
	if err != nil {
		t.Fatalf("Open returned error: %v", err)
	}
	img, _, err := image.Decode(out)
	out.Close()
	if err != nil {
		t.Fatalf("Decode returned error: %v", err)
	}
	b := img.Bounds()
	r, g, bl, _ := img.At(b.Min.X+b.Dx()/2, b.Min.Y+b.Dy()/2).RGBA()
	if r>>8 != 0xff || g>>8 != 0 || bl>>8 != 0 {
		t.Fatalf("center pixel is %v, want the pasted source color", color.NRGBA{uint8(r >> 8), uint8(g >> 8), uint8(bl >> 8), 0xff})
	}
}

func TestInflateMissingSource(t *testing.T) {
	dir := t.TempDir()
	if err := stego.Inflate(filepath.Join(dir, "absent.png"), filepath.Join(dir, "out.png"), 1024); err == nil {
		t.Fatal("Inflate accepted a missing source")
	}
}
