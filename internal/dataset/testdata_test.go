package dataset

import (
	"archive/tar"
	"bytes"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"strconv"
	"testing"
)

func mustPNG(t *testing.T, size int, shade uint8) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, size, size))
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			img.Set(x, y, color.RGBA{R: shade, G: uint8(x * 16), B: uint8(y * 16), A: 255})
		}
	}
	buf := &bytes.Buffer{}
	if err := png.Encode(buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

func mustWrite(t *testing.T, path string, data []byte) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

type shardEntry struct {
	key   string
	ext   string
	image []byte
	label int
}

func mustShard(t *testing.T, path string, entries []shardEntry) {
	t.Helper()
	buf := &bytes.Buffer{}
	tw := tar.NewWriter(buf)
	for _, e := range entries {
		addTarEntry(t, tw, e.key+e.ext, e.image)
		addTarEntry(t, tw, e.key+".cls", []byte(strconv.Itoa(e.label)))
	}
	if err := tw.Close(); err != nil {
		t.Fatalf("close tar: %v", err)
	}
	mustWrite(t, path, buf.Bytes())
}

func addTarEntry(t *testing.T, tw *tar.Writer, name string, data []byte) {
	t.Helper()
	hdr := &tar.Header{Name: name, Size: int64(len(data)), Mode: 0o644}
	if err := tw.WriteHeader(hdr); err != nil {
		t.Fatalf("write header: %v", err)
	}
	if _, err := tw.Write(data); err != nil {
		t.Fatalf("write data: %v", err)
	}
}

// imageFolder writes perClass PNGs into each named class directory.
func imageFolder(t *testing.T, classes []string, perClass int) string {
	t.Helper()
	root := t.TempDir()
	for ci, class := range classes {
		for i := 0; i < perClass; i++ {
			name := "img-" + strconv.Itoa(i) + ".png"
			mustWrite(t, filepath.Join(root, class, name), mustPNG(t, 8, uint8(ci*60)))
		}
	}
	return root
}

// shardOfImages builds a shard whose images have no matching labels.
func shardOfImages(t *testing.T, keys []string) []byte {
	t.Helper()
	buf := &bytes.Buffer{}
	tw := tar.NewWriter(buf)
	for _, key := range keys {
		addTarEntry(t, tw, key+".png", []byte(key))
	}
	if err := tw.Close(); err != nil {
		t.Fatalf("close tar: %v", err)
	}
	return buf.Bytes()
}
