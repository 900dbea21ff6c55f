package dataset

import (
	"context"
	"errors"
	"io/fs"
	"path/filepath"
	"testing"
)

func TestDiscoverShardsBasic(t *testing.T) {
	dir := t.TempDir()
	mustWrite(t, filepath.Join(dir, "shard-000000.tar"), nil)
	mustWrite(t, filepath.Join(dir, "nested", "shard-000001.tar"), nil)
	mustWrite(t, filepath.Join(dir, "ignore.txt"), nil)

	shards, err := DiscoverShards(dir)
	if err != nil {
		t.Fatalf("DiscoverShards error: %v", err)
	}
	want := []string{
		filepath.Join(dir, "nested", "shard-000001.tar"),
		filepath.Join(dir, "shard-000000.tar"),
	}
	if len(shards) != len(want) {
		t.Fatalf("expected %d shards, got %d", len(want), len(shards))
	}
	for i, shard := range want {
		if shards[i] != shard {
			t.Fatalf("shard[%d]=%s want %s", i, shards[i], shard)
		}
	}
}

func TestOpenImageFolder(t *testing.T) {
	root := imageFolder(t, []string{"dog", "cat"}, 3)
	mustWrite(t, filepath.Join(root, "notes.txt"), []byte("x"))
	mustWrite(t, filepath.Join(root, "empty", "readme.md"), []byte("x"))

	idx, err := Open(context.Background(), root)
	if err != nil {
		t.Fatalf("Open error: %v", err)
	}
	if len(idx.Classes) != 2 || idx.Classes[0] != "cat" || idx.Classes[1] != "dog" {
		t.Fatalf("classes=%v want [cat dog]", idx.Classes)
	}
	if idx.NumClasses != 2 {
		t.Fatalf("NumClasses=%d want 2", idx.NumClasses)
	}
	if len(idx.Samples) != 6 {
		t.Fatalf("expected 6 samples, got %d", len(idx.Samples))
	}
	if idx.Samples[0].Label != 0 || idx.Samples[5].Label != 1 {
		t.Fatalf("labels not assigned by sorted class: first=%d last=%d", idx.Samples[0].Label, idx.Samples[5].Label)
	}
}

func TestOpenWithShards(t *testing.T) {
	root := imageFolder(t, []string{"a"}, 1)
	mustShard(t, filepath.Join(root, "shards", "shard-000000.tar"), []shardEntry{
		{key: "000001", ext: ".png", image: mustPNG(t, 8, 10), label: 4},
		{key: "000002", ext: ".png", image: mustPNG(t, 8, 20), label: 1},
	})

	idx, err := Open(context.Background(), root)
	if err != nil {
		t.Fatalf("Open error: %v", err)
	}
	if len(idx.Classes) != 1 {
		t.Fatalf("shard directory should not be a class: %v", idx.Classes)
	}
	if len(idx.Samples) != 3 {
		t.Fatalf("expected 3 samples, got %d", len(idx.Samples))
	}
	if idx.NumClasses != 5 {
		t.Fatalf("NumClasses=%d want 5", idx.NumClasses)
	}
}

func TestOpenMissingRoot(t *testing.T) {
	_, err := Open(context.Background(), filepath.Join(t.TempDir(), "missing"))
	if !errors.Is(err, fs.ErrNotExist) {
		t.Fatalf("expected fs.ErrNotExist, got %v", err)
	}
}

func TestOpenEmptyRoot(t *testing.T) {
	_, err := Open(context.Background(), t.TempDir())
	if !errors.Is(err, ErrEmpty) {
		t.Fatalf("expected ErrEmpty, got %v", err)
	}
}
