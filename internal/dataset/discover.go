package dataset

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
)

var shardRegexp = regexp.MustCompile(`^shard-[0-9]{6,}\.tar$`)

var imageExts = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".gif":  true,
}

// ErrEmpty is returned when a dataset root holds no usable samples.
var ErrEmpty = errors.New("dataset: no samples found")

// Index is the full, ordered sample list of a dataset root.
type Index struct {
	Root       string
	Classes    []string
	Samples    []Sample
	NumClasses int
}

// Open indexes root. Every subdirectory holding at least one image is a
// class, labelled by its position in sorted order. WebDataset shards found
// anywhere below root are read into memory and keep their own .cls labels.
func Open(ctx context.Context, root string) (*Index, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("dataset: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("dataset: %s is not a directory", root)
	}

	classes, samples, err := discoverClasses(root)
	if err != nil {
		return nil, err
	}
	numClasses := len(classes)

	shards, err := DiscoverShards(root)
	if err != nil {
		return nil, err
	}
	for _, shard := range shards {
		shardSamples, err := ReadShard(ctx, shard, defaultPendingCap)
		if err != nil {
			return nil, fmt.Errorf("dataset: shard %s: %w", shard, err)
		}
		for _, s := range shardSamples {
			if s.Label < 0 {
				return nil, fmt.Errorf("dataset: shard %s: negative label %d for %s", shard, s.Label, s.Key)
			}
			if s.Label+1 > numClasses {
				numClasses = s.Label + 1
			}
		}
		samples = append(samples, shardSamples...)
	}

	if len(samples) == 0 {
		return nil, fmt.Errorf("%w under %s", ErrEmpty, root)
	}
	return &Index{Root: root, Classes: classes, Samples: samples, NumClasses: numClasses}, nil
}

func discoverClasses(root string) ([]string, []Sample, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, nil, fmt.Errorf("dataset: %w", err)
	}
	var classes []string
	var samples []Sample
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		files, err := DiscoverImages(filepath.Join(root, entry.Name()))
		if err != nil {
			return nil, nil, err
		}
		if len(files) == 0 {
			continue
		}
		label := len(classes)
		classes = append(classes, entry.Name())
		for _, path := range files {
			key := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
			samples = append(samples, Sample{Key: key, Path: path, Label: label})
		}
	}
	return classes, samples, nil
}

// DiscoverImages returns image file paths beneath root in lexical order.
func DiscoverImages(root string) ([]string, error) {
	entries := make([]string, 0)
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if imageExts[strings.ToLower(filepath.Ext(d.Name()))] {
			entries = append(entries, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("discover images: %w", err)
	}
	sort.Strings(entries)
	return entries, nil
}

// DiscoverShards returns paths to shard TAR files beneath root.
func DiscoverShards(root string) ([]string, error) {
	entries := make([]string, 0)
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if shardRegexp.MatchString(d.Name()) {
			entries = append(entries, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("discover shards: %w", err)
	}
	sort.Strings(entries)
	return entries, nil
}
