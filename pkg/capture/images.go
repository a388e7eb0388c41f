package capture

import (
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg" // register decoders
	_ "image/png"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"
)

// ImageSource cycles through still images as if they were a live feed.
// It reads a directory of JPEG/PNG files, or serves images given in memory.
type ImageSource struct {
	dir      string
	interval time.Duration

	mu     sync.Mutex
	images []image.Image
	fixed  []image.Image
	next   int
	seq    uint64
	open   bool
	last   time.Time
}

// NewImageDir creates a source over the images in dir, in name order.
// interval paces Read; zero serves frames as fast as they are asked for.
func NewImageDir(dir string, interval time.Duration) *ImageSource {
	return &ImageSource{dir: dir, interval: interval}
}

// NewImages creates a source that cycles through imgs.
func NewImages(imgs ...image.Image) *ImageSource {
	return &ImageSource{fixed: imgs}
}

// Open loads the images.
func (s *ImageSource) Open(ctx context.Context) error {
	imgs := s.fixed
	if s.dir != "" {
		var err error
		imgs, err = loadDir(ctx, s.dir)
		if err != nil {
			return &SourceError{Op: "open", Err: err}
		}
	}
	if len(imgs) == 0 {
		return &SourceError{Op: "open", Err: errors.New("no images")}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.images = imgs
	s.next = 0
	s.open = true
	return nil
}

// Read returns the next image as a new frame.
func (s *ImageSource) Read(ctx context.Context) (*Frame, error) {
	s.mu.Lock()
	if !s.open {
		s.mu.Unlock()
		return nil, &SourceError{Op: "read", Err: ErrNotOpen}
	}
	wait := time.Duration(0)
	if s.interval > 0 && !s.last.IsZero() {
		wait = s.interval - time.Since(s.last)
	}
	s.mu.Unlock()

	if wait > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(wait):
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.open {
		return nil, &SourceError{Op: "read", Err: ErrNotOpen}
	}
	img := s.images[s.next]
	s.next = (s.next + 1) % len(s.images)
	s.seq++
	s.last = time.Now()

	f := NewFrame(img, s.seq)
	if f.Image == img {
		f = f.Clone()
	}
	return f, nil
}

// Close stops the source. It may be opened again.
func (s *ImageSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.open = false
	s.images = nil
	return nil
}

func loadDir(ctx context.Context, dir string) ([]image.Image, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(e.Name())) {
		case ".jpg", ".jpeg", ".png":
			names = append(names, e.Name())
		}
	}
	slices.Sort(names)

	imgs := make([]image.Image, 0, len(names))
	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		img, err := decodeFile(filepath.Join(dir, name))
		if err != nil {
			return nil, err
		}
		imgs = append(imgs, img)
	}
	return imgs, nil
}

func decodeFile(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", filepath.Base(path), err)
	}
	return img, nil
}
