package cache

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/keirav/manifold/internal/core/ports"
	"github.com/keirav/manifold/pkg/pool"
)

const diskEntrySuffix = ".cache"

// diskTier stores one file per key under a directory, named by the key's
// sha256 so arbitrary namespace characters never reach the filesystem.
// The logical key lives inside the envelope for Invalidate listing.
type diskTier struct {
	buffers *pool.Pool[*bytes.Buffer]
	dir     string
}

func newDiskTier(dir string) (*diskTier, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating disk cache dir: %w", err)
	}
	buffers, err := pool.NewLitePool(func() *bytes.Buffer {
		return &bytes.Buffer{}
	})
	if err != nil {
		return nil, err
	}
	return &diskTier{dir: dir, buffers: buffers}, nil
}

func (d *diskTier) level() ports.CacheLevel {
	return ports.CacheLevelDisk
}

func (d *diskTier) path(key string) string {
	sum := sha256.Sum256([]byte(key))
	return filepath.Join(d.dir, hex.EncodeToString(sum[:])+diskEntrySuffix)
}

func (d *diskTier) get(_ context.Context, key string) (*envelope, bool, error) {
	data, err := os.ReadFile(d.path(key))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("reading cache file: %w", err)
	}

	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		// Corrupt entry: drop it and report a miss
		_ = os.Remove(d.path(key))
		return nil, false, nil
	}

	if env.expired(time.Now()) {
		_ = os.Remove(d.path(key))
		return nil, false, nil
	}
	return &env, true, nil
}

func (d *diskTier) put(_ context.Context, key string, env *envelope) error {
	buf := d.buffers.Get()
	defer func() {
		buf.Reset()
		d.buffers.Put(buf)
	}()

	if err := json.NewEncoder(buf).Encode(env); err != nil {
		return fmt.Errorf("encoding cache entry: %w", err)
	}

	target := d.path(key)
	tmp := target + ".tmp"
	if err := os.WriteFile(tmp, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("writing cache file: %w", err)
	}
	if err := os.Rename(tmp, target); err != nil {
		return fmt.Errorf("committing cache file: %w", err)
	}
	return nil
}

func (d *diskTier) delete(_ context.Context, key string) error {
	if err := os.Remove(d.path(key)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing cache file: %w", err)
	}
	return nil
}

func (d *diskTier) keys(_ context.Context) ([]string, error) {
	files, err := filepath.Glob(filepath.Join(d.dir, "*"+diskEntrySuffix))
	if err != nil {
		return nil, err
	}

	keys := make([]string, 0, len(files))
	for _, f := range files {
		data, err := os.ReadFile(f)
		if err != nil {
			continue
		}
		var env envelope
		if err := json.Unmarshal(data, &env); err != nil {
			continue
		}
		keys = append(keys, env.Key)
	}
	return keys, nil
}

func (d *diskTier) clear(_ context.Context) error {
	files, err := filepath.Glob(filepath.Join(d.dir, "*"+diskEntrySuffix))
	if err != nil {
		return err
	}
	for _, f := range files {
		if err := os.Remove(f); err != nil && !os.IsNotExist(err) {
			return err
		}
	}
	return nil
}

func (d *diskTier) size(_ context.Context) int {
	files, _ := filepath.Glob(filepath.Join(d.dir, "*"+diskEntrySuffix))
	return len(files)
}
