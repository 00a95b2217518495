package volume

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"github.com/seisvol/seisvol/internal/grid"
	"github.com/seisvol/seisvol/pkg/config"
)

func startRemote(t *testing.T) (*miniredis.Miniredis, *RemoteCache) {
	t.Helper()

	s := miniredis.RunT(t)
	port, err := strconv.Atoi(s.Port())
	if err != nil {
		t.Fatalf("parse port: %v", err)
	}
	rc, err := NewRemoteCache(s.Host(), port, "", 0, time.Minute)
	if err != nil {
		t.Fatalf("new remote cache: %v", err)
	}
	t.Cleanup(func() { rc.Close() })
	return s, rc
}

func TestRemoteCachePutGet(t *testing.T) {
	_, rc := startRemote(t)
	ctx := context.Background()

	values := []float32{1.5, -2, 0, 42.25}
	rc.put(ctx, "vol-a", 3, values)

	got, ok := rc.get(ctx, "vol-a", 3)
	if !ok {
		t.Fatal("chunk should be cached remotely")
	}
	if len(got) != len(values) {
		t.Fatalf("got %d values, want %d", len(got), len(values))
	}
	for i := range values {
		if got[i] != values[i] {
			t.Errorf("value %d = %v, want %v", i, got[i], values[i])
		}
	}

	if _, ok := rc.get(ctx, "vol-a", 4); ok {
		t.Error("unknown chunk should miss")
	}
	if _, ok := rc.get(ctx, "vol-b", 3); ok {
		t.Error("same chunk of a different volume should miss")
	}
}

func TestRemoteCacheDegradesWhenServerGone(t *testing.T) {
	s, rc := startRemote(t)
	ctx := context.Background()

	rc.put(ctx, "vol", 0, []float32{1})
	s.Close()

	if _, ok := rc.get(ctx, "vol", 0); ok {
		t.Error("get should miss once the server is gone")
	}
	// put must degrade to a logged miss, never an error or a hang.
	rc.put(ctx, "vol", 1, []float32{2})
}

func TestVolumeReadsThroughRemoteTier(t *testing.T) {
	dir := t.TempDir()
	r, idx := buildCube(t, dir, 3, 4, 4)
	dest, err := Convert(context.Background(), r, idx, ConvertOptions{
		ChunkShape:  grid.Shape{1, 2, 2},
		Compression: "snappy",
	})
	if err != nil {
		t.Fatalf("convert: %v", err)
	}

	_, rc := startRemote(t)
	ctx := context.Background()

	// First reader populates the remote tier from disk.
	vol, err := Open(dest, OpenOptions{CacheChunks: 1, Remote: rc})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer vol.Close()

	crop, err := vol.ReadCrop(ctx, grid.Point{0, 0, 0}, grid.Shape{3, 4, 4})
	if err != nil {
		t.Fatalf("read crop: %v", err)
	}
	for i := 0; i < 3; i++ {
		for x := 0; x < 4; x++ {
			for z := 0; z < 4; z++ {
				if got := crop.At(i, x, z); got != cellValue(i, x, z) {
					t.Fatalf("cell (%d,%d,%d) = %v, want %v", i, x, z, got, cellValue(i, x, z))
				}
			}
		}
	}

	// A second reader sharing the tier sees identical data.
	vol2, err := Open(dest, OpenOptions{CacheChunks: 1, Remote: rc})
	if err != nil {
		t.Fatalf("open second reader: %v", err)
	}
	defer vol2.Close()

	sub, err := vol2.ReadCrop(ctx, grid.Point{1, 1, 1}, grid.Shape{2, 2, 2})
	if err != nil {
		t.Fatalf("read sub crop: %v", err)
	}
	for i := 0; i < 2; i++ {
		for x := 0; x < 2; x++ {
			for z := 0; z < 2; z++ {
				want := cellValue(1+i, 1+x, 1+z)
				if got := sub.At(i, x, z); got != want {
					t.Fatalf("sub cell (%d,%d,%d) = %v, want %v", i, x, z, got, want)
				}
			}
		}
	}
}

func TestOpenOptionsFromConfig(t *testing.T) {
	opts, err := OpenOptionsFromConfig(&config.CacheConfig{CapacityChunks: 64})
	if err != nil {
		t.Fatalf("options: %v", err)
	}
	if opts.CacheChunks != 64 {
		t.Errorf("cache capacity = %d, want 64", opts.CacheChunks)
	}
	if opts.Remote != nil {
		t.Error("remote tier should stay nil when redis is disabled")
	}

	s := miniredis.RunT(t)
	port, err := strconv.Atoi(s.Port())
	if err != nil {
		t.Fatalf("parse port: %v", err)
	}
	opts, err = OpenOptionsFromConfig(&config.CacheConfig{
		CapacityChunks: 8,
		RedisEnabled:   true,
		RedisHost:      s.Host(),
		RedisPort:      port,
		RedisTTLSec:    60,
	})
	if err != nil {
		t.Fatalf("options with redis: %v", err)
	}
	if opts.Remote == nil {
		t.Fatal("remote tier should be built when redis is enabled")
	}
	opts.Remote.Close()
}
