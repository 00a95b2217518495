package volume

import (
	"context"
	"encoding/binary"
	"fmt"
	"os"

	"github.com/seisvol/seisvol/internal/grid"
	"github.com/seisvol/seisvol/internal/metrics"
)

// Volume is an open structured volume. Read-only; safe for concurrent use.
type Volume struct {
	path   string
	f      *os.File
	h      *header
	refs   []chunkRef
	cache  *chunkCache
	remote *RemoteCache

	nci, ncx, ncz int
}

type OpenOptions struct {
	// CacheChunks bounds the local LRU chunk cache.
	CacheChunks int
	// Remote, when non-nil, is consulted on local miss.
	Remote *RemoteCache
}

func Open(path string, opts OpenOptions) (*Volume, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open volume: %w", err)
	}

	h, err := decodeHeader(f, path)
	if err != nil {
		f.Close()
		return nil, err
	}

	v := &Volume{
		path:   path,
		f:      f,
		h:      h,
		cache:  newChunkCache(opts.CacheChunks),
		remote: opts.Remote,
		nci:    ceilDiv(h.InlineCount, h.ChunkInlines),
		ncx:    ceilDiv(h.XlineCount, h.ChunkXlines),
		ncz:    ceilDiv(h.DepthCount, h.ChunkDepth),
	}

	n := v.nci * v.ncx * v.ncz
	ibuf := make([]byte, 12*n)
	if _, err := f.ReadAt(ibuf, int64(h.IndexOffset)); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to read chunk index: %w", err)
	}
	v.refs = make([]chunkRef, n)
	for i := range v.refs {
		v.refs[i] = chunkRef{
			Offset: binary.LittleEndian.Uint64(ibuf[12*i:]),
			Length: binary.LittleEndian.Uint32(ibuf[12*i+8:]),
		}
	}
	return v, nil
}

func (v *Volume) Close() error {
	return v.f.Close()
}

func (v *Volume) Path() string { return v.path }

// Shape is the cube extent in grid units (inline, crossline, depth).
func (v *Volume) Shape() grid.Shape {
	return grid.Shape{v.h.InlineCount, v.h.XlineCount, v.h.DepthCount}
}

// Extent is the full cube as a half-open range from the origin.
func (v *Volume) Extent() grid.Extent {
	return grid.NewExtent(grid.Point{}, grid.Point(v.Shape()))
}

func (v *Volume) SampleInterval() int { return v.h.SampleInterval }

// InlineLabel converts a 0-based inline grid coordinate back to the
// survey's inline number, and likewise for crosslines.
func (v *Volume) InlineLabel(i int) int   { return v.h.InlineMin + i*v.h.InlineStep }
func (v *Volume) CrosslineLabel(x int) int { return v.h.XlineMin + x*v.h.XlineStep }

// ReadCrop extracts the sub-volume of the given shape at origin, both in
// grid units. The request is validated against the cube extent before any
// chunk is touched.
func (v *Volume) ReadCrop(ctx context.Context, origin grid.Point, shape grid.Shape) (grid.Crop, error) {
	limits := v.Shape()
	for ax := 0; ax < 3; ax++ {
		if shape[ax] <= 0 || origin[ax] < 0 || origin[ax]+shape[ax] > limits[ax] {
			return grid.Crop{}, &grid.InvalidExtentError{
				Axis:    ax,
				Request: origin[ax] + shape[ax],
				Limit:   limits[ax],
				Reason:  "crop outside volume extent",
			}
		}
	}

	crop := grid.Crop{
		Origin: origin,
		Shape:  shape,
		Data:   make([]float32, shape.Size()),
	}

	ci, cx, cz := v.h.ChunkInlines, v.h.ChunkXlines, v.h.ChunkDepth
	for bi := origin[0] / ci; bi <= (origin[0]+shape[0]-1)/ci; bi++ {
		for bx := origin[1] / cx; bx <= (origin[1]+shape[1]-1)/cx; bx++ {
			for bz := origin[2] / cz; bz <= (origin[2]+shape[2]-1)/cz; bz++ {
				if err := ctx.Err(); err != nil {
					return grid.Crop{}, err
				}
				data, err := v.chunk(ctx, bi, bx, bz)
				if err != nil {
					return grid.Crop{}, err
				}
				v.copyOverlap(&crop, data, bi, bx, bz)
			}
		}
	}

	metrics.CropsExtracted.Inc()
	return crop, nil
}

// copyOverlap copies the overlap of chunk (bi,bx,bz) into the crop buffer.
func (v *Volume) copyOverlap(crop *grid.Crop, data []float32, bi, bx, bz int) {
	ci, cx, cz := v.h.ChunkInlines, v.h.ChunkXlines, v.h.ChunkDepth
	c0 := grid.Point{bi * ci, bx * cx, bz * cz}

	iLo := max(crop.Origin[0], c0[0])
	iHi := min(crop.Origin[0]+crop.Shape[0], c0[0]+ci)
	xLo := max(crop.Origin[1], c0[1])
	xHi := min(crop.Origin[1]+crop.Shape[1], c0[1]+cx)
	zLo := max(crop.Origin[2], c0[2])
	zHi := min(crop.Origin[2]+crop.Shape[2], c0[2]+cz)

	for i := iLo; i < iHi; i++ {
		for x := xLo; x < xHi; x++ {
			src := ((i-c0[0])*cx+(x-c0[1]))*cz + (zLo - c0[2])
			dst := ((i-crop.Origin[0])*crop.Shape[1]+(x-crop.Origin[1]))*crop.Shape[2] + (zLo - crop.Origin[2])
			copy(crop.Data[dst:dst+zHi-zLo], data[src:src+zHi-zLo])
		}
	}
}

// chunk fetches one decompressed chunk: local cache, then remote tier,
// then disk. Disk reads populate both tiers.
func (v *Volume) chunk(ctx context.Context, bi, bx, bz int) ([]float32, error) {
	key := (bi*v.ncx+bx)*v.ncz + bz

	if data, ok := v.cache.get(key); ok {
		return data, nil
	}
	if v.remote != nil {
		if data, ok := v.remote.get(ctx, v.path, key); ok {
			v.cache.add(key, data)
			return data, nil
		}
	}

	ref := v.refs[key]
	blob := make([]byte, ref.Length)
	if _, err := v.f.ReadAt(blob, int64(ref.Offset)); err != nil {
		return nil, fmt.Errorf("failed to read chunk %d: %w", key, err)
	}
	data, err := decodeChunk(blob, v.h.ChunkInlines*v.h.ChunkXlines*v.h.ChunkDepth, v.h.Flags)
	if err != nil {
		return nil, fmt.Errorf("chunk %d of %s: %w", key, v.path, err)
	}

	v.cache.add(key, data)
	if v.remote != nil {
		v.remote.put(ctx, v.path, key, data)
	}
	return data, nil
}

// CachedChunks reports the current local cache occupancy.
func (v *Volume) CachedChunks() int {
	return v.cache.len()
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}
