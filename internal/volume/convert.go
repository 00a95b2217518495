package volume

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"time"

	"github.com/golang/snappy"
	"go.uber.org/zap"

	"github.com/seisvol/seisvol/internal/geometry"
	"github.com/seisvol/seisvol/internal/grid"
	"github.com/seisvol/seisvol/internal/metrics"
	"github.com/seisvol/seisvol/internal/segy"
	"github.com/seisvol/seisvol/pkg/logger"
)

type ConvertOptions struct {
	ChunkShape  grid.Shape
	Compression string // "snappy" or "none"
}

func DefaultConvertOptions() ConvertOptions {
	return ConvertOptions{
		// Thin along inline, wide along crossline and depth: crops are
		// typically one inline slice spanning many crosslines and samples.
		ChunkShape:  grid.Shape{8, 64, 64},
		Compression: "snappy",
	}
}

// Convert streams the container's traces in geometry order into a chunked
// structured volume next to the source file and returns its path.
//
// All-or-nothing: the volume is written to a temporary sibling and moved
// into place with an atomic rename only after every chunk and the chunk
// index are on disk. Any failure, including ctx cancellation, removes the
// temporary file and leaves the destination untouched. IO failures are not
// retried here.
func Convert(ctx context.Context, r *segy.Reader, idx *geometry.Index, opts ConvertOptions) (dest string, err error) {
	start := time.Now()
	defer func() {
		status := "ok"
		if err != nil {
			status = "error"
		}
		metrics.ConversionDuration.WithLabelValues(status).Observe(time.Since(start).Seconds())
	}()

	if opts.ChunkShape.Size() == 0 {
		opts = DefaultConvertOptions()
	}
	if err := validateChunkShape(opts.ChunkShape, idx); err != nil {
		return "", err
	}

	dest = DestPath(r.Path())
	tmp := dest + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return "", fmt.Errorf("failed to create volume destination: %w", err)
	}
	defer func() {
		if err != nil {
			f.Close()
			os.Remove(tmp)
		}
	}()

	h := &header{
		InlineMin:      idx.InlineMin,
		InlineStep:     idx.InlineStep,
		InlineCount:    idx.InlineCount,
		XlineMin:       idx.CrosslineMin,
		XlineStep:      idx.CrosslineStep,
		XlineCount:     idx.CrosslineCount,
		DepthCount:     idx.NumSamples,
		SampleInterval: idx.SampleInterval,
		ChunkInlines:   opts.ChunkShape[0],
		ChunkXlines:    opts.ChunkShape[1],
		ChunkDepth:     opts.ChunkShape[2],
	}
	if opts.Compression == "snappy" {
		h.Flags |= flagSnappy
	}
	if _, err = f.Write(h.encode()); err != nil {
		return "", fmt.Errorf("failed to write volume header: %w", err)
	}

	refs, err := writeChunks(ctx, f, r, idx, h)
	if err != nil {
		return "", err
	}

	indexOffset, err := f.Seek(0, 2)
	if err != nil {
		return "", fmt.Errorf("failed to seek to index position: %w", err)
	}
	ibuf := make([]byte, 12*len(refs))
	for i, ref := range refs {
		binary.LittleEndian.PutUint64(ibuf[12*i:], ref.Offset)
		binary.LittleEndian.PutUint32(ibuf[12*i+8:], ref.Length)
	}
	if _, err = f.Write(ibuf); err != nil {
		return "", fmt.Errorf("failed to write chunk index: %w", err)
	}

	h.IndexOffset = uint64(indexOffset)
	if _, err = f.WriteAt(h.encode(), 0); err != nil {
		return "", fmt.Errorf("failed to finalize volume header: %w", err)
	}

	if err = f.Sync(); err != nil {
		return "", fmt.Errorf("failed to sync volume: %w", err)
	}
	if err = f.Close(); err != nil {
		return "", fmt.Errorf("failed to close volume: %w", err)
	}
	if err = os.Rename(tmp, dest); err != nil {
		os.Remove(tmp)
		return "", fmt.Errorf("failed to finalize volume: %w", err)
	}

	logger.Info("Conversion finished",
		zap.String("source", r.Path()),
		zap.String("dest", dest),
		zap.Int("chunks", len(refs)),
		zap.Duration("took", time.Since(start)),
	)
	return dest, nil
}

func validateChunkShape(shape grid.Shape, idx *geometry.Index) error {
	limits := [3]int{idx.InlineCount, idx.CrosslineCount, idx.NumSamples}
	for ax := 0; ax < 3; ax++ {
		if shape[ax] <= 0 {
			return &grid.InvalidExtentError{Axis: ax, Request: shape[ax], Limit: limits[ax],
				Reason: "chunk shape must be positive"}
		}
	}
	return nil
}

// writeChunks streams the cube one inline block at a time: read every
// trace of the block, cut the block into chunks, compress and append.
func writeChunks(ctx context.Context, f *os.File, r *segy.Reader, idx *geometry.Index, h *header) ([]chunkRef, error) {
	ci, cx, cz := h.ChunkInlines, h.ChunkXlines, h.ChunkDepth
	nIl, nXl, nz := h.InlineCount, h.XlineCount, h.DepthCount
	nci, ncx, ncz := ceilDiv(nIl, ci), ceilDiv(nXl, cx), ceilDiv(nz, cz)

	refs := make([]chunkRef, nci*ncx*ncz)
	block := make([]float32, ci*nXl*nz)
	chunk := make([]float32, ci*cx*cz)
	pos := uint64(headerSize)

	for bi := 0; bi < nci; bi++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		for i := range block {
			block[i] = 0
		}
		for i := 0; i < ci; i++ {
			gi := bi*ci + i
			if gi >= nIl {
				break
			}
			for x := 0; x < nXl; x++ {
				off, ok := idx.OffsetAt(gi, x)
				if !ok {
					continue
				}
				tr, err := r.ReadTraceAt(off)
				if err != nil {
					return nil, err
				}
				copy(block[(i*nXl+x)*nz:], tr.Samples)
			}
		}

		for bx := 0; bx < ncx; bx++ {
			for bz := 0; bz < ncz; bz++ {
				for i := range chunk {
					chunk[i] = 0
				}
				for i := 0; i < ci; i++ {
					for x := 0; x < cx; x++ {
						gx := bx*cx + x
						if bi*ci+i >= nIl || gx >= nXl {
							continue
						}
						z0 := bz * cz
						zn := min(cz, nz-z0)
						src := (i*nXl+gx)*nz + z0
						dst := (i*cx + x) * cz
						copy(chunk[dst:dst+zn], block[src:src+zn])
					}
				}

				blob := encodeChunk(chunk, h.Flags)
				n, err := f.Write(blob)
				if err != nil {
					return nil, fmt.Errorf("failed to write chunk (%d,%d,%d): %w", bi, bx, bz, err)
				}
				refs[(bi*ncx+bx)*ncz+bz] = chunkRef{Offset: pos, Length: uint32(n)}
				pos += uint64(n)
				metrics.ChunksWritten.Inc()
			}
		}
	}
	return refs, nil
}

func encodeChunk(values []float32, flags uint16) []byte {
	raw := make([]byte, 4*len(values))
	for i, v := range values {
		binary.LittleEndian.PutUint32(raw[4*i:], math.Float32bits(v))
	}
	if flags&flagSnappy != 0 {
		return snappy.Encode(nil, raw)
	}
	return raw
}

func decodeChunk(blob []byte, n int, flags uint16) ([]float32, error) {
	raw := blob
	if flags&flagSnappy != 0 {
		var err error
		raw, err = snappy.Decode(nil, blob)
		if err != nil {
			return nil, fmt.Errorf("failed to decompress chunk: %w", err)
		}
	}
	if len(raw) != 4*n {
		return nil, fmt.Errorf("chunk has %d bytes, expected %d", len(raw), 4*n)
	}
	values := make([]float32, n)
	for i := range values {
		values[i] = math.Float32frombits(binary.LittleEndian.Uint32(raw[4*i:]))
	}
	return values, nil
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
