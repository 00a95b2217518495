// Package volume is the structured volume store: an on-disk chunked
// representation of a 3D cube, written once by conversion and randomly
// readable by coordinate range afterwards. Chunks sit behind a bounded LRU
// cache, optionally backed by a remote redis tier.
package volume

import (
	"encoding/binary"
	"fmt"
	"io"
	"path/filepath"
	"strings"
)

// File layout:
//
//	magic "SVOL" | version u16 | flags u16
//	inlineMin, inlineStep, inlineCount   i32
//	xlineMin, xlineStep, xlineCount      i32
//	depthCount, sampleInterval           i32
//	chunkInlines, chunkXlines, chunkDepth i32
//	indexOffset u64  (patched once all chunks are on disk)
//	chunk blobs ...
//	chunk index: per chunk, offset u64 + compressed length u32
//
// Every chunk decompresses to exactly chunkShape.Size() float32 values;
// edge chunks are zero-padded before compression.
const (
	magic         = "SVOL"
	formatVersion = 1
	headerSize    = 4 + 2 + 2 + 11*4 + 8

	flagSnappy = 1 << 0
)

type header struct {
	Flags uint16

	InlineMin, InlineStep, InlineCount int
	XlineMin, XlineStep, XlineCount    int
	DepthCount                         int
	SampleInterval                     int

	ChunkInlines, ChunkXlines, ChunkDepth int

	IndexOffset uint64
}

func (h *header) encode() []byte {
	buf := make([]byte, headerSize)
	copy(buf, magic)
	binary.LittleEndian.PutUint16(buf[4:], formatVersion)
	binary.LittleEndian.PutUint16(buf[6:], h.Flags)
	fields := []int{
		h.InlineMin, h.InlineStep, h.InlineCount,
		h.XlineMin, h.XlineStep, h.XlineCount,
		h.DepthCount, h.SampleInterval,
		h.ChunkInlines, h.ChunkXlines, h.ChunkDepth,
	}
	off := 8
	for _, f := range fields {
		binary.LittleEndian.PutUint32(buf[off:], uint32(int32(f)))
		off += 4
	}
	binary.LittleEndian.PutUint64(buf[off:], h.IndexOffset)
	return buf
}

func decodeHeader(r io.ReaderAt, path string) (*header, error) {
	buf := make([]byte, headerSize)
	if _, err := r.ReadAt(buf, 0); err != nil {
		return nil, fmt.Errorf("failed to read volume header: %w", err)
	}
	if string(buf[:4]) != magic {
		return nil, fmt.Errorf("%s: not a structured volume file", path)
	}
	if v := binary.LittleEndian.Uint16(buf[4:]); v != formatVersion {
		return nil, fmt.Errorf("%s: unsupported volume format version %d", path, v)
	}

	h := &header{Flags: binary.LittleEndian.Uint16(buf[6:])}
	fields := []*int{
		&h.InlineMin, &h.InlineStep, &h.InlineCount,
		&h.XlineMin, &h.XlineStep, &h.XlineCount,
		&h.DepthCount, &h.SampleInterval,
		&h.ChunkInlines, &h.ChunkXlines, &h.ChunkDepth,
	}
	off := 8
	for _, f := range fields {
		*f = int(int32(binary.LittleEndian.Uint32(buf[off:])))
		off += 4
	}
	h.IndexOffset = binary.LittleEndian.Uint64(buf[off:])
	return h, nil
}

type chunkRef struct {
	Offset uint64
	Length uint32
}

// DestPath derives the structured volume path from the container path:
// same directory, sibling file, .svol extension.
func DestPath(containerPath string) string {
	ext := filepath.Ext(containerPath)
	return strings.TrimSuffix(containerPath, ext) + ".svol"
}

func ceilDiv(a, b int) int {
	return (a + b - 1) / b
}
