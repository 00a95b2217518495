// Package segy reads SEG-Y trace containers: a 3200-byte textual header,
// a 400-byte binary file header, then a sequence of traces, each a 240-byte
// header followed by its samples. Trace lengths may disagree with the
// declared count; that is normal input and handled by an explicit policy.
package segy

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"

	"go.uber.org/zap"

	"github.com/seisvol/seisvol/pkg/logger"
)

const (
	textHeaderSize   = 3200
	binaryHeaderSize = 400
	traceHeaderSize  = 240

	// Binary file header fields, offsets relative to byte 3200.
	offSampleInterval = 16 // int16, microseconds
	offNumSamples     = 20 // int16
	offFormatCode     = 24 // int16

	// Trace header fields, offsets relative to the trace header start.
	offTraceNumSamples = 114 // int16
	offTraceDelay      = 108 // int16, ms
)

// Sample format codes actually seen in the field.
const (
	FormatIBMFloat  = 1
	FormatIEEEFloat = 5
)

// LengthPolicy decides what happens to a trace whose sample count differs
// from the declared count. Both pad and truncate normalize to the declared
// count; a trace needing the opposite operation is rejected.
type LengthPolicy string

const (
	// PolicyReject aborts on any mismatch.
	PolicyReject LengthPolicy = "reject"
	// PolicyPad zero-fills short traces; long traces are rejected.
	PolicyPad LengthPolicy = "pad"
	// PolicyTruncate clips long traces; short traces are rejected.
	PolicyTruncate LengthPolicy = "truncate"
)

// Schema names the trace header bytes that carry the spatial index.
// Byte positions are 1-based as printed in SEG-Y documentation.
type Schema struct {
	InlineByte    int
	CrosslineByte int
}

// DefaultSchema is the SEG-Y rev1 standard placement.
func DefaultSchema() Schema {
	return Schema{InlineByte: 189, CrosslineByte: 193}
}

type TraceHeader struct {
	Inline     int
	Crossline  int
	DelayMS    int
	NumSamples int
}

type Trace struct {
	Header  TraceHeader
	Samples []float32
}

// Reader is a sequential and random-access reader over one container file.
// It never mutates the source file.
type Reader struct {
	f      *os.File
	path   string
	schema Schema
	policy LengthPolicy

	SampleInterval int // microseconds
	NumSamples     int // declared samples per trace
	Format         int

	pos int64 // next sequential trace offset
	seq int   // sequential trace counter, for error context
}

func Open(path string, schema Schema, policy LengthPolicy) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open container: %w", err)
	}

	r := &Reader{f: f, path: path, schema: schema, policy: policy}
	if err := r.readBinaryHeader(); err != nil {
		f.Close()
		return nil, err
	}
	r.pos = textHeaderSize + binaryHeaderSize

	logger.Debug("Opened trace container",
		zap.String("path", path),
		zap.Int("sample_interval_us", r.SampleInterval),
		zap.Int("num_samples", r.NumSamples),
		zap.Int("format", r.Format),
	)
	return r, nil
}

func (r *Reader) Close() error {
	return r.f.Close()
}

func (r *Reader) Path() string { return r.path }

func (r *Reader) readBinaryHeader() error {
	buf := make([]byte, binaryHeaderSize)
	if _, err := r.f.ReadAt(buf, textHeaderSize); err != nil {
		return &MalformedHeaderError{Path: r.path, Field: "binary header", Reason: err.Error()}
	}

	r.SampleInterval = int(int16(binary.BigEndian.Uint16(buf[offSampleInterval:])))
	r.NumSamples = int(int16(binary.BigEndian.Uint16(buf[offNumSamples:])))
	r.Format = int(int16(binary.BigEndian.Uint16(buf[offFormatCode:])))

	if r.NumSamples <= 0 {
		return &MalformedHeaderError{Path: r.path, Field: "samples per trace",
			Reason: fmt.Sprintf("non-positive value %d", r.NumSamples)}
	}
	if r.SampleInterval <= 0 {
		return &MalformedHeaderError{Path: r.path, Field: "sample interval",
			Reason: fmt.Sprintf("non-positive value %d", r.SampleInterval)}
	}
	if r.Format != FormatIBMFloat && r.Format != FormatIEEEFloat {
		return &MalformedHeaderError{Path: r.path, Field: "format code",
			Reason: fmt.Sprintf("unsupported code %d", r.Format)}
	}
	return nil
}

// Next reads the next trace sequentially and returns it with its file
// offset. Returns io.EOF when the container is exhausted.
func (r *Reader) Next() (*Trace, int64, error) {
	off := r.pos
	tr, next, err := r.readTrace(off, r.seq)
	if err != nil {
		return nil, 0, err
	}
	r.pos = next
	r.seq++
	return tr, off, nil
}

// Rewind resets the sequential cursor to the first trace.
func (r *Reader) Rewind() {
	r.pos = textHeaderSize + binaryHeaderSize
	r.seq = 0
}

// ReadTraceAt decodes the trace whose header starts at off. Offsets come
// from a previous sequential scan; geometry-ordered conversion re-reads
// traces through this.
func (r *Reader) ReadTraceAt(off int64) (*Trace, error) {
	tr, _, err := r.readTrace(off, -1)
	return tr, err
}

func (r *Reader) readTrace(off int64, seq int) (*Trace, int64, error) {
	hbuf := make([]byte, traceHeaderSize)
	n, err := r.f.ReadAt(hbuf, off)
	if err == io.EOF && n == 0 {
		return nil, 0, io.EOF
	}
	if err != nil {
		return nil, 0, fmt.Errorf("failed to read trace header at %d: %w", off, err)
	}

	h := TraceHeader{
		Inline:     int(int32(binary.BigEndian.Uint32(hbuf[r.schema.InlineByte-1:]))),
		Crossline:  int(int32(binary.BigEndian.Uint32(hbuf[r.schema.CrosslineByte-1:]))),
		DelayMS:    int(int16(binary.BigEndian.Uint16(hbuf[offTraceDelay:]))),
		NumSamples: int(int16(binary.BigEndian.Uint16(hbuf[offTraceNumSamples:]))),
	}
	if h.NumSamples <= 0 {
		return nil, 0, &MalformedHeaderError{Path: r.path, Field: "trace samples",
			Reason: fmt.Sprintf("non-positive value %d at offset %d", h.NumSamples, off)}
	}

	sbuf := make([]byte, 4*h.NumSamples)
	if _, err := r.f.ReadAt(sbuf, off+traceHeaderSize); err != nil {
		return nil, 0, fmt.Errorf("failed to read %d samples at %d: %w", h.NumSamples, off, err)
	}

	samples, err := r.decodeSamples(sbuf, h.NumSamples)
	if err != nil {
		return nil, 0, err
	}
	samples, err = r.normalize(samples, seq, off)
	if err != nil {
		return nil, 0, err
	}

	next := off + traceHeaderSize + int64(4*h.NumSamples)
	return &Trace{Header: h, Samples: samples}, next, nil
}

func (r *Reader) decodeSamples(buf []byte, n int) ([]float32, error) {
	out := make([]float32, n)
	switch r.Format {
	case FormatIEEEFloat:
		for i := 0; i < n; i++ {
			out[i] = math.Float32frombits(binary.BigEndian.Uint32(buf[4*i:]))
		}
	case FormatIBMFloat:
		for i := 0; i < n; i++ {
			out[i] = ibmToFloat32(binary.BigEndian.Uint32(buf[4*i:]))
		}
	default:
		return nil, &MalformedHeaderError{Path: r.path, Field: "format code",
			Reason: fmt.Sprintf("unsupported code %d", r.Format)}
	}
	return out, nil
}

// normalize applies the configured length policy so every returned trace
// has exactly the declared sample count.
func (r *Reader) normalize(samples []float32, seq int, off int64) ([]float32, error) {
	got := len(samples)
	if got == r.NumSamples {
		return samples, nil
	}

	mismatch := &InconsistentTraceLengthError{Path: r.path, Trace: seq, Offset: off, Got: got, Want: r.NumSamples}
	switch r.policy {
	case PolicyPad:
		if got > r.NumSamples {
			return nil, mismatch
		}
		logger.Debug("Padding short trace",
			zap.String("path", r.path), zap.Int64("offset", off),
			zap.Int("got", got), zap.Int("want", r.NumSamples))
		return append(samples, make([]float32, r.NumSamples-got)...), nil
	case PolicyTruncate:
		if got < r.NumSamples {
			return nil, mismatch
		}
		logger.Debug("Truncating long trace",
			zap.String("path", r.path), zap.Int64("offset", off),
			zap.Int("got", got), zap.Int("want", r.NumSamples))
		return samples[:r.NumSamples], nil
	default:
		return nil, mismatch
	}
}

// ibmToFloat32 converts a big-endian IBM System/360 hexadecimal float.
func ibmToFloat32(bits uint32) float32 {
	if bits == 0 {
		return 0
	}
	sign := float64(1)
	if bits&0x80000000 != 0 {
		sign = -1
	}
	exponent := int((bits>>24)&0x7f) - 64
	mantissa := float64(bits&0x00ffffff) / float64(1<<24)
	return float32(sign * mantissa * math.Pow(16, float64(exponent)))
}
