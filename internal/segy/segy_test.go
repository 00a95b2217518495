package segy

import (
	"errors"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeFixture(t *testing.T, traces []Trace, numSamples int) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "cube.sgy")
	w := Writer{SampleInterval: 4000, NumSamples: numSamples, Schema: DefaultSchema()}
	if err := w.WriteFile(path, traces); err != nil {
		t.Fatalf("write fixture: %v", err)
	}
	return path
}

func TestReadBackTraces(t *testing.T) {
	traces := []Trace{
		{Header: TraceHeader{Inline: 100, Crossline: 200}, Samples: []float32{1, 2, 3, 4}},
		{Header: TraceHeader{Inline: 100, Crossline: 201}, Samples: []float32{-1.5, 0, 2.5, 8}},
		{Header: TraceHeader{Inline: 102, Crossline: 200}, Samples: []float32{0.25, -0.25, 1e6, -1e6}},
	}
	path := writeFixture(t, traces, 4)

	r, err := Open(path, DefaultSchema(), PolicyReject)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer r.Close()

	if r.NumSamples != 4 {
		t.Errorf("declared samples = %d, want 4", r.NumSamples)
	}
	if r.SampleInterval != 4000 {
		t.Errorf("sample interval = %d, want 4000", r.SampleInterval)
	}

	for i := 0; ; i++ {
		tr, off, err := r.Next()
		if err == io.EOF {
			if i != len(traces) {
				t.Fatalf("read %d traces, want %d", i, len(traces))
			}
			break
		}
		if err != nil {
			t.Fatalf("next: %v", err)
		}
		want := traces[i]
		if tr.Header.Inline != want.Header.Inline || tr.Header.Crossline != want.Header.Crossline {
			t.Errorf("trace %d header = (%d, %d), want (%d, %d)",
				i, tr.Header.Inline, tr.Header.Crossline, want.Header.Inline, want.Header.Crossline)
		}
		for s := range want.Samples {
			if tr.Samples[s] != want.Samples[s] {
				t.Errorf("trace %d sample %d = %v, want %v", i, s, tr.Samples[s], want.Samples[s])
			}
		}

		again, err := r.ReadTraceAt(off)
		if err != nil {
			t.Fatalf("read trace at %d: %v", off, err)
		}
		if again.Header != tr.Header {
			t.Errorf("ReadTraceAt header mismatch at offset %d", off)
		}
	}
}

func TestLengthPolicies(t *testing.T) {
	short := Trace{Header: TraceHeader{Inline: 1, Crossline: 1}, Samples: []float32{7, 8}}
	long := Trace{Header: TraceHeader{Inline: 1, Crossline: 2}, Samples: []float32{1, 2, 3, 4, 5, 6}}

	tests := []struct {
		name    string
		policy  LengthPolicy
		trace   Trace
		want    []float32
		wantErr bool
	}{
		{"reject short", PolicyReject, short, nil, true},
		{"reject long", PolicyReject, long, nil, true},
		{"pad short", PolicyPad, short, []float32{7, 8, 0, 0}, false},
		{"pad long rejected", PolicyPad, long, nil, true},
		{"truncate long", PolicyTruncate, long, []float32{1, 2, 3, 4}, false},
		{"truncate short rejected", PolicyTruncate, short, nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeFixture(t, []Trace{tt.trace}, 4)
			r, err := Open(path, DefaultSchema(), tt.policy)
			if err != nil {
				t.Fatalf("open: %v", err)
			}
			defer r.Close()

			tr, _, err := r.Next()
			if tt.wantErr {
				var lenErr *InconsistentTraceLengthError
				if !errors.As(err, &lenErr) {
					t.Fatalf("err = %v, want InconsistentTraceLengthError", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("next: %v", err)
			}
			if len(tr.Samples) != len(tt.want) {
				t.Fatalf("got %d samples, want %d", len(tr.Samples), len(tt.want))
			}
			for i := range tt.want {
				if tr.Samples[i] != tt.want[i] {
					t.Errorf("sample %d = %v, want %v", i, tr.Samples[i], tt.want[i])
				}
			}
		})
	}
}

func TestReadTraceAtReportsOffsetOnLengthError(t *testing.T) {
	long := Trace{Header: TraceHeader{Inline: 1, Crossline: 1}, Samples: []float32{1, 2, 3, 4, 5, 6}}
	path := writeFixture(t, []Trace{long}, 4)

	r, err := Open(path, DefaultSchema(), PolicyReject)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer r.Close()

	// Random-access read, the way geometry-ordered conversion reaches
	// traces. The error must locate the trace by its file offset.
	off := int64(textHeaderSize + binaryHeaderSize)
	_, err = r.ReadTraceAt(off)
	var lenErr *InconsistentTraceLengthError
	if !errors.As(err, &lenErr) {
		t.Fatalf("err = %v, want InconsistentTraceLengthError", err)
	}
	if lenErr.Offset != off {
		t.Errorf("error offset = %d, want %d", lenErr.Offset, off)
	}
	if !strings.Contains(err.Error(), "offset 3600") {
		t.Errorf("error %q does not name the trace offset", err.Error())
	}
}

func TestOpenRejectsBadHeader(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.sgy")
	// Valid sizes but zeroed binary header: samples per trace is 0.
	if err := os.WriteFile(path, make([]byte, 3600), 0644); err != nil {
		t.Fatalf("write file: %v", err)
	}

	_, err := Open(path, DefaultSchema(), PolicyReject)
	var headerErr *MalformedHeaderError
	if !errors.As(err, &headerErr) {
		t.Fatalf("err = %v, want MalformedHeaderError", err)
	}
}

func TestIBMFloatDecode(t *testing.T) {
	tests := []struct {
		bits uint32
		want float32
	}{
		{0x00000000, 0},
		{0x41100000, 1},
		{0xC1100000, -1},
		{0x41200000, 2},
		{0x40800000, 0.5},
		{0x42640000, 100},
	}
	for _, tt := range tests {
		got := ibmToFloat32(tt.bits)
		if math.Abs(float64(got-tt.want)) > 1e-6 {
			t.Errorf("ibmToFloat32(%#x) = %v, want %v", tt.bits, got, tt.want)
		}
	}
}
