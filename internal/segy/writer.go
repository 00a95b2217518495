package segy

import (
	"encoding/binary"
	"fmt"
	"math"
	"os"
)

// Writer produces a minimal IEEE-float container. Used to materialize
// synthetic cubes and test fixtures; the engine itself only reads.
type Writer struct {
	SampleInterval int // microseconds
	NumSamples     int // declared samples per trace
	Schema         Schema
}

// WriteFile lays down textual header, binary header and the given traces.
// Traces are written verbatim: a trace whose sample count differs from the
// declared count is written with its own count in the trace header, which
// is how real containers end up with inconsistent lengths.
func (w Writer) WriteFile(path string, traces []Trace) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create container: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(make([]byte, textHeaderSize)); err != nil {
		return fmt.Errorf("failed to write textual header: %w", err)
	}

	bin := make([]byte, binaryHeaderSize)
	binary.BigEndian.PutUint16(bin[offSampleInterval:], uint16(w.SampleInterval))
	binary.BigEndian.PutUint16(bin[offNumSamples:], uint16(w.NumSamples))
	binary.BigEndian.PutUint16(bin[offFormatCode:], uint16(FormatIEEEFloat))
	if _, err := f.Write(bin); err != nil {
		return fmt.Errorf("failed to write binary header: %w", err)
	}

	for i := range traces {
		if err := w.writeTrace(f, &traces[i]); err != nil {
			return fmt.Errorf("failed to write trace %d: %w", i, err)
		}
	}
	return nil
}

func (w Writer) writeTrace(f *os.File, tr *Trace) error {
	hbuf := make([]byte, traceHeaderSize)
	binary.BigEndian.PutUint32(hbuf[w.Schema.InlineByte-1:], uint32(int32(tr.Header.Inline)))
	binary.BigEndian.PutUint32(hbuf[w.Schema.CrosslineByte-1:], uint32(int32(tr.Header.Crossline)))
	binary.BigEndian.PutUint16(hbuf[offTraceDelay:], uint16(int16(tr.Header.DelayMS)))
	binary.BigEndian.PutUint16(hbuf[offTraceNumSamples:], uint16(len(tr.Samples)))
	if _, err := f.Write(hbuf); err != nil {
		return err
	}

	sbuf := make([]byte, 4*len(tr.Samples))
	for i, s := range tr.Samples {
		binary.BigEndian.PutUint32(sbuf[4*i:], math.Float32bits(s))
	}
	_, err := f.Write(sbuf)
	return err
}
