package batch

import (
	"context"
	"path/filepath"
	"sync"
	"testing"

	"github.com/seisvol/seisvol/internal/catalog"
	"github.com/seisvol/seisvol/internal/segy"
	"github.com/seisvol/seisvol/pkg/config"
)

func writeCube(t *testing.T, dir, name string) string {
	t.Helper()

	var traces []segy.Trace
	for i := 0; i < 2; i++ {
		for x := 0; x < 2; x++ {
			traces = append(traces, segy.Trace{
				Header:  segy.TraceHeader{Inline: i, Crossline: x},
				Samples: []float32{1, 2, 3, 4},
			})
		}
	}
	path := filepath.Join(dir, name)
	w := segy.Writer{SampleInterval: 4000, NumSamples: 4, Schema: segy.DefaultSchema()}
	if err := w.WriteFile(path, traces); err != nil {
		t.Fatalf("write cube: %v", err)
	}
	return path
}

func testSetup(t *testing.T, dir string) (*config.Config, *catalog.Client) {
	t.Helper()

	cfg := &config.Config{
		Schema: config.SchemaConfig{InlineByte: 189, CrosslineByte: 193},
		Convert: config.ConvertConfig{
			ChunkInlines:    1,
			ChunkCrosslines: 2,
			ChunkDepth:      2,
			Compression:     "snappy",
			LengthPolicy:    "reject",
			Workers:         1,
		},
	}
	cat, err := catalog.NewClient(filepath.Join(dir, "catalog.db"))
	if err != nil {
		t.Fatalf("new catalog: %v", err)
	}
	t.Cleanup(func() { cat.Close() })
	if err := cat.InitSchema(); err != nil {
		t.Fatalf("init schema: %v", err)
	}
	return cfg, cat
}

type eventLog struct {
	mu     sync.Mutex
	events []Event
}

func (l *eventLog) record(ev Event) {
	l.mu.Lock()
	l.events = append(l.events, ev)
	l.mu.Unlock()
}

func (l *eventLog) all() []Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Event(nil), l.events...)
}

func TestRunEventsCarryResolvableCubeIDs(t *testing.T) {
	dir := t.TempDir()
	path := writeCube(t, dir, "cube.sgy")
	cfg, cat := testSetup(t, dir)

	resolvable := func(t *testing.T, events []Event) {
		t.Helper()
		for _, ev := range events {
			cube, err := cat.GetCube(ev.CubeID)
			if err != nil {
				t.Fatalf("get cube %s: %v", ev.CubeID, err)
			}
			if cube == nil {
				t.Errorf("event %q carries cube id %s that the catalog cannot resolve", ev.Phase, ev.CubeID)
			}
		}
	}

	first := &eventLog{}
	run, err := NewRunner(cat, cfg, first.record).Run(context.Background(), []string{path})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if run.Succeeded != 1 || run.Failed != 0 {
		t.Fatalf("run = %d succeeded / %d failed, want 1 / 0", run.Succeeded, run.Failed)
	}
	resolvable(t, first.all())
	firstID := first.all()[0].CubeID

	// A re-run of the same path reuses the catalog row; events must keep
	// pointing at it.
	second := &eventLog{}
	if _, err := NewRunner(cat, cfg, second.record).Run(context.Background(), []string{path}); err != nil {
		t.Fatalf("re-run: %v", err)
	}
	resolvable(t, second.all())
	for _, ev := range second.all() {
		if ev.CubeID != firstID {
			t.Errorf("re-run event cube id = %s, want original %s", ev.CubeID, firstID)
		}
	}

	cubes, err := cat.ListCubes()
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(cubes) != 1 {
		t.Errorf("catalog holds %d rows after a re-run, want 1", len(cubes))
	}
}

func TestRunContinuesPastFailedCube(t *testing.T) {
	dir := t.TempDir()
	good := writeCube(t, dir, "good.sgy")
	missing := filepath.Join(dir, "missing.sgy")
	cfg, cat := testSetup(t, dir)

	log := &eventLog{}
	run, err := NewRunner(cat, cfg, log.record).Run(context.Background(), []string{missing, good})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if run.Succeeded != 1 || run.Failed != 1 {
		t.Fatalf("run = %d succeeded / %d failed, want 1 / 1", run.Succeeded, run.Failed)
	}

	var phases []string
	for _, ev := range log.all() {
		if ev.Phase != "started" {
			phases = append(phases, ev.Phase)
		}
	}
	if len(phases) != 2 {
		t.Fatalf("got %d terminal events, want 2", len(phases))
	}
}
