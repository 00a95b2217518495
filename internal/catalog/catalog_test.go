package catalog

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
)

func testClient(t *testing.T) *Client {
	t.Helper()
	c, err := NewClient(filepath.Join(t.TempDir(), "catalog.db"))
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	if err := c.InitSchema(); err != nil {
		t.Fatalf("init schema: %v", err)
	}
	return c
}

func TestUpsertAndGetCube(t *testing.T) {
	c := testClient(t)

	cube := &Cube{
		ID:         uuid.New().String(),
		SourcePath: "/data/survey.sgy",
		Status:     StatusPending,
	}
	id, err := c.UpsertCube(cube)
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if id != cube.ID {
		t.Errorf("first upsert returned id %s, want %s", id, cube.ID)
	}

	got, err := c.GetCube(id)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got == nil {
		t.Fatal("cube not found after upsert")
	}
	if got.SourcePath != cube.SourcePath || got.Status != StatusPending {
		t.Errorf("got %+v, want source %q status %q", got, cube.SourcePath, StatusPending)
	}
}

func TestUpsertReusesRowForSameSource(t *testing.T) {
	c := testClient(t)

	first := &Cube{ID: uuid.New().String(), SourcePath: "/data/a.sgy", Status: StatusFailed, Error: "boom"}
	if _, err := c.UpsertCube(first); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	second := &Cube{ID: uuid.New().String(), SourcePath: "/data/a.sgy", Status: StatusPending}
	rerunID, err := c.UpsertCube(second)
	if err != nil {
		t.Fatalf("re-upsert: %v", err)
	}

	// The effective id is the surviving row's id, and it must resolve;
	// the freshly minted one must not leak to callers.
	if rerunID != first.ID {
		t.Errorf("re-upsert returned id %s, want original %s", rerunID, first.ID)
	}
	got, err := c.GetCube(rerunID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got == nil {
		t.Fatal("effective id does not resolve in the catalog")
	}

	cubes, err := c.ListCubes()
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(cubes) != 1 {
		t.Fatalf("got %d rows for one source path, want 1", len(cubes))
	}
	// The original row survives; only the status fields are refreshed.
	if cubes[0].ID != first.ID {
		t.Errorf("row id = %s, want original %s", cubes[0].ID, first.ID)
	}
	if cubes[0].Status != StatusPending {
		t.Errorf("status = %s, want %s", cubes[0].Status, StatusPending)
	}
	if cubes[0].Error != "" {
		t.Errorf("error = %q, want cleared", cubes[0].Error)
	}
}

func TestUpdateCubeWithGeometry(t *testing.T) {
	c := testClient(t)

	cube := &Cube{ID: uuid.New().String(), SourcePath: "/data/b.sgy", Status: StatusConverting}
	if _, err := c.UpsertCube(cube); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	geom := &Cube{Inlines: 120, Crosslines: 240, Samples: 500, DeadCells: 17}
	if err := c.UpdateCube(cube.SourcePath, StatusDone, "/data/b.svol", "", geom); err != nil {
		t.Fatalf("update: %v", err)
	}

	got, err := c.GetCube(cube.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != StatusDone || got.VolumePath != "/data/b.svol" {
		t.Errorf("got status %q volume %q, want done with volume path", got.Status, got.VolumePath)
	}
	if got.Inlines != 120 || got.Crosslines != 240 || got.Samples != 500 || got.DeadCells != 17 {
		t.Errorf("geometry = %d/%d/%d/%d, want 120/240/500/17",
			got.Inlines, got.Crosslines, got.Samples, got.DeadCells)
	}
}

func TestGetCubeMissing(t *testing.T) {
	c := testClient(t)

	got, err := c.GetCube("nope")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got != nil {
		t.Errorf("got %+v for a missing id, want nil", got)
	}
}

func TestListCubesOrderedByCreation(t *testing.T) {
	c := testClient(t)

	for _, p := range []string{"/data/1.sgy", "/data/2.sgy", "/data/3.sgy"} {
		if _, err := c.UpsertCube(&Cube{ID: uuid.New().String(), SourcePath: p, Status: StatusPending}); err != nil {
			t.Fatalf("upsert %s: %v", p, err)
		}
	}

	cubes, err := c.ListCubes()
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(cubes) != 3 {
		t.Fatalf("got %d cubes, want 3", len(cubes))
	}
}

func TestRecordRun(t *testing.T) {
	c := testClient(t)

	run := &Run{
		ID:         uuid.New().String(),
		StartedAt:  time.Now().Add(-time.Minute),
		FinishedAt: time.Now(),
		Total:      5,
		Succeeded:  4,
		Failed:     1,
	}
	if err := c.RecordRun(run); err != nil {
		t.Fatalf("record run: %v", err)
	}
	if err := c.RecordRun(run); err == nil {
		t.Fatal("expected a duplicate run id to be rejected")
	}
}
