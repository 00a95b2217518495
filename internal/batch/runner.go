// Package batch drives conversion over a list of cube paths. One bad cube
// never stops the batch: its failure is logged, recorded in the catalog,
// and the remaining cubes proceed.
package batch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/seisvol/seisvol/internal/catalog"
	"github.com/seisvol/seisvol/internal/geometry"
	"github.com/seisvol/seisvol/internal/grid"
	"github.com/seisvol/seisvol/internal/metrics"
	"github.com/seisvol/seisvol/internal/segy"
	"github.com/seisvol/seisvol/internal/volume"
	"github.com/seisvol/seisvol/pkg/config"
	"github.com/seisvol/seisvol/pkg/logger"
	"github.com/seisvol/seisvol/pkg/retry"
)

// Event reports batch progress; the API layer streams these to clients.
type Event struct {
	RunID  string `json:"run_id"`
	CubeID string `json:"cube_id"`
	Path   string `json:"path"`
	Phase  string `json:"phase"` // started, converted, failed
	Error  string `json:"error,omitempty"`
	Done   int    `json:"done"`
	Total  int    `json:"total"`
}

type Runner struct {
	cat    *catalog.Client
	cfg    *config.Config
	notify func(Event)

	mu        sync.Mutex
	done      int
	succeeded int
	failed    int
}

// NewRunner builds a batch runner. notify may be nil.
func NewRunner(cat *catalog.Client, cfg *config.Config, notify func(Event)) *Runner {
	if notify == nil {
		notify = func(Event) {}
	}
	return &Runner{cat: cat, cfg: cfg, notify: notify}
}

// Run converts every cube, bounded-parallel, and records the outcome.
// The returned error is non-nil only for batch-level failures (ctx
// cancellation, catalog unavailable); per-cube errors live in the catalog.
func (r *Runner) Run(ctx context.Context, paths []string) (*catalog.Run, error) {
	run := &catalog.Run{
		ID:        uuid.New().String(),
		StartedAt: time.Now(),
		Total:     len(paths),
	}
	logger.Info("Batch conversion started",
		zap.String("run_id", run.ID),
		zap.Int("cubes", len(paths)),
		zap.Int("workers", r.cfg.Convert.Workers),
	)

	r.mu.Lock()
	r.done, r.succeeded, r.failed = 0, 0, 0
	r.mu.Unlock()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxInt(r.cfg.Convert.Workers, 1))

	for _, path := range paths {
		path := path
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			r.convertOne(gctx, run, path)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	run.FinishedAt = time.Now()
	r.mu.Lock()
	run.Succeeded, run.Failed = r.succeeded, r.failed
	r.mu.Unlock()

	if err := r.cat.RecordRun(run); err != nil {
		return nil, err
	}
	logger.Info("Batch conversion finished",
		zap.String("run_id", run.ID),
		zap.Int("succeeded", run.Succeeded),
		zap.Int("failed", run.Failed),
		zap.Duration("took", run.FinishedAt.Sub(run.StartedAt)),
	)
	return run, nil
}

func (r *Runner) convertOne(ctx context.Context, run *catalog.Run, path string) {
	cube := &catalog.Cube{ID: uuid.New().String(), SourcePath: path, Status: catalog.StatusConverting}
	// A re-run of an already cataloged path keeps its original row, so
	// events must carry the catalog's id, not the freshly minted one.
	cubeID, err := r.cat.UpsertCube(cube)
	if err != nil {
		logger.Error("Failed to register cube", zap.String("path", path), zap.Error(err))
		cubeID = cube.ID
	}
	r.emit(run, Event{RunID: run.ID, CubeID: cubeID, Path: path, Phase: "started"})

	dest, geom, err := r.convert(ctx, path)
	if err != nil {
		metrics.CubesConverted.WithLabelValues("failed").Inc()
		logger.Error("Cube conversion failed",
			zap.String("path", path),
			zap.Error(err),
		)
		if uerr := r.cat.UpdateCube(path, catalog.StatusFailed, "", err.Error(), nil); uerr != nil {
			logger.Error("Failed to record cube failure", zap.String("path", path), zap.Error(uerr))
		}
		r.finish(run, Event{RunID: run.ID, CubeID: cubeID, Path: path, Phase: "failed", Error: err.Error()}, false)
		return
	}

	metrics.CubesConverted.WithLabelValues("ok").Inc()
	if uerr := r.cat.UpdateCube(path, catalog.StatusDone, dest, "", geom); uerr != nil {
		logger.Error("Failed to record cube success", zap.String("path", path), zap.Error(uerr))
	}
	r.finish(run, Event{RunID: run.ID, CubeID: cubeID, Path: path, Phase: "converted"}, true)
}

// convert runs the per-cube steps: open, index, convert. IO failures are
// retried here, the caller's prerogative; schema and length errors are
// not, since re-reading the same bytes cannot fix them.
func (r *Runner) convert(ctx context.Context, path string) (string, *catalog.Cube, error) {
	policy, err := lengthPolicy(r.cfg.Convert.LengthPolicy)
	if err != nil {
		return "", nil, err
	}
	schema := segy.Schema{
		InlineByte:    r.cfg.Schema.InlineByte,
		CrosslineByte: r.cfg.Schema.CrosslineByte,
	}

	reader, err := segy.Open(path, schema, policy)
	if err != nil {
		return "", nil, err
	}
	defer reader.Close()

	idx, err := geometry.Build(reader)
	if err != nil {
		return "", nil, err
	}

	opts := volume.ConvertOptions{
		ChunkShape: grid.Shape{
			r.cfg.Convert.ChunkInlines,
			r.cfg.Convert.ChunkCrosslines,
			r.cfg.Convert.ChunkDepth,
		},
		Compression: r.cfg.Convert.Compression,
	}

	var dest string
	retryCfg := retry.DefaultConfig()
	retryCfg.Logger = logger.Log
	retryCfg.RetryableErrors = []error{errTransient}
	err = retry.Do(ctx, retryCfg, func() error {
		var cerr error
		dest, cerr = volume.Convert(ctx, reader, idx, opts)
		if cerr != nil && !isRetryable(cerr) {
			return cerr
		}
		if cerr != nil {
			return fmt.Errorf("%w: %w", errTransient, cerr)
		}
		return nil
	})
	if err != nil {
		return "", nil, err
	}

	geom := &catalog.Cube{
		Inlines:    idx.InlineCount,
		Crosslines: idx.CrosslineCount,
		Samples:    idx.NumSamples,
		DeadCells:  idx.DeadCount(),
	}
	return dest, geom, nil
}

var errTransient = errors.New("transient conversion failure")

// isRetryable: only plain IO failures are worth a second attempt. Schema
// mismatches, bad trace lengths and invalid extents are deterministic.
func isRetryable(err error) bool {
	var mh *segy.MalformedHeaderError
	var tl *segy.InconsistentTraceLengthError
	var ie *grid.InvalidExtentError
	if errors.As(err, &mh) || errors.As(err, &tl) || errors.As(err, &ie) {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	return true
}

func lengthPolicy(s string) (segy.LengthPolicy, error) {
	switch segy.LengthPolicy(s) {
	case segy.PolicyPad, segy.PolicyTruncate, segy.PolicyReject:
		return segy.LengthPolicy(s), nil
	default:
		return "", fmt.Errorf("unknown trace length policy %q (want pad, truncate or reject)", s)
	}
}

func (r *Runner) emit(run *catalog.Run, ev Event) {
	r.mu.Lock()
	ev.Done, ev.Total = r.done, run.Total
	r.mu.Unlock()
	r.notify(ev)
}

func (r *Runner) finish(run *catalog.Run, ev Event, ok bool) {
	r.mu.Lock()
	r.done++
	if ok {
		r.succeeded++
	} else {
		r.failed++
	}
	ev.Done, ev.Total = r.done, run.Total
	r.mu.Unlock()
	r.notify(ev)
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
