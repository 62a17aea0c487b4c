// Package capture sequences the per-source capture steps into one run:
// create the owning capture row, execute every adapter in order under
// fault isolation, persist the collected assets, verify, and apply
// retention. The run lowers the daemon's scheduling priority for its
// duration and yields between steps so a host UI stays responsive.
package capture

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/worksnap/backend/internal/adapters"
	"github.com/worksnap/backend/internal/logging"
	"github.com/worksnap/backend/internal/osproc"
	"github.com/worksnap/backend/internal/shared/id"
	"github.com/worksnap/backend/internal/shared/types"
	"github.com/worksnap/backend/internal/store"
	"go.uber.org/zap"
)

// lowPriority is the nice value applied while a capture run is executing.
const lowPriority = 10

// ErrCaptureInFlight is returned when a run is requested for a session that
// already has one executing.
var ErrCaptureInFlight = errors.New("capture already in flight for session")

// Options configures one capture run.
type Options struct {
	Name       string
	UserID     string
	SessionID  string
	Context    string
	OnProgress types.ProgressFunc
}

// Orchestrator owns the ordered adapter list and runs captures against the
// store. Safe for concurrent use; overlapping runs for the same session are
// rejected by the in-flight guard.
type Orchestrator struct {
	store          store.Repository
	adapters       []adapters.Adapter
	proc           osproc.Manager
	retentionLimit int
	log            *logging.Logger

	mu       sync.Mutex
	inflight map[string]struct{}
}

// New creates an orchestrator. The adapter slice fixes step order for every
// run: editor, terminal, browser, notes in the standard wiring.
func New(repo store.Repository, steps []adapters.Adapter, proc osproc.Manager, retentionLimit int, log *logging.Logger) *Orchestrator {
	return &Orchestrator{
		store:          repo,
		adapters:       steps,
		proc:           proc,
		retentionLimit: retentionLimit,
		log:            log,
		inflight:       make(map[string]struct{}),
	}
}

// Run executes one capture. The capture row is created first and is the
// only fatal persistence point: no assets can exist without an owning
// capture. Step failures and individual asset-insert failures are logged
// and absorbed. The returned capture exists even when zero assets were
// collected.
func (o *Orchestrator) Run(ctx context.Context, opts Options) (*types.Capture, error) {
	if err := o.acquire(opts.SessionID); err != nil {
		// Overlap is an ignorable condition, not a failure of the run.
		return nil, types.SoftError(err)
	}
	defer o.release(opts.SessionID)

	restore := o.lowerPriority()
	defer restore()

	capture, err := o.createCapture(ctx, opts)
	if err != nil {
		o.log.Error("capture row creation failed, aborting run",
			zap.String("session_id", opts.SessionID),
			zap.String("user_id", opts.UserID),
			zap.String("kind", string(types.KindFatal)),
			zap.Error(err))
		return nil, types.FatalError(fmt.Errorf("create capture row: %w", err))
	}

	records := o.runSteps(ctx, capture.ID, opts.OnProgress)
	saved := o.persistAssets(ctx, capture.ID, records)
	o.verify(ctx, capture.ID, saved)

	if opts.UserID != "" {
		o.applyRetention(ctx, opts.UserID)
	}

	o.log.Info("capture run complete",
		zap.String("capture_id", capture.ID),
		zap.Int("assets", saved))
	return capture, nil
}

func (o *Orchestrator) createCapture(ctx context.Context, opts Options) (*types.Capture, error) {
	now := time.Now().UTC()
	name := opts.Name
	if name == "" {
		name = "Capture " + now.Format("2006-01-02 15:04")
	}

	capture := &types.Capture{
		ID:        id.NewCapture(),
		Name:      name,
		Context:   opts.Context,
		CreatedAt: now,
	}
	if opts.SessionID != "" {
		capture.SessionID = &opts.SessionID
	}
	if opts.UserID != "" {
		capture.UserID = &opts.UserID
	}

	if err := o.store.CreateCapture(ctx, capture); err != nil {
		return nil, err
	}
	return capture, nil
}

// runSteps executes every adapter in order, emitting a starting and a
// completed progress event per step and yielding between steps.
func (o *Orchestrator) runSteps(ctx context.Context, captureID string, progress types.ProgressFunc) []types.AssetRecord {
	total := len(o.adapters)
	var collected []types.AssetRecord

	for i, step := range o.adapters {
		emit(progress, types.ProgressEvent{
			Step:        step.Name(),
			TotalSteps:  total,
			CurrentStep: i + 1,
			Status:      types.StatusStarting,
		})

		records := o.runStep(ctx, step, captureID)
		collected = append(collected, records...)

		emit(progress, types.ProgressEvent{
			Step:        step.Name(),
			TotalSteps:  total,
			CurrentStep: i + 1,
			Status:      types.StatusCompleted,
			AssetsCount: len(records),
		})

		yield(ctx)
	}
	return collected
}

// runStep isolates one adapter: an error or panic contributes zero assets
// and never aborts the run.
func (o *Orchestrator) runStep(ctx context.Context, step adapters.Adapter, captureID string) (records []types.AssetRecord) {
	defer func() {
		if r := recover(); r != nil {
			o.log.Error("capture step panicked",
				zap.String("step", step.Name()),
				zap.Any("panic", r))
			records = nil
		}
	}()

	records, err := step.Collect(ctx, captureID)
	if err != nil {
		o.log.Warn("capture step failed",
			zap.String("step", step.Name()),
			zap.String("kind", string(types.KindStep)),
			zap.Error(err))
		return nil
	}
	return records
}

// persistAssets inserts each asset independently; a single failure is
// logged and skipped, never fatal to the batch.
func (o *Orchestrator) persistAssets(ctx context.Context, captureID string, records []types.AssetRecord) int {
	saved := 0
	now := time.Now().UTC()
	for _, record := range records {
		asset := &types.Asset{
			ID:        id.NewAsset(),
			CaptureID: captureID,
			Type:      record.Type,
			Title:     record.Title,
			Content:   record.Content,
			Metadata:  record.Metadata,
			CreatedAt: now,
		}
		if record.Path != "" {
			path := record.Path
			asset.Path = &path
		}

		if err := o.store.InsertAsset(ctx, asset); err != nil {
			o.log.Error("asset insert failed",
				zap.String("capture_id", captureID),
				zap.String("type", string(record.Type)),
				zap.String("title", record.Title),
				zap.String("kind", string(types.KindPersistence)),
				zap.Error(err))
			continue
		}
		saved++
	}
	return saved
}

// verify flushes the store and re-reads the asset count, logging loudly on
// mismatch. Detects silent persistence failures without aborting the run.
func (o *Orchestrator) verify(ctx context.Context, captureID string, expected int) {
	if err := o.store.Flush(ctx); err != nil {
		o.log.Error("durability flush failed", zap.Error(err))
	}

	count, err := o.store.CountAssets(ctx, captureID)
	if err != nil {
		o.log.Error("asset count verification failed",
			zap.String("capture_id", captureID),
			zap.Error(err))
		return
	}
	if count != expected {
		o.log.Error("asset count mismatch after persistence",
			zap.String("capture_id", captureID),
			zap.Int("expected", expected),
			zap.Int("found", count))
	}
}

// applyRetention deletes the oldest non-archived captures beyond the
// configured limit. Archived captures are never touched.
func (o *Orchestrator) applyRetention(ctx context.Context, userID string) {
	if o.retentionLimit <= 0 {
		return
	}

	active, err := o.store.ActiveCapturesByUser(ctx, userID)
	if err != nil {
		o.log.Warn("retention scan failed", zap.String("user_id", userID), zap.Error(err))
		return
	}
	excess := len(active) - o.retentionLimit
	for i := 0; i < excess; i++ {
		if err := o.store.DeleteCapture(ctx, active[i].ID); err != nil {
			o.log.Warn("retention delete failed",
				zap.String("capture_id", active[i].ID),
				zap.Error(err))
		}
	}
}

// lowerPriority drops the daemon's scheduling priority for the duration of
// the run. Best-effort: unsupported platforms keep their priority. The
// returned restore function runs on every exit path.
func (o *Orchestrator) lowerPriority() func() {
	previous, err := o.proc.Priority()
	if err != nil {
		o.log.Debug("priority inspection unavailable", zap.Error(err))
		return func() {}
	}
	if err := o.proc.SetPriority(lowPriority); err != nil {
		o.log.Debug("priority throttle unavailable", zap.Error(err))
		return func() {}
	}
	return func() {
		if err := o.proc.SetPriority(previous); err != nil {
			o.log.Warn("priority restore failed", zap.Error(err))
		}
	}
}

func (o *Orchestrator) acquire(sessionID string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if _, busy := o.inflight[sessionID]; busy {
		return ErrCaptureInFlight
	}
	o.inflight[sessionID] = struct{}{}
	return nil
}

func (o *Orchestrator) release(sessionID string) {
	o.mu.Lock()
	delete(o.inflight, sessionID)
	o.mu.Unlock()
}

func emit(progress types.ProgressFunc, event types.ProgressEvent) {
	if progress != nil {
		progress(event)
	}
}

// yield hands the scheduler a chance to run other work between steps.
func yield(ctx context.Context) {
	select {
	case <-ctx.Done():
	default:
		runtime.Gosched()
	}
}
