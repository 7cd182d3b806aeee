package engine

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/roach88/pitwall/internal/ir"
	"github.com/roach88/pitwall/internal/querysql"
	"github.com/roach88/pitwall/internal/store"
)

// DefaultSkew widens every change window backwards to tolerate clock skew
// between the source and the warehouse and commit-order races at the
// window edge. Re-extracted unchanged records are no-ops.
const DefaultSkew = 5 * time.Minute

// Engine is the generic incremental load engine. One Engine loads any
// entity described by an ir.Entity; there is no per-entity code.
//
// The engine holds no locks. Each Load is one transaction on the store,
// which serializes writers. Single-flight per process across processes is
// opt-in through WithLease.
type Engine struct {
	store    *store.Store
	compiler *querysql.SQLCompiler
	clock    Clock
	runIDs   RunIDGenerator
	logger   *slog.Logger
	skew     time.Duration

	leaseTTL    time.Duration // 0 disables the lease
	leaseHolder string

	retries    int
	retryDelay time.Duration
}

// EngineOption allows configuration of engine parameters.
type EngineOption func(*Engine)

// WithSkew sets the change-window skew. Default: 5 minutes (DefaultSkew).
func WithSkew(d time.Duration) EngineOption {
	return func(e *Engine) {
		e.skew = d
	}
}

// WithClock sets the wall clock. Default: SystemClock.
func WithClock(c Clock) EngineOption {
	return func(e *Engine) {
		e.clock = c
	}
}

// WithLogger sets the structured logger. Default: slog.Default().
func WithLogger(l *slog.Logger) EngineOption {
	return func(e *Engine) {
		e.logger = l
	}
}

// WithRunIDs sets the run id generator. Default: UUIDv7Generator.
func WithRunIDs(g RunIDGenerator) EngineOption {
	return func(e *Engine) {
		e.runIDs = g
	}
}

// WithLease makes every Load claim the process lease for ttl first. A
// load whose lease is held elsewhere fails with LEASE_HELD and touches
// nothing.
func WithLease(ttl time.Duration) EngineOption {
	return func(e *Engine) {
		e.leaseTTL = ttl
	}
}

// WithLeaseHolder sets the holder id recorded on leases. Default: a UUIDv7.
func WithLeaseHolder(holder string) EngineOption {
	return func(e *Engine) {
		e.leaseHolder = holder
	}
}

// WithRetry makes LoadAll retry an entity whose load failed with a
// transient storage error up to retries more times, waiting delay between
// attempts. Integrity violations are never retried.
func WithRetry(retries int, delay time.Duration) EngineOption {
	return func(e *Engine) {
		e.retries = retries
		e.retryDelay = delay
	}
}

// New creates an Engine over s.
//
// Source tables are read from the attached "src" schema when the store was
// opened WithSource, and from the warehouse database itself otherwise.
func New(s *store.Store, opts ...EngineOption) *Engine {
	sourceSchema := ""
	if s.HasSource() {
		sourceSchema = store.SourceSchema
	}

	e := &Engine{
		store:    s,
		compiler: querysql.NewSQLCompiler(sourceSchema),
		clock:    SystemClock{},
		runIDs:   UUIDv7Generator{},
		logger:   slog.Default(),
		skew:     DefaultSkew,
	}

	for _, opt := range opts {
		opt(e)
	}

	if e.leaseHolder == "" {
		e.leaseHolder = UUIDv7Generator{}.Generate()
	}
	if e.logger == nil {
		e.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	return e
}

// Result is the outcome of one successful entity load.
type Result struct {
	Entity      string    `json:"entity"`
	RunID       string    `json:"run_id"`
	Inserted    int64     `json:"inserted"`
	Updated     int64     `json:"updated"`
	Unchanged   int64     `json:"unchanged"`
	Candidates  int       `json:"candidates"`
	WindowStart time.Time `json:"window_start"`
	RunStart    time.Time `json:"run_start"`
}

// Load runs one incremental load of ent.
//
// Everything happens in one transaction: watermark read, extraction of
// records modified after watermark-skew, the integrity guard, the merge,
// the run log entry and the watermark advance to the run start. Any error
// rolls all of it back, so a failed or killed run leaves the target, the
// run log and the watermark exactly as they were.
func (e *Engine) Load(ctx context.Context, ent *ir.Entity) (Result, error) {
	runStart := e.clock.Now().UTC()
	res := Result{
		Entity:   ent.Name,
		RunID:    e.runIDs.Generate(),
		RunStart: runStart,
	}
	log := e.logger.With("entity", ent.Name, "run_id", res.RunID)

	if e.leaseTTL > 0 {
		ok, err := e.store.AcquireLease(ctx, ent.Name, e.leaseHolder, runStart, e.leaseTTL)
		if err != nil {
			return Result{}, classify(ent.Name, err)
		}
		if !ok {
			log.Warn("lease held, skipping")
			return Result{}, NewLeaseHeldError(ent.Name)
		}
		defer func() {
			if err := e.store.ReleaseLease(context.WithoutCancel(ctx), ent.Name, e.leaseHolder); err != nil {
				log.Error("release lease failed", "error", err)
			}
		}()
	}

	err := e.store.Tx(ctx, func(tx *store.Tx) error {
		watermark, err := tx.GetWatermark(ctx, ent.Name)
		if err != nil {
			return err
		}
		res.WindowStart = watermark.Add(-e.skew)

		if err := e.checkParents(ctx, tx, ent); err != nil {
			return err
		}
		if err := tx.EnsureTarget(ctx, ent); err != nil {
			return err
		}

		cands, err := extract(ctx, tx, e.compiler, ent, res.WindowStart)
		if err != nil {
			return err
		}
		res.Candidates = len(cands)

		keys := make([][]ir.Value, len(cands))
		for i, c := range cands {
			keys[i] = c.KeyValues(ent)
		}
		existing, err := tx.LookupTargets(ctx, e.compiler, ent, keys)
		if err != nil {
			return err
		}

		if err := CheckIntegrity(ent, cands, existing); err != nil {
			return err
		}

		plan := PlanMerge(ent, cands, existing)
		if err := applyMerge(ctx, tx, ent, plan, ir.FormatTime(runStart)); err != nil {
			return err
		}
		res.Inserted, res.Updated, res.Unchanged = plan.Inserted, plan.Updated, plan.Unchanged

		if _, err := tx.LogRun(ctx, res.RunID, ent.Name, plan.Inserted, plan.Updated, runStart); err != nil {
			return err
		}
		return tx.SetWatermark(ctx, ent.Name, runStart)
	})
	if err != nil {
		err = classify(ent.Name, err)
		log.Error("load failed", "code", CodeOf(err), "error", err)
		return Result{}, err
	}

	log.Info("entity loaded",
		"inserted", res.Inserted,
		"updated", res.Updated,
		"candidates", res.Candidates,
		"window_start", ir.FormatTime(res.WindowStart),
		"watermark", ir.FormatTime(runStart),
	)
	return res, nil
}

// checkParents fails the load when a parent target table does not exist.
// An inner join against a missing table cannot express "no parent yet",
// and advancing the watermark past the records would lose them.
func (e *Engine) checkParents(ctx context.Context, tx *store.Tx, ent *ir.Entity) error {
	for _, p := range ent.Parents {
		if p.Target == "" {
			return fmt.Errorf("parent %s of %s has no target; link the catalog first", p.Entity, ent.Name)
		}
		ok, err := tx.TableExists(ctx, p.Target)
		if err != nil {
			return err
		}
		if !ok {
			return NewParentNotLoadedError(ent.Name, p.Entity, p.Target)
		}
	}
	return nil
}
