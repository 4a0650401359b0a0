package tdk

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// DefaultCleanupTimeout bounds the cleanup of a run's artifacts when the
// Runner doesn't set one.
const DefaultCleanupTimeout = 30 * time.Second

// Pipeline is a linear chain of stages. The first stage receives the run's
// Params; each later stage receives the previous stage's output.
type Pipeline struct {
	Name string
	// Required keys are checked before any stage runs.
	Required []string
	Stages   []Stage
	// Cleanup releases every artifact produced during a run. Nil means
	// RemoveLocal.
	Cleanup CleanupFunc
}

// Runner executes pipelines. The zero value is usable: it logs nothing,
// records no stats, and caches nothing.
type Runner struct {
	Log   Logger
	Stats Statter
	Cache CacheStore
	Now   func() time.Time
	// Timeout bounds each attempt of a step which doesn't set its own.
	// Zero means no bound.
	Timeout        time.Duration
	CleanupTimeout time.Duration
}

type runContext struct {
	runID   string
	log     Logger
	stats   Statter
	cache   CacheStore
	now     func() time.Time
	timeout time.Duration
}

type runIDKey struct{}

// RunID returns the id of the run ctx belongs to, or "".
func RunID(ctx context.Context) string {
	id, _ := ctx.Value(runIDKey{}).(string)
	return id
}

func (r *Runner) newRunContext(name string) *runContext {
	rc := &runContext{
		runID:   uuid.New().String(),
		log:     r.Log,
		stats:   r.Stats,
		cache:   r.Cache,
		now:     r.Now,
		timeout: r.Timeout,
	}
	if rc.log == nil {
		rc.log = NopLogger{}
	}
	rc.log = prefixLogger{prefix: name + "[" + rc.runID[:8] + "] ", log: rc.log}
	if rc.stats == nil {
		rc.stats = NopStatter{}
	}
	if rc.now == nil {
		rc.now = time.Now
	}
	return rc
}

// Run validates params against p.Required and runs each stage in order,
// stopping at the first failure. Whatever the outcome, every artifact
// produced during the run is passed to p.Cleanup before Run returns, even if
// ctx has been canceled. Cleanup failures are logged as warnings and never
// change the result.
func (r *Runner) Run(ctx context.Context, p *Pipeline, params Params) (out interface{}, err error) {
	rc := r.newRunContext(p.Name)
	if err := params.Require(p.Required...); err != nil {
		rc.log.Printf("invalid parameters: %v", err)
		return nil, err
	}

	tr := &tracker{}
	ctx = context.WithValue(ctx, trackerKey{}, tr)
	ctx = context.WithValue(ctx, runIDKey{}, rc.runID)
	defer r.cleanup(ctx, p, tr, rc)

	start := rc.now()
	rc.log.Printf("starting run of %d stage(s)", len(p.Stages))
	var cur interface{} = params
	for i, st := range p.Stages {
		if err := ctx.Err(); err != nil {
			return nil, errors.Wrapf(err, "before stage %d (%s)", i, st.StageName())
		}
		stageStart := rc.now()
		rc.log.Debugf("stage %d (%s %s) starting", i, st.StageKind(), st.StageName())
		next, err := st.exec(ctx, rc, cur)
		rc.stats.Timing("stage.duration", rc.now().Sub(stageStart), 1, "step:"+st.StageName())
		if err != nil {
			rc.stats.Count("stage.failed", 1, 1, "step:"+st.StageName())
			rc.log.Printf("stage %d (%s) failed: %v", i, st.StageName(), err)
			return nil, err
		}
		tr.add(artifactsOf(next)...)
		cur = next
	}
	rc.stats.Timing("run.duration", rc.now().Sub(start), 1, "pipeline:"+p.Name)
	rc.log.Printf("run finished in %v", rc.now().Sub(start))
	return cur, nil
}

func (r *Runner) cleanup(ctx context.Context, p *Pipeline, tr *tracker, rc *runContext) {
	handles := tr.drain()
	if len(handles) == 0 {
		return
	}
	fn := p.Cleanup
	if fn == nil {
		fn = RemoveLocal
	}
	timeout := r.CleanupTimeout
	if timeout <= 0 {
		timeout = DefaultCleanupTimeout
	}
	cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
	defer cancel()
	for _, h := range handles {
		if err := fn(cctx, h); err != nil {
			rc.stats.Count("cleanup.warning", 1, 1)
			rc.log.Printf("warning: %v", err)
			continue
		}
		rc.log.Debugf("removed %s", h)
	}
}
