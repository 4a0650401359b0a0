package tdk

import (
	"context"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/pkg/errors"
)

// StepKind classifies a step, which determines how its final failure is
// reported.
type StepKind int

const (
	OtherStep StepKind = iota
	FetchStep
	TransformStep
	LoadStep
)

func (k StepKind) String() string {
	switch k {
	case FetchStep:
		return "fetch"
	case TransformStep:
		return "transform"
	case LoadStep:
		return "load"
	}
	return "step"
}

// DefaultFetchAttempts is the number of attempts made by fetch steps unless
// configured otherwise.
const DefaultFetchAttempts = 3

// Stage is the untyped form of a Step which a Pipeline sequences.
type Stage interface {
	StageName() string
	StageKind() StepKind
	exec(ctx context.Context, rc *runContext, in interface{}) (interface{}, error)
}

// Step is a named unit of work converting an I into an O.
type Step[I, O any] struct {
	Name string
	Kind StepKind
	Run  func(ctx context.Context, in I) (O, error)

	// MaxAttempts bounds the number of times Run is called. Values below 1
	// mean a single attempt.
	MaxAttempts int
	// RetryDelay is the pause between attempts. With Backoff it is the
	// initial pause, doubled on each retry.
	RetryDelay time.Duration
	Backoff    bool
	// Timeout bounds each attempt. Zero means the runner's default.
	Timeout time.Duration

	// Destination names the target of a load step in errors.
	Destination string

	Cache *CachePolicy[I, O]
}

// CachePolicy lets a runner skip a step whose output for an equivalent input
// is already stored and unexpired.
type CachePolicy[I, O any] struct {
	// Key returns the canonical identity of an input. Inputs with equal keys
	// must produce equal outputs.
	Key        func(in I) (string, error)
	Expiration time.Duration
	Codec      Codec[O]
}

// NewStep returns a Step of the given kind. Fetch steps default to
// DefaultFetchAttempts attempts, every other kind to one.
func NewStep[I, O any](name string, kind StepKind, run func(ctx context.Context, in I) (O, error)) *Step[I, O] {
	s := &Step[I, O]{
		Name:        name,
		Kind:        kind,
		Run:         run,
		MaxAttempts: 1,
	}
	if kind == FetchStep {
		s.MaxAttempts = DefaultFetchAttempts
	}
	return s
}

// WithRetries sets the attempt limit and delay between attempts.
func (s *Step[I, O]) WithRetries(attempts int, delay time.Duration) *Step[I, O] {
	s.MaxAttempts = attempts
	s.RetryDelay = delay
	return s
}

// WithTimeout sets the per-attempt timeout.
func (s *Step[I, O]) WithTimeout(d time.Duration) *Step[I, O] {
	s.Timeout = d
	return s
}

// WithCache sets the cache policy.
func (s *Step[I, O]) WithCache(key func(I) (string, error), expiration time.Duration, codec Codec[O]) *Step[I, O] {
	s.Cache = &CachePolicy[I, O]{Key: key, Expiration: expiration, Codec: codec}
	return s
}

// StageName implements Stage.
func (s *Step[I, O]) StageName() string { return s.Name }

// StageKind implements Stage.
func (s *Step[I, O]) StageKind() StepKind { return s.Kind }

func (s *Step[I, O]) exec(ctx context.Context, rc *runContext, in interface{}) (interface{}, error) {
	var typed I
	if in != nil {
		var ok bool
		typed, ok = in.(I)
		if !ok {
			return nil, errors.Errorf("step %s: expected input of type %T, got %T", s.Name, typed, in)
		}
	}

	var key string
	if s.Cache != nil && rc.cache != nil {
		k, err := s.Cache.Key(typed)
		if err != nil {
			rc.log.Printf("step %s: computing cache key: %v", s.Name, err)
		} else {
			key = CacheKey(s.Name, k)
			if out, hit := s.lookup(rc, key); hit {
				rc.log.Printf("step %s: using cached result", s.Name)
				rc.stats.Count("cache.hit", 1, 1, "step:"+s.Name)
				return out, nil
			}
			rc.stats.Count("cache.miss", 1, 1, "step:"+s.Name)
		}
	}

	out, attempts, err := s.attempt(ctx, rc, typed)
	if err != nil {
		return nil, s.classify(err, attempts)
	}
	if key != "" {
		s.store(rc, key, out)
	}
	return out, nil
}

func (s *Step[I, O]) lookup(rc *runContext, key string) (out O, hit bool) {
	b, expires, ok, err := rc.cache.Get(key)
	if err != nil {
		rc.log.Printf("step %s: reading cache: %v", s.Name, err)
		return out, false
	}
	if !ok || !rc.now().Before(expires) {
		return out, false
	}
	out, err = s.Cache.Codec.Decode(b)
	if err != nil {
		rc.log.Printf("step %s: decoding cached result: %v", s.Name, err)
		return out, false
	}
	return out, true
}

func (s *Step[I, O]) store(rc *runContext, key string, out O) {
	b, err := s.Cache.Codec.Encode(out)
	if err != nil {
		rc.log.Printf("step %s: encoding result for cache: %v", s.Name, err)
		return
	}
	if err := rc.cache.Put(key, b, rc.now().Add(s.Cache.Expiration)); err != nil {
		rc.log.Printf("step %s: writing cache: %v", s.Name, err)
	}
}

func (s *Step[I, O]) attempt(ctx context.Context, rc *runContext, in I) (out O, attempts int, err error) {
	maxAttempts := s.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	timeout := s.Timeout
	if timeout == 0 {
		timeout = rc.timeout
	}
	delayType := retry.FixedDelay
	if s.Backoff {
		delayType = retry.BackOffDelay
	}

	err = retry.Do(
		func() error {
			attempts++
			rc.stats.Count("step.attempt", 1, 1, "step:"+s.Name)
			actx, cancel := ctx, context.CancelFunc(func() {})
			if timeout > 0 {
				actx, cancel = context.WithTimeout(ctx, timeout)
			}
			defer cancel()
			o, err := s.Run(actx, in)
			if err != nil {
				if ctx.Err() == nil && actx.Err() == context.DeadlineExceeded {
					return &TimeoutError{Op: "step " + s.Name, Timeout: timeout}
				}
				return err
			}
			out = o
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(uint(maxAttempts)),
		retry.Delay(s.RetryDelay),
		retry.DelayType(delayType),
		retry.LastErrorOnly(true),
		retry.RetryIf(func(err error) bool { return !IsPermanent(err) }),
		retry.OnRetry(func(n uint, err error) {
			rc.log.Printf("step %s: attempt %d/%d failed: %v", s.Name, n+1, maxAttempts, err)
		}),
	)
	return out, attempts, err
}

// classify wraps the final error of a step in the error type for its kind,
// unless it already carries one.
func (s *Step[I, O]) classify(err error, attempts int) error {
	var (
		ce *ConfigurationError
		fe *FetchError
		te *TransformError
		le *LoadError
	)
	switch {
	case errors.As(err, &ce), errors.As(err, &fe), errors.As(err, &le):
		return errors.Wrapf(err, "step %s", s.Name)
	case errors.As(err, &te):
		if te.Step == "" {
			te.Step = s.Name
		}
		return err
	}
	switch s.Kind {
	case FetchStep:
		return &FetchError{Step: s.Name, Attempts: attempts, Err: err}
	case TransformStep:
		return &TransformError{Step: s.Name, Err: err}
	case LoadStep:
		return &LoadError{Step: s.Name, Destination: s.Destination, Attempts: attempts, Err: err}
	}
	return errors.Wrapf(err, "step %s", s.Name)
}
