// Package engine decides whether a connection attempt belongs to a premium
// account and should be denied by a cracked-only proxy.
//
// Resolution order per attempt: global switch, status cache, identity
// heuristic (post-auth only), authority lookup. A definite authority answer
// is authoritative; the heuristic is the fallback when the authority is
// disabled or indeterminate; with neither the attempt fails open.
package engine

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"

	"premiumblocker/internal/platform/config"
	"premiumblocker/internal/premium/authority"
	"premiumblocker/internal/premium/cache"
	"premiumblocker/internal/premium/metrics"
	"premiumblocker/internal/premium/offline"
)

// Policy is the slice of configuration the engine reads.
type Policy struct {
	Enabled          bool
	KickMessage      string
	APIEnabled       bool
	HeuristicEnabled bool
	// Coalesce shares one lookup between concurrent attempts for a name.
	Coalesce bool
	// CacheFailOpen caches the not-premium verdict of a fail-open
	// resolution so repeats within the TTL skip the authority.
	CacheFailOpen bool
}

// PolicyFromConfig extracts the engine policy.
func PolicyFromConfig(cfg config.Config) Policy {
	return Policy{
		Enabled:          cfg.Enabled,
		KickMessage:      cfg.KickMessage,
		APIEnabled:       cfg.MojangAPI.Enabled,
		HeuristicEnabled: cfg.Heuristic.Enabled,
		Coalesce:         cfg.Coalesce,
		CacheFailOpen:    cfg.CacheFailOpen,
	}
}

// Engine is safe for concurrent use; the cache is its only shared state.
type Engine struct {
	policy    Policy
	cache     cache.Store
	authority Authority
	lookups   singleflight.Group
	logger    *slog.Logger
	metrics   *metrics.Metrics
	now       func() time.Time
}

type Option func(*Engine)

func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) {
		e.metrics = m
	}
}

func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// New builds an engine. authority may be nil only when the policy disables
// the API.
func New(store cache.Store, auth Authority, policy Policy, opts ...Option) (*Engine, error) {
	if store == nil {
		return nil, errors.New("status cache is required")
	}
	if policy.APIEnabled && auth == nil {
		return nil, errors.New("authority is required when the API is enabled")
	}
	e := &Engine{
		policy:    policy,
		cache:     store,
		authority: auth,
		logger:    slog.New(slog.DiscardHandler),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// ResolveAsync resolves on a new goroutine so the caller's event loop never
// waits on the authority.
func (e *Engine) ResolveAsync(ctx context.Context, attempt ConnectionAttempt) <-chan Verdict {
	out := make(chan Verdict, 1)
	go func() {
		out <- e.Resolve(ctx, attempt)
	}()
	return out
}

// Resolve decides one attempt. It suspends only while waiting for the
// authority, bounded by the lookup timeout or ctx, whichever ends first. If
// ctx ends first the lookup keeps running and still caches its answer, and
// the fail-open verdict is not cached so it cannot overwrite that answer.
func (e *Engine) Resolve(ctx context.Context, attempt ConnectionAttempt) Verdict {
	e.logger.DebugContext(ctx, "connection attempt",
		"username", attempt.Username,
		"remote_address", attempt.RemoteAddress,
		"stage", attempt.Stage,
	)

	if !e.policy.Enabled {
		return e.finish(ctx, attempt, Outcome{Source: SourceDisabled})
	}

	key := cache.Key(attempt.Username)
	if premium, ok := e.cached(ctx, key); ok {
		return e.finish(ctx, attempt, Outcome{Premium: premium, Source: SourceCache})
	}

	heuristic, hasHeuristic := e.heuristic(ctx, attempt)

	abandoned := false
	if e.policy.APIEnabled {
		select {
		case res := <-e.verify(ctx, key, attempt.Username):
			if res.Definite() {
				if hasHeuristic && heuristic != res.Premium() {
					e.logger.InfoContext(ctx, "identity heuristic disagrees with authority, using authority",
						"username", attempt.Username,
						"heuristic_premium", heuristic,
						"authority_premium", res.Premium(),
					)
				}
				return e.finish(ctx, attempt, Outcome{Premium: res.Premium(), Source: SourceAPI})
			}
		case <-ctx.Done():
			abandoned = true
			e.logger.WarnContext(ctx, "stopped waiting for authority lookup",
				"username", attempt.Username,
				"error", ctx.Err(),
			)
		}
	}

	if hasHeuristic {
		e.store(ctx, key, heuristic)
		return e.finish(ctx, attempt, Outcome{Premium: heuristic, Source: SourceHeuristic})
	}
	if e.policy.CacheFailOpen && !abandoned {
		e.store(ctx, key, false)
	}
	return e.finish(ctx, attempt, Outcome{Source: SourceFailOpen})
}

func (e *Engine) cached(ctx context.Context, key string) (bool, bool) {
	entry, ok, err := e.cache.Get(ctx, key)
	switch {
	case err != nil:
		e.metrics.IncrementCacheLookup("error")
		e.logger.WarnContext(ctx, "status cache read failed, treating as miss", "key", key, "error", err)
		return false, false
	case !ok:
		e.metrics.IncrementCacheLookup("miss")
		return false, false
	default:
		e.metrics.IncrementCacheLookup("hit")
		return entry.Verdict, true
	}
}

func (e *Engine) store(ctx context.Context, key string, premium bool) {
	if err := e.cache.Put(ctx, key, premium, e.now()); err != nil {
		e.logger.WarnContext(ctx, "status cache write failed", "key", key, "error", err)
	}
}

// heuristic compares the assigned identifier with the offline identity. It
// is only available post-auth.
func (e *Engine) heuristic(ctx context.Context, attempt ConnectionAttempt) (bool, bool) {
	if !e.policy.HeuristicEnabled || attempt.AssignedID == nil {
		return false, false
	}
	matches := offline.IsOffline(attempt.Username, *attempt.AssignedID)
	e.logger.DebugContext(ctx, "identity heuristic",
		"username", attempt.Username,
		"assigned_uuid", attempt.AssignedID.String(),
		"offline_uuid", offline.UUID(attempt.Username).String(),
		"uuid_matches_offline", matches,
	)
	return !matches, true
}

// verify runs the lookup detached from ctx and caches definite answers
// before delivering them, so abandoned lookups still populate the cache.
func (e *Engine) verify(ctx context.Context, key, username string) <-chan authority.Result {
	detached := context.WithoutCancel(ctx)
	lookup := func() authority.Result {
		res := <-e.authority.Start(detached, username)
		if res.Definite() {
			e.store(detached, key, res.Premium())
		}
		return res
	}

	out := make(chan authority.Result, 1)
	if !e.policy.Coalesce {
		go func() {
			out <- lookup()
		}()
		return out
	}

	shared := e.lookups.DoChan(key, func() (any, error) {
		return lookup(), nil
	})
	go func() {
		r := <-shared
		out <- r.Val.(authority.Result)
	}()
	return out
}

func (e *Engine) finish(ctx context.Context, attempt ConnectionAttempt, outcome Outcome) Verdict {
	v := Verdict{Action: ActionAllow, Outcome: outcome}
	if outcome.Premium {
		v.Action = ActionDeny
		v.Message = e.policy.KickMessage
	}
	e.metrics.IncrementResolution(string(v.Action), string(outcome.Source))
	e.logger.DebugContext(ctx, "connection resolved",
		"username", attempt.Username,
		"stage", attempt.Stage,
		"premium", outcome.Premium,
		"source", outcome.Source,
		"action", v.Action,
	)
	return v
}
