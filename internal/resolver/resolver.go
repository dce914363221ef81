// Package resolver sequences the resolution pipeline for one query:
// bearing, candidate lookup, matching, occlusion, ranking and the heuristic
// fallback. A Resolver is safe for concurrent use; each query owns its
// pipeline state.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/spotterhq/spotter/internal/bearing"
	"github.com/spotterhq/spotter/internal/config"
	"github.com/spotterhq/spotter/internal/geo"
	"github.com/spotterhq/spotter/internal/logging"
	"github.com/spotterhq/spotter/internal/match"
	"github.com/spotterhq/spotter/internal/occlusion"
	"github.com/spotterhq/spotter/internal/storage"
	"github.com/spotterhq/spotter/pkg/core"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Query is one resolution request. Tap is required in interactive mode and
// ignored in automatic mode. An empty Mode means automatic for aircraft and
// interactive otherwise.
type Query struct {
	ID       string               `json:"id,omitempty"`
	Mode     core.Mode            `json:"mode,omitempty"`
	Category core.Category        `json:"category"`
	Metadata core.CaptureMetadata `json:"metadata"`
	Tap      *core.TapPoint       `json:"tap,omitempty"`
}

// Observer receives every completed result. Failed and cancelled queries are
// not published.
type Observer interface {
	Observe(ctx context.Context, r core.ResolutionResult)
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithLogger sets the logger. Defaults to slog.Default.
func WithLogger(l *slog.Logger) Option {
	return func(r *Resolver) { r.log = l }
}

// WithObservers adds result observers.
func WithObservers(obs ...Observer) Option {
	return func(r *Resolver) {
		for _, o := range obs {
			if o != nil {
				r.observers = append(r.observers, o)
			}
		}
	}
}

// WithMeter overrides the global OTel meter.
func WithMeter(m metric.Meter) Option {
	return func(r *Resolver) { r.meter = m }
}

// WithClock sets the time source for CompletedAt and durations.
func WithClock(now func() time.Time) Option {
	return func(r *Resolver) { r.now = now }
}

// Resolver runs queries against one candidate source. Its configuration is
// read-only after New.
type Resolver struct {
	cfg       config.EngineConfig
	source    storage.Source
	log       *slog.Logger
	observers []Observer
	meter     metric.Meter
	metrics   *metrics
	now       func() time.Time
}

// New creates a Resolver.
func New(cfg config.EngineConfig, source storage.Source, opts ...Option) (*Resolver, error) {
	if source == nil {
		return nil, errors.New("resolver: nil candidate source")
	}
	r := &Resolver{
		cfg:    cfg,
		source: source,
		log:    slog.Default(),
		meter:  meter(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}

	m, err := newMetrics(r.meter)
	if err != nil {
		return nil, err
	}
	r.metrics = m
	return r, nil
}

// run is the pipeline state of one query.
type run struct {
	q      Query
	window match.Window
	ray    core.BearingRay
	// estimate is the heuristic distance for the query's tap, or the image
	// center in automatic mode.
	estimate float64
	states   []core.State
}

// enter appends s to the trace. Nothing follows a terminal state.
func (p *run) enter(s core.State) {
	if n := len(p.states); n > 0 && p.states[n-1].Terminal() {
		return
	}
	p.states = append(p.states, s)
}

// Resolve runs the pipeline to completion. It fails only on invalid input,
// wrapping core.ErrInvalidInput, or when ctx ends, returning ctx.Err(). On
// failure the result carries the query identity and the state trace only.
// An unavailable or slow candidate source degrades to the heuristic path.
func (r *Resolver) Resolve(ctx context.Context, q Query) (core.ResolutionResult, error) {
	start := r.now()
	ctx, q.ID = logging.EnsureQueryID(ctx, q.ID)
	if q.Mode == "" {
		q.Mode = core.ModeInteractive
		if q.Category.IsAircraft() {
			q.Mode = core.ModeAutomatic
		}
	}

	p := &run{q: q, states: []core.State{core.StateIdle}}

	res, err := r.resolve(ctx, p)
	if err != nil {
		p.enter(core.StateFailed)
		outcome := "invalid"
		if ctx.Err() != nil {
			outcome = "cancelled"
			r.log.DebugContext(ctx, "Resolution cancelled", "error", err)
		} else {
			r.log.WarnContext(ctx, "Resolution failed", "error", err)
		}
		r.record(ctx, start, outcome, q)
		return core.ResolutionResult{
			QueryID:  q.ID,
			Mode:     q.Mode,
			Category: q.Category,
			States:   p.states,
		}, err
	}

	r.record(ctx, start, string(res.Method), q)
	r.log.InfoContext(ctx, "Resolution completed",
		"mode", res.Mode,
		"category", res.Category,
		"bearing", res.Bearing,
		"method", res.Method,
		"candidates", len(res.Candidates),
		"occluded", len(res.Occluded),
		"confidence", res.Confidence,
		"degraded", res.Degraded,
		"duration", r.now().Sub(start),
	)
	for _, o := range r.observers {
		o.Observe(ctx, res)
	}
	return res, nil
}

func (r *Resolver) resolve(ctx context.Context, p *run) (core.ResolutionResult, error) {
	if err := r.computeBearing(p); err != nil {
		return core.ResolutionResult{}, err
	}
	p.enter(core.StateBearingComputed)
	if err := ctx.Err(); err != nil {
		return core.ResolutionResult{}, err
	}

	objs, degraded, err := r.fetch(ctx, p)
	if err != nil {
		return core.ResolutionResult{}, err
	}
	matched := match.Match(p.ray, objs)
	p.enter(core.StateCandidatesQueried)

	visible := matched
	var occluded []core.IdentificationCandidate
	if !p.q.Category.IsAircraft() {
		filtered := occlusion.Filter(matched, occlusion.BinWidthFor(p.window.Tolerance))
		visible, occluded = occlusion.Partition(filtered)
		p.enter(core.StateOcclusionFiltered)
	}
	if err := ctx.Err(); err != nil {
		return core.ResolutionResult{}, err
	}

	ranked := r.cfg.Weights.Rank(p.ray, visible)
	if len(occluded) > 0 {
		occluded = r.cfg.Weights.Rank(p.ray, occluded)
	}
	p.enter(core.StateRanked)

	res := core.ResolutionResult{
		QueryID:    p.q.ID,
		Mode:       p.q.Mode,
		Category:   p.q.Category,
		Bearing:    p.ray.Bearing,
		Candidates: ranked,
		Occluded:   occluded,
		Degraded:   degraded,
	}

	if p.q.Mode == core.ModeAutomatic && len(ranked) > 0 {
		if top := ranked[0]; top.BearingDelta <= r.cfg.AircraftAcceptance {
			res.Candidates = ranked[:1]
			res.Selected = &res.Candidates[0]
		} else {
			res.Candidates = nil
			res.NoConfidentMatch = true
		}
	}

	if len(res.Candidates) > 0 {
		res.Method = core.MethodMatchedDatabase
		res.Confidence = res.Candidates[0].Confidence
	} else {
		target := geo.Destination(p.ray.Origin, p.ray.Bearing, p.estimate)
		res.Method = core.MethodHeuristicProjection
		res.EstimatedTarget = &target
		res.EstimatedDistance = p.estimate
		res.Confidence = r.cfg.HeuristicConfidence
	}

	p.enter(core.StateCompleted)
	res.States = p.states
	res.CompletedAt = r.now()
	return res, nil
}

// computeBearing validates the query and builds its search ray.
func (r *Resolver) computeBearing(p *run) error {
	q := p.q
	if q.Mode != core.ModeInteractive && q.Mode != core.ModeAutomatic {
		return fmt.Errorf("%w: unknown mode %q", core.ErrInvalidInput, q.Mode)
	}
	if _, err := core.ParseCategory(string(q.Category)); err != nil {
		return err
	}
	win, err := r.cfg.Windows.For(q.Category)
	if err != nil {
		return fmt.Errorf("%w: %v", core.ErrInvalidInput, err)
	}
	md := q.Metadata
	if err := md.Validate(r.cfg.MinZoom, r.cfg.MaxZoom); err != nil {
		return err
	}

	tap := md.Image.Center()
	var b float64
	switch q.Mode {
	case core.ModeInteractive:
		if q.Tap == nil {
			return fmt.Errorf("%w: interactive query without tap point", core.ErrInvalidInput)
		}
		if !q.Tap.Within(md.Image) {
			return fmt.Errorf("%w: tap (%v,%v) outside %vx%v image",
				core.ErrInvalidInput, q.Tap.X, q.Tap.Y, md.Image.Width, md.Image.Height)
		}
		tap = *q.Tap
		b = bearing.Project(tap, md.Image, md.Heading, md.EffectiveFieldOfView())
	case core.ModeAutomatic:
		b = bearing.Center(md.Heading)
	}

	p.window = win
	p.estimate = r.cfg.Estimator.Estimate(tap, md.Image, md.ZoomFactor, md.Altitude)
	p.ray = win.Ray(md.Observer, b)
	if q.Mode == core.ModeInteractive {
		p.ray.ExpectedDistance = p.estimate
	}
	return nil
}

type fetchReply struct {
	objs []core.CandidateObject
	err  error
}

// fetch asks the source for candidates under the category timeout. Source
// errors and timeouts yield an empty set with degraded set; only the end of
// the caller's ctx is returned as an error.
func (r *Resolver) fetch(ctx context.Context, p *run) ([]core.CandidateObject, bool, error) {
	fctx, cancel := ctx, context.CancelFunc(func() {})
	if d := r.cfg.Timeout(p.q.Category); d > 0 {
		fctx, cancel = context.WithTimeout(ctx, d)
	}
	defer cancel()

	// Buffered so the fetch goroutine can always deliver and exit, even
	// after this query has given up on it.
	replies := make(chan fetchReply, 1)
	go func() {
		objs, err := r.source.FetchCandidates(fctx, p.q.Category, p.ray.Origin, p.ray.MaxRadius)
		replies <- fetchReply{objs: objs, err: err}
	}()

	var reason error
	select {
	case rep := <-replies:
		if rep.err == nil {
			return rep.objs, false, nil
		}
		reason = rep.err
	case <-fctx.Done():
		reason = fctx.Err()
	}

	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	r.metrics.sourceFailures.Add(ctx, 1, metric.WithAttributes(
		attribute.String("category", string(p.q.Category)),
	))
	r.log.WarnContext(ctx, "Candidate source unavailable, using heuristic",
		"category", p.q.Category, "error", reason)
	return nil, true, nil
}

func (r *Resolver) record(ctx context.Context, start time.Time, outcome string, q Query) {
	attrs := metric.WithAttributes(
		attribute.String("category", string(q.Category)),
		attribute.String("mode", string(q.Mode)),
		attribute.String("outcome", outcome),
	)
	// ctx may already be done; metrics still count the query.
	ctx = context.WithoutCancel(ctx)
	r.metrics.queries.Add(ctx, 1, attrs)
	r.metrics.duration.Record(ctx, float64(r.now().Sub(start))/float64(time.Millisecond), attrs)
}
