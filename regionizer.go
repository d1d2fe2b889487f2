// Copyright (c) 2026 Andrey Kriulin
// Licensed under the MIT License.
// See the LICENSE file in the project root for full license text.

package s2regionizer

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/2dChan/s2regionizer/internal/logging"
	"github.com/2dChan/s2regionizer/internal/observability"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

// Options configures a Regionizer.
type Options struct {
	Eps         float64
	Concurrency int
	Logger      *slog.Logger
	Registerer  prometheus.Registerer
	Tracer      trace.TracerProvider
	CellBuilder CellBuilder
}

// Option sets a field of Options.
type Option func(*Options) error

// WithEps sets the numerical tolerance of the default cell builder.
func WithEps(eps float64) Option {
	return func(o *Options) error {
		if eps <= 0 {
			return fmt.Errorf("s2regionizer: eps must be positive, got %v", eps)
		}
		o.Eps = eps
		return nil
	}
}

// WithConcurrency bounds the number of cells processed at once.
func WithConcurrency(n int) Option {
	return func(o *Options) error {
		if n < 1 {
			return fmt.Errorf("s2regionizer: concurrency must be at least 1, got %d", n)
		}
		o.Concurrency = n
		return nil
	}
}

// WithLogger sets the logger. Stage timings are logged at debug level and
// failures at warn.
func WithLogger(l *slog.Logger) Option {
	return func(o *Options) error {
		o.Logger = l
		return nil
	}
}

// WithRegisterer registers the regionizer metrics with reg.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(o *Options) error {
		if reg == nil {
			return fmt.Errorf("s2regionizer: nil registerer")
		}
		o.Registerer = reg
		return nil
	}
}

// WithTracerProvider sets the provider of stage spans. By default the global
// provider is used.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(o *Options) error {
		o.Tracer = tp
		return nil
	}
}

// WithCellBuilder replaces the Voronoi cell computation.
func WithCellBuilder(b CellBuilder) Option {
	return func(o *Options) error {
		if b == nil {
			return fmt.Errorf("s2regionizer: nil cell builder")
		}
		o.CellBuilder = b
		return nil
	}
}

// Regionizer computes Thiessen regions. It holds no per-call state and is
// safe for concurrent use.
type Regionizer struct {
	concurrency int
	builder     CellBuilder
	log         logging.Logger
	metrics     *observability.Collector
	tracer      trace.Tracer
}

// New returns a Regionizer configured by setters.
func New(setters ...Option) (*Regionizer, error) {
	opts := Options{
		Concurrency: runtime.GOMAXPROCS(0),
	}
	for _, set := range setters {
		if err := set(&opts); err != nil {
			return nil, err
		}
	}

	r := &Regionizer{
		concurrency: opts.Concurrency,
		builder:     opts.CellBuilder,
		log:         logging.FromSlog(opts.Logger),
		tracer:      observability.Tracer(opts.Tracer),
	}
	if r.builder == nil {
		r.builder = DiagramBuilder{Eps: opts.Eps}
	}
	if opts.Registerer != nil {
		c, err := observability.NewCollector(opts.Registerer)
		if err != nil {
			return nil, err
		}
		r.metrics = c
	}
	return r, nil
}

// Regionize returns one region per seed, in input order. Long cell edges are
// split so that no chord exceeds maxChordMeters. A nil mask keeps the whole
// sphere.
//
// Cells are refined, assembled and clipped on up to the configured number of
// goroutines. When ctx is done no further cells are scheduled and ctx.Err() is
// returned. Any failure discards the whole result.
func (r *Regionizer) Regionize(ctx context.Context, seeds []SeedInput, maxChordMeters float64, mask *Mask) (regions []Region, err error) {
	ctx, log := logging.WithRunLogger(ctx, r.log)
	defer func() {
		if err != nil {
			r.fail(ctx, log, err)
		}
	}()

	prepared, cells, err := r.build(ctx, log, seeds, maxChordMeters)
	if err != nil {
		return nil, err
	}

	refined, err := runStage(ctx, r, log, observability.StageRefine, len(cells), func(i int) (RefinedCell, error) {
		return RefineCell(cells[i], maxChordMeters)
	})
	if err != nil {
		return nil, err
	}

	regions, err = r.assemble(ctx, log, refined, prepared)
	if err != nil {
		return nil, err
	}

	if mask != nil {
		regions, err = runStage(ctx, r, log, observability.StageClip, len(regions), func(i int) (Region, error) {
			return mask.Clip(regions[i])
		})
		if err != nil {
			return nil, err
		}
	}

	r.metrics.AddRegions(len(regions))
	log.Info(ctx, "regionize done", logging.Int("regions", len(regions)))
	return regions, nil
}

// Regions returns an iterator over the regions of seeds in input order. The
// diagram is built once when iteration starts; each region is refined,
// assembled and clipped only when requested, so peak memory stays bounded by
// the diagram. The first error ends the sequence.
//
// The sequence is single-use: ranging over it again yields only
// ErrSequenceConsumed. Once a cell needs its edges subdivided to contain its
// seed, the following cells are subdivided as finely, but regions already
// yielded are not revisited.
func (r *Regionizer) Regions(ctx context.Context, seeds []SeedInput, maxChordMeters float64, mask *Mask) iter.Seq2[Region, error] {
	var used atomic.Bool
	return func(yield func(Region, error) bool) {
		if used.Swap(true) {
			yield(Region{}, ErrSequenceConsumed)
			return
		}
		ctx, log := logging.WithRunLogger(ctx, r.log)
		fail := func(err error) {
			r.fail(ctx, log, err)
			yield(Region{}, err)
		}

		prepared, cells, err := r.build(ctx, log, seeds, maxChordMeters)
		if err != nil {
			fail(err)
			return
		}

		var (
			spent [3]time.Duration
			level int
		)
		defer func() {
			r.metrics.ObserveStage(observability.StageRefine, spent[0])
			r.metrics.ObserveStage(observability.StageAssemble, spent[1])
			r.metrics.ObserveStage(observability.StageClip, spent[2])
		}()
		for i := range cells {
			if err := ctx.Err(); err != nil {
				fail(err)
				return
			}

			start := time.Now()
			rc, err := RefineCell(cells[i], maxChordMeters)
			spent[0] += time.Since(start)
			if err != nil {
				fail(err)
				return
			}

			start = time.Now()
			var reg Region
			for ; level < len(planarTolerances); level++ {
				reg, err = assembleCell(rc, prepared[i], planarTolerances[level])
				if !errors.Is(err, errSeedOutside) || level == len(planarTolerances)-1 {
					break
				}
				log.Debug(ctx, "subdividing cell edges",
					logging.String("seed", rc.SeedID),
					logging.Float64("tolerance", planarTolerances[level+1]),
				)
			}
			spent[1] += time.Since(start)
			if err != nil {
				fail(err)
				return
			}

			if mask != nil {
				start = time.Now()
				reg, err = mask.Clip(reg)
				spent[2] += time.Since(start)
				if err != nil {
					fail(err)
					return
				}
			}

			r.metrics.AddRegions(1)
			if !yield(reg, nil) {
				return
			}
		}
	}
}

// build runs the batched stages: seed validation and the Voronoi diagram.
func (r *Regionizer) build(ctx context.Context, log logging.Logger, seeds []SeedInput, maxChordMeters float64) ([]Seed, []VoronoiCell, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}
	r.metrics.SetSeeds(len(seeds))

	var prepared []Seed
	err := r.stage(ctx, log, observability.StagePrepare, len(seeds), func(context.Context) error {
		if err := validateChord(maxChordMeters); err != nil {
			return err
		}
		var err error
		prepared, err = PrepareSeeds(seeds)
		return err
	})
	if err != nil {
		return nil, nil, err
	}

	var cells []VoronoiCell
	err = r.stage(ctx, log, observability.StageCells, len(prepared), func(context.Context) error {
		var err error
		cells, err = BuildCells(prepared, r.builder)
		return err
	})
	if err != nil {
		return nil, nil, err
	}
	return prepared, cells, nil
}

// assemble converts every refined cell into a region. If any seed falls
// outside its polygons, all cells are assembled again with finer edges so
// that neighboring regions keep sharing their boundaries.
func (r *Regionizer) assemble(ctx context.Context, log logging.Logger, refined []RefinedCell, prepared []Seed) ([]Region, error) {
	var regions []Region
	err := r.stage(ctx, log, observability.StageAssemble, len(refined), func(ctx context.Context) error {
		for k, tol := range planarTolerances {
			var err error
			regions, err = parallel(ctx, r.concurrency, len(refined), func(i int) (Region, error) {
				return assembleCell(refined[i], prepared[i], tol)
			})
			if !errors.Is(err, errSeedOutside) || k == len(planarTolerances)-1 {
				return err
			}
			log.Debug(ctx, "subdividing cell edges",
				logging.Float64("tolerance", planarTolerances[k+1]),
				logging.Err(err),
			)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return regions, nil
}

// stage runs fn inside a span and records its duration.
func (r *Regionizer) stage(ctx context.Context, log logging.Logger, name string, n int, fn func(context.Context) error) error {
	ctx, span := observability.StartStage(ctx, r.tracer, name, attribute.Int("items", n))
	start := time.Now()
	err := fn(ctx)
	took := time.Since(start)
	observability.EndStage(span, err)

	r.metrics.ObserveStage(name, took)
	log.Debug(ctx, "stage done",
		logging.String("stage", name),
		logging.Int("items", n),
		logging.Duration("took", took),
	)
	return err
}

// runStage applies fn to every index in [0, n) inside the named stage.
func runStage[T any](ctx context.Context, r *Regionizer, log logging.Logger, name string, n int, fn func(i int) (T, error)) ([]T, error) {
	var out []T
	err := r.stage(ctx, log, name, n, func(ctx context.Context) error {
		var err error
		out, err = parallel(ctx, r.concurrency, n, fn)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// parallel applies fn to every index in [0, n) on at most limit goroutines
// and collects the results in order.
func parallel[T any](ctx context.Context, limit, n int, fn func(i int) (T, error)) ([]T, error) {
	out := make([]T, n)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for i := range n {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			v, err := fn(i)
			if err != nil {
				return err
			}
			out[i] = v
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *Regionizer) fail(ctx context.Context, log logging.Logger, err error) {
	kind := errorKind(err)
	r.metrics.RecordError(kind)
	log.Warn(ctx, "regionize failed", logging.String("kind", kind), logging.Err(err))
}
