// Package driver feeds frame samples from a Source into a governor, either
// against a simulated clock or in real time.
package driver

import (
	"context"
	"io"
	"sync"
	"time"

	"codeberg.org/mutker/qualityctl/internal/errors"
	"codeberg.org/mutker/qualityctl/internal/governor"
	"codeberg.org/mutker/qualityctl/internal/logger"
	"codeberg.org/mutker/qualityctl/internal/metrics"
)

// cancelCheckEvery is how many replayed frames pass between context checks.
const cancelCheckEvery = 256

// Driver owns the frame loop around one governor.
type Driver struct {
	gov       *governor.Governor
	collector metrics.Collector
	log       logger.Logger
	pace      bool
}

type Option func(*Driver)

// WithCollector records a snapshot after every sample.
func WithCollector(c metrics.Collector) Option {
	return func(d *Driver) {
		d.collector = c
	}
}

func WithLogger(l logger.Logger) Option {
	return func(d *Driver) {
		d.log = l
	}
}

// WithPacing makes Run wait each frame's duration before reading the next
// one. Sources that block on input, like stdin, need no pacing.
func WithPacing(pace bool) Option {
	return func(d *Driver) {
		d.pace = pace
	}
}

func New(g *governor.Governor, opts ...Option) *Driver {
	d := &Driver{gov: g, log: logger.Nop()}
	for _, opt := range opts {
		opt(d)
	}
	if d.collector == nil {
		d.collector, _ = metrics.NewService(metrics.DefaultConfig(), d.log)
	}
	return d
}

// Summary describes a finished replay or run.
type Summary struct {
	Frames      int
	Start       time.Time
	Elapsed     time.Duration
	StartTier   string
	EndTier     string
	Changes     []governor.TierChange
	ThermalHits int
	Stats       governor.Stats
}

// Replay feeds every frame of src, advancing clk by each frame's duration
// after the frame is sampled. The governor must have been built with clk.
func (d *Driver) Replay(ctx context.Context, clk *governor.ManualClock, src Source) (Summary, error) {
	errFactory := errors.New()

	rec := d.record()
	defer d.gov.Unsubscribe(rec.id)

	start := clk.Now()
	frames := 0
	for {
		if frames%cancelCheckEvery == 0 {
			if err := ctx.Err(); err != nil {
				return d.finish(rec, frames, start, clk.Now().Sub(start)), errFactory.Wrap(ErrCancelled, err)
			}
		}

		f, err := src.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return d.finish(rec, frames, start, clk.Now().Sub(start)), err
		}

		d.sample(ctx, f, clk.Now())
		frames++
		clk.Advance(f.Duration)
	}

	sum := d.finish(rec, frames, start, clk.Now().Sub(start))
	d.log.Debug().
		Int("frames", sum.Frames).
		Dur("elapsed", sum.Elapsed).
		Int("changes", len(sum.Changes)).
		Msg("Replay finished")

	return sum, nil
}

// Run feeds frames in real time until src is exhausted or ctx is done. The
// governor should use the system clock.
func (d *Driver) Run(ctx context.Context, src Source) (Summary, error) {
	rec := d.record()
	defer d.gov.Unsubscribe(rec.id)

	type result struct {
		f   Frame
		err error
	}

	// Reads may block indefinitely, so they happen off the main loop.
	frames := make(chan result)
	go func() {
		defer close(frames)
		for {
			f, err := src.Next()
			select {
			case frames <- result{f, err}:
			case <-ctx.Done():
				return
			}
			if err != nil {
				return
			}
		}
	}()

	start := time.Now()
	n := 0
	for {
		select {
		case <-ctx.Done():
			return d.finish(rec, n, start, time.Since(start)), nil
		case r, ok := <-frames:
			if !ok || r.err == io.EOF {
				return d.finish(rec, n, start, time.Since(start)), nil
			}
			if r.err != nil {
				return d.finish(rec, n, start, time.Since(start)), r.err
			}

			d.sample(ctx, r.f, time.Now())
			n++

			if d.pace && !sleep(ctx, r.f.Duration) {
				return d.finish(rec, n, start, time.Since(start)), nil
			}
		}
	}
}

func (d *Driver) sample(ctx context.Context, f Frame, at time.Time) {
	d.gov.Sample(f.FPS)

	if err := d.collector.RecordSnapshot(ctx, metrics.SnapshotFromStats(d.gov.Stats(), at)); err != nil {
		d.log.Debug().Err(err).Msg("Failed to record snapshot")
	}
}

func (d *Driver) finish(rec *recorder, frames int, start time.Time, elapsed time.Duration) Summary {
	rec.mu.Lock()
	defer rec.mu.Unlock()

	changes := make([]governor.TierChange, len(rec.changes))
	copy(changes, rec.changes)

	return Summary{
		Frames:      frames,
		Start:       start,
		Elapsed:     elapsed,
		StartTier:   rec.startTier,
		EndTier:     d.gov.CurrentTier().Name,
		Changes:     changes,
		ThermalHits: rec.thermal,
		Stats:       d.gov.Stats(),
	}
}

// recorder collects notifications for a Summary. Config reloads can move
// the ladder from another goroutine, hence the lock.
type recorder struct {
	mu        sync.Mutex
	id        governor.SubscriptionID
	startTier string
	changes   []governor.TierChange
	thermal   int
}

func (d *Driver) record() *recorder {
	rec := &recorder{startTier: d.gov.CurrentTier().Name}
	rec.id = d.gov.Subscribe(governor.ObserverFuncs{
		OnTierChanged: func(c governor.TierChange) {
			rec.mu.Lock()
			rec.changes = append(rec.changes, c)
			rec.mu.Unlock()
		},
		OnThermalThrottled: func(governor.ThermalEvent) {
			rec.mu.Lock()
			rec.thermal++
			rec.mu.Unlock()
		},
	})
	return rec
}

func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}

	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
