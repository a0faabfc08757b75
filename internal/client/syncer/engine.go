// Package syncer drains the local record queue against the remote service.
//
// A drain pass takes a snapshot of the pending, non-deleted records, submits
// each one exactly once in stored order, and then removes every acknowledged
// record from the queue in a single write. A failure on one record never
// stops the others; it simply stays queued for the next pass. If the process
// dies before that final write the queue still holds every record, so a
// record can reach the remote service twice but is never lost.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/dmitrijs2005/kappi/internal/client/client"
	"github.com/dmitrijs2005/kappi/internal/client/metrics"
	"github.com/dmitrijs2005/kappi/internal/client/models"
	"github.com/dmitrijs2005/kappi/internal/clock"
	"github.com/dmitrijs2005/kappi/internal/common"
	"github.com/dmitrijs2005/kappi/internal/logging"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"
)

// Queue is the part of queue.Queue the engine uses.
type Queue interface {
	ListPending(ctx context.Context, includeDeleted bool) ([]models.CapturedRecord, error)
	Acknowledge(ctx context.Context, ids []string) (int, error)
	Generation() uint64
}

// Submitter sends one scan to the remote service.
type Submitter interface {
	SubmitScan(ctx context.Context, scan models.Scan) (models.Scan, error)
}

// Failure is one record that stayed queued.
type Failure struct {
	RecordID string
	Err      error
}

// Report summarizes a drain pass.
type Report struct {
	// Skipped is set when there was no usable credential; nothing was tried.
	Skipped   bool
	Attempted int
	Submitted int
	Failures  []Failure
	// Remaining is the number of non-deleted records still queued.
	Remaining int
}

type Engine struct {
	queue   Queue
	remote  Submitter
	tokens  client.TokenSource
	clock   clock.Clock
	logger  logging.Logger
	limiter *rate.Limiter
	metrics *metrics.Sync
	group   singleflight.Group
}

type Option func(*Engine)

// WithRateLimit paces submissions to perSecond. Zero or less means no limit.
func WithRateLimit(perSecond float64) Option {
	return func(e *Engine) {
		if perSecond > 0 {
			e.limiter = rate.NewLimiter(rate.Limit(perSecond), 1)
		}
	}
}

func WithMetrics(m *metrics.Sync) Option {
	return func(e *Engine) { e.metrics = m }
}

func New(q Queue, remote Submitter, tokens client.TokenSource, clk clock.Clock, logger logging.Logger, opts ...Option) *Engine {
	e := &Engine{
		queue:  q,
		remote: remote,
		tokens: tokens,
		clock:  clk,
		logger: logger.With("component", "sync"),
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

type pass struct {
	report Report
	// seen is the queue generation the pass snapshot covers.
	seen uint64
}

// Drain runs one pass. Concurrent callers share the pass already in flight.
// A caller that joined after the pass took its snapshot, and whose records
// the snapshot therefore missed, waits for one more pass. Once started a
// pass runs to completion; cancelling ctx only stops waiting for it.
func (e *Engine) Drain(ctx context.Context) (Report, error) {
	want := e.queue.Generation()
	for {
		ch := e.group.DoChan("drain", func() (any, error) {
			rep, seen, err := e.drain(context.WithoutCancel(ctx))
			return pass{report: rep, seen: seen}, err
		})

		select {
		case res := <-ch:
			p := res.Val.(pass)
			if res.Err != nil || p.seen >= want {
				return p.report, res.Err
			}
		case <-ctx.Done():
			return Report{}, ctx.Err()
		}
	}
}

// drain performs one pass and returns the queue generation its snapshot
// covers. A skipped pass covers everything.
func (e *Engine) drain(ctx context.Context) (Report, uint64, error) {
	start := e.clock.Now()

	if _, err := e.tokens.Token(ctx); err != nil {
		if errors.Is(err, common.ErrNotAuthenticated) || errors.Is(err, common.ErrCredentialExpired) {
			e.logger.Debug(ctx, "drain skipped", "reason", err)
			e.metrics.ObserveSkipped()
			return Report{Skipped: true}, math.MaxUint64, nil
		}
		return Report{}, 0, fmt.Errorf("drain: %w", err)
	}

	seen := e.queue.Generation()
	pending, err := e.queue.ListPending(ctx, false)
	if err != nil {
		return Report{}, 0, fmt.Errorf("drain: %w", err)
	}

	rep := Report{Attempted: len(pending)}
	acked := make([]string, 0, len(pending))
	for _, r := range pending {
		if e.limiter != nil {
			if err := e.limiter.Wait(ctx); err != nil {
				rep.Failures = append(rep.Failures, Failure{RecordID: r.ID, Err: err})
				continue
			}
		}

		if _, err := e.remote.SubmitScan(ctx, models.ScanFromRecord(r)); err != nil {
			e.logger.Warn(ctx, "submit failed, record stays queued", "id", r.ID, "error", err)
			rep.Failures = append(rep.Failures, Failure{RecordID: r.ID, Err: err})
			continue
		}
		acked = append(acked, r.ID)
	}

	if _, err := e.queue.Acknowledge(ctx, acked); err != nil {
		rep.Remaining = len(pending)
		return rep, seen, fmt.Errorf("drain: %w", err)
	}
	rep.Submitted = len(acked)

	left, err := e.queue.ListPending(ctx, false)
	if err != nil {
		return rep, seen, fmt.Errorf("drain: %w", err)
	}
	rep.Remaining = len(left)

	took := e.clock.Now().Sub(start)
	e.metrics.ObserveDrain(rep.Submitted, len(rep.Failures), rep.Remaining, took)
	e.logger.Info(ctx, "drain finished",
		"attempted", rep.Attempted, "submitted", rep.Submitted,
		"failed", len(rep.Failures), "remaining", rep.Remaining)

	return rep, seen, nil
}

// Run drains every interval until ctx is done. Failures are logged and
// retried on the next tick.
func (e *Engine) Run(ctx context.Context, interval time.Duration) {
	ticker := e.clock.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := e.Drain(ctx); err != nil && ctx.Err() == nil {
				e.logger.Error(ctx, "background drain failed", "error", err)
			}
		}
	}
}
