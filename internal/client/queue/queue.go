// Package queue is the durable local log of captured scans awaiting
// submission.
//
// The whole pending list lives under one integrity-store key and is owned by
// a single goroutine. Every operation is a message to that goroutine, so
// read-modify-write cycles never interleave: an Append issued while a drain
// is in flight is applied before or after the drain's Acknowledge, never in
// the middle of it.
package queue

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/dmitrijs2005/kappi/internal/client/models"
	"github.com/dmitrijs2005/kappi/internal/clock"
	"github.com/dmitrijs2005/kappi/internal/common"
	"github.com/dmitrijs2005/kappi/internal/logging"
	"github.com/oklog/ulid/v2"
)

// PendingKey is the store key holding the pending list.
const PendingKey = "pending-records"

// ErrClosed is returned by operations on a closed Queue.
var ErrClosed = errors.New("queue closed")

// Store is the persistence the queue needs. *integrity.Store satisfies it.
type Store interface {
	Put(ctx context.Context, key string, value any) error
	Get(ctx context.Context, key string, dst any) (bool, error)
}

type op func(pending []models.CapturedRecord) []models.CapturedRecord

type Queue struct {
	store   Store
	clock   clock.Clock
	logger  logging.Logger
	entropy io.Reader
	// appends counts successful Appends.
	appends atomic.Uint64

	ops       chan op
	quit      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

// Open loads the persisted list and starts the owning goroutine. A missing
// or tampered list opens as empty.
func Open(ctx context.Context, store Store, clk clock.Clock, logger logging.Logger) (*Queue, error) {
	var pending []models.CapturedRecord
	if _, err := store.Get(ctx, PendingKey, &pending); err != nil {
		return nil, fmt.Errorf("load pending records: %w", err)
	}

	q := &Queue{
		store:   store,
		clock:   clk,
		logger:  logger.With("component", "queue"),
		entropy: ulid.Monotonic(rand.Reader, 0),
		ops:     make(chan op),
		quit:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	go q.loop(pending)

	return q, nil
}

// Close stops the owning goroutine. Operations already accepted finish
// first. Close is idempotent.
func (q *Queue) Close() {
	q.closeOnce.Do(func() { close(q.quit) })
	<-q.done
}

func (q *Queue) loop(pending []models.CapturedRecord) {
	defer close(q.done)
	for {
		select {
		case fn := <-q.ops:
			pending = fn(pending)
		case <-q.quit:
			return
		}
	}
}

// do hands fn to the owning goroutine and waits for it to run. Once fn has
// been accepted it runs to completion even if ctx is cancelled.
func (q *Queue) do(ctx context.Context, fn op) error {
	finished := make(chan struct{})
	wrapped := func(p []models.CapturedRecord) []models.CapturedRecord {
		defer close(finished)
		return fn(p)
	}

	select {
	case q.ops <- wrapped:
	case <-q.quit:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
	<-finished
	return nil
}

func (q *Queue) persist(ctx context.Context, next []models.CapturedRecord) error {
	if err := q.store.Put(ctx, PendingKey, next); err != nil {
		return fmt.Errorf("persist pending records: %w", err)
	}
	return nil
}

// Append assigns an id and creation time to d and durably adds it to the
// end of the list. If the write fails the list is left as it was.
func (q *Queue) Append(ctx context.Context, d models.RecordDraft) (models.CapturedRecord, error) {
	var (
		rec models.CapturedRecord
		err error
	)
	if e := q.do(ctx, func(pending []models.CapturedRecord) []models.CapturedRecord {
		now := q.clock.Now()
		rec = models.CapturedRecord{
			ID:              ulid.MustNew(ulid.Timestamp(now), q.entropy).String(),
			Payload:         d.Payload,
			ImageRef:        d.ImageRef,
			Coordinates:     d.Coordinates,
			Address:         d.Address,
			CreatedAtMillis: now.UnixMilli(),
		}

		next := append(slices.Clone(pending), rec)
		if err = q.persist(ctx, next); err != nil {
			return pending
		}
		q.appends.Add(1)
		q.logger.Debug(ctx, "record appended", "id", rec.ID, "pending", len(next))
		return next
	}); e != nil {
		return models.CapturedRecord{}, e
	}
	if err != nil {
		return models.CapturedRecord{}, err
	}
	return rec, nil
}

// Generation increases with every successful Append. A ListPending issued
// after reading Generation sees every record appended up to that value.
func (q *Queue) Generation() uint64 {
	return q.appends.Load()
}

// ListPending returns the queued records in stored order. Soft-deleted ones
// are included only when includeDeleted is set.
func (q *Queue) ListPending(ctx context.Context, includeDeleted bool) ([]models.CapturedRecord, error) {
	var out []models.CapturedRecord
	err := q.do(ctx, func(pending []models.CapturedRecord) []models.CapturedRecord {
		out = make([]models.CapturedRecord, 0, len(pending))
		for _, r := range pending {
			if r.Deleted && !includeDeleted {
				continue
			}
			out = append(out, r)
		}
		return pending
	})
	return out, err
}

// SoftDelete flags the record with id as deleted. The record stays in the
// list; deleting an already deleted record is a no-op.
func (q *Queue) SoftDelete(ctx context.Context, id string) error {
	var err error
	if e := q.do(ctx, func(pending []models.CapturedRecord) []models.CapturedRecord {
		i := slices.IndexFunc(pending, func(r models.CapturedRecord) bool { return r.ID == id })
		if i < 0 {
			err = fmt.Errorf("%w: %s", common.ErrRecordNotFound, id)
			return pending
		}
		if pending[i].Deleted {
			return pending
		}

		next := slices.Clone(pending)
		next[i].Deleted = true
		if err = q.persist(ctx, next); err != nil {
			return pending
		}
		return next
	}); e != nil {
		return e
	}
	return err
}

// Acknowledge removes the records with the given ids from the current list
// in a single write and reports how many were removed. Records appended
// after the caller took its snapshot are kept.
func (q *Queue) Acknowledge(ctx context.Context, ids []string) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	acked := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		acked[id] = struct{}{}
	}

	var (
		removed int
		err     error
	)
	if e := q.do(ctx, func(pending []models.CapturedRecord) []models.CapturedRecord {
		next := make([]models.CapturedRecord, 0, len(pending))
		for _, r := range pending {
			if _, ok := acked[r.ID]; ok {
				continue
			}
			next = append(next, r)
		}
		if len(next) == len(pending) {
			return pending
		}

		if err = q.persist(ctx, next); err != nil {
			return pending
		}
		removed = len(pending) - len(next)
		return next
	}); e != nil {
		return 0, e
	}
	return removed, err
}
