package services

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/dmitrijs2005/kappi/internal/client/models"
	"github.com/dmitrijs2005/kappi/internal/client/queue"
	"github.com/dmitrijs2005/kappi/internal/client/syncer"
	"github.com/dmitrijs2005/kappi/internal/clock"
	"github.com/dmitrijs2005/kappi/internal/common"
	"github.com/dmitrijs2005/kappi/internal/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingDrainer struct {
	calls atomic.Int32
	err   error
}

func (d *countingDrainer) Drain(context.Context) (syncer.Report, error) {
	d.calls.Add(1)
	return syncer.Report{}, d.err
}

type staticHistory []models.Scan

func (h staticHistory) ListScans(context.Context) ([]models.Scan, error) { return h, nil }

func newScanService(t *testing.T, d Drainer, c Classifier) (*ScanService, *queue.Queue) {
	t.Helper()
	store, _ := newIntegrityStore(t)
	q, err := queue.Open(context.Background(), store, clock.Fake(epoch), logging.Nop())
	require.NoError(t, err)
	t.Cleanup(q.Close)
	return NewScanService(q, d, staticHistory{{ID: "s1", Disease: models.LeafRustDisease}}, c, logging.Nop()), q
}

func TestCapture_NormalizesAndTriggersDrain(t *testing.T) {
	ctx := context.Background()
	d := &countingDrainer{err: errors.New("offline")}
	s, q := newScanService(t, d, nil)

	coords := &models.Coordinates{Latitude: 14.1, Longitude: 121.2}
	rec, err := s.Capture(ctx, "img-1.jpg", models.ClassificationResult{
		Disease: "CLR_stage2", Confidence: 87.6, Severity: "HIGH", Stage: "progressive",
	}, coords, nil)
	require.NoError(t, err)
	s.Wait()

	assert.Equal(t, models.ClassificationResult{
		Disease: models.LeafRustDisease, Confidence: 88, Severity: models.SeverityHigh, Stage: models.StageProgressive,
	}, rec.Payload)
	assert.Equal(t, "img-1.jpg", rec.ImageRef)
	assert.Equal(t, coords, rec.Coordinates)
	assert.Equal(t, int32(1), d.calls.Load())

	pending, err := q.ListPending(ctx, false)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, rec.ID, pending[0].ID)
}

func TestScan_UsesClassifier(t *testing.T) {
	ctx := context.Background()
	classifier := ClassifierFunc(func(_ context.Context, imageRef string) (models.ClassificationResult, error) {
		return models.ClassificationResult{Disease: "healthy_leaf", Confidence: 99.4}, nil
	})
	s, _ := newScanService(t, nil, classifier)

	res, err := s.Classify(ctx, "leaf.jpg")
	require.NoError(t, err)
	assert.Equal(t, models.HealthyDisease, res.Disease)

	rec, err := s.Scan(ctx, "leaf.jpg", nil, &models.Address{Province: "Batangas"})
	require.NoError(t, err)
	assert.Equal(t, models.StageHealthy, rec.Payload.Stage)
	assert.Equal(t, float64(99), rec.Payload.Confidence)
}

func TestScan_NoClassifier(t *testing.T) {
	s, _ := newScanService(t, nil, nil)
	_, err := s.Scan(context.Background(), "leaf.jpg", nil, nil)
	require.ErrorIs(t, err, ErrNoClassifier)
}

func TestDeleteListSyncHistory(t *testing.T) {
	ctx := context.Background()
	d := &countingDrainer{}
	s, _ := newScanService(t, d, nil)

	a, err := s.Capture(ctx, "a.jpg", models.ClassificationResult{Disease: "CLR_a"}, nil, nil)
	require.NoError(t, err)
	_, err = s.Capture(ctx, "b.jpg", models.ClassificationResult{Disease: "CLR_b"}, nil, nil)
	require.NoError(t, err)
	s.Wait()

	require.NoError(t, s.Delete(ctx, a.ID))
	require.ErrorIs(t, s.Delete(ctx, "missing"), common.ErrRecordNotFound)

	visible, err := s.List(ctx, false)
	require.NoError(t, err)
	assert.Len(t, visible, 1)
	all, err := s.List(ctx, true)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	_, err = s.Sync(ctx)
	require.NoError(t, err)
	assert.Equal(t, int32(3), d.calls.Load())

	history, err := s.History(ctx)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "s1", history[0].ID)
}
