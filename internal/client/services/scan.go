package services

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/dmitrijs2005/kappi/internal/client/models"
	"github.com/dmitrijs2005/kappi/internal/client/syncer"
	"github.com/dmitrijs2005/kappi/internal/logging"
)

// Classifier is the on-device image model. Its output is raw and gets
// normalized before it is stored.
type Classifier interface {
	Classify(ctx context.Context, imageRef string) (models.ClassificationResult, error)
}

type ClassifierFunc func(ctx context.Context, imageRef string) (models.ClassificationResult, error)

func (f ClassifierFunc) Classify(ctx context.Context, imageRef string) (models.ClassificationResult, error) {
	return f(ctx, imageRef)
}

// RecordQueue is the part of *queue.Queue the scan service drives.
type RecordQueue interface {
	Append(ctx context.Context, d models.RecordDraft) (models.CapturedRecord, error)
	ListPending(ctx context.Context, includeDeleted bool) ([]models.CapturedRecord, error)
	SoftDelete(ctx context.Context, id string) error
}

type Drainer interface {
	Drain(ctx context.Context) (syncer.Report, error)
}

type HistorySource interface {
	ListScans(ctx context.Context) ([]models.Scan, error)
}

var ErrNoClassifier = errors.New("no classifier configured")

// ScanService captures scans into the local queue and pushes them to the
// remote service when it can.
type ScanService struct {
	queue      RecordQueue
	drainer    Drainer
	history    HistorySource
	classifier Classifier
	logger     logging.Logger

	wg sync.WaitGroup
}

func NewScanService(q RecordQueue, d Drainer, history HistorySource, classifier Classifier, logger logging.Logger) *ScanService {
	return &ScanService{
		queue:      q,
		drainer:    d,
		history:    history,
		classifier: classifier,
		logger:     logger.With("component", "scans"),
	}
}

// Classify runs the classifier on imageRef and normalizes the result.
func (s *ScanService) Classify(ctx context.Context, imageRef string) (models.ClassificationResult, error) {
	if s.classifier == nil {
		return models.ClassificationResult{}, ErrNoClassifier
	}
	raw, err := s.classifier.Classify(ctx, imageRef)
	if err != nil {
		return models.ClassificationResult{}, fmt.Errorf("classify %s: %w", imageRef, err)
	}
	return models.NormalizeClassification(raw), nil
}

// Capture stores a classified scan. The record is durable once Capture
// returns; a background drain is then started and its outcome only logged.
func (s *ScanService) Capture(ctx context.Context, imageRef string, raw models.ClassificationResult, coords *models.Coordinates, addr *models.Address) (models.CapturedRecord, error) {
	rec, err := s.queue.Append(ctx, models.RecordDraft{
		Payload:     models.NormalizeClassification(raw),
		ImageRef:    imageRef,
		Coordinates: coords,
		Address:     addr,
	})
	if err != nil {
		return models.CapturedRecord{}, fmt.Errorf("capture: %w", err)
	}

	s.logger.Info(ctx, "scan captured", "id", rec.ID, "disease", rec.Payload.Disease)

	if s.drainer != nil {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			bg := context.WithoutCancel(ctx)
			report, err := s.drainer.Drain(bg)
			if err != nil {
				s.logger.Warn(bg, "background sync failed", "error", err)
				return
			}
			if !report.Skipped {
				s.logger.Debug(bg, "background sync done", "submitted", report.Submitted, "remaining", report.Remaining)
			}
		}()
	}

	return rec, nil
}

// Scan classifies imageRef and captures the result.
func (s *ScanService) Scan(ctx context.Context, imageRef string, coords *models.Coordinates, addr *models.Address) (models.CapturedRecord, error) {
	if s.classifier == nil {
		return models.CapturedRecord{}, ErrNoClassifier
	}
	raw, err := s.classifier.Classify(ctx, imageRef)
	if err != nil {
		return models.CapturedRecord{}, fmt.Errorf("classify %s: %w", imageRef, err)
	}
	return s.Capture(ctx, imageRef, raw, coords, addr)
}

// Wait blocks until background drains started by Capture have finished.
func (s *ScanService) Wait() {
	s.wg.Wait()
}

func (s *ScanService) List(ctx context.Context, includeDeleted bool) ([]models.CapturedRecord, error) {
	return s.queue.ListPending(ctx, includeDeleted)
}

func (s *ScanService) Delete(ctx context.Context, id string) error {
	return s.queue.SoftDelete(ctx, id)
}

// Sync drains the queue now.
func (s *ScanService) Sync(ctx context.Context) (syncer.Report, error) {
	if s.drainer == nil {
		return syncer.Report{Skipped: true}, nil
	}
	return s.drainer.Drain(ctx)
}

// History lists the scans the remote service already holds, newest first.
func (s *ScanService) History(ctx context.Context) ([]models.Scan, error) {
	scans, err := s.history.ListScans(ctx)
	if err != nil {
		return nil, fmt.Errorf("scan history: %w", err)
	}
	return scans, nil
}
