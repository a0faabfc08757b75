package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/dmitrijs2005/kappi/internal/client/models"
)

// sidecarClassifier reads the classifier output saved next to an image as
// <image>.json. The camera app writes these files; the CLI only consumes
// them.
type sidecarClassifier struct{}

type sidecarResult struct {
	Label      string  `json:"label"`
	Disease    string  `json:"disease"`
	Confidence float64 `json:"confidence"`
	Severity   string  `json:"severity"`
	Stage      string  `json:"stage"`
}

func (sidecarClassifier) Classify(_ context.Context, imageRef string) (models.ClassificationResult, error) {
	data, err := os.ReadFile(imageRef + ".json")
	if err != nil {
		return models.ClassificationResult{}, fmt.Errorf("read classifier output: %w", err)
	}

	var r sidecarResult
	if err := json.Unmarshal(data, &r); err != nil {
		return models.ClassificationResult{}, fmt.Errorf("parse classifier output: %w", err)
	}

	disease := r.Disease
	if disease == "" {
		disease = r.Label
	}
	return models.ClassificationResult{
		Disease:    disease,
		Confidence: r.Confidence,
		Severity:   models.Severity(r.Severity),
		Stage:      models.Stage(r.Stage),
	}, nil
}
