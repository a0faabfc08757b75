package models

import (
	"math"
	"strings"
)

type Severity string

const (
	SeverityLow     Severity = "low"
	SeverityMedium  Severity = "medium"
	SeverityHigh    Severity = "high"
	SeverityHealthy Severity = "healthy"
	SeverityUnknown Severity = "Unknown"
)

type Stage string

const (
	StageEarly       Stage = "Early"
	StageProgressive Stage = "Progressive"
	StageSevere      Stage = "Severe"
	StageHealthy     Stage = "Healthy"
	StageUnknown     Stage = "Unknown"
)

const (
	HealthyDisease  = "Healthy Plant"
	LeafRustDisease = "Coffee Leaf Rust"
	leafRustPrefix  = "CLR_"
)

// ClassificationResult is the output of the on-device classifier.
type ClassificationResult struct {
	Disease    string   `json:"disease"`
	Confidence float64  `json:"confidence"`
	Severity   Severity `json:"severity"`
	Stage      Stage    `json:"stage"`
}

// NormalizeClassification maps raw classifier output onto the labels the
// remote service accepts. Any label mentioning "healthy" becomes the healthy
// result; CLR_* labels are leaf rust; confidence is rounded to a whole
// percentage.
func NormalizeClassification(raw ClassificationResult) ClassificationResult {
	confidence := math.Round(raw.Confidence)

	if strings.Contains(strings.ToLower(raw.Disease), "healthy") {
		return ClassificationResult{
			Disease:    HealthyDisease,
			Confidence: confidence,
			Severity:   SeverityHealthy,
			Stage:      StageHealthy,
		}
	}

	disease := strings.TrimSpace(raw.Disease)
	if strings.HasPrefix(disease, leafRustPrefix) {
		disease = LeafRustDisease
	}
	if disease == "" {
		disease = string(SeverityUnknown)
	}

	return ClassificationResult{
		Disease:    disease,
		Confidence: confidence,
		Severity:   parseSeverity(string(raw.Severity)),
		Stage:      parseStage(string(raw.Stage)),
	}
}

func parseSeverity(s string) Severity {
	switch v := Severity(strings.ToLower(strings.TrimSpace(s))); v {
	case SeverityLow, SeverityMedium, SeverityHigh, SeverityHealthy:
		return v
	default:
		return SeverityUnknown
	}
}

func parseStage(s string) Stage {
	for _, v := range []Stage{StageEarly, StageProgressive, StageSevere, StageHealthy} {
		if strings.EqualFold(strings.TrimSpace(s), string(v)) {
			return v
		}
	}
	return StageUnknown
}

type Coordinates struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

type Address struct {
	Barangay         string `json:"barangay"`
	CityMunicipality string `json:"cityMunicipality"`
	Province         string `json:"province"`
}

// CapturedRecord is one scan kept locally until the remote service
// acknowledges it.
type CapturedRecord struct {
	ID              string               `json:"id"`
	Payload         ClassificationResult `json:"payload"`
	ImageRef        string               `json:"imageRef"`
	Coordinates     *Coordinates         `json:"coordinates,omitempty"`
	Address         *Address             `json:"address,omitempty"`
	CreatedAtMillis int64                `json:"createdAtMillis"`
	Deleted         bool                 `json:"deleted"`
}

// RecordDraft is what a caller supplies to the queue; id and creation time
// are assigned on append.
type RecordDraft struct {
	Payload     ClassificationResult
	ImageRef    string
	Coordinates *Coordinates
	Address     *Address
}

// Scan is a scan as stored by the remote service.
type Scan struct {
	ID          string       `json:"id,omitempty"`
	// ClientID is the local record id; resubmissions carry the same value.
	ClientID    string       `json:"clientId,omitempty"`
	Disease     string       `json:"disease"`
	Confidence  float64      `json:"confidence"`
	Severity    Severity     `json:"severity"`
	Stage       Stage        `json:"stage"`
	ImageURI    string       `json:"imageUri,omitempty"`
	Coordinates *Coordinates `json:"coordinates,omitempty"`
	Address     *Address     `json:"address,omitempty"`
	CreatedAt   string       `json:"createdAt,omitempty"`
}

// ScanFromRecord builds the submission body for r.
func ScanFromRecord(r CapturedRecord) Scan {
	return Scan{
		ClientID:    r.ID,
		Disease:     r.Payload.Disease,
		Confidence:  r.Payload.Confidence,
		Severity:    r.Payload.Severity,
		Stage:       r.Payload.Stage,
		ImageURI:    r.ImageRef,
		Coordinates: r.Coordinates,
		Address:     r.Address,
	}
}
