package models

import (
	"slices"
	"strings"
)

// Variety is the coffee variety a recommendation is tailored to.
type Variety string

const (
	VarietyArabica Variety = "arabica"
	VarietyRobusta Variety = "robusta"
)

// ParseVariety accepts a variety name in any case.
func ParseVariety(s string) (Variety, bool) {
	switch v := Variety(strings.ToLower(strings.TrimSpace(s))); v {
	case VarietyArabica, VarietyRobusta:
		return v, true
	default:
		return "", false
	}
}

// Treatment lists the chemical and cultural controls advised for one
// disease stage, with the sources they were taken from.
type Treatment struct {
	Chemical []string
	Cultural []string
	Sources  []string
}

var treatments = map[string]map[Stage]map[Variety]Treatment{
	LeafRustDisease: {
		StageEarly: {
			VarietyArabica: {
				Chemical: []string{
					"Preventative copper fungicide (e.g. Bordeaux mixture) at inoculum <10%; apply at leaf emergence",
				},
				Cultural: []string{
					"Prune lower branches to improve air flow",
					"Maintain proper shade (30-40%) to reduce humidity",
				},
				Sources: []string{"cardi.org", "researchgate.net"},
			},
			VarietyRobusta: {
				Chemical: []string{
					"Single preventive spray of cupric fungicide (e.g. copper oxychloride) at early spore appearance",
				},
				Cultural: []string{
					"Thinning shade trees",
					"Remove diseased leaves immediately",
				},
				Sources: []string{"ctahr.hawaii.edu"},
			},
		},
		StageProgressive: {
			VarietyArabica: {
				Chemical: []string{
					"Systemic triazole fungicide (triadimefon, Bayleton) at recommended label rate, repeat in 14 days",
				},
				Cultural: []string{
					"Moderate pruning to open canopy",
					"Enhance nitrogen-potassium nutrition to boost leaf resistance",
				},
				Sources: []string{"cardi.org", "en.wikipedia.org"},
			},
			VarietyRobusta: {
				Chemical: []string{
					"Follow up with systemic fungicide (e.g. propiconazole) for remedial action",
				},
				Cultural: []string{
					"Increase inter-row spacing to 2-3 m",
					"Avoid overhead irrigation",
				},
				Sources: []string{"en.wikipedia.org"},
			},
		},
		StageSevere: {
			VarietyArabica: {
				Chemical: []string{
					"Alternate fungicide classes (strobilurins + triazoles) every spray to prevent resistance",
				},
				Cultural: []string{
					"Sanitation: remove and burn heavily infected branches",
					"Fallow small plots if infection >40% of canopy",
				},
				Sources: []string{"researchgate.net"},
			},
			VarietyRobusta: {
				Chemical: []string{
					"High-dose systemic sprays every 10 days during wet season",
				},
				Cultural: []string{
					"Consider replanting with rust-resistant cultivars (e.g. SL28, N39) in long-term rotations",
				},
				Sources: []string{"hawaiicoffeeed.com"},
			},
		},
	},
}

// Recommendation looks up the treatment for disease at stage on variety.
// Healthy plants and unknown combinations have none.
func Recommendation(disease string, stage Stage, variety Variety) (Treatment, bool) {
	t, ok := treatments[disease][stage][variety]
	if !ok {
		return Treatment{}, false
	}
	return Treatment{
		Chemical: slices.Clone(t.Chemical),
		Cultural: slices.Clone(t.Cultural),
		Sources:  slices.Clone(t.Sources),
	}, true
}
