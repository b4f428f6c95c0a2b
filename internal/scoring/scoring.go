// Package scoring turns step outcomes into a weighted health score.
package scoring

import "math"

// Health is the discrete category derived from a score.
type Health string

const (
	HealthExcellent Health = "excellent"
	HealthGood      Health = "good"
	HealthFair      Health = "fair"
	HealthCritical  Health = "critical"
)

// Outcome is the part of a step result the score depends on.
type Outcome struct {
	Weight  float64
	Found   bool
	Skipped bool
}

// Score returns round(100 * found weight / attempted weight). Skipped
// outcomes are left out of both sums, so skipping redistributes weight
// rather than penalising. With nothing attempted the score is 0.
func Score(outcomes []Outcome) int {
	var total, achieved float64
	for _, o := range outcomes {
		if o.Skipped {
			continue
		}
		total += o.Weight
		if o.Found {
			achieved += o.Weight
		}
	}
	if total == 0 {
		return 0
	}
	return int(math.Round(achieved / total * 100))
}

// HealthOf maps a score onto its category, highest threshold first.
func HealthOf(score int) Health {
	switch {
	case score >= 80:
		return HealthExcellent
	case score >= 60:
		return HealthGood
	case score >= 40:
		return HealthFair
	default:
		return HealthCritical
	}
}

// Counts summarises outcomes the way audit documents report them.
type Counts struct {
	Total      int `json:"totalTests" yaml:"totalTests"`
	Successful int `json:"successfulTests" yaml:"successfulTests"`
	Failed     int `json:"failedTests" yaml:"failedTests"`
	Skipped    int `json:"skippedTests" yaml:"skippedTests"`
}

func Count(outcomes []Outcome) Counts {
	c := Counts{Total: len(outcomes)}
	for _, o := range outcomes {
		switch {
		case o.Skipped:
			c.Skipped++
		case o.Found:
			c.Successful++
		default:
			c.Failed++
		}
	}
	return c
}
