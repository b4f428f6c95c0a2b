package store

import (
	"math"
	"sort"

	"innexbot/internal/collector/models"
	"innexbot/internal/scoring"
)

// MostFailedLimit is how many event types the stats list.
const MostFailedLimit = 5

var bands = []scoring.Health{scoring.HealthExcellent, scoring.HealthGood, scoring.HealthFair, scoring.HealthCritical}

// aggregate keeps running totals over every accepted record, including
// records no longer retained.
type aggregate struct {
	total    int
	scoreSum int
	bands    map[scoring.Health]int
	failures map[string]int
}

func newAggregate() *aggregate {
	return &aggregate{
		bands:    make(map[scoring.Health]int, len(bands)),
		failures: make(map[string]int),
	}
}

func (a *aggregate) add(rec models.AuditRecord) {
	a.total++
	a.scoreSum += rec.Score
	a.bands[scoring.HealthOf(rec.Score)]++
	for _, e := range rec.EventsChecked {
		if !e.Found {
			a.failures[e.EventType]++
		}
	}
}

func (a *aggregate) stats() models.Stats {
	avg := 0
	if a.total > 0 {
		avg = int(math.Round(float64(a.scoreSum) / float64(a.total)))
	}
	return buildStats(a.total, avg, a.bands, a.failures)
}

// buildStats assembles the response shape shared by every backend.
func buildStats(total, avg int, counts map[scoring.Health]int, failures map[string]int) models.Stats {
	dist := make(map[string]models.Bucket, len(bands))
	for _, b := range bands {
		n := counts[b]
		pct := 0
		if total > 0 {
			pct = int(math.Round(float64(n) / float64(total) * 100))
		}
		dist[string(b)] = models.Bucket{Count: n, Percentage: pct}
	}

	failed := make([]models.FailedEvent, 0, len(failures))
	for eventType, n := range failures {
		failed = append(failed, models.FailedEvent{EventType: eventType, FailureCount: n})
	}
	sort.Slice(failed, func(i, j int) bool {
		if failed[i].FailureCount != failed[j].FailureCount {
			return failed[i].FailureCount > failed[j].FailureCount
		}
		return failed[i].EventType < failed[j].EventType
	})
	if len(failed) > MostFailedLimit {
		failed = failed[:MostFailedLimit]
	}

	return models.Stats{
		TotalAudits:       total,
		AverageScore:      avg,
		ScoreDistribution: dist,
		MostFailedEvents:  failed,
	}
}
