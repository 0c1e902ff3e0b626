// Package aggregate rolls per-indicator scores up into category and
// organization statistics.
package aggregate

import (
	"github.com/xbeat/certicredia-sub001/internal/domain"
)

// Compute builds the organization aggregate from the current assessment
// records. Only the Current version of each record is read. Categories without
// any assessed indicator are absent from ByCategory.
func Compute(orgID string, records []domain.AssessmentRecord) domain.OrganizationAggregate {
	type acc struct {
		score, confidence float64
		n                 int
	}
	byCat := map[string]*acc{}
	seen := map[string]struct{}{}
	var total float64

	for _, rec := range records {
		if rec.OrganizationID != "" && rec.OrganizationID != orgID {
			continue
		}
		if _, dup := seen[rec.IndicatorID]; dup {
			continue
		}
		seen[rec.IndicatorID] = struct{}{}

		cat := domain.CategoryOf(rec.IndicatorID)
		a, ok := byCat[cat]
		if !ok {
			a = &acc{}
			byCat[cat] = a
		}
		res := rec.Current.Data.Result
		a.score += res.FinalScore
		a.confidence += res.Confidence
		a.n++
		total += res.FinalScore
	}

	out := domain.OrganizationAggregate{
		OrganizationID: orgID,
		ByCategory:     make(map[string]domain.CategoryStats, len(byCat)),
		Completion: domain.Completion{
			AssessedIndicators: len(seen),
			TotalIndicators:    domain.TotalIndicators,
			Percentage:         100 * float64(len(seen)) / domain.TotalIndicators,
		},
	}
	for cat, a := range byCat {
		out.ByCategory[cat] = domain.CategoryStats{
			AvgScore:             a.score / float64(a.n),
			AvgConfidence:        a.confidence / float64(a.n),
			CompletionPercentage: 100 * float64(a.n) / domain.IndicatorsPerCategory,
			TotalAssessments:     a.n,
		}
	}
	if len(seen) > 0 {
		out.OverallRisk = total / float64(len(seen))
	}
	return out
}
