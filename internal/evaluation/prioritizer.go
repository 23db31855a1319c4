package evaluation

import (
	"fmt"
	"sort"

	"github.com/medreflect/medreflect/internal/models"
)

// Prioritize ranks evaluated needs by overall score. It is a pure function:
// no gateway calls, identical output for identical input. The sort is stable,
// so ties keep their original evaluation order.
func Prioritize(evaluation models.EvaluationResult) models.PrioritizationResult {
	sorted := make([]models.NeedEvaluation, len(evaluation.Evaluations))
	copy(sorted, evaluation.Evaluations)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].OverallScore > sorted[j].OverallScore
	})

	prioritized := make([]models.PrioritizedNeed, 0, len(sorted))
	for i, ev := range sorted {
		rank := i + 1
		prioritized = append(prioritized, models.PrioritizedNeed{
			Rank:             rank,
			NeedTitle:        ev.NeedTitle,
			OverallScore:     ev.OverallScore,
			FeasibilityScore: ev.FeasibilityScore,
			ImpactScore:      ev.ImpactScore,
			InnovationScore:  ev.InnovationScore,
			ResourceScore:    ev.ResourceScore,
			PriorityLevel:    priorityForRank(rank),
		})
	}

	return models.PrioritizationResult{
		PrioritizedNeeds: prioritized,
		RankingCriteria:  rankingCriteria(),
		Recommendations:  recommendations(prioritized),
	}
}

// priorityForRank derives the tier purely from rank order: top 2 High, next
// 2 Medium, rest Low.
func priorityForRank(rank int) models.PriorityLevel {
	switch {
	case rank <= 2:
		return models.PriorityHigh
	case rank <= 4:
		return models.PriorityMedium
	default:
		return models.PriorityLow
	}
}

func rankingCriteria() map[string]string {
	return map[string]string{
		"primary":     "Overall Score (weighted combination of all factors)",
		"feasibility": "Technical implementation possibility (0-10)",
		"impact":      "Potential impact on medical system (0-10)",
		"innovation":  "Innovation level and differentiation (0-10)",
		"resource":    "Resource efficiency (10 = low resource requirement)",
	}
}

func recommendations(prioritized []models.PrioritizedNeed) []string {
	recs := make([]string, 0, 4)
	if len(prioritized) > 0 {
		top := prioritized[0]
		recs = append(recs, fmt.Sprintf("Prioritize '%s' as it has the highest overall score of %g", top.NeedTitle, top.OverallScore))
	}
	if len(prioritized) > 1 {
		recs = append(recs, "Focus on top 3 ranked needs for maximum impact")
	}
	recs = append(recs,
		"Consider resource constraints when selecting implementation order",
		"Regularly reassess priorities based on changing requirements",
	)
	return recs
}
