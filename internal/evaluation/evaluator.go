// Package evaluation scores extracted needs along the four fixed dimensions
// and ranks them. The evaluator makes one batch gateway call; the prioritizer
// is a pure function over the evaluation result.
package evaluation

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/medreflect/medreflect/internal/llm"
	"github.com/medreflect/medreflect/internal/models"
	"github.com/medreflect/medreflect/internal/structured"
)

const evaluatorPersona = `You are a professional medical innovation project assessor with deep experience in
healthcare technology, market analysis, and project management. Evaluate the provided medical need items
comprehensively.

Scoring dimensions:
1. feasibility_score: how realistic the technical implementation is
2. impact_score: the potential impact on the healthcare system and patients
3. innovation_score: the degree of innovation and differentiation of the solution
4. resource_score: how reasonable the resource requirements are (10 means very low resource needs)
5. overall_score: the holistic assessment considering all factors

Principles:
- All scores range from 0 to 10
- Account for healthcare regulation and the specifics of the medical sector
- Focus on practical operability and business value
- Provide concrete, actionable improvement recommendations`

// evaluationEntry is the wire shape of one evaluation from the model.
type evaluationEntry struct {
	NeedTitle        string   `json:"need_title"`
	FeasibilityScore float64  `json:"feasibility_score"`
	ImpactScore      float64  `json:"impact_score"`
	InnovationScore  float64  `json:"innovation_score"`
	ResourceScore    float64  `json:"resource_score"`
	OverallScore     float64  `json:"overall_score"`
	Strengths        []string `json:"strengths"`
	Weaknesses       []string `json:"weaknesses"`
	Recommendations  []string `json:"recommendations"`
}

type evaluationPayload struct {
	Evaluations      []evaluationEntry `json:"evaluations"`
	Summary          string            `json:"summary"`
	TopPriorityNeeds []string          `json:"top_priority_needs"`
}

// Evaluator scores a needs collection with one batch gateway call.
type Evaluator struct {
	gateway llm.Gateway
	parser  *structured.Parser
	logger  *zap.Logger
}

// NewEvaluator creates an evaluator.
func NewEvaluator(gateway llm.Gateway, parser *structured.Parser, logger *zap.Logger) *Evaluator {
	if parser == nil {
		parser = structured.NewParser(nil)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Evaluator{gateway: gateway, parser: parser, logger: logger}
}

// Evaluate scores every need in the collection. An empty collection is a
// defined short-circuit: no gateway call is made. Any gateway or schema
// failure degrades to the deterministic fallback, which returns exactly one
// evaluation per input need with all scores at the neutral midpoint.
func (e *Evaluator) Evaluate(ctx context.Context, needs models.NeedsCollection) models.EvaluationResult {
	if len(needs.Needs) == 0 {
		return models.EvaluationResult{
			Evaluations:      []models.NeedEvaluation{},
			Summary:          "no needs to evaluate",
			TopPriorityNeeds: []string{},
		}
	}

	prompt := structured.PromptWithSchema(evaluatorPersona, evaluationPayload{
		Evaluations: []evaluationEntry{{
			NeedTitle:       "title of the evaluated need",
			Strengths:       []string{"strength"},
			Weaknesses:      []string{"weakness"},
			Recommendations: []string{"recommendation"},
		}},
		Summary:          "overall evaluation summary",
		TopPriorityNeeds: []string{"titles of the top three priority needs"},
	})

	raw, err := e.gateway.Generate(ctx, prompt, []models.Message{{
		Role:    models.RoleHuman,
		Author:  "human",
		Content: formatNeeds(needs),
	}})
	if err != nil {
		e.logger.Error("needs evaluation call failed, using default evaluation", zap.Error(err))
		return FallbackEvaluation(needs)
	}

	var payload evaluationPayload
	if err := e.parser.Decode(raw, &payload); err != nil {
		e.logger.Error("needs evaluation output failed validation, using default evaluation", zap.Error(err))
		return FallbackEvaluation(needs)
	}
	if len(payload.Evaluations) != len(needs.Needs) {
		e.logger.Warn("evaluation count mismatch, using default evaluation",
			zap.Int("needs", len(needs.Needs)),
			zap.Int("evaluations", len(payload.Evaluations)),
		)
		return FallbackEvaluation(needs)
	}

	out := models.EvaluationResult{
		Evaluations:      make([]models.NeedEvaluation, 0, len(payload.Evaluations)),
		Summary:          payload.Summary,
		TopPriorityNeeds: payload.TopPriorityNeeds,
	}
	for i, ev := range payload.Evaluations {
		out.Evaluations = append(out.Evaluations, models.NeedEvaluation{
			// Evaluations are matched to needs by position: the stable
			// index survives model-altered or colliding titles.
			NeedIndex:        needs.Needs[i].Index,
			NeedTitle:        ev.NeedTitle,
			FeasibilityScore: clampScore(ev.FeasibilityScore),
			ImpactScore:      clampScore(ev.ImpactScore),
			InnovationScore:  clampScore(ev.InnovationScore),
			ResourceScore:    clampScore(ev.ResourceScore),
			OverallScore:     clampScore(ev.OverallScore),
			Strengths:        ev.Strengths,
			Weaknesses:       ev.Weaknesses,
			Recommendations:  ev.Recommendations,
		})
	}
	return out
}

// FallbackEvaluation is the deterministic default used when the model's
// evaluation cannot be obtained: every dimension at 5.0, placeholder text,
// top priorities = first three input titles in original order. The overall
// score on this path is the arithmetic mean of the four dimensions, which at
// the midpoint is 5.0.
func FallbackEvaluation(needs models.NeedsCollection) models.EvaluationResult {
	evaluations := make([]models.NeedEvaluation, 0, len(needs.Needs))
	for _, need := range needs.Needs {
		evaluations = append(evaluations, models.NeedEvaluation{
			NeedIndex:        need.Index,
			NeedTitle:        need.Title,
			FeasibilityScore: 5.0,
			ImpactScore:      5.0,
			InnovationScore:  5.0,
			ResourceScore:    5.0,
			OverallScore:     meanScore(5.0, 5.0, 5.0, 5.0),
			Strengths:        []string{"Requires further analysis"},
			Weaknesses:       []string{"Evaluation process failed"},
			Recommendations:  []string{"Re-run the evaluation"},
		})
	}

	top := make([]string, 0, 3)
	for _, need := range needs.Needs {
		if len(top) == 3 {
			break
		}
		top = append(top, need.Title)
	}

	return models.EvaluationResult{
		Evaluations:      evaluations,
		Summary:          "The evaluation process encountered a problem; check the input data or re-run the evaluation",
		TopPriorityNeeds: top,
	}
}

func formatNeeds(needs models.NeedsCollection) string {
	var sb strings.Builder
	sb.WriteString("Please evaluate the following medical need items:\n")
	for _, need := range needs.Needs {
		sb.WriteString(fmt.Sprintf(`
Need %d: %s
Summary: %s
Medical perspective: %s
Technical perspective: %s
Implementation strategy: %s
---
`, need.Index, need.Title, need.Summary, need.ClinicalInsight, need.TechnicalInsight, need.Strategy))
	}
	sb.WriteString("\nProvide a detailed evaluation for every need item, including dimension scores, strengths and weaknesses, and improvement recommendations. Also provide an overall summary and a priority ordering.")
	return sb.String()
}

// meanScore is the documented combining function for the fallback path.
func meanScore(feasibility, impact, innovation, resource float64) float64 {
	return (feasibility + impact + innovation + resource) / 4
}

func clampScore(s float64) float64 {
	if s < 0 {
		return 0
	}
	if s > 10 {
		return 10
	}
	return s
}
