package reflection

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/medreflect/medreflect/internal/llm"
	"github.com/medreflect/medreflect/internal/models"
	"github.com/medreflect/medreflect/internal/structured"
)

const collectorPersona = `You are a project coordinator responsible for consolidating the results of a discussion
between a medical expert and a systems engineer. Analyze the full conversation, extract the key insights, and
identify the discrete need items.

Tasks:
1. Identify the distinct need items raised in the discussion (there may be several)
2. For each need item provide:
   - need: the name or title of the need
   - summary: a brief summary of the need
   - medical_insights: the medical expert's insights and recommendations for this need
   - tech_insights: the engineer's technical solutions for this need
   - strategy: a combined implementation strategy for this need
3. Each need must be independent and concrete
4. The output must be a list of need items`

// needEntry is the wire shape of one need item as requested from the model.
// Index is assigned locally after parsing, not by the model.
type needEntry struct {
	Need            string `json:"need"`
	Summary         string `json:"summary"`
	MedicalInsights string `json:"medical_insights"`
	TechInsights    string `json:"tech_insights"`
	Strategy        string `json:"strategy"`
}

type needsPayload struct {
	Needs []needEntry `json:"needs"`
}

// Extractor converts a finished discussion into a structured needs
// collection via one schema-constrained gateway call.
type Extractor struct {
	gateway llm.Gateway
	parser  *structured.Parser
	logger  *zap.Logger
}

// NewExtractor creates an extractor.
func NewExtractor(gateway llm.Gateway, parser *structured.Parser, logger *zap.Logger) *Extractor {
	if parser == nil {
		parser = structured.NewParser(nil)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Extractor{gateway: gateway, parser: parser, logger: logger}
}

// Extract requests the structured needs list for the transcript. Any failure
// — gateway or schema — degrades to the sentinel collection so downstream
// stages always receive a well-formed input; errors are logged, never
// propagated.
func (x *Extractor) Extract(ctx context.Context, state *DiscussionState) models.NeedsCollection {
	prompt := structured.PromptWithSchema(collectorPersona, needsPayload{Needs: []needEntry{{
		Need:            "name or title of the need",
		Summary:         "brief summary of the need",
		MedicalInsights: "medical expert insights for this need",
		TechInsights:    "engineer technical solutions for this need",
		Strategy:        "combined implementation strategy",
	}}})

	raw, err := x.gateway.Generate(ctx, prompt, []models.Message{{
		Role:    models.RoleHuman,
		Author:  "human",
		Content: x.transcriptDigest(state),
	}})
	if err != nil {
		x.logger.Error("needs extraction call failed, returning sentinel", zap.Error(err))
		return FallbackNeeds()
	}

	var payload needsPayload
	if err := x.parser.Decode(raw, &payload); err != nil {
		x.logger.Error("needs extraction output failed validation, returning sentinel", zap.Error(err))
		return FallbackNeeds()
	}
	if len(payload.Needs) == 0 {
		x.logger.Warn("needs extraction returned an empty list, returning sentinel")
		return FallbackNeeds()
	}

	out := models.NeedsCollection{Needs: make([]models.NeedItem, 0, len(payload.Needs))}
	for i, n := range payload.Needs {
		out.Needs = append(out.Needs, models.NeedItem{
			Index:            i + 1,
			Title:            n.Need,
			Summary:          n.Summary,
			ClinicalInsight:  n.MedicalInsights,
			TechnicalInsight: n.TechInsights,
			Strategy:         n.Strategy,
		})
	}
	return out
}

// transcriptDigest assembles the insight logs and the conversation record
// into the extraction prompt body.
func (x *Extractor) transcriptDigest(state *DiscussionState) string {
	var sb strings.Builder

	sb.WriteString("Medical expert insights:\n")
	sb.WriteString(strings.Join(state.InsightLog[ClinicalExpert.InsightKey], "\n"))
	sb.WriteString("\n\nEngineer insights:\n")
	sb.WriteString(strings.Join(state.InsightLog[SystemsEngineer.InsightKey], "\n"))
	sb.WriteString("\n\nFull conversation record:\n")
	for _, m := range state.Messages {
		sb.WriteString(fmt.Sprintf("[%s] %s\n", m.Author, m.Content))
	}
	sb.WriteString("\nAnalyze the discussion and identify the concrete need items, output as a list.")
	return sb.String()
}

// FallbackNeeds is the sentinel collection returned when extraction fails:
// a single item whose fields state the failure explicitly.
func FallbackNeeds() models.NeedsCollection {
	return models.NeedsCollection{Needs: []models.NeedItem{{
		Index:            1,
		Title:            "Extraction failed",
		Summary:          "The discussion transcript could not be parsed into structured needs; check the model output format",
		ClinicalInsight:  "Medical insights could not be parsed",
		TechnicalInsight: "Technical insights could not be parsed",
		Strategy:         "Strategy could not be parsed",
	}}}
}
