// Package structured turns free-form LLM output into typed values. It builds
// schema-bearing prompts and validates responses with a strict JSON parse plus
// a bounded repair pass. Validation failure is reported as SchemaError so
// callers can apply their mandated fallbacks instead of propagating.
package structured

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"
)

// SchemaError indicates model output that does not conform to the requested
// structure. It never escapes the extractor or evaluator boundaries.
type SchemaError struct {
	Raw string
	Err error
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("structured output does not match schema: %v", e.Err)
}

func (e *SchemaError) Unwrap() error { return e.Err }

// Parser validates and decodes schema-constrained LLM responses.
type Parser struct {
	maxRepairAttempts int
	logger            *logrus.Logger
}

// NewParser creates a parser. A nil logger falls back to a default logrus
// instance, matching how this package is constructed elsewhere.
func NewParser(logger *logrus.Logger) *Parser {
	if logger == nil {
		logger = logrus.New()
	}
	return &Parser{
		maxRepairAttempts: 2,
		logger:            logger,
	}
}

// PromptWithSchema appends JSON-schema instructions to a base prompt so the
// model returns output this package can validate.
func PromptWithSchema(basePrompt string, example any) string {
	var sb strings.Builder

	sb.WriteString(basePrompt)
	sb.WriteString("\n\n")
	sb.WriteString("Please respond with a JSON object that follows this structure exactly:\n\n")
	sb.WriteString("```json\n")

	schemaJSON, _ := json.MarshalIndent(example, "", "  ") //nolint:errcheck
	sb.Write(schemaJSON)

	sb.WriteString("\n```\n\n")
	sb.WriteString("Important: Your response must be valid JSON that strictly adheres to the structure above. Do not include any text outside the JSON object.")

	return sb.String()
}

// Decode validates raw model output against target's shape. It tolerates code
// fences and surrounding prose, then attempts a bounded repair before giving
// up with a SchemaError.
func (p *Parser) Decode(raw string, target any) error {
	candidate := extractJSON(raw)
	if candidate == "" {
		return &SchemaError{Raw: raw, Err: fmt.Errorf("no JSON object found in output")}
	}

	err := json.Unmarshal([]byte(candidate), target)
	if err == nil {
		return nil
	}

	for attempt := 1; attempt <= p.maxRepairAttempts; attempt++ {
		candidate = repair(candidate)
		if uerr := json.Unmarshal([]byte(candidate), target); uerr == nil {
			p.logger.WithField("attempts", attempt).Debug("repaired structured output")
			return nil
		}
	}

	p.logger.WithError(err).Warn("structured output validation failed")
	return &SchemaError{Raw: raw, Err: err}
}

// extractJSON strips markdown fences and any prose around the outermost JSON
// object or array.
func extractJSON(raw string) string {
	s := strings.TrimSpace(raw)

	if idx := strings.Index(s, "```"); idx >= 0 {
		s = s[idx+3:]
		s = strings.TrimPrefix(s, "json")
		if end := strings.Index(s, "```"); end >= 0 {
			s = s[:end]
		}
		s = strings.TrimSpace(s)
	}

	start := strings.IndexAny(s, "{[")
	if start < 0 {
		return ""
	}
	closer := byte('}')
	if s[start] == '[' {
		closer = ']'
	}
	end := strings.LastIndexByte(s, closer)
	if end <= start {
		return ""
	}
	return s[start : end+1]
}

// repair applies cheap fixes for the malformations models actually produce:
// trailing commas and unterminated objects.
func repair(s string) string {
	s = strings.ReplaceAll(s, ",\n}", "\n}")
	s = strings.ReplaceAll(s, ",\n]", "\n]")
	s = strings.ReplaceAll(s, ",}", "}")
	s = strings.ReplaceAll(s, ",]", "]")

	opens := strings.Count(s, "{") - strings.Count(s, "}")
	for i := 0; i < opens; i++ {
		s += "}"
	}
	arrays := strings.Count(s, "[") - strings.Count(s, "]")
	for i := 0; i < arrays; i++ {
		s += "]"
	}
	return s
}
