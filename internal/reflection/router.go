package reflection

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/medreflect/medreflect/internal/llm"
	"github.com/medreflect/medreflect/internal/models"
)

// StepExtract is the router verdict that terminates the discussion loop.
const StepExtract = "extract"

// Router decides the next step of the discussion: the name of the role to run
// next, or StepExtract. Next never fails; classifier-backed implementations
// downgrade their own errors to a deterministic fallback.
type Router interface {
	Next(ctx context.Context, state *DiscussionState) string
}

// AlternatingRouter is the fast deterministic policy: roles simply take
// turns, inferred from the author of the most recent message.
type AlternatingRouter struct {
	RoleA RoleConfig
	RoleB RoleConfig
}

// Next applies the round hard stop first, then alternates by last author.
func (r *AlternatingRouter) Next(_ context.Context, state *DiscussionState) string {
	if state.Round >= state.MaxRounds {
		return StepExtract
	}

	last := state.LastMessage()
	if last == nil || last.Role == models.RoleHuman {
		return r.RoleA.Name
	}
	if last.Author == r.RoleA.Name {
		return r.RoleB.Name
	}
	return r.RoleA.Name
}

const topicJudgePersona = `You are a discussion topic judge. Analyze the most recent message and decide whether its
focus is the clinical domain or the technical engineering domain.

Criteria:
- If the focus is clinical workflows, clinical experience, patient care, or health policy, answer "medical"
- If the focus is technical solutions, system architecture, software, or data analysis, answer "engineering"

Answer with exactly one word, "medical" or "engineering", and nothing else.`

// ClassifierRouter asks the gateway to label the topical focus of the last
// message and hands the floor to the opposite role. It trades latency and
// failure surface for more coherent hand-offs; any classifier failure or
// unrecognized label falls back to alternation by round parity.
type ClassifierRouter struct {
	Gateway llm.Gateway
	RoleA   RoleConfig
	RoleB   RoleConfig
	Logger  *zap.Logger
}

// Next applies the round hard stop first, then classifies the last message.
func (r *ClassifierRouter) Next(ctx context.Context, state *DiscussionState) string {
	if state.Round >= state.MaxRounds {
		return StepExtract
	}

	last := state.LastMessage()
	if last == nil || last.Role == models.RoleHuman {
		return r.RoleA.Name
	}

	judgment, err := r.Gateway.Generate(ctx, topicJudgePersona, []models.Message{{
		Role:    models.RoleHuman,
		Author:  "human",
		Content: "Most recent message in the discussion:\n" + last.Content,
	}})
	if err != nil {
		if r.Logger != nil {
			r.Logger.Warn("topic classifier failed, falling back to alternation", zap.Error(err))
		}
		return r.parityFallback(state.Round)
	}

	label := strings.ToLower(strings.TrimSpace(judgment))
	switch {
	case strings.Contains(label, "medical"):
		// Current focus is clinical, so the engineer speaks next.
		return r.RoleB.Name
	case strings.Contains(label, "engineering"):
		return r.RoleA.Name
	default:
		return r.parityFallback(state.Round)
	}
}

// parityFallback alternates deterministically: even round goes to the
// technical role, odd to the clinical role. It never fails.
func (r *ClassifierRouter) parityFallback(round int) string {
	if round%2 == 0 {
		return r.RoleB.Name
	}
	return r.RoleA.Name
}
