package reflection

import (
	"context"
	"encoding/json"

	"go.uber.org/zap"

	"github.com/medreflect/medreflect/internal/models"
)

// Controller drives the discussion state machine:
//
//	START → RoleA → (router) → RoleA | RoleB | Extract → END
//
// Transitions are decided exclusively by the router; the router's round hard
// stop bounds the machine at MaxRounds turns plus one extraction step.
type Controller struct {
	roleA     RoleConfig
	roleB     RoleConfig
	executor  *TurnExecutor
	router    Router
	extractor *Extractor
	logger    *zap.Logger
}

// NewController assembles a controller from its collaborators.
func NewController(roleA, roleB RoleConfig, executor *TurnExecutor, router Router, extractor *Extractor, logger *zap.Logger) *Controller {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Controller{
		roleA:     roleA,
		roleB:     roleB,
		executor:  executor,
		router:    router,
		extractor: extractor,
		logger:    logger,
	}
}

// Run executes a full discussion without progress reporting.
func (c *Controller) Run(ctx context.Context, query string, maxRounds int) (*models.DiscussionResult, error) {
	return c.RunWithObserver(ctx, query, maxRounds, nil)
}

// RunWithObserver executes a full discussion, emitting progress events to
// obs. The observer is purely additive: for identical gateway responses the
// result is identical to Run's. On a gateway failure the returned result is
// non-nil and carries the partial insight logs accumulated so far, alongside
// the error.
func (c *Controller) RunWithObserver(ctx context.Context, query string, maxRounds int, obs Observer) (*models.DiscussionResult, error) {
	state := NewDiscussionState(query, maxRounds)

	emit(obs, EventReflectionStarted, "system", map[string]any{
		"query":      query,
		"max_rounds": maxRounds,
	})

	// START always hands the floor to role A.
	current := c.roleA
	for {
		// Cooperative cancellation point before every turn.
		if err := ctx.Err(); err != nil {
			return c.result(state), err
		}

		if err := c.executor.Execute(ctx, current, state, obs); err != nil {
			c.logger.Error("discussion turn failed",
				zap.String("role", current.Name),
				zap.Int("round", state.Round),
				zap.Error(err),
			)
			return c.result(state), err
		}

		next := c.router.Next(ctx, state)
		if next == StepExtract {
			break
		}
		current = c.roleByName(next)
	}

	// Cancellation point before the extraction call.
	if err := ctx.Err(); err != nil {
		return c.result(state), err
	}

	emit(obs, EventCollectingStarted, CollectorAgent, map[string]any{
		"round":   state.Round,
		"message": "Collector is consolidating the discussion into need items...",
	})

	needs := c.extractor.Extract(ctx, state)

	summary, _ := json.Marshal(needs) //nolint:errcheck
	state.FinalSummary = string(summary)
	state.Messages = append(state.Messages, models.Message{
		Role:    models.RoleAgent,
		Author:  CollectorAgent,
		Content: state.FinalSummary,
	})

	emit(obs, EventCollectingCompleted, CollectorAgent, map[string]any{
		"need_count": len(needs.Needs),
	})

	result := c.result(state)
	result.Needs = needs

	emit(obs, EventReflectionCompleted, "system", map[string]any{
		"discussion_rounds": result.DiscussionRounds,
		"need_count":        len(needs.Needs),
	})

	c.logger.Info("discussion completed",
		zap.Int("rounds", result.DiscussionRounds),
		zap.Int("needs", len(needs.Needs)),
	)
	return result, nil
}

func (c *Controller) roleByName(name string) RoleConfig {
	if name == c.roleB.Name {
		return c.roleB
	}
	return c.roleA
}

// result builds a DiscussionResult from a snapshot of the state, so callers
// never share slices with the live run.
func (c *Controller) result(state *DiscussionState) *models.DiscussionResult {
	msgs, logs := state.Snapshot()

	conversation := make([]string, 0, len(msgs))
	for _, m := range msgs {
		conversation = append(conversation, m.Content)
	}

	// The seed query is always the first message.
	query := ""
	if len(msgs) > 0 {
		query = msgs[0].Content
	}

	return &models.DiscussionResult{
		OriginalQuery:    query,
		DiscussionRounds: state.Round,
		InsightLog:       logs,
		FinalSummary:     state.FinalSummary,
		FullConversation: conversation,
	}
}
