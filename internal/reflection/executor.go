package reflection

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/medreflect/medreflect/internal/llm"
)

// TurnExecutor runs a single agent turn: build the role's prompt from the
// accumulated history, call the gateway, append the response. Both roles
// share one executor; the RoleConfig parameter carries everything that
// differs between them.
type TurnExecutor struct {
	gateway llm.Gateway
	logger  *zap.Logger
}

// NewTurnExecutor creates a turn executor backed by the given gateway.
func NewTurnExecutor(gateway llm.Gateway, logger *zap.Logger) *TurnExecutor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TurnExecutor{gateway: gateway, logger: logger}
}

// Execute performs one turn for role, mutating state on success. Gateway
// failures propagate to the controller; there is no silent continuation.
func (e *TurnExecutor) Execute(ctx context.Context, role RoleConfig, state *DiscussionState, obs Observer) error {
	emit(obs, EventThinkingStarted, role.Name, map[string]any{
		"round":   state.Round + 1,
		"message": role.ThinkingMessage,
	})

	response, err := e.gateway.Generate(ctx, role.Persona, state.Messages)
	if err != nil {
		return fmt.Errorf("turn %d (%s): %w", state.Round+1, role.Name, err)
	}

	state.AppendTurn(role, response)

	e.logger.Debug("turn completed",
		zap.String("role", role.Name),
		zap.Int("round", state.Round),
	)

	emit(obs, EventThinkingCompleted, role.Name, map[string]any{
		"round":         state.Round,
		"response":      response,
		"insight_count": len(state.InsightLog[role.InsightKey]),
	})
	return nil
}
