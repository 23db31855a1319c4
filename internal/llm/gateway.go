// Package llm provides the abstraction boundary to the underlying language
// model provider, plus the OpenAI-compatible HTTP implementation used in
// production. All structured-output concerns live in internal/structured;
// this package only moves prompts in and text out.
package llm

import (
	"context"
	"errors"
	"fmt"

	"github.com/medreflect/medreflect/internal/models"
)

// Gateway sends a system prompt plus message history to a language model and
// returns the generated text. Implementations may fail transiently; callers
// decide whether a failure aborts the run (turn executor) or is downgraded
// locally (router classifier).
type Gateway interface {
	Generate(ctx context.Context, system string, history []models.Message) (string, error)
}

// ErrorKind classifies gateway failures into the transient/permanent split
// the pipeline cares about.
type ErrorKind string

const (
	KindNetwork        ErrorKind = "network"
	KindRateLimit      ErrorKind = "rate_limit"
	KindTimeout        ErrorKind = "timeout"
	KindAuth           ErrorKind = "auth"
	KindInvalidRequest ErrorKind = "invalid_request"
)

// GatewayError wraps any failure raised by a Gateway implementation.
type GatewayError struct {
	Kind     ErrorKind
	Provider string
	Err      error
}

func (e *GatewayError) Error() string {
	return fmt.Sprintf("llm gateway (%s): %s: %v", e.Provider, e.Kind, e.Err)
}

func (e *GatewayError) Unwrap() error { return e.Err }

// Transient reports whether retrying the call could succeed.
func (e *GatewayError) Transient() bool {
	switch e.Kind {
	case KindNetwork, KindRateLimit, KindTimeout:
		return true
	default:
		return false
	}
}

// IsTransient reports whether err is a transient GatewayError.
func IsTransient(err error) bool {
	var ge *GatewayError
	return errors.As(err, &ge) && ge.Transient()
}
