// Package session owns the registry of discussion runs. The runner is the
// single writer for any session; handlers are concurrent readers and only
// ever observe snapshots.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/medreflect/medreflect/internal/models"
)

// ErrNotFound is returned when a session id is unknown.
var ErrNotFound = errors.New("session not found")

// Store is the session registry consumed by the runner and the HTTP layer.
// Update applies a mutation atomically with respect to other calls on the
// same store; with the single-writer discipline this is sufficient.
type Store interface {
	Create(ctx context.Context, s *models.Session) error
	Get(ctx context.Context, id string) (*models.Session, error)
	Update(ctx context.Context, id string, mutate func(*models.Session)) error
	List(ctx context.Context) ([]*models.Session, error)
}

// clone deep-copies a session through its JSON form so readers never share
// slices or maps with the stored value.
func clone(s *models.Session) (*models.Session, error) {
	raw, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("clone session: %w", err)
	}
	var out models.Session
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("clone session: %w", err)
	}
	return &out, nil
}
