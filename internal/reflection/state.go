package reflection

import (
	"github.com/medreflect/medreflect/internal/models"
)

// DiscussionState accumulates the transcript, per-role insight logs and the
// round counter for one run. It is owned by exactly one controller and is
// never mutated concurrently; readers get copies via Snapshot.
type DiscussionState struct {
	Messages     []models.Message
	InsightLog   map[string][]string
	Round        int
	MaxRounds    int
	FinalSummary string
}

// NewDiscussionState seeds a fresh state with the human query.
func NewDiscussionState(query string, maxRounds int) *DiscussionState {
	return &DiscussionState{
		Messages: []models.Message{{
			Role:    models.RoleHuman,
			Author:  "human",
			Content: query,
		}},
		InsightLog: map[string][]string{},
		MaxRounds:  maxRounds,
	}
}

// AppendTurn records one completed agent turn: the message, the role's
// insight entry, and the round increment. Messages never shrink and Round is
// monotonically non-decreasing.
func (s *DiscussionState) AppendTurn(role RoleConfig, content string) {
	s.Messages = append(s.Messages, models.Message{
		Role:    models.RoleAgent,
		Author:  role.Name,
		Content: content,
	})
	s.InsightLog[role.InsightKey] = append(s.InsightLog[role.InsightKey], content)
	s.Round++
}

// LastMessage returns the most recent message, or nil for a fresh state.
func (s *DiscussionState) LastMessage() *models.Message {
	if len(s.Messages) == 0 {
		return nil
	}
	return &s.Messages[len(s.Messages)-1]
}

// Snapshot returns deep copies of the transcript and insight logs so
// concurrent readers never observe in-place mutation.
func (s *DiscussionState) Snapshot() ([]models.Message, map[string][]string) {
	msgs := make([]models.Message, len(s.Messages))
	copy(msgs, s.Messages)

	logs := make(map[string][]string, len(s.InsightLog))
	for k, v := range s.InsightLog {
		entries := make([]string, len(v))
		copy(entries, v)
		logs[k] = entries
	}
	return msgs, logs
}
