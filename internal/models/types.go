package models

import "time"

// MessageRole distinguishes the human seed message from agent turns.
type MessageRole string

const (
	RoleHuman MessageRole = "human"
	RoleAgent MessageRole = "agent"
)

// Message is a single entry in the discussion transcript. Messages are
// append-only and immutable once appended.
type Message struct {
	Role    MessageRole `json:"role"`
	Author  string      `json:"author"`
	Content string      `json:"content"`
}

// NeedItem is one structured improvement opportunity extracted from a
// discussion transcript. Index is assigned at extraction time and is the
// stable join key between needs and their evaluations; titles are the
// human-facing key and may collide.
type NeedItem struct {
	Index            int    `json:"index"`
	Title            string `json:"need"`
	Summary          string `json:"summary"`
	ClinicalInsight  string `json:"medical_insights"`
	TechnicalInsight string `json:"tech_insights"`
	Strategy         string `json:"strategy"`
}

// NeedsCollection is an ordered list of extracted needs. It may be empty.
type NeedsCollection struct {
	Needs []NeedItem `json:"needs"`
}

// DiscussionResult is the output of a completed discussion run.
type DiscussionResult struct {
	OriginalQuery    string              `json:"original_query"`
	DiscussionRounds int                 `json:"discussion_rounds"`
	InsightLog       map[string][]string `json:"insight_log"`
	Needs            NeedsCollection     `json:"parsed_needs"`
	FinalSummary     string              `json:"final_summary"`
	FullConversation []string            `json:"full_conversation"`
}

// NeedEvaluation scores one need along the four fixed dimensions.
// All score fields lie in [0,10].
type NeedEvaluation struct {
	NeedIndex        int      `json:"need_index"`
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

// EvaluationResult is the batch evaluation output for a needs collection.
type EvaluationResult struct {
	Evaluations      []NeedEvaluation `json:"evaluations"`
	Summary          string           `json:"summary"`
	TopPriorityNeeds []string         `json:"top_priority_needs"`
}

// PriorityLevel is derived purely from rank order, not score thresholds.
type PriorityLevel string

const (
	PriorityHigh   PriorityLevel = "High"
	PriorityMedium PriorityLevel = "Medium"
	PriorityLow    PriorityLevel = "Low"
)

// PrioritizedNeed is one ranked entry derived from an evaluation.
type PrioritizedNeed struct {
	Rank             int           `json:"rank"`
	NeedTitle        string        `json:"need_title"`
	OverallScore     float64       `json:"overall_score"`
	FeasibilityScore float64       `json:"feasibility_score"`
	ImpactScore      float64       `json:"impact_score"`
	InnovationScore  float64       `json:"innovation_score"`
	ResourceScore    float64       `json:"resource_score"`
	PriorityLevel    PriorityLevel `json:"priority_level"`
}

// PrioritizationResult is the final ranked output of the pipeline.
type PrioritizationResult struct {
	PrioritizedNeeds []PrioritizedNeed `json:"prioritized_needs"`
	RankingCriteria  map[string]string `json:"ranking_criteria"`
	Recommendations  []string          `json:"recommendations"`
}

// SessionStatus tracks the lifecycle of one background run.
type SessionStatus string

const (
	StatusQueued     SessionStatus = "queued"
	StatusProcessing SessionStatus = "processing"
	StatusCompleted  SessionStatus = "completed"
	StatusError      SessionStatus = "error"
)

// EvaluationStage wraps the evaluation step, which can fail independently of
// the discussion itself.
type EvaluationStage struct {
	Status    SessionStatus     `json:"status"`
	Result    *EvaluationResult `json:"result,omitempty"`
	Error     string            `json:"error,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
}

// PrioritizationStage wraps the prioritization step.
type PrioritizationStage struct {
	Status    SessionStatus         `json:"status"`
	Result    *PrioritizationResult `json:"result,omitempty"`
	Error     string                `json:"error,omitempty"`
	CreatedAt time.Time             `json:"created_at"`
}

// ProgressEvent is one timestamped entry in a session's event log.
type ProgressEvent struct {
	Timestamp time.Time      `json:"timestamp"`
	EventType string         `json:"event_type"`
	Agent     string         `json:"agent"`
	Data      map[string]any `json:"data"`
}

// Session is the unit of isolation between concurrent runs. It is created on
// submission, mutated only by the background runner, and read-only once the
// status is completed or error.
type Session struct {
	ID             string               `json:"session_id"`
	Status         SessionStatus        `json:"status"`
	Query          string               `json:"query"`
	MaxRounds      int                  `json:"max_rounds"`
	CreatedAt      time.Time            `json:"created_at"`
	CompletedAt    *time.Time           `json:"completed_at,omitempty"`
	Error          string               `json:"error,omitempty"`
	Result         *DiscussionResult    `json:"result,omitempty"`
	Evaluation     *EvaluationStage     `json:"evaluation,omitempty"`
	Prioritization *PrioritizationStage `json:"prioritization,omitempty"`
	Events         []ProgressEvent      `json:"events,omitempty"`
}
