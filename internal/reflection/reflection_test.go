package reflection

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medreflect/medreflect/internal/llm"
	"github.com/medreflect/medreflect/internal/models"
)

// fakeGateway replays scripted responses in order and counts calls.
type fakeGateway struct {
	mu        sync.Mutex
	responses []string
	err       error
	failAfter int // fail once this many calls have succeeded; 0 = use err for every call
	calls     int
	systems   []string
}

func (f *fakeGateway) Generate(_ context.Context, system string, _ []models.Message) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.systems = append(f.systems, system)
	if f.err != nil && (f.failAfter == 0 || f.calls > f.failAfter) {
		return "", f.err
	}
	if len(f.responses) == 0 {
		return "", errors.New("script exhausted")
	}
	resp := f.responses[0]
	f.responses = f.responses[1:]
	return resp, nil
}

func (f *fakeGateway) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

const needsJSON = `{"needs": [
	{"need": "Real-time bed occupancy dashboard", "summary": "Visibility into ward capacity",
	 "medical_insights": "Discharge planning starts too late", "tech_insights": "Stream HL7 feeds into a dashboard",
	 "strategy": "Pilot on two wards"},
	{"need": "Triage decision support", "summary": "Standardize triage decisions",
	 "medical_insights": "Triage varies by nurse experience", "tech_insights": "Rule-based scoring at intake",
	 "strategy": "Shadow mode first"}
]}`

func newTestController(gw llm.Gateway, router Router) *Controller {
	executor := NewTurnExecutor(gw, nil)
	extractor := NewExtractor(gw, nil, nil)
	if router == nil {
		router = &AlternatingRouter{RoleA: ClinicalExpert, RoleB: SystemsEngineer}
	}
	return NewController(ClinicalExpert, SystemsEngineer, executor, router, extractor, nil)
}

func TestAlternatingRouterTakesTurns(t *testing.T) {
	r := &AlternatingRouter{RoleA: ClinicalExpert, RoleB: SystemsEngineer}
	state := NewDiscussionState("query", 4)

	// Fresh state: the floor belongs to role A.
	assert.Equal(t, ClinicalExpert.Name, r.Next(context.Background(), state))

	state.AppendTurn(ClinicalExpert, "clinical view")
	assert.Equal(t, SystemsEngineer.Name, r.Next(context.Background(), state))

	state.AppendTurn(SystemsEngineer, "technical view")
	assert.Equal(t, ClinicalExpert.Name, r.Next(context.Background(), state))
}

func TestAlternatingRouterHardStop(t *testing.T) {
	r := &AlternatingRouter{RoleA: ClinicalExpert, RoleB: SystemsEngineer}
	state := NewDiscussionState("query", 2)
	state.AppendTurn(ClinicalExpert, "one")
	state.AppendTurn(SystemsEngineer, "two")

	assert.Equal(t, StepExtract, r.Next(context.Background(), state))
}

func TestClassifierRouterMapsLabelsToOppositeRole(t *testing.T) {
	cases := []struct {
		label string
		want  string
	}{
		{"medical", SystemsEngineer.Name},
		{"Medical.", SystemsEngineer.Name},
		{"engineering", ClinicalExpert.Name},
		{" ENGINEERING\n", ClinicalExpert.Name},
	}
	for _, tc := range cases {
		t.Run(tc.label, func(t *testing.T) {
			gw := &fakeGateway{responses: []string{tc.label}}
			r := &ClassifierRouter{Gateway: gw, RoleA: ClinicalExpert, RoleB: SystemsEngineer}

			state := NewDiscussionState("query", 5)
			state.AppendTurn(ClinicalExpert, "some turn")

			assert.Equal(t, tc.want, r.Next(context.Background(), state))
		})
	}
}

func TestClassifierRouterFallsBackOnFailure(t *testing.T) {
	gw := &fakeGateway{err: errors.New("unreachable")}
	r := &ClassifierRouter{Gateway: gw, RoleA: ClinicalExpert, RoleB: SystemsEngineer}

	state := NewDiscussionState("query", 5)
	state.AppendTurn(ClinicalExpert, "turn one")

	// Round 1 is odd, so parity fallback hands the floor to the clinical role.
	assert.Equal(t, ClinicalExpert.Name, r.Next(context.Background(), state))

	state.AppendTurn(ClinicalExpert, "turn two")
	assert.Equal(t, SystemsEngineer.Name, r.Next(context.Background(), state))
}

func TestClassifierRouterFallsBackOnGarbageLabel(t *testing.T) {
	gw := &fakeGateway{responses: []string{"both, honestly"}}
	r := &ClassifierRouter{Gateway: gw, RoleA: ClinicalExpert, RoleB: SystemsEngineer}

	state := NewDiscussionState("query", 5)
	state.AppendTurn(SystemsEngineer, "turn")

	assert.Equal(t, ClinicalExpert.Name, r.Next(context.Background(), state))
}

func TestClassifierRouterHardStopSkipsGateway(t *testing.T) {
	gw := &fakeGateway{responses: []string{"medical"}}
	r := &ClassifierRouter{Gateway: gw, RoleA: ClinicalExpert, RoleB: SystemsEngineer}

	state := NewDiscussionState("query", 1)
	state.AppendTurn(ClinicalExpert, "turn")

	assert.Equal(t, StepExtract, r.Next(context.Background(), state))
	assert.Equal(t, 0, gw.callCount(), "round budget exhaustion must not cost a classifier call")
}

func TestControllerRunsBoundedDiscussion(t *testing.T) {
	gw := &fakeGateway{responses: []string{"clinical view", "technical view", needsJSON}}
	c := newTestController(gw, nil)

	result, err := c.Run(context.Background(), "why is the emergency department congested?", 2)
	require.NoError(t, err)

	assert.Equal(t, "why is the emergency department congested?", result.OriginalQuery)
	assert.Equal(t, 2, result.DiscussionRounds)
	assert.Len(t, result.InsightLog[ClinicalExpert.InsightKey], 1)
	assert.Len(t, result.InsightLog[SystemsEngineer.InsightKey], 1)

	// Transcript: human query, two agent turns, one collector summary.
	require.Len(t, result.FullConversation, 4)
	assert.NotEmpty(t, result.FinalSummary)

	require.Len(t, result.Needs.Needs, 2)
	assert.Equal(t, 1, result.Needs.Needs[0].Index)
	assert.Equal(t, 2, result.Needs.Needs[1].Index)
	assert.Equal(t, "Real-time bed occupancy dashboard", result.Needs.Needs[0].Title)
}

func TestControllerObserverDoesNotChangeResult(t *testing.T) {
	script := []string{"clinical view", "technical view", needsJSON}

	plain, err := newTestController(&fakeGateway{responses: append([]string(nil), script...)}, nil).
		Run(context.Background(), "query", 2)
	require.NoError(t, err)

	var events []EventType
	observed, err := newTestController(&fakeGateway{responses: append([]string(nil), script...)}, nil).
		RunWithObserver(context.Background(), "query", 2, func(et EventType, _ string, _ map[string]any) {
			events = append(events, et)
		})
	require.NoError(t, err)

	assert.Equal(t, plain, observed)
	assert.Equal(t, []EventType{
		EventReflectionStarted,
		EventThinkingStarted, EventThinkingCompleted,
		EventThinkingStarted, EventThinkingCompleted,
		EventCollectingStarted, EventCollectingCompleted,
		EventReflectionCompleted,
	}, events)
}

func TestControllerPanickingObserverDoesNotAbortRun(t *testing.T) {
	gw := &fakeGateway{responses: []string{"clinical view", "technical view", needsJSON}}
	c := newTestController(gw, nil)

	result, err := c.RunWithObserver(context.Background(), "query", 2,
		func(EventType, string, map[string]any) { panic("observer bug") })
	require.NoError(t, err)
	assert.Len(t, result.Needs.Needs, 2)
}

func TestControllerGatewayFailureReturnsPartialResult(t *testing.T) {
	gw := &fakeGateway{
		responses: []string{"clinical view"},
		err:       errors.New("rate limited"),
		failAfter: 1,
	}
	c := newTestController(gw, nil)

	result, err := c.Run(context.Background(), "query", 3)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "turn 2 (engineer)")

	// The partial insight log from the completed turn survives.
	require.NotNil(t, result)
	assert.Len(t, result.InsightLog[ClinicalExpert.InsightKey], 1)
	assert.Equal(t, 1, result.DiscussionRounds)
	assert.Empty(t, result.Needs.Needs)
}

func TestControllerCancelledContextStopsBeforeNextTurn(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	gw := &fakeGateway{responses: []string{"never used"}}
	c := newTestController(gw, nil)

	result, err := c.Run(ctx, "query", 3)
	assert.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, result)
	assert.Equal(t, 0, gw.callCount())
}

func TestExtractorFallsBackToSentinelOnGatewayError(t *testing.T) {
	x := NewExtractor(&fakeGateway{err: errors.New("down")}, nil, nil)
	state := NewDiscussionState("query", 1)
	state.AppendTurn(ClinicalExpert, "turn")

	needs := x.Extract(context.Background(), state)
	require.Len(t, needs.Needs, 1)
	assert.Equal(t, "Extraction failed", needs.Needs[0].Title)
	assert.Equal(t, 1, needs.Needs[0].Index)
}

func TestExtractorFallsBackToSentinelOnUnparseableOutput(t *testing.T) {
	x := NewExtractor(&fakeGateway{responses: []string{"I could not decide on a list."}}, nil, nil)
	state := NewDiscussionState("query", 1)

	needs := x.Extract(context.Background(), state)
	require.Len(t, needs.Needs, 1)
	assert.Equal(t, "Extraction failed", needs.Needs[0].Title)
}

func TestExtractorFallsBackToSentinelOnEmptyList(t *testing.T) {
	x := NewExtractor(&fakeGateway{responses: []string{`{"needs": []}`}}, nil, nil)
	state := NewDiscussionState("query", 1)

	needs := x.Extract(context.Background(), state)
	require.Len(t, needs.Needs, 1)
	assert.Equal(t, "Extraction failed", needs.Needs[0].Title)
}

func TestExtractorParsesFencedOutput(t *testing.T) {
	fenced := "Here is the list:\n```json\n" + needsJSON + "\n```"
	x := NewExtractor(&fakeGateway{responses: []string{fenced}}, nil, nil)
	state := NewDiscussionState("query", 1)
	state.AppendTurn(ClinicalExpert, "turn")

	needs := x.Extract(context.Background(), state)
	require.Len(t, needs.Needs, 2)
	assert.Equal(t, "Triage decision support", needs.Needs[1].Title)
	assert.Equal(t, 2, needs.Needs[1].Index)
}

func TestExecutorSendsPersonaAndAppendsTurn(t *testing.T) {
	gw := &fakeGateway{responses: []string{"a concrete proposal"}}
	e := NewTurnExecutor(gw, nil)
	state := NewDiscussionState("query", 3)

	require.NoError(t, e.Execute(context.Background(), SystemsEngineer, state, nil))

	assert.Equal(t, 1, state.Round)
	assert.Equal(t, []string{"a concrete proposal"}, state.InsightLog[SystemsEngineer.InsightKey])
	last := state.LastMessage()
	require.NotNil(t, last)
	assert.Equal(t, SystemsEngineer.Name, last.Author)
	require.Len(t, gw.systems, 1)
	assert.Equal(t, SystemsEngineer.Persona, gw.systems[0])
}

func TestStateSnapshotIsolation(t *testing.T) {
	state := NewDiscussionState("query", 2)
	state.AppendTurn(ClinicalExpert, "one")

	msgs, logs := state.Snapshot()
	msgs[0].Content = "mutated"
	logs[ClinicalExpert.InsightKey][0] = "mutated"

	assert.Equal(t, "query", state.Messages[0].Content)
	assert.Equal(t, "one", state.InsightLog[ClinicalExpert.InsightKey][0])
}
