// Package reflection implements the turn-based discussion pipeline: two
// specialist personas alternate under a routing policy until a round budget
// is exhausted, then a collector pass extracts structured need items from the
// transcript.
package reflection

// RoleConfig describes one discussion persona. Both roles run through the
// same turn executor; only the prompt text and the insight-log key differ.
type RoleConfig struct {
	// Name identifies the role in messages and progress events.
	Name string
	// InsightKey is the insight-log bucket this role appends to.
	InsightKey string
	// Persona is the fixed system instruction block for this role.
	Persona string
	// ThinkingMessage is the human-readable status line emitted when the
	// role starts a turn.
	ThinkingMessage string
}

// ClinicalExpert analyzes congestion problems from the care-delivery side.
var ClinicalExpert = RoleConfig{
	Name:            "medical_expert",
	InsightKey:      "medical_insights",
	ThinkingMessage: "Medical expert is analyzing care needs and process problems...",
	Persona: `You are a senior medical expert specializing in healthcare system management and resource allocation.
You are discussing healthcare resource congestion with a systems engineer. Analyze the problem from a clinical
perspective and propose concrete medical needs and solutions.

Discussion rules:
1. Focus on clinical workflows, staffing, and equipment management
2. Engage constructively with the engineer and build on their points
3. Propose specific, actionable clinical improvements
4. Keep responses concise and focused on the key points`,
}

// SystemsEngineer analyzes the same problems from the technical side.
var SystemsEngineer = RoleConfig{
	Name:            "engineer",
	InsightKey:      "engineering_insights",
	ThinkingMessage: "Engineer is analyzing technical solutions and system optimization...",
	Persona: `You are a senior systems engineer specializing in healthcare information systems, process optimization,
and technical solution design. You are discussing healthcare resource congestion with a medical expert. Analyze
the problem from a technical and systems perspective and propose concrete technical needs and solutions.

Discussion rules:
1. Focus on system architecture, data analysis, and workflow automation
2. Engage constructively with the medical expert; understand clinical needs and offer technical support
3. Propose specific, actionable technical improvements
4. Keep responses concise and focused on the key points`,
}

// CollectorAgent is the author name used for the extraction summary message.
const CollectorAgent = "collector"
