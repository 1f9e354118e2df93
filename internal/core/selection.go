package core

// SelectionMode records which selector tier produced a decision.
type SelectionMode string

const (
	// SelectionModeLabel means an issue label matched a definition trigger.
	SelectionModeLabel SelectionMode = "label"
	// SelectionModeDirect means the runner picked a definition by name.
	SelectionModeDirect SelectionMode = "direct"
	// SelectionModeClassification means the fallback classification tier ran.
	SelectionModeClassification SelectionMode = "classification"
)

// WorkflowSelectionDecision is the selector's output. It is returned per
// call and never persisted.
type WorkflowSelectionDecision struct {
	ChosenName     string         `json:"chosen_name"`
	Procedure      *Procedure     `json:"-"`
	Mode           SelectionMode  `json:"mode"`
	Classification Classification `json:"classification,omitempty"`
	// Reasoning is a human-readable audit trail of how the decision was
	// reached, including any runner failures recovered along the way.
	Reasoning string `json:"reasoning"`
}
