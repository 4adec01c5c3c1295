// Package hitl implements the human-in-the-loop protocol shared by Tool
// WAITING_HITL pauses and HumanNode pauses: a deterministic
// tool-call identity, the pending-interaction record, and response
// validation. Both pause sources are unified behind this one package so the
// runner has a single request/response/resume path regardless of which node
// kind triggered the pause.
package hitl

import "time"

// Option is one selectable choice offered to the human.
type Option struct {
	ID          string
	Label       string
	Description string
}

// Interaction is the pending request for human input attached to a paused
// checkpoint.
type Interaction struct {
	NodeID        string
	Prompt        string
	Options       []Option
	PausedAt      time.Time
	ExpiresAt     *time.Time
	AllowFreeText bool
}

// Response is the human's answer to a pending Interaction.
type Response struct {
	NodeID         string
	SelectedOption string
	Text           string
	Metadata       map[string]string
	Timestamp      time.Time
}

// Valid reports whether r is a legal answer to interaction: either free text
// is allowed and non-empty, or the selected option is one of interaction's
// option ids.
func (r Response) Valid(interaction Interaction) bool {
	if interaction.AllowFreeText && r.Text != "" {
		return true
	}
	for _, opt := range interaction.Options {
		if opt.ID == r.SelectedOption {
			return true
		}
	}
	return false
}
