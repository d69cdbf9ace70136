package protocol

import "encoding/json"

// InitiateRequest starts an action: validate, pay, wait for dice.
type InitiateRequest struct {
	Action string          `json:"action"`
	Team   string          `json:"team"`
	Args   json.RawMessage `json:"args"`
}

// CommitRequest finishes an initiated action with the real-world dice result.
// Throws and Dots are ignored for actions without a dice requirement.
type CommitRequest struct {
	Throws int `json:"throws"`
	Dots   int `json:"dots"`
}

// Notification is a message pushed to a team other than the acting one.
type Notification struct {
	Team string `json:"team"`
	Text string `json:"text"`
}

// ActionResponse is the envelope for initiate, commit and revert results.
// Success reports whether the request was handled; Expected whether the
// action did what the org asked for (an insufficient dice throw is handled,
// but not expected).
type ActionResponse struct {
	Success       bool           `json:"success"`
	Expected      bool           `json:"expected"`
	ActionID      string         `json:"action_id,omitempty"`
	Message       string         `json:"message,omitempty"`
	Notifications []Notification `json:"notifications,omitempty"`
	Stickers      []string       `json:"stickers,omitempty"`
	Withdrawals   []string       `json:"withdrawals,omitempty"`
	Code          string         `json:"code,omitempty"`
}

// StateResponse wraps the serialized game state with its revision id.
type StateResponse struct {
	Revision int64           `json:"revision"`
	State    json.RawMessage `json:"state"`
}

// HELLO (client -> server): a dashboard subscribing to a team's stream.
type HelloMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Team            string `json:"team,omitempty"`
}

// WELCOME (server -> client)
type WelcomeMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Team            string `json:"team,omitempty"`
	EntitiesDigest  string `json:"entities_digest"`
	Turn            int    `json:"turn"`
}

// NOTIFICATION (server -> client)
type NotificationMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Team            string `json:"team"`
	Text            string `json:"text"`
}

// TURN (server -> client): broadcast when the turn counter advances.
type TurnMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Turn            int    `json:"turn"`
}
