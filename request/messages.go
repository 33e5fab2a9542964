package request

import (
	"encoding/json"
	"log/slog"
)

// Action tags a wire message on the request channel.
type Action string

const (
	ActionNew    Action = "request_new"
	ActionVote   Action = "request_vote"
	ActionRemove Action = "request_remove"
	ActionNotify Action = "request_notify"
)

// Removal reasons carried by ActionRemove messages. Processed requests
// use "processed_<type>" built by processedReason.
const (
	ReasonExpired   = "expired"
	ReasonSignedOff = "participant_signed_off"
	ReasonWithdrawn = "withdrawn"
)

// Message is the closed tagged union on the request channel. The new
// notification deliberately carries identifying data only; acceptor and
// vote lists live in the shared store and are fetched on demand.
type Message struct {
	Action       Action `json:"action"`
	Key          string `json:"key"`
	Type         Type   `json:"type,omitempty"`
	ClanTag      string `json:"clanTag,omitempty"`
	TargetClan   string `json:"targetClanTag,omitempty"`
	TargetPlayer string `json:"targetPlayer,omitempty"`
	Message      string `json:"message,omitempty"`
	Voter        string `json:"voter,omitempty"`
	Vote         Vote   `json:"vote,omitempty"`
	Reason       string `json:"reason,omitempty"`
}

// EncodeMessage renders m for the wire.
func EncodeMessage(m Message) (string, error) {
	b, err := json.Marshal(m)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// DecodeMessage parses a wire payload. Unknown actions and messages
// without a key are rejected, not guessed at.
func DecodeMessage(payload string, logger *slog.Logger) (Message, bool) {
	var m Message
	if err := json.Unmarshal([]byte(payload), &m); err != nil {
		if logger != nil {
			logger.Warn("dropping malformed request message", "error", err)
		}
		return Message{}, false
	}

	switch m.Action {
	case ActionNew, ActionVote, ActionRemove, ActionNotify:
	default:
		if logger != nil {
			logger.Warn("dropping request message of unknown action", "action", m.Action)
		}
		return Message{}, false
	}
	if m.Key == "" && m.Action != ActionNotify {
		return Message{}, false
	}
	return m, true
}
