package core

import (
	"encoding/json"

	"github.com/avolkov/chatter/internal/domain"
)

// Envelope type discriminators. One JSON object per frame, tagged by "type".
const (
	TypeAuthenticate = "authenticate"
	TypeTyping       = "typing"
	TypeTypingStop   = "typing_stop"
	TypeCallRequest  = "call-request"
	TypeCallAccepted = "call-accepted"
	TypeCallRejected = "call-rejected"
	TypeCallEnded    = "call-ended"
	TypeWebRTCSignal = "webrtc-signal"

	// Same-time notification hints for the REST layer's CRUD; the relay
	// forwards them without validating against persisted message state.
	TypeAddReaction     = "add_reaction"
	TypeReactionRemoved = "message_reaction_removed"
	TypeEditMessage     = "edit_message"
	TypeDeleteMessage   = "delete_message"

	// Server to client only.
	TypeStatusUpdate = "status_update"
	TypeMessagesRead = "messages_read"
)

// Inner discriminators of a webrtc-signal payload.
const (
	RTCOffer        = "offer"
	RTCAnswer       = "answer"
	RTCICECandidate = "ice-candidate"
)

// PeekType extracts the envelope discriminator without touching the payload.
func PeekType(data Frame) (string, error) {
	var env struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		return "", err
	}
	return env.Type, nil
}

type AuthPayload struct {
	UserID domain.UserID `json:"userId"`
}

type TypingPayload struct {
	ConversationID int64         `json:"conversationId"`
	ReceiverID     domain.UserID `json:"receiverId"`
}

type CallRequestPayload struct {
	ContactID domain.UserID `json:"contactId"`
	MediaType string        `json:"mediaType"`
	SessionID string        `json:"sessionId"`
}

// CallControlPayload covers call-accepted, call-rejected and call-ended.
type CallControlPayload struct {
	ContactID domain.UserID `json:"contactId"`
	SessionID string        `json:"sessionId"`
	Reason    string        `json:"reason,omitempty"`
}

// RTCEnvelope wraps the inner signal so it can be forwarded verbatim.
type RTCEnvelope struct {
	Payload json.RawMessage `json:"payload"`
}

// RTCSignal is the routed header of the inner payload. The trailing Payload
// (SDP or ICE structure) stays opaque to the relay.
type RTCSignal struct {
	Type      string          `json:"type"`
	From      domain.UserID   `json:"from"`
	To        domain.UserID   `json:"to"`
	SessionID string          `json:"sessionId"`
	Payload   json.RawMessage `json:"payload"`
}

// HintPayload is the routing header shared by the reaction/edit/delete hints.
type HintPayload struct {
	ConversationID int64         `json:"conversationId"`
	ReceiverID     domain.UserID `json:"receiverId"`
}

// StatusUpdate tells a contact that uid went online or offline.
type StatusUpdate struct {
	Type     string        `json:"type"`
	UserID   domain.UserID `json:"userId"`
	IsOnline bool          `json:"isOnline"`
}

func NewStatusUpdate(uid domain.UserID, online bool) StatusUpdate {
	return StatusUpdate{Type: TypeStatusUpdate, UserID: uid, IsOnline: online}
}

// MessagesRead is emitted by the REST layer's read-receipt side effect.
type MessagesRead struct {
	Type           string        `json:"type"`
	ConversationID int64         `json:"conversationId"`
	ReadBy         domain.UserID `json:"readBy"`
}

func NewMessagesRead(conversationID int64, readBy domain.UserID) MessagesRead {
	return MessagesRead{Type: TypeMessagesRead, ConversationID: conversationID, ReadBy: readBy}
}

// CallRequestOut is the server-forwarded form of a call-request; From is the
// authenticated sender, never the client-supplied field.
type CallRequestOut struct {
	Type      string           `json:"type"`
	From      domain.UserID    `json:"from"`
	MediaType domain.MediaKind `json:"mediaType"`
	SessionID string           `json:"sessionId"`
}

// CallControlOut is the server-forwarded form of accept/reject/end.
type CallControlOut struct {
	Type      string        `json:"type"`
	From      domain.UserID `json:"from"`
	SessionID string        `json:"sessionId"`
	Reason    string        `json:"reason,omitempty"`
}

// RTCForward re-wraps a validated inner signal for delivery.
type RTCForward struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}
