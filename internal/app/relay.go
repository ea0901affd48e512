package app

import (
	"context"
	"encoding/json"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/avolkov/chatter/internal/core"
	"github.com/avolkov/chatter/internal/domain"
)

// Session is the per-connection state the relay keeps: the transport
// endpoint and the user id bound to it by authenticate. Zero means
// unauthenticated. Only the connection's read loop mutates it.
type Session struct {
	Conn core.SignalConnection
	uid  domain.UserID
}

func NewSession(conn core.SignalConnection) *Session {
	return &Session{Conn: conn}
}

func (s *Session) UserID() domain.UserID { return s.uid }
func (s *Session) Authenticated() bool   { return s.uid != 0 }

// Relay decodes inbound envelopes and routes them: presence transitions,
// call signaling to the CallManager, everything else forwarded verbatim to
// the addressed peer. It never persists an envelope.
type Relay struct {
	Registry *Registry
	Presence *Presence
	Calls    *CallManager
}

func NewRelay(reg *Registry, presence *Presence, calls *CallManager) *Relay {
	return &Relay{Registry: reg, Presence: presence, Calls: calls}
}

// OnFrame handles one inbound frame. A malformed frame is discarded and the
// connection stays open; one bad frame must not kill a healthy session.
func (r *Relay) OnFrame(ctx context.Context, s *Session, data core.Frame) {
	typ, err := core.PeekType(data)
	if err != nil {
		log.Warn().Err(err).Str("module", "app.relay").Msg("bad frame, dropped")
		return
	}

	if typ == core.TypeAuthenticate {
		r.handleAuthenticate(ctx, s, data)
		return
	}
	if !s.Authenticated() {
		log.Warn().Str("module", "app.relay").Str("type", typ).Msg("frame before authenticate, dropped")
		return
	}

	switch typ {
	case core.TypeTyping, core.TypeTypingStop:
		r.forwardTyping(s, data)
	case core.TypeCallRequest:
		var p core.CallRequestPayload
		if err := json.Unmarshal(data, &p); err != nil || p.SessionID == "" {
			log.Warn().Err(err).Str("module", "app.relay").Msg("bad call-request payload")
			return
		}
		r.Calls.HandleRequest(s.UserID(), p)
	case core.TypeCallAccepted, core.TypeCallRejected, core.TypeCallEnded:
		var p core.CallControlPayload
		if err := json.Unmarshal(data, &p); err != nil || p.SessionID == "" {
			log.Warn().Err(err).Str("module", "app.relay").Str("type", typ).Msg("bad call control payload")
			return
		}
		switch typ {
		case core.TypeCallAccepted:
			r.Calls.HandleAccepted(s.UserID(), p)
		case core.TypeCallRejected:
			r.Calls.HandleRejected(s.UserID(), p)
		case core.TypeCallEnded:
			r.Calls.HandleEnded(s.UserID(), p)
		}
	case core.TypeWebRTCSignal:
		r.handleWebRTC(s, data)
	case core.TypeAddReaction, core.TypeReactionRemoved, core.TypeEditMessage, core.TypeDeleteMessage:
		r.forwardHint(s, typ, data)
	default:
		log.Warn().Str("module", "app.relay").Str("type", typ).Msg("unknown envelope type, dropped")
	}
}

// handleAuthenticate binds the connection to the user id from a prior
// out-of-band auth handshake. A repeat authenticate (reconnect semantics)
// replaces any stale entry and re-runs the online fan-out, which is
// idempotent for the contacts.
func (r *Relay) handleAuthenticate(ctx context.Context, s *Session, data core.Frame) {
	var p core.AuthPayload
	if err := json.Unmarshal(data, &p); err != nil || p.UserID <= 0 {
		log.Warn().Err(err).Str("module", "app.relay").Msg("bad authenticate payload")
		return
	}
	s.uid = p.UserID
	if prev := r.Registry.Register(p.UserID, s.Conn); prev != nil && prev != s.Conn {
		prev.Close()
	}
	log.Info().Str("module", "app.relay").Int64("uid", int64(p.UserID)).Msg("connection authenticated")
	r.Presence.HandleOnline(ctx, p.UserID)
}

// OnDisconnect runs when the transport closes. The registry entry is removed
// synchronously before any session or presence side effect, and everything
// is skipped when a newer connection already replaced this one.
func (r *Relay) OnDisconnect(ctx context.Context, s *Session) {
	if !s.Authenticated() {
		return
	}
	uid := s.UserID()
	if !r.Registry.Unregister(uid, s.Conn) {
		return
	}
	r.Calls.HandleDisconnect(uid)
	r.Presence.HandleOffline(ctx, uid)
}

// forwardTyping relays a typing hint verbatim. No state, no delivery
// guarantee; an offline receiver simply misses it.
func (r *Relay) forwardTyping(s *Session, data core.Frame) {
	var p core.TypingPayload
	if err := json.Unmarshal(data, &p); err != nil || p.ReceiverID <= 0 {
		log.Warn().Err(err).Str("module", "app.relay").Msg("bad typing payload")
		return
	}
	r.Registry.SendRaw(p.ReceiverID, data)
}

// forwardHint relays a reaction/edit/delete notification to the
// conversation's other participant. The REST response is authoritative;
// this is only a same-time hint.
func (r *Relay) forwardHint(s *Session, typ string, data core.Frame) {
	var p core.HintPayload
	if err := json.Unmarshal(data, &p); err != nil || p.ReceiverID <= 0 {
		log.Warn().Err(err).Str("module", "app.relay").Str("type", typ).Msg("bad hint payload")
		return
	}
	r.Registry.SendRaw(p.ReceiverID, data)
}

// handleWebRTC shape-checks the inner payload, then hands it to the call
// manager for session and participant validation. The SDP/ICE content is
// never interpreted, only its envelope structure.
func (r *Relay) handleWebRTC(s *Session, data core.Frame) {
	var env core.RTCEnvelope
	if err := json.Unmarshal(data, &env); err != nil || len(env.Payload) == 0 {
		log.Warn().Err(err).Str("module", "app.relay").Msg("bad webrtc-signal envelope")
		return
	}
	var sig core.RTCSignal
	if err := json.Unmarshal(env.Payload, &sig); err != nil || sig.SessionID == "" {
		log.Warn().Err(err).Str("module", "app.relay").Msg("bad webrtc-signal header")
		return
	}
	switch sig.Type {
	case core.RTCOffer, core.RTCAnswer:
		var sd webrtc.SessionDescription
		if err := json.Unmarshal(sig.Payload, &sd); err != nil || sd.SDP == "" {
			log.Warn().Err(err).Str("module", "app.relay").Str("kind", sig.Type).Msg("malformed session description")
			return
		}
	case core.RTCICECandidate:
		var ci webrtc.ICECandidateInit
		if err := json.Unmarshal(sig.Payload, &ci); err != nil {
			log.Warn().Err(err).Str("module", "app.relay").Msg("malformed ice candidate")
			return
		}
	default:
		log.Warn().Str("module", "app.relay").Str("kind", sig.Type).Msg("unknown webrtc-signal kind, dropped")
		return
	}
	r.Calls.HandleSignal(s.UserID(), sig, env.Payload)
}
