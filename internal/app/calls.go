package app

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/avolkov/chatter/internal/core"
	"github.com/avolkov/chatter/internal/domain"
)

// Synthetic termination reasons surfaced to the still-reachable party.
const (
	ReasonUserOffline      = "user offline"
	ReasonPeerUnreachable  = "peer unreachable"
	ReasonPeerDisconnected = "peer disconnected"
	ReasonRingTimeout      = "ring timeout"
)

// CallManager drives the per-call state machine. It coordinates the
// offer/answer/ICE exchange between exactly two users and never looks at
// the media bytes themselves.
type CallManager struct {
	Registry *Registry

	mu       sync.Mutex
	sessions map[string]*domain.CallSession
}

func NewCallManager(reg *Registry) *CallManager {
	return &CallManager{
		Registry: reg,
		sessions: make(map[string]*domain.CallSession),
	}
}

// HandleRequest creates a session in requested state and forwards the call
// to the target. An offline target gets no session, just a synthetic
// rejection back to the caller.
func (m *CallManager) HandleRequest(from domain.UserID, p core.CallRequestPayload) {
	media, err := domain.ParseMediaKind(p.MediaType)
	if err != nil {
		log.Warn().Str("module", "app.calls").Str("session", p.SessionID).Str("media", p.MediaType).Msg("bad media type, dropping request")
		return
	}
	if !m.Registry.Online(p.ContactID) {
		m.Registry.Send(from, core.CallControlOut{
			Type:      core.TypeCallRejected,
			From:      p.ContactID,
			SessionID: p.SessionID,
			Reason:    ReasonUserOffline,
		})
		log.Info().Str("module", "app.calls").Str("session", p.SessionID).Int64("to", int64(p.ContactID)).Msg("target offline, call rejected")
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.sessions[p.SessionID]; exists {
		// Session ids are caller-generated and must be unique per attempt.
		log.Warn().Str("module", "app.calls").Str("session", p.SessionID).Int64("from", int64(from)).Msg("duplicate session id, protocol violation")
		return
	}
	m.sessions[p.SessionID] = &domain.CallSession{
		ID:        p.SessionID,
		Initiator: from,
		Target:    p.ContactID,
		Media:     media,
		State:     domain.CallRequested,
		CreatedAt: time.Now(),
	}
	m.Registry.Send(p.ContactID, core.CallRequestOut{
		Type:      core.TypeCallRequest,
		From:      from,
		MediaType: media,
		SessionID: p.SessionID,
	})
	log.Info().Str("module", "app.calls").Str("session", p.SessionID).Int64("from", int64(from)).Int64("to", int64(p.ContactID)).Msg("call requested")
}

// HandleAccepted moves requested to accepted and tells the initiator.
// A repeat accept for the same session is ignored.
func (m *CallManager) HandleAccepted(from domain.UserID, p core.CallControlPayload) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sess, ok := m.sessions[p.SessionID]
	if !ok || from != sess.Target {
		log.Warn().Str("module", "app.calls").Str("session", p.SessionID).Int64("from", int64(from)).Msg("accept for unknown or foreign session")
		return
	}
	if sess.State != domain.CallRequested {
		log.Info().Str("module", "app.calls").Str("session", p.SessionID).Str("state", sess.State.String()).Msg("accept ignored in current state")
		return
	}
	sess.State = domain.CallAccepted
	m.Registry.Send(sess.Initiator, core.CallControlOut{
		Type:      core.TypeCallAccepted,
		From:      from,
		SessionID: p.SessionID,
	})
	log.Info().Str("module", "app.calls").Str("session", p.SessionID).Msg("call accepted")
}

// HandleRejected forwards the decline to the initiator and destroys the session.
func (m *CallManager) HandleRejected(from domain.UserID, p core.CallControlPayload) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sess, ok := m.sessions[p.SessionID]
	if !ok || !sess.Has(from) {
		log.Warn().Str("module", "app.calls").Str("session", p.SessionID).Int64("from", int64(from)).Msg("reject for unknown or foreign session")
		return
	}
	if sess.State != domain.CallRequested && sess.State != domain.CallAccepted {
		log.Info().Str("module", "app.calls").Str("session", p.SessionID).Str("state", sess.State.String()).Msg("reject ignored in current state")
		return
	}
	sess.State = domain.CallDeclined
	delete(m.sessions, p.SessionID)
	m.Registry.Send(sess.Peer(from), core.CallControlOut{
		Type:      core.TypeCallRejected,
		From:      from,
		SessionID: p.SessionID,
		Reason:    p.Reason,
	})
	log.Info().Str("module", "app.calls").Str("session", p.SessionID).Str("reason", p.Reason).Msg("call rejected")
}

// HandleSignal relays a validated offer/answer/ice-candidate payload
// verbatim. The SDP/ICE content is opaque; only the routing header is read.
// inner must be the raw inner payload so forwarding stays byte-identical.
func (m *CallManager) HandleSignal(from domain.UserID, sig core.RTCSignal, inner json.RawMessage) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sess, ok := m.sessions[sig.SessionID]
	if !ok {
		log.Warn().Str("module", "app.calls").Str("session", sig.SessionID).Str("kind", sig.Type).Msg("signal for unknown session, dropped")
		return
	}
	if sig.From != from || !sess.Has(sig.From) || !sess.Has(sig.To) || sig.From == sig.To {
		log.Warn().Str("module", "app.calls").Str("session", sig.SessionID).Int64("from", int64(from)).Msg("signal participant mismatch, dropped")
		return
	}
	if sess.State.Terminal() {
		return
	}

	if !m.Registry.Send(sig.To, core.RTCForward{Type: core.TypeWebRTCSignal, Payload: inner}) {
		sess.State = domain.CallFailed
		delete(m.sessions, sig.SessionID)
		m.Registry.Send(from, core.CallControlOut{
			Type:      core.TypeCallEnded,
			From:      sig.To,
			SessionID: sig.SessionID,
			Reason:    ReasonPeerUnreachable,
		})
		log.Warn().Str("module", "app.calls").Str("session", sig.SessionID).Msg("peer unreachable, call failed")
		return
	}

	// The relayed answer is the point where both sides hold a description
	// and the peer link starts forming.
	if sig.Type == core.RTCAnswer && sess.State == domain.CallAccepted {
		sess.State = domain.CallConnected
		log.Info().Str("module", "app.calls").Str("session", sig.SessionID).Msg("call connected")
	}
}

// HandleEnded is valid from any non-terminal state; it notifies the other
// participant and destroys the session.
func (m *CallManager) HandleEnded(from domain.UserID, p core.CallControlPayload) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sess, ok := m.sessions[p.SessionID]
	if !ok || !sess.Has(from) {
		log.Warn().Str("module", "app.calls").Str("session", p.SessionID).Int64("from", int64(from)).Msg("end for unknown or foreign session")
		return
	}
	sess.State = domain.CallEnded
	delete(m.sessions, p.SessionID)
	m.Registry.Send(sess.Peer(from), core.CallControlOut{
		Type:      core.TypeCallEnded,
		From:      from,
		SessionID: p.SessionID,
		Reason:    p.Reason,
	})
	log.Info().Str("module", "app.calls").Str("session", p.SessionID).Msg("call ended")
}

// HandleDisconnect tears down every non-terminal session uid participates
// in, telling the remaining party exactly once.
func (m *CallManager) HandleDisconnect(uid domain.UserID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, sess := range m.sessions {
		if !sess.Has(uid) {
			continue
		}
		sess.State = domain.CallEnded
		delete(m.sessions, id)
		m.Registry.Send(sess.Peer(uid), core.CallControlOut{
			Type:      core.TypeCallEnded,
			From:      uid,
			SessionID: id,
			Reason:    ReasonPeerDisconnected,
		})
		log.Info().Str("module", "app.calls").Str("session", id).Int64("uid", int64(uid)).Msg("call torn down on disconnect")
	}
}

// ExpireStale ends requested sessions older than maxAge. The wire protocol
// has no ringing timeout of its own; this is an opt-in server policy.
func (m *CallManager) ExpireStale(maxAge time.Duration) {
	cutoff := time.Now().Add(-maxAge)
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, sess := range m.sessions {
		if sess.State != domain.CallRequested || sess.CreatedAt.After(cutoff) {
			continue
		}
		sess.State = domain.CallEnded
		delete(m.sessions, id)
		for _, uid := range []domain.UserID{sess.Initiator, sess.Target} {
			m.Registry.Send(uid, core.CallControlOut{
				Type:      core.TypeCallEnded,
				From:      sess.Peer(uid),
				SessionID: id,
				Reason:    ReasonRingTimeout,
			})
		}
		log.Info().Str("module", "app.calls").Str("session", id).Msg("ringing call expired")
	}
}

// Session returns a copy of the tracked session, primarily for inspection.
func (m *CallManager) Session(id string) (domain.CallSession, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sess, ok := m.sessions[id]
	if !ok {
		return domain.CallSession{}, false
	}
	return *sess, true
}

func (m *CallManager) ActiveSessions() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}
