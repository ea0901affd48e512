package app

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/avolkov/chatter/internal/core"
	"github.com/avolkov/chatter/internal/domain"
)

// Presence broadcasts online/offline transitions to the affected user's
// contacts. Everything here is best-effort: store failures are logged and
// never block connection setup or teardown.
type Presence struct {
	Registry *Registry
	Store    core.UserStore
}

func NewPresence(reg *Registry, store core.UserStore) *Presence {
	return &Presence{Registry: reg, Store: store}
}

// HandleOnline runs after uid's connection has been registered.
// Idempotent from the contacts' point of view, so a reconnect may re-trigger it.
func (p *Presence) HandleOnline(ctx context.Context, uid domain.UserID) {
	if err := p.Store.SetOnline(ctx, uid, true); err != nil {
		log.Error().Err(err).Str("module", "app.presence").Int64("uid", int64(uid)).Msg("set online")
	}
	p.notifyContacts(ctx, uid, true)
}

// HandleOffline runs after uid's connection has been removed from the
// registry, so a contact reacting to the event never resolves a stale entry.
func (p *Presence) HandleOffline(ctx context.Context, uid domain.UserID) {
	if err := p.Store.SetOnline(ctx, uid, false); err != nil {
		log.Error().Err(err).Str("module", "app.presence").Int64("uid", int64(uid)).Msg("set offline")
	}
	if err := p.Store.TouchLastSeen(ctx, uid); err != nil {
		log.Error().Err(err).Str("module", "app.presence").Int64("uid", int64(uid)).Msg("touch last seen")
	}
	p.notifyContacts(ctx, uid, false)
}

// notifyContacts fans out one status_update per online contact. O(contacts)
// per transition; fine for a single in-memory process.
func (p *Presence) notifyContacts(ctx context.Context, uid domain.UserID, online bool) {
	contacts, err := p.Store.Contacts(ctx, uid)
	if err != nil {
		log.Error().Err(err).Str("module", "app.presence").Int64("uid", int64(uid)).Msg("contacts lookup failed, skipping fan-out")
		return
	}
	env := core.NewStatusUpdate(uid, online)
	sent := 0
	for _, c := range contacts {
		if p.Registry.Send(c.ID, env) {
			sent++
		}
	}
	log.Debug().Str("module", "app.presence").Int64("uid", int64(uid)).Bool("online", online).Int("notified", sent).Msg("presence fan-out")
}
