package app

import (
	"encoding/json"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/avolkov/chatter/internal/core"
	"github.com/avolkov/chatter/internal/domain"
)

// Registry maps a user id to its single live transport connection.
// At most one entry per user id; a new registration evicts the old one.
type Registry struct {
	mu    sync.RWMutex
	conns map[domain.UserID]core.SignalConnection
}

func NewRegistry() *Registry {
	return &Registry{
		conns: make(map[domain.UserID]core.SignalConnection),
	}
}

// Register binds conn to uid and returns the previous connection (if any)
// so the caller can close it. Prevents orphaned duplicate sockets for one user.
func (r *Registry) Register(uid domain.UserID, conn core.SignalConnection) core.SignalConnection {
	r.mu.Lock()
	defer r.mu.Unlock()
	prev := r.conns[uid]
	r.conns[uid] = conn
	log.Info().Str("module", "app.registry").Int64("uid", int64(uid)).Bool("evicted", prev != nil).Msg("registered connection")
	return prev
}

// Unregister removes the entry only if conn is still the registered one.
// Guards against a stale disconnect racing a newer reconnect.
func (r *Registry) Unregister(uid domain.UserID, conn core.SignalConnection) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.conns[uid]
	if !ok || cur != conn {
		log.Info().Str("module", "app.registry").Int64("uid", int64(uid)).Msg("stale unregister ignored")
		return false
	}
	delete(r.conns, uid)
	log.Info().Str("module", "app.registry").Int64("uid", int64(uid)).Msg("unregistered connection")
	return true
}

func (r *Registry) Get(uid domain.UserID) (core.SignalConnection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.conns[uid]
	return c, ok
}

func (r *Registry) Online(uid domain.UserID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.conns[uid]
	return ok
}

func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}

// Send serializes v and writes it to uid's connection if one is registered.
// Best-effort, at-most-once: reports whether delivery was attempted.
func (r *Registry) Send(uid domain.UserID, v any) bool {
	b, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Str("module", "app.registry").Msg("send marshal")
		return false
	}
	return r.SendRaw(uid, b)
}

// SendRaw forwards a frame verbatim.
func (r *Registry) SendRaw(uid domain.UserID, data core.Frame) bool {
	conn, ok := r.Get(uid)
	if !ok {
		return false
	}
	if err := conn.TrySend(data); err != nil {
		log.Warn().Err(err).Str("module", "app.registry").Int64("uid", int64(uid)).Msg("send dropped")
		return false
	}
	return true
}
