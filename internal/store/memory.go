// Package store provides the in-memory UserStore used when the server runs
// standalone. A real deployment swaps in the persistence layer behind the
// same interface.
package store

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/avolkov/chatter/internal/domain"
)

var ErrUnknownUser = errors.New("unknown user")

type Memory struct {
	mu       sync.RWMutex
	users    map[domain.UserID]*domain.User
	contacts map[domain.UserID]map[domain.UserID]struct{}
}

func NewMemory() *Memory {
	return &Memory{
		users:    make(map[domain.UserID]*domain.User),
		contacts: make(map[domain.UserID]map[domain.UserID]struct{}),
	}
}

// EnsureUser creates the user on first sight, so an authenticate for a
// fresh id never fails against the standalone store.
func (m *Memory) EnsureUser(uid domain.UserID) *domain.User {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ensureLocked(uid)
}

func (m *Memory) ensureLocked(uid domain.UserID) *domain.User {
	if u, ok := m.users[uid]; ok {
		return u
	}
	u, err := domain.NewUser(uid, fmt.Sprintf("user-%d", uid))
	if err != nil {
		// uid was validated upstream; an invalid one here is a programming error.
		log.Error().Err(err).Str("module", "store.memory").Int64("uid", int64(uid)).Msg("ensure user")
		u = &domain.User{ID: uid, Username: fmt.Sprintf("user-%d", uid)}
	}
	m.users[uid] = u
	return u
}

// AddContact links a and b symmetrically, creating either side as needed.
func (m *Memory) AddContact(a, b domain.UserID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ensureLocked(a)
	m.ensureLocked(b)
	if m.contacts[a] == nil {
		m.contacts[a] = make(map[domain.UserID]struct{})
	}
	if m.contacts[b] == nil {
		m.contacts[b] = make(map[domain.UserID]struct{})
	}
	m.contacts[a][b] = struct{}{}
	m.contacts[b][a] = struct{}{}
}

func (m *Memory) Contacts(ctx context.Context, uid domain.UserID) ([]*domain.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if _, ok := m.users[uid]; !ok {
		return nil, fmt.Errorf("contacts of %d: %w", uid, ErrUnknownUser)
	}
	out := make([]*domain.User, 0, len(m.contacts[uid]))
	for cid := range m.contacts[uid] {
		if u, ok := m.users[cid]; ok {
			cp := *u
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *Memory) SetOnline(ctx context.Context, uid domain.UserID, online bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u := m.ensureLocked(uid)
	u.Online = online
	return nil
}

func (m *Memory) TouchLastSeen(ctx context.Context, uid domain.UserID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[uid]
	if !ok {
		return fmt.Errorf("touch last seen of %d: %w", uid, ErrUnknownUser)
	}
	u.LastSeen = time.Now()
	return nil
}

// LastSeen reads the stamp back for the presence REST endpoint.
func (m *Memory) LastSeen(uid domain.UserID) (time.Time, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.users[uid]
	if !ok {
		return time.Time{}, false
	}
	return u.LastSeen, true
}
