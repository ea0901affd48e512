package app

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/avolkov/chatter/internal/core"
	"github.com/avolkov/chatter/internal/domain"
)

// fakeConn captures every frame a component tries to deliver.
type fakeConn struct {
	mu     sync.Mutex
	frames []core.Frame
	closed bool
	reject bool
	onSend func(core.Frame)
}

func (c *fakeConn) TrySend(f core.Frame) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return errors.New("connection closed")
	}
	if c.reject {
		c.mu.Unlock()
		return errors.New("backpressure")
	}
	cp := make(core.Frame, len(f))
	copy(cp, f)
	c.frames = append(c.frames, cp)
	hook := c.onSend
	c.mu.Unlock()
	if hook != nil {
		hook(cp)
	}
	return nil
}

func (c *fakeConn) Close() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
}

func (c *fakeConn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *fakeConn) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.frames)
}

func (c *fakeConn) types(t *testing.T) []string {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.frames))
	for _, f := range c.frames {
		typ, err := core.PeekType(f)
		require.NoError(t, err)
		out = append(out, typ)
	}
	return out
}

func (c *fakeConn) decode(t *testing.T, i int, v any) {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	require.Less(t, i, len(c.frames))
	require.NoError(t, json.Unmarshal(c.frames[i], v))
}

func (c *fakeConn) last(t *testing.T, v any) {
	t.Helper()
	c.mu.Lock()
	n := len(c.frames)
	c.mu.Unlock()
	require.NotZero(t, n)
	c.decode(t, n-1, v)
}

// stubStore is a UserStore with injectable failures.
type stubStore struct {
	mu          sync.Mutex
	contacts    map[domain.UserID][]*domain.User
	online      map[domain.UserID]bool
	lastSeen    map[domain.UserID]int
	contactsErr error
	onlineErr   error
	seenErr     error
}

func newStubStore() *stubStore {
	return &stubStore{
		contacts: make(map[domain.UserID][]*domain.User),
		online:   make(map[domain.UserID]bool),
		lastSeen: make(map[domain.UserID]int),
	}
}

func (s *stubStore) Contacts(ctx context.Context, uid domain.UserID) ([]*domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.contactsErr != nil {
		return nil, s.contactsErr
	}
	return s.contacts[uid], nil
}

func (s *stubStore) SetOnline(ctx context.Context, uid domain.UserID, online bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.onlineErr != nil {
		return s.onlineErr
	}
	s.online[uid] = online
	return nil
}

func (s *stubStore) TouchLastSeen(ctx context.Context, uid domain.UserID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.seenErr != nil {
		return s.seenErr
	}
	s.lastSeen[uid]++
	return nil
}

func (s *stubStore) link(a, b domain.UserID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.contacts[a] = append(s.contacts[a], &domain.User{ID: b})
	s.contacts[b] = append(s.contacts[b], &domain.User{ID: a})
}
