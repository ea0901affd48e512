package core

import (
	"context"

	"github.com/avolkov/chatter/internal/domain"
)

// Frame is a raw wire payload, one JSON envelope per frame.
type Frame []byte

// SignalConnection abstracts a system messaging transport.
// Owned by the adapter; the adapter must Close() it.
type SignalConnection interface {
	TrySend(Frame) error
	Close()
}

// UserStore is the persistence collaborator. The relay tolerates and logs
// failures from every method without tearing down the connection.
type UserStore interface {
	Contacts(ctx context.Context, uid domain.UserID) ([]*domain.User, error)
	SetOnline(ctx context.Context, uid domain.UserID, online bool) error
	TouchLastSeen(ctx context.Context, uid domain.UserID) error
}
