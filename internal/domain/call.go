package domain

import (
	"errors"
	"time"
)

// MediaKind is the media requested for a call.
type MediaKind string

const (
	MediaAudio MediaKind = "audio"
	MediaVideo MediaKind = "video"
	MediaBoth  MediaKind = "both"
)

var ErrBadMediaKind = errors.New("bad media kind")

func ParseMediaKind(s string) (MediaKind, error) {
	switch MediaKind(s) {
	case MediaAudio, MediaVideo, MediaBoth:
		return MediaKind(s), nil
	}
	return "", ErrBadMediaKind
}

// CallState is the lifecycle phase of one call attempt.
type CallState int

const (
	CallRequested CallState = iota
	CallAccepted
	CallConnected
	CallDeclined
	CallEnded
	CallFailed
)

func (s CallState) String() string {
	switch s {
	case CallRequested:
		return "requested"
	case CallAccepted:
		return "accepted"
	case CallConnected:
		return "connected"
	case CallDeclined:
		return "declined"
	case CallEnded:
		return "ended"
	case CallFailed:
		return "failed"
	}
	return "unknown"
}

// Terminal states destroy the session entry.
func (s CallState) Terminal() bool {
	return s == CallDeclined || s == CallEnded || s == CallFailed
}

// CallSession is the server-tracked state for one call attempt between
// exactly two users. The session id is generated by the initiator and
// must be unique per attempt.
type CallSession struct {
	ID        string
	Initiator UserID
	Target    UserID
	Media     MediaKind
	State     CallState
	CreatedAt time.Time
}

// Peer returns the other participant, or 0 if uid is not part of the call.
func (c *CallSession) Peer(uid UserID) UserID {
	switch uid {
	case c.Initiator:
		return c.Target
	case c.Target:
		return c.Initiator
	}
	return 0
}

func (c *CallSession) Has(uid UserID) bool {
	return uid == c.Initiator || uid == c.Target
}
