package interfaces

import (
	"context"
	"time"
)

// SessionState models the mailbox session lifecycle.
type SessionState int32

const (
	SessionDisconnected SessionState = iota
	SessionConnecting
	SessionReady
	SessionReconnecting
	SessionStopped
)

func (s SessionState) String() string {
	switch s {
	case SessionDisconnected:
		return "disconnected"
	case SessionConnecting:
		return "connecting"
	case SessionReady:
		return "ready"
	case SessionReconnecting:
		return "reconnecting"
	case SessionStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// MailMessage is a raw message envelope produced by a fetch: the server UID,
// the full RFC 822 source and the server-assigned arrival timestamp.
type MailMessage struct {
	UID          uint32
	Source       []byte
	InternalDate time.Time
}

// ProcessOutcome is what the pipeline reports back per message. A message is
// eligible for mark-as-read once at least one attachment was durably saved,
// regardless of extraction success.
type ProcessOutcome struct {
	MarkEligible bool
	Subject      string
}

// MessageProcessor turns one raw message into domain events.
type MessageProcessor interface {
	ProcessMessage(ctx context.Context, msg MailMessage) (ProcessOutcome, error)
}

// IMAPSession owns the single live connection to the remote mailbox.
type IMAPSession interface {
	Run(ctx context.Context) error
	Stop() error
	State() SessionState
	// SweepBacklog drains all currently-unseen messages under the mailbox
	// lock. Safe to call while the session is running.
	SweepBacklog(ctx context.Context) error
}
