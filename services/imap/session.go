// Package imap owns the single live connection to the remote mailbox: the
// connect/reconnect state machine, the backlog sweep, the new-message trigger
// and the deferred mark-as-read step.
package imap

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/emersion/go-imap/client"
	"github.com/opentracing/opentracing-go"
	"github.com/pkg/errors"

	"github.com/techmailbox/shipmail/config"
	localerrors "github.com/techmailbox/shipmail/errors"
	"github.com/techmailbox/shipmail/interfaces"
	"github.com/techmailbox/shipmail/internal/logger"
	"github.com/techmailbox/shipmail/internal/tracing"
)

const (
	// reconnectDelay is fixed: the session retries every 3s forever until
	// stopped, no backoff.
	reconnectDelay = 3 * time.Second

	connectTimeout = 30 * time.Second
	flagsTimeout   = 10 * time.Second
	logoutTimeout  = 5 * time.Second
)

type Session struct {
	cfg       *config.ImapConfig
	processor interfaces.MessageProcessor
	notifier  interfaces.Notifier
	log       logger.Logger

	state atomic.Int32

	clientMu sync.Mutex
	client   *client.Client

	// mailboxMu is the exclusive-access scope: every fetch-then-mark sequence
	// for one trigger runs entirely inside it.
	mailboxMu sync.Mutex

	stopCh   chan struct{}
	stopOnce sync.Once
}

func NewSession(cfg *config.ImapConfig, processor interfaces.MessageProcessor, notifier interfaces.Notifier, log logger.Logger) *Session {
	return &Session{
		cfg:       cfg,
		processor: processor,
		notifier:  notifier,
		log:       log,
		stopCh:    make(chan struct{}),
	}
}

func (s *Session) State() interfaces.SessionState {
	return interfaces.SessionState(s.state.Load())
}

func (s *Session) setState(state interfaces.SessionState) {
	s.state.Store(int32(state))
}

// Stop moves the session to its terminal state and closes the connection.
// In-flight batch processing is allowed to finish.
func (s *Session) Stop() error {
	s.stopOnce.Do(func() {
		s.setState(interfaces.SessionStopped)
		close(s.stopCh)

		s.clientMu.Lock()
		c := s.client
		s.client = nil
		s.clientMu.Unlock()

		s.disconnectClient(c)
	})
	return nil
}

// Run drives the connect/reconnect loop until Stop is called or the context
// is cancelled. A dropped connection is retried after a fixed delay, forever.
func (s *Session) Run(ctx context.Context) error {
	for {
		if s.State() == interfaces.SessionStopped {
			return nil
		}
		s.setState(interfaces.SessionConnecting)

		err := s.runOnce(ctx)
		switch {
		case errors.Is(err, localerrors.ErrSessionStopped):
			return nil
		case ctx.Err() != nil:
			s.setState(interfaces.SessionStopped)
			return ctx.Err()
		case s.State() == interfaces.SessionStopped:
			return nil
		}

		s.setState(interfaces.SessionReconnecting)
		s.log.Errorf("imap connection lost: %v, reconnecting in %s", err, reconnectDelay)
		s.notifier.Log("error", fmt.Sprintf("IMAP connection closed. Reconnecting in %s…", reconnectDelay))

		select {
		case <-time.After(reconnectDelay):
		case <-s.stopCh:
			return nil
		case <-ctx.Done():
			s.setState(interfaces.SessionStopped)
			return ctx.Err()
		}
	}
}

// runOnce performs one full connection lifetime: connect, drain the backlog,
// then serve new-message triggers until the transport drops.
func (s *Session) runOnce(ctx context.Context) error {
	c, err := s.connect(ctx)
	if err != nil {
		return err
	}

	s.clientMu.Lock()
	s.client = c
	s.clientMu.Unlock()

	defer func() {
		s.clientMu.Lock()
		if s.client == c {
			s.client = nil
		}
		s.clientMu.Unlock()
		s.disconnectClient(c)
	}()

	// Buffered so the server can push updates while a fetch is in flight.
	updates := make(chan client.Update, 100)
	c.Updates = updates

	s.setState(interfaces.SessionReady)
	s.log.Infof("imap connected as %s @ %s", s.cfg.Username, s.cfg.Server)
	s.log.Infof("imap ready, markSeen=%t markSeenBySubject=%t", s.cfg.MarkSeen, s.cfg.MarkSeenBySubject)
	s.notifier.Log("info", fmt.Sprintf("IMAP connected as %s @ %s", s.cfg.Username, s.cfg.Server))

	if err := s.SweepBacklog(ctx); err != nil {
		if errors.Is(err, localerrors.ErrSessionStopped) {
			return err
		}
		s.log.Errorf("backlog sweep failed: %v", err)
	}

	// Coalesce mailbox-growth updates into a single pending trigger so a
	// burst of EXISTS responses produces one fetch.
	exists := make(chan struct{}, 1)
	go func() {
		for {
			select {
			case update := <-updates:
				if _, ok := update.(*client.MailboxUpdate); ok {
					select {
					case exists <- struct{}{}:
					default:
					}
				}
			case <-c.LoggedOut():
				return
			case <-s.stopCh:
				return
			}
		}
	}()

	for {
		select {
		case <-s.stopCh:
			return localerrors.ErrSessionStopped
		case <-ctx.Done():
			return ctx.Err()
		case <-c.LoggedOut():
			return errors.New("imap transport closed")
		case <-exists:
			if err := s.fetchNewest(ctx, c); err != nil {
				if isConnectionError(err) {
					return err
				}
				s.log.Errorf("new-message fetch failed: %v", err)
			}
		}
	}
}

func (s *Session) connect(ctx context.Context) (*client.Client, error) {
	span, _ := opentracing.StartSpanFromContext(ctx, "Session.connect")
	defer span.Finish()
	tracing.TagComponentListener(span)
	span.SetTag("server", s.cfg.Server)
	span.SetTag("port", s.cfg.Port)

	serverAddr := fmt.Sprintf("%s:%d", s.cfg.Server, s.cfg.Port)
	dialer := &net.Dialer{
		Timeout:   connectTimeout,
		KeepAlive: 30 * time.Second,
	}

	var c *client.Client
	var err error
	if s.cfg.Security == "tls" {
		tlsConfig := &tls.Config{ServerName: s.cfg.Server}
		c, err = client.DialWithDialerTLS(dialer, serverAddr, tlsConfig)
	} else {
		c, err = client.DialWithDialer(dialer, serverAddr)
	}
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, errors.Wrapf(err, "failed to connect to %s", serverAddr)
	}

	c.Timeout = connectTimeout
	if err := c.Login(s.cfg.Username, s.cfg.Password); err != nil {
		c.Logout()
		tracing.TraceErr(span, err)
		return nil, errors.Wrapf(err, "failed to login as %s", s.cfg.Username)
	}

	if _, err := c.Select(s.cfg.Folder, false); err != nil {
		c.Logout()
		tracing.TraceErr(span, err)
		return nil, errors.Wrapf(err, "failed to select folder %s", s.cfg.Folder)
	}

	// No timeout for normal operations; flag ops set their own.
	c.Timeout = 0
	return c, nil
}

// disconnectClient logs out with a hard timeout so a dead transport cannot
// hang shutdown.
func (s *Session) disconnectClient(c *client.Client) {
	if c == nil {
		return
	}

	c.Timeout = logoutTimeout
	done := make(chan error, 1)
	go func() {
		done <- c.Logout()
	}()

	select {
	case err := <-done:
		if err != nil {
			s.log.Warnf("imap logout failed: %v", err)
		}
	case <-time.After(logoutTimeout):
		s.log.Warnf("imap logout timed out")
	}
}

// withMailboxLock runs fn inside the exclusive-access scope. Concurrent
// triggers serialize here so a new-message trigger cannot fetch mid-mark.
func (s *Session) withMailboxLock(fn func() error) error {
	s.mailboxMu.Lock()
	defer s.mailboxMu.Unlock()
	return fn()
}

func isConnectionError(err error) bool {
	if err == nil {
		return false
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	msg := err.Error()
	for _, marker := range []string{
		"connection closed",
		"connection reset",
		"broken pipe",
		"use of closed network connection",
		"i/o timeout",
		"EOF",
	} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

var _ interfaces.IMAPSession = (*Session)(nil)
