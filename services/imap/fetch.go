package imap

import (
	"context"
	"io"
	"sync"

	goimap "github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"
	"github.com/opentracing/opentracing-go"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/techmailbox/shipmail/interfaces"
	"github.com/techmailbox/shipmail/internal/tracing"
)

// markItem is one entry of the shared "messages to mark" accumulator.
type markItem struct {
	uid     uint32
	subject string
}

// SweepBacklog drains every currently-unseen message under the mailbox lock
// and flushes the mark batch once the whole fetch pass has completed.
func (s *Session) SweepBacklog(ctx context.Context) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "Session.SweepBacklog")
	defer span.Finish()
	tracing.TagComponentListener(span)

	c := s.currentClient()
	if c == nil {
		return errors.New("imap session not connected")
	}

	return s.withMailboxLock(func() error {
		criteria := goimap.NewSearchCriteria()
		criteria.WithoutFlags = []string{goimap.SeenFlag}

		uids, err := c.UidSearch(criteria)
		if err != nil {
			tracing.TraceErr(span, err)
			return errors.Wrap(err, "unseen search failed")
		}
		span.SetTag("unseen.count", len(uids))
		if len(uids) == 0 {
			return nil
		}
		s.log.Infof("backlog sweep: %d unseen message(s)", len(uids))

		seqSet := new(goimap.SeqSet)
		seqSet.AddNum(uids...)

		messages, err := s.fetchMessages(c, seqSet)
		if err != nil {
			tracing.TraceErr(span, err)
			return err
		}

		toMark := s.processBatch(ctx, messages)
		s.flushMarks(ctx, c, toMark)
		return nil
	})
}

// fetchNewest handles a new-message trigger: the single newest message is
// addressed as uidNext-1, fetched and processed under the mailbox lock.
func (s *Session) fetchNewest(ctx context.Context, c *client.Client) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "Session.fetchNewest")
	defer span.Finish()
	tracing.TagComponentListener(span)

	return s.withMailboxLock(func() error {
		status, err := c.Status(s.cfg.Folder, []goimap.StatusItem{goimap.StatusMessages, goimap.StatusUidNext})
		if err != nil {
			tracing.TraceErr(span, err)
			return errors.Wrap(err, "mailbox status failed")
		}
		if status.UidNext == 0 {
			return nil
		}
		lastUID := status.UidNext - 1
		span.SetTag("uid", lastUID)

		seqSet := new(goimap.SeqSet)
		seqSet.AddNum(lastUID)

		messages, err := s.fetchMessages(c, seqSet)
		if err != nil {
			tracing.TraceErr(span, err)
			return err
		}

		toMark := s.processBatch(ctx, messages)
		s.flushMarks(ctx, c, toMark)
		return nil
	})
}

// fetchMessages pulls UID, internal date and the full unparsed source for
// every message in the set. PEEK keeps the fetch itself from setting \Seen.
func (s *Session) fetchMessages(c *client.Client, seqSet *goimap.SeqSet) ([]interfaces.MailMessage, error) {
	section := &goimap.BodySectionName{Peek: true}
	items := []goimap.FetchItem{goimap.FetchUid, goimap.FetchInternalDate, section.FetchItem()}

	ch := make(chan *goimap.Message, 10)
	done := make(chan error, 1)
	go func() {
		done <- c.UidFetch(seqSet, items, ch)
	}()

	var result []interfaces.MailMessage
	for msg := range ch {
		body := msg.GetBody(section)
		if body == nil {
			s.log.Warnf("message uid=%d has no body section", msg.Uid)
			continue
		}
		source, err := io.ReadAll(body)
		if err != nil {
			s.log.Errorf("failed to read message uid=%d: %v", msg.Uid, err)
			continue
		}
		result = append(result, interfaces.MailMessage{
			UID:          msg.Uid,
			Source:       source,
			InternalDate: msg.InternalDate,
		})
	}

	if err := <-done; err != nil {
		return nil, errors.Wrap(err, "uid fetch failed")
	}
	return result, nil
}

// processBatch runs the pipeline over every fetched message in parallel.
// Messages share no state beyond the append-only mark accumulator; a failed
// message is logged and excluded from marking so it stays unseen for the next
// sweep.
func (s *Session) processBatch(ctx context.Context, messages []interfaces.MailMessage) []markItem {
	if len(messages) == 0 {
		return nil
	}

	var (
		mu     sync.Mutex
		toMark []markItem
	)

	g, gctx := errgroup.WithContext(ctx)
	for _, msg := range messages {
		msg := msg
		g.Go(func() error {
			outcome, err := s.processor.ProcessMessage(gctx, msg)
			if err != nil {
				s.log.Errorf("message uid=%d processing failed: %v", msg.UID, err)
				return nil
			}
			if outcome.MarkEligible && (s.cfg.MarkSeen || (s.cfg.MarkSeenBySubject && outcome.Subject != "")) {
				mu.Lock()
				toMark = append(toMark, markItem{uid: msg.UID, subject: outcome.Subject})
				mu.Unlock()
			}
			return nil
		})
	}
	// Workers never return errors, Wait only synchronizes.
	_ = g.Wait()

	return toMark
}

func (s *Session) currentClient() *client.Client {
	s.clientMu.Lock()
	defer s.clientMu.Unlock()
	return s.client
}
