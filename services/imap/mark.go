package imap

import (
	"context"
	"fmt"
	"strings"

	goimap "github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"
	"github.com/opentracing/opentracing-go"
	"github.com/pkg/errors"

	localerrors "github.com/techmailbox/shipmail/errors"
	"github.com/techmailbox/shipmail/internal/tracing"
)

// flushMarks sets \Seen for the batch after the whole fetch pass completed,
// then closes out still-unseen duplicates by subject. Every step is
// best-effort and time-boxed: a flag failure is reported and the batch
// proceeds, leaving the messages unseen for the next sweep.
func (s *Session) flushMarks(ctx context.Context, c *client.Client, items []markItem) {
	if len(items) == 0 {
		return
	}

	span, _ := opentracing.StartSpanFromContext(ctx, "Session.flushMarks")
	defer span.Finish()
	tracing.TagComponentListener(span)
	span.SetTag("items.count", len(items))

	if s.cfg.MarkSeen {
		uids := make([]uint32, 0, len(items))
		for _, it := range items {
			uids = append(uids, it.uid)
		}
		s.log.Infof("marking \\Seen uid(s)=%s", formatUIDs(uids))
		if err := s.addSeenFlag(c, uids); err != nil {
			tracing.TraceErr(span, err)
			s.log.Errorf("mark \\Seen failed for uid(s)=%s: %v", formatUIDs(uids), err)
			s.notifier.Log("error", fmt.Sprintf("Mark \\Seen failed: %v", err))
		}
	}

	if s.cfg.MarkSeenBySubject {
		s.markSeenBySubject(c, items)
	}
}

// markSeenBySubject groups the batch by subject and flags every other
// still-unseen message with the exact same subject, skipping the batch's own
// UIDs. One search per distinct subject.
func (s *Session) markSeenBySubject(c *client.Client, items []markItem) {
	for subject, ownUIDs := range groupBySubject(items) {
		criteria := goimap.NewSearchCriteria()
		criteria.WithoutFlags = []string{goimap.SeenFlag}
		criteria.Header.Add("Subject", subject)

		c.Timeout = flagsTimeout
		found, err := c.UidSearch(criteria)
		c.Timeout = 0
		if err != nil {
			s.log.Errorf("seen-by-subject search failed for %q: %v", truncateSubject(subject), err)
			continue
		}

		targets := excludeUIDs(found, ownUIDs)
		if len(targets) == 0 {
			s.log.Infof("seen-by-subject: no other unseen with subject %q", truncateSubject(subject))
			continue
		}

		if err := s.addSeenFlag(c, targets); err != nil {
			s.log.Errorf("seen-by-subject mark failed for %q: %v", truncateSubject(subject), err)
			continue
		}
		s.log.Infof("seen-by-subject: marked %d message(s) for subject %q", len(targets), truncateSubject(subject))
	}
}

// addSeenFlag issues a time-boxed UID STORE +FLAGS \Seen.
func (s *Session) addSeenFlag(c *client.Client, uids []uint32) error {
	if len(uids) == 0 {
		return nil
	}
	seqSet := new(goimap.SeqSet)
	seqSet.AddNum(uids...)

	item := goimap.FormatFlagsOp(goimap.AddFlags, true)
	flags := []interface{}{goimap.SeenFlag}

	c.Timeout = flagsTimeout
	err := c.UidStore(seqSet, item, flags, nil)
	c.Timeout = 0
	if err != nil && strings.Contains(err.Error(), "timeout") {
		return errors.Wrapf(localerrors.ErrFlagTimeout, "after %s: %v", flagsTimeout, err)
	}
	return err
}

// groupBySubject buckets the batch's UIDs per trimmed, non-empty subject.
func groupBySubject(items []markItem) map[string][]uint32 {
	bySubject := make(map[string][]uint32)
	for _, it := range items {
		subject := strings.TrimSpace(it.subject)
		if subject == "" {
			continue
		}
		bySubject[subject] = append(bySubject[subject], it.uid)
	}
	return bySubject
}

func excludeUIDs(found, skip []uint32) []uint32 {
	skipSet := make(map[uint32]struct{}, len(skip))
	for _, uid := range skip {
		skipSet[uid] = struct{}{}
	}
	var targets []uint32
	for _, uid := range found {
		if uid == 0 {
			continue
		}
		if _, ok := skipSet[uid]; ok {
			continue
		}
		targets = append(targets, uid)
	}
	return targets
}

func formatUIDs(uids []uint32) string {
	parts := make([]string, 0, len(uids))
	for _, uid := range uids {
		parts = append(parts, fmt.Sprintf("%d", uid))
	}
	return strings.Join(parts, ",")
}

func truncateSubject(subject string) string {
	const max = 120
	if len(subject) <= max {
		return subject
	}
	return subject[:max-1] + "…"
}
