// Package pipeline turns raw mail messages into domain events: it parses MIME,
// saves PDF attachments and runs the field extractors per document kind.
package pipeline

import (
	"bytes"
	"context"
	"regexp"
	"strings"
	"time"

	"github.com/jhillyerd/enmime"
	"github.com/opentracing/opentracing-go"
	"github.com/pkg/errors"

	"github.com/techmailbox/shipmail/dto"
	"github.com/techmailbox/shipmail/interfaces"
	"github.com/techmailbox/shipmail/internal/enum"
	"github.com/techmailbox/shipmail/internal/logger"
	"github.com/techmailbox/shipmail/internal/models"
	"github.com/techmailbox/shipmail/internal/tracing"
	"github.com/techmailbox/shipmail/services/extractor"
)

var (
	deliverySubjectRe = regexp.MustCompile(`(?i)delivery`)
	eadSubjectRe      = regexp.MustCompile(`(?i)\bead\b`)
)

type Config struct {
	// MaxAttachmentSize in bytes; larger PDFs are skipped with a log entry.
	MaxAttachmentSize int64
}

type Processor struct {
	cfg      Config
	store    interfaces.AttachmentStore
	pdf      interfaces.PDFTextExtractor
	handler  interfaces.DocumentHandler
	notifier interfaces.Notifier
	log      logger.Logger
}

func NewProcessor(
	cfg Config,
	store interfaces.AttachmentStore,
	pdf interfaces.PDFTextExtractor,
	handler interfaces.DocumentHandler,
	notifier interfaces.Notifier,
	log logger.Logger,
) *Processor {
	if cfg.MaxAttachmentSize <= 0 {
		cfg.MaxAttachmentSize = 50 * 1024 * 1024
	}
	return &Processor{
		cfg:      cfg,
		store:    store,
		pdf:      pdf,
		handler:  handler,
		notifier: notifier,
		log:      log,
	}
}

// ProcessMessage parses one raw message, saves every qualifying PDF and emits
// at most one event per document kind. Handler failures are logged, not
// propagated: a processed message must never be re-fetched because a
// downstream consumer misbehaved.
func (p *Processor) ProcessMessage(ctx context.Context, msg interfaces.MailMessage) (interfaces.ProcessOutcome, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "Processor.ProcessMessage")
	defer span.Finish()
	tracing.TagComponentListener(span)
	span.SetTag("message.uid", msg.UID)

	envelope, err := enmime.ReadEnvelope(bytes.NewReader(msg.Source))
	if err != nil {
		tracing.TraceErr(span, err)
		return interfaces.ProcessOutcome{}, errors.Wrap(err, "failed to parse message")
	}

	when := msg.InternalDate
	if when.IsZero() {
		when = time.Now()
	}

	subject := envelope.GetHeader("Subject")
	// A subject can match both kinds; each kind emits at most once.
	isDeliveryMail := deliverySubjectRe.MatchString(subject)
	isEADMail := eadSubjectRe.MatchString(subject)

	var (
		wroteAny        bool
		deliveryEmitted bool
		eadEmitted      bool
	)

	for _, att := range envelope.Attachments {
		if !isPDF(att.ContentType, att.FileName) {
			continue
		}

		size := int64(len(att.Content))
		if size > p.cfg.MaxAttachmentSize {
			p.log.Errorf("pdf skipped, too big (%.1f MB): %s", float64(size)/1024/1024, att.FileName)
			p.notifier.Log("error", "PDF skipped (too big): "+att.FileName)
			continue
		}

		doc, err := p.store.Save(when, att.FileName, att.Content)
		if err != nil {
			p.log.Errorf("failed to save pdf %s: %v", att.FileName, err)
			tracing.TraceErr(span, err)
			continue
		}
		wroteAny = true

		p.log.Infof("pdf saved: %s (%.1f KB)", doc.Path, float64(doc.Size)/1024)
		p.handler.OnDocumentSaved(ctx, dto.DocumentSaved{
			Path:       doc.Path,
			Filename:   doc.Filename,
			Size:       doc.Size,
			SHA256:     doc.SHA256,
			ReceivedAt: when,
			From:       envelope.GetHeader("From"),
			Subject:    subject,
		})

		// First successful extraction per kind wins; later attachments of the
		// same message are still saved but not re-extracted.
		if isDeliveryMail && !deliveryEmitted {
			deliveryEmitted = p.handleDeliveryPDF(ctx, att.Content, doc, when, subject, envelope.GetHeader("Message-Id"))
		}
		if isEADMail && !eadEmitted {
			eadEmitted = p.handleEADPDF(ctx, att.Content, doc, subject)
		}
	}

	if !wroteAny {
		p.log.Infof("no pdf attachments in message: %s", subjectOrPlaceholder(subject))
	}

	return interfaces.ProcessOutcome{MarkEligible: wroteAny, Subject: strings.TrimSpace(subject)}, nil
}

func (p *Processor) handleDeliveryPDF(ctx context.Context, content []byte, doc *interfaces.SavedDocument, when time.Time, subject, messageID string) bool {
	text, err := p.pdf.Text(content)
	if err != nil {
		p.log.Errorf("pdf text extraction failed for %s: %v", doc.Filename, err)
		return false
	}

	delivery := extractor.DeliveryID(text)
	if delivery == "" {
		p.log.Infof("no shipping note number found in %s", doc.Filename)
		p.notifier.Log("info", "No shipping note number found in "+doc.Filename)
		return false
	}

	event := dto.ShipmentReceived{
		Delivery:    delivery,
		MessageDate: when,
		Subject:     subject,
		TechnicalData: map[string]interface{}{
			models.TechKeyType:       string(enum.DocumentKindDelivery),
			models.TechKeySubject:    subject,
			models.TechKeyAttachment: doc.Path,
			models.TechKeySHA256:     doc.SHA256,
			models.TechKeyMessageID:  messageID,
		},
	}
	if err := p.handler.OnShipmentReceived(ctx, event); err != nil {
		p.log.Errorf("shipment-received handler failed for delivery=%s: %v", delivery, err)
	}
	p.log.Infof("shipment record ready (delivery=%s)", delivery)
	return true
}

func (p *Processor) handleEADPDF(ctx context.Context, content []byte, doc *interfaces.SavedDocument, subject string) bool {
	text, err := p.pdf.Text(content)
	if err != nil {
		p.log.Errorf("pdf text extraction failed for %s: %v", doc.Filename, err)
		return false
	}

	ead := extractor.EAD(text)
	p.log.Infof("ead extracted: delivery=%s mrn=%s date=%s process=%s",
		orDash(ead.Delivery), orDash(ead.MRN), orDash(ead.ReleaseDate), orDash(ead.ProcessCode))

	if ead.Delivery == "" {
		p.log.Infof("ead: no delivery identifier found in %s", doc.Filename)
		p.notifier.Log("info", "EAD: no delivery identifier found in "+doc.Filename)
		return false
	}

	event := dto.CustomsCleared{
		Delivery:       ead.Delivery,
		ProcessCode:    ead.ProcessCode,
		MRNNumber:      ead.MRN,
		MRNCloseDate:   ead.ReleaseDate,
		AttachmentPath: doc.Path,
		ContentHash:    doc.SHA256,
		Subject:        subject,
	}
	if err := p.handler.OnCustomsCleared(ctx, event); err != nil {
		p.log.Errorf("customs-cleared handler failed for delivery=%s: %v", ead.Delivery, err)
	}
	return true
}

func isPDF(contentType, filename string) bool {
	if strings.Contains(strings.ToLower(contentType), "application/pdf") {
		return true
	}
	return strings.HasSuffix(strings.ToLower(filename), ".pdf")
}

func subjectOrPlaceholder(subject string) string {
	if strings.TrimSpace(subject) == "" {
		return "(no subject)"
	}
	return subject
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
