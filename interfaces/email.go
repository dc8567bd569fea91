package interfaces

import "context"

// OutboundMail is the outbound notification payload: recipients, a subject and
// attachment paths resolved from disk at send time.
type OutboundMail struct {
	From            string
	To              []string
	Subject         string
	Body            string
	AttachmentPaths []string
}

// EmailSender delivers an outbound notification over SMTP.
type EmailSender interface {
	Send(ctx context.Context, mail OutboundMail) error
}

// PDFTextExtractor turns a PDF byte stream into plain text. Implementations
// must fail soft: an unreadable document yields an error the caller treats as
// "no data", never as a pipeline failure.
type PDFTextExtractor interface {
	Text(data []byte) (string, error)
}
