// Package smtp delivers the follow-up notification emails with the EAD and
// Delivery documents attached.
package smtp

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/base64"
	"fmt"
	"mime/multipart"
	"net"
	"net/smtp"
	"net/textproto"
	"os"
	"path/filepath"
	"time"

	"github.com/customeros/mailsherpa/mailvalidate"
	"github.com/opentracing/opentracing-go"
	"github.com/pkg/errors"

	"github.com/techmailbox/shipmail/config"
	"github.com/techmailbox/shipmail/interfaces"
	"github.com/techmailbox/shipmail/internal/logger"
	"github.com/techmailbox/shipmail/internal/tracing"
)

const base64LineLength = 76

type Sender struct {
	cfg *config.SmtpConfig
	log logger.Logger
}

func NewSender(cfg *config.SmtpConfig, log logger.Logger) *Sender {
	return &Sender{cfg: cfg, log: log}
}

func (s *Sender) Send(ctx context.Context, mail interfaces.OutboundMail) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "Sender.Send")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	span.SetTag("recipients.count", len(mail.To))

	if err := s.validate(&mail); err != nil {
		tracing.TraceErr(span, err)
		return err
	}

	buffer, err := buildMessage(mail)
	if err != nil {
		tracing.TraceErr(span, err)
		return err
	}

	if err := s.sendToServer(ctx, mail.From, mail.To, buffer); err != nil {
		tracing.TraceErr(span, err)
		return err
	}

	s.log.Infof("notification sent to %d recipient(s): %s", len(mail.To), mail.Subject)
	return nil
}

func (s *Sender) validate(mail *interfaces.OutboundMail) error {
	if mail.From == "" {
		mail.From = s.cfg.FromAddress
	}
	if mail.From == "" {
		mail.From = s.cfg.Username
	}

	validation := mailvalidate.ValidateEmailSyntax(mail.From)
	if !validation.IsValid {
		return errors.Errorf("from address is not valid: %s", mail.From)
	}

	if len(mail.To) == 0 {
		return errors.New("at least one recipient is required")
	}
	for _, to := range mail.To {
		if v := mailvalidate.ValidateEmailSyntax(to); !v.IsValid {
			return errors.Errorf("recipient address is not valid: %s", to)
		}
	}

	if mail.Subject == "" {
		return errors.New("email must have a subject")
	}
	return nil
}

// buildMessage assembles a multipart/mixed MIME message: headers, one text
// part and one base64 part per attachment read from disk.
func buildMessage(mail interfaces.OutboundMail) (*bytes.Buffer, error) {
	buffer := bytes.NewBuffer(nil)
	writer := multipart.NewWriter(buffer)

	headers := map[string]string{
		"From":         mail.From,
		"To":           joinAddresses(mail.To),
		"Subject":      mail.Subject,
		"Date":         time.Now().Format(time.RFC1123Z),
		"MIME-Version": "1.0",
		"Content-Type": "multipart/mixed; boundary=" + writer.Boundary(),
	}
	writeHeaders(headers, buffer)

	textPart, err := writer.CreatePart(textproto.MIMEHeader{
		"Content-Type":              {"text/plain; charset=UTF-8"},
		"Content-Transfer-Encoding": {"quoted-printable"},
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to create text part")
	}
	if _, err := textPart.Write([]byte(mail.Body)); err != nil {
		return nil, errors.Wrap(err, "failed to write text content")
	}

	for _, path := range mail.AttachmentPaths {
		if err := addAttachment(writer, path); err != nil {
			return nil, err
		}
	}

	if err := writer.Close(); err != nil {
		return nil, errors.Wrap(err, "failed to close multipart writer")
	}
	return buffer, nil
}

func addAttachment(writer *multipart.Writer, path string) error {
	content, err := os.ReadFile(path)
	if err != nil {
		return errors.Wrapf(err, "failed to read attachment %s", path)
	}

	filename := filepath.Base(path)
	part, err := writer.CreatePart(textproto.MIMEHeader{
		"Content-Type":              {fmt.Sprintf("application/pdf; name=%q", filename)},
		"Content-Disposition":       {fmt.Sprintf("attachment; filename=%q", filename)},
		"Content-Transfer-Encoding": {"base64"},
	})
	if err != nil {
		return errors.Wrap(err, "failed to create attachment part")
	}

	encoded := base64.StdEncoding.EncodeToString(content)
	for len(encoded) > 0 {
		n := base64LineLength
		if n > len(encoded) {
			n = len(encoded)
		}
		if _, err := part.Write([]byte(encoded[:n])); err != nil {
			return errors.Wrap(err, "failed to write attachment content")
		}
		if _, err := part.Write([]byte("\r\n")); err != nil {
			return errors.Wrap(err, "failed to write attachment content")
		}
		encoded = encoded[n:]
	}
	return nil
}

func (s *Sender) sendToServer(ctx context.Context, from string, recipients []string, buffer *bytes.Buffer) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "Sender.sendToServer")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)

	addr := fmt.Sprintf("%s:%d", s.cfg.Server, s.cfg.Port)
	auth := smtp.PlainAuth("", s.cfg.Username, s.cfg.Password, s.cfg.Server)

	switch s.cfg.Security {
	case "tls":
		return s.sendWithImplicitTLS(addr, auth, from, recipients, buffer)
	case "starttls":
		return s.sendWithSTARTTLS(addr, auth, from, recipients, buffer)
	default:
		if err := smtp.SendMail(addr, auth, from, recipients, buffer.Bytes()); err != nil {
			return errors.Wrap(err, "failed to send email")
		}
		return nil
	}
}

// sendWithImplicitTLS handles port-465 style servers where the transport is
// TLS from the first byte.
func (s *Sender) sendWithImplicitTLS(addr string, auth smtp.Auth, from string, recipients []string, buffer *bytes.Buffer) error {
	tlsConfig := &tls.Config{ServerName: s.cfg.Server}
	conn, err := tls.Dial("tcp", addr, tlsConfig)
	if err != nil {
		return errors.Wrap(err, "failed to connect to SMTP server")
	}
	defer conn.Close()

	client, err := smtp.NewClient(conn, s.cfg.Server)
	if err != nil {
		return errors.Wrap(err, "failed to create SMTP client")
	}
	defer client.Close()

	if err := client.Auth(auth); err != nil {
		return errors.Wrap(err, "SMTP authentication failed")
	}
	return submit(client, from, recipients, buffer)
}

func (s *Sender) sendWithSTARTTLS(addr string, auth smtp.Auth, from string, recipients []string, buffer *bytes.Buffer) error {
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return errors.Wrap(err, "failed to connect to SMTP server")
	}
	defer conn.Close()

	client, err := smtp.NewClient(conn, s.cfg.Server)
	if err != nil {
		return errors.Wrap(err, "failed to create SMTP client")
	}
	defer client.Close()

	tlsConfig := &tls.Config{ServerName: s.cfg.Server}
	if err := client.StartTLS(tlsConfig); err != nil {
		return errors.Wrap(err, "failed to start TLS")
	}
	if err := client.Auth(auth); err != nil {
		return errors.Wrap(err, "SMTP authentication failed")
	}
	return submit(client, from, recipients, buffer)
}

func submit(client *smtp.Client, from string, recipients []string, buffer *bytes.Buffer) error {
	if err := client.Mail(from); err != nil {
		return errors.Wrap(err, "SMTP MAIL command failed")
	}
	for _, recipient := range recipients {
		if err := client.Rcpt(recipient); err != nil {
			return errors.Wrapf(err, "SMTP RCPT command failed for %s", recipient)
		}
	}

	dataWriter, err := client.Data()
	if err != nil {
		return errors.Wrap(err, "SMTP DATA command failed")
	}
	if _, err := dataWriter.Write(buffer.Bytes()); err != nil {
		return errors.Wrap(err, "failed to write email data")
	}
	if err := dataWriter.Close(); err != nil {
		return errors.Wrap(err, "failed to close data writer")
	}
	return client.Quit()
}

func joinAddresses(addresses []string) string {
	out := ""
	for i, addr := range addresses {
		if i > 0 {
			out += ", "
		}
		out += addr
	}
	return out
}

func writeHeaders(headers map[string]string, buffer *bytes.Buffer) {
	for k, v := range headers {
		buffer.WriteString(fmt.Sprintf("%s: %s\r\n", k, v))
	}
	buffer.WriteString("\r\n")
}

var _ interfaces.EmailSender = (*Sender)(nil)
