package smtp

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/techmailbox/shipmail/config"
	"github.com/techmailbox/shipmail/interfaces"
	"github.com/techmailbox/shipmail/internal/logger"
)

func TestBuildMessage(t *testing.T) {
	dir := t.TempDir()
	attPath := filepath.Join(dir, "ead.pdf")
	require.NoError(t, os.WriteFile(attPath, []byte("%PDF-1.4 content"), 0o644))

	buffer, err := buildMessage(interfaces.OutboundMail{
		From:            "noreply@example.com",
		To:              []string{"a@example.com", "b@example.com"},
		Subject:         "EAD for shipment | Delivery documents",
		Body:            "Customs clearance attached.",
		AttachmentPaths: []string{attPath},
	})
	require.NoError(t, err)

	msg := buffer.String()
	require.Contains(t, msg, "From: noreply@example.com")
	require.Contains(t, msg, "To: a@example.com, b@example.com")
	require.Contains(t, msg, "Subject: EAD for shipment | Delivery documents")
	require.Contains(t, msg, "multipart/mixed; boundary=")
	require.Contains(t, msg, `attachment; filename="ead.pdf"`)
	require.Contains(t, msg, "Content-Transfer-Encoding: base64")
	require.Contains(t, msg, "Customs clearance attached.")
}

func TestBuildMessage_MissingAttachment(t *testing.T) {
	_, err := buildMessage(interfaces.OutboundMail{
		From:            "noreply@example.com",
		To:              []string{"a@example.com"},
		Subject:         "subject",
		AttachmentPaths: []string{"/nonexistent/file.pdf"},
	})
	require.Error(t, err)
}

func TestSenderValidate(t *testing.T) {
	log := logger.NewAppLogger(&logger.Config{LogLevel: "error", DevMode: true, Encoder: "console"})
	log.InitLogger()
	sender := NewSender(&config.SmtpConfig{FromAddress: "noreply@example.com"}, log)

	t.Run("defaults from address", func(t *testing.T) {
		mail := interfaces.OutboundMail{To: []string{"a@example.com"}, Subject: "s"}
		require.NoError(t, sender.validate(&mail))
		require.Equal(t, "noreply@example.com", mail.From)
	})

	t.Run("rejects empty recipients", func(t *testing.T) {
		mail := interfaces.OutboundMail{Subject: "s"}
		require.Error(t, sender.validate(&mail))
	})

	t.Run("rejects invalid recipient", func(t *testing.T) {
		mail := interfaces.OutboundMail{To: []string{"not-an-address"}, Subject: "s"}
		require.Error(t, sender.validate(&mail))
	})

	t.Run("rejects missing subject", func(t *testing.T) {
		mail := interfaces.OutboundMail{To: []string{"a@example.com"}}
		require.Error(t, sender.validate(&mail))
	})
}

func TestBase64LineWrapping(t *testing.T) {
	dir := t.TempDir()
	attPath := filepath.Join(dir, "big.pdf")
	require.NoError(t, os.WriteFile(attPath, make([]byte, 600), 0o644))

	buffer, err := buildMessage(interfaces.OutboundMail{
		From:            "noreply@example.com",
		To:              []string{"a@example.com"},
		Subject:         "s",
		AttachmentPaths: []string{attPath},
	})
	require.NoError(t, err)

	inAttachment := false
	for _, line := range strings.Split(buffer.String(), "\r\n") {
		if strings.Contains(line, "base64") {
			inAttachment = true
			continue
		}
		if inAttachment && strings.HasPrefix(line, "--") {
			break
		}
		if inAttachment && line != "" {
			require.LessOrEqual(t, len(line), 76)
		}
	}
}
