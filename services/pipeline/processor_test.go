package pipeline

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/jhillyerd/enmime"
	"github.com/stretchr/testify/require"

	"github.com/techmailbox/shipmail/dto"
	"github.com/techmailbox/shipmail/interfaces"
	"github.com/techmailbox/shipmail/internal/logger"
)

type fakeStore struct {
	mu    sync.Mutex
	saved []string
	fail  bool
}

func (s *fakeStore) Save(when time.Time, filename string, content []byte) (*interfaces.SavedDocument, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail {
		return nil, fmt.Errorf("disk full")
	}
	s.saved = append(s.saved, filename)
	return &interfaces.SavedDocument{
		Path:     "/tmp/" + when.Format("2006-01-02") + "/" + filename,
		Filename: filename,
		Size:     int64(len(content)),
		SHA256:   "deadbeef",
	}, nil
}

func (s *fakeStore) Remove(string) error { return nil }

func (s *fakeStore) PurgeOlderThan(time.Duration) (int, error) { return 0, nil }

type fakePDF struct {
	text string
	err  error
}

func (p *fakePDF) Text([]byte) (string, error) { return p.text, p.err }

type recordingHandler struct {
	mu        sync.Mutex
	received  []dto.ShipmentReceived
	cleared   []dto.CustomsCleared
	documents []dto.DocumentSaved
	fail      error
}

func (h *recordingHandler) OnShipmentReceived(_ context.Context, e dto.ShipmentReceived) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.received = append(h.received, e)
	return h.fail
}

func (h *recordingHandler) OnCustomsCleared(_ context.Context, e dto.CustomsCleared) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.cleared = append(h.cleared, e)
	return h.fail
}

func (h *recordingHandler) OnDocumentSaved(_ context.Context, e dto.DocumentSaved) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.documents = append(h.documents, e)
}

type noopNotifier struct{}

func (noopNotifier) RowInserted(string, interface{}) {}
func (noopNotifier) RowUpdated(string, interface{})  {}
func (noopNotifier) DocumentSaved(dto.DocumentSaved) {}
func (noopNotifier) Log(string, string)              {}

func testLogger() logger.Logger {
	log := logger.NewAppLogger(&logger.Config{LogLevel: "error", DevMode: true, Encoder: "console"})
	log.InitLogger()
	return log
}

func buildMessage(t *testing.T, subject string, pdfNames ...string) interfaces.MailMessage {
	t.Helper()
	builder := enmime.Builder().
		From("Sender", "sender@example.com").
		To("Inbox", "inbox@example.com").
		Subject(subject).
		Text([]byte("see attached"))
	for _, name := range pdfNames {
		builder = builder.AddAttachment([]byte("%PDF-1.4 fake"), "application/pdf", name)
	}
	part, err := builder.Build()
	require.NoError(t, err)

	var buf []byte
	{
		w := &sliceWriter{}
		require.NoError(t, part.Encode(w))
		buf = w.data
	}

	return interfaces.MailMessage{
		UID:          42,
		Source:       buf,
		InternalDate: time.Date(2024, 3, 7, 10, 0, 0, 0, time.UTC),
	}
}

type sliceWriter struct{ data []byte }

func (w *sliceWriter) Write(p []byte) (int, error) {
	w.data = append(w.data, p...)
	return len(p), nil
}

func TestProcessMessage_DeliveryDocument(t *testing.T) {
	store := &fakeStore{}
	handler := &recordingHandler{}
	proc := NewProcessor(Config{}, store, &fakePDF{text: "Shipping Note No.: AB123456XYZ"}, handler, noopNotifier{}, testLogger())

	outcome, err := proc.ProcessMessage(context.Background(), buildMessage(t, "Delivery documents", "note.pdf"))
	require.NoError(t, err)
	require.True(t, outcome.MarkEligible)
	require.Equal(t, "Delivery documents", outcome.Subject)

	require.Len(t, handler.received, 1)
	require.Equal(t, "AB123456", handler.received[0].Delivery)
	require.Equal(t, "Delivery documents", handler.received[0].Subject)
	require.Equal(t, "Delivery", handler.received[0].TechnicalData["type"])
	require.Len(t, handler.documents, 1)
	require.Empty(t, handler.cleared)
}

func TestProcessMessage_EADDocument(t *testing.T) {
	store := &fakeStore{}
	handler := &recordingHandler{}
	text := "[N325] CD987654321\n[POW01] Inspection\nNr MRN 12PLAAAAAAAAAAAAAA\nDate of release for export: 2024-03-07"
	proc := NewProcessor(Config{}, store, &fakePDF{text: text}, handler, noopNotifier{}, testLogger())

	outcome, err := proc.ProcessMessage(context.Background(), buildMessage(t, "EAD for shipment", "ead.pdf"))
	require.NoError(t, err)
	require.True(t, outcome.MarkEligible)

	require.Len(t, handler.cleared, 1)
	cleared := handler.cleared[0]
	require.Equal(t, "CD987654", cleared.Delivery)
	require.Equal(t, "Inspection", cleared.ProcessCode)
	require.Equal(t, "12PLAAAAAAAAAAAAAA", cleared.MRNNumber)
	require.Equal(t, "2024-03-07", cleared.MRNCloseDate)
	require.Equal(t, "deadbeef", cleared.ContentHash)
	require.Empty(t, handler.received)
}

func TestProcessMessage_FirstMatchWinsPerKind(t *testing.T) {
	store := &fakeStore{}
	handler := &recordingHandler{}
	proc := NewProcessor(Config{}, store, &fakePDF{text: "Shipping Note No.: AB123456XYZ"}, handler, noopNotifier{}, testLogger())

	msg := buildMessage(t, "Delivery documents", "first.pdf", "second.pdf")
	outcome, err := proc.ProcessMessage(context.Background(), msg)
	require.NoError(t, err)
	require.True(t, outcome.MarkEligible)

	// Both attachments saved, only one shipment-received event.
	require.Len(t, handler.documents, 2)
	require.Len(t, handler.received, 1)
}

func TestProcessMessage_NoPDFAttachments(t *testing.T) {
	store := &fakeStore{}
	handler := &recordingHandler{}
	proc := NewProcessor(Config{}, store, &fakePDF{text: "irrelevant"}, handler, noopNotifier{}, testLogger())

	outcome, err := proc.ProcessMessage(context.Background(), buildMessage(t, "Delivery documents"))
	require.NoError(t, err)
	require.False(t, outcome.MarkEligible)
	require.Empty(t, handler.received)
	require.Empty(t, handler.documents)
}

func TestProcessMessage_OversizedAttachmentSkipped(t *testing.T) {
	store := &fakeStore{}
	handler := &recordingHandler{}
	proc := NewProcessor(Config{MaxAttachmentSize: 4}, store, &fakePDF{text: "x"}, handler, noopNotifier{}, testLogger())

	outcome, err := proc.ProcessMessage(context.Background(), buildMessage(t, "Delivery documents", "big.pdf"))
	require.NoError(t, err)
	require.False(t, outcome.MarkEligible)
	require.Empty(t, store.saved)
}

func TestProcessMessage_ExtractionFailureStillMarkEligible(t *testing.T) {
	store := &fakeStore{}
	handler := &recordingHandler{}
	proc := NewProcessor(Config{}, store, &fakePDF{err: fmt.Errorf("corrupt pdf")}, handler, noopNotifier{}, testLogger())

	outcome, err := proc.ProcessMessage(context.Background(), buildMessage(t, "Delivery documents", "bad.pdf"))
	require.NoError(t, err)
	// Saved but unparseable still counts as processed.
	require.True(t, outcome.MarkEligible)
	require.Empty(t, handler.received)
	require.Len(t, handler.documents, 1)
}

func TestProcessMessage_HandlerErrorSwallowed(t *testing.T) {
	store := &fakeStore{}
	handler := &recordingHandler{fail: fmt.Errorf("db down")}
	proc := NewProcessor(Config{}, store, &fakePDF{text: "Shipping Note No.: AB123456XYZ"}, handler, noopNotifier{}, testLogger())

	outcome, err := proc.ProcessMessage(context.Background(), buildMessage(t, "Delivery documents", "note.pdf"))
	require.NoError(t, err)
	require.True(t, outcome.MarkEligible)
}

func TestProcessMessage_UnclassifiedSubjectSavesOnly(t *testing.T) {
	store := &fakeStore{}
	handler := &recordingHandler{}
	proc := NewProcessor(Config{}, store, &fakePDF{text: "Shipping Note No.: AB123456XYZ"}, handler, noopNotifier{}, testLogger())

	outcome, err := proc.ProcessMessage(context.Background(), buildMessage(t, "FYI scan", "scan.pdf"))
	require.NoError(t, err)
	require.True(t, outcome.MarkEligible)
	require.Empty(t, handler.received)
	require.Empty(t, handler.cleared)
	require.Len(t, handler.documents, 1)
}

func TestProcessMessage_WholeWordEADMatch(t *testing.T) {
	store := &fakeStore{}
	handler := &recordingHandler{}
	proc := NewProcessor(Config{}, store, &fakePDF{text: "[N325] CD987654321"}, handler, noopNotifier{}, testLogger())

	// "ready" contains "ead" but not as a whole word.
	outcome, err := proc.ProcessMessage(context.Background(), buildMessage(t, "shipment ready", "doc.pdf"))
	require.NoError(t, err)
	require.True(t, outcome.MarkEligible)
	require.Empty(t, handler.cleared)
}
