package orchestrator

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/techmailbox/shipmail/dto"
	"github.com/techmailbox/shipmail/interfaces"
	"github.com/techmailbox/shipmail/internal/enum"
	"github.com/techmailbox/shipmail/internal/logger"
	"github.com/techmailbox/shipmail/internal/models"
)

type memShipmentRepo struct {
	records map[string]*models.Shipment
}

func newMemShipmentRepo() *memShipmentRepo {
	return &memShipmentRepo{records: make(map[string]*models.Shipment)}
}

func (r *memShipmentRepo) UpsertMergePreserve(_ context.Context, shipment *models.Shipment) (*models.Shipment, bool, error) {
	existing, ok := r.records[shipment.Delivery]
	if !ok {
		clone := *shipment
		r.records[shipment.Delivery] = &clone
		return &clone, true, nil
	}
	if shipment.MessageDate != nil {
		existing.MessageDate = shipment.MessageDate
	}
	if shipment.Status != "" && shipment.Status.Rank() > existing.Status.Rank() {
		existing.Status = shipment.Status
	}
	if shipment.CorrespondenceSubject != "" {
		existing.CorrespondenceSubject = shipment.CorrespondenceSubject
	}
	if len(shipment.TechnicalData) > 0 {
		existing.TechnicalData = shipment.TechnicalData
	}
	return existing, false, nil
}

func (r *memShipmentRepo) UpdateByDelivery(_ context.Context, delivery string, updates map[string]interface{}) (int64, error) {
	existing, ok := r.records[delivery]
	if !ok {
		return 0, nil
	}
	if v, ok := updates["status"]; ok {
		existing.Status = v.(enum.ShipmentStatus)
	}
	if v, ok := updates["process_code"]; ok {
		code := v.(string)
		existing.ProcessCode = &code
	}
	if v, ok := updates["mrn_number"]; ok {
		mrn := v.(string)
		existing.MRNNumber = &mrn
	}
	if v, ok := updates["mrn_close_date"]; ok {
		d := v.(time.Time)
		existing.MRNCloseDate = &d
	}
	if v, ok := updates["technical_data"]; ok {
		existing.TechnicalData = v.(models.JSONMap)
	}
	return 1, nil
}

func (r *memShipmentRepo) GetByDelivery(_ context.Context, delivery string) (*models.Shipment, error) {
	if s, ok := r.records[delivery]; ok {
		return s, nil
	}
	return nil, nil
}

func (r *memShipmentRepo) List(_ context.Context) ([]*models.Shipment, error) {
	var out []*models.Shipment
	for _, s := range r.records {
		out = append(out, s)
	}
	return out, nil
}

type memProcessRepo struct {
	emails map[string][]string
}

func (r *memProcessRepo) EmailsForProcess(_ context.Context, process string) ([]string, error) {
	for code, emails := range r.emails {
		if strings.EqualFold(code, process) {
			return emails, nil
		}
	}
	return nil, nil
}

func (r *memProcessRepo) List(context.Context) ([]*models.ProcessConfig, error) { return nil, nil }
func (r *memProcessRepo) Create(context.Context, *models.ProcessConfig) error   { return nil }
func (r *memProcessRepo) Update(context.Context, *models.ProcessConfig) error   { return nil }
func (r *memProcessRepo) Delete(context.Context, string) error                  { return nil }

type recordingSender struct {
	sent []interfaces.OutboundMail
	fail error
}

func (s *recordingSender) Send(_ context.Context, mail interfaces.OutboundMail) error {
	s.sent = append(s.sent, mail)
	return s.fail
}

type recordingStore struct {
	removed []string
}

func (s *recordingStore) Save(time.Time, string, []byte) (*interfaces.SavedDocument, error) {
	return nil, fmt.Errorf("not used")
}

func (s *recordingStore) Remove(path string) error {
	s.removed = append(s.removed, path)
	return os.Remove(path)
}

func (s *recordingStore) PurgeOlderThan(time.Duration) (int, error) { return 0, nil }

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

func writeTempPDF(t *testing.T, name string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte("%PDF"), 0o644))
	return path
}

func newTestOrchestrator(shipments *memShipmentRepo, processes *memProcessRepo, sender *recordingSender, store *recordingStore) *Orchestrator {
	return New(shipments, processes, sender, store, noopNotifier{}, testLogger())
}

func TestOnShipmentReceived_InsertThenIdempotent(t *testing.T) {
	repo := newMemShipmentRepo()
	o := newTestOrchestrator(repo, &memProcessRepo{}, &recordingSender{}, &recordingStore{})

	event := dto.ShipmentReceived{
		Delivery:      "AB123456",
		MessageDate:   time.Now(),
		Subject:       "Delivery documents",
		TechnicalData: map[string]interface{}{"type": "Delivery"},
	}

	require.NoError(t, o.OnShipmentReceived(context.Background(), event))
	require.NoError(t, o.OnShipmentReceived(context.Background(), event))

	require.Len(t, repo.records, 1)
	require.Equal(t, enum.ShipmentStatusReceivedDelivery, repo.records["AB123456"].Status)
}

func TestOnCustomsCleared_MissingRecordIsNoOp(t *testing.T) {
	repo := newMemShipmentRepo()
	sender := &recordingSender{}
	o := newTestOrchestrator(repo, &memProcessRepo{}, sender, &recordingStore{})

	err := o.OnCustomsCleared(context.Background(), dto.CustomsCleared{
		Delivery:    "ZZ999999",
		ProcessCode: "Inspection",
	})
	require.NoError(t, err)
	require.Empty(t, repo.records)
	require.Empty(t, sender.sent)
}

func TestOnCustomsCleared_FullFlow(t *testing.T) {
	repo := newMemShipmentRepo()
	deliveryPath := writeTempPDF(t, "delivery.pdf")
	eadPath := writeTempPDF(t, "ead.pdf")

	repo.records["AB123456"] = &models.Shipment{
		Delivery:              "AB123456",
		Status:                enum.ShipmentStatusReceivedDelivery,
		CorrespondenceSubject: "Delivery documents",
		TechnicalData:         models.JSONMap{models.TechKeyAttachment: deliveryPath},
	}

	processes := &memProcessRepo{emails: map[string][]string{"inspection": {"a@example.com", " b@example.com "}}}
	sender := &recordingSender{}
	store := &recordingStore{}
	o := newTestOrchestrator(repo, processes, sender, store)

	err := o.OnCustomsCleared(context.Background(), dto.CustomsCleared{
		Delivery:       "AB123456",
		ProcessCode:    "Inspection",
		MRNNumber:      "12PLAAAAAAAAAAAAAA",
		MRNCloseDate:   "2024-03-07",
		AttachmentPath: eadPath,
		Subject:        "EAD for shipment",
	})
	require.NoError(t, err)

	record := repo.records["AB123456"]
	require.Equal(t, enum.ShipmentStatusEADDispatched, record.Status)
	require.Equal(t, "Inspection", *record.ProcessCode)
	require.Equal(t, "12PLAAAAAAAAAAAAAA", *record.MRNNumber)
	require.Equal(t, 2024, record.MRNCloseDate.Year())

	require.Len(t, sender.sent, 1)
	mail := sender.sent[0]
	require.Equal(t, "EAD for shipment | Delivery documents", mail.Subject)
	require.Equal(t, []string{"a@example.com", "b@example.com"}, mail.To)
	require.ElementsMatch(t, []string{eadPath, deliveryPath}, mail.AttachmentPaths)

	// Both files removed after the send.
	require.ElementsMatch(t, []string{eadPath, deliveryPath}, store.removed)
	_, statErr := os.Stat(eadPath)
	require.True(t, os.IsNotExist(statErr))

	require.Equal(t, true, record.TechnicalData[models.TechKeyPurged])
}

func TestOnCustomsCleared_NoRecipientsSkipsMailButCleansUp(t *testing.T) {
	repo := newMemShipmentRepo()
	eadPath := writeTempPDF(t, "ead.pdf")
	repo.records["AB123456"] = &models.Shipment{
		Delivery: "AB123456",
		Status:   enum.ShipmentStatusReceivedDelivery,
	}

	sender := &recordingSender{}
	store := &recordingStore{}
	o := newTestOrchestrator(repo, &memProcessRepo{}, sender, store)

	err := o.OnCustomsCleared(context.Background(), dto.CustomsCleared{
		Delivery:       "AB123456",
		ProcessCode:    "Unknown",
		AttachmentPath: eadPath,
		Subject:        "EAD",
	})
	require.NoError(t, err)

	require.Empty(t, sender.sent)
	require.Equal(t, enum.ShipmentStatusEADDispatched, repo.records["AB123456"].Status)
	require.Contains(t, store.removed, eadPath)
}

func TestOnCustomsCleared_EmptyFieldsPreserved(t *testing.T) {
	repo := newMemShipmentRepo()
	mrn := "12PLAAAAAAAAAAAAAA"
	process := "Inspection"
	repo.records["AB123456"] = &models.Shipment{
		Delivery:    "AB123456",
		Status:      enum.ShipmentStatusEADDispatched,
		MRNNumber:   &mrn,
		ProcessCode: &process,
	}

	o := newTestOrchestrator(repo, &memProcessRepo{}, &recordingSender{}, &recordingStore{})

	err := o.OnCustomsCleared(context.Background(), dto.CustomsCleared{
		Delivery: "AB123456",
	})
	require.NoError(t, err)

	record := repo.records["AB123456"]
	require.Equal(t, "12PLAAAAAAAAAAAAAA", *record.MRNNumber)
	require.Equal(t, "Inspection", *record.ProcessCode)
}

func TestOnCustomsCleared_SendFailureStillCleansUp(t *testing.T) {
	repo := newMemShipmentRepo()
	eadPath := writeTempPDF(t, "ead.pdf")
	repo.records["AB123456"] = &models.Shipment{
		Delivery: "AB123456",
		Status:   enum.ShipmentStatusReceivedDelivery,
	}

	processes := &memProcessRepo{emails: map[string][]string{"inspection": {"a@example.com"}}}
	sender := &recordingSender{fail: fmt.Errorf("smtp down")}
	store := &recordingStore{}
	o := newTestOrchestrator(repo, processes, sender, store)

	err := o.OnCustomsCleared(context.Background(), dto.CustomsCleared{
		Delivery:       "AB123456",
		ProcessCode:    "Inspection",
		AttachmentPath: eadPath,
		Subject:        "EAD",
	})
	require.NoError(t, err)
	require.Len(t, sender.sent, 1)
	require.Contains(t, store.removed, eadPath)
}

func TestJoinSubjects(t *testing.T) {
	require.Equal(t, "a | b", joinSubjects("a", "b"))
	require.Equal(t, "a", joinSubjects("a", ""))
	require.Equal(t, "b", joinSubjects("", "b"))
	require.Equal(t, "EAD", joinSubjects("", ""))
	require.Equal(t, "a | b", joinSubjects(" a ", " b "))
}

func TestDedupePaths(t *testing.T) {
	require.Equal(t, []string{"/x/a", "/x/b"}, dedupePaths("/x/a", "/x/b", "/x/a", ""))
	require.Empty(t, dedupePaths("", ""))
}
