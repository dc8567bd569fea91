// Package orchestrator applies the pipeline's domain events to the shipment
// store and performs the follow-up side effects of an EAD document: recipient
// resolution, notification mail and attachment cleanup.
package orchestrator

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/opentracing/opentracing-go"
	"github.com/pkg/errors"

	"github.com/techmailbox/shipmail/dto"
	"github.com/techmailbox/shipmail/interfaces"
	"github.com/techmailbox/shipmail/internal/enum"
	"github.com/techmailbox/shipmail/internal/logger"
	"github.com/techmailbox/shipmail/internal/models"
	"github.com/techmailbox/shipmail/internal/tracing"
	"github.com/techmailbox/shipmail/internal/utils"
)

// exportView is the presentation-layer view name shipment rows publish under.
const exportView = "export"

// defaultEADSubject stands in when an EAD arrives with a blank subject line.
const defaultEADSubject = "EAD"

type Orchestrator struct {
	shipments interfaces.ShipmentRepository
	processes interfaces.ProcessConfigRepository
	sender    interfaces.EmailSender
	store     interfaces.AttachmentStore
	notifier  interfaces.Notifier
	log       logger.Logger
}

func New(
	shipments interfaces.ShipmentRepository,
	processes interfaces.ProcessConfigRepository,
	sender interfaces.EmailSender,
	store interfaces.AttachmentStore,
	notifier interfaces.Notifier,
	log logger.Logger,
) *Orchestrator {
	return &Orchestrator{
		shipments: shipments,
		processes: processes,
		sender:    sender,
		store:     store,
		notifier:  notifier,
		log:       log,
	}
}

// OnShipmentReceived upserts the shipment record keyed by delivery and
// publishes an inserted/updated row to the presentation layer.
func (o *Orchestrator) OnShipmentReceived(ctx context.Context, event dto.ShipmentReceived) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "Orchestrator.OnShipmentReceived")
	defer span.Finish()
	tracing.TagComponentListener(span)
	tracing.TagEntity(span, event.Delivery)

	if event.Delivery == "" {
		return errors.New("shipment-received event without delivery")
	}

	shipment := &models.Shipment{
		Delivery:              event.Delivery,
		MessageDate:           utils.TimePtr(event.MessageDate),
		Status:                enum.ShipmentStatusReceivedDelivery,
		CorrespondenceSubject: event.Subject,
		TechnicalData:         models.JSONMap(event.TechnicalData),
	}

	fresh, created, err := o.shipments.UpsertMergePreserve(ctx, shipment)
	if err != nil {
		tracing.TraceErr(span, err)
		return errors.Wrap(err, "failed to upsert shipment")
	}

	if created {
		o.log.Infof("shipment inserted (delivery=%s)", event.Delivery)
		o.notifier.RowInserted(exportView, fresh)
	} else {
		o.log.Infof("shipment refreshed (delivery=%s)", event.Delivery)
		o.notifier.RowUpdated(exportView, fresh)
	}
	return nil
}

// OnCustomsCleared closes out an existing shipment record: merge-preserve
// update, recipient resolution, notification mail, then unconditional
// attachment cleanup. A missing record is a logged no-op, never an insert.
func (o *Orchestrator) OnCustomsCleared(ctx context.Context, event dto.CustomsCleared) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "Orchestrator.OnCustomsCleared")
	defer span.Finish()
	tracing.TagComponentListener(span)
	tracing.TagEntity(span, event.Delivery)

	if event.Delivery == "" {
		return errors.New("customs-cleared event without delivery")
	}

	existing, err := o.shipments.GetByDelivery(ctx, event.Delivery)
	if err != nil {
		tracing.TraceErr(span, err)
		return errors.Wrap(err, "failed to look up shipment")
	}
	if existing == nil {
		o.log.Warnf("ead for unknown delivery=%s, ignoring", event.Delivery)
		o.notifier.Log("warn", fmt.Sprintf("EAD for unknown delivery %s ignored", event.Delivery))
		return nil
	}

	prevSubject := existing.CorrespondenceSubject
	deliveryPath := existing.AttachmentPath()

	updates := o.buildUpdates(existing, event)
	if _, err := o.shipments.UpdateByDelivery(ctx, event.Delivery, updates); err != nil {
		tracing.TraceErr(span, err)
		return errors.Wrap(err, "failed to update shipment")
	}

	fresh, err := o.shipments.GetByDelivery(ctx, event.Delivery)
	if err != nil {
		tracing.TraceErr(span, err)
		o.log.Errorf("failed to re-read shipment delivery=%s: %v", event.Delivery, err)
	} else if fresh != nil {
		o.notifier.RowUpdated(exportView, fresh)
	}

	recipients := o.resolveRecipients(ctx, event.ProcessCode)
	if len(recipients) == 0 {
		o.log.Warnf("no recipients for process %q, mail skipped (delivery=%s)", event.ProcessCode, event.Delivery)
		o.notifier.Log("warn", fmt.Sprintf("No recipients for process %q, mail not sent", event.ProcessCode))
	} else {
		o.sendNotification(ctx, event, prevSubject, deliveryPath, recipients)
	}

	// Cleanup runs regardless of the send outcome.
	o.cleanup(ctx, event.Delivery, fresh, []string{event.AttachmentPath, deliveryPath})
	return nil
}

func (o *Orchestrator) OnDocumentSaved(_ context.Context, event dto.DocumentSaved) {
	o.notifier.DocumentSaved(event)
}

// buildUpdates turns a customs-cleared event into a merge-preserve partial
// update: status always advances, the remaining fields only apply when the
// incoming value is non-empty.
func (o *Orchestrator) buildUpdates(existing *models.Shipment, event dto.CustomsCleared) map[string]interface{} {
	updates := make(map[string]interface{})

	if enum.ShipmentStatusEADDispatched.Rank() > existing.Status.Rank() {
		updates["status"] = enum.ShipmentStatusEADDispatched
	}
	if event.ProcessCode != "" {
		updates["process_code"] = event.ProcessCode
	}
	if event.MRNNumber != "" {
		updates["mrn_number"] = event.MRNNumber
	}
	if event.MRNCloseDate != "" {
		if closeDate, err := time.Parse("2006-01-02", event.MRNCloseDate); err == nil {
			updates["mrn_close_date"] = closeDate
		} else {
			o.log.Warnf("unparseable mrn close date %q for delivery=%s", event.MRNCloseDate, event.Delivery)
		}
	}
	return updates
}

// resolveRecipients maps a process code to its configured addresses. Empty
// code or unknown process resolves to no recipients.
func (o *Orchestrator) resolveRecipients(ctx context.Context, processCode string) []string {
	if strings.TrimSpace(processCode) == "" {
		return nil
	}
	emails, err := o.processes.EmailsForProcess(ctx, processCode)
	if err != nil {
		o.log.Errorf("recipient lookup failed for process %q: %v", processCode, err)
		return nil
	}

	var recipients []string
	for _, email := range emails {
		if trimmed := strings.TrimSpace(email); trimmed != "" {
			recipients = append(recipients, trimmed)
		}
	}
	return recipients
}

func (o *Orchestrator) sendNotification(ctx context.Context, event dto.CustomsCleared, prevSubject, deliveryPath string, recipients []string) {
	mail := interfaces.OutboundMail{
		To:              recipients,
		Subject:         joinSubjects(event.Subject, prevSubject),
		Body:            "Attached: EAD and Delivery documents.",
		AttachmentPaths: existingPaths(dedupePaths(event.AttachmentPath, deliveryPath)),
	}

	if err := o.sender.Send(ctx, mail); err != nil {
		o.log.Errorf("notification send failed for delivery=%s: %v", event.Delivery, err)
		o.notifier.Log("error", fmt.Sprintf("Notification send failed: %v", err))
		return
	}
	o.log.Infof("notification sent for delivery=%s to %d recipient(s)", event.Delivery, len(recipients))
}

// cleanup removes the consumed attachment files and records a purged marker
// in the technical data blob. Best-effort throughout.
func (o *Orchestrator) cleanup(ctx context.Context, delivery string, fresh *models.Shipment, paths []string) {
	purgedAny := false
	for _, path := range paths {
		if path == "" {
			continue
		}
		if err := o.store.Remove(path); err != nil {
			o.log.Warnf("could not remove %s: %v", path, err)
			continue
		}
		o.log.Infof("cleanup removed %s", path)
		purgedAny = true
	}

	if !purgedAny || fresh == nil {
		return
	}

	tech := models.JSONMap{}
	for k, v := range fresh.TechnicalData {
		tech[k] = v
	}
	tech[models.TechKeyPurged] = true
	if _, err := o.shipments.UpdateByDelivery(ctx, delivery, map[string]interface{}{"technical_data": tech}); err != nil {
		o.log.Warnf("could not record purge marker for delivery=%s: %v", delivery, err)
	}
}

// joinSubjects composes the outbound subject from the EAD subject and the
// previously stored correspondence subject.
func joinSubjects(eadSubject, prevSubject string) string {
	a := strings.TrimSpace(eadSubject)
	b := strings.TrimSpace(prevSubject)
	switch {
	case a == "" && b == "":
		return defaultEADSubject
	case a != "" && b != "":
		return a + " | " + b
	case a != "":
		return a
	default:
		return b
	}
}

func dedupePaths(paths ...string) []string {
	seen := make(map[string]struct{}, len(paths))
	var out []string
	for _, path := range paths {
		if path == "" {
			continue
		}
		if _, ok := seen[path]; ok {
			continue
		}
		seen[path] = struct{}{}
		out = append(out, path)
	}
	return out
}

// existingPaths drops paths whose file is already gone, so a half-cleaned
// record cannot fail the whole send.
func existingPaths(paths []string) []string {
	var out []string
	for _, path := range paths {
		if _, err := os.Stat(path); err == nil {
			out = append(out, path)
		}
	}
	return out
}

var _ interfaces.DocumentHandler = (*Orchestrator)(nil)
