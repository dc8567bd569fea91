package repository

import (
	"context"
	"strings"

	"github.com/opentracing/opentracing-go"
	"github.com/pkg/errors"
	"gorm.io/gorm"

	"github.com/techmailbox/shipmail/interfaces"
	"github.com/techmailbox/shipmail/internal/models"
	"github.com/techmailbox/shipmail/internal/tracing"
)

type shipmentRepository struct {
	db *gorm.DB
}

func NewShipmentRepository(db *gorm.DB) interfaces.ShipmentRepository {
	return &shipmentRepository{db: db}
}

// GetByDelivery returns the record for a delivery key, or nil when none exists
func (r *shipmentRepository) GetByDelivery(ctx context.Context, delivery string) (*models.Shipment, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "shipmentRepository.GetByDelivery")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	if delivery == "" {
		return nil, nil
	}

	var shipment models.Shipment
	result := r.db.WithContext(ctx).
		Where("delivery = ?", delivery).
		First(&shipment)

	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		tracing.TraceErr(span, result.Error)
		return nil, errors.Wrap(result.Error, "failed to get shipment")
	}

	return &shipment, nil
}

// UpsertMergePreserve inserts a new record or merges non-empty incoming fields
// into the existing one. The unique index on delivery is the safety net when
// two inserts race: the loser retries as an update.
func (r *shipmentRepository) UpsertMergePreserve(ctx context.Context, shipment *models.Shipment) (*models.Shipment, bool, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "shipmentRepository.UpsertMergePreserve")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)
	tracing.TagEntity(span, shipment.Delivery)

	if shipment.Delivery == "" {
		err := errors.New("delivery key is required")
		tracing.TraceErr(span, err)
		return nil, false, err
	}

	existing, err := r.GetByDelivery(ctx, shipment.Delivery)
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, false, err
	}

	if existing == nil {
		result := r.db.WithContext(ctx).Create(shipment)
		if result.Error == nil {
			return shipment, true, nil
		}
		if !isUniqueViolation(result.Error) {
			tracing.TraceErr(span, result.Error)
			return nil, false, errors.Wrap(result.Error, "failed to create shipment")
		}
		// Lost the insert race, re-read and fall through to the merge path.
		existing, err = r.GetByDelivery(ctx, shipment.Delivery)
		if err != nil || existing == nil {
			tracing.TraceErr(span, err)
			return nil, false, errors.Wrap(err, "failed to re-read shipment after insert race")
		}
	}

	updates := mergePreserveUpdates(existing, shipment)
	if len(updates) > 0 {
		if _, err := r.UpdateByDelivery(ctx, shipment.Delivery, updates); err != nil {
			tracing.TraceErr(span, err)
			return nil, false, err
		}
	}

	fresh, err := r.GetByDelivery(ctx, shipment.Delivery)
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, false, err
	}
	return fresh, false, nil
}

// UpdateByDelivery applies a caller-built partial update to one record.
func (r *shipmentRepository) UpdateByDelivery(ctx context.Context, delivery string, updates map[string]interface{}) (int64, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "shipmentRepository.UpdateByDelivery")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)
	tracing.TagEntity(span, delivery)

	if delivery == "" || len(updates) == 0 {
		return 0, nil
	}

	result := r.db.WithContext(ctx).
		Model(&models.Shipment{}).
		Where("delivery = ?", delivery).
		Updates(updates)

	if result.Error != nil {
		tracing.TraceErr(span, result.Error)
		return 0, errors.Wrap(result.Error, "failed to update shipment")
	}

	return result.RowsAffected, nil
}

// List returns all shipments, newest message first.
func (r *shipmentRepository) List(ctx context.Context) ([]*models.Shipment, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "shipmentRepository.List")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	var shipments []*models.Shipment
	result := r.db.WithContext(ctx).
		Order("message_date DESC NULLS LAST").
		Order("created_at DESC").
		Find(&shipments)

	if result.Error != nil {
		tracing.TraceErr(span, result.Error)
		return nil, errors.Wrap(result.Error, "failed to list shipments")
	}

	return shipments, nil
}

// mergePreserveUpdates keeps only the non-empty fields of an incoming record,
// so existing values are never clobbered by blanks. The status only ever
// advances, never regresses.
func mergePreserveUpdates(existing, incoming *models.Shipment) map[string]interface{} {
	updates := make(map[string]interface{})

	if incoming.MessageDate != nil {
		updates["message_date"] = *incoming.MessageDate
	}
	if incoming.MRNNumber != nil && *incoming.MRNNumber != "" {
		updates["mrn_number"] = *incoming.MRNNumber
	}
	if incoming.MRNCloseDate != nil {
		updates["mrn_close_date"] = *incoming.MRNCloseDate
	}
	if incoming.ProcessCode != nil && *incoming.ProcessCode != "" {
		updates["process_code"] = *incoming.ProcessCode
	}
	if incoming.Status != "" && incoming.Status.Rank() > existing.Status.Rank() {
		updates["status"] = incoming.Status
	}
	if incoming.CorrespondenceSubject != "" {
		updates["correspondence_subject"] = incoming.CorrespondenceSubject
	}
	if len(incoming.TechnicalData) > 0 {
		updates["technical_data"] = incoming.TechnicalData
	}

	return updates
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	return strings.Contains(err.Error(), "duplicate key") ||
		strings.Contains(err.Error(), "unique constraint")
}
