package interfaces

import (
	"context"

	"github.com/techmailbox/shipmail/internal/models"
)

// ShipmentRepository persists shipment records with merge-preserve semantics:
// an empty incoming value never overwrites a stored non-empty value.
type ShipmentRepository interface {
	// UpsertMergePreserve inserts the shipment when its delivery key is new,
	// otherwise merges non-empty incoming fields into the existing record.
	// Returns the fresh record and whether it was created.
	UpsertMergePreserve(ctx context.Context, shipment *models.Shipment) (*models.Shipment, bool, error)
	// UpdateByDelivery applies a partial update; the caller supplies only the
	// columns to change. Returns the number of affected rows.
	UpdateByDelivery(ctx context.Context, delivery string, updates map[string]interface{}) (int64, error)
	// GetByDelivery returns nil, nil when no record exists.
	GetByDelivery(ctx context.Context, delivery string) (*models.Shipment, error)
	List(ctx context.Context) ([]*models.Shipment, error)
}

// ProcessConfigRepository resolves notification recipients per process code.
type ProcessConfigRepository interface {
	// EmailsForProcess returns the recipient list for an exact,
	// case-insensitive process code match. Unknown code yields an empty list.
	EmailsForProcess(ctx context.Context, process string) ([]string, error)
	List(ctx context.Context) ([]*models.ProcessConfig, error)
	Create(ctx context.Context, config *models.ProcessConfig) error
	Update(ctx context.Context, config *models.ProcessConfig) error
	Delete(ctx context.Context, id string) error
}
