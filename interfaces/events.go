package interfaces

import (
	"context"

	"github.com/techmailbox/shipmail/dto"
)

// DocumentHandler consumes the typed domain events emitted by the processing
// pipeline. Replaces the untyped broadcast bus of earlier designs.
type DocumentHandler interface {
	OnShipmentReceived(ctx context.Context, event dto.ShipmentReceived) error
	OnCustomsCleared(ctx context.Context, event dto.CustomsCleared) error
	OnDocumentSaved(ctx context.Context, event dto.DocumentSaved)
}

// Notifier forwards fire-and-forget notifications to the presentation layer.
type Notifier interface {
	RowInserted(view string, row interface{})
	RowUpdated(view string, row interface{})
	DocumentSaved(event dto.DocumentSaved)
	Log(level string, message string)
}
