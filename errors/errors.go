package errors

import "github.com/pkg/errors"

var (
	// session errors
	ErrSessionStopped = errors.New("mailbox session stopped")
	ErrFlagTimeout    = errors.New("flag operation timed out")

	// pipeline errors
	ErrAttachmentTooLarge = errors.New("attachment exceeds size ceiling")

	// orchestrator errors
	ErrNoDeliveryRecord = errors.New("no delivery record for shipment")
)
