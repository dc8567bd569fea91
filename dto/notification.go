package dto

import "time"

const (
	NotificationRowInserted   = "row-inserted"
	NotificationRowUpdated    = "row-updated"
	NotificationLog           = "log"
	NotificationDocumentSaved = "document-saved"
)

// Notification is a fire-and-forget message for the presentation layer. No
// acknowledgment is expected.
type Notification struct {
	Type     string         `json:"type"`
	View     string         `json:"view,omitempty"`
	Row      interface{}    `json:"row,omitempty"`
	Level    string         `json:"level,omitempty"`
	Message  string         `json:"message,omitempty"`
	Document *DocumentSaved `json:"document,omitempty"`
	At       time.Time      `json:"at"`
}
