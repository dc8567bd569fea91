package dto

import "time"

// ShipmentReceived is emitted when a Delivery document yields a delivery
// identifier. It creates (or refreshes) the shipment record.
type ShipmentReceived struct {
	Delivery      string                 `json:"delivery"`
	MessageDate   time.Time              `json:"messageDate"`
	Subject       string                 `json:"subject"`
	TechnicalData map[string]interface{} `json:"technicalData"`
}

// CustomsCleared is emitted when an EAD document yields a delivery identifier.
// All fields other than Delivery are optional; empty values never overwrite
// stored data.
type CustomsCleared struct {
	Delivery       string `json:"delivery"`
	ProcessCode    string `json:"processCode,omitempty"`
	MRNNumber      string `json:"mrnNumber,omitempty"`
	MRNCloseDate   string `json:"mrnCloseDate,omitempty"` // YYYY-MM-DD
	AttachmentPath string `json:"attachmentPath"`
	ContentHash    string `json:"contentHash"`
	Subject        string `json:"subject"`
}

// DocumentSaved reports a PDF attachment durably written to disk.
type DocumentSaved struct {
	Path       string    `json:"path"`
	Filename   string    `json:"filename"`
	Size       int64     `json:"size"`
	SHA256     string    `json:"sha256"`
	ReceivedAt time.Time `json:"receivedAt"`
	From       string    `json:"from"`
	Subject    string    `json:"subject"`
}
