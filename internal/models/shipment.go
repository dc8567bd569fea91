package models

import (
	"time"

	"gorm.io/gorm"

	"github.com/techmailbox/shipmail/internal/enum"
	"github.com/techmailbox/shipmail/internal/utils"
)

// TechnicalData keys. The blob is written and replaced as a whole unit, never
// field-merged.
const (
	TechKeyType       = "type"
	TechKeySubject    = "subject"
	TechKeyAttachment = "attachment"
	TechKeySHA256     = "sha256"
	TechKeyMessageID  = "messageId"
	TechKeyPurged     = "purged"
)

// Shipment is the authoritative record for one outbound shipment, keyed by the
// delivery identifier extracted from a Delivery document.
type Shipment struct {
	ID       string `gorm:"type:varchar(50);primaryKey" json:"id"`
	Delivery string `gorm:"type:varchar(8);uniqueIndex:ux_shipments_delivery;not null" json:"delivery"`

	// MessageDate is the internal date of the email that created or refreshed
	// the record. May be refreshed, never cleared.
	MessageDate *time.Time `gorm:"column:message_date;type:timestamp;index" json:"messageDate"`

	// Fields populated only by an EAD document.
	MRNNumber    *string    `gorm:"column:mrn_number;type:varchar(18)" json:"mrnNumber"`
	MRNCloseDate *time.Time `gorm:"column:mrn_close_date;type:timestamp" json:"mrnCloseDate"`
	ProcessCode  *string    `gorm:"column:process_code;type:varchar(255)" json:"processCode"`

	Status                enum.ShipmentStatus `gorm:"type:varchar(50)" json:"status"`
	CorrespondenceSubject string              `gorm:"type:varchar(1000)" json:"correspondenceSubject"`

	// TechnicalData carries document kind, original subject, saved attachment
	// path, content hash and source message id.
	TechnicalData JSONMap `gorm:"type:jsonb" json:"technicalData"`

	CreatedAt time.Time `gorm:"column:created_at;type:timestamp;default:current_timestamp" json:"createdAt"`
	UpdatedAt time.Time `gorm:"column:updated_at;type:timestamp;default:current_timestamp" json:"updatedAt"`
}

func (Shipment) TableName() string {
	return "shipments"
}

func (s *Shipment) BeforeCreate(tx *gorm.DB) error {
	if s.ID == "" {
		s.ID = utils.GenerateNanoIDWithPrefix("ship", 12)
	}
	s.CreatedAt = utils.Now()
	return nil
}

// AttachmentPath returns the saved attachment path recorded in TechnicalData,
// or "" when none was recorded.
func (s *Shipment) AttachmentPath() string {
	if s.TechnicalData == nil {
		return ""
	}
	if path, ok := s.TechnicalData[TechKeyAttachment].(string); ok {
		return path
	}
	return ""
}
