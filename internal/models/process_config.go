package models

import (
	"time"

	"github.com/lib/pq"
	"gorm.io/gorm"

	"github.com/techmailbox/shipmail/internal/utils"
)

// ProcessConfig maps a customs process code to the notification recipients for
// that process. Lookup is exact, case-insensitive on the process code.
type ProcessConfig struct {
	ID      string         `gorm:"type:varchar(50);primaryKey" json:"id"`
	Process string         `gorm:"type:varchar(255);index;not null" json:"process"`
	Emails  pq.StringArray `gorm:"type:varchar(320)[];not null" json:"emails"`

	CreatedAt time.Time `gorm:"column:created_at;type:timestamp;default:current_timestamp" json:"createdAt"`
	UpdatedAt time.Time `gorm:"column:updated_at;type:timestamp;default:current_timestamp" json:"updatedAt"`
}

func (ProcessConfig) TableName() string {
	return "process_configs"
}

func (p *ProcessConfig) BeforeCreate(tx *gorm.DB) error {
	if p.ID == "" {
		p.ID = utils.GenerateNanoIDWithPrefix("proc", 12)
	}
	p.CreatedAt = utils.Now()
	return nil
}
