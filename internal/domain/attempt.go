package domain

import "time"

// DeliveryAttempt records a single forwarding attempt for a record.
type DeliveryAttempt struct {
	ID            string  `gorm:"type:uuid;primaryKey"`
	RecordID      int64   `gorm:"not null"`
	AttemptNumber int     `gorm:"not null"`
	StatusCode    *int    `gorm:"type:int"`
	ResponseBody  *string `gorm:"type:text"`
	Error         *string `gorm:"type:text"`
	CreatedAt     time.Time
}
