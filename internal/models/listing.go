package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"gorm.io/gorm"
)

// Listing is a vehicle put up for sale by a seller.
type Listing struct {
	ID          string         `gorm:"primaryKey" json:"id"`
	SellerID    string         `gorm:"type:text;not null;index" json:"seller_id"`
	Title       string         `gorm:"type:text;not null" json:"title"`
	AskingPrice int64          `json:"asking_price"`
	Features    pq.StringArray `gorm:"type:text[]" json:"features"`
	CreatedAt   time.Time      `json:"created_at"`
}

func (l *Listing) BeforeCreate(tx *gorm.DB) (err error) {
	if l.ID == "" {
		l.ID = uuid.New().String()
	}
	return
}
