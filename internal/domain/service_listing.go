package domain

import "time"

// ServiceListing is the read model of a provider's bookable service.
type ServiceListing struct {
	ID         int64     `json:"id"`
	ProviderID int64     `json:"provider_id" gorm:"not null;index"`
	Title      string    `json:"title"`
	Price      int64     `json:"price" gorm:"not null"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

func (ServiceListing) TableName() string {
	return "services"
}
