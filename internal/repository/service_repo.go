package repository

import (
	"context"

	"marketplace/internal/domain"
)

// GetService is the service-price lookup consumed by booking validation.
func (s *Store) GetService(ctx context.Context, id int64) (*domain.ServiceListing, error) {
	var svc domain.ServiceListing
	if err := s.conn(ctx).First(&svc, id).Error; err != nil {
		return nil, notFound(err)
	}
	return &svc, nil
}
