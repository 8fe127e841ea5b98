package models

import (
	"context"

	"gorm.io/gorm"
)

// AttachmentStore is the gorm-backed persistence used by the processing pipeline.
type AttachmentStore struct {
	db *gorm.DB
}

// NewAttachmentStore wraps db.
func NewAttachmentStore(db *gorm.DB) *AttachmentStore {
	return &AttachmentStore{db: db}
}

// ListBySite loads every attachment of the site in id order.
func (s *AttachmentStore) ListBySite(ctx context.Context, siteID string) ([]*Attachment, error) {
	var items []*Attachment
	if err := s.db.WithContext(ctx).Where("site_id = ?", siteID).Order("id ASC").Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

// Get loads one attachment by primary key.
func (s *AttachmentStore) Get(ctx context.Context, id uint) (*Attachment, error) {
	var a Attachment
	if err := s.db.WithContext(ctx).First(&a, id).Error; err != nil {
		return nil, err
	}
	return &a, nil
}

// Save commits every column of a.
func (s *AttachmentStore) Save(ctx context.Context, a *Attachment) error {
	return s.db.WithContext(ctx).Save(a).Error
}
