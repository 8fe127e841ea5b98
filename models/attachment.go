package models

import (
	"fmt"
	"time"
)

// Attachment is one remote file referenced by a site, with extraction and detection results.
// SiteID holds the owning site's Owner value, not Site.ID.
type Attachment struct {
	ID         uint       `gorm:"primaryKey" json:"id"`
	SiteID     string     `gorm:"size:64;index:idx_attachment_site_id" json:"site_id"`
	ShowName   string     `gorm:"size:512" json:"show_name"`
	FilePath   string     `gorm:"size:1024" json:"file_path"`
	URLPath    string     `gorm:"size:1024" json:"url_path"`
	FileExt    string     `gorm:"size:32;index:idx_attachment_file_ext" json:"file_ext"`
	CreateDate *time.Time `json:"create_date"`

	TextContent string `gorm:"type:text" json:"text_content"`
	OCRContent  string `gorm:"column:ocr_content;type:text" json:"ocr_content"`
	LLMContent  string `gorm:"column:llm_content;type:text" json:"llm_content"`
	HasIDCard   bool   `gorm:"index:idx_attachment_has_id_card;default:false" json:"has_id_card"`
	HasPhone    bool   `gorm:"index:idx_attachment_has_phone;default:false" json:"has_phone"`

	ManualVerifiedSensitive bool       `gorm:"default:false" json:"manual_verified_sensitive"`
	VerificationNotes       string     `gorm:"type:text" json:"verification_notes"`
	ProcessedAt             *time.Time `json:"processed_datetime"`
}

// Sensitive reports whether either sensitive-data flag is set.
func (a *Attachment) Sensitive() bool {
	return a.HasIDCard || a.HasPhone
}

// MarkDetection stores the detection flags and flags the record for manual review when positive.
func (a *Attachment) MarkDetection(hasIDCard, hasPhone bool) {
	a.HasIDCard = hasIDCard
	a.HasPhone = hasPhone
	if hasIDCard || hasPhone {
		a.ManualVerifiedSensitive = true
		a.VerificationNotes = fmt.Sprintf("Auto-detected: ID card=%t, Phone=%t", hasIDCard, hasPhone)
	}
}
