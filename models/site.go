package models

import "time"

// Site mirrors one upstream website (wbfirm joined with its virtual host).
type Site struct {
	ID           uint       `gorm:"primaryKey" json:"id"`
	Owner        string     `gorm:"size:64;uniqueIndex:idx_site_owner" json:"owner"`
	Account      string     `gorm:"size:255" json:"account"`
	Name         string     `gorm:"size:255" json:"name"`
	Domain       string     `gorm:"size:255;index:idx_site_domain" json:"domain"`
	State        int        `json:"state"`
	AliasDomains string     `gorm:"type:text" json:"alias_domains"`
	CreateDate   *time.Time `json:"create_date"`
}
