package clanalytics

import (
	"portfolio/internal/models/clgeoip"
	"time"
)

// Visitor représente un visiteur unique, identifié par sa clé de session
type Visitor struct {
	ID         uint              `gorm:"primaryKey" json:"id"`
	SessionKey string            `gorm:"size:64;uniqueIndex;not null" json:"session_key"`
	RemoteIP   string            `gorm:"size:64" json:"remote_ip"`
	UserAgent  string            `gorm:"type:text" json:"user_agent"`
	DeviceType string            `gorm:"size:20;default:Desktop" json:"device_type"`
	Location   *clgeoip.Location `gorm:"serializer:json" json:"location"`
	FirstSeen  time.Time         `gorm:"not null" json:"first_seen"`
	LastSeen   time.Time         `gorm:"index;not null" json:"last_seen"`
	Online     bool              `gorm:"index;not null;default:false" json:"is_online"`
	Visits     int               `gorm:"not null;default:1" json:"visits"`
	PageViews  []PageView        `gorm:"foreignKey:VisitorID;constraint:OnDelete:CASCADE" json:"page_views,omitempty"`
}

// PageView représente une vue de page, immuable une fois créée
type PageView struct {
	ID         uint64    `gorm:"primaryKey" json:"id"`
	VisitorID  uint      `gorm:"index;not null" json:"visitor_id"`
	Path       string    `gorm:"size:255;index;not null" json:"path"`
	Method     string    `gorm:"size:10;default:GET" json:"method"`
	Referrer   string    `gorm:"size:500" json:"referrer"`
	StatusCode int       `json:"status_code"`
	CreatedAt  time.Time `gorm:"index;not null" json:"timestamp"`
}

func (PageView) TableName() string {
	return "page_views"
}

func (Visitor) TableName() string {
	return "visitors"
}

// HasLocation indique si une géolocalisation exploitable est déjà attachée
func (v *Visitor) HasLocation() bool {
	return v.Location != nil && !v.Location.IsEmpty()
}
