package model

import "time"

type AdminLog struct {
	ID            uint      `json:"id" gorm:"primaryKey"`
	AdminUsername string    `json:"admin_username" gorm:"size:50;not null;index"`
	Action        string    `json:"action" gorm:"size:100;not null"`
	Details       string    `json:"details" gorm:"type:text"`
	IPAddress     string    `json:"ip_address" gorm:"size:45"`
	UserAgent     string    `json:"user_agent" gorm:"type:text"`
	CreatedAt     time.Time `json:"created_at" gorm:"index"`
}
