package model

import "time"

// CDK 状态机：UNUSED → ACTIVATED → EXPIRED；UNUSED ↔ DISABLED
const (
	StatusUnused    = "UNUSED"
	StatusActivated = "ACTIVATED"
	StatusExpired   = "EXPIRED"
	StatusDisabled  = "DISABLED"
)

type CDK struct {
	ID             uint       `json:"id" gorm:"primaryKey"`
	CdkCode        string     `json:"cdk_code" gorm:"uniqueIndex;size:50;not null"`
	CdkType        string     `json:"cdk_type" gorm:"size:20;not null"`
	Status         string     `json:"status" gorm:"size:20;default:'UNUSED';index"`
	CreatedAt      time.Time  `json:"created_at"`
	ActivatedAt    *time.Time `json:"activated_at"`
	ExpiresAt      *time.Time `json:"expires_at"`
	UserID         string     `json:"user_id" gorm:"size:100"`
	DeviceCode     string     `json:"device_code" gorm:"size:200"`
	ActivationData string     `json:"activation_data" gorm:"type:text"` // 客户端版本、文件哈希等JSON
}
