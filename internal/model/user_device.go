package model

import "time"

// UserDevice 设备绑定记录，只追加不删除，解绑时翻转 is_active
type UserDevice struct {
	ID         uint      `json:"id" gorm:"primaryKey"`
	AuthorID   string    `json:"author_id" gorm:"size:50;not null"`
	DeviceCode string    `json:"device_code" gorm:"size:200;index;not null"`
	CdkCode    string    `json:"cdk_code" gorm:"size:50;index;not null"`
	BoundAt    time.Time `json:"bound_at"`
	LastActive time.Time `json:"last_active"`
	IsActive   bool      `json:"is_active" gorm:"default:true"`
}
