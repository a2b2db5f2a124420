package model

import "time"

// ContentSetting 后台可编辑的客户端内容配置（购买链接、公告等），整体JSON存储
type ContentSetting struct {
	ID          uint      `json:"id" gorm:"primaryKey"`
	ContentData string    `json:"content_data" gorm:"type:text;not null"`
	UpdatedBy   string    `json:"updated_by" gorm:"size:50;not null"`
	UpdatedAt   time.Time `json:"updated_at" gorm:"index"`
}
