package model

import "time"

// PointsRecord 积分账本，每个已激活CDK一行
// 余额只通过条件更新扣减，usage_history 只追加
type PointsRecord struct {
	ID            uint      `json:"id" gorm:"primaryKey"`
	CdkCode       string    `json:"cdk_code" gorm:"uniqueIndex;size:50;not null"`
	PointsBalance int       `json:"points_balance"`
	LastUpdated   time.Time `json:"last_updated"`
	UsageHistory  string    `json:"usage_history" gorm:"type:text;default:'[]'"`
}

// PointsUsage usage_history 中的单条流水
type PointsUsage struct {
	Operation string    `json:"operation"`
	Delta     int       `json:"delta"`
	Timestamp time.Time `json:"timestamp"`
}
