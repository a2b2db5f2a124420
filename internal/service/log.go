package service

import (
	"encoding/json"
	"time"

	"cdk-license-server/internal/database"
	"cdk-license-server/internal/model"
)

func LogAdminAction(username, action string, details interface{}, ip, userAgent string) error {
	detailsJSON, err := json.Marshal(details)
	if err != nil {
		return err
	}

	entry := &model.AdminLog{
		AdminUsername: username,
		Action:        action,
		Details:       string(detailsJSON),
		IPAddress:     ip,
		UserAgent:     userAgent,
		CreatedAt:     time.Now(),
	}

	return database.DB.Create(entry).Error
}

// 获取管理操作日志列表
func GetAdminLogs(page, pageSize int) ([]model.AdminLog, int64, error) {
	var logs []model.AdminLog
	var total int64

	db := database.DB

	// 获取总数
	if err := db.Model(&model.AdminLog{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	// 获取分页数据
	offset := (page - 1) * pageSize
	if err := db.Order("created_at DESC").Offset(offset).Limit(pageSize).Find(&logs).Error; err != nil {
		return nil, 0, err
	}

	return logs, total, nil
}

// 清空管理操作日志
func ClearAdminLogs() error {
	return database.DB.Where("1 = 1").Delete(&model.AdminLog{}).Error
}
