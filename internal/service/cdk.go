package service

import (
	"encoding/json"
	"errors"
	"time"

	"cdk-license-server/internal/model"

	"gorm.io/gorm"
)

// CDKService CDK激活、权限与积分的核心业务逻辑
type CDKService struct {
	db *gorm.DB
}

func NewCDKService(db *gorm.DB) *CDKService {
	return &CDKService{db: db}
}

type ActivateInput struct {
	CDK          string
	DeviceCode   string
	AuthorID     string
	Version      string
	ClientHashes interface{}
}

type ActivationResult struct {
	CDK          *model.CDK
	BoundDevices int64
}

// Activate 激活CDK并绑定设备
// 状态检查、设备上限复核、积分初始化在同一事务内完成，任一步失败全部回滚
func (s *CDKService) Activate(input ActivateInput) (*ActivationResult, error) {
	cdkType := model.GetCDKType(input.CDK)
	if cdkType == nil {
		return nil, ErrInvalidFormat
	}

	result := &ActivationResult{}
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var row model.CDK
		found := true
		if err := tx.Where("cdk_code = ?", input.CDK).First(&row).Error; err != nil {
			if !errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrStoreUnavailable
			}
			found = false
		}

		if found {
			switch row.Status {
			case model.StatusActivated:
				return ErrAlreadyUsed
			case model.StatusExpired, model.StatusDisabled:
				return ErrNotActivatable
			}
		}

		// 先做一次绑定数量预检查，快速失败
		var bound int64
		if err := tx.Model(&model.UserDevice{}).
			Where("cdk_code = ? AND is_active = ?", input.CDK, true).
			Count(&bound).Error; err != nil {
			return ErrStoreUnavailable
		}
		if bound >= model.DeviceCap {
			return ErrDeviceLimitReached
		}

		now := time.Now()
		expiresAt := now.Add(time.Duration(cdkType.Duration) * 24 * time.Hour)
		activationData, _ := json.Marshal(map[string]interface{}{
			"version":       input.Version,
			"client_hashes": input.ClientHashes,
			"author_id":     input.AuthorID,
		})

		if found {
			// 只允许从UNUSED激活；0行受影响说明并发竞争中被别人抢先激活
			res := tx.Model(&model.CDK{}).
				Where("cdk_code = ? AND status = ?", input.CDK, model.StatusUnused).
				Updates(map[string]interface{}{
					"status":          model.StatusActivated,
					"activated_at":    now,
					"expires_at":      expiresAt,
					"user_id":         input.AuthorID,
					"device_code":     input.DeviceCode,
					"activation_data": string(activationData),
				})
			if res.Error != nil {
				return ErrStoreUnavailable
			}
			if res.RowsAffected == 0 {
				return ErrAlreadyUsed
			}
			row.Status = model.StatusActivated
			row.ActivatedAt = &now
			row.ExpiresAt = &expiresAt
			row.UserID = input.AuthorID
			row.DeviceCode = input.DeviceCode
			row.ActivationData = string(activationData)
		} else {
			// 格式合法但未入库的码按客户端协议同样可激活，直接落库
			row = model.CDK{
				CdkCode:        input.CDK,
				CdkType:        cdkType.Name,
				Status:         model.StatusActivated,
				CreatedAt:      now,
				ActivatedAt:    &now,
				ExpiresAt:      &expiresAt,
				UserID:         input.AuthorID,
				DeviceCode:     input.DeviceCode,
				ActivationData: string(activationData),
			}
			if err := tx.Create(&row).Error; err != nil {
				// 唯一索引冲突意味着并发插入，对外表现为已被使用
				return ErrAlreadyUsed
			}
		}

		// 条件插入绑定，数据库侧复核上限，两个并发激活不可能同时塞进第3台设备
		res := tx.Exec(
			`INSERT INTO user_devices (author_id, device_code, cdk_code, bound_at, last_active, is_active)
			 SELECT ?, ?, ?, ?, ?, ?
			 WHERE (SELECT COUNT(*) FROM user_devices WHERE cdk_code = ? AND is_active = ?) < ?`,
			input.AuthorID, input.DeviceCode, input.CDK, now, now, true,
			input.CDK, true, model.DeviceCap,
		)
		if res.Error != nil {
			return ErrStoreUnavailable
		}
		if res.RowsAffected == 0 {
			return ErrDeviceLimitReached
		}

		// 初始化积分账本，余额只在激活时播种一次
		record := model.PointsRecord{
			CdkCode:       input.CDK,
			PointsBalance: cdkType.Points,
			LastUpdated:   now,
			UsageHistory:  "[]",
		}
		if err := tx.Create(&record).Error; err != nil {
			return ErrStoreUnavailable
		}

		if err := tx.Model(&model.UserDevice{}).
			Where("cdk_code = ? AND is_active = ?", input.CDK, true).
			Count(&result.BoundDevices).Error; err != nil {
			return ErrStoreUnavailable
		}

		result.CDK = &row
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// CheckPermission 检查CDK类型是否具备指定功能权限
// 未知码或未知权限一律返回false（拒绝优先），不报错
func (s *CDKService) CheckPermission(cdk, permission string) bool {
	cdkType := model.GetCDKType(cdk)
	if cdkType == nil {
		return false
	}

	switch permission {
	case "magic_free":
		return cdkType.MagicFree
	case "cursor_max":
		return cdkType.CursorMax
	default:
		return false
	}
}

// ConsumePoints 按操作类型扣减积分，返回剩余余额
// 扣减是单条条件更新，余额不足时0行受影响，绝不会扣成负数
func (s *CDKService) ConsumePoints(cdk, operation string) (int, error) {
	cost := model.PointsConsumption[operation]
	if cost == 0 {
		return s.GetPoints(cdk)
	}

	var remaining int
	err := s.db.Transaction(func(tx *gorm.DB) error {
		now := time.Now()
		res := tx.Exec(
			`UPDATE points_records SET points_balance = points_balance - ?, last_updated = ?
			 WHERE cdk_code = ? AND points_balance >= ?`,
			cost, now, cdk, cost,
		)
		if res.Error != nil {
			return ErrStoreUnavailable
		}
		if res.RowsAffected == 0 {
			return ErrInsufficientPoints
		}

		// 扣减成功后在同一事务里追加流水
		var record model.PointsRecord
		if err := tx.Where("cdk_code = ?", cdk).First(&record).Error; err != nil {
			return ErrStoreUnavailable
		}

		var history []model.PointsUsage
		if err := json.Unmarshal([]byte(record.UsageHistory), &history); err != nil {
			history = nil
		}
		history = append(history, model.PointsUsage{
			Operation: operation,
			Delta:     -cost,
			Timestamp: now,
		})
		historyJSON, _ := json.Marshal(history)
		if err := tx.Model(&record).Update("usage_history", string(historyJSON)).Error; err != nil {
			return ErrStoreUnavailable
		}

		remaining = record.PointsBalance
		return nil
	})
	if err != nil {
		return 0, err
	}
	return remaining, nil
}

// GetPoints 查询当前积分余额，附带惰性过期检查
func (s *CDKService) GetPoints(cdk string) (int, error) {
	if err := s.checkAlive(cdk); err != nil {
		return 0, err
	}

	var record model.PointsRecord
	if err := s.db.Where("cdk_code = ?", cdk).First(&record).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, ErrCDKNotFound
		}
		return 0, ErrStoreUnavailable
	}
	return record.PointsBalance, nil
}

// UnbindDevice 解绑设备：绑定行只追加，这里只翻转is_active
func (s *CDKService) UnbindDevice(cdk, deviceCode string) error {
	res := s.db.Model(&model.UserDevice{}).
		Where("cdk_code = ? AND device_code = ? AND is_active = ?", cdk, deviceCode, true).
		Updates(map[string]interface{}{"is_active": false, "last_active": time.Now()})
	if res.Error != nil {
		return ErrStoreUnavailable
	}
	if res.RowsAffected == 0 {
		return ErrDeviceNotBound
	}
	return nil
}

// checkAlive 惰性过期：已过期的ACTIVATED行在下一次读取时翻转为EXPIRED
func (s *CDKService) checkAlive(cdk string) error {
	var row model.CDK
	if err := s.db.Where("cdk_code = ?", cdk).First(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrCDKNotFound
		}
		return ErrStoreUnavailable
	}

	switch row.Status {
	case model.StatusExpired:
		return ErrCDKExpired
	case model.StatusDisabled:
		return ErrNotActivatable
	case model.StatusActivated:
		if row.ExpiresAt != nil && row.ExpiresAt.Before(time.Now()) {
			s.db.Model(&model.CDK{}).
				Where("cdk_code = ? AND status = ?", cdk, model.StatusActivated).
				Update("status", model.StatusExpired)
			return ErrCDKExpired
		}
	}
	return nil
}
