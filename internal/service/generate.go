package service

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"cdk-license-server/internal/model"
)

// 随机空间足够大，唯一性靠有限重试兜底即可，不加全局锁
const maxGenerateAttempts = 10

// GenerateCDKs 批量生成指定类型的CDK，格式 PREFIX-XXXX-XXXX-XXXX
func (s *CDKService) GenerateCDKs(cdkType string, count int) ([]model.CDK, error) {
	t, ok := model.CDKTypes[cdkType]
	if !ok {
		return nil, ErrInvalidFormat
	}

	generated := make([]model.CDK, 0, count)
	for i := 0; i < count; i++ {
		var code string
		unique := false

		for attempts := 0; attempts < maxGenerateAttempts; attempts++ {
			candidate, err := formatCDKCode(t.Name)
			if err != nil {
				return nil, ErrStoreUnavailable
			}

			var existing int64
			if err := s.db.Model(&model.CDK{}).
				Where("cdk_code = ?", candidate).
				Count(&existing).Error; err != nil {
				return nil, ErrStoreUnavailable
			}
			if existing == 0 {
				code = candidate
				unique = true
				break
			}
		}
		if !unique {
			return nil, ErrGenerationExhausted
		}

		row := model.CDK{
			CdkCode:   code,
			CdkType:   t.Name,
			Status:    model.StatusUnused,
			CreatedAt: time.Now(),
		}
		if err := s.db.Create(&row).Error; err != nil {
			return nil, ErrStoreUnavailable
		}
		generated = append(generated, row)
	}

	return generated, nil
}

// formatCDKCode 6个随机字节转大写hex后按4-4-4分段
func formatCDKCode(prefix string) (string, error) {
	b := make([]byte, 6)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	random := strings.ToUpper(hex.EncodeToString(b))
	return fmt.Sprintf("%s-%s-%s-%s", prefix, random[0:4], random[4:8], random[8:12]), nil
}
