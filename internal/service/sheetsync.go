package service

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"cdk-license-server/internal/model"

	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"
)

// SheetSyncService 把CDK台账导出到Google Sheet，方便运营对账
// 仅导出，不回写数据库
type SheetSyncService struct {
	service       *sheets.Service
	spreadsheetID string
	sheetName     string
}

func NewSheetSyncService(enableSync bool, credentialPath, spreadsheetID, sheetName string) (*SheetSyncService, error) {
	if !enableSync {
		return nil, nil
	}

	ctx := context.Background()

	// 读取凭证文件
	b, err := os.ReadFile(credentialPath)
	if err != nil {
		return nil, err
	}

	// 使用服务账号授权
	creds, err := google.CredentialsFromJSON(ctx, b, sheets.SpreadsheetsScope)
	if err != nil {
		return nil, fmt.Errorf("无法加载凭证: %v", err)
	}

	srv, err := sheets.NewService(ctx, option.WithCredentials(creds))
	if err != nil {
		return nil, err
	}

	return &SheetSyncService{
		service:       srv,
		spreadsheetID: spreadsheetID,
		sheetName:     sheetName,
	}, nil
}

func cdkRow(cdk *model.CDK) []interface{} {
	formatTime := func(t *time.Time) string {
		if t == nil {
			return ""
		}
		return t.Format(time.RFC3339)
	}
	return []interface{}{
		cdk.CdkCode,
		cdk.CdkType,
		cdk.Status,
		cdk.CreatedAt.Format(time.RFC3339),
		formatTime(cdk.ActivatedAt),
		formatTime(cdk.ExpiresAt),
		cdk.UserID,
		cdk.DeviceCode,
	}
}

// SyncCDK 同步单个CDK到Sheet：已存在则更新对应行，否则追加
func (s *SheetSyncService) SyncCDK(cdk *model.CDK) error {
	if s == nil {
		return nil
	}

	// 先检查Sheet中是否已存在该码
	rangeToSearch := fmt.Sprintf("%s!A2:A", s.sheetName)
	keyResp, err := s.service.Spreadsheets.Values.Get(s.spreadsheetID, rangeToSearch).Do()
	if err != nil {
		log.Printf("查询Sheet数据失败: %v", err)
		return fmt.Errorf("查询Sheet数据失败: %v", err)
	}

	var rowIndex int
	found := false
	for i, row := range keyResp.Values {
		if len(row) > 0 && row[0] == cdk.CdkCode {
			found = true
			rowIndex = i + 2 // +2因为A2开始且数组从0开始
			break
		}
	}

	values := [][]interface{}{cdkRow(cdk)}

	// 根据是否找到决定更新还是追加
	if found {
		rangeData := fmt.Sprintf("%s!A%d:H%d", s.sheetName, rowIndex, rowIndex)
		_, err = s.service.Spreadsheets.Values.Update(
			s.spreadsheetID,
			rangeData,
			&sheets.ValueRange{Values: values},
		).ValueInputOption("USER_ENTERED").Do()
	} else {
		_, err = s.service.Spreadsheets.Values.Append(
			s.spreadsheetID,
			s.sheetName+"!A2:H",
			&sheets.ValueRange{Values: values},
		).ValueInputOption("USER_ENTERED").Do()
	}

	if err != nil {
		log.Printf("同步到Google Sheet失败: %v", err)
		return fmt.Errorf("同步到Google Sheet失败: %v", err)
	}

	return nil
}

// BatchSyncCDKs 批量追加新生成的CDK
func (s *SheetSyncService) BatchSyncCDKs(cdks []model.CDK) error {
	if s == nil {
		return nil
	}

	var values [][]interface{}
	for i := range cdks {
		values = append(values, cdkRow(&cdks[i]))
	}

	_, err := s.service.Spreadsheets.Values.Append(
		s.spreadsheetID,
		s.sheetName+"!A2:H",
		&sheets.ValueRange{Values: values},
	).ValueInputOption("USER_ENTERED").Do()

	if err != nil {
		log.Printf("批量同步CDK失败: %v", err)
		return err
	}

	return nil
}
