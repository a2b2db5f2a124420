package model

import "strings"

// CDKType CDK类型配置，前缀决定时长、积分与功能权限
type CDKType struct {
	Name      string
	Duration  int // 有效期（天）
	Accounts  int // 账号池配额
	Points    int // 激活时初始化的积分
	MagicFree bool
	CursorMax bool
}

// CDKTypes 闭合类型表，与客户端约定一致，不可动态扩展
var CDKTypes = map[string]CDKType{
	// Pro版 - 支持免魔法功能
	"DAYPRO":     {Name: "DAYPRO", Duration: 1, Accounts: 5, Points: 500, MagicFree: true, CursorMax: false},
	"WEEKPRO":    {Name: "WEEKPRO", Duration: 7, Accounts: 35, Points: 3500, MagicFree: true, CursorMax: false},
	"MONTHPRO":   {Name: "MONTHPRO", Duration: 30, Accounts: 150, Points: 15000, MagicFree: true, CursorMax: true},
	"QUARTERPRO": {Name: "QUARTERPRO", Duration: 90, Accounts: 450, Points: 45000, MagicFree: true, CursorMax: true},
	"YEARPRO":    {Name: "YEARPRO", Duration: 365, Accounts: 1800, Points: 180000, MagicFree: true, CursorMax: true},

	// 普通版 - 不支持免魔法功能
	"DAY":     {Name: "DAY", Duration: 1, Accounts: 5, Points: 500, MagicFree: false, CursorMax: false},
	"WEEK":    {Name: "WEEK", Duration: 7, Accounts: 35, Points: 3500, MagicFree: false, CursorMax: false},
	"MONTH":   {Name: "MONTH", Duration: 30, Accounts: 150, Points: 15000, MagicFree: false, CursorMax: true},
	"QUARTER": {Name: "QUARTER", Duration: 90, Accounts: 450, Points: 45000, MagicFree: false, CursorMax: true},
}

// PointsConsumption 积分消耗规则，未列出的操作按0分处理
var PointsConsumption = map[string]int{
	"ai_chat":        0,   // AI对话不扣分
	"account_switch": 100, // 无感换号100分/次
}

// GetCDKType 按前缀解析CDK类型，未知前缀返回nil
func GetCDKType(cdk string) *CDKType {
	prefix := strings.SplitN(cdk, "-", 2)[0]
	if t, ok := CDKTypes[prefix]; ok {
		return &t
	}
	return nil
}

// DeviceCap 每个CDK最多允许的活跃设备绑定数
const DeviceCap = 2
