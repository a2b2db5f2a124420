package config

import (
	"errors"
	"log"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Config 进程配置，全部来自环境变量（支持 .env 文件）
type Config struct {
	Port string

	// 数据库连接，留空时退回本地 SQLite
	DatabaseURL string

	// Redis 防重放缓存；缺失时必须显式停用防重放才允许启动
	RedisAddr           string
	RedisPassword       string
	ReplayGuardDisabled bool

	// 协议密钥体系：HMAC 签名密钥（原样字符串参与运算），AES 响应加密密钥（hex 解码后使用）
	HMACKey   string
	WebAESKey string

	AdminUsername string
	AdminPassword string

	// Google Sheet 导出（可选）
	SheetSyncEnabled bool
	SheetCredential  string
	SpreadsheetID    string
	SheetName        string
}

func Load() *Config {
	// .env 不存在时静默忽略，线上直接读环境变量
	if err := godotenv.Load(); err == nil {
		log.Println("已加载 .env 配置文件")
	}

	cfg := &Config{
		Port:             getEnv("PORT", "8080"),
		DatabaseURL:      os.Getenv("DATABASE_URL"),
		RedisAddr:        os.Getenv("REDIS_ADDR"),
		RedisPassword:    os.Getenv("REDIS_PASSWORD"),
		HMACKey:          getEnv("HMAC_KEY", "9c5f66da591ea9f793959ec358abe1c14989d13642dcd92272e9f02a9811993e"),
		WebAESKey:        getEnv("WEB_AES_KEY", "bcfd1f8dd31c6917b714b38dbf5c87e533831f1c151320a3b172ad082041b072"),
		AdminUsername:    getEnv("ADMIN_USERNAME", "admin"),
		AdminPassword:    getEnv("ADMIN_PASSWORD", "admin123456"),
		SheetCredential:  os.Getenv("SHEET_CREDENTIAL_PATH"),
		SpreadsheetID:    os.Getenv("SPREADSHEET_ID"),
		SheetName:        getEnv("SHEET_NAME", "cdks"),
	}
	cfg.SheetSyncEnabled = getEnvBool("SHEET_SYNC_ENABLED", false)
	cfg.ReplayGuardDisabled = getEnvBool("REPLAY_GUARD_DISABLED", false)

	return cfg
}

// Validate 校验关键配置组合
// 防重放依赖Redis，缺失时不允许静默裸奔，本地调试必须显式停用
func (c *Config) Validate() error {
	if c.RedisAddr == "" && !c.ReplayGuardDisabled {
		return errors.New("未配置REDIS_ADDR：防重放校验依赖Redis，本地调试需显式设置 REPLAY_GUARD_DISABLED=true")
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}
