package database

import (
	"log"
	"os"
	"path/filepath"
	"time"

	"cdk-license-server/internal/model"

	"github.com/glebarez/sqlite"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

var DB *gorm.DB

// InitDB 初始化数据库连接并迁移表结构
// 配置了 DATABASE_URL 时连接 PostgreSQL，否则退回本地 SQLite 文件
func InitDB(databaseURL string) {
	var err error

	if databaseURL != "" {
		DB, err = gorm.Open(postgres.Open(databaseURL), &gorm.Config{})
		if err != nil {
			log.Fatal("PostgreSQL连接失败:", err)
		}
	} else {
		// 创建数据目录
		dataDir := "data"
		if err := os.MkdirAll(dataDir, 0755); err != nil {
			log.Fatal("创建数据目录失败:", err)
		}

		dbPath := filepath.Join(dataDir, "cdk.db")
		DB, err = gorm.Open(sqlite.Open(dbPath), &gorm.Config{})
		if err != nil {
			log.Fatal("数据库连接失败:", err)
		}
		log.Println("未配置DATABASE_URL，使用本地SQLite:", dbPath)
	}

	// 自动迁移模型
	err = DB.AutoMigrate(
		&model.User{},
		&model.CDK{},
		&model.UserDevice{},
		&model.PointsRecord{},
		&model.ContentSetting{},
		&model.AdminLog{},
	)
	if err != nil {
		log.Fatal("数据库迁移失败:", err)
	}
}

// SeedAdmin 检查并创建默认管理员账户
func SeedAdmin(username, password string) {
	var adminCount int64
	DB.Model(&model.User{}).Where("username = ?", username).Count(&adminCount)

	if adminCount == 0 {
		// 生成密码哈希
		hashedPassword, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
		if err != nil {
			log.Fatal("生成密码哈希失败:", err)
		}

		admin := &model.User{
			Username:  username,
			Password:  string(hashedPassword),
			Role:      "admin",
			CreatedAt: time.Now(),
			UpdatedAt: time.Now(),
		}

		if err := DB.Create(admin).Error; err != nil {
			log.Fatal("创建管理员账户失败:", err)
		}

		log.Println("已创建默认管理员账户")
	}
}
