package main

import (
	"log"

	"cdk-license-server/internal/config"
	"cdk-license-server/internal/crypto"
	"cdk-license-server/internal/database"
	"cdk-license-server/internal/handler"
	"cdk-license-server/internal/middleware"
	"cdk-license-server/internal/service"
	"cdk-license-server/internal/util"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
)

func main() {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Fatal(err)
	}

	// 初始化数据库
	database.InitDB(cfg.DatabaseURL)
	database.SeedAdmin(cfg.AdminUsername, cfg.AdminPassword)

	// 防重放缓存；走到else分支说明已通过 REPLAY_GUARD_DISABLED 显式停用
	var guard *service.ReplayGuard
	if cfg.RedisAddr != "" {
		if err := database.InitRedis(cfg.RedisAddr, cfg.RedisPassword); err != nil {
			log.Fatal("Redis连接失败:", err)
		}
		guard = service.NewReplayGuard(database.RDB)
	} else {
		log.Println("REPLAY_GUARD_DISABLED=true，防重放校验已停用（仅限本地调试）")
	}

	// 协议密钥体系
	util.InitJWT(cfg.HMACKey)
	codec := crypto.NewSignatureCodec(cfg.HMACKey)
	sealer, err := crypto.NewSealer(cfg.WebAESKey, codec)
	if err != nil {
		log.Fatal("初始化响应加密失败:", err)
	}

	cdkService := service.NewCDKService(database.DB)

	sheetSync, err := service.NewSheetSyncService(
		cfg.SheetSyncEnabled, cfg.SheetCredential, cfg.SpreadsheetID, cfg.SheetName)
	if err != nil {
		log.Fatal("初始化Sheet同步失败:", err)
	}

	handler.Init(cdkService, sealer, cfg.HMACKey, sheetSync)

	app := fiber.New(fiber.Config{
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"code":    500,
				"message": "服务器内部错误",
				"success": false,
			})
		},
	})

	// 中间件
	app.Use(logger.New())
	app.Use(cors.New())

	// 加密响应端点需要防重放，普通端点仅靠时间戳窗口
	sealed := middleware.Protocol(codec, guard)
	plain := middleware.Protocol(codec, nil)

	api := app.Group("/api")
	api.Get("/status", handler.HandleStatus)

	// 客户端许可协议端点
	api.Post("/activate", sealed, handler.HandleActivate)
	api.Post("/get_auth", sealed, handler.HandleGetAuth)
	api.Post("/get_points", sealed, handler.HandleGetPoints)
	api.Post("/get_settings", sealed, handler.HandleGetSettings)
	api.Post("/consume_points", plain, handler.HandleConsumePoints)
	api.Post("/toggle_magic_free_mode", plain, handler.HandleToggleMagicFree)
	api.Post("/get_max_config", plain, handler.HandleGetMaxConfig)
	api.Post("/unbind_device", plain, handler.HandleUnbindDevice)
	api.Post("/get_code", plain, handler.HandleGetCode)
	api.Post("/get_restore_code", plain, handler.HandleGetRestoreCode)

	// 后台管理端点
	admin := api.Group("/admin")
	admin.Post("/login", handler.HandleAdminLogin)

	adminProtected := admin.Group("/", middleware.Auth(), middleware.AdminOnly())
	adminProtected.Get("/cdks", handler.HandleAdminListCDKs)
	adminProtected.Post("/cdks/generate", handler.HandleAdminGenerateCDKs)
	adminProtected.Put("/cdks/:code", handler.HandleAdminUpdateCDK)
	adminProtected.Get("/logs", handler.HandleAdminLogs)
	adminProtected.Post("/logs/clear", handler.HandleAdminClearLogs)
	adminProtected.Get("/content", handler.HandleAdminGetContent)
	adminProtected.Post("/content", handler.HandleAdminUpdateContent)

	log.Fatal(app.Listen(":" + cfg.Port))
}
