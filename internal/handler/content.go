package handler

import (
	"encoding/json"
	"time"

	"cdk-license-server/internal/database"
	"cdk-license-server/internal/middleware"
	"cdk-license-server/internal/model"

	"github.com/gofiber/fiber/v2"
)

// defaultSettings 内容配置兜底值，后台未编辑过时使用
var defaultSettings = fiber.Map{
	"active_account_pool":   "cursor_accounts",
	"buy_url":               "https://pay.ldxp.cn/shop/HS67LQ6L",
	"cdk_expiration_prompt": "激活码已过期，请购买激活码",
	"common_problem":        "💡重要提示: 为优化使用体验，后端已完成调整，现已支持所有AI模型！<br><br>🎯 <strong>新功能特色</strong>:<br>✅ 支持Claude-4-Max模型<br>✅ 免魔法模式（Pro版专享）<br>✅ 智能账号池管理<br>✅ 断线自动重连<br><br>🔗 <a href=\"https://pay.ldxp.cn/shop/HS67LQ6L\" target=\"_blank\" style=\"color: #ff6b6b; font-weight: bold;\">立即购买激活码</a>",
	"cursor_max_enabled":    true,
	"magic_free_enabled":    true,
	"claude_4_max_support":  true,
}

// expectedFileHashes 客户端文件完整性基准哈希
var expectedFileHashes = fiber.Map{
	"f1": "b22e5d9793a4bd03f1fd57505d724678", // 核心文件
	"f2": "0f681632e34ec3e7bea0cc2d1d68c1da", // 配置文件
	"f3": "7ff83f5883d6a86438d4df4b1277a14b", // 资源文件
	"f4": "4fd7ee5c7a2c37a537ec14f8cf5dec7b", // 扩展文件
}

// loadSettings 取最新一条内容配置，没有则用默认值
func loadSettings() fiber.Map {
	var setting model.ContentSetting
	if err := database.DB.Order("updated_at DESC").First(&setting).Error; err != nil {
		return defaultSettings
	}

	var content fiber.Map
	if err := json.Unmarshal([]byte(setting.ContentData), &content); err != nil {
		return defaultSettings
	}
	return content
}

// HandleGetSettings 客户端拉取内容配置
func HandleGetSettings(c *fiber.Ctx) error {
	env, err := sealer.Seal(loadSettings())
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(env)
}

// HandleGetCode 客户端文件哈希校验
func HandleGetCode(c *fiber.Ctx) error {
	params := middleware.Params(c)
	version := middleware.ParamString(c, "version")

	clientHashes, _ := params["client_hashes"].(map[string]interface{})

	// 校验文件哈希
	hashesMatch := true
	for key, expected := range expectedFileHashes {
		if got, ok := clientHashes[key].(string); !ok || got != expected {
			hashesMatch = false
			break
		}
	}

	message := "获取成功"
	if !hashesMatch {
		// 文件损坏，通知客户端更新
		message = "需要更新文件"
	}

	return c.JSON(fiber.Map{
		"code":    200,
		"success": true,
		"message": message,
		"data": fiber.Map{
			"file_hashes": expectedFileHashes,
			"files":       fiber.Map{},
			"version":     version,
		},
	})
}

// HandleGetRestoreCode 客户端恢复文件下发
func HandleGetRestoreCode(c *fiber.Ctx) error {
	restoreData := fiber.Map{
		"file_hashes": fiber.Map{
			"r1": "da6fe8b681b1691520212a37ac5898fb",
			"r2": "f489bafd8aefa2c1ba0fdd55791df70f",
			"r3": "ed33dcb72ebd0b3cccea7da3bdb1477b",
		},
		"files": fiber.Map{
			"r1": "/*! For license information please see main.js.LICENSE.txt */\n// 恢复文件1内容（简化版）",
			"r2": "// 恢复文件2内容（简化版）",
			"r3": "// 恢复文件3内容（简化版）",
		},
	}

	return c.JSON(fiber.Map{
		"code":    200,
		"success": true,
		"message": "获取成功",
		"data":    restoreData,
	})
}

// HandleStatus 健康检查
func HandleStatus(c *fiber.Ctx) error {
	hasRedis := database.RDB != nil

	return c.JSON(fiber.Map{
		"timestamp":   time.Now().UTC().Format(time.RFC3339),
		"status":      "OK",
		"version":     "1.0.0",
		"hasPostgres": database.DB != nil,
		"hasRedis":    hasRedis,
		"deployment": fiber.Map{
			"domain":    c.Hostname(),
			"userAgent": c.Get("User-Agent"),
		},
	})
}
