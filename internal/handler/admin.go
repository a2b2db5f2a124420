package handler

import (
	"encoding/json"
	"strconv"
	"time"

	"cdk-license-server/internal/database"
	"cdk-license-server/internal/model"
	"cdk-license-server/internal/service"
	"cdk-license-server/internal/util"

	"github.com/gofiber/fiber/v2"
	"golang.org/x/crypto/bcrypt"
)

type LoginInput struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func HandleAdminLogin(c *fiber.Ctx) error {
	input := new(LoginInput)
	if err := c.BodyParser(input); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"message": "无效的输入数据",
		})
	}

	var user model.User
	result := database.DB.Where("username = ?", input.Username).First(&user)
	if result.Error != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"success": false,
			"message": "用户名或密码错误",
		})
	}

	// 验证密码
	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(input.Password)); err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"success": false,
			"message": "用户名或密码错误",
		})
	}

	// 更新最后登录时间
	user.LastLogin = time.Now()
	database.DB.Save(&user)

	// 生成JWT令牌
	token, err := util.GenerateToken(user.Username, user.Role)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"message": "令牌生成失败",
		})
	}

	return c.JSON(fiber.Map{
		"success": true,
		"message": "登录成功",
		"token":   token,
		"user": fiber.Map{
			"username": user.Username,
			"role":     user.Role,
		},
	})
}

// HandleAdminListCDKs 分页查询CDK台账，支持状态和类型过滤
func HandleAdminListCDKs(c *fiber.Ctx) error {
	page, _ := strconv.Atoi(c.Query("page", "1"))
	limit, _ := strconv.Atoi(c.Query("limit", "20"))
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 20
	}

	query := database.DB.Model(&model.CDK{})
	if status := c.Query("status", "all"); status != "all" {
		query = query.Where("status = ?", status)
	}
	if cdkType := c.Query("type", "all"); cdkType != "all" {
		query = query.Where("cdk_type = ?", cdkType)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"message": "获取CDK数据失败",
		})
	}

	var cdks []model.CDK
	offset := (page - 1) * limit
	if err := query.Order("created_at DESC").Offset(offset).Limit(limit).Find(&cdks).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"message": "获取CDK数据失败",
		})
	}

	return c.JSON(fiber.Map{
		"success":    true,
		"cdks":       cdks,
		"total":      total,
		"page":       page,
		"limit":      limit,
		"totalPages": (total + int64(limit) - 1) / int64(limit),
	})
}

type GenerateInput struct {
	Type  string `json:"type"`
	Count int    `json:"count"`
}

// HandleAdminGenerateCDKs 批量生成CDK
func HandleAdminGenerateCDKs(c *fiber.Ctx) error {
	input := new(GenerateInput)
	if err := c.BodyParser(input); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"message": "无效的输入数据",
		})
	}
	if input.Count == 0 {
		input.Count = 1
	}

	if input.Type == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"message": "请提供CDK类型",
		})
	}
	if _, ok := model.CDKTypes[input.Type]; !ok {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"message": "无效的CDK类型",
		})
	}
	if input.Count < 1 || input.Count > 100 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"message": "生成数量必须在1-100之间",
		})
	}

	cdks, err := cdkService.GenerateCDKs(input.Type, input.Count)
	if err != nil {
		return respondError(c, err)
	}

	// 记录管理操作日志
	username, _ := c.Locals("adminUsername").(string)
	codes := make([]string, len(cdks))
	for i, cdk := range cdks {
		codes[i] = cdk.CdkCode
	}
	service.LogAdminAction(username, "CDK_GENERATE", fiber.Map{
		"type":            input.Type,
		"count":           input.Count,
		"generated_codes": codes,
	}, c.IP(), c.Get("User-Agent"))

	if sheetSync != nil {
		go sheetSync.BatchSyncCDKs(cdks)
	}

	return c.JSON(fiber.Map{
		"success": true,
		"message": "成功生成 " + strconv.Itoa(input.Count) + " 个 " + input.Type + " 类型的CDK",
		"cdks":    cdks,
	})
}

type UpdateCDKInput struct {
	Status string `json:"status"`
}

// HandleAdminUpdateCDK 启用/停用CDK，仅允许 UNUSED ↔ DISABLED
func HandleAdminUpdateCDK(c *fiber.Ctx) error {
	code := c.Params("code")
	if code == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"message": "激活码不能为空",
		})
	}

	input := new(UpdateCDKInput)
	if err := c.BodyParser(input); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"message": "无效的输入数据",
		})
	}

	var from string
	switch input.Status {
	case model.StatusDisabled:
		from = model.StatusUnused
	case model.StatusUnused:
		from = model.StatusDisabled
	default:
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"message": "不支持的状态变更",
		})
	}

	// 条件更新保证已激活的码不会被改回
	res := database.DB.Model(&model.CDK{}).
		Where("cdk_code = ? AND status = ?", code, from).
		Update("status", input.Status)
	if res.Error != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"message": "更新CDK失败",
		})
	}
	if res.RowsAffected == 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"message": "CDK不存在或状态不允许变更",
		})
	}

	username, _ := c.Locals("adminUsername").(string)
	service.LogAdminAction(username, "CDK_UPDATE", fiber.Map{
		"cdk_code": code,
		"status":   input.Status,
	}, c.IP(), c.Get("User-Agent"))

	var cdk model.CDK
	database.DB.Where("cdk_code = ?", code).First(&cdk)
	if sheetSync != nil {
		go sheetSync.SyncCDK(&cdk)
	}

	return c.JSON(fiber.Map{
		"success": true,
		"message": "CDK更新成功",
		"cdk":     cdk,
	})
}

// HandleAdminLogs 查询管理操作日志
func HandleAdminLogs(c *fiber.Ctx) error {
	page, _ := strconv.Atoi(c.Query("page", "1"))
	pageSize, _ := strconv.Atoi(c.Query("page_size", "20"))

	// 限制页面大小
	if pageSize > 100 {
		pageSize = 100
	}

	logs, total, err := service.GetAdminLogs(page, pageSize)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"message": "获取日志失败",
		})
	}

	return c.JSON(fiber.Map{
		"success": true,
		"logs":    logs,
		"total":   total,
		"page":    page,
	})
}

// HandleAdminClearLogs 清空管理操作日志
func HandleAdminClearLogs(c *fiber.Ctx) error {
	if err := service.ClearAdminLogs(); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"message": "清空日志失败",
		})
	}

	return c.JSON(fiber.Map{
		"success": true,
		"message": "日志已清空",
	})
}

// HandleAdminGetContent 获取内容配置
func HandleAdminGetContent(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"success": true,
		"content": loadSettings(),
	})
}

// HandleAdminUpdateContent 更新内容配置，整体覆盖式写入新版本
func HandleAdminUpdateContent(c *fiber.Ctx) error {
	var content map[string]interface{}
	if err := json.Unmarshal(c.Body(), &content); err != nil || len(content) == 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"message": "无效的输入数据",
		})
	}

	contentJSON, _ := json.Marshal(content)
	username, _ := c.Locals("adminUsername").(string)

	setting := &model.ContentSetting{
		ContentData: string(contentJSON),
		UpdatedBy:   username,
		UpdatedAt:   time.Now(),
	}
	if err := database.DB.Create(setting).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"message": "保存内容配置失败",
		})
	}

	service.LogAdminAction(username, "CONTENT_UPDATE", content, c.IP(), c.Get("User-Agent"))

	return c.JSON(fiber.Map{
		"success": true,
		"message": "内容配置已更新",
	})
}
