package handler

import (
	"crypto/rand"
	"encoding/json"
	"errors"
	"log"
	"math/big"
	"strconv"
	"time"

	"cdk-license-server/internal/crypto"
	"cdk-license-server/internal/middleware"
	"cdk-license-server/internal/service"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v4"
)

var (
	cdkService *service.CDKService
	sealer     *crypto.Sealer
	hmacKey    string
	sheetSync  *service.SheetSyncService
)

// Init 注入handler层依赖，main启动时调用一次
func Init(svc *service.CDKService, s *crypto.Sealer, key string, sync *service.SheetSyncService) {
	cdkService = svc
	sealer = s
	hmacKey = key
	sheetSync = sync
}

// respondError 业务错误统一转为 {code, message, success:false}，内部错误不外泄
func respondError(c *fiber.Ctx, err error) error {
	var cdkErr *service.CDKError
	if errors.As(err, &cdkErr) {
		return c.Status(cdkErr.Code).JSON(fiber.Map{
			"code":    cdkErr.Code,
			"message": cdkErr.Message,
			"success": false,
		})
	}

	log.Printf("未预期的内部错误: %v", err)
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
		"code":    500,
		"message": "服务器内部错误",
		"success": false,
	})
}

// HandleActivate CDK激活
func HandleActivate(c *fiber.Ctx) error {
	params := middleware.Params(c)

	result, err := cdkService.Activate(service.ActivateInput{
		CDK:          middleware.ParamString(c, "cdk"),
		DeviceCode:   middleware.ParamString(c, "device_code"),
		AuthorID:     middleware.ParamString(c, "author_id"),
		Version:      middleware.ParamString(c, "version"),
		ClientHashes: params["client_hashes"],
	})
	if err != nil {
		return respondError(c, err)
	}

	accessToken, err := randomBase36(40)
	if err != nil {
		return respondError(c, err)
	}
	refreshToken, err := randomBase36(40)
	if err != nil {
		return respondError(c, err)
	}

	// 激活数据结构与客户端约定格式一致
	activationData := fiber.Map{
		"activatedAt":   time.Now().UTC().Format("2006-01-02 15:04:05"),
		"boundDevices":  result.BoundDevices,
		"cdk":           result.CDK.CdkCode,
		"cookies":       "[{'name': 'WorkosCursorSessionToken', 'value': 'eyJhbGciOiJIUzI1NiIsInR5cCI6IkpXVCJ9...'}]",
		"user_id":       "auth0|user_01K59VNGE1XQYTSNXPQEP66BBV",
		"access_token":  "gho_" + accessToken,
		"refresh_token": "ghr_" + refreshToken,
		"expires_in":    time.Now().Unix() + 30*24*60*60,
		"scope":         "openid profile email offline_access",
	}

	env, err := sealer.Seal(activationData)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(env)
}

// HandleGetAuth AI授权端点，返回HS256令牌
func HandleGetAuth(c *fiber.Ctx) error {
	params := middleware.Params(c)
	now := time.Now()

	// 随机段较多，用闭包收敛第一处错误
	var rndErr error
	base36 := func(n int) string {
		s, err := randomBase36(n)
		if rndErr == nil {
			rndErr = err
		}
		return s
	}
	hexN := func(n int) string {
		s, err := randomHex(n)
		if rndErr == nil {
			rndErr = err
		}
		return s
	}

	jwtPayload := jwt.MapClaims{
		"sub":        "auth0|user_" + base36(16),
		"time":       strconv.FormatInt(now.Unix(), 10),
		"randomness": base36(11) + "-" + base36(11),
		"exp":        now.Add(24 * time.Hour).Unix(),
		"iss":        "https://authentication.cursor.sh",
		"scope":      "openid profile email offline_access",
	}
	checksum := "c2xud6XCf" + hexN(54) + "/" + hexN(64)
	forwarded := hexN(6) + "-0000-4000-" + hexN(2) + "-" + hexN(10)
	if rndErr != nil {
		return respondError(c, rndErr)
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwtPayload).SignedString([]byte(hmacKey))
	if err != nil {
		return respondError(c, err)
	}

	nonce, err := crypto.GenerateNonce()
	if err != nil {
		return respondError(c, err)
	}

	authData := fiber.Map{
		"checksum":  checksum,
		"forwarded": forwarded,
		"nonce":     nonce,
		"timestamp": params["timestamp"],
		"token":     token,
	}

	env, err := sealer.Seal(authData)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{
		"status": "success",
		"data":   env,
	})
}

// HandleGetPoints 查询积分余额
func HandleGetPoints(c *fiber.Ctx) error {
	params := middleware.Params(c)

	points, err := cdkService.GetPoints(middleware.ParamString(c, "cdk"))
	if err != nil {
		return respondError(c, err)
	}

	nonce, err := crypto.GenerateNonce()
	if err != nil {
		return respondError(c, err)
	}

	pointsData := fiber.Map{
		"nonce":     nonce,
		"points":    points,
		"timestamp": params["timestamp"],
	}

	env, err := sealer.Seal(pointsData)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(env)
}

// HandleConsumePoints 按操作扣减积分
func HandleConsumePoints(c *fiber.Ctx) error {
	remaining, err := cdkService.ConsumePoints(
		middleware.ParamString(c, "cdk"),
		middleware.ParamString(c, "operation"),
	)
	if err != nil {
		return respondError(c, err)
	}

	return c.JSON(fiber.Map{
		"code":    200,
		"success": true,
		"message": "扣减成功",
		"data": fiber.Map{
			"remaining": remaining,
		},
	})
}

// HandleToggleMagicFree 切换免魔法模式，仅Pro版可用
func HandleToggleMagicFree(c *fiber.Ctx) error {
	params := middleware.Params(c)

	if !cdkService.CheckPermission(middleware.ParamString(c, "cdk"), "magic_free") {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
			"code":    403,
			"message": "🤖免魔法功能 | 仅对【Pro版】用户开放",
			"success": false,
		})
	}

	enabled, _ := params["enabled"].(json.Number)
	if enabled.String() == "1" {
		return c.JSON(fiber.Map{
			"status":  "success",
			"message": "免魔法模式已开启，重启Cursor生效！<br><div style=\"color: #666;font-size: 13px;margin-top: 10px;padding: 8px;background-color: #f5dcdc;border-radius: 4px;\">💡 如果还报错锁国区：<strong style=\"color: #ff0000;\">Model not available</strong>，请尝试多问答几次！</div>",
			"data": fiber.Map{
				"enabled": 1,
			},
		})
	}
	return c.JSON(fiber.Map{
		"status":  "success",
		"message": "免魔法模式已关闭，必须挂魔法才可使用！",
		"data": fiber.Map{
			"enabled": 0,
		},
	})
}

// HandleGetMaxConfig MAX模型配置，仅月/季/年卡可用
func HandleGetMaxConfig(c *fiber.Ctx) error {
	if !cdkService.CheckPermission(middleware.ParamString(c, "cdk"), "cursor_max") {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
			"code":    403,
			"message": "🤖MAX模型 | 仅对【月/季/年卡】用户开放",
			"success": false,
		})
	}

	return c.JSON(fiber.Map{
		"code":    200,
		"success": true,
		"message": "获取成功",
		"data": fiber.Map{
			"max_enabled":          true,
			"max_models":           []string{"claude-4-max", "gpt-4-turbo"},
			"max_requests_per_day": 50,
		},
	})
}

// HandleUnbindDevice 解绑设备
func HandleUnbindDevice(c *fiber.Ctx) error {
	err := cdkService.UnbindDevice(
		middleware.ParamString(c, "cdk"),
		middleware.ParamString(c, "device_code"),
	)
	if err != nil {
		return respondError(c, err)
	}

	return c.JSON(fiber.Map{
		"status":  "success",
		"message": "解绑成功",
	})
}

const base36Chars = "abcdefghijklmnopqrstuvwxyz0123456789"
const hexChars = "0123456789abcdef"

func randomString(chars string, n int) (string, error) {
	b := make([]byte, n)
	max := big.NewInt(int64(len(chars)))
	for i := range b {
		idx, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		b[i] = chars[idx.Int64()]
	}
	return string(b), nil
}

func randomBase36(n int) (string, error) {
	return randomString(base36Chars, n)
}

func randomHex(n int) (string, error) {
	return randomString(hexChars, n)
}
