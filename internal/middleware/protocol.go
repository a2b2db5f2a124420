package middleware

import (
	"encoding/json"
	"time"

	"cdk-license-server/internal/crypto"
	"cdk-license-server/internal/service"

	"github.com/gofiber/fiber/v2"
)

// FreshnessWindow 客户端时间戳允许的最大偏移（毫秒），恰好等于窗口值时放行
const FreshnessWindow = 20000

const paramsKey = "protocolParams"

// Protocol 许可协议前置校验：时间戳新鲜度 → 签名 → （可选）防重放
// 任一校验失败立即拒绝，不触碰任何存储；全部通过后把参数集放入Locals供handler使用
func Protocol(codec *crypto.SignatureCodec, guard *service.ReplayGuard) fiber.Handler {
	return func(c *fiber.Ctx) error {
		body := c.Body()

		params, sign, err := crypto.DecodeSignedBody(body)
		if err != nil {
			return rejectWith(c, service.ErrMalformedRequest)
		}

		// 1. 时间戳新鲜度，最廉价的拒绝放最前面
		ts, ok := params["timestamp"].(json.Number)
		if !ok {
			return rejectWith(c, service.ErrStaleRequest)
		}
		tsMs, err := ts.Int64()
		if err != nil {
			return rejectWith(c, service.ErrStaleRequest)
		}
		if !timestampFresh(tsMs, time.Now().UnixMilli()) {
			return rejectWith(c, service.ErrStaleRequest)
		}

		// 2. 签名校验
		if !codec.VerifyBody(body) {
			return rejectWith(c, service.ErrSignatureInvalid)
		}

		// 3. 防重放（仅加密响应端点携带nonce协议，需要此防护）
		if guard != nil {
			seen, err := guard.SeenBefore(c.Context(), sign)
			if err != nil {
				return rejectWith(c, service.ErrStoreUnavailable)
			}
			if seen {
				return rejectWith(c, service.ErrReplayedRequest)
			}
		}

		c.Locals(paramsKey, params)
		return c.Next()
	}
}

// timestampFresh 判断毫秒时间戳偏移是否落在窗口内，恰好等于窗口值时放行
func timestampFresh(tsMs, nowMs int64) bool {
	offset := nowMs - tsMs
	if offset < 0 {
		offset = -offset
	}
	return offset <= FreshnessWindow
}

func rejectWith(c *fiber.Ctx, err *service.CDKError) error {
	return c.Status(err.Code).JSON(fiber.Map{
		"code":    err.Code,
		"message": err.Message,
		"success": false,
	})
}

// Params 取出协议中间件解析好的参数集
func Params(c *fiber.Ctx) map[string]interface{} {
	params, _ := c.Locals(paramsKey).(map[string]interface{})
	return params
}

// ParamString 按键取字符串参数，缺失或类型不符返回空串
func ParamString(c *fiber.Ctx, key string) string {
	v, _ := Params(c)[key].(string)
	return v
}
